//go:build integration

package test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestGatewayStartStop builds the binary, starts it against a fake
// upstream, exercises the HTTP surface, and shuts it down with SIGTERM.
func TestGatewayStartStop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"choices": [{"message": {"role": "assistant", "content": "pong"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 2, "completion_tokens": 1}
		}`)
	}))
	defer upstream.Close()

	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")
	writeTestConfig(t, configFile, fmt.Sprintf(`
server:
  listen_address: "127.0.0.1:18080"

default_provider: lmstudio

providers:
  lmstudio:
    base_url: "%s/v1"
    default_model: "local-model"

persistence:
  backend: none
`, upstream.URL))

	binary := buildBinary(t, tmpDir)

	cmd := exec.Command(binary, "run", "--config", configFile)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting gateway: %v", err)
	}
	defer cmd.Process.Kill()

	waitForHealth(t, "http://127.0.0.1:18080/health", 10*time.Second)

	// One round trip through the translation path.
	body := `{"model": "anything", "max_tokens": 50,
		"messages": [{"role": "user", "content": "ping"}]}`
	resp, err := http.Post("http://127.0.0.1:18080/v1/messages",
		"application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("POST /v1/messages: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	content, _ := decoded["content"].([]any)
	if len(content) == 0 {
		t.Fatalf("response = %v", decoded)
	}
	block := content[0].(map[string]any)
	if block["text"] != "pong" {
		t.Errorf("text = %v", block["text"])
	}

	// Graceful shutdown
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		t.Fatalf("signalling gateway: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("gateway exited with: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Error("gateway did not shut down within 15s")
	}
}

// TestValidateCommand checks the validate subcommand against a good and a
// broken config.
func TestValidateCommand(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	tmpDir := t.TempDir()
	binary := buildBinary(t, tmpDir)

	good := filepath.Join(tmpDir, "good.yaml")
	writeTestConfig(t, good, `
providers:
  lmstudio:
    base_url: "http://localhost:1234/v1"
    default_model: "local-model"
persistence:
  backend: none
`)
	out, err := exec.Command(binary, "validate", "--config", good).CombinedOutput()
	if err != nil {
		t.Fatalf("validate failed: %v\n%s", err, out)
	}
	if !strings.Contains(string(out), "Configuration valid") {
		t.Errorf("validate output: %s", out)
	}

	bad := filepath.Join(tmpDir, "bad.yaml")
	writeTestConfig(t, bad, `
providers:
  lmstudio:
    base_url: ""
`)
	if out, err := exec.Command(binary, "validate", "--config", bad).CombinedOutput(); err == nil {
		t.Errorf("validate accepted a broken config:\n%s", out)
	}
}

func buildBinary(t *testing.T, dir string) string {
	t.Helper()
	binary := filepath.Join(dir, "relay")
	cmd := exec.Command("go", "build", "-o", binary, "lumen-hq/relay/cmd/relay")
	cmd.Dir = repoRoot(t)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("building binary: %v\n%s", err, out)
	}
	return binary
}

func repoRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	return filepath.Dir(wd)
}

func writeTestConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
}

func waitForHealth(t *testing.T, url string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server never became healthy at %s", url)
}
