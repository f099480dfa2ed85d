package api

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMessageContentDecodesBothShapes(t *testing.T) {
	var msg Message
	if err := json.Unmarshal([]byte(`{"role": "user", "content": "hello"}`), &msg); err != nil {
		t.Fatalf("string form: %v", err)
	}
	if !msg.Content.IsString() || msg.Content.String() != "hello" {
		t.Errorf("string content = %q, IsString %v", msg.Content.String(), msg.Content.IsString())
	}

	blockForm := `{"role": "user", "content": [
		{"type": "text", "text": "look at this"},
		{"type": "image", "source": {"type": "url", "url": "https://x.test/a.png"}}
	]}`
	if err := json.Unmarshal([]byte(blockForm), &msg); err != nil {
		t.Fatalf("block form: %v", err)
	}
	blocks := msg.Content.Blocks()
	if msg.Content.IsString() || len(blocks) != 2 {
		t.Fatalf("blocks = %d, IsString %v", len(blocks), msg.Content.IsString())
	}
	if blocks[0].Type != BlockTypeText || blocks[1].Type != BlockTypeImage {
		t.Errorf("block types = %q, %q", blocks[0].Type, blocks[1].Type)
	}

	if err := json.Unmarshal([]byte(`{"role": "user", "content": 42}`), &msg); err == nil {
		t.Error("numeric content accepted")
	}
}

func TestContentBlockMarshalToolUseAlwaysCarriesInput(t *testing.T) {
	out, err := json.Marshal(ContentBlock{Type: BlockTypeToolUse, ID: "call_1", Name: "search"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `"input":{}`) {
		t.Errorf("tool_use without arguments = %s, want empty input object", out)
	}
}

func TestContentBlockMarshalTextAlwaysCarriesText(t *testing.T) {
	out, err := json.Marshal(ContentBlock{Type: BlockTypeText})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `"text":""`) {
		t.Errorf("empty text block = %s, want explicit text field", out)
	}
}

func TestSystemPromptForms(t *testing.T) {
	var s SystemPrompt
	if !s.IsZero() {
		t.Error("zero value reports set")
	}

	if err := json.Unmarshal([]byte(`"be brief"`), &s); err != nil {
		t.Fatal(err)
	}
	if s.IsZero() || s.Text() != "be brief" {
		t.Errorf("string form Text() = %q", s.Text())
	}

	listForm := `[{"type": "text", "text": "rule one"}, {"type": "text", "text": "rule two"}]`
	if err := json.Unmarshal([]byte(listForm), &s); err != nil {
		t.Fatal(err)
	}
	if s.Text() != "rule one\n\nrule two" {
		t.Errorf("list form Text() = %q", s.Text())
	}
}

func TestToolResultText(t *testing.T) {
	block := ContentBlock{Type: BlockTypeToolResult, Content: json.RawMessage(`"plain result"`)}
	if got := block.ResultText(); got != "plain result" {
		t.Errorf("string result = %q", got)
	}

	block.Content = json.RawMessage(`[{"type": "text", "text": "x"}]`)
	if got := block.ResultText(); got != `[{"type": "text", "text": "x"}]` {
		t.Errorf("structured result = %q", got)
	}

	block.Content = nil
	if got := block.ResultText(); got != "" {
		t.Errorf("empty result = %q", got)
	}
}

func TestThinkingConfigForms(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{`{"enabled": true}`, true},
		{`{"enabled": false}`, false},
		{`{"type": "enabled"}`, true},
		{`{"type": "disabled"}`, false},
	}
	for _, tt := range tests {
		var cfg ThinkingConfig
		if err := json.Unmarshal([]byte(tt.in), &cfg); err != nil {
			t.Fatalf("%s: %v", tt.in, err)
		}
		if cfg.Enabled != tt.want {
			t.Errorf("%s: Enabled = %v", tt.in, cfg.Enabled)
		}
	}
}

func TestNewErrorEnvelope(t *testing.T) {
	out, err := json.Marshal(NewErrorEnvelope("invalid_request_error", "model is required"))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"error","error":{"type":"invalid_request_error","message":"model is required"}}`
	if string(out) != want {
		t.Errorf("envelope = %s", out)
	}
}
