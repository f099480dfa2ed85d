package providers

import (
	"strings"
	"testing"
)

func TestScanToolCallFence(t *testing.T) {
	text := "I'll look that up.\n<tool_call>{\"name\": \"get_weather\", \"arguments\": {\"city\": \"Oslo\"}}</tool_call>\ndone"

	result := ScanInlineToolCalls(text)

	if len(result.Calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(result.Calls))
	}
	call := result.Calls[0]
	if call.Name != "get_weather" {
		t.Errorf("Name = %q, want %q", call.Name, "get_weather")
	}
	if call.Input["city"] != "Oslo" {
		t.Errorf("Input[city] = %v, want Oslo", call.Input["city"])
	}
	if !strings.HasPrefix(call.ID, "call_") {
		t.Errorf("ID = %q, want call_ prefix", call.ID)
	}
	if strings.Contains(result.Text, "tool_call") {
		t.Errorf("Text still contains the frame: %q", result.Text)
	}
	if len(result.ParseFailures) != 0 {
		t.Errorf("ParseFailures = %v, want none", result.ParseFailures)
	}
}

func TestScanToolCallFenceStringArguments(t *testing.T) {
	text := `<tool_call>{"name": "search", "arguments": "{\"q\": \"golang\"}"}</tool_call>`

	result := ScanInlineToolCalls(text)

	if len(result.Calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(result.Calls))
	}
	if result.Calls[0].Input["q"] != "golang" {
		t.Errorf("Input[q] = %v, want golang", result.Calls[0].Input["q"])
	}
}

func TestScanToolCallFenceMalformedJSON(t *testing.T) {
	text := "<tool_call>{\"name\": \"broken\", \"arguments\": {not json}}</tool_call>"

	result := ScanInlineToolCalls(text)

	if len(result.Calls) != 0 {
		t.Errorf("got %d calls, want 0", len(result.Calls))
	}
	if len(result.ParseFailures) != 1 {
		t.Fatalf("ParseFailures = %v, want exactly one", result.ParseFailures)
	}
	if strings.Contains(result.Text, "tool_call") {
		t.Errorf("malformed frame left in text: %q", result.Text)
	}
}

func TestScanInvokeFrame(t *testing.T) {
	text := `Before <invoke name="read_file"><parameter name="path">/tmp/x</parameter><parameter name="mode">r</parameter></invoke> after`

	result := ScanInlineToolCalls(text)

	if len(result.Calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(result.Calls))
	}
	call := result.Calls[0]
	if call.Name != "read_file" {
		t.Errorf("Name = %q, want read_file", call.Name)
	}
	if call.Input["path"] != "/tmp/x" || call.Input["mode"] != "r" {
		t.Errorf("Input = %v", call.Input)
	}
	if got := result.Text; got != "Before  after" {
		t.Errorf("Text = %q, want %q", got, "Before  after")
	}
}

func TestScanBareJSONLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantCall bool
		wantName string
	}{
		{"name arguments", `{"name": "ping", "arguments": {"host": "a"}}`, true, "ping"},
		{"tool args", `{"tool": "ping", "args": {"host": "a"}}`, true, "ping"},
		{"extra key", `{"name": "ping", "arguments": {}, "id": 1}`, false, ""},
		{"unrelated object", `{"city": "Oslo", "temp": 3}`, false, ""},
		{"not json", `name: ping`, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ScanInlineToolCalls("prefix\n" + tt.line + "\nsuffix")
			if tt.wantCall {
				if len(result.Calls) != 1 {
					t.Fatalf("got %d calls, want 1", len(result.Calls))
				}
				if result.Calls[0].Name != tt.wantName {
					t.Errorf("Name = %q, want %q", result.Calls[0].Name, tt.wantName)
				}
				if strings.Contains(result.Text, "ping") {
					t.Errorf("matched line left in text: %q", result.Text)
				}
			} else {
				if len(result.Calls) != 0 {
					t.Errorf("got %d calls, want 0", len(result.Calls))
				}
				if !strings.Contains(result.Text, tt.line) {
					t.Errorf("unmatched line removed from text: %q", result.Text)
				}
			}
		})
	}
}

func TestScanMultipleCalls(t *testing.T) {
	text := "<tool_call>{\"name\": \"a\", \"arguments\": {}}</tool_call>\n" +
		"<tool_call>{\"name\": \"b\", \"arguments\": {}}</tool_call>"

	result := ScanInlineToolCalls(text)

	if len(result.Calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(result.Calls))
	}
	if result.Calls[0].Name != "a" || result.Calls[1].Name != "b" {
		t.Errorf("calls out of order: %q, %q", result.Calls[0].Name, result.Calls[1].Name)
	}
	if result.Calls[0].ID == result.Calls[1].ID {
		t.Error("minted ids collide")
	}
}

func TestScanPlainTextUntouched(t *testing.T) {
	text := "Just a normal answer with {braces} and <tags> but no tool calls."

	result := ScanInlineToolCalls(text)

	if len(result.Calls) != 0 || len(result.ParseFailures) != 0 {
		t.Fatalf("calls = %v, failures = %v, want none", result.Calls, result.ParseFailures)
	}
	if result.Text != text {
		t.Errorf("Text = %q, want input unchanged", result.Text)
	}
}
