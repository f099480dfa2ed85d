package api

import "testing"

func TestCountTokensPlainText(t *testing.T) {
	n, err := CountTokens([]Message{
		{Role: RoleUser, Content: Text("hello world, how are you today?")},
	}, SystemPrompt{}, nil)
	if err != nil {
		t.Fatalf("CountTokens: %v", err)
	}
	// Content tokens plus the per-message overhead.
	if n <= perMessageOverhead {
		t.Errorf("count = %d, want more than the framing overhead", n)
	}
}

func TestCountTokensNeverZero(t *testing.T) {
	n, err := CountTokens(nil, SystemPrompt{}, nil)
	if err != nil {
		t.Fatalf("CountTokens: %v", err)
	}
	if n != 1 {
		t.Errorf("empty request count = %d, want 1", n)
	}
}

func TestCountTokensSystemAddsOverhead(t *testing.T) {
	msgs := []Message{{Role: RoleUser, Content: Text("hi")}}

	without, err := CountTokens(msgs, SystemPrompt{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	var system SystemPrompt
	if err := system.UnmarshalJSON([]byte(`"You are terse."`)); err != nil {
		t.Fatal(err)
	}
	with, err := CountTokens(msgs, system, nil)
	if err != nil {
		t.Fatal(err)
	}
	if with <= without+systemOverhead-1 {
		t.Errorf("system prompt added %d tokens, want content plus overhead", with-without)
	}
}

func TestCountTokensToolUseOverhead(t *testing.T) {
	plain := []Message{{Role: RoleUser, Content: Blocks(
		ContentBlock{Type: BlockTypeText, Text: "x"},
	)}}
	withTool := []Message{{Role: RoleUser, Content: Blocks(
		ContentBlock{Type: BlockTypeText, Text: "x"},
		ContentBlock{Type: BlockTypeToolUse, ID: "call_1", Name: "search",
			Input: map[string]any{"query": "y"}},
	)}}

	base, err := CountTokens(plain, SystemPrompt{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	tooled, err := CountTokens(withTool, SystemPrompt{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if tooled-base < toolUseOverhead {
		t.Errorf("tool_use added %d tokens, want at least %d", tooled-base, toolUseOverhead)
	}
}

func TestCountTokensToolDefinitions(t *testing.T) {
	msgs := []Message{{Role: RoleUser, Content: Text("hi")}}
	tools := []Tool{{
		Name:        "get_weather",
		Description: "Look up the weather for a city",
		InputSchema: map[string]any{"type": "object"},
	}}

	without, err := CountTokens(msgs, SystemPrompt{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	with, err := CountTokens(msgs, SystemPrompt{}, tools)
	if err != nil {
		t.Fatal(err)
	}
	if with-without < perToolOverhead {
		t.Errorf("tool definition added %d tokens", with-without)
	}
}

func TestImageTokens(t *testing.T) {
	// URL-only sources get the flat fallback.
	if got := imageTokens(map[string]any{"type": "url", "url": "https://x.test/a.png"}); got != imageFallbackTokens {
		t.Errorf("url image = %d, want %d", got, imageFallbackTokens)
	}
	// Tiny inline payloads hit the floor.
	if got := imageTokens(map[string]any{"data": "aGVsbG8="}); got != imageMinTokens {
		t.Errorf("tiny image = %d, want %d", got, imageMinTokens)
	}
	if got := imageTokens(nil); got != imageFallbackTokens {
		t.Errorf("nil source = %d, want %d", got, imageFallbackTokens)
	}
}
