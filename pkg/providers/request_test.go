package providers

import (
	"encoding/json"
	"testing"

	"lumen-hq/relay/pkg/api"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }
func boolPtr(b bool) *bool        { return &b }

func testConfig() Config {
	cfg := Config{
		Name:    ProviderNvidiaNIM,
		BaseURL: "http://localhost:8000/v1",
		APIKey:  "test-key",
	}
	cfg.ApplyDefaults()
	return cfg
}

func bodyMessages(t *testing.T, body map[string]any) []ChatMessage {
	t.Helper()
	msgs, ok := body["messages"].([]ChatMessage)
	if !ok {
		t.Fatalf("messages has type %T", body["messages"])
	}
	return msgs
}

func TestBuildChatBodySystemPrompt(t *testing.T) {
	req := &api.MessagesRequest{
		Model:  "test-model",
		System: api.SystemText("You are terse."),
		Messages: []api.Message{
			{Role: api.RoleUser, Content: api.Text("hi")},
		},
	}

	body, err := BuildChatBody(req, testConfig())
	if err != nil {
		t.Fatalf("BuildChatBody() error = %v", err)
	}

	msgs := bodyMessages(t, body)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != "You are terse." {
		t.Errorf("first message = %+v, want system prompt", msgs[0])
	}
	if msgs[1].Role != "user" {
		t.Errorf("second message role = %q, want user", msgs[1].Role)
	}
}

func TestBuildChatBodyToolResults(t *testing.T) {
	req := &api.MessagesRequest{
		Model: "test-model",
		Messages: []api.Message{
			{Role: api.RoleUser, Content: api.Blocks(
				api.ContentBlock{
					Type:      api.BlockTypeToolResult,
					ToolUseID: "call_abc",
					Content:   json.RawMessage(`"sunny, 20C"`),
				},
				api.ContentBlock{Type: api.BlockTypeText, Text: "thanks"},
			)},
		},
	}

	body, err := BuildChatBody(req, testConfig())
	if err != nil {
		t.Fatalf("BuildChatBody() error = %v", err)
	}

	msgs := bodyMessages(t, body)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != "tool" || msgs[0].ToolCallID != "call_abc" || msgs[0].Content != "sunny, 20C" {
		t.Errorf("tool message = %+v", msgs[0])
	}
	if msgs[1].Role != "user" || msgs[1].Content != "thanks" {
		t.Errorf("user message = %+v", msgs[1])
	}
}

func TestBuildChatBodyAssistantToolUse(t *testing.T) {
	req := &api.MessagesRequest{
		Model: "test-model",
		Messages: []api.Message{
			{Role: api.RoleAssistant, Content: api.Blocks(
				api.ContentBlock{Type: api.BlockTypeText, Text: "checking"},
				api.ContentBlock{
					Type:  api.BlockTypeToolUse,
					ID:    "call_1",
					Name:  "get_weather",
					Input: map[string]any{"city": "Oslo"},
				},
			)},
		},
	}

	body, err := BuildChatBody(req, testConfig())
	if err != nil {
		t.Fatalf("BuildChatBody() error = %v", err)
	}

	msgs := bodyMessages(t, body)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if len(msgs[0].ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(msgs[0].ToolCalls))
	}
	tc := msgs[0].ToolCalls[0]
	if tc.ID != "call_1" || tc.Function.Name != "get_weather" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.Function.Arguments != `{"city":"Oslo"}` {
		t.Errorf("Arguments = %q", tc.Function.Arguments)
	}
}

func TestBuildChatBodyImageBecomesDataURL(t *testing.T) {
	req := &api.MessagesRequest{
		Model: "test-model",
		Messages: []api.Message{
			{Role: api.RoleUser, Content: api.Blocks(
				api.ContentBlock{Type: api.BlockTypeText, Text: "what is this"},
				api.ContentBlock{Type: api.BlockTypeImage, Source: map[string]any{
					"type":       "base64",
					"media_type": "image/jpeg",
					"data":       "AAAA",
				}},
			)},
		},
	}

	body, err := BuildChatBody(req, testConfig())
	if err != nil {
		t.Fatalf("BuildChatBody() error = %v", err)
	}

	msgs := bodyMessages(t, body)
	parts, ok := msgs[0].Content.([]ChatContentPart)
	if !ok {
		t.Fatalf("content has type %T, want part list", msgs[0].Content)
	}
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(parts))
	}
	if parts[0].Type != "text" || parts[0].Text != "what is this" {
		t.Errorf("text part = %+v", parts[0])
	}
	if parts[1].ImageURL == nil || parts[1].ImageURL.URL != "data:image/jpeg;base64,AAAA" {
		t.Errorf("image part = %+v", parts[1])
	}
}

func TestBuildChatBodyRequestFieldsWinOverDefaults(t *testing.T) {
	cfg := testConfig()
	cfg.Sampler.Temperature = floatPtr(1.0)
	cfg.Sampler.TopP = floatPtr(0.9)
	cfg.Sampler.TopK = 40

	req := &api.MessagesRequest{
		Model:       "test-model",
		Temperature: floatPtr(0.2),
		TopK:        intPtr(TopKUnset),
		Messages: []api.Message{
			{Role: api.RoleUser, Content: api.Text("hi")},
		},
	}

	body, err := BuildChatBody(req, cfg)
	if err != nil {
		t.Fatalf("BuildChatBody() error = %v", err)
	}

	if body["temperature"] != 0.2 {
		t.Errorf("temperature = %v, want request value 0.2", body["temperature"])
	}
	if body["top_p"] != 0.9 {
		t.Errorf("top_p = %v, want sampler default 0.9", body["top_p"])
	}
	// Request-level top_k of -1 means unset, so the sampler default fills in.
	if body["top_k"] != 40 {
		t.Errorf("top_k = %v, want sampler default 40", body["top_k"])
	}
}

func TestBuildChatBodyExtraBodyPrecedence(t *testing.T) {
	req := &api.MessagesRequest{
		Model:       "test-model",
		Temperature: floatPtr(0.5),
		ExtraBody: map[string]any{
			"temperature": 0.9,
			"custom_flag": true,
		},
		Messages: []api.Message{
			{Role: api.RoleUser, Content: api.Text("hi")},
		},
	}

	body, err := BuildChatBody(req, testConfig())
	if err != nil {
		t.Fatalf("BuildChatBody() error = %v", err)
	}

	if body["temperature"] != 0.5 {
		t.Errorf("temperature = %v, want request-level 0.5", body["temperature"])
	}
	if body["custom_flag"] != true {
		t.Errorf("custom_flag = %v, want pass-through", body["custom_flag"])
	}
}

func TestBuildChatBodyThinkingHints(t *testing.T) {
	req := &api.MessagesRequest{
		Model:    "test-model",
		Thinking: &api.ThinkingConfig{Enabled: true},
		Messages: []api.Message{
			{Role: api.RoleUser, Content: api.Text("hi")},
		},
	}

	body, err := BuildChatBody(req, testConfig())
	if err != nil {
		t.Fatalf("BuildChatBody() error = %v", err)
	}

	thinking, ok := body["thinking"].(map[string]any)
	if !ok || thinking["type"] != "enabled" {
		t.Errorf("thinking = %v", body["thinking"])
	}
	kwargs, ok := body["chat_template_kwargs"].(map[string]any)
	if !ok || kwargs["clear_thinking"] != false {
		t.Errorf("chat_template_kwargs = %v", body["chat_template_kwargs"])
	}
}

func TestBuildChatBodyMaxTokensCapped(t *testing.T) {
	cfg := testConfig()
	cfg.Sampler.MaxTokens = 1000

	req := &api.MessagesRequest{
		Model:     "test-model",
		MaxTokens: 5000,
		Messages: []api.Message{
			{Role: api.RoleUser, Content: api.Text("hi")},
		},
	}

	body, err := BuildChatBody(req, cfg)
	if err != nil {
		t.Fatalf("BuildChatBody() error = %v", err)
	}
	if body["max_tokens"] != 1000 {
		t.Errorf("max_tokens = %v, want cap 1000", body["max_tokens"])
	}
}

func TestBuildChatBodyRejectsUnknownRole(t *testing.T) {
	req := &api.MessagesRequest{
		Model: "test-model",
		Messages: []api.Message{
			{Role: "system", Content: api.Text("nope")},
		},
	}

	_, err := BuildChatBody(req, testConfig())
	if err == nil {
		t.Fatal("BuildChatBody() error = nil, want invalid request")
	}
	if Kind(err) != KindInvalidRequest {
		t.Errorf("Kind(err) = %q, want %q", Kind(err), KindInvalidRequest)
	}
}
