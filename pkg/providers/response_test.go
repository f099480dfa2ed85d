package providers

import (
	"testing"

	"lumen-hq/relay/pkg/api"
)

func chatResponse(msg ChatResponseMessage, finish string) *ChatResponse {
	return &ChatResponse{
		ID:    "chatcmpl-123",
		Model: "upstream-model",
		Choices: []ChatChoice{
			{Index: 0, Message: msg, FinishReason: finish},
		},
		Usage: ChatUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}
}

func messagesReq() *api.MessagesRequest {
	return &api.MessagesRequest{Model: "upstream-model", OriginalModel: "claude-sonnet-4"}
}

func TestConvertResponsePlainText(t *testing.T) {
	resp, err := ConvertResponse(chatResponse(ChatResponseMessage{
		Role:    "assistant",
		Content: "hello there",
	}, FinishReasonStop), messagesReq(), false)
	if err != nil {
		t.Fatalf("ConvertResponse() error = %v", err)
	}

	if len(resp.Content) != 1 {
		t.Fatalf("got %d blocks, want 1", len(resp.Content))
	}
	if resp.Content[0].Type != api.BlockTypeText || resp.Content[0].Text != "hello there" {
		t.Errorf("block = %+v", resp.Content[0])
	}
	if resp.StopReason != api.StopReasonEndTurn {
		t.Errorf("StopReason = %q, want end_turn", resp.StopReason)
	}
	if resp.Model != "claude-sonnet-4" {
		t.Errorf("Model = %q, want the caller's label", resp.Model)
	}
	if resp.ID != "chatcmpl-123" {
		t.Errorf("ID = %q, want upstream id", resp.ID)
	}
	if resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 20 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestConvertResponseStructuredReasoning(t *testing.T) {
	resp, err := ConvertResponse(chatResponse(ChatResponseMessage{
		Role:             "assistant",
		Content:          "the answer",
		ReasoningContent: "step by step",
	}, FinishReasonStop), messagesReq(), false)
	if err != nil {
		t.Fatalf("ConvertResponse() error = %v", err)
	}

	if len(resp.Content) != 2 {
		t.Fatalf("got %d blocks, want 2", len(resp.Content))
	}
	if resp.Content[0].Type != api.BlockTypeThinking || resp.Content[0].Thinking != "step by step" {
		t.Errorf("thinking block = %+v", resp.Content[0])
	}
	if resp.Content[1].Type != api.BlockTypeText || resp.Content[1].Text != "the answer" {
		t.Errorf("text block = %+v", resp.Content[1])
	}
}

func TestConvertResponseThinkTags(t *testing.T) {
	resp, err := ConvertResponse(chatResponse(ChatResponseMessage{
		Role:    "assistant",
		Content: "<think>reasoning here</think>the answer",
	}, FinishReasonStop), messagesReq(), false)
	if err != nil {
		t.Fatalf("ConvertResponse() error = %v", err)
	}

	if len(resp.Content) != 2 {
		t.Fatalf("got %d blocks, want 2", len(resp.Content))
	}
	if resp.Content[0].Thinking != "reasoning here" {
		t.Errorf("thinking = %q", resp.Content[0].Thinking)
	}
	if resp.Content[1].Text != "the answer" {
		t.Errorf("text = %q", resp.Content[1].Text)
	}
}

func TestConvertResponseToolCalls(t *testing.T) {
	resp, err := ConvertResponse(chatResponse(ChatResponseMessage{
		Role:    "assistant",
		Content: "checking the weather",
		ToolCalls: []ChatToolCall{
			{
				ID:   "call_1",
				Type: ToolTypeFunction,
				Function: ChatFunctionCall{
					Name:      "get_weather",
					Arguments: `{"city": "Oslo"}`,
				},
			},
		},
	}, FinishReasonToolCalls), messagesReq(), false)
	if err != nil {
		t.Fatalf("ConvertResponse() error = %v", err)
	}

	if len(resp.Content) != 2 {
		t.Fatalf("got %d blocks, want 2", len(resp.Content))
	}
	tool := resp.Content[1]
	if tool.Type != api.BlockTypeToolUse || tool.ID != "call_1" || tool.Name != "get_weather" {
		t.Errorf("tool block = %+v", tool)
	}
	input, ok := tool.Input.(map[string]any)
	if !ok || input["city"] != "Oslo" {
		t.Errorf("Input = %v", tool.Input)
	}
	if resp.StopReason != api.StopReasonToolUse {
		t.Errorf("StopReason = %q, want tool_use", resp.StopReason)
	}
}

func TestConvertResponseMalformedArgumentsKeptRaw(t *testing.T) {
	resp, err := ConvertResponse(chatResponse(ChatResponseMessage{
		Role: "assistant",
		ToolCalls: []ChatToolCall{
			{
				ID:       "call_1",
				Type:     ToolTypeFunction,
				Function: ChatFunctionCall{Name: "search", Arguments: `{"q": broken`},
			},
		},
	}, FinishReasonToolCalls), messagesReq(), false)
	if err != nil {
		t.Fatalf("ConvertResponse() error = %v", err)
	}

	if got := resp.Content[0].Input; got != `{"q": broken` {
		t.Errorf("Input = %v, want the raw argument string", got)
	}
}

func TestConvertResponseEmptyContent(t *testing.T) {
	resp, err := ConvertResponse(chatResponse(ChatResponseMessage{
		Role: "assistant",
	}, FinishReasonStop), messagesReq(), false)
	if err != nil {
		t.Fatalf("ConvertResponse() error = %v", err)
	}

	if len(resp.Content) != 1 {
		t.Fatalf("got %d blocks, want 1", len(resp.Content))
	}
	if resp.Content[0].Type != api.BlockTypeText || resp.Content[0].Text != " " {
		t.Errorf("block = %+v, want single-space text", resp.Content[0])
	}
}

func TestConvertResponseHeuristicRecovery(t *testing.T) {
	resp, err := ConvertResponse(chatResponse(ChatResponseMessage{
		Role:    "assistant",
		Content: "Let me check.\n<tool_call>{\"name\": \"get_weather\", \"arguments\": {\"city\": \"Oslo\"}}</tool_call>",
	}, FinishReasonStop), messagesReq(), true)
	if err != nil {
		t.Fatalf("ConvertResponse() error = %v", err)
	}

	var tool *api.ContentBlock
	for i := range resp.Content {
		if resp.Content[i].Type == api.BlockTypeToolUse {
			tool = &resp.Content[i]
		}
	}
	if tool == nil {
		t.Fatal("no tool_use block recovered")
	}
	if tool.Name != "get_weather" {
		t.Errorf("Name = %q", tool.Name)
	}
	if resp.StopReason != api.StopReasonToolUse {
		t.Errorf("StopReason = %q, want tool_use", resp.StopReason)
	}
}

func TestConvertResponseRecoveryFailureSurfaced(t *testing.T) {
	resp, err := ConvertResponse(chatResponse(ChatResponseMessage{
		Role:    "assistant",
		Content: "<tool_call>{\"name\": \"x\", \"arguments\": {bad}}</tool_call>",
	}, FinishReasonStop), messagesReq(), true)
	if err != nil {
		t.Fatalf("ConvertResponse() error = %v", err)
	}

	found := false
	for _, b := range resp.Content {
		if b.Type == api.BlockTypeText && len(b.Text) > 0 {
			found = true
		}
		if b.Type == api.BlockTypeToolUse {
			t.Errorf("unexpected tool block from malformed frame: %+v", b)
		}
	}
	if !found {
		t.Error("parse failure not surfaced as text")
	}
	if resp.StopReason != api.StopReasonEndTurn {
		t.Errorf("StopReason = %q, want end_turn", resp.StopReason)
	}
}

func TestConvertResponseNoChoices(t *testing.T) {
	_, err := ConvertResponse(&ChatResponse{ID: "x"}, messagesReq(), false)
	if err == nil {
		t.Fatal("ConvertResponse() error = nil, want failure")
	}
}

func TestMapFinishReason(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{FinishReasonStop, api.StopReasonEndTurn},
		{FinishReasonLength, api.StopReasonMaxTokens},
		{FinishReasonToolCalls, api.StopReasonToolUse},
		{FinishReasonContentFilter, api.StopReasonEndTurn},
		{"", api.StopReasonEndTurn},
		{"weird", api.StopReasonEndTurn},
	}
	for _, tt := range tests {
		if got := MapFinishReason(tt.in); got != tt.want {
			t.Errorf("MapFinishReason(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
