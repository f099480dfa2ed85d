package providers

import (
	"encoding/json"
	"fmt"

	"lumen-hq/relay/pkg/api"
)

// ConvertResponse translates a non-streaming OpenAI chat-completion response
// into an Anthropic-shaped messages response.
//
// Structured reasoning (reasoning_content / reasoning_details) takes
// precedence; otherwise the content string is split once on <think> tags.
// When recoverTools is set, the remaining text is additionally scanned for
// inline tool calls.
func ConvertResponse(resp *ChatResponse, req *api.MessagesRequest, recoverTools bool) (*api.MessagesResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("upstream response has no choices")
	}
	choice := resp.Choices[0]

	var content []api.ContentBlock
	text := choice.Message.Content

	if reasoning := choice.Message.ReasoningText(); reasoning != "" {
		content = append(content, api.ContentBlock{
			Type:     api.BlockTypeThinking,
			Thinking: reasoning,
		})
	} else if text != "" {
		thinking, rest := SplitThinkTags(text)
		if thinking != "" {
			content = append(content, api.ContentBlock{
				Type:     api.BlockTypeThinking,
				Thinking: thinking,
			})
		}
		text = rest
	}

	var parseFailures []string
	recovered := false
	if recoverTools && len(choice.Message.ToolCalls) == 0 && text != "" {
		scan := ScanInlineToolCalls(text)
		text = scan.Text
		parseFailures = scan.ParseFailures
		for _, call := range scan.Calls {
			recovered = true
			content = appendToolUse(content, call.ID, call.Name, call.Input)
		}
	}

	if text != "" {
		content = insertTextBlock(content, text)
	}

	for _, tc := range choice.Message.ToolCalls {
		id := tc.ID
		if id == "" {
			id = MintToolCallID()
		}
		content = appendToolUse(content, id, tc.Function.Name, decodeToolInput(tc.Function.Arguments))
	}

	stopReason := MapFinishReason(choice.FinishReason)
	if recovered && len(parseFailures) == 0 && stopReason == api.StopReasonEndTurn {
		stopReason = api.StopReasonToolUse
	}
	for _, failure := range parseFailures {
		content = append(content, api.ContentBlock{
			Type: api.BlockTypeText,
			Text: "\n[tool call recovery failed: " + failure + "]",
		})
		stopReason = api.StopReasonEndTurn
	}

	// Some upstreams reject empty assistant messages on follow-up turns.
	if len(content) == 0 {
		content = append(content, api.ContentBlock{Type: api.BlockTypeText, Text: " "})
	}

	id := resp.ID
	if id == "" {
		id = MintMessageID()
	}

	return &api.MessagesResponse{
		ID:         id,
		Type:       "message",
		Role:       api.RoleAssistant,
		Model:      responseModel(req),
		Content:    content,
		StopReason: stopReason,
		Usage: api.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// MapFinishReason maps an OpenAI finish reason onto an Anthropic stop
// reason. Unknown reasons degrade to end_turn.
func MapFinishReason(reason string) string {
	switch reason {
	case FinishReasonStop:
		return api.StopReasonEndTurn
	case FinishReasonLength:
		return api.StopReasonMaxTokens
	case FinishReasonToolCalls, "function_call":
		return api.StopReasonToolUse
	case FinishReasonContentFilter:
		return api.StopReasonEndTurn
	default:
		return api.StopReasonEndTurn
	}
}

// decodeToolInput parses a tool call's argument string, degrading to the
// raw string when the upstream emitted unparseable JSON.
func decodeToolInput(arguments string) any {
	if arguments == "" {
		return map[string]any{}
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(arguments), &input); err != nil {
		return arguments
	}
	return input
}

// insertTextBlock places the text block after a leading thinking block but
// ahead of any tool_use blocks.
func insertTextBlock(content []api.ContentBlock, text string) []api.ContentBlock {
	block := api.ContentBlock{Type: api.BlockTypeText, Text: text}
	for i, b := range content {
		if b.Type == api.BlockTypeToolUse {
			out := append(content[:i:i], block)
			return append(out, content[i:]...)
		}
	}
	return append(content, block)
}

func appendToolUse(content []api.ContentBlock, id, name string, input any) []api.ContentBlock {
	return append(content, api.ContentBlock{
		Type:  api.BlockTypeToolUse,
		ID:    id,
		Name:  name,
		Input: input,
	})
}

// responseModel echoes the label the caller sent when one was preserved.
func responseModel(req *api.MessagesRequest) string {
	if req.OriginalModel != "" {
		return req.OriginalModel
	}
	return req.Model
}
