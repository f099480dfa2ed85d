package providers

import (
	"encoding/json"
	"fmt"

	"lumen-hq/relay/pkg/api"
)

// BuildChatBody converts an Anthropic-shaped messages request into an OpenAI
// chat-completion body for the given provider. The result is a plain map so
// provider-specific extra parameters can ride alongside the standard fields.
//
// Precedence, lowest to highest: provider sampler defaults, extra_body,
// request-level fields. A request-level top_k or top_p always wins over a
// value smuggled in through extra_body.
func BuildChatBody(req *api.MessagesRequest, cfg Config) (map[string]any, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	if !req.System.IsZero() {
		system := ChatMessage{Role: "system", Content: req.System.Text()}
		messages = append([]ChatMessage{system}, messages...)
	}

	body := map[string]any{
		"model":    req.Model,
		"messages": messages,
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = cfg.Sampler.MaxTokens
	}
	if cfg.Sampler.MaxTokens > 0 && maxTokens > cfg.Sampler.MaxTokens {
		maxTokens = cfg.Sampler.MaxTokens
	}
	if maxTokens > 0 {
		body["max_tokens"] = maxTokens
	}

	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if req.TopK != nil && *req.TopK != TopKUnset {
		body["top_k"] = *req.TopK
	}
	if len(req.StopSequences) > 0 {
		body["stop"] = req.StopSequences
	}
	if len(req.Tools) > 0 {
		body["tools"] = convertTools(req.Tools)
	}
	if req.ToolChoice != nil {
		body["tool_choice"] = req.ToolChoice
	}

	// extra_body rides at the top level of the raw wire body; request-level
	// fields set above take precedence over it.
	extra := make(map[string]any, len(req.ExtraBody)+3)
	for k, v := range req.ExtraBody {
		extra[k] = v
	}
	if req.ThinkingEnabled() {
		setDefault(extra, "thinking", map[string]any{"type": "enabled"})
		setDefault(extra, "reasoning_split", true)
		setDefault(extra, "chat_template_kwargs", map[string]any{
			"thinking":        true,
			"reasoning_split": true,
			"clear_thinking":  false,
		})
	}
	for k, v := range extra {
		setDefault(body, k, v)
	}

	applySamplerDefaults(body, cfg.Sampler)

	return body, nil
}

// applySamplerDefaults fills provider defaults for any sampler knob not
// already present in the body. Knobs at their documented ignore value are
// skipped entirely.
func applySamplerDefaults(body map[string]any, s SamplerSettings) {
	if s.Temperature != nil {
		setDefault(body, "temperature", *s.Temperature)
	}
	if s.TopP != nil {
		setDefault(body, "top_p", *s.TopP)
	}
	if s.TopK > 0 {
		setDefault(body, "top_k", s.TopK)
	}
	if s.PresencePenalty != nil {
		setDefault(body, "presence_penalty", *s.PresencePenalty)
	}
	if s.FrequencyPenalty != nil {
		setDefault(body, "frequency_penalty", *s.FrequencyPenalty)
	}
	if s.MinP != nil {
		setDefault(body, "min_p", *s.MinP)
	}
	if s.RepetitionPenalty != nil {
		setDefault(body, "repetition_penalty", *s.RepetitionPenalty)
	}
	if s.Seed != nil {
		setDefault(body, "seed", *s.Seed)
	}
	if s.Stop != "" {
		setDefault(body, "stop", s.Stop)
	}
	if s.ParallelToolCalls != nil {
		setDefault(body, "parallel_tool_calls", *s.ParallelToolCalls)
	}
	if s.ReasoningEffort != "" {
		setDefault(body, "reasoning_effort", s.ReasoningEffort)
	}
	if s.IncludeReasoning != nil {
		setDefault(body, "include_reasoning", *s.IncludeReasoning)
	}
}

func setDefault(m map[string]any, key string, val any) {
	if _, ok := m[key]; !ok {
		m[key] = val
	}
}

// convertMessages walks the Anthropic messages in order and emits one or
// more OpenAI messages per input. Tool results become separate role:"tool"
// messages; thinking blocks are dropped (upstreams do not accept them).
func convertMessages(messages []api.Message) ([]ChatMessage, error) {
	out := make([]ChatMessage, 0, len(messages))

	for i, msg := range messages {
		switch msg.Role {
		case api.RoleUser:
			converted, err := convertUserMessage(msg)
			if err != nil {
				return nil, &InvalidRequestError{
					Field:   fmt.Sprintf("messages[%d]", i),
					Message: err.Error(),
				}
			}
			out = append(out, converted...)

		case api.RoleAssistant:
			out = append(out, convertAssistantMessage(msg))

		default:
			return nil, &InvalidRequestError{
				Field:   fmt.Sprintf("messages[%d].role", i),
				Message: fmt.Sprintf("unsupported role %q", msg.Role),
			}
		}
	}

	return out, nil
}

// convertUserMessage expands one user message. Tool results are flushed as
// standalone tool messages ahead of the remaining user content so they
// directly follow the assistant turn that issued the calls.
func convertUserMessage(msg api.Message) ([]ChatMessage, error) {
	if msg.Content.IsString() {
		return []ChatMessage{{Role: "user", Content: msg.Content.String()}}, nil
	}

	var out []ChatMessage
	var text string
	var parts []ChatContentPart

	for _, block := range msg.Content.Blocks() {
		switch block.Type {
		case api.BlockTypeText:
			text += block.Text
		case api.BlockTypeImage:
			url, err := imageURL(block.Source)
			if err != nil {
				return nil, err
			}
			parts = append(parts, ChatContentPart{
				Type:     "image_url",
				ImageURL: &ChatImageURL{URL: url},
			})
		case api.BlockTypeToolResult:
			out = append(out, ChatMessage{
				Role:       "tool",
				ToolCallID: block.ToolUseID,
				Content:    block.ResultText(),
			})
		case api.BlockTypeThinking:
			// Dropped.
		default:
			return nil, fmt.Errorf("unsupported content block type %q", block.Type)
		}
	}

	switch {
	case len(parts) > 0:
		// Image content forces the array form; text rides as a text part.
		if text != "" {
			parts = append([]ChatContentPart{{Type: "text", Text: text}}, parts...)
		}
		out = append(out, ChatMessage{Role: "user", Content: parts})
	case text != "" || len(out) == 0:
		out = append(out, ChatMessage{Role: "user", Content: text})
	}

	return out, nil
}

// convertAssistantMessage folds an assistant message into a single OpenAI
// message: text blocks concatenate, tool_use blocks become tool_calls.
func convertAssistantMessage(msg api.Message) ChatMessage {
	if msg.Content.IsString() {
		return ChatMessage{Role: "assistant", Content: msg.Content.String()}
	}

	var text string
	var calls []ChatToolCall

	for _, block := range msg.Content.Blocks() {
		switch block.Type {
		case api.BlockTypeText:
			text += block.Text
		case api.BlockTypeToolUse:
			calls = append(calls, ChatToolCall{
				ID:   block.ID,
				Type: ToolTypeFunction,
				Function: ChatFunctionCall{
					Name:      block.Name,
					Arguments: marshalArguments(block.Input),
				},
			})
		}
	}

	return ChatMessage{Role: "assistant", Content: text, ToolCalls: calls}
}

func convertTools(tools []api.Tool) []ChatTool {
	out := make([]ChatTool, len(tools))
	for i, t := range tools {
		out[i] = ChatTool{
			Type: ToolTypeFunction,
			Function: ChatFunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		}
	}
	return out
}

// imageURL renders an Anthropic image source as an OpenAI image_url value:
// pass-through for URL sources, data URI for base64 sources.
func imageURL(source map[string]any) (string, error) {
	if source == nil {
		return "", fmt.Errorf("image block missing source")
	}
	if typ, _ := source["type"].(string); typ == "url" {
		url, _ := source["url"].(string)
		if url == "" {
			return "", fmt.Errorf("image url source missing url")
		}
		return url, nil
	}
	data, _ := source["data"].(string)
	if data == "" {
		return "", fmt.Errorf("image base64 source missing data")
	}
	mediaType, _ := source["media_type"].(string)
	if mediaType == "" {
		mediaType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mediaType, data), nil
}

func marshalArguments(input any) string {
	if input == nil {
		return "{}"
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
