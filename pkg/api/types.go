package api

import (
	"encoding/json"
	"fmt"
)

// Content block type constants.
const (
	BlockTypeText       = "text"
	BlockTypeImage      = "image"
	BlockTypeToolUse    = "tool_use"
	BlockTypeToolResult = "tool_result"
	BlockTypeThinking   = "thinking"
)

// Stop reason constants for the messages response.
const (
	StopReasonEndTurn      = "end_turn"
	StopReasonMaxTokens    = "max_tokens"
	StopReasonStopSequence = "stop_sequence"
	StopReasonToolUse      = "tool_use"
)

// Message role constants.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessagesRequest is the ingress request for POST /v1/messages.
//
// After model normalization, Model holds the provider-facing identifier and
// OriginalModel preserves the label the caller sent.
type MessagesRequest struct {
	Model         string          `json:"model"`
	MaxTokens     int             `json:"max_tokens,omitempty"`
	Messages      []Message       `json:"messages"`
	System        SystemPrompt    `json:"system,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Stream        *bool           `json:"stream,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	TopK          *int            `json:"top_k,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	Tools         []Tool          `json:"tools,omitempty"`
	ToolChoice    map[string]any  `json:"tool_choice,omitempty"`
	Thinking      *ThinkingConfig `json:"thinking,omitempty"`
	ExtraBody     map[string]any  `json:"extra_body,omitempty"`
	OriginalModel string          `json:"original_model,omitempty"`
}

// IsStreaming reports whether the caller requested a streaming response.
// Absent means streaming (the default observed from Claude-family clients).
func (r *MessagesRequest) IsStreaming() bool {
	return r.Stream == nil || *r.Stream
}

// ThinkingEnabled reports whether extended thinking was requested.
func (r *MessagesRequest) ThinkingEnabled() bool {
	return r.Thinking != nil && r.Thinking.Enabled
}

// TokenCountRequest is the ingress request for POST /v1/messages/count_tokens.
type TokenCountRequest struct {
	Model      string          `json:"model"`
	Messages   []Message       `json:"messages"`
	System     SystemPrompt    `json:"system,omitempty"`
	Tools      []Tool          `json:"tools,omitempty"`
	Thinking   *ThinkingConfig `json:"thinking,omitempty"`
	ToolChoice map[string]any  `json:"tool_choice,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
}

// TokenCountResponse is the response for POST /v1/messages/count_tokens.
type TokenCountResponse struct {
	InputTokens int `json:"input_tokens"`
}

// Message is a single conversation turn.
type Message struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// MessageContent holds either a plain string or an ordered list of content
// blocks, matching the two shapes clients send on the wire.
type MessageContent struct {
	str      string
	blocks   []ContentBlock
	isString bool
}

// Text builds a MessageContent holding a plain string.
func Text(s string) MessageContent {
	return MessageContent{str: s, isString: true}
}

// Blocks builds a MessageContent holding content blocks.
func Blocks(blocks ...ContentBlock) MessageContent {
	return MessageContent{blocks: blocks}
}

// IsString reports whether the content arrived as a plain string.
func (c MessageContent) IsString() bool { return c.isString }

// String returns the plain-string form, or "" for block content.
func (c MessageContent) String() string { return c.str }

// Blocks returns the block form, or nil for string content.
func (c MessageContent) Blocks() []ContentBlock { return c.blocks }

// UnmarshalJSON accepts both a JSON string and an array of blocks.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = MessageContent{str: s, isString: true}
		return nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("message content must be a string or a block list: %w", err)
	}
	*c = MessageContent{blocks: blocks}
	return nil
}

// MarshalJSON writes back the same shape that was received.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.isString {
		return json.Marshal(c.str)
	}
	if c.blocks == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.blocks)
}

// ContentBlock is a single role-tagged content block. Type selects which of
// the remaining fields are meaningful.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// image
	Source map[string]any `json:"source,omitempty"`

	// tool_use; Input is usually a mapping but degrades to the raw argument
	// string when the upstream emitted unparseable JSON
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`

	// tool_result; content may be a string, a mapping, or a list
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// MarshalJSON emits only the fields belonging to the block's type. A
// tool_use block always carries "input" (empty object when no arguments)
// and a text block always carries "text"; clients reject blocks missing
// their payload field even when it is empty.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	switch b.Type {
	case BlockTypeText:
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{b.Type, b.Text})
	case BlockTypeThinking:
		out := map[string]any{"type": b.Type, "thinking": b.Thinking}
		if b.Signature != "" {
			out["signature"] = b.Signature
		}
		return json.Marshal(out)
	case BlockTypeToolUse:
		input := b.Input
		if input == nil {
			input = map[string]any{}
		}
		return json.Marshal(struct {
			Type  string `json:"type"`
			ID    string `json:"id"`
			Name  string `json:"name"`
			Input any    `json:"input"`
		}{b.Type, b.ID, b.Name, input})
	case BlockTypeToolResult:
		return json.Marshal(struct {
			Type      string          `json:"type"`
			ToolUseID string          `json:"tool_use_id"`
			Content   json.RawMessage `json:"content,omitempty"`
		}{b.Type, b.ToolUseID, b.Content})
	case BlockTypeImage:
		return json.Marshal(struct {
			Type   string         `json:"type"`
			Source map[string]any `json:"source"`
		}{b.Type, b.Source})
	default:
		type alias ContentBlock
		return json.Marshal(alias(b))
	}
}

// ResultText renders a tool_result block's content as a plain string:
// string content verbatim, anything else re-encoded as JSON.
func (b ContentBlock) ResultText() string {
	if len(b.Content) == 0 {
		return ""
	}
	if b.Content[0] == '"' {
		var s string
		if err := json.Unmarshal(b.Content, &s); err == nil {
			return s
		}
	}
	return string(b.Content)
}

// SystemPrompt is the system field of a messages request: either a plain
// string or an ordered list of text blocks.
type SystemPrompt struct {
	str    string
	blocks []SystemBlock
	set    bool
}

// SystemBlock is a single text block inside a list-form system prompt.
type SystemBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SystemText builds a string-form SystemPrompt.
func SystemText(s string) SystemPrompt {
	return SystemPrompt{str: s, set: s != ""}
}

// IsZero reports whether the request carried no system prompt.
func (s SystemPrompt) IsZero() bool { return !s.set }

// Text joins the prompt into one string; list-form blocks are joined with
// blank lines.
func (s SystemPrompt) Text() string {
	if s.blocks == nil {
		return s.str
	}
	out := ""
	for i, b := range s.blocks {
		if i > 0 {
			out += "\n\n"
		}
		out += b.Text
	}
	return out
}

// UnmarshalJSON accepts both a JSON string and a list of text blocks.
func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = SystemPrompt{str: str, set: true}
		return nil
	}
	var blocks []SystemBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("system must be a string or a list of text blocks: %w", err)
	}
	*s = SystemPrompt{blocks: blocks, set: true}
	return nil
}

// MarshalJSON writes back the received shape.
func (s SystemPrompt) MarshalJSON() ([]byte, error) {
	if s.blocks != nil {
		return json.Marshal(s.blocks)
	}
	return json.Marshal(s.str)
}

// ThinkingConfig is the thinking field of a messages request. Clients send
// either {"enabled": bool} or {"type": "enabled"|"disabled"}.
type ThinkingConfig struct {
	Enabled bool
}

// UnmarshalJSON accepts both observed wire forms.
func (t *ThinkingConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Enabled *bool  `json:"enabled"`
		Type    string `json:"type"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Enabled != nil:
		t.Enabled = *raw.Enabled
	case raw.Type != "":
		t.Enabled = raw.Type == "enabled"
	default:
		t.Enabled = true
	}
	return nil
}

// MarshalJSON writes the canonical {"type": …} form.
func (t ThinkingConfig) MarshalJSON() ([]byte, error) {
	typ := "disabled"
	if t.Enabled {
		typ = "enabled"
	}
	return json.Marshal(map[string]string{"type": typ})
}

// Tool is a tool definition offered to the model.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// Usage reports token consumption for a response. Counts are estimates;
// cache fields are zero unless the upstream reports them.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// MessagesResponse is the non-streaming response for POST /v1/messages.
type MessagesResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   string         `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

// ErrorDetail is the inner error object of an error envelope.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorEnvelope is the JSON error body for failed requests and the payload
// of streaming "error" events.
type ErrorEnvelope struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

// NewErrorEnvelope builds an error envelope of the given kind.
func NewErrorEnvelope(kind, message string) ErrorEnvelope {
	return ErrorEnvelope{Type: "error", Error: ErrorDetail{Type: kind, Message: message}}
}
