package providers

// OpenAI chat-completion wire types. Upstreams for every configured provider
// (NVIDIA NIM, OpenRouter, LM Studio, Vertex AI) speak this shape; reasoning
// extensions (reasoning_content, reasoning_details) are vendor additions
// observed on NIM and OpenRouter.

// ChatMessage is a message in OpenAI chat-completion format. Content is
// usually a string; user messages carrying images use the array form.
type ChatMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []ChatToolCall `json:"tool_calls,omitempty"`
}

// ChatContentPart is one entry of an array-form content field.
type ChatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *ChatImageURL `json:"image_url,omitempty"`
}

// ChatImageURL carries an image by URL or data URI.
type ChatImageURL struct {
	URL string `json:"url"`
}

// ChatToolCall is a tool call in OpenAI format. Index is only meaningful in
// stream deltas, where argument fragments are correlated by it.
type ChatToolCall struct {
	Index    *int             `json:"index,omitempty"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function ChatFunctionCall `json:"function"`
}

// ChatFunctionCall names the function and carries its arguments as a JSON
// string (possibly a fragment, in stream deltas).
type ChatFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ChatTool is a tool definition in OpenAI format.
type ChatTool struct {
	Type     string                 `json:"type"`
	Function ChatFunctionDefinition `json:"function"`
}

// ChatFunctionDefinition defines a callable function.
type ChatFunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ChatResponse is a non-streaming chat-completion response.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

// ChatChoice is a completion choice.
type ChatChoice struct {
	Index        int                 `json:"index"`
	Message      ChatResponseMessage `json:"message"`
	FinishReason string              `json:"finish_reason"`
}

// ChatResponseMessage is the assistant message of a choice, including the
// structured reasoning fields some upstreams attach.
type ChatResponseMessage struct {
	Role             string            `json:"role"`
	Content          string            `json:"content"`
	ToolCalls        []ChatToolCall    `json:"tool_calls,omitempty"`
	ReasoningContent string            `json:"reasoning_content,omitempty"`
	ReasoningDetails []ReasoningDetail `json:"reasoning_details,omitempty"`
}

// ReasoningDetail is one entry of the reasoning_details extension.
type ReasoningDetail struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text,omitempty"`
}

// ChatUsage is token usage in OpenAI format.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatStreamChunk is one SSE data payload of a streaming response.
type ChatStreamChunk struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []ChatStreamChoice `json:"choices"`
	Usage   *ChatUsage         `json:"usage,omitempty"`
}

// ChatStreamChoice is a choice inside a stream chunk.
type ChatStreamChoice struct {
	Index        int             `json:"index"`
	Delta        ChatStreamDelta `json:"delta"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

// ChatStreamDelta is the incremental content of a stream chunk.
type ChatStreamDelta struct {
	Role             string            `json:"role,omitempty"`
	Content          string            `json:"content,omitempty"`
	ToolCalls        []ChatToolCall    `json:"tool_calls,omitempty"`
	ReasoningContent string            `json:"reasoning_content,omitempty"`
	ReasoningDetails []ReasoningDetail `json:"reasoning_details,omitempty"`
}

// ReasoningText joins the structured reasoning carried by a response
// message, preferring reasoning_content over reasoning_details.
func (m ChatResponseMessage) ReasoningText() string {
	if m.ReasoningContent != "" {
		return m.ReasoningContent
	}
	return joinReasoningDetails(m.ReasoningDetails)
}

// ReasoningText joins the structured reasoning carried by a stream delta.
func (d ChatStreamDelta) ReasoningText() string {
	if d.ReasoningContent != "" {
		return d.ReasoningContent
	}
	return joinReasoningDetails(d.ReasoningDetails)
}

func joinReasoningDetails(details []ReasoningDetail) string {
	out := ""
	for _, d := range details {
		out += d.Text
	}
	return out
}

// OpenAI finish reason constants.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonToolCalls     = "tool_calls"
	FinishReasonContentFilter = "content_filter"
)

// ToolTypeFunction is the only tool call type in use.
const ToolTypeFunction = "function"
