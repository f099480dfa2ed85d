package providers

import (
	"fmt"
	"sync"

	"lumen-hq/relay/pkg/api"
)

// EventSink receives Anthropic-framed stream events in order. Implementations
// own the wire framing; the builder only decides which events exist.
type EventSink interface {
	Event(name string, payload any) error
}

// Stream event names.
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventPing              = "ping"
	EventError             = "error"
)

// Delta type names inside content_block_delta events.
const (
	DeltaTypeText      = "text_delta"
	DeltaTypeThinking  = "thinking_delta"
	DeltaTypeInputJSON = "input_json_delta"
)

// StreamBuilder sequences Anthropic stream events over an EventSink. It
// enforces the protocol's ordering rules: message_start exactly once and
// first, at most one content block open at a time, indices dense from zero,
// and every started block closed before message_delta/message_stop.
//
// Methods are safe for concurrent use so a ping ticker can interleave with
// the translation goroutine.
type StreamBuilder struct {
	mu sync.Mutex

	sink  EventSink
	model string
	msgID string

	started   bool
	finished  bool
	nextIndex int

	// open block, if any
	blockOpen bool
	blockType string
	blockIdx  int

	inputTokens  int
	outputTokens int
}

// NewStreamBuilder returns a builder that writes to sink. The message id is
// minted up front so message_start can carry it.
func NewStreamBuilder(sink EventSink, model string) *StreamBuilder {
	return &StreamBuilder{
		sink:  sink,
		model: model,
		msgID: MintMessageID(),
	}
}

// MessageID returns the minted id carried by message_start.
func (b *StreamBuilder) MessageID() string {
	return b.msgID
}

// SetInputTokens records the prompt token count reported in message_start
// and the final message_delta usage.
func (b *StreamBuilder) SetInputTokens(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inputTokens = n
}

// AddOutputTokens accumulates the output token estimate surfaced in the
// final message_delta.
func (b *StreamBuilder) AddOutputTokens(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outputTokens += n
}

// SetOutputTokens overrides the accumulated estimate with an upstream-
// reported count.
func (b *StreamBuilder) SetOutputTokens(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outputTokens = n
}

// StartMessage emits message_start. Idempotent; later calls are no-ops so
// the caller can invoke it defensively before the first delta.
func (b *StreamBuilder) StartMessage() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startLocked()
}

func (b *StreamBuilder) startLocked() error {
	if b.started {
		return nil
	}
	b.started = true
	return b.sink.Event(EventMessageStart, map[string]any{
		"type": EventMessageStart,
		"message": map[string]any{
			"id":            b.msgID,
			"type":          "message",
			"role":          api.RoleAssistant,
			"model":         b.model,
			"content":       []any{},
			"stop_reason":   nil,
			"stop_sequence": nil,
			"usage": map[string]any{
				"input_tokens":  b.inputTokens,
				"output_tokens": 0,
			},
		},
	})
}

// EmitTextDelta routes a text fragment to an open text block, starting one
// if needed. Empty fragments are dropped.
func (b *StreamBuilder) EmitTextDelta(text string) error {
	if text == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureBlockLocked(api.BlockTypeText); err != nil {
		return err
	}
	return b.sink.Event(EventContentBlockDelta, map[string]any{
		"type":  EventContentBlockDelta,
		"index": b.blockIdx,
		"delta": map[string]any{"type": DeltaTypeText, "text": text},
	})
}

// EmitThinkingDelta routes a thinking fragment to an open thinking block.
func (b *StreamBuilder) EmitThinkingDelta(text string) error {
	if text == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureBlockLocked(api.BlockTypeThinking); err != nil {
		return err
	}
	return b.sink.Event(EventContentBlockDelta, map[string]any{
		"type":  EventContentBlockDelta,
		"index": b.blockIdx,
		"delta": map[string]any{"type": DeltaTypeThinking, "thinking": text},
	})
}

// OpenToolBlock closes any open block and starts a tool_use block carrying
// the call's id and name. Argument JSON follows via EmitToolDelta.
func (b *StreamBuilder) OpenToolBlock(id, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.startLocked(); err != nil {
		return err
	}
	if err := b.closeBlockLocked(); err != nil {
		return err
	}
	b.blockOpen = true
	b.blockType = api.BlockTypeToolUse
	b.blockIdx = b.nextIndex
	b.nextIndex++
	return b.sink.Event(EventContentBlockStart, map[string]any{
		"type":  EventContentBlockStart,
		"index": b.blockIdx,
		"content_block": map[string]any{
			"type":  api.BlockTypeToolUse,
			"id":    id,
			"name":  name,
			"input": map[string]any{},
		},
	})
}

// EmitToolDelta streams a fragment of the open tool block's argument JSON.
func (b *StreamBuilder) EmitToolDelta(partialJSON string) error {
	if partialJSON == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.blockOpen || b.blockType != api.BlockTypeToolUse {
		return fmt.Errorf("tool delta with no open tool block")
	}
	return b.sink.Event(EventContentBlockDelta, map[string]any{
		"type":  EventContentBlockDelta,
		"index": b.blockIdx,
		"delta": map[string]any{"type": DeltaTypeInputJSON, "partial_json": partialJSON},
	})
}

// CloseCurrent closes the open content block, if any.
func (b *StreamBuilder) CloseCurrent() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeBlockLocked()
}

// Finalize closes any open block and emits message_delta plus message_stop.
// Further calls are no-ops.
func (b *StreamBuilder) Finalize(stopReason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finished {
		return nil
	}
	if err := b.startLocked(); err != nil {
		return err
	}
	if err := b.closeBlockLocked(); err != nil {
		return err
	}
	b.finished = true
	if err := b.sink.Event(EventMessageDelta, map[string]any{
		"type": EventMessageDelta,
		"delta": map[string]any{
			"stop_reason":   stopReason,
			"stop_sequence": nil,
		},
		"usage": map[string]any{
			"input_tokens":  b.inputTokens,
			"output_tokens": b.outputTokens,
		},
	}); err != nil {
		return err
	}
	return b.sink.Event(EventMessageStop, map[string]any{"type": EventMessageStop})
}

// Ping emits a ping event. Pings before message_start or after the message
// finished are suppressed.
func (b *StreamBuilder) Ping() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started || b.finished {
		return nil
	}
	return b.sink.Event(EventPing, map[string]any{"type": EventPing})
}

// Error emits a terminal error event and marks the stream finished. Used
// when the upstream fails after message_start already went out.
func (b *StreamBuilder) Error(kind, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finished {
		return nil
	}
	b.finished = true
	return b.sink.Event(EventError, api.NewErrorEnvelope(kind, message))
}

// Finished reports whether the stream has been terminated by Finalize or
// Error.
func (b *StreamBuilder) Finished() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finished
}

func (b *StreamBuilder) ensureBlockLocked(blockType string) error {
	if err := b.startLocked(); err != nil {
		return err
	}
	if b.blockOpen && b.blockType == blockType {
		return nil
	}
	if err := b.closeBlockLocked(); err != nil {
		return err
	}
	b.blockOpen = true
	b.blockType = blockType
	b.blockIdx = b.nextIndex
	b.nextIndex++

	block := map[string]any{"type": blockType}
	switch blockType {
	case api.BlockTypeText:
		block["text"] = ""
	case api.BlockTypeThinking:
		block["thinking"] = ""
	}
	return b.sink.Event(EventContentBlockStart, map[string]any{
		"type":          EventContentBlockStart,
		"index":         b.blockIdx,
		"content_block": block,
	})
}

func (b *StreamBuilder) closeBlockLocked() error {
	if !b.blockOpen {
		return nil
	}
	b.blockOpen = false
	return b.sink.Event(EventContentBlockStop, map[string]any{
		"type":  EventContentBlockStop,
		"index": b.blockIdx,
	})
}

// EstimateOutputTokens is the cheap per-delta token estimate used for
// streaming usage when the upstream reports none: characters divided by
// four, minimum one per non-empty fragment.
func EstimateOutputTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
