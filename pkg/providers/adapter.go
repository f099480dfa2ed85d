package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lumen-hq/relay/pkg/api"
	"lumen-hq/relay/pkg/ratelimit"
	"lumen-hq/relay/pkg/telemetry"
)

// subagentToolName is the tool whose background flag is rewritten before
// results reach the client. Background subagents detach from the request
// lifecycle and leak past conversation cleanup, so they run foregrounded.
const subagentToolName = "Task"

// pingInterval paces keepalive events on client-facing streams.
const pingInterval = 15 * time.Second

// Adapter turns one configured upstream into an Anthropic-speaking
// provider: it builds OpenAI chat bodies, sends them over a pooled HTTP
// client, and translates both sync and streaming responses back.
type Adapter struct {
	cfg     Config
	client  *http.Client
	limiter *ratelimit.Coordinator
	metrics *telemetry.Collector
	logger  *slog.Logger
}

// NewAdapter builds an adapter for cfg. limiter, metrics and logger may be
// nil; nil limiter means no pacing, nil metrics records nothing.
func NewAdapter(cfg Config, limiter *ratelimit.Coordinator, metrics *telemetry.Collector, logger *slog.Logger) *Adapter {
	cfg.ApplyDefaults()

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Adapter{
		cfg: cfg,
		// No client-level Timeout: it would cut off long streams. The read
		// deadline rides on the request context instead.
		client:  &http.Client{Transport: transport},
		limiter: limiter,
		metrics: metrics,
		logger:  logger.With("provider", cfg.Name),
	}
}

// Name returns the configured provider name.
func (a *Adapter) Name() string {
	return a.cfg.Name
}

// Config returns the adapter's effective configuration.
func (a *Adapter) Config() Config {
	return a.cfg
}

// Complete performs a non-streaming request and returns the translated
// response.
func (a *Adapter) Complete(ctx context.Context, req *api.MessagesRequest) (*api.MessagesResponse, error) {
	start := time.Now()

	body, err := BuildChatBody(req, a.cfg)
	if err != nil {
		return nil, err
	}
	body["stream"] = false

	if a.cfg.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.ReadTimeout)
		defer cancel()
	}

	resp, err := a.send(ctx, body, false)
	if err != nil {
		a.record(req, telemetry.StatusError, "sync", start)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024*1024))
	if err != nil {
		a.record(req, telemetry.StatusError, "sync", start)
		return nil, a.wrapNetworkErr(ctx, "reading upstream response", err)
	}

	var chat ChatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		a.record(req, telemetry.StatusError, "sync", start)
		return nil, &APIError{
			Provider:   a.cfg.Name,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("decoding upstream response: %v", err),
		}
	}

	out, err := ConvertResponse(&chat, req, a.cfg.RecoverInlineToolCalls)
	if err != nil {
		a.record(req, telemetry.StatusError, "sync", start)
		return nil, &APIError{Provider: a.cfg.Name, StatusCode: 502, Message: err.Error()}
	}
	for i := range out.Content {
		interceptBlock(&out.Content[i])
	}

	a.record(req, telemetry.StatusSuccess, "sync", start)
	if a.metrics != nil {
		a.metrics.RecordTokens(a.cfg.Name, req.Model, out.Usage.InputTokens, out.Usage.OutputTokens)
	}
	return out, nil
}

// Stream performs a streaming request and drives the full Anthropic event
// sequence into sink. When the upstream fails after message_start already
// went out, an error event is emitted on the stream and the error is also
// returned so the caller can log it. Cancellation ends the stream cleanly
// with no error event.
func (a *Adapter) Stream(ctx context.Context, req *api.MessagesRequest, sink EventSink) error {
	start := time.Now()

	body, err := BuildChatBody(req, a.cfg)
	if err != nil {
		return err
	}
	body["stream"] = true
	body["stream_options"] = map[string]any{"include_usage": true}

	resp, err := a.send(ctx, body, true)
	if err != nil {
		a.record(req, streamStatus(err), "stream", start)
		return err
	}
	defer resp.Body.Close()

	builder := NewStreamBuilder(sink, responseModel(req))

	pingCtx, stopPings := context.WithCancel(ctx)
	defer stopPings()
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				if builder.Ping() != nil {
					return
				}
			}
		}
	}()

	err = a.pipeStream(ctx, req, resp.Body, builder)
	stopPings()

	switch {
	case err == nil:
		a.record(req, telemetry.StatusSuccess, "stream", start)
		return nil
	case IsCancelled(err):
		// Client went away; nothing to tell it.
		a.record(req, telemetry.StatusCancelled, "stream", start)
		return err
	default:
		a.record(req, telemetry.StatusError, "stream", start)
		builder.Error(Kind(err), err.Error())
		return err
	}
}

// pipeStream translates the upstream SSE body into Anthropic events.
func (a *Adapter) pipeStream(ctx context.Context, req *api.MessagesRequest, upstream io.Reader, builder *StreamBuilder) error {
	parser := NewThinkTagParser()
	tools := newToolCallStreamer()
	finishReason := ""

	// With inline recovery on, text is withheld until the stream ends so a
	// tool call spread across many deltas can be matched whole.
	var recoveryBuf strings.Builder
	recover := a.cfg.RecoverInlineToolCalls

	emitChunks := func(chunks []ThinkChunk) error {
		for _, c := range chunks {
			if c.Text == "" {
				continue
			}
			if c.Kind == ChunkThink {
				tools.sealLive()
				builder.AddOutputTokens(EstimateOutputTokens(c.Text))
				if err := builder.EmitThinkingDelta(c.Text); err != nil {
					return err
				}
				continue
			}
			if recover {
				recoveryBuf.WriteString(c.Text)
				continue
			}
			tools.sealLive()
			builder.AddOutputTokens(EstimateOutputTokens(c.Text))
			if err := builder.EmitTextDelta(c.Text); err != nil {
				return err
			}
		}
		return nil
	}

	err := ReadChatStream(ctx, upstream, func(chunk *ChatStreamChunk) error {
		if chunk.Usage != nil {
			builder.SetInputTokens(chunk.Usage.PromptTokens)
			if chunk.Usage.CompletionTokens > 0 {
				builder.SetOutputTokens(chunk.Usage.CompletionTokens)
			}
		}
		if len(chunk.Choices) == 0 {
			return nil
		}
		choice := chunk.Choices[0]

		if err := builder.StartMessage(); err != nil {
			return err
		}

		if reasoning := choice.Delta.ReasoningText(); reasoning != "" {
			tools.sealLive()
			builder.AddOutputTokens(EstimateOutputTokens(reasoning))
			if err := builder.EmitThinkingDelta(reasoning); err != nil {
				return err
			}
		}
		if choice.Delta.Content != "" {
			if err := emitChunks(parser.Feed(choice.Delta.Content)); err != nil {
				return err
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			if err := tools.add(builder, tc); err != nil {
				return err
			}
		}
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := emitChunks(parser.Finalize()); err != nil {
		return err
	}

	stopReason := MapFinishReason(finishReason)

	if recover {
		text := recoveryBuf.String()
		if tools.empty() && text != "" {
			scan := ScanInlineToolCalls(text)
			text = scan.Text
			if err := builder.EmitTextDelta(text); err != nil {
				return err
			}
			builder.AddOutputTokens(EstimateOutputTokens(text))
			for _, call := range scan.Calls {
				interceptToolInput(call.Name, call.Input)
				if err := emitToolBlock(builder, call.ID, call.Name, jsonObject(call.Input)); err != nil {
					return err
				}
				if stopReason == api.StopReasonEndTurn {
					stopReason = api.StopReasonToolUse
				}
			}
			for _, failure := range scan.ParseFailures {
				note := "\n[tool call recovery failed: " + failure + "]"
				if err := builder.EmitTextDelta(note); err != nil {
					return err
				}
				stopReason = api.StopReasonEndTurn
			}
		} else if text != "" {
			builder.AddOutputTokens(EstimateOutputTokens(text))
			if err := builder.EmitTextDelta(text); err != nil {
				return err
			}
		}
	}

	if err := tools.flush(builder); err != nil {
		return err
	}
	if !tools.empty() && stopReason == api.StopReasonEndTurn {
		stopReason = api.StopReasonToolUse
	}

	return builder.Finalize(stopReason)
}

// emitToolBlock opens a tool_use block, streams its full argument JSON as a
// single delta, and closes it.
func emitToolBlock(builder *StreamBuilder, id, name, args string) error {
	if id == "" {
		id = MintToolCallID()
	}
	if err := builder.OpenToolBlock(id, name); err != nil {
		return err
	}
	if args != "" && args != "{}" {
		if err := builder.EmitToolDelta(args); err != nil {
			return err
		}
	}
	return builder.CloseCurrent()
}

// send acquires a rate-limit slot and performs the HTTP exchange, returning
// a response whose status has already been vetted.
func (a *Adapter) send(ctx context.Context, body map[string]any, streaming bool) (*http.Response, error) {
	if a.limiter != nil {
		waitStart := time.Now()
		if err := a.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		if a.metrics != nil {
			a.metrics.RecordRateLimitPause(time.Since(waitStart))
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &InvalidRequestError{Provider: a.cfg.Name, Message: fmt.Sprintf("encoding request: %v", err)}
	}

	endpoint, err := a.endpoint()
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &InvalidRequestError{Provider: a.cfg.Name, Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if streaming {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if a.cfg.AuthStyle == AuthBearer && a.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, a.wrapNetworkErr(ctx, "sending upstream request", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
		err := a.classifyStatus(resp, raw)
		a.noteRateLimit(err)
		a.logger.Warn("upstream request failed",
			"status", resp.StatusCode,
			"kind", Kind(err),
		)
		return nil, err
	}

	return resp, nil
}

// endpoint builds the chat-completions URL, attaching the API key as a
// query parameter for providers authenticating that way.
func (a *Adapter) endpoint() (string, error) {
	base := strings.TrimSuffix(a.cfg.BaseURL, "/")
	endpoint := base + "/chat/completions"
	if a.cfg.AuthStyle != AuthQueryKey {
		return endpoint, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", &InvalidRequestError{Provider: a.cfg.Name, Field: "base_url", Message: err.Error()}
	}
	q := u.Query()
	q.Set("key", a.cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// classifyStatus maps an upstream error status onto the error taxonomy.
func (a *Adapter) classifyStatus(resp *http.Response, body []byte) error {
	msg := upstreamMessage(body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthenticationError{Provider: a.cfg.Name, Message: msg}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Provider:   a.cfg.Name,
			RetryAfter: retryAfter(resp),
			Message:    msg,
		}
	case resp.StatusCode == 529 || (resp.StatusCode >= 500 && looksOverloaded(msg)):
		return &OverloadedError{Provider: a.cfg.Name, Message: msg}
	case resp.StatusCode >= 500:
		return &APIError{Provider: a.cfg.Name, StatusCode: resp.StatusCode, Message: msg}
	default:
		return &InvalidRequestError{Provider: a.cfg.Name, Message: msg}
	}
}

// noteRateLimit blocks all traffic when err is a rate-limit rejection.
func (a *Adapter) noteRateLimit(err error) {
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		return
	}
	d := rl.RetryAfter
	if d <= 0 {
		d = ratelimit.DefaultBlockDuration
	}
	if a.limiter != nil {
		a.limiter.SetBlocked(d)
	}
	if a.metrics != nil {
		a.metrics.RecordRateLimitBlock()
	}
	a.logger.Warn("upstream rate limited, pausing all traffic", "pause", d)
}

func (a *Adapter) wrapNetworkErr(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &NetworkError{Provider: a.cfg.Name, Message: op, Cause: err}
}

func (a *Adapter) record(req *api.MessagesRequest, status, mode string, start time.Time) {
	if a.metrics == nil {
		return
	}
	a.metrics.RecordRequest(a.cfg.Name, req.Model, status, mode, time.Since(start))
}

func streamStatus(err error) string {
	if IsCancelled(err) {
		return telemetry.StatusCancelled
	}
	return telemetry.StatusError
}

// upstreamMessage digs the human-readable message out of an error body,
// falling back to the raw body.
func upstreamMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		switch {
		case envelope.Error.Message != "":
			return envelope.Error.Message
		case envelope.Message != "":
			return envelope.Message
		case envelope.Detail != "":
			return envelope.Detail
		}
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "upstream request failed"
	}
	if len(trimmed) > 512 {
		trimmed = trimmed[:512]
	}
	return trimmed
}

func looksOverloaded(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "overloaded") || strings.Contains(lower, "capacity")
}

// retryAfter parses the Retry-After header as delay seconds.
func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// interceptBlock rewrites a tool_use block for the subagent tool so the
// task runs in the foreground.
func interceptBlock(b *api.ContentBlock) {
	if b.Type != api.BlockTypeToolUse || b.Name != subagentToolName {
		return
	}
	if input, ok := b.Input.(map[string]any); ok {
		interceptToolInput(b.Name, input)
	}
}

func interceptToolInput(name string, input map[string]any) {
	if name != subagentToolName || input == nil {
		return
	}
	if bg, ok := input["run_in_background"].(bool); ok && bg {
		input["run_in_background"] = false
	}
}

// interceptArguments applies the subagent rewrite to a raw argument JSON
// string, passing unparseable input through untouched.
func interceptArguments(name, args string) string {
	if name != subagentToolName || args == "" {
		return args
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(args), &input); err != nil {
		return args
	}
	interceptToolInput(name, input)
	return jsonObject(input)
}

func jsonObject(input map[string]any) string {
	if input == nil {
		return "{}"
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// toolCallStreamer turns streamed tool call fragments into tool_use blocks,
// keyed by the upstream's index field. The first fragment carrying a call's
// name opens its block immediately and every later argument fragment is
// forwarded as an input_json_delta, so clients watch arguments grow instead
// of waiting for the upstream to finish. The subagent tool is the one
// exception: its arguments are withheld whole until flush because the
// background flag rewrite needs the complete object.
type toolCallStreamer struct {
	order []int
	calls map[int]*toolCallState
	live  *toolCallState
}

type toolCallState struct {
	id   string
	name string
	args string

	sent     int // prefix of args already forwarded as deltas
	opened   bool
	sealed   bool
	withheld bool
}

func newToolCallStreamer() *toolCallStreamer {
	return &toolCallStreamer{calls: map[int]*toolCallState{}}
}

func (t *toolCallStreamer) add(builder *StreamBuilder, tc ChatToolCall) error {
	idx := 0
	if tc.Index != nil {
		idx = *tc.Index
	}
	call, ok := t.calls[idx]
	if !ok {
		call = &toolCallState{}
		t.calls[idx] = call
		t.order = append(t.order, idx)
	}
	if tc.ID != "" {
		call.id = tc.ID
	}
	if tc.Function.Name != "" && call.name == "" {
		call.name = tc.Function.Name
		call.withheld = call.name == subagentToolName
	}
	call.args += tc.Function.Arguments

	// Nameless fragments cannot open a block yet; withheld and sealed calls
	// never stream.
	if call.name == "" || call.withheld || call.sealed {
		return nil
	}

	if !call.opened {
		t.sealLive()
		if call.id == "" {
			call.id = MintToolCallID()
		}
		if err := builder.OpenToolBlock(call.id, call.name); err != nil {
			return err
		}
		call.opened = true
		t.live = call
	}
	if call.sent < len(call.args) {
		if err := builder.EmitToolDelta(call.args[call.sent:]); err != nil {
			return err
		}
		call.sent = len(call.args)
	}
	return nil
}

// sealLive marks the live streaming call as done with its block. Called when
// another block is about to open; the builder closes the block itself.
func (t *toolCallStreamer) sealLive() {
	if t.live != nil {
		t.live.sealed = true
		t.live = nil
	}
}

func (t *toolCallStreamer) empty() bool {
	return len(t.order) == 0
}

// flush emits every call that could not stream: withheld subagent calls with
// the background flag rewritten, calls whose name never arrived, and calls
// whose block was sealed with argument fragments still pending. A sealed
// call is replayed whole under a fresh id so no argument bytes are lost.
func (t *toolCallStreamer) flush(builder *StreamBuilder) error {
	for _, idx := range t.order {
		call := t.calls[idx]
		switch {
		case call.withheld:
			if err := emitToolBlock(builder, call.id, call.name, interceptArguments(call.name, call.args)); err != nil {
				return err
			}
		case !call.opened:
			if err := emitToolBlock(builder, call.id, call.name, call.args); err != nil {
				return err
			}
		case call.sent < len(call.args):
			if err := emitToolBlock(builder, MintToolCallID(), call.name, call.args); err != nil {
				return err
			}
		}
	}
	return nil
}
