package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// streamScanBuffer bounds a single upstream SSE line. Tool argument deltas
// can carry large JSON fragments on one line.
const streamScanBuffer = 1024 * 1024

// ReadChatStream consumes an upstream OpenAI SSE body, decoding each data
// payload into a ChatStreamChunk and passing it to handle. It returns when
// the stream ends, the upstream sends [DONE], handle returns an error, or
// the context is cancelled.
func ReadChatStream(ctx context.Context, body io.Reader, handle func(*ChatStreamChunk) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), streamScanBuffer)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == ':' {
			continue
		}
		data, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			// event:/id:/retry: fields carry nothing we act on.
			continue
		}
		data = bytes.TrimSpace(data)

		if string(data) == "[DONE]" {
			return nil
		}
		if err := decodeStreamError(data); err != nil {
			return err
		}

		var chunk ChatStreamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			// A lone malformed frame is skipped; the stream usually recovers.
			continue
		}
		if err := handle(&chunk); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &NetworkError{Message: "reading upstream stream", Cause: err}
	}
	return nil
}

// streamErrorPayload is the error shape some upstreams emit inside an SSE
// data frame instead of failing the HTTP request.
type streamErrorPayload struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// decodeStreamError inspects a decoded chunk's raw form for an inline error
// object. Returns nil when the frame is a normal chunk.
func decodeStreamError(data []byte) error {
	if !bytes.Contains(data, []byte(`"error"`)) {
		return nil
	}
	var payload streamErrorPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error.Message == "" {
		return nil
	}
	msg := payload.Error.Message
	if strings.Contains(strings.ToLower(msg), "overloaded") {
		return &OverloadedError{Message: msg}
	}
	return &APIError{StatusCode: 500, Message: fmt.Sprintf("upstream stream error: %s", msg)}
}
