package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// eventWriter adapts an http.ResponseWriter into a providers.EventSink,
// writing "event:"/"data:" framed SSE and flushing after every event. The
// stream headers go out lazily with the first event, so a failure before any
// output can still become a plain HTTP error response.
type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu       sync.Mutex
	wroteAny bool
}

func newEventWriter(w http.ResponseWriter, flusher http.Flusher) *eventWriter {
	return &eventWriter{w: w, flusher: flusher}
}

// Event writes one SSE frame.
func (e *eventWriter) Event(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.wroteAny {
		h := e.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		e.w.WriteHeader(http.StatusOK)
		e.wroteAny = true
	}

	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

// WroteAny reports whether any event reached the wire.
func (e *eventWriter) WroteAny() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wroteAny
}
