package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"lumen-hq/relay/pkg/api"
	"lumen-hq/relay/pkg/providers"
)

// handleMessages serves POST /v1/messages, both streaming and not.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeMessages(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	adapter, err := s.resolveAdapter(req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if req.IsStreaming() {
		s.streamMessages(w, r, adapter, req)
		return
	}

	resp, err := adapter.Complete(r.Context(), req)
	if err != nil {
		if providers.IsCancelled(err) {
			// Client is gone; the response has no reader.
			return
		}
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// streamMessages relays the upstream as Anthropic SSE events. Errors before
// the first event become an HTTP error response; later failures are emitted
// in-stream by the adapter.
func (s *Server) streamMessages(w http.ResponseWriter, r *http.Request, adapter *providers.Adapter, req *api.MessagesRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, &providers.APIError{
			Provider:   adapter.Name(),
			StatusCode: http.StatusInternalServerError,
			Message:    "streaming unsupported by connection",
		})
		return
	}

	sink := newEventWriter(w, flusher)
	err := adapter.Stream(r.Context(), req, sink)
	if err == nil || providers.IsCancelled(err) {
		return
	}
	if !sink.WroteAny() {
		s.writeError(w, err)
	}
	// Otherwise the adapter already closed the stream with an error event.
}

// handleCountTokens serves POST /v1/messages/count_tokens.
func (s *Server) handleCountTokens(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)

	var req api.TokenCountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &providers.InvalidRequestError{Message: "invalid JSON body: " + err.Error()})
		return
	}
	if len(req.Messages) == 0 {
		s.writeError(w, &providers.InvalidRequestError{Field: "messages", Message: "must not be empty"})
		return
	}

	count, err := api.CountTokens(req.Messages, req.System, req.Tools)
	if err != nil {
		s.writeError(w, &providers.APIError{StatusCode: http.StatusInternalServerError, Message: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, api.TokenCountResponse{InputTokens: count})
}

// handleHealth serves GET /health: a liveness probe, always 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"providers": s.registry.Names(),
	})
}

// decodeMessages parses and validates the request body.
func (s *Server) decodeMessages(w http.ResponseWriter, r *http.Request) (*api.MessagesRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)

	var req api.MessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &providers.InvalidRequestError{Message: "request body too large"}
		}
		return nil, &providers.InvalidRequestError{Message: "invalid JSON body: " + err.Error()}
	}

	if req.Model == "" {
		return nil, &providers.InvalidRequestError{Field: "model", Message: "is required"}
	}
	if len(req.Messages) == 0 {
		return nil, &providers.InvalidRequestError{Field: "messages", Message: "must not be empty"}
	}
	if req.MaxTokens < 0 {
		return nil, &providers.InvalidRequestError{Field: "max_tokens", Message: "must be positive"}
	}
	return &req, nil
}

// resolveAdapter picks the provider for the request's model label and
// normalizes the model: the provider-facing identifier replaces the label,
// which is preserved in original_model.
func (s *Server) resolveAdapter(req *api.MessagesRequest) (*providers.Adapter, error) {
	name, ok := s.cfg.ResolveProvider(req.Model)
	if !ok {
		return nil, &providers.InvalidRequestError{
			Field:   "model",
			Message: "no provider configured for model " + req.Model,
		}
	}
	adapter, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}

	req.OriginalModel = req.Model
	if m := adapter.Config().DefaultModel; m != "" {
		req.Model = m
	}
	return adapter, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	envelope := api.NewErrorEnvelope(providers.Kind(err), err.Error())
	s.writeJSON(w, providers.HTTPStatus(err), envelope)
}
