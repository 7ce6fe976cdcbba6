package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"opsmind/backend/internal/middleware"
	"opsmind/backend/internal/retrieval"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type askRequest struct {
	Query string `json:"query"`
}

// Ask answers one question over Server-Sent Events. The event order is fixed:
// one sources event, the answer as text fragments, then a [DONE] sentinel.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "Query is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	owner := middleware.GetOwner(r.Context())
	em := &sseEmitter{w: w, flusher: flusher}

	if err := h.service.Ask(r.Context(), owner, req.Query, em); err != nil {
		// Headers are already on the wire; all we can do is log and drop.
		slog.WarnContext(r.Context(), "chat stream aborted", "error", err)
	}
}

// History returns the owner's transcript, oldest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwner(r.Context())

	entries, err := h.service.History(r.Context(), owner)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load chat history", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": entries}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// sseEmitter frames pipeline events as SSE data lines and flushes after each
// so fragments reach the client as they are produced.
type sseEmitter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (e *sseEmitter) Sources(citations []retrieval.Citation) error {
	payload, err := json.Marshal(map[string]interface{}{
		"type":    "sources",
		"sources": citations,
	})
	if err != nil {
		return err
	}
	return e.write(string(payload))
}

func (e *sseEmitter) Text(fragment string) error {
	payload, err := json.Marshal(map[string]string{"text": fragment})
	if err != nil {
		return err
	}
	return e.write(string(payload))
}

func (e *sseEmitter) Done() error {
	return e.write("[DONE]")
}

func (e *sseEmitter) write(data string) error {
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
