// Package api exposes the assistant's two boundary operations over
// HTTP: the streaming chat turn and the action confirmation.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nidohq/nido/internal/assistant"
	"github.com/nidohq/nido/internal/i18n"
	"github.com/nidohq/nido/internal/server"
	"github.com/nidohq/nido/internal/telemetry"
)

// Handler holds the assistant endpoints.
type Handler struct {
	service *assistant.Service
	engine  *assistant.Engine
	logger  *slog.Logger
}

// NewHandler wires the endpoints over a chat service and its engine.
func NewHandler(service *assistant.Service, engine *assistant.Engine, logger *slog.Logger) *Handler {
	return &Handler{service: service, engine: engine, logger: logger}
}

// Mount registers the assistant routes.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/v1/assistant/chat", h.HandleChat)
	r.Post("/v1/assistant/confirm", h.HandleConfirm)
}

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	Language       string `json:"language"`
}

type chatDelta struct {
	Delta string `json:"delta"`
}

type chatTerminal struct {
	Done           bool                      `json:"done"`
	ConversationID string                    `json:"conversation_id"`
	ProposedAction *assistant.ProposedAction `json:"proposed_action"`
}

type chatError struct {
	Error string `json:"error"`
}

// HandleChat runs one chat turn and streams the reply as SSE. The raw
// text, marker included, is streamed verbatim; clients wanting
// structure read the terminal event's proposed_action instead of
// parsing the text themselves.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ident, ok := server.GetIdentity(r.Context())
	if !ok {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}
	lang := i18n.Normalize(req.Language)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sink := func(delta string) error {
		return writeEvent(w, flusher, chatDelta{Delta: delta})
	}

	result, err := h.service.ChatTurn(r.Context(), ident, assistant.ChatRequest{
		ConversationID: req.ConversationID,
		Content:        req.Content,
		Language:       lang,
	}, sink)
	if err != nil {
		// The stream may already carry partial text; it must still end
		// with an explicit error event, never silently.
		server.AddError(r.Context(), err)
		telemetry.ChatTurns.WithLabelValues("error").Inc()
		_ = writeEvent(w, flusher, chatError{Error: i18n.T(lang, "processing_error")})
		return
	}

	telemetry.ChatTurns.WithLabelValues("ok").Inc()
	if result.ProposedAction != nil {
		telemetry.Proposals.WithLabelValues(result.ProposedAction.Type).Inc()
	}
	_ = writeEvent(w, flusher, chatTerminal{
		Done:           true,
		ConversationID: result.ConversationID,
		ProposedAction: result.ProposedAction,
	})
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

type confirmRequest struct {
	ActionType     string          `json:"action_type"`
	ActionData     json.RawMessage `json:"action_data"`
	ConversationID string          `json:"conversation_id"`
	Language       string          `json:"language"`
}

// HandleConfirm executes a previously proposed action after explicit
// user confirmation. Domain failures (denied, unsupported, not found)
// are HTTP 200 with success=false; only malformed requests are 4xx.
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ident, ok := server.GetIdentity(r.Context())
	if !ok {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ActionType == "" {
		http.Error(w, "action_type is required", http.StatusBadRequest)
		return
	}

	result := h.engine.Confirm(r.Context(), ident, assistant.ConfirmRequest{
		ActionType:     req.ActionType,
		ActionData:     req.ActionData,
		ConversationID: req.ConversationID,
		Language:       i18n.Normalize(req.Language),
	})

	outcome := "denied_or_failed"
	if result.Success {
		outcome = "ok"
	}
	telemetry.Confirmations.WithLabelValues(req.ActionType, outcome).Inc()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.logger.Error("failed to encode confirm response", slog.String("error", err.Error()))
	}
}
