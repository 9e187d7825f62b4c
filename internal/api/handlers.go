package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/strivehq/strive/internal/conversation"
	"github.com/strivehq/strive/internal/document"
	"github.com/strivehq/strive/internal/functions"
	"github.com/strivehq/strive/internal/orchestrator"
)

// maxBodyBytes caps chat request bodies; document uploads have their own
// limit in the document package.
const maxBodyBytes = 64 * 1024

// Core is the conversation engine the HTTP layer fronts.
type Core interface {
	HandleMessage(ctx context.Context, conversationID, userText string, uc functions.UserContext, providerHint string) (*orchestrator.Response, error)
	HandleDocument(ctx context.Context, conversationID string, r io.Reader, uc functions.UserContext) (*orchestrator.Response, error)
	ResetConversation(conversationID string)
	ResetAll() int
	GetHistory(conversationID string) *conversation.History
	ListConversations() []*conversation.Summary
	ListConversationsForUser(userID string) []*conversation.Summary
	Diagnostics() []*conversation.Diagnostics
}

// handler carries the dependencies shared by all endpoints.
type handler struct {
	core   Core
	logger *slog.Logger
}

// chatRequest is the POST /api/chat body.
type chatRequest struct {
	ConversationID string      `json:"conversationId"`
	Message        string      `json:"message"`
	Provider       string      `json:"provider"`
	User           userPayload `json:"user"`
}

// userPayload is the caller identity inside chat and document requests.
type userPayload struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	OrganizationID string `json:"organizationId"`
}

func (u userPayload) toContext() functions.UserContext {
	return functions.UserContext{
		UserID:         u.ID,
		UserName:       u.Name,
		Role:           functions.Role(u.Role),
		OrganizationID: u.OrganizationID,
	}
}

// chat handles POST /api/chat.
func (h *handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", h.logger)
		return
	}
	if req.ConversationID == "" {
		writeError(w, http.StatusBadRequest, "missing_conversation_id", "conversationId is required", h.logger)
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "missing_message", "message is required", h.logger)
		return
	}

	resp, err := h.core.HandleMessage(r.Context(), req.ConversationID, req.Message, req.User.toContext(), req.Provider)
	if err != nil {
		h.logger.Error("chat handling failed",
			"conversation_id", req.ConversationID,
			"request_id", requestIDFrom(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "chat_failed", "failed to handle message", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, resp, h.logger)
}

// uploadDocument handles POST /api/conversations/{id}/document. The body is
// the raw document text; caller identity travels in headers.
func (h *handler) uploadDocument(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	uc := functions.UserContext{
		UserID:         r.Header.Get("X-User-ID"),
		UserName:       r.Header.Get("X-User-Name"),
		Role:           functions.Role(r.Header.Get("X-User-Role")),
		OrganizationID: r.Header.Get("X-Organization-ID"),
	}

	resp, err := h.core.HandleDocument(r.Context(), conversationID, r.Body, uc)
	if err != nil {
		switch {
		case errors.Is(err, document.ErrEmptyDocument),
			errors.Is(err, document.ErrNotText):
			writeError(w, http.StatusBadRequest, "invalid_document", err.Error(), h.logger)
		case errors.Is(err, document.ErrTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "document_too_large", err.Error(), h.logger)
		default:
			h.logger.Error("document handling failed",
				"conversation_id", conversationID,
				"request_id", requestIDFrom(r.Context()),
				"error", err,
			)
			writeError(w, http.StatusInternalServerError, "document_failed", "failed to process document", h.logger)
		}
		return
	}
	writeJSON(w, http.StatusOK, resp, h.logger)
}

// resetConversation handles POST /api/conversations/{id}/reset.
func (h *handler) resetConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.core.ResetConversation(id)
	writeJSON(w, http.StatusOK, map[string]string{"conversationId": id, "status": "reset"}, h.logger)
}

// resetAll handles POST /api/conversations/reset.
func (h *handler) resetAll(w http.ResponseWriter, _ *http.Request) {
	count := h.core.ResetAll()
	writeJSON(w, http.StatusOK, map[string]int{"resetCount": count}, h.logger)
}

// getHistory handles GET /api/conversations/{id}.
func (h *handler) getHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.core.GetHistory(r.PathValue("id")), h.logger)
}

// listConversations handles GET /api/conversations.
func (h *handler) listConversations(w http.ResponseWriter, _ *http.Request) {
	summaries := h.core.ListConversations()
	if summaries == nil {
		summaries = []*conversation.Summary{}
	}
	writeJSON(w, http.StatusOK, summaries, h.logger)
}

// listUserConversations handles GET /api/users/{id}/conversations.
func (h *handler) listUserConversations(w http.ResponseWriter, r *http.Request) {
	summaries := h.core.ListConversationsForUser(r.PathValue("id"))
	if summaries == nil {
		summaries = []*conversation.Summary{}
	}
	writeJSON(w, http.StatusOK, summaries, h.logger)
}

// diagnostics handles GET /api/diagnostics.
func (h *handler) diagnostics(w http.ResponseWriter, _ *http.Request) {
	reports := h.core.Diagnostics()
	if reports == nil {
		reports = []*conversation.Diagnostics{}
	}
	writeJSON(w, http.StatusOK, reports, h.logger)
}
