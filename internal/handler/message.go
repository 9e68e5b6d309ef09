package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pairchat/internal/logger"
	"github.com/pairchat/internal/middleware"
	"github.com/pairchat/internal/realtime"
	"github.com/pairchat/internal/service"
)

type MessageHandler struct {
	svc   *service.ChatService
	cache realtime.Cache
}

func NewMessageHandler(svc *service.ChatService, cache realtime.Cache) *MessageHandler {
	if cache == nil {
		cache = realtime.NopCache{}
	}
	return &MessageHandler{svc: svc, cache: cache}
}

// GetMessages returns a page of history, newest first. Only the first page
// is cached; deeper pages change too rarely to be worth the invalidation
// traffic.
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	convID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(ctx)

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	firstPage := offset == 0 && limit == 50
	if firstPage {
		if data, ok := h.cache.GetMessages(ctx, convID); ok {
			// Cached payload is conversation-scoped; still verify access.
			if _, err := h.svc.GetConversation(ctx, convID, userID); err != nil {
				writeServiceError(w, err, "failed to get messages")
				return
			}
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(http.StatusOK)
			w.Write(data)
			return
		}
	}

	messages, err := h.svc.ListMessages(ctx, convID, userID, limit, offset)
	if err != nil {
		writeServiceError(w, err, "failed to get messages")
		return
	}

	if firstPage {
		if data, err := json.Marshal(messages); err == nil {
			h.cache.SetMessages(ctx, convID, data)
		} else {
			logger.Errorf("GetMessages marshal for cache: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, messages)
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	msg, err := h.svc.SendText(r.Context(), convID, userID, req.Content)
	if err != nil {
		writeServiceError(w, err, "failed to send message")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// MarkAsRead stamps every unread inbound message in the conversation in
// one pass and returns the affected ids.
func (h *MessageHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())

	ids, err := h.svc.MarkConversationRead(r.Context(), convID, userID)
	if err != nil {
		writeServiceError(w, err, "failed to mark as read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message_ids": ids})
}

type EditMessageRequest struct {
	Content string `json:"content"`
}

func (h *MessageHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	msgID := chi.URLParam(r, "messageId")
	userID := middleware.GetUserID(r.Context())

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	msg, err := h.svc.EditMessage(r.Context(), msgID, userID, req.Content)
	if err != nil {
		writeServiceError(w, err, "failed to edit message")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	msgID := chi.URLParam(r, "messageId")
	userID := middleware.GetUserID(r.Context())

	if err := h.svc.DeleteMessage(r.Context(), msgID, userID); err != nil {
		writeServiceError(w, err, "failed to delete message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type PinMessageRequest struct {
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (h *MessageHandler) PinMessage(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	msgID := chi.URLParam(r, "messageId")
	userID := middleware.GetUserID(r.Context())

	var req PinMessageRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now().UTC()) {
		writeError(w, http.StatusBadRequest, "expires_at must be in the future")
		return
	}

	if err := h.svc.PinMessage(r.Context(), convID, msgID, userID, req.ExpiresAt); err != nil {
		writeServiceError(w, err, "failed to pin message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *MessageHandler) UnpinMessage(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	msgID := chi.URLParam(r, "messageId")
	userID := middleware.GetUserID(r.Context())

	if err := h.svc.UnpinMessage(r.Context(), convID, msgID, userID); err != nil {
		writeServiceError(w, err, "failed to unpin message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *MessageHandler) GetPins(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())

	pins, err := h.svc.ListPins(r.Context(), convID, userID)
	if err != nil {
		writeServiceError(w, err, "failed to get pins")
		return
	}
	writeJSON(w, http.StatusOK, pins)
}

type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

func (h *MessageHandler) AddReaction(w http.ResponseWriter, r *http.Request) {
	msgID := chi.URLParam(r, "messageId")
	userID := middleware.GetUserID(r.Context())

	var req ReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Emoji == "" {
		writeError(w, http.StatusBadRequest, "emoji required")
		return
	}

	if err := h.svc.React(r.Context(), msgID, userID, req.Emoji); err != nil {
		writeServiceError(w, err, "failed to add reaction")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *MessageHandler) RemoveReaction(w http.ResponseWriter, r *http.Request) {
	msgID := chi.URLParam(r, "messageId")
	userID := middleware.GetUserID(r.Context())

	var req ReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Emoji == "" {
		writeError(w, http.StatusBadRequest, "emoji required")
		return
	}

	if err := h.svc.Unreact(r.Context(), msgID, userID, req.Emoji); err != nil {
		writeServiceError(w, err, "failed to remove reaction")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
