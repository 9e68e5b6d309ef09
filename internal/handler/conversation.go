package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pairchat/internal/logger"
	"github.com/pairchat/internal/middleware"
	"github.com/pairchat/internal/model"
	"github.com/pairchat/internal/realtime"
	"github.com/pairchat/internal/service"
)

type ConversationHandler struct {
	svc   *service.ChatService
	cache realtime.Cache
}

func NewConversationHandler(svc *service.ChatService, cache realtime.Cache) *ConversationHandler {
	if cache == nil {
		cache = realtime.NopCache{}
	}
	return &ConversationHandler{svc: svc, cache: cache}
}

type StartConversationRequest struct {
	UserID string `json:"user_id"`
}

// StartConversation returns the pair's conversation, creating it on first
// contact. Calling it twice (or from both sides) yields the same row.
func (h *ConversationHandler) StartConversation(w http.ResponseWriter, r *http.Request) {
	var req StartConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}

	userID := middleware.GetUserID(r.Context())
	conv, err := h.svc.GetOrCreateConversation(r.Context(), userID, req.UserID)
	if err != nil {
		writeServiceError(w, err, "failed to start conversation")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// GetConversations serves the list from cache when it is fresh; the
// realtime bridge invalidates the key on any change that affects it.
func (h *ConversationHandler) GetConversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if data, ok := h.cache.GetConversations(ctx, userID); ok {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("X-Cache", "HIT")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
		return
	}

	convs, err := h.svc.ListConversations(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get conversations")
		return
	}

	if data, err := json.Marshal(convs); err == nil {
		h.cache.SetConversations(ctx, userID, data)
	} else {
		logger.Errorf("GetConversations marshal for cache: %v", err)
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *ConversationHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())

	conv, err := h.svc.GetConversation(r.Context(), convID, userID)
	if err != nil {
		writeServiceError(w, err, "failed to get conversation")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// UpdateSettings patches per-user conversation flags (pin, mute, archive).
// Absent fields are left untouched.
func (h *ConversationHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())

	var patch model.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if patch.IsPinned == nil && patch.IsMuted == nil && patch.IsArchived == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	if err := h.svc.UpdateConversationSettings(r.Context(), convID, userID, patch); err != nil {
		writeServiceError(w, err, "failed to update settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// DeleteConversation hides the conversation for the requester only; the
// partner's view and the history itself are untouched.
func (h *ConversationHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())

	if err := h.svc.DeleteConversation(r.Context(), convID, userID); err != nil {
		writeServiceError(w, err, "failed to delete conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *ConversationHandler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())

	count, err := h.svc.UnreadCount(r.Context(), convID, userID)
	if err != nil {
		writeServiceError(w, err, "failed to get unread count")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread_count": count})
}
