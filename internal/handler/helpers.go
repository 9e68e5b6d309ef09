package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/pairchat/internal/logger"
	"github.com/pairchat/internal/repository"
	"github.com/pairchat/internal/service"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

// writeServiceError maps service sentinels to HTTP statuses; anything
// unrecognized becomes a 500 with the given fallback message.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrNotParticipant):
		writeError(w, http.StatusForbidden, "not a participant")
	case errors.Is(err, service.ErrNotSender):
		writeError(w, http.StatusForbidden, "only the sender can do that")
	case errors.Is(err, service.ErrSelfConversation):
		writeError(w, http.StatusBadRequest, "cannot start a conversation with yourself")
	case errors.Is(err, service.ErrEmptyContent):
		writeError(w, http.StatusBadRequest, "content is empty or too long")
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
