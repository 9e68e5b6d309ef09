package handler

import (
	"net/http"

	"github.com/pairchat/internal/config"
	"github.com/pairchat/internal/push"
)

// ConfigHandler exposes the public, unauthenticated configuration the web
// client needs before login.
type ConfigHandler struct {
	cfg    *config.Config
	sender *push.Sender
}

func NewConfigHandler(cfg *config.Config, sender *push.Sender) *ConfigHandler {
	return &ConfigHandler{cfg: cfg, sender: sender}
}

func (h *ConfigHandler) GetCacheConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{
		"ttl_minutes": h.cfg.Cache.TTLMinutes,
	})
}

// GetPushConfig returns the public VAPID key when push is enabled.
func (h *ConfigHandler) GetPushConfig(w http.ResponseWriter, r *http.Request) {
	if h.sender == nil || !h.sender.Enabled() {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":          true,
		"vapid_public_key": h.sender.PublicKey(),
	})
}

// GetCallConfig returns the ICE servers for the WebRTC call overlay.
func (h *ConfigHandler) GetCallConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ice_servers": h.cfg.CallICEServers,
	})
}
