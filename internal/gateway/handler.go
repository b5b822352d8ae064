package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for the three client
// roles.
type WebSocketHandler struct {
	hub *Hub
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(hub *Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandleConnection returns an upgrade handler for one role.
func (h *WebSocketHandler) HandleConnection(role Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := h.hub.Upgrade(w, r, role); err != nil {
			log.Error().
				Err(err).
				Str("role", string(role)).
				Msg("failed to upgrade WebSocket connection")
			// Upgrade writes its own error response on failure.
		}
	}
}

// HandleConnectionStats returns per-role connection counts.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(h.hub.Stats())
}

// RegisterRoutes registers WebSocket routes with an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/bidder", h.HandleConnection(RoleBidder))
	mux.HandleFunc("/ws/control", h.HandleConnection(RoleControl))
	mux.HandleFunc("/ws/display", h.HandleConnection(RoleDisplay))
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
