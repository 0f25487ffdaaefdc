// Package relay exposes the HTTP handlers: the WebSocket upgrade, the
// trusted message inject endpoint, and the health check.
package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WebSocketHandler upgrades the request and starts the connection's pumps.
// The connection stays UNJOINED until it sends a valid join event.
func WebSocketHandler(hub *Hub, upgrader *websocket.Upgrader, cfg Config, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("websocket upgrade failed")
			return
		}
		conn.SetReadLimit(cfg.MaxMessageSize)

		client := NewClient(conn, hub, r.RemoteAddr, log)
		client.log.Info().Msg("client connected")

		go client.writePump()
		go client.readPump()
	}
}

// SendMessageHandler is the trusted backend's inject path: validate, build
// the message, broadcast to the order room, and reply with the constructed
// message. Equivalent to join-then-send in one shot, with no live session.
func SendMessageHandler(hub *Hub, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		var req InjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		msg, err := hub.Inject(req)
		if err != nil {
			if errors.Is(err, ErrMissingInjectFields) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			log.Error().Err(err).Msg("inject failed")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "order message sent successfully",
			"data":    msg,
		})
	}
}

// HealthHandler reports process liveness and the current time.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
