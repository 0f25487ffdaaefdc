// Package relay wires the HTTP surface into a ServeMux wrapped with CORS.
package relay

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// NewRouter configures the application routes: health check, WebSocket
// endpoint, and the trusted inject endpoint, with the configured origin
// policy applied to upgrades and CORS applied to the plain HTTP surface.
func NewRouter(hub *Hub, cfg Config, log zerolog.Logger) http.Handler {
	policy := newOriginPolicy(cfg.AllowedOrigins, log)
	upgrader := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.check,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/ws", WebSocketHandler(hub, upgrader, cfg, log))
	mux.HandleFunc("/api/send-message", SendMessageHandler(hub, log))

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(mux)
}
