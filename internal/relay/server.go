// Package relay constructs and runs the HTTP server with production
// timeout defaults and graceful shutdown.
package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// CreateServer configures the HTTP server for the given listen address.
// The timeouts apply to the plain HTTP surface only; upgraded WebSocket
// connections are hijacked out of the server's deadline handling.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer begins listening and blocks until the server exits.
func StartServer(server *http.Server, log zerolog.Logger) error {
	log.Info().Str("addr", server.Addr).Msg("order chat relay listening")
	return server.ListenAndServe()
}

// ShutdownServer stops the listener and waits for active requests to
// finish, up to timeout.
func ShutdownServer(server *http.Server, timeout time.Duration, log zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
		return err
	}
	log.Info().Msg("http server shutdown completed")
	return nil
}
