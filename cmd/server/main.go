package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/ordersync/relay/internal/relay"
	"github.com/ordersync/relay/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := relay.LoadConfig()
	if err != nil {
		return err
	}

	log, err := setupLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := setupStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	var bus *relay.Bus
	if cfg.RedisAddr != "" {
		bus, err = relay.NewBus(ctx, cfg.RedisAddr, cfg.RedisDB, log)
		if err != nil {
			return fmt.Errorf("connect redis bus: %w", err)
		}
		defer bus.Close()
		log.Info().Str("addr", cfg.RedisAddr).Msg("cross-instance bus enabled")
	}

	hub := relay.NewHub(log, cfg, st, bus)
	go hub.Run(ctx)

	server := relay.CreateServer(cfg.Addr(), relay.NewRouter(hub, cfg, log))

	errCh := make(chan error, 1)
	go func() {
		errCh <- relay.StartServer(server, log)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	if err := relay.ShutdownServer(server, cfg.ShutdownTimeout, log); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Error().Err(err).Msg("hub shutdown")
	}
	return nil
}

func setupLogger(level string) (zerolog.Logger, error) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse log level: %w", err)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(parsed).
		With().
		Timestamp().
		Logger()
	return log, nil
}

func setupStore(ctx context.Context, cfg relay.Config, log zerolog.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, message persistence disabled")
		return store.NewNoop(log), nil
	}
	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("connect message store: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}
