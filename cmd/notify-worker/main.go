package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Krish-Makadiya/Aroga-sub001/internal/config"
	"github.com/Krish-Makadiya/Aroga-sub001/internal/db"
	"github.com/Krish-Makadiya/Aroga-sub001/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("config load error")
	}

	logger := newLogger(cfg.Env)
	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.NotifyInterval).Msg("notify-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	repo := notify.NewPgOutboxRepository(pgPool)
	notifier := &notify.LogNotifier{Log: logger}
	dispatcher := notify.NewDispatcher(repo, notifier, cfg.NotifyMaxAttempts, logger)

	// Run once at startup
	runOnce(rootCtx, dispatcher, logger)

	ticker := time.NewTicker(cfg.NotifyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutting down notify-worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, dispatcher, logger)
		}
	}
}

func runOnce(ctx context.Context, dispatcher *notify.Dispatcher, logger zerolog.Logger) {
	sent, err := dispatcher.DrainOnce(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("outbox drain failed")
		return
	}
	if sent > 0 {
		logger.Info().Int("sent", sent).Msg("notifications dispatched")
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
