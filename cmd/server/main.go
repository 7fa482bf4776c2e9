package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/plantops/invaudit/internal/api"
	"github.com/plantops/invaudit/internal/config"
	"github.com/plantops/invaudit/internal/db"
	"github.com/plantops/invaudit/internal/httpmw"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer func() {
		_ = pool.Close()
	}()

	if err := db.Migrate(pool); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	binder := httpmw.NewSessionBinder(pool, logger).WithBudget(cfg.Audit.SetupBudget)

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.NewRouter(pool, logger, binder),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("listen", cfg.Listen).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func newLogger(cfg config.Log) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	if cfg.Format == "console" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger
}
