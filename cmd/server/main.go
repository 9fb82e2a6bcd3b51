package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/ecpack/internal/config"
	"github.com/JonMunkholm/ecpack/internal/core"
	"github.com/JonMunkholm/ecpack/internal/logging"
	"github.com/JonMunkholm/ecpack/internal/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"template", cfg.Jobs.TemplatePath,
		"jobs_max_concurrent", cfg.Jobs.MaxConcurrent,
		"history", historyBackend(cfg),
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()

	var history core.HistoryStore
	if cfg.Database.Enabled() {
		pool, err := connect(ctx, cfg)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		pg := core.NewPgHistory(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare job history table", "error", err)
			os.Exit(1)
		}
		history = pg
	}

	service, err := core.NewService(cfg, history)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(service, cfg)

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go service.StartSessionSweeper(jobCtx)

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	err = serve(server, sigCtx.Done(), func() {
		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		drain(shutdownCtx, server, service)
	})
	if err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// serve runs srv until stop closes, then calls shutdown. It returns only
// after shutdown has finished; Start itself returns as soon as the listener
// closes.
func serve(srv interface{ Start() error }, stop <-chan struct{}, shutdown func()) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-stop
		shutdown()
	}()

	if err := srv.Start(); err != nil {
		return err
	}
	<-done
	return nil
}

// drain stops accepting requests, waits for in-flight handlers to return,
// then waits for any job still holding a slot.
func drain(ctx context.Context, server *web.Server, service *core.Service) {
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	if status := service.LimiterStatus(); status.Active > 0 {
		slog.Info("waiting for jobs to complete", "active", status.Active)
		if err := service.WaitForJobs(ctx); err != nil {
			slog.Warn("jobs did not complete in time", "error", err)
			return
		}
		slog.Info("all jobs completed")
	}
}

// connect opens and verifies the job history pool.
func connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

func historyBackend(cfg *config.Config) string {
	if cfg.Database.Enabled() {
		return "postgres"
	}
	return "memory"
}
