package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"moviesnow/internal/platform/config"
	"moviesnow/internal/platform/logger"
	"moviesnow/internal/sandbox"
)

// main starts the local backend emulator. Everything interesting lives
// in internal/sandbox; this file owns only the server lifecycle.
func main() {
	config.LoadDotenv()
	cfg := config.SandboxFromEnv()
	log := logger.New()

	log.Info("starting moviesnow sandbox",
		"addr", cfg.Addr,
		"seed_demo_accounts", cfg.SeedDemoAccounts,
		"rate_limit_per_min", cfg.RateLimitPerMin,
	)
	if cfg.SeedDemoAccounts {
		log.Info("demo accounts ready",
			"admin", "admin@moviesnow.dev / admin-sandbox (TOTP enrolled)",
			"member", "casey@moviesnow.dev / casey-sandbox",
		)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           sandbox.New(cfg, sandbox.WithLogger(log)).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info("shutting down sandbox")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("sandbox stopped")
}
