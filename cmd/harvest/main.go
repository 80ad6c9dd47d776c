package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/harvest/api"
	"github.com/use-agent/harvest/api/handler"
	"github.com/use-agent/harvest/browser"
	"github.com/use-agent/harvest/cache"
	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/history"
	"github.com/use-agent/harvest/login"
	"github.com/use-agent/harvest/render"
	"github.com/use-agent/harvest/scraper"
	"github.com/use-agent/harvest/webhook"
)

var version = "0.1.0"

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("harvest starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxConcurrent", cfg.Server.MaxConcurrent,
		"sessionPath", cfg.Login.SessionPath,
	)

	// ── 3. Initialise scraper (browsers launch per request) ────────
	sc := scraper.New(cfg, browser.NewRodLauncher(cfg.Browser))
	defer sc.Close()

	// ── 4. Initialise cache, history and webhooks ──────────────────
	cc := cache.New(cfg.Cache.MaxEntries)
	defer cc.Stop()
	notifier := webhook.NewNotifier(cfg.Webhook.Secret)

	deps := &handler.Deps{
		Runner:         sc,
		Logins:         login.NewConfirmations(),
		Cache:          cc,
		History:        history.New(cfg.History.Path, cfg.History.MaxItems),
		Markdown:       render.NewMarkdown(),
		Notifier:       notifier,
		PublicURL:      publicURL(cfg),
		RequestTimeout: cfg.Server.RequestTimeout,
		Version:        version,
	}
	if cfg.Auth.Enabled && len(cfg.Auth.APIKeys) == 0 {
		slog.Warn("auth enabled without API keys; the API is open")
	}

	// ── 5. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(deps, cfg)

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight scrapes 30 seconds; each releases its own browser
	// when its request context ends.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	notifier.Wait()
	slog.Info("harvest stopped")
}

func publicURL(cfg *config.Config) string {
	if cfg.Webhook.PublicURL != "" {
		return cfg.Webhook.PublicURL
	}
	host := cfg.Server.Host
	if host == "0.0.0.0" || host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var logHandler slog.Handler
	if cfg.Format == "text" {
		logHandler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		logHandler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(logHandler))
}
