// ferretd serves the agent loop over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/ferretworks/ferret/agent"
	"github.com/ferretworks/ferret/config"
	"github.com/ferretworks/ferret/llm"
	"github.com/ferretworks/ferret/sandbox"
	"github.com/ferretworks/ferret/security"
	"github.com/ferretworks/ferret/server"
	"github.com/ferretworks/ferret/stats"
	"github.com/ferretworks/ferret/tools"
)

func main() {
	if err := run(); err != nil {
		log.Fatal("ferretd failed", "err", err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file, using environment")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           parseLevel(cfg.LogLevel),
	})
	logger.Info("starting ferretd", "port", cfg.Port, "workspace", cfg.Workspace)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gate := security.NewGate(cfg.BlockedPatterns, logger)
	if err := gate.Watch(ctx); err != nil {
		logger.Warn("pattern watch unavailable", "err", err)
	}

	var backend tools.ExecBackend
	if cfg.SandboxEnabled {
		mgr, err := sandbox.New(cfg.SandboxImage, cfg.Workspace, logger)
		if err != nil {
			logger.Warn("sandbox unavailable, commands run locally", "err", err)
		} else {
			defer mgr.Close()
			mgr.StartReaper(ctx, cfg.SandboxTTL, time.Minute)
			backend = mgr
		}
	}

	var tracker *stats.Tracker
	if cfg.StatsDB != "" {
		t, err := stats.Open(cfg.StatsDB)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		defer t.Close()
		tracker = t
	}

	gateway, err := buildGateway(cfg)
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	registry.Register(tools.NewShellTool(gate, backend, cfg.MaxToolOutput, cfg.CommandTimeout, logger))
	registry.Register(tools.ReadFileTool{})
	registry.Register(tools.WriteFileTool{})
	registry.Register(tools.EditFileTool{})
	registry.Register(tools.DeleteFileTool{})
	registry.Register(tools.ListDirTool{})
	registry.Register(tools.SearchFilesTool{})

	cache := tools.NewSearchCache()
	if cfg.ProxyURL != "" {
		registry.Register(tools.NewSearchWebTool(cfg.ProxyURL, cfg.WebTimeout, cache))
	}
	registry.Register(tools.NewFetchPageTool("", cfg.WebTimeout, cache))

	if cfg.BotURL != "" || cfg.UserbotURL != "" {
		messenger := tools.NewMessenger(cfg.BotURL, cfg.UserbotURL, cfg.WebTimeout)
		registry.Register(tools.NewSendFileTool(messenger))
		registry.Register(tools.NewSendDMTool(messenger))
	}
	logger.Info("tools registered", "count", registry.Count())

	store := agent.NewStore(cfg.Workspace, logger)
	runner := agent.NewRunner(store, gateway, registry, agent.Limits{
		MaxIterations:      cfg.MaxIterations,
		MaxToolOutput:      cfg.MaxToolOutput,
		MaxContextMessages: cfg.MaxContextMessages,
		MaxContextChars:    cfg.MaxContextChars,
		MaxHistory:         cfg.MaxHistory,
		MaxHistoryChars:    cfg.MaxHistoryChars,
		MaxBlocked:         cfg.MaxBlocked,
		LLMTimeout:         cfg.LLMTimeout,
	}, cfg.SystemPrompt, tracker, logger)

	srv := server.New(runner, store, tracker, server.AccessPolicy{
		Mode:      string(cfg.Access),
		AdminID:   cfg.AdminID,
		Allowlist: cfg.Allowlist,
	}, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

const maxCompletionTokens = 8000

func buildGateway(cfg *config.Config) (llm.Gateway, error) {
	if cfg.ProxyURL != "" {
		return llm.NewProxyGateway(cfg.ProxyURL, cfg.APIKey, cfg.Model, cfg.LLMTimeout), nil
	}
	gw, err := llm.NewDirectGateway(cfg.Provider, cfg.APIKey, cfg.Model, maxCompletionTokens)
	if err != nil {
		return nil, fmt.Errorf("llm gateway: %w", err)
	}
	return gw, nil
}

func parseLevel(s string) log.Level {
	switch s {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
