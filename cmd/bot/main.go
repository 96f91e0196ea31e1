// Klashibot — an autonomous trading core for binary prediction markets.
//
// Architecture:
//
//	main.go              — entry point: loads config, wires ports, waits for SIGINT/SIGTERM
//	engine/engine.go     — cycle scheduler: portfolio → adapt → scan → evaluate → gate → decide → execute
//	scanner/scanner.go   — parallel market discovery with TTL caching
//	strategy/evaluator.go— arbitrage / spread-capture / value edge detection
//	risk/gate.go         — correlation filter, Kelly sizing, hard caps, adaptive params
//	executor/executor.go — impact-adjusted order submission, latency/slippage accounting
//	perf/tracker.go      — win/loss streaks, drawdown, per-strategy stats, feedback
//	reasoning/client.go  — external reasoner port with rule-based fallback
//	exchange/client.go   — REST client for the exchange (markets, books, orders)
//	exchange/paper.go    — deterministic simulator backing paper mode
//	api/server.go        — observer surface: /health, /api/snapshot, /ws event stream
//	store/store.go       — risk-param persistence and the trade audit log
//
// How it trades:
//
//	Each cycle the bot scans open markets, prices the YES/NO books against
//	each other, and ranks any mispricing by edge × confidence × liquidity.
//	The risk gate sizes survivors with a fractional Kelly formula and blocks
//	correlated pile-ups; an external reasoner gets the final say before one
//	order per cycle goes out. Realized results feed back into the parameters:
//	streaks loosen or tighten sizing, drawdown cuts it, and a daily-loss
//	circuit breaker stops trading outright.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Snapwave333/klashibot-sub000/internal/api"
	"github.com/Snapwave333/klashibot-sub000/internal/config"
	"github.com/Snapwave333/klashibot-sub000/internal/engine"
	"github.com/Snapwave333/klashibot-sub000/internal/exchange"
	"github.com/Snapwave333/klashibot-sub000/internal/reasoning"
	"github.com/Snapwave333/klashibot-sub000/internal/store"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("KLASHI_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Set up logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	// Exchange port: the REST client supplies market data in both modes;
	// paper mode wraps it with the deterministic fill simulator.
	var port exchange.Port = exchange.NewClient(cfg.API, logger)
	if cfg.Mode == config.ModePaper {
		port = exchange.NewPaper(port, cfg.Engine.PaperCash, logger)
		logger.Warn("PAPER MODE — orders are simulated, no real money moves")
	}

	// Reasoner: remote endpoint when configured, rule-based otherwise.
	var reasoner reasoning.Reasoner
	if cfg.Reasoning.Endpoint != "" {
		reasoner = reasoning.NewClient(cfg.Reasoning.Endpoint, logger)
	} else {
		reasoner = reasoning.RuleBased{}
		logger.Info("no reasoning endpoint configured, using rule-based fallback")
	}

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	eng, err := engine.New(*cfg, port, reasoner, st, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	// Start observer API server if enabled
	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, eng, eng.Events(), logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("observer server failed", "error", err)
			}
		}()
		logger.Info("observer surface started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	logger.Info("trading core started",
		"mode", cfg.Mode,
		"cycle_interval", cfg.Engine.CycleInterval,
		"top_k", cfg.Engine.TopKAdmitted,
		"kelly_fraction", cfg.Risk.KellyFraction,
		"max_daily_loss_pct", cfg.Risk.MaxDailyLossPct,
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	// Stop observer surface first
	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop observer server", "error", err)
		}
	}

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
