package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Package-level logger
var logger *slog.Logger

// initLogger initializes the structured logger based on the log level
func initLogger(logLevel string) {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger = slog.New(handler)
}

// SettlementNode wires the settlement engine to its in-process collaborators
// and serves it over HTTP
type SettlementNode struct {
	NodeID     string
	Config     *Config
	Ledger     *MemoryLedger
	Reputation *ReputationBook
	Trust      *TrustRegistry
	Challenges *ChallengeDesk
	Clock      *BlockClock
	Events     *EventLog
	Engine     *Engine

	Server    *http.Server
	startedAt time.Time
}

func main() {
	// Load configuration
	cfg := LoadConfig()

	// Initialize structured logger
	initLogger(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	node, err := NewSettlementNode(cfg)
	if err != nil {
		logger.Error("Failed to initialize settlement node", "error", err)
		os.Exit(1)
	}

	if err := node.LoadState(cfg.DataDir); err != nil {
		logger.Error("Failed to load persisted state", "dataDir", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Advance the logical block height
	go node.runBlockClock(ctx, cfg.BlockInterval)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- node.StartServer(cfg.Port)
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	node.Shutdown(context.Background(), cfg)
}

// NewSettlementNode builds every collaborator from the configuration and
// binds the challenge desk to the engine
func NewSettlementNode(cfg *Config) (*SettlementNode, error) {
	if cfg == nil {
		cfg = defaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	nodeID := strings.ReplaceAll(uuid.New().String(), "-", "")[:16]

	ledger := NewMemoryLedger()
	reputation := NewReputationBook(cfg.ConfirmationPeriod)
	trust := NewTrustRegistry(cfg.MinShareTrust)
	clock := NewBlockClock(0)
	events := NewEventLog(cfg.EventLogSize)
	desk := NewChallengeDesk(ledger, cfg.Asset, clock, events)

	engine, err := NewEngine(cfg.EngineParams(), EnginePorts{
		Ledger:     ledger,
		Reputation: reputation,
		TrustGraph: trust,
		Challenges: desk,
		Policy:     cfg.ProxyPolicy(),
		Clock:      clock,
		Events:     events,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create settlement engine: %w", err)
	}
	desk.Bind(engine)

	node := &SettlementNode{
		NodeID:     nodeID,
		Config:     cfg,
		Ledger:     ledger,
		Reputation: reputation,
		Trust:      trust,
		Challenges: desk,
		Clock:      clock,
		Events:     events,
		Engine:     engine,
		startedAt:  time.Now(),
	}

	if logger != nil {
		logger.Info("Initialized settlement node",
			"nodeId", nodeID,
			"asset", cfg.Asset,
			"confirmationPeriod", cfg.ConfirmationPeriod,
			"proxyGracePeriod", cfg.ProxyGracePeriod)
	}
	return node, nil
}

// runBlockClock ticks the block clock until ctx is done, letting the round
// phase follow the passage of blocks
func (node *SettlementNode) runBlockClock(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultBlockInterval
	}
	node.Clock.Run(ctx, interval, func(height BlockNumber) {
		node.Reputation.Tick(height)
		logger.Debug("Advanced block", "height", height, "phase", node.Reputation.State().Phase)
	})
}

// Deposit credits free balance to an account
func (node *SettlementNode) Deposit(who AccountID, amount Amount) error {
	return node.Engine.Atomically(func() error {
		return node.Ledger.Deposit(node.Config.Asset, who, amount)
	})
}

// FreezeShare moves free balance of an account into its social balance
func (node *SettlementNode) FreezeShare(who AccountID, amount Amount) error {
	return node.Engine.Atomically(func() error {
		return node.Ledger.FreezeShare(node.Config.Asset, who, amount)
	})
}

// Shutdown stops the HTTP server and persists the node state
func (node *SettlementNode) Shutdown(ctx context.Context, cfg *Config) {
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if node.Server != nil {
		if err := node.Server.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed", "error", err)
		}
	}

	if err := node.SaveState(cfg.DataDir); err != nil {
		logger.Error("Failed to persist state", "dataDir", cfg.DataDir, "error", err)
		return
	}
	logger.Info("Settlement node stopped", "nodeId", node.NodeID, "height", node.Clock.Now())
}
