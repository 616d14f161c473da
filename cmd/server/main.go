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

	"github.com/halcyonlabs/credit-guardian/internal/agent"
	"github.com/halcyonlabs/credit-guardian/internal/alerts"
	"github.com/halcyonlabs/credit-guardian/internal/api"
	"github.com/halcyonlabs/credit-guardian/internal/config"
	"github.com/halcyonlabs/credit-guardian/internal/db"
	"github.com/halcyonlabs/credit-guardian/internal/gad"
	"github.com/halcyonlabs/credit-guardian/internal/health"
	"github.com/halcyonlabs/credit-guardian/internal/ledger"
	"github.com/halcyonlabs/credit-guardian/internal/models"
	"github.com/halcyonlabs/credit-guardian/internal/monitor"
	"github.com/halcyonlabs/credit-guardian/internal/repository"
)

const banner = `
╔══════════════════════════════════════╗
║       CREDIT GUARDIAN  v0.1          ║
║                                      ║
╚══════════════════════════════════════╝
`

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.Print()

	// Database
	fmt.Printf("\n[DB] Connecting to %s:%d/%s ...\n", cfg.DBHost, cfg.DBPort, cfg.DBName)
	pool, err := db.Connect(cfg.DSN(), cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[DB] Connection failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		pool.Close()
		fmt.Println("[DB] Connection pool closed")
	}()

	if err := db.TestConnection(pool); err != nil {
		fmt.Fprintf(os.Stderr, "[DB] Test query failed: %v\n", err)
		os.Exit(1)
	}

	// Ledger client
	lg, err := ledger.NewClient(
		cfg.LedgerRPCEndpoint, cfg.PrivateKey, cfg.VaultAddress,
		int64(cfg.ChainID), cfg.GasLimit, cfg.GasMultiplier,
		models.DefaultAssets,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[LEDGER] Client init failed: %v\n", err)
		os.Exit(1)
	}
	defer lg.Close()
	fmt.Printf("[LEDGER] Connected as %s\n", lg.WalletAddress().Hex())

	// Repos
	agentRepo := repository.NewAgentConfigRepo(pool)
	gadRepo := repository.NewGadConfigRepo(pool)
	alertRepo := repository.NewAlertRepo(pool)
	x402Repo := repository.NewX402PaymentRepo(pool)

	// Alert bus: webhook + persistent history
	bus := alerts.NewBus()
	webhook := alerts.NewWebhookSender(cfg.WebhookURL, cfg.BotName)
	if webhook.Enabled() {
		bus.Subscribe(webhook.Listen)
	}
	bus.Subscribe(alertRepo.Listen)

	// Controllers
	params := health.Params{
		MaxLTVBps:               uint64(cfg.MaxLTVBps),
		LiquidationThresholdBps: uint64(cfg.LiquidationThresholdBps),
	}
	agentCtrl := agent.NewController(lg, agentRepo, x402Repo, bus, params)
	gadCtrl := gad.NewController(lg, gadRepo, bus)

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Monitoring loop
	mon := monitor.New(lg, agentCtrl, gadCtrl, bus, params, monitor.Config{
		Interval:      time.Duration(cfg.MonitorIntervalSeconds) * time.Second,
		Owners:        cfg.WatchedOwners,
		KeeperEnabled: cfg.KeeperEnabled,
		RepayAsset:    cfg.RepayAsset,
	})
	mon.Start()

	// 2. API server
	srv := api.NewServer(pool, lg, agentCtrl, gadCtrl, mon, params, cfg.APIPort, cfg.APIKey, cfg.CORSAllowOrigin)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "[API] Server error: %v\n", err)
			os.Exit(1)
		}
	}()

	fmt.Println("\nAll services started successfully")

	// Wait for shutdown signal
	<-ctx.Done()
	fmt.Println("\nShutting down gracefully...")

	mon.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "[API] Shutdown error: %v\n", err)
	}
	fmt.Println("[API] Server closed")
	fmt.Println("Shutdown complete")
}
