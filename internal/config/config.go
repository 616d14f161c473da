package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Secrets (from .env)
	PrivateKey      string
	WebhookURL      string
	BotName         string
	APIKey          string
	CORSAllowOrigin string

	// Database
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBMaxConns int
	DBMinConns int

	// Ledger
	LedgerRPCEndpoint string
	VaultAddress      string
	ChainID           int
	GasLimit          int
	GasMultiplier     float64

	// Risk Parameters
	MaxLTVBps               int
	LiquidationThresholdBps int

	// Monitoring
	MonitorIntervalSeconds int
	WatchedOwners          []string
	KeeperEnabled          bool
	RepayAsset             string

	// API
	APIPort int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		// Secrets
		PrivateKey:      envStr("PRIVATE_KEY", ""),
		WebhookURL:      envStr("WEBHOOK_URL", ""),
		BotName:         envStr("BOT_NAME", "CreditGuardian"),
		APIKey:          envStr("API_KEY", ""),
		CORSAllowOrigin: envStr("CORS_ALLOW_ORIGIN", "*"),

		// Database
		DBHost:     envStr("DB_HOST", "localhost"),
		DBPort:     envInt("DB_PORT", 5432),
		DBName:     envStr("DB_NAME", "credit_guardian"),
		DBUser:     envStr("DB_USER", ""),
		DBPassword: envStr("DB_PASSWORD", ""),
		DBMaxConns: envInt("DB_MAX_CONNS", 20),
		DBMinConns: envInt("DB_MIN_CONNS", 2),

		// Ledger
		LedgerRPCEndpoint: envStr("LEDGER_RPC_ENDPOINT", ""),
		VaultAddress:      envStr("VAULT_CONTRACT_ADDRESS", ""),
		ChainID:           envInt("CHAIN_ID", 1),
		GasLimit:          envInt("GAS_LIMIT", 350000),
		GasMultiplier:     envFloat("GAS_MULTIPLIER", 1.2),

		// Risk Parameters
		MaxLTVBps:               envInt("MAX_LTV_BPS", 7500),
		LiquidationThresholdBps: envInt("LIQUIDATION_THRESHOLD_BPS", 8000),

		// Monitoring
		MonitorIntervalSeconds: envInt("MONITOR_INTERVAL_SECONDS", 60),
		WatchedOwners:          envList("WATCHED_OWNERS"),
		KeeperEnabled:          envBool("KEEPER_ENABLED", true),
		RepayAsset:             envStr("REPAY_ASSET", "USDC"),

		// API
		APIPort: envInt("API_PORT", 8080),
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	if c.LedgerRPCEndpoint == "" {
		errs = append(errs, "LEDGER_RPC_ENDPOINT is required")
	}
	if c.VaultAddress == "" {
		errs = append(errs, "VAULT_CONTRACT_ADDRESS is required")
	}
	if c.PrivateKey == "" {
		errs = append(errs, "PRIVATE_KEY is required to submit ledger transactions")
	}
	if c.MaxLTVBps <= 0 || c.MaxLTVBps > 10000 {
		errs = append(errs, "MAX_LTV_BPS must be between 1 and 10000")
	}
	if c.LiquidationThresholdBps < c.MaxLTVBps || c.LiquidationThresholdBps > 10000 {
		errs = append(errs, "LIQUIDATION_THRESHOLD_BPS must be between MAX_LTV_BPS and 10000")
	}
	if len(c.WatchedOwners) == 0 {
		fmt.Println("[WARN] WATCHED_OWNERS not set — monitoring loop has nothing to watch")
	}
	if c.WebhookURL == "" {
		fmt.Println("[WARN] WEBHOOK_URL not set — alerts will only be logged and stored")
	}
	if c.APIKey == "" {
		fmt.Println("[WARN] API_KEY not set — REST API has no authentication")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) Print() {
	fmt.Println("=== Credit Guardian Configuration ===")
	fmt.Printf("Chain ID: %d\n", c.ChainID)
	fmt.Printf("Vault: %s\n", truncAddr(c.VaultAddress))
	fmt.Println("--------------------------------------")
	fmt.Println("Risk Parameters:")
	fmt.Printf("  Max LTV: %d bps\n", c.MaxLTVBps)
	fmt.Printf("  Liquidation Threshold: %d bps\n", c.LiquidationThresholdBps)
	fmt.Println("--------------------------------------")
	fmt.Println("Monitoring:")
	fmt.Printf("  Interval: %ds\n", c.MonitorIntervalSeconds)
	fmt.Printf("  Watched Positions: %d\n", len(c.WatchedOwners))
	fmt.Printf("  Keeper: %s\n", boolLabel(c.KeeperEnabled, "enabled (GAD + accrual cranks)", "disabled (alerts only)"))
	fmt.Printf("  Repay Asset: %s\n", c.RepayAsset)
	fmt.Println("--------------------------------------")
	fmt.Printf("Webhook: %s\n", boolLabel(c.WebhookURL != "", "configured", "not set"))
	fmt.Println("======================================")
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

// envList parses a comma-separated env var, trimming whitespace and dropping
// empty entries.
func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func truncAddr(addr string) string {
	if len(addr) > 10 {
		return addr[:10]
	}
	return addr
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
