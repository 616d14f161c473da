package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halcyonlabs/credit-guardian/internal/models"
)

type AgentConfigRepo struct {
	pool *pgxpool.Pool
}

func NewAgentConfigRepo(pool *pgxpool.Pool) *AgentConfigRepo {
	return &AgentConfigRepo{pool: pool}
}

// Get returns the stored config for an owner, or nil when none exists.
func (r *AgentConfigRepo) Get(ctx context.Context, owner string) (*models.AgentConfig, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT * FROM agent_config WHERE owner = $1`,
		owner,
	)
	cfg, err := scanAgentConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return cfg, nil
}

// Upsert writes the full config. Counters are included: the caller holds the
// position lock, so the row it writes is the row it read.
func (r *AgentConfigRepo) Upsert(ctx context.Context, cfg *models.AgentConfig) (*models.AgentConfig, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO agent_config
		 (owner, daily_borrow_limit_usd, daily_borrowed_usd, day_index,
		  auto_repay_enabled, auto_repay_threshold_bps,
		  x402_enabled, x402_daily_limit_usd, x402_spent_usd,
		  alert_threshold_bps, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW())
		 ON CONFLICT (owner) DO UPDATE SET
		   daily_borrow_limit_usd   = EXCLUDED.daily_borrow_limit_usd,
		   daily_borrowed_usd       = EXCLUDED.daily_borrowed_usd,
		   day_index                = EXCLUDED.day_index,
		   auto_repay_enabled       = EXCLUDED.auto_repay_enabled,
		   auto_repay_threshold_bps = EXCLUDED.auto_repay_threshold_bps,
		   x402_enabled             = EXCLUDED.x402_enabled,
		   x402_daily_limit_usd     = EXCLUDED.x402_daily_limit_usd,
		   x402_spent_usd           = EXCLUDED.x402_spent_usd,
		   alert_threshold_bps      = EXCLUDED.alert_threshold_bps,
		   updated_at               = NOW()
		 RETURNING *`,
		cfg.Owner, cfg.DailyBorrowLimitUSD, cfg.DailyBorrowedUSD, cfg.DayIndex,
		cfg.AutoRepayEnabled, cfg.AutoRepayThresholdBps,
		cfg.X402Enabled, cfg.X402DailyLimitUSD, cfg.X402SpentUSD,
		cfg.AlertThresholdBps,
	)
	return scanAgentConfig(row)
}

// UpdateCounters persists just the windowed spend counters after a
// successful action.
func (r *AgentConfigRepo) UpdateCounters(ctx context.Context, owner string, borrowedUSD, x402SpentUSD uint64, dayIndex int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE agent_config
		 SET daily_borrowed_usd = $2, x402_spent_usd = $3, day_index = $4, updated_at = NOW()
		 WHERE owner = $1`,
		owner, borrowedUSD, x402SpentUSD, dayIndex,
	)
	return err
}

// --- scan helpers ---

func scanAgentConfig(row scannable) (*models.AgentConfig, error) {
	var c models.AgentConfig
	err := row.Scan(
		&c.Owner, &c.DailyBorrowLimitUSD, &c.DailyBorrowedUSD, &c.DayIndex,
		&c.AutoRepayEnabled, &c.AutoRepayThresholdBps,
		&c.X402Enabled, &c.X402DailyLimitUSD, &c.X402SpentUSD,
		&c.AlertThresholdBps, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
