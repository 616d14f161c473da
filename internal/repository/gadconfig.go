package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halcyonlabs/credit-guardian/internal/models"
)

type GadConfigRepo struct {
	pool *pgxpool.Pool
}

func NewGadConfigRepo(pool *pgxpool.Pool) *GadConfigRepo {
	return &GadConfigRepo{pool: pool}
}

// Get returns the stored config for an owner, or nil when none exists.
func (r *GadConfigRepo) Get(ctx context.Context, owner string) (*models.GadConfig, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT * FROM gad_config WHERE owner = $1`,
		owner,
	)
	cfg, err := scanGadConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return cfg, nil
}

// Upsert writes settings only. Execution stats survive reconfiguration; they
// are seeded zero on first insert and left alone on update.
func (r *GadConfigRepo) Upsert(ctx context.Context, cfg *models.GadConfig) (*models.GadConfig, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO gad_config
		 (owner, enabled, start_threshold_bps, step_size_bps, min_interval_seconds,
		  last_execution, steps_executed, deleveraged_usd, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,NULL,0,0,NOW(),NOW())
		 ON CONFLICT (owner) DO UPDATE SET
		   enabled              = EXCLUDED.enabled,
		   start_threshold_bps  = EXCLUDED.start_threshold_bps,
		   step_size_bps        = EXCLUDED.step_size_bps,
		   min_interval_seconds = EXCLUDED.min_interval_seconds,
		   updated_at           = NOW()
		 RETURNING *`,
		cfg.Owner, cfg.Enabled, cfg.StartThresholdBps, cfg.StepSizeBps, cfg.MinIntervalSeconds,
	)
	return scanGadConfig(row)
}

// RecordStep accumulates an executed deleveraging step.
func (r *GadConfigRepo) RecordStep(ctx context.Context, owner string, deleveragedUSD uint64, executedAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE gad_config
		 SET steps_executed = steps_executed + 1,
		     deleveraged_usd = deleveraged_usd + $2,
		     last_execution = $3,
		     updated_at = NOW()
		 WHERE owner = $1`,
		owner, deleveragedUSD, executedAt,
	)
	return err
}

// --- scan helpers ---

func scanGadConfig(row scannable) (*models.GadConfig, error) {
	var c models.GadConfig
	var lastExec *time.Time
	err := row.Scan(
		&c.Owner, &c.Enabled, &c.StartThresholdBps, &c.StepSizeBps, &c.MinIntervalSeconds,
		&lastExec, &c.StepsExecuted, &c.DeleveragedUSD, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastExec != nil {
		c.LastExecution = *lastExec
	}
	return &c, nil
}
