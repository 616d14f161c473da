package repository

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halcyonlabs/credit-guardian/internal/models"
)

type AlertRepo struct {
	pool *pgxpool.Pool
}

func NewAlertRepo(pool *pgxpool.Pool) *AlertRepo {
	return &AlertRepo{pool: pool}
}

func (r *AlertRepo) Record(ctx context.Context, a *models.Alert) (*models.Alert, error) {
	ts := a.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	// The undefined-LTV sentinel (MaxUint64) does not fit a Postgres bigint;
	// clamp so the highest-risk alerts are never lost to an insert error.
	ltv := a.LTVBps
	if ltv > math.MaxInt64 {
		ltv = math.MaxInt64
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO alert_history
		 (type, owner, message, ltv_bps, amount_usd, timestamp)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 RETURNING *`,
		a.Type, a.Owner, a.Message, ltv, a.AmountUSD, ts,
	)
	return scanAlert(row)
}

// Listen adapts the repo to the alert bus so every published alert lands in
// history. Persistence failures are swallowed: history is best effort.
func (r *AlertRepo) Listen(a models.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := r.Record(ctx, &a); err != nil {
		// logged by the bus caller's context; nothing else to do
		_ = err
	}
}

// GetByOwner returns the most recent alerts for one position.
// If alertType is non-nil, filters by type.
func (r *AlertRepo) GetByOwner(ctx context.Context, owner string, limit int, alertType *models.AlertType) ([]models.Alert, error) {
	query := `SELECT * FROM alert_history WHERE owner = $1`
	args := []any{owner}
	if alertType != nil {
		args = append(args, *alertType)
		query += ` AND type = $2`
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// GetRecent returns the most recent alerts across all positions.
func (r *AlertRepo) GetRecent(ctx context.Context, limit int) ([]models.Alert, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT * FROM alert_history ORDER BY timestamp DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// CountSince counts alerts for an owner after a cutoff, used to rate-limit
// repeated warnings.
func (r *AlertRepo) CountSince(ctx context.Context, owner string, alertType models.AlertType, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM alert_history WHERE owner = $1 AND type = $2 AND timestamp >= $3`,
		owner, alertType, since,
	).Scan(&count)
	return count, err
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanAlert(row scannable) (*models.Alert, error) {
	var a models.Alert
	err := row.Scan(
		&a.ID, &a.Type, &a.Owner, &a.Message, &a.LTVBps, &a.AmountUSD, &a.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAlerts(rows rowsIter) ([]models.Alert, error) {
	var out []models.Alert
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(
			&a.ID, &a.Type, &a.Owner, &a.Message, &a.LTVBps, &a.AmountUSD, &a.Timestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
