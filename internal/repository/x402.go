package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halcyonlabs/credit-guardian/internal/models"
)

type X402PaymentRepo struct {
	pool *pgxpool.Pool
}

func NewX402PaymentRepo(pool *pgxpool.Pool) *X402PaymentRepo {
	return &X402PaymentRepo{pool: pool}
}

// Record stores a settled payment receipt.
func (r *X402PaymentRepo) Record(ctx context.Context, p *models.X402Payment) (*models.X402Payment, error) {
	ts := p.PaidAt
	if ts.IsZero() {
		ts = time.Now()
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO x402_payments
		 (owner, recipient, amount_usd, payment_id, borrowed, paid_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 RETURNING *`,
		p.Owner, p.Recipient, p.AmountUSD, p.PaymentID, p.Borrowed, ts,
	)
	return scanX402Payment(row)
}

// Exists reports whether a payment ID was already settled. The ledger rejects
// replays too; this check just avoids burning a transaction on one.
func (r *X402PaymentRepo) Exists(ctx context.Context, paymentID string) (bool, error) {
	var found bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM x402_payments WHERE payment_id = $1)`,
		paymentID,
	).Scan(&found)
	return found, err
}

// GetByOwner returns the most recent payments for one position.
func (r *X402PaymentRepo) GetByOwner(ctx context.Context, owner string, limit int) ([]models.X402Payment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT * FROM x402_payments WHERE owner = $1 ORDER BY paid_at DESC LIMIT $2`,
		owner, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectX402Payments(rows)
}

// SpentSince sums payments for an owner after a cutoff. Used to reconcile
// the in-memory spend window after a restart.
func (r *X402PaymentRepo) SpentSince(ctx context.Context, owner string, since time.Time) (uint64, error) {
	var total *uint64
	err := r.pool.QueryRow(ctx,
		`SELECT SUM(amount_usd) FROM x402_payments WHERE owner = $1 AND paid_at >= $2`,
		owner, since,
	).Scan(&total)
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// --- scan helpers ---

func scanX402Payment(row scannable) (*models.X402Payment, error) {
	var p models.X402Payment
	err := row.Scan(
		&p.ID, &p.Owner, &p.Recipient, &p.AmountUSD, &p.PaymentID, &p.Borrowed, &p.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectX402Payments(rows rowsIter) ([]models.X402Payment, error) {
	var out []models.X402Payment
	for rows.Next() {
		var p models.X402Payment
		if err := rows.Scan(
			&p.ID, &p.Owner, &p.Recipient, &p.AmountUSD, &p.PaymentID, &p.Borrowed, &p.PaidAt,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
