package ledger

import (
	"context"
	"fmt"

	"github.com/halcyonlabs/credit-guardian/internal/models"
)

// Reader is the view side of the ledger contract: finalized balances,
// reputation counters, and current prices. Staleness is the ledger's
// contract, not ours.
type Reader interface {
	Snapshot(ctx context.Context, owner string) (*models.Snapshot, error)
}

// Writer submits state-changing actions. Every action either fully succeeds
// or fully fails; callers must treat any call as potentially failing and
// never assume success before it returns nil.
type Writer interface {
	Deposit(ctx context.Context, asset string, amount uint64) error
	Withdraw(ctx context.Context, asset string, amount uint64) error
	Borrow(ctx context.Context, asset string, amount uint64) error
	Repay(ctx context.Context, asset string, amount uint64) error
	ConfigureAgent(ctx context.Context, cfg *models.AgentConfig) error
	ConfigureGad(ctx context.Context, cfg *models.GadConfig) error
	// ExecuteGadStep sells stepSizeBps of the position's collateral value and
	// applies the proceeds to its debt. Permissionless keeper entry point.
	ExecuteGadStep(ctx context.Context, owner string, stepSizeBps uint64) error
	// AccrueInterest updates the position's accrued interest. Permissionless.
	AccrueInterest(ctx context.Context, owner string) error
	// Pay settles an x402 payment from the agent's balance, borrowing the
	// shortfall when autoBorrow is set.
	Pay(ctx context.Context, recipient, asset string, amount uint64, paymentID string, autoBorrow bool) error
}

// Ledger is the full external interface the control core depends on.
type Ledger interface {
	Reader
	Writer
}

// CallError wraps a ledger call that failed or timed out after retries.
type CallError struct {
	Op  string
	Err error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

func wrapCall(op string, err error) error {
	if err == nil {
		return nil
	}
	return &CallError{Op: op, Err: err}
}
