package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/halcyonlabs/credit-guardian/internal/alerts"
	"github.com/halcyonlabs/credit-guardian/internal/health"
	"github.com/halcyonlabs/credit-guardian/internal/ledger"
	"github.com/halcyonlabs/credit-guardian/internal/models"
)

// ConfigStore abstracts agent config persistence so the controller can be
// tested without a real database.
type ConfigStore interface {
	Get(ctx context.Context, owner string) (*models.AgentConfig, error)
	Upsert(ctx context.Context, cfg *models.AgentConfig) (*models.AgentConfig, error)
	UpdateCounters(ctx context.Context, owner string, borrowedUSD, x402SpentUSD uint64, dayIndex int64) error
}

// PaymentStore persists x402 receipts and answers replay checks.
type PaymentStore interface {
	Exists(ctx context.Context, paymentID string) (bool, error)
	Record(ctx context.Context, p *models.X402Payment) (*models.X402Payment, error)
}

var (
	ErrNotConfigured        = errors.New("agent not configured for position")
	ErrDailyLimitExceeded   = errors.New("daily borrow limit exceeded")
	ErrUnhealthy            = errors.New("position unhealthy")
	ErrInsufficientHeadroom = errors.New("insufficient borrow headroom")
	ErrX402Disabled         = errors.New("x402 payments disabled")
	ErrX402LimitExceeded    = errors.New("x402 daily spend limit exceeded")
	ErrPaymentInvalid       = errors.New("payment request invalid or expired")
	ErrPaymentReplay        = errors.New("payment id already settled")
)

// Positions smaller than this are not worth a repay transaction.
const minAutoRepayUSD = 1 * models.USDMultiplier

// Controller enforces the per-position budget for autonomous actions. Every
// action runs under the position's lock so the check-then-debit sequence is
// atomic with respect to concurrent callers; counters are incremented only
// after the ledger confirms the action.
type Controller struct {
	ledger ledger.Ledger
	repo   ConfigStore
	x402   PaymentStore
	bus    *alerts.Bus
	params health.Params
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewController(lg ledger.Ledger, repo ConfigStore, x402 PaymentStore, bus *alerts.Bus, params health.Params) *Controller {
	return &Controller{
		ledger: lg,
		repo:   repo,
		x402:   x402,
		bus:    bus,
		params: params,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (c *Controller) positionLock(owner string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[owner]
	if !ok {
		l = &sync.Mutex{}
		c.locks[owner] = l
	}
	return l
}

// Configure validates and stores the agent budget, mirroring it to the
// ledger so on-chain enforcement matches ours.
func (c *Controller) Configure(ctx context.Context, cfg *models.AgentConfig) (*models.AgentConfig, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	lock := c.positionLock(cfg.Owner)
	lock.Lock()
	defer lock.Unlock()

	existing, err := c.repo.Get(ctx, cfg.Owner)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// Reconfiguration keeps the current spend window.
		cfg.DailyBorrowedUSD = existing.DailyBorrowedUSD
		cfg.X402SpentUSD = existing.X402SpentUSD
		cfg.DayIndex = existing.DayIndex
	} else {
		cfg.DayIndex = models.DayIndexAt(c.now())
	}

	if err := c.ledger.ConfigureAgent(ctx, cfg); err != nil {
		return nil, err
	}
	saved, err := c.repo.Upsert(ctx, cfg)
	if err != nil {
		return nil, err
	}
	fmt.Printf("[AGENT] Configured %s: borrow limit $%s/day, auto-repay %v @ %d bps\n",
		cfg.Owner, models.FormatUSD(cfg.DailyBorrowLimitUSD), cfg.AutoRepayEnabled, cfg.AutoRepayThresholdBps)
	return saved, nil
}

func validateConfig(cfg *models.AgentConfig) error {
	if cfg.Owner == "" {
		return models.Invalid("owner", "must not be empty")
	}
	if cfg.AutoRepayEnabled && cfg.AutoRepayThresholdBps == 0 {
		return models.Invalid("autoRepayThresholdBps", "required when auto-repay is enabled")
	}
	if cfg.AutoRepayThresholdBps > models.BpsDenominator {
		return models.Invalid("autoRepayThresholdBps", "must be at most %d", models.BpsDenominator)
	}
	if cfg.AlertThresholdBps > models.BpsDenominator {
		return models.Invalid("alertThresholdBps", "must be at most %d", models.BpsDenominator)
	}
	return nil
}

// Config returns the stored config with the spend window rolled to the
// current day. The roll is lazy: nothing is persisted until the next action.
func (c *Controller) Config(ctx context.Context, owner string) (*models.AgentConfig, error) {
	cfg, err := c.repo.Get(ctx, owner)
	if err != nil || cfg == nil {
		return cfg, err
	}
	c.resetIfNewDay(cfg)
	return cfg, nil
}

// resetIfNewDay rolls the daily counters when the calendar day index has
// advanced. Idempotent within a day.
func (c *Controller) resetIfNewDay(cfg *models.AgentConfig) {
	today := models.DayIndexAt(c.now())
	if cfg.DayIndex == today {
		return
	}
	cfg.DayIndex = today
	cfg.DailyBorrowedUSD = 0
	cfg.X402SpentUSD = 0
}

// AutonomousBorrow borrows amountUSD of a stable borrowable on behalf of the
// position, subject to the daily limit, position health, and LTV headroom.
// The counter moves only after the ledger confirms.
func (c *Controller) AutonomousBorrow(ctx context.Context, owner, asset string, amountUSD uint64) error {
	if amountUSD == 0 {
		return models.Invalid("amountUsd", "must be positive")
	}

	lock := c.positionLock(owner)
	lock.Lock()
	defer lock.Unlock()

	cfg, err := c.repo.Get(ctx, owner)
	if err != nil {
		return err
	}
	if cfg == nil {
		return ErrNotConfigured
	}
	c.resetIfNewDay(cfg)

	if amountUSD > cfg.BorrowRemainingUSD() {
		c.publish(models.Alert{
			Type:      models.AlertDailyLimitReached,
			Owner:     owner,
			Message:   fmt.Sprintf("borrow of $%s rejected: $%s remaining of $%s daily limit", models.FormatUSD(amountUSD), models.FormatUSD(cfg.BorrowRemainingUSD()), models.FormatUSD(cfg.DailyBorrowLimitUSD)),
			AmountUSD: amountUSD,
			Timestamp: c.now(),
		})
		return ErrDailyLimitExceeded
	}

	snap, err := c.ledger.Snapshot(ctx, owner)
	if err != nil {
		return err
	}
	status := health.Evaluate(snap, c.params, nil)
	if !status.Healthy {
		return ErrUnhealthy
	}
	if amountUSD > status.AvailableToBorrowUSD {
		return ErrInsufficientHeadroom
	}

	if err := c.ledger.Borrow(ctx, asset, amountUSD); err != nil {
		return err
	}

	cfg.DailyBorrowedUSD += amountUSD
	if err := c.repo.UpdateCounters(ctx, owner, cfg.DailyBorrowedUSD, cfg.X402SpentUSD, cfg.DayIndex); err != nil {
		fmt.Printf("[AGENT] Failed to persist borrow counter for %s: %v\n", owner, err)
	}
	fmt.Printf("[AGENT] Borrowed $%s %s for %s ($%s remaining today)\n",
		models.FormatUSD(amountUSD), asset, owner, models.FormatUSD(cfg.BorrowRemainingUSD()))

	if cfg.BorrowRemainingUSD() == 0 {
		c.publish(models.Alert{
			Type:      models.AlertDailyLimitReached,
			Owner:     owner,
			Message:   fmt.Sprintf("daily borrow limit of $%s fully used", models.FormatUSD(cfg.DailyBorrowLimitUSD)),
			AmountUSD: amountUSD,
			Timestamp: c.now(),
		})
	}
	return nil
}

// AutonomousRepay repays debt for the position. amountUSD of zero means
// "bring LTV back to target": the target sits 500 bps under the configured
// auto-repay threshold, and amounts under a dollar are skipped as dust.
// Returns the amount actually submitted.
func (c *Controller) AutonomousRepay(ctx context.Context, owner, asset string, amountUSD uint64) (uint64, error) {
	lock := c.positionLock(owner)
	lock.Lock()
	defer lock.Unlock()

	cfg, err := c.repo.Get(ctx, owner)
	if err != nil {
		return 0, err
	}
	if cfg == nil {
		return 0, ErrNotConfigured
	}

	snap, err := c.ledger.Snapshot(ctx, owner)
	if err != nil {
		return 0, err
	}
	debtUSD := snap.DebtValueUSD()
	if debtUSD == 0 {
		return 0, nil
	}

	repayUSD := amountUSD
	if repayUSD == 0 {
		repayUSD = repayToTarget(snap.CollateralValueUSD(), debtUSD, cfg.AutoRepayThresholdBps)
		if repayUSD < minAutoRepayUSD {
			return 0, nil
		}
	}
	if repayUSD > debtUSD {
		repayUSD = debtUSD
	}

	status := health.Evaluate(snap, c.params, nil)
	c.publish(models.Alert{
		Type:      models.AlertAutoRepay,
		Owner:     owner,
		Message:   fmt.Sprintf("repaying $%s %s at LTV %s", models.FormatUSD(repayUSD), asset, models.FormatBpsPercent(status.LTVBps)),
		LTVBps:    status.LTVBps,
		AmountUSD: repayUSD,
		Timestamp: c.now(),
	})

	if err := c.ledger.Repay(ctx, asset, repayUSD); err != nil {
		return 0, err
	}
	fmt.Printf("[AGENT] Repaid $%s %s for %s\n", models.FormatUSD(repayUSD), asset, owner)
	return repayUSD, nil
}

// repayToTarget computes how much debt must go to bring LTV down to
// thresholdBps minus a 500 bps safety margin.
func repayToTarget(collateralUSD, debtUSD, thresholdBps uint64) uint64 {
	targetBps := uint64(0)
	if thresholdBps > 500 {
		targetBps = thresholdBps - 500
	}
	targetDebt := health.MaxAdditionalBorrow(collateralUSD, 0, targetBps)
	if debtUSD <= targetDebt {
		return 0
	}
	return debtUSD - targetDebt
}

// CanMakePayment is the advisory pre-check for an x402 payment. It holds no
// lock and reserves nothing; SettlePayment re-checks under the lock.
func (c *Controller) CanMakePayment(ctx context.Context, owner string, amountUSD uint64) (bool, error) {
	cfg, err := c.repo.Get(ctx, owner)
	if err != nil {
		return false, err
	}
	if cfg == nil {
		return false, ErrNotConfigured
	}
	if !cfg.X402Enabled {
		return false, ErrX402Disabled
	}
	c.resetIfNewDay(cfg)
	if cfg.X402SpentUSD+amountUSD > cfg.X402DailyLimitUSD {
		return false, ErrX402LimitExceeded
	}
	return true, nil
}

// SettlePayment pays an x402 payment demand from the position's balance,
// borrowing the shortfall when autoBorrow is set. Replayed payment IDs are
// rejected before anything is submitted.
func (c *Controller) SettlePayment(ctx context.Context, owner string, req *models.X402PaymentRequest, autoBorrow bool) (*models.X402Payment, error) {
	if !req.Valid(c.now()) {
		return nil, ErrPaymentInvalid
	}

	lock := c.positionLock(owner)
	lock.Lock()
	defer lock.Unlock()

	cfg, err := c.repo.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrNotConfigured
	}
	if !cfg.X402Enabled {
		return nil, ErrX402Disabled
	}
	c.resetIfNewDay(cfg)
	if cfg.X402SpentUSD+req.AmountUSD > cfg.X402DailyLimitUSD {
		return nil, ErrX402LimitExceeded
	}

	settled, err := c.x402.Exists(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if settled {
		return nil, ErrPaymentReplay
	}

	if err := c.ledger.Pay(ctx, req.Recipient, req.Asset, req.AmountUSD, req.PaymentID, autoBorrow); err != nil {
		return nil, err
	}

	cfg.X402SpentUSD += req.AmountUSD
	if err := c.repo.UpdateCounters(ctx, owner, cfg.DailyBorrowedUSD, cfg.X402SpentUSD, cfg.DayIndex); err != nil {
		fmt.Printf("[AGENT] Failed to persist x402 counter for %s: %v\n", owner, err)
	}

	receipt, err := c.x402.Record(ctx, &models.X402Payment{
		Owner:     owner,
		Recipient: req.Recipient,
		AmountUSD: req.AmountUSD,
		PaymentID: req.PaymentID,
		Borrowed:  autoBorrow,
		PaidAt:    c.now(),
	})
	if err != nil {
		// Payment went through; losing the receipt row is recoverable.
		fmt.Printf("[AGENT] Failed to record x402 receipt %s: %v\n", req.PaymentID, err)
		return &models.X402Payment{
			Owner: owner, Recipient: req.Recipient, AmountUSD: req.AmountUSD,
			PaymentID: req.PaymentID, Borrowed: autoBorrow, PaidAt: c.now(),
		}, nil
	}
	fmt.Printf("[AGENT] Paid $%s to %s (payment %s)\n", models.FormatUSD(req.AmountUSD), req.Recipient, req.PaymentID)
	return receipt, nil
}

func (c *Controller) publish(a models.Alert) {
	if c.bus != nil {
		c.bus.Publish(a)
	}
}
