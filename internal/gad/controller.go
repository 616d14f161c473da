package gad

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/halcyonlabs/credit-guardian/internal/alerts"
	"github.com/halcyonlabs/credit-guardian/internal/health"
	"github.com/halcyonlabs/credit-guardian/internal/ledger"
	"github.com/halcyonlabs/credit-guardian/internal/models"
)

// ConfigStore abstracts GAD config persistence so the controller can be
// tested without a real database.
type ConfigStore interface {
	Get(ctx context.Context, owner string) (*models.GadConfig, error)
	Upsert(ctx context.Context, cfg *models.GadConfig) (*models.GadConfig, error)
	RecordStep(ctx context.Context, owner string, deleveragedUSD uint64, executedAt time.Time) error
}

// Controller runs gradual auto-deleveraging: when a position's LTV crosses
// its configured threshold, collateral is sold off in small steps, rate
// limited by the configured interval, until the position recovers. Proceeds
// reduce the oldest debt entry first, interest before principal; that
// ordering lives in the ledger, the controller only sizes and times steps.
type Controller struct {
	ledger ledger.Ledger
	repo   ConfigStore
	bus    *alerts.Bus
	now    func() time.Time
}

func NewController(lg ledger.Ledger, repo ConfigStore, bus *alerts.Bus) *Controller {
	return &Controller{
		ledger: lg,
		repo:   repo,
		bus:    bus,
		now:    time.Now,
	}
}

// Configure validates settings against the allowed ranges and stores them,
// mirroring to the ledger. Execution stats are untouched on reconfiguration.
func (c *Controller) Configure(ctx context.Context, cfg *models.GadConfig) (*models.GadConfig, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	if err := c.ledger.ConfigureGad(ctx, cfg); err != nil {
		return nil, err
	}
	saved, err := c.repo.Upsert(ctx, cfg)
	if err != nil {
		return nil, err
	}
	fmt.Printf("[GAD] Configured %s: enabled=%v threshold=%d bps step=%d bps interval=%ds\n",
		cfg.Owner, cfg.Enabled, cfg.StartThresholdBps, cfg.StepSizeBps, cfg.MinIntervalSeconds)
	return saved, nil
}

func validateConfig(cfg *models.GadConfig) error {
	if cfg.Owner == "" {
		return models.Invalid("owner", "must not be empty")
	}
	if cfg.StartThresholdBps < models.GadMinStartThresholdBps || cfg.StartThresholdBps > models.GadMaxStartThresholdBps {
		return models.Invalid("startThresholdBps", "must be between %d and %d", models.GadMinStartThresholdBps, models.GadMaxStartThresholdBps)
	}
	if cfg.StepSizeBps < models.GadMinStepSizeBps || cfg.StepSizeBps > models.GadMaxStepSizeBps {
		return models.Invalid("stepSizeBps", "must be between %d and %d", models.GadMinStepSizeBps, models.GadMaxStepSizeBps)
	}
	if cfg.MinIntervalSeconds < models.GadMinIntervalSeconds || cfg.MinIntervalSeconds > models.GadMaxIntervalSeconds {
		return models.Invalid("minIntervalSeconds", "must be between %d and %d", models.GadMinIntervalSeconds, models.GadMaxIntervalSeconds)
	}
	return nil
}

// Config returns the stored config for an owner, or nil when none exists.
func (c *Controller) Config(ctx context.Context, owner string) (*models.GadConfig, error) {
	return c.repo.Get(ctx, owner)
}

// CrankResult reports what a crank did, or why it did nothing.
type CrankResult struct {
	Executed bool
	Reason   string
	StepUSD  uint64
	LTVBps   uint64
}

// Crank evaluates one position and executes at most one deleveraging step.
// Permissionless by design: any keeper may call it, the config and interval
// gate what actually happens.
func (c *Controller) Crank(ctx context.Context, snap *models.Snapshot) (*CrankResult, error) {
	owner := snap.Position.Owner

	cfg, err := c.repo.Get(ctx, owner)
	if err != nil {
		return nil, err
	}

	collateralUSD := snap.CollateralValueUSD()
	debtUSD := snap.DebtValueUSD()
	ltv := health.LTVBps(collateralUSD, debtUSD)
	res := &CrankResult{LTVBps: ltv}

	switch {
	case cfg.StateFor(ltv) == models.GadDisabled:
		res.Reason = "disabled"
		return res, nil
	case debtUSD == 0:
		res.Reason = "no debt"
		return res, nil
	case collateralUSD == 0:
		res.Reason = "no collateral to sell"
		return res, nil
	case cfg.StateFor(ltv) == models.GadArmed:
		res.Reason = "below threshold"
		return res, nil
	case !cfg.IntervalElapsed(c.now()):
		res.Reason = "interval not elapsed"
		return res, nil
	}

	stepUSD := stepValueUSD(collateralUSD, cfg.StepSizeBps)
	if stepUSD > debtUSD {
		stepUSD = debtUSD
	}
	if stepUSD == 0 {
		res.Reason = "step rounds to zero"
		return res, nil
	}

	if err := c.ledger.ExecuteGadStep(ctx, owner, cfg.StepSizeBps); err != nil {
		return nil, err
	}

	executedAt := c.now()
	if err := c.repo.RecordStep(ctx, owner, stepUSD, executedAt); err != nil {
		fmt.Printf("[GAD] Failed to record step for %s: %v\n", owner, err)
	}
	fmt.Printf("[GAD] Step executed for %s: sold ~$%s of collateral at LTV %s (step %d of lifetime)\n",
		owner, models.FormatUSD(stepUSD), models.FormatBpsPercent(ltv), cfg.StepsExecuted+1)

	if c.bus != nil {
		c.bus.Publish(models.Alert{
			Type:      models.AlertGadTriggered,
			Owner:     owner,
			Message:   fmt.Sprintf("deleveraging step: ~$%s of collateral sold at LTV %s", models.FormatUSD(stepUSD), models.FormatBpsPercent(ltv)),
			LTVBps:    ltv,
			AmountUSD: stepUSD,
			Timestamp: executedAt,
		})
	}

	res.Executed = true
	res.StepUSD = stepUSD
	return res, nil
}

// stepValueUSD sizes one step as stepSizeBps of current collateral value.
func stepValueUSD(collateralUSD, stepSizeBps uint64) uint64 {
	v := new(big.Int).SetUint64(collateralUSD)
	v.Mul(v, new(big.Int).SetUint64(stepSizeBps))
	v.Div(v, big.NewInt(models.BpsDenominator))
	if !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}
