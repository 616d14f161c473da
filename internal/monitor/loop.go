package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/halcyonlabs/credit-guardian/internal/agent"
	"github.com/halcyonlabs/credit-guardian/internal/alerts"
	"github.com/halcyonlabs/credit-guardian/internal/gad"
	"github.com/halcyonlabs/credit-guardian/internal/health"
	"github.com/halcyonlabs/credit-guardian/internal/ledger"
	"github.com/halcyonlabs/credit-guardian/internal/models"
)

// How stale a position's accrued interest may get before the monitor cranks
// accrual itself, and how long between repeated LTV warnings for the same
// position.
const (
	defaultAccrualMaxAge = 1 * time.Hour
	warningCooldown      = 10 * time.Minute
	tickTimeout          = 90 * time.Second
)

type Config struct {
	Interval      time.Duration // e.g. 60*time.Second
	Owners        []string      // positions to watch
	KeeperEnabled bool          // run GAD and accrual cranks, not just alerts
	RepayAsset    string        // borrowable used for auto-repay, e.g. "USDC"
	AccrualMaxAge time.Duration
}

// Monitor drives the periodic risk check over all watched positions. One
// tick runs at a time; if a tick overruns the interval the next one is
// skipped rather than stacked.
type Monitor struct {
	ledger ledger.Ledger
	agent  *agent.Controller
	gad    *gad.Controller
	bus    *alerts.Bus
	params health.Params
	cfg    Config

	mu           sync.Mutex
	running      bool
	inTick       bool
	stopCh       chan struct{}
	lastWarn     map[string]time.Time
	lastGadAlert map[string]time.Time
}

func New(lg ledger.Ledger, ag *agent.Controller, gd *gad.Controller, bus *alerts.Bus, params health.Params, cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.RepayAsset == "" {
		cfg.RepayAsset = "USDC"
	}
	if cfg.AccrualMaxAge <= 0 {
		cfg.AccrualMaxAge = defaultAccrualMaxAge
	}

	// Count every alert that goes over the bus, whoever published it.
	// Subscribed once here, not in Start: the bus has no unsubscribe, and a
	// Stop/Start cycle must not double-count.
	bus.Subscribe(func(a models.Alert) {
		alertsTotal.WithLabelValues(string(a.Type)).Inc()
	})

	return &Monitor{
		ledger:       lg,
		agent:        ag,
		gad:          gd,
		bus:          bus,
		params:       params,
		cfg:          cfg,
		lastWarn:     make(map[string]time.Time),
		lastGadAlert: make(map[string]time.Time),
	}
}

func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		fmt.Println("[MONITOR] Already running")
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	go func() {
		m.runTick()

		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.runTick()
			}
		}
	}()

	fmt.Printf("[MONITOR] Started (every %s, %d positions, keeper=%v)\n",
		m.cfg.Interval, len(m.cfg.Owners), m.cfg.KeeperEnabled)
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.stopCh)
	m.running = false
	fmt.Println("[MONITOR] Stopped")
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// TickNow runs one check pass outside the normal schedule.
func (m *Monitor) TickNow(ctx context.Context) {
	m.tick(ctx)
}

func (m *Monitor) runTick() {
	m.mu.Lock()
	if m.inTick {
		m.mu.Unlock()
		fmt.Println("[MONITOR] Previous tick still in flight, skipping")
		return
	}
	m.inTick = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inTick = false
		m.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()
	m.tick(ctx)
}

func (m *Monitor) tick(ctx context.Context) {
	for _, owner := range m.cfg.Owners {
		if ctx.Err() != nil {
			return
		}
		m.checkPosition(ctx, owner)
	}
	ticksTotal.Inc()
}

func (m *Monitor) checkPosition(ctx context.Context, owner string) {
	snap, err := m.ledger.Snapshot(ctx, owner)
	if err != nil {
		tickErrorsTotal.WithLabelValues("snapshot").Inc()
		fmt.Printf("[MONITOR] Snapshot failed for %s: %v\n", owner, err)
		return
	}

	agentCfg, err := m.agent.Config(ctx, owner)
	if err != nil {
		tickErrorsTotal.WithLabelValues("agent_config").Inc()
		fmt.Printf("[MONITOR] Agent config load failed for %s: %v\n", owner, err)
	}
	gadCfg, err := m.gad.Config(ctx, owner)
	if err != nil {
		tickErrorsTotal.WithLabelValues("gad_config").Inc()
		fmt.Printf("[MONITOR] GAD config load failed for %s: %v\n", owner, err)
	}

	status := health.Evaluate(snap, m.params, gadCfg)
	m.observe(owner, status)

	// LTVUndefined (debt with no collateral) compares above any threshold,
	// so the highest-risk positions always warn.
	if agentCfg != nil && agentCfg.AlertThresholdBps > 0 && status.LTVBps >= agentCfg.AlertThresholdBps {
		m.warnLTV(owner, status)
	}

	if status.GadActive {
		m.alertGadActive(owner, status)
	}

	if agentCfg != nil && agentCfg.AutoRepayEnabled &&
		status.LTVBps >= agentCfg.AutoRepayThresholdBps && status.DebtValueUSD > 0 {
		repaid, err := m.agent.AutonomousRepay(ctx, owner, m.cfg.RepayAsset, 0)
		if err != nil {
			tickErrorsTotal.WithLabelValues("auto_repay").Inc()
			fmt.Printf("[MONITOR] Auto-repay failed for %s: %v\n", owner, err)
		} else if repaid > 0 {
			autoRepaysTotal.Inc()
		}
	}

	if m.cfg.KeeperEnabled {
		m.crankKeeper(ctx, owner, snap)
	}
}

func (m *Monitor) crankKeeper(ctx context.Context, owner string, snap *models.Snapshot) {
	res, err := m.gad.Crank(ctx, snap)
	if err != nil {
		tickErrorsTotal.WithLabelValues("gad_crank").Inc()
		fmt.Printf("[MONITOR] GAD crank failed for %s: %v\n", owner, err)
	} else if res.Executed {
		gadStepsTotal.Inc()
	}

	if snap.DebtValueUSD() > 0 && time.Since(snap.Position.LastUpdate) > m.cfg.AccrualMaxAge {
		if err := m.ledger.AccrueInterest(ctx, owner); err != nil {
			tickErrorsTotal.WithLabelValues("accrual").Inc()
			fmt.Printf("[MONITOR] Interest accrual failed for %s: %v\n", owner, err)
		} else {
			accrualCranksTotal.Inc()
		}
	}
}

func (m *Monitor) warnLTV(owner string, status models.HealthStatus) {
	m.mu.Lock()
	last, warned := m.lastWarn[owner]
	if warned && time.Since(last) < warningCooldown {
		m.mu.Unlock()
		return
	}
	m.lastWarn[owner] = time.Now()
	m.mu.Unlock()

	m.bus.Publish(models.Alert{
		Type:  models.AlertLTVWarning,
		Owner: owner,
		Message: fmt.Sprintf("LTV %s (debt $%s against $%s collateral)",
			ltvText(status.LTVBps),
			models.FormatUSD(status.DebtValueUSD),
			models.FormatUSD(status.CollateralValueUSD)),
		LTVBps:    status.LTVBps,
		Timestamp: time.Now(),
	})
}

// alertGadActive reports that a position's LTV has crossed its deleveraging
// start threshold, whether or not this instance runs the keeper crank.
func (m *Monitor) alertGadActive(owner string, status models.HealthStatus) {
	m.mu.Lock()
	last, seen := m.lastGadAlert[owner]
	if seen && time.Since(last) < warningCooldown {
		m.mu.Unlock()
		return
	}
	m.lastGadAlert[owner] = time.Now()
	m.mu.Unlock()

	m.bus.Publish(models.Alert{
		Type:      models.AlertGadTriggered,
		Owner:     owner,
		Message:   fmt.Sprintf("Deleveraging active at LTV %s", ltvText(status.LTVBps)),
		LTVBps:    status.LTVBps,
		Timestamp: time.Now(),
	})
}

func ltvText(ltvBps uint64) string {
	if ltvBps == health.LTVUndefined {
		return "undefined"
	}
	return models.FormatBpsPercent(ltvBps)
}

func (m *Monitor) observe(owner string, status models.HealthStatus) {
	if status.LTVBps != health.LTVUndefined {
		positionLTVBps.WithLabelValues(owner).Set(float64(status.LTVBps))
	}
	positionDebtUSD.WithLabelValues(owner).Set(float64(status.DebtValueUSD) / float64(models.USDMultiplier))
}
