package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/halcyonlabs/credit-guardian/internal/agent"
	"github.com/halcyonlabs/credit-guardian/internal/alerts"
	"github.com/halcyonlabs/credit-guardian/internal/gad"
	"github.com/halcyonlabs/credit-guardian/internal/health"
	"github.com/halcyonlabs/credit-guardian/internal/models"
)

const (
	usd       = models.USDMultiplier
	testOwner = "0x1111111111111111111111111111111111111111"
)

var testParams = health.Params{MaxLTVBps: 7500, LiquidationThresholdBps: 8000}

// --- mocks ---

type mockLedger struct {
	mu       sync.Mutex
	snapshot *models.Snapshot
	repaid   []uint64
	steps    int
	accruals int
}

func (m *mockLedger) Snapshot(context.Context, string) (*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot, nil
}

func (m *mockLedger) Deposit(context.Context, string, uint64) error             { return nil }
func (m *mockLedger) Withdraw(context.Context, string, uint64) error            { return nil }
func (m *mockLedger) Borrow(context.Context, string, uint64) error              { return nil }
func (m *mockLedger) ConfigureAgent(context.Context, *models.AgentConfig) error { return nil }
func (m *mockLedger) ConfigureGad(context.Context, *models.GadConfig) error     { return nil }
func (m *mockLedger) Pay(context.Context, string, string, uint64, string, bool) error {
	return nil
}

func (m *mockLedger) Repay(_ context.Context, _ string, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repaid = append(m.repaid, amount)
	return nil
}

func (m *mockLedger) ExecuteGadStep(context.Context, string, uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps++
	return nil
}

func (m *mockLedger) AccrueInterest(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accruals++
	return nil
}

type memAgentStore struct {
	mu  sync.Mutex
	cfg *models.AgentConfig
}

func (s *memAgentStore) Get(context.Context, string) (*models.AgentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return nil, nil
	}
	c := *s.cfg
	return &c, nil
}

func (s *memAgentStore) Upsert(_ context.Context, cfg *models.AgentConfig) (*models.AgentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cfg
	s.cfg = &c
	return cfg, nil
}

func (s *memAgentStore) UpdateCounters(_ context.Context, _ string, borrowedUSD, x402SpentUSD uint64, dayIndex int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg != nil {
		s.cfg.DailyBorrowedUSD = borrowedUSD
		s.cfg.X402SpentUSD = x402SpentUSD
		s.cfg.DayIndex = dayIndex
	}
	return nil
}

type memPaymentStore struct{}

func (memPaymentStore) Exists(context.Context, string) (bool, error) { return false, nil }
func (memPaymentStore) Record(_ context.Context, p *models.X402Payment) (*models.X402Payment, error) {
	return p, nil
}

type memGadStore struct {
	mu  sync.Mutex
	cfg *models.GadConfig
}

func (s *memGadStore) Get(context.Context, string) (*models.GadConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return nil, nil
	}
	c := *s.cfg
	return &c, nil
}

func (s *memGadStore) Upsert(_ context.Context, cfg *models.GadConfig) (*models.GadConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cfg
	s.cfg = &c
	return cfg, nil
}

func (s *memGadStore) RecordStep(_ context.Context, _ string, deleveragedUSD uint64, executedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg != nil {
		s.cfg.StepsExecuted++
		s.cfg.DeleveragedUSD += deleveragedUSD
		s.cfg.LastExecution = executedAt
	}
	return nil
}

// --- helpers ---

func testSnapshot(collateralUSD, debtUSD uint64, lastUpdate time.Time) *models.Snapshot {
	snap := &models.Snapshot{
		Position: models.Position{Owner: testOwner, LastUpdate: lastUpdate},
		Prices:   map[string]uint64{"USDC": 1 * usd},
		Assets:   models.DefaultAssets,
		Taken:    time.Now(),
	}
	if collateralUSD > 0 {
		snap.Position.Collaterals = []models.CollateralEntry{{Asset: "USDC", Amount: collateralUSD}}
	}
	if debtUSD > 0 {
		snap.Position.Debts = []models.DebtEntry{{Asset: "USDC", Principal: debtUSD}}
	}
	return snap
}

type testRig struct {
	ledger *mockLedger
	bus    *alerts.Bus
	mon    *Monitor
	alerts *[]models.Alert
	mu     *sync.Mutex
}

func newTestRig(snap *models.Snapshot, agentCfg *models.AgentConfig, gadCfg *models.GadConfig, keeper bool) *testRig {
	lg := &mockLedger{snapshot: snap}
	bus := alerts.NewBus()

	var got []models.Alert
	var mu sync.Mutex
	bus.Subscribe(func(a models.Alert) {
		mu.Lock()
		got = append(got, a)
		mu.Unlock()
	})

	ag := agent.NewController(lg, &memAgentStore{cfg: agentCfg}, memPaymentStore{}, bus, testParams)
	gd := gad.NewController(lg, &memGadStore{cfg: gadCfg}, bus)

	mon := New(lg, ag, gd, bus, testParams, Config{
		Interval:      time.Hour, // ticks driven manually in tests
		Owners:        []string{testOwner},
		KeeperEnabled: keeper,
	})
	return &testRig{ledger: lg, bus: bus, mon: mon, alerts: &got, mu: &mu}
}

func (r *testRig) alertTypes() []models.AlertType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AlertType, 0, len(*r.alerts))
	for _, a := range *r.alerts {
		out = append(out, a.Type)
	}
	return out
}

func (r *testRig) hasAlert(t models.AlertType) bool {
	for _, got := range r.alertTypes() {
		if got == t {
			return true
		}
	}
	return false
}

// --- tests ---

func TestMonitor_StartStopIdempotent(t *testing.T) {
	rig := newTestRig(testSnapshot(10_000*usd, 1_000*usd, time.Now()), nil, nil, false)

	rig.mon.Start()
	if !rig.mon.Running() {
		t.Fatal("expected running after Start")
	}
	rig.mon.Start() // second start is a no-op

	rig.mon.Stop()
	if rig.mon.Running() {
		t.Fatal("expected stopped after Stop")
	}
	rig.mon.Stop() // second stop is a no-op
}

func TestMonitor_RestartDoesNotDoubleCountAlerts(t *testing.T) {
	// The metrics listener is registered once at construction; restart cycles
	// must not stack additional subscriptions.
	rig := newTestRig(testSnapshot(10_000*usd, 1_000*usd, time.Now()), nil, nil, false)

	rig.mon.Start()
	rig.mon.Stop()
	rig.mon.Start()
	rig.mon.Stop()

	label := alertsTotal.WithLabelValues(string(models.AlertLTVWarning))
	before := promtestutil.ToFloat64(label)
	rig.bus.Publish(models.Alert{Type: models.AlertLTVWarning, Owner: testOwner, Timestamp: time.Now()})
	after := promtestutil.ToFloat64(label)
	if after-before != 1 {
		t.Fatalf("expected exactly one counter increment, got %v", after-before)
	}
}

func TestMonitor_TickPublishesLTVWarning(t *testing.T) {
	// LTV 7200 over the 7000 alert threshold.
	cfg := &models.AgentConfig{
		Owner:             testOwner,
		AlertThresholdBps: 7000,
		DayIndex:          models.DayIndexAt(time.Now()),
	}
	rig := newTestRig(testSnapshot(10_000*usd, 7_200*usd, time.Now()), cfg, nil, false)

	rig.mon.TickNow(context.Background())
	if !rig.hasAlert(models.AlertLTVWarning) {
		t.Fatalf("expected an ltv_warning alert, got %v", rig.alertTypes())
	}
}

func TestMonitor_WarningCooldown(t *testing.T) {
	cfg := &models.AgentConfig{
		Owner:             testOwner,
		AlertThresholdBps: 7000,
		DayIndex:          models.DayIndexAt(time.Now()),
	}
	rig := newTestRig(testSnapshot(10_000*usd, 7_200*usd, time.Now()), cfg, nil, false)

	ctx := context.Background()
	rig.mon.TickNow(ctx)
	rig.mon.TickNow(ctx)

	warnings := 0
	for _, typ := range rig.alertTypes() {
		if typ == models.AlertLTVWarning {
			warnings++
		}
	}
	if warnings != 1 {
		t.Fatalf("expected 1 warning under cooldown, got %d", warnings)
	}
}

func TestMonitor_TickBelowThresholdIsQuiet(t *testing.T) {
	cfg := &models.AgentConfig{
		Owner:             testOwner,
		AlertThresholdBps: 7000,
		DayIndex:          models.DayIndexAt(time.Now()),
	}
	rig := newTestRig(testSnapshot(10_000*usd, 2_000*usd, time.Now()), cfg, nil, false)

	rig.mon.TickNow(context.Background())
	if len(rig.alertTypes()) != 0 {
		t.Fatalf("expected no alerts at LTV 2000, got %v", rig.alertTypes())
	}
}

func TestMonitor_TickTriggersAutoRepay(t *testing.T) {
	// LTV 8100 over the 8000 auto-repay threshold; target 7500 -> repay $600.
	cfg := &models.AgentConfig{
		Owner:                 testOwner,
		AutoRepayEnabled:      true,
		AutoRepayThresholdBps: 8000,
		AlertThresholdBps:     9000,
		DayIndex:              models.DayIndexAt(time.Now()),
	}
	rig := newTestRig(testSnapshot(10_000*usd, 8_100*usd, time.Now()), cfg, nil, false)

	rig.mon.TickNow(context.Background())
	if len(rig.ledger.repaid) != 1 {
		t.Fatalf("expected one auto-repay, got %v", rig.ledger.repaid)
	}
	if rig.ledger.repaid[0] != 600*usd {
		t.Fatalf("expected $600.00 repay, got %d", rig.ledger.repaid[0])
	}
	if !rig.hasAlert(models.AlertAutoRepay) {
		t.Fatalf("expected an auto_repay alert, got %v", rig.alertTypes())
	}
}

func TestMonitor_KeeperCranksGad(t *testing.T) {
	gadCfg := &models.GadConfig{
		Owner:              testOwner,
		Enabled:            true,
		StartThresholdBps:  8500,
		StepSizeBps:        500,
		MinIntervalSeconds: 3600,
	}
	rig := newTestRig(testSnapshot(10_000*usd, 9_000*usd, time.Now()), nil, gadCfg, true)

	rig.mon.TickNow(context.Background())
	if rig.ledger.steps != 1 {
		t.Fatalf("expected one GAD step, got %d", rig.ledger.steps)
	}
	if !rig.hasAlert(models.AlertGadTriggered) {
		t.Fatalf("expected a gad_triggered alert, got %v", rig.alertTypes())
	}
}

func TestMonitor_KeeperDisabledNeverCranks(t *testing.T) {
	gadCfg := &models.GadConfig{
		Owner:              testOwner,
		Enabled:            true,
		StartThresholdBps:  8500,
		StepSizeBps:        500,
		MinIntervalSeconds: 3600,
	}
	rig := newTestRig(testSnapshot(10_000*usd, 9_000*usd, time.Now()), nil, gadCfg, false)

	rig.mon.TickNow(context.Background())
	if rig.ledger.steps != 0 {
		t.Fatal("keeper disabled: no GAD steps expected")
	}
	if rig.ledger.accruals != 0 {
		t.Fatal("keeper disabled: no accrual cranks expected")
	}
}

func TestMonitor_GadActiveAlertsWithoutKeeper(t *testing.T) {
	// Alerting on the active state is independent of running the crank:
	// a watch-only instance must still tell the owner deleveraging is live.
	gadCfg := &models.GadConfig{
		Owner:              testOwner,
		Enabled:            true,
		StartThresholdBps:  8500,
		StepSizeBps:        500,
		MinIntervalSeconds: 3600,
	}
	rig := newTestRig(testSnapshot(10_000*usd, 9_000*usd, time.Now()), nil, gadCfg, false)

	ctx := context.Background()
	rig.mon.TickNow(ctx)
	if !rig.hasAlert(models.AlertGadTriggered) {
		t.Fatalf("expected a gad_triggered alert with keeper off, got %v", rig.alertTypes())
	}
	if rig.ledger.steps != 0 {
		t.Fatal("keeper disabled: no GAD steps expected")
	}

	// Second tick inside the cooldown window stays quiet.
	rig.mon.TickNow(ctx)
	triggered := 0
	for _, typ := range rig.alertTypes() {
		if typ == models.AlertGadTriggered {
			triggered++
		}
	}
	if triggered != 1 {
		t.Fatalf("expected 1 gad_triggered under cooldown, got %d", triggered)
	}
}

func TestMonitor_DebtWithoutCollateralWarns(t *testing.T) {
	// Debt against nothing is the worst case; the undefined-LTV sentinel must
	// clear any alert threshold rather than suppress the warning.
	cfg := &models.AgentConfig{
		Owner:             testOwner,
		AlertThresholdBps: 7000,
		DayIndex:          models.DayIndexAt(time.Now()),
	}
	rig := newTestRig(testSnapshot(0, 500*usd, time.Now()), cfg, nil, false)

	rig.mon.TickNow(context.Background())
	if !rig.hasAlert(models.AlertLTVWarning) {
		t.Fatalf("expected an ltv_warning for a zero-collateral debtor, got %v", rig.alertTypes())
	}

	rig.mu.Lock()
	defer rig.mu.Unlock()
	for _, a := range *rig.alerts {
		if a.Type == models.AlertLTVWarning && a.LTVBps != health.LTVUndefined {
			t.Fatalf("warning should carry the sentinel LTV, got %d", a.LTVBps)
		}
	}
}

func TestMonitor_KeeperCranksStaleAccrual(t *testing.T) {
	// Position last touched 2h ago with outstanding debt.
	snap := testSnapshot(10_000*usd, 1_000*usd, time.Now().Add(-2*time.Hour))
	rig := newTestRig(snap, nil, nil, true)

	rig.mon.TickNow(context.Background())
	if rig.ledger.accruals != 1 {
		t.Fatalf("expected one accrual crank for a stale position, got %d", rig.ledger.accruals)
	}

	// A fresh position must not be cranked.
	rig2 := newTestRig(testSnapshot(10_000*usd, 1_000*usd, time.Now()), nil, nil, true)
	rig2.mon.TickNow(context.Background())
	if rig2.ledger.accruals != 0 {
		t.Fatalf("fresh position should not be cranked, got %d", rig2.ledger.accruals)
	}
}
