package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

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
	snapErr  error
	borrowed []uint64
	repaid   []uint64
	payments []string
	callErr  error
}

func (m *mockLedger) Snapshot(_ context.Context, owner string) (*models.Snapshot, error) {
	if m.snapErr != nil {
		return nil, m.snapErr
	}
	return m.snapshot, nil
}

func (m *mockLedger) Deposit(context.Context, string, uint64) error  { return m.callErr }
func (m *mockLedger) Withdraw(context.Context, string, uint64) error { return m.callErr }

func (m *mockLedger) Borrow(_ context.Context, _ string, amount uint64) error {
	if m.callErr != nil {
		return m.callErr
	}
	m.mu.Lock()
	m.borrowed = append(m.borrowed, amount)
	m.mu.Unlock()
	return nil
}

func (m *mockLedger) Repay(_ context.Context, _ string, amount uint64) error {
	if m.callErr != nil {
		return m.callErr
	}
	m.mu.Lock()
	m.repaid = append(m.repaid, amount)
	m.mu.Unlock()
	return nil
}

func (m *mockLedger) ConfigureAgent(context.Context, *models.AgentConfig) error { return m.callErr }
func (m *mockLedger) ConfigureGad(context.Context, *models.GadConfig) error     { return m.callErr }
func (m *mockLedger) ExecuteGadStep(context.Context, string, uint64) error      { return m.callErr }
func (m *mockLedger) AccrueInterest(context.Context, string) error              { return m.callErr }

func (m *mockLedger) Pay(_ context.Context, _, _ string, _ uint64, paymentID string, _ bool) error {
	if m.callErr != nil {
		return m.callErr
	}
	m.mu.Lock()
	m.payments = append(m.payments, paymentID)
	m.mu.Unlock()
	return nil
}

func (m *mockLedger) borrowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.borrowed)
}

type mockStore struct {
	mu   sync.Mutex
	cfgs map[string]*models.AgentConfig
}

func newMockStore(cfg *models.AgentConfig) *mockStore {
	s := &mockStore{cfgs: make(map[string]*models.AgentConfig)}
	if cfg != nil {
		s.cfgs[cfg.Owner] = cfg
	}
	return s
}

func (s *mockStore) Get(_ context.Context, owner string) (*models.AgentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.cfgs[owner]
	if !ok {
		return nil, nil
	}
	c := *cfg
	return &c, nil
}

func (s *mockStore) Upsert(_ context.Context, cfg *models.AgentConfig) (*models.AgentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cfg
	s.cfgs[cfg.Owner] = &c
	return cfg, nil
}

func (s *mockStore) UpdateCounters(_ context.Context, owner string, borrowedUSD, x402SpentUSD uint64, dayIndex int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg, ok := s.cfgs[owner]; ok {
		cfg.DailyBorrowedUSD = borrowedUSD
		cfg.X402SpentUSD = x402SpentUSD
		cfg.DayIndex = dayIndex
	}
	return nil
}

type mockPayments struct {
	mu       sync.Mutex
	settled  map[string]bool
	recorded []*models.X402Payment
}

func newMockPayments() *mockPayments {
	return &mockPayments{settled: make(map[string]bool)}
}

func (p *mockPayments) Exists(_ context.Context, paymentID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settled[paymentID], nil
}

func (p *mockPayments) Record(_ context.Context, pay *models.X402Payment) (*models.X402Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settled[pay.PaymentID] = true
	p.recorded = append(p.recorded, pay)
	return pay, nil
}

// --- helpers ---

func healthySnapshot(collateralUSD, debtUSD uint64) *models.Snapshot {
	// USDC collateral keeps the USD math 1:1 for readable expectations.
	snap := &models.Snapshot{
		Position: models.Position{Owner: testOwner},
		Prices:   map[string]uint64{"USDC": 1 * usd, "ETH": 2_000 * usd},
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

func testController(lg *mockLedger, store *mockStore) *Controller {
	return NewController(lg, store, newMockPayments(), nil, testParams)
}

func agentConfig(limitUSD, usedUSD uint64) *models.AgentConfig {
	return &models.AgentConfig{
		Owner:               testOwner,
		DailyBorrowLimitUSD: limitUSD,
		DailyBorrowedUSD:    usedUSD,
		DayIndex:            models.DayIndexAt(time.Now()),
		AlertThresholdBps:   7000,
	}
}

// --- AutonomousBorrow ---

func TestAutonomousBorrow_WithinLimit(t *testing.T) {
	lg := &mockLedger{snapshot: healthySnapshot(10_000*usd, 1_000*usd)}
	store := newMockStore(agentConfig(1_000*usd, 950*usd))
	c := testController(lg, store)

	if err := c.AutonomousBorrow(context.Background(), testOwner, "USDC", 50*usd); err != nil {
		t.Fatalf("expected borrow of remaining $50 to succeed, got: %v", err)
	}
	if lg.borrowCount() != 1 {
		t.Fatalf("expected 1 ledger borrow, got %d", lg.borrowCount())
	}
	cfg, _ := store.Get(context.Background(), testOwner)
	if cfg.DailyBorrowedUSD != 1_000*usd {
		t.Fatalf("expected counter at $1000, got %d", cfg.DailyBorrowedUSD)
	}
}

func TestAutonomousBorrow_ExceedsDailyLimit(t *testing.T) {
	lg := &mockLedger{snapshot: healthySnapshot(10_000*usd, 1_000*usd)}
	store := newMockStore(agentConfig(1_000*usd, 950*usd))
	c := testController(lg, store)

	err := c.AutonomousBorrow(context.Background(), testOwner, "USDC", 100*usd)
	if !errors.Is(err, ErrDailyLimitExceeded) {
		t.Fatalf("expected ErrDailyLimitExceeded, got: %v", err)
	}
	if lg.borrowCount() != 0 {
		t.Fatal("rejected borrow must never reach the ledger")
	}
	t.Logf("Correctly blocked: %v", err)
}

func TestAutonomousBorrow_CounterUnchangedOnLedgerFailure(t *testing.T) {
	lg := &mockLedger{
		snapshot: healthySnapshot(10_000*usd, 0),
		callErr:  errors.New("rpc timeout"),
	}
	store := newMockStore(agentConfig(1_000*usd, 0))
	c := testController(lg, store)

	if err := c.AutonomousBorrow(context.Background(), testOwner, "USDC", 100*usd); err == nil {
		t.Fatal("expected borrow to fail")
	}
	cfg, _ := store.Get(context.Background(), testOwner)
	if cfg.DailyBorrowedUSD != 0 {
		t.Fatalf("failed borrow must not consume budget, counter=%d", cfg.DailyBorrowedUSD)
	}
}

func TestAutonomousBorrow_Unhealthy(t *testing.T) {
	// $10,000 collateral, $8,500 debt: factor below 1.0.
	lg := &mockLedger{snapshot: healthySnapshot(10_000*usd, 8_500*usd)}
	store := newMockStore(agentConfig(10_000*usd, 0))
	c := testController(lg, store)

	err := c.AutonomousBorrow(context.Background(), testOwner, "USDC", 10*usd)
	if !errors.Is(err, ErrUnhealthy) {
		t.Fatalf("expected ErrUnhealthy, got: %v", err)
	}
}

func TestAutonomousBorrow_InsufficientHeadroom(t *testing.T) {
	// $10,000 collateral at 75% = $7,500 ceiling, $7,000 used.
	lg := &mockLedger{snapshot: healthySnapshot(10_000*usd, 7_000*usd)}
	store := newMockStore(agentConfig(10_000*usd, 0))
	c := testController(lg, store)

	err := c.AutonomousBorrow(context.Background(), testOwner, "USDC", 600*usd)
	if !errors.Is(err, ErrInsufficientHeadroom) {
		t.Fatalf("expected ErrInsufficientHeadroom, got: %v", err)
	}
}

func TestAutonomousBorrow_NotConfigured(t *testing.T) {
	lg := &mockLedger{snapshot: healthySnapshot(10_000*usd, 0)}
	c := testController(lg, newMockStore(nil))

	err := c.AutonomousBorrow(context.Background(), testOwner, "USDC", 10*usd)
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got: %v", err)
	}
}

func TestAutonomousBorrow_WindowResetsOnNewDay(t *testing.T) {
	lg := &mockLedger{snapshot: healthySnapshot(10_000*usd, 0)}
	cfg := agentConfig(1_000*usd, 1_000*usd)
	cfg.DayIndex = models.DayIndexAt(time.Now()) - 1 // yesterday's window, fully used
	store := newMockStore(cfg)
	c := testController(lg, store)

	if err := c.AutonomousBorrow(context.Background(), testOwner, "USDC", 1_000*usd); err != nil {
		t.Fatalf("new day should reset the budget, got: %v", err)
	}
	got, _ := store.Get(context.Background(), testOwner)
	if got.DayIndex != models.DayIndexAt(time.Now()) {
		t.Fatal("day index not rolled forward")
	}
	if got.DailyBorrowedUSD != 1_000*usd {
		t.Fatalf("expected fresh window fully used, got %d", got.DailyBorrowedUSD)
	}
}

func TestAutonomousBorrow_ConcurrentCallersCannotOverspend(t *testing.T) {
	lg := &mockLedger{snapshot: healthySnapshot(100_000*usd, 0)}
	store := newMockStore(agentConfig(1_000*usd, 0))
	c := testController(lg, store)

	var wg sync.WaitGroup
	var okCount, limitCount int64
	var mu sync.Mutex
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.AutonomousBorrow(context.Background(), testOwner, "USDC", 400*usd)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				okCount++
			case errors.Is(err, ErrDailyLimitExceeded):
				limitCount++
			}
		}()
	}
	wg.Wait()

	if okCount != 2 {
		t.Fatalf("expected exactly 2 of 10 concurrent $400 borrows under a $1000 limit, got %d", okCount)
	}
	if limitCount != 8 {
		t.Fatalf("expected 8 limit rejections, got %d", limitCount)
	}
	cfg, _ := store.Get(context.Background(), testOwner)
	if cfg.DailyBorrowedUSD != 800*usd {
		t.Fatalf("expected counter at $800, got %d", cfg.DailyBorrowedUSD)
	}
}

// --- AutonomousRepay ---

func TestAutonomousRepay_ComputesTargetAmount(t *testing.T) {
	// $10,000 collateral, $8,000 debt, threshold 8000 bps.
	// Target LTV 7500 bps -> target debt $7,500 -> repay $500.
	lg := &mockLedger{snapshot: healthySnapshot(10_000*usd, 8_000*usd)}
	cfg := agentConfig(1_000*usd, 0)
	cfg.AutoRepayEnabled = true
	cfg.AutoRepayThresholdBps = 8000
	c := testController(lg, newMockStore(cfg))

	repaid, err := c.AutonomousRepay(context.Background(), testOwner, "USDC", 0)
	if err != nil {
		t.Fatalf("AutonomousRepay: %v", err)
	}
	if repaid != 500*usd {
		t.Fatalf("expected repay of $500.00, got %d", repaid)
	}
	if len(lg.repaid) != 1 || lg.repaid[0] != 500*usd {
		t.Fatalf("ledger repay mismatch: %v", lg.repaid)
	}
}

func TestAutonomousRepay_SkipsDust(t *testing.T) {
	// Debt barely over target: computed repay under $1 is skipped.
	lg := &mockLedger{snapshot: healthySnapshot(10_000*usd, 7_500*usd+usd/2)}
	cfg := agentConfig(1_000*usd, 0)
	cfg.AutoRepayThresholdBps = 8000
	c := testController(lg, newMockStore(cfg))

	repaid, err := c.AutonomousRepay(context.Background(), testOwner, "USDC", 0)
	if err != nil {
		t.Fatalf("AutonomousRepay: %v", err)
	}
	if repaid != 0 {
		t.Fatalf("expected dust repay to be skipped, got %d", repaid)
	}
	if len(lg.repaid) != 0 {
		t.Fatal("dust repay must not reach the ledger")
	}
}

func TestAutonomousRepay_ExplicitAmountCappedAtDebt(t *testing.T) {
	lg := &mockLedger{snapshot: healthySnapshot(10_000*usd, 200*usd)}
	c := testController(lg, newMockStore(agentConfig(1_000*usd, 0)))

	repaid, err := c.AutonomousRepay(context.Background(), testOwner, "USDC", 500*usd)
	if err != nil {
		t.Fatalf("AutonomousRepay: %v", err)
	}
	if repaid != 200*usd {
		t.Fatalf("expected repay capped at $200 debt, got %d", repaid)
	}
}

func TestAutonomousRepay_NoDebtNoOp(t *testing.T) {
	lg := &mockLedger{snapshot: healthySnapshot(10_000*usd, 0)}
	c := testController(lg, newMockStore(agentConfig(1_000*usd, 0)))

	repaid, err := c.AutonomousRepay(context.Background(), testOwner, "USDC", 0)
	if err != nil || repaid != 0 {
		t.Fatalf("expected no-op, got repaid=%d err=%v", repaid, err)
	}
}

// --- x402 payments ---

func x402Config(limitUSD, spentUSD uint64) *models.AgentConfig {
	cfg := agentConfig(1_000*usd, 0)
	cfg.X402Enabled = true
	cfg.X402DailyLimitUSD = limitUSD
	cfg.X402SpentUSD = spentUSD
	return cfg
}

func paymentRequest(amountUSD uint64, id string) *models.X402PaymentRequest {
	return &models.X402PaymentRequest{
		Recipient: "0x2222222222222222222222222222222222222222",
		AmountUSD: amountUSD,
		Asset:     "USDC",
		PaymentID: id,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}
}

func TestSettlePayment_WithinLimit(t *testing.T) {
	lg := &mockLedger{snapshot: healthySnapshot(10_000*usd, 0)}
	store := newMockStore(x402Config(100*usd, 0))
	c := testController(lg, store)

	receipt, err := c.SettlePayment(context.Background(), testOwner, paymentRequest(40*usd, "pay-1"), false)
	if err != nil {
		t.Fatalf("SettlePayment: %v", err)
	}
	if receipt.AmountUSD != 40*usd {
		t.Fatalf("receipt amount mismatch: %d", receipt.AmountUSD)
	}
	cfg, _ := store.Get(context.Background(), testOwner)
	if cfg.X402SpentUSD != 40*usd {
		t.Fatalf("expected spend counter at $40, got %d", cfg.X402SpentUSD)
	}
}

func TestSettlePayment_OverDailyLimit(t *testing.T) {
	lg := &mockLedger{snapshot: healthySnapshot(10_000*usd, 0)}
	c := testController(lg, newMockStore(x402Config(100*usd, 70*usd)))

	_, err := c.SettlePayment(context.Background(), testOwner, paymentRequest(40*usd, "pay-2"), false)
	if !errors.Is(err, ErrX402LimitExceeded) {
		t.Fatalf("expected ErrX402LimitExceeded, got: %v", err)
	}
}

func TestSettlePayment_Disabled(t *testing.T) {
	lg := &mockLedger{snapshot: healthySnapshot(10_000*usd, 0)}
	c := testController(lg, newMockStore(agentConfig(1_000*usd, 0)))

	_, err := c.SettlePayment(context.Background(), testOwner, paymentRequest(10*usd, "pay-3"), false)
	if !errors.Is(err, ErrX402Disabled) {
		t.Fatalf("expected ErrX402Disabled, got: %v", err)
	}
}

func TestSettlePayment_Replay(t *testing.T) {
	lg := &mockLedger{snapshot: healthySnapshot(10_000*usd, 0)}
	c := testController(lg, newMockStore(x402Config(100*usd, 0)))

	if _, err := c.SettlePayment(context.Background(), testOwner, paymentRequest(10*usd, "pay-4"), false); err != nil {
		t.Fatalf("first settlement: %v", err)
	}
	_, err := c.SettlePayment(context.Background(), testOwner, paymentRequest(10*usd, "pay-4"), false)
	if !errors.Is(err, ErrPaymentReplay) {
		t.Fatalf("expected ErrPaymentReplay, got: %v", err)
	}
}

func TestSettlePayment_Expired(t *testing.T) {
	lg := &mockLedger{snapshot: healthySnapshot(10_000*usd, 0)}
	c := testController(lg, newMockStore(x402Config(100*usd, 0)))

	req := paymentRequest(10*usd, "pay-5")
	req.ExpiresAt = time.Now().Add(-time.Second)
	_, err := c.SettlePayment(context.Background(), testOwner, req, false)
	if !errors.Is(err, ErrPaymentInvalid) {
		t.Fatalf("expected ErrPaymentInvalid, got: %v", err)
	}
}

func TestCanMakePayment(t *testing.T) {
	lg := &mockLedger{snapshot: healthySnapshot(10_000*usd, 0)}
	c := testController(lg, newMockStore(x402Config(100*usd, 90*usd)))

	if ok, err := c.CanMakePayment(context.Background(), testOwner, 10*usd); !ok || err != nil {
		t.Fatalf("expected $10 payment to be allowed, got ok=%v err=%v", ok, err)
	}
	ok, err := c.CanMakePayment(context.Background(), testOwner, 11*usd)
	if ok || !errors.Is(err, ErrX402LimitExceeded) {
		t.Fatalf("expected ErrX402LimitExceeded, got ok=%v err=%v", ok, err)
	}
}

// --- Configure ---

func TestConfigure_Validation(t *testing.T) {
	lg := &mockLedger{}
	c := testController(lg, newMockStore(nil))

	bad := &models.AgentConfig{Owner: testOwner, AutoRepayEnabled: true}
	if _, err := c.Configure(context.Background(), bad); err == nil {
		t.Fatal("expected validation error for auto-repay without threshold")
	}

	var vErr *models.ValidationError
	_, err := c.Configure(context.Background(), &models.AgentConfig{Owner: testOwner, AlertThresholdBps: 10_001})
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got: %v", err)
	}
}

func TestConfigure_PreservesWindowOnReconfigure(t *testing.T) {
	lg := &mockLedger{}
	store := newMockStore(agentConfig(1_000*usd, 400*usd))
	c := testController(lg, store)

	updated := agentConfig(2_000*usd, 0)
	saved, err := c.Configure(context.Background(), updated)
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if saved.DailyBorrowedUSD != 400*usd {
		t.Fatalf("reconfiguration must keep the current window, got %d", saved.DailyBorrowedUSD)
	}
	if saved.DailyBorrowLimitUSD != 2_000*usd {
		t.Fatalf("limit not updated: %d", saved.DailyBorrowLimitUSD)
	}
}
