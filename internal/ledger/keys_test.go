package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

func TestPositionKey_Deterministic(t *testing.T) {
	a := common.HexToAddress("0x1111111111111111111111111111111111111111")
	b := common.HexToAddress("0x2222222222222222222222222222222222222222")

	if PositionKey(a) != PositionKey(a) {
		t.Fatal("same owner must derive the same key")
	}
	if PositionKey(a) == PositionKey(b) {
		t.Fatal("different owners must derive different keys")
	}
}

func TestSymbolRoundtrip(t *testing.T) {
	for _, sym := range []string{"ETH", "WBTC", "USDC", "EURC"} {
		if got := symbolFrom32(symbolTo32(sym)); got != sym {
			t.Fatalf("roundtrip mismatch: %q -> %q", sym, got)
		}
	}
}

func TestSymbolFrom32_ZeroValue(t *testing.T) {
	var empty [32]byte
	if got := symbolFrom32(empty); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestPaymentIDTo32_FixedWidth(t *testing.T) {
	short := paymentIDTo32("a")
	long := paymentIDTo32("a-very-long-payment-identifier-that-exceeds-thirty-two-bytes")
	if short == long {
		t.Fatal("distinct IDs must hash differently")
	}
	if short == [32]byte{} {
		t.Fatal("hash must not be zero")
	}
}

func TestVaultABI_Parses(t *testing.T) {
	// mustVaultABI must stay in sync with the call sites; a parse failure or
	// missing method here fails before any network work.
	parsed, err := abi.JSON(mustVaultABI())
	if err != nil {
		t.Fatalf("parse ABI: %v", err)
	}

	for _, method := range []string{
		"collaterals", "debts", "reputation", "positionMeta", "priceUsd",
		"deposit", "withdraw", "borrow", "repay",
		"configureAgent", "configureGad", "executeGadStep", "accrueInterest", "pay",
	} {
		if _, ok := parsed.Methods[method]; !ok {
			t.Fatalf("ABI missing method %q", method)
		}
	}
}
