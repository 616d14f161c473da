package models

import "math"

// HealthFactorInfinite is the sentinel returned when a position has no debt.
const HealthFactorInfinite = math.MaxUint64

// HealthFactorScale: a health factor of exactly 1.0 is 10000. Healthy means
// strictly greater.
const HealthFactorScale = 10_000

// HealthStatus is derived fresh from a snapshot on every query and never
// persisted.
type HealthStatus struct {
	Owner string `json:"owner"`

	LTVBps       uint64 `json:"ltvBps"`
	HealthFactor uint64 `json:"healthFactor"`
	// Nil when the position has no debt or no collateral.
	LiquidationPriceUSD *uint64 `json:"liquidationPriceUsd,omitempty"`

	CollateralValueUSD   uint64 `json:"collateralValueUsd"`
	DebtValueUSD         uint64 `json:"debtValueUsd"`
	AvailableToBorrowUSD uint64 `json:"availableToBorrowUsd"`

	Healthy   bool `json:"healthy"`
	GadActive bool `json:"gadActive"`
}
