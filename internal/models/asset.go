package models

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Asset identifies a token the protocol knows about. Amounts on the ledger
// are fixed-point integers scaled by the asset's decimal count.
type Asset struct {
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	// Collateral assets back loans; borrowable assets are what agents draw.
	Borrowable bool `json:"borrowable"`
}

// Default registry: ETH and WBTC as collateral, USDC and EURC as borrowables.
var DefaultAssets = []Asset{
	{Symbol: "ETH", Decimals: 18},
	{Symbol: "WBTC", Decimals: 8},
	{Symbol: "USDC", Decimals: 6, Borrowable: true},
	{Symbol: "EURC", Decimals: 6, Borrowable: true},
}

const (
	// All USD values carry 6 decimals.
	USDDecimals   = 6
	USDMultiplier = 1_000_000

	BpsDenominator = 10_000

	SecondsPerDay = 86_400
)

// AssetBySymbol looks up an asset in a registry. Returns false when unknown.
func AssetBySymbol(registry []Asset, symbol string) (Asset, bool) {
	for _, a := range registry {
		if a.Symbol == symbol {
			return a, true
		}
	}
	return Asset{}, false
}

// ValueUSD converts a raw asset amount into a 6-decimal USD value given the
// asset's 6-decimal USD price. Intermediates use big.Int so the product of
// two uint64s cannot overflow.
func ValueUSD(amount uint64, decimals uint8, priceUSD uint64) uint64 {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	v := new(big.Int).SetUint64(amount)
	v.Mul(v, new(big.Int).SetUint64(priceUSD))
	v.Div(v, scale)
	if !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}

// AmountFromUSD converts a 6-decimal USD value back into a raw asset amount
// at the given 6-decimal price. Zero price yields zero.
func AmountFromUSD(valueUSD uint64, decimals uint8, priceUSD uint64) uint64 {
	if priceUSD == 0 {
		return 0
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	v := new(big.Int).SetUint64(valueUSD)
	v.Mul(v, scale)
	v.Div(v, new(big.Int).SetUint64(priceUSD))
	if !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}

// FormatUSD renders a 6-decimal USD value for alerts and API payloads.
// Display only — gating comparisons stay on the fixed-point integers.
func FormatUSD(v uint64) string {
	return decimal.New(int64(v), -USDDecimals).StringFixed(2)
}

// FormatBpsPercent renders basis points as a percentage string, e.g. 8250 -> "82.50".
func FormatBpsPercent(bps uint64) string {
	return decimal.New(int64(bps), -2).StringFixed(2)
}
