package models

import "time"

// CollateralEntry is a single collateral holding inside a position.
type CollateralEntry struct {
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

// DebtEntry is a single borrow inside a position. Principal and accrued
// interest are tracked separately; repayments settle interest first.
type DebtEntry struct {
	Asset           string `json:"asset"`
	Principal       uint64 `json:"principal"`
	AccruedInterest uint64 `json:"accruedInterest"`
}

func (d DebtEntry) Total() uint64 {
	return d.Principal + d.AccruedInterest
}

// Reputation summarizes repayment history. The ledger owns these counters;
// the core only reads them.
type Reputation struct {
	SuccessfulRepayments uint32 `json:"successfulRepayments"`
	TotalRepaidUSD       uint64 `json:"totalRepaidUsd"`
	GadEvents            uint32 `json:"gadEvents"`
	AccountAgeDays       uint32 `json:"accountAgeDays"`
}

// Score derives the trust metric used for LTV bonuses: repayments build it
// (50 points each, capped at 500), account age adds up to 100, and every
// GAD event costs 100.
func (r Reputation) Score() uint32 {
	base := uint32(r.SuccessfulRepayments) * 50
	if base > 500 {
		base = 500
	}
	ageBonus := r.AccountAgeDays / 30 * 10
	if ageBonus > 100 {
		ageBonus = 100
	}
	score := base + ageBonus
	penalty := r.GadEvents * 100
	if penalty >= score {
		return 0
	}
	return score - penalty
}

// Position is a point-in-time snapshot of one owner's ledger position.
// Snapshots are immutable; mutations happen on the ledger.
type Position struct {
	Owner        string            `json:"owner"`
	Collaterals  []CollateralEntry `json:"collaterals"`
	Debts        []DebtEntry       `json:"debts"`
	Reputation   Reputation        `json:"reputation"`
	LastUpdate   time.Time         `json:"lastUpdate"`
	LastGadCrank time.Time         `json:"lastGadCrank"`
}

// Snapshot bundles a position with the prices it was read under, so health
// math always runs against a consistent view.
type Snapshot struct {
	Position Position
	// 6-decimal USD price per asset symbol.
	Prices map[string]uint64
	Assets []Asset
	Taken  time.Time
}

// CollateralValueUSD totals the snapshot's collateral at snapshot prices.
func (s *Snapshot) CollateralValueUSD() uint64 {
	var total uint64
	for _, c := range s.Position.Collaterals {
		asset, ok := AssetBySymbol(s.Assets, c.Asset)
		if !ok {
			continue
		}
		total += ValueUSD(c.Amount, asset.Decimals, s.Prices[c.Asset])
	}
	return total
}

// DebtValueUSD totals principal plus accrued interest. Borrowables are
// USD-stable units priced 1:1, matching the ledger's accounting.
func (s *Snapshot) DebtValueUSD() uint64 {
	var total uint64
	for _, d := range s.Position.Debts {
		total += d.Total()
	}
	return total
}
