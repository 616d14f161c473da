package health

import (
	"math"
	"math/big"

	"github.com/halcyonlabs/credit-guardian/internal/models"
)

// Pure fixed-point arithmetic over ledger snapshots. Nothing here touches
// the network or mutates state, so callers may evaluate concurrently.
//
// All USD inputs are 6-decimal fixed point; all ratios are basis points.
// Floating point never gates a financial decision — it exists only in the
// display helpers of the models package.

// LTVUndefined marks the loan-to-value of a position with debt but no
// collateral: maximal risk, not a division fault.
const LTVUndefined = math.MaxUint64

// Params are the risk parameters of the collateral asset class.
type Params struct {
	MaxLTVBps               uint64
	LiquidationThresholdBps uint64
}

// LTVBps returns debt/collateral in basis points. Zero when there is no
// collateral and no debt; LTVUndefined when there is debt against nothing.
func LTVBps(collateralUSD, debtUSD uint64) uint64 {
	if collateralUSD == 0 {
		if debtUSD == 0 {
			return 0
		}
		return LTVUndefined
	}
	v := new(big.Int).SetUint64(debtUSD)
	v.Mul(v, big.NewInt(models.BpsDenominator))
	v.Div(v, new(big.Int).SetUint64(collateralUSD))
	if !v.IsUint64() {
		return LTVUndefined
	}
	return v.Uint64()
}

// HealthFactor returns collateral*threshold/debt on a 1e4 scale, so exactly
// 1.0 is models.HealthFactorScale. Debt-free positions get the infinite
// sentinel. A position is healthy iff the factor is strictly above 1.0.
func HealthFactor(collateralUSD, debtUSD, liquidationThresholdBps uint64) uint64 {
	if debtUSD == 0 {
		return models.HealthFactorInfinite
	}
	v := new(big.Int).SetUint64(collateralUSD)
	v.Mul(v, new(big.Int).SetUint64(liquidationThresholdBps))
	v.Div(v, new(big.Int).SetUint64(debtUSD))
	if !v.IsUint64() {
		return models.HealthFactorInfinite
	}
	return v.Uint64()
}

// Healthy reports whether a health factor clears 1.0.
func Healthy(factor uint64) bool {
	return factor > models.HealthFactorScale
}

// LiquidationPrice returns the 6-decimal collateral price at which the
// position becomes liquidatable, or nil when there is no debt or no
// collateral to price.
//
//	price = debt / (amount * threshold/10000)
func LiquidationPrice(collateralAmount uint64, collateralDecimals uint8, debtUSD, liquidationThresholdBps uint64) *uint64 {
	if collateralAmount == 0 || debtUSD == 0 || liquidationThresholdBps == 0 {
		return nil
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(collateralDecimals)), nil)
	num := new(big.Int).SetUint64(debtUSD)
	num.Mul(num, big.NewInt(models.BpsDenominator))
	num.Mul(num, scale)
	den := new(big.Int).SetUint64(collateralAmount)
	den.Mul(den, new(big.Int).SetUint64(liquidationThresholdBps))
	num.Div(num, den)
	if !num.IsUint64() {
		return nil
	}
	p := num.Uint64()
	return &p
}

// MaxAdditionalBorrow is the headroom left under the effective max LTV.
func MaxAdditionalBorrow(collateralUSD, currentDebtUSD, maxLTVBps uint64) uint64 {
	v := new(big.Int).SetUint64(collateralUSD)
	v.Mul(v, new(big.Int).SetUint64(maxLTVBps))
	v.Div(v, big.NewInt(models.BpsDenominator))
	if !v.IsUint64() {
		return 0
	}
	ceiling := v.Uint64()
	if ceiling <= currentDebtUSD {
		return 0
	}
	return ceiling - currentDebtUSD
}

// ReputationBonusBps grants extra LTV headroom to proven repayers.
func ReputationBonusBps(score uint32) uint64 {
	switch {
	case score >= 400:
		return 500
	case score >= 200:
		return 300
	default:
		return 0
	}
}

// EffectiveMaxLTVBps applies the reputation bonus without ever letting the
// borrow ceiling cross the liquidation threshold.
func EffectiveMaxLTVBps(baseMaxLTVBps, bonusBps, liquidationThresholdBps uint64) uint64 {
	effective := baseMaxLTVBps + bonusBps
	if effective > liquidationThresholdBps {
		return liquidationThresholdBps
	}
	return effective
}

// Evaluate derives the full health record for a snapshot. gad may be nil
// when the position has no deleveraging config.
func Evaluate(snap *models.Snapshot, p Params, gad *models.GadConfig) models.HealthStatus {
	collateralUSD := snap.CollateralValueUSD()
	debtUSD := snap.DebtValueUSD()

	ltv := LTVBps(collateralUSD, debtUSD)
	factor := HealthFactor(collateralUSD, debtUSD, p.LiquidationThresholdBps)

	bonus := ReputationBonusBps(snap.Position.Reputation.Score())
	effectiveLTV := EffectiveMaxLTVBps(p.MaxLTVBps, bonus, p.LiquidationThresholdBps)

	var liqPrice *uint64
	if len(snap.Position.Collaterals) > 0 {
		// Reported against the primary (first) collateral entry.
		primary := snap.Position.Collaterals[0]
		if asset, ok := models.AssetBySymbol(snap.Assets, primary.Asset); ok {
			liqPrice = LiquidationPrice(primary.Amount, asset.Decimals, debtUSD, p.LiquidationThresholdBps)
		}
	}

	return models.HealthStatus{
		Owner:                snap.Position.Owner,
		LTVBps:               ltv,
		HealthFactor:         factor,
		LiquidationPriceUSD:  liqPrice,
		CollateralValueUSD:   collateralUSD,
		DebtValueUSD:         debtUSD,
		AvailableToBorrowUSD: MaxAdditionalBorrow(collateralUSD, debtUSD, effectiveLTV),
		Healthy:              Healthy(factor),
		GadActive:            gad.StateFor(ltv) == models.GadActive,
	}
}
