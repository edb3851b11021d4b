package engine

import "TradePilot/internal/domain/models"

// base fraction of the balance allocated per risk tier
var baseFraction = map[models.RiskTier]float64{
	models.RiskLow:    0.30,
	models.RiskMedium: 0.25,
	models.RiskHigh:   0.15,
}

// PositionSize converts a buy decision into a USD order size. The base
// fraction per risk tier is scaled by confidence so a barely-qualifying
// decision commits half of what a certain one would.
func PositionSize(balanceUSD, confidence float64, tier models.RiskTier) float64 {
	base, ok := baseFraction[tier]
	if !ok {
		base = 0.20
	}
	mult := clamp((confidence-0.5)*2, 0.5, 1.0)
	return round2(balanceUSD * base * mult)
}
