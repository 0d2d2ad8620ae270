// Package pricing resolves service prices, estimates grooming time and
// computes deposits, cancellation and matting fees. Money is integer pence.
package pricing

import (
	"math"

	"smarterdog/internal/models"

	"github.com/shopspring/decimal"
)

const (
	DefaultDepositPercentage = 0.5

	// MattingFeePerMinute is charged per minute of de-matting work, pence.
	MattingFeePerMinute int64 = 200

	freeCancellationHours = 48
	halfFeeHours          = 24
	heavyCoatMultiplier   = 1.25
)

var sizeMultipliers = map[models.SizeCategory]float64{
	models.SizeExtraSmall: 0.8,
	models.SizeSmall:      1.0,
	models.SizeMedium:     1.3,
	models.SizeLarge:      1.6,
	models.SizeExtraLarge: 2.0,
	models.SizeGiant:      2.5,
}

// ResolvePrice returns the service's price for the size tier, or 0 when the
// tier is not configured.
func ResolvePrice(svc models.Service, size models.SizeCategory) int64 {
	if p := svc.Prices.For(size); p != nil {
		return *p
	}
	return 0
}

// EffectivePrice is the quoted price: the size tier, then the small tier,
// then 0.
func EffectivePrice(svc models.Service, size models.SizeCategory) int64 {
	if p := svc.Prices.For(size); p != nil {
		return *p
	}
	if svc.Prices.Small != nil {
		return *svc.Prices.Small
	}
	return 0
}

// SizeMultiplier returns the duration multiplier for a size; unknown sizes
// count as small.
func SizeMultiplier(size models.SizeCategory) float64 {
	if m, ok := sizeMultipliers[size]; ok {
		return m
	}
	return 1.0
}

// EstimateDuration scales the base duration by size and coat. The result is
// advisory and is not clamped.
func EstimateDuration(baseMinutes int, size models.SizeCategory, coat models.CoatType) int {
	d := float64(baseMinutes) * SizeMultiplier(size)
	if coat.HeavyCoat() {
		d *= heavyCoatMultiplier
	}
	return int(math.Round(d))
}

// CalculateDeposit returns floor(subtotal * pct). A non-positive pct uses
// DefaultDepositPercentage.
func CalculateDeposit(subtotal int64, pct float64) int64 {
	if subtotal <= 0 {
		return 0
	}
	if pct <= 0 {
		pct = DefaultDepositPercentage
	}
	return floorMul(subtotal, decimal.NewFromFloat(pct))
}

// CalculateCancellationFee applies the tiered cancellation policy.
// Exactly 48h and exactly 24h fall into the cheaper tier.
func CalculateCancellationFee(total int64, hoursUntil float64) int64 {
	switch {
	case total <= 0:
		return 0
	case hoursUntil >= freeCancellationHours:
		return 0
	case hoursUntil >= halfFeeHours:
		return floorMul(total, decimal.NewFromFloat(0.5))
	default:
		return total
	}
}

func CalculateMattingFee(minutes int) int64 {
	if minutes <= 0 {
		return 0
	}
	return int64(minutes) * MattingFeePerMinute
}

func floorMul(amount int64, factor decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(factor).Floor().IntPart()
}
