package pricing

import (
	"smarterdog/internal/models"
)

type Quote struct {
	Main            models.LineItem   `json:"main"`
	AddOns          []models.LineItem `json:"add_ons"`
	SubtotalCents   int64             `json:"subtotal"`
	DepositCents    int64             `json:"deposit"`
	TotalCents      int64             `json:"total"`
	BalanceDueCents int64             `json:"balance_due"`
	DurationMinutes int               `json:"duration_minutes"`

	// MainPriceMissing is set when the main service resolved to a zero price,
	// which usually means the catalog is misconfigured.
	MainPriceMissing bool `json:"-"`
}

// LineItemFor prices a service for a size. Add-ons keep their base duration;
// the main service duration is estimated separately.
func LineItemFor(svc models.Service, size models.SizeCategory) models.LineItem {
	return models.LineItem{
		ServiceID:       svc.ID,
		Name:            svc.Name,
		Type:            svc.Type,
		PriceCents:      EffectivePrice(svc, size),
		DurationMinutes: svc.BaseDurationMinutes,
	}
}

// BuildQuote prices the main service and add-ons for a pet.
func BuildQuote(main models.Service, addOns []models.Service, size models.SizeCategory, coat models.CoatType, depositPct float64) Quote {
	mainLine := LineItemFor(main, size)
	mainLine.DurationMinutes = EstimateDuration(main.BaseDurationMinutes, size, coat)

	lines := make([]models.LineItem, 0, len(addOns))
	for _, a := range addOns {
		lines = append(lines, LineItemFor(a, size))
	}
	return QuoteFromLines(mainLine, lines, depositPct)
}

// QuoteFromLines totals already priced line items.
func QuoteFromLines(main models.LineItem, addOns []models.LineItem, depositPct float64) Quote {
	if addOns == nil {
		addOns = []models.LineItem{}
	}
	subtotal := main.PriceCents
	duration := main.DurationMinutes
	for _, a := range addOns {
		subtotal += a.PriceCents
		duration += a.DurationMinutes
	}

	deposit := CalculateDeposit(subtotal, depositPct)
	return Quote{
		Main:             main,
		AddOns:           addOns,
		SubtotalCents:    subtotal,
		DepositCents:     deposit,
		TotalCents:       subtotal,
		BalanceDueCents:  subtotal - deposit,
		DurationMinutes:  duration,
		MainPriceMissing: main.PriceCents == 0,
	}
}
