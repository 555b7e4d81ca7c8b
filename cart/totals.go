package cart

import (
	"github.com/shopspring/decimal"

	"github.com/itsneelabh/cartshare/api"
)

// Totals summarizes a basket for display.
type Totals struct {
	ItemCount int
	Total     decimal.Decimal
	// TotalFromSuggestions is the backend's projected total after applying
	// every suggestion, never above Total.
	TotalFromSuggestions decimal.Decimal
	PotentialSavings     decimal.Decimal
	Purchased            decimal.Decimal
	Remaining            decimal.Decimal
}

// ComputeTotals derives the display totals. Total is what the backend
// reports; Purchased and Remaining are computed from the lines.
func ComputeTotals(basket *api.ShoppingBasket) Totals {
	t := Totals{
		Total:                decimal.Zero,
		TotalFromSuggestions: decimal.Zero,
		PotentialSavings:     decimal.Zero,
		Purchased:            decimal.Zero,
		Remaining:            decimal.Zero,
	}
	if basket == nil {
		return t
	}

	t.Total = basket.Total
	t.TotalFromSuggestions = basket.Total
	if basket.TotalFromSuggestions != nil && !basket.TotalFromSuggestions.IsZero() {
		t.TotalFromSuggestions = decimal.Min(*basket.TotalFromSuggestions, basket.Total)
	}
	t.PotentialSavings = TotalPotentialSavings(ComputeSuggestions(basket))

	for _, item := range basket.Items {
		t.ItemCount += item.Quantity
		if item.Purchased {
			t.Purchased = t.Purchased.Add(item.LineTotal())
		} else {
			t.Remaining = t.Remaining.Add(item.LineTotal())
		}
	}
	return t
}

// Reconciliation compares the reported total with the sum of the lines.
type Reconciliation struct {
	Computed   decimal.Decimal
	Reported   decimal.Decimal
	Difference decimal.Decimal
}

// Balanced reports whether the totals agree to the cent.
func (r Reconciliation) Balanced() bool {
	return r.Difference.Abs().LessThan(decimal.New(1, -2))
}

// Reconcile checks the basket total against Σ price × quantity.
func Reconcile(basket *api.ShoppingBasket) Reconciliation {
	r := Reconciliation{Computed: decimal.Zero, Reported: decimal.Zero, Difference: decimal.Zero}
	if basket == nil {
		return r
	}
	for _, item := range basket.Items {
		r.Computed = r.Computed.Add(item.LineTotal())
	}
	r.Reported = basket.Total
	r.Difference = r.Reported.Sub(r.Computed)
	return r
}
