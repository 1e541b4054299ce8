// Package pricing annotates a slot run with the recommended-slot discount.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RecommendedDiscount is the flat rate applied when a run starts on a recommended slot.
var RecommendedDiscount = decimal.RequireFromString("0.10")

type Quote struct {
	Base     decimal.Decimal `json:"base"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

func ParsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q", s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("price must not be negative")
	}
	return d, nil
}

// QuoteRun prices a run. firstRecommended reports whether the run's first slot
// carries the upstream recommended flag; flags on later slots do not count.
func QuoteRun(base decimal.Decimal, firstRecommended bool) Quote {
	q := Quote{Base: base, Discount: decimal.Zero, Total: base}
	if firstRecommended {
		q.Discount = base.Mul(RecommendedDiscount).Round(2)
		q.Total = base.Sub(q.Discount)
	}
	return q
}
