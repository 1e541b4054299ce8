package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestQuoteRun(t *testing.T) {
	tests := []struct {
		name        string
		base        string
		recommended bool
		discount    string
		total       string
	}{
		{name: "plain", base: "80.00", recommended: false, discount: "0", total: "80"},
		{name: "recommended", base: "80.00", recommended: true, discount: "8", total: "72"},
		{name: "rounds to cents", base: "19.99", recommended: true, discount: "2", total: "17.99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, err := ParsePrice(tt.base)
			if err != nil {
				t.Fatalf("ParsePrice error: %v", err)
			}
			q := QuoteRun(base, tt.recommended)
			if !q.Discount.Equal(decimal.RequireFromString(tt.discount)) {
				t.Fatalf("discount = %s, want %s", q.Discount, tt.discount)
			}
			if !q.Total.Equal(decimal.RequireFromString(tt.total)) {
				t.Fatalf("total = %s, want %s", q.Total, tt.total)
			}
		})
	}
}

func TestParsePrice_Rejects(t *testing.T) {
	for _, s := range []string{"", "abc", "-1"} {
		if _, err := ParsePrice(s); err == nil {
			t.Fatalf("ParsePrice(%q) expected error", s)
		}
	}
}
