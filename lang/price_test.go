package lang

import (
	"context"
	"testing"

	"github.com/PaulFidika/subkit/entitlements"
)

func TestPriceLabel(t *testing.T) {
	month := entitlements.Period{Unit: entitlements.PeriodMonth, Value: 1}
	cases := []struct {
		lang, price string
		period      entitlements.Period
		want        string
	}{
		{"ja", "¥480", month, "¥480/月"},
		{"en", "$4.99", month, "$4.99/month"},
		{"es", "4,99 €", entitlements.Period{Unit: entitlements.PeriodYear, Value: 1}, "4,99 €/año"},
		{"ja", "¥1,200", entitlements.Period{Unit: entitlements.PeriodMonth, Value: 3}, "¥1,200/3か月"},
		{"en", "$9.99", entitlements.Period{Unit: entitlements.PeriodWeek, Value: 2}, "$9.99/2 weeks"},
		{"de", "$4.99", month, "$4.99/month"},
		{"en", "$4.99", entitlements.Period{}, "$4.99"},
	}
	for _, tc := range cases {
		if got := PriceLabel(tc.lang, tc.price, tc.period); got != tc.want {
			t.Errorf("PriceLabel(%q, %q, %+v) = %q, want %q", tc.lang, tc.price, tc.period, got, tc.want)
		}
	}
}

func TestPriceLabelFromContext(t *testing.T) {
	ctx := NewContext(context.Background(), "ja")
	if got := PriceLabelFromContext(ctx, "¥480", entitlements.Period{Unit: entitlements.PeriodMonth, Value: 1}); got != "¥480/月" {
		t.Fatalf("got %q", got)
	}
	if got := PriceLabelFromContext(context.Background(), "$1", entitlements.Period{Unit: entitlements.PeriodDay, Value: 1}); got != "$1/day" {
		t.Fatalf("got %q", got)
	}
}
