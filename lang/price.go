package lang

import (
	"context"
	"fmt"

	"github.com/PaulFidika/subkit/entitlements"
)

type periodWords struct {
	one  map[entitlements.PeriodUnit]string
	many map[entitlements.PeriodUnit]string // format with the count
}

var periodLabels = map[string]periodWords{
	"en": {
		one: map[entitlements.PeriodUnit]string{
			entitlements.PeriodDay: "/day", entitlements.PeriodWeek: "/week",
			entitlements.PeriodMonth: "/month", entitlements.PeriodYear: "/year",
		},
		many: map[entitlements.PeriodUnit]string{
			entitlements.PeriodDay: "/%d days", entitlements.PeriodWeek: "/%d weeks",
			entitlements.PeriodMonth: "/%d months", entitlements.PeriodYear: "/%d years",
		},
	},
	"ja": {
		one: map[entitlements.PeriodUnit]string{
			entitlements.PeriodDay: "/日", entitlements.PeriodWeek: "/週",
			entitlements.PeriodMonth: "/月", entitlements.PeriodYear: "/年",
		},
		many: map[entitlements.PeriodUnit]string{
			entitlements.PeriodDay: "/%d日", entitlements.PeriodWeek: "/%d週間",
			entitlements.PeriodMonth: "/%dか月", entitlements.PeriodYear: "/%d年",
		},
	},
	"es": {
		one: map[entitlements.PeriodUnit]string{
			entitlements.PeriodDay: "/día", entitlements.PeriodWeek: "/semana",
			entitlements.PeriodMonth: "/mes", entitlements.PeriodYear: "/año",
		},
		many: map[entitlements.PeriodUnit]string{
			entitlements.PeriodDay: "/%d días", entitlements.PeriodWeek: "/%d semanas",
			entitlements.PeriodMonth: "/%d meses", entitlements.PeriodYear: "/%d años",
		},
	},
}

// PriceLabel appends the billing period to the store-formatted price in the
// given language, e.g. "¥480/月" or "$4.99/month". Unknown languages fall
// back to English; an unknown period leaves the price as is.
func PriceLabel(language, displayPrice string, p entitlements.Period) string {
	words, ok := periodLabels[language]
	if !ok {
		words = periodLabels[Default]
	}
	if p.Value > 1 {
		if f, ok := words.many[p.Unit]; ok {
			return displayPrice + fmt.Sprintf(f, p.Value)
		}
		return displayPrice
	}
	return displayPrice + words.one[p.Unit]
}

// PriceLabelFromContext is PriceLabel using the request language from ctx.
func PriceLabelFromContext(ctx context.Context, displayPrice string, p entitlements.Period) string {
	return PriceLabel(FromContext(ctx), displayPrice, p)
}
