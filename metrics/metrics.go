package metrics

import (
	"github.com/PaulFidika/subkit/entitlements"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionsApplied counts state writes by source and resulting state.
	TransactionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subkit",
		Name:      "transactions_applied_total",
		Help:      "Entitlement state writes by source and result (purchased/not_purchased).",
	}, []string{"source", "result"})

	// PurchaseOutcomes counts purchase calls by outcome.
	PurchaseOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subkit",
		Name:      "purchase_outcomes_total",
		Help:      "Purchase calls by outcome.",
	}, []string{"outcome"})

	// EntitlementPurchased is 1 while the user is entitled.
	EntitlementPurchased = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "subkit",
		Name:      "entitlement_purchased",
		Help:      "1 when the current entitlement state is purchased, else 0.",
	})

	// ListenerRestarts counts update stream re-subscriptions.
	ListenerRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "subkit",
		Name:      "listener_restarts_total",
		Help:      "Update stream re-subscriptions after an abnormal end.",
	})
)

// Observer feeds the package metrics; it satisfies core.Observer. core.State
// calls TransactionApplied in write order, so EntitlementPurchased tracks the
// stored flag.
type Observer struct{}

func (Observer) TransactionApplied(source string, purchased bool) {
	result := "not_purchased"
	v := 0.0
	if purchased {
		result, v = "purchased", 1
	}
	TransactionsApplied.WithLabelValues(source, result).Inc()
	EntitlementPurchased.Set(v)
}

func (Observer) PurchaseCompleted(outcome entitlements.Outcome) {
	name := entitlements.Unknown{}.Name()
	if outcome != nil {
		name = outcome.Name()
	}
	PurchaseOutcomes.WithLabelValues(name).Inc()
}

func (Observer) ListenerRestarted() { ListenerRestarts.Inc() }
