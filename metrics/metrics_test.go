package metrics

import (
	"testing"

	core "github.com/PaulFidika/subkit/core"
	"github.com/PaulFidika/subkit/entitlements"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var _ core.Observer = Observer{}

func TestObserverTransactions(t *testing.T) {
	c := TransactionsApplied.WithLabelValues(core.SourceUpdates, "purchased")
	before := testutil.ToFloat64(c)

	var o Observer
	o.TransactionApplied(core.SourceUpdates, true)
	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Fatalf("expected one purchased write, got %v", got)
	}
	if testutil.ToFloat64(EntitlementPurchased) != 1 {
		t.Fatal("gauge must follow the state")
	}
	o.TransactionApplied(core.SourceSnapshot, false)
	if testutil.ToFloat64(EntitlementPurchased) != 0 {
		t.Fatal("gauge must drop with the state")
	}
}

func TestObserverOutcomesAndRestarts(t *testing.T) {
	var o Observer
	cancelled := PurchaseOutcomes.WithLabelValues("user_cancelled")
	unknown := PurchaseOutcomes.WithLabelValues("unknown")
	bc, bu, br := testutil.ToFloat64(cancelled), testutil.ToFloat64(unknown), testutil.ToFloat64(ListenerRestarts)

	o.PurchaseCompleted(entitlements.UserCancelled{})
	o.PurchaseCompleted(nil)
	o.ListenerRestarted()

	if testutil.ToFloat64(cancelled)-bc != 1 || testutil.ToFloat64(unknown)-bu != 1 {
		t.Fatal("outcomes not counted")
	}
	if testutil.ToFloat64(ListenerRestarts)-br != 1 {
		t.Fatal("restart not counted")
	}
}
