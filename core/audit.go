package core

import (
	"context"

	"github.com/PaulFidika/subkit/entitlements"
)

// Sources passed to TransactionAuditor and Observer.
const (
	SourceUpdates  = "updates"
	SourceSnapshot = "snapshot"
	SourcePurchase = "purchase"
)

// TransactionAuditor records processed transactions to an external sink (e.g., Postgres).
// Implementations should be non-blocking and best-effort.
type TransactionAuditor interface {
	LogTransaction(ctx context.Context, source string, rec entitlements.TransactionRecord) error
}

// Observer receives reconciliation events, typically for metrics.
type Observer interface {
	TransactionApplied(source string, purchased bool)
	PurchaseCompleted(outcome entitlements.Outcome)
	ListenerRestarted()
}

type nopObserver struct{}

func (nopObserver) TransactionApplied(string, bool)        {}
func (nopObserver) PurchaseCompleted(entitlements.Outcome) {}
func (nopObserver) ListenerRestarted()                     {}
