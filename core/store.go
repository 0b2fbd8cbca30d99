package core

import (
	"context"

	"github.com/PaulFidika/subkit/entitlements"
)

// Catalog fetches product metadata for a list of product identifiers.
type Catalog interface {
	Products(ctx context.Context, ids []string) ([]entitlements.Product, error)
}

// EntitlementSource returns the transactions the user is currently entitled
// to, in store order. The result may be empty.
type EntitlementSource interface {
	CurrentEntitlements(ctx context.Context) ([]entitlements.TransactionRecord, error)
}

// UpdateSource opens the receiving end of the transaction update stream.
// The store owns the sending end and closes the channel when ctx is done
// or the stream breaks.
type UpdateSource interface {
	Updates(ctx context.Context) (<-chan entitlements.TransactionRecord, error)
}

// Purchaser starts a purchase for a product. A non-nil error is treated as
// an Unknown outcome.
type Purchaser interface {
	Purchase(ctx context.Context, product entitlements.Product) (entitlements.Outcome, error)
}

// Finisher acknowledges a transaction so the store stops redelivering it.
type Finisher interface {
	Finish(ctx context.Context, rec entitlements.TransactionRecord) error
}

// FinisherFunc adapts a function to Finisher.
type FinisherFunc func(ctx context.Context, rec entitlements.TransactionRecord) error

func (f FinisherFunc) Finish(ctx context.Context, rec entitlements.TransactionRecord) error {
	return f(ctx, rec)
}

// Publisher pushes a transaction onto the update stream (the sending end).
type Publisher interface {
	Publish(ctx context.Context, rec entitlements.TransactionRecord) error
}

// FinishLedger claims a transaction id so that finalize runs once across
// processes. Claim reports whether the caller won; Release gives the claim
// back after a failed finalize.
type FinishLedger interface {
	Claim(ctx context.Context, transactionID string) (bool, error)
	Release(ctx context.Context, transactionID string) error
}
