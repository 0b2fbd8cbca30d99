package core

import (
	"context"

	"github.com/PaulFidika/subkit/entitlements"
	"github.com/sirupsen/logrus"
)

// PurchaseFlow runs a purchase and settles the purchased flag from its outcome.
type PurchaseFlow struct {
	rec       *Reconciler
	purchaser Purchaser
	finisher  Finisher
	log       logrus.FieldLogger
}

// NewPurchaseFlow wraps finisher in a OnceFinisher unless it already is one.
func NewPurchaseFlow(rec *Reconciler, purchaser Purchaser, finisher Finisher) *PurchaseFlow {
	if _, ok := finisher.(*OnceFinisher); !ok {
		finisher = NewOnceFinisher(finisher)
	}
	return &PurchaseFlow{
		rec:       rec,
		purchaser: purchaser,
		finisher:  finisher,
		log:       rec.log.WithField("component", "purchase"),
	}
}

// Purchase initiates a purchase of product.
//
//   - Success, verified: purchased = true, transaction finalized.
//   - Success, unverified: purchased = false, transaction still finalized so
//     the store does not redeliver it forever.
//   - Pending, UserCancelled, Unknown: purchased = false, nothing finalized.
//
// A purchaser error becomes Unknown{Err: *StoreError}. Finalize failures are
// logged and do not change the outcome.
func (f *PurchaseFlow) Purchase(ctx context.Context, product entitlements.Product) entitlements.Outcome {
	out, err := f.purchaser.Purchase(ctx, product)
	if err != nil {
		f.log.WithError(err).WithField("product_id", product.ID).Warn("purchase call failed")
		out = entitlements.Unknown{Err: &StoreError{Op: "purchase", Err: err}}
	}

	switch o := out.(type) {
	case entitlements.Success:
		tx := o.Transaction
		f.rec.write(SourcePurchase, tx, tx.Verified())
		f.rec.audit(ctx, SourcePurchase, tx)
		if err := f.finisher.Finish(ctx, tx); err != nil {
			f.log.WithError(err).WithField("transaction_id", tx.ID).Error("failed to finish transaction")
		}
	case entitlements.Pending, entitlements.UserCancelled, entitlements.Unknown:
		f.rec.clear(SourcePurchase)
	default:
		out = entitlements.Unknown{}
		f.rec.clear(SourcePurchase)
	}

	f.rec.obs.PurchaseCompleted(out)
	f.log.WithFields(logrus.Fields{
		"product_id": product.ID,
		"outcome":    out.Name(),
		"purchased":  f.rec.state.Purchased(),
	}).Info("purchase completed")
	return out
}
