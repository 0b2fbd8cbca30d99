package core

import (
	"context"
	"time"

	"github.com/PaulFidika/subkit/entitlements"
	"github.com/sirupsen/logrus"
)

// Decide maps one transaction to an entitlement decision. The first matching
// rule wins:
//  1. unverified → false
//  2. revoked → false
//  3. expired (expiration before now) → false
//  4. upgraded → true (a higher tier is active)
//  5. otherwise → true
func Decide(rec entitlements.TransactionRecord, now time.Time) bool {
	switch {
	case !rec.Verified():
		return false
	case rec.RevokedAt != nil:
		return false
	case rec.ExpiresAt != nil && rec.ExpiresAt.Before(now):
		return false
	case rec.IsUpgraded:
		return true
	default:
		return true
	}
}

// Reconciler derives the purchased flag from transaction evidence and writes
// it into a State it does not own.
type Reconciler struct {
	state   *State
	now     func() time.Time
	log     logrus.FieldLogger
	obs     Observer
	auditor TransactionAuditor
}

// Option configures a Reconciler or a Service.
type Option func(*options)

type options struct {
	now     func() time.Time
	log     logrus.FieldLogger
	obs     Observer
	auditor TransactionAuditor
	state   *State
}

// WithClock overrides time.Now for expiration checks.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithLogger sets the logger; defaults to logrus.StandardLogger().
func WithLogger(l logrus.FieldLogger) Option { return func(o *options) { o.log = l } }

// WithObserver receives reconciliation events.
func WithObserver(obs Observer) Option { return func(o *options) { o.obs = obs } }

// WithAuditor records every transaction that reaches the reconciler with a context.
func WithAuditor(a TransactionAuditor) Option { return func(o *options) { o.auditor = a } }

// WithState makes a Service write into an existing State instead of a new one.
func WithState(s *State) Option { return func(o *options) { o.state = s } }

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.log == nil {
		o.log = logrus.StandardLogger()
	}
	if o.obs == nil {
		o.obs = nopObserver{}
	}
	return o
}

// NewReconciler builds a reconciler writing into state.
func NewReconciler(state *State, opts ...Option) *Reconciler {
	o := buildOptions(opts)
	return &Reconciler{state: state, now: o.now, log: o.log, obs: o.obs, auditor: o.auditor}
}

// State returns the state the reconciler writes into.
func (r *Reconciler) State() *State { return r.state }

// ApplyTransaction decides rec and overwrites the purchased flag with the
// result. It never fails.
func (r *Reconciler) ApplyTransaction(rec entitlements.TransactionRecord) bool {
	return r.write(SourceUpdates, rec, Decide(rec, r.now()))
}

// RefreshFromEntitlements applies an entitlement snapshot. Only the first
// record is inspected and only its verification status counts; revocation,
// expiration and upgrade are not checked on this path. An empty snapshot
// leaves the flag as it was.
func (r *Reconciler) RefreshFromEntitlements(records []entitlements.TransactionRecord) bool {
	if len(records) == 0 {
		return r.state.Purchased()
	}
	first := records[0]
	return r.write(SourceSnapshot, first, first.Verified())
}

// Refresh queries src and applies the result with RefreshFromEntitlements.
// A failed query leaves the flag untouched and returns a *StoreError.
func (r *Reconciler) Refresh(ctx context.Context, src EntitlementSource) (bool, error) {
	records, err := src.CurrentEntitlements(ctx)
	if err != nil {
		r.log.WithError(err).Warn("entitlement snapshot query failed")
		return r.state.Purchased(), &StoreError{Op: "current entitlements", Err: err}
	}
	purchased := r.RefreshFromEntitlements(records)
	if len(records) > 0 {
		r.audit(ctx, SourceSnapshot, records[0])
	}
	return purchased, nil
}

// Listen applies every record from updates, in delivery order, until ctx is
// cancelled or the channel closes. A record taken off the channel is applied
// in full before cancellation is observed again.
func (r *Reconciler) Listen(ctx context.Context, updates <-chan entitlements.TransactionRecord) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				return ErrStreamClosed
			}
			r.ApplyTransaction(rec)
			r.audit(ctx, SourceUpdates, rec)
		}
	}
}

func (r *Reconciler) write(source string, rec entitlements.TransactionRecord, purchased bool) bool {
	r.state.set(source, purchased, &rec, r.now(), func() { r.obs.TransactionApplied(source, purchased) })
	entry := r.log.WithFields(logrus.Fields{
		"source":         source,
		"transaction_id": rec.ID,
		"product_id":     rec.ProductID,
		"purchased":      purchased,
	})
	if err := rec.VerificationErr(); err != nil {
		entry = entry.WithError(err)
	}
	entry.Debug("transaction applied")
	return purchased
}

// clear records a non-entitling outcome that carries no transaction.
func (r *Reconciler) clear(source string) {
	r.state.set(source, false, nil, r.now(), func() { r.obs.TransactionApplied(source, false) })
}

func (r *Reconciler) audit(ctx context.Context, source string, rec entitlements.TransactionRecord) {
	if r.auditor == nil {
		return
	}
	if err := r.auditor.LogTransaction(ctx, source, rec); err != nil {
		r.log.WithError(err).WithField("transaction_id", rec.ID).Warn("transaction audit failed")
	}
}
