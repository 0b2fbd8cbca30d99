package core

import (
	"context"
	"sync"

	"github.com/PaulFidika/subkit/entitlements"
	"github.com/sirupsen/logrus"
)

// OnceFinisher forwards each transaction id to next at most once per process.
// A failed finish is forgotten so it can be retried.
type OnceFinisher struct {
	next Finisher

	mu   sync.Mutex
	done map[string]struct{}
}

func NewOnceFinisher(next Finisher) *OnceFinisher {
	return &OnceFinisher{next: next, done: make(map[string]struct{})}
}

func (f *OnceFinisher) Finish(ctx context.Context, rec entitlements.TransactionRecord) error {
	if f.next == nil {
		return nil
	}
	if rec.ID == "" {
		return f.next.Finish(ctx, rec)
	}
	f.mu.Lock()
	if _, ok := f.done[rec.ID]; ok {
		f.mu.Unlock()
		return nil
	}
	f.done[rec.ID] = struct{}{}
	f.mu.Unlock()

	if err := f.next.Finish(ctx, rec); err != nil {
		f.mu.Lock()
		delete(f.done, rec.ID)
		f.mu.Unlock()
		return err
	}
	return nil
}

// DedupFinisher claims the transaction in a shared ledger before forwarding,
// so replicas sharing the ledger finalize a transaction once between them.
// A failed finish releases the claim; Log (default logrus.StandardLogger)
// reports a release that fails, since that claim then blocks retries until
// it expires.
type DedupFinisher struct {
	Ledger FinishLedger
	Next   Finisher
	Log    logrus.FieldLogger
}

func (f DedupFinisher) Finish(ctx context.Context, rec entitlements.TransactionRecord) error {
	if f.Ledger == nil || rec.ID == "" {
		return f.Next.Finish(ctx, rec)
	}
	won, err := f.Ledger.Claim(ctx, rec.ID)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	if err := f.Next.Finish(ctx, rec); err != nil {
		if rerr := f.Ledger.Release(ctx, rec.ID); rerr != nil {
			log := f.Log
			if log == nil {
				log = logrus.StandardLogger()
			}
			log.WithError(rerr).WithField("transaction_id", rec.ID).Warn("finish claim release failed")
		}
		return err
	}
	return nil
}
