package memorystore

import (
	"context"
	"sync"
	"time"
)

// DefaultClaimTTL bounds how long a finish claim blocks other claimants.
const DefaultClaimTTL = 24 * time.Hour

// FinishLedger is an in-process core.FinishLedger. Claims expire after the
// TTL; a sweeper drops expired claims once a minute until Close.
type FinishLedger struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	claims map[string]time.Time // transaction id -> expiry

	stop     chan struct{}
	stopOnce sync.Once
}

// NewFinishLedger starts a ledger; ttl <= 0 means DefaultClaimTTL.
func NewFinishLedger(ttl time.Duration) *FinishLedger {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	l := &FinishLedger{
		ttl:    ttl,
		now:    time.Now,
		claims: make(map[string]time.Time),
		stop:   make(chan struct{}),
	}
	go l.sweepEvery(time.Minute)
	return l
}

// Claim reports true for the first caller per transaction id within the TTL.
func (l *FinishLedger) Claim(_ context.Context, transactionID string) (bool, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if exp, held := l.claims[transactionID]; held && now.Before(exp) {
		return false, nil
	}
	l.claims[transactionID] = now.Add(l.ttl)
	return true, nil
}

// Release drops the claim so the next Claim wins.
func (l *FinishLedger) Release(_ context.Context, transactionID string) error {
	l.mu.Lock()
	delete(l.claims, transactionID)
	l.mu.Unlock()
	return nil
}

func (l *FinishLedger) sweepEvery(d time.Duration) {
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

func (l *FinishLedger) sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, exp := range l.claims {
		if !now.Before(exp) {
			delete(l.claims, id)
		}
	}
}

// Close stops the sweeper. It is safe to call more than once.
func (l *FinishLedger) Close() error {
	l.stopOnce.Do(func() { close(l.stop) })
	return nil
}
