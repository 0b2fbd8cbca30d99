package memorystore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/PaulFidika/subkit/entitlements"
	"github.com/google/uuid"
)

// ErrClosed is returned by Updates after Close.
var ErrClosed = errors.New("memorystore: closed")

// Store is an in-process entitlement store. It serves a fixed catalog, keeps
// the current entitlement snapshot, fans published transactions out to every
// subscriber and records finished transactions. Purchases either follow a
// scripted queue of outcomes or succeed with a fresh verified transaction.
type Store struct {
	mu       sync.Mutex
	products map[string]entitlements.Product
	entitled []entitlements.TransactionRecord
	script   []entitlements.Outcome
	finished map[string]int
	subs     map[*subscriber]struct{}
	buffer   int
	now      func() time.Time
	closed   bool

	catalogErr  error
	purchaseErr error
}

// New creates a store serving products.
func New(products ...entitlements.Product) *Store {
	s := &Store{
		products: make(map[string]entitlements.Product, len(products)),
		finished: make(map[string]int),
		subs:     make(map[*subscriber]struct{}),
		buffer:   16,
		now:      time.Now,
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

// Products returns the known products in the order of ids; unknown ids are skipped.
func (s *Store) Products(ctx context.Context, ids []string) ([]entitlements.Product, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.catalogErr != nil {
		return nil, s.catalogErr
	}
	out := make([]entitlements.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// CurrentEntitlements returns a copy of the snapshot, newest first.
func (s *Store) CurrentEntitlements(ctx context.Context) ([]entitlements.TransactionRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entitlements.TransactionRecord{}, s.entitled...), nil
}

// SetEntitlements replaces the snapshot.
func (s *Store) SetEntitlements(recs ...entitlements.TransactionRecord) {
	s.mu.Lock()
	s.entitled = append([]entitlements.TransactionRecord(nil), recs...)
	s.mu.Unlock()
}

// FailCatalog makes Products return err until called again with nil.
func (s *Store) FailCatalog(err error) {
	s.mu.Lock()
	s.catalogErr = err
	s.mu.Unlock()
}

// FailPurchases makes Purchase return err until called again with nil.
func (s *Store) FailPurchases(err error) {
	s.mu.Lock()
	s.purchaseErr = err
	s.mu.Unlock()
}

// Script queues outcomes returned by the next Purchase calls, in order.
func (s *Store) Script(outcomes ...entitlements.Outcome) {
	s.mu.Lock()
	s.script = append(s.script, outcomes...)
	s.mu.Unlock()
}

// Purchase pops the next scripted outcome, or completes the purchase with a
// new verified transaction expiring one product period from now. Verified
// successes are added to the front of the snapshot.
func (s *Store) Purchase(ctx context.Context, product entitlements.Product) (entitlements.Outcome, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.purchaseErr != nil {
		return nil, s.purchaseErr
	}
	var out entitlements.Outcome
	if len(s.script) > 0 {
		out, s.script = s.script[0], s.script[1:]
	} else {
		out = entitlements.Success{Transaction: s.newTransaction(product)}
	}
	if ok, isSuccess := out.(entitlements.Success); isSuccess && ok.Transaction.Verified() {
		s.entitled = append([]entitlements.TransactionRecord{ok.Transaction}, s.entitled...)
	}
	return out, nil
}

func (s *Store) newTransaction(product entitlements.Product) entitlements.TransactionRecord {
	now := s.now().UTC()
	id := uuid.NewString()
	rec := entitlements.TransactionRecord{
		ID:           id,
		OriginalID:   id,
		ProductID:    product.ID,
		Verification: entitlements.Verified,
		PurchasedAt:  now,
		Environment:  "memory",
	}
	if exp, ok := addPeriod(now, product.Period); ok {
		rec.ExpiresAt = &exp
	}
	return rec
}

func addPeriod(t time.Time, p entitlements.Period) (time.Time, bool) {
	n := p.Value
	if n <= 0 {
		n = 1
	}
	switch p.Unit {
	case entitlements.PeriodDay:
		return t.AddDate(0, 0, n), true
	case entitlements.PeriodWeek:
		return t.AddDate(0, 0, 7*n), true
	case entitlements.PeriodMonth:
		return t.AddDate(0, n, 0), true
	case entitlements.PeriodYear:
		return t.AddDate(n, 0, 0), true
	default:
		return time.Time{}, false
	}
}

// Finish marks rec as finished. Finishing again is a no-op.
func (s *Store) Finish(ctx context.Context, rec entitlements.TransactionRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished[rec.ID]++
	return nil
}

// Finished reports whether id was finished and how many finish calls arrived.
func (s *Store) Finished(id string) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.finished[id]
	return n > 0, n
}

// Updates subscribes to published transactions. The channel is closed when
// ctx is done, on Disconnect, or on Close.
func (s *Store) Updates(ctx context.Context) (<-chan entitlements.TransactionRecord, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	sub := newSubscriber(s.buffer)
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-sub.done:
		}
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
		sub.close()
	}()
	return sub.ch, nil
}

// Publish delivers rec to every current subscriber, blocking while a
// subscriber's buffer is full.
func (s *Store) Publish(ctx context.Context, rec entitlements.TransactionRecord) error {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()
	for _, sub := range subs {
		if err := sub.send(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Subscribers returns the number of open update subscriptions.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Disconnect ends every open subscription without closing the store,
// as a broken connection would.
func (s *Store) Disconnect() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[*subscriber]struct{})
	s.mu.Unlock()
	for sub := range subs {
		sub.close()
	}
}

// Close ends all subscriptions and rejects new ones.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Disconnect()
	return nil
}

type subscriber struct {
	ch   chan entitlements.TransactionRecord
	done chan struct{}
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

func newSubscriber(buffer int) *subscriber {
	return &subscriber{ch: make(chan entitlements.TransactionRecord, buffer), done: make(chan struct{})}
}

func (sb *subscriber) send(ctx context.Context, rec entitlements.TransactionRecord) error {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	if sb.closed {
		return nil
	}
	select {
	case sb.ch <- rec:
		return nil
	case <-sb.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (sb *subscriber) close() {
	sb.once.Do(func() {
		close(sb.done)
		sb.mu.Lock()
		sb.closed = true
		close(sb.ch)
		sb.mu.Unlock()
	})
}
