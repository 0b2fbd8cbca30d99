package core

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/PaulFidika/subkit/entitlements"
)

// Snapshot is what the presentation layer observes. Transaction is the record
// behind the latest write, nil when the write came from a purchase outcome
// without one or when nothing was written yet. Source names the writer
// (SourceUpdates, SourceSnapshot or SourcePurchase).
type Snapshot struct {
	Purchased   bool
	Transaction *entitlements.TransactionRecord
	Source      string
	UpdatedAt   time.Time
}

// State holds the purchased flag. It starts NotEntitled and is only written
// by the Reconciler; every write replaces the previous value in one atomic
// store (last writer wins). Reads never block. Writes are serialized together
// with their OnChange hooks and observer call, so the last hook to run and
// the last gauge value always match the stored flag.
type State struct {
	cur atomic.Pointer[Snapshot]

	wmu sync.Mutex // held across a store and its notifications

	mu       sync.Mutex
	onChange []func(purchased bool)
}

func NewState() *State {
	s := &State{}
	s.cur.Store(&Snapshot{})
	return s
}

// Purchased reports whether the user is currently entitled.
func (s *State) Purchased() bool { return s.cur.Load().Purchased }

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot { return *s.cur.Load() }

// OnChange registers fn to run after a write that flips the flag. fn runs
// while writes are held off, so it must not call back into the Reconciler.
func (s *State) OnChange(fn func(purchased bool)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// set stores the new value, then calls applied (when non-nil) and, if the
// flag flipped, the OnChange hooks before the next write can start.
func (s *State) set(source string, purchased bool, rec *entitlements.TransactionRecord, at time.Time, applied func()) {
	var tx *entitlements.TransactionRecord
	if rec != nil {
		cp := *rec
		tx = &cp
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	prev := s.cur.Swap(&Snapshot{Purchased: purchased, Transaction: tx, Source: source, UpdatedAt: at})
	if applied != nil {
		applied()
	}
	if prev.Purchased == purchased {
		return
	}
	s.mu.Lock()
	hooks := append([]func(bool){}, s.onChange...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(purchased)
	}
}
