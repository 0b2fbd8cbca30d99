package memorylimiter

import (
	"sync"
	"time"

	"github.com/PaulFidika/subkit/ratelimit"
)

// Limiter is an in-memory sliding-window rate limiter for a single replica.
// Use the redis limiter when several replicas share the limits.
type Limiter struct {
	limits ratelimit.Limits
	now    func() time.Time

	mu   sync.Mutex
	hits map[string]*window

	stop     chan struct{}
	stopOnce sync.Once
}

type window struct {
	span time.Duration
	hits []time.Time
}

// New starts a limiter whose sweeper drops idle keys once a minute until
// Close.
func New(limits ratelimit.Limits) *Limiter {
	l := &Limiter{
		limits: limits,
		now:    time.Now,
		hits:   make(map[string]*window),
		stop:   make(chan struct{}),
	}
	go l.sweepEvery(time.Minute)
	return l
}

// AllowNamed records one hit for key in bucket and reports whether it fits
// the window. Denied hits are not recorded.
func (l *Limiter) AllowNamed(bucket, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	name, err := ratelimit.Key(bucket, key)
	if err != nil {
		return false, err
	}
	lim := l.limits.For(bucket)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.hits[name]
	if w == nil {
		w = &window{span: lim.Window}
		l.hits[name] = w
	}
	w.span = lim.Window
	w.trim(now)
	if len(w.hits) >= lim.Limit {
		return false, nil
	}
	w.hits = append(w.hits, now)
	return true, nil
}

func (w *window) trim(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.hits) && !w.hits[i].After(cutoff) {
		i++
	}
	w.hits = w.hits[i:]
}

func (l *Limiter) sweepEvery(d time.Duration) {
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

// sweep drops every key with no hit left in its window.
func (l *Limiter) sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for name, w := range l.hits {
		w.trim(now)
		if len(w.hits) == 0 {
			delete(l.hits, name)
		}
	}
}

// Close stops the sweeper. It is safe to call more than once.
func (l *Limiter) Close() error {
	if l == nil {
		return nil
	}
	l.stopOnce.Do(func() { close(l.stop) })
	return nil
}
