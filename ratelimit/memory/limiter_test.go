package memorylimiter

import (
	"testing"
	"time"

	"github.com/PaulFidika/subkit/ratelimit"
)

func TestSlidingWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(ratelimit.Limits{"purchase": {Limit: 2, Window: time.Minute}})
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, err := l.AllowNamed("purchase", "1.2.3.4"); err != nil || !ok {
			t.Fatalf("hit %d should pass: %v %v", i, ok, err)
		}
	}
	if ok, _ := l.AllowNamed("purchase", "1.2.3.4"); ok {
		t.Fatal("third hit in window must be denied")
	}
	if ok, _ := l.AllowNamed("purchase", "5.6.7.8"); !ok {
		t.Fatal("other keys are independent")
	}
	now = now.Add(61 * time.Second)
	if ok, _ := l.AllowNamed("purchase", "1.2.3.4"); !ok {
		t.Fatal("hits outside the window must expire")
	}
}

func TestDefaultsAndValidation(t *testing.T) {
	l := New(ratelimit.Limits{ratelimit.DefaultBucket: {Limit: 1, Window: time.Hour}})
	if ok, _ := l.AllowNamed("refresh", "k"); !ok {
		t.Fatal("first hit should pass")
	}
	if ok, _ := l.AllowNamed("refresh", "k"); ok {
		t.Fatal("default limit must apply to unknown buckets")
	}
	if _, err := l.AllowNamed("", "k"); err == nil {
		t.Fatal("expected error for empty bucket")
	}
	var nilLimiter *Limiter
	if ok, err := nilLimiter.AllowNamed("x", "y"); !ok || err != nil {
		t.Fatal("nil limiter allows everything")
	}
}

func TestSweepDropsIdleKeys(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(ratelimit.Limits{
		"purchase": {Limit: 5, Window: time.Minute},
		"refresh":  {Limit: 5, Window: time.Hour},
	})
	defer l.Close()
	l.now = func() time.Time { return now }

	for _, k := range []string{"a", "b"} {
		if ok, err := l.AllowNamed("purchase", k); err != nil || !ok {
			t.Fatalf("hit for %s should pass: %v %v", k, ok, err)
		}
	}
	if ok, _ := l.AllowNamed("refresh", "a"); !ok {
		t.Fatal("refresh hit should pass")
	}

	now = now.Add(2 * time.Minute)
	l.sweep()
	l.mu.Lock()
	n := len(l.hits)
	_, kept := l.hits["refresh:a"]
	l.mu.Unlock()
	if n != 1 || !kept {
		t.Fatalf("expected only the hour-window key to survive, have %d keys (refresh kept: %v)", n, kept)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
}
