package memorystore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/PaulFidika/subkit/entitlements"
)

var monthly = entitlements.Product{
	ID:           "com.sample.app.subscription.standard",
	DisplayName:  "Standard",
	DisplayPrice: "¥480",
	Period:       entitlements.Period{Unit: entitlements.PeriodMonth, Value: 1},
}

func TestProductsSkipsUnknownIDs(t *testing.T) {
	s := New(monthly)
	ps, err := s.Products(context.Background(), []string{"nope", monthly.ID})
	if err != nil || len(ps) != 1 || ps[0].ID != monthly.ID {
		t.Fatalf("unexpected products: %v %v", ps, err)
	}
	s.FailCatalog(errors.New("offline"))
	if _, err := s.Products(context.Background(), []string{monthly.ID}); err == nil {
		t.Fatal("expected catalog error")
	}
}

func TestDefaultPurchaseIsVerifiedAndEntitled(t *testing.T) {
	s := New(monthly)
	now := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	out, err := s.Purchase(context.Background(), monthly)
	if err != nil {
		t.Fatal(err)
	}
	ok, isSuccess := out.(entitlements.Success)
	if !isSuccess || !ok.Transaction.Verified() || ok.Transaction.ID == "" {
		t.Fatalf("unexpected outcome: %#v", out)
	}
	if ok.Transaction.ExpiresAt == nil || !ok.Transaction.ExpiresAt.Equal(now.AddDate(0, 1, 0)) {
		t.Fatalf("unexpected expiry: %v", ok.Transaction.ExpiresAt)
	}
	recs, _ := s.CurrentEntitlements(context.Background())
	if len(recs) != 1 || recs[0].ID != ok.Transaction.ID {
		t.Fatalf("purchase not reflected in entitlements: %v", recs)
	}
}

func TestScriptedPurchases(t *testing.T) {
	s := New(monthly)
	s.Script(entitlements.Pending{}, entitlements.UserCancelled{})
	for _, want := range []string{"pending", "user_cancelled", "success"} {
		out, err := s.Purchase(context.Background(), monthly)
		if err != nil || out.Name() != want {
			t.Fatalf("got %v %v, want %s", out, err, want)
		}
	}
	s.FailPurchases(errors.New("boom"))
	if _, err := s.Purchase(context.Background(), monthly); err == nil {
		t.Fatal("expected purchase error")
	}
}

func TestFinishCountsCalls(t *testing.T) {
	s := New()
	rec := entitlements.TransactionRecord{ID: "t1"}
	_ = s.Finish(context.Background(), rec)
	_ = s.Finish(context.Background(), rec)
	if done, n := s.Finished("t1"); !done || n != 2 {
		t.Fatalf("got %v %d", done, n)
	}
	if done, _ := s.Finished("t2"); done {
		t.Fatal("t2 was never finished")
	}
}

func TestPublishFansOut(t *testing.T) {
	s := New()
	a, err := s.Updates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	b, _ := s.Updates(context.Background())
	if err := s.Publish(context.Background(), entitlements.TransactionRecord{ID: "u1"}); err != nil {
		t.Fatal(err)
	}
	for _, ch := range []<-chan entitlements.TransactionRecord{a, b} {
		if rec := <-ch; rec.ID != "u1" {
			t.Fatalf("unexpected record %v", rec)
		}
	}
}

func TestDisconnectClosesSubscriptions(t *testing.T) {
	s := New()
	ch, _ := s.Updates(context.Background())
	s.Disconnect()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	if s.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", s.Subscribers())
	}
	if _, err := s.Updates(context.Background()); err != nil {
		t.Fatal("store must accept subscriptions after Disconnect")
	}
	_ = s.Close()
	if _, err := s.Updates(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestCancelledSubscriptionCloses(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := s.Updates(ctx)
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("unexpected record")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	// Publishing after the subscriber left must not block.
	if err := s.Publish(context.Background(), entitlements.TransactionRecord{ID: "late"}); err != nil {
		t.Fatal(err)
	}
}

func TestFinishLedgerClaimOnce(t *testing.T) {
	l := NewFinishLedger(time.Minute)
	defer l.Close()
	ctx := context.Background()
	if ok, _ := l.Claim(ctx, "t1"); !ok {
		t.Fatal("first claim must win")
	}
	if ok, _ := l.Claim(ctx, "t1"); ok {
		t.Fatal("second claim must lose")
	}
	_ = l.Release(ctx, "t1")
	if ok, _ := l.Claim(ctx, "t1"); !ok {
		t.Fatal("claim after release must win")
	}
}

func TestFinishLedgerExpiry(t *testing.T) {
	l := NewFinishLedger(time.Minute)
	defer l.Close()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = l.Claim(ctx, "t1")
	now = now.Add(2 * time.Minute)
	if ok, _ := l.Claim(ctx, "t1"); !ok {
		t.Fatal("expired claim must be reclaimable")
	}
	_, _ = l.Claim(ctx, "t2")
	now = now.Add(2 * time.Minute)
	l.sweep()
	if n := len(l.claims); n != 0 {
		t.Fatalf("sweep left %d claims", n)
	}
	_ = l.Close()
	_ = l.Close()
}
