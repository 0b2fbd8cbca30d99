package entitlements

import (
	"errors"
	"testing"
	"time"
)

func TestVerifiedOnlyForExactStatus(t *testing.T) {
	cases := map[Verification]bool{
		Verified:   true,
		Unverified: false,
		"":         false,
		"VERIFIED": false,
	}
	for v, want := range cases {
		if got := (TransactionRecord{Verification: v}).Verified(); got != want {
			t.Errorf("Verification %q: got %v want %v", v, got, want)
		}
	}
}

func TestVerificationErr(t *testing.T) {
	if err := (TransactionRecord{Verification: Verified}).VerificationErr(); err != nil {
		t.Fatalf("verified record returned error: %v", err)
	}
	rec := TransactionRecord{ID: "tx-1", VerificationError: "invalid signature"}
	err := rec.VerificationErr()
	var verr *VerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *VerificationError, got %T", err)
	}
	if verr.TransactionID != "tx-1" || verr.Detail != "invalid signature" {
		t.Fatalf("unexpected error fields: %+v", verr)
	}
	if err.Error() != "transaction tx-1 verification failed: invalid signature" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestFromRecord(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := TransactionRecord{ID: "tx-2", OriginalID: "otx-1", ProductID: "com.sample.app.subscription.standard", ExpiresAt: &exp, IsUpgraded: true}
	e := FromRecord(rec, "storekit")
	if e.Name != rec.ProductID || e.Source != "storekit" {
		t.Fatalf("unexpected entitlement: %+v", e)
	}
	if e.ExpiresAt == nil || !e.ExpiresAt.Equal(exp) {
		t.Fatalf("expiry not carried over")
	}
	if e.Metadata["transaction_id"] != "tx-2" || e.Metadata["upgraded"] != true {
		t.Fatalf("unexpected metadata: %v", e.Metadata)
	}
	if got := FromRecord(TransactionRecord{ProductID: "p"}, ""); got.Metadata != nil {
		t.Fatalf("expected nil metadata, got %v", got.Metadata)
	}
}

func TestParseOutcome(t *testing.T) {
	tx := &TransactionRecord{ID: "tx-3"}
	if o, ok := ParseOutcome("success", tx).(Success); !ok || o.Transaction.ID != "tx-3" {
		t.Fatalf("expected success with transaction")
	}
	if _, ok := ParseOutcome("success", nil).(Unknown); !ok {
		t.Fatalf("success without transaction must be unknown")
	}
	if _, ok := ParseOutcome("pending", nil).(Pending); !ok {
		t.Fatalf("expected pending")
	}
	if _, ok := ParseOutcome("user_cancelled", nil).(UserCancelled); !ok {
		t.Fatalf("expected user_cancelled")
	}
	if _, ok := ParseOutcome("deferred", nil).(Unknown); !ok {
		t.Fatalf("unrecognized names must map to unknown")
	}
	for _, o := range []Outcome{Success{}, Pending{}, UserCancelled{}, Unknown{}} {
		if ParseOutcome(o.Name(), tx).Name() != o.Name() {
			t.Errorf("round trip failed for %s", o.Name())
		}
	}
}
