package storeapi_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/PaulFidika/subkit/entitlements"
	"github.com/PaulFidika/subkit/storeapi"
	subkittest "github.com/PaulFidika/subkit/testing"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var standard = entitlements.Product{
	ID:           "com.sample.app.subscription.standard",
	DisplayName:  "Standard",
	DisplayPrice: "¥480",
	CurrencyCode: "JPY",
	Period:       entitlements.Period{Unit: entitlements.PeriodMonth, Value: 1},
}

func newClient(t *testing.T) (*subkittest.TestStore, *storeapi.Client) {
	t.Helper()
	ts := subkittest.NewTestStore(standard)
	t.Cleanup(ts.Close)
	return ts, storeapi.New(ts.URL(), storeapi.WithTokenSource(ts.TokenSource()))
}

func TestProducts(t *testing.T) {
	_, c := newClient(t)
	ps, err := c.Products(context.Background(), []string{standard.ID, "com.unknown"})
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, standard, ps[0])
}

func TestUnauthenticatedRequestsFail(t *testing.T) {
	ts := subkittest.NewTestStore(standard)
	defer ts.Close()
	_, err := storeapi.New(ts.URL()).Products(context.Background(), []string{standard.ID})
	var apiErr *storeapi.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestCurrentEntitlements(t *testing.T) {
	ts, c := newClient(t)
	exp := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	ts.Store().SetEntitlements(
		entitlements.TransactionRecord{ID: "a", ProductID: standard.ID, Verification: entitlements.Verified, ExpiresAt: &exp},
		entitlements.TransactionRecord{ID: "b", ProductID: standard.ID, Verification: entitlements.Unverified},
	)
	recs, err := c.CurrentEntitlements(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].ID)
	assert.True(t, recs[0].Verified())
	assert.True(t, recs[0].ExpiresAt.Equal(exp))
	assert.False(t, recs[1].Verified())
}

func TestPurchaseOutcomes(t *testing.T) {
	ts, c := newClient(t)
	ts.Store().Script(entitlements.Pending{}, entitlements.UserCancelled{}, entitlements.Unknown{})

	for _, want := range []string{"pending", "user_cancelled", "unknown"} {
		out, err := c.Purchase(context.Background(), standard)
		require.NoError(t, err)
		assert.Equal(t, want, out.Name())
	}

	out, err := c.Purchase(context.Background(), standard)
	require.NoError(t, err)
	s, ok := out.(entitlements.Success)
	require.True(t, ok, "expected Success, got %T", out)
	assert.True(t, s.Transaction.Verified())
	assert.Equal(t, standard.ID, s.Transaction.ProductID)
	assert.Equal(t, 4, ts.Requests("POST /v1/purchases"))
}

func TestPurchaseStoreFailureIsUnknown(t *testing.T) {
	ts, c := newClient(t)
	ts.Store().FailPurchases(errors.New("card declined"))
	out, err := c.Purchase(context.Background(), standard)
	require.NoError(t, err)
	u, ok := out.(entitlements.Unknown)
	require.True(t, ok)
	assert.ErrorContains(t, u.Err, "card declined")
}

func TestPurchaseTransportError(t *testing.T) {
	ts, c := newClient(t)
	ts.FailNext(1)
	_, err := c.Purchase(context.Background(), standard)
	var apiErr *storeapi.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.ErrorContains(t, err, "POST /v1/purchases")
}

func TestFinishIsIdempotent(t *testing.T) {
	ts, c := newClient(t)
	rec := entitlements.TransactionRecord{ID: "tx-1"}
	require.NoError(t, c.Finish(context.Background(), rec))
	require.NoError(t, c.Finish(context.Background(), rec), "409 must count as finished")
	done, n := ts.Store().Finished("tx-1")
	assert.True(t, done)
	assert.Equal(t, 1, n)
}

func TestUpdatesStream(t *testing.T) {
	ts, c := newClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, err := c.Updates(ctx)
	require.NoError(t, err)

	for _, id := range []string{"u1", "u2"} {
		require.NoError(t, ts.Store().Publish(context.Background(), entitlements.TransactionRecord{ID: id, Verification: entitlements.Verified}))
	}
	for _, want := range []string{"u1", "u2"} {
		select {
		case rec := <-updates:
			assert.Equal(t, want, rec.ID)
			assert.True(t, rec.Verified())
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	ts.Store().Disconnect()
	select {
	case _, ok := <-updates:
		assert.False(t, ok, "stream must close when the server drops it")
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after disconnect")
	}
}

func TestIdempotencyKeyIsBase58UUID(t *testing.T) {
	k := storeapi.NewIdempotencyKey()
	raw, err := base58.Decode(k)
	require.NoError(t, err)
	assert.Len(t, raw, 16)
	assert.NotEqual(t, k, storeapi.NewIdempotencyKey())
}

func TestTokenSourceRejectsBadKeys(t *testing.T) {
	_, err := storeapi.NewTokenSource(storeapi.KeyConfig{IssuerID: "i", KeyID: "k", PrivateKeyPEM: []byte("nope")})
	assert.Error(t, err)
	_, err = storeapi.NewTokenSource(storeapi.KeyConfig{})
	assert.Error(t, err)
}
