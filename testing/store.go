// Package testing provides utilities for testing applications that use subkit.
// It runs a mock entitlement store that speaks the store HTTP API, backed by
// an in-memory store, so integration tests need no real store.
//
// Example usage:
//
//	ts := testing.NewTestStore(product)
//	defer ts.Close()
//
//	client := storeapi.New(ts.URL(), storeapi.WithTokenSource(ts.TokenSource()))
//	ts.Store().Publish(ctx, rec) // delivered on client.Updates
package testing

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/PaulFidika/subkit/entitlements"
	memorystore "github.com/PaulFidika/subkit/storage/memory"
	"github.com/PaulFidika/subkit/storeapi"
	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const (
	TestIssuerID = "test-issuer"
	TestKeyID    = "TESTKEY001"
)

// TestStore is an httptest server implementing the store API.
// Requests must carry a bearer token signed by KeyPEM.
type TestStore struct {
	server *httptest.Server
	store  *memorystore.Store
	key    *ecdsa.PrivateKey

	mu        sync.Mutex
	keys      map[string][]byte
	requests  map[string]int
	rejectAll int
}

// NewTestStore starts a store serving products.
func NewTestStore(products ...entitlements.Product) *TestStore {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic("failed to create ECDSA key: " + err.Error())
	}
	ts := &TestStore{
		store:    memorystore.New(products...),
		key:      key,
		keys:     make(map[string][]byte),
		requests: make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/products", ts.authed(ts.handleProducts))
	mux.HandleFunc("GET /v1/entitlements", ts.authed(ts.handleEntitlements))
	mux.HandleFunc("POST /v1/purchases", ts.authed(ts.handlePurchase))
	mux.HandleFunc("POST /v1/transactions/{id}/finish", ts.authed(ts.handleFinish))
	mux.HandleFunc("GET /v1/transactions/updates", ts.authed(ts.handleUpdates))
	ts.server = httptest.NewServer(mux)
	return ts
}

// URL returns the base URL of the server.
func (ts *TestStore) URL() string { return ts.server.URL }

// Store exposes the backing store for seeding, scripting and publishing.
func (ts *TestStore) Store() *memorystore.Store { return ts.store }

// KeyPEM returns the PKCS#8 PEM of the key the server accepts.
func (ts *TestStore) KeyPEM() []byte {
	der, err := x509.MarshalPKCS8PrivateKey(ts.key)
	if err != nil {
		panic("failed to marshal key: " + err.Error())
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

// TokenSource returns a token source the server accepts.
func (ts *TestStore) TokenSource() oauth2.TokenSource {
	src, err := storeapi.NewTokenSource(storeapi.KeyConfig{IssuerID: TestIssuerID, KeyID: TestKeyID, PrivateKeyPEM: ts.KeyPEM()})
	if err != nil {
		panic("failed to create token source: " + err.Error())
	}
	return src
}

// FailNext makes the next n requests answer 503.
func (ts *TestStore) FailNext(n int) {
	ts.mu.Lock()
	ts.rejectAll = n
	ts.mu.Unlock()
}

// Requests returns how many authenticated requests hit route (e.g. "POST /v1/purchases").
func (ts *TestStore) Requests(route string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.requests[route]
}

// Close disconnects update streams and shuts the server down.
func (ts *TestStore) Close() {
	_ = ts.store.Close()
	if ts.server != nil {
		ts.server.Close()
	}
}

func (ts *TestStore) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || !ts.validToken(raw) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ts.mu.Lock()
		ts.requests[r.Pattern]++
		fail := ts.rejectAll > 0
		if fail {
			ts.rejectAll--
		}
		ts.mu.Unlock()
		if fail {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		next(w, r)
	}
}

func (ts *TestStore) validToken(raw string) bool {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return &ts.key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"ES256"}), jwt.WithIssuer(TestIssuerID), jwt.WithExpirationRequired())
	return err == nil && tok.Valid && tok.Header["kid"] == TestKeyID
}

func (ts *TestStore) handleProducts(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if q := r.URL.Query().Get("ids"); q != "" {
		ids = strings.Split(q, ",")
	}
	ps, err := ts.store.Products(r.Context(), ids)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": ps})
}

func (ts *TestStore) handleEntitlements(w http.ResponseWriter, r *http.Request) {
	recs, _ := ts.store.CurrentEntitlements(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"transactions": recs})
}

func (ts *TestStore) handlePurchase(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(storeapi.IdempotencyHeader)
	if key == "" {
		http.Error(w, "missing idempotency key", http.StatusBadRequest)
		return
	}
	ts.mu.Lock()
	prev, seen := ts.keys[key]
	ts.mu.Unlock()
	if seen {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(prev)
		return
	}
	var body struct {
		ProductID string `json:"product_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	ps, _ := ts.store.Products(r.Context(), []string{body.ProductID})
	if len(ps) == 0 {
		http.Error(w, "unknown product", http.StatusNotFound)
		return
	}
	out, err := ts.store.Purchase(r.Context(), ps[0])
	resp := map[string]any{}
	switch o := out.(type) {
	case entitlements.Success:
		resp["outcome"] = o.Name()
		resp["transaction"] = o.Transaction
	case nil:
		resp["outcome"] = "unknown"
	default:
		resp["outcome"] = o.Name()
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	b, _ := json.Marshal(resp)
	ts.mu.Lock()
	ts.keys[key] = b
	ts.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (ts *TestStore) handleFinish(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if done, _ := ts.store.Finished(id); done {
		http.Error(w, "already finished", http.StatusConflict)
		return
	}
	_ = ts.store.Finish(r.Context(), entitlements.TransactionRecord{ID: id})
	w.WriteHeader(http.StatusNoContent)
}

func (ts *TestStore) handleUpdates(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	updates, err := ts.store.Updates(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	enc := json.NewEncoder(w)
	for rec := range updates {
		if err := enc.Encode(rec); err != nil {
			return
		}
		flusher.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
