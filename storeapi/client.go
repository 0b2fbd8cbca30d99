// Package storeapi talks to a remote entitlement store over HTTP/JSON. The
// Client implements every store collaborator the core package needs:
// catalog, entitlement snapshot, purchase, finish and the update stream.
package storeapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PaulFidika/subkit/entitlements"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// IdempotencyHeader carries the per-purchase key.
const IdempotencyHeader = "Idempotency-Key"

// APIError is a non-2xx answer from the store.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("storeapi: status %d", e.Status)
	}
	return fmt.Sprintf("storeapi: status %d: %s", e.Status, e.Body)
}

type Client struct {
	base      string
	hc        *http.Client
	streamHC  *http.Client
	log       logrus.FieldLogger
	ts        oauth2.TokenSource
	newKey    func() string
	maxLineSz int
}

type Option func(*Client)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.hc = hc } }

// WithTokenSource authenticates every request with tokens from ts.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) { c.ts = ts }
}

func WithLogger(l logrus.FieldLogger) Option { return func(c *Client) { c.log = l } }

// NewIdempotencyKey returns a base58 encoded random UUID.
func NewIdempotencyKey() string {
	id := uuid.New()
	return base58.Encode(id[:])
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:      strings.TrimRight(baseURL, "/"),
		hc:        &http.Client{Timeout: 10 * time.Second},
		streamHC:  &http.Client{},
		log:       logrus.StandardLogger(),
		newKey:    NewIdempotencyKey,
		maxLineSz: 1 << 20,
	}
	for _, o := range opts {
		o(c)
	}
	if c.ts != nil {
		c.hc = authorized(c.hc, c.ts)
		c.streamHC = authorized(c.streamHC, c.ts)
	}
	return c
}

func authorized(hc *http.Client, ts oauth2.TokenSource) *http.Client {
	cp := *hc
	cp.Transport = &oauth2.Transport{Source: ts, Base: hc.Transport}
	return &cp
}

// Products returns the catalog entries for ids.
func (c *Client) Products(ctx context.Context, ids []string) ([]entitlements.Product, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	var out struct {
		Products []entitlements.Product `json:"products"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/products?"+q.Encode(), nil, nil, &out); err != nil {
		return nil, err
	}
	if out.Products == nil {
		out.Products = []entitlements.Product{}
	}
	return out.Products, nil
}

// CurrentEntitlements returns the store's snapshot, newest first.
func (c *Client) CurrentEntitlements(ctx context.Context) ([]entitlements.TransactionRecord, error) {
	var out struct {
		Transactions []entitlements.TransactionRecord `json:"transactions"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/entitlements", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

type purchaseRequest struct {
	ProductID string `json:"product_id"`
}

type purchaseResponse struct {
	Outcome     string                          `json:"outcome"`
	Transaction *entitlements.TransactionRecord `json:"transaction,omitempty"`
	Error       string                          `json:"error,omitempty"`
}

// Purchase starts a purchase of product. A fresh idempotency key is sent so a
// retried request cannot charge twice.
func (c *Client) Purchase(ctx context.Context, product entitlements.Product) (entitlements.Outcome, error) {
	h := http.Header{}
	h.Set(IdempotencyHeader, c.newKey())
	var out purchaseResponse
	if err := c.do(ctx, http.MethodPost, "/v1/purchases", h, purchaseRequest{ProductID: product.ID}, &out); err != nil {
		return nil, err
	}
	o := entitlements.ParseOutcome(out.Outcome, out.Transaction)
	if _, ok := o.(entitlements.Unknown); ok && out.Error != "" {
		return entitlements.Unknown{Err: fmt.Errorf("storeapi: %s", out.Error)}, nil
	}
	return o, nil
}

// Finish tells the store the transaction was delivered. Already finished
// transactions (409) count as success.
func (c *Client) Finish(ctx context.Context, rec entitlements.TransactionRecord) error {
	err := c.do(ctx, http.MethodPost, "/v1/transactions/"+url.PathEscape(rec.ID)+"/finish", nil, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
		return nil
	}
	return err
}

// Updates opens the NDJSON update stream. The channel closes when ctx is done
// or the connection ends; malformed lines are skipped.
func (c *Client) Updates(ctx context.Context) (<-chan entitlements.TransactionRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/transactions/updates", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/x-ndjson")
	resp, err := c.streamHC.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	out := make(chan entitlements.TransactionRecord)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), c.maxLineSz)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			var rec entitlements.TransactionRecord
			if err := json.Unmarshal(line, &rec); err != nil || rec.ID == "" {
				c.log.WithError(err).Warn("storeapi: skipping malformed update line")
				continue
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil && ctx.Err() == nil {
			c.log.WithError(err).Warn("storeapi: update stream ended")
		}
	}()
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, h http.Header, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	for k, vs := range h {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s %s: %w", method, path, readAPIError(resp))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func readAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
