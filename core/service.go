package core

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/PaulFidika/subkit/entitlements"
	"github.com/sirupsen/logrus"
)

// DefaultProductID is the single subscription product offered by default.
const DefaultProductID = "com.sample.app.subscription.standard"

// DefaultManageURL is the platform page where users cancel subscriptions.
const DefaultManageURL = "https://apps.apple.com/account/subscriptions"

// Config configures a Service.
type Config struct {
	ProductIDs []string
	ManageURL  string
	Listener   ListenerConfig
}

func (c *Config) defaulted() Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	ids := make([]string, 0, len(out.ProductIDs))
	for _, id := range out.ProductIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		ids = []string{DefaultProductID}
	}
	out.ProductIDs = ids
	if strings.TrimSpace(out.ManageURL) == "" {
		out.ManageURL = DefaultManageURL
	}
	return out
}

// Deps are the store collaborators. Publisher is optional.
type Deps struct {
	Catalog      Catalog
	Entitlements EntitlementSource
	Updates      UpdateSource
	Purchaser    Purchaser
	Finisher     Finisher
	Publisher    Publisher
}

// Provider is what the presentation layer needs from the subscription service.
type Provider interface {
	Products(ctx context.Context) ([]entitlements.Product, error)
	Purchased() bool
	Snapshot() Snapshot
	Refresh(ctx context.Context) (bool, error)
	Purchase(ctx context.Context, productID string) (entitlements.Outcome, error)
	Publish(ctx context.Context, rec entitlements.TransactionRecord) error
	ManageURL() string
}

// Service owns the entitlement state of one user session: it runs the update
// listener and exposes catalog, refresh and purchase to the presentation layer.
type Service struct {
	cfg      Config
	deps     Deps
	state    *State
	rec      *Reconciler
	listener *Listener
	flow     *PurchaseFlow
	log      logrus.FieldLogger

	mu       sync.Mutex
	products []entitlements.Product
}

var _ Provider = (*Service)(nil)

// NewService validates deps and wires the reconciler, listener and purchase flow.
func NewService(cfg *Config, deps Deps, opts ...Option) (*Service, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errors.New("subkit: catalog is required")
	case deps.Entitlements == nil:
		return nil, errors.New("subkit: entitlement source is required")
	case deps.Updates == nil:
		return nil, errors.New("subkit: update source is required")
	case deps.Purchaser == nil:
		return nil, errors.New("subkit: purchaser is required")
	case deps.Finisher == nil:
		return nil, errors.New("subkit: finisher is required")
	}
	c := cfg.defaulted()
	o := buildOptions(opts)
	state := o.state
	if state == nil {
		state = NewState()
	}
	rec := NewReconciler(state, opts...)
	s := &Service{
		cfg:   c,
		deps:  deps,
		state: state,
		rec:   rec,
		log:   o.log,
	}
	s.listener = NewListener(rec, deps.Updates, &c.Listener)
	s.flow = NewPurchaseFlow(rec, deps.Purchaser, deps.Finisher)
	return s, nil
}

// Start begins listening for transaction updates.
func (s *Service) Start(ctx context.Context) { s.listener.Start(ctx) }

// Close cancels the listener exactly once and waits for it.
func (s *Service) Close() error {
	s.listener.Stop()
	return nil
}

func (s *Service) State() *State           { return s.state }
func (s *Service) Reconciler() *Reconciler { return s.rec }
func (s *Service) Purchased() bool         { return s.state.Purchased() }
func (s *Service) Snapshot() Snapshot      { return s.state.Snapshot() }
func (s *Service) ManageURL() string       { return s.cfg.ManageURL }
func (s *Service) ProductIDs() []string    { return append([]string(nil), s.cfg.ProductIDs...) }

// Products returns the catalog entries for the configured ids. The first
// successful fetch is kept for the life of the service. On failure it returns
// an empty slice and a *StoreError.
func (s *Service) Products(ctx context.Context) ([]entitlements.Product, error) {
	s.mu.Lock()
	cached := s.products
	s.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	ps, err := s.deps.Catalog.Products(ctx, s.cfg.ProductIDs)
	if err != nil {
		s.log.WithError(err).Warn("product catalog fetch failed")
		return []entitlements.Product{}, &StoreError{Op: "products", Err: err}
	}
	ps = append([]entitlements.Product{}, ps...)

	s.mu.Lock()
	if s.products == nil {
		s.products = ps
	}
	cached = s.products
	s.mu.Unlock()
	return cached, nil
}

// Refresh re-reads the entitlement snapshot.
func (s *Service) Refresh(ctx context.Context) (bool, error) {
	return s.rec.Refresh(ctx, s.deps.Entitlements)
}

// Purchase looks productID up in the catalog and runs the purchase flow.
// Catalog failures and unknown ids return an error and leave the flag alone.
func (s *Service) Purchase(ctx context.Context, productID string) (entitlements.Outcome, error) {
	products, err := s.Products(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		if p.ID == productID {
			return s.flow.Purchase(ctx, p), nil
		}
	}
	return nil, ErrUnknownProduct
}

// Publish pushes rec onto the update stream through the configured publisher.
func (s *Service) Publish(ctx context.Context, rec entitlements.TransactionRecord) error {
	if s.deps.Publisher == nil {
		return ErrNoPublisher
	}
	return s.deps.Publisher.Publish(ctx, rec)
}
