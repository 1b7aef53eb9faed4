// Package syncer keeps the engine's view of the catalog, the customer's
// entitlements and the store account's transactions.
//
// A sync rebuilds the whole State from the ledger and a live store query
// and publishes it atomically. Readers always see a complete State.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/filecoin-project/go-clock"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/customer"
	"github.com/xraph/purchasekit/entitlement"
	"github.com/xraph/purchasekit/errs"
	"github.com/xraph/purchasekit/ledgerapi"
	"github.com/xraph/purchasekit/product"
)

// DefaultTTL is how long a successful sync is reused.
const DefaultTTL = time.Hour

// State is an immutable snapshot published by a sync.
type State struct {
	Customer          *customer.Customer
	Products          []*product.Product
	Groups            []*product.SubscriptionGroup
	Entitlements      []*entitlement.Entitlement
	StoreTransactions []billing.Purchase
	SyncedAt          time.Time
}

// Gateway is the part of billing.Gateway the syncer uses.
type Gateway interface {
	QueryProductDetails(ctx context.Context, subsSKUs, inAppSKUs []string) ([]billing.ProductDetails, error)
	QueryOwnedPurchases(ctx context.Context, kind billing.Kind) ([]billing.Purchase, error)
	Registry() *billing.Registry
}

// SyncFunc observes completed syncs.
type SyncFunc func(ctx context.Context, st *State, elapsed time.Duration)

type Syncer struct {
	ledger  ledgerapi.Client
	gateway Gateway
	clock   clock.Clock
	ttl     time.Duration
	logger  *slog.Logger
	onSync  SyncFunc

	mu       sync.Mutex // held for a whole sync
	lastSync time.Time
	state    atomic.Pointer[State]
}

// Option configures a Syncer.
type Option func(*Syncer)

func WithClock(c clock.Clock) Option { return func(s *Syncer) { s.clock = c } }

func WithTTL(d time.Duration) Option { return func(s *Syncer) { s.ttl = d } }

func WithLogger(l *slog.Logger) Option { return func(s *Syncer) { s.logger = l } }

// WithOnSync registers an observer called after each successful sync.
func WithOnSync(fn SyncFunc) Option { return func(s *Syncer) { s.onSync = fn } }

// New creates a Syncer with no customer logged in.
func New(ledger ledgerapi.Client, gateway Gateway, opts ...Option) *Syncer {
	s := &Syncer{
		ledger:  ledger,
		gateway: gateway,
		clock:   clock.New(),
		ttl:     DefaultTTL,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state.Store(&State{})
	return s
}

// State returns the current snapshot.
func (s *Syncer) State() *State { return s.state.Load() }

// Customer returns the logged-in customer, or nil.
func (s *Syncer) Customer() *customer.Customer { return s.state.Load().Customer }

// Login switches the session to c, dropping entitlements and store
// transactions and invalidating the TTL. A nil c logs out.
func (s *Syncer) Login(c *customer.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state.Load()
	s.state.Store(&State{Customer: c, Products: prev.Products, Groups: prev.Groups})
	s.lastSync = time.Time{}
}

// Invalidate forces the next EnsureSync to run.
func (s *Syncer) Invalidate() {
	s.mu.Lock()
	s.lastSync = time.Time{}
	s.mu.Unlock()
}

// LastSync returns when the last successful sync finished.
func (s *Syncer) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

// EnsureSync rebuilds the state unless a sync succeeded within the TTL and
// force is false. Concurrent callers are serialized; a failed sync keeps the
// previous state and TTL.
func (s *Syncer) EnsureSync(ctx context.Context, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !force && !s.lastSync.IsZero() && s.clock.Since(s.lastSync) < s.ttl {
		return nil
	}

	start := s.clock.Now()
	next, err := s.sync(ctx, s.state.Load())
	if err != nil {
		s.logger.Warn("syncer: sync failed", "error", err)
		return err
	}
	next.SyncedAt = s.clock.Now()
	s.state.Store(next)
	s.lastSync = next.SyncedAt

	if s.onSync != nil {
		s.onSync(ctx, next, next.SyncedAt.Sub(start))
	}
	return nil
}

func storeErr(op string, err error) error {
	if _, ok := billing.Code(err); ok {
		return fmt.Errorf("syncer: %s: %w: %w", op, errs.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("syncer: %s: %w", op, err)
}

func (s *Syncer) sync(ctx context.Context, prev *State) (*State, error) {
	next := &State{}

	if c := prev.Customer; c != nil {
		cp := *c
		if cp.ForwardingEnabled {
			fwd, err := s.ledger.IsForwardingEnabled(ctx, cp.ExternalRef)
			if err != nil {
				s.logger.Warn("syncer: forwarding refresh failed, keeping previous value",
					"customer_id", cp.ID, "error", err)
			} else {
				cp.ForwardingEnabled = fwd
			}
		}
		next.Customer = &cp
	}

	dtos, err := s.ledger.Products(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("syncer: products: %w", err)
	}
	var subs, inApp []string
	for _, d := range dtos {
		if d.Type == product.TypeOneTime {
			inApp = append(inApp, d.SKU)
		} else {
			subs = append(subs, d.SKU)
		}
	}
	if _, err := s.gateway.QueryProductDetails(ctx, dedupe(subs), dedupe(inApp)); err != nil {
		return nil, storeErr("product details", err)
	}

	p := parser{registry: s.gateway.Registry(), logger: s.logger}
	catalog := make(map[string]*product.Product, len(dtos))
	for _, d := range dtos {
		prod := p.product(d)
		next.Products = append(next.Products, prod)
		catalog[prod.ID] = prod
	}
	next.Groups = groups(dtos, next.Products)

	if next.Customer == nil {
		return next, nil
	}

	purchases, err := s.gateway.QueryOwnedPurchases(ctx, "")
	if err != nil {
		return nil, storeErr("owned purchases", err)
	}
	next.StoreTransactions = purchases

	ents, err := s.ledger.CustomerEntitlements(ctx, next.Customer.ID)
	if err != nil {
		return nil, fmt.Errorf("syncer: entitlements: %w", err)
	}
	for _, e := range ents {
		next.Entitlements = append(next.Entitlements, p.entitlement(e, catalog, purchases))
	}
	return next, nil
}

func dedupe(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

// RefreshForwarding re-reads the forwarding flag from the ledger and
// publishes it. On failure the previous value is returned and the error is
// only logged.
func (s *Syncer) RefreshForwarding(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state.Load()
	if st.Customer == nil {
		return false, errs.ErrNoCustomerLogged
	}

	fwd, err := s.ledger.IsForwardingEnabled(ctx, st.Customer.ExternalRef)
	if err != nil {
		s.logger.Warn("syncer: forwarding refresh failed, keeping previous value",
			"customer_id", st.Customer.ID, "error", err)
		return st.Customer.ForwardingEnabled, nil
	}
	if fwd == st.Customer.ForwardingEnabled {
		return fwd, nil
	}

	next := *st
	c := *st.Customer
	c.ForwardingEnabled = fwd
	next.Customer = &c
	s.state.Store(&next)
	return fwd, nil
}

// ──────────────────────────────────────────────────
// Lookups
// ──────────────────────────────────────────────────

func (s *Syncer) logged() (*State, error) {
	st := s.state.Load()
	if st.Customer == nil {
		return nil, errs.ErrNoCustomerLogged
	}
	return st, nil
}

// Entitlement returns the entitlement for a catalog product id, or nil.
func (s *Syncer) Entitlement(productID string) (*entitlement.Entitlement, error) {
	st, err := s.logged()
	if err != nil {
		return nil, err
	}
	for _, e := range st.Entitlements {
		if e.Product.ID == productID {
			return e, nil
		}
	}
	return nil, nil
}

// EntitlementForSubscriptionGroup returns the subscription entitlement in
// groupID, or nil.
func (s *Syncer) EntitlementForSubscriptionGroup(groupID string) (*entitlement.Entitlement, error) {
	st, err := s.logged()
	if err != nil {
		return nil, err
	}
	for _, e := range st.Entitlements {
		if e.Type == product.TypeSubscription && e.Product.Subscription != nil && e.Product.Subscription.GroupID == groupID {
			return e, nil
		}
	}
	return nil, nil
}

// Entitlements returns the entitlements for the given product ids, or all
// of them when productIDs is empty.
func (s *Syncer) Entitlements(productIDs []string) ([]*entitlement.Entitlement, error) {
	st, err := s.logged()
	if err != nil {
		return nil, err
	}
	if len(productIDs) == 0 {
		return slices.Clone(st.Entitlements), nil
	}
	var out []*entitlement.Entitlement
	for _, e := range st.Entitlements {
		if slices.Contains(productIDs, e.Product.ID) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Products filters the catalog by identifier. An empty list matches all.
func (s *Syncer) Products(identifiers []string, onlyAvailable bool) []*product.Product {
	var out []*product.Product
	for _, p := range s.state.Load().Products {
		if len(identifiers) > 0 && !slices.Contains(identifiers, p.Identifier) {
			continue
		}
		if onlyAvailable && !p.IsAvailable() {
			continue
		}
		out = append(out, p)
	}
	return out
}

// SubscriptionGroups filters groups by identifier. An empty list matches all.
func (s *Syncer) SubscriptionGroups(identifiers []string) []*product.SubscriptionGroup {
	var out []*product.SubscriptionGroup
	for _, g := range s.state.Load().Groups {
		if len(identifiers) == 0 || slices.Contains(identifiers, g.Identifier) {
			out = append(out, g)
		}
	}
	return out
}

// StoreAccountTransaction returns the store purchase covering sku, if any.
func (s *Syncer) StoreAccountTransaction(sku string) *billing.Purchase {
	for _, p := range s.state.Load().StoreTransactions {
		if slices.Contains(p.SKUs, sku) {
			return &p
		}
	}
	return nil
}

// StoreAccountTransactionForSubscriptionGroup returns a store purchase for
// any sku of the group's products, if any.
func (s *Syncer) StoreAccountTransactionForSubscriptionGroup(groupID string) *billing.Purchase {
	st := s.state.Load()
	for _, g := range st.Groups {
		if g.ID != groupID {
			continue
		}
		for _, prod := range g.Products {
			for _, p := range st.StoreTransactions {
				if slices.Contains(p.SKUs, prod.SKU) {
					return &p
				}
			}
		}
	}
	return nil
}
