package billing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xraph/purchasekit/errs"
)

// Status is the connection state of the store service.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusAvailable    Status = "available"
	StatusUnavailable  Status = "unavailable"
	StatusDisconnected Status = "disconnected"
)

// DefaultQueryTimeout bounds a shared owned-purchases query whose store
// callback never arrives.
const DefaultQueryTimeout = 30 * time.Second

// Gateway is the blocking facade over a Client. It must be created with
// NewGateway and is safe for concurrent use.
type Gateway struct {
	client       Client
	logger       *slog.Logger
	onMainThread func() bool
	queryTimeout time.Duration
	registry     *Registry

	mu       sync.Mutex
	status   Status
	settled  chan struct{} // closed once status leaves StatusInitializing
	gen      uint64
	closed   bool
	external func(Result, []Purchase)

	queries singleflight.Group

	flowMu sync.Mutex
	flow   *future[purchasesResult]
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithGatewayLogger sets the logger.
func WithGatewayLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

// WithMainThreadCheck installs a predicate reporting whether the caller runs
// on the host's main thread. Blocking calls made there panic with
// ErrMainThread.
func WithMainThreadCheck(fn func() bool) GatewayOption {
	return func(g *Gateway) { g.onMainThread = fn }
}

// WithQueryTimeout bounds shared owned-purchases queries.
func WithQueryTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.queryTimeout = d }
}

// WithRegistry shares a registry between gateways.
func WithRegistry(r *Registry) GatewayOption {
	return func(g *Gateway) { g.registry = r }
}

// NewGateway wraps client and starts connecting immediately.
func NewGateway(client Client, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		client:       client,
		logger:       slog.Default(),
		queryTimeout: DefaultQueryTimeout,
		status:       StatusDisconnected,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.registry == nil {
		g.registry = NewRegistry()
	}
	client.SetPurchasesUpdatedListener(g.onPurchasesUpdated)
	g.connect()
	return g
}

// Registry exposes the product/offer cache.
func (g *Gateway) Registry() *Registry { return g.registry }

// Status returns the current connection status.
func (g *Gateway) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// SetExternalPurchaseHandler registers the handler for purchases the store
// reports while no purchase flow is awaiting them.
func (g *Gateway) SetExternalPurchaseHandler(fn func(Result, []Purchase)) {
	g.mu.Lock()
	g.external = fn
	g.mu.Unlock()
}

// connect starts a connection attempt unless one is already running or the
// store is available. The client is called without holding mu.
func (g *Gateway) connect() {
	g.mu.Lock()
	if g.closed || g.status == StatusInitializing || g.status == StatusAvailable {
		g.mu.Unlock()
		return
	}
	g.status = StatusInitializing
	g.settled = make(chan struct{})
	g.gen++
	l := &connListener{g: g, gen: g.gen}
	g.mu.Unlock()

	g.logger.Debug("billing: connecting to store")
	g.client.StartConnection(l)
}

func (g *Gateway) settle(gen uint64, status Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.gen {
		return
	}
	g.status = status
	select {
	case <-g.settled:
	default:
		close(g.settled)
	}
}

type connListener struct {
	g   *Gateway
	gen uint64
}

func (l *connListener) OnSetupFinished(r Result) {
	if r.OK() {
		l.g.settle(l.gen, StatusAvailable)
		return
	}
	l.g.logger.Warn("billing: store setup failed", "code", r.Code.String(), "message", r.DebugMessage)
	l.g.settle(l.gen, StatusUnavailable)
}

func (l *connListener) OnServiceDisconnected() {
	l.g.logger.Info("billing: store service disconnected")
	l.g.settle(l.gen, StatusDisconnected)
}

func (g *Gateway) assertBackground() {
	if g.onMainThread != nil && g.onMainThread() {
		panic(ErrMainThread)
	}
}

func (g *Gateway) awaitSettled(ctx context.Context) (Status, error) {
	g.mu.Lock()
	ch, closed := g.settled, g.closed
	g.mu.Unlock()
	if closed {
		return StatusDisconnected, errs.ErrSdkNotInitialized
	}
	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return StatusInitializing, ctx.Err()
		}
	}
	return g.Status(), nil
}

// EnsureReady blocks until the store is available. If the settled state is
// not available it triggers one reconnect attempt and waits again.
func (g *Gateway) EnsureReady(ctx context.Context) error {
	g.assertBackground()

	st, err := g.awaitSettled(ctx)
	if err != nil {
		return err
	}
	if st == StatusAvailable {
		return nil
	}

	g.connect()
	if st, err = g.awaitSettled(ctx); err != nil {
		return err
	}
	if st != StatusAvailable {
		return errs.ErrStoreUnavailable
	}
	return nil
}

// Close ends the store connection. Outstanding flows are released with
// ServiceDisconnected and later calls fail with errs.ErrSdkNotInitialized.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.gen++
	g.status = StatusDisconnected
	if g.settled != nil {
		select {
		case <-g.settled:
		default:
			close(g.settled)
		}
	}
	g.external = nil
	g.mu.Unlock()

	g.flowMu.Lock()
	if g.flow != nil {
		g.flow.set(purchasesResult{result: Result{Code: ServiceDisconnected, DebugMessage: "gateway closed"}})
	}
	g.flowMu.Unlock()

	g.client.EndConnection()
}

// ──────────────────────────────────────────────────
// Product details
// ──────────────────────────────────────────────────

// QueryProductDetails returns store details for the given skus. Skus already
// in the registry are served from it; the rest are fetched with one query
// per kind, since the store rejects mixed-kind batches.
func (g *Gateway) QueryProductDetails(ctx context.Context, subsSKUs, inAppSKUs []string) ([]ProductDetails, error) {
	if err := g.fetchProductDetails(ctx, g.registry.Missing(subsSKUs), g.registry.Missing(inAppSKUs)); err != nil {
		return nil, err
	}
	return g.lookup(subsSKUs, inAppSKUs), nil
}

// RefreshProductDetails refetches every sku regardless of the registry.
func (g *Gateway) RefreshProductDetails(ctx context.Context, subsSKUs, inAppSKUs []string) ([]ProductDetails, error) {
	if err := g.fetchProductDetails(ctx, subsSKUs, inAppSKUs); err != nil {
		return nil, err
	}
	return g.lookup(subsSKUs, inAppSKUs), nil
}

func (g *Gateway) lookup(lists ...[]string) []ProductDetails {
	var out []ProductDetails
	for _, skus := range lists {
		for _, s := range skus {
			if d, ok := g.registry.Product(s); ok {
				out = append(out, d)
			}
		}
	}
	return out
}

func (g *Gateway) fetchProductDetails(ctx context.Context, subsSKUs, inAppSKUs []string) error {
	if len(subsSKUs) == 0 && len(inAppSKUs) == 0 {
		return nil
	}
	if err := g.EnsureReady(ctx); err != nil {
		return err
	}

	for _, q := range []struct {
		kind Kind
		skus []string
	}{{KindSubs, subsSKUs}, {KindInApp, inAppSKUs}} {
		if len(q.skus) == 0 {
			continue
		}
		fut := newFuture[detailsResult]()
		g.client.QueryProductDetails(q.kind, q.skus, func(r Result, d []ProductDetails) {
			fut.set(detailsResult{result: r, details: d})
		})
		res, err := fut.await(ctx)
		if err != nil {
			return err
		}
		if err := res.result.Err(); err != nil {
			return err
		}
		for i := range res.details {
			res.details[i].Kind = q.kind
		}
		g.registry.Register(res.details)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Owned purchases
// ──────────────────────────────────────────────────

// QueryOwnedPurchases returns the purchases the store account owns. An
// empty kind queries every kind. A call made while a query for the same
// kind is outstanding waits for that query instead of issuing another.
func (g *Gateway) QueryOwnedPurchases(ctx context.Context, kind Kind) ([]Purchase, error) {
	if err := g.EnsureReady(ctx); err != nil {
		return nil, err
	}

	kinds := Kinds
	if kind != "" {
		kinds = []Kind{kind}
	}

	var out []Purchase
	for _, k := range kinds {
		ps, err := g.queryOwned(ctx, k)
		if err != nil {
			return nil, err
		}
		out = append(out, ps...)
	}
	return out, nil
}

func (g *Gateway) queryOwned(ctx context.Context, kind Kind) ([]Purchase, error) {
	ch := g.queries.DoChan(string(kind), func() (any, error) {
		qctx, cancel := context.WithTimeout(context.Background(), g.queryTimeout)
		defer cancel()

		fut := newFuture[purchasesResult]()
		g.client.QueryPurchases(kind, func(r Result, p []Purchase) {
			fut.set(purchasesResult{result: r, purchases: p})
		})
		res, err := fut.await(qctx)
		if err != nil {
			return nil, err
		}
		if err := res.result.Err(); err != nil {
			return nil, err
		}
		return res.purchases, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		shared, _ := res.Val.([]Purchase)
		out := make([]Purchase, len(shared))
		copy(out, shared)
		for i := range out {
			out[i].Kind = kind
		}
		return out, nil
	}
}

// ──────────────────────────────────────────────────
// Purchase flow
// ──────────────────────────────────────────────────

// LaunchPurchaseFlow opens the store purchase UI and blocks until the store
// reports the resulting purchases. Only one flow may be awaited at a time;
// a second call fails with errs.ErrPurchaseAlreadyPending.
func (g *Gateway) LaunchPurchaseFlow(ctx context.Context, activity Activity, params FlowParams) ([]Purchase, error) {
	if err := g.EnsureReady(ctx); err != nil {
		return nil, err
	}

	g.flowMu.Lock()
	if g.flow != nil {
		g.flowMu.Unlock()
		return nil, errs.ErrPurchaseAlreadyPending
	}
	fut := newFuture[purchasesResult]()
	g.flow = fut
	g.flowMu.Unlock()

	defer func() {
		g.flowMu.Lock()
		if g.flow == fut {
			g.flow = nil
		}
		g.flowMu.Unlock()
	}()

	if err := g.client.LaunchBillingFlow(activity, params).Err(); err != nil {
		return nil, err
	}

	res, err := fut.await(ctx)
	if err != nil {
		return nil, err
	}
	if err := res.result.Err(); err != nil {
		return nil, err
	}
	return res.purchases, nil
}

func (g *Gateway) onPurchasesUpdated(r Result, purchases []Purchase) {
	g.flowMu.Lock()
	fut := g.flow
	g.flowMu.Unlock()

	if fut != nil && fut.set(purchasesResult{result: r, purchases: purchases}) {
		return
	}

	g.mu.Lock()
	ext := g.external
	g.mu.Unlock()

	if ext == nil {
		g.logger.Warn("billing: purchases updated with no handler", "code", r.Code.String(), "count", len(purchases))
		return
	}
	ext(r, purchases)
}

// ──────────────────────────────────────────────────
// Finishing
// ──────────────────────────────────────────────────

// Consume consumes a purchase, which also acknowledges it.
func (g *Gateway) Consume(ctx context.Context, token string) error {
	return g.confirm(ctx, token, g.client.Consume)
}

// Acknowledge acknowledges a purchase.
func (g *Gateway) Acknowledge(ctx context.Context, token string) error {
	return g.confirm(ctx, token, g.client.Acknowledge)
}

func (g *Gateway) confirm(ctx context.Context, token string, call func(string, func(Result))) error {
	if err := g.EnsureReady(ctx); err != nil {
		return err
	}
	fut := newFuture[Result]()
	call(token, func(r Result) { fut.set(r) })
	r, err := fut.await(ctx)
	if err != nil {
		return err
	}
	return r.Err()
}
