package purchasekit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/google/uuid"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/diagnostics"
	"github.com/xraph/purchasekit/diagnostics/memory"
	"github.com/xraph/purchasekit/errs"
	"github.com/xraph/purchasekit/id"
	"github.com/xraph/purchasekit/ledgerapi"
	"github.com/xraph/purchasekit/plugin"
	"github.com/xraph/purchasekit/product"
	"github.com/xraph/purchasekit/purchase"
	"github.com/xraph/purchasekit/syncer"
	"github.com/xraph/purchasekit/webhook"
)

// SDK is the purchase engine handle. All methods that talk to the store or
// the ledger block and must be called off the host's main thread.
type SDK struct {
	client  billing.Client
	opts    options
	plugins *plugin.Registry
	store   diagnostics.Store

	mu     sync.RWMutex
	sess   *session
	closed bool
}

// session is everything built from one Config. Reinitialize replaces it.
type session struct {
	id       id.ID
	cfg      Config
	clock    clock.Clock
	logger   *slog.Logger
	plugins  *plugin.Registry
	gateway  *billing.Gateway
	ledger   ledgerapi.Client
	syncer   *syncer.Syncer
	waiter   *webhook.Waiter
	orch     *purchase.Orchestrator
	reporter *diagnostics.Reporter

	ctx    context.Context // cancelled on close, scopes background work
	cancel context.CancelFunc

	mu       sync.Mutex
	closing  bool
	pausedAt time.Time
	bg       sync.WaitGroup
}

// New validates cfg, connects to the store through client and opens a
// session. No customer is logged in yet.
func New(ctx context.Context, cfg Config, client billing.Client, opts ...Option) (*SDK, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.device.InstallIdentifier == "" {
		o.device.InstallIdentifier = uuid.NewString()
	}
	if o.store == nil {
		o.store = memory.New()
	}
	if err := o.store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("purchasekit: migrate diagnostics store: %w", err)
	}

	reg := plugin.NewRegistry().WithLogger(loggerFor(o.logger, cfg.Debug))
	for _, p := range o.plugins {
		if err := reg.Register(p); err != nil {
			return nil, err
		}
	}

	s := &SDK{client: client, opts: o, plugins: reg, store: o.store}
	s.sess = s.open(ctx, cfg)
	return s, nil
}

func loggerFor(l *slog.Logger, debug bool) *slog.Logger {
	if l != nil {
		return l
	}
	if debug {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.Default()
}

func (s *SDK) open(ctx context.Context, cfg Config) *session {
	sid := id.NewSessionID()
	log := loggerFor(s.opts.logger, cfg.Debug).With("session_id", sid.String())

	ledger := s.opts.ledger
	if ledger == nil {
		region := s.opts.region
		if region == nil {
			r := cfg.Region
			region = func() string { return r }
		}
		ledger = ledgerapi.NewHTTPClient(ledgerapi.HTTPConfig{
			BaseURL:     cfg.APIURL,
			AppID:       cfg.AppID,
			APIKey:      cfg.APIKey,
			Environment: cfg.Environment,
			Locales:     cfg.Locales,
			Region:      region,
			Device:      s.opts.device,
			SDKVersion:  SDKVersion,
			Timeout:     cfg.RequestTimeout,
			Logger:      log,
		})
	}

	gwOpts := []billing.GatewayOption{billing.WithGatewayLogger(log)}
	if s.opts.mainThread != nil {
		gwOpts = append(gwOpts, billing.WithMainThreadCheck(s.opts.mainThread))
	}

	ss := &session{
		id:      sid,
		cfg:     cfg,
		clock:   s.opts.clock,
		logger:  log,
		plugins: s.plugins,
		ledger:  ledger,
		gateway: billing.NewGateway(s.client, gwOpts...),
	}
	ss.ctx, ss.cancel = context.WithCancel(context.Background())

	ss.syncer = syncer.New(ledger, ss.gateway,
		syncer.WithClock(ss.clock),
		syncer.WithTTL(cfg.CacheTTL),
		syncer.WithLogger(log),
		syncer.WithOnSync(s.plugins.EmitSync),
	)
	ss.reporter = diagnostics.NewReporter(s.store, ledger, ss.gateway,
		diagnostics.WithClock(ss.clock),
		diagnostics.WithLogger(log),
		diagnostics.WithDevice(s.opts.device),
		diagnostics.WithCustomer(ss.syncer.Customer),
		diagnostics.WithRetention(cfg.DiagnosticsRetention),
		diagnostics.WithOnSnapshot(s.plugins.EmitDiagnosticSnapshot),
	)
	ss.waiter = webhook.NewWaiter(ledger,
		webhook.WithClock(ss.clock),
		webhook.WithTimeout(cfg.WebhookTimeout),
		webhook.WithMaxPurchaseAge(cfg.MaxPurchaseAge),
		webhook.WithBackOff(cfg.backOff()),
		webhook.WithOnTimeout(ss.onWaitTimeout),
		webhook.WithLogger(log),
	)
	ss.orch = purchase.New(ss.gateway, ss.syncer, ledger, observedWaiter{ss},
		purchase.WithPolicy(cfg.Replacement),
		purchase.WithLogger(log),
		purchase.WithDiagnostics(ss.diagnose),
		purchase.WithOnFinish(s.plugins.EmitPurchaseFinished),
		purchase.WithOnAttempt(func(ctx context.Context, attemptID id.ID, req purchase.Request) {
			s.plugins.EmitPurchaseStarted(ctx, attemptID, productID(req.Product))
		}),
	)
	ss.gateway.SetExternalPurchaseHandler(ss.onExternalPurchases)

	log.Info("purchasekit: session opened",
		"environment", cfg.Environment,
		"install_id", s.opts.device.InstallIdentifier,
	)
	s.plugins.EmitInit(ctx, sid)
	return ss
}

func (s *SDK) session() (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess == nil {
		return nil, errs.ErrSdkNotInitialized
	}
	return s.sess, nil
}

// SessionID identifies the current session, or is nil after Close.
func (s *SDK) SessionID() id.ID {
	ss, err := s.session()
	if err != nil {
		return id.Nil
	}
	return ss.id
}

// Reinitialize closes the current session and opens a new one from cfg in
// place. The customer must log in again.
func (s *SDK) Reinitialize(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.ErrSdkNotInitialized
	}
	if s.sess != nil {
		s.sess.close(ctx)
	}
	s.sess = s.open(ctx, cfg)
	return nil
}

// Close clears the customer, ends the store connection, waits for
// background work and closes the diagnostics store. Later calls fail with
// errs.ErrSdkNotInitialized.
func (s *SDK) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ss := s.sess
	s.sess = nil
	s.mu.Unlock()

	if ss != nil {
		ss.close(ctx)
	}
	return s.store.Close()
}

// close stops background work before the shutdown hooks run. In-flight
// finishes see a cancelled context; their purchases stay unacknowledged and
// are finished again at the next login.
func (ss *session) close(ctx context.Context) {
	ss.mu.Lock()
	ss.closing = true
	ss.mu.Unlock()

	ss.cancel()
	ss.syncer.Login(nil)
	ss.gateway.Close()
	ss.bg.Wait()
	ss.reporter.Close()

	ss.logger.Info("purchasekit: session closed")
	ss.plugins.EmitShutdown(ctx)
}

// goBackground runs fn on its own goroutine unless the session is closing.
func (ss *session) goBackground(fn func(ctx context.Context)) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.closing {
		return false
	}
	ss.bg.Add(1)
	go func() {
		defer ss.bg.Done()
		fn(ss.ctx)
	}()
	return true
}

func (ss *session) diagnose(_ context.Context, reason string) {
	ss.reporter.Trigger(reason)
}

// onWaitTimeout snapshots diagnostics for purchase webhook timeouts only.
func (ss *session) onWaitTimeout(ctx context.Context, reason string) {
	if reason == webhook.ReasonTransferNotProcessed {
		return
	}
	ss.diagnose(ctx, reason)
}

// observedWaiter reports every purchase webhook wait to the plugins.
type observedWaiter struct{ ss *session }

func (o observedWaiter) WaitPurchase(ctx context.Context, p billing.Purchase) (ledgerapi.WebhookStatus, error) {
	start := o.ss.clock.Now()
	status, err := o.ss.waiter.WaitPurchase(ctx, p)
	o.ss.plugins.EmitWebhookResolved(ctx, status, o.ss.clock.Since(start), err)
	return status, err
}

func productID(p *product.Product) string {
	if p == nil {
		return ""
	}
	return p.ID
}
