// Package purchase decides whether a purchase attempt is legal, launches it
// through the store and finishes the resulting transaction.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/customer"
	"github.com/xraph/purchasekit/entitlement"
	"github.com/xraph/purchasekit/errs"
	"github.com/xraph/purchasekit/id"
	"github.com/xraph/purchasekit/ledgerapi"
	"github.com/xraph/purchasekit/product"
)

// Gateway is the store surface the orchestrator drives.
type Gateway interface {
	EnsureReady(ctx context.Context) error
	Registry() *billing.Registry
	LaunchPurchaseFlow(ctx context.Context, activity billing.Activity, params billing.FlowParams) ([]billing.Purchase, error)
	Consume(ctx context.Context, token string) error
	Acknowledge(ctx context.Context, token string) error
}

// Cache is the entitlement state the ownership rules read.
type Cache interface {
	Customer() *customer.Customer
	EnsureSync(ctx context.Context, force bool) error
	RefreshForwarding(ctx context.Context) (bool, error)
	Products(identifiers []string, onlyAvailable bool) []*product.Product
	Entitlement(productID string) (*entitlement.Entitlement, error)
	EntitlementForSubscriptionGroup(groupID string) (*entitlement.Entitlement, error)
	StoreAccountTransaction(sku string) *billing.Purchase
	StoreAccountTransactionForSubscriptionGroup(groupID string) *billing.Purchase
}

// Waiter blocks until the ledger has processed a purchase.
type Waiter interface {
	WaitPurchase(ctx context.Context, p billing.Purchase) (ledgerapi.WebhookStatus, error)
}

// DiagnoseFunc requests a diagnostics snapshot.
type DiagnoseFunc func(ctx context.Context, reason string)

// FinishFunc observes every purchase that was actually finished.
type FinishFunc func(ctx context.Context, p billing.Purchase, res FinishResult)

// AttemptFunc observes the start of a purchase attempt.
type AttemptFunc func(ctx context.Context, attemptID id.ID, req Request)

// Request describes a purchase attempt.
type Request struct {
	Activity billing.Activity
	Product  *product.Product
	// Offer selects a non-base subscription offer. Nil picks the free trial
	// when it is available, else the base offer.
	Offer *product.Offer
}

// Outcome is the result of a completed purchase attempt.
type Outcome struct {
	AttemptID id.ID
	Purchase  billing.Purchase
	// Replacement is set when the purchase replaced a subscription plan.
	Replacement billing.ReplacementMode
	Status      ledgerapi.WebhookStatus
}

// Orchestrator runs purchase attempts, at most one at a time.
type Orchestrator struct {
	gateway Gateway
	cache   Cache
	ledger  ledgerapi.Client
	waiter  Waiter

	policy   ReplacementPolicy
	logger   *slog.Logger
	diagnose DiagnoseFunc
	onFinish FinishFunc
	onStart  AttemptFunc

	pending  atomic.Bool
	finished sync.Map // purchase token -> struct{}
}

type Option func(*Orchestrator)

// WithPolicy sets the replacement policy. Unset modes keep their default.
func WithPolicy(p ReplacementPolicy) Option {
	return func(o *Orchestrator) { o.policy = p.withDefaults() }
}

func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

func WithDiagnostics(fn DiagnoseFunc) Option { return func(o *Orchestrator) { o.diagnose = fn } }

func WithOnFinish(fn FinishFunc) Option { return func(o *Orchestrator) { o.onFinish = fn } }

// WithOnAttempt observes every attempt that took the pending slot.
func WithOnAttempt(fn AttemptFunc) Option { return func(o *Orchestrator) { o.onStart = fn } }

// New creates an Orchestrator.
func New(gateway Gateway, cache Cache, ledger ledgerapi.Client, waiter Waiter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gateway:  gateway,
		cache:    cache,
		ledger:   ledger,
		waiter:   waiter,
		policy:   DefaultReplacementPolicy(),
		logger:   slog.Default(),
		diagnose: func(context.Context, string) {},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Pending reports whether a purchase attempt is in flight.
func (o *Orchestrator) Pending() bool { return o.pending.Load() }

// ──────────────────────────────────────────────────
// Purchase
// ──────────────────────────────────────────────────

// Purchase checks the preconditions in order, launches the store flow and
// finishes the single resulting purchase. A second call while one is in
// flight fails at once with errs.ErrPurchaseAlreadyPending.
func (o *Orchestrator) Purchase(ctx context.Context, req Request) (*Outcome, error) {
	c := o.cache.Customer()
	if c == nil {
		return nil, errs.ErrNoCustomerLogged
	}
	if !o.pending.CompareAndSwap(false, true) {
		return nil, errs.ErrPurchaseAlreadyPending
	}
	defer o.pending.Store(false)

	out := &Outcome{AttemptID: id.NewAttemptID()}
	log := o.logger.With("attempt_id", out.AttemptID.String(), "customer_id", c.ID)
	if req.Product != nil {
		log = log.With("sku", req.Product.SKU)
	}
	log.Debug("purchase: start")
	if o.onStart != nil {
		o.onStart(ctx, out.AttemptID, req)
	}

	err := o.purchase(ctx, log, c, req, out)
	if err == nil {
		log.Debug("purchase: done", "status", out.Status)
		return out, nil
	}

	err = Translate(err)
	if errs.TriggersDiagnostics(err) && !errors.Is(err, errs.ErrWebhookNotProcessed) {
		log.Error("purchase: failed", "error", err)
		o.diagnose(ctx, errs.Reason(err))
	} else {
		log.Info("purchase: rejected", "reason", errs.Reason(err))
	}
	return out, err
}

func (o *Orchestrator) purchase(ctx context.Context, log *slog.Logger, c *customer.Customer, req Request, out *Outcome) error {
	forwarded, err := o.cache.RefreshForwarding(ctx)
	if err != nil {
		return err
	}
	if forwarded {
		return errs.ErrCustomerForwarded
	}

	if err := o.gateway.EnsureReady(ctx); err != nil {
		return err
	}
	if err := o.cache.EnsureSync(ctx, false); err != nil {
		return err
	}

	params, err := o.flowParams(c, req)
	if err != nil {
		return err
	}
	if params.Update != nil {
		out.Replacement = params.Update.Mode
		log.Debug("purchase: replacing subscription", "mode", params.Update.Mode.String())
	}

	purchases, err := o.gateway.LaunchPurchaseFlow(ctx, req.Activity, params)
	if err != nil {
		return err
	}
	if len(purchases) != 1 {
		return fmt.Errorf("%w: store returned %d purchases", errs.ErrUnknown, len(purchases))
	}
	out.Purchase = purchases[0]
	if out.Purchase.State == billing.PurchaseStatePending {
		return errs.ErrPending
	}

	res, err := o.FinishPurchase(ctx, out.Purchase, FinishOptions{Product: req.Product})
	out.Status = res.Status
	return err
}

// flowParams resolves the store product and offer and applies the
// ownership rules.
func (o *Orchestrator) flowParams(c *customer.Customer, req Request) (billing.FlowParams, error) {
	p := req.Product
	if p == nil || !p.IsAvailable() {
		return billing.FlowParams{}, errs.ErrProductUnavailable
	}
	details, ok := o.gateway.Registry().Product(p.SKU)
	if !ok {
		return billing.FlowParams{}, errs.ErrProductUnavailable
	}
	params := billing.FlowParams{Details: details, ObfuscatedAccountID: c.ID}

	if p.Type != product.TypeSubscription {
		return params, o.checkOneTime(p)
	}
	if p.Subscription == nil {
		return params, errs.ErrProductUnavailable
	}

	offerID, err := storeOfferID(p.Subscription, req.Offer)
	if err != nil {
		return params, err
	}
	offer, ok := o.gateway.Registry().Offer(p.SKU, p.Subscription.BasePlanID, offerID)
	if !ok {
		return params, errs.ErrProductUnavailable
	}
	params.OfferToken = offer.OfferToken

	params.Update, err = o.checkSubscription(p)
	return params, err
}

func storeOfferID(s *product.Subscription, requested *product.Offer) (string, error) {
	if requested != nil {
		if requested.Status != product.StatusAvailable {
			return "", errs.ErrProductUnavailable
		}
		return requested.StoreOfferID, nil
	}
	if ft := s.FreeTrial; ft != nil && ft.Status == product.StatusAvailable {
		return ft.StoreOfferID, nil
	}
	return "", nil
}

func (o *Orchestrator) checkOneTime(p *product.Product) error {
	if p.IsConsumable() {
		return nil
	}
	e, err := o.cache.Entitlement(p.ID)
	if err != nil {
		return err
	}
	if e != nil {
		return errs.ErrAlreadyPurchased
	}
	if o.cache.StoreAccountTransaction(p.SKU) != nil {
		return errs.ErrStoreAccountAlreadyHavePurchase
	}
	return nil
}

// checkSubscription returns the replacement to apply when the customer
// already holds a plan in the product's group.
func (o *Orchestrator) checkSubscription(p *product.Product) (*billing.SubscriptionUpdate, error) {
	group := p.Subscription.GroupID
	e, err := o.cache.EntitlementForSubscriptionGroup(group)
	if err != nil {
		return nil, err
	}
	if e == nil {
		if o.cache.StoreAccountTransactionForSubscriptionGroup(group) != nil {
			return nil, errs.ErrStoreAccountAlreadyHavePurchase
		}
		return nil, nil
	}
	if !e.IsManagedByThisStoreAccount() {
		return nil, errs.ErrNotManagedByThisStoreAccount
	}

	// With auto-renew off the customer may buy the same plan again.
	if e.Subscription.AutoRenew && e.RenewTarget().SamePlan(p) {
		if e.Product.SamePlan(p) {
			return nil, errs.ErrAlreadyPurchased
		}
		return nil, errs.ErrRenewAlreadyOnThisPlan
	}

	return &billing.SubscriptionUpdate{
		OldPurchaseToken: e.Subscription.PurchaseToken,
		Mode:             o.policy.Mode(e.Product, p),
	}, nil
}
