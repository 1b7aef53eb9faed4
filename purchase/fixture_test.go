package purchase_test

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/billing/billingtest"
	"github.com/xraph/purchasekit/customer"
	"github.com/xraph/purchasekit/ledgerapi"
	"github.com/xraph/purchasekit/ledgerapi/ledgertest"
	"github.com/xraph/purchasekit/product"
	"github.com/xraph/purchasekit/purchase"
	"github.com/xraph/purchasekit/syncer"
	"github.com/xraph/purchasekit/webhook"
)

const oldToken = "tok-old"

func phase(micros int64, period string, mode billing.RecurrenceMode) billing.PricingPhase {
	return billing.PricingPhase{PriceMicros: micros, Currency: "EUR", BillingPeriod: period, Recurrence: mode}
}

func baseOffer(plan, token string) billing.SubscriptionOfferDetails {
	return billing.SubscriptionOfferDetails{BasePlanID: plan, OfferToken: token, PricingPhases: []billing.PricingPhase{
		phase(4_990_000, "P1M", billing.InfiniteRecurring),
	}}
}

func subDTO(id, sku, plan string, level int) ledgerapi.ProductDTO {
	return ledgerapi.ProductDTO{
		ID: id, Identifier: id, SKU: sku, Type: product.TypeSubscription, BasePlanID: plan,
		SubscriptionPeriodCount: 1, SubscriptionPeriodUnit: "month",
		SubscriptionGroupID: "grp_main", SubscriptionGroupLevel: level,
		SubscriptionGroup: &ledgerapi.SubscriptionGroupDTO{ID: "grp_main", Identifier: "main"},
	}
}

// catalog: premium (level 1, monthly and yearly base plans, free trial and
// a promo on monthly), pro (level 2), basic (level 0), coins (consumable),
// lifetime (non-consumable) and ghost (unknown to the store).
func catalog() []ledgerapi.ProductDTO {
	premium := subDTO("premium", "premium", "monthly", 1)
	premium.Offers = []ledgerapi.OfferDTO{
		{ID: "off_trial", Type: product.OfferFreeTrial, StoreOfferID: "trial"},
		{ID: "off_promo", Type: product.OfferPromotional, StoreOfferID: "promo"},
	}
	return []ledgerapi.ProductDTO{
		premium,
		subDTO("premium_yearly", "premium", "yearly", 1),
		subDTO("pro", "pro", "monthly", 2),
		subDTO("basic", "basic", "monthly", 0),
		{ID: "coins", Identifier: "coins", SKU: "coins", Type: product.TypeOneTime, IsConsumable: true},
		{ID: "lifetime", Identifier: "lifetime", SKU: "lifetime", Type: product.TypeOneTime},
		{ID: "ghost", Identifier: "ghost", SKU: "ghost", Type: product.TypeOneTime},
	}
}

type diagRecorder struct {
	mu      sync.Mutex
	reasons []string
}

func (d *diagRecorder) record(_ context.Context, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reasons = append(d.reasons, reason)
}

func (d *diagRecorder) Reasons() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.reasons)
}

type fixture struct {
	store   *billingtest.Client
	ledger  *ledgertest.Ledger
	gateway *billing.Gateway
	syncer  *syncer.Syncer
	orch    *purchase.Orchestrator
	diag    *diagRecorder
}

func newFixture(t *testing.T, opts ...purchase.Option) *fixture {
	t.Helper()
	store := billingtest.New()
	store.AddProduct(billing.ProductDetails{SKU: "premium", Kind: billing.KindSubs, SubscriptionOffers: []billing.SubscriptionOfferDetails{
		baseOffer("monthly", "tok-premium-monthly"),
		baseOffer("yearly", "tok-premium-yearly"),
		{BasePlanID: "monthly", OfferID: "trial", OfferToken: "tok-trial", PricingPhases: []billing.PricingPhase{
			phase(0, "P1W", billing.FiniteRecurring), phase(4_990_000, "P1M", billing.InfiniteRecurring),
		}},
		{BasePlanID: "monthly", OfferID: "promo", OfferToken: "tok-promo", PricingPhases: []billing.PricingPhase{
			phase(1_990_000, "P1M", billing.FiniteRecurring), phase(4_990_000, "P1M", billing.InfiniteRecurring),
		}},
	}})
	store.AddProduct(billing.ProductDetails{SKU: "pro", Kind: billing.KindSubs, SubscriptionOffers: []billing.SubscriptionOfferDetails{baseOffer("monthly", "tok-pro")}})
	store.AddProduct(billing.ProductDetails{SKU: "basic", Kind: billing.KindSubs, SubscriptionOffers: []billing.SubscriptionOfferDetails{baseOffer("monthly", "tok-basic")}})
	store.AddProduct(billing.ProductDetails{SKU: "coins", Kind: billing.KindInApp, OneTime: &billing.OneTimeOfferDetails{PriceMicros: 990_000, Currency: "EUR"}})
	store.AddProduct(billing.ProductDetails{SKU: "lifetime", Kind: billing.KindInApp, OneTime: &billing.OneTimeOfferDetails{PriceMicros: 29_990_000, Currency: "EUR"}})
	store.Flow = buyOne

	ledger := ledgertest.New()
	ledger.Catalog = catalog()

	gw := billing.NewGateway(store)
	t.Cleanup(gw.Close)
	s := syncer.New(ledger, gw)
	diag := &diagRecorder{}

	opts = append([]purchase.Option{purchase.WithDiagnostics(diag.record)}, opts...)
	orch := purchase.New(gw, s, ledger, webhook.NewWaiter(ledger), opts...)
	return &fixture{store: store, ledger: ledger, gateway: gw, syncer: s, orch: orch, diag: diag}
}

// buyOne completes every flow with a single fresh purchase of the sku.
func buyOne(params billing.FlowParams) (billing.Result, []billing.Purchase) {
	return billing.Result{Code: billing.OK}, []billing.Purchase{{
		SKUs:         []string{params.Details.SKU},
		Token:        "tok-new-" + params.Details.SKU,
		OrderID:      "GPA.new",
		State:        billing.PurchaseStatePurchased,
		PurchaseTime: time.Now(),
	}}
}

func (f *fixture) login() {
	f.syncer.Login(&customer.Customer{ID: "cus_1", ExternalRef: "u1"})
}

// owns gives the store account an acknowledged purchase of sku. The store's
// auto-renewing flag wins over the ledger's for this account's subscriptions.
func (f *fixture) owns(kind billing.Kind, sku, token string, autoRenewing bool) {
	f.store.AddOwned(kind, billing.Purchase{
		SKUs: []string{sku}, Token: token, State: billing.PurchaseStatePurchased, Acknowledged: true, AutoRenewing: autoRenewing,
	})
}

// entitled makes the ledger report a subscription to productID, managed by
// this store account when the store owns oldToken.
func (f *fixture) entitled(productID string, autoRenew bool, renewTo string) {
	var prod, renew *ledgerapi.ProductDTO
	for _, d := range catalog() {
		if d.ID == productID {
			prod = &d
		}
		if d.ID == renewTo {
			renew = &d
		}
	}
	e := ledgerapi.EntitlementDTO{
		CustomerID: "cus_1", Product: prod, Type: prod.Type,
		PlatformOriginalTransactionID: billing.HashToken(oldToken),
	}
	if prod.Type == product.TypeOneTime {
		e.Item = &ledgerapi.ItemDTO{Quantity: 1}
	} else {
		e.Subscription = &ledgerapi.SubscriptionDTO{AutoRenewEnable: autoRenew, RenewProduct: renew}
	}
	f.ledger.SetEntitlements(append(f.ledger.Entitlements, e))
}

func (f *fixture) product(t *testing.T, identifier string) *product.Product {
	t.Helper()
	if err := f.syncer.EnsureSync(ctx(t), false); err != nil {
		t.Fatalf("sync: %v", err)
	}
	ps := f.syncer.Products([]string{identifier}, false)
	if len(ps) != 1 {
		t.Fatalf("product %q not in catalog", identifier)
	}
	return ps[0]
}

func ctx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}
