package syncer_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/filecoin-project/go-clock"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/billing/billingtest"
	"github.com/xraph/purchasekit/customer"
	"github.com/xraph/purchasekit/errs"
	"github.com/xraph/purchasekit/ledgerapi"
	"github.com/xraph/purchasekit/ledgerapi/ledgertest"
	"github.com/xraph/purchasekit/product"
	"github.com/xraph/purchasekit/syncer"
)

func monthlyPhase(micros int64) billing.PricingPhase {
	return billing.PricingPhase{PriceMicros: micros, Currency: "EUR", BillingPeriod: "P1M", Recurrence: billing.InfiniteRecurring}
}

func premiumDTO() ledgerapi.ProductDTO {
	return ledgerapi.ProductDTO{
		ID: "prod_premium", Identifier: "premium", SKU: "premium", Type: product.TypeSubscription,
		BasePlanID: "monthly", SubscriptionPeriodCount: 1, SubscriptionPeriodUnit: "month",
		SubscriptionGroupID: "grp_1", SubscriptionGroupLevel: 1,
		SubscriptionGroup: &ledgerapi.SubscriptionGroupDTO{ID: "grp_1", Identifier: "main"},
		StorePrices:       []ledgerapi.StorePriceDTO{{PriceMillis: 4990, Currency: "EUR"}},
	}
}

func coinsDTO() ledgerapi.ProductDTO {
	return ledgerapi.ProductDTO{ID: "prod_coins", Identifier: "coins", SKU: "coins", Type: product.TypeOneTime, IsConsumable: true}
}

type fixture struct {
	store  *billingtest.Client
	ledger *ledgertest.Ledger
	clock  *clock.Mock
	syncer *syncer.Syncer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := billingtest.New()
	store.AddProduct(billing.ProductDetails{SKU: "premium", Kind: billing.KindSubs, SubscriptionOffers: []billing.SubscriptionOfferDetails{
		{BasePlanID: "monthly", OfferToken: "base", PricingPhases: []billing.PricingPhase{monthlyPhase(4_990_000)}},
	}})
	store.AddProduct(billing.ProductDetails{SKU: "coins", Kind: billing.KindInApp, OneTime: &billing.OneTimeOfferDetails{PriceMicros: 990_000, Currency: "EUR"}})

	ledger := ledgertest.New()
	ledger.Catalog = []ledgerapi.ProductDTO{premiumDTO(), coinsDTO()}

	mock := clock.NewMock()
	s := syncer.New(ledger, billing.NewGateway(store), syncer.WithClock(mock))
	return &fixture{store: store, ledger: ledger, clock: mock, syncer: s}
}

func (f *fixture) login(externalRef string, forwarding bool) {
	f.syncer.Login(&customer.Customer{ID: "cus_1", ExternalRef: externalRef, ForwardingEnabled: forwarding})
}

func ctx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func TestEnsureSyncTTL(t *testing.T) {
	f := newFixture(t)
	f.login("u1", false)

	for range 2 {
		if err := f.syncer.EnsureSync(ctx(t), false); err != nil {
			t.Fatal(err)
		}
	}
	if got := f.ledger.Calls(ledgertest.OpEntitlements); got != 1 {
		t.Fatalf("entitlement fetches within TTL = %d, want 1", got)
	}

	if err := f.syncer.EnsureSync(ctx(t), true); err != nil {
		t.Fatal(err)
	}
	if got := f.ledger.Calls(ledgertest.OpEntitlements); got != 2 {
		t.Fatalf("forced sync fetches = %d, want 2", got)
	}

	f.clock.Add(syncer.DefaultTTL)
	if err := f.syncer.EnsureSync(ctx(t), false); err != nil {
		t.Fatal(err)
	}
	if got := f.ledger.Calls(ledgertest.OpEntitlements); got != 3 {
		t.Fatalf("fetches after TTL = %d, want 3", got)
	}
}

func TestEnsureSyncConcurrentCallersCollapse(t *testing.T) {
	f := newFixture(t)
	f.login("u1", false)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.syncer.EnsureSync(ctx(t), false); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got := f.ledger.Calls(ledgertest.OpEntitlements); got != 1 {
		t.Errorf("entitlement fetches = %d, want 1", got)
	}
}

func TestFailedSyncKeepsPreviousState(t *testing.T) {
	f := newFixture(t)
	f.login("u1", false)
	if err := f.syncer.EnsureSync(ctx(t), false); err != nil {
		t.Fatal(err)
	}
	before, last := f.syncer.State(), f.syncer.LastSync()

	boom := errors.New("boom")
	f.ledger.Fail(ledgertest.OpEntitlements, boom)
	f.clock.Add(time.Minute)

	if err := f.syncer.EnsureSync(ctx(t), true); !errors.Is(err, boom) {
		t.Fatalf("EnsureSync = %v, want boom", err)
	}
	if f.syncer.State() != before {
		t.Error("failed sync replaced the state")
	}
	if !f.syncer.LastSync().Equal(last) {
		t.Error("failed sync advanced the TTL timestamp")
	}
}

func TestStoreFailureIsStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	f.login("u1", false)
	f.store.QueryResult = billing.Result{Code: billing.Error}

	err := f.syncer.EnsureSync(ctx(t), false)
	if !errors.Is(err, errs.ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
	if code, _ := billing.Code(err); code != billing.Error {
		t.Errorf("store code = %v", code)
	}
}

func TestManagedByThisStoreAccount(t *testing.T) {
	f := newFixture(t)
	f.login("u1", false)
	f.store.AddOwned(billing.KindSubs, billing.Purchase{SKUs: []string{"premium"}, Token: "tok-a", Acknowledged: true, AutoRenewing: false})
	f.store.AddOwned(billing.KindInApp, billing.Purchase{SKUs: []string{"premium"}, Token: "tok-b", Acknowledged: true})

	sub := &ledgerapi.SubscriptionDTO{AutoRenewEnable: true, Platform: "android"}
	ledgerSub := premiumDTO()
	f.ledger.SetEntitlements([]ledgerapi.EntitlementDTO{
		{Type: product.TypeSubscription, CustomerID: "cus_1", Product: &ledgerSub, Subscription: sub, PlatformOriginalTransactionID: billing.HashToken("tok-a")},
		{Type: product.TypeSubscription, CustomerID: "cus_1", Product: &ledgerSub, Subscription: sub, PlatformOriginalTransactionID: billing.HashToken("elsewhere")},
		// Only subscription purchases can manage a subscription.
		{Type: product.TypeSubscription, CustomerID: "cus_1", Product: &ledgerSub, Subscription: sub, PlatformOriginalTransactionID: billing.HashToken("tok-b")},
	})

	if err := f.syncer.EnsureSync(ctx(t), false); err != nil {
		t.Fatal(err)
	}
	ents, err := f.syncer.Entitlements(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(ents) != 3 {
		t.Fatalf("len = %d", len(ents))
	}
	for _, e := range ents {
		if e.Product == nil {
			t.Fatal("entitlement without product")
		}
	}

	managed, foreign, inApp := ents[0].Subscription, ents[1].Subscription, ents[2].Subscription
	if !managed.IsManagedByThisStoreAccount || managed.PurchaseToken != "tok-a" || managed.AutoRenew {
		t.Errorf("managed = %+v", managed)
	}
	if foreign.IsManagedByThisStoreAccount || foreign.PurchaseToken != "" || !foreign.AutoRenew {
		t.Errorf("foreign = %+v", foreign)
	}
	if inApp.IsManagedByThisStoreAccount || inApp.PurchaseToken != "" {
		t.Errorf("in-app match = %+v", inApp)
	}
	if ents[0].Product != f.syncer.Products([]string{"premium"}, false)[0] {
		t.Error("entitlement product should be the catalog instance")
	}
}

func TestRenewOfferWithoutProductIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.login("u1", false)
	p := premiumDTO()
	f.ledger.SetEntitlements([]ledgerapi.EntitlementDTO{{
		Type: product.TypeSubscription, CustomerID: "cus_1", Product: &p,
		Subscription: &ledgerapi.SubscriptionDTO{RenewProductOfferID: "offer_x"},
	}})

	if err := f.syncer.EnsureSync(ctx(t), false); err != nil {
		t.Fatal(err)
	}
	e, _ := f.syncer.Entitlement("prod_premium")
	if e == nil || e.Subscription.Renewal != nil {
		t.Fatalf("entitlement = %+v", e)
	}
	if e.RenewTarget() != e.Product {
		t.Error("renew target should fall back to the product")
	}
}

func TestLookupsRequireCustomer(t *testing.T) {
	f := newFixture(t)
	if err := f.syncer.EnsureSync(ctx(t), false); err != nil {
		t.Fatal(err)
	}
	if f.ledger.Calls(ledgertest.OpEntitlements) != 0 {
		t.Error("entitlements fetched without a customer")
	}

	if _, err := f.syncer.Entitlement("x"); !errors.Is(err, errs.ErrNoCustomerLogged) {
		t.Errorf("Entitlement = %v", err)
	}
	if _, err := f.syncer.EntitlementForSubscriptionGroup("grp_1"); !errors.Is(err, errs.ErrNoCustomerLogged) {
		t.Errorf("EntitlementForSubscriptionGroup = %v", err)
	}
	if _, err := f.syncer.Entitlements(nil); !errors.Is(err, errs.ErrNoCustomerLogged) {
		t.Errorf("Entitlements = %v", err)
	}
	if len(f.syncer.Products(nil, true)) != 2 {
		t.Error("catalog should be available without a customer")
	}
}

func TestForwardingRefresh(t *testing.T) {
	f := newFixture(t)
	f.login("u1", true)
	f.ledger.SetForwarding(false)

	if err := f.syncer.EnsureSync(ctx(t), false); err != nil {
		t.Fatal(err)
	}
	if f.syncer.Customer().ForwardingEnabled {
		t.Error("forwarding flag not refreshed")
	}

	f.login("u2", false)
	if err := f.syncer.EnsureSync(ctx(t), false); err != nil {
		t.Fatal(err)
	}
	if got := f.ledger.Calls(ledgertest.OpForwarding); got != 1 {
		t.Errorf("forwarding checks = %d, want 1 (only while flagged)", got)
	}
}

func TestRefreshForwardingSwallowsErrors(t *testing.T) {
	f := newFixture(t)
	f.login("u1", true)
	f.ledger.Fail(ledgertest.OpForwarding, errors.New("offline"))

	fwd, err := f.syncer.RefreshForwarding(ctx(t))
	if err != nil || !fwd {
		t.Fatalf("RefreshForwarding = %v, %v; want previous value", fwd, err)
	}

	f.ledger.Fail(ledgertest.OpForwarding, nil)
	f.ledger.SetForwarding(false)
	if fwd, _ := f.syncer.RefreshForwarding(ctx(t)); fwd || f.syncer.Customer().ForwardingEnabled {
		t.Error("fresh value not published")
	}
}

func TestStoreAccountTransactions(t *testing.T) {
	f := newFixture(t)
	f.login("u1", false)
	f.store.AddOwned(billing.KindSubs, billing.Purchase{SKUs: []string{"premium"}, Token: "tok-sub"})
	f.store.AddOwned(billing.KindInApp, billing.Purchase{SKUs: []string{"coins"}, Token: "tok-coins"})

	if err := f.syncer.EnsureSync(ctx(t), false); err != nil {
		t.Fatal(err)
	}
	if p := f.syncer.StoreAccountTransaction("coins"); p == nil || p.Token != "tok-coins" {
		t.Errorf("StoreAccountTransaction = %+v", p)
	}
	if p := f.syncer.StoreAccountTransactionForSubscriptionGroup("grp_1"); p == nil || p.Token != "tok-sub" {
		t.Errorf("StoreAccountTransactionForSubscriptionGroup = %+v", p)
	}
	if f.syncer.StoreAccountTransaction("nope") != nil {
		t.Error("unexpected transaction")
	}

	groups := f.syncer.SubscriptionGroups(nil)
	if len(groups) != 1 || groups[0].Identifier != "main" || len(groups[0].Products) != 1 {
		t.Errorf("groups = %+v", groups)
	}
}

func TestUnknownTransactions(t *testing.T) {
	purchases := []billing.Purchase{
		{SKUs: []string{"sub_a"}, Token: "new", Kind: billing.KindSubs},
		{SKUs: []string{"coins"}, Token: "known", Kind: billing.KindInApp},
		{SKUs: []string{"sub_a"}, Token: "new", Kind: billing.KindSubs},
	}

	items := syncer.UnknownTransactions([]string{billing.HashToken("known")}, purchases)
	if len(items) != 1 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].SKU != "sub_a" || items[0].PurchaseToken != "new" || items[0].Type != product.TypeSubscription {
		t.Errorf("item = %+v", items[0])
	}
}

func TestAcknowledgedTokens(t *testing.T) {
	got := syncer.AcknowledgedTokens([]billing.Purchase{
		{Token: "a", Acknowledged: true},
		{Token: "b"},
		{Token: "a", Acknowledged: true},
	})
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("AcknowledgedTokens = %v", got)
	}
}
