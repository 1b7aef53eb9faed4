package purchase_test

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/billing/billingtest"
	"github.com/xraph/purchasekit/errs"
	"github.com/xraph/purchasekit/ledgerapi"
	"github.com/xraph/purchasekit/ledgerapi/ledgertest"
	"github.com/xraph/purchasekit/product"
	"github.com/xraph/purchasekit/purchase"
)

func TestPurchasePreconditions(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fixture)
		product string
		wantErr error
	}{
		{"no customer", func(*fixture) {}, "coins", errs.ErrNoCustomerLogged},
		{"forwarded", func(f *fixture) {
			f.login()
			f.ledger.SetForwarding(true)
		}, "coins", errs.ErrCustomerForwarded},
		{"unknown to store", func(f *fixture) { f.login() }, "ghost", errs.ErrProductUnavailable},
		{"non-consumable entitled", func(f *fixture) {
			f.login()
			f.entitled("lifetime", false, "")
		}, "lifetime", errs.ErrAlreadyPurchased},
		{"non-consumable owned by another customer", func(f *fixture) {
			f.login()
			f.owns(billing.KindInApp, "lifetime", "tok-other", true)
		}, "lifetime", errs.ErrStoreAccountAlreadyHavePurchase},
		{"subscription on another store account", func(f *fixture) {
			f.login()
			f.entitled("premium", true, "")
		}, "pro", errs.ErrNotManagedByThisStoreAccount},
		{"same plan", func(f *fixture) {
			f.login()
			f.owns(billing.KindSubs, "premium", oldToken, true)
			f.entitled("premium", true, "")
		}, "premium", errs.ErrAlreadyPurchased},
		{"renewing into target", func(f *fixture) {
			f.login()
			f.owns(billing.KindSubs, "premium", oldToken, true)
			f.entitled("premium", true, "pro")
		}, "pro", errs.ErrRenewAlreadyOnThisPlan},
		{"group owned by another customer", func(f *fixture) {
			f.login()
			f.owns(billing.KindSubs, "pro", "tok-other", true)
		}, "premium", errs.ErrStoreAccountAlreadyHavePurchase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)
			p := f.product(t, tt.product)

			_, err := f.orch.Purchase(ctx(t), purchase.Request{Product: p})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Purchase = %v, want %v", err, tt.wantErr)
			}
			if _, _, launched := f.store.Snapshot(); launched != 0 {
				t.Errorf("flow launched %d times on a rejected attempt", launched)
			}
			if f.orch.Pending() {
				t.Error("slot not released")
			}
			if len(f.diag.Reasons()) != 0 {
				t.Errorf("diagnostics = %v for a precondition failure", f.diag.Reasons())
			}
		})
	}
}

func TestPurchaseStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "coins")
	f.login()

	f.store.SetupResults = []billing.Result{{Code: billing.ServiceUnavailable}, {Code: billing.ServiceUnavailable}}
	f.store.Disconnect()

	_, err := f.orch.Purchase(ctx(t), purchase.Request{Product: p})
	if !errors.Is(err, errs.ErrStoreUnavailable) {
		t.Fatalf("Purchase = %v, want ErrStoreUnavailable", err)
	}
}

func TestPurchaseAllowsCanceledRenewalOnSamePlan(t *testing.T) {
	f := newFixture(t)
	f.login()
	f.owns(billing.KindSubs, "premium", oldToken, false)
	f.entitled("premium", false, "")

	out, err := f.orch.Purchase(ctx(t), purchase.Request{Product: f.product(t, "premium")})
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if out.Replacement != billing.ReplacementWithoutProration {
		t.Errorf("replacement = %v", out.Replacement)
	}
}

func TestPurchaseReplacementModes(t *testing.T) {
	tests := []struct {
		name   string
		target string
		opts   []purchase.Option
		want   billing.ReplacementMode
	}{
		{"same sku", "premium_yearly", nil, billing.ReplacementWithoutProration},
		{"upgrade", "pro", nil, billing.ReplacementChargeFullPrice},
		{"downgrade", "basic", nil, billing.ReplacementDeferred},
		{"configured downgrade", "basic", []purchase.Option{
			purchase.WithPolicy(purchase.ReplacementPolicy{Downgrade: billing.ReplacementChargeProratedPrice}),
		}, billing.ReplacementChargeProratedPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.opts...)
			f.login()
			f.owns(billing.KindSubs, "premium", oldToken, true)
			f.entitled("premium", true, "")

			out, err := f.orch.Purchase(ctx(t), purchase.Request{Product: f.product(t, tt.target)})
			if err != nil {
				t.Fatalf("Purchase: %v", err)
			}
			if out.Replacement != tt.want {
				t.Errorf("Replacement = %v, want %v", out.Replacement, tt.want)
			}
			launched := f.store.Launched[0]
			if launched.Update == nil || launched.Update.OldPurchaseToken != oldToken || launched.Update.Mode != tt.want {
				t.Errorf("launched update = %+v", launched.Update)
			}
			if launched.ObfuscatedAccountID != "cus_1" {
				t.Errorf("account id = %q", launched.ObfuscatedAccountID)
			}
		})
	}
}

func TestPurchaseOfferSelection(t *testing.T) {
	f := newFixture(t)
	f.login()
	premium := f.product(t, "premium")

	tests := []struct {
		name  string
		offer *product.Offer
		want  string
	}{
		{"free trial by default", nil, "tok-trial"},
		{"requested promo", premium.Subscription.OfferByID("off_promo"), "tok-promo"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.orch.Purchase(ctx(t), purchase.Request{Product: premium, Offer: tt.offer}); err != nil {
				t.Fatalf("Purchase: %v", err)
			}
			if got := f.store.Launched[i].OfferToken; got != tt.want {
				t.Errorf("offer token = %q, want %q", got, tt.want)
			}
		})
	}

	invalid := *premium.Subscription.OfferByID("off_promo")
	invalid.Status = product.StatusInvalid
	if _, err := f.orch.Purchase(ctx(t), purchase.Request{Product: premium, Offer: &invalid}); !errors.Is(err, errs.ErrProductUnavailable) {
		t.Errorf("invalid offer = %v, want ErrProductUnavailable", err)
	}
}

func TestPurchaseConsumable(t *testing.T) {
	f := newFixture(t)
	f.login()

	out, err := f.orch.Purchase(ctx(t), purchase.Request{Product: f.product(t, "coins")})
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if out.Status != ledgerapi.WebhookSuccess || out.AttemptID.IsNil() {
		t.Errorf("outcome = %+v", out)
	}
	consumed, acked, _ := f.store.Snapshot()
	if len(consumed) != 1 || consumed[0] != "tok-new-coins" || len(acked) != 0 {
		t.Errorf("consumed = %v, acknowledged = %v", consumed, acked)
	}
	if got := f.ledger.Calls(ledgertest.OpMapTransactions); got != 0 {
		t.Errorf("map calls = %d, want 0", got)
	}
}

func TestPurchaseAlreadyPendingDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	f.login()
	coins := f.product(t, "coins")

	release := make(chan struct{})
	f.store.Flow = func(params billing.FlowParams) (billing.Result, []billing.Purchase) {
		<-release
		return buyOne(params)
	}

	c := ctx(t)
	first := make(chan error, 1)
	go func() {
		_, err := f.orch.Purchase(c, purchase.Request{Product: coins})
		first <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !f.orch.Pending() || launchedCount(f) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first purchase never launched")
		}
		time.Sleep(time.Millisecond)
	}

	start := time.Now()
	_, err := f.orch.Purchase(ctx(t), purchase.Request{Product: coins})
	if !errors.Is(err, errs.ErrPurchaseAlreadyPending) {
		t.Fatalf("second Purchase = %v, want ErrPurchaseAlreadyPending", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("second Purchase blocked for %v", time.Since(start))
	}

	close(release)
	if err := <-first; err != nil {
		t.Fatalf("first Purchase: %v", err)
	}
	if f.orch.Pending() {
		t.Error("slot not released")
	}
}

func launchedCount(f *fixture) int {
	_, _, n := f.store.Snapshot()
	return n
}

func TestPurchaseStoreResults(t *testing.T) {
	tests := []struct {
		name     string
		launch   billing.ResponseCode
		flow     billingtest.FlowFunc
		wantErr  error
		diagnose bool
	}{
		{"user canceled", billing.OK, failFlow(billing.UserCanceled), errs.ErrUserCanceled, false},
		{"network", billing.OK, failFlow(billing.NetworkError), errs.ErrNetworkUnavailable, false},
		{"billing unavailable", billing.OK, failFlow(billing.BillingUnavailable), errs.ErrBillingIssue, false},
		{"service disconnected", billing.OK, failFlow(billing.ServiceDisconnected), errs.ErrStoreUnavailable, false},
		{"developer error", billing.OK, failFlow(billing.DeveloperError), errs.ErrFailed, true},
		{"launch rejected", billing.ItemAlreadyOwned, nil, errs.ErrFailed, true},
		{"no purchase", billing.OK, purchasesFlow(0), errs.ErrUnknown, true},
		{"two purchases", billing.OK, purchasesFlow(2), errs.ErrUnknown, true},
		{"pending payment", billing.OK, pendingFlow, errs.ErrPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.login()
			p := f.product(t, "coins")
			f.store.LaunchResult = billing.Result{Code: tt.launch}
			f.store.Flow = tt.flow

			_, err := f.orch.Purchase(ctx(t), purchase.Request{Product: p})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Purchase = %v, want %v", err, tt.wantErr)
			}
			if got := len(f.diag.Reasons()) > 0; got != tt.diagnose {
				t.Errorf("diagnostics triggered = %v, want %v", got, tt.diagnose)
			}
			if consumed, _, _ := f.store.Snapshot(); len(consumed) != 0 {
				t.Errorf("consumed %v on a failed attempt", consumed)
			}
			if f.orch.Pending() {
				t.Error("slot not released")
			}
		})
	}
}

func failFlow(code billing.ResponseCode) billingtest.FlowFunc {
	return func(billing.FlowParams) (billing.Result, []billing.Purchase) {
		return billing.Result{Code: code, DebugMessage: "store says no"}, nil
	}
}

func purchasesFlow(n int) billingtest.FlowFunc {
	return func(params billing.FlowParams) (billing.Result, []billing.Purchase) {
		_, one := buyOne(params)
		var out []billing.Purchase
		for range n {
			out = append(out, one[0])
		}
		return billing.Result{Code: billing.OK}, out
	}
}

func pendingFlow(params billing.FlowParams) (billing.Result, []billing.Purchase) {
	r, ps := buyOne(params)
	ps[0].State = billing.PurchaseStatePending
	return r, ps
}
