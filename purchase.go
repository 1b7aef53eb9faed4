package purchasekit

import (
	"context"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/id"
	"github.com/xraph/purchasekit/product"
	"github.com/xraph/purchasekit/purchase"
)

// Purchase buys p through the store UI bound to activity. offer selects a
// non-base subscription offer; nil picks the free trial when available.
// At most one purchase runs at a time.
func (s *SDK) Purchase(ctx context.Context, activity billing.Activity, p *product.Product, offer *product.Offer) (*Outcome, error) {
	ss, err := s.session()
	if err != nil {
		return nil, err
	}

	out, err := ss.orch.Purchase(ctx, purchase.Request{Activity: activity, Product: p, Offer: offer})
	if err != nil {
		attemptID := id.Nil
		if out != nil {
			attemptID = out.AttemptID
		}
		ss.plugins.EmitPurchaseFailed(ctx, attemptID, productID(p), err)
		return out, err
	}
	ss.plugins.EmitPurchaseCompleted(ctx, out)
	return out, nil
}

// FinishPurchase finishes a store purchase received outside Purchase and
// reports it to the ledger.
func (s *SDK) FinishPurchase(ctx context.Context, p billing.Purchase) (purchase.FinishResult, error) {
	ss, err := s.session()
	if err != nil {
		return purchase.FinishResult{}, err
	}
	return ss.orch.FinishPurchase(ctx, p, purchase.FinishOptions{MapTransaction: true})
}

// onExternalPurchases receives store updates no purchase flow was waiting
// for, such as purchases made in the store app or promo redemptions. It
// runs on the store's callback thread, so the work moves to a goroutine.
func (ss *session) onExternalPurchases(r billing.Result, purchases []billing.Purchase) {
	if r.Code != billing.OK || len(purchases) == 0 {
		ss.logger.Debug("purchasekit: ignoring store update", "code", r.Code.String(), "count", len(purchases))
		return
	}
	if !ss.goBackground(func(ctx context.Context) { ss.handleExternal(ctx, purchases) }) {
		ss.logger.Warn("purchasekit: session closing, external purchases left for next login", "count", len(purchases))
	}
}

func (ss *session) handleExternal(ctx context.Context, purchases []billing.Purchase) {
	if err := ss.syncer.EnsureSync(ctx, false); err != nil {
		ss.logger.Warn("purchasekit: sync before external purchase failed", "error", err)
	}
	for _, p := range purchases {
		ss.plugins.EmitExternalPurchase(ctx, p)
		if _, err := ss.orch.FinishPurchase(ctx, p, purchase.FinishOptions{MapTransaction: true}); err != nil {
			ss.logger.Warn("purchasekit: finishing external purchase failed", "skus", p.SKUs, "error", err)
		}
	}
	if err := ss.syncer.EnsureSync(ctx, true); err != nil {
		ss.logger.Warn("purchasekit: sync after external purchase failed", "error", err)
	}
}
