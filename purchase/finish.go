package purchase

import (
	"context"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/customer"
	"github.com/xraph/purchasekit/ledgerapi"
	"github.com/xraph/purchasekit/product"
)

type FinishOptions struct {
	// MapTransaction reports the transaction to the ledger once finished.
	// Used for purchases made outside a Purchase call.
	MapTransaction bool
	// Product skips the sku lookup when the catalog product is known.
	Product *product.Product
}

type FinishResult struct {
	// Finished is false when the purchase needed nothing.
	Finished bool
	Status   ledgerapi.WebhookStatus
}

// FinishPurchase consumes or acknowledges p, optionally maps it to the
// customer, waits for the ledger and forces a resync. Purchases that are
// not PURCHASED, already acknowledged, or already finished in this session
// are left untouched.
//
// Failing to resolve the product degrades to a WebhookError status with a
// nil error so the caller keeps going; the purchase stays unfinished and is
// picked up again at the next login.
func (o *Orchestrator) FinishPurchase(ctx context.Context, p billing.Purchase, opts FinishOptions) (FinishResult, error) {
	if p.State != billing.PurchaseStatePurchased || p.Acknowledged {
		return FinishResult{}, nil
	}
	if _, dup := o.finished.LoadOrStore(p.Token, struct{}{}); dup {
		return FinishResult{}, nil
	}

	log := o.logger.With("order_id", p.OrderID)
	if len(p.SKUs) != 1 {
		o.finished.Delete(p.Token)
		log.Error("purchase: finish expects exactly one sku", "skus", p.SKUs)
		o.diagnose(ctx, "finish_sku_count")
		return FinishResult{Status: ledgerapi.WebhookError}, nil
	}
	sku := p.SKUs[0]
	log = log.With("sku", sku)

	typ, consumable, err := o.resolve(ctx, sku, opts.Product)
	if err != nil {
		o.finished.Delete(p.Token)
		log.Error("purchase: cannot resolve product to finish", "error", err)
		o.diagnose(ctx, "finish_unknown_product")
		return FinishResult{Status: ledgerapi.WebhookError}, nil
	}

	if consumable {
		err = o.gateway.Consume(ctx, p.Token)
	} else {
		err = o.gateway.Acknowledge(ctx, p.Token)
	}
	if err != nil {
		o.finished.Delete(p.Token)
		return FinishResult{}, Translate(err)
	}
	log.Debug("purchase: finished on store", "consumed", consumable)

	c := o.cache.Customer()
	if opts.MapTransaction {
		o.mapTransaction(ctx, c, ledgerapi.MapTransactionItem{SKU: sku, PurchaseToken: p.Token, Type: typ})
	}

	res := FinishResult{Finished: true, Status: ledgerapi.WebhookSuccess}
	var waitErr error
	if c == nil || !c.ForwardingEnabled {
		res.Status, waitErr = o.waiter.WaitPurchase(ctx, p)
	}

	if err := o.cache.EnsureSync(ctx, true); err != nil {
		log.Warn("purchase: resync after finish failed", "error", err)
	}
	if o.onFinish != nil {
		o.onFinish(ctx, p, res)
	}
	return res, Translate(waitErr)
}

func (o *Orchestrator) resolve(ctx context.Context, sku string, known *product.Product) (product.Type, bool, error) {
	if known != nil && known.SKU == sku {
		return known.Type, known.IsConsumable(), nil
	}
	for _, p := range o.cache.Products(nil, false) {
		if p.SKU == sku {
			return p.Type, p.IsConsumable(), nil
		}
	}
	m, err := o.ledger.MinimalProduct(ctx, sku)
	if err != nil {
		return "", false, err
	}
	return m.Type, m.Type == product.TypeOneTime && m.IsConsumable, nil
}

func (o *Orchestrator) mapTransaction(ctx context.Context, c *customer.Customer, item ledgerapi.MapTransactionItem) {
	if c == nil {
		o.logger.Warn("purchase: no customer to map transaction to", "sku", item.SKU)
		return
	}
	if err := o.ledger.MapTransactions(ctx, c.ID, []ledgerapi.MapTransactionItem{item}); err != nil {
		o.logger.Warn("purchase: map transaction failed", "sku", item.SKU, "customer_id", c.ID, "error", err)
	}
}
