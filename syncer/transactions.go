package syncer

import (
	"slices"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/ledgerapi"
	"github.com/xraph/purchasekit/product"
)

// KindType maps a store kind to the catalog product type.
func KindType(k billing.Kind) product.Type {
	if k == billing.KindInApp {
		return product.TypeOneTime
	}
	return product.TypeSubscription
}

// UnknownTransactions returns a mapping item for every purchase whose
// hashed token is not in known. Each token is reported once.
func UnknownTransactions(known []string, purchases []billing.Purchase) []ledgerapi.MapTransactionItem {
	seen := slices.Clone(known)
	var out []ledgerapi.MapTransactionItem
	for _, p := range purchases {
		h := billing.HashToken(p.Token)
		if slices.Contains(seen, h) || len(p.SKUs) == 0 {
			continue
		}
		seen = append(seen, h)
		out = append(out, ledgerapi.MapTransactionItem{
			SKU:           p.SKUs[0],
			PurchaseToken: p.Token,
			Type:          KindType(p.Kind),
		})
	}
	return out
}

// AcknowledgedTokens returns the distinct tokens of acknowledged purchases.
func AcknowledgedTokens(purchases []billing.Purchase) []string {
	var out []string
	for _, p := range purchases {
		if p.Acknowledged && !slices.Contains(out, p.Token) {
			out = append(out, p.Token)
		}
	}
	return out
}
