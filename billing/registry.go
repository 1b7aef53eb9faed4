package billing

import "sync"

type offerKey struct {
	sku, basePlanID, offerID string
}

// Registry caches store product details by sku and subscription offers by
// (sku, base plan, offer id). The base plan offer has an empty offer id.
type Registry struct {
	mu       sync.RWMutex
	products map[string]ProductDetails
	offers   map[offerKey]SubscriptionOfferDetails
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		products: make(map[string]ProductDetails),
		offers:   make(map[offerKey]SubscriptionOfferDetails),
	}
}

// Register stores details, replacing previous entries for the same skus.
func (r *Registry) Register(details []ProductDetails) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range details {
		for k := range r.offers {
			if k.sku == d.SKU {
				delete(r.offers, k)
			}
		}
		r.products[d.SKU] = d
		for _, o := range d.SubscriptionOffers {
			r.offers[offerKey{d.SKU, o.BasePlanID, o.OfferID}] = o
		}
	}
}

// Product returns the cached details for sku.
func (r *Registry) Product(sku string) (ProductDetails, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.products[sku]
	return d, ok
}

// Offer returns the cached subscription offer. Pass an empty offerID for
// the base plan offer.
func (r *Registry) Offer(sku, basePlanID, offerID string) (SubscriptionOfferDetails, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.offers[offerKey{sku, basePlanID, offerID}]
	return o, ok
}

// Missing returns the skus not yet registered, preserving order.
func (r *Registry) Missing(skus []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, s := range skus {
		if _, ok := r.products[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// Reset drops every cached entry.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products = make(map[string]ProductDetails)
	r.offers = make(map[offerKey]SubscriptionOfferDetails)
}
