package syncer

import (
	"log/slog"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/entitlement"
	"github.com/xraph/purchasekit/ledgerapi"
	"github.com/xraph/purchasekit/product"
	"github.com/xraph/purchasekit/types"
)

// parser turns validated ledger records into domain values, using the store
// registry for live availability and prices.
type parser struct {
	registry *billing.Registry
	logger   *slog.Logger
}

func fallbackPrice(prices []ledgerapi.StorePriceDTO) types.Money {
	if len(prices) == 0 {
		return types.Money{}
	}
	return types.FromMillis(prices[0].PriceMillis, prices[0].Currency)
}

func catalogPeriod(count int, unit string) types.Period {
	u, _ := types.ParsePeriodUnit(unit) //nolint:errcheck // validated at the ledger boundary
	return types.Period{Count: count, Unit: u}
}

func (p parser) product(dto ledgerapi.ProductDTO) *product.Product {
	out := &product.Product{
		ID:            dto.ID,
		Identifier:    dto.Identifier,
		ExternalRef:   dto.ExternalRef,
		ReferenceName: dto.ReferenceName,
		Name:          dto.Name,
		Description:   dto.Description,
		SKU:           dto.SKU,
		Type:          dto.Type,
		Extras:        dto.Extras,
	}

	switch dto.Type {
	case product.TypeOneTime:
		out.OneTime = &product.OneTime{IsConsumable: dto.IsConsumable, IsMultiQuantity: dto.IsMultiQuantity}
		details, ok := p.registry.Product(dto.SKU)
		switch {
		case !ok:
			out.Status = product.StatusUnavailable
		case details.OneTime == nil:
			out.Status = product.StatusInvalid
		default:
			out.Status = product.StatusAvailable
			out.Price = types.FromMicros(details.OneTime.PriceMicros, details.OneTime.Currency)
		}

	case product.TypeSubscription:
		sub := &product.Subscription{
			BasePlanID: dto.BasePlanID,
			GroupID:    dto.SubscriptionGroupID,
			GroupLevel: dto.SubscriptionGroupLevel,
			Period:     catalogPeriod(dto.SubscriptionPeriodCount, dto.SubscriptionPeriodUnit),
		}
		out.Subscription = sub

		sub.BaseOffer = p.baseOffer(dto, sub.Period)
		out.Status = sub.BaseOffer.Status
		out.Price = sub.BaseOffer.Price
		if out.Status == product.StatusAvailable {
			sub.Period = sub.BaseOffer.Period
		}

		for _, od := range dto.Offers {
			o := p.offer(dto, od, sub.Period)
			if o.Type != product.OfferFreeTrial {
				sub.PromotionalOffers = append(sub.PromotionalOffers, o)
				continue
			}
			if sub.FreeTrial != nil {
				p.logger.Warn("syncer: product has more than one free trial, ignoring extra",
					"sku", dto.SKU, "offer_id", od.ID)
				continue
			}
			sub.FreeTrial = o
		}
	}

	if out.Status != product.StatusAvailable {
		out.Price = fallbackPrice(dto.StorePrices)
	}
	return out
}

// baseOffer requires exactly one recurring pricing phase.
func (p parser) baseOffer(dto ledgerapi.ProductDTO, period types.Period) *product.Offer {
	o := &product.Offer{Type: product.OfferBase, Status: product.StatusUnavailable}

	so, ok := p.registry.Offer(dto.SKU, dto.BasePlanID, "")
	if ok {
		o.Status = product.StatusInvalid
		if len(so.PricingPhases) == 1 && so.PricingPhases[0].Recurrence != billing.NonRecurring {
			phase := so.PricingPhases[0]
			if iso, err := types.ParseISOPeriod(phase.BillingPeriod); err == nil {
				o.Status = product.StatusAvailable
				o.Price = types.FromMicros(phase.PriceMicros, phase.Currency)
				o.Period = iso
				o.BillingCycles = phase.BillingCycleCount
			}
		}
	}

	if o.Status != product.StatusAvailable {
		o.Price = fallbackPrice(dto.StorePrices)
		o.Period = period
	}
	return o
}

// offer requires exactly two pricing phases, none non-recurring, and a
// free first phase for free trials.
func (p parser) offer(pd ledgerapi.ProductDTO, dto ledgerapi.OfferDTO, period types.Period) *product.Offer {
	o := &product.Offer{
		ID:            dto.ID,
		Identifier:    dto.Identifier,
		ExternalRef:   dto.ExternalRef,
		ReferenceName: dto.ReferenceName,
		Name:          dto.Name,
		Type:          dto.Type,
		StoreOfferID:  dto.StoreOfferID,
		Status:        product.StatusUnavailable,
	}

	so, ok := p.registry.Offer(pd.SKU, pd.BasePlanID, dto.StoreOfferID)
	if ok {
		o.Status = product.StatusAvailable
		phases := so.PricingPhases
		switch {
		case len(phases) != 2:
			o.Status = product.StatusInvalid
		case dto.Type == product.OfferFreeTrial && phases[0].PriceMicros != 0:
			o.Status = product.StatusInvalid
		default:
			for _, ph := range phases {
				if ph.Recurrence == billing.NonRecurring {
					o.Status = product.StatusInvalid
				}
			}
		}
		if o.Status == product.StatusAvailable {
			iso, err := types.ParseISOPeriod(phases[0].BillingPeriod)
			if err != nil {
				o.Status = product.StatusInvalid
			} else {
				o.Price = types.FromMicros(phases[0].PriceMicros, phases[0].Currency)
				o.Period = iso
				o.BillingCycles = phases[0].BillingCycleCount
			}
		}
	}

	if o.Status != product.StatusAvailable {
		o.Price = fallbackPrice(dto.StorePrices)
		if dto.Type == product.OfferFreeTrial {
			o.Period = catalogPeriod(dto.OfferPeriodCount, dto.OfferPeriodUnit)
			o.BillingCycles = 1
		} else {
			o.Period = period
			o.BillingCycles = dto.OfferCountBillingCycle
		}
	}
	return o
}

// groups collects subscription products by group, in catalog order.
func groups(dtos []ledgerapi.ProductDTO, products []*product.Product) []*product.SubscriptionGroup {
	var out []*product.SubscriptionGroup
	byID := make(map[string]*product.SubscriptionGroup)

	for i, p := range products {
		if p.Subscription == nil || p.Subscription.GroupID == "" {
			continue
		}
		g, ok := byID[p.Subscription.GroupID]
		if !ok {
			g = &product.SubscriptionGroup{ID: p.Subscription.GroupID}
			if gd := dtos[i].SubscriptionGroup; gd != nil {
				g.Identifier = gd.Identifier
				g.ReferenceName = gd.ReferenceName
				g.Name = gd.Name
				g.Description = gd.Description
				g.Extras = gd.Extras
			}
			byID[g.ID] = g
			out = append(out, g)
		}
		g.Products = append(g.Products, p)
	}
	return out
}

// entitlement resolves product references against the parsed catalog and
// matches subscriptions to live store purchases by hashed token.
func (p parser) entitlement(dto ledgerapi.EntitlementDTO, catalog map[string]*product.Product, purchases []billing.Purchase) *entitlement.Entitlement {
	resolve := func(pd *ledgerapi.ProductDTO) *product.Product {
		if known, ok := catalog[pd.ID]; ok {
			return known
		}
		return p.product(*pd)
	}

	e := &entitlement.Entitlement{
		Type:                          dto.Type,
		Product:                       resolve(dto.Product),
		CustomerID:                    dto.CustomerID,
		PlatformOriginalTransactionID: dto.PlatformOriginalTransactionID,
	}

	if dto.Type == product.TypeOneTime {
		e.Item = &entitlement.Item{Quantity: dto.Item.Quantity}
		return e
	}

	sd := dto.Subscription
	s := &entitlement.Subscription{
		StartDate:          sd.StartDate,
		EndDate:            sd.EndDate,
		Platform:           sd.Platform,
		AutoRenew:          sd.AutoRenewEnable,
		IsInGracePeriod:    sd.IsInGracePeriod,
		IsInBillingIssue:   sd.IsInBillingIssue,
		HasPauseScheduled:  sd.HasPauseScheduled,
		IsPaused:           sd.IsPaused,
		IsExpiredOrRevoked: sd.IsExpiredOrRevoked,
	}
	if ps := e.Product.Subscription; ps != nil {
		s.Offer = ps.BaseOffer
		if sd.ProductOfferID != "" {
			s.Offer = ps.OfferByID(sd.ProductOfferID)
		}
	}

	switch {
	case sd.RenewProduct != nil:
		rp := resolve(sd.RenewProduct)
		r := &entitlement.Renewal{Product: rp}
		if sd.RenewProductOfferID != "" && rp.Subscription != nil {
			r.Offer = rp.Subscription.OfferByID(sd.RenewProductOfferID)
		}
		s.Renewal = r
	case sd.RenewProductOfferID != "":
		p.logger.Warn("syncer: renew offer without renew product, ignoring renewal",
			"product_id", dto.Product.ID, "renew_offer_id", sd.RenewProductOfferID)
	}

	if id := dto.PlatformOriginalTransactionID; id != "" {
		for _, sp := range purchases {
			if sp.Kind == billing.KindSubs && billing.HashToken(sp.Token) == id {
				s.IsManagedByThisStoreAccount = true
				s.AutoRenew = sp.AutoRenewing
				s.PurchaseToken = sp.Token
				break
			}
		}
	}

	e.Subscription = s
	return e
}
