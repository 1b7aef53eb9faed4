// Package product models the purchasable catalog: products as the ledger
// describes them, enriched with live store availability.
package product

import (
	"github.com/xraph/purchasekit/types"
)

type Type string

const (
	TypeOneTime      Type = "one_time"
	TypeSubscription Type = "subscription"
)

// Status reports whether a product or offer can be bought right now.
// StatusInvalid means the store knows it but its pricing phases break the
// rules the engine relies on (see syncer parsing).
type Status string

const (
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
	StatusInvalid     Status = "invalid"
)

type OfferType string

const (
	OfferBase        OfferType = "base"
	OfferFreeTrial   OfferType = "free_trial"
	OfferPromotional OfferType = "recurring"
)

type Product struct {
	ID            string         `json:"id"`
	Identifier    string         `json:"identifier"`
	ExternalRef   string         `json:"externalRef"`
	ReferenceName string         `json:"referenceName"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	SKU           string         `json:"sku"`
	Type          Type           `json:"type"`
	Status        Status         `json:"status"`
	Price         types.Money    `json:"price"`
	Extras        map[string]any `json:"extras,omitempty"`
	OneTime       *OneTime       `json:"oneTime,omitempty"`
	Subscription  *Subscription  `json:"subscription,omitempty"`
}

type OneTime struct {
	IsConsumable    bool `json:"isConsumable"`
	IsMultiQuantity bool `json:"isMultiQuantity"`
}

type Subscription struct {
	BasePlanID        string       `json:"basePlanId"`
	GroupID           string       `json:"groupId"`
	GroupLevel        int          `json:"groupLevel"`
	Period            types.Period `json:"period"`
	BaseOffer         *Offer       `json:"baseOffer,omitempty"`
	FreeTrial         *Offer       `json:"freeTrial,omitempty"`
	PromotionalOffers []*Offer     `json:"promotionalOffers,omitempty"`
}

type Offer struct {
	ID            string       `json:"id,omitempty"` // empty for the base offer
	Identifier    string       `json:"identifier,omitempty"`
	ExternalRef   string       `json:"externalRef,omitempty"`
	ReferenceName string       `json:"referenceName,omitempty"`
	Name          string       `json:"name,omitempty"`
	Type          OfferType    `json:"type"`
	Price         types.Money  `json:"price"`
	Period        types.Period `json:"period"`
	BillingCycles int          `json:"billingCycles"`
	StoreOfferID  string       `json:"storeOfferId,omitempty"`
	Status        Status       `json:"status"`
}

type SubscriptionGroup struct {
	ID            string         `json:"id"`
	Identifier    string         `json:"identifier"`
	ReferenceName string         `json:"referenceName"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Extras        map[string]any `json:"extras,omitempty"`
	Products      []*Product     `json:"products"`
}

// IsAvailable reports whether the product can be purchased.
func (p *Product) IsAvailable() bool { return p != nil && p.Status == StatusAvailable }

// IsConsumable is true only for consumable one-time products.
func (p *Product) IsConsumable() bool {
	return p != nil && p.Type == TypeOneTime && p.OneTime != nil && p.OneTime.IsConsumable
}

// SamePlan reports whether p and other denote the same store sku and base
// plan. Catalog ids are not compared; the store is the source of identity.
func (p *Product) SamePlan(other *Product) bool {
	if p == nil || other == nil || p.SKU != other.SKU {
		return false
	}
	if p.Subscription == nil || other.Subscription == nil {
		return p.Subscription == nil && other.Subscription == nil
	}
	return p.Subscription.BasePlanID == other.Subscription.BasePlanID
}

// Offers returns every non-base offer of a subscription, free trial first.
func (s *Subscription) Offers() []*Offer {
	if s == nil {
		return nil
	}
	out := make([]*Offer, 0, len(s.PromotionalOffers)+1)
	if s.FreeTrial != nil {
		out = append(out, s.FreeTrial)
	}
	return append(out, s.PromotionalOffers...)
}

// OfferByID finds a non-base offer by its catalog id.
func (s *Subscription) OfferByID(offerID string) *Offer {
	for _, o := range s.Offers() {
		if o.ID == offerID {
			return o
		}
	}
	return nil
}
