// Package entitlement models what the ledger says a customer owns. An
// entitlement list is rebuilt wholesale on every sync; values are never
// mutated after parsing.
package entitlement

import (
	"time"

	"github.com/xraph/purchasekit/product"
	"github.com/xraph/purchasekit/types"
)

type Entitlement struct {
	Type       product.Type     `json:"type"`
	Product    *product.Product `json:"product"`
	CustomerID string           `json:"customerId"`
	// PlatformOriginalTransactionID is the ledger's opaque originating
	// transaction id. For store subscriptions it is the hex SHA-256 of the
	// purchase token.
	PlatformOriginalTransactionID string        `json:"platformOriginalTransactionId"`
	Item                          *Item         `json:"item,omitempty"`
	Subscription                  *Subscription `json:"subscription,omitempty"`
}

type Item struct {
	Quantity int `json:"quantity"`
}

type Subscription struct {
	StartDate                   time.Time      `json:"startDate"`
	EndDate                     time.Time      `json:"endDate"`
	AutoRenew                   bool           `json:"autoRenew"`
	IsInGracePeriod             bool           `json:"isInGracePeriod"`
	IsInBillingIssue            bool           `json:"isInBillingIssue"`
	IsPaused                    bool           `json:"isPaused"`
	HasPauseScheduled           bool           `json:"hasPauseScheduled"`
	IsExpiredOrRevoked          bool           `json:"isExpiredOrRevoked"`
	IsManagedByThisStoreAccount bool           `json:"isManagedByThisStoreAccount"`
	Platform                    types.Platform `json:"platform"`
	Offer                       *product.Offer `json:"offer,omitempty"`
	Renewal                     *Renewal       `json:"renewal,omitempty"`
	PurchaseToken               string         `json:"purchaseToken,omitempty"`
}

// Renewal is the plan a subscription renews into when it differs from the
// currently billed one. Product is always set; Offer is optional. A ledger
// record carrying a renew offer without a renew product has no defined
// meaning and is parsed as no Renewal.
type Renewal struct {
	Product *product.Product `json:"product"`
	Offer   *product.Offer   `json:"offer,omitempty"`
}

// RenewTarget returns the product the subscription will be billed for at
// the next renewal.
func (e *Entitlement) RenewTarget() *product.Product {
	if e.Subscription != nil && e.Subscription.Renewal != nil {
		return e.Subscription.Renewal.Product
	}
	return e.Product
}

// IsManagedByThisStoreAccount is false for item entitlements.
func (e *Entitlement) IsManagedByThisStoreAccount() bool {
	return e.Subscription != nil && e.Subscription.IsManagedByThisStoreAccount
}
