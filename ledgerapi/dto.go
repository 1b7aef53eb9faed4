package ledgerapi

import (
	"fmt"
	"time"

	"github.com/xraph/purchasekit/errs"
	"github.com/xraph/purchasekit/product"
	"github.com/xraph/purchasekit/types"
)

type StorePriceDTO struct {
	PriceMillis int64  `json:"priceMillis"`
	Currency    string `json:"currency"`
}

type OfferDTO struct {
	ID                     string            `json:"id"`
	Identifier             string            `json:"identifier"`
	ExternalRef            string            `json:"externalRef"`
	ReferenceName          string            `json:"referenceName"`
	Name                   string            `json:"name"`
	Type                   product.OfferType `json:"type"`
	StoreOfferID           string            `json:"storeOfferId"`
	OfferPeriodCount       int               `json:"offerPeriodCount"`
	OfferPeriodUnit        string            `json:"offerPeriodUnit"`
	OfferCountBillingCycle int               `json:"offerCountBillingCycle"`
	StorePrices            []StorePriceDTO   `json:"storePrices"`
}

type SubscriptionGroupDTO struct {
	ID            string         `json:"id"`
	Identifier    string         `json:"identifier"`
	ReferenceName string         `json:"referenceName"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Extras        map[string]any `json:"extras"`
}

type ProductDTO struct {
	ID                      string                `json:"id"`
	Identifier              string                `json:"identifier"`
	ExternalRef             string                `json:"externalRef"`
	ReferenceName           string                `json:"referenceName"`
	Name                    string                `json:"name"`
	Description             string                `json:"description"`
	SKU                     string                `json:"sku"`
	Type                    product.Type          `json:"type"`
	Extras                  map[string]any        `json:"extras"`
	IsConsumable            bool                  `json:"isConsumable"`
	IsMultiQuantity         bool                  `json:"isMultiQuantity"`
	BasePlanID              string                `json:"basePlanId"`
	SubscriptionPeriodCount int                   `json:"subscriptionPeriodCount"`
	SubscriptionPeriodUnit  string                `json:"subscriptionPeriodUnit"`
	SubscriptionGroupID     string                `json:"subscriptionGroupId"`
	SubscriptionGroupLevel  int                   `json:"subscriptionGroupLevel"`
	SubscriptionGroup       *SubscriptionGroupDTO `json:"subscriptionGroup"`
	Offers                  []OfferDTO            `json:"offers"`
	StorePrices             []StorePriceDTO       `json:"storePrices"`
}

type ItemDTO struct {
	Quantity int `json:"quantity"`
}

type SubscriptionDTO struct {
	StartDate           time.Time      `json:"startDate"`
	EndDate             time.Time      `json:"endDate"`
	Platform            types.Platform `json:"platform"`
	AutoRenewEnable     bool           `json:"autoRenewEnable"`
	IsInGracePeriod     bool           `json:"isInGracePeriod"`
	IsInBillingIssue    bool           `json:"isInBillingIssue"`
	HasPauseScheduled   bool           `json:"hasPauseScheduled"`
	IsPaused            bool           `json:"isPaused"`
	IsExpiredOrRevoked  bool           `json:"isExpiredOrRevoked"`
	ProductOfferID      string         `json:"productOfferId"`
	RenewProduct        *ProductDTO    `json:"renewProduct"`
	RenewProductOfferID string         `json:"renewProductOfferId"`
}

type EntitlementDTO struct {
	Type                          product.Type     `json:"type"`
	CustomerID                    string           `json:"customerId"`
	PlatformOriginalTransactionID string           `json:"platformOriginalTransactionId"`
	Product                       *ProductDTO      `json:"product"`
	Item                          *ItemDTO         `json:"item"`
	Subscription                  *SubscriptionDTO `json:"subscription"`
}

type customerDTO struct {
	ID                        string `json:"id"`
	ExternalRef               string `json:"externalRef"`
	ForwardNotificationEnable bool   `json:"forwardNotificationEnable"`
}

type loginDTO struct {
	Customer                       *customerDTO     `json:"customer"`
	PlatformOriginalTransactionIDs []string         `json:"platformOriginalTransactionIds"`
	Entitlements                   []EntitlementDTO `json:"entitlements"`
}

// ──────────────────────────────────────────────────
// Validation
// ──────────────────────────────────────────────────

func parseErr(field, format string, args ...any) error {
	return errs.ParseError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the fields the engine relies on.
func (p *ProductDTO) Validate(field string) error {
	if p == nil {
		return parseErr(field, "missing")
	}
	if p.ID == "" {
		return parseErr(field+".id", "empty")
	}
	if p.SKU == "" {
		return parseErr(field+".sku", "empty")
	}
	switch p.Type {
	case product.TypeOneTime:
	case product.TypeSubscription:
		if p.BasePlanID == "" {
			return parseErr(field+".basePlanId", "empty for subscription")
		}
		if _, err := types.ParsePeriodUnit(p.SubscriptionPeriodUnit); err != nil {
			return parseErr(field+".subscriptionPeriodUnit", "%v", err)
		}
	default:
		return parseErr(field+".type", "unknown product type %q", p.Type)
	}
	for i := range p.Offers {
		if err := p.Offers[i].Validate(fmt.Sprintf("%s.offers[%d]", field, i)); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks an offer record.
func (o *OfferDTO) Validate(field string) error {
	if o.ID == "" {
		return parseErr(field+".id", "empty")
	}
	switch o.Type {
	case product.OfferFreeTrial:
		if _, err := types.ParsePeriodUnit(o.OfferPeriodUnit); err != nil {
			return parseErr(field+".offerPeriodUnit", "%v", err)
		}
	case product.OfferPromotional:
	default:
		return parseErr(field+".type", "unknown offer type %q", o.Type)
	}
	return nil
}

// Validate checks an entitlement record, including its product.
func (e *EntitlementDTO) Validate(field string) error {
	if err := e.Product.Validate(field + ".product"); err != nil {
		return err
	}
	if e.CustomerID == "" {
		return parseErr(field+".customerId", "empty")
	}
	if e.Type != e.Product.Type {
		return parseErr(field+".type", "%q does not match product type %q", e.Type, e.Product.Type)
	}
	switch e.Type {
	case product.TypeOneTime:
		if e.Item == nil {
			return parseErr(field+".item", "missing for one_time entitlement")
		}
	case product.TypeSubscription:
		if e.Subscription == nil {
			return parseErr(field+".subscription", "missing for subscription entitlement")
		}
		if e.Subscription.RenewProduct != nil {
			return e.Subscription.RenewProduct.Validate(field + ".subscription.renewProduct")
		}
	}
	return nil
}

func (l *loginDTO) validate() error {
	if l.Customer == nil {
		return parseErr("customer", "missing")
	}
	if l.Customer.ID == "" {
		return parseErr("customer.id", "empty")
	}
	return validateAll("entitlements", l.Entitlements, (*EntitlementDTO).Validate)
}

// validateAll checks every record and reports each invalid one, so a single
// bad record in a list does not hide the others.
func validateAll[T any](field string, records []T, validate func(*T, string) error) error {
	var me errs.MultiError
	for i := range records {
		me.Add(validate(&records[i], fmt.Sprintf("%s[%d]", field, i)))
	}
	if !me.HasErrors() {
		return nil
	}
	return me
}

func parseWebhookStatus(s string) (WebhookStatus, error) {
	switch st := WebhookStatus(s); st {
	case WebhookPending, WebhookSuccess, WebhookError:
		return st, nil
	default:
		return "", parseErr("status", "unknown webhook status %q", s)
	}
}

// parseTransferStatus maps the ledger's "error" status to ErrWebhookFailed.
func parseTransferStatus(s string) (TransferStatus, error) {
	switch st := TransferStatus(s); st {
	case TransferPending, TransferDelayed, TransferAcknowledged, TransferRejected:
		return st, nil
	case "error":
		return "", errs.ErrWebhookFailed
	default:
		return "", parseErr("status", "unknown transfer status %q", s)
	}
}
