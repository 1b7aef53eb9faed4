package billing

import (
	"fmt"
	"time"
)

// Kind is the store product kind used to partition queries.
type Kind string

const (
	KindSubs  Kind = "subs"
	KindInApp Kind = "inapp"
)

// Kinds lists every Kind in query order.
var Kinds = []Kind{KindSubs, KindInApp}

// ResponseCode is the store's response code.
type ResponseCode int

const (
	ServiceDisconnected ResponseCode = -1
	OK                  ResponseCode = 0
	UserCanceled        ResponseCode = 1
	ServiceUnavailable  ResponseCode = 2
	BillingUnavailable  ResponseCode = 3
	ItemUnavailable     ResponseCode = 4
	DeveloperError      ResponseCode = 5
	Error               ResponseCode = 6
	ItemAlreadyOwned    ResponseCode = 7
	ItemNotOwned        ResponseCode = 8
	NetworkError        ResponseCode = 12
)

var responseCodeNames = map[ResponseCode]string{
	ServiceDisconnected: "SERVICE_DISCONNECTED",
	OK:                  "OK",
	UserCanceled:        "USER_CANCELED",
	ServiceUnavailable:  "SERVICE_UNAVAILABLE",
	BillingUnavailable:  "BILLING_UNAVAILABLE",
	ItemUnavailable:     "ITEM_UNAVAILABLE",
	DeveloperError:      "DEVELOPER_ERROR",
	Error:               "ERROR",
	ItemAlreadyOwned:    "ITEM_ALREADY_OWNED",
	ItemNotOwned:        "ITEM_NOT_OWNED",
	NetworkError:        "NETWORK_ERROR",
}

func (c ResponseCode) String() string {
	if s, ok := responseCodeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("RESPONSE_CODE(%d)", int(c))
}

// Result is the payload-free part of every store callback.
type Result struct {
	Code         ResponseCode
	DebugMessage string
}

func (r Result) OK() bool { return r.Code == OK }

// Err returns nil for OK results and a *StoreError otherwise.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return &StoreError{Code: r.Code, Message: r.DebugMessage}
}

type ProductDetails struct {
	SKU                string
	Kind               Kind
	Title              string
	Description        string
	OneTime            *OneTimeOfferDetails // nil when the store has no one-time offer
	SubscriptionOffers []SubscriptionOfferDetails
}

type OneTimeOfferDetails struct {
	PriceMicros int64
	Currency    string
}

type SubscriptionOfferDetails struct {
	BasePlanID    string
	OfferID       string // empty for the base plan offer
	OfferToken    string
	PricingPhases []PricingPhase
}

type RecurrenceMode int

const (
	InfiniteRecurring RecurrenceMode = 1
	FiniteRecurring   RecurrenceMode = 2
	NonRecurring      RecurrenceMode = 3
)

type PricingPhase struct {
	PriceMicros       int64
	Currency          string
	BillingPeriod     string // ISO 8601, e.g. "P1M"
	BillingCycleCount int
	Recurrence        RecurrenceMode
}

type PurchaseState int

const (
	PurchaseStateUnspecified PurchaseState = 0
	PurchaseStatePurchased   PurchaseState = 1
	PurchaseStatePending     PurchaseState = 2
)

// Purchase is a store transaction. The store owns it; purchasekit reads it
// and acts on it through Consume and Acknowledge only.
type Purchase struct {
	SKUs         []string
	Token        string
	OrderID      string
	State        PurchaseState
	Acknowledged bool
	AutoRenewing bool
	Quantity     int
	PurchaseTime time.Time
	// Kind is set by Gateway for purchases returned by QueryOwnedPurchases
	// and empty for purchases delivered through the updated listener.
	Kind Kind
}

// ReplacementMode is the store's subscription replacement mode.
type ReplacementMode int

const (
	ReplacementUnknown             ReplacementMode = 0
	ReplacementWithTimeProration   ReplacementMode = 1
	ReplacementChargeProratedPrice ReplacementMode = 2
	ReplacementWithoutProration    ReplacementMode = 3
	ReplacementChargeFullPrice     ReplacementMode = 5
	ReplacementDeferred            ReplacementMode = 6
)

func (m ReplacementMode) String() string {
	switch m {
	case ReplacementWithTimeProration:
		return "with_time_proration"
	case ReplacementChargeProratedPrice:
		return "charge_prorated_price"
	case ReplacementWithoutProration:
		return "without_proration"
	case ReplacementChargeFullPrice:
		return "charge_full_price"
	case ReplacementDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// ParseReplacementMode maps a configuration name to a ReplacementMode.
func ParseReplacementMode(s string) (ReplacementMode, error) {
	for m := ReplacementWithTimeProration; m <= ReplacementDeferred; m++ {
		if m.String() == s && m.String() != "unknown" {
			return m, nil
		}
	}
	return ReplacementUnknown, fmt.Errorf("billing: unknown replacement mode %q", s)
}

func (m ReplacementMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *ReplacementMode) UnmarshalText(b []byte) error {
	v, err := ParseReplacementMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// FlowParams configures a purchase flow launch.
type FlowParams struct {
	Details             ProductDetails
	OfferToken          string // subscriptions only
	ObfuscatedAccountID string
	Update              *SubscriptionUpdate
}

// SubscriptionUpdate replaces an existing subscription.
type SubscriptionUpdate struct {
	OldPurchaseToken string
	Mode             ReplacementMode
}
