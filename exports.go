package purchasekit

import (
	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/customer"
	"github.com/xraph/purchasekit/entitlement"
	"github.com/xraph/purchasekit/ledgerapi"
	"github.com/xraph/purchasekit/product"
	"github.com/xraph/purchasekit/purchase"
	"github.com/xraph/purchasekit/types"
)

// Re-export common types so callers rarely need the sub-packages.

type (
	Money       = types.Money
	Period      = types.Period
	Environment = types.Environment
	Device      = types.Device

	Customer          = customer.Customer
	Product           = product.Product
	Offer             = product.Offer
	SubscriptionGroup = product.SubscriptionGroup
	Entitlement       = entitlement.Entitlement

	StorePurchase     = billing.Purchase
	Outcome           = purchase.Outcome
	FinishResult      = purchase.FinishResult
	ReplacementPolicy = purchase.ReplacementPolicy

	WebhookStatus  = ledgerapi.WebhookStatus
	TransferStatus = ledgerapi.TransferStatus
)

// Re-export environment names.
const (
	EnvironmentDevelopment = types.EnvironmentDevelopment
	EnvironmentStaging     = types.EnvironmentStaging
	EnvironmentProduction  = types.EnvironmentProduction
)

// Re-export ledger statuses.
const (
	WebhookSuccess = ledgerapi.WebhookSuccess
	WebhookError   = ledgerapi.WebhookError

	TransferPending      = ledgerapi.TransferPending
	TransferDelayed      = ledgerapi.TransferDelayed
	TransferAcknowledged = ledgerapi.TransferAcknowledged
	TransferRejected     = ledgerapi.TransferRejected
)
