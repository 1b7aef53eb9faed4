// Package ledgerapi is the boundary to the remote entitlement ledger.
//
// Every response is decoded into the typed DTOs of this package and
// validated before it is returned, so callers never see partially
// populated records. Validation failures are errs.ParseError values.
package ledgerapi

import (
	"context"

	"github.com/xraph/purchasekit/customer"
	"github.com/xraph/purchasekit/product"
)

// Client lists the ledger operations the engine depends on.
type Client interface {
	Login(ctx context.Context, externalRef string) (*LoginResponse, error)
	Products(ctx context.Context, identifiers []string) ([]ProductDTO, error)
	CustomerEntitlements(ctx context.Context, customerID string) ([]EntitlementDTO, error)
	MapTransactions(ctx context.Context, customerID string, items []MapTransactionItem) error
	MinimalProduct(ctx context.Context, sku string) (*MinimalProduct, error)
	WebhookStatus(ctx context.Context, purchaseToken, orderID string) (WebhookStatus, error)
	RequestTransferOwnership(ctx context.Context, customerID string, purchaseTokens []string) (string, error)
	TransferStatus(ctx context.Context, requestID string) (TransferStatus, error)
	IsForwardingEnabled(ctx context.Context, externalRef string) (bool, error)
	UploadDiagnostics(ctx context.Context, upload DiagnosticsUpload) error
}

type LoginResponse struct {
	Customer customer.Customer
	// PlatformOriginalTransactionIDs are the hashed purchase tokens the
	// ledger already associates with some customer.
	PlatformOriginalTransactionIDs []string
	Entitlements                   []EntitlementDTO
}

// MapTransactionItem associates a store transaction with a customer.
type MapTransactionItem struct {
	SKU           string       `json:"sku"`
	PurchaseToken string       `json:"purchaseToken"`
	Type          product.Type `json:"type"`
}

// MinimalProduct is what finishing a purchase needs to know about a sku.
type MinimalProduct struct {
	Type         product.Type `json:"type"`
	IsConsumable bool         `json:"isConsumable"`
}

// WebhookStatus is the ledger's processing state for a store notification.
type WebhookStatus string

const (
	WebhookPending WebhookStatus = "pending"
	WebhookSuccess WebhookStatus = "success"
	WebhookError   WebhookStatus = "error"
)

// TransferStatus is the state of an ownership transfer request.
type TransferStatus string

const (
	TransferPending      TransferStatus = "pending"
	TransferDelayed      TransferStatus = "delayed"
	TransferAcknowledged TransferStatus = "acknowledged"
	TransferRejected     TransferStatus = "rejected"
)

// IsFinal reports whether polling can stop. Only a pending request is
// still waiting on the ledger.
func (s TransferStatus) IsFinal() bool {
	return s != TransferPending
}

type DiagnosticsUpload struct {
	CustomerID        string
	InstallIdentifier string
	FileName          string
	Content           []byte
}
