// Package ledgertest provides an in-memory ledgerapi.Client that records
// every call.
package ledgertest

import (
	"context"
	"slices"
	"sync"

	"github.com/xraph/purchasekit/customer"
	"github.com/xraph/purchasekit/errs"
	"github.com/xraph/purchasekit/ledgerapi"
)

// Operation names used by Calls and Fail.
const (
	OpLogin            = "login"
	OpProducts         = "products"
	OpEntitlements     = "entitlements"
	OpMapTransactions  = "map_transactions"
	OpMinimalProduct   = "minimal_product"
	OpWebhookStatus    = "webhook_status"
	OpTransferRequest  = "transfer_request"
	OpTransferStatus   = "transfer_status"
	OpForwarding       = "forwarding"
	OpUploadDiagnostic = "upload_diagnostics"
)

// Ledger is a fake ledger. Exported fields may be set before use; use the
// methods once the fake is shared with running code.
type Ledger struct {
	mu sync.Mutex

	Customer            customer.Customer
	KnownTransactionIDs []string
	Catalog             []ledgerapi.ProductDTO
	Entitlements        []ledgerapi.EntitlementDTO
	Minimal             map[string]ledgerapi.MinimalProduct
	// WebhookStatuses is consumed in order; the last value repeats.
	// Empty means success.
	WebhookStatuses  []ledgerapi.WebhookStatus
	TransferID       string
	TransferStatuses []ledgerapi.TransferStatus
	Forwarding       bool

	failures map[string]error
	calls    map[string]int
	mapped   [][]ledgerapi.MapTransactionItem
	uploads  []ledgerapi.DiagnosticsUpload
	transfer [][]string
}

var _ ledgerapi.Client = (*Ledger)(nil)

// New returns a ledger whose login yields customer id "cus_1".
func New() *Ledger {
	return &Ledger{
		Customer:   customer.Customer{ID: "cus_1"},
		Minimal:    make(map[string]ledgerapi.MinimalProduct),
		TransferID: "req_1",
		failures:   make(map[string]error),
		calls:      make(map[string]int),
	}
}

// Fail makes op return err until cleared with a nil err.
func (l *Ledger) Fail(op string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.failures, op)
		return
	}
	l.failures[op] = err
}

// SetEntitlements replaces the entitlements returned from now on.
func (l *Ledger) SetEntitlements(e []ledgerapi.EntitlementDTO) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entitlements = e
}

// SetForwarding changes the forwarding flag.
func (l *Ledger) SetForwarding(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Forwarding = v
}

// Calls returns how many times op was invoked.
func (l *Ledger) Calls(op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[op]
}

// Mapped returns every MapTransactions batch received.
func (l *Ledger) Mapped() [][]ledgerapi.MapTransactionItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.mapped)
}

// Uploads returns every diagnostics upload received.
func (l *Ledger) Uploads() []ledgerapi.DiagnosticsUpload {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.uploads)
}

// TransferRequests returns the token lists of every transfer request.
func (l *Ledger) TransferRequests() [][]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.transfer)
}

func (l *Ledger) enter(op string) error {
	l.calls[op]++
	return l.failures[op]
}

func (l *Ledger) Login(_ context.Context, externalRef string) (*ledgerapi.LoginResponse, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(OpLogin); err != nil {
		return nil, err
	}
	c := l.Customer
	c.ExternalRef = externalRef
	c.ForwardingEnabled = l.Forwarding
	return &ledgerapi.LoginResponse{
		Customer:                       c,
		PlatformOriginalTransactionIDs: slices.Clone(l.KnownTransactionIDs),
		Entitlements:                   slices.Clone(l.Entitlements),
	}, nil
}

func (l *Ledger) Products(_ context.Context, identifiers []string) ([]ledgerapi.ProductDTO, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(OpProducts); err != nil {
		return nil, err
	}
	if len(identifiers) == 0 {
		return slices.Clone(l.Catalog), nil
	}
	var out []ledgerapi.ProductDTO
	for _, p := range l.Catalog {
		if slices.Contains(identifiers, p.Identifier) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (l *Ledger) CustomerEntitlements(_ context.Context, customerID string) ([]ledgerapi.EntitlementDTO, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(OpEntitlements); err != nil {
		return nil, err
	}
	var out []ledgerapi.EntitlementDTO
	for _, e := range l.Entitlements {
		if e.CustomerID == customerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *Ledger) MapTransactions(_ context.Context, _ string, items []ledgerapi.MapTransactionItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(OpMapTransactions); err != nil {
		return err
	}
	l.mapped = append(l.mapped, slices.Clone(items))
	return nil
}

func (l *Ledger) MinimalProduct(_ context.Context, sku string) (*ledgerapi.MinimalProduct, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(OpMinimalProduct); err != nil {
		return nil, err
	}
	m, ok := l.Minimal[sku]
	if !ok {
		return nil, errs.ErrUnknown
	}
	return &m, nil
}

func (l *Ledger) WebhookStatus(context.Context, string, string) (ledgerapi.WebhookStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(OpWebhookStatus); err != nil {
		return "", err
	}
	switch len(l.WebhookStatuses) {
	case 0:
		return ledgerapi.WebhookSuccess, nil
	case 1:
		return l.WebhookStatuses[0], nil
	}
	st := l.WebhookStatuses[0]
	l.WebhookStatuses = l.WebhookStatuses[1:]
	return st, nil
}

func (l *Ledger) RequestTransferOwnership(_ context.Context, _ string, tokens []string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(OpTransferRequest); err != nil {
		return "", err
	}
	l.transfer = append(l.transfer, slices.Clone(tokens))
	return l.TransferID, nil
}

func (l *Ledger) TransferStatus(context.Context, string) (ledgerapi.TransferStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(OpTransferStatus); err != nil {
		return "", err
	}
	switch len(l.TransferStatuses) {
	case 0:
		return ledgerapi.TransferAcknowledged, nil
	case 1:
		return l.TransferStatuses[0], nil
	}
	st := l.TransferStatuses[0]
	l.TransferStatuses = l.TransferStatuses[1:]
	return st, nil
}

func (l *Ledger) IsForwardingEnabled(context.Context, string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(OpForwarding); err != nil {
		return false, err
	}
	return l.Forwarding, nil
}

func (l *Ledger) UploadDiagnostics(_ context.Context, upload ledgerapi.DiagnosticsUpload) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(OpUploadDiagnostic); err != nil {
		return err
	}
	l.uploads = append(l.uploads, upload)
	return nil
}
