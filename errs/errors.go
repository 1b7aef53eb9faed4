// Package errs holds the error taxonomies shared by every purchasekit
// component. The root package re-exports all of them.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// System-level failures.
var (
	ErrStoreUnavailable  = errors.New("purchasekit: store unavailable")
	ErrServerUnavailable = errors.New("purchasekit: server unavailable")
	ErrNoCustomerLogged  = errors.New("purchasekit: no customer logged")
	ErrSdkNotInitialized = errors.New("purchasekit: sdk not initialized")
	ErrUnknown           = errors.New("purchasekit: unknown error")
)

// Purchase-level failures.
var (
	ErrPurchaseAlreadyPending          = errors.New("purchasekit: purchase already pending")
	ErrProductUnavailable              = errors.New("purchasekit: product unavailable")
	ErrNetworkUnavailable              = errors.New("purchasekit: network unavailable")
	ErrBillingIssue                    = errors.New("purchasekit: billing issue")
	ErrUserCanceled                    = errors.New("purchasekit: user canceled")
	ErrCustomerForwarded               = errors.New("purchasekit: customer forwarded")
	ErrAlreadyPurchased                = errors.New("purchasekit: already purchased")
	ErrRenewAlreadyOnThisPlan          = errors.New("purchasekit: renew already on this plan")
	ErrNotManagedByThisStoreAccount    = errors.New("purchasekit: not managed by this store account")
	ErrStoreAccountAlreadyHavePurchase = errors.New("purchasekit: store account already have purchase")
	ErrWebhookNotProcessed             = errors.New("purchasekit: webhook not processed")
	ErrWebhookFailed                   = errors.New("purchasekit: webhook failed")
	ErrFailed                          = errors.New("purchasekit: purchase failed")
	ErrPending                         = errors.New("purchasekit: purchase pending")
)

// Ownership-transfer failures. Timeouts and ledger errors reuse
// ErrWebhookNotProcessed and ErrWebhookFailed.
var (
	ErrNothingToTransfer      = errors.New("purchasekit: nothing to transfer")
	ErrTransferToSameCustomer = errors.New("purchasekit: transfer to same customer")
	ErrTransferAlreadyPending = errors.New("purchasekit: transfer already pending")
)

// ErrParse is matched by every ParseError.
var ErrParse = errors.New("purchasekit: parse error")

// ParseError reports a ledger response that failed strict validation.
type ParseError struct {
	Field  string
	Reason string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("purchasekit: parse %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrParse) match any ParseError.
func (e ParseError) Is(target error) bool {
	return target == ErrParse
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "purchasekit: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("purchasekit: %d errors occurred: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error {
	return e.Errors
}

var systemErrors = []error{
	ErrStoreUnavailable,
	ErrServerUnavailable,
	ErrNoCustomerLogged,
	ErrSdkNotInitialized,
	ErrUnknown,
}

var purchaseErrors = []error{
	ErrPurchaseAlreadyPending,
	ErrProductUnavailable,
	ErrNetworkUnavailable,
	ErrBillingIssue,
	ErrUserCanceled,
	ErrCustomerForwarded,
	ErrAlreadyPurchased,
	ErrRenewAlreadyOnThisPlan,
	ErrNotManagedByThisStoreAccount,
	ErrStoreAccountAlreadyHavePurchase,
	ErrWebhookNotProcessed,
	ErrWebhookFailed,
	ErrFailed,
	ErrPending,
}

var transferErrors = []error{
	ErrNothingToTransfer,
	ErrTransferToSameCustomer,
	ErrTransferAlreadyPending,
}

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// IsSystem returns true if the error belongs to the system-level taxonomy.
func IsSystem(err error) bool {
	return isAny(err, systemErrors)
}

// IsPurchase returns true if the error belongs to the purchase-level taxonomy.
func IsPurchase(err error) bool {
	return isAny(err, purchaseErrors)
}

// IsTransfer returns true if the error is an ownership-transfer refusal.
func IsTransfer(err error) bool {
	return isAny(err, transferErrors)
}

// TriggersDiagnostics reports whether a failure must be followed by a
// diagnostics snapshot.
func TriggersDiagnostics(err error) bool {
	return errors.Is(err, ErrUnknown) ||
		errors.Is(err, ErrFailed) ||
		errors.Is(err, ErrWebhookNotProcessed)
}

// Reason returns the short machine name of the first known sentinel err
// wraps, or "unknown".
func Reason(err error) string {
	for _, group := range [][]error{purchaseErrors, transferErrors, systemErrors} {
		for _, t := range group {
			if errors.Is(err, t) {
				return reasons[t]
			}
		}
	}
	if errors.Is(err, ErrParse) {
		return "parse_error"
	}
	return "unknown"
}

var reasons = map[error]string{
	ErrStoreUnavailable:                "store_unavailable",
	ErrServerUnavailable:               "server_unavailable",
	ErrNoCustomerLogged:                "no_customer_logged",
	ErrSdkNotInitialized:               "sdk_not_initialized",
	ErrUnknown:                         "unknown_error",
	ErrPurchaseAlreadyPending:          "purchase_already_pending",
	ErrProductUnavailable:              "product_unavailable",
	ErrNetworkUnavailable:              "network_unavailable",
	ErrBillingIssue:                    "billing_issue",
	ErrUserCanceled:                    "user_canceled",
	ErrCustomerForwarded:               "customer_forwarded",
	ErrAlreadyPurchased:                "already_purchased",
	ErrRenewAlreadyOnThisPlan:          "renew_already_on_this_plan",
	ErrNotManagedByThisStoreAccount:    "not_managed_by_this_store_account",
	ErrStoreAccountAlreadyHavePurchase: "store_account_already_have_purchase",
	ErrWebhookNotProcessed:             "webhook_not_processed",
	ErrWebhookFailed:                   "webhook_failed",
	ErrFailed:                          "failed",
	ErrPending:                         "pending",
	ErrNothingToTransfer:               "nothing_to_transfer",
	ErrTransferToSameCustomer:          "transfer_to_same_customer",
	ErrTransferAlreadyPending:          "transfer_already_pending",
}
