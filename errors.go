package purchasekit

import "github.com/xraph/purchasekit/errs"

// Sentinel errors re-exported from errs. Match them with errors.Is.
var (
	// System failures
	ErrStoreUnavailable  = errs.ErrStoreUnavailable
	ErrServerUnavailable = errs.ErrServerUnavailable
	ErrNoCustomerLogged  = errs.ErrNoCustomerLogged
	ErrSdkNotInitialized = errs.ErrSdkNotInitialized
	ErrUnknown           = errs.ErrUnknown

	// Purchase failures
	ErrPurchaseAlreadyPending          = errs.ErrPurchaseAlreadyPending
	ErrProductUnavailable              = errs.ErrProductUnavailable
	ErrNetworkUnavailable              = errs.ErrNetworkUnavailable
	ErrBillingIssue                    = errs.ErrBillingIssue
	ErrUserCanceled                    = errs.ErrUserCanceled
	ErrCustomerForwarded               = errs.ErrCustomerForwarded
	ErrAlreadyPurchased                = errs.ErrAlreadyPurchased
	ErrRenewAlreadyOnThisPlan          = errs.ErrRenewAlreadyOnThisPlan
	ErrNotManagedByThisStoreAccount    = errs.ErrNotManagedByThisStoreAccount
	ErrStoreAccountAlreadyHavePurchase = errs.ErrStoreAccountAlreadyHavePurchase
	ErrWebhookNotProcessed             = errs.ErrWebhookNotProcessed
	ErrWebhookFailed                   = errs.ErrWebhookFailed
	ErrFailed                          = errs.ErrFailed
	ErrPending                         = errs.ErrPending

	// Transfer failures
	ErrNothingToTransfer      = errs.ErrNothingToTransfer
	ErrTransferToSameCustomer = errs.ErrTransferToSameCustomer
	ErrTransferAlreadyPending = errs.ErrTransferAlreadyPending

	ErrParse = errs.ErrParse
)

// ParseError is re-exported from errs.
type ParseError = errs.ParseError

// Classification helpers re-exported from errs.
var (
	IsSystem            = errs.IsSystem
	IsPurchase          = errs.IsPurchase
	IsTransfer          = errs.IsTransfer
	TriggersDiagnostics = errs.TriggersDiagnostics
)
