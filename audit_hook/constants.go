package audithook

// Action constants for audit events.
const (
	// Session actions
	ActionSessionStarted = "session.started"
	ActionSessionClosed  = "session.closed"

	// Customer actions
	ActionCustomerLogin  = "customer.login"
	ActionCustomerLogout = "customer.logout"

	// Purchase actions
	ActionPurchaseStarted   = "purchase.started"
	ActionPurchaseCompleted = "purchase.completed"
	ActionPurchaseReplaced  = "purchase.replaced"
	ActionPurchaseCanceled  = "purchase.canceled"
	ActionPurchaseFailed    = "purchase.failed"
	ActionPurchaseFinished  = "purchase.finished"
	ActionPurchaseExternal  = "purchase.external"

	// Ledger confirmation actions
	ActionWebhookConfirmed = "webhook.confirmed"
	ActionWebhookTimedOut  = "webhook.timed_out"
	ActionWebhookFailed    = "webhook.failed"
	ActionTransferResolved = "transfer.resolved"
	ActionTransferFailed   = "transfer.failed"

	// Diagnostics actions
	ActionDiagnosticCaptured = "diagnostic.captured"
)

// Resource constants for audit events.
const (
	ResourceSession    = "session"
	ResourceCustomer   = "customer"
	ResourcePurchase   = "purchase"
	ResourceWebhook    = "webhook"
	ResourceTransfer   = "transfer"
	ResourceDiagnostic = "diagnostic"
)

// Category constants for audit events.
const (
	CategoryLifecycle   = "lifecycle"
	CategoryAccount     = "account"
	CategoryPurchase    = "purchase"
	CategoryIntegration = "integration"
	CategorySupport     = "support"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
