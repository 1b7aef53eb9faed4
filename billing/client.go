// Package billing bridges the platform billing store's callback API into
// blocking calls.
//
// The platform store is reached through the Client interface, which mirrors
// the native API one to one: every operation takes a completion callback
// carrying a Result. Gateway owns the connection state machine, the
// product/offer Registry and the routing of purchases-updated callbacks.
package billing

// Client is the platform billing store. Implementations may invoke
// callbacks on any goroutine, synchronously or not.
type Client interface {
	// StartConnection connects to the store service. The listener is
	// notified once with the setup result and again on every disconnect.
	StartConnection(listener ConnectionListener)
	EndConnection()

	// SetPurchasesUpdatedListener registers the callback invoked whenever
	// the store reports purchases, whether from a launched flow or not.
	SetPurchasesUpdatedListener(listener func(Result, []Purchase))

	QueryProductDetails(kind Kind, skus []string, callback func(Result, []ProductDetails))
	QueryPurchases(kind Kind, callback func(Result, []Purchase))

	// LaunchBillingFlow opens the store purchase UI. The returned Result
	// only covers the launch; the outcome arrives through the
	// purchases-updated listener.
	LaunchBillingFlow(activity Activity, params FlowParams) Result

	Consume(token string, callback func(Result))
	Acknowledge(token string, callback func(Result))
}

// ConnectionListener receives connection lifecycle events.
type ConnectionListener interface {
	OnSetupFinished(Result)
	OnServiceDisconnected()
}

// Activity is the host UI handle the store needs to present its purchase
// flow. It is passed through untouched.
type Activity any
