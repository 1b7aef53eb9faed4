// Package purchasekit reconciles a device's mobile billing store with a
// remote entitlement ledger.
//
// The store owns the transaction lifecycle (buy, acknowledge, consume); the
// ledger decides what a customer is actually entitled to. purchasekit
// bridges the store's callback API into blocking calls, caches the ledger's
// view with a time-to-live, runs at most one purchase at a time and waits
// for the ledger to confirm every purchase it finishes.
//
// It provides:
//
//   - A store connection state machine with request deduplication
//   - An entitlement and catalog cache with TTL and forced resync
//   - Subscription upgrade and downgrade decisions with a configurable policy
//   - Bounded webhook confirmation polling for purchases and transfers
//   - Diagnostic snapshots persisted until uploaded (memory or SQLite)
//   - Lifecycle plugins for metrics and audit trails
//
// # Quick Start
//
// Wrap the platform billing API in a billing.Client, then open the SDK:
//
//	cfg := purchasekit.DefaultConfig()
//	cfg.AppID = "app_123"
//	cfg.APIKey = os.Getenv("PURCHASEKIT_API_KEY")
//
//	sdk, err := purchasekit.New(ctx, cfg, storeClient,
//	    purchasekit.WithLogger(slog.Default()),
//	    purchasekit.WithMainThreadCheck(isMainThread),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sdk.Close(ctx)
//
// Log the user in, list products and buy one:
//
//	if _, err := sdk.Login(ctx, userID); err != nil {
//	    return err
//	}
//	products, err := sdk.Products(ctx, nil, true)
//	out, err := sdk.Purchase(ctx, activity, products[0], nil)
//	switch {
//	case errors.Is(err, purchasekit.ErrUserCanceled):
//	    // nothing to do
//	case errors.Is(err, purchasekit.ErrWebhookNotProcessed):
//	    // the store charged; the ledger will catch up
//	}
//
// # Threading
//
// Every call that talks to the store or the ledger blocks. Calling one from
// the host's main thread panics with billing.ErrMainThread when a
// WithMainThreadCheck function is installed.
//
// # Errors
//
// Failures belong to one of three taxonomies: system (IsSystem), purchase
// (IsPurchase) and ownership transfer (IsTransfer). An unmapped store
// response, an unknown failure or a webhook that never confirms trigger a
// diagnostics snapshot.
//
// # TypeID
//
// Sessions, purchase attempts, transfers and snapshots use TypeIDs:
//
//	sess_01h2xcejqtf2nbrexx3vqjhp41  // Session
//	patt_01h2xcejqtf2nbrexx3vqjhp41  // Purchase attempt
//	xfer_01h455vb4pex5vsknk084sn02q  // Ownership transfer
//	diag_01h455vb4pex5vsknk084sn02q  // Diagnostic snapshot
package purchasekit
