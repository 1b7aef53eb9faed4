package purchasekit

import (
	"log/slog"

	"github.com/filecoin-project/go-clock"

	"github.com/xraph/purchasekit/diagnostics"
	"github.com/xraph/purchasekit/ledgerapi"
	"github.com/xraph/purchasekit/plugin"
	"github.com/xraph/purchasekit/types"
)

// SDKVersion is sent to the ledger with every request.
const SDKVersion = "1.0.0"

// Option configures an SDK instance.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	clock      clock.Clock
	ledger     ledgerapi.Client
	store      diagnostics.Store
	plugins    []plugin.Plugin
	mainThread func() bool
	device     types.Device
	region     func() string
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock sets the clock driving TTLs, webhook polling and resume checks.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLedgerClient replaces the HTTP ledger client built from Config.
func WithLedgerClient(c ledgerapi.Client) Option {
	return func(o *options) { o.ledger = c }
}

// WithDiagnosticsStore sets where diagnostic snapshots are kept until they
// are uploaded. The default is an in-memory store.
func WithDiagnosticsStore(s diagnostics.Store) Option {
	return func(o *options) { o.store = s }
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(o *options) { o.plugins = append(o.plugins, p) }
}

// WithMainThreadCheck sets how the SDK detects the host's main thread.
// Blocking calls made from it panic.
func WithMainThreadCheck(fn func() bool) Option {
	return func(o *options) { o.mainThread = fn }
}

// WithDevice sets the device metadata sent at login and attached to
// diagnostics. An empty install identifier is generated.
func WithDevice(d types.Device) Option {
	return func(o *options) { o.device = d }
}

// WithRegion sets a dynamic storefront region, overriding Config.Region.
func WithRegion(fn func() string) Option {
	return func(o *options) { o.region = fn }
}
