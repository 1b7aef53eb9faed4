package purchasekit

import "github.com/xraph/purchasekit/id"

// ID is the identifier type for sessions, purchase attempts, transfers and
// diagnostic snapshots.
type ID = id.ID

// Prefix identifies the record type encoded in an ID.
type Prefix = id.Prefix
