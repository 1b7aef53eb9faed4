package diagnostics

import (
	"time"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/id"
	"github.com/xraph/purchasekit/types"
)

// Snapshot is what the engine could observe when something went wrong.
type Snapshot struct {
	ID         id.ID        `json:"id"`
	Reason     string       `json:"reason"`
	CustomerID string       `json:"customerId,omitempty"`
	Device     types.Device `json:"device"`
	Purchases  []Purchase   `json:"purchases"`
	// QueryError is set when the store could not list owned purchases.
	QueryError string     `json:"queryError,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UploadedAt *time.Time `json:"uploadedAt,omitempty"`
}

// Purchase is the store purchase as seen at snapshot time.
type Purchase struct {
	Kind         billing.Kind          `json:"kind"`
	SKUs         []string              `json:"skus"`
	Token        string                `json:"purchaseToken"`
	OrderID      string                `json:"orderId,omitempty"`
	State        billing.PurchaseState `json:"state"`
	Acknowledged bool                  `json:"acknowledged"`
	AutoRenewing bool                  `json:"autoRenewing"`
	PurchaseTime time.Time             `json:"purchaseTime"`
}

func fromStore(p billing.Purchase) Purchase {
	return Purchase{
		Kind:         p.Kind,
		SKUs:         p.SKUs,
		Token:        p.Token,
		OrderID:      p.OrderID,
		State:        p.State,
		Acknowledged: p.Acknowledged,
		AutoRenewing: p.AutoRenewing,
		PurchaseTime: p.PurchaseTime,
	}
}

// Pending reports whether the snapshot still has to be uploaded.
func (s *Snapshot) Pending() bool { return s.UploadedAt == nil }
