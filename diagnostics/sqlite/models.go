package sqlite

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/purchasekit/diagnostics"
	"github.com/xraph/purchasekit/id"
	"github.com/xraph/purchasekit/types"
)

type snapshotModel struct {
	grove.BaseModel `grove:"table:purchasekit_diagnostics"`

	ID         string     `grove:"id,pk"`
	Reason     string     `grove:"reason"`
	CustomerID string     `grove:"customer_id"`
	Device     string     `grove:"device"`
	Purchases  string     `grove:"purchases"`
	QueryError string     `grove:"query_error"`
	CreatedAt  time.Time  `grove:"created_at"`
	UploadedAt *time.Time `grove:"uploaded_at"`
}

func toModel(s *diagnostics.Snapshot) (*snapshotModel, error) {
	device, err := json.Marshal(s.Device)
	if err != nil {
		return nil, err
	}
	purchases, err := json.Marshal(s.Purchases)
	if err != nil {
		return nil, err
	}
	var uploaded *time.Time
	if s.UploadedAt != nil {
		at := s.UploadedAt.UTC()
		uploaded = &at
	}
	return &snapshotModel{
		ID:         s.ID.String(),
		Reason:     s.Reason,
		CustomerID: s.CustomerID,
		Device:     string(device),
		Purchases:  string(purchases),
		QueryError: s.QueryError,
		CreatedAt:  s.CreatedAt.UTC(),
		UploadedAt: uploaded,
	}, nil
}

func fromModel(m *snapshotModel) (*diagnostics.Snapshot, error) {
	snapshotID, err := id.ParseDiagnosticID(m.ID)
	if err != nil {
		return nil, err
	}
	var device types.Device
	if err := json.Unmarshal([]byte(m.Device), &device); err != nil {
		return nil, err
	}
	var purchases []diagnostics.Purchase
	if m.Purchases != "" {
		if err := json.Unmarshal([]byte(m.Purchases), &purchases); err != nil {
			return nil, err
		}
	}
	return &diagnostics.Snapshot{
		ID:         snapshotID,
		Reason:     m.Reason,
		CustomerID: m.CustomerID,
		Device:     device,
		Purchases:  purchases,
		QueryError: m.QueryError,
		CreatedAt:  m.CreatedAt,
		UploadedAt: m.UploadedAt,
	}, nil
}
