package purchasekit

import (
	"context"
	"fmt"

	"github.com/xraph/purchasekit/customer"
	"github.com/xraph/purchasekit/errs"
	"github.com/xraph/purchasekit/id"
	"github.com/xraph/purchasekit/ledgerapi"
	"github.com/xraph/purchasekit/syncer"
)

// RequestTransferOwnership asks the ledger to move every purchase this
// store account owns to the logged-in customer, and waits for its answer.
// With nothing owned it succeeds at once. Ledger refusals match
// errs.ErrNothingToTransfer, errs.ErrTransferToSameCustomer and
// errs.ErrTransferAlreadyPending.
func (s *SDK) RequestTransferOwnership(ctx context.Context) (ledgerapi.TransferStatus, error) {
	ss, err := s.session()
	if err != nil {
		return "", err
	}
	c := ss.syncer.Customer()
	if c == nil {
		return "", errs.ErrNoCustomerLogged
	}

	transferID := id.NewTransferID()
	status, tokens, err := ss.transfer(ctx, c)
	ss.logger.Info("purchasekit: transfer ownership",
		"transfer_id", transferID.String(), "customer_id", c.ID,
		"tokens", tokens, "status", status, "error", err)
	ss.plugins.EmitTransferRequested(ctx, transferID, tokens, status, err)
	return status, err
}

func (ss *session) transfer(ctx context.Context, c *customer.Customer) (ledgerapi.TransferStatus, int, error) {
	purchases, err := ss.gateway.QueryOwnedPurchases(ctx, "")
	if err != nil {
		return "", 0, storeUnavailable("transfer purchases", err)
	}
	tokens := syncer.AcknowledgedTokens(purchases)
	if len(tokens) == 0 {
		return ledgerapi.TransferAcknowledged, 0, nil
	}

	requestID, err := ss.ledger.RequestTransferOwnership(ctx, c.ID, tokens)
	if err != nil {
		return "", len(tokens), fmt.Errorf("purchasekit: transfer request: %w", err)
	}
	status, err := ss.waiter.WaitTransfer(ctx, requestID)
	if err != nil {
		return status, len(tokens), err
	}
	if status == ledgerapi.TransferAcknowledged {
		if err := ss.syncer.EnsureSync(ctx, true); err != nil {
			ss.logger.Warn("purchasekit: sync after transfer failed", "error", err)
		}
	}
	return status, len(tokens), nil
}
