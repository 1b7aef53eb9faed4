package purchase

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/errs"
)

// Translate maps a store response code to the purchase taxonomy. Errors
// already in a taxonomy and context errors pass through; anything else
// becomes errs.ErrUnknown. The store error stays in the chain.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	if code, ok := billing.Code(err); ok {
		var target error
		switch code {
		case billing.UserCanceled:
			target = errs.ErrUserCanceled
		case billing.NetworkError:
			target = errs.ErrNetworkUnavailable
		case billing.BillingUnavailable:
			target = errs.ErrBillingIssue
		case billing.ServiceDisconnected, billing.ServiceUnavailable:
			target = errs.ErrStoreUnavailable
		default:
			target = errs.ErrFailed
		}
		return fmt.Errorf("%w: %w", target, err)
	}
	if errs.IsSystem(err) || errs.IsPurchase(err) || errs.IsTransfer(err) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", errs.ErrUnknown, err)
}
