package purchasekit

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/customer"
	"github.com/xraph/purchasekit/errs"
	"github.com/xraph/purchasekit/purchase"
	"github.com/xraph/purchasekit/syncer"
)

// Login identifies the app user with the ledger and makes them the session
// customer. It syncs, finishes store purchases left unacknowledged and
// reports store transactions the ledger has never seen. Store failures
// surface as errs.ErrStoreUnavailable; mapping failures are only logged.
func (s *SDK) Login(ctx context.Context, externalRef string) (*customer.Customer, error) {
	ss, err := s.session()
	if err != nil {
		return nil, err
	}
	return ss.login(ctx, externalRef)
}

func (ss *session) login(ctx context.Context, externalRef string) (*customer.Customer, error) {
	resp, err := ss.ledger.Login(ctx, externalRef)
	if err != nil {
		return nil, fmt.Errorf("purchasekit: login: %w", err)
	}
	c := resp.Customer
	log := ss.logger.With("customer_id", c.ID)
	prev := ss.syncer.Customer()
	ss.syncer.Login(&c)

	if err := ss.syncer.EnsureSync(ctx, false); err != nil {
		ss.syncer.Login(prev)
		return nil, storeUnavailable("login sync", err)
	}
	purchases, err := ss.gateway.QueryOwnedPurchases(ctx, "")
	if err != nil {
		ss.syncer.Login(prev)
		return nil, storeUnavailable("login purchases", err)
	}

	for _, p := range purchases {
		if p.Acknowledged {
			continue
		}
		if _, err := ss.orch.FinishPurchase(ctx, p, purchase.FinishOptions{}); err != nil {
			log.Warn("purchasekit: finishing unacknowledged purchase failed",
				"skus", p.SKUs, "error", err)
		}
	}

	if items := syncer.UnknownTransactions(resp.PlatformOriginalTransactionIDs, purchases); len(items) > 0 {
		if err := ss.ledger.MapTransactions(ctx, c.ID, items); err != nil {
			log.Warn("purchasekit: mapping unknown transactions failed", "count", len(items), "error", err)
		} else {
			log.Debug("purchasekit: mapped unknown transactions", "count", len(items))
		}
	}

	ss.plugins.EmitLogin(ctx, &c)
	return ss.syncer.Customer(), nil
}

// Logout clears the session customer.
func (s *SDK) Logout(ctx context.Context) error {
	ss, err := s.session()
	if err != nil {
		return err
	}
	c := ss.syncer.Customer()
	ss.syncer.Login(nil)
	if c != nil {
		ss.plugins.EmitLogout(ctx, c.ID)
	}
	return nil
}

// Customer returns the logged-in customer, or nil.
func (s *SDK) Customer() *customer.Customer {
	ss, err := s.session()
	if err != nil {
		return nil
	}
	return ss.syncer.Customer()
}

// storeUnavailable folds raw store failures into errs.ErrStoreUnavailable.
func storeUnavailable(op string, err error) error {
	if errors.Is(err, errs.ErrStoreUnavailable) || errors.Is(err, errs.ErrSdkNotInitialized) {
		return fmt.Errorf("purchasekit: %s: %w", op, err)
	}
	if _, ok := billing.Code(err); ok {
		return fmt.Errorf("purchasekit: %s: %w: %w", op, errs.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("purchasekit: %s: %w", op, err)
}
