package purchasekit

import (
	"context"

	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/entitlement"
	"github.com/xraph/purchasekit/product"
)

// Every read below syncs first when the cache is older than its TTL.

// Products returns catalog products by identifier, or all of them when
// identifiers is empty. onlyAvailable drops products the store cannot sell.
func (s *SDK) Products(ctx context.Context, identifiers []string, onlyAvailable bool) ([]*product.Product, error) {
	ss, err := s.synced(ctx)
	if err != nil {
		return nil, err
	}
	return ss.syncer.Products(identifiers, onlyAvailable), nil
}

// SubscriptionGroups returns subscription groups by identifier, or all of
// them when identifiers is empty.
func (s *SDK) SubscriptionGroups(ctx context.Context, identifiers []string) ([]*product.SubscriptionGroup, error) {
	ss, err := s.synced(ctx)
	if err != nil {
		return nil, err
	}
	return ss.syncer.SubscriptionGroups(identifiers), nil
}

func (s *SDK) Entitlement(ctx context.Context, productID string) (*entitlement.Entitlement, error) {
	ss, err := s.synced(ctx)
	if err != nil {
		return nil, err
	}
	return ss.syncer.Entitlement(productID)
}

func (s *SDK) EntitlementForSubscriptionGroup(ctx context.Context, groupID string) (*entitlement.Entitlement, error) {
	ss, err := s.synced(ctx)
	if err != nil {
		return nil, err
	}
	return ss.syncer.EntitlementForSubscriptionGroup(groupID)
}

// Entitlements returns the entitlements for productIDs, or all of them when
// productIDs is empty.
func (s *SDK) Entitlements(ctx context.Context, productIDs []string) ([]*entitlement.Entitlement, error) {
	ss, err := s.synced(ctx)
	if err != nil {
		return nil, err
	}
	return ss.syncer.Entitlements(productIDs)
}

// StoreAccountTransaction returns the purchase the store account owns for
// sku, whoever the ledger attributes it to.
func (s *SDK) StoreAccountTransaction(ctx context.Context, sku string) (*billing.Purchase, error) {
	ss, err := s.synced(ctx)
	if err != nil {
		return nil, err
	}
	return ss.syncer.StoreAccountTransaction(sku), nil
}

func (s *SDK) StoreAccountTransactionForSubscriptionGroup(ctx context.Context, groupID string) (*billing.Purchase, error) {
	ss, err := s.synced(ctx)
	if err != nil {
		return nil, err
	}
	return ss.syncer.StoreAccountTransactionForSubscriptionGroup(groupID), nil
}

func (s *SDK) synced(ctx context.Context) (*session, error) {
	ss, err := s.session()
	if err != nil {
		return nil, err
	}
	if err := ss.syncer.EnsureSync(ctx, false); err != nil {
		return nil, err
	}
	return ss, nil
}
