package purchase

import (
	"github.com/xraph/purchasekit/billing"
	"github.com/xraph/purchasekit/product"
)

// ReplacementPolicy picks the store replacement mode used when a customer
// changes subscription plan inside a group. Stores change the set of modes
// they accept, so each case is configurable.
type ReplacementPolicy struct {
	// SameSKU applies when only the offer or base plan changes. The store
	// only accepts WithoutProration for a same-sku replacement.
	SameSKU billing.ReplacementMode `json:"sameSku" yaml:"same_sku" mapstructure:"same_sku"`
	// Upgrade applies when the target group level is higher.
	Upgrade billing.ReplacementMode `json:"upgrade" yaml:"upgrade" mapstructure:"upgrade"`
	// Downgrade applies to every other change.
	Downgrade billing.ReplacementMode `json:"downgrade" yaml:"downgrade" mapstructure:"downgrade"`
}

// DefaultReplacementPolicy returns the WithoutProration / ChargeFullPrice /
// Deferred policy.
func DefaultReplacementPolicy() ReplacementPolicy {
	return ReplacementPolicy{
		SameSKU:   billing.ReplacementWithoutProration,
		Upgrade:   billing.ReplacementChargeFullPrice,
		Downgrade: billing.ReplacementDeferred,
	}
}

// Mode returns the replacement mode for moving from current to target.
func (p ReplacementPolicy) Mode(current, target *product.Product) billing.ReplacementMode {
	if current.SKU == target.SKU {
		return p.SameSKU
	}
	if level(target) > level(current) {
		return p.Upgrade
	}
	return p.Downgrade
}

func level(p *product.Product) int {
	if p.Subscription == nil {
		return 0
	}
	return p.Subscription.GroupLevel
}

func (p ReplacementPolicy) withDefaults() ReplacementPolicy {
	def := DefaultReplacementPolicy()
	if p.SameSKU == billing.ReplacementUnknown {
		p.SameSKU = def.SameSKU
	}
	if p.Upgrade == billing.ReplacementUnknown {
		p.Upgrade = def.Upgrade
	}
	if p.Downgrade == billing.ReplacementUnknown {
		p.Downgrade = def.Downgrade
	}
	return p
}
