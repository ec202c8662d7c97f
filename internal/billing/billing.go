// Package billing answers whether a user holds an active premium
// entitlement. The boundary is a small port so the coordinator can
// reconcile local state against whatever store of record backs it.
package billing

import "context"

// FreeCategoryLimit is the maximum number of categories a free-tier
// user may create. Premium removes the cap.
const FreeCategoryLimit = 5

// EntitlementProvider is the store of record for premium status.
type EntitlementProvider interface {
	// IsPremiumActive reports whether the user currently holds an
	// active premium entitlement.
	IsPremiumActive(ctx context.Context, userID string) (bool, error)
}

// StaticProvider grants premium to a fixed set of users. Useful for
// local deployments and tests where no billing backend exists.
type StaticProvider struct {
	premium map[string]bool
}

func NewStaticProvider(premiumUIDs ...string) *StaticProvider {
	m := make(map[string]bool, len(premiumUIDs))
	for _, uid := range premiumUIDs {
		m[uid] = true
	}
	return &StaticProvider{premium: m}
}

func (p *StaticProvider) IsPremiumActive(_ context.Context, userID string) (bool, error) {
	return p.premium[userID], nil
}
