package service

import (
	"context"

	"github.com/meterline/meterline/internal/domain/subscription"
	"github.com/meterline/meterline/internal/types"
)

// StaticFreeUsageProvider serves free quantities from a fixed table keyed by
// "<group>/<product_variation_id>". Groups without an entry grant nothing.
type StaticFreeUsageProvider struct {
	quantities map[string]int64
}

func NewStaticFreeUsageProvider(quantities map[string]int64) *StaticFreeUsageProvider {
	return &StaticFreeUsageProvider{quantities: quantities}
}

func (p *StaticFreeUsageProvider) GetFreeQuantity(ctx context.Context, groupName, productVariationID string, cycle types.BillingCycle) (int64, error) {
	return p.quantities[allowanceKey(groupName, productVariationID)], nil
}

// StaticInitialUsageProvider serves gauge seed quantities the same way.
type StaticInitialUsageProvider struct {
	quantities map[string]int64
}

func NewStaticInitialUsageProvider(quantities map[string]int64) *StaticInitialUsageProvider {
	return &StaticInitialUsageProvider{quantities: quantities}
}

func (p *StaticInitialUsageProvider) GetInitialUsage(ctx context.Context, groupName, productVariationID string) (int64, error) {
	return p.quantities[allowanceKey(groupName, productVariationID)], nil
}

func allowanceKey(groupName, productVariationID string) string {
	return groupName + "/" + productVariationID
}

var (
	_ subscription.FreeUsageProvider    = (*StaticFreeUsageProvider)(nil)
	_ subscription.InitialUsageProvider = (*StaticInitialUsageProvider)(nil)
)
