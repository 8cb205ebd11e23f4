package types

import (
	ierr "github.com/meterline/meterline/internal/errors"
)

// UsageTypeKind selects the aggregation model for a usage group.
type UsageTypeKind string

const (
	// UsageTypeCounter treats every usage event as a discrete point charge
	// and accumulates by summation.
	UsageTypeCounter UsageTypeKind = "COUNTER"

	// UsageTypeGauge treats usage as a level that holds over an interval
	// until explicitly superseded. Gauge records must tile without overlap.
	UsageTypeGauge UsageTypeKind = "GAUGE"
)

func (k UsageTypeKind) Validate() bool {
	switch k {
	case UsageTypeCounter, UsageTypeGauge:
		return true
	default:
		return false
	}
}

// SubscriptionCapability identifies an optional behavior a subscription type
// can implement. Usage type variants declare the capabilities they require
// and refuse construction against subscription types that lack them.
type SubscriptionCapability string

const (
	// CapabilityFreeUsage means the subscription type supplies a free
	// quantity to deduct before charging.
	CapabilityFreeUsage SubscriptionCapability = "FREE_USAGE"

	// CapabilityInitialUsage means the subscription type supplies a seed
	// quantity for gauge registration on activation or plan change.
	CapabilityInitialUsage SubscriptionCapability = "INITIAL_USAGE"
)

func (c SubscriptionCapability) Validate() bool {
	switch c {
	case CapabilityFreeUsage, CapabilityInitialUsage:
		return true
	default:
		return false
	}
}

// UsageGroup is the definition of a named metric under which usage records
// accrue, including the product variation its charges are attributed to.
type UsageGroup struct {
	Name               string        `json:"name" mapstructure:"name"`
	Kind               UsageTypeKind `json:"kind" mapstructure:"kind"`
	ProductVariationID string        `json:"product_variation_id" mapstructure:"product_variation_id"`
}

func (g UsageGroup) Validate() error {
	if g.Name == "" {
		return ierr.NewError("usage group name is required").
			WithHint("Usage group name is required").
			Mark(ierr.ErrValidation)
	}
	if !g.Kind.Validate() {
		return ierr.NewError("invalid usage type kind").
			WithHint("Usage type must be COUNTER or GAUGE").
			WithReportableDetails(map[string]any{"kind": g.Kind}).
			Mark(ierr.ErrValidation)
	}
	if g.ProductVariationID == "" {
		return ierr.NewError("usage group product variation is required").
			WithHint("Usage group must reference a product variation").
			Mark(ierr.ErrValidation)
	}
	return nil
}
