package dto

import (
	"github.com/go-playground/validator/v10"

	"github.com/meterline/meterline/internal/domain/usage"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/types"
)

// RegisterUsageRequest is the payload for recording usage against a group
// and subscription. A missing end means the usage is open-ended.
type RegisterUsageRequest struct {
	GroupName      string `json:"group_name" binding:"required" validate:"required" example:"api_calls"`
	SubscriptionID string `json:"subscription_id" binding:"required" validate:"required" example:"sub_123"`
	Quantity       int64  `json:"quantity" validate:"gte=0"`
	Start          int64  `json:"start" binding:"required" example:"1735689600"`
	End            *int64 `json:"end,omitempty"`
}

func (r *RegisterUsageRequest) Validate() error {
	if err := validator.New().Struct(r); err != nil {
		return ierr.WithError(err).
			WithHint("Invalid usage registration payload").
			Mark(ierr.ErrValidation)
	}
	if r.End != nil && *r.End < r.Start {
		return ierr.NewError("usage interval end precedes start").
			WithHint("Usage interval end must not be before its start").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// UsageQuery identifies a group and subscription plus an optional billing
// cycle, bound from query parameters.
type UsageQuery struct {
	GroupName      string `form:"group_name" binding:"required"`
	SubscriptionID string `form:"subscription_id" binding:"required"`
	CycleStart     *int64 `form:"cycle_start"`
	CycleEnd       *int64 `form:"cycle_end"`
}

// Cycle returns the billing cycle the query names, nil when no cycle was
// given. Naming only one bound is an error.
func (q *UsageQuery) Cycle() (*types.BillingCycle, error) {
	if q.CycleStart == nil && q.CycleEnd == nil {
		return nil, nil
	}
	if q.CycleStart == nil || q.CycleEnd == nil {
		return nil, ierr.NewError("partial billing cycle").
			WithHint("Provide both cycle_start and cycle_end, or neither").
			Mark(ierr.ErrValidation)
	}
	cycle, err := types.NewBillingCycle(*q.CycleStart, *q.CycleEnd)
	if err != nil {
		return nil, err
	}
	return &cycle, nil
}

// RequireCycle returns the billing cycle or a validation error when the
// query names none.
func (q *UsageQuery) RequireCycle() (types.BillingCycle, error) {
	cycle, err := q.Cycle()
	if err != nil {
		return types.BillingCycle{}, err
	}
	if cycle == nil {
		return types.BillingCycle{}, ierr.NewError("billing cycle is required").
			WithHint("Provide cycle_start and cycle_end").
			Mark(ierr.ErrValidation)
	}
	return *cycle, nil
}

type CurrentUsageResponse struct {
	GroupName      string `json:"group_name"`
	SubscriptionID string `json:"subscription_id"`
	Quantity       int64  `json:"quantity"`
}

type ChargesResponse struct {
	GroupName      string             `json:"group_name"`
	SubscriptionID string             `json:"subscription_id"`
	Cycle          types.BillingCycle `json:"cycle"`
	Charges        []usage.Charge     `json:"charges"`
}

type CompletenessResponse struct {
	GroupName      string             `json:"group_name"`
	SubscriptionID string             `json:"subscription_id"`
	Cycle          types.BillingCycle `json:"cycle"`
	Complete       bool               `json:"complete"`
}
