package types

import (
	ierr "github.com/meterline/meterline/internal/errors"
)

// BillingCycle is a closed interval of unix timestamps (seconds) over which
// usage is aggregated for charging. Both bounds are inclusive.
type BillingCycle struct {
	Start int64 `json:"start" db:"start_time"`
	End   int64 `json:"end" db:"end_time"`
}

// NewBillingCycle builds a validated billing cycle.
func NewBillingCycle(start, end int64) (BillingCycle, error) {
	c := BillingCycle{Start: start, End: end}
	if err := c.Validate(); err != nil {
		return BillingCycle{}, err
	}
	return c, nil
}

func (c BillingCycle) Validate() error {
	if c.End < c.Start {
		return ierr.NewError("billing cycle end precedes start").
			WithHint("Billing cycle end must not be before its start").
			WithReportableDetails(map[string]any{
				"start": c.Start,
				"end":   c.End,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Length returns the covered duration in seconds. Bounds are inclusive, so a
// cycle of [100, 199] has length 100.
func (c BillingCycle) Length() int64 {
	return c.End - c.Start + 1
}

// Contains reports whether ts falls inside the cycle.
func (c BillingCycle) Contains(ts int64) bool {
	return ts >= c.Start && ts <= c.End
}
