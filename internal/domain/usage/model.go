package usage

import (
	"time"

	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/types"
)

// UsageRecord is one metered quantity bound to a time interval, a usage
// group, a subscription and a product variation.
//
// A zero ID means the record has not been persisted yet; the store assigns
// an ID on first insert and it never changes afterwards. A nil End means the
// record is open-ended and still accruing, which is a first-class state
// distinct from any finite end.
type UsageRecord struct {
	ID int64 `db:"id" json:"id"`

	// GroupName identifies the usage group/metric this record belongs to
	GroupName string `db:"group_name" json:"group_name"`

	// SubscriptionID and ProductVariationID are opaque references resolved
	// by identifier on demand, never embedded
	SubscriptionID     string `db:"subscription_id" json:"subscription_id"`
	ProductVariationID string `db:"product_variation_id" json:"product_variation_id"`

	Quantity int64 `db:"quantity" json:"quantity"`

	// Start and End are inclusive unix timestamps in seconds
	Start int64  `db:"start_time" json:"start"`
	End   *int64 `db:"end_time" json:"end,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NewUsageRecord builds an unpersisted record shell.
func NewUsageRecord(groupName, subscriptionID, productVariationID string, quantity, start int64, end *int64) *UsageRecord {
	now := time.Now().UTC()
	return &UsageRecord{
		GroupName:          groupName,
		SubscriptionID:     subscriptionID,
		ProductVariationID: productVariationID,
		Quantity:           quantity,
		Start:              start,
		End:                end,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Persisted reports whether the store has assigned this record an identity.
func (r *UsageRecord) Persisted() bool {
	return r.ID != 0
}

func (r *UsageRecord) Validate() error {
	if r.GroupName == "" {
		return ierr.NewError("usage record group name is required").
			WithHint("Usage record must belong to a usage group").
			Mark(ierr.ErrValidation)
	}
	if r.SubscriptionID == "" {
		return ierr.NewError("usage record subscription is required").
			WithHint("Usage record must reference a subscription").
			Mark(ierr.ErrValidation)
	}
	if r.Quantity < 0 {
		return ierr.NewError("usage record quantity is negative").
			WithHint("Usage quantity must not be negative").
			WithReportableDetails(map[string]any{"quantity": r.Quantity}).
			Mark(ierr.ErrValidation)
	}
	if r.End != nil && *r.End < r.Start {
		return ierr.NewError("usage record end precedes start").
			WithHint("Usage record end must not be before its start").
			WithReportableDetails(map[string]any{
				"start": r.Start,
				"end":   *r.End,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Clone returns a deep copy of the record.
func (r *UsageRecord) Clone() *UsageRecord {
	clone := *r
	if r.End != nil {
		end := *r.End
		clone.End = &end
	}
	return &clone
}

// Overlaps applies the inclusive, open-end-aware overlap test a cycle fetch
// uses: the record matches when it ends after the cycle starts (or never
// ends) and starts before the cycle ends.
func (r *UsageRecord) Overlaps(cycle types.BillingCycle) bool {
	return (r.End == nil || *r.End > cycle.Start) && r.Start < cycle.End
}

// ClipTo returns an in-memory copy whose bounds are clamped to the cycle.
// An open end becomes the cycle end, so the returned copy always has a
// defined end. Clipped copies are never persisted.
func (r *UsageRecord) ClipTo(cycle types.BillingCycle) *UsageRecord {
	clipped := r.Clone()
	if clipped.Start < cycle.Start {
		clipped.Start = cycle.Start
	}
	if clipped.End == nil || *clipped.End > cycle.End {
		end := cycle.End
		clipped.End = &end
	}
	return clipped
}

// Length returns the covered duration in seconds for a record with a defined
// end. Bounds are inclusive, so [10, 19] has length 10. Open-ended records
// have no length; clip them first.
func (r *UsageRecord) Length() int64 {
	if r.End == nil {
		return 0
	}
	return *r.End - r.Start + 1
}

// Charge is one billable quantity attributed to a product variation.
type Charge struct {
	ProductVariationID string `json:"product_variation_id"`
	Quantity           int64  `json:"quantity"`
}
