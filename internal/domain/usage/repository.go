package usage

import (
	"context"

	"github.com/meterline/meterline/internal/types"
)

// Repository is the storage contract for usage records.
//
// Implementations must make SetRecords and DeleteRecords atomic per call:
// either the whole batch is applied or storage is left exactly as it was,
// with the error propagated to the caller.
type Repository interface {
	// FetchCycleRecords returns every record for groupName whose interval
	// overlaps the cycle, ordered by start ascending. An empty
	// subscriptionID matches records across all subscriptions; a nil cycle
	// matches regardless of time. Returned records are working copies;
	// mutations are only made durable by an explicit SetRecords call.
	FetchCycleRecords(ctx context.Context, groupName string, subscriptionID string, cycle *types.BillingCycle) ([]*UsageRecord, error)

	// SetRecords upserts a batch atomically. Records with an ID are
	// updated; records without one are inserted and assigned a fresh ID
	// in place. An update that matches no stored row is a consistency
	// error and aborts the whole batch.
	SetRecords(ctx context.Context, records []*UsageRecord) error

	// DeleteRecords deletes the given records by ID atomically. Records
	// without an ID are ignored; they never existed in storage.
	DeleteRecords(ctx context.Context, records []*UsageRecord) error
}
