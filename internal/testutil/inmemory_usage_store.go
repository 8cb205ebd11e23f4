package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/meterline/meterline/internal/domain/usage"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/types"
)

// InMemoryUsageRecordStore implements usage.Repository with the same batch
// atomicity as the database-backed store: a batch is staged in full before
// anything is applied, so a failure anywhere leaves the store untouched.
type InMemoryUsageRecordStore struct {
	mu      sync.RWMutex
	records map[int64]*usage.UsageRecord
	nextID  int64

	// failSetAfter injects a storage failure into SetRecords once the given
	// number of records has been staged. Negative means never fail.
	failSetAfter int
}

func NewInMemoryUsageRecordStore() *InMemoryUsageRecordStore {
	return &InMemoryUsageRecordStore{
		records:      make(map[int64]*usage.UsageRecord),
		failSetAfter: -1,
	}
}

// FailSetRecordsAfter makes every subsequent SetRecords call fail after
// staging n records. Pass a negative n to clear the failure.
func (s *InMemoryUsageRecordStore) FailSetRecordsAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSetAfter = n
}

func (s *InMemoryUsageRecordStore) FetchCycleRecords(ctx context.Context, groupName string, subscriptionID string, cycle *types.BillingCycle) ([]*usage.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*usage.UsageRecord
	for _, r := range s.records {
		if r.GroupName != groupName {
			continue
		}
		if subscriptionID != "" && r.SubscriptionID != subscriptionID {
			continue
		}
		if cycle != nil && !r.Overlaps(*cycle) {
			continue
		}
		result = append(result, r.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Start != result[j].Start {
			return result[i].Start < result[j].Start
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *InMemoryUsageRecordStore) SetRecords(ctx context.Context, records []*usage.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}

	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Stage the whole batch first; nothing is applied until every record
	// has been checked.
	assignedIDs := make([]int64, len(records))
	staged := make([]*usage.UsageRecord, len(records))
	nextID := s.nextID

	for i, r := range records {
		if s.failSetAfter >= 0 && i >= s.failSetAfter {
			return ierr.NewError("injected storage failure").
				WithHint("Simulated storage failure").
				Mark(ierr.ErrDatabase)
		}

		clone := r.Clone()
		if r.Persisted() {
			if _, exists := s.records[r.ID]; !exists {
				return ierr.NewErrorf("usage record %d no longer exists in storage", r.ID).
					WithHint("Stored usage records diverged from the in-memory working set").
					WithReportableDetails(map[string]any{"id": r.ID}).
					Mark(ierr.ErrConsistency)
			}
			assignedIDs[i] = r.ID
		} else {
			nextID++
			clone.ID = nextID
			assignedIDs[i] = nextID
		}
		staged[i] = clone
	}

	// Apply.
	s.nextID = nextID
	for i, clone := range staged {
		s.records[clone.ID] = clone
		records[i].ID = assignedIDs[i]
	}
	return nil
}

func (s *InMemoryUsageRecordStore) DeleteRecords(ctx context.Context, records []*usage.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if !r.Persisted() {
			continue
		}
		delete(s.records, r.ID)
	}
	return nil
}

// Count reports the number of stored records, for test assertions.
func (s *InMemoryUsageRecordStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

var _ usage.Repository = (*InMemoryUsageRecordStore)(nil)
