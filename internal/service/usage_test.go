package service

import (
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"

	"github.com/meterline/meterline/internal/domain/subscription"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/testutil"
	"github.com/meterline/meterline/internal/types"
)

type UsageTypeBaseSuite struct {
	testutil.BaseServiceTestSuite
}

func TestUsageTypeBase(t *testing.T) {
	suite.Run(t, new(UsageTypeBaseSuite))
}

func (s *UsageTypeBaseSuite) gaugeParams(subType *subscription.SubscriptionType) UsageTypeParams {
	return UsageTypeParams{
		Group: types.UsageGroup{
			Name:               "seats",
			Kind:               types.UsageTypeGauge,
			ProductVariationID: "var_seats",
		},
		Subscription:     &subscription.Subscription{ID: "sub_1", TypeID: subType.ID},
		SubscriptionType: subType,
		Repo:             s.GetStores().UsageRepo,
		FreeUsage:        NewStaticFreeUsageProvider(nil),
		InitialUsage:     NewStaticInitialUsageProvider(nil),
		Logger:           s.GetLogger(),
	}
}

func (s *UsageTypeBaseSuite) TestCapabilityGating() {
	// A subscription type with every capability works for both variants.
	full := &subscription.SubscriptionType{
		ID: "full",
		Capabilities: []types.SubscriptionCapability{
			types.CapabilityFreeUsage,
			types.CapabilityInitialUsage,
		},
	}
	ut, err := NewUsageType(s.gaugeParams(full))
	s.NoError(err)
	s.Equal(types.UsageTypeGauge, ut.Kind())

	// Gauge refuses a type lacking the initial-usage capability.
	freeOnly := &subscription.SubscriptionType{
		ID:           "free_only",
		Capabilities: []types.SubscriptionCapability{types.CapabilityFreeUsage},
	}
	_, err = NewUsageType(s.gaugeParams(freeOnly))
	s.True(ierr.IsConfiguration(err))

	// Counter only needs free usage.
	params := s.gaugeParams(freeOnly)
	params.Group.Kind = types.UsageTypeCounter
	params.Group.Name = "api_calls"
	ut, err = NewUsageType(params)
	s.NoError(err)
	s.Equal(types.UsageTypeCounter, ut.Kind())

	// A type with no capabilities works for neither.
	bare := &subscription.SubscriptionType{ID: "bare"}
	params = s.gaugeParams(bare)
	params.Group.Kind = types.UsageTypeCounter
	_, err = NewUsageType(params)
	s.True(ierr.IsConfiguration(err))
}

func (s *UsageTypeBaseSuite) TestInvalidGroupRejected() {
	full := &subscription.SubscriptionType{
		ID: "full",
		Capabilities: []types.SubscriptionCapability{
			types.CapabilityFreeUsage,
			types.CapabilityInitialUsage,
		},
	}
	params := s.gaugeParams(full)
	params.Group.Kind = types.UsageTypeKind("HISTOGRAM")
	_, err := NewUsageType(params)
	s.True(ierr.IsValidation(err))
}

func (s *UsageTypeBaseSuite) TestUsageHistoryClipsRecords() {
	full := &subscription.SubscriptionType{
		ID: "full",
		Capabilities: []types.SubscriptionCapability{
			types.CapabilityFreeUsage,
			types.CapabilityInitialUsage,
		},
	}
	ut, err := NewUsageType(s.gaugeParams(full))
	s.Require().NoError(err)

	// One record straddling the cycle start, one open-ended.
	s.NoError(ut.AddUsage(s.GetContext(), 1, 50, lo.ToPtr(int64(149))))
	s.NoError(ut.AddUsage(s.GetContext(), 2, 150, nil))

	cycle := types.BillingCycle{Start: 100, End: 199}
	gauge := ut.(*gaugeUsageType)
	history, err := gauge.usageHistory(s.GetContext(), cycle)
	s.Require().NoError(err)
	s.Require().Len(history, 2)

	s.Equal(int64(100), history[0].Start)
	s.Equal(int64(149), *history[0].End)
	s.Equal(int64(150), history[1].Start)
	s.Require().NotNil(history[1].End)
	s.Equal(int64(199), *history[1].End)

	// Clipping never touches storage.
	raw, err := s.GetStores().UsageRepo.FetchCycleRecords(s.GetContext(), "seats", "sub_1", nil)
	s.Require().NoError(err)
	s.Require().Len(raw, 2)
	s.Equal(int64(50), raw[0].Start)
	s.Nil(raw[1].End)
}

func (s *UsageTypeBaseSuite) TestEnforceChangeSchedulingDefaultsToFalse() {
	full := &subscription.SubscriptionType{
		ID: "full",
		Capabilities: []types.SubscriptionCapability{
			types.CapabilityFreeUsage,
			types.CapabilityInitialUsage,
		},
	}
	ut, err := NewUsageType(s.gaugeParams(full))
	s.Require().NoError(err)
	s.False(ut.EnforceChangeScheduling("plan", "basic", "pro"))
}

func (s *UsageTypeBaseSuite) TestConcurrentAddUsagePreservesInvariant() {
	full := &subscription.SubscriptionType{
		ID: "full",
		Capabilities: []types.SubscriptionCapability{
			types.CapabilityFreeUsage,
			types.CapabilityInitialUsage,
		},
	}
	params := s.gaugeParams(full)
	params.Locks = NewLockSet()

	ut, err := NewUsageType(params)
	s.Require().NoError(err)

	// Deliberately colliding intervals from concurrent callers.
	intervals := []struct{ start, end int64 }{
		{0, 100}, {50, 150}, {25, 75}, {120, 200}, {0, 30}, {90, 110},
	}

	var wg sync.WaitGroup
	for i, iv := range intervals {
		wg.Add(1)
		go func(q, start, end int64) {
			defer wg.Done()
			s.NoError(ut.AddUsage(s.GetContext(), q, start, &end))
		}(int64(i+1), iv.start, iv.end)
	}
	wg.Wait()

	records, err := s.GetStores().UsageRepo.FetchCycleRecords(s.GetContext(), "seats", "sub_1", nil)
	s.Require().NoError(err)
	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			a, b := records[i], records[j]
			aEndsBefore := a.End != nil && *a.End < b.Start
			bEndsBefore := b.End != nil && *b.End < a.Start
			s.Truef(aEndsBefore || bEndsBefore, "records %+v and %+v overlap", a, b)
		}
	}
}

func TestLockSetSerializesPerKey(t *testing.T) {
	locks := NewLockSet()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("group/sub")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("expected 50 increments, got %d", counter)
	}
}
