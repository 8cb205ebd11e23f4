package service

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"

	"github.com/meterline/meterline/internal/domain/subscription"
	"github.com/meterline/meterline/internal/domain/usage"
	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/testutil"
	"github.com/meterline/meterline/internal/types"
)

type GaugeUsageTypeSuite struct {
	testutil.BaseServiceTestSuite
	gauge   UsageType
	free    map[string]int64
	initial map[string]int64
}

func TestGaugeUsageType(t *testing.T) {
	suite.Run(t, new(GaugeUsageTypeSuite))
}

func (s *GaugeUsageTypeSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.free = map[string]int64{}
	s.initial = map[string]int64{}

	gauge, err := NewUsageType(s.params())
	s.Require().NoError(err)
	s.gauge = gauge
}

func (s *GaugeUsageTypeSuite) params() UsageTypeParams {
	return UsageTypeParams{
		Group: types.UsageGroup{
			Name:               "seats",
			Kind:               types.UsageTypeGauge,
			ProductVariationID: "var_seats",
		},
		Subscription: &subscription.Subscription{ID: "sub_1", TypeID: "metered"},
		SubscriptionType: &subscription.SubscriptionType{
			ID: "metered",
			Capabilities: []types.SubscriptionCapability{
				types.CapabilityFreeUsage,
				types.CapabilityInitialUsage,
			},
		},
		Repo:         s.GetStores().UsageRepo,
		FreeUsage:    NewStaticFreeUsageProvider(s.free),
		InitialUsage: NewStaticInitialUsageProvider(s.initial),
		Logger:       s.GetLogger(),
		Now:          func() int64 { return 1000 },
		Locks:        NewLockSet(),
	}
}

func (s *GaugeUsageTypeSuite) fetchAll() []*usage.UsageRecord {
	records, err := s.GetStores().UsageRepo.FetchCycleRecords(s.GetContext(), "seats", "sub_1", nil)
	s.Require().NoError(err)
	return records
}

// assertNonOverlapping checks the central gauge invariant: no two stored
// records' intervals overlap, comparing [start, end-or-infinity] pairwise.
func (s *GaugeUsageTypeSuite) assertNonOverlapping() {
	records := s.fetchAll()
	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			a, b := records[i], records[j]
			aEndsBefore := a.End != nil && *a.End < b.Start
			bEndsBefore := b.End != nil && *b.End < a.Start
			s.Truef(aEndsBefore || bEndsBefore,
				"records %+v and %+v overlap", a, b)
		}
	}
}

func (s *GaugeUsageTypeSuite) TestAddUsageLeftTruncationSplit() {
	err := s.gauge.AddUsage(s.GetContext(), 5, 0, lo.ToPtr(int64(50)))
	s.NoError(err)

	err = s.gauge.AddUsage(s.GetContext(), 7, 20, lo.ToPtr(int64(30)))
	s.NoError(err)

	records := s.fetchAll()
	s.Require().Len(records, 3)

	s.Equal(int64(0), records[0].Start)
	s.Equal(int64(19), *records[0].End)
	s.Equal(int64(5), records[0].Quantity)

	s.Equal(int64(20), records[1].Start)
	s.Equal(int64(30), *records[1].End)
	s.Equal(int64(7), records[1].Quantity)

	s.Equal(int64(31), records[2].Start)
	s.Equal(int64(50), *records[2].End)
	s.Equal(int64(5), records[2].Quantity)

	s.assertNonOverlapping()
}

func (s *GaugeUsageTypeSuite) TestAddUsageIdempotentCoverage() {
	err := s.gauge.AddUsage(s.GetContext(), 5, 10, lo.ToPtr(int64(20)))
	s.NoError(err)
	err = s.gauge.AddUsage(s.GetContext(), 5, 10, lo.ToPtr(int64(20)))
	s.NoError(err)

	records := s.fetchAll()
	s.Require().Len(records, 1)
	s.Equal(int64(10), records[0].Start)
	s.Equal(int64(20), *records[0].End)
	s.Equal(int64(5), records[0].Quantity)
}

func (s *GaugeUsageTypeSuite) TestAddUsageOpenEndedSupersede() {
	s.NoError(s.gauge.AddUsage(s.GetContext(), 1, 0, lo.ToPtr(int64(10))))
	s.NoError(s.gauge.AddUsage(s.GetContext(), 2, 20, lo.ToPtr(int64(30))))

	err := s.gauge.AddUsage(s.GetContext(), 9, 5, nil)
	s.NoError(err)

	records := s.fetchAll()
	s.Require().Len(records, 2)

	s.Equal(int64(0), records[0].Start)
	s.Equal(int64(4), *records[0].End)
	s.Equal(int64(1), records[0].Quantity)

	s.Equal(int64(5), records[1].Start)
	s.Nil(records[1].End)
	s.Equal(int64(9), records[1].Quantity)

	s.assertNonOverlapping()
}

func (s *GaugeUsageTypeSuite) TestAddUsageDisjointLeavesExistingAlone() {
	s.NoError(s.gauge.AddUsage(s.GetContext(), 3, 0, lo.ToPtr(int64(10))))

	err := s.gauge.AddUsage(s.GetContext(), 4, 20, lo.ToPtr(int64(30)))
	s.NoError(err)

	records := s.fetchAll()
	s.Require().Len(records, 2)
	s.Equal(int64(0), records[0].Start)
	s.Equal(int64(10), *records[0].End)
	s.Equal(int64(20), records[1].Start)
	s.Equal(int64(30), *records[1].End)
}

func (s *GaugeUsageTypeSuite) TestAddUsageSplitsOpenEndedRecord() {
	s.NoError(s.gauge.AddUsage(s.GetContext(), 2, 0, nil))

	err := s.gauge.AddUsage(s.GetContext(), 8, 100, lo.ToPtr(int64(199)))
	s.NoError(err)

	records := s.fetchAll()
	s.Require().Len(records, 3)

	s.Equal(int64(0), records[0].Start)
	s.Equal(int64(99), *records[0].End)
	s.Equal(int64(2), records[0].Quantity)

	s.Equal(int64(100), records[1].Start)
	s.Equal(int64(199), *records[1].End)

	s.Equal(int64(200), records[2].Start)
	s.Nil(records[2].End)
	s.Equal(int64(2), records[2].Quantity)

	s.assertNonOverlapping()
}

func (s *GaugeUsageTypeSuite) TestAddUsageInvariantUnderMixedSequence() {
	calls := []struct {
		quantity int64
		start    int64
		end      *int64
	}{
		{1, 0, lo.ToPtr(int64(100))},
		{2, 50, lo.ToPtr(int64(80))},
		{3, 70, nil},
		{4, 60, lo.ToPtr(int64(65))},
		{5, 0, lo.ToPtr(int64(10))},
		{6, 5, lo.ToPtr(int64(200))},
	}

	for _, call := range calls {
		s.NoError(s.gauge.AddUsage(s.GetContext(), call.quantity, call.start, call.end))
		s.assertNonOverlapping()
	}
}

func (s *GaugeUsageTypeSuite) TestAddUsageValidation() {
	err := s.gauge.AddUsage(s.GetContext(), -1, 0, nil)
	s.True(ierr.IsValidation(err))

	err = s.gauge.AddUsage(s.GetContext(), 1, 10, lo.ToPtr(int64(5)))
	s.True(ierr.IsValidation(err))

	s.Equal(0, s.GetStores().UsageRepo.Count())
}

func (s *GaugeUsageTypeSuite) TestCurrentUsageReturnsLatestLevel() {
	s.NoError(s.gauge.AddUsage(s.GetContext(), 3, 0, lo.ToPtr(int64(49))))
	s.NoError(s.gauge.AddUsage(s.GetContext(), 8, 50, nil))

	quantity, err := s.gauge.CurrentUsage(s.GetContext(), nil)
	s.NoError(err)
	s.Equal(int64(8), quantity)

	// Scoped to a cycle that ends before the latest record starts.
	cycle := types.BillingCycle{Start: 0, End: 40}
	quantity, err = s.gauge.CurrentUsage(s.GetContext(), &cycle)
	s.NoError(err)
	s.Equal(int64(3), quantity)
}

func (s *GaugeUsageTypeSuite) TestCurrentUsageWithoutRecords() {
	quantity, err := s.gauge.CurrentUsage(s.GetContext(), nil)
	s.NoError(err)
	s.Equal(int64(0), quantity)
}

func (s *GaugeUsageTypeSuite) TestIsComplete() {
	cycle := types.BillingCycle{Start: 100, End: 199}

	// Records tiling the whole cycle, one open-ended.
	s.NoError(s.gauge.AddUsage(s.GetContext(), 1, 80, lo.ToPtr(int64(149))))
	s.NoError(s.gauge.AddUsage(s.GetContext(), 2, 150, nil))

	complete, err := s.gauge.IsComplete(s.GetContext(), cycle)
	s.NoError(err)
	s.True(complete)
}

func (s *GaugeUsageTypeSuite) TestIsCompleteDetectsGap() {
	cycle := types.BillingCycle{Start: 100, End: 199}

	s.NoError(s.gauge.AddUsage(s.GetContext(), 1, 100, lo.ToPtr(int64(140))))
	s.NoError(s.gauge.AddUsage(s.GetContext(), 2, 160, lo.ToPtr(int64(199))))

	complete, err := s.gauge.IsComplete(s.GetContext(), cycle)
	s.NoError(err)
	s.False(complete)
}

func (s *GaugeUsageTypeSuite) TestIsCompleteEmptyCycle() {
	complete, err := s.gauge.IsComplete(s.GetContext(), types.BillingCycle{Start: 0, End: 99})
	s.NoError(err)
	s.False(complete)
}

func (s *GaugeUsageTypeSuite) TestGetCharges() {
	s.free["seats/var_seats"] = 2
	s.initial["seats/var_seats"] = 1
	cycle := types.BillingCycle{Start: 0, End: 99}

	s.NoError(s.gauge.AddUsage(s.GetContext(), 4, 0, lo.ToPtr(int64(49))))
	s.NoError(s.gauge.AddUsage(s.GetContext(), 10, 50, nil))

	charges, err := s.gauge.GetCharges(s.GetContext(), cycle)
	s.NoError(err)
	s.Require().Len(charges, 1)
	s.Equal("var_seats", charges[0].ProductVariationID)
	// Latest level 10, minus free 2 and initial 1.
	s.Equal(int64(7), charges[0].Quantity)
}

func (s *GaugeUsageTypeSuite) TestGetChargesFlooredAtZero() {
	s.free["seats/var_seats"] = 100
	cycle := types.BillingCycle{Start: 0, End: 99}

	s.NoError(s.gauge.AddUsage(s.GetContext(), 4, 0, nil))

	charges, err := s.gauge.GetCharges(s.GetContext(), cycle)
	s.NoError(err)
	s.Require().Len(charges, 1)
	s.Equal(int64(0), charges[0].Quantity)
}

func (s *GaugeUsageTypeSuite) TestOnSubscriptionChangeSeedsInitialLevel() {
	s.initial["seats/var_seats"] = 3

	// A level already in effect gets truncated at the change.
	s.NoError(s.gauge.AddUsage(s.GetContext(), 9, 0, nil))

	err := s.gauge.OnSubscriptionChange(s.GetContext())
	s.NoError(err)

	records := s.fetchAll()
	s.Require().Len(records, 2)

	s.Equal(int64(0), records[0].Start)
	s.Equal(int64(999), *records[0].End)
	s.Equal(int64(9), records[0].Quantity)

	s.Equal(int64(1000), records[1].Start)
	s.Nil(records[1].End)
	s.Equal(int64(3), records[1].Quantity)
}
