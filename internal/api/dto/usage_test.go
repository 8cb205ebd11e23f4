package dto

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"

	ierr "github.com/meterline/meterline/internal/errors"
)

func TestRegisterUsageRequestValidate(t *testing.T) {
	req := RegisterUsageRequest{
		GroupName:      "api_calls",
		SubscriptionID: "sub_1",
		Quantity:       5,
		Start:          1735689600,
	}
	assert.NoError(t, req.Validate())

	req.End = lo.ToPtr(int64(1735689599))
	assert.True(t, ierr.IsValidation(req.Validate()))

	bad := RegisterUsageRequest{SubscriptionID: "sub_1", Start: 1}
	assert.True(t, ierr.IsValidation(bad.Validate()))
}

func TestUsageQueryCycle(t *testing.T) {
	q := UsageQuery{GroupName: "api_calls", SubscriptionID: "sub_1"}

	cycle, err := q.Cycle()
	assert.NoError(t, err)
	assert.Nil(t, cycle)

	_, err = q.RequireCycle()
	assert.True(t, ierr.IsValidation(err))

	q.CycleStart = lo.ToPtr(int64(100))
	_, err = q.Cycle()
	assert.True(t, ierr.IsValidation(err))

	q.CycleEnd = lo.ToPtr(int64(199))
	cycle, err = q.Cycle()
	assert.NoError(t, err)
	assert.Equal(t, int64(100), cycle.Start)
	assert.Equal(t, int64(199), cycle.End)

	q.CycleEnd = lo.ToPtr(int64(99))
	_, err = q.Cycle()
	assert.True(t, ierr.IsValidation(err))
}
