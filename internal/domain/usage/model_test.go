package usage

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"

	ierr "github.com/meterline/meterline/internal/errors"
	"github.com/meterline/meterline/internal/types"
)

func TestUsageRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		record  *UsageRecord
		wantErr bool
	}{
		{
			name:   "valid bounded record",
			record: NewUsageRecord("api_calls", "sub_1", "var_1", 5, 100, lo.ToPtr(int64(199))),
		},
		{
			name:   "valid open-ended record",
			record: NewUsageRecord("seats", "sub_1", "var_1", 3, 100, nil),
		},
		{
			name:   "zero-length interval",
			record: NewUsageRecord("api_calls", "sub_1", "var_1", 1, 100, lo.ToPtr(int64(100))),
		},
		{
			name:    "missing group",
			record:  NewUsageRecord("", "sub_1", "var_1", 1, 0, nil),
			wantErr: true,
		},
		{
			name:    "missing subscription",
			record:  NewUsageRecord("api_calls", "", "var_1", 1, 0, nil),
			wantErr: true,
		},
		{
			name:    "negative quantity",
			record:  NewUsageRecord("api_calls", "sub_1", "var_1", -1, 0, nil),
			wantErr: true,
		},
		{
			name:    "end before start",
			record:  NewUsageRecord("api_calls", "sub_1", "var_1", 1, 100, lo.ToPtr(int64(99))),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.wantErr {
				assert.True(t, ierr.IsValidation(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUsageRecordOverlaps(t *testing.T) {
	cycle := types.BillingCycle{Start: 100, End: 200}

	tests := []struct {
		name  string
		start int64
		end   *int64
		want  bool
	}{
		{"fully inside", 120, lo.ToPtr(int64(180)), true},
		{"straddles start", 50, lo.ToPtr(int64(150)), true},
		{"straddles end", 150, lo.ToPtr(int64(250)), true},
		{"covers cycle", 0, lo.ToPtr(int64(300)), true},
		{"open-ended before cycle", 0, nil, true},
		{"open-ended inside cycle", 150, nil, true},
		{"ends exactly at cycle start", 0, lo.ToPtr(int64(100)), false},
		{"ends just after cycle start", 0, lo.ToPtr(int64(101)), true},
		{"starts exactly at cycle end", 200, lo.ToPtr(int64(300)), false},
		{"starts just before cycle end", 199, nil, true},
		{"entirely before", 0, lo.ToPtr(int64(50)), false},
		{"entirely after", 250, lo.ToPtr(int64(300)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewUsageRecord("g", "s", "v", 1, tt.start, tt.end)
			assert.Equal(t, tt.want, r.Overlaps(cycle))
		})
	}
}

func TestUsageRecordClipTo(t *testing.T) {
	cycle := types.BillingCycle{Start: 100, End: 199}

	t.Run("clamps both bounds", func(t *testing.T) {
		r := NewUsageRecord("g", "s", "v", 1, 50, lo.ToPtr(int64(250)))
		clipped := r.ClipTo(cycle)
		assert.Equal(t, int64(100), clipped.Start)
		assert.Equal(t, int64(199), *clipped.End)

		// The original is untouched.
		assert.Equal(t, int64(50), r.Start)
		assert.Equal(t, int64(250), *r.End)
	})

	t.Run("open end becomes cycle end", func(t *testing.T) {
		r := NewUsageRecord("g", "s", "v", 1, 150, nil)
		clipped := r.ClipTo(cycle)
		assert.Equal(t, int64(150), clipped.Start)
		assert.NotNil(t, clipped.End)
		assert.Equal(t, int64(199), *clipped.End)
		assert.Nil(t, r.End)
	})

	t.Run("inside record is unchanged", func(t *testing.T) {
		r := NewUsageRecord("g", "s", "v", 1, 120, lo.ToPtr(int64(180)))
		clipped := r.ClipTo(cycle)
		assert.Equal(t, int64(120), clipped.Start)
		assert.Equal(t, int64(180), *clipped.End)
	})
}

func TestUsageRecordLength(t *testing.T) {
	assert.Equal(t, int64(10), NewUsageRecord("g", "s", "v", 1, 10, lo.ToPtr(int64(19))).Length())
	assert.Equal(t, int64(1), NewUsageRecord("g", "s", "v", 1, 10, lo.ToPtr(int64(10))).Length())
	assert.Equal(t, int64(0), NewUsageRecord("g", "s", "v", 1, 10, nil).Length())
}

func TestUsageRecordClone(t *testing.T) {
	r := NewUsageRecord("g", "s", "v", 1, 10, lo.ToPtr(int64(19)))
	r.ID = 42

	clone := r.Clone()
	clone.Quantity = 99
	*clone.End = 500

	assert.Equal(t, int64(42), clone.ID)
	assert.Equal(t, int64(1), r.Quantity)
	assert.Equal(t, int64(19), *r.End)
}

func TestUsageRecordPersisted(t *testing.T) {
	r := NewUsageRecord("g", "s", "v", 1, 0, nil)
	assert.False(t, r.Persisted())
	r.ID = 1
	assert.True(t, r.Persisted())
}
