package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateRange_OpenBounds(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "  ", "undefined"} {
		r, err := ParseDateRange(raw, raw, time.UTC)
		require.NoError(t, err, "input %q", raw)
		assert.True(t, r.IsZero(), "input %q", raw)
		assert.True(t, r.Contains(time.Now()))
	}
}

func TestParseDateRange_CalendarDates(t *testing.T) {
	t.Parallel()

	r, err := ParseDateRange("2024-01-15", "2024-01-20", time.UTC)
	require.NoError(t, err)
	require.NotNil(t, r.Since)
	require.NotNil(t, r.Until)

	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), *r.Since)
	assert.True(t, r.Contains(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)), "start is inclusive")
	assert.True(t, r.Contains(time.Date(2024, 1, 20, 23, 59, 59, 0, time.UTC)), "end date covers the whole day")
	assert.False(t, r.Contains(time.Date(2024, 1, 21, 0, 0, 0, 0, time.UTC)))
	assert.False(t, r.Contains(time.Date(2024, 1, 14, 23, 59, 59, 0, time.UTC)))
}

func TestParseDateRange_Timestamps(t *testing.T) {
	t.Parallel()

	r, err := ParseDateRange("2024-01-15T10:30:00Z", "2024-01-15T12:00:00-03:00", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), *r.Since)
	assert.Equal(t, time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC), *r.Until)
}

func TestParseDateRange_Location(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("ART", -3*60*60)
	r, err := ParseDateRange("2024-01-15", "", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 3, 0, 0, 0, time.UTC), *r.Since)
	assert.Nil(t, r.Until)
}

func TestParseDateRange_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct{ start, end string }{
		{"not-a-date", ""},
		{"", "2024-13-45"},
		{"2024-02-01", "2024-01-01"},
	}
	for _, tc := range tests {
		_, err := ParseDateRange(tc.start, tc.end, time.UTC)
		assert.ErrorIs(t, err, ErrInvalidDateRange, "start=%q end=%q", tc.start, tc.end)
	}
}
