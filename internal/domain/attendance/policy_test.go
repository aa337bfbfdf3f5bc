package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShiftPolicy_Annotate(t *testing.T) {
	policy := ShiftPolicy{Start: 9 * time.Hour, End: 17 * time.Hour, GraceMinutes: 5}

	t.Run("within grace", func(t *testing.T) {
		r := NewRecord("emp-1", testDay)
		require.NoError(t, r.Apply(CommandCheckIn, at(9, 5), ""))
		policy.Annotate(&r, CommandCheckIn, at(9, 5))
		assert.False(t, r.IsLate)
		assert.Zero(t, r.LateMinutes)
	})

	t.Run("late counts from shift start", func(t *testing.T) {
		r := NewRecord("emp-1", testDay)
		require.NoError(t, r.Apply(CommandCheckIn, at(9, 20), ""))
		policy.Annotate(&r, CommandCheckIn, at(9, 20))
		assert.True(t, r.IsLate)
		assert.Equal(t, 20, r.LateMinutes)
	})

	t.Run("early departure", func(t *testing.T) {
		r := NewRecord("emp-1", testDay)
		require.NoError(t, r.Apply(CommandCheckIn, at(9, 0), ""))
		require.NoError(t, r.Apply(CommandCheckOut, at(16, 30), ""))
		policy.Annotate(&r, CommandCheckOut, at(16, 30))
		assert.True(t, r.EarlyDeparture)
		assert.Equal(t, 30, r.EarlyMinutes)
		assert.Zero(t, r.OvertimeMinutes)
	})

	t.Run("overtime", func(t *testing.T) {
		r := NewRecord("emp-1", testDay)
		require.NoError(t, r.Apply(CommandCheckIn, at(9, 0), ""))
		require.NoError(t, r.Apply(CommandCheckOut, at(18, 0), ""))
		policy.Annotate(&r, CommandCheckOut, at(18, 0))
		assert.False(t, r.EarlyDeparture)
		assert.Equal(t, 60, r.OvertimeMinutes)
	})

	t.Run("break commands leave annotations alone", func(t *testing.T) {
		r := NewRecord("emp-1", testDay)
		r.IsLate, r.LateMinutes = true, 7
		policy.Annotate(&r, CommandStartLunch, at(12, 0))
		assert.True(t, r.IsLate)
		assert.Equal(t, 7, r.LateMinutes)
	})
}

func TestParseClockOffset(t *testing.T) {
	d, err := ParseClockOffset("08:45")
	require.NoError(t, err)
	assert.Equal(t, 8*time.Hour+45*time.Minute, d)

	_, err = ParseClockOffset("8am")
	assert.Error(t, err)
}
