package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayStart(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	require.NoError(t, err)

	// 2024-03-10 20:30 UTC is already 2024-03-11 03:30 in Jakarta.
	ts := time.Date(2024, 3, 10, 20, 30, 0, 0, time.UTC)

	got := DayStart(ts, jakarta)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, jakarta), got)

	gotUTC := DayStart(ts, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), gotUTC)
}

func TestSameDay(t *testing.T) {
	a := time.Date(2024, 3, 10, 0, 0, 1, 0, time.UTC)
	b := time.Date(2024, 3, 10, 23, 59, 59, 0, time.UTC)
	c := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

	assert.True(t, SameDay(a, b, time.UTC))
	assert.False(t, SameDay(b, c, time.UTC))
}

func TestParseDay(t *testing.T) {
	got, err := ParseDay("2024-02-29", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseDay("2024-02-30", time.UTC)
	assert.Error(t, err)
}

func TestFunc(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	var c Clock = Func(func() time.Time { return fixed })
	assert.Equal(t, fixed, c.Now())
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	loc, err = LoadLocation("UTC")
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	_, err = LoadLocation("Mars/Olympus")
	assert.Error(t, err)
}
