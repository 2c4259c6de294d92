package access_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commonshub/hubdoor/internal/hubdoor/access"
)

// monday is 2026-03-02, a Monday, at midnight UTC.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(day time.Weekday, hour int) time.Time {
	return monday.AddDate(0, 0, int(day-time.Monday+7)%7).Add(time.Duration(hour) * time.Hour)
}

func TestAlways_OpenAtEveryHourOfTheWeek(t *testing.T) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		for h := 0; h < 24; h++ {
			assert.True(t, access.Always.IsOpen(at(d, h)), "%s %02d:00", d, h)
		}
	}
}

func TestSchedule_HourBoundsInclusive(t *testing.T) {
	s, err := access.ParseSchedule(nil, "9-17")
	require.NoError(t, err)

	assert.False(t, s.IsOpen(at(time.Wednesday, 8)))
	assert.True(t, s.IsOpen(at(time.Wednesday, 9)))
	assert.True(t, s.IsOpen(at(time.Wednesday, 17)))
	assert.False(t, s.IsOpen(at(time.Wednesday, 18)))
}

func TestSchedule_DayRestriction(t *testing.T) {
	s, err := access.ParseSchedule([]string{"Monday", "friday"}, access.Anytime)
	require.NoError(t, err)

	assert.True(t, s.IsOpen(at(time.Monday, 3)))
	assert.True(t, s.IsOpen(at(time.Friday, 23)))
	assert.False(t, s.IsOpen(at(time.Tuesday, 12)))
}

func TestSchedule_BothChecksMustPass(t *testing.T) {
	s, err := access.ParseSchedule([]string{"Saturday"}, "10-12")
	require.NoError(t, err)

	assert.True(t, s.IsOpen(at(time.Saturday, 11)))
	assert.False(t, s.IsOpen(at(time.Saturday, 13)))
	assert.False(t, s.IsOpen(at(time.Sunday, 11)))
}

func TestParseSchedule_AnytimeSentinels(t *testing.T) {
	s, err := access.ParseSchedule([]string{"anytime"}, "anytime")
	require.NoError(t, err)
	assert.Equal(t, access.Always, s)
	assert.Equal(t, "anytime", s.String())
}

func TestParseHours_Invalid(t *testing.T) {
	for _, in := range []string{"9", "a-b", "18-9", "-1-5", "0-24"} {
		_, err := access.ParseHours(in)
		assert.Error(t, err, in)
	}
}

func TestParseDays_UnknownDay(t *testing.T) {
	_, err := access.ParseDays([]string{"Funday"})
	assert.Error(t, err)

	_, err = access.ParseDays([]string{})
	assert.Error(t, err)
}

func TestSchedule_String(t *testing.T) {
	s, err := access.ParseSchedule([]string{"Monday", "Tuesday"}, "8-20")
	require.NoError(t, err)
	assert.Equal(t, "on Monday, Tuesday between 8 and 20", s.String())

	s, err = access.ParseSchedule(nil, "8-20")
	require.NoError(t, err)
	assert.Equal(t, "any day between 8 and 20", s.String())
}
