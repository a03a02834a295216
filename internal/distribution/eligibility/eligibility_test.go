package eligibility

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCalendarDay(t *testing.T) {
	kinshasa, err := time.LoadLocation("Africa/Kinshasa")
	require.NoError(t, err)
	rule := CalendarDay(kinshasa)

	at := func(day, hour, minute int) time.Time {
		return time.Date(2026, 3, day, hour, minute, 0, 0, kinshasa)
	}

	t.Run("no history is eligible", func(t *testing.T) {
		res := Check(rule, nil, at(1, 10, 0))
		assert.True(t, res.Eligible)
		assert.Nil(t, res.LastDistributionAt)
	})

	t.Run("same day is blocked", func(t *testing.T) {
		last := at(1, 0, 5)
		res := Check(rule, &last, at(1, 23, 59))
		assert.False(t, res.Eligible)
		assert.Equal(t, last, *res.LastDistributionAt)
		assert.Equal(t, at(2, 0, 0), *res.NextEligibleAt)
		assert.NotEmpty(t, res.Reason)
	})

	t.Run("23:59 then 00:01 next day are both eligible", func(t *testing.T) {
		last := at(1, 23, 59)
		res := Check(rule, &last, at(2, 0, 1))
		assert.True(t, res.Eligible)
	})

	t.Run("calendar date is taken in the configured zone", func(t *testing.T) {
		// 23:30 UTC on the 1st is 00:30 on the 2nd in Kinshasa (UTC+1).
		last := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
		res := Check(rule, &last, at(2, 12, 0))
		assert.False(t, res.Eligible)
	})
}

func TestCheckCycle(t *testing.T) {
	rule := Cycle(6)
	last := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	res := Check(rule, &last, time.Date(2026, 7, 15, 9, 59, 0, 0, time.UTC))
	assert.False(t, res.Eligible)
	assert.Equal(t, time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC), *res.NextEligibleAt)

	res = Check(rule, &last, time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC))
	assert.True(t, res.Eligible)
	assert.Equal(t, "ONCE_PER_CYCLE(6)", rule.String())
}

func TestWindowKey(t *testing.T) {
	kinshasa, err := time.LoadLocation("Africa/Kinshasa")
	require.NoError(t, err)

	assert.Equal(t, "2026-03-02", CalendarDay(kinshasa).WindowKey(time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)))
	assert.Equal(t, "", Cycle(6).WindowKey(time.Now()))
}
