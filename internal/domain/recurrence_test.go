package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWeekDaySelector(t *testing.T) {
	valid := map[string]WeekDaySelector{
		"mon":    {Weekday: time.Monday},
		"sun":    {Weekday: time.Sunday},
		"1mon":   {N: 1, Weekday: time.Monday},
		"17mon":  {N: 17, Weekday: time.Monday},
		"170mon": {N: 170, Weekday: time.Monday},
		"+2mon":  {N: 2, Weekday: time.Monday},
		"+22mon": {N: 22, Weekday: time.Monday},
		"-2mon":  {N: -2, Weekday: time.Monday},
		"-22mon": {N: -22, Weekday: time.Monday},
	}
	for input, expected := range valid {
		parsed, err := ParseWeekDaySelector(input)
		require.NoError(t, err, input)
		assert.Equal(t, expected, parsed, input)
	}

	invalid := []string{
		"", "-1", "7", "00", "-1!?", "-1WEDn", "-1mond", "mond",
		"1000mon", "0mon", "000mon", "+0mon",
	}
	for _, input := range invalid {
		_, err := ParseWeekDaySelector(input)
		assert.Error(t, err, input)
	}
}

func TestWeekDaySelectorString(t *testing.T) {
	assert.Equal(t, "Mon", WeekDaySelector{Weekday: time.Monday}.String())
	assert.Equal(t, "Tue", WeekDaySelector{Weekday: time.Tuesday}.String())
	assert.Equal(t, "Sun", WeekDaySelector{Weekday: time.Sunday}.String())
	assert.Equal(t, "1Sun", WeekDaySelector{N: 1, Weekday: time.Sunday}.String())
	assert.Equal(t, "-1Sun", WeekDaySelector{N: -1, Weekday: time.Sunday}.String())
}

func TestWeekDaySelectorJSONRoundTrip(t *testing.T) {
	selector := WeekDaySelector{N: -2, Weekday: time.Wednesday}
	data, err := json.Marshal(selector)
	require.NoError(t, err)
	assert.Equal(t, `"-2Wed"`, string(data))

	var decoded WeekDaySelector
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, selector, decoded)
}

func TestRecurrenceRuleValid(t *testing.T) {
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("count bounds", func(t *testing.T) {
		rule := RecurrenceRule{Freq: FreqDaily, Interval: 1, Count: intPtr(0)}
		assert.False(t, rule.Valid(start))

		rule.Count = intPtr(740)
		assert.False(t, rule.Valid(start))

		rule.Count = intPtr(739)
		assert.True(t, rule.Valid(start))
	})

	t.Run("bysetpos needs another by rule", func(t *testing.T) {
		rule := RecurrenceRule{Freq: FreqMonthly, Interval: 1, Bysetpos: []int{1}}
		assert.False(t, rule.Valid(start))

		rule.Byweekday = []WeekDaySelector{{Weekday: time.Monday}}
		assert.True(t, rule.Valid(start))
	})

	t.Run("nth weekday only for monthly and yearly", func(t *testing.T) {
		nth, err := NewNthWeekDaySelector(time.Monday, 2)
		require.NoError(t, err)

		rule := RecurrenceRule{Freq: FreqWeekly, Interval: 1, Byweekday: []WeekDaySelector{nth}}
		assert.False(t, rule.Valid(start))

		rule.Freq = FreqMonthly
		assert.True(t, rule.Valid(start))

		rule.Freq = FreqYearly
		assert.True(t, rule.Valid(start))
	})

	t.Run("until before start", func(t *testing.T) {
		until := start.Add(-time.Hour)
		rule := RecurrenceRule{Freq: FreqDaily, Interval: 1, Until: &until}
		assert.False(t, rule.Valid(start))

		after := start.Add(time.Hour)
		rule.Until = &after
		assert.True(t, rule.Valid(start))
	})

	t.Run("count and until are mutually exclusive", func(t *testing.T) {
		until := start.AddDate(0, 1, 0)
		rule := RecurrenceRule{Freq: FreqDaily, Interval: 1, Count: intPtr(5), Until: &until}
		assert.False(t, rule.Valid(start))
	})

	t.Run("interval must be positive", func(t *testing.T) {
		rule := RecurrenceRule{Freq: FreqDaily, Interval: 0}
		assert.False(t, rule.Valid(start))
	})
}

func TestToROptionWeekstartFallback(t *testing.T) {
	start := time.Date(2021, 1, 1, 9, 30, 0, 0, time.UTC)
	settings := CalendarSettings{Timezone: "UTC", WeekStart: time.Sunday}

	rule := RecurrenceRule{Freq: FreqWeekly, Interval: 1}
	opt, err := rule.ToROption(start, settings)
	require.NoError(t, err)
	assert.Equal(t, weekdayToRRule(time.Sunday), opt.Wkst)

	wednesday := time.Wednesday
	rule.Weekstart = &wednesday
	opt, err = rule.ToROption(start, settings)
	require.NoError(t, err)
	assert.Equal(t, weekdayToRRule(time.Wednesday), opt.Wkst)

	// the series wall-clock time is pinned from the local dtstart
	assert.Equal(t, []int{9}, opt.Byhour)
	assert.Equal(t, []int{30}, opt.Byminute)
	assert.Equal(t, []int{0}, opt.Bysecond)
}
