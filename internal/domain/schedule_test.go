package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleDefaultRules(t *testing.T) {
	schedule := NewSchedule(uuid.New(), uuid.New(), "UTC")
	require.Len(t, schedule.Rules, 7)

	byWeekday := make(map[string]ScheduleRule)
	for _, rule := range schedule.Rules {
		byWeekday[rule.Variant.Value] = rule
	}
	assert.Len(t, byWeekday["mon"].Intervals, 1)
	assert.Equal(t, ScheduleRuleTime{Hours: 9}, byWeekday["mon"].Intervals[0].Start)
	assert.Equal(t, ScheduleRuleTime{Hours: 17, Minutes: 30}, byWeekday["mon"].Intervals[0].End)
	assert.Empty(t, byWeekday["sat"].Intervals)
	assert.Empty(t, byWeekday["sun"].Intervals)
}

func TestScheduleRuleCanonicalise(t *testing.T) {
	t.Run("sorts and merges overlaps", func(t *testing.T) {
		rule := ScheduleRule{
			Variant: ScheduleRuleVariant{Type: RuleVariantWeekday, Value: "mon"},
			Intervals: []ScheduleRuleInterval{
				{Start: ScheduleRuleTime{Hours: 12}, End: ScheduleRuleTime{Hours: 14}},
				{Start: ScheduleRuleTime{Hours: 9}, End: ScheduleRuleTime{Hours: 13}},
				{Start: ScheduleRuleTime{Hours: 16}, End: ScheduleRuleTime{Hours: 17}},
			},
		}
		rule.canonicalise()
		assert.Equal(t, []ScheduleRuleInterval{
			{Start: ScheduleRuleTime{Hours: 9}, End: ScheduleRuleTime{Hours: 14}},
			{Start: ScheduleRuleTime{Hours: 16}, End: ScheduleRuleTime{Hours: 17}},
		}, rule.Intervals)
	})

	t.Run("drops inverted intervals", func(t *testing.T) {
		rule := ScheduleRule{
			Intervals: []ScheduleRuleInterval{
				{Start: ScheduleRuleTime{Hours: 14}, End: ScheduleRuleTime{Hours: 9}},
			},
		}
		rule.canonicalise()
		assert.Empty(t, rule.Intervals)
	})

	t.Run("caps at ten intervals", func(t *testing.T) {
		var intervals []ScheduleRuleInterval
		for hour := 0; hour < 24; hour += 2 {
			intervals = append(intervals, ScheduleRuleInterval{
				Start: ScheduleRuleTime{Hours: hour},
				End:   ScheduleRuleTime{Hours: hour, Minutes: 30},
			})
		}
		rule := ScheduleRule{Intervals: intervals}
		rule.canonicalise()
		assert.Len(t, rule.Intervals, 10)
	})
}

func TestScheduleSetRulesDateAdmission(t *testing.T) {
	schedule := NewSchedule(uuid.New(), uuid.New(), "UTC")
	now := time.Date(2022, 6, 15, 12, 0, 0, 0, time.UTC)

	interval := ScheduleRuleInterval{
		Start: ScheduleRuleTime{Hours: 9},
		End:   ScheduleRuleTime{Hours: 12},
	}
	rules := []ScheduleRule{
		{Variant: ScheduleRuleVariant{Type: RuleVariantDate, Value: "2022-06-20"}, Intervals: []ScheduleRuleInterval{interval}},
		{Variant: ScheduleRuleVariant{Type: RuleVariantDate, Value: "2022-06-01"}, Intervals: []ScheduleRuleInterval{interval}},
		{Variant: ScheduleRuleVariant{Type: RuleVariantDate, Value: "2030-01-01"}, Intervals: []ScheduleRuleInterval{interval}},
		{Variant: ScheduleRuleVariant{Type: RuleVariantDate, Value: "not-a-date"}, Intervals: []ScheduleRuleInterval{interval}},
		{Variant: ScheduleRuleVariant{Type: RuleVariantWeekday, Value: "mon"}, Intervals: []ScheduleRuleInterval{interval}},
	}
	schedule.SetRules(rules, now)

	require.Len(t, schedule.Rules, 2)
	assert.Equal(t, "2022-6-20", schedule.Rules[0].Variant.Value)
	assert.Equal(t, "mon", schedule.Rules[1].Variant.Value)
}

func TestScheduleFreeBusy(t *testing.T) {
	schedule := NewSchedule(uuid.New(), uuid.New(), "UTC")
	// Mon 2022-06-13 .. Sun 2022-06-19
	tspan := TimeSpan{
		Start: time.Date(2022, 6, 13, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2022, 6, 20, 0, 0, 0, 0, time.UTC),
	}

	free, err := schedule.FreeBusy(tspan)
	require.NoError(t, err)
	// default rules: five working days
	require.Equal(t, 5, free.Len())
	first, _ := free.Get(0)
	assert.Equal(t, time.Date(2022, 6, 13, 9, 0, 0, 0, time.UTC), first.StartTime)
	assert.Equal(t, time.Date(2022, 6, 13, 17, 30, 0, 0, time.UTC), first.EndTime)
	assert.False(t, first.Busy)
}

func TestScheduleFreeBusyDateOverridesWeekday(t *testing.T) {
	schedule := NewSchedule(uuid.New(), uuid.New(), "UTC")
	now := time.Date(2022, 6, 10, 0, 0, 0, 0, time.UTC)
	schedule.SetRules([]ScheduleRule{
		{
			Variant: ScheduleRuleVariant{Type: RuleVariantWeekday, Value: "mon"},
			Intervals: []ScheduleRuleInterval{{
				Start: ScheduleRuleTime{Hours: 9},
				End:   ScheduleRuleTime{Hours: 17},
			}},
		},
		{
			// Monday 2022-06-13 gets a shorter day
			Variant: ScheduleRuleVariant{Type: RuleVariantDate, Value: "2022-06-13"},
			Intervals: []ScheduleRuleInterval{{
				Start: ScheduleRuleTime{Hours: 10},
				End:   ScheduleRuleTime{Hours: 12},
			}},
		},
	}, now)

	tspan := TimeSpan{
		Start: time.Date(2022, 6, 13, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2022, 6, 21, 0, 0, 0, 0, time.UTC),
	}
	free, err := schedule.FreeBusy(tspan)
	require.NoError(t, err)
	require.Equal(t, 2, free.Len())

	override, _ := free.Get(0)
	assert.Equal(t, time.Date(2022, 6, 13, 10, 0, 0, 0, time.UTC), override.StartTime)
	assert.Equal(t, time.Date(2022, 6, 13, 12, 0, 0, 0, time.UTC), override.EndTime)

	regular, _ := free.Get(1)
	assert.Equal(t, time.Date(2022, 6, 20, 9, 0, 0, 0, time.UTC), regular.StartTime)
}

func TestScheduleFreeBusyBoundsToWindow(t *testing.T) {
	schedule := NewSchedule(uuid.New(), uuid.New(), "UTC")
	// window starts mid-morning on a Monday and ends mid-afternoon
	tspan := TimeSpan{
		Start: time.Date(2022, 6, 13, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2022, 6, 13, 15, 0, 0, 0, time.UTC),
	}
	free, err := schedule.FreeBusy(tspan)
	require.NoError(t, err)
	require.Equal(t, 1, free.Len())
	only, _ := free.Get(0)
	assert.Equal(t, tspan.Start, only.StartTime)
	assert.Equal(t, tspan.End, only.EndTime)
}

func TestScheduleFreeBusyInTimezone(t *testing.T) {
	schedule := NewSchedule(uuid.New(), uuid.New(), "America/New_York")
	tspan := TimeSpan{
		Start: time.Date(2022, 6, 13, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2022, 6, 14, 12, 0, 0, 0, time.UTC),
	}
	free, err := schedule.FreeBusy(tspan)
	require.NoError(t, err)
	require.True(t, free.Len() >= 1)
	first, _ := free.Get(0)
	// 09:00 EDT on Monday is 13:00Z
	assert.Equal(t, time.Date(2022, 6, 13, 13, 0, 0, 0, time.UTC), first.StartTime)
}
