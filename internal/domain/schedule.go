package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ScheduleRuleVariantType discriminates weekday rules from date rules.
type ScheduleRuleVariantType string

const (
	RuleVariantWeekday ScheduleRuleVariantType = "wday"
	RuleVariantDate    ScheduleRuleVariantType = "date"
)

// ScheduleRuleVariant keys a rule by either a weekday ("mon".."sun") or
// a specific date ("YYYY-MM-DD", local to the schedule's time zone).
type ScheduleRuleVariant struct {
	Type  ScheduleRuleVariantType `json:"type"`
	Value string                  `json:"value"`
}

// ScheduleRuleTime is a wall-clock time within a day.
type ScheduleRuleTime struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

func (t ScheduleRuleTime) before(other ScheduleRuleTime) bool {
	if t.Hours != other.Hours {
		return t.Hours < other.Hours
	}
	return t.Minutes < other.Minutes
}

func (t ScheduleRuleTime) after(other ScheduleRuleTime) bool {
	return other.before(t)
}

// ScheduleRuleInterval is one availability window within a day.
type ScheduleRuleInterval struct {
	Start ScheduleRuleTime `json:"start"`
	End   ScheduleRuleTime `json:"end"`
}

// ToInstance materialises the interval on a concrete day in the given
// location as a free instance. Times that do not exist on that day
// (daylight saving gaps) are normalised forward by the location rules;
// an interval that inverts after normalisation yields nothing.
func (i ScheduleRuleInterval) ToInstance(day Day, loc *time.Location) (EventInstance, bool) {
	start := time.Date(day.Year, time.Month(day.Month), day.Day, i.Start.Hours, i.Start.Minutes, 0, 0, loc)
	end := time.Date(day.Year, time.Month(day.Month), day.Day, i.End.Hours, i.End.Minutes, 0, 0, loc)
	if start.After(end) {
		return EventInstance{}, false
	}
	return EventInstance{
		StartTime: start.UTC(),
		EndTime:   end.UTC(),
		Busy:      false,
	}, true
}

// maxIntervalsPerRule bounds the windows a single rule may carry.
const maxIntervalsPerRule = 10

// ScheduleRule holds the availability windows for one weekday or date.
type ScheduleRule struct {
	Variant   ScheduleRuleVariant    `json:"variant"`
	Intervals []ScheduleRuleInterval `json:"intervals"`
}

// canonicalise sorts the intervals, merges overlaps, drops inverted
// entries and truncates to the maximum count.
func (r *ScheduleRule) canonicalise() {
	if len(r.Intervals) > maxIntervalsPerRule {
		r.Intervals = r.Intervals[:maxIntervalsPerRule]
	}
	sort.SliceStable(r.Intervals, func(a, b int) bool {
		return r.Intervals[a].Start.before(r.Intervals[b].Start)
	})
	kept := r.Intervals[:0]
	for _, interval := range r.Intervals {
		if interval.Start.after(interval.End) {
			continue
		}
		if len(kept) > 0 {
			last := &kept[len(kept)-1]
			if !interval.Start.after(last.End) {
				if interval.End.after(last.End) {
					last.End = interval.End
				}
				continue
			}
		}
		kept = append(kept, interval)
	}
	r.Intervals = kept
}

// Schedule is a user's availability template.
type Schedule struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"userId"`
	AccountID uuid.UUID      `json:"accountId"`
	Rules     []ScheduleRule `json:"rules"`
	Timezone  string         `json:"timezone"`
	Metadata  Metadata       `json:"metadata,omitempty"`
}

// NewSchedule creates a schedule with the default weekday rules:
// Mon-Fri 09:00-17:30, weekends off.
func NewSchedule(userID, accountID uuid.UUID, timezone string) *Schedule {
	return &Schedule{
		ID:        uuid.New(),
		UserID:    userID,
		AccountID: accountID,
		Rules:     defaultScheduleRules(),
		Timezone:  timezone,
	}
}

func defaultScheduleRules() []ScheduleRule {
	weekdays := []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
		time.Friday, time.Saturday, time.Sunday,
	}
	rules := make([]ScheduleRule, 0, len(weekdays))
	for _, weekday := range weekdays {
		var intervals []ScheduleRuleInterval
		if weekday != time.Saturday && weekday != time.Sunday {
			intervals = []ScheduleRuleInterval{{
				Start: ScheduleRuleTime{Hours: 9},
				End:   ScheduleRuleTime{Hours: 17, Minutes: 30},
			}}
		}
		rules = append(rules, ScheduleRule{
			Variant:   ScheduleRuleVariant{Type: RuleVariantWeekday, Value: FormatWeekday(weekday)},
			Intervals: intervals,
		})
	}
	return rules
}

// Location resolves the schedule's IANA time zone.
func (s *Schedule) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

// SetRules canonicalises and installs the rules. Date rules further than
// two days in the past or beyond the start of the year five years out
// are dropped.
func (s *Schedule) SetRules(rules []ScheduleRule, now time.Time) {
	minDate := now.Add(-2 * 24 * time.Hour)
	maxDate := time.Date(now.Year()+5, time.January, 1, 0, 0, 0, 0, time.UTC)
	loc, err := s.Location()
	if err != nil {
		loc = time.UTC
	}

	allowed := make([]ScheduleRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Variant.Type == RuleVariantDate {
			day, err := ParseDay(rule.Variant.Value)
			if err != nil {
				continue
			}
			date := day.Date(loc)
			if !date.After(minDate) || !date.Before(maxDate) {
				continue
			}
			// canonical key format so lookups are padding-insensitive
			rule.Variant.Value = day.String()
		}
		rule.canonicalise()
		allowed = append(allowed, rule)
	}
	s.Rules = allowed
}

// FreeBusy evaluates the schedule day by day across the window in the
// schedule's time zone. Date rules override weekday rules for their
// date. The result is bounded to the window.
func (s *Schedule) FreeBusy(tspan TimeSpan) (*CompatibleInstances, error) {
	loc, err := s.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid schedule timezone %q: %w", s.Timezone, err)
	}
	start := tspan.Start.In(loc)
	end := tspan.End.In(loc)

	dateRules := make(map[string][]ScheduleRuleInterval)
	weekdayRules := make(map[time.Weekday][]ScheduleRuleInterval)
	for _, rule := range s.Rules {
		switch rule.Variant.Type {
		case RuleVariantDate:
			if day, err := ParseDay(rule.Variant.Value); err == nil {
				dateRules[day.String()] = rule.Intervals
			}
		case RuleVariantWeekday:
			if weekday, err := ParseWeekday(rule.Variant.Value); err == nil {
				weekdayRules[weekday] = rule.Intervals
			}
		}
	}

	free := NewCompatibleInstances(nil)
	cursor := Day{Year: start.Year(), Month: int(start.Month()), Day: start.Day()}
	last := Day{Year: end.Year(), Month: int(end.Month()), Day: end.Day()}

	for !last.Before(cursor) {
		intervals, found := dateRules[cursor.String()]
		if !found {
			intervals = weekdayRules[cursor.Weekday(loc)]
		}
		for _, interval := range intervals {
			if instance, ok := interval.ToInstance(cursor, loc); ok {
				free.PushBack(instance)
			}
		}
		cursor.Inc()
	}

	free.RemoveAllBefore(tspan.Start)
	free.RemoveAllAfter(tspan.End)
	return free, nil
}

// UnmarshalJSON validates the variant type while decoding.
func (v *ScheduleRuleVariant) UnmarshalJSON(data []byte) error {
	type alias ScheduleRuleVariant
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	if decoded.Type != RuleVariantWeekday && decoded.Type != RuleVariantDate {
		return fmt.Errorf("invalid schedule rule variant: %q", decoded.Type)
	}
	*v = ScheduleRuleVariant(decoded)
	return nil
}
