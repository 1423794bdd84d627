package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Frequency of a recurrence rule.
type Frequency string

const (
	FreqYearly  Frequency = "yearly"
	FreqMonthly Frequency = "monthly"
	FreqWeekly  Frequency = "weekly"
	FreqDaily   Frequency = "daily"
)

// Valid reports whether the frequency is one of the supported values.
func (f Frequency) Valid() bool {
	switch f {
	case FreqYearly, FreqMonthly, FreqWeekly, FreqDaily:
		return true
	}
	return false
}

func (f Frequency) toRRule() rrule.Frequency {
	switch f {
	case FreqYearly:
		return rrule.YEARLY
	case FreqMonthly:
		return rrule.MONTHLY
	case FreqWeekly:
		return rrule.WEEKLY
	default:
		return rrule.DAILY
	}
}

const maxWeekdayOrdinal = 499

// WeekDaySelector selects a weekday, optionally qualified with an
// ordinal N meaning the N-th such weekday within the enclosing period.
// The wire form is e.g. "Mon", "1Sun" or "-2Wed".
type WeekDaySelector struct {
	N       int
	Weekday time.Weekday
}

// NewWeekDaySelector builds an unqualified selector.
func NewWeekDaySelector(weekday time.Weekday) WeekDaySelector {
	return WeekDaySelector{Weekday: weekday}
}

// NewNthWeekDaySelector builds a qualified selector. The ordinal must be
// non-zero and within (-500, 500).
func NewNthWeekDaySelector(weekday time.Weekday, n int) (WeekDaySelector, error) {
	if n == 0 || n > maxWeekdayOrdinal || n < -maxWeekdayOrdinal {
		return WeekDaySelector{}, fmt.Errorf("invalid weekday ordinal: %d", n)
	}
	return WeekDaySelector{N: n, Weekday: weekday}, nil
}

// ParseWeekDaySelector parses the wire form of a selector.
func ParseWeekDaySelector(s string) (WeekDaySelector, error) {
	if len(s) < 3 {
		return WeekDaySelector{}, fmt.Errorf("malformed weekday: %q", s)
	}
	weekday, err := ParseWeekday(s[len(s)-3:])
	if err != nil {
		return WeekDaySelector{}, fmt.Errorf("malformed weekday: %q", s)
	}
	if len(s) == 3 {
		return NewWeekDaySelector(weekday), nil
	}
	prefix := s[:len(s)-3]
	if strings.HasPrefix(prefix, "+") {
		prefix = prefix[1:]
	}
	if len(prefix) > 1 && prefix[0] == '0' || prefix == "0" {
		return WeekDaySelector{}, fmt.Errorf("malformed weekday: %q", s)
	}
	n, err := strconv.Atoi(prefix)
	if err != nil {
		return WeekDaySelector{}, fmt.Errorf("malformed weekday: %q", s)
	}
	return NewNthWeekDaySelector(weekday, n)
}

// String renders the wire form, e.g. "Mon" or "-2Wed".
func (w WeekDaySelector) String() string {
	name := w.Weekday.String()[:3]
	if w.N == 0 {
		return name
	}
	return fmt.Sprintf("%d%s", w.N, name)
}

// MarshalJSON renders the selector as its wire string.
func (w WeekDaySelector) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.String())
}

// UnmarshalJSON parses the selector from its wire string.
func (w *WeekDaySelector) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseWeekDaySelector(s)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

func (w WeekDaySelector) toRRule() rrule.Weekday {
	var day rrule.Weekday
	switch w.Weekday {
	case time.Monday:
		day = rrule.MO
	case time.Tuesday:
		day = rrule.TU
	case time.Wednesday:
		day = rrule.WE
	case time.Thursday:
		day = rrule.TH
	case time.Friday:
		day = rrule.FR
	case time.Saturday:
		day = rrule.SA
	default:
		day = rrule.SU
	}
	if w.N != 0 {
		return day.Nth(w.N)
	}
	return day
}

func weekdayToRRule(w time.Weekday) rrule.Weekday {
	return NewWeekDaySelector(w).toRRule()
}

// maxRecurrenceCount bounds the count field of a recurrence rule. Larger
// series must use until or stay unbounded.
const maxRecurrenceCount = 739

// RecurrenceRule is the declarative recurrence descriptor of an event.
type RecurrenceRule struct {
	Freq       Frequency         `json:"freq"`
	Interval   int               `json:"interval"`
	Count      *int              `json:"count,omitempty"`
	Until      *time.Time        `json:"until,omitempty"`
	Bysetpos   []int             `json:"bysetpos,omitempty"`
	Byweekday  []WeekDaySelector `json:"byweekday,omitempty"`
	Bymonthday []int             `json:"bymonthday,omitempty"`
	Bymonth    []int             `json:"bymonth,omitempty"`
	Byyearday  []int             `json:"byyearday,omitempty"`
	Byweekno   []int             `json:"byweekno,omitempty"`
	Weekstart  *time.Weekday     `json:"weekstart,omitempty"`
}

// Valid checks the rule against the event start time. Callers must not
// persist an invalid rule.
func (r *RecurrenceRule) Valid(startTime time.Time) bool {
	if !r.Freq.Valid() || r.Interval < 1 {
		return false
	}
	if r.Count != nil && (*r.Count < 1 || *r.Count > maxRecurrenceCount) {
		return false
	}
	if r.Count != nil && r.Until != nil {
		return false
	}
	if r.Until != nil && r.Until.Before(startTime) {
		return false
	}
	if len(r.Bysetpos) > 0 &&
		len(r.Byweekday) == 0 &&
		len(r.Byweekno) == 0 &&
		len(r.Bymonth) == 0 &&
		len(r.Bymonthday) == 0 &&
		len(r.Byyearday) == 0 {
		// bysetpos needs another by* rule to select from
		return false
	}
	if r.Freq != FreqMonthly && r.Freq != FreqYearly {
		for _, wd := range r.Byweekday {
			if wd.N != 0 {
				return false
			}
		}
	}
	return true
}

// Bounded reports whether the rule produces a finite series.
func (r *RecurrenceRule) Bounded() bool {
	return r.Count != nil || r.Until != nil
}

// ToROption translates the rule into an rrule option set rooted at the
// event start in the calendar's time zone. The weekstart falls back to
// the calendar's when the rule does not carry its own.
func (r *RecurrenceRule) ToROption(startTime time.Time, settings CalendarSettings) (*rrule.ROption, error) {
	loc, err := settings.Location()
	if err != nil {
		return nil, err
	}
	dtstart := startTime.In(loc)

	weekstart := settings.WeekStart
	if r.Weekstart != nil {
		weekstart = *r.Weekstart
	}

	byweekday := make([]rrule.Weekday, 0, len(r.Byweekday))
	for _, wd := range r.Byweekday {
		byweekday = append(byweekday, wd.toRRule())
	}

	opt := &rrule.ROption{
		Freq:       r.Freq.toRRule(),
		Dtstart:    dtstart,
		Interval:   r.Interval,
		Wkst:       weekdayToRRule(weekstart),
		Bysetpos:   r.Bysetpos,
		Byweekday:  byweekday,
		Bymonthday: r.Bymonthday,
		Bymonth:    r.Bymonth,
		Byyearday:  r.Byyearday,
		Byweekno:   r.Byweekno,
		// pin the local wall-clock time of the series to dtstart
		Byhour:   []int{dtstart.Hour()},
		Byminute: []int{dtstart.Minute()},
		Bysecond: []int{dtstart.Second()},
	}
	if r.Count != nil {
		opt.Count = *r.Count
	}
	if r.Until != nil {
		opt.Until = r.Until.UTC()
	}
	return opt, nil
}
