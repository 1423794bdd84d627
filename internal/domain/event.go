package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
)

// CalendarEventStatus is the scheduling status of an event.
type CalendarEventStatus string

const (
	StatusTentative CalendarEventStatus = "tentative"
	StatusConfirmed CalendarEventStatus = "confirmed"
	StatusCancelled CalendarEventStatus = "cancelled"
)

// Valid reports whether the status is one of the supported values.
func (s CalendarEventStatus) Valid() bool {
	switch s {
	case StatusTentative, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// maxReminderDeltaMinutes is a year's worth of minutes; reminders cannot
// fire further from their occurrence than that.
const maxReminderDeltaMinutes = 60 * 24 * 31 * 12

// CalendarEventReminder is one reminder attached to an event. Delta is
// in minutes relative to each occurrence start; negative means before.
type CalendarEventReminder struct {
	Delta      int64  `json:"delta"`
	Identifier string `json:"identifier"`
}

// Valid reports whether the delta is within the supported range.
func (r CalendarEventReminder) Valid() bool {
	return r.Delta >= -maxReminderDeltaMinutes && r.Delta <= maxReminderDeltaMinutes
}

// maxExpansionCount caps the number of occurrences a single expansion
// call may produce. Callers needing more split the window.
const maxExpansionCount = 100

var (
	ErrExceptionWithoutOriginalStart = errors.New("exception event requires original_start_time")
	ErrExceptionWithRecurrence       = errors.New("exception event cannot itself recur")
	ErrNegativeDuration              = errors.New("event duration must be non-negative")
	ErrInvalidReminder               = errors.New("reminder delta out of range")
	ErrInvalidRecurrence             = errors.New("invalid recurrence rule")
)

// CalendarEvent is a stored event, possibly recurring, possibly an
// exception replacing one occurrence of a recurring parent.
type CalendarEvent struct {
	ID               uuid.UUID               `json:"id"`
	AccountID        uuid.UUID               `json:"account_id"`
	UserID           uuid.UUID               `json:"user_id"`
	CalendarID       uuid.UUID               `json:"calendar_id"`
	ExternalID       *string                 `json:"external_id,omitempty"`
	ExternalParentID *string                 `json:"external_parent_id,omitempty"`
	GroupID          *uuid.UUID              `json:"group_id,omitempty"`
	Title            *string                 `json:"title,omitempty"`
	Description      *string                 `json:"description,omitempty"`
	EventType        *string                 `json:"event_type,omitempty"`
	Location         *string                 `json:"location,omitempty"`
	Status           CalendarEventStatus     `json:"status"`
	AllDay           bool                    `json:"all_day"`
	StartTime        time.Time               `json:"start_time"`
	Duration         int64                   `json:"duration"`
	EndTime          time.Time               `json:"end_time"`
	Busy             bool                    `json:"busy"`
	Created          time.Time               `json:"created"`
	Updated          time.Time               `json:"updated"`
	Recurrence       *RecurrenceRule         `json:"recurrence,omitempty"`
	RecurringUntil   *time.Time              `json:"recurring_until,omitempty"`
	Exdates          []time.Time             `json:"exdates"`
	RecurringEventID *uuid.UUID              `json:"recurring_event_id,omitempty"`
	OriginalStartTime *time.Time             `json:"original_start_time,omitempty"`
	Reminders        []CalendarEventReminder `json:"reminders"`
	ServiceID        *uuid.UUID              `json:"service_id,omitempty"`
	Metadata         Metadata                `json:"metadata,omitempty"`
}

// Validate checks the structural invariants of an event.
func (e *CalendarEvent) Validate() error {
	if e.RecurringEventID != nil {
		if e.OriginalStartTime == nil {
			return ErrExceptionWithoutOriginalStart
		}
		if e.Recurrence != nil {
			return ErrExceptionWithRecurrence
		}
	}
	if e.Duration < 0 {
		return ErrNegativeDuration
	}
	for _, reminder := range e.Reminders {
		if !reminder.Valid() {
			return fmt.Errorf("%w: %d", ErrInvalidReminder, reminder.Delta)
		}
	}
	return nil
}

// SetStartTime moves the event and recomputes its end. Any exdate list
// no longer aligns with the shifted series, so it is cleared.
func (e *CalendarEvent) SetStartTime(start time.Time) {
	e.StartTime = start.UTC()
	e.EndTime = e.StartTime.Add(time.Duration(e.Duration) * time.Millisecond)
	e.Exdates = nil
}

// SetDuration updates the duration and recomputes the end.
func (e *CalendarEvent) SetDuration(durationMillis int64) {
	e.Duration = durationMillis
	e.EndTime = e.StartTime.Add(time.Duration(durationMillis) * time.Millisecond)
}

// SetRecurrence validates and installs the rule, then recomputes the
// stored recurring_until bound.
func (e *CalendarEvent) SetRecurrence(rule RecurrenceRule, settings CalendarSettings) error {
	if !rule.Valid(e.StartTime) {
		return ErrInvalidRecurrence
	}
	e.Recurrence = &rule
	return e.UpdateRecurringUntil(settings)
}

// UpdateRecurringUntil recomputes the latest end the recurrence can
// produce. Unbounded rules store nil as the sentinel so queries can
// detect active recurrences. Must be called again whenever the calendar
// time zone or week start changes.
func (e *CalendarEvent) UpdateRecurringUntil(settings CalendarSettings) error {
	if e.Recurrence == nil || !e.Recurrence.Bounded() {
		e.RecurringUntil = nil
		return nil
	}
	instances, err := e.Expand(nil, settings)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		e.RecurringUntil = &e.EndTime
		return nil
	}
	last := instances[len(instances)-1].EndTime
	e.RecurringUntil = &last
	return nil
}

// RuleSet builds the rrule set for the event in the calendar's time
// zone, exdates applied. Returns nil when the event does not recur.
func (e *CalendarEvent) RuleSet(settings CalendarSettings) (*rrule.Set, error) {
	if e.Recurrence == nil {
		return nil, nil
	}
	opt, err := e.Recurrence.ToROption(e.StartTime, settings)
	if err != nil {
		return nil, err
	}
	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecurrence, err)
	}
	set := &rrule.Set{}
	set.RRule(rule)
	set.DTStart(opt.Dtstart)
	for _, exdate := range e.Exdates {
		set.ExDate(exdate.In(opt.Dtstart.Location()))
	}
	return set, nil
}

// Expand produces the concrete occurrences of the event, optionally
// bounded by a window, capped at 100 occurrences per call. Occurrences
// are emitted in the calendar's time zone and converted to UTC.
func (e *CalendarEvent) Expand(tspan *TimeSpan, settings CalendarSettings) ([]EventInstance, error) {
	if e.Recurrence == nil {
		for _, exdate := range e.Exdates {
			if exdate.Equal(e.StartTime) {
				return nil, nil
			}
		}
		return []EventInstance{{
			StartTime: e.StartTime,
			EndTime:   e.StartTime.Add(time.Duration(e.Duration) * time.Millisecond),
			Busy:      e.Busy,
		}}, nil
	}

	set, err := e.RuleSet(settings)
	if err != nil {
		return nil, err
	}

	var dates []time.Time
	if tspan != nil {
		// both window ends are inclusive for occurrence selection,
		// matching the rule-set behaviour of the reference suite
		dates = set.Between(tspan.Start, tspan.End, true)
		if len(dates) > maxExpansionCount {
			dates = dates[:maxExpansionCount]
		}
	} else {
		next := set.Iterator()
		for len(dates) < maxExpansionCount {
			date, ok := next()
			if !ok {
				break
			}
			dates = append(dates, date)
		}
	}

	duration := time.Duration(e.Duration) * time.Millisecond
	instances := make([]EventInstance, 0, len(dates))
	for _, date := range dates {
		start := date.UTC()
		instances = append(instances, EventInstance{
			StartTime: start,
			EndTime:   start.Add(duration),
			Busy:      e.Busy,
		})
	}
	return instances, nil
}

// RemoveExceptionInstances drops occurrences whose start coincides with
// the original start of a stored exception. Exceptions replace or cancel
// their occurrence, so the parent's expansion must not also produce it.
func RemoveExceptionInstances(instances []EventInstance, exceptionOriginalStarts []time.Time) []EventInstance {
	if len(exceptionOriginalStarts) == 0 {
		return instances
	}
	originals := make(map[int64]struct{}, len(exceptionOriginalStarts))
	for _, start := range exceptionOriginalStarts {
		originals[start.UnixMilli()] = struct{}{}
	}
	kept := make([]EventInstance, 0, len(instances))
	for _, instance := range instances {
		if _, found := originals[instance.StartTime.UnixMilli()]; found {
			continue
		}
		kept = append(kept, instance)
	}
	return kept
}

// EventWithInstances pairs an event with its expanded occurrences.
type EventWithInstances struct {
	Event     *CalendarEvent  `json:"event"`
	Instances []EventInstance `json:"instances"`
}
