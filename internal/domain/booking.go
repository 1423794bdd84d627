package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// BookingSlot is one bookable start for a single host. AvailableUntil is
// the end of the free interval the slot was carved from.
type BookingSlot struct {
	Start          time.Time `json:"start"`
	Duration       int64     `json:"duration"`
	AvailableUntil time.Time `json:"availableUntil"`
}

// BookingSlotsOptions control slot discretisation. Duration and Interval
// are in milliseconds.
type BookingSlotsOptions struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  int64
	Interval  int64
}

// UserFreeEvents is one host's free intervals for the queried window.
type UserFreeEvents struct {
	FreeEvents *CompatibleInstances
	UserID     uuid.UUID
}

// ServiceBookingSlot is a bookable start with every host available at
// that instant.
type ServiceBookingSlot struct {
	Start    time.Time   `json:"start"`
	Duration int64       `json:"duration"`
	UserIDs  []uuid.UUID `json:"userIds"`
}

// ServiceBookingSlotsDate groups consecutive slots sharing a local date.
type ServiceBookingSlotsDate struct {
	Date  string               `json:"date"`
	Slots []ServiceBookingSlot `json:"slots"`
}

// ServiceBookingSlots is the date-grouped response shape.
type ServiceBookingSlots struct {
	Dates []ServiceBookingSlotsDate `json:"dates"`
}

// NewServiceBookingSlots groups sorted slots by their local date in the
// caller-supplied time zone.
func NewServiceBookingSlots(slots []ServiceBookingSlot, loc *time.Location) ServiceBookingSlots {
	var dates []ServiceBookingSlotsDate
	for _, slot := range slots {
		date := FormatDate(slot.Start, loc)
		if len(dates) > 0 && dates[len(dates)-1].Date == date {
			last := &dates[len(dates)-1]
			last.Slots = append(last.Slots, slot)
			continue
		}
		dates = append(dates, ServiceBookingSlotsDate{
			Date:  date,
			Slots: []ServiceBookingSlot{slot},
		})
	}
	return ServiceBookingSlots{Dates: dates}
}

func slotFreeInterval(cursor time.Time, durationMillis int64, events *CompatibleInstances) (EventInstance, bool) {
	needed := cursor.Add(time.Duration(durationMillis) * time.Millisecond)
	for _, event := range events.Inner() {
		if !event.StartTime.After(cursor) && !event.EndTime.Before(needed) {
			return event, true
		}
	}
	return EventInstance{}, false
}

// GetBookingSlots walks a cursor from the window start in steps of the
// interval and emits a slot wherever a free interval covers cursor plus
// duration.
func GetBookingSlots(freeEvents *CompatibleInstances, options BookingSlotsOptions) []BookingSlot {
	var slots []BookingSlot
	if options.Duration < 1 {
		return slots
	}

	step := time.Duration(options.Interval) * time.Millisecond
	for cursor := options.StartTime; !cursor.Add(step).After(options.EndTime); cursor = cursor.Add(step) {
		if event, ok := slotFreeInterval(cursor, options.Duration, freeEvents); ok {
			slots = append(slots, BookingSlot{
				Start:          cursor,
				Duration:       options.Duration,
				AvailableUntil: event.EndTime,
			})
		}
	}
	return slots
}

// GetServiceBookingSlots buckets each host's slots by exact start and
// returns the buckets sorted ascending.
func GetServiceBookingSlots(usersFree []UserFreeEvents, options BookingSlotsOptions) []ServiceBookingSlot {
	lookup := make(map[int64]*ServiceBookingSlot)

	for _, user := range usersFree {
		for _, slot := range GetBookingSlots(user.FreeEvents, options) {
			key := slot.Start.UnixMilli()
			if existing, found := lookup[key]; found {
				existing.UserIDs = append(existing.UserIDs, user.UserID)
			} else {
				lookup[key] = &ServiceBookingSlot{
					Start:    slot.Start,
					Duration: slot.Duration,
					UserIDs:  []uuid.UUID{user.UserID},
				}
			}
		}
	}

	slots := make([]ServiceBookingSlot, 0, len(lookup))
	for _, slot := range lookup {
		slots = append(slots, *slot)
	}
	// buckets come out of the map unordered
	sort.Slice(slots, func(a, b int) bool {
		return slots[a].Start.Before(slots[b].Start)
	})
	return slots
}

const (
	minSlotsInterval = int64(5 * 60 * 1000)
	maxSlotsInterval = int64(2 * 60 * 60 * 1000)
)

// ValidateSlotsInterval bounds the stepping interval to 5 minutes - 2
// hours.
func ValidateSlotsInterval(intervalMillis int64) bool {
	return intervalMillis >= minSlotsInterval && intervalMillis <= maxSlotsInterval
}

// BookingSlotsQuery is the raw client query for a booking-slots request.
type BookingSlotsQuery struct {
	StartDate string
	EndDate   string
	Timezone  string
	Duration  int64
	Interval  int64
}

var (
	ErrInvalidBookingInterval = errors.New("invalid booking slots interval")
	ErrInvalidBookingTimespan = errors.New("invalid booking slots timespan")
)

// InvalidDateError reports a malformed client date string.
type InvalidDateError struct {
	Date string
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid date: %q, expected YYYY-MM-DD", e.Date)
}

// InvalidTimezoneError reports an unknown IANA zone name.
type InvalidTimezoneError struct {
	Timezone string
}

func (e *InvalidTimezoneError) Error() string {
	return fmt.Sprintf("invalid timezone: %q, expected an IANA time zone", e.Timezone)
}

// ValidateBookingSlotsQuery turns client date strings into a UTC window
// spanning midnight of the start date to midnight after the end date in
// the query time zone.
func ValidateBookingSlotsQuery(query BookingSlotsQuery) (TimeSpan, *time.Location, error) {
	if !ValidateSlotsInterval(query.Interval) {
		return TimeSpan{}, nil, ErrInvalidBookingInterval
	}

	tzName := query.Timezone
	if tzName == "" {
		tzName = "UTC"
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return TimeSpan{}, nil, &InvalidTimezoneError{Timezone: query.Timezone}
	}

	startDay, err := ParseDay(query.StartDate)
	if err != nil {
		return TimeSpan{}, nil, &InvalidDateError{Date: query.StartDate}
	}
	endDay, err := ParseDay(query.EndDate)
	if err != nil {
		return TimeSpan{}, nil, &InvalidDateError{Date: query.EndDate}
	}

	start := startDay.Date(loc).UTC()
	end := endDay.Date(loc).Add(24 * time.Hour).UTC()
	tspan, err := NewTimeSpan(start, end)
	if err != nil {
		return TimeSpan{}, nil, ErrInvalidBookingTimespan
	}
	return tspan, loc, nil
}
