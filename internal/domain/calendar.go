package domain

import (
	"time"

	"github.com/google/uuid"
)

// CalendarSettings govern recurrence expansion for every event in a
// calendar. Changing the time zone or week start invalidates any stored
// recurring_until values, which must then be recomputed.
type CalendarSettings struct {
	Timezone  string       `json:"timezone"`
	WeekStart time.Weekday `json:"weekStart"`
}

// Location resolves the IANA time zone of the calendar.
func (s CalendarSettings) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

// DefaultCalendarSettings returns UTC with weeks starting on Monday.
func DefaultCalendarSettings() CalendarSettings {
	return CalendarSettings{Timezone: "UTC", WeekStart: time.Monday}
}

// Calendar belongs to one user and holds events.
type Calendar struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"userId"`
	AccountID uuid.UUID        `json:"accountId"`
	Name      *string          `json:"name,omitempty"`
	Key       *string          `json:"key,omitempty"`
	Settings  CalendarSettings `json:"settings"`
	Metadata  Metadata         `json:"metadata,omitempty"`
}

// NewCalendar creates a calendar with default settings.
func NewCalendar(userID, accountID uuid.UUID) *Calendar {
	return &Calendar{
		ID:        uuid.New(),
		UserID:    userID,
		AccountID: accountID,
		Settings:  DefaultCalendarSettings(),
	}
}
