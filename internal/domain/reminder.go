package domain

import (
	"time"

	"github.com/google/uuid"
)

// Reminder is one materialised firing for an event occurrence. Rows are
// derived by the reminder scheduler and never authored by clients. The
// version ties the row to the event revision that produced it; rows with
// stale versions are ignored and eventually swept.
type Reminder struct {
	EventID    uuid.UUID `json:"eventId"`
	AccountID  uuid.UUID `json:"accountId"`
	RemindAt   time.Time `json:"remindAt"`
	Version    int64     `json:"version"`
	Identifier string    `json:"identifier"`
}

// ReminderExpansionJob defers materialisation of the next occurrence
// batch for a long-running recurrence. The periodic tick consumes jobs
// whose timestamp has passed.
type ReminderExpansionJob struct {
	EventID   uuid.UUID `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
	Version   int64     `json:"version"`
}
