// Package store provides the PostgreSQL-backed persistence layer.
package store

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nittei/nittei/internal/domain"
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrCalendarNotFound = errors.New("calendar not found")
	ErrEventNotFound    = errors.New("calendar event not found")
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrServiceNotFound  = errors.New("service not found")
	ErrResourceNotFound = errors.New("service resource not found")
)

// IDQuery filters a uuid column.
type IDQuery struct {
	Eq     *uuid.UUID  `json:"eq,omitempty"`
	Ne     *uuid.UUID  `json:"ne,omitempty"`
	Exists *bool       `json:"exists,omitempty"`
	In     []uuid.UUID `json:"in,omitempty"`
}

// StringQuery filters a text column.
type StringQuery struct {
	Eq     *string  `json:"eq,omitempty"`
	Ne     *string  `json:"ne,omitempty"`
	Exists *bool    `json:"exists,omitempty"`
	In     []string `json:"in,omitempty"`
}

// DateTimeQuery filters a timestamptz column.
type DateTimeQuery struct {
	Eq  *time.Time `json:"eq,omitempty"`
	Gt  *time.Time `json:"gt,omitempty"`
	Gte *time.Time `json:"gte,omitempty"`
	Lt  *time.Time `json:"lt,omitempty"`
	Lte *time.Time `json:"lte,omitempty"`
}

// RecurrenceQuery filters on the presence of a recurrence, optionally
// narrowed to series still active at a given instant.
type RecurrenceQuery struct {
	Exists *bool `json:"exists,omitempty"`
	// ExistingAndRecurringAt matches events whose recurrence is still
	// producing occurrences at the instant.
	ExistingAndRecurringAt *time.Time `json:"existingAndRecurringAt,omitempty"`
}

// SortableField names a column search results can be ordered by.
type SortableField string

const (
	SortStartTime SortableField = "startTime"
	SortEndTime   SortableField = "endTime"
	SortCreated   SortableField = "created"
	SortUpdated   SortableField = "updated"
	SortEventID   SortableField = "eventId"
)

func (f SortableField) column() string {
	switch f {
	case SortEndTime:
		return "end_time"
	case SortCreated:
		return "created"
	case SortUpdated:
		return "updated"
	case SortEventID:
		return "id"
	default:
		return "start_time"
	}
}

// SearchEventsFilters is the per-field filter set of the search DSL.
type SearchEventsFilters struct {
	EventUID          *IDQuery         `json:"eventUid,omitempty"`
	ExternalID        *StringQuery     `json:"externalId,omitempty"`
	ExternalParentID  *StringQuery     `json:"externalParentId,omitempty"`
	GroupID           *IDQuery         `json:"groupId,omitempty"`
	EventType         *StringQuery     `json:"eventType,omitempty"`
	Status            *StringQuery     `json:"status,omitempty"`
	StartTime         *DateTimeQuery   `json:"startTime,omitempty"`
	EndTime           *DateTimeQuery   `json:"endTime,omitempty"`
	CreatedAt         *DateTimeQuery   `json:"createdAt,omitempty"`
	UpdatedAt         *DateTimeQuery   `json:"updatedAt,omitempty"`
	OriginalStartTime *DateTimeQuery   `json:"originalStartTime,omitempty"`
	RecurringEventUID *IDQuery         `json:"recurringEventUid,omitempty"`
	Recurrence        *RecurrenceQuery `json:"recurrence,omitempty"`
	Metadata          domain.Metadata  `json:"metadata,omitempty"`
}

// SearchEventsParams is a full search request. UserID narrows the search
// to one user's events; account-wide searches leave it nil.
type SearchEventsParams struct {
	AccountID uuid.UUID
	UserID    *uuid.UUID
	Filters   SearchEventsFilters
	Sort      SortableField
	Desc      bool
	Limit     int
}

// MetadataFindQuery is a metadata-containment listing request.
type MetadataFindQuery struct {
	AccountID uuid.UUID
	Metadata  domain.Metadata
	Skip      int
	Limit     int
}
