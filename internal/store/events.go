package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nittei/nittei/internal/domain"
)

// EventStore provides PostgreSQL-backed event storage and the query
// surface the scheduling core consumes.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new store.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventColumns = `e.id, e.account_id, e.user_id, e.calendar_id, e.external_id, e.external_parent_id,
	e.group_id, e.title, e.description, e.event_type, e.location, e.status, e.all_day,
	e.start_time, e.duration, e.end_time, e.busy, e.created, e.updated,
	e.recurrence, e.recurring_until, e.exdates, e.recurring_event_id, e.original_start_time,
	e.reminders, e.service_id, e.metadata`

func eventInsertArgs(event *domain.CalendarEvent) ([]interface{}, error) {
	var recurrence []byte
	if event.Recurrence != nil {
		data, err := json.Marshal(event.Recurrence)
		if err != nil {
			return nil, err
		}
		recurrence = data
	}
	reminders, err := json.Marshal(event.Reminders)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return nil, err
	}
	exdates := event.Exdates
	if exdates == nil {
		exdates = []time.Time{}
	}
	return []interface{}{
		event.ID, event.AccountID, event.UserID, event.CalendarID, event.ExternalID,
		event.ExternalParentID, event.GroupID, event.Title, event.Description,
		event.EventType, event.Location, event.Status, event.AllDay,
		event.StartTime, event.Duration, event.EndTime, event.Busy,
		event.Created, event.Updated,
		recurrence, event.RecurringUntil, exdates,
		event.RecurringEventID, event.OriginalStartTime,
		reminders, event.ServiceID, metadata,
	}, nil
}

const eventInsertSQL = `
	INSERT INTO calendar_events (
		id, account_id, user_id, calendar_id, external_id, external_parent_id,
		group_id, title, description, event_type, location, status, all_day,
		start_time, duration, end_time, busy, created, updated,
		recurrence, recurring_until, exdates, recurring_event_id, original_start_time,
		reminders, service_id, metadata
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27
	)`

// Insert persists a new event.
func (s *EventStore) Insert(ctx context.Context, event *domain.CalendarEvent) error {
	args, err := eventInsertArgs(event)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, eventInsertSQL, args...)
	return err
}

// InsertMany persists a batch of events in one round trip.
func (s *EventStore) InsertMany(ctx context.Context, events []*domain.CalendarEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, event := range events {
		args, err := eventInsertArgs(event)
		if err != nil {
			return err
		}
		batch.Queue(eventInsertSQL, args...)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

// Save updates an existing event.
func (s *EventStore) Save(ctx context.Context, event *domain.CalendarEvent) error {
	args, err := eventInsertArgs(event)
	if err != nil {
		return err
	}
	result, err := s.pool.Exec(ctx, `
		UPDATE calendar_events SET
			external_id = $5, external_parent_id = $6, group_id = $7, title = $8,
			description = $9, event_type = $10, location = $11, status = $12, all_day = $13,
			start_time = $14, duration = $15, end_time = $16, busy = $17,
			created = $18, updated = $19,
			recurrence = $20, recurring_until = $21, exdates = $22,
			recurring_event_id = $23, original_start_time = $24,
			reminders = $25, service_id = $26, metadata = $27
		WHERE id = $1
	`, args...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// Delete removes an event. Exceptions referencing it cascade, as do its
// reminders and expansion jobs.
func (s *EventStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM calendar_events WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// DeleteMany removes a batch of events.
func (s *EventStore) DeleteMany(ctx context.Context, ids []uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM calendar_events WHERE id = ANY($1)`, ids)
	return err
}

// DeleteByService removes every event created for a service.
func (s *EventStore) DeleteByService(ctx context.Context, serviceID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM calendar_events WHERE service_id = $1`, serviceID)
	return err
}

// Find retrieves an event by id.
func (s *EventStore) Find(ctx context.Context, id uuid.UUID) (*domain.CalendarEvent, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM calendar_events e WHERE e.id = $1`, id)
	return scanEvent(row)
}

// FindMany retrieves the events with the given ids.
func (s *EventStore) FindMany(ctx context.Context, ids []uuid.UUID) ([]*domain.CalendarEvent, error) {
	return s.queryMany(ctx, `SELECT `+eventColumns+` FROM calendar_events e WHERE e.id = ANY($1)`, ids)
}

// FindByExternalID retrieves an account's events carrying the external
// id.
func (s *EventStore) FindByExternalID(ctx context.Context, accountID uuid.UUID, externalID string) ([]*domain.CalendarEvent, error) {
	return s.queryMany(ctx, `
		SELECT `+eventColumns+` FROM calendar_events e
		WHERE e.account_id = $1 AND e.external_id = $2
	`, accountID, externalID)
}

// timespanPredicate matches events touching the window: non-recurring
// events intersecting it half-open, plus recurrences that started at or
// before the window end and are unbounded or still active past the window
// start. The recurring branch is open on its left boundary.
const timespanPredicate = `(
		(e.recurrence IS NULL AND e.start_time < $%[2]d AND e.end_time > $%[1]d)
		OR (e.recurrence IS NOT NULL AND e.start_time <= $%[2]d
			AND (e.recurring_until IS NULL OR e.recurring_until > $%[1]d))
	)`

// FindByCalendar lists a calendar's events, bounded to a window when one
// is given.
func (s *EventStore) FindByCalendar(ctx context.Context, calendarID uuid.UUID, tspan *domain.TimeSpan) ([]*domain.CalendarEvent, error) {
	if tspan == nil {
		return s.queryMany(ctx, `
			SELECT `+eventColumns+` FROM calendar_events e
			WHERE e.calendar_id = $1
			ORDER BY e.start_time
		`, calendarID)
	}
	return s.queryMany(ctx, `
		SELECT `+eventColumns+` FROM calendar_events e
		WHERE e.calendar_id = $1 AND `+fmt.Sprintf(timespanPredicate, 2, 3)+`
		ORDER BY e.start_time
	`, calendarID, tspan.Start, tspan.End)
}

// FindByCalendars lists events across many calendars touching a window.
func (s *EventStore) FindByCalendars(ctx context.Context, calendarIDs []uuid.UUID, tspan domain.TimeSpan) ([]*domain.CalendarEvent, error) {
	return s.queryMany(ctx, `
		SELECT `+eventColumns+` FROM calendar_events e
		WHERE e.calendar_id = ANY($1) AND `+fmt.Sprintf(timespanPredicate, 2, 3)+`
		ORDER BY e.start_time
	`, calendarIDs, tspan.Start, tspan.End)
}

func statusBusyFilters(includeTentative, includeNonBusy bool) string {
	filter := ""
	if !includeTentative {
		filter += ` AND e.status = 'confirmed'`
	}
	if !includeNonBusy {
		filter += ` AND e.busy = true`
	}
	return filter
}

// FindEventsForUsersForTimespan lists plain events (no recurrence, not
// exceptions) for the users, intersecting the window half-open.
func (s *EventStore) FindEventsForUsersForTimespan(ctx context.Context, userIDs []uuid.UUID, tspan domain.TimeSpan, includeTentative, includeNonBusy bool) ([]*domain.CalendarEvent, error) {
	return s.queryMany(ctx, `
		SELECT `+eventColumns+` FROM calendar_events e
		WHERE e.user_id = ANY($1)
		AND e.recurrence IS NULL
		AND e.recurring_event_id IS NULL
		AND e.start_time < $3 AND e.end_time > $2
	`+statusBusyFilters(includeTentative, includeNonBusy)+`
		ORDER BY e.start_time
	`, userIDs, tspan.Start, tspan.End)
}

// FindRecurringEventsForUsersForTimespan lists the users' recurring
// events whose series touches the window.
func (s *EventStore) FindRecurringEventsForUsersForTimespan(ctx context.Context, userIDs []uuid.UUID, tspan domain.TimeSpan, includeTentative, includeNonBusy bool) ([]*domain.CalendarEvent, error) {
	return s.queryMany(ctx, `
		SELECT `+eventColumns+` FROM calendar_events e
		WHERE e.user_id = ANY($1)
		AND e.recurrence IS NOT NULL
		AND e.start_time <= $3
		AND (e.recurring_until IS NULL OR e.recurring_until > $2)
	`+statusBusyFilters(includeTentative, includeNonBusy)+`
		ORDER BY e.start_time
	`, userIDs, tspan.Start, tspan.End)
}

// FindByRecurringEventIDsForTimespan lists the exceptions of the given
// parents whose original start lies in the window.
func (s *EventStore) FindByRecurringEventIDsForTimespan(ctx context.Context, parentIDs []uuid.UUID, tspan domain.TimeSpan) ([]*domain.CalendarEvent, error) {
	return s.queryMany(ctx, `
		SELECT `+eventColumns+` FROM calendar_events e
		WHERE e.recurring_event_id = ANY($1)
		AND e.original_start_time >= $2 AND e.original_start_time < $3
		ORDER BY e.original_start_time
	`, parentIDs, tspan.Start, tspan.End)
}

// ServiceEventCreated pairs a host with the creation time of their most
// recent service event, nil when they have none.
type ServiceEventCreated struct {
	UserID  uuid.UUID
	Created *time.Time
}

// FindMostRecentlyCreatedServiceEvents returns, per candidate host, the
// creation time of their latest event for the service.
func (s *EventStore) FindMostRecentlyCreatedServiceEvents(ctx context.Context, serviceID uuid.UUID, userIDs []uuid.UUID) ([]ServiceEventCreated, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, MAX(e.created)
		FROM unnest($2::uuid[]) AS u(id)
		LEFT JOIN calendar_events e ON e.user_id = u.id AND e.service_id = $1
		GROUP BY u.id
	`, serviceID, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ServiceEventCreated
	for rows.Next() {
		var result ServiceEventCreated
		if err := rows.Scan(&result.UserID, &result.Created); err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// FindByService lists the hosts' service events starting inside the
// window.
func (s *EventStore) FindByService(ctx context.Context, serviceID uuid.UUID, userIDs []uuid.UUID, min, max time.Time) ([]*domain.CalendarEvent, error) {
	return s.queryMany(ctx, `
		SELECT `+eventColumns+` FROM calendar_events e
		WHERE e.service_id = $1 AND e.user_id = ANY($2)
		AND e.start_time >= $3 AND e.start_time < $4
		ORDER BY e.start_time
	`, serviceID, userIDs, min, max)
}

// FindByMetadata lists an account's events whose metadata contains the
// given key/values.
func (s *EventStore) FindByMetadata(ctx context.Context, query MetadataFindQuery) ([]*domain.CalendarEvent, error) {
	metadata, err := json.Marshal(query.Metadata)
	if err != nil {
		return nil, err
	}
	return s.queryMany(ctx, `
		SELECT `+eventColumns+` FROM calendar_events e
		WHERE e.account_id = $1 AND e.metadata @> $2
		ORDER BY e.id
		OFFSET $3 LIMIT $4
	`, query.AccountID, metadata, query.Skip, query.Limit)
}

// Search runs the event search DSL scoped to an account and optionally
// one user.
func (s *EventStore) Search(ctx context.Context, params SearchEventsParams) ([]*domain.CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events e WHERE e.account_id = $1`
	args := []interface{}{params.AccountID}

	if params.UserID != nil {
		args = append(args, *params.UserID)
		query += fmt.Sprintf(" AND e.user_id = $%d", len(args))
	}

	filters := params.Filters
	query, args = applyIDQuery(query, args, "id", filters.EventUID)
	query, args = applyIDQuery(query, args, "group_id", filters.GroupID)
	query, args = applyIDQuery(query, args, "recurring_event_id", filters.RecurringEventUID)
	query, args = applyStringQuery(query, args, "external_id", filters.ExternalID)
	query, args = applyStringQuery(query, args, "external_parent_id", filters.ExternalParentID)
	query, args = applyStringQuery(query, args, "event_type", filters.EventType)
	query, args = applyStringQuery(query, args, "status", filters.Status)
	query, args = applyDateTimeQuery(query, args, "start_time", filters.StartTime)
	query, args = applyDateTimeQuery(query, args, "end_time", filters.EndTime)
	query, args = applyDateTimeQuery(query, args, "created", filters.CreatedAt)
	query, args = applyDateTimeQuery(query, args, "updated", filters.UpdatedAt)
	query, args = applyDateTimeQuery(query, args, "original_start_time", filters.OriginalStartTime)

	if recurrence := filters.Recurrence; recurrence != nil {
		if recurrence.Exists != nil {
			if *recurrence.Exists {
				query += " AND e.recurrence IS NOT NULL"
			} else {
				query += " AND e.recurrence IS NULL"
			}
		} else if at := recurrence.ExistingAndRecurringAt; at != nil {
			args = append(args, *at)
			query += fmt.Sprintf(
				" AND e.recurrence IS NOT NULL AND (e.recurring_until IS NULL OR e.recurring_until > $%d)",
				len(args))
		}
	}

	if len(filters.Metadata) > 0 {
		metadata, err := json.Marshal(filters.Metadata)
		if err != nil {
			return nil, err
		}
		args = append(args, metadata)
		query += fmt.Sprintf(" AND e.metadata @> $%d", len(args))
	}

	direction := "ASC"
	if params.Desc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY e.%s %s", params.Sort.column(), direction)

	args = append(args, params.Limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	return s.queryMany(ctx, query, args...)
}

func applyIDQuery(query string, args []interface{}, field string, filter *IDQuery) (string, []interface{}) {
	if filter == nil {
		return query, args
	}
	switch {
	case filter.Eq != nil:
		args = append(args, *filter.Eq)
		query += fmt.Sprintf(" AND e.%s = $%d", field, len(args))
	case filter.Ne != nil:
		args = append(args, *filter.Ne)
		query += fmt.Sprintf(" AND e.%s != $%d", field, len(args))
	case filter.Exists != nil:
		if *filter.Exists {
			query += fmt.Sprintf(" AND e.%s IS NOT NULL", field)
		} else {
			query += fmt.Sprintf(" AND e.%s IS NULL", field)
		}
	case len(filter.In) > 0:
		args = append(args, filter.In)
		query += fmt.Sprintf(" AND e.%s = ANY($%d)", field, len(args))
	}
	return query, args
}

func applyStringQuery(query string, args []interface{}, field string, filter *StringQuery) (string, []interface{}) {
	if filter == nil {
		return query, args
	}
	switch {
	case filter.Eq != nil:
		args = append(args, *filter.Eq)
		query += fmt.Sprintf(" AND e.%s = $%d", field, len(args))
	case filter.Ne != nil:
		args = append(args, *filter.Ne)
		query += fmt.Sprintf(" AND e.%s != $%d", field, len(args))
	case filter.Exists != nil:
		if *filter.Exists {
			query += fmt.Sprintf(" AND e.%s IS NOT NULL", field)
		} else {
			query += fmt.Sprintf(" AND e.%s IS NULL", field)
		}
	case len(filter.In) > 0:
		args = append(args, filter.In)
		query += fmt.Sprintf(" AND e.%s = ANY($%d)", field, len(args))
	}
	return query, args
}

func applyDateTimeQuery(query string, args []interface{}, field string, filter *DateTimeQuery) (string, []interface{}) {
	if filter == nil {
		return query, args
	}
	if filter.Eq != nil {
		args = append(args, *filter.Eq)
		query += fmt.Sprintf(" AND e.%s = $%d", field, len(args))
		return query, args
	}
	if filter.Gte != nil {
		args = append(args, *filter.Gte)
		query += fmt.Sprintf(" AND e.%s >= $%d", field, len(args))
	} else if filter.Gt != nil {
		args = append(args, *filter.Gt)
		query += fmt.Sprintf(" AND e.%s > $%d", field, len(args))
	}
	if filter.Lte != nil {
		args = append(args, *filter.Lte)
		query += fmt.Sprintf(" AND e.%s <= $%d", field, len(args))
	} else if filter.Lt != nil {
		args = append(args, *filter.Lt)
		query += fmt.Sprintf(" AND e.%s < $%d", field, len(args))
	}
	return query, args
}

func (s *EventStore) queryMany(ctx context.Context, query string, args ...interface{}) ([]*domain.CalendarEvent, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.CalendarEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanEvent(row pgx.Row) (*domain.CalendarEvent, error) {
	event := &domain.CalendarEvent{}
	var recurrence, reminders, metadata []byte
	err := row.Scan(
		&event.ID, &event.AccountID, &event.UserID, &event.CalendarID, &event.ExternalID,
		&event.ExternalParentID, &event.GroupID, &event.Title, &event.Description,
		&event.EventType, &event.Location, &event.Status, &event.AllDay,
		&event.StartTime, &event.Duration, &event.EndTime, &event.Busy,
		&event.Created, &event.Updated,
		&recurrence, &event.RecurringUntil, &event.Exdates,
		&event.RecurringEventID, &event.OriginalStartTime,
		&reminders, &event.ServiceID, &metadata,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	if len(recurrence) > 0 {
		event.Recurrence = &domain.RecurrenceRule{}
		if err := json.Unmarshal(recurrence, event.Recurrence); err != nil {
			return nil, err
		}
	}
	if len(reminders) > 0 {
		if err := json.Unmarshal(reminders, &event.Reminders); err != nil {
			return nil, err
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
			return nil, err
		}
	}
	return event, nil
}
