package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nittei/nittei/internal/domain"
)

// CalendarStore provides PostgreSQL-backed calendar storage.
type CalendarStore struct {
	pool *pgxpool.Pool
}

// NewCalendarStore creates a new store.
func NewCalendarStore(pool *pgxpool.Pool) *CalendarStore {
	return &CalendarStore{pool: pool}
}

const calendarColumns = `id, user_id, account_id, name, key, timezone, week_start, metadata`

// Insert persists a new calendar.
func (s *CalendarStore) Insert(ctx context.Context, calendar *domain.Calendar) error {
	metadata, err := json.Marshal(calendar.Metadata)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO calendars (id, user_id, account_id, name, key, timezone, week_start, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, calendar.ID, calendar.UserID, calendar.AccountID, calendar.Name, calendar.Key,
		calendar.Settings.Timezone, domain.FormatWeekday(calendar.Settings.WeekStart), metadata)
	return err
}

// Save updates an existing calendar.
func (s *CalendarStore) Save(ctx context.Context, calendar *domain.Calendar) error {
	metadata, err := json.Marshal(calendar.Metadata)
	if err != nil {
		return err
	}
	result, err := s.pool.Exec(ctx, `
		UPDATE calendars
		SET name = $2, key = $3, timezone = $4, week_start = $5, metadata = $6
		WHERE id = $1
	`, calendar.ID, calendar.Name, calendar.Key, calendar.Settings.Timezone,
		domain.FormatWeekday(calendar.Settings.WeekStart), metadata)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrCalendarNotFound
	}
	return nil
}

// Delete removes a calendar; its events cascade.
func (s *CalendarStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM calendars WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrCalendarNotFound
	}
	return nil
}

// Find retrieves a calendar by id.
func (s *CalendarStore) Find(ctx context.Context, id uuid.UUID) (*domain.Calendar, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+calendarColumns+` FROM calendars WHERE id = $1`, id)
	return scanCalendar(row)
}

// FindMany retrieves the calendars with the given ids.
func (s *CalendarStore) FindMany(ctx context.Context, ids []uuid.UUID) ([]*domain.Calendar, error) {
	return s.queryMany(ctx, `SELECT `+calendarColumns+` FROM calendars WHERE id = ANY($1)`, ids)
}

// FindByUser lists a user's calendars.
func (s *CalendarStore) FindByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Calendar, error) {
	return s.queryMany(ctx, `SELECT `+calendarColumns+` FROM calendars WHERE user_id = $1`, userID)
}

// FindByMetadata lists an account's calendars whose metadata contains
// the given key/values.
func (s *CalendarStore) FindByMetadata(ctx context.Context, query MetadataFindQuery) ([]*domain.Calendar, error) {
	metadata, err := json.Marshal(query.Metadata)
	if err != nil {
		return nil, err
	}
	return s.queryMany(ctx, `
		SELECT `+calendarColumns+`
		FROM calendars
		WHERE account_id = $1 AND metadata @> $2
		ORDER BY id
		OFFSET $3 LIMIT $4
	`, query.AccountID, metadata, query.Skip, query.Limit)
}

func (s *CalendarStore) queryMany(ctx context.Context, query string, args ...interface{}) ([]*domain.Calendar, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calendars []*domain.Calendar
	for rows.Next() {
		calendar, err := scanCalendar(rows)
		if err != nil {
			return nil, err
		}
		calendars = append(calendars, calendar)
	}
	return calendars, rows.Err()
}

func scanCalendar(row pgx.Row) (*domain.Calendar, error) {
	calendar := &domain.Calendar{}
	var weekStart string
	var metadata []byte
	err := row.Scan(
		&calendar.ID, &calendar.UserID, &calendar.AccountID, &calendar.Name, &calendar.Key,
		&calendar.Settings.Timezone, &weekStart, &metadata,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCalendarNotFound
		}
		return nil, err
	}
	if calendar.Settings.WeekStart, err = domain.ParseWeekday(weekStart); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &calendar.Metadata); err != nil {
			return nil, err
		}
	}
	return calendar, nil
}
