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

// ScheduleStore provides PostgreSQL-backed schedule storage.
type ScheduleStore struct {
	pool *pgxpool.Pool
}

// NewScheduleStore creates a new store.
func NewScheduleStore(pool *pgxpool.Pool) *ScheduleStore {
	return &ScheduleStore{pool: pool}
}

// Insert persists a new schedule.
func (s *ScheduleStore) Insert(ctx context.Context, schedule *domain.Schedule) error {
	rules, err := json.Marshal(schedule.Rules)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(schedule.Metadata)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO schedules (id, user_id, account_id, rules, timezone, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, schedule.ID, schedule.UserID, schedule.AccountID, rules, schedule.Timezone, metadata)
	return err
}

// Save updates an existing schedule.
func (s *ScheduleStore) Save(ctx context.Context, schedule *domain.Schedule) error {
	rules, err := json.Marshal(schedule.Rules)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(schedule.Metadata)
	if err != nil {
		return err
	}
	result, err := s.pool.Exec(ctx, `
		UPDATE schedules SET rules = $2, timezone = $3, metadata = $4 WHERE id = $1
	`, schedule.ID, rules, schedule.Timezone, metadata)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// Delete removes a schedule.
func (s *ScheduleStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// Find retrieves a schedule by id.
func (s *ScheduleStore) Find(ctx context.Context, id uuid.UUID) (*domain.Schedule, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, account_id, rules, timezone, metadata FROM schedules WHERE id = $1
	`, id)
	return scanSchedule(row)
}

// FindByUser lists a user's schedules.
func (s *ScheduleStore) FindByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Schedule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, account_id, rules, timezone, metadata FROM schedules WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []*domain.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}

func scanSchedule(row pgx.Row) (*domain.Schedule, error) {
	schedule := &domain.Schedule{}
	var rules, metadata []byte
	err := row.Scan(
		&schedule.ID, &schedule.UserID, &schedule.AccountID, &rules,
		&schedule.Timezone, &metadata,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &schedule.Rules); err != nil {
			return nil, err
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &schedule.Metadata); err != nil {
			return nil, err
		}
	}
	return schedule, nil
}
