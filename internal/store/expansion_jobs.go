package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nittei/nittei/internal/domain"
)

// ExpansionJobStore provides PostgreSQL-backed storage for deferred
// reminder-expansion jobs.
type ExpansionJobStore struct {
	pool *pgxpool.Pool
}

// NewExpansionJobStore creates a new store.
func NewExpansionJobStore(pool *pgxpool.Pool) *ExpansionJobStore {
	return &ExpansionJobStore{pool: pool}
}

// BulkInsert persists a batch of jobs.
func (s *ExpansionJobStore) BulkInsert(ctx context.Context, jobs []*domain.ReminderExpansionJob) error {
	if len(jobs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, job := range jobs {
		batch.Queue(`
			INSERT INTO reminder_expansion_jobs (event_id, timestamp, version)
			VALUES ($1, $2, $3)
		`, job.EventID, job.Timestamp, job.Version)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

// DeleteAllBefore atomically removes and returns the jobs due at or
// before the given instant. The delete-returning pattern gives the
// periodic tick at-most-once consumption.
func (s *ExpansionJobStore) DeleteAllBefore(ctx context.Context, before time.Time) ([]*domain.ReminderExpansionJob, error) {
	rows, err := s.pool.Query(ctx, `
		DELETE FROM reminder_expansion_jobs
		WHERE timestamp <= $1
		RETURNING event_id, timestamp, version
	`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.ReminderExpansionJob
	for rows.Next() {
		job := &domain.ReminderExpansionJob{}
		if err := rows.Scan(&job.EventID, &job.Timestamp, &job.Version); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// DeleteByEvent removes every job of an event.
func (s *ExpansionJobStore) DeleteByEvent(ctx context.Context, eventID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM reminder_expansion_jobs WHERE event_id = $1`, eventID)
	return err
}
