package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nittei/nittei/internal/domain"
)

// ReminderStore provides PostgreSQL-backed reminder storage with the
// per-event version counter that invalidates stale rows.
type ReminderStore struct {
	pool *pgxpool.Pool
}

// NewReminderStore creates a new store.
func NewReminderStore(pool *pgxpool.Pool) *ReminderStore {
	return &ReminderStore{pool: pool}
}

// InitVersion creates the version row for a new event and returns the
// initial version.
func (s *ReminderStore) InitVersion(ctx context.Context, eventID uuid.UUID) (int64, error) {
	var version int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO event_reminder_versions (event_id, version)
		VALUES ($1, 1)
		ON CONFLICT (event_id) DO UPDATE SET version = event_reminder_versions.version + 1
		RETURNING version
	`, eventID).Scan(&version)
	return version, err
}

// IncVersion atomically bumps the event's reminder version. Reminder
// rows carrying older versions become stale; the periodic sweep drops
// them when they come due.
func (s *ReminderStore) IncVersion(ctx context.Context, eventID uuid.UUID) (int64, error) {
	return s.InitVersion(ctx, eventID)
}

// BulkInsert persists a batch of reminder rows.
func (s *ReminderStore) BulkInsert(ctx context.Context, reminders []*domain.Reminder) error {
	if len(reminders) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, reminder := range reminders {
		batch.Queue(`
			INSERT INTO reminders (event_id, account_id, remind_at, version, identifier)
			VALUES ($1, $2, $3, $4, $5)
		`, reminder.EventID, reminder.AccountID, reminder.RemindAt, reminder.Version, reminder.Identifier)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

// DeleteAllBefore atomically removes every reminder due at or before the
// given instant and returns the removed rows that still carry their
// event's current version. Stale rows are swept silently.
func (s *ReminderStore) DeleteAllBefore(ctx context.Context, before time.Time) ([]*domain.Reminder, error) {
	rows, err := s.pool.Query(ctx, `
		WITH deleted AS (
			DELETE FROM reminders
			WHERE remind_at <= $1
			RETURNING event_id, account_id, remind_at, version, identifier
		)
		SELECT d.event_id, d.account_id, d.remind_at, d.version, d.identifier
		FROM deleted d
		JOIN event_reminder_versions v ON v.event_id = d.event_id AND v.version = d.version
		ORDER BY d.remind_at
	`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []*domain.Reminder
	for rows.Next() {
		reminder := &domain.Reminder{}
		if err := rows.Scan(
			&reminder.EventID, &reminder.AccountID, &reminder.RemindAt,
			&reminder.Version, &reminder.Identifier,
		); err != nil {
			return nil, err
		}
		reminders = append(reminders, reminder)
	}
	return reminders, rows.Err()
}

// DeleteByEvent removes every reminder of an event.
func (s *ReminderStore) DeleteByEvent(ctx context.Context, eventID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM reminders WHERE event_id = $1`, eventID)
	return err
}
