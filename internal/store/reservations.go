package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReservationStore tracks booking-intend reservations for group
// services: one counter per {service, slot start}.
type ReservationStore struct {
	pool *pgxpool.Pool
}

// NewReservationStore creates a new store.
func NewReservationStore(pool *pgxpool.Pool) *ReservationStore {
	return &ReservationStore{pool: pool}
}

// Count returns the current reservation count for a slot.
func (s *ReservationStore) Count(ctx context.Context, serviceID uuid.UUID, slotStart time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(count), 0) FROM service_reservations
		WHERE service_id = $1 AND slot_start = $2
	`, serviceID, slotStart).Scan(&count)
	return count, err
}

// Increment atomically bumps the reservation count for a slot.
func (s *ReservationStore) Increment(ctx context.Context, serviceID uuid.UUID, slotStart time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO service_reservations (service_id, slot_start, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (service_id, slot_start) DO UPDATE
		SET count = service_reservations.count + 1
	`, serviceID, slotStart)
	return err
}

// Decrement releases one reservation of a slot, never dropping below
// zero.
func (s *ReservationStore) Decrement(ctx context.Context, serviceID uuid.UUID, slotStart time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE service_reservations
		SET count = GREATEST(count - 1, 0)
		WHERE service_id = $1 AND slot_start = $2
	`, serviceID, slotStart)
	return err
}

// DeleteByService removes every reservation of a service.
func (s *ReservationStore) DeleteByService(ctx context.Context, serviceID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM service_reservations WHERE service_id = $1`, serviceID)
	return err
}
