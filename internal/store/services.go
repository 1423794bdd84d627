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

// ServiceStore provides PostgreSQL-backed service and service-resource
// storage.
type ServiceStore struct {
	pool *pgxpool.Pool
}

// NewServiceStore creates a new store.
func NewServiceStore(pool *pgxpool.Pool) *ServiceStore {
	return &ServiceStore{pool: pool}
}

// Insert persists a new service.
func (s *ServiceStore) Insert(ctx context.Context, service *domain.Service) error {
	multiPerson, err := json.Marshal(service.MultiPerson)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(service.Metadata)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO services (id, account_id, multi_person, metadata)
		VALUES ($1, $2, $3, $4)
	`, service.ID, service.AccountID, multiPerson, metadata)
	return err
}

// Save updates an existing service.
func (s *ServiceStore) Save(ctx context.Context, service *domain.Service) error {
	multiPerson, err := json.Marshal(service.MultiPerson)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(service.Metadata)
	if err != nil {
		return err
	}
	result, err := s.pool.Exec(ctx, `
		UPDATE services SET multi_person = $2, metadata = $3 WHERE id = $1
	`, service.ID, multiPerson, metadata)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrServiceNotFound
	}
	return nil
}

// Delete removes a service; its resources and reservations cascade.
func (s *ServiceStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrServiceNotFound
	}
	return nil
}

// Find retrieves a service by id.
func (s *ServiceStore) Find(ctx context.Context, id uuid.UUID) (*domain.Service, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, account_id, multi_person, metadata FROM services WHERE id = $1
	`, id)
	return scanService(row)
}

// FindWithUsers retrieves a service together with its member resources.
func (s *ServiceStore) FindWithUsers(ctx context.Context, id uuid.UUID) (*domain.ServiceWithUsers, error) {
	service, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	resources, err := s.queryResources(ctx, `
		SELECT id, user_id, service_id, availability, buffer_before, buffer_after,
		       closest_booking_time, furthest_booking_time, busy_calendars
		FROM service_users WHERE service_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	return &domain.ServiceWithUsers{Service: *service, Users: resources}, nil
}

func scanService(row pgx.Row) (*domain.Service, error) {
	service := &domain.Service{}
	var multiPerson, metadata []byte
	err := row.Scan(&service.ID, &service.AccountID, &multiPerson, &metadata)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(multiPerson, &service.MultiPerson); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &service.Metadata); err != nil {
			return nil, err
		}
	}
	return service, nil
}

// AddResource persists a new service membership.
func (s *ServiceStore) AddResource(ctx context.Context, resource *domain.ServiceResource) error {
	availability, err := json.Marshal(resource.Availability)
	if err != nil {
		return err
	}
	busyCalendars, err := json.Marshal(resource.BusyCalendars)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO service_users (
			id, user_id, service_id, availability, buffer_before, buffer_after,
			closest_booking_time, furthest_booking_time, busy_calendars
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, resource.ID, resource.UserID, resource.ServiceID, availability,
		resource.BufferBefore, resource.BufferAfter,
		resource.ClosestBookingTime, resource.FurthestBookingTime, busyCalendars)
	return err
}

// SaveResource updates an existing service membership.
func (s *ServiceStore) SaveResource(ctx context.Context, resource *domain.ServiceResource) error {
	availability, err := json.Marshal(resource.Availability)
	if err != nil {
		return err
	}
	busyCalendars, err := json.Marshal(resource.BusyCalendars)
	if err != nil {
		return err
	}
	result, err := s.pool.Exec(ctx, `
		UPDATE service_users SET
			availability = $3, buffer_before = $4, buffer_after = $5,
			closest_booking_time = $6, furthest_booking_time = $7, busy_calendars = $8
		WHERE service_id = $1 AND user_id = $2
	`, resource.ServiceID, resource.UserID, availability,
		resource.BufferBefore, resource.BufferAfter,
		resource.ClosestBookingTime, resource.FurthestBookingTime, busyCalendars)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrResourceNotFound
	}
	return nil
}

// RemoveResource deletes a user's membership in a service.
func (s *ServiceStore) RemoveResource(ctx context.Context, serviceID, userID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `
		DELETE FROM service_users WHERE service_id = $1 AND user_id = $2
	`, serviceID, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrResourceNotFound
	}
	return nil
}

// FindResource retrieves one user's membership in a service.
func (s *ServiceStore) FindResource(ctx context.Context, serviceID, userID uuid.UUID) (*domain.ServiceResource, error) {
	resources, err := s.queryResources(ctx, `
		SELECT id, user_id, service_id, availability, buffer_before, buffer_after,
		       closest_booking_time, furthest_booking_time, busy_calendars
		FROM service_users WHERE service_id = $1 AND user_id = $2
	`, serviceID, userID)
	if err != nil {
		return nil, err
	}
	if len(resources) == 0 {
		return nil, ErrResourceNotFound
	}
	return resources[0], nil
}

// FindResourcesByUser lists every service membership a user holds.
func (s *ServiceStore) FindResourcesByUser(ctx context.Context, userID uuid.UUID) ([]*domain.ServiceResource, error) {
	return s.queryResources(ctx, `
		SELECT id, user_id, service_id, availability, buffer_before, buffer_after,
		       closest_booking_time, furthest_booking_time, busy_calendars
		FROM service_users WHERE user_id = $1
	`, userID)
}

func (s *ServiceStore) queryResources(ctx context.Context, query string, args ...interface{}) ([]*domain.ServiceResource, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resources []*domain.ServiceResource
	for rows.Next() {
		resource := &domain.ServiceResource{}
		var availability, busyCalendars []byte
		if err := rows.Scan(
			&resource.ID, &resource.UserID, &resource.ServiceID, &availability,
			&resource.BufferBefore, &resource.BufferAfter,
			&resource.ClosestBookingTime, &resource.FurthestBookingTime, &busyCalendars,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(availability, &resource.Availability); err != nil {
			return nil, err
		}
		if len(busyCalendars) > 0 {
			if err := json.Unmarshal(busyCalendars, &resource.BusyCalendars); err != nil {
				return nil, err
			}
		}
		resources = append(resources, resource)
	}
	return resources, rows.Err()
}
