// Package freebusy resolves users' free and busy intervals from their
// calendars over a bounded window.
package freebusy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nittei/nittei/internal/domain"
)

// ErrWindowTooLarge is returned when a request window exceeds the
// configured query duration limit.
var ErrWindowTooLarge = errors.New("freebusy window exceeds the configured limit")

// CalendarReader is the calendar query surface the resolver consumes.
type CalendarReader interface {
	FindByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Calendar, error)
}

// EventReader is the event query surface the resolver consumes.
type EventReader interface {
	FindByCalendar(ctx context.Context, calendarID uuid.UUID, tspan *domain.TimeSpan) ([]*domain.CalendarEvent, error)
}

// Service combines stored events, recurrence expansion and the interval
// algebra into free/busy answers.
type Service struct {
	calendars   CalendarReader
	events      EventReader
	windowLimit time.Duration
	fanoutChunk int
	logger      *zap.Logger
}

// NewService creates a resolver. fanoutChunk bounds how many users are
// resolved concurrently in multi-user requests.
func NewService(calendars CalendarReader, events EventReader, windowLimit time.Duration, fanoutChunk int, logger *zap.Logger) *Service {
	if fanoutChunk < 1 {
		fanoutChunk = 5
	}
	return &Service{
		calendars:   calendars,
		events:      events,
		windowLimit: windowLimit,
		fanoutChunk: fanoutChunk,
		logger:      logger,
	}
}

// Request is a single-user free/busy query. When CalendarIDs is
// non-empty the user's calendars are intersected with it.
type Request struct {
	UserID      uuid.UUID
	CalendarIDs []uuid.UUID
	TimeSpan    domain.TimeSpan
}

// GetUserFreeBusy returns the user's merged busy intervals over the
// window.
func (s *Service) GetUserFreeBusy(ctx context.Context, req Request) (*domain.CompatibleInstances, error) {
	if req.TimeSpan.GreaterThan(s.windowLimit) {
		return nil, ErrWindowTooLarge
	}

	instances, err := s.expandUserCalendars(ctx, req)
	if err != nil {
		return nil, err
	}

	var busy []domain.EventInstance
	for _, instance := range instances {
		if instance.Busy {
			busy = append(busy, instance)
		}
	}
	return domain.NewCompatibleInstances(busy), nil
}

// GetMultipleUsersFreeBusy resolves each user's busy intervals over the
// window, fanning out in bounded batches to cap concurrent storage I/O.
func (s *Service) GetMultipleUsersFreeBusy(ctx context.Context, userIDs []uuid.UUID, tspan domain.TimeSpan) (map[uuid.UUID][]domain.EventInstance, error) {
	if tspan.GreaterThan(s.windowLimit) {
		return nil, ErrWindowTooLarge
	}

	result := make(map[uuid.UUID][]domain.EventInstance, len(userIDs))
	var mu sync.Mutex

	for start := 0; start < len(userIDs); start += s.fanoutChunk {
		end := start + s.fanoutChunk
		if end > len(userIDs) {
			end = len(userIDs)
		}

		group, groupCtx := errgroup.WithContext(ctx)
		for _, userID := range userIDs[start:end] {
			group.Go(func() error {
				busy, err := s.GetUserFreeBusy(groupCtx, Request{UserID: userID, TimeSpan: tspan})
				if err != nil {
					return fmt.Errorf("freebusy for user %s: %w", userID, err)
				}
				mu.Lock()
				result[userID] = busy.Inner()
				mu.Unlock()
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *Service) expandUserCalendars(ctx context.Context, req Request) ([]domain.EventInstance, error) {
	calendars, err := s.calendars.FindByUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if len(req.CalendarIDs) > 0 {
		requested := make(map[uuid.UUID]struct{}, len(req.CalendarIDs))
		for _, id := range req.CalendarIDs {
			requested[id] = struct{}{}
		}
		filtered := calendars[:0]
		for _, calendar := range calendars {
			if _, ok := requested[calendar.ID]; ok {
				filtered = append(filtered, calendar)
			}
		}
		calendars = filtered
	}

	var instances []domain.EventInstance
	for _, calendar := range calendars {
		events, err := s.events.FindByCalendar(ctx, calendar.ID, &req.TimeSpan)
		if err != nil {
			return nil, err
		}
		for _, event := range events {
			expanded, err := event.Expand(&req.TimeSpan, calendar.Settings)
			if err != nil {
				// a single malformed recurrence must not fail the
				// whole window
				s.logger.Error("failed to expand event",
					zap.String("event_id", event.ID.String()),
					zap.Error(err))
				continue
			}
			instances = append(instances, expanded...)
		}
	}
	return instances, nil
}
