// Package booking turns service-resource availability into bookable
// slots and applies host-selection policies.
package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nittei/nittei/internal/domain"
	"github.com/nittei/nittei/internal/store"
)

var (
	// ErrWindowTooLarge is returned when the slots window exceeds the
	// configured limit.
	ErrWindowTooLarge = errors.New("booking slots window exceeds the configured limit")
	// ErrUserNotAvailable is returned when the requested slot has no
	// bucket or a requested host is missing from it.
	ErrUserNotAvailable = errors.New("user is not available at the given time")
)

// ServiceReader is the service query surface the solver consumes.
type ServiceReader interface {
	FindWithUsers(ctx context.Context, id uuid.UUID) (*domain.ServiceWithUsers, error)
	FindResourcesByUser(ctx context.Context, userID uuid.UUID) ([]*domain.ServiceResource, error)
}

// CalendarReader resolves a user's calendars.
type CalendarReader interface {
	FindByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Calendar, error)
}

// EventReader is the event query surface the solver consumes.
type EventReader interface {
	FindByCalendar(ctx context.Context, calendarID uuid.UUID, tspan *domain.TimeSpan) ([]*domain.CalendarEvent, error)
	FindMostRecentlyCreatedServiceEvents(ctx context.Context, serviceID uuid.UUID, userIDs []uuid.UUID) ([]store.ServiceEventCreated, error)
	FindByService(ctx context.Context, serviceID uuid.UUID, userIDs []uuid.UUID, min, max time.Time) ([]*domain.CalendarEvent, error)
}

// ScheduleReader resolves availability schedules.
type ScheduleReader interface {
	Find(ctx context.Context, id uuid.UUID) (*domain.Schedule, error)
}

// UserReader resolves users for host selection results.
type UserReader interface {
	FindMany(ctx context.Context, ids []uuid.UUID) ([]*domain.User, error)
}

// ReservationCounter is the per-slot reservation counter of the group
// policy.
type ReservationCounter interface {
	Count(ctx context.Context, serviceID uuid.UUID, slotStart time.Time) (int, error)
	Increment(ctx context.Context, serviceID uuid.UUID, slotStart time.Time) error
}

// ExternalBusyFetcher contributes busy intervals from external provider
// calendars. Implementations resolve the user's stored provider tokens.
type ExternalBusyFetcher interface {
	FetchBusy(ctx context.Context, userID uuid.UUID, provider domain.BusyCalendarProvider, calendarIDs []string, tspan domain.TimeSpan) ([]domain.EventInstance, error)
}

// Service is the booking slot solver.
type Service struct {
	services     ServiceReader
	calendars    CalendarReader
	events       EventReader
	schedules    ScheduleReader
	users        UserReader
	reservations ReservationCounter
	externalBusy ExternalBusyFetcher
	windowLimit  time.Duration
	logger       *zap.Logger

	// now is swapped in tests
	now func() time.Time
}

// NewService creates a solver. externalBusy may be nil when no provider
// is configured.
func NewService(
	services ServiceReader,
	calendars CalendarReader,
	events EventReader,
	schedules ScheduleReader,
	users UserReader,
	reservations ReservationCounter,
	externalBusy ExternalBusyFetcher,
	windowLimit time.Duration,
	logger *zap.Logger,
) *Service {
	return &Service{
		services:     services,
		calendars:    calendars,
		events:       events,
		schedules:    schedules,
		users:        users,
		reservations: reservations,
		externalBusy: externalBusy,
		windowLimit:  windowLimit,
		logger:       logger,
		now:          time.Now,
	}
}

// SlotsRequest is a booking-slots query.
type SlotsRequest struct {
	ServiceID   uuid.UUID
	StartDate   string
	EndDate     string
	Timezone    string
	Duration    int64
	Interval    int64
	HostUserIDs []uuid.UUID
}

// SlotsResponse carries the date-grouped slots plus the service the
// query resolved.
type SlotsResponse struct {
	BookingSlots domain.ServiceBookingSlots
	Service      *domain.ServiceWithUsers
}

// GetServiceBookingSlots discretises each host's free intervals into
// slots and intersects them across hosts.
func (s *Service) GetServiceBookingSlots(ctx context.Context, req SlotsRequest) (*SlotsResponse, error) {
	tspan, loc, err := domain.ValidateBookingSlotsQuery(domain.BookingSlotsQuery{
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Timezone:  req.Timezone,
		Duration:  req.Duration,
		Interval:  req.Interval,
	})
	if err != nil {
		return nil, err
	}
	if tspan.GreaterThan(s.windowLimit) {
		return nil, ErrWindowTooLarge
	}

	service, err := s.services.FindWithUsers(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}

	resources := service.Users
	if len(req.HostUserIDs) > 0 {
		requested := make(map[uuid.UUID]struct{}, len(req.HostUserIDs))
		for _, id := range req.HostUserIDs {
			requested[id] = struct{}{}
		}
		var filtered []*domain.ServiceResource
		for _, resource := range resources {
			if _, ok := requested[resource.UserID]; ok {
				filtered = append(filtered, resource)
			}
		}
		resources = filtered
	}

	usersFree := make([]domain.UserFreeEvents, 0, len(resources))
	for _, resource := range resources {
		usersFree = append(usersFree, s.getBookableTimes(ctx, resource, tspan))
	}

	options := domain.BookingSlotsOptions{
		StartTime: tspan.Start,
		EndTime:   tspan.End,
		Duration:  req.Duration,
		Interval:  req.Interval,
	}
	slots := domain.GetServiceBookingSlots(usersFree, options)

	return &SlotsResponse{
		BookingSlots: domain.NewServiceBookingSlots(slots, loc),
		Service:      service,
	}, nil
}

// getBookableTimes finds the free intervals of one service resource over
// the window: availability plan minus busy calendars, clipped to the
// resource's booking constraints.
func (s *Service) getBookableTimes(ctx context.Context, resource *domain.ServiceResource, tspan domain.TimeSpan) domain.UserFreeEvents {
	empty := domain.UserFreeEvents{
		FreeEvents: domain.NewCompatibleInstances(nil),
		UserID:     resource.UserID,
	}

	clipped, ok := s.clipToBookingConstraints(resource, tspan)
	if !ok {
		return empty
	}

	userCalendars, err := s.calendars.FindByUser(ctx, resource.UserID)
	if err != nil {
		s.logger.Warn("unable to fetch user calendars",
			zap.String("user_id", resource.UserID.String()), zap.Error(err))
		return empty
	}

	free := s.getUserAvailability(ctx, resource, userCalendars, clipped)
	busy := s.getUserBusy(ctx, resource, userCalendars, clipped)
	free.RemoveInstances(busy, 0)
	free.RemoveAllBefore(clipped.Start)
	free.RemoveAllAfter(clipped.End)

	return domain.UserFreeEvents{FreeEvents: free, UserID: resource.UserID}
}

// clipToBookingConstraints shifts the window start forward by the
// closest booking lead time and clamps the end to the furthest booking
// horizon, both relative to now.
func (s *Service) clipToBookingConstraints(resource *domain.ServiceResource, tspan domain.TimeSpan) (domain.TimeSpan, bool) {
	now := s.now()

	firstAvailable := now.Add(time.Duration(resource.ClosestBookingTime) * time.Minute)
	if tspan.Start.Before(firstAvailable) {
		tspan.Start = firstAvailable
	}
	if resource.FurthestBookingTime != nil {
		lastAvailable := now.Add(time.Duration(*resource.FurthestBookingTime) * time.Minute)
		if lastAvailable.Before(tspan.End) {
			if !lastAvailable.After(tspan.Start) {
				return domain.TimeSpan{}, false
			}
			tspan.End = lastAvailable
		}
	}
	if !tspan.End.After(tspan.Start) {
		return domain.TimeSpan{}, false
	}
	return tspan, true
}

func (s *Service) getUserAvailability(ctx context.Context, resource *domain.ServiceResource, userCalendars []*domain.Calendar, tspan domain.TimeSpan) *domain.CompatibleInstances {
	empty := domain.NewCompatibleInstances(nil)

	switch resource.Availability.Type {
	case domain.TimePlanCalendar:
		var calendar *domain.Calendar
		for _, candidate := range userCalendars {
			if candidate.ID == resource.Availability.ID {
				calendar = candidate
				break
			}
		}
		if calendar == nil {
			return empty
		}
		events, err := s.events.FindByCalendar(ctx, calendar.ID, &tspan)
		if err != nil {
			s.logger.Warn("unable to fetch availability calendar events",
				zap.String("calendar_id", calendar.ID.String()), zap.Error(err))
			return empty
		}
		var instances []domain.EventInstance
		for _, event := range events {
			expanded, err := event.Expand(&tspan, calendar.Settings)
			if err != nil {
				s.logger.Error("failed to expand event",
					zap.String("event_id", event.ID.String()), zap.Error(err))
				continue
			}
			instances = append(instances, expanded...)
		}
		return domain.GetFreeBusy(instances).Free

	case domain.TimePlanSchedule:
		schedule, err := s.schedules.Find(ctx, resource.Availability.ID)
		if err != nil || schedule.UserID != resource.UserID {
			return empty
		}
		free, err := schedule.FreeBusy(tspan)
		if err != nil {
			s.logger.Error("failed to evaluate schedule",
				zap.String("schedule_id", schedule.ID.String()), zap.Error(err))
			return empty
		}
		return free

	default:
		return empty
	}
}

func (s *Service) getUserBusy(ctx context.Context, resource *domain.ServiceResource, userCalendars []*domain.Calendar, tspan domain.TimeSpan) *domain.CompatibleInstances {
	var busyInstances []domain.EventInstance

	allResources, err := s.services.FindResourcesByUser(ctx, resource.UserID)
	if err != nil {
		s.logger.Warn("unable to fetch service resources",
			zap.String("user_id", resource.UserID.String()), zap.Error(err))
	}

	for _, calendar := range s.internalBusyCalendars(resource, userCalendars) {
		events, err := s.events.FindByCalendar(ctx, calendar.ID, &tspan)
		if err != nil {
			s.logger.Warn("unable to fetch busy calendar events",
				zap.String("calendar_id", calendar.ID.String()), zap.Error(err))
			continue
		}
		for _, event := range events {
			if !event.Busy {
				continue
			}
			instances, err := event.Expand(&tspan, calendar.Settings)
			if err != nil {
				s.logger.Error("failed to expand event",
					zap.String("event_id", event.ID.String()), zap.Error(err))
				continue
			}
			// service events get the owning resource's buffers applied
			if event.ServiceID != nil {
				for _, candidate := range allResources {
					if candidate.ServiceID == *event.ServiceID {
						before := time.Duration(candidate.BufferBefore) * time.Minute
						after := time.Duration(candidate.BufferAfter) * time.Minute
						for i := range instances {
							instances[i].StartTime = instances[i].StartTime.Add(-before)
							instances[i].EndTime = instances[i].EndTime.Add(after)
						}
						break
					}
				}
			}
			busyInstances = append(busyInstances, instances...)
		}
	}

	// external busy sources contribute plain intervals, no expansion
	if s.externalBusy != nil {
		for _, provider := range []domain.BusyCalendarProvider{domain.BusyCalendarGoogle, domain.BusyCalendarOutlook} {
			var externalIDs []string
			for _, busyCalendar := range resource.BusyCalendars {
				if busyCalendar.Provider == provider {
					externalIDs = append(externalIDs, busyCalendar.ID)
				}
			}
			if len(externalIDs) == 0 {
				continue
			}
			external, err := s.externalBusy.FetchBusy(ctx, resource.UserID, provider, externalIDs, tspan)
			if err != nil {
				s.logger.Warn("unable to fetch external busy intervals",
					zap.String("user_id", resource.UserID.String()),
					zap.String("provider", string(provider)), zap.Error(err))
				continue
			}
			busyInstances = append(busyInstances, external...)
		}
	}

	return domain.NewCompatibleInstances(busyInstances)
}

func (s *Service) internalBusyCalendars(resource *domain.ServiceResource, userCalendars []*domain.Calendar) []*domain.Calendar {
	var calendars []*domain.Calendar
	for _, calendar := range userCalendars {
		for _, busyCalendar := range resource.BusyCalendars {
			if busyCalendar.Provider != domain.BusyCalendarInternal {
				continue
			}
			if busyCalendar.ID == calendar.ID.String() {
				calendars = append(calendars, calendar)
				break
			}
		}
	}
	return calendars
}
