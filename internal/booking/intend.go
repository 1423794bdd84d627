package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nittei/nittei/internal/domain"
)

// IntendRequest reserves a concrete slot prior to event creation.
type IntendRequest struct {
	ServiceID   uuid.UUID
	HostUserIDs []uuid.UUID
	Timestamp   time.Time
	Duration    int64
	Interval    int64
}

// IntendResponse names the selected hosts. CreateEventForHosts is false
// only for group services whose reservation count has not reached the
// group size yet.
type IntendResponse struct {
	SelectedHosts        []*domain.User
	CreateEventForHosts  bool
}

// BookingIntend resolves the hosts for a slot according to the service's
// multi-person policy.
func (s *Service) BookingIntend(ctx context.Context, req IntendRequest) (*IntendResponse, error) {
	start := req.Timestamp.UTC()
	dayAfter := start.Add(24 * time.Hour)

	slotsRes, err := s.GetServiceBookingSlots(ctx, SlotsRequest{
		ServiceID:   req.ServiceID,
		StartDate:   domain.FormatDate(start, time.UTC),
		EndDate:     domain.FormatDate(dayAfter, time.UTC),
		Timezone:    "UTC",
		Duration:    req.Duration,
		Interval:    req.Interval,
		HostUserIDs: req.HostUserIDs,
	})
	if err != nil {
		return nil, err
	}
	service := slotsRes.Service

	slot, found := findSlotAt(slotsRes.BookingSlots.Dates, req.Timestamp)

	createEventForHosts := true
	var selectedHostIDs []uuid.UUID

	if len(req.HostUserIDs) > 0 {
		if !found {
			return nil, ErrUserNotAvailable
		}
		for _, hostID := range req.HostUserIDs {
			if !containsID(slot.UserIDs, hostID) {
				return nil, ErrUserNotAvailable
			}
		}
		selectedHostIDs = req.HostUserIDs
	} else {
		if !found || len(slot.UserIDs) == 0 {
			return nil, ErrUserNotAvailable
		}
		hostsAtSlot := make([]uuid.UUID, 0, len(slot.UserIDs))
		for _, resource := range service.Users {
			if containsID(slot.UserIDs, resource.UserID) {
				hostsAtSlot = append(hostsAtSlot, resource.UserID)
			}
		}
		if len(hostsAtSlot) == 0 {
			return nil, ErrUserNotAvailable
		}

		switch service.MultiPerson.Type {
		case domain.PolicyRoundRobinAvailability:
			selected, err := s.assignRoundRobinAvailability(ctx, service, hostsAtSlot)
			if err != nil {
				return nil, err
			}
			selectedHostIDs = []uuid.UUID{selected}

		case domain.PolicyRoundRobinEqualDistribution:
			selected, err := s.assignRoundRobinEqualDistribution(ctx, service, hostsAtSlot)
			if err != nil {
				return nil, err
			}
			selectedHostIDs = []uuid.UUID{selected}

		case domain.PolicyCollective:
			if len(hostsAtSlot) < len(service.Users) {
				return nil, ErrUserNotAvailable
			}
			selectedHostIDs = hostsAtSlot

		case domain.PolicyGroup:
			if len(hostsAtSlot) < len(service.Users) {
				return nil, ErrUserNotAvailable
			}
			reservations, err := s.reservations.Count(ctx, service.ID, req.Timestamp)
			if err != nil {
				return nil, err
			}
			if reservations+1 < service.MultiPerson.MaxCount {
				// slot not full yet, defer host-side event creation
				createEventForHosts = false
			}
			if err := s.reservations.Increment(ctx, service.ID, req.Timestamp); err != nil {
				return nil, err
			}
			selectedHostIDs = hostsAtSlot
		}
	}

	selectedHosts, err := s.users.FindMany(ctx, selectedHostIDs)
	if err != nil {
		return nil, err
	}
	return &IntendResponse{
		SelectedHosts:       selectedHosts,
		CreateEventForHosts: createEventForHosts,
	}, nil
}

func (s *Service) assignRoundRobinAvailability(ctx context.Context, service *domain.ServiceWithUsers, hostsAtSlot []uuid.UUID) (uuid.UUID, error) {
	if len(hostsAtSlot) == 1 {
		return hostsAtSlot[0], nil
	}
	mostRecent, err := s.events.FindMostRecentlyCreatedServiceEvents(ctx, service.ID, hostsAtSlot)
	if err != nil {
		return uuid.UUID{}, err
	}
	members := make([]domain.RoundRobinAvailabilityMember, 0, len(mostRecent))
	for _, row := range mostRecent {
		members = append(members, domain.RoundRobinAvailabilityMember{
			UserID:  row.UserID,
			Created: row.Created,
		})
	}
	selected, ok := domain.RoundRobinAvailabilityAssignment{Members: members}.Assign()
	if !ok {
		return uuid.UUID{}, ErrUserNotAvailable
	}
	return selected, nil
}

const equalDistributionHorizon = 61 * 24 * time.Hour

func (s *Service) assignRoundRobinEqualDistribution(ctx context.Context, service *domain.ServiceWithUsers, hostsAtSlot []uuid.UUID) (uuid.UUID, error) {
	if len(hostsAtSlot) == 1 {
		return hostsAtSlot[0], nil
	}
	now := s.now()
	events, err := s.events.FindByService(ctx, service.ID, hostsAtSlot, now, now.Add(equalDistributionHorizon))
	if err != nil {
		return uuid.UUID{}, err
	}
	selected, ok := domain.RoundRobinEqualDistributionAssignment{
		Events:  events,
		UserIDs: hostsAtSlot,
	}.Assign()
	if !ok {
		return uuid.UUID{}, ErrUserNotAvailable
	}
	return selected, nil
}

// findSlotAt locates the bucket at the exact start instant. Buckets are
// sorted, so the scan stops at the first bucket past it.
func findSlotAt(dates []domain.ServiceBookingSlotsDate, at time.Time) (domain.ServiceBookingSlot, bool) {
	for _, date := range dates {
		for _, slot := range date.Slots {
			if slot.Start.Equal(at) {
				return slot, true
			}
			if slot.Start.After(at) {
				return domain.ServiceBookingSlot{}, false
			}
		}
	}
	return domain.ServiceBookingSlot{}, false
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
