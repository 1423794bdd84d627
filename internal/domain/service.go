package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// TimePlanType discriminates the availability plan of a service
// resource.
type TimePlanType string

const (
	TimePlanCalendar TimePlanType = "calendar"
	TimePlanSchedule TimePlanType = "schedule"
	TimePlanEmpty    TimePlanType = "empty"
)

// TimePlan is the availability source for one service resource: a
// specific calendar, a schedule, or nothing.
type TimePlan struct {
	Type TimePlanType `json:"type"`
	ID   uuid.UUID    `json:"id,omitempty"`
}

// BusyCalendarProvider identifies where a busy calendar lives.
type BusyCalendarProvider string

const (
	BusyCalendarInternal BusyCalendarProvider = "nittei"
	BusyCalendarGoogle   BusyCalendarProvider = "google"
	BusyCalendarOutlook  BusyCalendarProvider = "outlook"
)

// BusyCalendar references a calendar whose events block availability.
// Internal calendars are referenced by uuid, external ones by the
// provider's own id.
type BusyCalendar struct {
	Provider BusyCalendarProvider `json:"provider"`
	ID       string               `json:"id"`
}

// MultiPersonPolicyType selects the host-assignment strategy of a
// service.
type MultiPersonPolicyType string

const (
	PolicyRoundRobinAvailability      MultiPersonPolicyType = "roundRobinAvailability"
	PolicyRoundRobinEqualDistribution MultiPersonPolicyType = "roundRobinEqualDistribution"
	PolicyCollective                  MultiPersonPolicyType = "collective"
	PolicyGroup                       MultiPersonPolicyType = "group"
)

// MultiPersonPolicy is the per-service host-selection strategy. MaxCount
// is only meaningful for the group policy.
type MultiPersonPolicy struct {
	Type     MultiPersonPolicyType `json:"type"`
	MaxCount int                   `json:"maxCount,omitempty"`
}

// UnmarshalJSON validates the policy while decoding.
func (p *MultiPersonPolicy) UnmarshalJSON(data []byte) error {
	type alias MultiPersonPolicy
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	switch decoded.Type {
	case PolicyRoundRobinAvailability, PolicyRoundRobinEqualDistribution, PolicyCollective:
	case PolicyGroup:
		if decoded.MaxCount < 1 {
			return fmt.Errorf("group policy requires maxCount >= 1")
		}
	default:
		return fmt.Errorf("invalid multi person policy: %q", decoded.Type)
	}
	*p = MultiPersonPolicy(decoded)
	return nil
}

// ServiceResource is one user's membership in a service: the plan that
// makes them available, the calendars that make them busy, and their
// booking constraints.
type ServiceResource struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	ServiceID uuid.UUID `json:"serviceId"`
	// Availability is the plan free time is derived from.
	Availability TimePlan `json:"availability"`
	// BufferBefore/BufferAfter pad this resource's service events, in
	// minutes.
	BufferBefore int64 `json:"bufferBefore"`
	BufferAfter  int64 `json:"bufferAfter"`
	// ClosestBookingTime is the minimum lead time in minutes before a
	// slot can be booked. FurthestBookingTime caps the horizon, nil
	// meaning no cap.
	ClosestBookingTime  int64  `json:"closestBookingTime"`
	FurthestBookingTime *int64 `json:"furthestBookingTime,omitempty"`
	BusyCalendars       []BusyCalendar `json:"busyCalendars"`
}

// NewServiceResource creates a membership with an empty plan.
func NewServiceResource(serviceID, userID uuid.UUID) *ServiceResource {
	return &ServiceResource{
		ID:           uuid.New(),
		UserID:       userID,
		ServiceID:    serviceID,
		Availability: TimePlan{Type: TimePlanEmpty},
	}
}

// HasBusyCalendar reports whether the resource already tracks the given
// busy calendar.
func (r *ServiceResource) HasBusyCalendar(busy BusyCalendar) bool {
	for _, existing := range r.BusyCalendars {
		if existing == busy {
			return true
		}
	}
	return false
}

// Service is a bookable resource set.
type Service struct {
	ID          uuid.UUID         `json:"id"`
	AccountID   uuid.UUID         `json:"accountId"`
	MultiPerson MultiPersonPolicy `json:"multiPerson"`
	Metadata    Metadata          `json:"metadata,omitempty"`
}

// NewService creates a service with the round-robin availability
// policy.
func NewService(accountID uuid.UUID) *Service {
	return &Service{
		ID:          uuid.New(),
		AccountID:   accountID,
		MultiPerson: MultiPersonPolicy{Type: PolicyRoundRobinAvailability},
	}
}

// ServiceWithUsers is a service together with its member resources.
type ServiceWithUsers struct {
	Service
	Users []*ServiceResource `json:"users"`
}
