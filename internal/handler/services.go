package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nittei/nittei/internal/booking"
	"github.com/nittei/nittei/internal/domain"
	"github.com/nittei/nittei/internal/store"
)

var errInvalidTimePlan = errors.New("invalid availability plan type")

type createServiceRequest struct {
	MultiPerson *domain.MultiPersonPolicy `json:"multiPerson,omitempty"`
	Metadata    domain.Metadata           `json:"metadata,omitempty"`
}

// CreateService creates a bookable service.
func (s *Server) CreateService(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAdmin(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	var body createServiceRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}

	service := domain.NewService(account.ID)
	if body.MultiPerson != nil {
		service.MultiPerson = *body.MultiPerson
	}
	service.Metadata = body.Metadata

	if err := s.services.Insert(r.Context(), service); err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, service)
}

// GetService returns a service together with its member resources.
func (s *Server) GetService(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAccount(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	serviceID, err := s.parseUUIDParam(r, "serviceID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	if _, err := s.accountOwnedService(r.Context(), account, serviceID); err != nil {
		s.handleError(w, err)
		return
	}
	withUsers, err := s.services.FindWithUsers(r.Context(), serviceID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, withUsers)
}

// UpdateService updates the service policy and metadata.
func (s *Server) UpdateService(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAdmin(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	serviceID, err := s.parseUUIDParam(r, "serviceID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	service, err := s.accountOwnedService(r.Context(), account, serviceID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	var body createServiceRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}
	if body.MultiPerson != nil {
		service.MultiPerson = *body.MultiPerson
	}
	if body.Metadata != nil {
		service.Metadata = body.Metadata
	}
	if err := s.services.Save(r.Context(), service); err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, service)
}

// DeleteService removes a service, its resources, reservations and
// service events.
func (s *Server) DeleteService(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAdmin(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	serviceID, err := s.parseUUIDParam(r, "serviceID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	service, err := s.accountOwnedService(r.Context(), account, serviceID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if err := s.events.DeleteByService(r.Context(), service.ID); err != nil {
		s.handleError(w, err)
		return
	}
	if err := s.services.Delete(r.Context(), service.ID); err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, service)
}

type serviceResourceRequest struct {
	UserID              *uuid.UUID             `json:"userId,omitempty"`
	Availability        *domain.TimePlan       `json:"availability,omitempty"`
	BufferBefore        *int64                 `json:"bufferBefore,omitempty"`
	BufferAfter         *int64                 `json:"bufferAfter,omitempty"`
	ClosestBookingTime  *int64                 `json:"closestBookingTime,omitempty"`
	FurthestBookingTime *int64                 `json:"furthestBookingTime,omitempty"`
	BusyCalendars       []domain.BusyCalendar  `json:"busyCalendars,omitempty"`
}

func (s *Server) applyResourceUpdate(r *http.Request, account *domain.Account, resource *domain.ServiceResource, body *serviceResourceRequest) error {
	if body.Availability != nil {
		switch body.Availability.Type {
		case domain.TimePlanCalendar:
			calendar, err := s.accountOwnedCalendar(r.Context(), account, body.Availability.ID)
			if err != nil || calendar.UserID != resource.UserID {
				return store.ErrCalendarNotFound
			}
		case domain.TimePlanSchedule:
			schedule, err := s.accountOwnedSchedule(r.Context(), account, body.Availability.ID)
			if err != nil || schedule.UserID != resource.UserID {
				return store.ErrScheduleNotFound
			}
		case domain.TimePlanEmpty:
		default:
			return errInvalidTimePlan
		}
		resource.Availability = *body.Availability
	}
	if body.BufferBefore != nil {
		resource.BufferBefore = *body.BufferBefore
	}
	if body.BufferAfter != nil {
		resource.BufferAfter = *body.BufferAfter
	}
	if body.ClosestBookingTime != nil {
		resource.ClosestBookingTime = *body.ClosestBookingTime
	}
	if body.FurthestBookingTime != nil {
		resource.FurthestBookingTime = body.FurthestBookingTime
	}
	if body.BusyCalendars != nil {
		resource.BusyCalendars = body.BusyCalendars
	}
	return nil
}

// AddServiceUser registers a user as a bookable resource on a service.
func (s *Server) AddServiceUser(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAdmin(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	serviceID, err := s.parseUUIDParam(r, "serviceID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	service, err := s.accountOwnedService(r.Context(), account, serviceID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	var body serviceResourceRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}
	if body.UserID == nil {
		badClientData(w, "userId is required")
		return
	}
	user, err := s.accountOwnedUser(r.Context(), account, *body.UserID)
	if err != nil {
		s.handleError(w, err)
		return
	}

	resource := domain.NewServiceResource(service.ID, user.ID)
	if err := s.applyResourceUpdate(r, account, resource, &body); err != nil {
		s.handleError(w, err)
		return
	}
	if err := s.services.AddResource(r.Context(), resource); err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, resource)
}

// UpdateServiceUser updates a member's availability, buffers and booking
// windows.
func (s *Server) UpdateServiceUser(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAdmin(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	serviceID, err := s.parseUUIDParam(r, "serviceID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	userID, err := s.parseUUIDParam(r, "userID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	if _, err := s.accountOwnedService(r.Context(), account, serviceID); err != nil {
		s.handleError(w, err)
		return
	}
	resource, err := s.services.FindResource(r.Context(), serviceID, userID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	var body serviceResourceRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}
	if err := s.applyResourceUpdate(r, account, resource, &body); err != nil {
		s.handleError(w, err)
		return
	}
	if err := s.services.SaveResource(r.Context(), resource); err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resource)
}

// RemoveServiceUser removes a member from a service.
func (s *Server) RemoveServiceUser(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAdmin(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	serviceID, err := s.parseUUIDParam(r, "serviceID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	userID, err := s.parseUUIDParam(r, "userID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	if _, err := s.accountOwnedService(r.Context(), account, serviceID); err != nil {
		s.handleError(w, err)
		return
	}
	if err := s.services.RemoveResource(r.Context(), serviceID, userID); err != nil {
		s.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type busyCalendarRequest struct {
	BusyCalendar domain.BusyCalendar `json:"busyCalendar" validate:"required"`
}

// AddBusyCalendar registers a calendar whose events block this member's
// availability.
func (s *Server) AddBusyCalendar(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAdmin(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	serviceID, err := s.parseUUIDParam(r, "serviceID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	userID, err := s.parseUUIDParam(r, "userID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	if _, err := s.accountOwnedService(r.Context(), account, serviceID); err != nil {
		s.handleError(w, err)
		return
	}
	resource, err := s.services.FindResource(r.Context(), serviceID, userID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	var body busyCalendarRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}

	if body.BusyCalendar.Provider == domain.BusyCalendarInternal {
		calendarID, err := uuid.Parse(body.BusyCalendar.ID)
		if err != nil {
			badClientData(w, "invalid internal calendar id")
			return
		}
		calendar, err := s.accountOwnedCalendar(r.Context(), account, calendarID)
		if err != nil || calendar.UserID != resource.UserID {
			s.handleError(w, store.ErrCalendarNotFound)
			return
		}
	}
	if resource.HasBusyCalendar(body.BusyCalendar) {
		s.handleError(w, store.ErrBusyCalendarExists)
		return
	}

	resource.BusyCalendars = append(resource.BusyCalendars, body.BusyCalendar)
	if err := s.services.SaveResource(r.Context(), resource); err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resource)
}

// RemoveBusyCalendar unregisters a busy calendar from a member.
func (s *Server) RemoveBusyCalendar(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAdmin(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	serviceID, err := s.parseUUIDParam(r, "serviceID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	userID, err := s.parseUUIDParam(r, "userID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	if _, err := s.accountOwnedService(r.Context(), account, serviceID); err != nil {
		s.handleError(w, err)
		return
	}
	resource, err := s.services.FindResource(r.Context(), serviceID, userID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	var body busyCalendarRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}

	kept := resource.BusyCalendars[:0]
	for _, busyCalendar := range resource.BusyCalendars {
		if busyCalendar != body.BusyCalendar {
			kept = append(kept, busyCalendar)
		}
	}
	resource.BusyCalendars = kept
	if err := s.services.SaveResource(r.Context(), resource); err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resource)
}

// GetServiceBookingSlots answers a booking-slots query.
func (s *Server) GetServiceBookingSlots(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAccount(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	serviceID, err := s.parseUUIDParam(r, "serviceID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	if _, err := s.accountOwnedService(r.Context(), account, serviceID); err != nil {
		s.handleError(w, err)
		return
	}
	duration, err := parseInt64Query(r, "duration")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	interval, err := parseInt64Query(r, "interval")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	hostUserIDs, err := parseUUIDList(r.URL.Query().Get("hostUserIds"))
	if err != nil {
		badClientData(w, err.Error())
		return
	}

	res, err := s.booking.GetServiceBookingSlots(r.Context(), booking.SlotsRequest{
		ServiceID:   serviceID,
		StartDate:   r.URL.Query().Get("startDate"),
		EndDate:     r.URL.Query().Get("endDate"),
		Timezone:    r.URL.Query().Get("timezone"),
		Duration:    duration,
		Interval:    interval,
		HostUserIDs: hostUserIDs,
	})
	if err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res.BookingSlots)
}

type bookingIntendRequest struct {
	Timestamp   time.Time   `json:"timestamp" validate:"required"`
	Duration    int64       `json:"duration" validate:"required,gt=0"`
	Interval    int64       `json:"interval" validate:"required,gt=0"`
	HostUserIDs []uuid.UUID `json:"hostUserIds,omitempty"`
}

// CreateBookingIntend reserves a slot and selects hosts per the service
// policy.
func (s *Server) CreateBookingIntend(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAccount(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	serviceID, err := s.parseUUIDParam(r, "serviceID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	if _, err := s.accountOwnedService(r.Context(), account, serviceID); err != nil {
		s.handleError(w, err)
		return
	}
	var body bookingIntendRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}

	res, err := s.booking.BookingIntend(r.Context(), booking.IntendRequest{
		ServiceID:   serviceID,
		HostUserIDs: body.HostUserIDs,
		Timestamp:   body.Timestamp,
		Duration:    body.Duration,
		Interval:    body.Interval,
	})
	if err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"selectedHosts":       res.SelectedHosts,
		"createEventForHosts": res.CreateEventForHosts,
	})
}

type deleteBookingIntendRequest struct {
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

// DeleteBookingIntend releases a reservation made by a prior intend.
func (s *Server) DeleteBookingIntend(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAccount(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	serviceID, err := s.parseUUIDParam(r, "serviceID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	service, err := s.accountOwnedService(r.Context(), account, serviceID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	var body deleteBookingIntendRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}
	if err := s.reservations.Decrement(r.Context(), service.ID, body.Timestamp); err != nil {
		s.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
