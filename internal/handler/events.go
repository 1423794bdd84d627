package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nittei/nittei/internal/domain"
	"github.com/nittei/nittei/internal/reminder"
	"github.com/nittei/nittei/internal/store"
)

var errInvalidStatus = errors.New("invalid status, expected tentative, confirmed or cancelled")

type createEventRequest struct {
	CalendarID        uuid.UUID                      `json:"calendarId" validate:"required"`
	Title             *string                        `json:"title,omitempty"`
	Description       *string                        `json:"description,omitempty"`
	EventType         *string                        `json:"eventType,omitempty"`
	Location          *string                        `json:"location,omitempty"`
	Status            *domain.CalendarEventStatus    `json:"status,omitempty"`
	AllDay            *bool                          `json:"allDay,omitempty"`
	StartTime         time.Time                      `json:"startTime" validate:"required"`
	Duration          int64                          `json:"duration" validate:"gte=0"`
	Busy              *bool                          `json:"busy,omitempty"`
	Recurrence        *domain.RecurrenceRule         `json:"recurrence,omitempty"`
	Exdates           []time.Time                    `json:"exdates,omitempty"`
	RecurringEventID  *uuid.UUID                     `json:"recurringEventId,omitempty"`
	OriginalStartTime *time.Time                     `json:"originalStartTime,omitempty"`
	Reminders         []domain.CalendarEventReminder `json:"reminders,omitempty"`
	ServiceID         *uuid.UUID                     `json:"serviceId,omitempty"`
	GroupID           *uuid.UUID                     `json:"groupId,omitempty"`
	ExternalID        *string                        `json:"externalId,omitempty"`
	ExternalParentID  *string                        `json:"externalParentId,omitempty"`
	Metadata          domain.Metadata                `json:"metadata,omitempty"`
}

func (s *Server) buildEvent(account *domain.Account, user *domain.User, calendar *domain.Calendar, body *createEventRequest) (*domain.CalendarEvent, error) {
	now := time.Now().UTC()
	event := &domain.CalendarEvent{
		ID:                uuid.New(),
		AccountID:         account.ID,
		UserID:            user.ID,
		CalendarID:        calendar.ID,
		Title:             body.Title,
		Description:       body.Description,
		EventType:         body.EventType,
		Location:          body.Location,
		Status:            domain.StatusTentative,
		Exdates:           body.Exdates,
		RecurringEventID:  body.RecurringEventID,
		OriginalStartTime: body.OriginalStartTime,
		Reminders:         body.Reminders,
		ServiceID:         body.ServiceID,
		GroupID:           body.GroupID,
		ExternalID:        body.ExternalID,
		ExternalParentID:  body.ExternalParentID,
		Metadata:          body.Metadata,
		Created:           now,
		Updated:           now,
	}
	if body.Status != nil {
		if !body.Status.Valid() {
			return nil, errInvalidStatus
		}
		event.Status = *body.Status
	}
	if body.AllDay != nil {
		event.AllDay = *body.AllDay
	}
	if body.Busy != nil {
		event.Busy = *body.Busy
	}
	event.StartTime = body.StartTime.UTC()
	event.SetDuration(body.Duration)

	if err := event.Validate(); err != nil {
		return nil, err
	}
	if body.Recurrence != nil {
		// validates the rule and derives the recurring bound; nothing
		// is persisted when the rule is invalid
		if err := event.SetRecurrence(*body.Recurrence, calendar.Settings); err != nil {
			return nil, err
		}
	}
	return event, nil
}

// CreateEvent creates an event in one of the user's calendars.
func (s *Server) CreateEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := s.parseUUIDParam(r, "userID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	account, user, err := s.authUser(r, userID)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	var body createEventRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}
	calendar, err := s.accountOwnedCalendar(r.Context(), account, body.CalendarID)
	if err != nil || calendar.UserID != user.ID {
		s.handleError(w, store.ErrCalendarNotFound)
		return
	}

	event, err := s.buildEvent(account, user, calendar, &body)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if err := s.events.Insert(r.Context(), event); err != nil {
		s.handleError(w, err)
		return
	}
	s.syncReminders(r, event, reminder.EventCreated)
	respondJSON(w, http.StatusCreated, event)
}

type createManyEventsRequest struct {
	Events []createEventRequest `json:"events" validate:"required,min=1"`
}

// CreateManyEvents validates the whole batch, then inserts it in one
// round trip. A single invalid event rejects the batch before anything
// is written.
func (s *Server) CreateManyEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := s.parseUUIDParam(r, "userID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	account, user, err := s.authUser(r, userID)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	var body createManyEventsRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}

	events := make([]*domain.CalendarEvent, 0, len(body.Events))
	for i := range body.Events {
		calendar, err := s.accountOwnedCalendar(r.Context(), account, body.Events[i].CalendarID)
		if err != nil || calendar.UserID != user.ID {
			s.handleError(w, store.ErrCalendarNotFound)
			return
		}
		event, err := s.buildEvent(account, user, calendar, &body.Events[i])
		if err != nil {
			s.handleError(w, err)
			return
		}
		events = append(events, event)
	}

	if err := s.events.InsertMany(r.Context(), events); err != nil {
		s.handleError(w, err)
		return
	}
	for _, event := range events {
		s.syncReminders(r, event, reminder.EventCreated)
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{"events": events})
}

// syncReminders refreshes an event's reminder rows; a failure is logged
// rather than failing the mutation that triggered it.
func (s *Server) syncReminders(r *http.Request, event *domain.CalendarEvent, op reminder.EventOperation) {
	if err := s.reminders.SyncEventReminders(r.Context(), event, op); err != nil {
		s.logger.Error("failed to sync event reminders",
			zap.String("event_id", event.ID.String()), zap.Error(err))
	}
}

// GetEvent returns an event by id.
func (s *Server) GetEvent(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAccount(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	eventID, err := s.parseUUIDParam(r, "eventID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	event, err := s.accountOwnedEvent(r.Context(), account, eventID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, event)
}

// GetEventsByExternalID returns the account's events carrying the
// external id.
func (s *Server) GetEventsByExternalID(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAccount(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	externalID := chi.URLParam(r, "externalID")
	events, err := s.events.FindByExternalID(r.Context(), account.ID, externalID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

type updateEventRequest struct {
	Title             *string                         `json:"title,omitempty"`
	Description       *string                         `json:"description,omitempty"`
	EventType         *string                         `json:"eventType,omitempty"`
	Location          *string                         `json:"location,omitempty"`
	Status            *domain.CalendarEventStatus     `json:"status,omitempty"`
	AllDay            *bool                           `json:"allDay,omitempty"`
	StartTime         *time.Time                      `json:"startTime,omitempty"`
	Duration          *int64                          `json:"duration,omitempty"`
	Busy              *bool                           `json:"busy,omitempty"`
	Recurrence        *domain.RecurrenceRule          `json:"recurrence,omitempty"`
	RemoveRecurrence  bool                            `json:"removeRecurrence,omitempty"`
	Exdates           *[]time.Time                    `json:"exdates,omitempty"`
	Reminders         *[]domain.CalendarEventReminder `json:"reminders,omitempty"`
	ExternalID        *string                         `json:"externalId,omitempty"`
	ExternalParentID  *string                         `json:"externalParentId,omitempty"`
	GroupID           *uuid.UUID                      `json:"groupId,omitempty"`
	Metadata          domain.Metadata                 `json:"metadata,omitempty"`
	OriginalStartTime *time.Time                      `json:"originalStartTime,omitempty"`
}

// UpdateEvent applies a partial update and bumps the reminder version.
func (s *Server) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAccount(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	eventID, err := s.parseUUIDParam(r, "eventID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	event, err := s.accountOwnedEvent(r.Context(), account, eventID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	var body updateEventRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}
	calendar, err := s.calendars.Find(r.Context(), event.CalendarID)
	if err != nil {
		s.handleError(w, err)
		return
	}

	if body.Title != nil {
		event.Title = body.Title
	}
	if body.Description != nil {
		event.Description = body.Description
	}
	if body.EventType != nil {
		event.EventType = body.EventType
	}
	if body.Location != nil {
		event.Location = body.Location
	}
	if body.Status != nil {
		if !body.Status.Valid() {
			badClientData(w, "invalid status")
			return
		}
		event.Status = *body.Status
	}
	if body.AllDay != nil {
		event.AllDay = *body.AllDay
	}
	if body.StartTime != nil && !body.StartTime.Equal(event.StartTime) {
		// moving the event drops the exdate list, it no longer aligns
		event.SetStartTime(*body.StartTime)
	}
	if body.Duration != nil {
		if *body.Duration < 0 {
			s.handleError(w, domain.ErrNegativeDuration)
			return
		}
		event.SetDuration(*body.Duration)
	}
	if body.Busy != nil {
		event.Busy = *body.Busy
	}
	if body.Exdates != nil {
		event.Exdates = *body.Exdates
	}
	if body.Reminders != nil {
		event.Reminders = *body.Reminders
	}
	if body.ExternalID != nil {
		event.ExternalID = body.ExternalID
	}
	if body.ExternalParentID != nil {
		event.ExternalParentID = body.ExternalParentID
	}
	if body.GroupID != nil {
		event.GroupID = body.GroupID
	}
	if body.Metadata != nil {
		event.Metadata = body.Metadata
	}
	if body.OriginalStartTime != nil {
		event.OriginalStartTime = body.OriginalStartTime
	}

	switch {
	case body.RemoveRecurrence:
		event.Recurrence = nil
		event.RecurringUntil = nil
	case body.Recurrence != nil:
		if err := event.SetRecurrence(*body.Recurrence, calendar.Settings); err != nil {
			s.handleError(w, err)
			return
		}
	case event.Recurrence != nil:
		// start or duration changes move the series bound
		if err := event.UpdateRecurringUntil(calendar.Settings); err != nil {
			s.handleError(w, err)
			return
		}
	}

	if err := event.Validate(); err != nil {
		s.handleError(w, err)
		return
	}
	event.Updated = time.Now().UTC()

	if err := s.events.Save(r.Context(), event); err != nil {
		s.handleError(w, err)
		return
	}
	s.syncReminders(r, event, reminder.EventUpdated)
	respondJSON(w, http.StatusOK, event)
}

// DeleteEvent removes an event together with its exceptions, reminders
// and expansion jobs.
func (s *Server) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAccount(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	eventID, err := s.parseUUIDParam(r, "eventID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	event, err := s.accountOwnedEvent(r.Context(), account, eventID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if err := s.reminders.DeleteEventReminders(r.Context(), event.ID); err != nil {
		s.handleError(w, err)
		return
	}
	if err := s.events.Delete(r.Context(), event.ID); err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, event)
}

// GetEventsByCalendar lists a calendar's events over a window, each with
// its expanded occurrences. Occurrences replaced by stored exceptions
// are removed from their parent's expansion.
func (s *Server) GetEventsByCalendar(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAccount(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	calendarID, err := s.parseUUIDParam(r, "calendarID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	calendar, err := s.accountOwnedCalendar(r.Context(), account, calendarID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	tspan, err := parseWindowQuery(r)
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	if tspan.GreaterThan(s.opts.InstanceWindowLimit) {
		badClientData(w, "the queried window exceeds the maximum allowed duration")
		return
	}

	events, err := s.events.FindByCalendar(r.Context(), calendar.ID, &tspan)
	if err != nil {
		s.handleError(w, err)
		return
	}
	withInstances, err := s.expandWithExceptions(r, events, map[uuid.UUID]*domain.Calendar{calendar.ID: calendar}, tspan)
	if err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"calendar": calendar,
		"events":   withInstances,
	})
}

// expandWithExceptions expands each event over the window and removes
// parent occurrences that stored exceptions replace or cancel.
func (s *Server) expandWithExceptions(r *http.Request, events []*domain.CalendarEvent, calendars map[uuid.UUID]*domain.Calendar, tspan domain.TimeSpan) ([]domain.EventWithInstances, error) {
	var parentIDs []uuid.UUID
	for _, event := range events {
		if event.Recurrence != nil {
			parentIDs = append(parentIDs, event.ID)
		}
	}
	exceptionStarts := make(map[uuid.UUID][]time.Time)
	if len(parentIDs) > 0 {
		exceptions, err := s.events.FindByRecurringEventIDsForTimespan(r.Context(), parentIDs, tspan)
		if err != nil {
			return nil, err
		}
		for _, exception := range exceptions {
			parentID := *exception.RecurringEventID
			exceptionStarts[parentID] = append(exceptionStarts[parentID], *exception.OriginalStartTime)
		}
	}

	result := make([]domain.EventWithInstances, 0, len(events))
	for _, event := range events {
		calendar, found := calendars[event.CalendarID]
		if !found {
			continue
		}
		instances, err := event.Expand(&tspan, calendar.Settings)
		if err != nil {
			s.logger.Error("failed to expand event",
				zap.String("event_id", event.ID.String()), zap.Error(err))
			continue
		}
		if starts := exceptionStarts[event.ID]; len(starts) > 0 {
			instances = domain.RemoveExceptionInstances(instances, starts)
		}
		result = append(result, domain.EventWithInstances{Event: event, Instances: instances})
	}
	return result, nil
}

type eventsForUsersRequest struct {
	UserIDs           []uuid.UUID `json:"userIds" validate:"required,min=1"`
	StartTime         time.Time   `json:"startTime" validate:"required"`
	EndTime           time.Time   `json:"endTime" validate:"required"`
	GenerateInstances bool        `json:"generateInstances,omitempty"`
	IncludeTentative  bool        `json:"includeTentative,omitempty"`
	IncludeNonBusy    bool        `json:"includeNonBusy,omitempty"`
}

// GetEventsForUsersInTimespan lists plain and recurring events for a set
// of users, optionally expanding recurrences.
func (s *Server) GetEventsForUsersInTimespan(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAccount(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	var body eventsForUsersRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}
	tspan, err := domain.NewTimeSpan(body.StartTime, body.EndTime)
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	if tspan.GreaterThan(s.opts.InstanceWindowLimit) {
		badClientData(w, "the queried window exceeds the maximum allowed duration")
		return
	}
	for _, userID := range body.UserIDs {
		if _, err := s.accountOwnedUser(r.Context(), account, userID); err != nil {
			s.handleError(w, err)
			return
		}
	}

	plain, err := s.events.FindEventsForUsersForTimespan(r.Context(), body.UserIDs, tspan, body.IncludeTentative, body.IncludeNonBusy)
	if err != nil {
		s.handleError(w, err)
		return
	}
	recurring, err := s.events.FindRecurringEventsForUsersForTimespan(r.Context(), body.UserIDs, tspan, body.IncludeTentative, body.IncludeNonBusy)
	if err != nil {
		s.handleError(w, err)
		return
	}
	all := append(append([]*domain.CalendarEvent{}, plain...), recurring...)

	if !body.GenerateInstances {
		respondJSON(w, http.StatusOK, map[string]interface{}{"events": all})
		return
	}

	calendars, err := s.calendarsForEvents(r, all)
	if err != nil {
		s.handleError(w, err)
		return
	}
	withInstances, err := s.expandWithExceptions(r, all, calendars, tspan)
	if err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"events": withInstances})
}

func (s *Server) calendarsForEvents(r *http.Request, events []*domain.CalendarEvent) (map[uuid.UUID]*domain.Calendar, error) {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, event := range events {
		if _, found := seen[event.CalendarID]; !found {
			seen[event.CalendarID] = struct{}{}
			ids = append(ids, event.CalendarID)
		}
	}
	lookup := make(map[uuid.UUID]*domain.Calendar, len(ids))
	if len(ids) == 0 {
		return lookup, nil
	}
	calendars, err := s.calendars.FindMany(r.Context(), ids)
	if err != nil {
		return nil, err
	}
	for _, calendar := range calendars {
		lookup[calendar.ID] = calendar
	}
	return lookup, nil
}

type searchEventsRequest struct {
	Filters store.SearchEventsFilters `json:"filters"`
	Sort    store.SortableField       `json:"sort,omitempty"`
	Desc    bool                      `json:"desc,omitempty"`
	Limit   int                       `json:"limit,omitempty"`
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, account *domain.Account, userID *uuid.UUID) {
	var body searchEventsRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}
	limit := body.Limit
	if limit == 0 {
		limit = s.opts.SearchLimitMax
	}
	if limit < 1 || limit > s.opts.SearchLimitMax {
		badClientData(w, "limit must be positive and not exceed the configured maximum")
		return
	}

	events, err := s.events.Search(r.Context(), store.SearchEventsParams{
		AccountID: account.ID,
		UserID:    userID,
		Filters:   body.Filters,
		Sort:      body.Sort,
		Desc:      body.Desc,
		Limit:     limit,
	})
	if err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// SearchEventsForAccount runs the search DSL across the whole account.
func (s *Server) SearchEventsForAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAdmin(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	s.runSearch(w, r, account, nil)
}

// SearchEventsForUser runs the search DSL scoped to one user.
func (s *Server) SearchEventsForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := s.parseUUIDParam(r, "userID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	account, user, err := s.authUser(r, userID)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	s.runSearch(w, r, account, &user.ID)
}

// GetEventInstances expands one event over a window.
func (s *Server) GetEventInstances(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAccount(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	eventID, err := s.parseUUIDParam(r, "eventID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	event, err := s.accountOwnedEvent(r.Context(), account, eventID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	tspan, err := parseWindowQuery(r)
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	if tspan.GreaterThan(s.opts.InstanceWindowLimit) {
		badClientData(w, "the queried window exceeds the maximum allowed duration")
		return
	}
	calendar, err := s.calendars.Find(r.Context(), event.CalendarID)
	if err != nil {
		s.handleError(w, err)
		return
	}

	withInstances, err := s.expandWithExceptions(r, []*domain.CalendarEvent{event},
		map[uuid.UUID]*domain.Calendar{calendar.ID: calendar}, tspan)
	if err != nil {
		s.handleError(w, err)
		return
	}
	instances := []domain.EventInstance{}
	if len(withInstances) > 0 {
		instances = withInstances[0].Instances
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"event":     event,
		"instances": instances,
	})
}
