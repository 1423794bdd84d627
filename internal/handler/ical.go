package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nittei/nittei/internal/domain"
)

const (
	icalDefaultLookBack  = 3 * 31 * 24 * time.Hour
	icalDefaultLookAhead = 6 * 31 * 24 * time.Hour
)

// ExportCalendarICal renders a calendar as an iCalendar document. The
// default window is roughly three months back to six months ahead.
func (s *Server) ExportCalendarICal(w http.ResponseWriter, r *http.Request) {
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

	now := time.Now().UTC()
	tspan := domain.TimeSpan{Start: now.Add(-icalDefaultLookBack), End: now.Add(icalDefaultLookAhead)}
	if r.URL.Query().Get("startTime") != "" || r.URL.Query().Get("endTime") != "" {
		tspan, err = parseWindowQuery(r)
		if err != nil {
			badClientData(w, err.Error())
			return
		}
	}

	events, err := s.events.FindByCalendar(r.Context(), calendar.ID, &tspan)
	if err != nil {
		s.handleError(w, err)
		return
	}

	var normal, recurring []*domain.CalendarEvent
	var parentIDs []uuid.UUID
	for _, event := range events {
		switch {
		case event.Recurrence != nil:
			recurring = append(recurring, event)
			parentIDs = append(parentIDs, event.ID)
		case event.RecurringEventID == nil:
			normal = append(normal, event)
		}
	}

	exceptionsByParent := make(map[uuid.UUID][]*domain.CalendarEvent)
	if len(parentIDs) > 0 {
		exceptions, err := s.events.FindByRecurringEventIDsForTimespan(r.Context(), parentIDs, tspan)
		if err != nil {
			s.handleError(w, err)
			return
		}
		for _, exception := range exceptions {
			parentID := *exception.RecurringEventID
			exceptionsByParent[parentID] = append(exceptionsByParent[parentID], exception)
		}
	}

	content := domain.GenerateICalContent(calendar, normal, recurring, exceptionsByParent)

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(content))
}
