package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nittei/nittei/internal/domain"
	"github.com/nittei/nittei/internal/google"
)

type createCalendarRequest struct {
	Timezone  string          `json:"timezone" validate:"required"`
	WeekStart *string         `json:"weekStart,omitempty"`
	Name      *string         `json:"name,omitempty"`
	Key       *string         `json:"key,omitempty"`
	Metadata  domain.Metadata `json:"metadata,omitempty"`
}

// CreateCalendar creates a calendar for a user.
func (s *Server) CreateCalendar(w http.ResponseWriter, r *http.Request) {
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
	var body createCalendarRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}
	if _, err := time.LoadLocation(body.Timezone); err != nil {
		badClientData(w, fmt.Sprintf("invalid timezone: %q", body.Timezone))
		return
	}

	calendar := domain.NewCalendar(user.ID, account.ID)
	calendar.Settings.Timezone = body.Timezone
	if body.WeekStart != nil {
		weekStart, err := domain.ParseWeekday(*body.WeekStart)
		if err != nil {
			badClientData(w, err.Error())
			return
		}
		calendar.Settings.WeekStart = weekStart
	}
	calendar.Name = body.Name
	calendar.Key = body.Key
	calendar.Metadata = body.Metadata

	if err := s.calendars.Insert(r.Context(), calendar); err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, calendar)
}

// GetCalendar returns a calendar by id.
func (s *Server) GetCalendar(w http.ResponseWriter, r *http.Request) {
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
	respondJSON(w, http.StatusOK, calendar)
}

type updateCalendarRequest struct {
	Timezone  *string         `json:"timezone,omitempty"`
	WeekStart *string         `json:"weekStart,omitempty"`
	Name      *string         `json:"name,omitempty"`
	Metadata  domain.Metadata `json:"metadata,omitempty"`
}

// UpdateCalendar updates calendar settings. A time zone or week start
// change invalidates every stored recurring_until in the calendar, so
// they are recomputed.
func (s *Server) UpdateCalendar(w http.ResponseWriter, r *http.Request) {
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
	var body updateCalendarRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}

	settingsChanged := false
	if body.Timezone != nil && *body.Timezone != calendar.Settings.Timezone {
		if _, err := time.LoadLocation(*body.Timezone); err != nil {
			badClientData(w, fmt.Sprintf("invalid timezone: %q", *body.Timezone))
			return
		}
		calendar.Settings.Timezone = *body.Timezone
		settingsChanged = true
	}
	if body.WeekStart != nil {
		weekStart, err := domain.ParseWeekday(*body.WeekStart)
		if err != nil {
			badClientData(w, err.Error())
			return
		}
		if weekStart != calendar.Settings.WeekStart {
			calendar.Settings.WeekStart = weekStart
			settingsChanged = true
		}
	}
	if body.Name != nil {
		calendar.Name = body.Name
	}
	if body.Metadata != nil {
		calendar.Metadata = body.Metadata
	}

	if err := s.calendars.Save(r.Context(), calendar); err != nil {
		s.handleError(w, err)
		return
	}
	if settingsChanged {
		if err := s.recomputeRecurringBounds(r, calendar); err != nil {
			s.handleError(w, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, calendar)
}

// recomputeRecurringBounds refreshes recurring_until for every
// recurring event after the calendar's expansion settings changed.
func (s *Server) recomputeRecurringBounds(r *http.Request, calendar *domain.Calendar) error {
	events, err := s.events.FindByCalendar(r.Context(), calendar.ID, nil)
	if err != nil {
		return err
	}
	for _, event := range events {
		if event.Recurrence == nil {
			continue
		}
		if err := event.UpdateRecurringUntil(calendar.Settings); err != nil {
			s.logger.Error("failed to recompute recurring bound",
				zap.String("event_id", event.ID.String()), zap.Error(err))
			continue
		}
		if err := s.events.Save(r.Context(), event); err != nil {
			return err
		}
	}
	return nil
}

// DeleteCalendar removes a calendar and its events.
func (s *Server) DeleteCalendar(w http.ResponseWriter, r *http.Request) {
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
	if err := s.calendars.Delete(r.Context(), calendar.ID); err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, calendar)
}

// GetCalendarsByUser lists a user's calendars.
func (s *Server) GetCalendarsByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := s.parseUUIDParam(r, "userID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	_, user, err := s.authUser(r, userID)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	calendars, err := s.calendars.FindByUser(r.Context(), user.ID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"calendars": calendars})
}

// GetProviderCalendars lists the user's calendars at the external
// provider.
func (s *Server) GetProviderCalendars(w http.ResponseWriter, r *http.Request) {
	userID, err := s.parseUUIDParam(r, "userID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	_, user, err := s.authUser(r, userID)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	provider := domain.IntegrationProvider(chi.URLParam(r, "provider"))
	if provider != domain.ProviderGoogle || s.google == nil {
		badClientData(w, "provider integration is not configured")
		return
	}

	integration, err := s.users.FindIntegration(r.Context(), user.ID, provider)
	if err != nil {
		s.handleError(w, err)
		return
	}
	calendars, err := s.google.ListCalendars(r.Context(), &google.Credentials{
		AccessToken:  integration.AccessToken,
		RefreshToken: integration.RefreshToken,
		Expiry:       time.UnixMilli(integration.TokenExpires).UTC(),
	})
	if err != nil {
		s.logger.Warn("provider calendar listing failed", zap.Error(err))
		badClientData(w, "unable to list provider calendars")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"calendars": calendars})
}

// GetCalendarsByMeta lists the account's calendars by metadata
// containment.
func (s *Server) GetCalendarsByMeta(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAdmin(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	metadata, skip, limit, err := parseMetadataQuery(r)
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	calendars, err := s.calendars.FindByMetadata(r.Context(), metadataQuery(account, metadata, skip, limit))
	if err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"calendars": calendars})
}
