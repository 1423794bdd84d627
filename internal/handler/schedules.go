package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/nittei/nittei/internal/domain"
)

type createScheduleRequest struct {
	Timezone string                `json:"timezone" validate:"required"`
	Rules    []domain.ScheduleRule `json:"rules,omitempty"`
	Metadata domain.Metadata       `json:"metadata,omitempty"`
}

// CreateSchedule creates an availability schedule for a user. Without
// explicit rules the default working week applies.
func (s *Server) CreateSchedule(w http.ResponseWriter, r *http.Request) {
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
	var body createScheduleRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}
	if _, err := time.LoadLocation(body.Timezone); err != nil {
		badClientData(w, fmt.Sprintf("invalid timezone: %q", body.Timezone))
		return
	}

	schedule := domain.NewSchedule(user.ID, account.ID, body.Timezone)
	schedule.Metadata = body.Metadata
	if len(body.Rules) > 0 {
		schedule.SetRules(body.Rules, time.Now().UTC())
	}

	if err := s.schedules.Insert(r.Context(), schedule); err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, schedule)
}

// GetSchedule returns a schedule by id.
func (s *Server) GetSchedule(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAccount(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	scheduleID, err := s.parseUUIDParam(r, "scheduleID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	schedule, err := s.accountOwnedSchedule(r.Context(), account, scheduleID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, schedule)
}

type updateScheduleRequest struct {
	Timezone *string                `json:"timezone,omitempty"`
	Rules    *[]domain.ScheduleRule `json:"rules,omitempty"`
	Metadata domain.Metadata        `json:"metadata,omitempty"`
}

// UpdateSchedule updates the time zone and rules of a schedule.
func (s *Server) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAccount(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	scheduleID, err := s.parseUUIDParam(r, "scheduleID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	schedule, err := s.accountOwnedSchedule(r.Context(), account, scheduleID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	var body updateScheduleRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}

	if body.Timezone != nil {
		if _, err := time.LoadLocation(*body.Timezone); err != nil {
			badClientData(w, fmt.Sprintf("invalid timezone: %q", *body.Timezone))
			return
		}
		schedule.Timezone = *body.Timezone
	}
	if body.Rules != nil {
		schedule.SetRules(*body.Rules, time.Now().UTC())
	}
	if body.Metadata != nil {
		schedule.Metadata = body.Metadata
	}

	if err := s.schedules.Save(r.Context(), schedule); err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, schedule)
}

// DeleteSchedule removes a schedule.
func (s *Server) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAccount(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	scheduleID, err := s.parseUUIDParam(r, "scheduleID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	schedule, err := s.accountOwnedSchedule(r.Context(), account, scheduleID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if err := s.schedules.Delete(r.Context(), schedule.ID); err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, schedule)
}
