package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nittei/nittei/internal/domain"
	"github.com/nittei/nittei/internal/freebusy"
)

type createUserRequest struct {
	// UserID lets the caller supply the id; a fresh one is generated
	// otherwise.
	UserID     *uuid.UUID      `json:"userId,omitempty"`
	ExternalID *string         `json:"externalId,omitempty"`
	Metadata   domain.Metadata `json:"metadata,omitempty"`
}

// CreateUser registers a user in the admin's account.
func (s *Server) CreateUser(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAdmin(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	var body createUserRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}

	user := domain.NewUser(account.ID)
	if body.UserID != nil {
		user.ID = *body.UserID
	}
	user.ExternalID = body.ExternalID
	user.Metadata = body.Metadata

	if err := s.users.Insert(r.Context(), user); err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

// GetUser returns one of the account's users.
func (s *Server) GetUser(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAdmin(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	userID, err := s.parseUUIDParam(r, "userID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	user, err := s.accountOwnedUser(r.Context(), account, userID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// DeleteUser removes a user; calendars, schedules, events and reminders
// cascade.
func (s *Server) DeleteUser(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAdmin(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	userID, err := s.parseUUIDParam(r, "userID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	user, err := s.accountOwnedUser(r.Context(), account, userID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if err := s.users.Delete(r.Context(), user.ID); err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

type oauthIntegrationRequest struct {
	Provider domain.IntegrationProvider `json:"provider" validate:"required"`
	Code     string                     `json:"code" validate:"required"`
}

// OAuthIntegration exchanges an authorization code for provider tokens
// and stores them for the user.
func (s *Server) OAuthIntegration(w http.ResponseWriter, r *http.Request) {
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
	var body oauthIntegrationRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}
	if body.Provider != domain.ProviderGoogle || s.google == nil {
		badClientData(w, "provider integration is not configured")
		return
	}

	creds, err := s.google.ExchangeCode(r.Context(), body.Code)
	if err != nil {
		s.logger.Warn("oauth code exchange failed", zap.Error(err))
		unauthorized(w, "authorization code rejected by provider")
		return
	}

	integration := &domain.UserIntegration{
		UserID:       user.ID,
		AccountID:    account.ID,
		Provider:     body.Provider,
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenExpires: creds.Expiry.UnixMilli(),
	}
	if err := s.users.SaveIntegration(r.Context(), integration); err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// GetUserFreeBusy answers a single-user free/busy query.
func (s *Server) GetUserFreeBusy(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAccount(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	userID, err := s.parseUUIDParam(r, "userID")
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	user, err := s.accountOwnedUser(r.Context(), account, userID)
	if err != nil {
		s.handleError(w, err)
		return
	}
	tspan, err := parseWindowQuery(r)
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	calendarIDs, err := parseUUIDList(r.URL.Query().Get("calendarIds"))
	if err != nil {
		badClientData(w, err.Error())
		return
	}

	busy, err := s.freebusy.GetUserFreeBusy(r.Context(), freebusy.Request{
		UserID:      user.ID,
		CalendarIDs: calendarIDs,
		TimeSpan:    tspan,
	})
	if err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"userId": user.ID,
		"busy":   busy.Inner(),
	})
}

type multipleFreeBusyRequest struct {
	UserIDs   []uuid.UUID `json:"userIds" validate:"required,min=1"`
	StartTime time.Time   `json:"startTime" validate:"required"`
	EndTime   time.Time   `json:"endTime" validate:"required"`
}

// GetMultipleUsersFreeBusy answers a multi-user free/busy query.
func (s *Server) GetMultipleUsersFreeBusy(w http.ResponseWriter, r *http.Request) {
	account, err := s.authAccount(r)
	if err != nil {
		s.handleAuthError(w, err)
		return
	}
	var body multipleFreeBusyRequest
	if err := s.decodeBody(r, &body); err != nil {
		badClientData(w, err.Error())
		return
	}
	tspan, err := domain.NewTimeSpan(body.StartTime, body.EndTime)
	if err != nil {
		badClientData(w, err.Error())
		return
	}
	for _, userID := range body.UserIDs {
		if _, err := s.accountOwnedUser(r.Context(), account, userID); err != nil {
			s.handleError(w, err)
			return
		}
	}

	busyByUser, err := s.freebusy.GetMultipleUsersFreeBusy(r.Context(), body.UserIDs, tspan)
	if err != nil {
		s.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, busyByUser)
}
