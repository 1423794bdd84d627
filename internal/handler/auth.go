package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nittei/nittei/internal/domain"
	"github.com/nittei/nittei/internal/store"
)

const accountHeader = "nittei-account"

var (
	errMissingAPIKey  = errors.New("missing or invalid x-api-key header")
	errMissingAccount = errors.New("missing or malformed " + accountHeader + " header")
	errInvalidToken   = errors.New("missing or invalid bearer token")
)

// tokenClaims is the payload of user-scoped bearer tokens.
type tokenClaims struct {
	NitteiUserID    string  `json:"nittei_user_id"`
	SchedulerPolicy *string `json:"scheduler_policy,omitempty"`
	jwt.RegisteredClaims
}

// authAdmin authenticates the request as an account administrator via
// the x-api-key header.
func (s *Server) authAdmin(r *http.Request) (*domain.Account, error) {
	apiKey := r.Header.Get("x-api-key")
	if apiKey == "" {
		return nil, errMissingAPIKey
	}
	account, err := s.accounts.FindByAPIKey(r.Context(), apiKey)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, errMissingAPIKey
		}
		return nil, err
	}
	return account, nil
}

// requestAccount resolves the account of a non-admin request from the
// nittei-account header.
func (s *Server) requestAccount(r *http.Request) (*domain.Account, error) {
	header := r.Header.Get(accountHeader)
	if header == "" {
		return nil, errMissingAccount
	}
	accountID, err := uuid.Parse(header)
	if err != nil {
		return nil, errMissingAccount
	}
	account, err := s.accounts.Find(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, errMissingAccount
		}
		return nil, err
	}
	return account, nil
}

// authAccount authenticates either mode: admin api key, or the account
// header alone for public account-scoped endpoints.
func (s *Server) authAccount(r *http.Request) (*domain.Account, error) {
	if r.Header.Get("x-api-key") != "" {
		return s.authAdmin(r)
	}
	return s.requestAccount(r)
}

// authUser authenticates a user-scoped request: a bearer token signed
// with the account's registered public key, the subject user belonging
// to that account. Admin credentials may instead act on behalf of the
// path user.
func (s *Server) authUser(r *http.Request, pathUserID uuid.UUID) (*domain.Account, *domain.User, error) {
	if r.Header.Get("x-api-key") != "" {
		account, err := s.authAdmin(r)
		if err != nil {
			return nil, nil, err
		}
		user, err := s.users.Find(r.Context(), pathUserID)
		if err != nil || user.AccountID != account.ID {
			// cross-account probing must look identical to not-found
			return nil, nil, store.ErrUserNotFound
		}
		return account, user, nil
	}

	account, err := s.requestAccount(r)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.validateBearerToken(r, account)
	if err != nil {
		return nil, nil, err
	}
	if pathUserID != uuid.Nil && user.ID != pathUserID {
		return nil, nil, errInvalidToken
	}
	return account, user, nil
}

func (s *Server) validateBearerToken(r *http.Request, account *domain.Account) (*domain.User, error) {
	if account.PublicJWTKey == nil {
		return nil, errInvalidToken
	}
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, errInvalidToken
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM([]byte(*account.PublicJWTKey))
	if err != nil {
		return nil, errInvalidToken
	}

	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errInvalidToken
		}
		return publicKey, nil
	})
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}

	userID, err := uuid.Parse(claims.NitteiUserID)
	if err != nil {
		return nil, errInvalidToken
	}
	user, err := s.users.Find(r.Context(), userID)
	if err != nil || user.AccountID != account.ID {
		return nil, errInvalidToken
	}
	return user, nil
}

// handleAuthError maps authentication failures onto the taxonomy.
func (s *Server) handleAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errMissingAPIKey), errors.Is(err, errInvalidToken):
		unauthorized(w, err.Error())
	case errors.Is(err, errMissingAccount):
		unidentifiable(w, err.Error())
	default:
		s.handleError(w, err)
	}
}

// accountOwnedUser loads a user and hides cross-account existence.
func (s *Server) accountOwnedUser(ctx context.Context, account *domain.Account, userID uuid.UUID) (*domain.User, error) {
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.AccountID != account.ID {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}

// accountOwnedCalendar loads a calendar and hides cross-account
// existence.
func (s *Server) accountOwnedCalendar(ctx context.Context, account *domain.Account, calendarID uuid.UUID) (*domain.Calendar, error) {
	calendar, err := s.calendars.Find(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	if calendar.AccountID != account.ID {
		return nil, store.ErrCalendarNotFound
	}
	return calendar, nil
}

// accountOwnedEvent loads an event and hides cross-account existence.
func (s *Server) accountOwnedEvent(ctx context.Context, account *domain.Account, eventID uuid.UUID) (*domain.CalendarEvent, error) {
	event, err := s.events.Find(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.AccountID != account.ID {
		return nil, store.ErrEventNotFound
	}
	return event, nil
}

// accountOwnedSchedule loads a schedule and hides cross-account
// existence.
func (s *Server) accountOwnedSchedule(ctx context.Context, account *domain.Account, scheduleID uuid.UUID) (*domain.Schedule, error) {
	schedule, err := s.schedules.Find(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if schedule.AccountID != account.ID {
		return nil, store.ErrScheduleNotFound
	}
	return schedule, nil
}

// accountOwnedService loads a service and hides cross-account
// existence.
func (s *Server) accountOwnedService(ctx context.Context, account *domain.Account, serviceID uuid.UUID) (*domain.Service, error) {
	service, err := s.services.Find(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if service.AccountID != account.ID {
		return nil, store.ErrServiceNotFound
	}
	return service, nil
}
