// Package handler exposes the scheduling core over HTTP.
package handler

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/nittei/nittei/internal/booking"
	"github.com/nittei/nittei/internal/freebusy"
	"github.com/nittei/nittei/internal/google"
	"github.com/nittei/nittei/internal/reminder"
	"github.com/nittei/nittei/internal/store"
)

// Options are the handler-level knobs.
type Options struct {
	// CreateAccountSecretCode guards account creation when non-empty.
	CreateAccountSecretCode string
	// InstanceWindowLimit caps expansion and free/busy windows.
	InstanceWindowLimit time.Duration
	// SearchLimitMax caps the limit parameter of event searches.
	SearchLimitMax int
}

// Server wires the stores and core services into HTTP handlers.
type Server struct {
	accounts     *store.AccountStore
	users        *store.UserStore
	calendars    *store.CalendarStore
	events       *store.EventStore
	schedules    *store.ScheduleStore
	services     *store.ServiceStore
	reservations *store.ReservationStore

	freebusy  *freebusy.Service
	booking   *booking.Service
	reminders *reminder.Service
	google    google.CalendarClient

	opts     Options
	validate *validator.Validate
	logger   *zap.Logger

	shuttingDown atomic.Bool
}

// NewServer creates the HTTP surface. google may be nil when no provider
// is configured.
func NewServer(
	accounts *store.AccountStore,
	users *store.UserStore,
	calendars *store.CalendarStore,
	events *store.EventStore,
	schedules *store.ScheduleStore,
	services *store.ServiceStore,
	reservations *store.ReservationStore,
	freebusyService *freebusy.Service,
	bookingService *booking.Service,
	reminderService *reminder.Service,
	googleClient google.CalendarClient,
	opts Options,
	logger *zap.Logger,
) *Server {
	return &Server{
		accounts:     accounts,
		users:        users,
		calendars:    calendars,
		events:       events,
		schedules:    schedules,
		services:     services,
		reservations: reservations,
		freebusy:     freebusyService,
		booking:      bookingService,
		reminders:    reminderService,
		google:       googleClient,
		opts:         opts,
		validate:     validator.New(),
		logger:       logger,
	}
}

// SetShuttingDown flips the flag exposed via GET /status.
func (s *Server) SetShuttingDown() {
	s.shuttingDown.Store(true)
}

// Routes mounts the full API under /api/v1.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/status", s.GetStatus)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.GetStatus)

		// accounts
		r.Post("/account", s.CreateAccount)
		r.Get("/account", s.GetAccount)
		r.Put("/account/pubkey", s.SetAccountPublicKey)
		r.Put("/account/webhook", s.SetAccountWebhook)
		r.Delete("/account/webhook", s.DeleteAccountWebhook)
		r.Put("/account/integration", s.AddAccountIntegration)
		r.Delete("/account/integration/{provider}", s.RemoveAccountIntegration)

		// users
		r.Post("/user", s.CreateUser)
		r.Get("/user/{userID}", s.GetUser)
		r.Delete("/user/{userID}", s.DeleteUser)
		r.Post("/user/{userID}/oauth", s.OAuthIntegration)
		r.Get("/user/{userID}/freebusy", s.GetUserFreeBusy)
		r.Post("/freebusy", s.GetMultipleUsersFreeBusy)

		// calendars
		r.Post("/user/{userID}/calendar", s.CreateCalendar)
		r.Get("/calendar/meta", s.GetCalendarsByMeta)
		r.Get("/calendar/{calendarID}", s.GetCalendar)
		r.Put("/calendar/{calendarID}", s.UpdateCalendar)
		r.Delete("/calendar/{calendarID}", s.DeleteCalendar)
		r.Get("/user/{userID}/calendar", s.GetCalendarsByUser)
		r.Get("/user/{userID}/calendar/provider/{provider}", s.GetProviderCalendars)
		r.Get("/calendar/{calendarID}/events", s.GetEventsByCalendar)
		r.Get("/calendar/{calendarID}/ical", s.ExportCalendarICal)

		// events
		r.Post("/user/{userID}/events", s.CreateEvent)
		r.Post("/user/{userID}/events/batch", s.CreateManyEvents)
		r.Post("/user/events/timespan", s.GetEventsForUsersInTimespan)
		r.Post("/events/search", s.SearchEventsForAccount)
		r.Post("/user/{userID}/events/search", s.SearchEventsForUser)
		r.Get("/user/events/external/{externalID}", s.GetEventsByExternalID)
		r.Get("/events/{eventID}", s.GetEvent)
		r.Put("/events/{eventID}", s.UpdateEvent)
		r.Delete("/events/{eventID}", s.DeleteEvent)
		r.Get("/events/{eventID}/instances", s.GetEventInstances)

		// schedules
		r.Post("/user/{userID}/schedule", s.CreateSchedule)
		r.Get("/schedule/{scheduleID}", s.GetSchedule)
		r.Put("/schedule/{scheduleID}", s.UpdateSchedule)
		r.Delete("/schedule/{scheduleID}", s.DeleteSchedule)

		// services
		r.Post("/service", s.CreateService)
		r.Get("/service/{serviceID}", s.GetService)
		r.Put("/service/{serviceID}", s.UpdateService)
		r.Delete("/service/{serviceID}", s.DeleteService)
		r.Post("/service/{serviceID}/users", s.AddServiceUser)
		r.Put("/service/{serviceID}/users/{userID}", s.UpdateServiceUser)
		r.Delete("/service/{serviceID}/users/{userID}", s.RemoveServiceUser)
		r.Put("/service/{serviceID}/users/{userID}/busy", s.AddBusyCalendar)
		r.Delete("/service/{serviceID}/users/{userID}/busy", s.RemoveBusyCalendar)
		r.Get("/service/{serviceID}/booking", s.GetServiceBookingSlots)
		r.Post("/service/{serviceID}/booking-intend", s.CreateBookingIntend)
		r.Delete("/service/{serviceID}/booking-intend", s.DeleteBookingIntend)
	})

	return r
}

// GetStatus reports liveness and the shutdown flag.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":          "ok",
		"is_shutting_down": s.shuttingDown.Load(),
	})
}
