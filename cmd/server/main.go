package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nittei/nittei/internal/booking"
	"github.com/nittei/nittei/internal/config"
	"github.com/nittei/nittei/internal/crypto"
	"github.com/nittei/nittei/internal/database"
	"github.com/nittei/nittei/internal/freebusy"
	"github.com/nittei/nittei/internal/google"
	"github.com/nittei/nittei/internal/handler"
	"github.com/nittei/nittei/internal/reminder"
	"github.com/nittei/nittei/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg.Server.Debug)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	logger.Info("connecting to database")
	db, err := database.New(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("running migrations")
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// Encryption for stored provider tokens (optional)
	var cryptoService *crypto.EncryptionService
	if cfg.Crypto.EncryptionSecret != "" {
		cryptoService, err = crypto.NewEncryptionService(cfg.Crypto.EncryptionSecret)
		if err != nil {
			logger.Fatal("failed to initialize encryption", zap.Error(err))
		}
	} else {
		logger.Warn("encryption secret not set, provider tokens will be stored unencrypted")
	}

	// Stores
	accountStore := store.NewAccountStore(db.Pool)
	userStore := store.NewUserStore(db.Pool, cryptoService)
	calendarStore := store.NewCalendarStore(db.Pool)
	eventStore := store.NewEventStore(db.Pool)
	scheduleStore := store.NewScheduleStore(db.Pool)
	serviceStore := store.NewServiceStore(db.Pool)
	reminderStore := store.NewReminderStore(db.Pool)
	expansionJobStore := store.NewExpansionJobStore(db.Pool)
	reservationStore := store.NewReservationStore(db.Pool)

	// Google Calendar integration (optional)
	var googleClient google.CalendarClient
	var externalBusy booking.ExternalBusyFetcher
	if cfg.Google.ClientID != "" && cfg.Google.ClientSecret != "" {
		service := google.NewCalendarService(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)
		googleClient = service
		externalBusy = google.NewBusySource(service, userStore)
		logger.Info("google calendar integration enabled")
	} else {
		logger.Info("google calendar integration not configured")
	}

	// Core services
	freebusyService := freebusy.NewService(
		calendarStore, eventStore,
		cfg.Limits.EventInstancesQueryDuration, cfg.Limits.FreebusyFanoutChunk,
		logger,
	)
	bookingService := booking.NewService(
		serviceStore, calendarStore, eventStore, scheduleStore,
		userStore, reservationStore, externalBusy,
		cfg.Limits.BookingSlotsQueryDuration, logger,
	)
	reminderService := reminder.NewService(eventStore, calendarStore, reminderStore, expansionJobStore, logger)

	// Reminder worker with webhook delivery
	deliverer := &webhookDeliverer{accounts: accountStore, logger: logger}
	reminderWorker := reminder.NewWorker(reminderService, deliverer, cfg.Reminders.Interval, logger)
	if err := reminderWorker.Start(ctx); err != nil {
		logger.Fatal("failed to start reminder worker", zap.Error(err))
	}

	// HTTP server
	serverHandler := handler.NewServer(
		accountStore, userStore, calendarStore, eventStore,
		scheduleStore, serviceStore, reservationStore,
		freebusyService, bookingService, reminderService, googleClient,
		handler.Options{
			CreateAccountSecretCode: cfg.Account.CreateSecretCode,
			InstanceWindowLimit:     cfg.Limits.EventInstancesQueryDuration,
			SearchLimitMax:          cfg.Limits.SearchLimitMax,
		},
		logger,
	)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: serverHandler.Routes(),
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		serverHandler.SetShuttingDown()
		if !cfg.Server.Debug {
			// let load balancers observe the status flag before we
			// stop accepting requests
			logger.Info("shutdown signal received, waiting grace period",
				zap.Duration("grace", cfg.Server.ShutdownGrace))
			time.Sleep(cfg.Server.ShutdownGrace)
		}

		logger.Info("stopping reminder worker")
		reminderWorker.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// webhookDeliverer posts due reminder batches to each account's
// registered webhook. Accounts without a webhook drop their batch.
type webhookDeliverer struct {
	accounts *store.AccountStore
	logger   *zap.Logger
	client   http.Client
}

type webhookPayload struct {
	Reminders []reminderPayload `json:"reminders"`
	ReleaseAt time.Time         `json:"releaseAt"`
}

type reminderPayload struct {
	EventID    uuid.UUID `json:"eventId"`
	RemindAt   time.Time `json:"remindAt"`
	Identifier string    `json:"identifier"`
}

func (d *webhookDeliverer) Deliver(ctx context.Context, batches []reminder.AccountReminders, releaseAt time.Time) error {
	for _, batch := range batches {
		account, err := d.accounts.Find(ctx, batch.AccountID)
		if err != nil {
			d.logger.Error("failed to load account for reminder delivery",
				zap.String("account_id", batch.AccountID.String()), zap.Error(err))
			continue
		}
		if account.Webhook == nil {
			continue
		}

		payload := webhookPayload{ReleaseAt: releaseAt}
		for _, row := range batch.Reminders {
			payload.Reminders = append(payload.Reminders, reminderPayload{
				EventID:    row.EventID,
				RemindAt:   row.RemindAt,
				Identifier: row.Identifier,
			})
		}
		body, err := json.Marshal(payload)
		if err != nil {
			continue
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, account.Webhook.URL, bytes.NewReader(body))
		if err != nil {
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("nittei-webhook-key", account.Webhook.Key)

		resp, err := d.client.Do(req)
		if err != nil {
			d.logger.Warn("webhook delivery failed",
				zap.String("account_id", batch.AccountID.String()), zap.Error(err))
			continue
		}
		resp.Body.Close()
	}
	return nil
}
