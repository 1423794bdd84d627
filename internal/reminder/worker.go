package reminder

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Deliverer receives each tick's due reminder batches. Webhook dispatch
// lives behind this contract.
type Deliverer interface {
	Deliver(ctx context.Context, batches []AccountReminders, releaseAt time.Time) error
}

// Worker drives the reminder scheduler on a minutely tick: first the
// deferred expansion jobs, then collection of due reminders.
type Worker struct {
	service   *Service
	deliverer Deliverer
	interval  time.Duration
	logger    *zap.Logger
	cron      *cron.Cron
}

// NewWorker creates the periodic worker. interval is how far ahead each
// tick collects due reminders.
func NewWorker(service *Service, deliverer Deliverer, interval time.Duration, logger *zap.Logger) *Worker {
	return &Worker{
		service:   service,
		deliverer: deliverer,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the minutely tick.
func (w *Worker) Start(ctx context.Context) error {
	w.cron = cron.New()
	if _, err := w.cron.AddFunc("* * * * *", func() { w.tick(ctx) }); err != nil {
		return err
	}
	w.cron.Start()
	w.logger.Info("reminder worker started", zap.Duration("interval", w.interval))
	return nil
}

// Stop halts the tick and waits for an in-flight run to complete.
func (w *Worker) Stop() {
	if w.cron == nil {
		return
	}
	<-w.cron.Stop().Done()
	w.logger.Info("reminder worker stopped")
}

func (w *Worker) tick(ctx context.Context) {
	// a broken event must not fail the whole tick; both phases recover
	// independently
	if err := w.service.ProcessExpansionJobs(ctx); err != nil {
		w.logger.Error("failed to process reminder expansion jobs", zap.Error(err))
	}

	batches, releaseAt, err := w.service.CollectDueReminders(ctx, w.interval)
	if err != nil {
		w.logger.Error("failed to collect due reminders", zap.Error(err))
		return
	}
	if len(batches) == 0 {
		return
	}
	if err := w.deliverer.Deliver(ctx, batches, releaseAt); err != nil {
		w.logger.Error("failed to deliver reminders", zap.Error(err))
	}
}
