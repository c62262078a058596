// Package worker fires scheduled notifications when their trigger comes due.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/noahxzhu/plantcare-notify/internal/model"
)

// Source is the notification center the worker drains.
type Source interface {
	NextTrigger() (time.Time, bool)
	TakeDue(now time.Time) []model.ScheduledNotification
	Notify(n model.ScheduledNotification)
}

// Presenter shows a fired notification to the user.
type Presenter interface {
	Present(ctx context.Context, n model.ScheduledNotification) error
}

type Worker struct {
	source     Source
	presenter  Presenter
	logger     *slog.Logger
	updateChan chan struct{}
	onFire     func(n model.ScheduledNotification, err error)
	now        func() time.Time
}

func NewWorker(source Source, presenter Presenter, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if presenter == nil {
		presenter = NewLogPresenter(logger)
	}
	return &Worker{
		source:     source,
		presenter:  presenter,
		logger:     logger,
		updateChan: make(chan struct{}, 1),
		now:        time.Now,
	}
}

// SetOnFire sets a callback invoked after each notification is presented.
func (w *Worker) SetOnFire(fn func(n model.ScheduledNotification, err error)) {
	w.onFire = fn
}

func (w *Worker) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	w.now = now
}

// Refresh signals the worker to re-evaluate the schedule immediately.
func (w *Worker) Refresh() {
	select {
	case w.updateChan <- struct{}{}:
	default:
		// a signal is already pending
	}
}

// Start runs the loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Worker started")

	timer := time.NewTimer(time.Hour)
	stopTimer(timer)

	for {
		nextRun := w.checkAndFire(ctx)

		stopTimer(timer)
		if nextRun.IsZero() {
			w.logger.Debug("No pending notifications, worker idle")
		} else {
			d := nextRun.Sub(w.now())
			if d < 0 {
				d = 0
			}
			timer.Reset(d)
			w.logger.Debug("Next check scheduled", "in", d, "at", nextRun.Format(time.RFC3339))
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			w.logger.Info("Worker stopped")
			return
		case <-w.updateChan:
		case <-timer.C:
		}
	}
}

// checkAndFire presents every due notification and returns the next
// trigger, or the zero time when nothing is pending.
func (w *Worker) checkAndFire(ctx context.Context) time.Time {
	now := w.now()

	for _, n := range w.source.TakeDue(now) {
		delay := now.Sub(n.Trigger)
		w.logger.Info("Firing notification",
			"identifier", n.Identifier,
			"plant_id", n.PlantID(),
			"kind", n.Kind(),
			"scheduled", n.Trigger.Format(time.RFC3339),
			"delay", delay)

		err := w.presenter.Present(ctx, n)
		if err != nil {
			w.logger.Error("Failed to present notification", "identifier", n.Identifier, "error", err)
		}

		w.source.Notify(n)
		if w.onFire != nil {
			w.onFire(n, err)
		}
	}

	next, ok := w.source.NextTrigger()
	if !ok {
		return time.Time{}
	}
	return next
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
