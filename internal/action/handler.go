// Package action routes user responses to delivered watering reminders.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/noahxzhu/plantcare-notify/internal/model"
	"github.com/noahxzhu/plantcare-notify/internal/reminder"
)

type PlantRepository interface {
	GetPlant(ctx context.Context, id int64) (model.Plant, error)
	UpdateLastWatered(ctx context.Context, id int64, t time.Time) error
}

type Scheduler interface {
	ScheduleWateringNotifications(ctx context.Context, plant model.Plant) error
	ScheduleOnce(ctx context.Context, n model.Notification) (string, error)
}

// RetryPolicy bounds the lastWatered update. Attempts of 1 disables
// retrying.
type RetryPolicy struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: time.Minute, MaxDelay: time.Hour}
}

type Options struct {
	RemindLater time.Duration
	Retry       RetryPolicy
	// Timeout bounds a dispatched response, retries included.
	Timeout     time.Duration
}

type Handler struct {
	plants    PlantRepository
	scheduler Scheduler
	opts      Options
	recorder  reminder.Recorder
	logger    *slog.Logger
	now       func() time.Time
	inflight  sync.WaitGroup
}

func NewHandler(plants PlantRepository, scheduler Scheduler, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RemindLater <= 0 {
		opts.RemindLater = time.Hour
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry.Attempts = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Minute
	}
	return &Handler{
		plants:    plants,
		scheduler: scheduler,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

func (h *Handler) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	h.now = now
}

func (h *Handler) SetRecorder(r reminder.Recorder) {
	h.recorder = r
}

// Dispatch handles resp in the background so the caller is not held for the
// retry delays. The work keeps ctx values but not its cancellation and is
// bounded by Options.Timeout instead.
func (h *Handler) Dispatch(ctx context.Context, resp model.Response) error {
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()

		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.opts.Timeout)
		defer cancel()

		if err := h.HandleResponse(bg, resp); err != nil {
			h.logger.Error("Notification response failed",
				"action", resp.ActionIdentifier,
				"identifier", resp.Notification.Identifier,
				"error", err)
		}
	}()
	return nil
}

// Wait blocks until every dispatched response has finished or ctx is done.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleResponse dispatches on the action identifier. Unknown actions are
// logged and ignored.
func (h *Handler) HandleResponse(ctx context.Context, resp model.Response) error {
	payload := resp.Notification.Content.Data
	h.logger.Info("Notification response received",
		"action", resp.ActionIdentifier,
		"identifier", resp.Notification.Identifier,
		"plant_id", payload.PlantID)

	switch resp.ActionIdentifier {
	case model.ActionMarkWatered:
		return h.markWatered(ctx, payload.PlantID)
	case model.ActionRemindLater:
		return h.remindLater(ctx, payload)
	case model.ActionDefault:
		h.logger.Debug("Notification opened", "plant_id", payload.PlantID)
		return nil
	default:
		h.logger.Warn("Unknown notification action", "action", resp.ActionIdentifier)
		h.record("unknown_action", "ignored unknown notification action", map[string]any{
			"action": resp.ActionIdentifier,
		})
		return nil
	}
}

func (h *Handler) markWatered(ctx context.Context, plantID int64) error {
	wateredAt := h.now()

	err := retry.Do(
		func() error {
			err := h.plants.UpdateLastWatered(ctx, plantID, wateredAt)
			if errors.Is(err, model.ErrPlantNotFound) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Attempts(h.opts.Retry.Attempts),
		retry.Delay(h.opts.Retry.Delay),
		retry.MaxDelay(h.opts.Retry.MaxDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			h.logger.Warn("Retrying lastWatered update", "plant_id", plantID, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		h.logger.Error("Failed to mark plant watered", "plant_id", plantID, "error", err)
		h.record("mark_watered_failed", "updating lastWatered failed", map[string]any{
			"plant_id": plantID,
			"error":    err.Error(),
		})
		return fmt.Errorf("update last watered for plant %d: %w", plantID, err)
	}

	plant, err := h.plants.GetPlant(ctx, plantID)
	if err != nil {
		h.logger.Error("Failed to reload plant", "plant_id", plantID, "error", err)
		return fmt.Errorf("get plant %d: %w", plantID, err)
	}

	if err := h.scheduler.ScheduleWateringNotifications(ctx, plant); err != nil {
		return fmt.Errorf("reschedule plant %d: %w", plantID, err)
	}

	h.logger.Info("Plant marked as watered", "plant_id", plantID, "watered_at", wateredAt)
	h.record("mark_watered", "plant marked as watered", map[string]any{"plant_id": plantID})
	return nil
}

func (h *Handler) remindLater(ctx context.Context, original model.Payload) error {
	now := h.now()
	n := reminder.BuildRemindLater(original, now.Add(h.opts.RemindLater), now)

	id, err := h.scheduler.ScheduleOnce(ctx, n)
	if err != nil {
		h.logger.Error("Failed to schedule remind-later", "plant_id", original.PlantID, "error", err)
		h.record("remind_later_failed", "scheduling remind-later failed", map[string]any{
			"plant_id": original.PlantID,
			"error":    err.Error(),
		})
		return nil
	}

	h.logger.Info("Remind-later scheduled", "plant_id", original.PlantID, "identifier", id, "trigger", n.Trigger)
	return nil
}

func (h *Handler) record(typ, message string, data map[string]any) {
	if h.recorder != nil {
		h.recorder.Record(typ, message, data)
	}
}
