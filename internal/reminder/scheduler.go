// Package reminder builds watering reminders and keeps each plant's
// scheduled reminders in step with its watering data.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/noahxzhu/plantcare-notify/internal/model"
	"github.com/noahxzhu/plantcare-notify/internal/watering"
)

// DefaultSendingHour is the local hour every watering reminder fires at.
const DefaultSendingHour = 9

// NotificationService is the device notification facility reminders are
// scheduled with.
type NotificationService interface {
	Schedule(ctx context.Context, content model.Content, trigger time.Time) (string, error)
	Cancel(ctx context.Context, identifier string) error
	Scheduled(ctx context.Context) ([]model.ScheduledNotification, error)
}

// Recorder receives debug log entries.
type Recorder interface {
	Record(typ, message string, data map[string]any)
}

// MissingFieldError is returned when a plant lacks the watering data needed
// to schedule reminders.
type MissingFieldError struct {
	PlantID int64
	Field   string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("plant %d missing watering information: %s", e.PlantID, e.Field)
}

type Options struct {
	SendingHour int
	Location    *time.Location
	// SkipPastTriggers drops a day-before reminder whose trigger is not in
	// the future instead of handing it to the notification service.
	SkipPastTriggers bool
}

func DefaultOptions() Options {
	return Options{
		SendingHour:      DefaultSendingHour,
		Location:         time.Local,
		SkipPastTriggers: true,
	}
}

type Scheduler struct {
	service  NotificationService
	opts     Options
	locks    *keyedMutex
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

func NewScheduler(service NotificationService, opts Options, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Scheduler{
		service: service,
		opts:    opts,
		locks:   newKeyedMutex(),
		logger:  logger,
		now:     time.Now,
	}
}

// SetNowFunc overrides the clock. Passing nil resets it to time.Now.
func (s *Scheduler) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

func (s *Scheduler) SetRecorder(r Recorder) {
	s.recorder = r
}

func (s *Scheduler) Location() *time.Location {
	return s.opts.Location
}

// Triggers returns the due-day and day-before trigger instants for a plant.
func (s *Scheduler) Triggers(plant model.Plant) (due, dayBefore time.Time, err error) {
	if err := validate(plant); err != nil {
		return time.Time{}, time.Time{}, err
	}
	next, _ := watering.NextWateringDate(plant.LastWatered, plant.WateringFrequencyDays, s.opts.Location)
	due = watering.AtHour(next, s.opts.SendingHour)
	return due, due.AddDate(0, 0, -1), nil
}

// ScheduleWateringNotifications replaces the plant's reminders with a
// due-day reminder and, unless it would fire today, a day-before reminder.
// Only a plant without watering data is an error; notification service
// failures are logged.
func (s *Scheduler) ScheduleWateringNotifications(ctx context.Context, plant model.Plant) error {
	due, dayBefore, err := s.Triggers(plant)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(plant.ID)
	defer unlock()

	if err := s.cancelLocked(ctx, plant.ID); err != nil {
		s.logger.Warn("Failed to cancel existing reminders", "plant_id", plant.ID, "error", err)
		s.record("cancel_failed", "listing scheduled reminders failed", map[string]any{"plant_id": plant.ID, "error": err.Error()})
	}

	now := s.now().In(s.opts.Location)

	s.schedule(ctx, BuildNotification(plant, due, false, now))

	switch {
	case sameDay(dayBefore, now):
		s.logger.Debug("Day-before reminder falls on today, skipping", "plant_id", plant.ID, "trigger", dayBefore)
	case s.opts.SkipPastTriggers && !IsFutureTrigger(dayBefore, now):
		s.logger.Warn("Day-before reminder is in the past, skipping", "plant_id", plant.ID, "trigger", dayBefore)
		s.record("skipped_past_trigger", "day-before reminder already past", map[string]any{
			"plant_id": plant.ID,
			"trigger":  dayBefore.Format(time.RFC3339),
		})
	default:
		s.schedule(ctx, BuildNotification(plant, dayBefore, true, now))
	}

	return nil
}

// CancelPlantNotifications cancels every scheduled reminder whose payload
// names plantID. Individual cancellation failures are logged.
func (s *Scheduler) CancelPlantNotifications(ctx context.Context, plantID int64) error {
	unlock := s.locks.Lock(plantID)
	defer unlock()
	return s.cancelLocked(ctx, plantID)
}

// ScheduleOnce hands a single prebuilt notification to the service,
// alongside whatever the plant already has scheduled.
func (s *Scheduler) ScheduleOnce(ctx context.Context, n model.Notification) (string, error) {
	unlock := s.locks.Lock(n.Content.Data.PlantID)
	defer unlock()

	id, err := s.service.Schedule(ctx, n.Content, n.Trigger)
	if err != nil {
		return "", fmt.Errorf("schedule %s reminder: %w", n.Kind, err)
	}
	return id, nil
}

// ScheduledNotifications lists scheduled reminders for plantID, or all of
// them when plantID is zero.
func (s *Scheduler) ScheduledNotifications(ctx context.Context, plantID int64) ([]model.ScheduledNotification, error) {
	all, err := s.service.Scheduled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list scheduled notifications: %w", err)
	}
	if plantID == 0 {
		return all, nil
	}
	return filterByPlant(all, plantID), nil
}

func (s *Scheduler) cancelLocked(ctx context.Context, plantID int64) error {
	all, err := s.service.Scheduled(ctx)
	if err != nil {
		return fmt.Errorf("list scheduled notifications: %w", err)
	}

	for _, n := range filterByPlant(all, plantID) {
		if err := s.service.Cancel(ctx, n.Identifier); err != nil {
			s.logger.Warn("Failed to cancel reminder", "plant_id", plantID, "identifier", n.Identifier, "error", err)
			s.record("cancel_failed", "cancelling a reminder failed", map[string]any{
				"plant_id":   plantID,
				"identifier": n.Identifier,
				"error":      err.Error(),
			})
		}
	}
	return nil
}

func (s *Scheduler) schedule(ctx context.Context, n model.Notification) {
	id, err := s.service.Schedule(ctx, n.Content, n.Trigger)
	if err != nil {
		s.logger.Error("Failed to schedule reminder",
			"plant_id", n.Content.Data.PlantID, "kind", n.Kind, "trigger", n.Trigger, "error", err)
		s.record("schedule_failed", "scheduling a reminder failed", map[string]any{
			"plant_id": n.Content.Data.PlantID,
			"kind":     string(n.Kind),
			"error":    err.Error(),
		})
		return
	}
	s.logger.Info("Reminder scheduled",
		"plant_id", n.Content.Data.PlantID, "kind", n.Kind, "identifier", id, "trigger", n.Trigger)
}

func (s *Scheduler) record(typ, message string, data map[string]any) {
	if s.recorder != nil {
		s.recorder.Record(typ, message, data)
	}
}

func validate(plant model.Plant) error {
	if plant.LastWatered == nil {
		return &MissingFieldError{PlantID: plant.ID, Field: "lastWatered"}
	}
	if plant.WateringFrequencyDays < 1 {
		return &MissingFieldError{PlantID: plant.ID, Field: "wateringFrequencyDays"}
	}
	return nil
}

func filterByPlant(all []model.ScheduledNotification, plantID int64) []model.ScheduledNotification {
	var out []model.ScheduledNotification
	for _, n := range all {
		if n.PlantID() == plantID {
			out = append(out, n)
		}
	}
	return out
}
