package reminder

import (
	"context"
	"errors"
	"fmt"

	"github.com/noahxzhu/plantcare-notify/internal/model"
)

// ApplyChange keeps a plant's reminders in step with one change-feed event.
// Updates that touch neither lastWatered nor the frequency are ignored.
func (s *Scheduler) ApplyChange(ctx context.Context, change model.PlantChange) error {
	switch change.EventType {
	case model.ChangeInsert:
		if change.New == nil {
			return nil
		}
		return s.scheduleIfComplete(ctx, *change.New)

	case model.ChangeUpdate:
		if change.New == nil {
			return nil
		}
		if change.Old != nil && !wateringChanged(*change.Old, *change.New) {
			return nil
		}
		return s.scheduleIfComplete(ctx, *change.New)

	case model.ChangeDelete:
		if change.Old == nil {
			return nil
		}
		return s.CancelPlantNotifications(ctx, change.Old.ID)
	}

	s.logger.Warn("Ignoring unknown plant change", "event_type", change.EventType)
	return nil
}

// Sync applies changes until the channel closes or ctx is done.
func (s *Scheduler) Sync(ctx context.Context, changes <-chan model.PlantChange) {
	s.logger.Info("Plant change sync started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Plant change sync stopped")
			return
		case change, ok := <-changes:
			if !ok {
				s.logger.Info("Plant change feed closed")
				return
			}
			if err := s.ApplyChange(ctx, change); err != nil {
				s.logger.Error("Failed to apply plant change", "event_type", change.EventType, "error", err)
			}
		}
	}
}

// Resync reschedules every plant in list, picking up edits made while no
// change feed was running. Failures for one plant do not stop the others.
func (s *Scheduler) Resync(ctx context.Context, list []model.Plant) error {
	var errs []error
	for _, plant := range list {
		if err := s.scheduleIfComplete(ctx, plant); err != nil {
			errs = append(errs, fmt.Errorf("plant %d: %w", plant.ID, err))
		}
	}
	s.logger.Info("Resynced plant reminders", "plants", len(list), "failed", len(errs))
	return errors.Join(errs...)
}

// scheduleIfComplete schedules reminders and cancels stale ones when the
// plant has lost its watering data.
func (s *Scheduler) scheduleIfComplete(ctx context.Context, plant model.Plant) error {
	err := s.ScheduleWateringNotifications(ctx, plant)
	var missing *MissingFieldError
	if errors.As(err, &missing) {
		s.logger.Debug("Plant has no watering schedule", "plant_id", plant.ID, "field", missing.Field)
		return s.CancelPlantNotifications(ctx, plant.ID)
	}
	return err
}

func wateringChanged(old, new model.Plant) bool {
	if old.WateringFrequencyDays != new.WateringFrequencyDays {
		return true
	}
	switch {
	case old.LastWatered == nil && new.LastWatered == nil:
		return false
	case old.LastWatered == nil || new.LastWatered == nil:
		return true
	}
	return !old.LastWatered.Equal(*new.LastWatered)
}
