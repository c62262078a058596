package reminder

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noahxzhu/plantcare-notify/internal/model"
)

const (
	remindLaterTitle = "Watering Reminder"
	remindLaterBody  = "Don't forget to water your plant!"
)

// BuildNotification builds the watering reminder for plant firing at
// trigger. Only the id and the creation timestamps depend on anything but
// the arguments.
func BuildNotification(plant model.Plant, trigger time.Time, isDayBefore bool, now time.Time) model.Notification {
	kind := model.KindDueDay
	title := fmt.Sprintf("Time to water %s", plant.Name)
	body := fmt.Sprintf("%s needs watering!", plant.Name)
	if isDayBefore {
		kind = model.KindDayBefore
		title = fmt.Sprintf("Remember to water %s tomorrow", plant.Name)
		body = fmt.Sprintf("%s will need watering tomorrow!", plant.Name)
	}

	return model.Notification{
		ID:   uuid.New().String(),
		Kind: kind,
		Content: model.Content{
			Title: title,
			Body:  body,
			Data: model.Payload{
				PlantID:   plant.ID,
				Type:      model.TypeWatering,
				Kind:      kind,
				Timestamp: now.UTC().Format(time.RFC3339Nano),
			},
			CategoryIdentifier: model.CategoryWatering,
		},
		Trigger:   trigger,
		CreatedAt: now,
	}
}

// BuildRemindLater builds the one-off follow-up scheduled when the user
// snoozes a reminder. It keeps the plant and type of the original payload.
func BuildRemindLater(original model.Payload, trigger time.Time, now time.Time) model.Notification {
	typ := original.Type
	if typ == "" {
		typ = model.TypeWatering
	}

	return model.Notification{
		ID:   uuid.New().String(),
		Kind: model.KindRemindLater,
		Content: model.Content{
			Title: remindLaterTitle,
			Body:  remindLaterBody,
			Data: model.Payload{
				PlantID:   original.PlantID,
				Type:      typ,
				Kind:      model.KindRemindLater,
				Timestamp: now.UTC().Format(time.RFC3339Nano),
			},
			CategoryIdentifier: model.CategoryWatering,
		},
		Trigger:   trigger,
		CreatedAt: now,
	}
}
