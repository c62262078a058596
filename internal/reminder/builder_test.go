package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noahxzhu/plantcare-notify/internal/model"
)

func TestBuildNotification(t *testing.T) {
	plant := model.Plant{ID: 7, Name: "Monstera"}
	trigger := time.Date(2024, 1, 6, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		isDayBefore bool
		kind        model.Kind
		title       string
		body        string
	}{
		{"due day", false, model.KindDueDay, "Time to water Monstera", "Monstera needs watering!"},
		{"day before", true, model.KindDayBefore, "Remember to water Monstera tomorrow", "Monstera will need watering tomorrow!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := BuildNotification(plant, trigger, tt.isDayBefore, testNow)

			assert.NotEmpty(t, n.ID)
			assert.Equal(t, tt.kind, n.Kind)
			assert.Equal(t, tt.title, n.Content.Title)
			assert.Equal(t, tt.body, n.Content.Body)
			assert.Equal(t, trigger, n.Trigger)
			assert.Equal(t, testNow, n.CreatedAt)
			assert.Equal(t, model.CategoryWatering, n.Content.CategoryIdentifier)
			assert.Equal(t, int64(7), n.Content.Data.PlantID)
			assert.Equal(t, model.TypeWatering, n.Content.Data.Type)
			assert.Equal(t, "2024-01-01T12:00:00Z", n.Content.Data.Timestamp)
		})
	}
}

func TestBuildNotification_FreshIDs(t *testing.T) {
	plant := model.Plant{ID: 1, Name: "Fern"}
	a := BuildNotification(plant, testNow, false, testNow)
	b := BuildNotification(plant, testNow, false, testNow)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestBuildRemindLater(t *testing.T) {
	trigger := testNow.Add(time.Hour)

	n := BuildRemindLater(model.Payload{PlantID: 4, Type: model.TypeMaintenance}, trigger, testNow)
	assert.Equal(t, "Watering Reminder", n.Content.Title)
	assert.Equal(t, "Don't forget to water your plant!", n.Content.Body)
	assert.Equal(t, int64(4), n.Content.Data.PlantID)
	assert.Equal(t, model.TypeMaintenance, n.Content.Data.Type)
	assert.Equal(t, model.KindRemindLater, n.Kind)
	assert.Equal(t, trigger, n.Trigger)

	n = BuildRemindLater(model.Payload{PlantID: 4}, trigger, testNow)
	assert.Equal(t, model.TypeWatering, n.Content.Data.Type)
}
