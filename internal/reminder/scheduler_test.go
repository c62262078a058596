package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noahxzhu/plantcare-notify/internal/model"
)

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, svc NotificationService) (*Scheduler, *fakeRecorder) {
	t.Helper()
	s := NewScheduler(svc, Options{SendingHour: DefaultSendingHour, Location: time.UTC, SkipPastTriggers: true}, nil)
	s.SetNowFunc(func() time.Time { return testNow })
	rec := &fakeRecorder{}
	s.SetRecorder(rec)
	return s, rec
}

func plantWatered(id int64, name string, lastWatered time.Time, freq int) model.Plant {
	return model.Plant{ID: id, Name: name, LastWatered: &lastWatered, WateringFrequencyDays: freq}
}

func TestScheduler_SchedulesDueDayAndDayBefore(t *testing.T) {
	svc := newFakeService()
	s, _ := newTestScheduler(t, svc)

	plant := plantWatered(1, "Fern", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 5)
	require.NoError(t, s.ScheduleWateringNotifications(context.Background(), plant))

	got := svc.forPlant(1)
	require.Len(t, got, 2)

	byKind := map[model.Kind]model.ScheduledNotification{}
	for _, n := range got {
		byKind[n.Kind()] = n
	}

	due := byKind[model.KindDueDay]
	assert.Equal(t, time.Date(2024, 1, 6, 9, 0, 0, 0, time.UTC), due.Trigger)
	assert.Equal(t, "Time to water Fern", due.Content.Title)
	assert.Equal(t, "Fern needs watering!", due.Content.Body)
	assert.Equal(t, model.CategoryWatering, due.Content.CategoryIdentifier)

	before := byKind[model.KindDayBefore]
	assert.Equal(t, time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC), before.Trigger)
	assert.Equal(t, "Remember to water Fern tomorrow", before.Content.Title)
}

func TestScheduler_UsesLocalCalendarDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	svc := newFakeService()
	s := NewScheduler(svc, Options{SendingHour: DefaultSendingHour, Location: ny, SkipPastTriggers: true}, nil)
	s.SetNowFunc(func() time.Time { return testNow })

	// midnight UTC is still Dec 31 in New York
	plant := plantWatered(1, "Fern", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 5)
	require.NoError(t, s.ScheduleWateringNotifications(context.Background(), plant))

	got := svc.forPlant(1)
	require.Len(t, got, 2)
	byKind := map[model.Kind]time.Time{}
	for _, n := range got {
		byKind[n.Kind()] = n.Trigger
	}

	due := byKind[model.KindDueDay]
	assert.True(t, due.Equal(time.Date(2024, 1, 5, 9, 0, 0, 0, ny)), due.String())
	assert.Equal(t, 9, due.In(ny).Hour())
	assert.True(t, due.Equal(time.Date(2024, 1, 5, 14, 0, 0, 0, time.UTC)))

	before := byKind[model.KindDayBefore]
	assert.True(t, before.Equal(time.Date(2024, 1, 4, 9, 0, 0, 0, ny)), before.String())
}

func TestScheduler_IsIdempotent(t *testing.T) {
	svc := newFakeService()
	s, _ := newTestScheduler(t, svc)
	ctx := context.Background()

	fern := plantWatered(1, "Fern", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 5)
	cactus := plantWatered(2, "Cactus", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 14)

	require.NoError(t, s.ScheduleWateringNotifications(ctx, cactus))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.ScheduleWateringNotifications(ctx, fern))
	}

	assert.Len(t, svc.forPlant(1), 2)
	assert.Len(t, svc.forPlant(2), 2)
}

func TestScheduler_SkipsDayBeforeOnToday(t *testing.T) {
	svc := newFakeService()
	s, _ := newTestScheduler(t, svc)

	plant := plantWatered(1, "Basil", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 1)
	require.NoError(t, s.ScheduleWateringNotifications(context.Background(), plant))

	got := svc.forPlant(1)
	require.Len(t, got, 1)
	assert.Equal(t, model.KindDueDay, got[0].Kind())
	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), got[0].Trigger)
}

func TestScheduler_PastDayBefore(t *testing.T) {
	plant := plantWatered(1, "Ivy", time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), 5)

	t.Run("skipped when guarded", func(t *testing.T) {
		svc := newFakeService()
		s, rec := newTestScheduler(t, svc)

		require.NoError(t, s.ScheduleWateringNotifications(context.Background(), plant))
		got := svc.forPlant(1)
		require.Len(t, got, 1)
		assert.Equal(t, model.KindDueDay, got[0].Kind())
		assert.Contains(t, rec.types(), "skipped_past_trigger")
	})

	t.Run("scheduled when unguarded", func(t *testing.T) {
		svc := newFakeService()
		s := NewScheduler(svc, Options{SendingHour: 9, Location: time.UTC}, nil)
		s.SetNowFunc(func() time.Time { return testNow })

		require.NoError(t, s.ScheduleWateringNotifications(context.Background(), plant))
		assert.Len(t, svc.forPlant(1), 2)
	})
}

func TestScheduler_MissingFields(t *testing.T) {
	svc := newFakeService()
	s, _ := newTestScheduler(t, svc)

	cases := []struct {
		name  string
		plant model.Plant
		field string
	}{
		{"never watered", model.Plant{ID: 3, Name: "Moss", WateringFrequencyDays: 3}, "lastWatered"},
		{"no frequency", plantWatered(3, "Moss", testNow, 0), "wateringFrequencyDays"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.ScheduleWateringNotifications(context.Background(), tc.plant)
			var missing *MissingFieldError
			require.True(t, errors.As(err, &missing))
			assert.Equal(t, tc.field, missing.Field)
			assert.Equal(t, int64(3), missing.PlantID)
		})
	}
	assert.Empty(t, svc.forPlant(3))
}

func TestScheduler_ScheduleFailureIsLogged(t *testing.T) {
	svc := newFakeService()
	svc.failSchedule[model.KindDayBefore] = true
	s, rec := newTestScheduler(t, svc)

	plant := plantWatered(1, "Fern", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 5)
	require.NoError(t, s.ScheduleWateringNotifications(context.Background(), plant))

	got := svc.forPlant(1)
	require.Len(t, got, 1)
	assert.Equal(t, model.KindDueDay, got[0].Kind())
	assert.Contains(t, rec.types(), "schedule_failed")
}

func TestScheduler_CancelFailureStillSchedules(t *testing.T) {
	svc := newFakeService()
	s, rec := newTestScheduler(t, svc)
	ctx := context.Background()

	plant := plantWatered(1, "Fern", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 5)
	require.NoError(t, s.ScheduleWateringNotifications(ctx, plant))

	svc.failCancel = true
	require.NoError(t, s.ScheduleWateringNotifications(ctx, plant))
	assert.Len(t, svc.forPlant(1), 4)
	assert.Contains(t, rec.types(), "cancel_failed")
}

func TestScheduler_ListFailure(t *testing.T) {
	svc := newFakeService()
	svc.failList = true
	s, _ := newTestScheduler(t, svc)

	plant := plantWatered(1, "Fern", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 5)
	assert.NoError(t, s.ScheduleWateringNotifications(context.Background(), plant))
	assert.Error(t, s.CancelPlantNotifications(context.Background(), 1))

	_, err := s.ScheduledNotifications(context.Background(), 0)
	assert.Error(t, err)
}

func TestScheduler_CancelPlantNotifications(t *testing.T) {
	svc := newFakeService()
	s, _ := newTestScheduler(t, svc)
	ctx := context.Background()

	require.NoError(t, s.ScheduleWateringNotifications(ctx, plantWatered(1, "Fern", testNow, 5)))
	require.NoError(t, s.ScheduleWateringNotifications(ctx, plantWatered(2, "Cactus", testNow, 7)))

	require.NoError(t, s.CancelPlantNotifications(ctx, 1))
	assert.Empty(t, svc.forPlant(1))
	assert.Len(t, svc.forPlant(2), 2)

	// Nothing scheduled is fine.
	require.NoError(t, s.CancelPlantNotifications(ctx, 42))

	all, err := s.ScheduledNotifications(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestScheduler_ScheduleOnceKeepsExisting(t *testing.T) {
	svc := newFakeService()
	s, _ := newTestScheduler(t, svc)
	ctx := context.Background()

	require.NoError(t, s.ScheduleWateringNotifications(ctx, plantWatered(1, "Fern", testNow, 5)))

	n := BuildRemindLater(model.Payload{PlantID: 1, Type: model.TypeWatering}, testNow.Add(time.Hour), testNow)
	id, err := s.ScheduleOnce(ctx, n)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Len(t, svc.forPlant(1), 3)
}

func TestScheduler_ConcurrentSamePlant(t *testing.T) {
	svc := newFakeService()
	s, _ := newTestScheduler(t, svc)
	plant := plantWatered(1, "Fern", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 5)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.ScheduleWateringNotifications(context.Background(), plant))
		}()
	}
	wg.Wait()

	assert.Len(t, svc.forPlant(1), 2)
	assert.Zero(t, s.locks.size())
}

func TestIsFutureTrigger(t *testing.T) {
	assert.True(t, IsFutureTrigger(testNow.Add(time.Second), testNow))
	assert.False(t, IsFutureTrigger(testNow, testNow))
	assert.False(t, IsFutureTrigger(testNow.Add(-time.Hour), testNow))
}
