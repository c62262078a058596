package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/noahxzhu/plantcare-notify/internal/model"
)

// fakeService is an in-memory NotificationService.
type fakeService struct {
	mu           sync.Mutex
	next         int
	scheduled    []model.ScheduledNotification
	cancelled    []string
	failList     bool
	failCancel   bool
	failSchedule map[model.Kind]bool
}

func newFakeService() *fakeService {
	return &fakeService{failSchedule: map[model.Kind]bool{}}
}

func (f *fakeService) Schedule(_ context.Context, content model.Content, trigger time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSchedule[content.Data.Kind] {
		return "", errors.New("os refused")
	}
	f.next++
	id := fmt.Sprintf("n-%d", f.next)
	f.scheduled = append(f.scheduled, model.ScheduledNotification{Identifier: id, Content: content, Trigger: trigger})
	return id, nil
}

func (f *fakeService) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	if f.failCancel {
		return errors.New("cancel failed")
	}
	for i, n := range f.scheduled {
		if n.Identifier == id {
			f.scheduled = append(f.scheduled[:i], f.scheduled[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeService) Scheduled(context.Context) ([]model.ScheduledNotification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList {
		return nil, errors.New("list failed")
	}
	out := make([]model.ScheduledNotification, len(f.scheduled))
	copy(out, f.scheduled)
	return out, nil
}

func (f *fakeService) forPlant(id int64) []model.ScheduledNotification {
	all, _ := f.Scheduled(context.Background())
	return filterByPlant(all, id)
}

type recorded struct {
	typ     string
	message string
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []recorded
}

func (r *fakeRecorder) Record(typ, message string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, recorded{typ, message})
}

func (r *fakeRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.entries {
		out = append(out, e.typ)
	}
	return out
}
