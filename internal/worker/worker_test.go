package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noahxzhu/plantcare-notify/internal/model"
)

type fakeSource struct {
	mu       sync.Mutex
	pending  []model.ScheduledNotification
	notified []string
}

func (f *fakeSource) add(id string, trigger time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, model.ScheduledNotification{Identifier: id, Trigger: trigger})
	sort.Slice(f.pending, func(i, j int) bool { return f.pending[i].Trigger.Before(f.pending[j].Trigger) })
}

func (f *fakeSource) NextTrigger() (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return time.Time{}, false
	}
	return f.pending[0].Trigger, true
}

func (f *fakeSource) TakeDue(now time.Time) []model.ScheduledNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due, rest []model.ScheduledNotification
	for _, n := range f.pending {
		if n.Trigger.After(now) {
			rest = append(rest, n)
		} else {
			due = append(due, n)
		}
	}
	f.pending = rest
	return due
}

func (f *fakeSource) Notify(n model.ScheduledNotification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, n.Identifier)
}

func (f *fakeSource) notifiedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.notified...)
}

type fakePresenter struct {
	mu        sync.Mutex
	presented []string
	err       error
}

func (p *fakePresenter) Present(_ context.Context, n model.ScheduledNotification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presented = append(p.presented, n.Identifier)
	return p.err
}

func (p *fakePresenter) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.presented...)
}

func TestWorker_CheckAndFire(t *testing.T) {
	now := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{}
	source.add("past", now.Add(-time.Hour))
	source.add("now", now)
	source.add("later", now.Add(24*time.Hour))

	presenter := &fakePresenter{}
	w := NewWorker(source, presenter, nil)
	w.SetNowFunc(func() time.Time { return now })

	next := w.checkAndFire(context.Background())

	assert.Equal(t, []string{"past", "now"}, presenter.ids())
	assert.Equal(t, []string{"past", "now"}, source.notifiedIDs())
	assert.Equal(t, now.Add(24*time.Hour), next)
}

func TestWorker_PresentFailureStillNotifies(t *testing.T) {
	now := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{}
	source.add("a", now)

	presenter := &fakePresenter{err: errors.New("pushover down")}
	w := NewWorker(source, presenter, nil)
	w.SetNowFunc(func() time.Time { return now })

	var fired []error
	w.SetOnFire(func(_ model.ScheduledNotification, err error) { fired = append(fired, err) })

	next := w.checkAndFire(context.Background())
	assert.True(t, next.IsZero())
	assert.Equal(t, []string{"a"}, source.notifiedIDs())
	require.Len(t, fired, 1)
	assert.Error(t, fired[0])
}

func TestWorker_StartFiresOnTimerAndRefresh(t *testing.T) {
	source := &fakeSource{}
	presenter := &fakePresenter{}
	w := NewWorker(source, presenter, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	source.add("first", time.Now().Add(20*time.Millisecond))
	w.Refresh()

	assert.Eventually(t, func() bool { return len(presenter.ids()) == 1 }, 2*time.Second, 5*time.Millisecond)

	source.add("second", time.Now())
	w.Refresh()
	assert.Eventually(t, func() bool { return len(presenter.ids()) == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_RefreshDoesNotBlock(t *testing.T) {
	w := NewWorker(&fakeSource{}, nil, nil)
	for i := 0; i < 5; i++ {
		w.Refresh()
	}
	assert.Len(t, w.updateChan, 1)
}
