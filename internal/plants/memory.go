package plants

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noahxzhu/plantcare-notify/internal/model"
)

type subscriber struct {
	ch   chan model.PlantChange
	done <-chan struct{}
}

// Memory is an in-process Repository. Plants do not survive a restart.
type Memory struct {
	mu     sync.Mutex
	nextID int64
	plants map[int64]model.Plant
	subs   map[*subscriber]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		nextID: 1,
		plants: make(map[int64]model.Plant),
		subs:   make(map[*subscriber]struct{}),
	}
}

func (m *Memory) GetPlant(ctx context.Context, id int64) (model.Plant, error) {
	if err := ctx.Err(); err != nil {
		return model.Plant{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plants[id]
	if !ok {
		return model.Plant{}, fmt.Errorf("plant %d: %w", id, model.ErrPlantNotFound)
	}
	return clonePlant(p), nil
}

func (m *Memory) List(ctx context.Context) ([]model.Plant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	out := make([]model.Plant, 0, len(m.plants))
	for _, p := range m.plants {
		out = append(out, clonePlant(p))
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Create(ctx context.Context, p model.Plant) (model.Plant, error) {
	if err := ctx.Err(); err != nil {
		return model.Plant{}, err
	}
	m.mu.Lock()
	p.ID = m.nextID
	m.nextID++
	m.plants[p.ID] = clonePlant(p)
	m.mu.Unlock()

	created := clonePlant(p)
	m.publish(model.PlantChange{EventType: model.ChangeInsert, New: &created})
	return clonePlant(p), nil
}

func (m *Memory) Update(ctx context.Context, p model.Plant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	old, ok := m.plants[p.ID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("plant %d: %w", p.ID, model.ErrPlantNotFound)
	}
	m.plants[p.ID] = clonePlant(p)
	m.mu.Unlock()

	updated := clonePlant(p)
	m.publish(model.PlantChange{EventType: model.ChangeUpdate, Old: &old, New: &updated})
	return nil
}

func (m *Memory) UpdateLastWatered(ctx context.Context, id int64, t time.Time) error {
	p, err := m.GetPlant(ctx, id)
	if err != nil {
		return err
	}
	p.LastWatered = &t
	return m.Update(ctx, p)
}

func (m *Memory) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	old, ok := m.plants[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("plant %d: %w", id, model.ErrPlantNotFound)
	}
	delete(m.plants, id)
	m.mu.Unlock()

	m.publish(model.PlantChange{EventType: model.ChangeDelete, Old: &old})
	return nil
}

// Changes subscribes to plant changes. Writers block until every live
// subscriber has taken the event. The channel is never closed; stop reading
// once ctx is done.
func (m *Memory) Changes(ctx context.Context) <-chan model.PlantChange {
	sub := &subscriber{ch: make(chan model.PlantChange, 16), done: ctx.Done()}

	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, sub)
		m.mu.Unlock()
	}()

	return sub.ch
}

func (m *Memory) publish(change model.PlantChange) {
	m.mu.Lock()
	subs := make([]*subscriber, 0, len(m.subs))
	for s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- change:
		case <-s.done:
		}
	}
}

func clonePlant(p model.Plant) model.Plant {
	if p.LastWatered != nil {
		t := *p.LastWatered
		p.LastWatered = &t
	}
	return p
}
