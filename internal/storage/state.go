package storage

import (
	"log/slog"

	"github.com/noahxzhu/plantcare-notify/internal/model"
)

const KeyNotificationState = "notification_state"

// StateStore persists the NotificationState record. Persistence is a cache
// for the next cold start: failures are logged and never returned.
type StateStore struct {
	kv     KV
	logger *slog.Logger
}

func NewStateStore(kv KV, logger *slog.Logger) *StateStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateStore{kv: kv, logger: logger}
}

// Load returns the persisted state, or the defaults when nothing usable is
// stored.
func (s *StateStore) Load() model.NotificationState {
	var state model.NotificationState
	ok, err := GetJSON(s.kv, KeyNotificationState, &state)
	if err != nil {
		s.logger.Warn("Discarding unreadable notification state", "error", err)
		return model.DefaultNotificationState()
	}
	if !ok {
		return model.DefaultNotificationState()
	}
	return state
}

func (s *StateStore) Save(state model.NotificationState) {
	if err := SetJSON(s.kv, KeyNotificationState, state); err != nil {
		s.logger.Error("Failed to save notification state", "error", err)
	}
}
