package storage

import (
	"log/slog"
	"sync"
	"time"
)

const (
	KeyNotificationLogs = "notification_logs"

	maxJournalEntries = 100
)

type JournalEntry struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Journal is a bounded debug log of notification events kept in the
// key-value store. Only the newest 100 entries are retained.
type Journal struct {
	mu     sync.Mutex
	kv     KV
	logger *slog.Logger
	now    func() time.Time
}

func NewJournal(kv KV, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{kv: kv, logger: logger, now: time.Now}
}

// SetNowFunc overrides the clock used for entry timestamps.
func (j *Journal) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	j.now = now
}

// Record appends an entry. Failures are logged; a broken journal never
// affects the caller.
func (j *Journal) Record(typ, message string, data map[string]any) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	entries := j.entriesLocked()
	entries = append(entries, JournalEntry{
		Type:      typ,
		Message:   message,
		Data:      data,
		Timestamp: j.now().UTC(),
	})
	if len(entries) > maxJournalEntries {
		entries = entries[len(entries)-maxJournalEntries:]
	}

	if err := SetJSON(j.kv, KeyNotificationLogs, entries); err != nil {
		j.logger.Warn("Failed to write notification log", "error", err)
	}
}

func (j *Journal) Entries() []JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.entriesLocked()
}

func (j *Journal) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.kv.Remove(KeyNotificationLogs); err != nil {
		j.logger.Warn("Failed to clear notification log", "error", err)
	}
}

func (j *Journal) entriesLocked() []JournalEntry {
	var entries []JournalEntry
	if _, err := GetJSON(j.kv, KeyNotificationLogs, &entries); err != nil {
		j.logger.Warn("Discarding unreadable notification log", "error", err)
		return nil
	}
	return entries
}
