package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noahxzhu/plantcare-notify/internal/model"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "data", "plantcare.json"))
	require.NoError(t, store.Load())
	return store
}

// failingKV rejects every write.
type failingKV struct {
	data map[string]string
}

func (f *failingKV) Get(key string) (string, bool) {
	v, ok := f.data[key]
	return v, ok
}

func (f *failingKV) Set(string, string) error { return errors.New("disk full") }
func (f *failingKV) Remove(string) error      { return errors.New("disk full") }

func TestStore_LoadMissingFile(t *testing.T) {
	store := createTestStore(t)
	_, ok := store.Get("anything")
	assert.False(t, ok)
}

func TestStore_LoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	store := NewStore(path)
	require.NoError(t, store.Load())
	_, ok := store.Get("anything")
	assert.False(t, ok)
}

func TestStore_LoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	assert.Error(t, NewStore(path).Load())
}

func TestStore_SetPersists(t *testing.T) {
	store := createTestStore(t)
	require.NoError(t, store.Set("greeting", "hello"))
	require.NoError(t, store.Set("other", "value"))
	require.NoError(t, store.Remove("other"))

	reloaded := NewStore(store.filePath)
	require.NoError(t, reloaded.Load())

	v, ok := reloaded.Get("greeting")
	assert.True(t, ok)
	assert.Equal(t, "hello", v)

	_, ok = reloaded.Get("other")
	assert.False(t, ok)
}

func TestStore_RemoveMissingKey(t *testing.T) {
	store := createTestStore(t)
	assert.NoError(t, store.Remove("nope"))
}

func TestStateStore_Defaults(t *testing.T) {
	states := NewStateStore(createTestStore(t), nil)
	assert.Equal(t, model.DefaultNotificationState(), states.Load())
}

func TestStateStore_RoundTrip(t *testing.T) {
	token := "device-token"
	cases := []model.NotificationState{
		{},
		{Enabled: true, Token: &token},
		{Enabled: false, Error: &model.ErrorRecord{Message: "permission denied"}},
	}

	for i, state := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			states := NewStateStore(createTestStore(t), nil)
			states.Save(state)
			assert.Equal(t, state, states.Load())
		})
	}
}

func TestStateStore_SurvivesRestart(t *testing.T) {
	store := createTestStore(t)
	token := "abc"
	NewStateStore(store, nil).Save(model.NotificationState{Enabled: true, Token: &token})

	reloaded := NewStore(store.filePath)
	require.NoError(t, reloaded.Load())
	got := NewStateStore(reloaded, nil).Load()
	assert.True(t, got.Enabled)
	require.NotNil(t, got.Token)
	assert.Equal(t, "abc", *got.Token)
}

func TestStateStore_MalformedIsDefault(t *testing.T) {
	store := createTestStore(t)
	require.NoError(t, store.Set(KeyNotificationState, "{{{"))

	assert.Equal(t, model.DefaultNotificationState(), NewStateStore(store, nil).Load())
}

func TestStateStore_SaveFailureIsSwallowed(t *testing.T) {
	states := NewStateStore(&failingKV{}, nil)
	assert.NotPanics(t, func() {
		states.Save(model.NotificationState{Enabled: true})
	})
	assert.Equal(t, model.DefaultNotificationState(), states.Load())
}

func TestJournal_KeepsNewest100(t *testing.T) {
	journal := NewJournal(createTestStore(t), nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	i := 0
	journal.SetNowFunc(func() time.Time { return base.Add(time.Duration(i) * time.Second) })

	for i = 0; i < 130; i++ {
		journal.Record("test", fmt.Sprintf("entry %d", i), map[string]any{"n": i})
	}

	entries := journal.Entries()
	require.Len(t, entries, 100)
	assert.Equal(t, "entry 30", entries[0].Message)
	assert.Equal(t, "entry 129", entries[99].Message)
	assert.Equal(t, base.Add(129*time.Second), entries[99].Timestamp)
}

func TestJournal_Clear(t *testing.T) {
	journal := NewJournal(createTestStore(t), nil)
	journal.Record("test", "one", nil)
	journal.Clear()
	assert.Empty(t, journal.Entries())
}

func TestJournal_NilIsNoop(t *testing.T) {
	var journal *Journal
	assert.NotPanics(t, func() { journal.Record("test", "ignored", nil) })
}
