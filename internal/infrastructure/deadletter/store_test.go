package deadletter

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "deadletter.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_PutAndList(t *testing.T) {
	store := openStore(t)

	require.NoError(t, store.Put("eventbus_channel", []byte("{broken"), errors.New("unexpected EOF")))
	require.NoError(t, store.Put("eventbus_channel", []byte(`{"@class":"Nope"}`), nil))

	letters, err := store.List(10)
	require.NoError(t, err)
	require.Len(t, letters, 2)

	assert.Equal(t, "eventbus_channel", letters[0].Channel)
	assert.Equal(t, "{broken", letters[0].Payload)
	assert.Equal(t, "unexpected EOF", letters[0].Error)
	assert.NotEmpty(t, letters[0].ID)
	assert.Empty(t, letters[1].Error)

	size, err := store.Size()
	require.NoError(t, err)
	assert.Equal(t, 2, size)
}

func TestStore_ListRespectsLimit(t *testing.T) {
	store := openStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Put("ch", []byte("x"), nil))
	}

	letters, err := store.List(3)
	require.NoError(t, err)
	assert.Len(t, letters, 3)
}

func TestStore_Remove(t *testing.T) {
	store := openStore(t)
	require.NoError(t, store.Put("ch", []byte("x"), nil))

	letters, err := store.List(1)
	require.NoError(t, err)
	require.Len(t, letters, 1)

	removed, err := store.Remove(letters[0].ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.Remove(letters[0].ID)
	require.NoError(t, err)
	assert.False(t, removed)

	size, err := store.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestStore_Cleanup(t *testing.T) {
	store := openStore(t)
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Add(Letter{Channel: "ch", Payload: "old", Timestamp: now.Add(-48 * time.Hour)}))
	require.NoError(t, store.Add(Letter{Channel: "ch", Payload: "older", Timestamp: now.Add(-96 * time.Hour)}))
	require.NoError(t, store.Add(Letter{Channel: "ch", Payload: "fresh", Timestamp: now.Add(-time.Hour)}))

	removed, err := store.Cleanup(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	letters, err := store.List(10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "fresh", letters[0].Payload)
}

func TestCleaner_RunExpiresOldLetters(t *testing.T) {
	store := openStore(t)
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Add(Letter{Channel: "ch", Payload: "old", Timestamp: now.Add(-10 * time.Hour)}))
	require.NoError(t, store.Add(Letter{Channel: "ch", Payload: "new", Timestamp: now.Add(-time.Minute)}))

	cleaner, err := NewCleaner(store, CleanerConfig{Retention: time.Hour, Interval: time.Minute}, nil)
	require.NoError(t, err)
	cleaner.now = func() time.Time { return now }

	cleaner.Run()

	size, err := store.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestCleaner_SubSecondIntervalSchedules(t *testing.T) {
	cleaner, err := NewCleaner(openStore(t), CleanerConfig{Interval: 250 * time.Millisecond}, nil)
	require.NoError(t, err)
	require.Len(t, cleaner.cron.Entries(), 1)
	assert.Equal(t, cron.ConstantDelaySchedule{Delay: time.Second}, cleaner.cron.Entries()[0].Schedule)
}

func TestStore_ClosedStoreFails(t *testing.T) {
	var store *Store
	_, err := store.Size()
	assert.Error(t, err)
	assert.NoError(t, store.Close())
}
