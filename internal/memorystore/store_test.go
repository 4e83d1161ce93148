package memorystore_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cantina-labs/cantinaos/internal/memorystore"
)

func TestJSONStoreSetGetRoundTrip(t *testing.T) {
	s := memorystore.NewJSONStore("", zerolog.Nop())
	require.NoError(t, s.Set("dj/next_speech_id", "abc-123"))

	var got string
	require.NoError(t, s.Get("dj/next_speech_id", &got))
	assert.Equal(t, "abc-123", got)
}

func TestJSONStoreGetMissingKeyReturnsNotFound(t *testing.T) {
	s := memorystore.NewJSONStore("", zerolog.Nop())
	var got string
	err := s.Get("nope", &got)
	assert.ErrorIs(t, err, memorystore.ErrNotFound)
}

func TestJSONStoreSnapshotSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")

	s1 := memorystore.NewJSONStore(path, zerolog.Nop())
	require.NoError(t, s1.Set("key", 42))
	require.NoError(t, s1.Snapshot())

	s2 := memorystore.NewJSONStore(path, zerolog.Nop())
	require.NoError(t, s2.Load())
	var got int
	require.NoError(t, s2.Get("key", &got))
	assert.Equal(t, 42, got)
}

func TestSpeechCacheEvictsToOverflowAndSurvivesLookup(t *testing.T) {
	overflow := memorystore.NewJSONStore("", zerolog.Nop())
	cache := memorystore.NewSpeechCache(2, overflow)

	cache.Put(memorystore.SpeechEntry{SpeechID: "a", State: memorystore.SpeechReady, GeneratedAt: time.Now()})
	cache.Put(memorystore.SpeechEntry{SpeechID: "b", State: memorystore.SpeechReady, GeneratedAt: time.Now()})
	cache.Put(memorystore.SpeechEntry{SpeechID: "c", State: memorystore.SpeechReady, GeneratedAt: time.Now()})

	assert.Equal(t, 2, cache.Len())

	entry, found := cache.Get("a")
	require.True(t, found)
	assert.Equal(t, memorystore.SpeechReady, entry.State)
}

func TestSpeechCacheMissWithNoOverflowIsEvicted(t *testing.T) {
	cache := memorystore.NewSpeechCache(1, nil)
	cache.Put(memorystore.SpeechEntry{SpeechID: "a", State: memorystore.SpeechReady})
	cache.Put(memorystore.SpeechEntry{SpeechID: "b", State: memorystore.SpeechReady})

	entry, found := cache.Get("a")
	assert.False(t, found)
	assert.Equal(t, memorystore.SpeechEvicted, entry.State)
}

func TestSpeechCacheMarkPlayed(t *testing.T) {
	cache := memorystore.NewSpeechCache(4, nil)
	cache.Put(memorystore.SpeechEntry{SpeechID: "a", State: memorystore.SpeechReady})
	cache.MarkPlayed("a")

	entry, found := cache.Get("a")
	require.True(t, found)
	assert.Equal(t, memorystore.SpeechPlayed, entry.State)
}

func TestBadgerStoreSetGetDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := memorystore.OpenBadgerStore(dir, zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Set("track_history/1", []string{"a", "b"}))
	var got []string
	require.NoError(t, store.Get("track_history/1", &got))
	assert.Equal(t, []string{"a", "b"}, got)

	require.NoError(t, store.Delete("track_history/1"))
	err = store.Get("track_history/1", &got)
	assert.ErrorIs(t, err, memorystore.ErrNotFound)
}
