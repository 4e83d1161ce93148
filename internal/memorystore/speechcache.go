package memorystore

import (
	"container/list"
	"sync"
	"time"
)

// SpeechState is the coarse lifecycle of one cached synthesis (spec.md §3
// "Speech cache entry").
type SpeechState string

const (
	SpeechPending SpeechState = "pending"
	SpeechReady   SpeechState = "ready"
	SpeechPlayed  SpeechState = "played"
	SpeechEvicted SpeechState = "evicted"
)

// SpeechEntry is one synthesized-commentary cache record, keyed by
// speech_id (spec.md §3).
type SpeechEntry struct {
	SpeechID    string      `json:"speech_id"`
	Audio       []byte      `json:"audio,omitempty"`
	Path        string      `json:"path,omitempty"`
	SampleRate  int         `json:"sample_rate"`
	GeneratedAt time.Time   `json:"generated_at"`
	State       SpeechState `json:"state"`
}

// DefaultSpeechCacheCapacity is the default hot-LRU window size (spec.md
// §3 "hard cap of N (default 32) entries with LRU eviction").
const DefaultSpeechCacheCapacity = 32

// SpeechCache is the DJ coordinator's/TTS adapter's cache of synthesized
// commentary: a bounded in-memory LRU window, overflowing evicted `ready`
// entries to an optional Badger-backed Store rather than discarding them
// (SPEC_FULL.md §3 "Speech cache disk overflow"). The coordinator must
// treat a miss at both layers as `evicted`, per spec.md §3.
type SpeechCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	items    map[string]*list.Element
	overflow Store
}

// NewSpeechCache constructs a cache with capacity (DefaultSpeechCacheCapacity
// if <= 0). overflow may be nil to disable disk overflow entirely — evicted
// entries are then simply dropped and return SpeechEvicted on lookup.
func NewSpeechCache(capacity int, overflow Store) *SpeechCache {
	if capacity <= 0 {
		capacity = DefaultSpeechCacheCapacity
	}
	return &SpeechCache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		overflow: overflow,
	}
}

// Put inserts or updates entry, marking it most-recently-used. Evicts the
// least-recently-used entry if the hot window is now over capacity.
func (c *SpeechCache) Put(entry SpeechEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[entry.SpeechID]; ok {
		el.Value = entry
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(entry)
	c.items[entry.SpeechID] = el

	if c.order.Len() > c.capacity {
		c.evictOldest()
	}
}

// evictOldest moves the least-recently-used entry to the overflow store (if
// configured) and removes it from the hot window. Caller must hold c.mu.
func (c *SpeechCache) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	entry := oldest.Value.(SpeechEntry)
	c.order.Remove(oldest)
	delete(c.items, entry.SpeechID)

	if c.overflow != nil && entry.State == SpeechReady {
		_ = c.overflow.Set(overflowKey(entry.SpeechID), entry)
	}
}

// Get returns the entry for speechID, checking the hot LRU window first,
// then the overflow store. A miss at both layers is reported as
// SpeechEvicted, never as "not found" — spec.md §3's "the coordinator
// treats evicted as cache-miss" holds regardless of which layer served it.
func (c *SpeechCache) Get(speechID string) (SpeechEntry, bool) {
	c.mu.Lock()
	if el, ok := c.items[speechID]; ok {
		c.order.MoveToFront(el)
		entry := el.Value.(SpeechEntry)
		c.mu.Unlock()
		return entry, true
	}
	c.mu.Unlock()

	if c.overflow != nil {
		var entry SpeechEntry
		if err := c.overflow.Get(overflowKey(speechID), &entry); err == nil {
			return entry, true
		}
	}
	return SpeechEntry{SpeechID: speechID, State: SpeechEvicted}, false
}

// MarkPlayed transitions a hot-window entry to SpeechPlayed. No-op if the
// entry is not currently in the hot window (e.g. already evicted).
func (c *SpeechCache) MarkPlayed(speechID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[speechID]
	if !ok {
		return
	}
	entry := el.Value.(SpeechEntry)
	entry.State = SpeechPlayed
	el.Value = entry
}

// Len returns the number of entries currently in the hot LRU window.
func (c *SpeechCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func overflowKey(speechID string) string { return "speech_cache/" + speechID }
