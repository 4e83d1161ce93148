// Package dj implements the DJ Coordinator (spec.md §4.7): a small state
// machine that drives a commentary-then-crossfade loop between tracks,
// selecting tracks by a deterministic, reproducible policy and falling back
// gracefully when commentary audio is not ready in time.
package dj

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cantina-labs/cantinaos/internal/bus"
	"github.com/cantina-labs/cantinaos/internal/memorystore"
	"github.com/cantina-labs/cantinaos/internal/service"
	"github.com/cantina-labs/cantinaos/internal/topics"
)

// State is the coordinator's lifecycle state (spec.md §4.7 "off → starting →
// active → transitioning → active … → stopping → off").
type State string

const (
	StateOff           State = "off"
	StateStarting      State = "starting"
	StateActive        State = "active"
	StateTransitioning State = "transitioning"
	StateStopping      State = "stopping"
)

const (
	historyLimit          = 5
	crossfadeFadeMS        = 1500
	speechTimeoutMS        = 20_000
	missingCacheGraceDelay = 2 * time.Second
	coordinationSlotKey    = "dj_coordinator/coordination_slot"
)

// coordinationSlot is the well-known memory-store record naming the in-flight
// transition, readable by other services (spec.md §4.7 step 1).
type coordinationSlot struct {
	CurrentTrackID string `json:"current_track_id"`
	NextTrackID    string `json:"next_track_id"`
	NextSpeechID   string `json:"next_speech_id"`
}

type pendingCommentary struct {
	speechID    string
	nextTrackID string
	requestedAt time.Time
	discarded   bool
}

// Coordinator owns the DJ loop's state. now lets tests fix the track-bucket
// clock so selection stays reproducible.
type Coordinator struct {
	svc   *service.Service
	store memorystore.Store
	cache *memorystore.SpeechCache
	log   zerolog.Logger
	now   func() time.Time

	mu        sync.Mutex
	state     State
	library   []topics.Track
	history   []string
	currentID string
	pending   *pendingCommentary
	planID    string
}

// New registers the DJ coordinator with reg. library is the known track set;
// store persists the coordination slot other services read; cache tracks
// synthesized commentary readiness (spec.md §3 "Speech cache entry") so
// handleTrackEndingSoon's missing-cache fallback reads real cache state
// instead of an ad hoc flag.
func New(reg *service.Registry, store memorystore.Store, cache *memorystore.SpeechCache, library []topics.Track, log zerolog.Logger) *Coordinator {
	c := &Coordinator{
		store:   store,
		cache:   cache,
		log:     log.With().Str("service", "dj_coordinator").Logger(),
		now:     time.Now,
		state:   StateOff,
		library: library,
	}
	c.svc = reg.New(service.Config{
		Name: "dj_coordinator",
		Subscriptions: []service.Subscription{
			{Topic: topics.DJCommandTopic, Handler: c.handleDJCommand},
			{Topic: topics.LLMCommentaryResponse, Handler: c.handleCommentaryResponse},
			{Topic: topics.TTSCacheReady, Handler: c.handleCacheReady},
			{Topic: topics.DJTrackEndingSoon, Handler: c.handleTrackEndingSoon},
			{Topic: topics.TimelinePlanCompleted, Handler: c.handlePlanCompleted},
			{Topic: topics.TimelinePlanFailed, Handler: c.handlePlanFailed},
		},
	})
	return c
}

// Service returns the coordinator's underlying *service.Service.
func (c *Coordinator) Service() *service.Service { return c.svc }

// State returns the coordinator's current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) handleDJCommand(ctx context.Context, payload bus.Payload) error {
	cmd := payload.(*topics.DJCommandPayload)
	switch {
	case cmd.Skip:
		return c.skip(ctx)
	case cmd.DJModeActive != nil && *cmd.DJModeActive:
		return c.start(ctx)
	case cmd.DJModeActive != nil && !*cmd.DJModeActive:
		return c.stop(ctx)
	}
	return nil
}

func (c *Coordinator) start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateOff {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStarting
	first := c.selectTrackLocked(nil)
	c.currentID = first
	c.state = StateActive
	c.mu.Unlock()

	if first == "" {
		return nil
	}
	if err := c.svc.Emit(ctx, &topics.MusicCommandPayload{Command: "play_track", TrackID: first, RawInput: "dj start"}); err != nil {
		return err
	}
	return c.beginCommentaryLoop(ctx)
}

// beginCommentaryLoop runs spec.md §4.7 step 1-2: select the next track,
// assign it a speech id, publish the coordination slot, and request
// commentary.
func (c *Coordinator) beginCommentaryLoop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return nil
	}
	next := c.selectTrackLocked([]string{c.currentID})
	if next == "" {
		c.mu.Unlock()
		return nil
	}
	speechID := uuid.NewString()
	c.pending = &pendingCommentary{speechID: speechID, nextTrackID: next, requestedAt: c.now()}
	current := c.currentID
	c.mu.Unlock()

	if c.store != nil {
		_ = c.store.Set(coordinationSlotKey, coordinationSlot{
			CurrentTrackID: current,
			NextTrackID:    next,
			NextSpeechID:   speechID,
		})
	}

	return c.svc.Emit(ctx, &topics.LLMCommentaryRequestPayload{
		SpeechID:     speechID,
		Persona:      topics.PersonaTransition,
		CurrentTrack: c.trackByID(current),
		NextTrack:    c.trackByID(next),
	})
}

func (c *Coordinator) handleCommentaryResponse(ctx context.Context, payload bus.Payload) error {
	resp := payload.(*topics.LLMCommentaryResponsePayload)
	c.mu.Lock()
	match := c.pending != nil && c.pending.speechID == resp.SpeechID && !c.pending.discarded
	c.mu.Unlock()
	if !match {
		return nil
	}
	if c.cache != nil {
		c.cache.Put(memorystore.SpeechEntry{SpeechID: resp.SpeechID, State: memorystore.SpeechPending, GeneratedAt: c.now()})
	}
	return c.svc.Emit(ctx, &topics.TTSSynthesisRequestPayload{SpeechID: resp.SpeechID, Text: resp.Text, Cache: true})
}

func (c *Coordinator) handleCacheReady(ctx context.Context, payload bus.Payload) error {
	ready := payload.(*topics.TTSCacheReadyPayload)
	c.mu.Lock()
	match := c.pending != nil && c.pending.speechID == ready.SpeechID && !c.pending.discarded
	c.mu.Unlock()
	if match && c.cache != nil {
		c.cache.Put(memorystore.SpeechEntry{
			SpeechID:    ready.SpeechID,
			SampleRate:  ready.SampleRate,
			GeneratedAt: c.now(),
			State:       memorystore.SpeechReady,
		})
	}
	return nil
}

// commentaryReady reports whether pending's synthesized commentary is
// SpeechReady in the cache. A nil cache (disabled) is always not-ready,
// falling through to the crossfade-only plan.
func (c *Coordinator) commentaryReady(pending *pendingCommentary) bool {
	if c.cache == nil {
		return false
	}
	entry, ok := c.cache.Get(pending.speechID)
	return ok && entry.State == memorystore.SpeechReady
}

// handleTrackEndingSoon implements spec.md §4.7 steps 4-5 and the
// missing-cache policy.
func (c *Coordinator) handleTrackEndingSoon(ctx context.Context, payload bus.Payload) error {
	c.mu.Lock()
	if c.state != StateActive || c.pending == nil || c.pending.discarded {
		c.mu.Unlock()
		return nil
	}
	pending := c.pending
	c.mu.Unlock()

	if c.commentaryReady(pending) {
		return c.submitTransitionPlan(ctx, pending, true)
	}

	if time.Since(pending.requestedAt) < missingCacheGraceDelay {
		time.AfterFunc(missingCacheGraceDelay, func() {
			c.mu.Lock()
			stillPending := c.pending == pending && !pending.discarded
			c.mu.Unlock()
			if !stillPending {
				return
			}
			_ = c.submitTransitionPlan(context.Background(), pending, c.commentaryReady(pending))
		})
		return nil
	}

	return c.submitTransitionPlan(ctx, pending, false)
}

// submitTransitionPlan builds and submits the foreground timeline plan for
// the pending transition. withSpeech selects between the full
// commentary+crossfade plan and the missing-cache crossfade-only fallback.
func (c *Coordinator) submitTransitionPlan(ctx context.Context, pending *pendingCommentary, withSpeech bool) error {
	c.mu.Lock()
	if c.pending != pending || pending.discarded {
		c.mu.Unlock()
		return nil
	}
	planID := uuid.NewString()
	c.planID = planID
	c.state = StateTransitioning
	c.mu.Unlock()

	crossfade := topics.Step{Kind: topics.StepMusicCrossfade, ToTrackID: pending.nextTrackID, FadeMS: crossfadeFadeMS}

	var plan topics.TimelinePlan
	if withSpeech {
		plan = topics.TimelinePlan{
			PlanID: planID,
			Layer:  topics.LayerForeground,
			Steps: []topics.Step{{
				Kind: topics.StepParallel,
				Steps: []topics.Step{
					{Kind: topics.StepPlayCachedSpeech, SpeechID: pending.speechID, TimeoutMS: speechTimeoutMS},
					crossfade,
				},
			}},
		}
	} else {
		plan = topics.TimelinePlan{PlanID: planID, Layer: topics.LayerForeground, Steps: []topics.Step{crossfade}}
		if err := c.svc.Emit(ctx, &topics.DJCommentarySkippedPayload{SpeechID: pending.speechID, Reason: "cache not ready at track_ending_soon"}); err != nil {
			return err
		}
	}

	return c.svc.Emit(ctx, &topics.TimelinePlanSubmitPayload{Plan: plan})
}

// handlePlanCompleted implements spec.md §4.7 step 6: rotate to the next
// track and restart the loop.
func (c *Coordinator) handlePlanCompleted(ctx context.Context, payload bus.Payload) error {
	done := payload.(*topics.TimelinePlanCompletedPayload)
	c.mu.Lock()
	if c.state != StateTransitioning || c.planID != done.PlanID || c.pending == nil {
		c.mu.Unlock()
		return nil
	}
	next := c.pending.nextTrackID
	playedSpeechID := c.pending.speechID
	c.history = append(c.history, c.currentID)
	if len(c.history) > historyLimit {
		c.history = c.history[len(c.history)-historyLimit:]
	}
	c.currentID = next
	c.pending = nil
	c.planID = ""
	c.state = StateActive
	c.mu.Unlock()

	if c.cache != nil {
		c.cache.MarkPlayed(playedSpeechID)
	}

	return c.beginCommentaryLoop(ctx)
}

func (c *Coordinator) handlePlanFailed(ctx context.Context, payload bus.Payload) error {
	failed := payload.(*topics.TimelinePlanFailedPayload)
	c.mu.Lock()
	if c.planID != failed.PlanID {
		c.mu.Unlock()
		return nil
	}
	c.pending = nil
	c.planID = ""
	c.state = StateActive
	c.mu.Unlock()
	c.log.Warn().Str("plan_id", failed.PlanID).Str("error", failed.Error).Msg("dj transition plan failed, restarting loop")
	return c.beginCommentaryLoop(ctx)
}

// skip implements spec.md §4.7 "Skip-command": discard whatever is pending,
// promote the already-selected next track immediately via a crossfade-only
// plan (which preempts any in-progress plan on the foreground layer), and
// restart the commentary loop from a fresh next-track selection.
func (c *Coordinator) skip(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateActive && c.state != StateTransitioning {
		c.mu.Unlock()
		return nil
	}
	pending := c.pending
	if pending == nil {
		c.mu.Unlock()
		return nil
	}
	pending.discarded = true
	target := pending.nextTrackID
	c.history = append(c.history, c.currentID)
	if len(c.history) > historyLimit {
		c.history = c.history[len(c.history)-historyLimit:]
	}
	c.currentID = target
	c.pending = nil
	planID := uuid.NewString()
	c.planID = planID
	c.state = StateActive
	c.mu.Unlock()

	plan := topics.TimelinePlan{
		PlanID: planID,
		Layer:  topics.LayerForeground,
		Steps:  []topics.Step{{Kind: topics.StepMusicCrossfade, ToTrackID: target, FadeMS: crossfadeFadeMS}},
	}
	if err := c.svc.Emit(ctx, &topics.TimelinePlanSubmitPayload{Plan: plan}); err != nil {
		return err
	}
	return c.beginCommentaryLoop(ctx)
}

// stop implements spec.md §4.7 "Stop": preempt any in-progress plan on the
// foreground layer with an empty plan (the executor's per-layer single-plan
// invariant is the only cancellation primitive it exposes), clear the
// coordination slot, and return to off. It never touches currently playing
// music.
func (c *Coordinator) stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateOff {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopping
	hadPlan := c.planID != ""
	c.pending = nil
	c.planID = ""
	c.mu.Unlock()

	if hadPlan {
		if err := c.svc.Emit(ctx, &topics.TimelinePlanSubmitPayload{
			Plan: topics.TimelinePlan{PlanID: uuid.NewString(), Layer: topics.LayerForeground, Steps: nil},
		}); err != nil {
			return err
		}
	}
	if c.store != nil {
		_ = c.store.Delete(coordinationSlotKey)
	}

	c.mu.Lock()
	c.state = StateOff
	c.currentID = ""
	c.history = nil
	c.mu.Unlock()
	return nil
}

// selectTrackLocked applies spec.md §4.7's deterministic policy: exclude the
// recent-history ring buffer and any ids in exclude, falling back to the
// full library if that empties the candidate set, then pick the element
// whose stable hash of (track_id, now_bucket) is smallest. Callers must hold
// c.mu.
func (c *Coordinator) selectTrackLocked(exclude []string) string {
	if len(c.library) == 0 {
		return ""
	}
	skip := make(map[string]bool, len(c.history)+len(exclude))
	for _, id := range c.history {
		skip[id] = true
	}
	for _, id := range exclude {
		skip[id] = true
	}

	candidates := make([]string, 0, len(c.library))
	for _, t := range c.library {
		if !skip[t.TrackID] {
			candidates = append(candidates, t.TrackID)
		}
	}
	if len(candidates) == 0 {
		for _, t := range c.library {
			candidates = append(candidates, t.TrackID)
		}
	}
	if len(candidates) == 0 {
		return ""
	}

	bucket := nowBucket(c.now())
	best := candidates[0]
	bestHash := stableHash(best, bucket)
	for _, id := range candidates[1:] {
		if h := stableHash(id, bucket); h < bestHash {
			best, bestHash = id, h
		}
	}
	return best
}

func (c *Coordinator) trackByID(id string) topics.Track {
	for _, t := range c.library {
		if t.TrackID == id {
			return t
		}
	}
	return topics.Track{TrackID: id}
}

// nowBucket quantizes t to a coarse interval so repeated selections within
// the same window are stable (spec.md §4.7 "reproducible-but-varying
// selections in tests by fixing now_bucket").
func nowBucket(t time.Time) int64 {
	const bucketWidth = 5 * time.Minute
	return t.Unix() / int64(bucketWidth.Seconds())
}

func stableHash(trackID string, bucket int64) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(trackID))
	_, _ = h.Write([]byte{
		byte(bucket), byte(bucket >> 8), byte(bucket >> 16), byte(bucket >> 24),
		byte(bucket >> 32), byte(bucket >> 40), byte(bucket >> 48), byte(bucket >> 56),
	})
	return h.Sum64()
}
