package dj_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cantina-labs/cantinaos/internal/bus"
	"github.com/cantina-labs/cantinaos/internal/dj"
	"github.com/cantina-labs/cantinaos/internal/memorystore"
	"github.com/cantina-labs/cantinaos/internal/service"
	"github.com/cantina-labs/cantinaos/internal/topics"
)

var library = []topics.Track{
	{TrackID: "track-a", Title: "A"},
	{TrackID: "track-b", Title: "B"},
	{TrackID: "track-c", Title: "C"},
}

func newCoordinator(t *testing.T) (*dj.Coordinator, *bus.Bus) {
	t.Helper()
	reg := service.NewRegistry(zerolog.Nop())
	b := bus.New(topics.Default(), reg.OnHandlerError, bus.Config{}, zerolog.Nop())
	reg.BindBus(b)
	store := memorystore.NewJSONStore("", zerolog.Nop())
	cache := memorystore.NewSpeechCache(memorystore.DefaultSpeechCacheCapacity, nil)
	c := dj.New(reg, store, cache, library, zerolog.Nop())
	require.NoError(t, c.Service().Start(context.Background()))
	t.Cleanup(func() { _ = c.Service().Stop(context.Background()) })
	return c, b
}

func subscribe(t *testing.T, b *bus.Bus, topic bus.Topic) *[]bus.Payload {
	t.Helper()
	var mu sync.Mutex
	var got []bus.Payload
	handle, err := b.Subscribe(topic, "test_observer", func(_ context.Context, p bus.Payload) error {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Unsubscribe(handle) })
	return &got
}

func boolPtr(b bool) *bool { return &b }

func TestStartPicksInitialTrackAndBeginsCommentaryLoop(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	c, b := newCoordinator(t)
	musicCmds := subscribe(t, b, topics.MusicCommandTopic)
	commentaryReqs := subscribe(t, b, topics.LLMCommentaryRequest)

	require.NoError(t, b.Publish(context.Background(), &topics.DJCommandPayload{DJModeActive: boolPtr(true)}))
	require.Eventually(t, func() bool { return len(*musicCmds) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(*commentaryReqs) == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, dj.StateActive, c.State())
	req := (*commentaryReqs)[0].(*topics.LLMCommentaryRequestPayload)
	assert.Equal(t, topics.PersonaTransition, req.Persona)
	assert.NotEmpty(t, req.SpeechID)
}

func TestHappyPathRotatesOnPlanCompletion(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	c, b := newCoordinator(t)
	commentaryReqs := subscribe(t, b, topics.LLMCommentaryRequest)
	planSubmits := subscribe(t, b, topics.TimelinePlanSubmit)

	require.NoError(t, b.Publish(context.Background(), &topics.DJCommandPayload{DJModeActive: boolPtr(true)}))
	require.Eventually(t, func() bool { return len(*commentaryReqs) == 1 }, time.Second, 5*time.Millisecond)
	speechID := (*commentaryReqs)[0].(*topics.LLMCommentaryRequestPayload).SpeechID

	require.NoError(t, b.Publish(context.Background(), &topics.LLMCommentaryResponsePayload{SpeechID: speechID, Text: "next up..."}))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Publish(context.Background(), &topics.TTSCacheReadyPayload{SpeechID: speechID}))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Publish(context.Background(), &topics.DJTrackEndingSoonPayload{TrackID: "track-a"}))

	require.Eventually(t, func() bool { return len(*planSubmits) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, dj.StateTransitioning, c.State())

	submitted := (*planSubmits)[0].(*topics.TimelinePlanSubmitPayload)
	require.NoError(t, b.Publish(context.Background(), &topics.TimelinePlanCompletedPayload{PlanID: submitted.Plan.PlanID}))

	require.Eventually(t, func() bool { return c.State() == dj.StateActive }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(*commentaryReqs) == 2 }, time.Second, 5*time.Millisecond)
}

func TestMissingCacheAtTrackEndingSoonFallsBackToCrossfadeOnly(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	c, b := newCoordinator(t)
	commentaryReqs := subscribe(t, b, topics.LLMCommentaryRequest)
	skipped := subscribe(t, b, topics.DJCommentarySkipped)
	planSubmits := subscribe(t, b, topics.TimelinePlanSubmit)

	require.NoError(t, b.Publish(context.Background(), &topics.DJCommandPayload{DJModeActive: boolPtr(true)}))
	require.Eventually(t, func() bool { return len(*commentaryReqs) == 1 }, time.Second, 5*time.Millisecond)

	// track_ending_soon arrives with no cache-ready: since the commentary
	// request is still recent, the coordinator waits out the grace delay,
	// then falls back to a crossfade-only plan once the cache still isn't
	// ready.
	require.NoError(t, b.Publish(context.Background(), &topics.DJTrackEndingSoonPayload{TrackID: "track-a"}))

	require.Eventually(t, func() bool { return len(*planSubmits) == 1 }, 3*time.Second, 10*time.Millisecond)
	submitted := (*planSubmits)[0].(*topics.TimelinePlanSubmitPayload)
	assert.Len(t, submitted.Plan.Steps, 1)
	assert.Equal(t, topics.StepMusicCrossfade, submitted.Plan.Steps[0].Kind)
	assert.Len(t, *skipped, 1)
}

func TestSkipDiscardsPendingAndPromotesNextImmediately(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	c, b := newCoordinator(t)
	commentaryReqs := subscribe(t, b, topics.LLMCommentaryRequest)
	planSubmits := subscribe(t, b, topics.TimelinePlanSubmit)

	require.NoError(t, b.Publish(context.Background(), &topics.DJCommandPayload{DJModeActive: boolPtr(true)}))
	require.Eventually(t, func() bool { return len(*commentaryReqs) == 1 }, time.Second, 5*time.Millisecond)
	firstNext := (*commentaryReqs)[0].(*topics.LLMCommentaryRequestPayload).NextTrack.TrackID

	require.NoError(t, b.Publish(context.Background(), &topics.DJCommandPayload{Skip: true}))
	require.Eventually(t, func() bool { return len(*planSubmits) == 1 }, time.Second, 5*time.Millisecond)

	submitted := (*planSubmits)[0].(*topics.TimelinePlanSubmitPayload)
	assert.Equal(t, firstNext, submitted.Plan.Steps[0].ToTrackID)
	require.Eventually(t, func() bool { return len(*commentaryReqs) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, dj.StateActive, c.State())
}

func TestStopReturnsToOffWithoutStoppingMusic(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	c, b := newCoordinator(t)
	musicCmds := subscribe(t, b, topics.MusicCommandTopic)

	require.NoError(t, b.Publish(context.Background(), &topics.DJCommandPayload{DJModeActive: boolPtr(true)}))
	require.Eventually(t, func() bool { return len(*musicCmds) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Publish(context.Background(), &topics.DJCommandPayload{DJModeActive: boolPtr(false)}))
	require.Eventually(t, func() bool { return c.State() == dj.StateOff }, time.Second, 5*time.Millisecond)

	for _, p := range *musicCmds {
		assert.NotEqual(t, "stop", p.(*topics.MusicCommandPayload).Command)
	}
}
