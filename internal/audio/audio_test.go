package audio_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cantina-labs/cantinaos/internal/audio"
	"github.com/cantina-labs/cantinaos/internal/bus"
	"github.com/cantina-labs/cantinaos/internal/service"
	"github.com/cantina-labs/cantinaos/internal/topics"
)

func newCoordinator(t *testing.T) (*audio.Coordinator, *bus.Bus) {
	t.Helper()
	reg := service.NewRegistry(zerolog.Nop())
	b := bus.New(topics.Default(), reg.OnHandlerError, bus.Config{}, zerolog.Nop())
	reg.BindBus(b)
	c := audio.New(reg, 0.5, zerolog.Nop())
	require.NoError(t, c.Service().Start(context.Background()))
	t.Cleanup(func() { _ = c.Service().Stop(context.Background()) })
	return c, b
}

func TestDuckRequestLowersVolume(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	c, b := newCoordinator(t)
	require.NoError(t, b.Publish(context.Background(), &topics.AudioDuckRequestedPayload{Level: 0.3}))
	time.Sleep(10 * time.Millisecond)
	assert.InDelta(t, 0.3, c.CurrentVolume(), 0.0001)
}

func TestUnduckRestoresUserVolumeWhenNoCrossfade(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	c, b := newCoordinator(t)
	require.NoError(t, b.Publish(context.Background(), &topics.AudioDuckRequestedPayload{Level: 0.3}))
	require.NoError(t, b.Publish(context.Background(), &topics.AudioUnduckRequestedPayload{}))
	time.Sleep(10 * time.Millisecond)
	assert.InDelta(t, 1.0, c.CurrentVolume(), 0.0001)
}

func TestCrossfadeRetainsControlWhileSpeechActive(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	c, b := newCoordinator(t)
	require.NoError(t, b.Publish(context.Background(), &topics.AudioDuckRequestedPayload{Level: 0.3}))
	time.Sleep(5 * time.Millisecond)

	target := c.StartCrossfade()
	assert.InDelta(t, 0.3, target, 0.0001, "crossfade must not override an active duck")

	require.NoError(t, b.Publish(context.Background(), &topics.AudioUnduckRequestedPayload{}))
	time.Sleep(5 * time.Millisecond)
	assert.InDelta(t, 0.3, c.CurrentVolume(), 0.0001, "unduck while crossfade active leaves crossfade in control")

	c.EndCrossfade()
	assert.InDelta(t, 1.0, c.CurrentVolume(), 0.0001)
}
