// Package audio implements the Audio Coordinator (spec.md §4.8): the
// single point of truth for ducking, avoiding the "crossfade overrides
// duck" bug by always checking speech-active state before a crossfade step
// sets its target volume.
package audio

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cantina-labs/cantinaos/internal/bus"
	"github.com/cantina-labs/cantinaos/internal/service"
	"github.com/cantina-labs/cantinaos/internal/topics"
)

// Coordinator owns the small ducking state machine of spec.md §4.8: current
// music volume, ducked setpoint, and the speech-active/crossfade-active
// flags that decide who controls volume next.
type Coordinator struct {
	svc *service.Service
	log zerolog.Logger

	mu            sync.Mutex
	userVolume    float64
	duckedVolume  float64
	currentVolume float64
	speechActive  bool
	crossfadeActive bool
}

// New registers the audio coordinator with reg. duckedVolume is the
// ducked-volume setpoint applied before any AUDIO_DUCK_REQUESTED event
// overrides it (spec.md §6's configured default, cfg.Audio.DuckedVolume).
func New(reg *service.Registry, duckedVolume float64, log zerolog.Logger) *Coordinator {
	c := &Coordinator{
		log:           log.With().Str("service", "audio_coordinator").Logger(),
		userVolume:    1.0,
		duckedVolume:  duckedVolume,
		currentVolume: 1.0,
	}
	c.svc = reg.New(service.Config{
		Name: "audio_coordinator",
		Subscriptions: []service.Subscription{
			{Topic: topics.AudioDuckRequested, Handler: c.handleDuckRequested},
			{Topic: topics.AudioUnduckRequested, Handler: c.handleUnduckRequested},
			{Topic: topics.MusicCrossfadeRequestTopic, Handler: c.handleCrossfadeRequested},
			{Topic: topics.MusicCrossfadeComplete, Handler: c.handleCrossfadeComplete},
		},
	})
	return c
}

// Service returns the coordinator's underlying *service.Service.
func (c *Coordinator) Service() *service.Service { return c.svc }

// CurrentVolume returns the coordinator's idea of the current music volume
// (0.0-1.0), for tests and diagnostics.
func (c *Coordinator) CurrentVolume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentVolume
}

func (c *Coordinator) handleDuckRequested(ctx context.Context, payload bus.Payload) error {
	req := payload.(*topics.AudioDuckRequestedPayload)
	c.mu.Lock()
	c.duckedVolume = req.Level
	c.speechActive = true
	c.currentVolume = min(c.currentVolume, req.Level)
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) handleUnduckRequested(ctx context.Context, payload bus.Payload) error {
	c.mu.Lock()
	c.speechActive = false
	if !c.crossfadeActive {
		c.currentVolume = c.userVolume
	}
	// If a crossfade is in progress, it retains volume control (spec.md
	// §4.8): StartCrossfade/EndCrossfade's own math applies instead.
	c.mu.Unlock()
	return nil
}

// handleCrossfadeRequested marks a crossfade in progress as soon as the
// timeline executor initiates one, so a concurrent duck request is never
// overridden by the crossfade's own volume target (spec.md §4.8).
func (c *Coordinator) handleCrossfadeRequested(ctx context.Context, payload bus.Payload) error {
	c.StartCrossfade()
	return nil
}

func (c *Coordinator) handleCrossfadeComplete(ctx context.Context, payload bus.Payload) error {
	c.EndCrossfade()
	return nil
}

// StartCrossfade marks a crossfade in progress and recomputes the target
// volume: the current ducked volume if speech is active, otherwise the
// user-set full volume (spec.md §4.8, avoiding the crossfade-overrides-duck
// bug). handleCrossfadeRequested calls this when a MusicCrossfadeRequestTopic
// event (published by the timeline executor for a music_crossfade step)
// arrives.
func (c *Coordinator) StartCrossfade() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.crossfadeActive = true
	return c.targetVolumeLocked()
}

// EndCrossfade clears crossfade-active state and restores the user-set
// volume if speech has also already completed.
func (c *Coordinator) EndCrossfade() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.crossfadeActive = false
	if !c.speechActive {
		c.currentVolume = c.userVolume
	}
}

// SetUserVolume updates the user-set full volume, used by a `volume`
// command or equivalent out-of-scope control surface.
func (c *Coordinator) SetUserVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userVolume = v
	if !c.speechActive && !c.crossfadeActive {
		c.currentVolume = v
	}
}

func (c *Coordinator) targetVolumeLocked() float64 {
	if c.speechActive {
		return c.duckedVolume
	}
	return c.userVolume
}
