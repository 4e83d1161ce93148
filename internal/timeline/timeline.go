// Package timeline implements the Timeline Executor (spec.md §4.6): runs a
// TimelinePlan step by step, gating play_cached_speech and music_crossfade
// steps on a matching completion event from the bus, running parallel
// branches concurrently via golang.org/x/sync/errgroup, and coupling audio
// ducking across a parallel speech+crossfade pair regardless of which
// branch finishes first.
package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cantina-labs/cantinaos/internal/bus"
	"github.com/cantina-labs/cantinaos/internal/cerrors"
	"github.com/cantina-labs/cantinaos/internal/service"
	"github.com/cantina-labs/cantinaos/internal/topics"
)

type runningPlan struct {
	planID string
	cancel context.CancelFunc
	done   chan struct{}
}

// Executor owns, per layer, at most one active plan (spec.md §3 invariant).
// It never holds a reference to the audio coordinator or any other service:
// ducking is coordinated entirely through AudioDuckRequested/UnduckRequested
// and MusicCrossfadeRequestTopic events (spec.md §9 "break cycles by passing
// only the event bus ... into each service").
type Executor struct {
	svc *service.Service
	bus *bus.Bus
	log zerolog.Logger

	// defaultSpeechTimeout and crossfadeGrace are the configured fallback
	// completion-wait bounds (spec.md §4.6 "with defaults", cfg.Timeline).
	// duckedVolume is the level requested while a coupled speech+crossfade
	// pair is in flight (cfg.Audio.DuckedVolume).
	defaultSpeechTimeout time.Duration
	crossfadeGrace       time.Duration
	duckedVolume         float64

	mu     sync.Mutex
	active map[topics.PlanLayer]*runningPlan
}

// New registers the timeline executor with reg. defaultSpeechTimeout and
// crossfadeGrace back spec.md §6's "default timeouts for plan steps";
// duckedVolume backs the coupled-ducking level runParallel requests.
func New(reg *service.Registry, b *bus.Bus, defaultSpeechTimeout, crossfadeGrace time.Duration, duckedVolume float64, log zerolog.Logger) *Executor {
	e := &Executor{
		bus:                  b,
		log:                  log.With().Str("service", "timeline_executor").Logger(),
		active:               make(map[topics.PlanLayer]*runningPlan),
		defaultSpeechTimeout: defaultSpeechTimeout,
		crossfadeGrace:       crossfadeGrace,
		duckedVolume:         duckedVolume,
	}
	e.svc = reg.New(service.Config{
		Name: "timeline_executor",
		Subscriptions: []service.Subscription{
			{Topic: topics.TimelinePlanSubmit, Handler: e.handleSubmit},
		},
	})
	return e
}

// Service returns the executor's underlying *service.Service.
func (e *Executor) Service() *service.Service { return e.svc }

func (e *Executor) handleSubmit(ctx context.Context, payload bus.Payload) error {
	req := payload.(*topics.TimelinePlanSubmitPayload)
	e.Submit(req.Plan)
	return nil
}

// Submit starts plan, cancelling and awaiting unwind of any plan already
// active on the same layer first (spec.md §4.6 "Cancellation").
func (e *Executor) Submit(plan topics.TimelinePlan) {
	e.mu.Lock()
	if prev, ok := e.active[plan.Layer]; ok {
		prev.cancel()
		e.mu.Unlock()
		<-prev.done
		e.mu.Lock()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	rp := &runningPlan{planID: plan.PlanID, cancel: cancel, done: make(chan struct{})}
	e.active[plan.Layer] = rp
	e.mu.Unlock()

	go e.run(runCtx, plan, rp)
}

func (e *Executor) run(ctx context.Context, plan topics.TimelinePlan, rp *runningPlan) {
	defer close(rp.done)
	defer e.clearIfCurrent(plan.Layer, rp)

	err := e.runSteps(ctx, plan.PlanID, plan.Steps)

	switch {
	case ctx.Err() != nil:
		e.log.Info().Str("plan_id", plan.PlanID).Str("layer", string(plan.Layer)).Msg("plan cancelled")
		_ = e.svc.Emit(context.Background(), &topics.TimelinePlanCancelledPayload{
			PlanID: plan.PlanID,
			Reason: "preempted by new plan on layer",
		})
	case err != nil:
		step, stepErr := stepDescription(err)
		e.log.Error().Str("plan_id", plan.PlanID).Str("step", step).Err(err).Msg("plan step failed")
		_ = e.svc.Emit(context.Background(), &topics.TimelinePlanFailedPayload{
			PlanID: plan.PlanID,
			Step:   step,
			Error:  stepErr,
		})
	default:
		_ = e.svc.Emit(context.Background(), &topics.TimelinePlanCompletedPayload{PlanID: plan.PlanID})
	}
}

func (e *Executor) clearIfCurrent(layer topics.PlanLayer, rp *runningPlan) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[layer] == rp {
		delete(e.active, layer)
	}
}

func (e *Executor) runSteps(ctx context.Context, planID string, steps []topics.Step) error {
	for _, step := range steps {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.runStep(ctx, planID, step); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) runStep(ctx context.Context, planID string, step topics.Step) error {
	switch step.Kind {
	case topics.StepPlayCachedSpeech:
		return e.runPlayCachedSpeech(ctx, step)
	case topics.StepMusicCrossfade:
		return e.runMusicCrossfade(ctx, planID, step)
	case topics.StepWait:
		return e.runWait(ctx, step)
	case topics.StepParallel:
		return e.runParallel(ctx, planID, step.Steps)
	default:
		return fmt.Errorf("%s: unknown step kind %q", planID, step.Kind)
	}
}

// runParallel runs every branch concurrently; the node completes when all
// branches complete (spec.md §4.6). When a branch contains both a
// play_cached_speech and a music_crossfade step, the executor ducks music
// for the duration of the speech step regardless of which branch finishes
// first (spec.md §4.6 "Audio coupling").
func (e *Executor) runParallel(ctx context.Context, planID string, steps []topics.Step) error {
	coupled := hasKind(steps, topics.StepPlayCachedSpeech) && hasKind(steps, topics.StepMusicCrossfade)
	if coupled {
		_ = e.svc.Emit(ctx, &topics.AudioDuckRequestedPayload{Level: e.duckedVolume})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, step := range steps {
		step := step
		g.Go(func() error { return e.runStep(gctx, planID, step) })
	}
	err := g.Wait()

	if coupled {
		_ = e.svc.Emit(context.Background(), &topics.AudioUnduckRequestedPayload{})
	}
	return err
}

func hasKind(steps []topics.Step, kind topics.StepKind) bool {
	for _, s := range steps {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

func (e *Executor) runPlayCachedSpeech(ctx context.Context, step topics.Step) error {
	timeout := time.Duration(step.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = e.defaultSpeechTimeout
	}

	wait := e.awaitCompletion(ctx, topics.SpeechPlaybackComplete, func(p bus.Payload) bool {
		return p.(*topics.SpeechPlaybackCompletePayload).SpeechID == step.SpeechID
	}, timeout)

	if err := e.svc.Emit(ctx, &topics.AudioPlayCachedSpeechRequestPayload{SpeechID: step.SpeechID}); err != nil {
		return err
	}
	return wait()
}

func (e *Executor) runMusicCrossfade(ctx context.Context, planID string, step topics.Step) error {
	timeout := time.Duration(step.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Duration(step.FadeMS)*time.Millisecond + e.crossfadeGrace
	}

	wait := e.awaitCompletion(ctx, topics.MusicCrossfadeComplete, func(p bus.Payload) bool {
		return p.(*topics.MusicCrossfadeCompletePayload).PlanID == planID
	}, timeout)

	req := &topics.MusicCrossfadeRequestPayload{
		PlanID:      planID,
		FromTrackID: step.FromTrackID,
		ToTrackID:   step.ToTrackID,
		FadeMS:      step.FadeMS,
	}
	if err := e.svc.Emit(ctx, req); err != nil {
		return err
	}
	return wait()
}

func (e *Executor) runWait(ctx context.Context, step topics.Step) error {
	timeout := time.Duration(step.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = e.defaultSpeechTimeout
	}
	wait := e.awaitCompletion(ctx, bus.Topic(step.WaitTopic), func(p bus.Payload) bool {
		return matchesFields(p, step.Match)
	}, timeout)
	return wait()
}

// awaitCompletion subscribes to topic before returning its wait function,
// so the caller can safely publish the triggering request afterward without
// a race against the completion event. The returned function blocks until
// a matching payload arrives, ctx is cancelled, or timeout elapses.
func (e *Executor) awaitCompletion(ctx context.Context, topic bus.Topic, match func(bus.Payload) bool, timeout time.Duration) func() error {
	got := make(chan struct{}, 1)
	handle, err := e.bus.Subscribe(topic, "timeline_executor", func(_ context.Context, p bus.Payload) error {
		if match(p) {
			select {
			case got <- struct{}{}:
			default:
			}
		}
		return nil
	})
	if err != nil {
		return func() error { return err }
	}

	return func() error {
		defer e.bus.Unsubscribe(handle)
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-got:
			return nil
		case <-timer.C:
			return &cerrors.StepTimeout{Step: string(topic), Bound: timeout.String()}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// matchesFields reports whether every key/value in match is present and
// equal on payload's marshaled JSON form. Used only by wait steps, whose
// match set is small and dynamic by construction (spec.md §3 "wait").
func matchesFields(payload bus.Payload, match map[string]any) bool {
	if len(match) == 0 {
		return true
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false
	}
	for k, v := range match {
		if fields[k] != v {
			return false
		}
	}
	return true
}

func stepDescription(err error) (string, string) {
	if timeout, ok := err.(*cerrors.StepTimeout); ok {
		return timeout.Step, timeout.Error()
	}
	return "", err.Error()
}
