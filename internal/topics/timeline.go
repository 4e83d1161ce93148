package topics

import "github.com/cantina-labs/cantinaos/internal/bus"

// StepKind tags the variant of a timeline Step (spec.md §3 "A Step is
// tagged"). Go has no native sum type; a flat struct keyed by Kind, with one
// field group per variant, is the idiomatic wire-compatible stand-in.
type StepKind string

const (
	StepPlayCachedSpeech StepKind = "play_cached_speech"
	StepMusicCrossfade   StepKind = "music_crossfade"
	StepParallel         StepKind = "parallel"
	StepWait             StepKind = "wait"
)

// Step is one action inside a TimelinePlan. Only the fields relevant to Kind
// are populated; see spec.md §3 for the per-kind field sets.
type Step struct {
	Kind StepKind `json:"kind"`

	// play_cached_speech
	SpeechID string `json:"speech_id,omitempty"`

	// music_crossfade
	FromTrackID string `json:"from_track_id,omitempty"`
	ToTrackID   string `json:"to_track_id,omitempty"`
	FadeMS      int    `json:"fade_ms,omitempty"`

	// parallel
	Steps []Step `json:"steps,omitempty"`

	// wait
	WaitTopic string         `json:"wait_topic,omitempty"`
	Match     map[string]any `json:"match,omitempty"`

	// TimeoutMS bounds the completion wait for play_cached_speech,
	// music_crossfade, and wait steps. Zero means the executor's default
	// for that kind applies (spec.md §4.6).
	TimeoutMS int `json:"timeout_ms,omitempty"`
}

// PlanLayer is the layer a plan runs on; at most one plan is active per
// layer at a time (spec.md §3 invariant).
type PlanLayer string

const (
	LayerForeground PlanLayer = "foreground"
	LayerAmbient    PlanLayer = "ambient"
)

// TimelinePlan is a one-shot, non-looping sequence of steps (spec.md §3).
type TimelinePlan struct {
	PlanID string    `json:"plan_id"`
	Layer  PlanLayer `json:"layer"`
	Steps  []Step    `json:"steps"`
}

// TimelinePlanSubmitPayload asks the timeline executor to run Plan,
// cancelling any plan currently active on the same layer (spec.md §4.6).
type TimelinePlanSubmitPayload struct {
	BaseEvent
	Plan TimelinePlan `json:"plan"`
}

func (p *TimelinePlanSubmitPayload) EventTopic() bus.Topic { return TimelinePlanSubmit }

// TimelinePlanCompletedPayload fires once every step of a plan has
// completed successfully (spec.md §8 "Plan atomicity").
type TimelinePlanCompletedPayload struct {
	BaseEvent
	PlanID string `json:"plan_id"`
}

func (p *TimelinePlanCompletedPayload) EventTopic() bus.Topic { return TimelinePlanCompleted }

// TimelinePlanFailedPayload fires when a step fails or times out; remaining
// steps on that layer are cancelled (spec.md §4.6 "Error handling").
type TimelinePlanFailedPayload struct {
	BaseEvent
	PlanID string `json:"plan_id"`
	Step   string `json:"step"`
	Error  string `json:"error"`
}

func (p *TimelinePlanFailedPayload) EventTopic() bus.Topic { return TimelinePlanFailed }

// TimelinePlanCancelledPayload fires when a new plan on the same layer
// preempts this one (spec.md §4.6 "Cancellation").
type TimelinePlanCancelledPayload struct {
	BaseEvent
	PlanID string `json:"plan_id"`
	Reason string `json:"reason"`
}

func (p *TimelinePlanCancelledPayload) EventTopic() bus.Topic { return TimelinePlanCancelled }
