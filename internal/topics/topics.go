// Package topics is the central, read-only payload and topic registry
// described in spec.md §4.2. It is the single place topic name literals
// live: every publish and subscribe in the rest of the module goes through a
// typed payload whose EventTopic() method returns one of the constants
// declared here. The Registry compiles one JSON Schema per topic (grounded
// on the teacher's github.com/santhosh-tekuri/jsonschema/v6 dependency) and
// implements bus.Validator.
package topics

import (
	"time"

	"github.com/google/uuid"

	"github.com/cantina-labs/cantinaos/internal/bus"
)

// Topic constants. No other package may publish to a literal topic string;
// every Payload type below is keyed to exactly one of these.
const (
	ModeSetRequest         bus.Topic = "/system/mode/set_request"
	ModeTransitionStarted  bus.Topic = "/system/mode/transition_started"
	ModeChanged            bus.Topic = "/system/mode/changed"
	ModeTransitionFailed   bus.Topic = "/system/mode/transition_failed"
	ServiceStatusTopic     bus.Topic = "/system/service/status"
	SystemShutdownRequest  bus.Topic = "/system/shutdown_requested"
	RawInputTopic          bus.Topic = "/command/raw_input"
	CommandAckTopic        bus.Topic = "/command/ack"
	CLIResponseTopic       bus.Topic = "/cli/response"
	MusicCommandTopic      bus.Topic = "/music/command"
	MusicCrossfadeRequestTopic bus.Topic = "/music/crossfade_requested"
	MusicStatusTopic       bus.Topic = "/music/status"
	DJCommandTopic         bus.Topic = "/dj/command"
	DJTrackEndingSoon      bus.Topic = "/dj/track_ending_soon"
	DJCommentarySkipped    bus.Topic = "/dj/commentary_skipped"
	LLMCommentaryRequest   bus.Topic = "/llm/commentary_request"
	LLMCommentaryResponse  bus.Topic = "/llm/commentary_response"
	TTSSynthesisRequest    bus.Topic = "/tts/synthesis_request"
	TTSCacheReady          bus.Topic = "/tts/cache_ready"
	TimelinePlanSubmit     bus.Topic = "/timeline/plan_submit"
	TimelinePlanCompleted  bus.Topic = "/timeline/plan_completed"
	TimelinePlanFailed     bus.Topic = "/timeline/plan_failed"
	TimelinePlanCancelled  bus.Topic = "/timeline/plan_cancelled"
	AudioPlayCachedSpeechRequest bus.Topic = "/audio/play_cached_speech_requested"
	AudioDuckRequested     bus.Topic = "/audio/duck_requested"
	AudioUnduckRequested   bus.Topic = "/audio/unduck_requested"
	SpeechPlaybackComplete bus.Topic = "/audio/speech_playback_completed"
	MusicCrossfadeComplete bus.Topic = "/audio/music_crossfade_completed"
	LEDCommandTopic        bus.Topic = "/led/command"
	DebugLevelTopic        bus.Topic = "/system/debug_level"
	PluginCommandTopic     bus.Topic = "/command/plugin"
)

type (
	// BaseEvent carries the fields every payload owns per spec.md §3: a
	// monotonically generated timestamp and an optional event id. Concrete
	// payload types embed BaseEvent and add their own EventTopic().
	BaseEvent struct {
		EventID   string `json:"event_id,omitempty"`
		Timestamp int64  `json:"timestamp"`
	}
)

// Stamp fills in Timestamp and EventID if they are still zero-valued,
// implementing the registry's required transformations (spec.md §4.2).
func (b *BaseEvent) Stamp(now time.Time) {
	if b.Timestamp == 0 {
		b.Timestamp = now.Unix()
	}
	if b.EventID == "" {
		b.EventID = uuid.NewString()
	}
}

// metaStamper is implemented by every payload type via its embedded
// BaseEvent; the registry uses it to apply required transformations before
// validating against the compiled schema.
type metaStamper interface {
	Stamp(now time.Time)
}
