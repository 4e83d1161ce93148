package topics

import "github.com/cantina-labs/cantinaos/internal/bus"

// DJCommandPayload is the shaped payload the dispatcher builds for
// `dj start|stop|next` (spec.md §4.4 special cases).
type DJCommandPayload struct {
	BaseEvent
	DJModeActive *bool `json:"dj_mode_active,omitempty"`
	Skip         bool  `json:"skip,omitempty"`
}

func (p *DJCommandPayload) EventTopic() bus.Topic { return DJCommandTopic }

// DJTrackEndingSoonPayload signals the currently playing track is about to
// end; the DJ coordinator reacts per spec.md §4.7 step 5.
type DJTrackEndingSoonPayload struct {
	BaseEvent
	TrackID string `json:"track_id"`
}

func (p *DJTrackEndingSoonPayload) EventTopic() bus.Topic { return DJTrackEndingSoon }

// DJCommentarySkippedPayload fires when the cache was not ready at
// track-ending time and the coordinator fell back to a crossfade-only plan
// (spec.md §4.7 "Missing-cache policy").
type DJCommentarySkippedPayload struct {
	BaseEvent
	SpeechID string `json:"speech_id"`
	Reason   string `json:"reason"`
}

func (p *DJCommentarySkippedPayload) EventTopic() bus.Topic { return DJCommentarySkipped }
