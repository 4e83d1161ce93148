package topics

import "github.com/cantina-labs/cantinaos/internal/bus"

// AudioDuckRequestedPayload asks the audio coordinator to duck music volume
// to Level for the duration of a speech step (spec.md §4.6, §4.8).
type AudioDuckRequestedPayload struct {
	BaseEvent
	Level float64 `json:"level"`
}

func (p *AudioDuckRequestedPayload) EventTopic() bus.Topic { return AudioDuckRequested }

// AudioUnduckRequestedPayload asks the audio coordinator to restore the
// user-set volume once both speech and any concurrent crossfade complete
// (spec.md §4.6).
type AudioUnduckRequestedPayload struct {
	BaseEvent
}

func (p *AudioUnduckRequestedPayload) EventTopic() bus.Topic { return AudioUnduckRequested }

// AudioPlayCachedSpeechRequestPayload asks the (external) audio/TTS
// playback adapter to play a cached synthesis by SpeechID. The timeline
// executor publishes this to initiate a play_cached_speech step, then
// awaits SpeechPlaybackComplete for the same SpeechID (spec.md §4.6).
type AudioPlayCachedSpeechRequestPayload struct {
	BaseEvent
	SpeechID string `json:"speech_id"`
}

func (p *AudioPlayCachedSpeechRequestPayload) EventTopic() bus.Topic { return AudioPlayCachedSpeechRequest }

// SpeechPlaybackCompletePayload is the completion event the timeline
// executor awaits for a play_cached_speech step (spec.md §4.6).
type SpeechPlaybackCompletePayload struct {
	BaseEvent
	SpeechID string `json:"speech_id"`
}

func (p *SpeechPlaybackCompletePayload) EventTopic() bus.Topic { return SpeechPlaybackComplete }

// MusicCrossfadeCompletePayload is the completion event the timeline
// executor awaits for a music_crossfade step (spec.md §4.6).
type MusicCrossfadeCompletePayload struct {
	BaseEvent
	PlanID string `json:"plan_id"`
}

func (p *MusicCrossfadeCompletePayload) EventTopic() bus.Topic { return MusicCrossfadeComplete }
