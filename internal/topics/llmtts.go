package topics

import "github.com/cantina-labs/cantinaos/internal/bus"

// Persona tags the DJ coordinator's commentary request so the (out-of-scope)
// LLM adapter can pick a tone; spec.md §9 leaves the string values entirely
// to the adapter, but the field itself is in scope (SPEC_FULL.md §4.7 NEW).
type Persona string

const (
	PersonaInitial    Persona = "initial"
	PersonaTransition Persona = "transition"
)

// LLMCommentaryRequestPayload asks the (external) LLM adapter for spoken
// commentary about the upcoming track (spec.md §4.7 step 2).
type LLMCommentaryRequestPayload struct {
	BaseEvent
	SpeechID     string  `json:"speech_id"`
	Persona      Persona `json:"persona"`
	CurrentTrack Track   `json:"current_track"`
	NextTrack    Track   `json:"next_track"`
}

func (p *LLMCommentaryRequestPayload) EventTopic() bus.Topic { return LLMCommentaryRequest }

// LLMCommentaryResponsePayload carries the generated commentary text back,
// correlated by SpeechID (spec.md §4.7 step 3).
type LLMCommentaryResponsePayload struct {
	BaseEvent
	SpeechID string `json:"speech_id"`
	Text     string `json:"text"`
}

func (p *LLMCommentaryResponsePayload) EventTopic() bus.Topic { return LLMCommentaryResponse }

// TTSSynthesisRequestPayload asks the (external) TTS adapter to synthesize
// and cache commentary audio (spec.md §4.7 step 3).
type TTSSynthesisRequestPayload struct {
	BaseEvent
	SpeechID string `json:"speech_id"`
	Text     string `json:"text"`
	Cache    bool   `json:"cache"`
}

func (p *TTSSynthesisRequestPayload) EventTopic() bus.Topic { return TTSSynthesisRequest }

// TTSCacheReadyPayload fires once synthesized audio for SpeechID is cached
// and playable (spec.md §4.7 step 4).
type TTSCacheReadyPayload struct {
	BaseEvent
	SpeechID   string `json:"speech_id"`
	SampleRate int    `json:"sample_rate"`
}

func (p *TTSCacheReadyPayload) EventTopic() bus.Topic { return TTSCacheReady }
