package topics

import "github.com/cantina-labs/cantinaos/internal/bus"

// Track is the canonical track record (spec.md §3): "the coordinator must
// never assume a track carries a .name attribute — all fields go through the
// Track record."
type Track struct {
	TrackID    string  `json:"track_id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Filepath   string  `json:"filepath"`
	DurationS  float64 `json:"duration_s"`
}

// MusicPhase canonicalizes the several event names the source mixes for
// "track ending" (TRACK_ENDING_SOON, MUSIC_PLAYBACK_STARTED, TRACK_PLAYING)
// into one event per transition on a single topic, per spec.md §9.
type MusicPhase string

const (
	MusicStarted MusicPhase = "started"
	MusicPlaying MusicPhase = "playing"
	MusicEnded   MusicPhase = "ended"
)

// legacyMusicPhaseAliases lets the registry accept the source's historical
// event names as aliases for the canonical MusicPhase values (spec.md §9
// Open Questions).
var legacyMusicPhaseAliases = map[string]MusicPhase{
	"MUSIC_PLAYBACK_STARTED": MusicStarted,
	"TRACK_PLAYING":          MusicPlaying,
	"MUSIC_PLAYBACK_ENDED":   MusicEnded,
}

// CanonicalMusicPhase resolves a legacy phase name to its canonical value,
// passing already-canonical values through unchanged.
func CanonicalMusicPhase(raw string) MusicPhase {
	if canonical, ok := legacyMusicPhaseAliases[raw]; ok {
		return canonical
	}
	return MusicPhase(raw)
}

// MusicCommandPayload is the shaped payload the dispatcher sends for
// `list music`, `play music <N>`, and `stop music` (spec.md §4.4 special
// cases).
type MusicCommandPayload struct {
	BaseEvent
	Command    string   `json:"command"`
	Args       []string `json:"args"`
	TrackIndex *int     `json:"track_index,omitempty"`
	TrackID    string   `json:"track_id,omitempty"`
	RawInput   string   `json:"raw_input"`
}

func (p *MusicCommandPayload) EventTopic() bus.Topic { return MusicCommandTopic }

// MusicCrossfadeRequestPayload asks the (external) music backend adapter to
// crossfade from the currently playing track to ToTrackID over FadeMS
// milliseconds. The timeline executor publishes this to initiate a
// music_crossfade step, then awaits MusicCrossfadeComplete for the same
// PlanID (spec.md §4.6).
type MusicCrossfadeRequestPayload struct {
	BaseEvent
	PlanID      string `json:"plan_id"`
	FromTrackID string `json:"from_track_id,omitempty"`
	ToTrackID   string `json:"to_track_id"`
	FadeMS      int    `json:"fade_ms"`
}

func (p *MusicCrossfadeRequestPayload) EventTopic() bus.Topic { return MusicCrossfadeRequestTopic }

// MusicStatusPayload is the single "music started/playing/ended" contract
// downstream services subscribe to (spec.md §1 item 5).
type MusicStatusPayload struct {
	BaseEvent
	Kind  MusicPhase `json:"phase"`
	Track Track      `json:"track"`
}

func (p *MusicStatusPayload) EventTopic() bus.Topic { return MusicStatusTopic }
