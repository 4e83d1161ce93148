package topics

// Default builds the registry CantinaOS ships with: one Doc per topic
// constant declared in this package, each carrying a minimal JSON Schema
// (structural shape only — the Go payload types already give compile-time
// field safety, so schemas here exist to catch malformed wire input from
// external adapters, not to duplicate Go's type system).
func Default() *Registry {
	return Build([]Doc{
		{
			Topic:       ModeSetRequest,
			Description: "Request a mode transition.",
			Producers:   []string{"command_dispatcher"},
			Consumers:   []string{"mode_manager"},
			Schema:      `{"type":"object","required":["to","timestamp"]}`,
		},
		{
			Topic:       ModeTransitionStarted,
			Description: "A mode transition has begun.",
			Producers:   []string{"mode_manager"},
			Consumers:   []string{"command_response", "web_bridge"},
			Schema:      `{"type":"object","required":["from","to","timestamp"]}`,
		},
		{
			Topic:       ModeChanged,
			Description: "A mode transition completed.",
			Producers:   []string{"mode_manager"},
			Consumers:   []string{"command_response", "web_bridge", "dj_coordinator"},
			Schema:      `{"type":"object","required":["from","to","timestamp"]}`,
		},
		{
			Topic:       ModeTransitionFailed,
			Description: "A requested mode transition was illegal.",
			Producers:   []string{"mode_manager"},
			Consumers:   []string{"command_response"},
			Schema:      `{"type":"object","required":["from","to","reason","timestamp"],"properties":{"reason":{"type":"string","minLength":1}}}`,
		},
		{
			Topic:       ServiceStatusTopic,
			Description: "Canonical service lifecycle/health status.",
			Producers:   []string{"*"},
			Consumers:   []string{"command_response", "web_bridge"},
			Schema:      `{"type":"object","required":["service","status","timestamp"]}`,
		},
		{
			Topic:       SystemShutdownRequest,
			Description: "Requests process shutdown/restart.",
			Producers:   []string{"command_dispatcher"},
			Consumers:   []string{"main"},
			Schema:      `{"type":"object","required":["timestamp"]}`,
		},
		{
			Topic:       DebugLevelTopic,
			Description: "Adjust logging level for one component.",
			Producers:   []string{"command_dispatcher"},
			Consumers:   []string{"logging"},
			Schema:      `{"type":"object","required":["component","level","timestamp"]}`,
		},
		{
			Topic:       RawInputTopic,
			Description: "Unparsed CLI line or dashboard command event.",
			Producers:   []string{"cli", "web_bridge"},
			Consumers:   []string{"command_dispatcher"},
			Schema:      `{"type":"object","required":["line","source","timestamp"]}`,
		},
		{
			Topic:       CommandAckTopic,
			Description: "Per-command dispatch acknowledgement.",
			Producers:   []string{"command_dispatcher"},
			Consumers:   []string{"web_bridge"},
			Schema:      `{"type":"object","required":["command_id","success","message","timestamp"]}`,
		},
		{
			Topic:       CLIResponseTopic,
			Description: "One-line CLI response with optional hint.",
			Producers:   []string{"command_dispatcher", "command_response"},
			Consumers:   []string{"cli"},
			Schema:      `{"type":"object","required":["message","timestamp"]}`,
		},
		{
			Topic:       MusicCommandTopic,
			Description: "Shaped music command (list/play/stop).",
			Producers:   []string{"command_dispatcher", "dj_coordinator", "timeline_executor"},
			Consumers:   []string{"music_service"},
			Schema:      `{"type":"object","required":["command","raw_input","timestamp"]}`,
		},
		{
			Topic:       MusicCrossfadeRequestTopic,
			Description: "Request a music crossfade to a new track.",
			Producers:   []string{"timeline_executor"},
			Consumers:   []string{"music_service"},
			Schema:      `{"type":"object","required":["plan_id","to_track_id","fade_ms","timestamp"]}`,
		},
		{
			Topic:       MusicStatusTopic,
			Description: "Canonical music started/playing/ended contract.",
			Producers:   []string{"music_service"},
			Consumers:   []string{"dj_coordinator", "audio_coordinator", "web_bridge"},
			Schema:      `{"type":"object","required":["phase","track","timestamp"]}`,
		},
		{
			Topic:       DJCommandTopic,
			Description: "DJ mode start/stop/next.",
			Producers:   []string{"command_dispatcher"},
			Consumers:   []string{"dj_coordinator"},
			Schema:      `{"type":"object","required":["timestamp"]}`,
		},
		{
			Topic:       DJTrackEndingSoon,
			Description: "Currently playing track is about to end.",
			Producers:   []string{"music_service"},
			Consumers:   []string{"dj_coordinator"},
			Schema:      `{"type":"object","required":["track_id","timestamp"]}`,
		},
		{
			Topic:       DJCommentarySkipped,
			Description: "Commentary dropped due to a cache miss at track-end.",
			Producers:   []string{"dj_coordinator"},
			Consumers:   []string{"command_response", "web_bridge"},
			Schema:      `{"type":"object","required":["speech_id","reason","timestamp"]}`,
		},
		{
			Topic:       LLMCommentaryRequest,
			Description: "Request spoken commentary about the next track.",
			Producers:   []string{"dj_coordinator"},
			Consumers:   []string{"llm_service"},
			Schema:      `{"type":"object","required":["speech_id","persona","current_track","next_track","timestamp"]}`,
		},
		{
			Topic:       LLMCommentaryResponse,
			Description: "Generated commentary text.",
			Producers:   []string{"llm_service"},
			Consumers:   []string{"dj_coordinator"},
			Schema:      `{"type":"object","required":["speech_id","text","timestamp"]}`,
		},
		{
			Topic:       TTSSynthesisRequest,
			Description: "Request synthesis (optionally cached) of text.",
			Producers:   []string{"dj_coordinator"},
			Consumers:   []string{"tts_service"},
			Schema:      `{"type":"object","required":["speech_id","text","timestamp"]}`,
		},
		{
			Topic:       TTSCacheReady,
			Description: "Synthesized audio for speech_id is cached and playable.",
			Producers:   []string{"tts_service"},
			Consumers:   []string{"dj_coordinator"},
			Schema:      `{"type":"object","required":["speech_id","timestamp"]}`,
		},
		{
			Topic:       TimelinePlanSubmit,
			Description: "Submit a timeline plan for execution.",
			Producers:   []string{"dj_coordinator"},
			Consumers:   []string{"timeline_executor"},
			Schema:      `{"type":"object","required":["plan","timestamp"]}`,
		},
		{
			Topic:       TimelinePlanCompleted,
			Description: "All steps of a plan completed.",
			Producers:   []string{"timeline_executor"},
			Consumers:   []string{"dj_coordinator"},
			Schema:      `{"type":"object","required":["plan_id","timestamp"]}`,
		},
		{
			Topic:       TimelinePlanFailed,
			Description: "A plan step failed or timed out.",
			Producers:   []string{"timeline_executor"},
			Consumers:   []string{"dj_coordinator", "command_response"},
			Schema:      `{"type":"object","required":["plan_id","step","error","timestamp"]}`,
		},
		{
			Topic:       TimelinePlanCancelled,
			Description: "A plan was preempted by a new plan on the same layer.",
			Producers:   []string{"timeline_executor"},
			Consumers:   []string{"dj_coordinator"},
			Schema:      `{"type":"object","required":["plan_id","reason","timestamp"]}`,
		},
		{
			Topic:       AudioPlayCachedSpeechRequest,
			Description: "Request playback of a cached synthesis.",
			Producers:   []string{"timeline_executor"},
			Consumers:   []string{"tts_service"},
			Schema:      `{"type":"object","required":["speech_id","timestamp"]}`,
		},
		{
			Topic:       AudioDuckRequested,
			Description: "Duck music volume for the duration of a speech step.",
			Producers:   []string{"timeline_executor"},
			Consumers:   []string{"audio_coordinator"},
			Schema:      `{"type":"object","required":["level","timestamp"]}`,
		},
		{
			Topic:       AudioUnduckRequested,
			Description: "Restore user-set music volume.",
			Producers:   []string{"timeline_executor"},
			Consumers:   []string{"audio_coordinator"},
			Schema:      `{"type":"object","required":["timestamp"]}`,
		},
		{
			Topic:       SpeechPlaybackComplete,
			Description: "A cached speech finished playing.",
			Producers:   []string{"tts_service"},
			Consumers:   []string{"timeline_executor"},
			Schema:      `{"type":"object","required":["speech_id","timestamp"]}`,
		},
		{
			Topic:       MusicCrossfadeComplete,
			Description: "A crossfade finished.",
			Producers:   []string{"music_service"},
			Consumers:   []string{"timeline_executor"},
			Schema:      `{"type":"object","required":["plan_id","timestamp"]}`,
		},
		{
			Topic:       PluginCommandTopic,
			Description: "Default-shaped command for a registered command with no bespoke payload shape.",
			Producers:   []string{"command_dispatcher"},
			Consumers:   []string{"*"},
			Schema:      `{"type":"object","required":["command","raw_input","timestamp"]}`,
		},
		{
			Topic:       LEDCommandTopic,
			Description: "Named LED/animation pattern request.",
			Producers:   []string{"mode_manager", "dj_coordinator"},
			Consumers:   []string{"led_service"},
			Schema:      `{"type":"object","required":["pattern","timestamp"]}`,
		},
	})
}
