// Package config loads the typed settings tree every service in this
// module is constructed from: environment variables (optionally seeded
// from a local .env file via github.com/joho/godotenv) layered over
// built-in defaults, plus a YAML-described static seed for the DJ
// coordinator's music library and each service's declared requirements
// (spec.md §6 "Configuration").
//
// Unknown environment keys are ignored, matching the teacher's own
// env-reading convention of looking up only the keys a given field
// cares about. Unknown YAML keys are rejected: the seed file is decoded
// strictly so a typo in a seed file never silently vanishes.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Bus tunes the event bus's concurrency and backpressure behavior
// (spec.md §5, core requirement "bus queue bounds").
type Bus struct {
	QueueSize              int
	HighFrequencyQueueSize int
	// HighFrequencyRateLimitHz caps publishes/sec on topics flagged
	// high-frequency (raw audio frames, log records). Zero disables the
	// cap; only the queue-size bound in HighFrequencyQueueSize applies.
	HighFrequencyRateLimitHz float64
	HighFrequencyBurst       int
}

// Service holds the service framework's shutdown setting. cmd/cantinaos
// does not pass StopGrace to any service; each service uses service.New's
// own 2s fallback.
type Service struct {
	StopGrace time.Duration
}

// Timeline tunes the executor's plan-step timeout defaults (core
// requirement "default timeouts for plan steps").
type Timeline struct {
	DefaultSpeechTimeout time.Duration
	CrossfadeGrace       time.Duration
}

// Audio tunes the ducking coordinator (core requirement "default ducked
// volume").
type Audio struct {
	DuckedVolume float64
}

// MemoryStore tunes the key/value store and speech cache (core
// requirement "speech-cache size").
type MemoryStore struct {
	SpeechCacheCapacity int
	SnapshotPath        string
	BadgerDir           string
}

// Mode tunes the mode manager (core requirement "mode transition grace
// period").
type Mode struct {
	TransitionGrace time.Duration
}

// Dashboard tunes the dashboard bridge's inbound HTTP listener and
// outbound Redis-backed event stream (SPEC_FULL.md §6.2). RateLimitPerMin
// is loaded but not passed to the web bridge, whose router applies a fixed
// 20 requests per minute per IP.
type Dashboard struct {
	ListenAddr      string
	RedisAddr       string
	RedisPassword   string
	StreamName      string
	StreamMaxLen    int
	RateLimitPerMin int
}

// Config is the fully-resolved settings tree passed into cmd/cantinaos's
// wiring. Every field has a built-in default, so a deployment with no
// environment configured at all still starts.
type Config struct {
	Bus         Bus
	Service     Service
	Timeline    Timeline
	Audio       Audio
	MemoryStore MemoryStore
	Mode        Mode
	Dashboard   Dashboard

	// RegistrySeedPath, if set, points at a YAML file loaded with
	// LoadRegistrySeed to populate the DJ coordinator's music library.
	RegistrySeedPath string
}

// Default returns the built-in configuration. The bus queue sizes (64/16)
// and the 32-entry speech cache match the fallbacks bus.go and memorystore
// apply themselves; the ducked volume and speech timeout exist only here
// and reach audio.New and timeline.New as parameters.
func Default() Config {
	return Config{
		Bus: Bus{
			QueueSize:              64,
			HighFrequencyQueueSize: 16,
		},
		Service: Service{
			StopGrace: 2 * time.Second,
		},
		Timeline: Timeline{
			DefaultSpeechTimeout: 20 * time.Second,
			CrossfadeGrace:       500 * time.Millisecond,
		},
		Audio: Audio{
			DuckedVolume: 0.5,
		},
		MemoryStore: MemoryStore{
			SpeechCacheCapacity: 32,
		},
		Mode: Mode{
			TransitionGrace: 5 * time.Second,
		},
		Dashboard: Dashboard{
			ListenAddr:      "",
			StreamName:      "cantinaos/events",
			RateLimitPerMin: 20,
		},
	}
}

// Load builds a Config from built-in defaults, a local .env file (loaded
// if present; a missing file is not an error, mirroring godotenv's own
// "best effort" local-dev convention), and the process environment.
// envFile may be empty to skip .env loading entirely.
func Load(envFile string, log zerolog.Logger) Config {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", envFile).Msg("config: failed to load .env file, continuing with process environment")
		}
	}

	cfg := Default()
	cfg.Bus.QueueSize = envInt("CANTINAOS_BUS_QUEUE_SIZE", cfg.Bus.QueueSize)
	cfg.Bus.HighFrequencyQueueSize = envInt("CANTINAOS_BUS_HF_QUEUE_SIZE", cfg.Bus.HighFrequencyQueueSize)
	cfg.Bus.HighFrequencyRateLimitHz = envFloat("CANTINAOS_BUS_HF_RATE_LIMIT_HZ", cfg.Bus.HighFrequencyRateLimitHz)
	cfg.Bus.HighFrequencyBurst = envInt("CANTINAOS_BUS_HF_BURST", cfg.Bus.HighFrequencyBurst)
	cfg.Service.StopGrace = envDuration("CANTINAOS_SERVICE_STOP_GRACE", cfg.Service.StopGrace)
	cfg.Timeline.DefaultSpeechTimeout = envDuration("CANTINAOS_TIMELINE_SPEECH_TIMEOUT", cfg.Timeline.DefaultSpeechTimeout)
	cfg.Timeline.CrossfadeGrace = envDuration("CANTINAOS_TIMELINE_CROSSFADE_GRACE", cfg.Timeline.CrossfadeGrace)
	cfg.Audio.DuckedVolume = envFloat("CANTINAOS_AUDIO_DUCKED_VOLUME", cfg.Audio.DuckedVolume)
	cfg.MemoryStore.SpeechCacheCapacity = envInt("CANTINAOS_SPEECH_CACHE_CAPACITY", cfg.MemoryStore.SpeechCacheCapacity)
	cfg.MemoryStore.SnapshotPath = envString("CANTINAOS_SNAPSHOT_PATH", cfg.MemoryStore.SnapshotPath)
	cfg.MemoryStore.BadgerDir = envString("CANTINAOS_BADGER_DIR", cfg.MemoryStore.BadgerDir)
	cfg.Mode.TransitionGrace = envDuration("CANTINAOS_MODE_TRANSITION_GRACE", cfg.Mode.TransitionGrace)
	cfg.Dashboard.ListenAddr = envString("CANTINAOS_DASHBOARD_ADDR", cfg.Dashboard.ListenAddr)
	cfg.Dashboard.RedisAddr = envString("CANTINAOS_REDIS_ADDR", cfg.Dashboard.RedisAddr)
	cfg.Dashboard.RedisPassword = envString("CANTINAOS_REDIS_PASSWORD", cfg.Dashboard.RedisPassword)
	cfg.Dashboard.StreamName = envString("CANTINAOS_DASHBOARD_STREAM", cfg.Dashboard.StreamName)
	cfg.Dashboard.StreamMaxLen = envInt("CANTINAOS_DASHBOARD_STREAM_MAXLEN", cfg.Dashboard.StreamMaxLen)
	cfg.Dashboard.RateLimitPerMin = envInt("CANTINAOS_DASHBOARD_RATE_LIMIT", cfg.Dashboard.RateLimitPerMin)
	cfg.RegistrySeedPath = envString("CANTINAOS_REGISTRY_SEED", cfg.RegistrySeedPath)
	return cfg
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
