// Command cantinaos is the root supervisor: it builds the event bus, the
// service registry, and every core service in layer dependency order
// (spec.md §2), starts them all, and blocks until SIGINT/
// SIGTERM requests a graceful shutdown in reverse order.
//
// # Configuration
//
// Environment variables (see internal/config for the full list and
// defaults):
//
//	CANTINAOS_ENV_FILE                 - optional .env file to load first
//	CANTINAOS_REGISTRY_SEED            - path to the YAML library/service seed
//	CANTINAOS_DASHBOARD_ADDR           - dashboard bridge HTTP listen address
//	CANTINAOS_REDIS_ADDR               - Redis address backing the dashboard stream
//	CANTINAOS_LOG_LEVEL                - initial global log level
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/time/rate"

	"github.com/cantina-labs/cantinaos/internal/adapters"
	"github.com/cantina-labs/cantinaos/internal/audio"
	"github.com/cantina-labs/cantinaos/internal/bus"
	"github.com/cantina-labs/cantinaos/internal/command"
	"github.com/cantina-labs/cantinaos/internal/config"
	"github.com/cantina-labs/cantinaos/internal/dj"
	"github.com/cantina-labs/cantinaos/internal/logging"
	"github.com/cantina-labs/cantinaos/internal/memorystore"
	"github.com/cantina-labs/cantinaos/internal/mode"
	"github.com/cantina-labs/cantinaos/internal/service"
	"github.com/cantina-labs/cantinaos/internal/timeline"
	"github.com/cantina-labs/cantinaos/internal/topics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "cantinaos:", err)
		os.Exit(1)
	}
}

func run() error {
	log := logging.Bootstrap(logging.Options{Level: os.Getenv("CANTINAOS_LOG_LEVEL"), Pretty: os.Getenv("CANTINAOS_LOG_PRETTY") == "true"})

	cfg := config.Load(os.Getenv("CANTINAOS_ENV_FILE"), log)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("tracer provider shutdown failed")
		}
	}()

	library, err := loadLibrary(cfg, log)
	if err != nil {
		return fmt.Errorf("load music library: %w", err)
	}

	reg := service.NewRegistry(log)
	b := bus.New(topics.Default(), reg.OnHandlerError, bus.Config{
		QueueSize:              cfg.Bus.QueueSize,
		HighFrequencyQueueSize: cfg.Bus.HighFrequencyQueueSize,
		HighFrequencyRateLimit: rate.Limit(cfg.Bus.HighFrequencyRateLimitHz),
		HighFrequencyBurst:     cfg.Bus.HighFrequencyBurst,
	}, log)
	reg.BindBus(b)

	store := memorystore.NewJSONStore(cfg.MemoryStore.SnapshotPath, log)
	if err := store.Load(); err != nil {
		log.Warn().Err(err).Msg("memory store snapshot load failed, starting empty")
	}

	speechCache, closeBadger := buildSpeechCache(cfg, log)
	if closeBadger != nil {
		defer closeBadger()
	}

	logging.New(reg, log)
	modeMgr, _ := mode.New(reg, cfg.Mode.TransitionGrace, log)
	dispatcher := command.New(reg, b, log)
	if err := command.RegisterStandard(dispatcher, modeMgr, reg); err != nil {
		return fmt.Errorf("register standard commands: %w", err)
	}
	audio.New(reg, cfg.Audio.DuckedVolume, log)
	timeline.New(reg, b, cfg.Timeline.DefaultSpeechTimeout, cfg.Timeline.CrossfadeGrace, cfg.Audio.DuckedVolume, log)
	dj.New(reg, store, speechCache, library, log)

	sink, err := buildDashboardSink(cfg, log)
	if err != nil {
		log.Warn().Err(err).Msg("dashboard event sink disabled, forwarding is a no-op")
	}
	if sink != nil {
		// Passed as a concrete *EventSink here, not nil: a nil *EventSink
		// assigned through adapters.New's interface parameter would stop
		// being a nil interface, breaking the bridge's own nil check.
		adapters.New(reg, sink, cfg.Dashboard.ListenAddr, log)
	} else {
		adapters.New(reg, nil, cfg.Dashboard.ListenAddr, log)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := reg.StartAll(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	log.Info().Int("tracks", len(library)).Msg("cantinaos started")

	<-ctx.Done()
	log.Info().Msg("shutdown requested, stopping services")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	reg.StopAll(stopCtx)

	if err := store.Snapshot(); err != nil {
		log.Warn().Err(err).Msg("memory store snapshot write failed")
	}
	if err := store.Close(); err != nil {
		log.Warn().Err(err).Msg("memory store close failed")
	}
	return nil
}

// loadLibrary reads the DJ coordinator's music library from the
// registry seed file, if configured. An unset path starts with an empty
// library, useful for deployments that populate it purely via the music
// adapter at runtime.
func loadLibrary(cfg config.Config, log zerolog.Logger) ([]topics.Track, error) {
	if cfg.RegistrySeedPath == "" {
		return nil, nil
	}
	seed, err := config.LoadRegistrySeed(cfg.RegistrySeedPath)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", cfg.RegistrySeedPath).Int("tracks", len(seed.Library)).Msg("registry seed loaded")
	return seed.Library, nil
}

// buildSpeechCache constructs the DJ coordinator's commentary cache, sized
// by cfg.MemoryStore.SpeechCacheCapacity. An unset BadgerDir disables disk
// overflow: evictions from the hot LRU window are simply dropped. A Badger
// open failure is non-fatal, matching buildDashboardSink's "degrade, don't
// fail startup" convention: the cache still works, just without overflow,
// and the returned close func is nil.
func buildSpeechCache(cfg config.Config, log zerolog.Logger) (*memorystore.SpeechCache, func()) {
	if cfg.MemoryStore.BadgerDir == "" {
		return memorystore.NewSpeechCache(cfg.MemoryStore.SpeechCacheCapacity, nil), nil
	}
	overflow, err := memorystore.OpenBadgerStore(cfg.MemoryStore.BadgerDir, log)
	if err != nil {
		log.Warn().Err(err).Str("dir", cfg.MemoryStore.BadgerDir).Msg("speech cache disk overflow disabled, badger open failed")
		return memorystore.NewSpeechCache(cfg.MemoryStore.SpeechCacheCapacity, nil), nil
	}
	return memorystore.NewSpeechCache(cfg.MemoryStore.SpeechCacheCapacity, overflow), func() {
		if err := overflow.Close(); err != nil {
			log.Warn().Err(err).Msg("speech cache overflow store close failed")
		}
	}
}

// buildDashboardSink connects to Redis and constructs the Pulse-backed
// event sink for the dashboard bridge. A Redis connection failure is
// non-fatal: the bridge still serves inbound commands, it just drops
// outbound forwarding.
func buildDashboardSink(cfg config.Config, log zerolog.Logger) (*adapters.EventSink, error) {
	if cfg.Dashboard.RedisAddr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Dashboard.RedisAddr,
		Password: cfg.Dashboard.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	sink, err := adapters.NewEventSink(adapters.PulseSinkOptions{
		Redis:        rdb,
		StreamName:   cfg.Dashboard.StreamName,
		StreamMaxLen: cfg.Dashboard.StreamMaxLen,
	})
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return sink, nil
}
