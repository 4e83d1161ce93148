package logging_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cantina-labs/cantinaos/internal/bus"
	"github.com/cantina-labs/cantinaos/internal/logging"
	"github.com/cantina-labs/cantinaos/internal/service"
	"github.com/cantina-labs/cantinaos/internal/topics"
)

func TestBootstrapAppliesRequestedLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logging.Bootstrap(logging.Options{Level: "warn", Output: &buf})

	log.Info().Msg("should be filtered")
	log.Warn().Msg("should appear")

	assert.Zero(t, bytes.Count(buf.Bytes(), []byte("should be filtered")))
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("should appear")))

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func TestBootstrapFallsBackToInfoOnUnparseableLevel(t *testing.T) {
	var buf bytes.Buffer
	_ = logging.Bootstrap(logging.Options{Level: "not-a-level", Output: &buf})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func newController(t *testing.T) (*logging.Controller, *bus.Bus) {
	t.Helper()
	reg := service.NewRegistry(zerolog.Nop())
	b := bus.New(topics.Default(), reg.OnHandlerError, bus.Config{}, zerolog.Nop())
	reg.BindBus(b)
	c := logging.New(reg, zerolog.Nop())
	require.NoError(t, c.Service().Start(context.Background()))
	t.Cleanup(func() {
		_ = c.Service().Stop(context.Background())
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})
	return c, b
}

func TestDebugLevelEventAdjustsGlobalLevelAndRecordsComponent(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	c, b := newController(t)

	require.NoError(t, b.Publish(context.Background(), &topics.DebugLevelPayload{Component: "timeline", Level: "debug"}))

	require.Eventually(t, func() bool {
		return zerolog.GlobalLevel() == zerolog.DebugLevel
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "debug", c.LevelFor("timeline"))
	assert.Empty(t, c.LevelFor("audio"))
}

func TestDebugLevelEventRejectsInvalidLevelAsDegradedStatus(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	c, b := newController(t)

	before := zerolog.GlobalLevel()
	require.NoError(t, b.Publish(context.Background(), &topics.DebugLevelPayload{Component: "timeline", Level: "not-a-level"}))

	require.Eventually(t, func() bool {
		return c.Service().Status() == topics.StatusDegraded
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, before, zerolog.GlobalLevel())
}
