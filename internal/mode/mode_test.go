package mode_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cantina-labs/cantinaos/internal/bus"
	"github.com/cantina-labs/cantinaos/internal/mode"
	"github.com/cantina-labs/cantinaos/internal/service"
	"github.com/cantina-labs/cantinaos/internal/topics"
)

func newManager(t *testing.T) (*mode.Manager, *service.Service, *bus.Bus, *service.Registry) {
	t.Helper()
	return newManagerWithGrace(t, 0)
}

func newManagerWithGrace(t *testing.T, grace time.Duration) (*mode.Manager, *service.Service, *bus.Bus, *service.Registry) {
	t.Helper()
	reg := service.NewRegistry(zerolog.Nop())
	b := bus.New(topics.Default(), reg.OnHandlerError, bus.Config{}, zerolog.Nop())
	reg.BindBus(b)
	m, svc := mode.New(reg, grace, zerolog.Nop())
	return m, svc, b, reg
}

func subscribeCollect(t *testing.T, b *bus.Bus, topic bus.Topic) *[]bus.Payload {
	t.Helper()
	got := make([]bus.Payload, 0)
	handle, err := b.Subscribe(topic, "observer_"+string(topic), func(ctx context.Context, p bus.Payload) error {
		got = append(got, p)
		return nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Unsubscribe(handle) })
	return &got
}

func TestStartupToIdleIsLegal(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	m, svc, b, _ := newManager(t)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop(context.Background())

	changed := subscribeCollect(t, b, topics.ModeChanged)
	require.NoError(t, m.RequestMode(context.Background(), topics.ModeIdle))
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, topics.ModeIdle, m.Current())
	require.Len(t, *changed, 1)
}

func TestAmbientToInteractiveRoutesThroughIdle(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	m, svc, b, _ := newManager(t)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop(context.Background())

	require.NoError(t, m.RequestMode(context.Background(), topics.ModeIdle))
	require.NoError(t, m.RequestMode(context.Background(), topics.ModeAmbient))

	changed := subscribeCollect(t, b, topics.ModeChanged)
	require.NoError(t, m.RequestMode(context.Background(), topics.ModeInteractive))
	time.Sleep(10 * time.Millisecond)

	require.Len(t, *changed, 2)
	first := (*changed)[0].(*topics.ModeChangedPayload)
	second := (*changed)[1].(*topics.ModeChangedPayload)
	assert.Equal(t, topics.ModeAmbient, first.From)
	assert.Equal(t, topics.ModeIdle, first.To)
	assert.Equal(t, topics.ModeIdle, second.From)
	assert.Equal(t, topics.ModeInteractive, second.To)
	assert.Equal(t, topics.ModeInteractive, m.Current())
}

func TestIllegalTransitionLeavesModeUnchangedAndPublishesFailure(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	m, svc, b, _ := newManager(t)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop(context.Background())

	failed := subscribeCollect(t, b, topics.ModeTransitionFailed)
	err := m.RequestMode(context.Background(), topics.ModeAmbient)
	require.Error(t, err)
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, topics.ModeStartup, m.Current())
	require.Len(t, *failed, 1)
}

func TestTransitionGraceDebouncesRapidRequests(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	m, svc, b, _ := newManagerWithGrace(t, 200*time.Millisecond)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop(context.Background())

	failed := subscribeCollect(t, b, topics.ModeTransitionFailed)
	require.NoError(t, m.RequestMode(context.Background(), topics.ModeIdle))

	err := m.RequestMode(context.Background(), topics.ModeAmbient)
	require.Error(t, err)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, topics.ModeIdle, m.Current())
	require.Len(t, *failed, 1)

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, m.RequestMode(context.Background(), topics.ModeAmbient))
	assert.Equal(t, topics.ModeAmbient, m.Current())
}

func TestStopForcesIdle(t *testing.T) {
	defer goleak.VerifyNone(t)
	m, svc, _, _ := newManager(t)
	require.NoError(t, svc.Start(context.Background()))

	require.NoError(t, m.RequestMode(context.Background(), topics.ModeIdle))
	require.NoError(t, m.RequestMode(context.Background(), topics.ModeAmbient))
	require.NoError(t, svc.Stop(context.Background()))

	assert.Equal(t, topics.ModeIdle, m.Current())
}

func TestHistoryIsBoundedAtSixteen(t *testing.T) {
	defer goleak.VerifyNone(t)
	m, svc, _, _ := newManager(t)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop(context.Background())

	for i := 0; i < 30; i++ {
		if m.Current() == topics.ModeIdle {
			_ = m.RequestMode(context.Background(), topics.ModeAmbient)
		} else {
			_ = m.RequestMode(context.Background(), topics.ModeIdle)
		}
	}
	assert.LessOrEqual(t, len(m.History()), 16)
}
