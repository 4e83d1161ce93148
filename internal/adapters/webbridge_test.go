package adapters_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cantina-labs/cantinaos/internal/adapters"
	"github.com/cantina-labs/cantinaos/internal/bus"
	"github.com/cantina-labs/cantinaos/internal/service"
	"github.com/cantina-labs/cantinaos/internal/topics"
)

type fakeSink struct {
	mu   sync.Mutex
	sent []bus.Topic
}

func (f *fakeSink) Publish(_ context.Context, topic bus.Topic, _ bus.Payload) error {
	f.mu.Lock()
	f.sent = append(f.sent, topic)
	f.mu.Unlock()
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newBridge(t *testing.T, sink *fakeSink) (*adapters.WebBridge, *bus.Bus) {
	t.Helper()
	reg := service.NewRegistry(zerolog.Nop())
	b := bus.New(topics.Default(), reg.OnHandlerError, bus.Config{}, zerolog.Nop())
	reg.BindBus(b)
	var wb *adapters.WebBridge
	if sink != nil {
		wb = adapters.New(reg, sink, "", zerolog.Nop())
	} else {
		wb = adapters.New(reg, nil, "", zerolog.Nop())
	}
	require.NoError(t, wb.Service().Start(context.Background()))
	t.Cleanup(func() { _ = wb.Service().Stop(context.Background()) })
	return wb, b
}

func TestForwardsRegisteredTopicsToSink(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	sink := &fakeSink{}
	_, b := newBridge(t, sink)

	require.NoError(t, b.Publish(context.Background(), &topics.MusicStatusPayload{Kind: topics.MusicStarted}))
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestCommandEndpointPublishesRawInput(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	wb, b := newBridge(t, nil)

	var got *topics.RawInputPayload
	var mu sync.Mutex
	handle, err := b.Subscribe(topics.RawInputTopic, "test_observer", func(_ context.Context, p bus.Payload) error {
		mu.Lock()
		got = p.(*topics.RawInputPayload)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Unsubscribe(handle) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/command", bytes.NewBufferString(`{"line":"status","sid":"abc"}`))
	wb.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "status", got.Line)
	assert.Equal(t, topics.SourceDashboard, got.Source)
	assert.Equal(t, "abc", got.SID)
}

func TestCommandEndpointRejectsEmptyLine(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	wb, _ := newBridge(t, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/command", bytes.NewBufferString(`{"line":""}`))
	wb.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
