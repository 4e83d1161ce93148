package bus_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cantina-labs/cantinaos/internal/bus"
)

type fakePayload struct {
	topic bus.Topic
}

func (p fakePayload) EventTopic() bus.Topic { return p.topic }

type fakeValidator struct {
	known map[bus.Topic]bool
}

func (v fakeValidator) Validate(bus.Topic, bus.Payload) error { return nil }
func (v fakeValidator) KnownTopic(t bus.Topic) bool           { return v.known[t] }

func newTestBus(t *testing.T, topics ...bus.Topic) *bus.Bus {
	t.Helper()
	known := map[bus.Topic]bool{}
	for _, tp := range topics {
		known[tp] = true
	}
	return bus.New(fakeValidator{known: known}, nil, bus.Config{}, zerolog.Nop())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPublishFanOutToAllSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)
	const topic = bus.Topic("/test/topic")
	b := newTestBus(t, topic)

	var count int32
	handles := make([]bus.Handle, 0, 3)
	for i := 0; i < 3; i++ {
		h, err := b.Subscribe(topic, "svc", func(ctx context.Context, p bus.Payload) error {
			atomic.AddInt32(&count, 1)
			return nil
		})
		require.NoError(t, err)
		handles = append(handles, h)
	}

	require.NoError(t, b.Publish(context.Background(), fakePayload{topic: topic}))
	waitFor(t, func() bool { return atomic.LoadInt32(&count) == 3 })

	for _, h := range handles {
		require.NoError(t, b.Unsubscribe(h))
	}
}

func TestNoHandlerLeak(t *testing.T) {
	defer goleak.VerifyNone(t)
	const topic = bus.Topic("/test/leak")
	b := newTestBus(t, topic)

	before := b.HandlerCount(topic)
	handle, err := b.Subscribe(topic, "svc", func(context.Context, bus.Payload) error { return nil })
	require.NoError(t, err)
	require.Equal(t, before+1, b.HandlerCount(topic))

	require.NoError(t, b.Unsubscribe(handle))
	require.Equal(t, before, b.HandlerCount(topic))
}

func TestUnsubscribeStopsFurtherDelivery(t *testing.T) {
	defer goleak.VerifyNone(t)
	const topic = bus.Topic("/test/unsub")
	b := newTestBus(t, topic)

	var count int32
	handle, err := b.Subscribe(topic, "svc", func(context.Context, bus.Payload) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), fakePayload{topic: topic}))
	waitFor(t, func() bool { return atomic.LoadInt32(&count) == 1 })

	require.NoError(t, b.Unsubscribe(handle))
	require.NoError(t, b.Publish(context.Background(), fakePayload{topic: topic}))
	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&count))
}

func TestPublishToUnknownSubscribersIsNoop(t *testing.T) {
	defer goleak.VerifyNone(t)
	const topic = bus.Topic("/test/empty")
	b := newTestBus(t, topic)
	require.NoError(t, b.Publish(context.Background(), fakePayload{topic: topic}))
}

func TestHandlerErrorIsolatesOnlyThatHandler(t *testing.T) {
	defer goleak.VerifyNone(t)
	const topic = bus.Topic("/test/isolate")

	var reported int32
	known := map[bus.Topic]bool{topic: true}
	b := bus.New(fakeValidator{known: known}, func(ctx context.Context, service string, t bus.Topic, err error) {
		atomic.AddInt32(&reported, 1)
	}, bus.Config{}, zerolog.Nop())

	var secondRan int32
	h1, err := b.Subscribe(topic, "svc-a", func(context.Context, bus.Payload) error {
		return assertErr
	})
	require.NoError(t, err)
	h2, err := b.Subscribe(topic, "svc-b", func(context.Context, bus.Payload) error {
		atomic.AddInt32(&secondRan, 1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), fakePayload{topic: topic}))
	waitFor(t, func() bool { return atomic.LoadInt32(&secondRan) == 1 })
	waitFor(t, func() bool { return atomic.LoadInt32(&reported) == 1 })

	require.NoError(t, b.Unsubscribe(h1))
	require.NoError(t, b.Unsubscribe(h2))
}

var assertErr = errTest("boom")

type errTest string

func (e errTest) Error() string { return string(e) }

func TestPerHandlerOrderingPreserved(t *testing.T) {
	defer goleak.VerifyNone(t)
	const topic = bus.Topic("/test/order")
	b := newTestBus(t, topic)

	var mu sync.Mutex
	var seen []int
	handle, err := b.Subscribe(topic, "svc", func(ctx context.Context, p bus.Payload) error {
		op := p.(orderedPayload)
		mu.Lock()
		seen = append(seen, op.n)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, b.Publish(context.Background(), orderedPayload{topic: topic, n: i}))
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 20
	})

	mu.Lock()
	defer mu.Unlock()
	for i, n := range seen {
		require.Equal(t, i, n)
	}
	require.NoError(t, b.Unsubscribe(handle))
}

type orderedPayload struct {
	topic bus.Topic
	n     int
}

func (p orderedPayload) EventTopic() bus.Topic { return p.topic }

func TestHighFrequencyRateLimitDropsExcessPublishes(t *testing.T) {
	defer goleak.VerifyNone(t)
	topic := bus.Topic("/audio/frame")
	known := map[bus.Topic]bool{topic: true}
	b := bus.New(fakeValidator{known: known}, nil, bus.Config{
		HighFrequencyTopics:    known,
		HighFrequencyRateLimit: 5,
		HighFrequencyBurst:     1,
	}, zerolog.Nop())

	var delivered int32
	handle, err := b.Subscribe(topic, "frame_consumer", func(context.Context, bus.Payload) error {
		atomic.AddInt32(&delivered, 1)
		return nil
	})
	require.NoError(t, err)
	defer func() { _ = b.Unsubscribe(handle) }()

	for i := 0; i < 50; i++ {
		require.NoError(t, b.Publish(context.Background(), fakePayload{topic: topic}))
	}
	time.Sleep(20 * time.Millisecond)

	got := atomic.LoadInt32(&delivered)
	require.Less(t, int(got), 50, "rate limiter should have dropped some of the 50 rapid-fire publishes")
}

func TestTopicsWithoutHighFrequencyRateLimitAreUnaffected(t *testing.T) {
	defer goleak.VerifyNone(t)
	topic := bus.Topic("/system/mode/changed")
	b := newTestBus(t, topic)

	var delivered int32
	handle, err := b.Subscribe(topic, "observer", func(context.Context, bus.Payload) error {
		atomic.AddInt32(&delivered, 1)
		return nil
	})
	require.NoError(t, err)
	defer func() { _ = b.Unsubscribe(handle) }()

	for i := 0; i < 20; i++ {
		require.NoError(t, b.Publish(context.Background(), fakePayload{topic: topic}))
	}
	waitFor(t, func() bool { return atomic.LoadInt32(&delivered) == 20 })
}
