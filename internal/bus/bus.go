// Package bus implements the topic-addressed, asynchronous publish/subscribe
// event bus described in spec.md §4.1. Delivery is decoupled from the
// publisher: Publish schedules each subscribed handler to run on its own
// goroutine and returns once scheduling is done, never waiting on handler
// completion. Handlers for a topic are invoked in registration order and see
// publishes to that topic in publish order; cross-handler execution is
// concurrent and cross-topic ordering is not guaranteed.
//
// The bus is deliberately payload-agnostic: it knows nothing about JSON
// Schema or topic registration. Those concerns live in package topics, which
// implements Validator and is wired in by the caller. This keeps bus free of
// any dependency on the rest of the module, mirroring the teacher's
// runtime/agent/hooks.Bus, generalized from a single-subscriber-list fan-out
// into the concurrent, per-handler-queued model spec.md §5 requires.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type (
	// Topic is a hierarchical, slash-delimited, case-sensitive string key
	// (e.g. "/system/mode/change"). Topics are enumerated by package topics;
	// the bus treats them as opaque strings.
	Topic string

	// Payload is the interface every event value published on the bus must
	// implement. Concrete payload types live in package topics, one struct
	// per topic, per spec.md §3 ("For each topic the registry names exactly
	// one schema").
	Payload interface {
		// EventTopic returns the topic this payload is registered against.
		EventTopic() Topic
	}

	// Handler reacts to a single published payload. Handlers must not block
	// indefinitely: the bus bounds each handler's queue (Config.QueueSize)
	// and drops the oldest pending item with a logged warning if a handler
	// falls behind (spec.md §5 "Backpressure").
	Handler func(ctx context.Context, payload Payload) error

	// Validator is consulted on every Publish before delivery. It is
	// implemented by topics.Registry: it rejects payloads for unregistered
	// topics, checks the payload against its JSON Schema, and stamps
	// defaulted fields (timestamp, event_id) per spec.md §4.2. A nil
	// Validator disables validation (used only in bus-only unit tests).
	Validator interface {
		// Validate checks payload against the schema registered for its
		// topic and stamps defaulted fields (timestamp, event_id).
		Validate(topic Topic, payload Payload) error
		// KnownTopic reports whether topic has a registered schema.
		// Subscribing to an unknown topic is a programming error (spec.md §3).
		KnownTopic(topic Topic) bool
	}

	// HandlerErrorFunc is invoked when a handler returns an error or panics.
	// The bus isolates the failure to that one handler; it is the caller's
	// responsibility (normally the service framework) to translate this into
	// a SERVICE_STATUS event, per spec.md §4.1 "Error policy".
	HandlerErrorFunc func(ctx context.Context, serviceName string, topic Topic, err error)

	// Handle is an opaque subscription handle returned by Subscribe. Pass it
	// to Unsubscribe to remove exactly that registration.
	Handle struct {
		id    uint64
		topic Topic
	}

	// Config tunes the bus's concurrency and backpressure behavior.
	Config struct {
		// QueueSize bounds the per-handler pending-delivery channel. Defaults
		// to 64 per spec.md §5.
		QueueSize int
		// HighFrequencyQueueSize overrides QueueSize for topics named in
		// HighFrequencyTopics (raw audio frames, log records — spec.md §5).
		HighFrequencyQueueSize int
		HighFrequencyTopics    map[Topic]bool
		// HighFrequencyRateLimit caps publishes-per-second on any topic
		// named in HighFrequencyTopics, via golang.org/x/time/rate (spec.md
		// §5 "Backpressure" generalized from queue-depth-only bounding to
		// also bounding the publish rate itself — a flood of raw audio
		// frames or log records can outrun even a generously sized queue).
		// Zero disables rate limiting; publishes are only queue-bounded.
		HighFrequencyRateLimit rate.Limit
		// HighFrequencyBurst is the token bucket burst size paired with
		// HighFrequencyRateLimit. Defaults to 1 if unset and the limit is
		// nonzero.
		HighFrequencyBurst int
	}

	subscription struct {
		handle      Handle
		service     string
		handler     Handler
		queue       chan queuedDelivery
		cancel      context.CancelFunc
		done        chan struct{}
		droppedWarn sync.Once
	}

	queuedDelivery struct {
		ctx     context.Context
		payload Payload
	}

	// Bus is the concrete, in-process event bus.
	Bus struct {
		mu        sync.RWMutex
		subs      map[Topic][]*subscription
		nextID    uint64
		validator Validator
		onErr     HandlerErrorFunc
		cfg       Config
		log       zerolog.Logger

		limitersMu sync.Mutex
		limiters   map[Topic]*rate.Limiter
	}
)

// New constructs a ready-to-use Bus. validator may be nil for tests that do
// not need topic/schema enforcement; onErr may be nil to silently drop
// handler errors (not recommended outside tests).
func New(validator Validator, onErr HandlerErrorFunc, cfg Config, log zerolog.Logger) *Bus {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.HighFrequencyQueueSize <= 0 {
		cfg.HighFrequencyQueueSize = 16
	}
	if cfg.HighFrequencyRateLimit > 0 && cfg.HighFrequencyBurst <= 0 {
		cfg.HighFrequencyBurst = 1
	}
	return &Bus{
		subs:      make(map[Topic][]*subscription),
		validator: validator,
		onErr:     onErr,
		cfg:       cfg,
		log:       log.With().Str("component", "bus").Logger(),
		limiters:  make(map[Topic]*rate.Limiter),
	}
}

// Subscribe registers handler for topic under the name of the owning
// service (used to label HandlerError reports). Subscribing to a topic the
// Validator does not recognize fails per spec.md §4.1.
func (b *Bus) Subscribe(topic Topic, serviceName string, handler Handler) (Handle, error) {
	if handler == nil {
		return Handle{}, fmt.Errorf("bus: nil handler for topic %q", topic)
	}
	if b.validator != nil && !b.validator.KnownTopic(topic) {
		return Handle{}, fmt.Errorf("bus: subscribe to unregistered topic %q", topic)
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	handle := Handle{id: id, topic: topic}

	size := b.cfg.QueueSize
	if b.cfg.HighFrequencyTopics[topic] {
		size = b.cfg.HighFrequencyQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		handle:  handle,
		service: serviceName,
		handler: handler,
		queue:   make(chan queuedDelivery, size),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	go b.runWorker(ctx, sub)
	return handle, nil
}

// Unsubscribe removes exactly the handler identified by handle. After it
// returns, that handler is guaranteed not to be invoked again.
func (b *Bus) Unsubscribe(handle Handle) error {
	b.mu.Lock()
	list := b.subs[handle.topic]
	for i, sub := range list {
		if sub.handle.id == handle.id {
			b.subs[handle.topic] = append(list[:i:i], list[i+1:]...)
			b.mu.Unlock()
			sub.cancel()
			<-sub.done
			return nil
		}
	}
	b.mu.Unlock()
	return fmt.Errorf("bus: unknown subscription %v", handle)
}

// Publish validates payload against its registered schema, then schedules
// delivery to every current subscriber of its topic. Publish returns once
// scheduling is complete; it never waits for handlers to finish.
func (b *Bus) Publish(ctx context.Context, payload Payload) error {
	topic := payload.EventTopic()
	if b.validator != nil {
		if err := b.validator.Validate(topic, payload); err != nil {
			return err
		}
	}

	if b.cfg.HighFrequencyTopics[topic] && b.cfg.HighFrequencyRateLimit > 0 && !b.limiterFor(topic).Allow() {
		b.log.Warn().Str("topic", string(topic)).Msg("high-frequency topic exceeded its publish rate, dropping event")
		return nil
	}

	b.mu.RLock()
	subs := make([]*subscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.RUnlock()

	for _, sub := range subs {
		b.enqueue(ctx, sub, payload)
	}
	return nil
}

// ListHandlers returns the service names currently subscribed to topic, in
// registration order.
func (b *Bus) ListHandlers(topic Topic) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.subs[topic]))
	for _, s := range b.subs[topic] {
		out = append(out, s.service)
	}
	return out
}

// HandlerCount returns the number of active subscriptions on topic.
func (b *Bus) HandlerCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *Bus) limiterFor(topic Topic) *rate.Limiter {
	b.limitersMu.Lock()
	defer b.limitersMu.Unlock()
	l, ok := b.limiters[topic]
	if !ok {
		l = rate.NewLimiter(b.cfg.HighFrequencyRateLimit, b.cfg.HighFrequencyBurst)
		b.limiters[topic] = l
	}
	return l
}

func (b *Bus) enqueue(ctx context.Context, sub *subscription, payload Payload) {
	select {
	case sub.queue <- queuedDelivery{ctx: ctx, payload: payload}:
	default:
		// Backpressure: drop oldest, then try once to enqueue the newest.
		select {
		case <-sub.queue:
			sub.droppedWarn.Do(func() {
				b.log.Warn().Str("service", sub.service).Str("topic", string(sub.handle.topic)).
					Msg("handler queue full, dropping oldest pending event")
			})
		default:
		}
		select {
		case sub.queue <- queuedDelivery{ctx: ctx, payload: payload}:
		default:
		}
	}
}

func (b *Bus) runWorker(ctx context.Context, sub *subscription) {
	defer close(sub.done)
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-sub.queue:
			if !ok {
				return
			}
			b.invoke(item.ctx, sub, item.payload)
		}
	}
}

func (b *Bus) invoke(ctx context.Context, sub *subscription, payload Payload) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("handler panic: %v", r)
			if b.onErr != nil {
				b.onErr(ctx, sub.service, payload.EventTopic(), err)
			}
		}
	}()
	if err := sub.handler(ctx, payload); err != nil {
		if b.onErr != nil {
			b.onErr(ctx, sub.service, payload.EventTopic(), err)
		}
	}
}

// Now is the bus's single time source, kept here so tests can reason about
// monotonic publish ordering without reaching into package time directly.
func Now() time.Time { return time.Now() }
