// Package adapters implements the external-interface boundary of
// SPEC_FULL.md §6.2: the dashboard bridge's inbound HTTP surface and
// outbound Redis-backed event stream, mirroring the teacher's own
// features/stream/pulse layering (Redis client → Pulse client → sink).
package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"

	"github.com/cantina-labs/cantinaos/internal/bus"
)

// EventEnvelope wraps a forwarded bus event for transmission over a Pulse
// stream, the same envelope-around-JSON shape the teacher's pulse.Sink uses.
type EventEnvelope struct {
	Topic     string `json:"topic"`
	Timestamp int64  `json:"timestamp"`
	Payload   any    `json:"payload"`
}

// PulseSinkOptions configures EventSink.
type PulseSinkOptions struct {
	// Redis is the connection backing the Pulse stream. Required.
	Redis *redis.Client
	// StreamName is the Pulse stream every forwarded event is written to.
	// Defaults to "cantinaos/events".
	StreamName string
	// StreamMaxLen bounds the number of entries Pulse retains. Zero uses
	// Pulse's own default.
	StreamMaxLen int
	// OperationTimeout bounds each Add call. Zero means no timeout.
	OperationTimeout time.Duration
}

// EventSink publishes bus events to a Redis-backed Pulse stream for the
// dashboard bridge's outbound forwarding (SPEC_FULL.md §6.2), grounded
// directly on the teacher's features/stream/pulse client/sink pair.
type EventSink struct {
	stream  *streaming.Stream
	timeout time.Duration
}

// NewEventSink constructs an EventSink. opts.Redis is required.
func NewEventSink(opts PulseSinkOptions) (*EventSink, error) {
	if opts.Redis == nil {
		return nil, errors.New("adapters: redis client is required")
	}
	name := opts.StreamName
	if name == "" {
		name = "cantinaos/events"
	}
	var streamOptions []streamopts.Stream
	if opts.StreamMaxLen > 0 {
		streamOptions = append(streamOptions, streamopts.WithStreamMaxLen(opts.StreamMaxLen))
	}
	str, err := streaming.NewStream(name, opts.Redis, streamOptions...)
	if err != nil {
		return nil, fmt.Errorf("adapters: create pulse stream: %w", err)
	}
	return &EventSink{stream: str, timeout: opts.OperationTimeout}, nil
}

// Publish forwards payload, tagged with topic, to the Pulse stream.
func (s *EventSink) Publish(ctx context.Context, topic bus.Topic, payload bus.Payload) error {
	env := EventEnvelope{Topic: string(topic), Timestamp: time.Now().Unix(), Payload: payload}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	_, err = s.stream.Add(ctx, string(topic), raw)
	return err
}

// Close is a no-op: the Redis connection backing the stream is owned and
// managed by the caller, the same convention the teacher's pulse client
// follows.
func (s *EventSink) Close(ctx context.Context) error {
	return nil
}
