// Package service implements the per-component lifecycle, status reporting,
// scoped subscription, and task supervision contract of spec.md §4.3. Each
// Service owns a narrow capability handle into the bus (publish, subscribe,
// emit-status) and never holds a reference to another service directly,
// per spec.md §9 "Break cycles by passing only the event bus + a narrow
// capability set ... into each service."
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cantina-labs/cantinaos/internal/bus"
	"github.com/cantina-labs/cantinaos/internal/cerrors"
	"github.com/cantina-labs/cantinaos/internal/topics"
)

var (
	tracer = otel.Tracer("cantinaos/service")
	meter  = otel.Meter("cantinaos/service")

	// statusTransitions counts every status change a service reports,
	// tagged by service name and the status entered — the ambient
	// operational floor every service gets for free (SPEC_FULL.md §2).
	// OTel has no synchronous gauge instrument, so a transition counter is
	// used instead, the same fallback the teacher's own
	// ClueMetrics.IncCounter takes for point-in-time state.
	statusTransitions, _ = meter.Float64Counter("cantinaos.service.status_transitions")
)

type (
	// Subscription declares one topic/handler pair a service registers at
	// start and tears down at stop (spec.md §4.3).
	Subscription struct {
		Topic   bus.Topic
		Handler bus.Handler
	}

	// Task is a supervised long-running background function. It must
	// return promptly when ctx is cancelled.
	Task func(ctx context.Context) error

	// Config declares a service's static shape: its name, the topics it
	// subscribes to, and the grace period Stop allows background tasks
	// before abandoning them (spec.md §5 default 2s).
	Config struct {
		Name          string
		Subscriptions []Subscription
		StopGrace     time.Duration
	}

	// Service implements the lifecycle contract of spec.md §4.3 on top of
	// a shared Bus. Construct with New, register hooks with OnStart/OnStop/
	// Supervise, then call Start/Stop from the root supervisor in
	// dependency order.
	Service struct {
		cfg Config
		bus *bus.Bus
		log zerolog.Logger

		onStart func(ctx context.Context) error
		onStop  func(ctx context.Context) error
		tasks   []Task

		mu          sync.Mutex
		status      topics.ServiceStatusKind
		lastMessage string
		handles     []bus.Handle

		cancel context.CancelFunc
		wg     sync.WaitGroup
	}
)

// New constructs a Service bound to b, logging under the service's name.
func New(cfg Config, b *bus.Bus, log zerolog.Logger) *Service {
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 2 * time.Second
	}
	return &Service{
		cfg: cfg,
		bus: b,
		log: log.With().Str("service", cfg.Name).Logger(),
	}
}

// Name returns the service's registered name.
func (s *Service) Name() string { return s.cfg.Name }

// Status returns the service's current canonical status.
func (s *Service) Status() topics.ServiceStatusKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// OnStart registers the hook Start calls before subscriptions are
// established. Call before Start.
func (s *Service) OnStart(fn func(ctx context.Context) error) { s.onStart = fn }

// OnStop registers the hook Stop calls after subscriptions are torn down and
// background tasks have been awaited or abandoned. Call before Start.
func (s *Service) OnStop(fn func(ctx context.Context) error) { s.onStop = fn }

// Supervise registers a long-running background task. Tasks start after
// subscriptions are established and are cancelled (with StopGrace to wind
// down) when Stop is called. Call before Start.
func (s *Service) Supervise(fn Task) { s.tasks = append(s.tasks, fn) }

// Start runs on_start, then establishes every declared subscription in
// order, then starts supervised tasks, then marks the service RUNNING. A
// failure at any step transitions to ERROR and leaves no partial
// subscriptions behind (spec.md §4.3, §3 invariant).
func (s *Service) Start(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "service.Start", trace.WithAttributes(attribute.String("service", s.cfg.Name)))
	defer span.End()

	s.setStatus(ctx, topics.StatusInitializing, "")

	if s.onStart != nil {
		if err := s.onStart(ctx); err != nil {
			lifeErr := &cerrors.LifecycleError{Service: s.cfg.Name, Phase: "on_start", Err: err}
			s.setStatus(ctx, topics.StatusError, lifeErr.Error())
			return lifeErr
		}
	}

	for _, sub := range s.cfg.Subscriptions {
		h, err := s.bus.Subscribe(sub.Topic, s.cfg.Name, sub.Handler)
		if err != nil {
			s.rollbackSubscriptions()
			lifeErr := &cerrors.LifecycleError{Service: s.cfg.Name, Phase: "subscribe", Err: err}
			s.setStatus(ctx, topics.StatusError, lifeErr.Error())
			return lifeErr
		}
		s.handles = append(s.handles, h)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.runTask(runCtx, task)
	}

	s.setStatus(ctx, topics.StatusRunning, "")
	return nil
}

// Stop cancels background tasks (bounded by StopGrace), removes every
// subscription the service registered, awaits outstanding handler
// invocations, and marks the service STOPPED (spec.md §4.3).
func (s *Service) Stop(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "service.Stop", trace.WithAttributes(attribute.String("service", s.cfg.Name)))
	defer span.End()

	if s.cancel != nil {
		s.cancel()
		done := make(chan struct{})
		go func() { s.wg.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(s.cfg.StopGrace):
			s.log.Warn().Msg("stop grace period exceeded, abandoning background tasks")
		}
	}

	s.rollbackSubscriptions()

	if s.onStop != nil {
		if err := s.onStop(ctx); err != nil {
			lifeErr := &cerrors.LifecycleError{Service: s.cfg.Name, Phase: "on_stop", Err: err}
			s.setStatus(ctx, topics.StatusError, lifeErr.Error())
			return lifeErr
		}
	}

	s.setStatus(ctx, topics.StatusStopped, "")
	return nil
}

// Emit publishes payload through the service's bus handle.
func (s *Service) Emit(ctx context.Context, payload bus.Payload) error {
	return s.bus.Publish(ctx, payload)
}

// EmitStatus publishes a SERVICE_STATUS event naming this service, eliding
// the publish if kind and message are unchanged from the last emission
// (spec.md §3 "last-status-emitted cache").
func (s *Service) EmitStatus(ctx context.Context, kind topics.ServiceStatusKind, message string) {
	s.setStatus(ctx, kind, message)
}

// HandleHandlerError is wired into bus.HandlerErrorFunc by the root
// supervisor (see internal/service.Registry) so a handler failure owned by
// this service surfaces as a SERVICE_STATUS event naming it, per spec.md §7
// "HandlerError ... isolated to that handler, emitted as a status event
// naming the owning service."
func (s *Service) HandleHandlerError(ctx context.Context, topic bus.Topic, err error) {
	hErr := &cerrors.HandlerError{Service: s.cfg.Name, Topic: string(topic), Err: err}
	s.log.Error().Err(err).Str("topic", string(topic)).Msg("handler failed")
	s.EmitStatus(ctx, topics.StatusDegraded, hErr.Error())
}

func (s *Service) runTask(ctx context.Context, task Task) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			lifeErr := &cerrors.LifecycleError{Service: s.cfg.Name, Phase: "task", Err: fmt.Errorf("panic: %v", r)}
			s.EmitStatus(context.Background(), topics.StatusError, lifeErr.Error())
		}
	}()
	if err := task(ctx); err != nil && ctx.Err() == nil {
		s.EmitStatus(context.Background(), topics.StatusError, err.Error())
	}
}

func (s *Service) rollbackSubscriptions() {
	s.mu.Lock()
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()
	for _, h := range handles {
		_ = s.bus.Unsubscribe(h)
	}
}

func (s *Service) setStatus(ctx context.Context, kind topics.ServiceStatusKind, message string) {
	s.mu.Lock()
	unchanged := s.status == kind && s.lastMessage == message
	prev := s.status
	s.status = kind
	s.lastMessage = message
	s.mu.Unlock()

	if unchanged {
		return
	}
	if statusTransitions != nil {
		statusTransitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("service", s.cfg.Name),
			attribute.String("status", string(kind)),
		))
	}

	_ = s.bus.Publish(ctx, &topics.ServiceStatusPayload{
		Service: s.cfg.Name,
		Status:  kind,
		Message: message,
	})
}
