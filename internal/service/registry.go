package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cantina-labs/cantinaos/internal/bus"
)

// Registry is the root supervisor's bookkeeping: the ordered list of
// services it owns, in the dependency order spec.md §9 requires ("Model the
// bus as a value owned by a root supervisor ... start services in
// dependency order, stop them in reverse"). It also implements the single
// bus.HandlerErrorFunc every service's subscriptions share, routing each
// failure to the service that owns the failing handler.
type Registry struct {
	bus *bus.Bus
	log zerolog.Logger

	mu       sync.RWMutex
	byName   map[string]*Service
	ordered  []*Service
}

// NewRegistry constructs an empty Registry. Because the bus itself needs
// the registry's OnHandlerError as its error sink, construct the registry
// first, build the bus with reg.OnHandlerError, then call BindBus — this
// breaks the otherwise-circular dependency between bus.New and
// Registry.New (spec.md §9's cycle-breaking guidance applied to startup
// wiring itself).
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		log:    log,
		byName: make(map[string]*Service),
	}
}

// BindBus attaches the bus every subsequently-constructed Service will use.
// Call once, after constructing b with this registry's OnHandlerError.
func (r *Registry) BindBus(b *bus.Bus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bus = b
}

// New constructs a Service under this registry's bus and registers it,
// preserving the order New is called in as the startup order.
func (r *Registry) New(cfg Config) *Service {
	svc := New(cfg, r.bus, r.log)
	r.mu.Lock()
	r.byName[cfg.Name] = svc
	r.ordered = append(r.ordered, svc)
	r.mu.Unlock()
	return svc
}

// OnHandlerError implements bus.HandlerErrorFunc. Pass it to bus.New as the
// shared error sink for every service the registry owns.
func (r *Registry) OnHandlerError(ctx context.Context, serviceName string, topic bus.Topic, err error) {
	r.mu.RLock()
	svc, ok := r.byName[serviceName]
	r.mu.RUnlock()
	if !ok {
		r.log.Error().Str("service", serviceName).Str("topic", string(topic)).Err(err).
			Msg("handler error from unregistered service")
		return
	}
	svc.HandleHandlerError(ctx, topic, err)
}

// StartAll starts every registered service in registration order. If a
// service fails to start, StartAll stops every service already started (in
// reverse order) and returns the failure — CantinaOS never runs with a
// partially-initialized service graph (spec.md §4.4).
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.RLock()
	ordered := append([]*Service(nil), r.ordered...)
	r.mu.RUnlock()

	for i, svc := range ordered {
		if err := svc.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = ordered[j].Stop(ctx)
			}
			return fmt.Errorf("service registry: starting %s: %w", svc.Name(), err)
		}
	}
	return nil
}

// StopAll stops every registered service in reverse registration order,
// continuing past individual failures so one stuck service cannot prevent
// the rest of the graph from shutting down.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.RLock()
	ordered := append([]*Service(nil), r.ordered...)
	r.mu.RUnlock()

	for i := len(ordered) - 1; i >= 0; i-- {
		if err := ordered[i].Stop(ctx); err != nil {
			r.log.Error().Str("service", ordered[i].Name()).Err(err).Msg("error stopping service")
		}
	}
}

// Statuses returns a snapshot of every registered service's current status,
// keyed by name, for the `status` CLI command and the dashboard bridge.
func (r *Registry) Statuses() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.ordered))
	for _, svc := range r.ordered {
		out[svc.Name()] = string(svc.Status())
	}
	return out
}
