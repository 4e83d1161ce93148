// Package mode implements the Mode Manager: a small finite-state machine
// over CantinaOS's four operating modes (spec.md §4.5). It is the first L2
// service in the dependency order (spec.md §2) — the command dispatcher's
// `status` command reports the current mode.
package mode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cantina-labs/cantinaos/internal/bus"
	"github.com/cantina-labs/cantinaos/internal/service"
	"github.com/cantina-labs/cantinaos/internal/topics"
)

const historyLimit = 16

// entry is one (mode, entered_at) tuple kept purely for diagnostics
// (spec.md §3 "Mode value").
type entry struct {
	Mode      topics.Mode
	EnteredAt time.Time
}

// legalTransitions enumerates every direct, single-step transition
// (spec.md §4.5). AMBIENT<->INTERACTIVE is intentionally absent here: it is
// serviced as two legal transitions through IDLE by Manager.RequestMode,
// never attempted directly.
var legalTransitions = map[topics.Mode]map[topics.Mode]bool{
	topics.ModeStartup: {topics.ModeIdle: true},
	topics.ModeIdle: {
		topics.ModeAmbient:     true,
		topics.ModeInteractive: true,
	},
	topics.ModeAmbient: {
		topics.ModeIdle: true,
	},
	topics.ModeInteractive: {
		topics.ModeIdle: true,
	},
}

// Manager owns the current mode and its bounded history. Construct with
// New, then Start it through the returned *service.Service.
type Manager struct {
	svc *service.Service
	log zerolog.Logger

	// transitionGrace is the configured minimum interval between
	// externally-requested transitions (spec.md §6 "mode transition grace
	// period"), debouncing rapid-fire RequestMode calls. Zero disables it.
	transitionGrace time.Duration

	mu               sync.Mutex
	current          topics.Mode
	history          []entry
	lastTransitionAt time.Time
}

// New registers the mode manager with reg and returns both the Manager (for
// direct queries, e.g. by the command dispatcher) and the underlying
// *service.Service (for the root supervisor to Start/Stop in order).
// transitionGrace is the configured minimum spacing between requested
// transitions (cfg.Mode.TransitionGrace); zero disables the debounce.
func New(reg *service.Registry, transitionGrace time.Duration, log zerolog.Logger) (*Manager, *service.Service) {
	m := &Manager{
		log:             log.With().Str("service", "mode_manager").Logger(),
		current:         topics.ModeStartup,
		transitionGrace: transitionGrace,
	}
	m.record(topics.ModeStartup)

	svc := reg.New(service.Config{
		Name: "mode_manager",
		Subscriptions: []service.Subscription{
			{Topic: topics.ModeSetRequest, Handler: m.handleSetRequest},
		},
	})
	m.svc = svc
	svc.OnStop(m.onStop)
	return m, svc
}

// Current returns the mode manager's current mode.
func (m *Manager) Current() topics.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// History returns a snapshot of the bounded mode-history diagnostic list,
// oldest first.
func (m *Manager) History() []topics.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]topics.Mode, len(m.history))
	for i, e := range m.history {
		out[i] = e.Mode
	}
	return out
}

func (m *Manager) handleSetRequest(ctx context.Context, payload bus.Payload) error {
	req := payload.(*topics.ModeSetRequestPayload)
	return m.RequestMode(ctx, req.To)
}

// RequestMode drives the manager toward to, splitting an AMBIENT<->
// INTERACTIVE request into two legal hops through IDLE so that every
// service gating on "entering IDLE" observes the transition (spec.md §4.5
// tie-break). Each hop publishes its own started/changed pair.
func (m *Manager) RequestMode(ctx context.Context, to topics.Mode) error {
	from := m.Current()

	if from != to {
		if err := m.enforceGrace(ctx, from, to); err != nil {
			return err
		}
	}

	if needsTieBreak(from, to) {
		if err := m.transition(ctx, from, topics.ModeIdle); err != nil {
			return err
		}
		return m.transition(ctx, topics.ModeIdle, to)
	}
	return m.transition(ctx, from, to)
}

func needsTieBreak(from, to topics.Mode) bool {
	return (from == topics.ModeAmbient && to == topics.ModeInteractive) ||
		(from == topics.ModeInteractive && to == topics.ModeAmbient)
}

// enforceGrace rejects a transition request that arrives before
// transitionGrace has elapsed since the last one, debouncing rapid-fire
// RequestMode calls (spec.md §6 "mode transition grace period"). It is
// checked once per RequestMode call, not per internal hop, so the
// AMBIENT<->INTERACTIVE tie-break's two transition() calls are never
// rejected against each other.
func (m *Manager) enforceGrace(ctx context.Context, from, to topics.Mode) error {
	if m.transitionGrace <= 0 {
		return nil
	}
	m.mu.Lock()
	last := m.lastTransitionAt
	m.mu.Unlock()
	if last.IsZero() {
		return nil
	}
	if elapsed := time.Since(last); elapsed < m.transitionGrace {
		reason := fmt.Sprintf("mode transition grace period active, %s remaining", (m.transitionGrace - elapsed).Round(time.Millisecond))
		_ = m.svc.Emit(ctx, &topics.ModeTransitionFailedPayload{From: from, To: to, Reason: reason})
		return fmt.Errorf("mode: %s", reason)
	}
	return nil
}

func (m *Manager) transition(ctx context.Context, from, to topics.Mode) error {
	if from == to {
		return nil
	}
	if !legalTransitions[from][to] {
		reason := fmt.Sprintf("illegal transition %s -> %s", from, to)
		_ = m.svc.Emit(ctx, &topics.ModeTransitionFailedPayload{From: from, To: to, Reason: reason})
		return fmt.Errorf("mode: %s", reason)
	}

	if err := m.svc.Emit(ctx, &topics.ModeTransitionStartedPayload{From: from, To: to}); err != nil {
		return err
	}

	m.mu.Lock()
	m.current = to
	m.lastTransitionAt = time.Now()
	m.record(to)
	m.mu.Unlock()

	return m.svc.Emit(ctx, &topics.ModeChangedPayload{From: from, To: to})
}

// record appends mode to the bounded history, dropping the oldest entry
// once it exceeds historyLimit (spec.md §3 "length <= 16"). Caller must
// hold m.mu.
func (m *Manager) record(mode topics.Mode) {
	m.history = append(m.history, entry{Mode: mode, EnteredAt: time.Now()})
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}
}

// onStop forces the mode to IDLE on shutdown, used by tests to assert clean
// teardown (spec.md §4.5).
func (m *Manager) onStop(ctx context.Context) error {
	from := m.Current()
	if from == topics.ModeIdle {
		return nil
	}
	m.mu.Lock()
	m.current = topics.ModeIdle
	m.record(topics.ModeIdle)
	m.mu.Unlock()
	return m.svc.Emit(ctx, &topics.ModeChangedPayload{From: from, To: topics.ModeIdle})
}
