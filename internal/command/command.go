// Package command implements the Command Dispatcher (spec.md §4.4): it
// normalizes raw CLI/dashboard input into a CommandRecord, shapes it into
// the target service's expected payload, and routes it to a single
// registered topic — the one place command-name-to-topic knowledge lives.
package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cantina-labs/cantinaos/internal/bus"
	"github.com/cantina-labs/cantinaos/internal/cerrors"
	"github.com/cantina-labs/cantinaos/internal/service"
	"github.com/cantina-labs/cantinaos/internal/topics"
)

// noHandlerGrace is how long the dispatcher waits after publishing before
// checking whether anything ever picked up the command's target topic
// (spec.md §4.4 "surfaces as a time-bounded 'no handler' diagnostic").
const noHandlerGrace = 300 * time.Millisecond

// Shape builds the topic-specific payload for a resolved command record.
// Registered once per command name; see Dispatcher.Register.
type Shape func(rec topics.CommandRecord) (bus.Payload, error)

type registration struct {
	name    string
	service string
	shape   Shape
}

// Dispatcher holds the basic/compound command tables and the shortcut
// expansion table (spec.md §4.4).
type Dispatcher struct {
	svc *service.Service
	bus *bus.Bus
	log zerolog.Logger

	mu        sync.RWMutex
	basic     map[string]registration
	compound  map[string]registration
	shortcuts map[string]string
}

// New registers the command dispatcher with reg and returns it for the
// caller to Register commands on before the root supervisor starts it.
func New(reg *service.Registry, b *bus.Bus, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		bus:       b,
		log:       log.With().Str("service", "command_dispatcher").Logger(),
		basic:     make(map[string]registration),
		compound:  make(map[string]registration),
		shortcuts: make(map[string]string),
	}
	d.svc = reg.New(service.Config{
		Name: "command_dispatcher",
		Subscriptions: []service.Subscription{
			{Topic: topics.RawInputTopic, Handler: d.handleRawInput},
		},
	})
	return d
}

// Service returns the dispatcher's underlying *service.Service, for the
// root supervisor to Start/Stop in dependency order.
func (d *Dispatcher) Service() *service.Service { return d.svc }

// Register adds command_name (one or two words) to the dispatcher's table,
// associated with the owning service and a shaping function for its
// payload. A name conflict is a registration-time error (spec.md §4.4,
// §4.4 "registration conflict at startup (fatal)").
func (d *Dispatcher) Register(name, serviceName string, shape Shape) error {
	words := strings.Fields(name)
	d.mu.Lock()
	defer d.mu.Unlock()

	switch len(words) {
	case 1:
		if _, exists := d.basic[words[0]]; exists {
			return &cerrors.RegistrationError{Name: name, Reason: "command already registered"}
		}
		d.basic[words[0]] = registration{name: name, service: serviceName, shape: shape}
	case 2:
		key := words[0] + " " + words[1]
		if _, exists := d.compound[key]; exists {
			return &cerrors.RegistrationError{Name: name, Reason: "command already registered"}
		}
		d.compound[key] = registration{name: name, service: serviceName, shape: shape}
	default:
		return &cerrors.RegistrationError{Name: name, Reason: "command names must be one or two words"}
	}
	return nil
}

// RegisterDefault registers name with the default payload shape spec.md
// §4.4 step 5 falls back to when a target service declares no bespoke
// payload_shape: {command, subcommand, args, raw_input} published as a
// topics.GenericCommandPayload on target.
func (d *Dispatcher) RegisterDefault(name, serviceName string, target bus.Topic) error {
	return d.Register(name, serviceName, func(rec topics.CommandRecord) (bus.Payload, error) {
		return &topics.GenericCommandPayload{
			Target:     target,
			Command:    rec.Command,
			Subcommand: rec.Subcommand,
			Args:       rec.Args,
			RawInput:   rec.RawInput,
			Source:     rec.Source,
			SID:        rec.SID,
		}, nil
	})
}

// RegisterShortcut maps alias to the canonical command phrase it expands
// to. A shortcut colliding with an already-registered command name, or
// with an existing shortcut, is a registration-time error.
func (d *Dispatcher) RegisterShortcut(alias, canonical string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.shortcuts[alias]; exists {
		return &cerrors.RegistrationError{Name: alias, Reason: "shortcut already registered"}
	}
	if _, exists := d.basic[alias]; exists {
		return &cerrors.RegistrationError{Name: alias, Reason: "shortcut collides with a registered command"}
	}
	d.shortcuts[alias] = canonical
	return nil
}

// names returns every registered command name, basic and compound, sorted.
// Caller must hold d.mu for reading.
func (d *Dispatcher) names() []string {
	out := make([]string, 0, len(d.basic)+len(d.compound))
	for name := range d.basic {
		out = append(out, name)
	}
	for key := range d.compound {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func (d *Dispatcher) handleRawInput(ctx context.Context, payload bus.Payload) error {
	raw := payload.(*topics.RawInputPayload)
	return d.Dispatch(ctx, raw.Line, raw.Source, raw.SID)
}

// Dispatch runs the full algorithm of spec.md §4.4 over one input line.
func (d *Dispatcher) Dispatch(ctx context.Context, line string, source topics.CommandSource, sid string) error {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return fmt.Errorf("command: empty input")
	}

	tokens = d.expandShortcuts(tokens)

	reg, commandWords, args, ok := d.resolve(tokens)
	commandID := uuid.NewString()

	if !ok {
		suggestion := d.closestMatch(strings.Join(commandWords, " "))
		msg := fmt.Sprintf("unknown command %q", strings.Join(commandWords, " "))
		_ = d.svc.Emit(ctx, &topics.CLIResponsePayload{Message: msg, Hint: suggestion})
		_ = d.svc.Emit(ctx, &topics.CommandAckPayload{CommandID: commandID, Success: false, Message: msg, SID: sid})
		return nil
	}

	rec := topics.CommandRecord{
		Command:   commandWords[0],
		Args:      args,
		RawInput:  line,
		Source:    source,
		CommandID: commandID,
		SID:       sid,
	}
	if len(commandWords) == 2 {
		rec.Subcommand = commandWords[1]
	}

	payload, err := reg.shape(rec)
	if err != nil {
		msg := fmt.Sprintf("%s: %v", reg.name, err)
		_ = d.svc.Emit(ctx, &topics.CLIResponsePayload{Message: msg})
		_ = d.svc.Emit(ctx, &topics.CommandAckPayload{CommandID: commandID, Success: false, Message: msg, SID: sid})
		return nil
	}

	if err := d.svc.Emit(ctx, payload); err != nil {
		msg := fmt.Sprintf("%s: %v", reg.name, err)
		_ = d.svc.Emit(ctx, &topics.CommandAckPayload{CommandID: commandID, Success: false, Message: msg, SID: sid})
		return nil
	}

	d.watchForHandler(payload.EventTopic(), reg.name)

	_ = d.svc.Emit(ctx, &topics.CommandAckPayload{
		CommandID: commandID,
		Success:   true,
		Message:   fmt.Sprintf("dispatched %s", reg.name),
		SID:       sid,
	})
	return nil
}

// resolve implements steps 2-3 of the algorithm: prefer the longest
// (two-word) matching prefix over the single-token command.
func (d *Dispatcher) resolve(tokens []string) (registration, []string, []string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(tokens) >= 2 {
		key := tokens[0] + " " + tokens[1]
		if reg, ok := d.compound[key]; ok {
			return reg, []string{tokens[0], tokens[1]}, tokens[2:], true
		}
	}
	if reg, ok := d.basic[tokens[0]]; ok {
		return reg, []string{tokens[0]}, tokens[1:], true
	}
	return registration{}, tokens, nil, false
}

// expandShortcuts rewrites a leading alias token into its canonical
// command phrase, splicing the remaining tokens after it.
func (d *Dispatcher) expandShortcuts(tokens []string) []string {
	d.mu.RLock()
	canonical, ok := d.shortcuts[tokens[0]]
	d.mu.RUnlock()
	if !ok {
		return tokens
	}
	expanded := strings.Fields(canonical)
	return append(expanded, tokens[1:]...)
}

// closestMatch finds the registered command name with the smallest edit
// distance to attempted, for the "unknown command" hint (spec.md §4.4 step
// 4). Returns "" if nothing is registered yet.
func (d *Dispatcher) closestMatch(attempted string) string {
	d.mu.RLock()
	candidates := d.names()
	d.mu.RUnlock()

	best, bestDist := "", -1
	for _, c := range candidates {
		dist := levenshtein(attempted, c)
		if bestDist == -1 || dist < bestDist {
			best, bestDist = c, dist
		}
	}
	if best == "" {
		return ""
	}
	return fmt.Sprintf("did you mean %q?", best)
}

// watchForHandler emits a CLI diagnostic if, after a short grace period,
// nothing was ever subscribed to topic — spec.md §4.4 "handler absent on
// the target topic surfaces as a time-bounded 'no handler' diagnostic".
func (d *Dispatcher) watchForHandler(topic bus.Topic, commandName string) {
	if d.bus.HandlerCount(topic) > 0 {
		return
	}
	time.AfterFunc(noHandlerGrace, func() {
		if d.bus.HandlerCount(topic) > 0 {
			return
		}
		d.log.Warn().Str("command", commandName).Str("topic", string(topic)).
			Msg("no handler registered for command target topic")
		_ = d.svc.Emit(context.Background(), &topics.CLIResponsePayload{
			Message: fmt.Sprintf("%s: no service is currently handling this command", commandName),
		})
	})
}

// levenshtein is a small, allocation-light edit-distance implementation
// used only for "closest command" suggestions.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
