package mode_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/cantina-labs/cantinaos/internal/mode"
	"github.com/cantina-labs/cantinaos/internal/service"
	"github.com/cantina-labs/cantinaos/internal/topics"
)

var allModes = []topics.Mode{
	topics.ModeStartup,
	topics.ModeIdle,
	topics.ModeAmbient,
	topics.ModeInteractive,
}

// legalDirectHop mirrors the manager's own legalTransitions table plus the
// AMBIENT<->INTERACTIVE tie-break RequestMode performs as two hops through
// IDLE (mode.go's needsTieBreak), since RequestMode accepts that pair too.
func legalDirectHop(from, to topics.Mode) bool {
	switch from {
	case topics.ModeStartup:
		return to == topics.ModeIdle
	case topics.ModeIdle:
		return to == topics.ModeAmbient || to == topics.ModeInteractive
	case topics.ModeAmbient:
		return to == topics.ModeIdle || to == topics.ModeInteractive
	case topics.ModeInteractive:
		return to == topics.ModeIdle || to == topics.ModeAmbient
	}
	return false
}

// forceCurrent drives a freshly-started manager (always in ModeStartup) to
// want via only legal RequestMode hops, so the property under test never
// has to reach past the manager's own API to set up a starting state.
func forceCurrent(m *mode.Manager, svc *service.Service, want topics.Mode) error {
	ctx := context.Background()
	switch want {
	case topics.ModeStartup:
		return nil
	case topics.ModeIdle:
		return m.RequestMode(ctx, topics.ModeIdle)
	case topics.ModeAmbient, topics.ModeInteractive:
		if err := m.RequestMode(ctx, topics.ModeIdle); err != nil {
			return err
		}
		return m.RequestMode(ctx, want)
	}
	return nil
}

// TestRequestModeOnlyAcceptsLegalTransitions checks, for arbitrarily
// generated (from, to) pairs, that Manager.RequestMode succeeds exactly
// when the transition is one mode.go's legalTransitions table allows
// (directly, or via the documented AMBIENT<->INTERACTIVE tie-break through
// IDLE) and fails otherwise, never silently landing the manager in a mode
// legalDirectHop does not sanction.
func TestRequestModeOnlyAcceptsLegalTransitions(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("RequestMode's success matches the legal-transition table", prop.ForAll(
		func(fromIdx, toIdx int) bool {
			from := allModes[fromIdx%len(allModes)]
			to := allModes[toIdx%len(allModes)]

			m, svc, _, _ := newManager(t)
			if err := svc.Start(context.Background()); err != nil {
				return false
			}
			defer svc.Stop(context.Background())

			if err := forceCurrent(m, svc, from); err != nil {
				return false
			}

			err := m.RequestMode(context.Background(), to)
			wantLegal := from == to || legalDirectHop(from, to)
			if wantLegal {
				return err == nil && m.Current() == to
			}
			return err != nil && m.Current() == from
		},
		gen.IntRange(0, len(allModes)-1),
		gen.IntRange(0, len(allModes)-1),
	))

	properties.TestingRun(t)
}
