package topics

import "github.com/cantina-labs/cantinaos/internal/bus"

// Mode is one of the four operating modes named in spec.md §3/§4.5.
type Mode string

const (
	ModeStartup     Mode = "STARTUP"
	ModeIdle        Mode = "IDLE"
	ModeAmbient     Mode = "AMBIENT"
	ModeInteractive Mode = "INTERACTIVE"
)

type (
	// ModeSetRequestPayload asks the mode manager to transition to To.
	// Requester is advisory (diagnostics only); a rejected request is
	// answered with a ModeTransitionFailedPayload carrying the reason.
	ModeSetRequestPayload struct {
		BaseEvent
		To        Mode   `json:"to"`
		Requester string `json:"requester,omitempty"`
	}

	// ModeTransitionStartedPayload fires the moment a (possibly
	// intermediate, see the AMBIENT<->INTERACTIVE tie-break) transition
	// begins.
	ModeTransitionStartedPayload struct {
		BaseEvent
		From Mode `json:"from"`
		To   Mode `json:"to"`
	}

	// ModeChangedPayload fires once a transition completes successfully.
	ModeChangedPayload struct {
		BaseEvent
		From Mode `json:"from"`
		To   Mode `json:"to"`
	}

	// ModeTransitionFailedPayload fires when a requested transition is
	// illegal or arrives within the transition grace period; the current
	// mode is left unchanged.
	ModeTransitionFailedPayload struct {
		BaseEvent
		From   Mode   `json:"from"`
		To     Mode   `json:"to"`
		Reason string `json:"reason"`
	}
)

func (p *ModeSetRequestPayload) EventTopic() bus.Topic        { return ModeSetRequest }
func (p *ModeTransitionStartedPayload) EventTopic() bus.Topic { return ModeTransitionStarted }
func (p *ModeChangedPayload) EventTopic() bus.Topic           { return ModeChanged }
func (p *ModeTransitionFailedPayload) EventTopic() bus.Topic  { return ModeTransitionFailed }
