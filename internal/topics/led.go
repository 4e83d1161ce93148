package topics

import "github.com/cantina-labs/cantinaos/internal/bus"

// LEDCommandPayload is the narrow contract the core hands to the (external,
// out-of-scope) LED/animation hardware adapter: a named pattern and its
// parameters, never a raw protocol frame (spec.md §1 "naming the events that
// hardware adapters must produce and consume").
type LEDCommandPayload struct {
	BaseEvent
	Pattern string         `json:"pattern"`
	Params  map[string]any `json:"params,omitempty"`
}

func (p *LEDCommandPayload) EventTopic() bus.Topic { return LEDCommandTopic }
