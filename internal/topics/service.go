package topics

import "github.com/cantina-labs/cantinaos/internal/bus"

// ServiceStatusKind is the canonical status enum every service reports
// through, replacing the source's ad-hoc vendor strings ("online",
// "RUNNING") per spec.md §9.
type ServiceStatusKind string

const (
	StatusInitializing ServiceStatusKind = "INITIALIZING"
	StatusRunning       ServiceStatusKind = "RUNNING"
	StatusDegraded      ServiceStatusKind = "DEGRADED"
	StatusStopped       ServiceStatusKind = "STOPPED"
	StatusError         ServiceStatusKind = "ERROR"
)

// vendorStatusAliases maps free-form strings adapters or legacy producers
// might emit onto the canonical enum, per spec.md §4.2 "Required
// transformations ... Coerce vendor status strings".
var vendorStatusAliases = map[string]ServiceStatusKind{
	"online":       StatusRunning,
	"RUNNING":      StatusRunning,
	"running":      StatusRunning,
	"ready":        StatusRunning,
	"starting":     StatusInitializing,
	"initializing": StatusInitializing,
	"degraded":     StatusDegraded,
	"offline":      StatusStopped,
	"stopped":      StatusStopped,
	"failed":       StatusError,
	"error":        StatusError,
}

// CoerceStatus maps a vendor-reported status string to the canonical
// ServiceStatusKind enum. Unknown strings pass through as StatusError so a
// producer bug surfaces loudly rather than being silently dropped.
func CoerceStatus(raw string) ServiceStatusKind {
	if canonical, ok := vendorStatusAliases[raw]; ok {
		return canonical
	}
	for _, known := range []ServiceStatusKind{StatusInitializing, StatusRunning, StatusDegraded, StatusStopped, StatusError} {
		if raw == string(known) {
			return known
		}
	}
	return StatusError
}

// ServiceStatusPayload is the one event every service lifecycle transition
// emits (spec.md §4.3 "emits one SERVICE_STATUS event"); it is also how
// HandlerError, LifecycleError, and AdapterError surface to the bus (spec.md
// §7 "Propagation policy").
type ServiceStatusPayload struct {
	BaseEvent
	Service string            `json:"service"`
	Status  ServiceStatusKind `json:"status"`
	Message string            `json:"message,omitempty"`
}

func (p *ServiceStatusPayload) EventTopic() bus.Topic { return ServiceStatusTopic }

// SystemShutdownRequestPayload is published by the `reset` command; the main
// loop handles restart (spec.md §6).
type SystemShutdownRequestPayload struct {
	BaseEvent
	Reason string `json:"reason,omitempty"`
}

func (p *SystemShutdownRequestPayload) EventTopic() bus.Topic { return SystemShutdownRequest }

// DebugLevelPayload adjusts logging for one component (spec.md §6
// `debug level <component> <level>`).
type DebugLevelPayload struct {
	BaseEvent
	Component string `json:"component"`
	Level     string `json:"level"`
}

func (p *DebugLevelPayload) EventTopic() bus.Topic { return DebugLevelTopic }
