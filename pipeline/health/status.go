// Package health tracks per-component health and exposes the liveness and
// readiness surface consumed by orchestrators.
package health

import "time"

type State int

const (
	StateHealthy State = iota
	StateDegraded
	StateUnhealthy
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnhealthy:
		return "unhealthy"
	}
	return "unknown"
}

// Status is a point-in-time health report for one component.
type Status struct {
	Component string    `json:"component"`
	State     State     `json:"-"`
	StateName string    `json:"state"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewHealthy(component, message string) Status {
	return Status{Component: component, State: StateHealthy, StateName: StateHealthy.String(), Message: message, Timestamp: time.Now()}
}

func NewDegraded(component, message string) Status {
	return Status{Component: component, State: StateDegraded, StateName: StateDegraded.String(), Message: message, Timestamp: time.Now()}
}

func NewUnhealthy(component, message string) Status {
	return Status{Component: component, State: StateUnhealthy, StateName: StateUnhealthy.String(), Message: message, Timestamp: time.Now()}
}
