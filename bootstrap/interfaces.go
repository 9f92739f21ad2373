// Package bootstrap wires the catalog daemon's services together and runs
// them in dependency order.
package bootstrap

import (
	"context"
	"fmt"
	"time"
)

// Service is a component started and stopped by the lifecycle manager.
type Service interface {
	// Start brings the service up. It must return once the service is ready.
	Start(ctx context.Context) error

	// Stop releases everything Start acquired.
	Stop(ctx context.Context) error

	// Health reports the current state of the service.
	Health(ctx context.Context) (HealthStatus, error)

	// Name returns the service name
	Name() string
}

// HealthStatus represents the health status of a service
type HealthStatus struct {
	State     HealthState    `json:"state"`
	Message   string         `json:"message,omitempty"`
	LastCheck time.Time      `json:"last_check,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// HealthState represents the health state of a service
type HealthState string

const (
	HealthUnknown   HealthState = "unknown"
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
	HealthDisabled  HealthState = "disabled"
	HealthStopped   HealthState = "stopped"
)

// Lifecycle event types
const (
	EventRegistered     = "service.registered"
	EventStarting       = "service.starting"
	EventStarted        = "service.started"
	EventStartFailed    = "service.start_failed"
	EventStopping       = "service.stopping"
	EventStopped        = "service.stopped"
	EventStopFailed     = "service.stop_failed"
	EventLifecycleUp    = "lifecycle.started"
	EventLifecycleDown  = "lifecycle.stopped"
	EventConfigReloaded = "config.reloaded"
)

// LifecycleEvent represents an event in the service lifecycle
type LifecycleEvent struct {
	Type      string         `json:"type"`
	Service   string         `json:"service,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Error     error          `json:"error,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// ApplicationError represents an error that occurred during application lifecycle
type ApplicationError struct {
	Operation string
	Service   string
	Err       error
}

func (e *ApplicationError) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("%s failed for service %s: %v", e.Operation, e.Service, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
}

func (e *ApplicationError) Unwrap() error {
	return e.Err
}
