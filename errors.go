package driftline

import (
	"errors"
	"fmt"
)

var (
	// ErrSimulationFailed is returned when a request fails internally. The session's
	// state and history are left as they were before the request.
	ErrSimulationFailed = errors.New("simulation failed")

	// ErrNoHostedBackend is returned when the AI path is forced without a hosted backend.
	ErrNoHostedBackend = errors.New("no hosted backend configured")

	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownScenario = errors.New("unknown scenario")
)

// ConfigurationError reports a persona or scenario record that is missing a required
// field or carries an invalid value.
type ConfigurationError struct {
	Record string // persona or scenario name, or the source path
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config %s: %s", e.Record, e.Reason)
	}
	return fmt.Sprintf("config %s: %s: %s", e.Record, e.Field, e.Reason)
}

// BackendError wraps a hosted or remote generation failure.
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
