package service

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Sentinel errors classified from the OS service manager output. Anything
// the OS reports that does not map onto one of these is surfaced verbatim.
var (
	ErrAlreadyExists    = errors.New("service already exists")
	ErrNotFound         = errors.New("service not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidPath      = errors.New("executable path does not exist")
)

// StartType controls when the OS starts the service.
type StartType string

const (
	StartAuto     StartType = "auto"
	StartManual   StartType = "manual"
	StartDisabled StartType = "disabled"
)

// RestartAction is what the OS does after the service process exits
// unexpectedly.
type RestartAction string

const (
	ActionNone    RestartAction = "none"
	ActionRestart RestartAction = "restart"
)

// RestartPolicy configures automatic restart after failure. ResetInterval
// is how long the service must run before the OS resets its failure
// counter; Delay is the wait before the restart attempt.
type RestartPolicy struct {
	ResetInterval time.Duration `json:"reset_interval"`
	Action        RestartAction `json:"action"`
	Delay         time.Duration `json:"delay"`
}

// Definition describes a service to register. It is created once at
// registration time and owned by the OS service manager afterwards.
type Definition struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Description string            `json:"description"`
	ExecPath    string            `json:"exec_path"`
	Args        []string          `json:"args"`
	WorkingDir  string            `json:"working_dir,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	StartType   StartType         `json:"start_type"`
	Restart     RestartPolicy     `json:"restart"`
}

// Info is what the OS reports back for a registered service.
type Info struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name"`
	Description string            `json:"description"`
	ExecPath    string            `json:"exec_path"`
	Args        []string          `json:"args"`
	WorkingDir  string            `json:"working_dir,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	Status      string            `json:"status"`
	PID         int               `json:"pid,omitempty"`
	StartType   StartType         `json:"start_type"`
	Restart     RestartPolicy     `json:"restart"`
}

// definitionFromInfo rebuilds a Definition from what the OS reports.
// Used by backends that rewrite their registration file on a policy
// change: everything the register step wrote must survive the rewrite.
func definitionFromInfo(info Info, policy RestartPolicy) Definition {
	return Definition{
		Name:        info.Name,
		DisplayName: info.DisplayName,
		Description: info.Description,
		ExecPath:    info.ExecPath,
		Args:        info.Args,
		WorkingDir:  info.WorkingDir,
		Environment: info.Environment,
		StartType:   info.StartType,
		Restart:     policy,
	}
}

// Manager is the capability interface over the OS service registry.
type Manager interface {
	// Register creates the OS-level service entry.
	Register(def Definition) error

	// Query returns the registered definition and current state.
	Query(name string) (Info, error)

	// SetRestartPolicy configures automatic restart after failure.
	SetRestartPolicy(name string, policy RestartPolicy) error

	// Start starts the service. Restart-on-crash is then the OS
	// service manager's job, per the registered policy.
	Start(name string) error

	// Stop stops the service.
	Stop(name string) error

	// Restart restarts the service.
	Restart(name string) error

	// Status returns the current status of the service.
	Status(name string) (string, error)

	// Delete removes the service entry.
	Delete(name string) error
}

// NewManager creates a service manager for the current OS.
func NewManager() (Manager, error) {
	return newPlatformManager()
}

// Service status values.
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
	StatusFailed  = "failed"
	StatusUnknown = "unknown"
)

// validateDefinition rejects definitions the OS would accept but could
// never start.
func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if def.ExecPath == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if _, err := os.Stat(def.ExecPath); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPath, def.ExecPath)
	}
	return nil
}
