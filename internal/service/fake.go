package service

import (
	"fmt"
	"sync"
)

// Fake is an in-memory Manager used by tests of packages that depend on
// the service capability. It mirrors the OS semantics the real backends
// surface: duplicate registration, unknown names, path validation.
type Fake struct {
	mu       sync.Mutex
	services map[string]*fakeEntry

	// ValidatePaths enables ExecPath existence checks, off by default so
	// tests can register definitions without fixture binaries.
	ValidatePaths bool

	// FailWith, when set, is returned by every mutating call. Simulates
	// an unprivileged or broken OS tool.
	FailWith error
}

type fakeEntry struct {
	def    Definition
	status string
}

var _ Manager = (*Fake)(nil)

// NewFake creates an empty fake service manager.
func NewFake() *Fake {
	return &Fake{services: make(map[string]*fakeEntry)}
}

// Register creates the service entry.
func (f *Fake) Register(def Definition) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailWith != nil {
		return f.FailWith
	}
	if f.ValidatePaths {
		if err := validateDefinition(def); err != nil {
			return err
		}
	} else if def.Name == "" {
		return fmt.Errorf("service name is required")
	}

	if _, ok := f.services[def.Name]; ok {
		return fmt.Errorf("register %s: %w", def.Name, ErrAlreadyExists)
	}

	f.services[def.Name] = &fakeEntry{def: def, status: StatusStopped}
	return nil
}

// Query returns the registered definition and current state.
func (f *Fake) Query(name string) (Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.services[name]
	if !ok {
		return Info{Name: name}, fmt.Errorf("query %s: %w", name, ErrNotFound)
	}

	env := make(map[string]string, len(e.def.Environment))
	for k, v := range e.def.Environment {
		env[k] = v
	}

	return Info{
		Name:        e.def.Name,
		DisplayName: e.def.DisplayName,
		Description: e.def.Description,
		ExecPath:    e.def.ExecPath,
		Args:        append([]string(nil), e.def.Args...),
		WorkingDir:  e.def.WorkingDir,
		Environment: env,
		Status:      e.status,
		StartType:   e.def.StartType,
		Restart:     e.def.Restart,
	}, nil
}

// SetRestartPolicy configures automatic restart after failure.
func (f *Fake) SetRestartPolicy(name string, policy RestartPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailWith != nil {
		return f.FailWith
	}

	e, ok := f.services[name]
	if !ok {
		return fmt.Errorf("set restart policy: %w", ErrNotFound)
	}
	e.def.Restart = policy
	return nil
}

// Start starts the service.
func (f *Fake) Start(name string) error {
	return f.setStatus(name, StatusRunning)
}

// Stop stops the service.
func (f *Fake) Stop(name string) error {
	return f.setStatus(name, StatusStopped)
}

// Restart restarts the service.
func (f *Fake) Restart(name string) error {
	return f.setStatus(name, StatusRunning)
}

// Status returns the current status of the service.
func (f *Fake) Status(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.services[name]
	if !ok {
		return StatusUnknown, fmt.Errorf("status %s: %w", name, ErrNotFound)
	}
	return e.status, nil
}

// Delete removes the service entry.
func (f *Fake) Delete(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailWith != nil {
		return f.FailWith
	}
	if _, ok := f.services[name]; !ok {
		return fmt.Errorf("delete %s: %w", name, ErrNotFound)
	}
	delete(f.services, name)
	return nil
}

// Registered reports whether a service name is registered.
func (f *Fake) Registered(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.services[name]
	return ok
}

func (f *Fake) setStatus(name, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailWith != nil {
		return f.FailWith
	}

	e, ok := f.services[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	e.status = status
	return nil
}
