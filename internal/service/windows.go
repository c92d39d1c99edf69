//go:build windows

package service

import (
	"fmt"
	"os/exec"
	"strings"
)

// newPlatformManager creates the platform-specific manager
func newPlatformManager() (Manager, error) {
	return NewWindowsManager()
}

// WindowsManager manages Windows services through sc.exe.
type WindowsManager struct{}

// NewWindowsManager creates a new Windows service manager
func NewWindowsManager() (*WindowsManager, error) {
	return &WindowsManager{}, nil
}

// Register creates the service entry with `sc create` and applies the
// description and environment block. The restart policy is applied
// separately through SetRestartPolicy.
func (m *WindowsManager) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return err
	}

	if err := m.sc(scCreateArgs(def)...); err != nil {
		return err
	}

	if def.Description != "" {
		if err := m.sc("description", def.Name, def.Description); err != nil {
			return err
		}
	}

	if len(def.Environment) > 0 {
		if err := m.setEnvironment(def.Name, def.Environment); err != nil {
			return err
		}
	}

	return nil
}

// setEnvironment writes the service Environment multi-string value. The
// SCM forwards it into the service process environment on every start.
func (m *WindowsManager) setEnvironment(name string, env map[string]string) error {
	var entries []string
	for _, k := range sortedKeys(env) {
		entries = append(entries, k+"="+env[k])
	}

	keyPath := `HKLM\SYSTEM\CurrentControlSet\Services\` + name
	cmd := exec.Command("reg", "add", keyPath,
		"/v", "Environment", "/t", "REG_MULTI_SZ",
		"/d", strings.Join(entries, `\0`), "/f")
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to set service environment: %s", strings.TrimSpace(string(output)))
	}
	return nil
}

// Query returns the registered configuration and current state.
func (m *WindowsManager) Query(name string) (Info, error) {
	info := Info{Name: name}

	output, err := exec.Command("sc", "qc", name).CombinedOutput()
	if err != nil {
		if cerr := classifyScError(string(output)); cerr != nil {
			return info, fmt.Errorf("query %s: %w", name, cerr)
		}
		return info, fmt.Errorf("failed to query service: %s", strings.TrimSpace(string(output)))
	}
	parseScQC(string(output), &info)

	if output, err := exec.Command("sc", "qfailure", name).CombinedOutput(); err == nil {
		parseScFailure(string(output), &info.Restart)
	}

	status, _ := m.Status(name)
	info.Status = status

	return info, nil
}

// SetRestartPolicy configures the service recovery actions.
func (m *WindowsManager) SetRestartPolicy(name string, policy RestartPolicy) error {
	return m.sc(scFailureArgs(name, policy)...)
}

// Start starts the service.
func (m *WindowsManager) Start(name string) error {
	return m.sc("start", name)
}

// Stop stops the service.
func (m *WindowsManager) Stop(name string) error {
	return m.sc("stop", name)
}

// Restart restarts the service.
func (m *WindowsManager) Restart(name string) error {
	// Stop errors are ignored: the service may already be stopped.
	m.Stop(name)
	return m.Start(name)
}

// Delete removes the service entry.
func (m *WindowsManager) Delete(name string) error {
	return m.sc("delete", name)
}

// Status returns the current status of the service.
func (m *WindowsManager) Status(name string) (string, error) {
	output, err := exec.Command("sc", "query", name).CombinedOutput()
	if err != nil {
		if cerr := classifyScError(string(output)); cerr != nil {
			return StatusUnknown, fmt.Errorf("query %s: %w", name, cerr)
		}
		return StatusUnknown, nil
	}

	out := string(output)
	switch {
	case strings.Contains(out, "RUNNING"):
		return StatusRunning, nil
	case strings.Contains(out, "STOPPED"):
		return StatusStopped, nil
	}
	return StatusUnknown, nil
}

// sc runs sc.exe and classifies failures onto the sentinel errors,
// keeping the OS message when no sentinel applies.
func (m *WindowsManager) sc(args ...string) error {
	output, err := exec.Command("sc", args...).CombinedOutput()
	if err == nil {
		return nil
	}

	out := strings.TrimSpace(string(output))
	if cerr := classifyScError(out); cerr != nil {
		return fmt.Errorf("sc %s: %w", args[0], cerr)
	}
	return fmt.Errorf("sc %s failed: %s", args[0], out)
}
