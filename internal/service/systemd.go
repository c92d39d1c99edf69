//go:build linux

package service

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// newPlatformManager creates the platform-specific manager
func newPlatformManager() (Manager, error) {
	return NewSystemdManager()
}

// systemdUnitDir is where generated unit files are written.
var systemdUnitDir = "/etc/systemd/system"

// SystemdManager manages systemd services on Linux.
type SystemdManager struct {
	unitDir string
}

// NewSystemdManager creates a new systemd manager
func NewSystemdManager() (*SystemdManager, error) {
	if _, err := exec.LookPath("systemctl"); err != nil {
		return nil, fmt.Errorf("systemctl not found: %w", err)
	}
	return &SystemdManager{unitDir: systemdUnitDir}, nil
}

func (m *SystemdManager) unitPath(name string) string {
	return filepath.Join(m.unitDir, name+".service")
}

// Register writes a generated unit file and enables the service when its
// start type is automatic. An existing unit file of the same name is a
// registration conflict, not something to overwrite.
func (m *SystemdManager) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return err
	}

	path := m.unitPath(def.Name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("register %s: %w", def.Name, ErrAlreadyExists)
	}

	if err := os.WriteFile(path, []byte(renderSystemdUnit(def)), 0644); err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("register %s: %w", def.Name, ErrPermissionDenied)
		}
		return fmt.Errorf("failed to write unit file: %w", err)
	}

	if err := m.systemctl("daemon-reload"); err != nil {
		return err
	}

	if def.StartType == StartAuto {
		return m.systemctl("enable", def.Name+".service")
	}
	return nil
}

// Query returns the registered configuration and current state.
func (m *SystemdManager) Query(name string) (Info, error) {
	if _, err := os.Stat(m.unitPath(name)); err != nil {
		return Info{Name: name}, fmt.Errorf("query %s: %w", name, ErrNotFound)
	}

	info := Info{Name: name}
	cmd := exec.Command("systemctl", "show", name+".service",
		"--property=Description,ActiveState,MainPID,UnitFileState,Restart,RestartUSec,StartLimitIntervalUSec,ExecStart,Environment,WorkingDirectory")
	output, err := cmd.Output()
	if err != nil {
		return info, fmt.Errorf("failed to query service: %w", err)
	}

	parseSystemdShow(string(output), &info)
	return info, nil
}

// SetRestartPolicy rewrites the unit file with the new policy and
// reloads the daemon. systemd has no separate recovery-policy store.
func (m *SystemdManager) SetRestartPolicy(name string, policy RestartPolicy) error {
	info, err := m.Query(name)
	if err != nil {
		return err
	}

	def := definitionFromInfo(info, policy)
	if err := os.WriteFile(m.unitPath(name), []byte(renderSystemdUnit(def)), 0644); err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("set restart policy: %w", ErrPermissionDenied)
		}
		return fmt.Errorf("failed to rewrite unit file: %w", err)
	}

	return m.systemctl("daemon-reload")
}

// Start starts the service.
func (m *SystemdManager) Start(name string) error {
	return m.systemctl("start", name+".service")
}

// Stop stops the service.
func (m *SystemdManager) Stop(name string) error {
	return m.systemctl("stop", name+".service")
}

// Restart restarts the service.
func (m *SystemdManager) Restart(name string) error {
	return m.systemctl("restart", name+".service")
}

// Delete stops the service, removes the unit file and reloads the daemon.
func (m *SystemdManager) Delete(name string) error {
	m.systemctl("stop", name+".service")
	m.systemctl("disable", name+".service")

	if err := os.Remove(m.unitPath(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("delete %s: %w", name, ErrNotFound)
		}
		return fmt.Errorf("failed to remove unit file: %w", err)
	}
	return m.systemctl("daemon-reload")
}

// Status returns the current status of the service.
func (m *SystemdManager) Status(name string) (string, error) {
	output, _ := exec.Command("systemctl", "is-active", name+".service").Output()

	switch strings.TrimSpace(string(output)) {
	case "active":
		return StatusRunning, nil
	case "inactive":
		return StatusStopped, nil
	case "failed":
		return StatusFailed, nil
	default:
		return StatusUnknown, nil
	}
}

// systemctl runs systemctl and classifies failures onto the sentinel
// errors, keeping the OS message when no sentinel applies.
func (m *SystemdManager) systemctl(args ...string) error {
	output, err := exec.Command("systemctl", args...).CombinedOutput()
	if err == nil {
		return nil
	}

	out := strings.TrimSpace(string(output))
	if cerr := classifySystemctlError(out); cerr != nil {
		return fmt.Errorf("systemctl %s: %w", args[0], cerr)
	}
	return fmt.Errorf("systemctl %s failed: %s", args[0], out)
}
