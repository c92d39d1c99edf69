//go:build darwin

package service

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// newPlatformManager creates the platform-specific manager
func newPlatformManager() (Manager, error) {
	return NewLaunchctlManager()
}

// launchdDaemonDir is where generated plists are written.
var launchdDaemonDir = "/Library/LaunchDaemons"

// LaunchctlManager manages launchd services on macOS.
type LaunchctlManager struct {
	daemonDir string
}

// NewLaunchctlManager creates a new launchctl manager
func NewLaunchctlManager() (*LaunchctlManager, error) {
	return &LaunchctlManager{daemonDir: launchdDaemonDir}, nil
}

func (m *LaunchctlManager) plistPath(name string) string {
	return filepath.Join(m.daemonDir, name+".plist")
}

// Register writes a generated plist and loads it. The restart policy is
// part of the plist (KeepAlive/ThrottleInterval), so Register applies it
// in one step; SetRestartPolicy rewrites the same file.
func (m *LaunchctlManager) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return err
	}

	path := m.plistPath(def.Name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("register %s: %w", def.Name, ErrAlreadyExists)
	}

	if err := os.WriteFile(path, []byte(renderLaunchdPlist(def)), 0644); err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("register %s: %w", def.Name, ErrPermissionDenied)
		}
		return fmt.Errorf("failed to write plist: %w", err)
	}

	return m.launchctl("load", path)
}

// Query returns the registered configuration and current state.
func (m *LaunchctlManager) Query(name string) (Info, error) {
	if _, err := os.Stat(m.plistPath(name)); err != nil {
		return Info{Name: name}, fmt.Errorf("query %s: %w", name, ErrNotFound)
	}

	info := Info{Name: name, DisplayName: name}

	output, err := exec.Command("launchctl", "list", name).Output()
	if err != nil {
		info.Status = StatusStopped
		return info, nil
	}

	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "\"PID\"") {
			parts := strings.Split(line, "=")
			if len(parts) == 2 {
				pidStr := strings.TrimSpace(strings.Trim(parts[1], ";"))
				if pid, err := strconv.Atoi(pidStr); err == nil {
					info.PID = pid
				}
			}
		}
	}

	if info.PID > 0 {
		info.Status = StatusRunning
	} else {
		info.Status = StatusStopped
	}
	return info, nil
}

// SetRestartPolicy rewrites the plist with the new policy and reloads it.
func (m *LaunchctlManager) SetRestartPolicy(name string, policy RestartPolicy) error {
	path := m.plistPath(name)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("set restart policy: %w", ErrNotFound)
	}

	current, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read plist: %w", err)
	}
	def, err := definitionFromPlist(name, string(current), policy)
	if err != nil {
		return fmt.Errorf("set restart policy: %w", err)
	}

	// launchd reads the plist only at load time.
	m.launchctl("unload", path)

	if err := os.WriteFile(path, []byte(renderLaunchdPlist(def)), 0644); err != nil {
		return fmt.Errorf("failed to rewrite plist: %w", err)
	}

	return m.launchctl("load", path)
}

// Start starts the service.
func (m *LaunchctlManager) Start(name string) error {
	return m.launchctl("start", name)
}

// Stop stops the service.
func (m *LaunchctlManager) Stop(name string) error {
	return m.launchctl("stop", name)
}

// Restart restarts the service.
func (m *LaunchctlManager) Restart(name string) error {
	// Stop errors are ignored: the service may already be stopped.
	m.Stop(name)
	return m.Start(name)
}

// Delete unloads the service and removes its plist.
func (m *LaunchctlManager) Delete(name string) error {
	path := m.plistPath(name)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("delete %s: %w", name, ErrNotFound)
	}

	m.launchctl("unload", path)
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove plist: %w", err)
	}
	return nil
}

// Status returns the current status of the service.
func (m *LaunchctlManager) Status(name string) (string, error) {
	output, err := exec.Command("launchctl", "list", name).Output()
	if err != nil {
		return StatusStopped, nil
	}

	if strings.Contains(string(output), "\"PID\"") {
		return StatusRunning, nil
	}
	return StatusStopped, nil
}

// launchctl runs launchctl, keeping the OS message on failure.
func (m *LaunchctlManager) launchctl(args ...string) error {
	output, err := exec.Command("launchctl", args...).CombinedOutput()
	if err == nil {
		return nil
	}

	out := strings.TrimSpace(string(output))
	if strings.Contains(out, "Could not find") {
		return fmt.Errorf("launchctl %s: %w", args[0], ErrNotFound)
	}
	return fmt.Errorf("launchctl %s failed: %s", args[0], out)
}
