//go:build windows

package firewall

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// newPlatformManager creates the platform-specific manager
func newPlatformManager() (Manager, error) {
	return NewNetshManager()
}

// NetshManager manages Windows Defender Firewall rules through
// `netsh advfirewall`.
type NetshManager struct{}

// NewNetshManager creates a new netsh firewall manager
func NewNetshManager() (*NetshManager, error) {
	return &NetshManager{}, nil
}

// EnsureInbound adds an inbound allow-rule unless an equivalent rule is
// already present.
func (m *NetshManager) EnsureInbound(rule Rule) error {
	if err := validateRule(rule); err != nil {
		return err
	}

	exists, err := m.Exists(rule)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	return m.netsh("advfirewall", "firewall", "add", "rule",
		"name="+ruleName(rule),
		"dir=in", "action=allow",
		"protocol="+strings.ToUpper(string(rule.Protocol)),
		"localport="+strconv.Itoa(int(rule.Port)))
}

// Exists reports whether an equivalent rule is already present.
func (m *NetshManager) Exists(rule Rule) (bool, error) {
	output, err := exec.Command("netsh", "advfirewall", "firewall", "show", "rule",
		"name="+ruleName(rule)).CombinedOutput()
	if err != nil {
		// netsh exits non-zero when no rule matches the name.
		if strings.Contains(string(output), "No rules match") {
			return false, nil
		}
		return false, fmt.Errorf("netsh show rule failed: %s", strings.TrimSpace(string(output)))
	}
	return true, nil
}

// Remove deletes the rule. Removing an absent rule is not an error.
func (m *NetshManager) Remove(rule Rule) error {
	err := m.netsh("advfirewall", "firewall", "delete", "rule", "name="+ruleName(rule))
	if err != nil && strings.Contains(err.Error(), "No rules match") {
		return nil
	}
	return err
}

// ruleName gives unnamed rules a stable, derived name so Exists and
// Remove can find what EnsureInbound added.
func ruleName(rule Rule) string {
	if rule.Name != "" {
		return rule.Name
	}
	return fmt.Sprintf("Inbound %s %d", strings.ToUpper(string(rule.Protocol)), rule.Port)
}

// netsh runs netsh, keeping the OS message on failure.
func (m *NetshManager) netsh(args ...string) error {
	output, err := exec.Command("netsh", args...).CombinedOutput()
	if err == nil {
		return nil
	}

	out := strings.TrimSpace(string(output))
	if strings.Contains(out, "requires elevation") || strings.Contains(out, "Access is denied") {
		return fmt.Errorf("netsh: %w", ErrPermissionDenied)
	}
	return fmt.Errorf("netsh failed: %s", out)
}
