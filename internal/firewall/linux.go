//go:build linux

package firewall

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// newPlatformManager creates the platform-specific manager
func newPlatformManager() (Manager, error) {
	return NewIptablesManager()
}

// IptablesManager manages inbound rules on the INPUT chain through
// iptables.
type IptablesManager struct{}

// NewIptablesManager creates a new iptables firewall manager
func NewIptablesManager() (*IptablesManager, error) {
	if _, err := exec.LookPath("iptables"); err != nil {
		return nil, fmt.Errorf("iptables not found: %w", err)
	}
	return &IptablesManager{}, nil
}

// ruleSpec is the rule in iptables argument form, shared by the check,
// append and delete commands.
func ruleSpec(rule Rule) []string {
	return []string{
		"INPUT",
		"-p", string(rule.Protocol),
		"--dport", strconv.Itoa(int(rule.Port)),
		"-j", "ACCEPT",
	}
}

// EnsureInbound appends an accept rule unless an equivalent rule is
// already present (`iptables -C` probe).
func (m *IptablesManager) EnsureInbound(rule Rule) error {
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

	return m.iptables(append([]string{"-A"}, ruleSpec(rule)...)...)
}

// Exists reports whether an equivalent rule is already present.
func (m *IptablesManager) Exists(rule Rule) (bool, error) {
	// -C exits 0 when the rule exists, 1 when it does not.
	output, err := exec.Command("iptables", append([]string{"-C"}, ruleSpec(rule)...)...).CombinedOutput()
	if err == nil {
		return true, nil
	}

	out := string(output)
	if strings.Contains(out, "does not exist") || strings.Contains(out, "No chain/target/match") || out == "" {
		return false, nil
	}
	if strings.Contains(out, "Permission denied") {
		return false, fmt.Errorf("iptables: %w", ErrPermissionDenied)
	}
	return false, nil
}

// Remove deletes the rule. Removing an absent rule is not an error.
func (m *IptablesManager) Remove(rule Rule) error {
	exists, err := m.Exists(rule)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	return m.iptables(append([]string{"-D"}, ruleSpec(rule)...)...)
}

// iptables runs iptables, keeping the OS message on failure.
func (m *IptablesManager) iptables(args ...string) error {
	output, err := exec.Command("iptables", args...).CombinedOutput()
	if err == nil {
		return nil
	}

	out := strings.TrimSpace(string(output))
	if strings.Contains(out, "Permission denied") {
		return fmt.Errorf("iptables: %w", ErrPermissionDenied)
	}
	return fmt.Errorf("iptables failed: %s", out)
}
