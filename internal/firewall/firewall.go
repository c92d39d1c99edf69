package firewall

import (
	"errors"
	"fmt"
)

// Errors reported by firewall backends.
var (
	ErrUnsupported      = errors.New("firewall management not supported on this platform")
	ErrPermissionDenied = errors.New("permission denied")
)

// Protocol is the transport protocol of an inbound rule.
type Protocol string

const (
	TCP Protocol = "tcp"
	UDP Protocol = "udp"
)

// Rule is an inbound allow-rule for a single port.
type Rule struct {
	Name     string   `json:"name"`
	Port     uint16   `json:"port"`
	Protocol Protocol `json:"protocol"`
}

// Manager is the capability interface over the OS firewall rule table.
type Manager interface {
	// EnsureInbound adds an inbound allow-rule for the port. Idempotent:
	// when an equivalent rule already exists exactly one rule remains and
	// no error is returned.
	EnsureInbound(rule Rule) error

	// Exists reports whether an equivalent rule is already present.
	Exists(rule Rule) (bool, error)

	// Remove deletes the rule. Removing an absent rule is not an error.
	Remove(rule Rule) error
}

// NewManager creates a firewall manager for the current OS.
func NewManager() (Manager, error) {
	return newPlatformManager()
}

// validateRule rejects rules no backend could apply.
func validateRule(rule Rule) error {
	if rule.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if rule.Protocol != TCP && rule.Protocol != UDP {
		return fmt.Errorf("unsupported protocol %q", rule.Protocol)
	}
	return nil
}
