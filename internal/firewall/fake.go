package firewall

import "sync"

// Fake is an in-memory Manager used by tests of packages that depend on
// the firewall capability.
type Fake struct {
	mu    sync.Mutex
	rules []Rule

	// FailWith, when set, is returned by every mutating call.
	FailWith error
}

var _ Manager = (*Fake)(nil)

// NewFake creates an empty fake firewall manager.
func NewFake() *Fake {
	return &Fake{}
}

// EnsureInbound adds the rule when no equivalent rule exists. Exactly one
// rule results no matter how often it is called.
func (f *Fake) EnsureInbound(rule Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailWith != nil {
		return f.FailWith
	}
	if err := validateRule(rule); err != nil {
		return err
	}

	for _, r := range f.rules {
		if r.Port == rule.Port && r.Protocol == rule.Protocol {
			return nil
		}
	}
	f.rules = append(f.rules, rule)
	return nil
}

// Exists reports whether an equivalent rule is present.
func (f *Fake) Exists(rule Rule) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range f.rules {
		if r.Port == rule.Port && r.Protocol == rule.Protocol {
			return true, nil
		}
	}
	return false, nil
}

// Remove deletes the rule. Removing an absent rule is not an error.
func (f *Fake) Remove(rule Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailWith != nil {
		return f.FailWith
	}

	for i, r := range f.rules {
		if r.Port == rule.Port && r.Protocol == rule.Protocol {
			f.rules = append(f.rules[:i], f.rules[i+1:]...)
			return nil
		}
	}
	return nil
}

// RuleCount returns the number of rules currently in the table.
func (f *Fake) RuleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rules)
}
