package firewall

import (
	"errors"
	"testing"
)

func TestFake_EnsureInboundIdempotent(t *testing.T) {
	f := NewFake()
	rule := Rule{Name: "Warden Inbound", Port: 8000, Protocol: TCP}

	if err := f.EnsureInbound(rule); err != nil {
		t.Fatalf("first ensure failed: %v", err)
	}
	if err := f.EnsureInbound(rule); err != nil {
		t.Fatalf("second ensure failed: %v", err)
	}

	if n := f.RuleCount(); n != 1 {
		t.Fatalf("expected exactly one rule, got %d", n)
	}

	exists, err := f.Exists(rule)
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if !exists {
		t.Error("expected rule to exist")
	}
}

func TestFake_DistinctRules(t *testing.T) {
	f := NewFake()

	if err := f.EnsureInbound(Rule{Port: 8000, Protocol: TCP}); err != nil {
		t.Fatalf("ensure tcp failed: %v", err)
	}
	if err := f.EnsureInbound(Rule{Port: 8000, Protocol: UDP}); err != nil {
		t.Fatalf("ensure udp failed: %v", err)
	}
	if err := f.EnsureInbound(Rule{Port: 9000, Protocol: TCP}); err != nil {
		t.Fatalf("ensure second port failed: %v", err)
	}

	if n := f.RuleCount(); n != 3 {
		t.Fatalf("expected 3 rules, got %d", n)
	}
}

func TestFake_RemoveAbsentRule(t *testing.T) {
	f := NewFake()

	if err := f.Remove(Rule{Port: 8000, Protocol: TCP}); err != nil {
		t.Fatalf("removing absent rule should not fail: %v", err)
	}
}

func TestFake_Remove(t *testing.T) {
	f := NewFake()
	rule := Rule{Port: 8000, Protocol: TCP}

	if err := f.EnsureInbound(rule); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if err := f.Remove(rule); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	exists, _ := f.Exists(rule)
	if exists {
		t.Error("rule still present after remove")
	}
}

func TestFake_FailWith(t *testing.T) {
	f := NewFake()
	f.FailWith = ErrPermissionDenied

	err := f.EnsureInbound(Rule{Port: 8000, Protocol: TCP})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestValidateRule(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{"valid tcp", Rule{Port: 8000, Protocol: TCP}, false},
		{"valid udp", Rule{Port: 53, Protocol: UDP}, false},
		{"zero port", Rule{Port: 0, Protocol: TCP}, true},
		{"bad protocol", Rule{Port: 8000, Protocol: "icmp"}, true},
	}
	for _, tt := range tests {
		err := validateRule(tt.rule)
		if tt.wantErr && err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
	}
}
