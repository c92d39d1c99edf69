package supervisor

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/warden/warden/internal/firewall"
	"github.com/warden/warden/internal/process"
	"github.com/warden/warden/internal/service"
	"github.com/warden/warden/internal/storage"
)

type recordedEvent struct {
	msgType string
	payload interface{}
}

type fakeSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (s *fakeSink) BroadcastJSON(msgType string, payload interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedEvent{msgType: msgType, payload: payload})
}

func (s *fakeSink) byType(msgType string) []recordedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []recordedEvent
	for _, e := range s.events {
		if e.msgType == msgType {
			out = append(out, e)
		}
	}
	return out
}

func testPlan() Plan {
	return Plan{
		Definition: service.Definition{
			Name:        "PersistentRDP",
			DisplayName: "Persistent RDP Session",
			ExecPath:    `C:\Windows\System32\mstsc.exe`,
			Args:        []string{"/v:localhost", "/admin", "/noconsentprompt"},
			StartType:   service.StartAuto,
			Restart: service.RestartPolicy{
				Action:        service.ActionRestart,
				ResetInterval: 24 * time.Hour,
				Delay:         5 * time.Second,
			},
		},
		OpenFirewall: true,
		Rule:         firewall.Rule{Name: "Warden Inbound", Port: 8000, Protocol: firewall.TCP},
	}
}

func testStore(t *testing.T) *storage.Storage {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestProvision(t *testing.T) {
	services := service.NewFake()
	fw := firewall.NewFake()
	sink := &fakeSink{}
	sup := New(services, fw, nil, nil, sink)
	plan := testPlan()

	if err := sup.Provision(plan); err != nil {
		t.Fatalf("provision failed: %v", err)
	}

	if !services.Registered(plan.Definition.Name) {
		t.Error("service not registered")
	}
	status, err := services.Status(plan.Definition.Name)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status != service.StatusRunning {
		t.Errorf("expected running after provision, got %q", status)
	}
	if n := fw.RuleCount(); n != 1 {
		t.Errorf("expected one firewall rule, got %d", n)
	}

	info, err := services.Query(plan.Definition.Name)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if info.Restart.Action != service.ActionRestart {
		t.Errorf("restart policy not applied: %+v", info.Restart)
	}

	events := sink.byType("provision")
	if len(events) != 4 {
		t.Fatalf("expected 4 provision events, got %d", len(events))
	}
	wantSteps := []string{StepRegister, StepRestartPolicy, StepFirewall, StepStart}
	for i, e := range events {
		entry, ok := e.payload.(storage.JournalEntry)
		if !ok {
			t.Fatalf("event %d: unexpected payload %T", i, e.payload)
		}
		if entry.Step != wantSteps[i] {
			t.Errorf("event %d: expected step %q, got %q", i, wantSteps[i], entry.Step)
		}
		if !entry.OK {
			t.Errorf("event %d: step %q not ok: %s", i, entry.Step, entry.Detail)
		}
	}
}

func TestProvision_FirewallDisabled(t *testing.T) {
	services := service.NewFake()
	fw := firewall.NewFake()
	sup := New(services, fw, nil, nil, nil)

	plan := testPlan()
	plan.OpenFirewall = false

	if err := sup.Provision(plan); err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	if n := fw.RuleCount(); n != 0 {
		t.Errorf("expected no firewall rules, got %d", n)
	}
}

func TestProvision_AbortsAtFirstFailure(t *testing.T) {
	services := service.NewFake()
	fw := firewall.NewFake()
	fw.FailWith = firewall.ErrPermissionDenied
	store := testStore(t)
	sup := New(services, fw, store, nil, nil)
	plan := testPlan()

	err := sup.Provision(plan)
	if !errors.Is(err, firewall.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if !strings.Contains(err.Error(), StepFirewall) {
		t.Errorf("error should name the failed step: %v", err)
	}

	// Earlier steps stay applied, the start step never runs.
	if !services.Registered(plan.Definition.Name) {
		t.Error("register should have been applied before the failure")
	}
	status, _ := services.Status(plan.Definition.Name)
	if status != service.StatusStopped {
		t.Errorf("service should not have been started, got %q", status)
	}

	entries, err := store.Journal(10)
	if err != nil {
		t.Fatalf("journal read failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 journal entries, got %d", len(entries))
	}
	last := entries[len(entries)-1]
	if last.Step != StepFirewall || last.OK {
		t.Errorf("last entry should be the failed firewall step: %+v", last)
	}
	for _, e := range entries[:2] {
		if !e.OK {
			t.Errorf("entry %q should be ok: %+v", e.Step, e)
		}
	}
}

func TestProvision_NoFirewallManager(t *testing.T) {
	services := service.NewFake()
	store := testStore(t)
	sup := New(services, nil, store, nil, nil)
	plan := testPlan()

	err := sup.Provision(plan)
	if !errors.Is(err, firewall.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if !strings.Contains(err.Error(), StepFirewall) {
		t.Errorf("error should name the failed step: %v", err)
	}
	if !services.Registered(plan.Definition.Name) {
		t.Error("register should have been applied before the failure")
	}

	entries, err := store.Journal(10)
	if err != nil {
		t.Fatalf("journal read failed: %v", err)
	}
	last := entries[len(entries)-1]
	if last.Step != StepFirewall || last.OK {
		t.Errorf("last entry should be the failed firewall step: %+v", last)
	}
}

func TestDeprovision_NoFirewallManager(t *testing.T) {
	services := service.NewFake()
	sup := New(services, nil, nil, nil, nil)
	plan := testPlan()
	plan.OpenFirewall = false

	if err := sup.Provision(plan); err != nil {
		t.Fatalf("provision failed: %v", err)
	}

	// The rule cannot be removed without a manager, but the service
	// removal still goes through.
	plan.OpenFirewall = true
	if err := sup.Deprovision(plan); err != nil {
		t.Fatalf("deprovision failed: %v", err)
	}
	if services.Registered(plan.Definition.Name) {
		t.Error("service still registered")
	}
}

func TestProvision_RegisterFailure(t *testing.T) {
	services := service.NewFake()
	services.FailWith = service.ErrPermissionDenied
	fw := firewall.NewFake()
	sup := New(services, fw, nil, nil, nil)

	err := sup.Provision(testPlan())
	if !errors.Is(err, service.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if n := fw.RuleCount(); n != 0 {
		t.Errorf("no firewall rule should exist after register failure, got %d", n)
	}
}

func TestProvision_DuplicateService(t *testing.T) {
	services := service.NewFake()
	fw := firewall.NewFake()
	sup := New(services, fw, nil, nil, nil)
	plan := testPlan()

	if err := sup.Provision(plan); err != nil {
		t.Fatalf("first provision failed: %v", err)
	}
	err := sup.Provision(plan)
	if !errors.Is(err, service.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestProvision_SavesState(t *testing.T) {
	services := service.NewFake()
	fw := firewall.NewFake()
	store := testStore(t)
	sup := New(services, fw, store, nil, nil)
	plan := testPlan()

	if err := sup.Provision(plan); err != nil {
		t.Fatalf("provision failed: %v", err)
	}

	state, err := store.GetServiceState(plan.Definition.Name)
	if err != nil {
		t.Fatalf("state read failed: %v", err)
	}
	if !state.Provisioned {
		t.Error("state should be provisioned")
	}
	if state.Status != service.StatusRunning {
		t.Errorf("expected running state, got %q", state.Status)
	}
}

func TestDeprovision(t *testing.T) {
	services := service.NewFake()
	fw := firewall.NewFake()
	sup := New(services, fw, nil, nil, nil)
	plan := testPlan()

	if err := sup.Provision(plan); err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	if err := sup.Deprovision(plan); err != nil {
		t.Fatalf("deprovision failed: %v", err)
	}

	if services.Registered(plan.Definition.Name) {
		t.Error("service still registered")
	}
	if n := fw.RuleCount(); n != 0 {
		t.Errorf("firewall rule still present, got %d rules", n)
	}
}

func TestDeprovision_MissingService(t *testing.T) {
	services := service.NewFake()
	sup := New(services, firewall.NewFake(), nil, nil, nil)

	err := sup.Deprovision(testPlan())
	if !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	services := service.NewFake()
	sup := New(services, firewall.NewFake(), nil, nil, nil)
	plan := testPlan()

	if err := sup.Provision(plan); err != nil {
		t.Fatalf("provision failed: %v", err)
	}

	st, err := sup.Status(plan.Definition.Name)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if st.Service.Status != service.StatusRunning {
		t.Errorf("expected running, got %q", st.Service.Status)
	}
	if st.Process != nil {
		t.Error("no process snapshot expected from the fake")
	}
}

func TestStatus_UnknownService(t *testing.T) {
	sup := New(service.NewFake(), firewall.NewFake(), nil, nil, nil)

	_, err := sup.Status("ghost")
	if !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLifecycleActions(t *testing.T) {
	services := service.NewFake()
	sink := &fakeSink{}
	sup := New(services, firewall.NewFake(), nil, nil, sink)
	plan := testPlan()

	if err := sup.Provision(plan); err != nil {
		t.Fatalf("provision failed: %v", err)
	}

	name := plan.Definition.Name
	if err := sup.Stop(name); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	status, _ := services.Status(name)
	if status != service.StatusStopped {
		t.Errorf("expected stopped, got %q", status)
	}

	if err := sup.Start(name); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := sup.Restart(name); err != nil {
		t.Fatalf("restart failed: %v", err)
	}

	events := sink.byType("status")
	if len(events) != 3 {
		t.Errorf("expected 3 status events, got %d", len(events))
	}
}

func TestKill_NoInspector(t *testing.T) {
	sup := New(service.NewFake(), firewall.NewFake(), nil, nil, nil)

	if err := sup.Kill("PersistentRDP", false); err == nil {
		t.Fatal("expected error without a process inspector")
	}
}

func TestKill_NoProcess(t *testing.T) {
	services := service.NewFake()
	sup := New(services, firewall.NewFake(), nil, process.NewInspector(), nil)
	plan := testPlan()
	plan.OpenFirewall = false

	if err := sup.Provision(plan); err != nil {
		t.Fatalf("provision failed: %v", err)
	}

	// The fake manager reports no PID, so there is nothing to kill.
	err := sup.Kill(plan.Definition.Name, false)
	if !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
