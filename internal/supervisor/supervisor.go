package supervisor

import (
	"fmt"
	"log"
	"time"

	"github.com/warden/warden/internal/firewall"
	"github.com/warden/warden/internal/process"
	"github.com/warden/warden/internal/service"
	"github.com/warden/warden/internal/storage"
)

// Provisioning step names, as recorded in the journal.
const (
	StepRegister      = "register"
	StepRestartPolicy = "restart_policy"
	StepFirewall      = "firewall"
	StepStart         = "start"
)

// EventSink receives supervision events for live observers. Satisfied by
// the websocket hub.
type EventSink interface {
	BroadcastJSON(msgType string, payload interface{})
}

// Plan is everything one provisioning run applies.
type Plan struct {
	Definition   service.Definition `json:"definition"`
	OpenFirewall bool               `json:"open_firewall"`
	Rule         firewall.Rule      `json:"rule"`
}

// Status merges what the service manager reports with a live snapshot of
// the service process.
type Status struct {
	Service service.Info  `json:"service"`
	Process *process.Info `json:"process,omitempty"`
}

// Supervisor drives the provisioning sequence: register the service,
// apply the restart policy, open the firewall port, start the service.
// The OS service manager owns the runtime restart loop; the supervisor
// has no monitoring loop of its own.
type Supervisor struct {
	services  service.Manager
	firewall  firewall.Manager
	store     *storage.Storage
	inspector *process.Inspector
	events    EventSink
}

// New creates a supervisor. store and events may be nil; the pipeline
// then runs without journaling or live events.
func New(services service.Manager, fw firewall.Manager, store *storage.Storage, inspector *process.Inspector, events EventSink) *Supervisor {
	return &Supervisor{
		services:  services,
		firewall:  fw,
		store:     store,
		inspector: inspector,
		events:    events,
	}
}

// Provision runs the sequence strictly in order and aborts at the first
// failing step, surfacing the OS error unchanged. Steps already applied
// stay applied; the journal records how far the run got.
func (s *Supervisor) Provision(plan Plan) error {
	def := plan.Definition

	if err := s.step(StepRegister, def.Name, func() error {
		return s.services.Register(def)
	}); err != nil {
		return err
	}

	if err := s.step(StepRestartPolicy, def.Name, func() error {
		return s.services.SetRestartPolicy(def.Name, def.Restart)
	}); err != nil {
		return err
	}

	if plan.OpenFirewall {
		if err := s.step(StepFirewall, def.Name, func() error {
			if s.firewall == nil {
				return firewall.ErrUnsupported
			}
			return s.firewall.EnsureInbound(plan.Rule)
		}); err != nil {
			return err
		}
	}

	if err := s.step(StepStart, def.Name, func() error {
		return s.services.Start(def.Name)
	}); err != nil {
		return err
	}

	s.saveState(def.Name, true)
	return nil
}

// Deprovision stops and removes the service, and removes the firewall
// rule when the plan opened one.
func (s *Supervisor) Deprovision(plan Plan) error {
	name := plan.Definition.Name

	// Stop errors are not fatal: the service may already be stopped.
	if err := s.services.Stop(name); err != nil {
		log.Printf("stop %s: %v", name, err)
	}

	if err := s.services.Delete(name); err != nil {
		return err
	}

	if plan.OpenFirewall {
		if s.firewall == nil {
			log.Printf("firewall unavailable, leaving rule %s in place", plan.Rule.Name)
		} else if err := s.firewall.Remove(plan.Rule); err != nil {
			return err
		}
	}

	s.saveState(name, false)
	return nil
}

// Status returns the service manager's view merged with a live process
// snapshot when a PID is known.
func (s *Supervisor) Status(name string) (Status, error) {
	info, err := s.services.Query(name)
	if err != nil {
		return Status{}, err
	}

	st := Status{Service: info}

	pid := info.PID
	if pid == 0 && s.inspector != nil && info.ExecPath != "" {
		if procs, err := s.inspector.FindByExe(info.ExecPath); err == nil && len(procs) > 0 {
			pid = int(procs[0].PID)
		}
	}
	if pid > 0 && s.inspector != nil {
		if pinfo, err := s.inspector.Info(int32(pid)); err == nil {
			st.Process = &pinfo
		}
	}

	return st, nil
}

// Start starts the supervised service.
func (s *Supervisor) Start(name string) error {
	return s.action("start", name, s.services.Start)
}

// Stop stops the supervised service.
func (s *Supervisor) Stop(name string) error {
	return s.action("stop", name, s.services.Stop)
}

// Restart restarts the supervised service.
func (s *Supervisor) Restart(name string) error {
	return s.action("restart", name, s.services.Restart)
}

// Kill terminates the service process directly, bypassing the service
// manager. A last resort for a process that no longer responds to a
// stop request.
func (s *Supervisor) Kill(name string, force bool) error {
	if s.inspector == nil {
		return fmt.Errorf("process inspection not available")
	}

	st, err := s.Status(name)
	if err != nil {
		return err
	}
	if st.Process == nil {
		return fmt.Errorf("kill %s: no running process: %w", name, service.ErrNotFound)
	}

	if err := s.inspector.Kill(st.Process.PID, force); err != nil {
		return err
	}

	status, _ := s.services.Status(name)
	s.saveStateStatus(name, status)
	if s.events != nil {
		s.events.BroadcastJSON("status", map[string]string{
			"service": name,
			"action":  "kill",
			"status":  status,
		})
	}
	return nil
}

// Query returns the registered definition and current state.
func (s *Supervisor) Query(name string) (service.Info, error) {
	return s.services.Query(name)
}

// Journal returns the most recent provision journal entries.
func (s *Supervisor) Journal(limit int) ([]storage.JournalEntry, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.Journal(limit)
}

// step runs one provisioning step, journals its outcome and broadcasts it
// to live observers.
func (s *Supervisor) step(step, name string, fn func() error) error {
	err := fn()

	entry := storage.JournalEntry{
		Timestamp: time.Now().UTC(),
		Service:   name,
		Step:      step,
		OK:        err == nil,
	}
	if err != nil {
		entry.Detail = err.Error()
	}

	if s.store != nil {
		if jerr := s.store.AppendJournal(entry); jerr != nil {
			log.Printf("journal write failed: %v", jerr)
		}
	}
	if s.events != nil {
		s.events.BroadcastJSON("provision", entry)
	}

	if err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}

// action runs a lifecycle operation and broadcasts the resulting status.
func (s *Supervisor) action(name, svc string, fn func(string) error) error {
	if err := fn(svc); err != nil {
		return err
	}

	status, _ := s.services.Status(svc)
	s.saveStateStatus(svc, status)
	if s.events != nil {
		s.events.BroadcastJSON("status", map[string]string{
			"service": svc,
			"action":  name,
			"status":  status,
		})
	}
	return nil
}

func (s *Supervisor) saveState(name string, provisioned bool) {
	if s.store == nil {
		return
	}

	status, _ := s.services.Status(name)
	state := storage.ServiceState{
		Name:        name,
		Status:      status,
		Provisioned: provisioned,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.store.SaveServiceState(state); err != nil {
		log.Printf("state write failed: %v", err)
	}
}

func (s *Supervisor) saveStateStatus(name, status string) {
	if s.store == nil {
		return
	}

	state, err := s.store.GetServiceState(name)
	if err != nil {
		state = storage.ServiceState{Name: name}
	}
	state.Status = status
	state.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveServiceState(state); err != nil {
		log.Printf("state write failed: %v", err)
	}
}
