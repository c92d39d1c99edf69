package storage

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names
const (
	BucketConfig       = "config"
	BucketJournal      = "provision_journal"
	BucketServiceState = "service_state"
	BucketAuditLog     = "audit_log"
)

// AllBuckets returns all bucket names
var AllBuckets = []string{
	BucketConfig,
	BucketJournal,
	BucketServiceState,
	BucketAuditLog,
}

// initBuckets creates all required buckets
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range AllBuckets {
			_, err := tx.CreateBucketIfNotExists([]byte(bucket))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// JournalEntry records the outcome of one provisioning step. The journal
// is the durable record of how far a provisioning run got, since
// completed steps stay applied when a later step fails.
type JournalEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Step      string    `json:"step"`
	OK        bool      `json:"ok"`
	Detail    string    `json:"detail,omitempty"`
}

// ServiceState is the last known snapshot of a supervised service.
type ServiceState struct {
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	PID         int       `json:"pid,omitempty"`
	Provisioned bool      `json:"provisioned"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AuditEntry records an API-initiated action.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	Detail    string    `json:"detail,omitempty"`
	IP        string    `json:"ip,omitempty"`
}

// AppendJournal appends an entry to the provision journal.
func (s *Storage) AppendJournal(entry JournalEntry) error {
	return s.AppendJSON(BucketJournal, entry)
}

// Journal returns the most recent journal entries, newest last, capped at
// limit (0 means all).
func (s *Storage) Journal(limit int) ([]JournalEntry, error) {
	var entries []JournalEntry
	err := s.ForEach(BucketJournal, func(k, v []byte) error {
		var entry JournalEntry
		if err := json.Unmarshal(v, &entry); err == nil {
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// SaveServiceState stores the last known snapshot for a service.
func (s *Storage) SaveServiceState(state ServiceState) error {
	return s.SetJSON(BucketServiceState, state.Name, state)
}

// GetServiceState loads the last known snapshot for a service.
func (s *Storage) GetServiceState(name string) (ServiceState, error) {
	var state ServiceState
	err := s.GetJSON(BucketServiceState, name, &state)
	return state, err
}

// AppendAudit appends an entry to the audit log.
func (s *Storage) AppendAudit(entry AuditEntry) error {
	return s.AppendJSON(BucketAuditLog, entry)
}
