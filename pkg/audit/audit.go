// Package audit persists a local, per-host history of deployment runs
// to a bbolt file, so a later rollback or incident review can see what
// was deployed, when, and with what outcome.
package audit

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketRuns = []byte("runs")

// Outcome is the terminal result of one recorded deployment run.
type Outcome string

const (
	OutcomeSucceeded  Outcome = "succeeded"
	OutcomeRolledBack Outcome = "rolled_back"
	OutcomeFailed     Outcome = "failed"
)

// Record is one entry in a service's deployment history.
type Record struct {
	Service      string    `json:"service"`
	Image        string    `json:"image"`
	Server       string    `json:"server"`
	Strategy     string    `json:"strategy"`
	Outcome      Outcome   `json:"outcome"`
	ErrorMessage string    `json:"error_message,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Store is a bbolt-backed append-only log of Records, keyed so that
// ListByService returns them in chronological order.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the audit database under dataDir.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "peleka-audit.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("audit: opening %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: initializing bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append records one deployment run. The key is <service>\x00<sequence>
// so ForEach/Cursor iteration yields a service's runs in the order they
// were appended, while keeping every service's keys contiguous.
func (s *Store) Append(record Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		key := runKey(record.Service, seq)
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// ListByService returns every recorded run for service, oldest first.
func (s *Store) ListByService(service string) ([]Record, error) {
	var records []Record
	prefix := []byte(service + "\x00")

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	return records, err
}

// Latest returns the most recent run for service, or (Record{}, false)
// when none exists.
func (s *Store) Latest(service string) (Record, bool, error) {
	records, err := s.ListByService(service)
	if err != nil || len(records) == 0 {
		return Record{}, false, err
	}
	return records[len(records)-1], true, nil
}

func runKey(service string, seq uint64) []byte {
	key := make([]byte, 0, len(service)+1+8)
	key = append(key, []byte(service)...)
	key = append(key, 0)
	seqBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(seqBytes, seq)
	return append(key, seqBytes...)
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
