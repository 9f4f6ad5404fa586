package fingerprint

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/jdarais/cobble/internal/backoff"
)

var fingerprintBucket = []byte("fingerprints")

// StoreError wraps a fingerprint store I/O failure. Read failures downgrade
// a task to not-up-to-date; write failures fail the task while leaving the
// previous record intact (bbolt transactions never tear a value).
type StoreError struct {
	Op   string
	Task string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("fingerprint store: %s %q: %v", e.Op, e.Task, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Store persists fingerprint records in a bbolt database. bbolt gives the
// required discipline directly: concurrent readers, one serialized writer,
// and crash-atomic commits.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, &StoreError{Op: "open", Task: path, Err: err}
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(fingerprintBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, &StoreError{Op: "init", Task: path, Err: err}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the stored record for the task, if any.
func (s *Store) Get(task string) (*Record, bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(fingerprintBucket).Get([]byte(task)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, &StoreError{Op: "get", Task: task, Err: err}
	}
	if data == nil {
		return nil, false, nil
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, false, &StoreError{Op: "decode", Task: task, Err: err}
	}
	return rec, true, nil
}

// Put replaces the task's record. Transient write failures are retried
// briefly before giving up.
func (s *Store) Put(ctx context.Context, task string, rec *Record) error {
	data, err := rec.encode()
	if err != nil {
		return &StoreError{Op: "encode", Task: task, Err: err}
	}
	policy := backoff.NewExponentialPolicy(50*time.Millisecond, 3)
	err = backoff.Retry(ctx, policy, func() error {
		return s.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(fingerprintBucket).Put([]byte(task), data)
		})
	})
	if err != nil {
		return &StoreError{Op: "put", Task: task, Err: err}
	}
	return nil
}

// Delete removes the task's record; used by clean.
func (s *Store) Delete(task string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(fingerprintBucket).Delete([]byte(task))
	})
	if err != nil {
		return &StoreError{Op: "delete", Task: task, Err: err}
	}
	return nil
}
