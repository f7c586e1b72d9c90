// Package store provides durable, user-scoped persistence for the full
// record set and its sync metadata, backed by bbolt.
package store

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/record"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/syncerr"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt
	// database lock.
	stateOpenTimeout = 5 * time.Second
)

// AnonymousScope is the user scope used when no authenticated user is
// known. Kept distinct so logging in never reads another account's
// records.
const AnonymousScope = "anonymous-device"

const metaKey = "metadata"

func recordsBucket(scope string) []byte {
	return []byte("user:" + scope + ":records")
}

func metaBucket(scope string) []byte {
	return []byte("user:" + scope + ":meta")
}

// Store wraps a bbolt database holding records and sync metadata for
// any number of user scopes. Callers must serialize load-modify-save
// cycles; the store itself only guarantees per-call atomicity.
type Store struct {
	db *bolt.DB
}

// Open opens the state database at the given path, creating it and
// its parent directory if they do not exist.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying bbolt handle so the operation queue can
// share one database file with the record store.
func (s *Store) DB() *bolt.DB {
	return s.db
}

// Load returns all records and the sync metadata for a user scope.
// Missing buckets and corrupt entries yield a fresh, empty state
// rather than an error: a damaged cache must never brick the client.
func (s *Store) Load(scope string) ([]record.Record, record.SyncMetadata, error) {
	var records []record.Record

	meta := record.SyncMetadata{Version: record.SchemaVersion}

	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(recordsBucket(scope)); b != nil {
			_ = b.ForEach(func(k, v []byte) error {
				var r record.Record
				if err := json.Unmarshal(v, &r); err != nil {
					// Corrupt entry: skip it, keep the rest.
					return nil
				}

				records = append(records, r)

				return nil
			})
		}

		if b := tx.Bucket(metaBucket(scope)); b != nil {
			if v := b.Get([]byte(metaKey)); v != nil {
				var m record.SyncMetadata
				if err := json.Unmarshal(v, &m); err == nil {
					meta = m
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, meta, &syncerr.StorageError{Op: "load", Err: err}
	}

	return records, meta, nil
}

// Save persists the full record set and metadata for a scope as one
// logical unit. Everything happens in a single bbolt transaction, so a
// crash mid-write leaves the previous state intact rather than
// metadata referencing records that were never persisted.
func (s *Store) Save(scope string, records []record.Record, meta record.SyncMetadata) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(recordsBucket(scope)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}

		rb, err := tx.CreateBucket(recordsBucket(scope))
		if err != nil {
			return err
		}

		for i := range records {
			data, err := json.Marshal(&records[i])
			if err != nil {
				return err
			}

			if err := rb.Put([]byte(records[i].Key()), data); err != nil {
				return err
			}
		}

		mb, err := tx.CreateBucketIfNotExists(metaBucket(scope))
		if err != nil {
			return err
		}

		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}

		return mb.Put([]byte(metaKey), data)
	})
	if err != nil {
		return &syncerr.StorageError{Op: "save", Err: err}
	}

	return nil
}

// Clear wipes all persisted records and metadata for one user scope.
// Used on logout.
func (s *Store) Clear(scope string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{recordsBucket(scope), metaBucket(scope)} {
			if err := tx.DeleteBucket(name); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return &syncerr.StorageError{Op: "clear", Err: err}
	}

	return nil
}
