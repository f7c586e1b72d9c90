// Package queue provides the durable, ordered log of not-yet-confirmed
// mutations. Entries are replayed in FIFO order and carry a retry
// count; entries that exhaust their retry budget move to a separate
// failed-operation log for manual inspection.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/record"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/syncerr"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/timeutil"
	bolt "go.etcd.io/bbolt"
)

// MaxRetries is the retry budget per pending operation. Past this the
// operation moves to the failed log.
const MaxRetries = 5

func opsBucket(scope string) []byte {
	return []byte("user:" + scope + ":ops")
}

func failedBucket(scope string) []byte {
	return []byte("user:" + scope + ":failed")
}

// Queue is the durable pending-operation log. It shares the record
// store's bbolt database so store and queue survive crashes together.
type Queue struct {
	db *bolt.DB
}

// New creates a queue over an open bbolt database.
func New(db *bolt.DB) *Queue {
	return &Queue{db: db}
}

// Enqueue appends an operation to the tail of the scope's log. The
// key is a zero-padded bucket sequence number, so lexicographic bbolt
// iteration preserves insertion order.
func (q *Queue) Enqueue(scope string, op record.PendingOperation) error {
	err := q.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(opsBucket(scope))
		if err != nil {
			return err
		}

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		data, err := json.Marshal(op)
		if err != nil {
			return err
		}

		return b.Put(seqKey(seq), data)
	})
	if err != nil {
		return &syncerr.StorageError{Op: "enqueue", Err: err}
	}

	return nil
}

// All returns the scope's pending operations in insertion order.
func (q *Queue) All(scope string) ([]record.PendingOperation, error) {
	var ops []record.PendingOperation

	err := q.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(opsBucket(scope))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var op record.PendingOperation
			if err := json.Unmarshal(v, &op); err != nil {
				// Corrupt entry: skip, keep replaying the rest.
				return nil
			}

			ops = append(ops, op)

			return nil
		})
	})
	if err != nil {
		return nil, &syncerr.StorageError{Op: "list ops", Err: err}
	}

	return ops, nil
}

// Delete removes one operation by its id.
func (q *Queue) Delete(scope, opID string) error {
	err := q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(opsBucket(scope))
		if b == nil {
			return nil
		}

		key, _, found := findOp(b, opID)
		if !found {
			return nil
		}

		return b.Delete(key)
	})
	if err != nil {
		return &syncerr.StorageError{Op: "delete op", Err: err}
	}

	return nil
}

// DeleteByRecordID removes every pending operation referring to a
// record, returning how many were removed. Used when a purely-local
// record is purged so the store and queue never disagree about its
// existence.
func (q *Queue) DeleteByRecordID(scope, recordID string) (int, error) {
	removed := 0

	err := q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(opsBucket(scope))
		if b == nil {
			return nil
		}

		var keys [][]byte

		err := b.ForEach(func(k, v []byte) error {
			var op record.PendingOperation
			if err := json.Unmarshal(v, &op); err != nil {
				return nil
			}

			if op.RecordID == recordID {
				key := make([]byte, len(k))
				copy(key, k)
				keys = append(keys, key)
			}

			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}

			removed++
		}

		return nil
	})
	if err != nil {
		return 0, &syncerr.StorageError{Op: "delete ops by record", Err: err}
	}

	return removed, nil
}

// IncrementRetry bumps an operation's retry count and returns the new
// value. Returns 0 when the operation no longer exists.
func (q *Queue) IncrementRetry(scope, opID string) (int, error) {
	count := 0

	err := q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(opsBucket(scope))
		if b == nil {
			return nil
		}

		key, op, found := findOp(b, opID)
		if !found {
			return nil
		}

		op.RetryCount++
		count = op.RetryCount

		data, err := json.Marshal(op)
		if err != nil {
			return err
		}

		return b.Put(key, data)
	})
	if err != nil {
		return 0, &syncerr.StorageError{Op: "increment retry", Err: err}
	}

	return count, nil
}

// MoveToFailed removes an operation from the pending log and records
// it in the failed log with the given reason.
func (q *Queue) MoveToFailed(scope, opID, reason string) error {
	err := q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(opsBucket(scope))
		if b == nil {
			return nil
		}

		key, op, found := findOp(b, opID)
		if !found {
			return nil
		}

		if err := b.Delete(key); err != nil {
			return err
		}

		fb, err := tx.CreateBucketIfNotExists(failedBucket(scope))
		if err != nil {
			return err
		}

		seq, err := fb.NextSequence()
		if err != nil {
			return err
		}

		failed := record.FailedOperation{
			PendingOperation: op,
			FailureReason:    reason,
			FailedAt:         timeutil.NowMillis(),
		}

		data, err := json.Marshal(failed)
		if err != nil {
			return err
		}

		return fb.Put(seqKey(seq), data)
	})
	if err != nil {
		return &syncerr.StorageError{Op: "move to failed", Err: err}
	}

	return nil
}

// FailedOps returns the scope's failed-operation log in failure order.
func (q *Queue) FailedOps(scope string) ([]record.FailedOperation, error) {
	var ops []record.FailedOperation

	err := q.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(failedBucket(scope))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			var op record.FailedOperation
			if err := json.Unmarshal(v, &op); err != nil {
				return nil
			}

			ops = append(ops, op)

			return nil
		})
	})
	if err != nil {
		return nil, &syncerr.StorageError{Op: "list failed ops", Err: err}
	}

	return ops, nil
}

// Clear wipes both logs for one user scope. Used on logout together
// with store.Clear.
func (q *Queue) Clear(scope string) error {
	err := q.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{opsBucket(scope), failedBucket(scope)} {
			if err := tx.DeleteBucket(name); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return &syncerr.StorageError{Op: "clear queue", Err: err}
	}

	return nil
}

func seqKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%020d", seq))
}

// findOp scans a bucket for the operation with the given id, returning
// its storage key and decoded value.
func findOp(b *bolt.Bucket, opID string) ([]byte, record.PendingOperation, bool) {
	var (
		foundKey []byte
		foundOp  record.PendingOperation
		found    bool
	)

	_ = b.ForEach(func(k, v []byte) error {
		if found {
			return nil
		}

		var op record.PendingOperation
		if err := json.Unmarshal(v, &op); err != nil {
			return nil
		}

		if op.ID == opID {
			foundKey = make([]byte, len(k))
			copy(foundKey, k)
			foundOp = op
			found = true
		}

		return nil
	})

	return foundKey, foundOp, found
}
