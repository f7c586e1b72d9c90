// Package record defines the persistent data model shared by the
// record store, the operation queue, and the sync engine.
package record

import (
	"encoding/json"
)

// SyncStatus tracks where a record sits in its sync lifecycle.
type SyncStatus string

const (
	// StatusPending means the record carries local changes the server
	// has not acknowledged.
	StatusPending SyncStatus = "pending"

	// StatusSynced means the server has confirmed the current state.
	StatusSynced SyncStatus = "synced"

	// StatusConflict means reconciliation found a newer server version
	// over an unacknowledged local edit. The losing local copy is kept
	// in OriginalData for manual resolution.
	StatusConflict SyncStatus = "conflict"

	// StatusFailed means the last sync attempt for this record failed.
	StatusFailed SyncStatus = "failed"
)

// Record is the user-owned entity being synchronized. Body is opaque
// domain JSON; the engine never interprets it beyond validation.
type Record struct {
	ID           string          `json:"id"`
	TempID       string          `json:"tempId,omitempty"`
	Body         json.RawMessage `json:"body"`
	LastModified int64           `json:"lastModified"`
	SyncStatus   SyncStatus      `json:"syncStatus"`
	NeedsSync    bool            `json:"needsSync"`
	IsDeleted    bool            `json:"isDeleted,omitempty"`
	DeletedAt    int64           `json:"deletedAt,omitempty"`
	IsOffline    bool            `json:"isOffline,omitempty"`

	// OriginalData holds the local copy that lost a conflict, set only
	// when SyncStatus is StatusConflict.
	OriginalData *Record `json:"originalData,omitempty"`
}

// Key returns the storage key for the record: the server id once
// assigned, the temporary id before that.
func (r *Record) Key() string {
	if r.ID != "" {
		return r.ID
	}

	return r.TempID
}

// LocalOnly reports whether the record was created offline and has
// never been confirmed by the server.
func (r *Record) LocalOnly() bool {
	return r.TempID != "" || ParseIdentity(r.ID).IsTemporary()
}

// Matches reports whether the given id refers to this record, by
// either its permanent or its temporary identity.
func (r *Record) Matches(id string) bool {
	if id == "" {
		return false
	}

	return r.ID == id || r.TempID == id
}

// OpType classifies a deferred mutation.
type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// PendingOperation describes one deferred mutation awaiting replay
// against the server.
type PendingOperation struct {
	ID         string          `json:"id"`
	Type       OpType          `json:"type"`
	RecordID   string          `json:"recordId"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  int64           `json:"timestamp"`
	RetryCount int             `json:"retryCount"`
}

// FailedOperation is a PendingOperation that exhausted its retry
// budget, moved to a separate log for manual inspection.
type FailedOperation struct {
	PendingOperation
	FailureReason string `json:"failureReason"`
	FailedAt      int64  `json:"failedAt"`
}

// SchemaVersion is the current on-disk schema version written into
// SyncMetadata.
const SchemaVersion = 1

// SyncMetadata is the per-user sync cursor: when the last successful
// bulk sync completed and which schema version the stored records use.
type SyncMetadata struct {
	LastSync int64 `json:"lastSync"`
	Version  int   `json:"version"`
}
