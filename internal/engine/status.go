package engine

import (
	"context"

	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/record"
)

// StatusSummary is the caller-facing view of sync health. Sync
// failures surface here, never by throwing from the original mutating
// call.
type StatusSummary struct {
	Total       int   `json:"total"`
	Active      int   `json:"active"`
	PendingSync int   `json:"pendingSync"`
	Conflicts   int   `json:"conflicts"`
	FailedSync  int   `json:"failedSync"`
	LastSync    int64 `json:"lastSync"`

	// FailedOperations counts queue entries that exhausted their retry
	// budget and await manual inspection.
	FailedOperations int `json:"failedOperations"`
}

// Status computes the sync summary for the engine's user scope.
func (e *Engine) Status(ctx context.Context) (*StatusSummary, error) {
	scope, err := e.requireScope()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	records, meta, err := e.store.Load(scope)
	if err != nil {
		return nil, err
	}

	summary := &StatusSummary{
		Total:    len(records),
		LastSync: meta.LastSync,
	}

	for i := range records {
		r := &records[i]

		if !r.IsDeleted {
			summary.Active++
		}

		if r.NeedsSync {
			summary.PendingSync++
		}

		switch r.SyncStatus {
		case record.StatusConflict:
			summary.Conflicts++
		case record.StatusFailed:
			summary.FailedSync++
		}
	}

	failed, err := e.queue.FailedOps(scope)
	if err != nil {
		return nil, err
	}

	summary.FailedOperations = len(failed)

	return summary, nil
}
