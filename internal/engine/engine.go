// Package engine implements the offline-first record synchronization
// engine: the lifecycle controller for create/update/delete, the
// reconciler that merges server and local state, and the bulk sync
// orchestrator.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/api"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/logging"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/metrics"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/netstatus"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/queue"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/record"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/store"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/syncerr"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/timeutil"
	"golang.org/x/sync/singleflight"
)

const (
	defaultRetentionDays = 30
	defaultListPageSize  = 100

	// maxListPages caps the paging loop on full listings so a
	// misbehaving server cannot spin it forever.
	maxListPages = 1000
)

// Options configures a new Engine.
type Options struct {
	Store  *store.Store
	Queue  *queue.Queue
	Server api.ServerAPI
	Oracle netstatus.Oracle

	// UserScope is the authenticated user id all state is keyed under.
	// Empty means no identity: mutations fail with
	// AuthenticationRequiredError unless AllowAnonymous is set, in
	// which case a device-local scope is used.
	UserScope      string
	AllowAnonymous bool

	Logger        *slog.Logger
	Metrics       *metrics.Metrics
	RetentionDays int
	ListPageSize  int
}

// Engine is the only component permitted to create, mutate, or
// logically delete records. All load-modify-save cycles are serialized
// through one mutex per engine instance, so concurrent callers cannot
// interleave and lose updates.
type Engine struct {
	store     *store.Store
	queue     *queue.Queue
	server    api.ServerAPI
	oracle    netstatus.Oracle
	logger    *slog.Logger
	metrics   *metrics.Metrics
	scope     string
	retention time.Duration
	pageSize  int

	mu    sync.Mutex
	group singleflight.Group
}

// New creates an engine from options, applying defaults for logger,
// metrics, retention, and page size.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	m := opts.Metrics
	if m == nil {
		m = metrics.NewUnregistered()
	}

	retention := opts.RetentionDays
	if retention <= 0 {
		retention = defaultRetentionDays
	}

	pageSize := opts.ListPageSize
	if pageSize <= 0 {
		pageSize = defaultListPageSize
	}

	scope := opts.UserScope
	if scope == "" && opts.AllowAnonymous {
		scope = store.AnonymousScope
	}

	return &Engine{
		store:     opts.Store,
		queue:     opts.Queue,
		server:    opts.Server,
		oracle:    opts.Oracle,
		logger:    logger,
		metrics:   m,
		scope:     scope,
		retention: time.Duration(retention) * 24 * time.Hour,
		pageSize:  pageSize,
	}
}

// requireScope resolves the user scope, failing when no identity is
// available. An offline record needs a clear eventual owner.
func (e *Engine) requireScope() (string, error) {
	if e.scope == "" {
		return "", &syncerr.AuthenticationRequiredError{}
	}

	return e.scope, nil
}

// GetAll returns the current record set with tombstones filtered out.
// When the server is reachable the authoritative listing is fetched
// and reconciled into the store first; offline, the local set is
// served as-is.
func (e *Engine) GetAll(ctx context.Context) ([]record.Record, error) {
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

	if e.oracle.IsOnline(ctx) {
		serverRecords, err := e.fetchAllFromServer(ctx)
		if err != nil {
			e.logger.Warn("listing from server failed, serving local set",
				slog.String("error", err.Error()),
			)
		} else {
			records, err = e.reconcileAndPersist(scope, serverRecords, records, meta)
			if err != nil {
				return nil, err
			}
		}
	}

	return visibleRecords(records), nil
}

// GetByID returns a single record by permanent or temporary id, or
// NotFound. A reachable server is consulted for records with permanent
// identity and the result folded into the store under the same merge
// rules as a full listing.
func (e *Engine) GetByID(ctx context.Context, id string) (*record.Record, error) {
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

	idx := findRecord(records, id)

	identity := record.ParseIdentity(id)
	if identity.IsPermanent() && e.oracle.IsOnline(ctx) {
		sr, err := e.server.Get(ctx, id)

		switch {
		case err == nil:
			var localSubset []record.Record
			if idx >= 0 {
				localSubset = []record.Record{records[idx]}
			}

			outcome := Merge([]record.Record{serverToRecord(sr)}, localSubset)
			if len(outcome.Records) > 0 {
				merged := outcome.Records[0]
				if idx >= 0 {
					records[idx] = merged
				} else {
					records = append(records, merged)
				}

				if err := e.store.Save(scope, records, meta); err != nil {
					return nil, err
				}

				if merged.IsDeleted {
					return nil, &syncerr.NotFoundError{ID: id}
				}

				return &merged, nil
			}

		case syncerr.IsNotFound(err):
			// Gone upstream; fall through to the local copy, which
			// still answers for pending offline edits.

		case syncerr.IsNetwork(err):
			// Unreachable after all: serve the local copy.

		default:
			return nil, err
		}
	}

	if idx < 0 || records[idx].IsDeleted {
		return nil, &syncerr.NotFoundError{ID: id}
	}

	rec := records[idx]

	return &rec, nil
}

// RetryFailed flips every failed-status record back to pending so the
// next sync batch picks it up again. Returns how many were flipped.
func (e *Engine) RetryFailed(ctx context.Context) (int, error) {
	scope, err := e.requireScope()
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	records, meta, err := e.store.Load(scope)
	if err != nil {
		return 0, err
	}

	flipped := 0

	for i := range records {
		if records[i].SyncStatus == record.StatusFailed && records[i].NeedsSync {
			records[i].SyncStatus = record.StatusPending
			flipped++
		}
	}

	if flipped == 0 {
		return 0, nil
	}

	if err := e.store.Save(scope, records, meta); err != nil {
		return 0, err
	}

	return flipped, nil
}

// Clear wipes all persisted state for the engine's user scope: record
// store, pending operations, and the failed-op log. Used on logout.
func (e *Engine) Clear(ctx context.Context) error {
	scope, err := e.requireScope()
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.Clear(scope); err != nil {
		return err
	}

	return e.queue.Clear(scope)
}

// reconcileAndPersist merges server and local sets, purges stale
// tombstones (and their queue entries), and saves the result. Caller
// holds e.mu.
func (e *Engine) reconcileAndPersist(scope string, server, local []record.Record, meta record.SyncMetadata) ([]record.Record, error) {
	outcome := Merge(server, local)

	for _, id := range outcome.Conflicts {
		e.metrics.ConflictsFound.Inc()

		if idx := findRecord(outcome.Records, id); idx >= 0 && outcome.Records[idx].OriginalData != nil {
			e.logger.Warn("conflict detected, server version retained",
				slog.String("id", id),
				slog.String("diff", conflictDiffSummary(outcome.Records[idx].OriginalData.Body, outcome.Records[idx].Body)),
			)
		}
	}

	for _, id := range outcome.StaleTombstones {
		e.logger.Info("tombstone already deleted upstream, purging", slog.String("id", id))
		e.metrics.TombstonesPurged.Inc()

		if _, err := e.queue.DeleteByRecordID(scope, id); err != nil {
			e.logger.Warn("purging queue entries for stale tombstone",
				slog.String("id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := e.store.Save(scope, outcome.Records, meta); err != nil {
		return nil, err
	}

	return outcome.Records, nil
}

// fetchAllFromServer pages through the server listing until exhausted.
func (e *Engine) fetchAllFromServer(ctx context.Context) ([]record.Record, error) {
	var all []record.Record

	for page := 1; page <= maxListPages; page++ {
		serverRecords, pagination, err := e.server.List(ctx, page, e.pageSize)
		if err != nil {
			return nil, err
		}

		for i := range serverRecords {
			all = append(all, serverToRecord(&serverRecords[i]))
		}

		if pagination == nil || !pagination.HasMore {
			break
		}
	}

	return all, nil
}

// serverToRecord converts a wire record into the local model, marked
// confirmed.
func serverToRecord(sr *api.ServerRecord) record.Record {
	lastModified := sr.ModifiedMillis()
	if lastModified == 0 {
		lastModified = timeutil.NowMillis()
	}

	return record.Record{
		ID:           sr.ID,
		Body:         sr.Data,
		LastModified: lastModified,
		SyncStatus:   record.StatusSynced,
		NeedsSync:    false,
	}
}

// mergeBodies performs the last-write union of a local body with the
// server's returned representation: server keys overwrite local ones,
// client-only derived fields the server omitted are preserved. Falls
// back to whichever side parses when the other does not.
func mergeBodies(local, server json.RawMessage) json.RawMessage {
	var localObj map[string]json.RawMessage
	if err := json.Unmarshal(local, &localObj); err != nil {
		return server
	}

	var serverObj map[string]json.RawMessage
	if err := json.Unmarshal(server, &serverObj); err != nil {
		return local
	}

	for k, v := range serverObj {
		localObj[k] = v
	}

	merged, err := json.Marshal(localObj)
	if err != nil {
		return server
	}

	return merged
}

// findRecord returns the index of the record matching id (permanent or
// temporary), or -1.
func findRecord(records []record.Record, id string) int {
	for i := range records {
		if records[i].Matches(id) {
			return i
		}
	}

	return -1
}

// visibleRecords filters tombstones out of a record set.
func visibleRecords(records []record.Record) []record.Record {
	visible := make([]record.Record, 0, len(records))

	for _, r := range records {
		if r.IsDeleted {
			continue
		}

		visible = append(visible, r)
	}

	return visible
}
