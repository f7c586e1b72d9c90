package engine

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/record"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/syncerr"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/timeutil"
)

// Create makes a new record. Online, the server round-trip happens
// first and the confirmed record is stored. On any network failure or
// while offline, a record with a generated temporary identity is
// recorded locally instead; from the caller's point of view the create
// always succeeds unless the payload is invalid.
func (e *Engine) Create(ctx context.Context, payload json.RawMessage) (*record.Record, error) {
	scope, err := e.requireScope()
	if err != nil {
		return nil, err
	}

	if err := validatePayload(payload, false); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	records, meta, err := e.store.Load(scope)
	if err != nil {
		return nil, err
	}

	if e.oracle.IsOnline(ctx) {
		sr, err := e.server.Create(ctx, payload)
		if err == nil {
			rec := serverToRecord(sr)
			rec.Body = mergeBodies(payload, sr.Data)
			records = append(records, rec)

			if err := e.store.Save(scope, records, meta); err != nil {
				return nil, err
			}

			e.logger.Debug("created online", slog.String("id", rec.ID))

			return &rec, nil
		}

		if !syncerr.IsNetwork(err) {
			// Validation and auth failures surface immediately; only
			// network trouble falls back to the offline path.
			return nil, err
		}

		e.logger.Debug("server create failed, recording offline",
			slog.String("error", err.Error()),
		)
	}

	now := timeutil.NowMillis()
	identity := record.NewTemporaryIdentity()

	rec := record.Record{
		ID:           identity.String(),
		TempID:       identity.String(),
		Body:         payload,
		LastModified: now,
		SyncStatus:   record.StatusPending,
		NeedsSync:    true,
		IsOffline:    true,
	}

	records = append(records, rec)

	if err := e.store.Save(scope, records, meta); err != nil {
		return nil, err
	}

	op := record.PendingOperation{
		ID:        uuid.NewString(),
		Type:      record.OpCreate,
		RecordID:  rec.ID,
		Payload:   payload,
		Timestamp: now,
	}

	if err := e.queue.Enqueue(scope, op); err != nil {
		return nil, err
	}

	e.logger.Info("created offline", slog.String("tempId", rec.TempID))

	return &rec, nil
}

// Update mutates an existing record, looked up by permanent or
// temporary id. The online path replaces the record with the server's
// confirmed representation; network failure falls back to a local
// pending edit rather than propagating the error.
func (e *Engine) Update(ctx context.Context, id string, payload json.RawMessage) (*record.Record, error) {
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
	if idx < 0 || records[idx].IsDeleted {
		return nil, &syncerr.NotFoundError{ID: id}
	}

	rec := records[idx]

	if err := validatePayload(payload, !rec.LocalOnly()); err != nil {
		return nil, err
	}

	if !rec.LocalOnly() && e.oracle.IsOnline(ctx) {
		sr, err := e.server.Update(ctx, rec.ID, payload)
		if err == nil {
			updated := serverToRecord(sr)
			updated.Body = mergeBodies(payload, sr.Data)
			records[idx] = updated

			if err := e.store.Save(scope, records, meta); err != nil {
				return nil, err
			}

			e.logger.Debug("updated online", slog.String("id", updated.ID))

			return &updated, nil
		}

		if !syncerr.IsNetwork(err) {
			return nil, err
		}

		e.logger.Debug("server update failed, recording locally",
			slog.String("id", rec.ID),
			slog.String("error", err.Error()),
		)
	}

	now := timeutil.NowMillis()

	rec.Body = payload
	rec.LastModified = now
	rec.SyncStatus = record.StatusPending
	rec.NeedsSync = true
	rec.OriginalData = nil
	records[idx] = rec

	if err := e.store.Save(scope, records, meta); err != nil {
		return nil, err
	}

	op := record.PendingOperation{
		ID:        uuid.NewString(),
		Type:      record.OpUpdate,
		RecordID:  rec.Key(),
		Payload:   payload,
		Timestamp: now,
	}

	if err := e.queue.Enqueue(scope, op); err != nil {
		return nil, err
	}

	e.logger.Info("updated locally, pending sync", slog.String("id", rec.Key()))

	return &rec, nil
}

// Delete removes a record. A purely local record (never confirmed by
// the server) is purged outright together with its queued operations.
// A record with server identity becomes a tombstone: transient
// (synced, no sync needed) after an apparently successful online
// delete, pending otherwise. The transient tombstone guards against a
// stale concurrent listing resurrecting the record before the deletion
// propagates; the next sync's garbage collection removes it.
func (e *Engine) Delete(ctx context.Context, id string) error {
	scope, err := e.requireScope()
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	records, meta, err := e.store.Load(scope)
	if err != nil {
		return err
	}

	idx := findRecord(records, id)
	if idx < 0 || records[idx].IsDeleted {
		return &syncerr.NotFoundError{ID: id}
	}

	rec := records[idx]

	if rec.LocalOnly() {
		records = append(records[:idx], records[idx+1:]...)

		if err := e.store.Save(scope, records, meta); err != nil {
			return err
		}

		if _, err := e.queue.DeleteByRecordID(scope, rec.Key()); err != nil {
			return err
		}

		e.logger.Info("purged local-only record", slog.String("tempId", rec.TempID))

		return nil
	}

	now := timeutil.NowMillis()

	if e.oracle.IsOnline(ctx) {
		err := e.server.Delete(ctx, rec.ID)
		if err == nil || syncerr.IsNotFound(err) {
			rec.IsDeleted = true
			rec.DeletedAt = now
			rec.LastModified = now
			rec.SyncStatus = record.StatusSynced
			rec.NeedsSync = false
			records[idx] = rec

			if err := e.store.Save(scope, records, meta); err != nil {
				return err
			}

			e.logger.Debug("deleted online, transient tombstone written", slog.String("id", rec.ID))

			return nil
		}

		if !syncerr.IsNetwork(err) {
			return err
		}

		e.logger.Debug("server delete failed, recording tombstone",
			slog.String("id", rec.ID),
			slog.String("error", err.Error()),
		)
	}

	rec.IsDeleted = true
	rec.DeletedAt = now
	rec.LastModified = now
	rec.SyncStatus = record.StatusPending
	rec.NeedsSync = true
	records[idx] = rec

	if err := e.store.Save(scope, records, meta); err != nil {
		return err
	}

	op := record.PendingOperation{
		ID:        uuid.NewString(),
		Type:      record.OpDelete,
		RecordID:  rec.ID,
		Timestamp: now,
	}

	if err := e.queue.Enqueue(scope, op); err != nil {
		return err
	}

	e.logger.Info("deleted locally, pending sync", slog.String("id", rec.ID))

	return nil
}
