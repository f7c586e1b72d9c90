package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/api"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/queue"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/record"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/syncerr"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/timeutil"
)

// SyncResult summarizes one bulk sync run. Per-record failures are
// folded in; SyncNow itself only errors on storage failure.
type SyncResult struct {
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Details   []string `json:"details,omitempty"`

	// Offline is true when the run did nothing because the device was
	// offline. A precondition not met, not a failure.
	Offline bool `json:"offline,omitempty"`
}

// SyncNow drains every record flagged dirty through the server.
// Deletions run before creates and updates so a create-then-delete
// sequence cannot resurrect a record. Concurrent calls coalesce onto
// the in-flight batch and share its result.
func (e *Engine) SyncNow(ctx context.Context) (*SyncResult, error) {
	scope, err := e.requireScope()
	if err != nil {
		return nil, err
	}

	v, err, _ := e.group.Do("sync:"+scope, func() (any, error) {
		return e.runSync(ctx, scope)
	})
	if err != nil {
		return nil, err
	}

	return v.(*SyncResult), nil
}

func (e *Engine) runSync(ctx context.Context, scope string) (*SyncResult, error) {
	res := &SyncResult{}

	if !e.oracle.IsOnline(ctx) {
		res.Offline = true
		res.Details = append(res.Details, "device offline")
		e.metrics.SyncRuns.WithLabelValues("offline").Inc()

		return res, nil
	}

	e.metrics.SyncInProgress.Set(1)
	defer e.metrics.SyncInProgress.Set(0)

	start := time.Now()
	defer func() {
		e.metrics.SyncDuration.Observe(time.Since(start).Seconds())
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	records, meta, err := e.store.Load(scope)
	if err != nil {
		return nil, err
	}

	var deletions, upserts []string

	for i := range records {
		if !records[i].NeedsSync {
			continue
		}

		if records[i].IsDeleted {
			deletions = append(deletions, records[i].Key())
		} else {
			upserts = append(upserts, records[i].Key())
		}
	}

	e.logger.Info("sync starting",
		slog.Int("deletions", len(deletions)),
		slog.Int("upserts", len(upserts)),
	)

	records, err = e.syncDeletions(ctx, scope, records, meta, deletions, res)
	if err != nil {
		return nil, err
	}

	e.syncUpserts(ctx, scope, records, upserts, res)

	meta.LastSync = timeutil.NowMillis()
	meta.Version = record.SchemaVersion

	var purged int
	records, purged = gcTombstones(records, e.retention)

	if purged > 0 {
		e.metrics.TombstonesPurged.Add(float64(purged))
		e.logger.Info("tombstone gc", slog.Int("purged", purged))
	}

	if err := e.store.Save(scope, records, meta); err != nil {
		return nil, err
	}

	e.metrics.SyncRuns.WithLabelValues("complete").Inc()
	e.logger.Info("sync complete",
		slog.Int("succeeded", res.Succeeded),
		slog.Int("failed", res.Failed),
	)

	return res, nil
}

// syncDeletions replays tombstones against the server. A confirmed
// deletion purges the tombstone from the store immediately, not at end
// of batch, so a concurrent read mid-sync never observes it. One
// failure marks the record failed and moves on; it must not abort the
// batch.
func (e *Engine) syncDeletions(ctx context.Context, scope string, records []record.Record, meta record.SyncMetadata, keys []string, res *SyncResult) ([]record.Record, error) {
	for _, key := range keys {
		idx := findRecord(records, key)
		if idx < 0 {
			continue
		}

		rec := records[idx]

		err := e.server.Delete(ctx, rec.ID)
		if err != nil && !syncerr.IsNotFound(err) {
			records[idx].SyncStatus = record.StatusFailed
			res.Failed++
			res.Details = append(res.Details, fmt.Sprintf("delete %s: %v", rec.ID, err))
			e.metrics.RecordsFailed.Inc()
			e.noteRetry(scope, rec, err)

			continue
		}

		// Not-found counts as success: already gone server-side.
		records = append(records[:idx], records[idx+1:]...)

		if _, err := e.queue.DeleteByRecordID(scope, rec.ID); err != nil {
			return nil, err
		}

		if err := e.store.Save(scope, records, meta); err != nil {
			return nil, err
		}

		res.Succeeded++
		e.metrics.RecordsSynced.Inc()
		e.logger.Debug("tombstone purged after confirmed delete", slog.String("id", rec.ID))
	}

	return records, nil
}

// syncUpserts replays offline creations and pending edits. Successful
// replays adopt the server's representation under the last-write union
// rule so client-only derived fields survive.
func (e *Engine) syncUpserts(ctx context.Context, scope string, records []record.Record, keys []string, res *SyncResult) {
	for _, key := range keys {
		idx := findRecord(records, key)
		if idx < 0 {
			continue
		}

		rec := records[idx]

		var (
			sr  *api.ServerRecord
			err error
		)

		if rec.LocalOnly() {
			sr, err = e.server.Create(ctx, rec.Body)
		} else {
			sr, err = e.server.Update(ctx, rec.ID, rec.Body)
		}

		if err != nil {
			records[idx].SyncStatus = record.StatusFailed
			res.Failed++
			res.Details = append(res.Details, fmt.Sprintf("sync %s: %v", rec.Key(), err))
			e.metrics.RecordsFailed.Inc()
			e.noteRetry(scope, rec, err)

			continue
		}

		confirmed := serverToRecord(sr)
		confirmed.Body = mergeBodies(rec.Body, sr.Data)
		records[idx] = confirmed

		if _, err := e.queue.DeleteByRecordID(scope, rec.ID); err != nil {
			e.logger.Warn("clearing queue entries", slog.String("id", rec.ID), slog.String("error", err.Error()))
		}

		if rec.TempID != "" && rec.TempID != rec.ID {
			if _, err := e.queue.DeleteByRecordID(scope, rec.TempID); err != nil {
				e.logger.Warn("clearing queue entries", slog.String("id", rec.TempID), slog.String("error", err.Error()))
			}
		}

		res.Succeeded++
		e.metrics.RecordsSynced.Inc()

		if rec.TempID != "" {
			e.logger.Debug("offline creation confirmed",
				slog.String("tempId", rec.TempID),
				slog.String("id", confirmed.ID),
			)
		}
	}
}

// noteRetry bumps retry counts on the record's queued operations and
// moves exhausted ones to the failed log.
func (e *Engine) noteRetry(scope string, rec record.Record, cause error) {
	ops, err := e.queue.All(scope)
	if err != nil {
		e.logger.Warn("listing queue for retry bookkeeping", slog.String("error", err.Error()))
		return
	}

	for _, op := range ops {
		if op.RecordID != rec.ID && (rec.TempID == "" || op.RecordID != rec.TempID) {
			continue
		}

		count, err := e.queue.IncrementRetry(scope, op.ID)
		if err != nil {
			e.logger.Warn("incrementing retry count", slog.String("op", op.ID), slog.String("error", err.Error()))
			continue
		}

		if count >= queue.MaxRetries {
			if err := e.queue.MoveToFailed(scope, op.ID, cause.Error()); err != nil {
				e.logger.Warn("moving op to failed log", slog.String("op", op.ID), slog.String("error", err.Error()))
				continue
			}

			e.logger.Warn("operation exhausted retries",
				slog.String("op", op.ID),
				slog.String("record", op.RecordID),
			)
		}
	}
}

// gcTombstones purges tombstones whose deletion is resolved (synced,
// nothing pending) and any tombstone older than the retention window
// regardless of status. Bounded storage growth takes priority over
// indefinitely preserving resolved delete intents.
func gcTombstones(records []record.Record, retention time.Duration) ([]record.Record, int) {
	now := timeutil.NowMillis()
	cutoff := now - retention.Milliseconds()

	kept := records[:0]
	purged := 0

	for _, r := range records {
		if r.IsDeleted {
			resolved := r.SyncStatus == record.StatusSynced && !r.NeedsSync
			expired := r.DeletedAt > 0 && r.DeletedAt < cutoff

			if resolved || expired {
				purged++
				continue
			}
		}

		kept = append(kept, r)
	}

	return kept, purged
}
