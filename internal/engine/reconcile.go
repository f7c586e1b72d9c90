package engine

import (
	"fmt"
	"sort"

	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/record"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// MergeOutcome is the result of reconciling the server's authoritative
// record set with the local store.
type MergeOutcome struct {
	// Records is the merged view, sorted by LastModified descending.
	// Ordering is presentational only.
	Records []record.Record

	// Conflicts lists the ids that were tagged StatusConflict.
	Conflicts []string

	// StaleTombstones lists tombstones whose id no longer exists on
	// the server: the deletion already happened upstream, so they are
	// eligible for immediate cleanup.
	StaleTombstones []string
}

// Merge combines an authoritative server record set with the local
// set. Pure decision function with no I/O; the engine persists the
// outcome. Rules, in precedence order:
//
//  1. A never-synced local creation (temporary identity) always wins;
//     the server cannot yet know about it.
//  2. A local tombstone always wins over any server version; a
//     deletion intent must never be resurrected by a stale listing.
//  3. Otherwise last-write-wins on LastModified. A strictly newer
//     server version over an unacknowledged local edit (StatusPending)
//     is a genuine conflict: the server version is retained, tagged
//     StatusConflict, with the losing local copy in OriginalData.
func Merge(server []record.Record, local []record.Record) MergeOutcome {
	merged := make(map[string]record.Record, len(server)+len(local))
	onServer := make(map[string]struct{}, len(server))

	for _, sr := range server {
		sr.SyncStatus = record.StatusSynced
		sr.NeedsSync = false
		merged[sr.ID] = sr
		onServer[sr.ID] = struct{}{}
	}

	var out MergeOutcome

	for _, lr := range local {
		key := lr.Key()

		if lr.LocalOnly() {
			merged[key] = lr
			continue
		}

		if lr.IsDeleted {
			if _, known := onServer[key]; !known {
				// Already deleted upstream. Defensive-tombstone
				// cleanup, not an error.
				out.StaleTombstones = append(out.StaleTombstones, key)
				delete(merged, key)

				continue
			}

			merged[key] = lr

			continue
		}

		sr, known := merged[key]
		if !known {
			merged[key] = lr
			continue
		}

		switch {
		case lr.LastModified > sr.LastModified:
			merged[key] = lr

		case lr.LastModified < sr.LastModified:
			if lr.SyncStatus == record.StatusPending {
				conflict := sr
				conflict.SyncStatus = record.StatusConflict
				loser := lr
				conflict.OriginalData = &loser
				merged[key] = conflict
				out.Conflicts = append(out.Conflicts, key)
			}
			// Otherwise the server version already in the map stands.

		default:
			// Equal timestamps: no mutation needed.
		}
	}

	out.Records = make([]record.Record, 0, len(merged))
	for _, r := range merged {
		out.Records = append(out.Records, r)
	}

	sort.SliceStable(out.Records, func(i, j int) bool {
		if out.Records[i].LastModified != out.Records[j].LastModified {
			return out.Records[i].LastModified > out.Records[j].LastModified
		}

		return out.Records[i].Key() < out.Records[j].Key()
	})

	return out
}

// conflictDiffSummary produces a compact description of how a losing
// local body differs from the winning server body, for operator
// debugging when a conflict is tagged.
func conflictDiffSummary(local, server []byte) string {
	dmp := diffmatchpatch.New()

	diffs := dmp.DiffMain(string(local), string(server), false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var inserted, deleted int

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			inserted += len(d.Text)
		case diffmatchpatch.DiffDelete:
			deleted += len(d.Text)
		}
	}

	return fmt.Sprintf("+%dB -%dB over %d hunks", inserted, deleted, len(diffs))
}
