package store

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

const testScope = "user-42"

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(id string) record.Record {
	return record.Record{
		ID:           id,
		Body:         json.RawMessage(`{"name":"IPA"}`),
		LastModified: 1000,
		SyncStatus:   record.StatusSynced,
	}
}

// --- Open / Close ---

func TestOpen_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

// --- Load ---

func TestLoad_FreshScope(t *testing.T) {
	s := testStore(t)

	records, meta, err := s.Load(testScope)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, int64(0), meta.LastSync)
	assert.Equal(t, record.SchemaVersion, meta.Version)
}

func TestLoad_SkipsCorruptEntries(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Save(testScope, []record.Record{sampleRecord("a")}, record.SyncMetadata{Version: record.SchemaVersion}))

	// Poison one entry directly in bbolt.
	err := s.DB().Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket(testScope)).Put([]byte("bad"), []byte("{not json"))
	})
	require.NoError(t, err)

	records, _, err := s.Load(testScope)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].ID)
}

func TestLoad_CorruptMetadataFallsBackToFresh(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Save(testScope, nil, record.SyncMetadata{LastSync: 99, Version: 1}))

	err := s.DB().Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket(testScope)).Put([]byte(metaKey), []byte("garbage"))
	})
	require.NoError(t, err)

	_, meta, err := s.Load(testScope)
	require.NoError(t, err)
	assert.Equal(t, int64(0), meta.LastSync)
}

// --- Save ---

func TestSave_RoundTrip(t *testing.T) {
	s := testStore(t)

	in := []record.Record{sampleRecord("a"), sampleRecord("b")}
	meta := record.SyncMetadata{LastSync: 12345, Version: record.SchemaVersion}
	require.NoError(t, s.Save(testScope, in, meta))

	records, gotMeta, err := s.Load(testScope)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, int64(12345), gotMeta.LastSync)
}

func TestSave_ReplacesWholeSet(t *testing.T) {
	s := testStore(t)
	meta := record.SyncMetadata{Version: record.SchemaVersion}

	require.NoError(t, s.Save(testScope, []record.Record{sampleRecord("a"), sampleRecord("b")}, meta))
	require.NoError(t, s.Save(testScope, []record.Record{sampleRecord("c")}, meta))

	records, _, err := s.Load(testScope)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "c", records[0].ID)
}

func TestSave_KeysTempRecordsByTempID(t *testing.T) {
	s := testStore(t)

	temp := record.Record{ID: "offline_x", TempID: "offline_x", NeedsSync: true, SyncStatus: record.StatusPending}
	require.NoError(t, s.Save(testScope, []record.Record{temp}, record.SyncMetadata{}))

	records, _, err := s.Load(testScope)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "offline_x", records[0].Key())
}

// --- Scope isolation ---

func TestScopes_DoNotLeak(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Save("alice", []record.Record{sampleRecord("a")}, record.SyncMetadata{}))
	require.NoError(t, s.Save("bob", []record.Record{sampleRecord("b")}, record.SyncMetadata{}))

	aliceRecords, _, err := s.Load("alice")
	require.NoError(t, err)
	require.Len(t, aliceRecords, 1)
	assert.Equal(t, "a", aliceRecords[0].ID)
}

// --- Clear ---

func TestClear_WipesOnlyGivenScope(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Save("alice", []record.Record{sampleRecord("a")}, record.SyncMetadata{LastSync: 5}))
	require.NoError(t, s.Save("bob", []record.Record{sampleRecord("b")}, record.SyncMetadata{LastSync: 6}))

	require.NoError(t, s.Clear("alice"))

	aliceRecords, aliceMeta, err := s.Load("alice")
	require.NoError(t, err)
	assert.Empty(t, aliceRecords)
	assert.Equal(t, int64(0), aliceMeta.LastSync)

	bobRecords, _, err := s.Load("bob")
	require.NoError(t, err)
	assert.Len(t, bobRecords, 1)
}

func TestClear_MissingScopeIsNoop(t *testing.T) {
	s := testStore(t)
	assert.NoError(t, s.Clear("never-existed"))
}
