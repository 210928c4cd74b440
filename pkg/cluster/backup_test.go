package cluster

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapunk/lake/pkg/storage"
	"github.com/datapunk/lake/pkg/types"
)

func newTestBackupManager(t *testing.T) (*BackupManager, storage.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	bm, err := NewBackupManager(store, dir)
	require.NoError(t, err)
	return bm, store
}

func testPartition() *types.Partition {
	return &types.Partition{
		Key:         types.PartitionKey{Kind: types.PartitionKeyGrid, System: types.GridGeohash, CellID: "9q8yy"},
		RecordCount: 42,
	}
}

func TestBackupCreateWritesFileAndIndexEntry(t *testing.T) {
	bm, _ := newTestBackupManager(t)
	p := testPartition()
	rs := &types.ReplicationState{PartitionKey: p.Key.String(), PrimaryNode: "node-1"}

	rec, err := bm.Create(p, rs)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.Version)
	assert.NotEmpty(t, rec.Checksum)

	_, err = os.Stat(rec.Path)
	assert.NoError(t, err)
}

func TestBackupCreateIncrementsVersion(t *testing.T) {
	bm, _ := newTestBackupManager(t)
	p := testPartition()
	rs := &types.ReplicationState{PartitionKey: p.Key.String()}

	first, err := bm.Create(p, rs)
	require.NoError(t, err)
	second, err := bm.Create(p, rs)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), first.Version)
	assert.Equal(t, uint64(2), second.Version)
}

func TestBackupListReturnsAllVersions(t *testing.T) {
	bm, _ := newTestBackupManager(t)
	p := testPartition()
	rs := &types.ReplicationState{PartitionKey: p.Key.String()}
	bm.Create(p, rs)
	bm.Create(p, rs)

	records, err := bm.List(p.Key.String())
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	bm, _ := newTestBackupManager(t)
	p := testPartition()
	rs := &types.ReplicationState{PartitionKey: p.Key.String(), PrimaryNode: "node-1", ReplicaNodes: []string{"node-2"}}

	rec, err := bm.Create(p, rs)
	require.NoError(t, err)

	gotPartition, gotReplication, err := bm.Restore(rec)
	require.NoError(t, err)
	assert.Equal(t, p.RecordCount, gotPartition.RecordCount)
	assert.Equal(t, rs.PrimaryNode, gotReplication.PrimaryNode)
	assert.Equal(t, rs.ReplicaNodes, gotReplication.ReplicaNodes)
}

func TestBackupRestoreDetectsChecksumMismatch(t *testing.T) {
	bm, _ := newTestBackupManager(t)
	p := testPartition()
	rs := &types.ReplicationState{PartitionKey: p.Key.String()}
	rec, err := bm.Create(p, rs)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(rec.Path, []byte(`{"tampered":true}`), 0644))

	_, _, err = bm.Restore(rec)
	assert.ErrorContains(t, err, "checksum mismatch")
}

func TestBackupRestoreMissingFileErrors(t *testing.T) {
	bm, _ := newTestBackupManager(t)
	_, _, err := bm.Restore(&storage.BackupRecord{Path: "/nonexistent/path.json", Checksum: "abc"})
	assert.Error(t, err)
}

func TestSanitizeFileNameReplacesUnsafeCharacters(t *testing.T) {
	assert.Equal(t, "time_day_2026-03-01T00_00_00Z", sanitizeFileName("time:day:2026-03-01T00:00:00Z"))
	assert.Equal(t, "grid-geohash_9q8yy", sanitizeFileName("grid-geohash:9q8yy"))
}

func TestNewBackupManagerCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewBoltStore(dir)
	require.NoError(t, err)
	defer store.Close()

	_, err = NewBackupManager(store, dir)
	require.NoError(t, err)

	info, err := os.Stat(dir + "/backups")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestBackupManifestCreatedAtIsRecent(t *testing.T) {
	bm, _ := newTestBackupManager(t)
	p := testPartition()
	before := time.Now()
	rec, err := bm.Create(p, &types.ReplicationState{PartitionKey: p.Key.String()})
	require.NoError(t, err)

	createdAt, err := time.Parse(time.RFC3339, rec.CreatedAt)
	require.NoError(t, err)
	assert.False(t, createdAt.Before(before.Add(-time.Second)))
}
