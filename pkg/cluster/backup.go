package cluster

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/datapunk/lake/pkg/storage"
	"github.com/datapunk/lake/pkg/types"
)

// backupManifest is the JSON artifact persisted to disk for one partition
// backup: the partition's manifest and replication state as of backup time,
// sufficient to restore placement without replaying the raw record data
// (which lives in the partition's own columnar storage, out of scope here).
type backupManifest struct {
	Partition   *types.Partition         `json:"partition"`
	Replication *types.ReplicationState  `json:"replication"`
	CreatedAt   time.Time                `json:"created_at"`
}

// BackupManager snapshots partition manifests to disk with a SHA-256
// checksum and records each backup in the cluster's metadata store so it
// can be listed and later restored.
type BackupManager struct {
	store   storage.Store
	backupDir string
}

// NewBackupManager creates a BackupManager rooted under
// filepath.Join(dataDir, "backups").
func NewBackupManager(store storage.Store, dataDir string) (*BackupManager, error) {
	dir := filepath.Join(dataDir, "backups")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	return &BackupManager{store: store, backupDir: dir}, nil
}

// Create writes a new backup of partition's manifest and replication state,
// computing its SHA-256 checksum and appending it to the backup index for
// that partition under the next version number.
func (bm *BackupManager) Create(partition *types.Partition, replication *types.ReplicationState) (*storage.BackupRecord, error) {
	key := partition.Key.String()

	existing, err := bm.store.ListBackups(key)
	if err != nil {
		return nil, fmt.Errorf("list existing backups: %w", err)
	}
	version := uint64(len(existing)) + 1

	manifest := backupManifest{
		Partition:   partition,
		Replication: replication,
		CreatedAt:   time.Now(),
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal backup manifest: %w", err)
	}

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	fileName := fmt.Sprintf("%s.%d.json", sanitizeFileName(key), version)
	path := filepath.Join(bm.backupDir, fileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("write backup file: %w", err)
	}

	rec := &storage.BackupRecord{
		PartitionKey: key,
		Version:      version,
		Path:         path,
		Checksum:     checksum,
		CreatedAt:    manifest.CreatedAt.Format(time.RFC3339),
	}
	if err := bm.store.RecordBackup(rec); err != nil {
		return nil, fmt.Errorf("record backup: %w", err)
	}
	return rec, nil
}

// List returns every recorded backup for a partition, oldest version first.
func (bm *BackupManager) List(partitionKey string) ([]*storage.BackupRecord, error) {
	records, err := bm.store.ListBackups(partitionKey)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Version < records[j].Version })
	return records, nil
}

// Restore reads a backup file, verifies its checksum against the recorded
// value, and returns the decoded partition manifest and replication state.
// It does not itself re-apply the restored state to the cluster — callers
// typically feed the result back through Cluster.AssignPartition.
func (bm *BackupManager) Restore(rec *storage.BackupRecord) (*types.Partition, *types.ReplicationState, error) {
	data, err := os.ReadFile(rec.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("read backup file: %w", err)
	}

	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != rec.Checksum {
		return nil, nil, fmt.Errorf("backup checksum mismatch for %s version %d", rec.PartitionKey, rec.Version)
	}

	var manifest backupManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, nil, fmt.Errorf("decode backup manifest: %w", err)
	}
	return manifest.Partition, manifest.Replication, nil
}

func sanitizeFileName(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
