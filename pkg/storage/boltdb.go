package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/datapunk/lake/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketNodes        = []byte("nodes")
	bucketPartitions   = []byte("partitions")
	bucketReplication  = []byte("replication_state")
	bucketSecrets      = []byte("secrets")
	bucketBackups      = []byte("backups")
	bucketCA           = []byte("ca")
)

// BoltStore implements Store on top of go.etcd.io/bbolt, the same
// embedded-KV approach used for cluster metadata in the teacher codebase.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the lake.db file under dataDir and
// ensures every bucket this Store needs exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "lake.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketNodes,
			bucketPartitions,
			bucketReplication,
			bucketSecrets,
			bucketBackups,
			bucketCA,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Node operations

func (s *BoltStore) CreateNode(node *types.Node) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		data, err := json.Marshal(node)
		if err != nil {
			return err
		}
		return b.Put([]byte(node.ID), data)
	})
}

func (s *BoltStore) GetNode(id string) (*types.Node, error) {
	var node types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("node not found: %s", id)
		}
		return json.Unmarshal(data, &node)
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *BoltStore) ListNodes() ([]*types.Node, error) {
	var nodes []*types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		return b.ForEach(func(k, v []byte) error {
			var node types.Node
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			nodes = append(nodes, &node)
			return nil
		})
	})
	return nodes, err
}

func (s *BoltStore) UpdateNode(node *types.Node) error {
	return s.CreateNode(node) // upsert
}

func (s *BoltStore) DeleteNode(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		return b.Delete([]byte(id))
	})
}

// Partition operations

func (s *BoltStore) CreatePartition(p *types.Partition) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPartitions)
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return b.Put([]byte(p.Key.String()), data)
	})
}

func (s *BoltStore) GetPartition(key string) (*types.Partition, error) {
	var p types.Partition
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPartitions)
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("partition not found: %s", key)
		}
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *BoltStore) ListPartitions() ([]*types.Partition, error) {
	var partitions []*types.Partition
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPartitions)
		return b.ForEach(func(k, v []byte) error {
			var p types.Partition
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			partitions = append(partitions, &p)
			return nil
		})
	})
	return partitions, err
}

func (s *BoltStore) UpdatePartition(p *types.Partition) error {
	return s.CreatePartition(p)
}

func (s *BoltStore) DeletePartition(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPartitions)
		return b.Delete([]byte(key))
	})
}

// Replication state operations

func (s *BoltStore) SaveReplicationState(rs *types.ReplicationState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReplication)
		data, err := json.Marshal(rs)
		if err != nil {
			return err
		}
		return b.Put([]byte(rs.PartitionKey), data)
	})
}

func (s *BoltStore) GetReplicationState(partitionKey string) (*types.ReplicationState, error) {
	var rs types.ReplicationState
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReplication)
		data := b.Get([]byte(partitionKey))
		if data == nil {
			return fmt.Errorf("replication state not found: %s", partitionKey)
		}
		return json.Unmarshal(data, &rs)
	})
	if err != nil {
		return nil, err
	}
	return &rs, nil
}

func (s *BoltStore) ListReplicationStates() ([]*types.ReplicationState, error) {
	var states []*types.ReplicationState
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReplication)
		return b.ForEach(func(k, v []byte) error {
			var rs types.ReplicationState
			if err := json.Unmarshal(v, &rs); err != nil {
				return err
			}
			states = append(states, &rs)
			return nil
		})
	})
	return states, err
}

// Secret operations — values are already encrypted by pkg/security before
// reaching the store; the store never sees plaintext.

func (s *BoltStore) CreateSecret(name string, encrypted []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSecrets)
		return b.Put([]byte(name), encrypted)
	})
}

func (s *BoltStore) GetSecret(name string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSecrets)
		v := b.Get([]byte(name))
		if v == nil {
			return fmt.Errorf("secret not found: %s", name)
		}
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	return data, err
}

func (s *BoltStore) DeleteSecret(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSecrets)
		return b.Delete([]byte(name))
	})
}

// Backup index operations

func (s *BoltStore) RecordBackup(rec *BackupRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBackups)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%s.%d", rec.PartitionKey, rec.Version)
		return b.Put([]byte(key), data)
	})
}

func (s *BoltStore) ListBackups(partitionKey string) ([]*BackupRecord, error) {
	var records []*BackupRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBackups)
		c := b.Cursor()
		prefix := []byte(partitionKey + ".")
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var rec BackupRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, &rec)
		}
		return nil
	})
	return records, err
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// SaveCA / GetCA persist the certificate authority's state under the key
// "ca": pkg/security's JSON with the root certificate and the root key
// encrypted with the cluster key.

func (s *BoltStore) SaveCA(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCA)
		return b.Put([]byte("ca"), data)
	})
}

func (s *BoltStore) GetCA() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCA)
		v := b.Get([]byte("ca"))
		if v == nil {
			return fmt.Errorf("CA not found")
		}
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	return data, err
}
