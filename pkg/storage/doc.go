/*
Package storage provides BoltDB-backed persistence for the lake's cluster metadata.

The storage package implements the Store interface using BoltDB as the underlying
database, providing ACID transactions for nodes, partition manifests, replication
state, encrypted secrets, the backup index and the certificate authority's state.
Nodes, partitions, replication state and backup records are serialized as JSON;
secrets and CA state are stored as the bytes the caller passes. Each kind lives
in its own bucket.

# Architecture

The package uses BoltDB (bbolt) for embedded, transactional storage with zero
external dependencies:

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            BoltStore                        │          │
	│  │  - File: <dataDir>/lake.db                  │          │
	│  │  - Format: B+tree with MVCC                 │          │
	│  │  - Transactions: ACID with fsync            │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Bucket Structure                │          │
	│  │  ┌────────────────────────────┐             │          │
	│  │  │ nodes             (node ID)│             │          │
	│  │  │ partitions        (key)    │             │          │
	│  │  │ replication_state (key)    │             │          │
	│  │  │ secrets           (name)   │             │          │
	│  │  │ backups           (key.ver)│             │          │
	│  │  │ ca                (fixed)  │             │          │
	│  │  └────────────────────────────┘             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │        Transaction Management                │          │
	│  │  - Read: db.View() - Concurrent reads       │          │
	│  │  - Write: db.Update() - Serialized writes   │          │
	│  │  - Rollback: Automatic on error             │          │
	│  │  - Commit: Automatic on success + fsync     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          JSON Serialization                  │          │
	│  │  - Marshal: Go struct → JSON bytes          │          │
	│  │  - Unmarshal: JSON bytes → Go struct        │          │
	│  │  - Validation: Type safety via Go types     │          │
	│  └────────────────────────────────────────────┘           │
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │           BoltDB File                        │          │
	│  │  - Copy-on-write B+tree                      │          │
	│  │  - Page size: 4KB                            │          │
	│  │  - mmap for reads                            │          │
	│  │  - Atomic writes with fsync                  │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

BoltStore:
  - Implements Store interface using BoltDB
  - Single database file per node
  - Automatic bucket creation on initialization
  - Thread-safe via BoltDB's transaction model

Buckets:
  - nodes: cluster node registrations, keyed by node ID
  - partitions: partition manifests, keyed by PartitionKey.String()
  - replication_state: primary/replica assignment, keyed by partition key
  - secrets: ciphertext keyed by secret name (encrypted before it reaches the store)
  - backups: backup index, one record per "<partition key>.<version>" key
  - ca: certificate authority state (single entry under the key "ca")

Transaction Model:
  - Read transactions: db.View() - Concurrent, consistent snapshots
  - Write transactions: db.Update() - Serialized, atomic commits
  - Isolation: Snapshot isolation (MVCC)
  - Durability: fsync on commit ensures crash recovery

# CRUD Operations

Node Operations:

Create Node:
  - Insert node metadata with ID as key
  - JSON serialization of Node struct
  - Atomic commit via transaction

Get Node:
  - Key lookup by node ID
  - Unmarshal JSON to Node struct
  - Returns error if not found

List Nodes:
  - Cursor iteration over nodes bucket
  - Deserialize all entries to []*Node
  - Empty slice if no nodes

Update Node:
  - Upsert operation (same as Create)
  - Overwrites existing key with new value
  - Atomic replacement

Delete Node:
  - Remove key from bucket
  - No error if key doesn't exist (idempotent)

Partition Operations:
  - CreatePartition and UpdatePartition are the same upsert, keyed by p.Key.String()
  - GetPartition looks up by key string and returns an error if not found
  - ListPartitions scans the whole bucket
  - DeletePartition is idempotent

Replication State Operations:
  - SaveReplicationState upserts, keyed by rs.PartitionKey
  - GetReplicationState returns an error if not found
  - ListReplicationStates scans the whole bucket

Secret Operations:
  - CreateSecret stores the given bytes under the name as they are
  - GetSecret returns a copy of the stored bytes, or an error if not found
  - DeleteSecret is idempotent

Backup Index Operations:
  - RecordBackup stores the record under "<partition key>.<version>"
  - ListBackups returns the records whose key starts with "<partition key>."
    in byte order of their keys, so version 10 comes before version 2

CA Operations:
  - SaveCA overwrites the single "ca" entry
  - GetCA returns a copy of it, or an error if none was saved

# Usage

Creating a Store:

	store, err := storage.NewBoltStore("/var/lib/lake/node-1") // opens .../node-1/lake.db
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

Node Operations:

	// Create node
	node := &types.Node{
		ID:      "node-abc123",
		Address: "10.0.0.5:7420",
		Role:    types.NodeRoleFollower,
		Status:  types.NodeStatusAlive,
	}
	err := store.CreateNode(node)

	// Get node
	node, err := store.GetNode("node-abc123")

	// List all nodes
	nodes, err := store.ListNodes()

	// Update node
	node.Status = types.NodeStatusDead
	err = store.UpdateNode(node)

	// Delete node
	err = store.DeleteNode("node-abc123")

Partition Operations:

	// Create or overwrite a manifest, keyed by p.Key.String()
	err := store.CreatePartition(p)

	// Get by key
	p, err := store.GetPartition("time:day:2026-01-01T00:00:00Z")

	// List all manifests
	partitions, err := store.ListPartitions()

	// Delete
	err = store.DeletePartition("time:day:2026-01-01T00:00:00Z")

Replication State:

	err := store.SaveReplicationState(&types.ReplicationState{
		PartitionKey: "time:day:2026-01-01T00:00:00Z",
		PrimaryNode:  "node-abc123",
	})
	rs, err := store.GetReplicationState("time:day:2026-01-01T00:00:00Z")

Secret Operations:

	// Store ciphertext (e.g. from security.SecretsManager.Seal) under a name
	err := store.CreateSecret("db-password", ciphertext)

	// Get the stored ciphertext
	ciphertext, err := store.GetSecret("db-password")

	// Delete secret
	err = store.DeleteSecret("db-password")

Backups Index:

	err := store.RecordBackup(&storage.BackupRecord{
		PartitionKey: key,
		Version:      1,
		Path:         path,
		Checksum:     checksum,
	})
	records, err := store.ListBackups(key)

Certificate Authority:

	// Save the CA state (the JSON that security.CertAuthority.SaveToStore writes)
	err := store.SaveCA(caData)

	// Get CA data
	caData, err := store.GetCA()

# Integration Points

This package integrates with:

  - pkg/cluster: the Raft FSM applies node, partition and replication-state
    commands; BackupManager records backups
  - pkg/partition: the retention and rollup jobs update and delete manifests
  - pkg/security: the CA saves and loads its state
  - cmd/lake: the backup command updates partition manifests
  - pkg/types: entity definitions

# Design Patterns

Upsert Pattern:
  - Create and Update use same method (db.Put)
  - No separate "exists" check needed
  - Simplifies API and caller code
  - Atomic replacement

Idempotent Deletes:
  - Delete returns no error if key doesn't exist
  - Safe to call multiple times
  - Simplifies cleanup code

Cursor Iteration:
  - ForEach pattern for full bucket scans
  - Memory efficient (streaming)
  - Consistent snapshot during iteration

Errors:
  - Open and bucket-creation failures are wrapped with %w
  - Lookups of an absent key return an error naming it, e.g. "node not found: <id>"
  - JSON encoding and decoding errors are returned unwrapped

Prefix Scan:
  - ListBackups seeks to "<partition key>." and walks the keys with that prefix
  - Results come back in byte order of the keys, not in numeric version order

# Performance Characteristics

Read Operations:
  - Get by key: O(log n) via B+tree, typically < 1ms
  - List all: O(n) full scan, ~1ms per 1000 entries
  - Filter by field: O(n) scan with predicate, same as List
  - Concurrent reads: Supported via MVCC snapshots

Write Operations:
  - Insert/Update: O(log n) for key, ~1-5ms with fsync
  - Delete: O(log n) for key, ~1-5ms with fsync
  - Batch writes: Single transaction, amortized cost
  - Serialized: Only one writer at a time (BoltDB limitation)

Database File Size:
  - Empty: 32KB (header + initial pages)
  - Growth: Linear with the number of nodes, manifests and backup records

Memory Usage:
  - mmap: Database file mapped to memory
  - Read-only pages: Shared across processes
  - Write buffer: ~4MB per transaction
  - Page cache: OS manages (warm frequently accessed pages)

Transaction Latency:
  - Read transaction: < 100µs (memory access)
  - Write transaction: 1-5ms (fsync to disk)
  - Under load: May queue (single writer)

# Troubleshooting

Common Issues:

Database Locked:
  - Symptom: NewBoltStore blocks and never returns (it sets no lock timeout)
  - Cause: Another process has exclusive lock
  - Solution: Ensure only one lake process opens the data directory
  - Check: No dangling processes holding file

Database Corruption:
  - Symptom: "invalid database" or checksum errors
  - Cause: Unclean shutdown, disk failure, bug
  - Solution: Restore from Raft snapshot backup
  - Prevention: Use fsync (enabled by default)

Slow Writes:
  - Symptom: High latency on Create/Update operations
  - Cause: Slow disk, large database, fragmentation
  - Check: fsync latency, disk I/O wait
  - Solution: Use SSD, compact database (future)

Memory Growth:
  - Symptom: Process memory usage grows over time
  - Cause: mmap keeps pages in cache
  - Check: OS page cache usage
  - Solution: Normal behavior, OS manages eviction

Large Database File:
  - Symptom: Database file grows large over time
  - Cause: No compaction, deleted keys leave space
  - Check: Compare file size to expected data size
  - Solution: Manual compact (future) or backup/restore

# Monitoring

The package exports no metrics of its own; the database file size and the
latency of store calls are visible only from outside it.

# Data Integrity

Transaction Guarantees:
  - Atomicity: All-or-nothing commits
  - Consistency: JSON validation before commit
  - Isolation: Snapshot reads, serialized writes
  - Durability: fsync ensures crash recovery

Backup and Restore:
  - Database is single file (easy to copy)
  - Backup: Copy file while database is closed OR use db.View()
  - Restore: Replace file and restart the node
  - Raft replicates node, partition and replication-state commands to
    every node's store; direct writes (retention, rollup, backups, CA) stay local

Data Migration:
  - Schema changes handled via JSON flexibility
  - New fields: Add with omitempty tag (backward compatible)
  - Remove fields: Ignored during unmarshal
  - Major changes: Implement migration in NewBoltStore

# Security

Encryption at Rest:
  - Database file not encrypted by default
  - Recommendation: Use disk encryption (LUKS, dm-crypt)
  - Secrets already encrypted before storage (AES-256-GCM)
  - Future: Full database encryption option

File Permissions:
  - Database file: 0600 (owner read/write only)
  - Directory: not created here; its mode is whatever the caller set
  - Prevents other users from reading cluster state

Access Control:
  - No authentication within database
  - Rely on OS file permissions
  - Code in the process calls the Store without authorization checks
  - Direct database access only for recovery

# See Also

  - pkg/cluster for the Raft FSM and backup manager
  - pkg/types for all entity definitions
  - pkg/partition for the retention and rollup jobs
  - pkg/security for the CA and secrets encryption
  - BoltDB documentation: https://github.com/etcd-io/bbolt
  - ACID properties: https://en.wikipedia.org/wiki/ACID
*/
package storage
