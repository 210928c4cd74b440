// Package types defines the core data model shared across the lake: records,
// partition keys, partitions, cluster nodes, replication state, query plans
// and cache entries.
package types

import (
	"time"
)

// Record is the atomic unit stored by the lake.
type Record struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	GeoPoint    *GeoPoint         `json:"geo_point,omitempty"`
	LogicalType string            `json:"logical_type"`
	Payload     []byte            `json:"payload"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Granularity is a calendar bucketing width for time partitioning.
type Granularity string

const (
	GranularityMinute  Granularity = "minute"
	GranularityHour    Granularity = "hour"
	GranularityDay     Granularity = "day"
	GranularityWeek    Granularity = "week"
	GranularityMonth   Granularity = "month"
	GranularityQuarter Granularity = "quarter"
	GranularityYear    Granularity = "year"
)

// GridSystem names a supported spatial grid implementation.
type GridSystem string

const (
	GridGeohash GridSystem = "geohash"
	GridH3      GridSystem = "h3"
	GridS2      GridSystem = "s2"
	GridQuadkey GridSystem = "quadkey"
	GridRTree   GridSystem = "rtree"
)

// PartitionKeyKind distinguishes the two PartitionKey families.
type PartitionKeyKind string

const (
	PartitionKeyTime PartitionKeyKind = "time"
	PartitionKeyGrid PartitionKeyKind = "grid"
)

// PartitionKey identifies a partition. Exactly one of the Time* or Grid*
// field groups is populated, selected by Kind.
type PartitionKey struct {
	Kind PartitionKeyKind `json:"kind"`

	// Populated when Kind == PartitionKeyTime.
	Granularity Granularity `json:"granularity,omitempty"`
	Boundary    time.Time   `json:"boundary,omitempty"`

	// Populated when Kind == PartitionKeyGrid.
	System    GridSystem `json:"system,omitempty"`
	CellID    string     `json:"cell_id,omitempty"`
	Precision int        `json:"precision,omitempty"`
}

// String renders a PartitionKey as the stable identifier used for lookups,
// cache fingerprints and storage bucket names.
func (k PartitionKey) String() string {
	switch k.Kind {
	case PartitionKeyTime:
		return string(k.Kind) + ":" + string(k.Granularity) + ":" + k.Boundary.UTC().Format(time.RFC3339)
	case PartitionKeyGrid:
		return string(k.Kind) + ":" + string(k.System) + ":" + k.CellID
	default:
		return "invalid"
	}
}

// ColumnStats summarizes one column's values within a partition.
type ColumnStats struct {
	Min            float64          `json:"min,omitempty"`
	Max            float64          `json:"max,omitempty"`
	DistinctApprox int64            `json:"distinct_approx,omitempty"`
	Histogram      map[string]int64 `json:"histogram,omitempty"`
}

// Polygon is a closed ring of points describing a partition's spatial bounds.
type Polygon struct {
	Points []GeoPoint `json:"points"`
}

// Partition maps a PartitionKey to the records that belong to it, plus
// summary metadata used by the optimizer and retention jobs.
type Partition struct {
	Key               PartitionKey           `json:"key"`
	RecordIDs         []string               `json:"record_ids"`
	SizeBytes         int64                  `json:"size_bytes"`
	RecordCount       int64                  `json:"record_count"`
	FirstTimestamp    time.Time              `json:"first_timestamp"`
	LastTimestamp     time.Time              `json:"last_timestamp"`
	Bounds            *Polygon               `json:"bounds,omitempty"`
	Stats             map[string]ColumnStats `json:"stats,omitempty"`
	Version           uint64                 `json:"version"`
	SourceGranularity Granularity            `json:"source_granularity,omitempty"`
}

// NodeRole is the node's current role in the Raft cluster.
type NodeRole string

const (
	NodeRoleFollower  NodeRole = "follower"
	NodeRoleCandidate NodeRole = "candidate"
	NodeRoleLeader    NodeRole = "leader"
)

// NodeStatus is the health-monitor's view of cluster membership.
type NodeStatus string

const (
	NodeStatusAlive   NodeStatus = "alive"
	NodeStatusSuspect NodeStatus = "suspect"
	NodeStatusDead    NodeStatus = "dead"
)

// ResourceMetrics is a snapshot of a node's load, used by health scoring and
// the load balancer.
type ResourceMetrics struct {
	CPU       float64 `json:"cpu"`
	Memory    float64 `json:"memory"`
	Disk      float64 `json:"disk"`
	IOPS      float64 `json:"iops"`
	NetInBps  float64 `json:"net_in_bps"`
	NetOutBps float64 `json:"net_out_bps"`
	ErrorRate float64 `json:"error_rate"`
	LatencyMs float64 `json:"latency_ms"`
}

// Node is a cluster member.
type Node struct {
	ID                  string          `json:"id"`
	Address             string          `json:"address"`
	Role                NodeRole        `json:"role"`
	Metrics             ResourceMetrics `json:"metrics"`
	Status              NodeStatus      `json:"status"`
	LastHeartbeat       time.Time       `json:"last_heartbeat"`
	AssignedPartitions  []string        `json:"assigned_partitions"`
	HealthScore         float64         `json:"health_score"`
	CreatedAt           time.Time       `json:"created_at"`
}

// SyncStatus is a replica's catch-up state relative to its primary.
type SyncStatus string

const (
	SyncInSync  SyncStatus = "in_sync"
	SyncLagging SyncStatus = "lagging"
	SyncFailed  SyncStatus = "failed"
)

// ReplicationState tracks a partition's primary/replica assignment and the
// per-node sync status used by the catch-up protocol.
type ReplicationState struct {
	PartitionKey string                `json:"partition_key"`
	PrimaryNode  string                `json:"primary_node"`
	ReplicaNodes []string              `json:"replica_nodes"`
	SyncStatus   map[string]SyncStatus `json:"sync_status"`
	Version      uint64                `json:"version"`
	Checksum     string                `json:"checksum"`
}

// ClusterState is the Raft-replicated view of cluster membership and
// partition placement.
type ClusterState struct {
	Version            uint64                        `json:"version"`
	Nodes              map[string]*Node              `json:"nodes"`
	PartitionLocations map[string]*ReplicationState  `json:"partition_locations"`
	RaftTerm           uint64                        `json:"raft_term"`
	CommitIndex        uint64                        `json:"commit_index"`
}

// PlanNodeKind tags the variant of a QueryPlan node.
type PlanNodeKind string

const (
	PlanScan           PlanNodeKind = "scan"
	PlanFilter         PlanNodeKind = "filter"
	PlanProject        PlanNodeKind = "project"
	PlanJoin           PlanNodeKind = "join"
	PlanAggregate      PlanNodeKind = "aggregate"
	PlanSort           PlanNodeKind = "sort"
	PlanLimit          PlanNodeKind = "limit"
	PlanUnion          PlanNodeKind = "union"
	PlanPivotMR        PlanNodeKind = "pivot_mr"
	PlanTimeSeries     PlanNodeKind = "time_series"
	PlanGraphTraversal PlanNodeKind = "graph_traversal"
)

// JoinType enumerates the supported join semantics.
type JoinType string

const (
	JoinInner JoinType = "inner"
	JoinLeft  JoinType = "left"
	JoinRight JoinType = "right"
	JoinFull  JoinType = "full"
	JoinCross JoinType = "cross"
)

// PlanNode is one node of a QueryPlan DAG. Only the fields relevant to Kind
// are populated; plans are immutable once built — optimization always
// produces a new tree.
type PlanNode struct {
	Kind PlanNodeKind `json:"kind"`
	ID   string       `json:"id"`

	// Scan
	Source          string   `json:"source,omitempty"`
	PartitionFilter []string `json:"partition_filter,omitempty"`

	// Filter
	Predicate string `json:"predicate,omitempty"`

	// Project
	Columns []string `json:"columns,omitempty"`

	// Join
	JoinKind JoinType  `json:"join_kind,omitempty"`
	Left     *PlanNode `json:"left,omitempty"`
	Right    *PlanNode `json:"right,omitempty"`
	On       string    `json:"on,omitempty"`

	// Aggregate
	GroupKeys []string `json:"group_keys,omitempty"`
	Aggs      []string `json:"aggs,omitempty"`

	// Sort
	SortKeys []string `json:"sort_keys,omitempty"`

	// Limit
	N int64 `json:"n,omitempty"`

	// Union
	Inputs []*PlanNode `json:"inputs,omitempty"`

	// Single-child operators (Filter, Project, Aggregate, Sort, Limit)
	Input *PlanNode `json:"input,omitempty"`

	// TimeSeries / GraphTraversal / PivotMR carry an opaque spec since their
	// shape is dialect-specific; the optimizer treats them as opaque leaves.
	Spec map[string]any `json:"spec,omitempty"`
}

// QueryPlan is the root of an immutable plan DAG produced by the parser and
// rewritten by the optimizer.
type QueryPlan struct {
	Root      *PlanNode `json:"root"`
	Canonical string    `json:"canonical,omitempty"`
}

// CacheEntry is one value stored in the two-tier cache.
type CacheEntry struct {
	Key          string    `json:"key"`
	Value        []byte    `json:"value"`
	TTL          int64     `json:"ttl_seconds"`
	Version      uint64    `json:"version"`
	InsertedAt   time.Time `json:"inserted_at"`
	LastAccessed time.Time `json:"last_accessed"`
	AccessCount  int64     `json:"access_count"`
	SizeBytes    int64     `json:"size_bytes"`
}

// DataSourceKind enumerates the federation executor's source families.
type DataSourceKind string

const (
	SourceRelational DataSourceKind = "relational"
	SourceDocument   DataSourceKind = "document"
	SourceGraph      DataSourceKind = "graph"
	SourceTimeSeries DataSourceKind = "timeseries"
	SourceObject     DataSourceKind = "object"
)

// DataSource describes one federated backend and what it can execute.
type DataSource struct {
	Name         string         `json:"name"`
	Kind         DataSourceKind `json:"kind"`
	Endpoint     string         `json:"endpoint"`
	Capabilities Capabilities   `json:"capabilities"`
}

// Capabilities lists the operators a DataSource can execute itself, so the
// splitter knows what must be pushed down versus handled at the coordinator.
type Capabilities struct {
	Operators      []string   `json:"operators"`
	JoinTypes      []JoinType `json:"join_types"`
	AggregateFuncs []string   `json:"aggregate_funcs"`
}
