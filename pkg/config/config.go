// Package config loads the lake's on-disk configuration document and layers
// environment variable overrides on top of it, per the DP_* variables in the
// external interface contract.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the typed root of the configuration tree. One sub-struct per
// component, matching the "typed config record" design note.
type Config struct {
	NodeID      string   `yaml:"node_id"`
	DataDir     string   `yaml:"data_dir"`
	BindAddr    string   `yaml:"bind_addr"`
	ClusterSeeds []string `yaml:"cluster_seeds"`

	Log        LogConfig        `yaml:"log"`
	TLS        TLSConfig        `yaml:"tls"`
	Partition  PartitionConfig  `yaml:"partition"`
	Cluster    ClusterConfig    `yaml:"cluster"`
	Cache      CacheConfig      `yaml:"cache"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Federation FederationConfig `yaml:"federation"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	API        APIConfig        `yaml:"api"`
}

// LogConfig controls the ambient zerolog logger.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// TLSConfig names the certificate material for mTLS cluster RPC.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
}

// PartitionConfig configures C1's rollup and retention scheduling.
type PartitionConfig struct {
	DefaultGranularity string        `yaml:"default_granularity"`
	RollupInterval     time.Duration `yaml:"rollup_interval"`
	RetentionScanInterval time.Duration `yaml:"retention_scan_interval"`
}

// ClusterConfig configures C2's Raft, replication, health and circuit
// breaker settings.
type ClusterConfig struct {
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	SuspectMultiplier  int           `yaml:"suspect_multiplier"`
	DeadAfter          time.Duration `yaml:"dead_after"`
	ReplicationFactor  int           `yaml:"replication_factor"`
	WriteQuorum        int           `yaml:"write_quorum"`
	ElectionTimeoutMin time.Duration `yaml:"election_timeout_min"`
	ElectionTimeoutMax time.Duration `yaml:"election_timeout_max"`
	RaftDurable        bool          `yaml:"raft_durable"`
	UnhealthyThreshold float64       `yaml:"unhealthy_threshold"`
	RecoveryThreshold  float64       `yaml:"recovery_threshold"`
	CircuitFailureThreshold int      `yaml:"circuit_failure_threshold"`
	CircuitCooldown    time.Duration `yaml:"circuit_cooldown"`
	CircuitProbeLimit  int           `yaml:"circuit_probe_limit"`
}

// CacheConfig configures C3's two-tier cache.
type CacheConfig struct {
	Tier1MaxEntries int           `yaml:"tier1_max_entries"`
	RedisAddr       string        `yaml:"redis_addr"`
	QueryResultTTL  time.Duration `yaml:"query_result_ttl"`
	PlanCacheTTL    time.Duration `yaml:"plan_cache_ttl"`
	JitterFraction  float64       `yaml:"jitter_fraction"`
	HighWatermark   float64       `yaml:"high_watermark"`
	LowWatermark    float64       `yaml:"low_watermark"`
}

// RateLimitConfig configures the per-(tenant,resource) token bucket.
type RateLimitConfig struct {
	DefaultRPS       float64       `yaml:"default_rps"`
	DefaultBurst     int           `yaml:"default_burst"`
	WindowSize       time.Duration `yaml:"window_size"`
	FailOpen         bool          `yaml:"fail_open"`
}

// FederationConfig configures C6's dispatch pool and timeouts.
type FederationConfig struct {
	MaxConcurrentSubPlans int           `yaml:"max_concurrent_sub_plans"`
	SubPlanTimeout        time.Duration `yaml:"sub_plan_timeout"`
	RetryAttempts         int           `yaml:"retry_attempts"`
	RetryBaseDelay        time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay         time.Duration `yaml:"retry_max_delay"`
	CancelTimeout         time.Duration `yaml:"cancel_timeout"`
}

// MonitorConfig configures C7's metrics address and alert evaluation interval.
type MonitorConfig struct {
	EvalInterval   time.Duration `yaml:"eval_interval"`
	MetricsAddr    string        `yaml:"metrics_addr"`
}

// APIConfig configures C8's HTTP surface.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	JWTSecret  string `yaml:"jwt_secret"`
}

// Default returns a Config populated with the spec's documented defaults.
func Default() Config {
	return Config{
		BindAddr: "0.0.0.0:7420",
		Log:      LogConfig{Level: "info", JSON: false},
		Partition: PartitionConfig{
			DefaultGranularity:    "day",
			RollupInterval:        time.Hour,
			RetentionScanInterval: time.Hour,
		},
		Cluster: ClusterConfig{
			HeartbeatInterval:       2 * time.Second,
			SuspectMultiplier:       3,
			DeadAfter:               30 * time.Second,
			ReplicationFactor:       3,
			WriteQuorum:             2,
			ElectionTimeoutMin:      150 * time.Millisecond,
			ElectionTimeoutMax:      300 * time.Millisecond,
			RaftDurable:             true,
			UnhealthyThreshold:      0.5,
			RecoveryThreshold:       0.8,
			CircuitFailureThreshold: 5,
			CircuitCooldown:         60 * time.Second,
			CircuitProbeLimit:       3,
		},
		Cache: CacheConfig{
			Tier1MaxEntries: 10000,
			RedisAddr:       "127.0.0.1:6379",
			QueryResultTTL:  60 * time.Second,
			PlanCacheTTL:    time.Hour,
			JitterFraction:  0.1,
			HighWatermark:   0.9,
			LowWatermark:    0.75,
		},
		RateLimit: RateLimitConfig{
			DefaultRPS:   10,
			DefaultBurst: 20,
			WindowSize:   60 * time.Second,
			FailOpen:     true,
		},
		Federation: FederationConfig{
			MaxConcurrentSubPlans: 16,
			SubPlanTimeout:        30 * time.Second,
			RetryAttempts:         2,
			RetryBaseDelay:        time.Second,
			RetryMaxDelay:         30 * time.Second,
			CancelTimeout:         5 * time.Second,
		},
		Monitor: MonitorConfig{
			EvalInterval: 15 * time.Second,
			MetricsAddr:  "0.0.0.0:9420",
		},
		API: APIConfig{
			ListenAddr: "0.0.0.0:8420",
		},
	}
}

// Load reads a YAML config document at path over the defaults, then applies
// DP_* environment variable overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DP_NODE_ID"); v != "" {
		cfg.NodeID = v
	}
	if v := os.Getenv("DP_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("DP_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DP_TLS_CERT"); v != "" {
		cfg.TLS.CertFile = v
	}
	if v := os.Getenv("DP_TLS_KEY"); v != "" {
		cfg.TLS.KeyFile = v
	}
	if v := os.Getenv("DP_TLS_CA"); v != "" {
		cfg.TLS.CAFile = v
	}
	if v := os.Getenv("DP_JWT_SECRET"); v != "" {
		cfg.API.JWTSecret = v
	}
	if v := os.Getenv("DP_CLUSTER_SEEDS"); v != "" {
		cfg.ClusterSeeds = splitCSV(v)
	}
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
