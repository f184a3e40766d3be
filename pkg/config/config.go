// Package config loads the YAML configuration for the broker,
// controller, and coordinator binaries.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BrokerConfig configures one broker process.
type BrokerConfig struct {
	ID                     int32  `yaml:"id"`
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	LogDir                 string `yaml:"log_dir"`
	MaxSegmentSizeBytes    int64  `yaml:"max_segment_size_bytes"`
	SegmentRollIntervalMs  int64  `yaml:"segment_roll_interval_ms"`
	MaxInflightBytes       int64  `yaml:"max_inflight_bytes"`
	ReplicationFactor      int    `yaml:"replication_factor"`
	MinInsyncReplicas      int    `yaml:"min_insync_replicas"`
	RequestTimeoutMs       int64  `yaml:"request_timeout_ms"`
	ReplicationTimeoutMs   int64  `yaml:"replication_timeout_ms"`
	RetentionBytes         int64  `yaml:"retention_bytes"`
	RetentionCleanupMs     int64  `yaml:"retention_cleanup_interval_ms"`
	IdempotencyMaxEntries  int    `yaml:"idempotency_max_entries"`
	IdempotencyTTLMs       int64  `yaml:"idempotency_ttl_ms"`
	EnableMetrics          bool   `yaml:"enable_metrics"`
	MetricsPort            int    `yaml:"metrics_port"`
	LogLevel               string `yaml:"log_level"`
}

// ControllerConfig configures the controller process.
type ControllerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	EnableMetrics bool `yaml:"enable_metrics"`
	MetricsPort int    `yaml:"metrics_port"`
	LogLevel    string `yaml:"log_level"`
}

// CoordinatorConfig configures the consumer-group coordinator process.
type CoordinatorConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	SessionTimeoutMs  int64  `yaml:"session_timeout_ms"`
	CleanupIntervalMs int64  `yaml:"cleanup_interval_ms"`
	OffsetsBackend    string `yaml:"offsets_backend"` // "memory" (default) or "etcd"
	EtcdEndpoints     []string `yaml:"etcd_endpoints"`
	EnableMetrics     bool   `yaml:"enable_metrics"`
	MetricsPort       int    `yaml:"metrics_port"`
	LogLevel          string `yaml:"log_level"`
}

func defaultBroker() BrokerConfig {
	return BrokerConfig{
		Port:                  9092,
		LogDir:                "./data",
		MaxSegmentSizeBytes:   512 * 1024 * 1024,
		ReplicationFactor:     1,
		MinInsyncReplicas:     1,
		RequestTimeoutMs:      30_000,
		ReplicationTimeoutMs:  30_000,
		RetentionBytes:        10 * 1024 * 1024 * 1024,
		RetentionCleanupMs:    300_000,
		IdempotencyMaxEntries: 10_000,
		IdempotencyTTLMs:      3_600_000,
		EnableMetrics:         true,
		MetricsPort:           9100,
		LogLevel:              "info",
	}
}

// LoadBroker reads and validates a broker YAML config file.
func LoadBroker(path string) (BrokerConfig, error) {
	cfg := defaultBroker()
	if err := unmarshalFile(path, &cfg); err != nil {
		return BrokerConfig{}, err
	}
	if cfg.ReplicationFactor != 1 {
		// Replication is declared but unimplemented; surface the
		// limitation as a config error rather than silently ignoring it.
		return BrokerConfig{}, fmt.Errorf("config: replication_factor %d unsupported, this broker is single-replica only", cfg.ReplicationFactor)
	}
	return cfg, nil
}

// LoadController reads a controller YAML config file.
func LoadController(path string) (ControllerConfig, error) {
	cfg := ControllerConfig{Port: 9093, EnableMetrics: true, MetricsPort: 9101, LogLevel: "info"}
	if err := unmarshalFile(path, &cfg); err != nil {
		return ControllerConfig{}, err
	}
	return cfg, nil
}

// LoadCoordinator reads a coordinator YAML config file.
func LoadCoordinator(path string) (CoordinatorConfig, error) {
	cfg := CoordinatorConfig{
		Port: 9094, SessionTimeoutMs: 10_000, CleanupIntervalMs: 30_000,
		OffsetsBackend: "memory", EnableMetrics: true, MetricsPort: 9102, LogLevel: "info",
	}
	if err := unmarshalFile(path, &cfg); err != nil {
		return CoordinatorConfig{}, err
	}
	return cfg, nil
}

func unmarshalFile(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
