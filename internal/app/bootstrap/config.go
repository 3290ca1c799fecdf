package bootstrap

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	AccountID     string
	RecordBackend string // postgres | redis | memory

	DatabaseURL string
	MaxDBConns  int32
	RedisURL    string

	KafkaBrokers       []string
	KafkaTopic         string
	KafkaConsumerGroup string

	MaxStartRetries    int
	MigrationBatchSize int

	ConsumerPollInterval   time.Duration
	ReconcileSweepInterval time.Duration
}

type configFile struct {
	Service struct {
		ID        string `yaml:"id"`
		HTTPPort  int    `yaml:"http_port"`
		GRPCPort  int    `yaml:"grpc_port"`
		AccountID string `yaml:"account_id"`
	} `yaml:"service"`
	Dependencies struct {
		RecordBackend      string   `yaml:"record_backend"`
		PostgresURL        string   `yaml:"postgres_url"`
		RedisURL           string   `yaml:"redis_url"`
		KafkaBrokers       []string `yaml:"kafka_brokers"`
		KafkaTopic         string   `yaml:"kafka_topic"`
		KafkaConsumerGroup string   `yaml:"kafka_consumer_group"`
	} `yaml:"dependencies"`
	Sync struct {
		MaxStartRetries       int `yaml:"max_start_retries"`
		MigrationBatchSize    int `yaml:"migration_batch_size"`
		ConsumerPollSeconds   int `yaml:"consumer_poll_seconds"`
		ReconcileSweepSeconds int `yaml:"reconcile_sweep_seconds"`
	} `yaml:"sync"`
}

func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:              "session-sync",
		HTTPPort:               8080,
		GRPCPort:               9090,
		AccountID:              "default",
		RecordBackend:          "memory",
		MaxDBConns:             10,
		KafkaTopic:             "session.record_changed",
		KafkaConsumerGroup:     "session-sync",
		MaxStartRetries:        5,
		MigrationBatchSize:     100,
		ConsumerPollInterval:   2 * time.Second,
		ReconcileSweepInterval: time.Minute,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Service.AccountID != "" {
			cfg.AccountID = f.Service.AccountID
		}
		if f.Dependencies.RecordBackend != "" {
			cfg.RecordBackend = f.Dependencies.RecordBackend
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if len(f.Dependencies.KafkaBrokers) > 0 {
			cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
		}
		if f.Dependencies.KafkaTopic != "" {
			cfg.KafkaTopic = f.Dependencies.KafkaTopic
		}
		if f.Dependencies.KafkaConsumerGroup != "" {
			cfg.KafkaConsumerGroup = f.Dependencies.KafkaConsumerGroup
		}
		if f.Sync.MaxStartRetries > 0 {
			cfg.MaxStartRetries = f.Sync.MaxStartRetries
		}
		if f.Sync.MigrationBatchSize > 0 {
			cfg.MigrationBatchSize = f.Sync.MigrationBatchSize
		}
		if f.Sync.ConsumerPollSeconds > 0 {
			cfg.ConsumerPollInterval = time.Duration(f.Sync.ConsumerPollSeconds) * time.Second
		}
		if f.Sync.ReconcileSweepSeconds > 0 {
			cfg.ReconcileSweepInterval = time.Duration(f.Sync.ReconcileSweepSeconds) * time.Second
		}
	}

	switch cfg.RecordBackend {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("record_backend postgres requires postgres_url")
		}
	case "redis":
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("record_backend redis requires redis_url")
		}
	case "memory":
	default:
		return Config{}, fmt.Errorf("unknown record_backend %q", cfg.RecordBackend)
	}
	return cfg, nil
}
