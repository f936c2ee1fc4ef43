package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration, loaded from config.yaml.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	LedgerApplied     string `mapstructure:"ledger_applied"`
	ReconcileMismatch string `mapstructure:"reconcile_mismatch"`
}

type BusinessConfig struct {
	// ApplyMaxRetries bounds the optimistic-lock retry loop in the applier.
	ApplyMaxRetries int `mapstructure:"apply_max_retries"`
	// LockTTLSeconds is the distributed lock expiration.
	LockTTLSeconds int `mapstructure:"lock_ttl_seconds"`
	// Lock acquisition retry policy.
	LockRetryMillis int `mapstructure:"lock_retry_millis"`
	LockMaxRetries  int `mapstructure:"lock_max_retries"`
	// Reconcile sweep cadence and batch size.
	ReconcileIntervalSeconds int `mapstructure:"reconcile_interval_seconds"`
	ReconcileBatchSize       int `mapstructure:"reconcile_batch_size"`
	// Outbox sender retry limit.
	MaxRetryCount int `mapstructure:"max_retry_count"`
}

func (b BusinessConfig) LockTTL() time.Duration {
	return time.Duration(b.LockTTLSeconds) * time.Second
}

func (b BusinessConfig) LockRetryInterval() time.Duration {
	return time.Duration(b.LockRetryMillis) * time.Millisecond
}

func (b BusinessConfig) ReconcileInterval() time.Duration {
	return time.Duration(b.ReconcileIntervalSeconds) * time.Second
}

var GlobalConfig *Config

// LoadConfig reads and parses the yaml config file.
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("failed to parse config file: %v", err)
	}

	GlobalConfig = config
	return config
}
