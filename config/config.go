package config

import (
	"time"

	"github.com/mohitkumar/ticketflow/analytics"
)

type StorageType string

const STORAGE_TYPE_REDIS StorageType = "redis"
const STORAGE_TYPE_INMEM StorageType = "memory"
const STORAGE_TYPE_SQLITE StorageType = "sqlite"
const STORAGE_TYPE_POSTGRES StorageType = "postgres"

// Config is the runtime configuration of a ticketflow node. StorageType is
// the default backend, InstanceStoreType and TicketStoreType override it for
// their store.
type Config struct {
	HttpPort          int
	StorageType       StorageType
	InstanceStoreType StorageType
	TicketStoreType   StorageType
	RedisConfig       RedisStorageConfig
	SqliteConfig      SqliteStorageConfig
	PostgresConfig    PostgresStorageConfig
	RingConfig        RingConfig
	TimerConfig       TimerConfig
	ActivityConfig    ActivityConfig
	SignalWorkers     int
	ClassifierScript  string
	AnalyticsConfig   analytics.DataCollectorConfig
	LogLevel          string
}

type RedisStorageConfig struct {
	Addrs     []string
	Namespace string
	Password  string
	PoolSize  int
}

type SqliteStorageConfig struct {
	Path string
}

type PostgresStorageConfig struct {
	DSN   string
	Table string
}

type RingConfig struct {
	NodeName       string
	PartitionCount int
}

type TimerConfig struct {
	PollInterval  time.Duration
	AuditInterval time.Duration
	MaxWait       time.Duration
	DefaultTimer  time.Duration
}

type ActivityConfig struct {
	Timeout    time.Duration
	RetryCount int
}

func (c Config) InstanceStorage() StorageType {
	if c.InstanceStoreType != "" {
		return c.InstanceStoreType
	}
	return c.StorageType
}

func (c Config) TicketStorage() StorageType {
	if c.TicketStoreType != "" {
		return c.TicketStoreType
	}
	return c.StorageType
}
