package configuration

import (
	"time"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/ngageoint/scale/internal/common/config"
	"github.com/ngageoint/scale/internal/common/logging"
)

const (
	StoreTypeMemory   = "memory"
	StoreTypePostgres = "postgres"

	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendPulsar = "pulsar"
)

// Configuration is the configuration of every scale process: the scheduler and the messaging workers.
type Configuration struct {
	Logging logging.Config
	// Either memory or postgres
	StoreType string `validate:"oneof=memory postgres"`
	// Database configuration, used when StoreType is postgres
	Postgres  config.PostgresConfig
	Catalog   CatalogConfig
	Messaging MessagingConfig
	// Configuration controlling the scheduling loop
	Scheduling SchedulingConfig
	// How the scheduler talks to the agents running tasks on nodes
	Agent   AgentConfig
	Metrics MetricsConfig
	Http    HttpConfig
}

type CatalogConfig struct {
	// Path to the YAML file holding job types and recipe types
	Path string `validate:"required"`
	// Number of published revisions held in memory
	CacheSize int `validate:"gt=0"`
}

type MessagingConfig struct {
	// Either memory, redis or pulsar
	Backend string `validate:"oneof=memory redis pulsar"`
	Redis   config.RedisConfig
	// Redis list command messages are queued on
	RedisQueue string `validate:"required"`
	Pulsar     config.PulsarConfig
	// Maximum number of messages received and processed per batch
	BatchSize int `validate:"gt=0"`
	// How long a receive waits for the first message
	ReceiveWait time.Duration
	// Number of attempts made to send a batch of messages
	SendRetries uint `validate:"gt=0"`
	// Delay between send attempts
	SendRetryDelay time.Duration
	// How long to back off after the broker fails a receive
	ReceiveErrorBackoff time.Duration
}

type SchedulingConfig struct {
	// How often a scheduling pass runs
	Interval time.Duration `validate:"required"`
	// Maximum number of queued jobs considered in one pass
	QueueLimit int `validate:"gt=0"`
	// How long a node's resource offer is held before it expires unused
	OfferTtl time.Duration `validate:"required"`
	// Resources requested by the task preparing a job's input, in addition to the job's disk
	PreTaskResources map[string]resource.Quantity
	// Resources requested by the task storing a job's output, in addition to the job's output disk
	PostTaskResources map[string]resource.Quantity
	// How often running executions are checked for timeouts
	TimeoutSyncInterval time.Duration `validate:"required"`
	// How long a launched task may go without reporting that it is running
	TaskLaunchTimeout time.Duration `validate:"required"`
	// If true no new tasks are launched
	Paused bool
}

// AgentConfig describes how the scheduler talks to the agents. Task requests and updates go over the pulsar cluster
// configured under messaging.pulsar, whatever the messaging backend.
type AgentConfig struct {
	// Redis the agents report node snapshots to
	Redis config.RedisConfig
	// Redis hash holding the latest snapshot reported for each node
	NodesKey string `validate:"required"`
	// Pulsar topic tasks are launched and killed on
	TaskTopic string `validate:"required"`
	// Pulsar topic agents report task status changes on
	TaskUpdateTopic string `validate:"required"`
	// Subscription the scheduler consumes task updates with
	TaskUpdateSubscription string `validate:"required"`
	// Timeout to use when sending task requests to pulsar
	SendTimeout time.Duration `validate:"required"`
}

type MetricsConfig struct {
	Port uint16
}

type HttpConfig struct {
	Port uint16
}
