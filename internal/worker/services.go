// Package worker builds the services shared by the scale processes and runs the messaging workers that execute
// command messages.
package worker

import (
	"os"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/ngageoint/scale/internal/catalog"
	"github.com/ngageoint/scale/internal/common/database"
	"github.com/ngageoint/scale/internal/common/util"
	"github.com/ngageoint/scale/internal/messages"
	"github.com/ngageoint/scale/internal/messaging"
	messagingmemory "github.com/ngageoint/scale/internal/messaging/memory"
	messagingpulsar "github.com/ngageoint/scale/internal/messaging/pulsar"
	messagingredis "github.com/ngageoint/scale/internal/messaging/redis"
	"github.com/ngageoint/scale/internal/scheduler/configuration"
	"github.com/ngageoint/scale/internal/store"
	"github.com/ngageoint/scale/internal/store/memory"
	"github.com/ngageoint/scale/internal/store/postgres"
)

// ProcessName returns a name for this process that stays the same across restarts on the same host, so that a redis
// consumer can recover the messages it was processing when it died.
func ProcessName(prefix string) string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		log.WithError(err).Warn("Could not read hostname, using a random process name")
		return util.NewWorkerName(prefix)
	}
	return prefix + "-" + hostname
}

// OpenStore opens the configured store. The returned function releases the store's connections.
func OpenStore(config configuration.Configuration, clock clock.Clock) (store.Store, func(), error) {
	switch config.StoreType {
	case configuration.StoreTypePostgres:
		log.Info("Opening postgres store")
		db, err := database.OpenPgxPool(config.Postgres)
		if err != nil {
			return nil, nil, errors.WithMessage(err, "opening connection to postgres")
		}
		return postgres.New(db, clock), db.Close, nil
	default:
		log.Info("Using in-memory store, nothing will be persisted")
		s, err := memory.New(clock)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
}

// LoadCatalog reads the job type and recipe type catalog and puts a revision cache in front of it.
func LoadCatalog(config configuration.CatalogConfig) (catalog.Catalog, error) {
	underlying, err := catalog.LoadFile(config.Path)
	if err != nil {
		return nil, err
	}
	log.Infof("Loaded %d job type(s) from %s", len(underlying.JobTypes()), config.Path)
	cached, err := catalog.NewCachingCatalog(underlying, config.CacheSize)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

// NewMessagingBackend connects to the configured broker as name. A send-only backend never receives, which only
// matters for pulsar: it does not join the shared subscription. The returned function closes the connections.
func NewMessagingBackend(
	config configuration.MessagingConfig,
	clock clock.Clock,
	name string,
	sendOnly bool,
) (messaging.Backend, func(), error) {
	switch config.Backend {
	case configuration.BackendRedis:
		db := redis.NewUniversalClient(config.Redis.AsUniversalOptions())
		closeRedis := func() {
			if err := db.Close(); err != nil {
				log.WithError(errors.WithStack(err)).Warn("Redis client didn't close down cleanly")
			}
		}
		backend := messagingredis.New(db, config.RedisQueue, name)
		if !sendOnly {
			moved, err := backend.Recover()
			if err != nil {
				closeRedis()
				return nil, nil, errors.WithMessage(err, "recovering unacknowledged messages")
			}
			if moved > 0 {
				log.Infof("Put %d message(s) left unacknowledged by %s back on the queue", moved, name)
			}
		}
		return backend, closeRedis, nil
	case configuration.BackendPulsar:
		client, err := messagingpulsar.NewClient(&config.Pulsar)
		if err != nil {
			return nil, nil, errors.WithMessage(err, "creating pulsar client")
		}
		var backend *messagingpulsar.Backend
		if sendOnly {
			backend, err = messagingpulsar.NewSendOnly(client, &config.Pulsar, name)
		} else {
			backend, err = messagingpulsar.New(client, &config.Pulsar, name)
		}
		if err != nil {
			client.Close()
			return nil, nil, errors.WithMessage(err, "creating pulsar backend")
		}
		return backend, func() {
			_ = backend.Close()
			client.Close()
		}, nil
	default:
		return messagingmemory.New(clock), func() {}, nil
	}
}

// NewMessagingManager creates a manager able to execute every scale command message against s and c.
func NewMessagingManager(
	backend messaging.Backend,
	config configuration.MessagingConfig,
	s store.Store,
	c catalog.Catalog,
	clock clock.Clock,
	registerer prometheus.Registerer,
) *messaging.Manager {
	registry := messaging.NewRegistry()
	messages.Register(registry, &messages.Env{Store: s, Catalog: c, Clock: clock})
	return messaging.NewManager(backend, registry, ManagerConfig(config), clock, messaging.NewMetrics(registerer))
}

func ManagerConfig(config configuration.MessagingConfig) messaging.Config {
	return messaging.Config{
		BatchSize:           config.BatchSize,
		ReceiveWait:         config.ReceiveWait,
		SendAttempts:        config.SendRetries,
		SendRetryDelay:      config.SendRetryDelay,
		ReceiveErrorBackoff: config.ReceiveErrorBackoff,
	}
}
