package scheduler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/go-redis/redis"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/ngageoint/scale/internal/common"
	"github.com/ngageoint/scale/internal/common/app"
	"github.com/ngageoint/scale/internal/common/health"
	"github.com/ngageoint/scale/internal/common/scalecontext"
	messagingpulsar "github.com/ngageoint/scale/internal/messaging/pulsar"
	"github.com/ngageoint/scale/internal/model"
	"github.com/ngageoint/scale/internal/scheduler/agent"
	"github.com/ngageoint/scale/internal/scheduler/configuration"
	"github.com/ngageoint/scale/internal/worker"
)

// How long the agent event consumer waits for an event before checking for shutdown.
const eventReceiveTimeout = time.Second

// Run sets up a Scheduler application and runs it until a SIGTERM is received
func Run(config configuration.Configuration) error {
	ctx := app.CreateContextWithShutdown("scheduler")
	g, ctx := scalecontext.ErrGroup(ctx)

	//////////////////////////////////////////////////////////////////////////
	// Health Checks
	//////////////////////////////////////////////////////////////////////////
	mux := http.NewServeMux()

	startupCompleteCheck := health.NewStartupCompleteChecker()
	healthChecks := health.NewMultiChecker(startupCompleteCheck)
	health.SetupHttpMux(mux, healthChecks)
	shutdownHttpServer := common.ServeHttp(config.Http.Port, mux)
	defer shutdownHttpServer()

	// Services are only started once everything has been set up.
	var services []func() error

	//////////////////////////////////////////////////////////////////////////
	// Store and catalog
	//////////////////////////////////////////////////////////////////////////
	realClock := clock.RealClock{}
	s, closeStore, err := worker.OpenStore(config, realClock)
	if err != nil {
		return err
	}
	defer closeStore()
	c, err := worker.LoadCatalog(config.Catalog)
	if err != nil {
		return errors.WithMessage(err, "error loading catalog")
	}

	//////////////////////////////////////////////////////////////////////////
	// Messaging
	//////////////////////////////////////////////////////////////////////////
	// Messages sent through memory, or executed against a memory store, are only seen by this process, so it has to
	// execute them itself.
	inProcess := config.Messaging.Backend == configuration.BackendMemory || config.StoreType == configuration.StoreTypeMemory
	backend, closeBackend, err := worker.NewMessagingBackend(
		config.Messaging, realClock, worker.ProcessName("scale-scheduler"), !inProcess)
	if err != nil {
		return err
	}
	defer closeBackend()
	manager := worker.NewMessagingManager(backend, config.Messaging, s, c, realClock, prometheus.DefaultRegisterer)
	if inProcess {
		log.Infof("Command messages will be executed by the scheduler process")
		services = append(services, func() error { return manager.Run(ctx) })
	}

	//////////////////////////////////////////////////////////////////////////
	// Agents
	//////////////////////////////////////////////////////////////////////////
	log.Infof("Setting up agent connectivity")
	redisClient := redis.NewUniversalClient(config.Agent.Redis.AsUniversalOptions())
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.WithError(errors.WithStack(err)).Warnf("Redis client didn't close down cleanly")
		}
	}()
	healthChecks.Add(health.CheckerFunc(func() error {
		return errors.Wrap(redisClient.Ping().Err(), "agent redis")
	}))
	offerSource := agent.NewRedisOfferSource(redisClient, config.Agent.NodesKey)

	pulsarClient, err := messagingpulsar.NewClient(&config.Messaging.Pulsar)
	if err != nil {
		return errors.WithMessage(err, "error creating pulsar client")
	}
	defer pulsarClient.Close()
	compression, err := messagingpulsar.CompressionType(config.Messaging.Pulsar.CompressionType)
	if err != nil {
		return err
	}
	taskProducer, err := pulsarClient.CreateProducer(pulsar.ProducerOptions{
		Name:            fmt.Sprintf("scale-scheduler-tasks-%s", uuid.NewString()),
		Topic:           config.Agent.TaskTopic,
		CompressionType: compression,
	})
	if err != nil {
		return errors.Wrapf(err, "error creating pulsar producer for topic %s", config.Agent.TaskTopic)
	}
	defer taskProducer.Close()
	// Failover, so that only one scheduler sees the task updates at a time.
	updateConsumer, err := pulsarClient.Subscribe(pulsar.ConsumerOptions{
		Topic:            config.Agent.TaskUpdateTopic,
		SubscriptionName: config.Agent.TaskUpdateSubscription,
		Type:             pulsar.Failover,
	})
	if err != nil {
		return errors.Wrapf(err, "error subscribing to topic %s", config.Agent.TaskUpdateTopic)
	}
	defer updateConsumer.Close()
	launcher := agent.NewPulsarTaskLauncher(taskProducer, config.Agent.SendTimeout)
	events := agent.NewPulsarEventConsumer(updateConsumer, eventReceiveTimeout)

	//////////////////////////////////////////////////////////////////////////
	// Scheduling
	//////////////////////////////////////////////////////////////////////////
	log.Infof("Setting up scheduling loop")
	metrics := NewMetrics(prometheus.DefaultRegisterer)
	taskResources := TaskResources{
		Pre:  model.FromQuantities(config.Scheduling.PreTaskResources),
		Post: model.FromQuantities(config.Scheduling.PostTaskResources),
	}
	nodes := NewNodeManager()
	if config.Scheduling.Paused {
		log.Warn("Scheduler starts paused, no tasks will be launched")
		nodes.SetSchedulerPaused(true)
	}
	offers := NewOfferManager(config.Scheduling.OfferTtl, func(*ResourceOffer) { metrics.reportOfferDeclined() })
	exes := NewJobExeManager()
	scheduling := NewSchedulingManager(
		s,
		c,
		nodes,
		offers,
		exes,
		launcher,
		manager,
		realClock,
		config.Scheduling.QueueLimit,
		taskResources,
		metrics,
	)
	scheduler := NewScheduler(
		s,
		offerSource,
		nodes,
		offers,
		exes,
		scheduling,
		launcher,
		manager,
		realClock,
		config.Scheduling.Interval,
		metrics,
	)
	timeouts := NewTimeoutSync(
		exes,
		launcher,
		manager,
		realClock,
		config.Scheduling.TimeoutSyncInterval,
		config.Scheduling.TaskLaunchTimeout,
		metrics,
	)
	services = append(services,
		func() error { return scheduler.Run(ctx) },
		func() error { return timeouts.Run(ctx) },
		func() error { return events.Run(ctx, scheduler) },
	)

	shutdownMetricServer := common.ServeMetrics(config.Metrics.Port)
	defer shutdownMetricServer()

	for _, service := range services {
		g.Go(service)
	}

	// Mark startup as complete, will allow the health check to return healthy
	startupCompleteCheck.MarkComplete()

	return g.Wait()
}
