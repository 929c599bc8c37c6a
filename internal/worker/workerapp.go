package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/ngageoint/scale/internal/common"
	"github.com/ngageoint/scale/internal/common/app"
	"github.com/ngageoint/scale/internal/common/health"
	"github.com/ngageoint/scale/internal/common/scalecontext"
	"github.com/ngageoint/scale/internal/scheduler/configuration"
)

// Run sets up a messaging worker and runs it until a SIGTERM is received. The worker executes the command messages it
// receives against the store, sending whatever messages they produce.
func Run(config configuration.Configuration) error {
	ctx := app.CreateContextWithShutdown("messaging")
	g, ctx := scalecontext.ErrGroup(ctx)

	//////////////////////////////////////////////////////////////////////////
	// Health Checks
	//////////////////////////////////////////////////////////////////////////
	mux := http.NewServeMux()
	startupCompleteCheck := health.NewStartupCompleteChecker()
	health.SetupHttpMux(mux, health.NewMultiChecker(startupCompleteCheck))
	shutdownHttpServer := common.ServeHttp(config.Http.Port, mux)
	defer shutdownHttpServer()

	if config.Messaging.Backend == configuration.BackendMemory {
		log.Warn("The in-memory messaging backend only carries messages sent within this process")
	}

	realClock := clock.RealClock{}
	s, closeStore, err := OpenStore(config, realClock)
	if err != nil {
		return err
	}
	defer closeStore()

	c, err := LoadCatalog(config.Catalog)
	if err != nil {
		return err
	}

	backend, closeBackend, err := NewMessagingBackend(config.Messaging, realClock, ProcessName("scale-messaging"), false)
	if err != nil {
		return err
	}
	defer closeBackend()
	manager := NewMessagingManager(backend, config.Messaging, s, c, realClock, prometheus.DefaultRegisterer)
	g.Go(func() error { return manager.Run(ctx) })

	shutdownMetricServer := common.ServeMetrics(config.Metrics.Port)
	defer shutdownMetricServer()

	startupCompleteCheck.MarkComplete()
	return g.Wait()
}
