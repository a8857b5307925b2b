package agent

import (
	"context"
	"sync"
	"time"

	"github.com/mohitkumar/ticketflow/action"
	"github.com/mohitkumar/ticketflow/analytics"
	"github.com/mohitkumar/ticketflow/cluster"
	"github.com/mohitkumar/ticketflow/compiler"
	"github.com/mohitkumar/ticketflow/config"
	"github.com/mohitkumar/ticketflow/container"
	"github.com/mohitkumar/ticketflow/engine"
	"github.com/mohitkumar/ticketflow/executor"
	"github.com/mohitkumar/ticketflow/logger"
	"github.com/mohitkumar/ticketflow/metadata"
	"github.com/mohitkumar/ticketflow/rest"
	"github.com/mohitkumar/ticketflow/signal"
	"github.com/mohitkumar/ticketflow/timer"
	"go.uber.org/zap"
)

const TIMER_WHEEL_TICK = 10 * time.Millisecond
const TIMER_WHEEL_SIZE = 512

type Agent struct {
	Config          config.Config
	diContainer     *container.DIContainer
	ring            *cluster.Ring
	metadataService metadata.MetadataService
	registry        *action.Registry
	collector       analytics.WorkflowDataCollector
	timerManager    *timer.Manager
	timerService    *timer.Service
	engine          *engine.Engine
	bus             *signal.Bus
	executors       []executor.Executor
	httpServer      *rest.Server
	shutdown        bool
	shutdowns       chan struct{}
	shutdownLock    sync.Mutex
	wg              sync.WaitGroup
}

func New(config config.Config) (*Agent, error) {
	a := &Agent{
		Config:    config,
		shutdowns: make(chan struct{}),
	}
	setup := []func() error{
		a.setupContainer,
		a.setupMetadataService,
		a.setupActivities,
		a.setupCollector,
		a.setupEngine,
		a.setupExecutors,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			if a.diContainer != nil {
				a.diContainer.Close()
			}
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupContainer() error {
	a.diContainer = container.NewDiContainer()
	return a.diContainer.Init(context.Background(), a.Config)
}

func (a *Agent) setupMetadataService() error {
	c := compiler.New(compiler.WithDefaultTimer(a.Config.TimerConfig.DefaultTimer))
	a.metadataService = metadata.NewMetadataService(a.diContainer.GetPlanStore(), c)
	return a.metadataService.Bootstrap(context.Background())
}

func (a *Agent) setupActivities() error {
	classifier := action.NewDefaultClassifier()
	if a.Config.ClassifierScript != "" {
		var err error
		classifier, err = action.LoadClassifier(a.Config.ClassifierScript)
		if err != nil {
			return err
		}
	}
	a.registry = action.NewRegistry()
	activities := action.NewTicketActivities(a.diContainer.GetTicketStore(), classifier, action.DefaultAgentPool())
	return activities.Register(a.registry)
}

func (a *Agent) setupCollector() error {
	var err error
	a.collector, err = analytics.NewDataCollector(a.Config.AnalyticsConfig)
	return err
}

func (a *Agent) setupEngine() error {
	a.ring = cluster.NewLocalRing(cluster.RingConfig{PartitionCount: a.Config.RingConfig.PartitionCount}, a.Config.RingConfig.NodeName)
	a.timerManager = timer.NewManager(TIMER_WHEEL_TICK, TIMER_WHEEL_SIZE)
	a.timerService = timer.NewService(a.diContainer.GetTimerQueue(), a.ring, a.timerManager)
	activityExecutor := action.NewExecutor(a.registry, action.ExecutorConfig{
		Timeout:    a.Config.ActivityConfig.Timeout,
		RetryCount: a.Config.ActivityConfig.RetryCount,
	})
	a.engine = engine.NewEngine(a.diContainer.GetInstanceStore(), a.metadataService, activityExecutor, a.timerService,
		engine.WithDataCollector(a.collector))
	a.bus = signal.NewBus(a.ring, a.Config.SignalWorkers, &a.wg)
	return nil
}

func (a *Agent) setupExecutors() error {
	a.executors = []executor.Executor{
		executor.NewTimerExecutor(a.timerService, a.engine, a.Config.TimerConfig.PollInterval, a.Config.SignalWorkers, &a.wg),
		executor.NewAuditExecutor(a.engine, a.Config.TimerConfig.AuditInterval, a.Config.TimerConfig.MaxWait, &a.wg),
	}
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.metadataService, a.engine, a.bus, a.diContainer.GetTicketStore())
	return err
}

// Start brings up the background machinery, re-arms unfinished instances and
// then opens the http port.
func (a *Agent) Start() error {
	a.timerManager.Start()
	if err := a.bus.Start(a.engine); err != nil {
		return err
	}
	for _, ex := range a.executors {
		if err := ex.Start(); err != nil {
			return err
		}
		logger.Info("executor started", zap.String("executor", ex.Name()))
	}
	if err := a.engine.Recover(context.Background()); err != nil {
		logger.Error("error recovering instances", zap.Error(err))
	}
	go func() {
		if err := a.httpServer.Start(); err != nil {
			logger.Error("http server stopped", zap.Error(err))
			_ = a.Shutdown()
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down server")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true
	close(a.shutdowns)

	shutdown := []func() error{
		a.httpServer.Stop,
		func() error {
			for _, ex := range a.executors {
				if err := ex.Stop(); err != nil {
					return err
				}
			}
			return nil
		},
		a.bus.Stop,
		func() error {
			a.timerManager.Stop()
			return nil
		},
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			return err
		}
	}
	logger.Info("waiting for all services to shutdown...")
	a.wg.Wait()
	if lc, ok := a.collector.(*analytics.LogFileDataCollector); ok {
		_ = lc.Sync()
	}
	return a.diContainer.Close()
}
