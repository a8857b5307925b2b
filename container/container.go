package container

import (
	"context"
	"fmt"

	"github.com/mohitkumar/ticketflow/config"
	"github.com/mohitkumar/ticketflow/logger"
	"github.com/mohitkumar/ticketflow/model"
	"github.com/mohitkumar/ticketflow/persistence"
	"github.com/mohitkumar/ticketflow/persistence/memory"
	"github.com/mohitkumar/ticketflow/persistence/postgres"
	rd "github.com/mohitkumar/ticketflow/persistence/redis"
	"github.com/mohitkumar/ticketflow/persistence/sqlite"
	"github.com/mohitkumar/ticketflow/util"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DIContainer owns the storage backends selected by the configuration.
// Plans and timers follow the default storage type, instances and tickets
// may use their own backend.
type DIContainer struct {
	initialized    bool
	instanceStore  persistence.InstanceStore
	planStore      persistence.PlanStore
	ticketStore    persistence.TicketStore
	timerQueue     persistence.TimerQueue
	InstanceEncDec util.EncoderDecoder[model.WorkflowInstance]
	closers        []func() error
}

func NewDiContainer() *DIContainer {
	return &DIContainer{
		initialized: false,
	}
}

func (d *DIContainer) setInitialized() {
	d.initialized = true
}

func usesRedis(conf config.Config) bool {
	return conf.StorageType == config.STORAGE_TYPE_REDIS ||
		conf.InstanceStorage() == config.STORAGE_TYPE_REDIS ||
		conf.TicketStorage() == config.STORAGE_TYPE_REDIS
}

func (d *DIContainer) Init(ctx context.Context, conf config.Config) error {
	d.InstanceEncDec = util.NewJsonEncoderDecoder[model.WorkflowInstance]()

	if usesRedis(conf) {
		base := rd.NewBaseDao(rd.Config{
			Addrs:     conf.RedisConfig.Addrs,
			Namespace: conf.RedisConfig.Namespace,
			Password:  conf.RedisConfig.Password,
			PoolSize:  conf.RedisConfig.PoolSize,
		})
		if err := base.Ping(ctx); err != nil {
			base.Close()
			return fmt.Errorf("connecting to redis %v: %w", conf.RedisConfig.Addrs, err)
		}
		d.closers = append(d.closers, base.Close)
		if conf.StorageType == config.STORAGE_TYPE_REDIS {
			d.planStore = rd.NewRedisPlanDao(base)
			d.timerQueue = rd.NewRedisTimerQueue(base)
		}
		if conf.InstanceStorage() == config.STORAGE_TYPE_REDIS {
			d.instanceStore = rd.NewRedisInstanceDao(base, d.InstanceEncDec)
		}
		if conf.TicketStorage() == config.STORAGE_TYPE_REDIS {
			d.ticketStore = rd.NewRedisTicketDao(base)
		}
	}

	switch conf.StorageType {
	case config.STORAGE_TYPE_REDIS:
	case config.STORAGE_TYPE_INMEM, "":
		d.planStore = memory.NewPlanStore()
		d.timerQueue = memory.NewTimerQueue()
	default:
		return d.fail(fmt.Errorf("storage %s can not hold plans and timers", conf.StorageType))
	}

	switch conf.InstanceStorage() {
	case config.STORAGE_TYPE_REDIS:
	case config.STORAGE_TYPE_INMEM, "":
		d.instanceStore = memory.NewInstanceStore()
	case config.STORAGE_TYPE_SQLITE:
		db, err := sqlite.Open(conf.SqliteConfig.Path)
		if err != nil {
			return d.fail(err)
		}
		d.closers = append(d.closers, db.Close)
		store, err := sqlite.NewInstanceStore(db)
		if err != nil {
			return d.fail(err)
		}
		d.instanceStore = store
	default:
		return d.fail(fmt.Errorf("storage %s can not hold instances", conf.InstanceStorage()))
	}

	switch conf.TicketStorage() {
	case config.STORAGE_TYPE_REDIS:
	case config.STORAGE_TYPE_INMEM, "":
		d.ticketStore = memory.NewTicketStore()
	case config.STORAGE_TYPE_POSTGRES:
		pool, err := postgres.Connect(ctx, conf.PostgresConfig.DSN)
		if err != nil {
			return d.fail(fmt.Errorf("connecting to postgres: %w", err))
		}
		d.closers = append(d.closers, func() error {
			pool.Close()
			return nil
		})
		store, err := postgres.NewTicketStore(ctx, pool, conf.PostgresConfig.Table)
		if err != nil {
			return d.fail(err)
		}
		d.ticketStore = store
	default:
		return d.fail(fmt.Errorf("storage %s can not hold tickets", conf.TicketStorage()))
	}

	d.setInitialized()
	logger.Info("storage initialized",
		zap.String("plans", string(conf.StorageType)),
		zap.String("instances", string(conf.InstanceStorage())),
		zap.String("tickets", string(conf.TicketStorage())))
	return nil
}

func (d *DIContainer) fail(err error) error {
	d.Close()
	return err
}

// Close releases the backend connections in reverse order of creation.
func (d *DIContainer) Close() error {
	var first error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	d.closers = nil
	return first
}

func (d *DIContainer) GetInstanceStore() persistence.InstanceStore {
	if !d.initialized {
		panic("persistence not initialized")
	}
	return d.instanceStore
}

func (d *DIContainer) GetPlanStore() persistence.PlanStore {
	if !d.initialized {
		panic("persistence not initialized")
	}
	return d.planStore
}

func (d *DIContainer) GetTicketStore() persistence.TicketStore {
	if !d.initialized {
		panic("persistence not initialized")
	}
	return d.ticketStore
}

func (d *DIContainer) GetTimerQueue() persistence.TimerQueue {
	if !d.initialized {
		panic("persistence not initialized")
	}
	return d.timerQueue
}
