package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mohitkumar/ticketflow/logger"
	"github.com/mohitkumar/ticketflow/timer"
	"github.com/mohitkumar/ticketflow/util"
	"go.uber.org/zap"
)

var _ Executor = new(TimerExecutor)

const DEFAULT_POLL_INTERVAL = time.Second

// TimerExecutor polls the timer queue of every local partition and wakes the
// instances whose deadline passed. Nudges from the in-process wheel go
// through the same wake worker.
type TimerExecutor struct {
	timers   *timer.Service
	waker    Waker
	interval time.Duration
	capacity int
	wg       *sync.WaitGroup
	wakes    *util.Worker[string]
	pollers  []*util.TickWorker
}

func NewTimerExecutor(timers *timer.Service, waker Waker, interval time.Duration, capacity int, wg *sync.WaitGroup) *TimerExecutor {
	if interval <= 0 {
		interval = DEFAULT_POLL_INTERVAL
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &TimerExecutor{
		timers:   timers,
		waker:    waker,
		interval: interval,
		capacity: capacity,
		wg:       wg,
	}
}

func (ex *TimerExecutor) Name() string {
	return "timer-executor"
}

func (ex *TimerExecutor) Start() error {
	ex.wakes = util.NewWorker("timer-wake", ex.wg, ex.wake, ex.capacity)
	ex.wakes.Start()
	ex.timers.OnDue(func(instanceId string) {
		if err := ex.wakes.Send(instanceId); err != nil {
			logger.Debug("timer nudge dropped", zap.String("instanceId", instanceId), zap.Error(err))
		}
	})
	for _, p := range ex.timers.Partitions() {
		partition := p
		tw := util.NewTickWorker(fmt.Sprintf("timer-poller-%d", partition), ex.interval, func() {
			ex.poll(partition)
		}, ex.wg)
		tw.Start()
		ex.pollers = append(ex.pollers, tw)
	}
	logger.Info("timer executor started", zap.Int("partitions", len(ex.pollers)), zap.Duration("interval", ex.interval))
	return nil
}

func (ex *TimerExecutor) poll(partition int) {
	ids, err := ex.timers.Due(context.Background(), partition)
	if err != nil {
		logger.Error("error while polling timer queue", zap.Int("partition", partition), zap.Error(err))
		return
	}
	for _, id := range ids {
		if err := ex.wakes.Send(id); err != nil {
			// the entry is gone from the queue, the audit picks the instance up
			logger.Warn("due timer not dispatched", zap.String("instanceId", id), zap.Error(err))
		}
	}
}

func (ex *TimerExecutor) wake(instanceId string) error {
	return ex.waker.Wake(context.Background(), instanceId)
}

func (ex *TimerExecutor) Stop() error {
	for _, tw := range ex.pollers {
		tw.Stop()
	}
	if ex.wakes != nil {
		ex.wakes.Stop()
	}
	return nil
}
