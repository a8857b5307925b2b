package timer

import (
	"context"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/mohitkumar/ticketflow/cluster"
	"github.com/mohitkumar/ticketflow/logger"
	"github.com/mohitkumar/ticketflow/persistence"
	"go.uber.org/zap"
)

const SCHEDULE_RETRIES = 3

// Service keeps durable deadlines in the timer queue, partitioned by
// instance id, and optionally nudges the owner in-process when one is due.
type Service struct {
	queue   persistence.TimerQueue
	ring    *cluster.Ring
	manager *Manager
	mu      sync.RWMutex
	nudge   func(instanceId string)
	now     func() time.Time
}

func NewService(queue persistence.TimerQueue, ring *cluster.Ring, manager *Manager) *Service {
	return &Service{
		queue:   queue,
		ring:    ring,
		manager: manager,
		now:     time.Now,
	}
}

// OnDue registers the callback fired by the in-process wheel.
func (s *Service) OnDue(fn func(instanceId string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nudge = fn
}

func (s *Service) Partition(instanceId string) int {
	return s.ring.GetPartition(instanceId)
}

func (s *Service) Schedule(ctx context.Context, instanceId string, deadline time.Time) error {
	partition := s.Partition(instanceId)
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), SCHEDULE_RETRIES), ctx)
	err := backoff.Retry(func() error {
		return s.queue.Push(ctx, partition, instanceId, deadline)
	}, b)
	if err != nil {
		logger.Error("error scheduling timer", zap.String("instanceId", instanceId), zap.Time("deadline", deadline), zap.Error(err))
		return err
	}
	s.mu.RLock()
	nudge := s.nudge
	s.mu.RUnlock()
	if s.manager != nil && nudge != nil {
		s.manager.AddTask(func() {
			nudge(instanceId)
		}, deadline.Sub(s.now()))
	}
	logger.Debug("timer scheduled", zap.String("instanceId", instanceId), zap.Int("partition", partition), zap.Time("deadline", deadline))
	return nil
}

// Due pops the instance ids of the partition whose deadline has passed.
func (s *Service) Due(ctx context.Context, partition int) ([]string, error) {
	return s.queue.PopDue(ctx, partition, s.now())
}

func (s *Service) Cancel(ctx context.Context, instanceId string) error {
	return s.queue.Remove(ctx, s.Partition(instanceId), instanceId)
}

func (s *Service) Partitions() []int {
	return s.ring.GetPartitions()
}
