package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mohitkumar/ticketflow/cluster"
	"github.com/mohitkumar/ticketflow/logger"
	"github.com/mohitkumar/ticketflow/util"
	"go.uber.org/zap"
)

var ErrBusStopped = errors.New("signal bus stopped")

type Delivery struct {
	InstanceId string `json:"instanceId"`
	Name       string `json:"name"`
	Payload    any    `json:"payload"`
}

// Handler consumes a delivery. A missing instance or listener is the
// handler's concern, the bus only reports errors.
type Handler interface {
	DeliverSignal(ctx context.Context, instanceId string, name string, payload any) error
}

type HandlerFunc func(ctx context.Context, instanceId string, name string, payload any) error

func (f HandlerFunc) DeliverSignal(ctx context.Context, instanceId string, name string, payload any) error {
	return f(ctx, instanceId, name, payload)
}

// Bus fans deliveries out to one worker per partition, so signals for the
// same instance are handled in the order they were accepted.
type Bus struct {
	ring     *cluster.Ring
	workers  map[int]*util.Worker[Delivery]
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	stopped  bool
	capacity int
	handler  Handler
}

func NewBus(ring *cluster.Ring, capacity int, wg *sync.WaitGroup) *Bus {
	if capacity <= 0 {
		capacity = 1
	}
	return &Bus{
		ring:     ring,
		workers:  make(map[int]*util.Worker[Delivery]),
		wg:       wg,
		capacity: capacity,
	}
}

func (b *Bus) Name() string {
	return "signal-bus"
}

// Start spawns the partition workers. The handler must be set first.
func (b *Bus) Start(handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
	for i := 0; i < b.ring.PartitionCount; i++ {
		w := util.NewWorker(fmt.Sprintf("signal-worker-%d", i), b.wg, b.handle, b.capacity)
		w.Start()
		b.workers[i] = w
	}
	logger.Info("signal bus started", zap.Int("workers", len(b.workers)))
	return nil
}

func (b *Bus) handle(d Delivery) error {
	return b.handler.DeliverSignal(context.Background(), d.InstanceId, d.Name, d.Payload)
}

// Deliver accepts the delivery for asynchronous handling. It fails only when
// the bus is not running.
func (b *Bus) Deliver(ctx context.Context, d Delivery) error {
	b.mu.RLock()
	w, ok := b.workers[b.ring.GetPartition(d.InstanceId)]
	stopped := b.stopped
	b.mu.RUnlock()
	if stopped || !ok {
		return ErrBusStopped
	}
	if err := w.Send(d); err != nil {
		return ErrBusStopped
	}
	logger.Debug("signal accepted", zap.String("instanceId", d.InstanceId), zap.String("signal", d.Name))
	return nil
}

func (b *Bus) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	for _, w := range b.workers {
		w.Stop()
	}
	return nil
}
