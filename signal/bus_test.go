package signal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mohitkumar/ticketflow/cluster"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	got  []Delivery
	done chan struct{}
	want int
}

func (r *recorder) DeliverSignal(ctx context.Context, instanceId string, name string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, Delivery{InstanceId: instanceId, Name: name, Payload: payload})
	if len(r.got) == r.want {
		close(r.done)
	}
	return nil
}

func TestBusDeliversInOrderPerInstance(t *testing.T) {
	wg := &sync.WaitGroup{}
	ring := cluster.NewLocalRing(cluster.RingConfig{PartitionCount: 3}, "local")
	bus := NewBus(ring, 16, wg)
	rec := &recorder{done: make(chan struct{}), want: 4}
	require.NoError(t, bus.Start(rec))

	ctx := context.Background()
	require.NoError(t, bus.Deliver(ctx, Delivery{InstanceId: "i-1", Name: "NewMessage", Payload: 1}))
	require.NoError(t, bus.Deliver(ctx, Delivery{InstanceId: "i-1", Name: "NewMessage", Payload: 2}))
	require.NoError(t, bus.Deliver(ctx, Delivery{InstanceId: "i-1", Name: "resolve", Payload: 3}))
	require.NoError(t, bus.Deliver(ctx, Delivery{InstanceId: "i-2", Name: "NewMessage", Payload: 4}))

	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("deliveries not handled")
	}
	require.NoError(t, bus.Stop())
	wg.Wait()

	var first []any
	for _, d := range rec.got {
		if d.InstanceId == "i-1" {
			first = append(first, d.Payload)
		}
	}
	require.Equal(t, []any{1, 2, 3}, first)
}

func TestBusRejectsWhenStopped(t *testing.T) {
	wg := &sync.WaitGroup{}
	ring := cluster.NewLocalRing(cluster.RingConfig{PartitionCount: 2}, "local")
	bus := NewBus(ring, 1, wg)
	ctx := context.Background()
	require.ErrorIs(t, bus.Deliver(ctx, Delivery{InstanceId: "i-1", Name: "x"}), ErrBusStopped)

	require.NoError(t, bus.Start(HandlerFunc(func(ctx context.Context, instanceId string, name string, payload any) error {
		return nil
	})))
	require.NoError(t, bus.Stop())
	wg.Wait()
	require.ErrorIs(t, bus.Deliver(ctx, Delivery{InstanceId: "i-1", Name: "x"}), ErrBusStopped)
}
