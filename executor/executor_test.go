package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mohitkumar/ticketflow/cluster"
	"github.com/mohitkumar/ticketflow/engine"
	"github.com/mohitkumar/ticketflow/persistence/memory"
	"github.com/mohitkumar/ticketflow/timer"
	"github.com/stretchr/testify/require"
)

type recordingWaker struct {
	mu  sync.Mutex
	ids []string
}

func (w *recordingWaker) Wake(ctx context.Context, instanceId string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ids = append(w.ids, instanceId)
	return nil
}

func (w *recordingWaker) woken() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.ids...)
}

type countingAuditor struct {
	mu    sync.Mutex
	calls int
}

func (a *countingAuditor) Audit(ctx context.Context, maxWait time.Duration) (engine.AuditReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return engine.AuditReport{}, nil
}

func (a *countingAuditor) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func TestTimerExecutorWakesDueInstances(t *testing.T) {
	ctx := context.Background()
	ring := cluster.NewLocalRing(cluster.RingConfig{PartitionCount: 4}, "test")
	queue := memory.NewTimerQueue()
	timers := timer.NewService(queue, ring, nil)
	waker := &recordingWaker{}
	wg := &sync.WaitGroup{}

	ex := NewTimerExecutor(timers, waker, 5*time.Millisecond, 8, wg)
	require.Equal(t, "timer-executor", ex.Name())
	require.NoError(t, ex.Start())

	now := time.Now()
	require.NoError(t, timers.Schedule(ctx, "due-1", now.Add(-time.Second)))
	require.NoError(t, timers.Schedule(ctx, "due-2", now))
	require.NoError(t, timers.Schedule(ctx, "later", now.Add(time.Hour)))

	require.Eventually(t, func() bool {
		return len(waker.woken()) == 2
	}, time.Second, 5*time.Millisecond)
	require.ElementsMatch(t, []string{"due-1", "due-2"}, waker.woken())

	require.NoError(t, ex.Stop())
	wg.Wait()

	pending, err := queue.PopDue(ctx, timers.Partition("later"), now.Add(2*time.Hour))
	require.NoError(t, err)
	require.Equal(t, []string{"later"}, pending)
}

func TestTimerExecutorNudge(t *testing.T) {
	ctx := context.Background()
	ring := cluster.NewLocalRing(cluster.RingConfig{PartitionCount: 2}, "test")
	manager := timer.NewManager(time.Millisecond, 20)
	manager.Start()
	defer manager.Stop()
	timers := timer.NewService(memory.NewTimerQueue(), ring, manager)
	waker := &recordingWaker{}
	wg := &sync.WaitGroup{}

	// polling alone would take an hour
	ex := NewTimerExecutor(timers, waker, time.Hour, 8, wg)
	require.NoError(t, ex.Start())
	defer func() {
		require.NoError(t, ex.Stop())
		wg.Wait()
	}()

	require.NoError(t, timers.Schedule(ctx, "soon", time.Now().Add(10*time.Millisecond)))
	require.Eventually(t, func() bool {
		return len(waker.woken()) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"soon"}, waker.woken())
}

func TestAuditExecutor(t *testing.T) {
	auditor := &countingAuditor{}
	wg := &sync.WaitGroup{}
	ex := NewAuditExecutor(auditor, 5*time.Millisecond, time.Minute, wg)
	require.Equal(t, "audit-executor", ex.Name())
	require.NoError(t, ex.Start())

	require.Eventually(t, func() bool {
		return auditor.count() >= 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, ex.Stop())
	wg.Wait()
}
