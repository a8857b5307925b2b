package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mohitkumar/ticketflow/action"
	"github.com/mohitkumar/ticketflow/cluster"
	"github.com/mohitkumar/ticketflow/compiler"
	"github.com/mohitkumar/ticketflow/metadata"
	"github.com/mohitkumar/ticketflow/model"
	"github.com/mohitkumar/ticketflow/persistence/memory"
	"github.com/mohitkumar/ticketflow/timer"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingCollector struct {
	mu        sync.Mutex
	successes []string
	failures  []string
	signals   []string
}

func (r *recordingCollector) RecordStepSuccess(planName string, instanceId string, stepName string, step int, output any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes = append(r.successes, stepName)
}

func (r *recordingCollector) RecordStepFailure(planName string, instanceId string, stepName string, step int, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, stepName+": "+reason)
}

func (r *recordingCollector) RecordSignal(planName string, instanceId string, signalName string, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, signalName)
}

type harness struct {
	t          *testing.T
	engine     *Engine
	activities *action.TicketActivities
	instances  *memory.InstanceStore
	plans      *memory.PlanStore
	tickets    *memory.TicketStore
	queue      *memory.TimerQueue
	meta       metadata.MetadataService
	registry   *action.Registry
	executor   *action.Executor
	timers     *timer.Service
	clock      *fakeClock
	collector  *recordingCollector

	mu    sync.Mutex
	calls map[string]int
	args  map[string][][]any
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		instances: memory.NewInstanceStore(),
		plans:     memory.NewPlanStore(),
		tickets:   memory.NewTicketStore(),
		queue:     memory.NewTimerQueue(),
		registry:  action.NewRegistry(),
		clock:     &fakeClock{t: time.Now().UTC().Truncate(time.Millisecond)},
		collector: &recordingCollector{},
		calls:     map[string]int{},
		args:      map[string][][]any{},
	}
	h.activities = action.NewTicketActivities(h.tickets, action.NewDefaultClassifier(), action.DefaultAgentPool())
	require.NoError(t, h.activities.Register(h.registry))
	h.executor = action.NewExecutor(h.registry, action.ExecutorConfig{
		RetryCount:  2,
		RetryAfter:  time.Millisecond,
		MaxInterval: 2 * time.Millisecond,
	})
	ring := cluster.NewLocalRing(cluster.RingConfig{PartitionCount: 3}, "test")
	h.timers = timer.NewService(h.queue, ring, nil)
	h.meta = metadata.NewMetadataService(h.plans, compiler.New())
	require.NoError(t, h.meta.Bootstrap(context.Background()))
	h.engine = h.newEngine()
	return h
}

// newEngine builds an engine over the harness stores, as a restarted process
// would.
func (h *harness) newEngine() *Engine {
	return NewEngine(h.instances, h.meta, h.executor, h.timers, WithClock(h.clock.Now), WithDataCollector(h.collector))
}

// activity registers name, counting calls and recording arguments before fn runs.
func (h *harness) activity(name string, fn func(call action.Call) (any, error)) {
	require.NoError(h.t, h.registry.Register(action.Definition{
		Name: name,
		Fn: func(ctx context.Context, call action.Call) (any, error) {
			h.mu.Lock()
			h.calls[name]++
			h.args[name] = append(h.args[name], call.Args)
			h.mu.Unlock()
			if fn == nil {
				return map[string]any{"by": name}, nil
			}
			return fn(call)
		},
	}))
}

func (h *harness) count(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[name]
}

func (h *harness) register(name string, nodes ...model.Node) *model.ExecutionPlan {
	plan, err := h.meta.Register(context.Background(), name, chain(nodes...))
	require.NoError(h.t, err)
	return plan
}

func (h *harness) instance(id string) *model.WorkflowInstance {
	inst, err := h.engine.GetInstance(context.Background(), id)
	require.NoError(h.t, err)
	return inst
}

func (h *harness) ticket(id string) *model.Ticket {
	ticket, err := h.tickets.Get(context.Background(), id)
	require.NoError(h.t, err)
	return ticket
}

func chain(nodes ...model.Node) model.Graph {
	edges := make([]model.Edge, 0, len(nodes))
	for i := 1; i < len(nodes); i++ {
		edges = append(edges, model.Edge{
			Id:     fmt.Sprintf("e%d", i),
			Source: nodes[i-1].Id,
			Target: nodes[i].Id,
		})
	}
	return model.Graph{Nodes: nodes, Edges: edges}
}

func activityNode(activity string, output string, inputs ...string) model.Node {
	n := model.Node{Id: activity, Kind: model.ACTIVITY_NODE, Label: activity, ActivityName: activity}
	for i, in := range inputs {
		n.InputBindings = append(n.InputBindings, model.Binding{Name: fmt.Sprintf("arg%d", i), Value: in})
	}
	if output != "" {
		n.OutputBindings = model.Bindings{{Name: "result", Value: output}}
	}
	return n
}

func timerNode(id string, d string) model.Node {
	return model.Node{Id: id, Kind: model.TIMER_NODE, Label: id, TimerDuration: d}
}

func listenerNode(signal string, activity string) model.Node {
	return model.Node{Id: "listen-" + signal, Kind: model.SIGNAL_NODE, Label: signal + "Listener", SignalName: signal, ActivityName: activity}
}

func message(sender string, id string, text string) model.InboundMessage {
	return model.InboundMessage{Id: id, Sender: sender, Channel: "email", Text: text}
}

func variable(t *testing.T, inst *model.WorkflowInstance, name string, field string) any {
	t.Helper()
	v, ok := inst.Variables[name].(map[string]any)
	require.True(t, ok, "variable %s is %T", name, inst.Variables[name])
	return v[field]
}
