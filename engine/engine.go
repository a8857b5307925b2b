package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/ticketflow/action"
	"github.com/mohitkumar/ticketflow/analytics"
	"github.com/mohitkumar/ticketflow/binding"
	"github.com/mohitkumar/ticketflow/logger"
	"github.com/mohitkumar/ticketflow/metadata"
	"github.com/mohitkumar/ticketflow/model"
	"github.com/mohitkumar/ticketflow/persistence"
	"github.com/mohitkumar/ticketflow/timer"
	"github.com/mohitkumar/ticketflow/util"
	"go.uber.org/zap"
)

var ErrMissingBusinessKey = errors.New("message has no sender")

var instanceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("ticketflow/instance"))

// InstanceId derives the id of the generation-th instance of a business key.
func InstanceId(businessKey string, generation int) string {
	return uuid.NewSHA1(instanceNamespace, []byte(fmt.Sprintf("%s/%d", businessKey, generation))).String()
}

// Engine runs execution plans as durable state machines, one instance per
// business key at a time. Every step transition is persisted before the
// next step starts.
type Engine struct {
	instances     persistence.InstanceStore
	plans         metadata.MetadataService
	executor      *action.Executor
	timers        *timer.Service
	collector     analytics.WorkflowDataCollector
	instanceLocks *util.KeyedMutex
	keyLocks      *util.KeyedMutex
	now           func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithDataCollector(c analytics.WorkflowDataCollector) Option {
	return func(e *Engine) {
		if c != nil {
			e.collector = c
		}
	}
}

func NewEngine(instances persistence.InstanceStore, plans metadata.MetadataService, executor *action.Executor, timers *timer.Service, opts ...Option) *Engine {
	e := &Engine{
		instances:     instances,
		plans:         plans,
		executor:      executor,
		timers:        timers,
		collector:     analytics.NoopDataCollector{},
		instanceLocks: util.NewKeyedMutex(),
		keyLocks:      util.NewKeyedMutex(),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Trigger routes an inbound message to its sender's open instance as a
// NewMessage signal, or starts the next instance of planName for the sender.
// The boolean reports whether an instance was created.
func (e *Engine) Trigger(ctx context.Context, planName string, msg model.InboundMessage) (*model.WorkflowInstance, bool, error) {
	key := msg.Sender
	if key == "" {
		return nil, false, ErrMissingBusinessKey
	}
	payload, err := binding.Normalize(msg)
	if err != nil {
		return nil, false, err
	}
	unlock := e.keyLocks.Lock(key)
	defer unlock()

	generation := 0
	active, err := e.instances.GetActive(ctx, key)
	switch {
	case err == nil:
		if absorbs(active) {
			logger.Debug("message absorbed by open instance", zap.String("instanceId", active.Id), zap.String("businessKey", key))
			if err := e.DeliverSignal(ctx, active.Id, model.NEW_MESSAGE_SIGNAL, payload); err != nil {
				return active, false, err
			}
			inst, err := e.instances.Get(ctx, active.Id)
			return inst, false, err
		}
		generation = active.Generation
	case !errors.Is(err, persistence.ErrNotFound):
		return nil, false, err
	}

	plan, err := e.plans.LatestActive(ctx, planName)
	if err != nil {
		return nil, false, err
	}
	now := e.now()
	inst := &model.WorkflowInstance{
		Id:          InstanceId(key, generation+1),
		BusinessKey: key,
		Generation:  generation + 1,
		PlanName:    plan.Name,
		PlanVersion: plan.Version,
		Status:      model.PENDING,
		Variables:   map[string]any{binding.INPUT_VAR: payload},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	unlockInstance := e.instanceLocks.Lock(inst.Id)
	defer unlockInstance()
	if err := e.instances.Create(ctx, inst); err != nil {
		return nil, false, err
	}
	logger.Info("workflow instance created", zap.String("instanceId", inst.Id), zap.String("businessKey", key), zap.Int("generation", inst.Generation), zap.String("plan", plan.Name), zap.Int("version", plan.Version))

	inst.Status = model.RUNNING
	if err := e.save(ctx, inst); err != nil {
		return inst, true, err
	}
	if err := e.execute(ctx, inst, plan); err != nil {
		return inst, true, err
	}
	return inst, true, nil
}

// absorbs reports whether new messages of the business key belong to inst.
// A completed instance keeps absorbing while it has open listeners.
func absorbs(inst *model.WorkflowInstance) bool {
	if !inst.Accepting() {
		return false
	}
	return !inst.Status.IsTerminal() || len(inst.Listeners) > 0
}

func (e *Engine) GetInstance(ctx context.Context, id string) (*model.WorkflowInstance, error) {
	return e.instances.Get(ctx, id)
}

// Wake continues an instance whose timer deadline has passed. Early, stale
// and duplicate wakes change nothing.
func (e *Engine) Wake(ctx context.Context, instanceId string) error {
	unlock := e.instanceLocks.Lock(instanceId)
	defer unlock()

	inst, err := e.instances.Get(ctx, instanceId)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			logger.Debug("wake for unknown instance", zap.String("instanceId", instanceId))
			return nil
		}
		return err
	}
	if inst.Status != model.WAITING_TIMER || inst.PendingWait == nil || inst.PendingWait.TimerDeadline == nil {
		logger.Debug("stale wake ignored", zap.String("instanceId", instanceId), zap.String("status", string(inst.Status)))
		return nil
	}
	if e.now().Before(*inst.PendingWait.TimerDeadline) {
		logger.Debug("early wake ignored", zap.String("instanceId", instanceId), zap.Time("deadline", *inst.PendingWait.TimerDeadline))
		return nil
	}
	plan, err := e.plans.Get(ctx, inst.PlanName, inst.PlanVersion)
	if err != nil {
		return err
	}
	if inst.Cursor >= len(plan.Steps) || plan.Steps[inst.Cursor].Type != model.TIMER_STEP {
		logger.Warn("waiting instance is not at a timer step", zap.String("instanceId", instanceId), zap.Int("cursor", inst.Cursor))
		return nil
	}
	step := plan.Steps[inst.Cursor]
	e.collector.RecordStepSuccess(plan.Name, inst.Id, step.Name, inst.Cursor, nil)
	inst.LastCompletedStep = step.Name
	inst.Cursor++
	inst.Status = model.RUNNING
	inst.PendingWait = nil
	inst.WaitingSince = nil
	if err := e.save(ctx, inst); err != nil {
		return err
	}
	e.cancelTimer(ctx, inst.Id)
	return e.execute(ctx, inst, plan)
}

func (e *Engine) save(ctx context.Context, inst *model.WorkflowInstance) error {
	inst.UpdatedAt = e.now()
	return e.instances.Save(ctx, inst)
}

func (e *Engine) cancelTimer(ctx context.Context, instanceId string) {
	if err := e.timers.Cancel(ctx, instanceId); err != nil {
		logger.Warn("error cancelling timer", zap.String("instanceId", instanceId), zap.Error(err))
	}
}
