package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohitkumar/ticketflow/action"
	"github.com/mohitkumar/ticketflow/binding"
	"github.com/mohitkumar/ticketflow/logger"
	"github.com/mohitkumar/ticketflow/model"
	"github.com/mohitkumar/ticketflow/persistence"
	"go.uber.org/zap"
)

// DeliverSignal runs the listener of name on the instance with payload in
// scope as $.signalPayload. Deliveries nobody listens for are dropped. Every
// delivery runs the actions again, duplicates included.
func (e *Engine) DeliverSignal(ctx context.Context, instanceId string, name string, payload any) error {
	unlock := e.instanceLocks.Lock(instanceId)
	defer unlock()

	inst, err := e.instances.Get(ctx, instanceId)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			logger.Debug("signal for unknown instance dropped", zap.String("instanceId", instanceId), zap.String("signal", name))
			return nil
		}
		return err
	}
	if !inst.Accepting() {
		logger.Debug("signal dropped, instance no longer listens", zap.String("instanceId", instanceId), zap.String("signal", name), zap.String("status", string(inst.Status)))
		return nil
	}
	payload, err = binding.Normalize(payload)
	if err != nil {
		return err
	}
	plan, err := e.plans.Get(ctx, inst.PlanName, inst.PlanVersion)
	if err != nil {
		return err
	}

	if inst.Status == model.WAITING_SIGNAL && inst.PendingWait != nil && inst.PendingWait.SignalName == name {
		return e.resumeWaiting(ctx, inst, plan, payload)
	}
	if !inst.HasListener(name) {
		if !inst.Status.IsTerminal() && plan.HandlesSignalFrom(name, inst.Cursor) {
			inst.PendingSignals = append(inst.PendingSignals, model.PendingSignal{Name: name, Payload: payload, ReceivedAt: e.now()})
			if err := e.save(ctx, inst); err != nil {
				return err
			}
			logger.Debug("signal buffered until its step opens", zap.String("instanceId", instanceId), zap.String("signal", name), zap.Int("pending", len(inst.PendingSignals)))
			return nil
		}
		logger.Debug("signal dropped, no listener", zap.String("instanceId", instanceId), zap.String("signal", name))
		return nil
	}
	step, ok := plan.SignalStep(name)
	if !ok {
		logger.Warn("listener without signal step in plan", zap.String("instanceId", instanceId), zap.String("signal", name), zap.Int("version", plan.Version))
		return nil
	}
	if err := e.runActions(ctx, inst, step, payload); err != nil {
		logger.Error("signal handler failed", zap.String("instanceId", instanceId), zap.String("signal", name), zap.Error(err))
		e.collector.RecordSignal(plan.Name, inst.Id, name, err.Error())
		return err
	}
	if step.Terminal {
		inst.ListenersClosed = true
		logger.Info("listeners closed", zap.String("instanceId", instanceId), zap.String("signal", name))
	}
	if err := e.save(ctx, inst); err != nil {
		return err
	}
	e.collector.RecordSignal(plan.Name, inst.Id, name, "")
	return nil
}

// runActions invokes the listener's actions in order. Outputs become instance
// variables, visible to later actions and later steps.
func (e *Engine) runActions(ctx context.Context, inst *model.WorkflowInstance, step model.Step, payload any) error {
	if inst.Variables == nil {
		inst.Variables = map[string]any{}
	}
	vars := make(map[string]any, len(inst.Variables)+1)
	for k, v := range inst.Variables {
		vars[k] = v
	}
	vars[binding.SIGNAL_PAYLOAD_VAR] = payload
	for _, act := range step.Actions {
		args, err := binding.EvaluateAll(act.Input, vars)
		if err != nil {
			return fmt.Errorf("signal %s, action %s: %w", step.SignalName, act.Name, err)
		}
		res, err := e.executor.Invoke(ctx, act.ActivityName, args, action.Options{InstanceId: inst.Id})
		if err != nil {
			return err
		}
		if act.Output != "" {
			out, err := binding.Normalize(res)
			if err != nil {
				return err
			}
			vars[act.Output] = out
			inst.Variables[act.Output] = out
		}
	}
	return nil
}

// resumeWaiting completes a blocking signal step and continues the main
// sequence.
func (e *Engine) resumeWaiting(ctx context.Context, inst *model.WorkflowInstance, plan *model.ExecutionPlan, payload any) error {
	if inst.Cursor >= len(plan.Steps) {
		return nil
	}
	done, err := e.completeSignalStep(ctx, inst, plan, plan.Steps[inst.Cursor], payload)
	if err != nil || !done {
		return err
	}
	return e.execute(ctx, inst, plan)
}

// completeSignalStep runs the actions of the blocking signal step at the
// cursor and moves past it. It reports false when the instance failed.
func (e *Engine) completeSignalStep(ctx context.Context, inst *model.WorkflowInstance, plan *model.ExecutionPlan, step model.Step, payload any) (bool, error) {
	if err := e.runActions(ctx, inst, step, payload); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, e.fail(ctx, inst, plan, step, err)
	}
	e.collector.RecordStepSuccess(plan.Name, inst.Id, step.Name, inst.Cursor, payload)
	inst.LastCompletedStep = step.Name
	inst.Cursor++
	inst.Status = model.RUNNING
	inst.PendingWait = nil
	inst.WaitingSince = nil
	if step.Terminal {
		inst.ListenersClosed = true
	}
	return true, e.save(ctx, inst)
}

// drainPending hands buffered signals to the listeners that are open now.
// Handler errors are logged like those of live deliveries. The buffer is
// persisted only after the handlers ran, so a crash replays them.
func (e *Engine) drainPending(ctx context.Context, inst *model.WorkflowInstance, plan *model.ExecutionPlan) error {
	if len(inst.PendingSignals) == 0 {
		return nil
	}
	drained := 0
	for _, name := range inst.Listeners {
		step, ok := plan.SignalStep(name)
		if !ok {
			continue
		}
		for _, p := range inst.TakePendingSignals(name) {
			if inst.ListenersClosed {
				logger.Debug("buffered signal dropped, listeners closed", zap.String("instanceId", inst.Id), zap.String("signal", name))
				continue
			}
			drained++
			if err := e.runActions(ctx, inst, step, p.Payload); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Error("buffered signal handler failed", zap.String("instanceId", inst.Id), zap.String("signal", name), zap.Error(err))
				e.collector.RecordSignal(plan.Name, inst.Id, name, err.Error())
				continue
			}
			e.collector.RecordSignal(plan.Name, inst.Id, name, "")
			if step.Terminal {
				inst.ListenersClosed = true
				logger.Info("listeners closed", zap.String("instanceId", inst.Id), zap.String("signal", name))
			}
		}
	}
	if drained == 0 {
		return nil
	}
	logger.Debug("buffered signals delivered", zap.String("instanceId", inst.Id), zap.Int("count", drained))
	return e.save(ctx, inst)
}
