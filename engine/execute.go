package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohitkumar/ticketflow/action"
	"github.com/mohitkumar/ticketflow/binding"
	"github.com/mohitkumar/ticketflow/logger"
	"github.com/mohitkumar/ticketflow/model"
	"github.com/mohitkumar/ticketflow/util"
	"go.uber.org/zap"
)

// execute runs the main sequence from the cursor until the instance waits,
// completes or fails. The caller holds the instance lock. Only storage and
// context errors are returned, a failing activity fails the instance.
func (e *Engine) execute(ctx context.Context, inst *model.WorkflowInstance, plan *model.ExecutionPlan) error {
	if inst.Variables == nil {
		inst.Variables = map[string]any{}
	}
	if err := e.drainPending(ctx, inst, plan); err != nil {
		return err
	}
	for inst.Cursor < len(plan.Steps) {
		step := plan.Steps[inst.Cursor]
		switch step.Type {
		case model.ACTIVITY_STEP:
			done, err := e.runActivity(ctx, inst, plan, step)
			if err != nil || !done {
				return err
			}
		case model.TIMER_STEP:
			return e.startTimer(ctx, inst, plan, step)
		case model.SIGNAL_STEP:
			if !step.Concurrent {
				p, ok := inst.TakePendingSignal(step.SignalName)
				if !ok {
					return e.waitSignal(ctx, inst, step)
				}
				done, err := e.completeSignalStep(ctx, inst, plan, step, p.Payload)
				if err != nil || !done {
					return err
				}
				continue
			}
			inst.Listeners = util.AppendUnique(inst.Listeners, step.SignalName)
			inst.LastCompletedStep = step.Name
			inst.Cursor++
			if err := e.save(ctx, inst); err != nil {
				return err
			}
			logger.Debug("listener opened", zap.String("instanceId", inst.Id), zap.String("signal", step.SignalName))
			if err := e.drainPending(ctx, inst, plan); err != nil {
				return err
			}
		default:
			return e.fail(ctx, inst, plan, step, fmt.Errorf("step type %s is not supported", step.Type))
		}
	}
	inst.Status = model.COMPLETED
	inst.PendingWait = nil
	inst.WaitingSince = nil
	if err := e.save(ctx, inst); err != nil {
		return err
	}
	logger.Info("workflow instance completed", zap.String("instanceId", inst.Id), zap.String("plan", plan.Name), zap.Strings("listeners", inst.Listeners))
	return nil
}

// runActivity invokes the step and persists output and cursor together. It
// reports false when the instance stopped at this step.
func (e *Engine) runActivity(ctx context.Context, inst *model.WorkflowInstance, plan *model.ExecutionPlan, step model.Step) (bool, error) {
	args, err := binding.EvaluateAll(step.Input, inst.Variables)
	if err != nil {
		return false, e.fail(ctx, inst, plan, step, err)
	}
	res, err := e.executor.Invoke(ctx, step.ActivityName, args, action.Options{
		InstanceId:     inst.Id,
		IdempotencyKey: fmt.Sprintf("%s/%d", inst.Id, inst.Cursor),
	})
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("activity interrupted", zap.String("instanceId", inst.Id), zap.String("activity", step.ActivityName), zap.Error(err))
			return false, ctx.Err()
		}
		return false, e.fail(ctx, inst, plan, step, err)
	}
	output, err := binding.Normalize(res)
	if err != nil {
		return false, e.fail(ctx, inst, plan, step, err)
	}
	if step.Output != "" {
		inst.Variables[step.Output] = output
	}
	inst.LastCompletedStep = step.Name
	inst.Cursor++
	if err := e.save(ctx, inst); err != nil {
		return false, err
	}
	e.collector.RecordStepSuccess(plan.Name, inst.Id, step.Name, inst.Cursor-1, output)
	logger.Debug("step completed", zap.String("instanceId", inst.Id), zap.String("step", step.Name), zap.Int("cursor", inst.Cursor))
	return true, nil
}

func (e *Engine) startTimer(ctx context.Context, inst *model.WorkflowInstance, plan *model.ExecutionPlan, step model.Step) error {
	d, err := time.ParseDuration(step.TimerDuration)
	if err != nil {
		return e.fail(ctx, inst, plan, step, fmt.Errorf("invalid timer duration %q: %w", step.TimerDuration, err))
	}
	now := e.now()
	deadline := now.Add(d)
	inst.Status = model.WAITING_TIMER
	inst.PendingWait = &model.PendingWait{TimerDeadline: &deadline}
	inst.WaitingSince = &now
	if err := e.save(ctx, inst); err != nil {
		return err
	}
	if err := e.timers.Schedule(ctx, inst.Id, deadline); err != nil {
		// the audit re-wakes overdue timers that never made it to the queue
		logger.Error("timer not scheduled", zap.String("instanceId", inst.Id), zap.Time("deadline", deadline), zap.Error(err))
	}
	logger.Debug("waiting for timer", zap.String("instanceId", inst.Id), zap.String("step", step.Name), zap.Time("deadline", deadline))
	return nil
}

func (e *Engine) waitSignal(ctx context.Context, inst *model.WorkflowInstance, step model.Step) error {
	now := e.now()
	inst.Status = model.WAITING_SIGNAL
	inst.PendingWait = &model.PendingWait{SignalName: step.SignalName}
	inst.WaitingSince = &now
	if err := e.save(ctx, inst); err != nil {
		return err
	}
	logger.Debug("waiting for signal", zap.String("instanceId", inst.Id), zap.String("signal", step.SignalName))
	return nil
}

// fail moves the instance to FAILED. There is no compensation, steps already
// done stay done.
func (e *Engine) fail(ctx context.Context, inst *model.WorkflowInstance, plan *model.ExecutionPlan, step model.Step, cause error) error {
	failure := &model.Failure{
		Step:     inst.Cursor,
		StepName: step.Name,
		Activity: step.ActivityName,
		Cause:    cause.Error(),
	}
	var actErr *action.ActivityError
	if errors.As(cause, &actErr) {
		failure.Attempts = actErr.Attempts
		failure.Cause = actErr.Cause.Error()
	}
	inst.Status = model.FAILED
	inst.Failure = failure
	inst.PendingWait = nil
	inst.WaitingSince = nil
	if err := e.save(ctx, inst); err != nil {
		return err
	}
	e.cancelTimer(ctx, inst.Id)
	logger.Error("workflow instance failed", zap.String("instanceId", inst.Id), zap.String("plan", plan.Name), zap.String("step", step.Name), zap.String("activity", step.ActivityName), zap.Int("attempts", failure.Attempts), zap.String("lastCompletedStep", inst.LastCompletedStep), zap.Error(cause))
	e.collector.RecordStepFailure(plan.Name, inst.Id, step.Name, inst.Cursor, failure.Cause)
	return nil
}
