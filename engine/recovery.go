package engine

import (
	"context"
	"time"

	"github.com/mohitkumar/ticketflow/logger"
	"github.com/mohitkumar/ticketflow/model"
	"go.uber.org/zap"
)

// Recover re-arms every unfinished instance after a restart: waiting timers
// go back to the timer queue and running instances continue at their
// persisted cursor. Instance errors are logged and do not stop recovery.
func (e *Engine) Recover(ctx context.Context) error {
	insts, err := e.instances.ListByStatus(ctx, model.PENDING, model.RUNNING, model.WAITING_TIMER)
	if err != nil {
		return err
	}
	resumed, rescheduled := 0, 0
	for _, inst := range insts {
		if inst.Status == model.WAITING_TIMER {
			if inst.PendingWait == nil || inst.PendingWait.TimerDeadline == nil {
				logger.Warn("waiting instance without deadline", zap.String("instanceId", inst.Id))
				continue
			}
			if err := e.timers.Schedule(ctx, inst.Id, *inst.PendingWait.TimerDeadline); err != nil {
				logger.Error("error rescheduling timer", zap.String("instanceId", inst.Id), zap.Error(err))
				continue
			}
			rescheduled++
			continue
		}
		if err := e.Resume(ctx, inst.Id); err != nil {
			logger.Error("error resuming instance", zap.String("instanceId", inst.Id), zap.Error(err))
			continue
		}
		resumed++
	}
	logger.Info("recovery finished", zap.Int("resumed", resumed), zap.Int("timersRescheduled", rescheduled))
	return nil
}

// Resume re-runs the main sequence from the persisted cursor. A failed
// instance is retried from the step that failed. Completed and waiting
// instances are left alone.
func (e *Engine) Resume(ctx context.Context, instanceId string) error {
	unlock := e.instanceLocks.Lock(instanceId)
	defer unlock()

	inst, err := e.instances.Get(ctx, instanceId)
	if err != nil {
		return err
	}
	switch inst.Status {
	case model.COMPLETED, model.WAITING_TIMER, model.WAITING_SIGNAL:
		return nil
	case model.FAILED:
		logger.Info("resuming failed instance", zap.String("instanceId", inst.Id), zap.Int("cursor", inst.Cursor))
		inst.Failure = nil
	}
	plan, err := e.plans.Get(ctx, inst.PlanName, inst.PlanVersion)
	if err != nil {
		return err
	}
	inst.Status = model.RUNNING
	if err := e.save(ctx, inst); err != nil {
		return err
	}
	return e.execute(ctx, inst, plan)
}

type AuditReport struct {
	Overdue []string `json:"overdue"`
	Stale   []string `json:"stale"`
}

// Audit wakes timers whose deadline passed without a wake and reports waits
// older than maxWait.
func (e *Engine) Audit(ctx context.Context, maxWait time.Duration) (AuditReport, error) {
	var report AuditReport
	insts, err := e.instances.ListByStatus(ctx, model.WAITING_TIMER, model.WAITING_SIGNAL)
	if err != nil {
		return report, err
	}
	now := e.now()
	for _, inst := range insts {
		if inst.WaitingSince != nil && maxWait > 0 && now.Sub(*inst.WaitingSince) > maxWait {
			report.Stale = append(report.Stale, inst.Id)
			logger.Warn("instance waiting too long", zap.String("instanceId", inst.Id), zap.String("status", string(inst.Status)), zap.Time("waitingSince", *inst.WaitingSince))
		}
		if inst.Status != model.WAITING_TIMER || inst.PendingWait == nil || inst.PendingWait.TimerDeadline == nil {
			continue
		}
		if now.Before(*inst.PendingWait.TimerDeadline) {
			continue
		}
		report.Overdue = append(report.Overdue, inst.Id)
		logger.Warn("overdue timer, waking", zap.String("instanceId", inst.Id), zap.Time("deadline", *inst.PendingWait.TimerDeadline))
		if err := e.Wake(ctx, inst.Id); err != nil {
			logger.Error("error waking overdue instance", zap.String("instanceId", inst.Id), zap.Error(err))
		}
	}
	return report, nil
}
