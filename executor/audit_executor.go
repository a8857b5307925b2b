package executor

import (
	"context"
	"sync"
	"time"

	"github.com/mohitkumar/ticketflow/logger"
	"github.com/mohitkumar/ticketflow/util"
	"go.uber.org/zap"
)

var _ Executor = new(AuditExecutor)

const DEFAULT_AUDIT_INTERVAL = time.Minute

// AuditExecutor periodically runs the engine audit.
type AuditExecutor struct {
	auditor  Auditor
	interval time.Duration
	maxWait  time.Duration
	wg       *sync.WaitGroup
	tw       *util.TickWorker
}

func NewAuditExecutor(auditor Auditor, interval time.Duration, maxWait time.Duration, wg *sync.WaitGroup) *AuditExecutor {
	if interval <= 0 {
		interval = DEFAULT_AUDIT_INTERVAL
	}
	return &AuditExecutor{
		auditor:  auditor,
		interval: interval,
		maxWait:  maxWait,
		wg:       wg,
	}
}

func (ex *AuditExecutor) Name() string {
	return "audit-executor"
}

func (ex *AuditExecutor) Start() error {
	ex.tw = util.NewTickWorker("audit-worker", ex.interval, ex.audit, ex.wg)
	ex.tw.Start()
	return nil
}

func (ex *AuditExecutor) audit() {
	report, err := ex.auditor.Audit(context.Background(), ex.maxWait)
	if err != nil {
		logger.Error("error running audit", zap.Error(err))
		return
	}
	if len(report.Overdue) > 0 || len(report.Stale) > 0 {
		logger.Info("audit finished", zap.Int("overdue", len(report.Overdue)), zap.Int("stale", len(report.Stale)))
	}
}

func (ex *AuditExecutor) Stop() error {
	if ex.tw != nil {
		ex.tw.Stop()
	}
	return nil
}
