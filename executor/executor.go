package executor

import (
	"context"
	"time"

	"github.com/mohitkumar/ticketflow/engine"
)

type Executor interface {
	Start() error
	Stop() error
	Name() string
}

// Waker continues instances whose timer is due.
type Waker interface {
	Wake(ctx context.Context, instanceId string) error
}

type Auditor interface {
	Audit(ctx context.Context, maxWait time.Duration) (engine.AuditReport, error)
}
