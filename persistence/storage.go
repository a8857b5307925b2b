package persistence

import (
	"context"
	"time"

	"github.com/mohitkumar/ticketflow/model"
)

// InstanceStore is the durable record of workflow instances. Create also moves
// the active pointer of the instance's business key to the new instance.
type InstanceStore interface {
	Create(ctx context.Context, inst *model.WorkflowInstance) error
	Save(ctx context.Context, inst *model.WorkflowInstance) error
	Get(ctx context.Context, id string) (*model.WorkflowInstance, error)
	GetActive(ctx context.Context, businessKey string) (*model.WorkflowInstance, error)
	ListByStatus(ctx context.Context, statuses ...model.InstanceStatus) ([]*model.WorkflowInstance, error)
}

// PlanStore keeps immutable plan versions. Saved versions start active.
type PlanStore interface {
	Save(ctx context.Context, plan *model.ExecutionPlan) error
	Get(ctx context.Context, name string, version int) (*model.ExecutionPlan, error)
	Latest(ctx context.Context, name string) (*model.ExecutionPlan, error)
	Versions(ctx context.Context, name string) ([]int, error)
	Deactivate(ctx context.Context, name string, version int) error
	// Summaries lists the versions of name in ascending order.
	Summaries(ctx context.Context, name string) ([]model.PlanSummary, error)
	Names(ctx context.Context) ([]string, error)
}

type TicketStore interface {
	Create(ctx context.Context, ticket *model.Ticket) error
	Get(ctx context.Context, id string) (*model.Ticket, error)
	Update(ctx context.Context, ticket *model.Ticket) error
	// ListByCustomer returns the customer's tickets, oldest first.
	ListByCustomer(ctx context.Context, customerId string) ([]*model.Ticket, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*model.Ticket, error)
}

// TimerQueue keeps one pending deadline per instance and partition.
type TimerQueue interface {
	Push(ctx context.Context, partition int, instanceId string, deadline time.Time) error
	PopDue(ctx context.Context, partition int, now time.Time) ([]string, error)
	Remove(ctx context.Context, partition int, instanceId string) error
}
