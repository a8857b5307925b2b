// Package storetest holds the behaviour every persistence backend must share.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mohitkumar/ticketflow/model"
	"github.com/mohitkumar/ticketflow/persistence"
	"github.com/stretchr/testify/require"
)

func newInstance(id string, key string, gen int, status model.InstanceStatus) *model.WorkflowInstance {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.WorkflowInstance{
		Id:          id,
		BusinessKey: key,
		Generation:  gen,
		PlanName:    "ticket-flow",
		PlanVersion: 1,
		Status:      status,
		Variables: map[string]any{
			"input":  map[string]any{"sender": key, "text": "hello"},
			"ticket": map[string]any{"id": "t-1"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func InstanceStore(t *testing.T, factory func(t *testing.T) persistence.InstanceStore) {
	for scenario, fn := range map[string]func(t *testing.T, s persistence.InstanceStore){
		"create and get":        testCreateGet,
		"create twice":          testCreateTwice,
		"active follows create": testActivePointer,
		"save updates":          testSave,
		"list by status":        testListByStatus,
		"missing instance":      testMissingInstance,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func testCreateGet(t *testing.T, s persistence.InstanceStore) {
	ctx := context.Background()
	inst := newInstance("i-1", "alice", 1, model.RUNNING)
	require.NoError(t, s.Create(ctx, inst))

	got, err := s.Get(ctx, "i-1")
	require.NoError(t, err)
	require.Equal(t, "alice", got.BusinessKey)
	require.Equal(t, model.RUNNING, got.Status)
	require.Equal(t, "t-1", got.Variables["ticket"].(map[string]any)["id"])
}

func testCreateTwice(t *testing.T, s persistence.InstanceStore) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newInstance("i-1", "alice", 1, model.RUNNING)))
	err := s.Create(ctx, newInstance("i-1", "alice", 1, model.RUNNING))
	require.ErrorIs(t, err, persistence.ErrAlreadyExists)
}

func testActivePointer(t *testing.T, s persistence.InstanceStore) {
	ctx := context.Background()
	_, err := s.GetActive(ctx, "bob")
	require.ErrorIs(t, err, persistence.ErrNotFound)

	require.NoError(t, s.Create(ctx, newInstance("i-1", "bob", 1, model.COMPLETED)))
	require.NoError(t, s.Create(ctx, newInstance("i-2", "bob", 2, model.RUNNING)))
	active, err := s.GetActive(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, "i-2", active.Id)
	require.Equal(t, 2, active.Generation)
}

func testSave(t *testing.T, s persistence.InstanceStore) {
	ctx := context.Background()
	inst := newInstance("i-1", "carol", 1, model.RUNNING)
	require.NoError(t, s.Create(ctx, inst))

	deadline := time.Now().Add(time.Minute).UTC().Truncate(time.Millisecond)
	inst.Status = model.WAITING_TIMER
	inst.Cursor = 3
	inst.PendingWait = &model.PendingWait{TimerDeadline: &deadline}
	require.NoError(t, s.Save(ctx, inst))

	got, err := s.Get(ctx, "i-1")
	require.NoError(t, err)
	require.Equal(t, model.WAITING_TIMER, got.Status)
	require.Equal(t, 3, got.Cursor)
	require.True(t, deadline.Equal(*got.PendingWait.TimerDeadline))
}

func testListByStatus(t *testing.T, s persistence.InstanceStore) {
	ctx := context.Background()
	statuses := []model.InstanceStatus{model.RUNNING, model.WAITING_TIMER, model.COMPLETED, model.FAILED}
	for i, st := range statuses {
		require.NoError(t, s.Create(ctx, newInstance(fmt.Sprintf("i-%d", i), fmt.Sprintf("k-%d", i), 1, st)))
	}
	inst, err := s.Get(ctx, "i-0")
	require.NoError(t, err)
	inst.Status = model.WAITING_TIMER
	require.NoError(t, s.Save(ctx, inst))

	waiting, err := s.ListByStatus(ctx, model.WAITING_TIMER)
	require.NoError(t, err)
	require.Len(t, waiting, 2)

	open, err := s.ListByStatus(ctx, model.RUNNING, model.PENDING)
	require.NoError(t, err)
	require.Len(t, open, 0)

	done, err := s.ListByStatus(ctx, model.COMPLETED, model.FAILED)
	require.NoError(t, err)
	require.Len(t, done, 2)
}

func testMissingInstance(t *testing.T, s persistence.InstanceStore) {
	_, err := s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func newTicket(id string, customer string, created time.Time) *model.Ticket {
	return &model.Ticket{
		Id:         id,
		Status:     model.TICKET_OPEN,
		CustomerId: customer,
		Channel:    "email",
		CreatedAt:  created.UTC().Truncate(time.Millisecond),
		UpdatedAt:  created.UTC().Truncate(time.Millisecond),
	}
}

func TicketStore(t *testing.T, factory func(t *testing.T) persistence.TicketStore) {
	for scenario, fn := range map[string]func(t *testing.T, s persistence.TicketStore){
		"create and get":      testTicketCreateGet,
		"update":              testTicketUpdate,
		"list by customer":    testTicketList,
		"idempotency key":     testTicketIdempotency,
		"update missing":      testTicketUpdateMissing,
		"messages round trip": testTicketMessages,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func testTicketCreateGet(t *testing.T, s persistence.TicketStore) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newTicket("t-1", "alice", time.Now())))
	got, err := s.Get(ctx, "t-1")
	require.NoError(t, err)
	require.Equal(t, model.TICKET_OPEN, got.Status)
	require.Equal(t, "alice", got.CustomerId)

	_, err = s.Get(ctx, "t-2")
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func testTicketUpdate(t *testing.T, s persistence.TicketStore) {
	ctx := context.Background()
	ticket := newTicket("t-1", "alice", time.Now())
	require.NoError(t, s.Create(ctx, ticket))
	ticket.Status = model.TICKET_IN_PROGRESS
	ticket.AssignedTo = "agent-1"
	ticket.SkillId = 7
	require.NoError(t, s.Update(ctx, ticket))
	got, err := s.Get(ctx, "t-1")
	require.NoError(t, err)
	require.Equal(t, model.TICKET_IN_PROGRESS, got.Status)
	require.Equal(t, "agent-1", got.AssignedTo)
	require.Equal(t, int64(7), got.SkillId)
}

func testTicketList(t *testing.T, s persistence.TicketStore) {
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.Create(ctx, newTicket("t-2", "bob", now.Add(time.Second))))
	require.NoError(t, s.Create(ctx, newTicket("t-1", "bob", now)))
	require.NoError(t, s.Create(ctx, newTicket("t-3", "carol", now)))
	list, err := s.ListByCustomer(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "t-1", list[0].Id)
	require.Equal(t, "t-2", list[1].Id)

	none, err := s.ListByCustomer(ctx, "dave")
	require.NoError(t, err)
	require.Empty(t, none)
}

func testTicketIdempotency(t *testing.T, s persistence.TicketStore) {
	ctx := context.Background()
	ticket := newTicket("t-1", "alice", time.Now())
	ticket.IdempotencyKey = "i-1/0"
	require.NoError(t, s.Create(ctx, ticket))
	got, err := s.GetByIdempotencyKey(ctx, "i-1/0")
	require.NoError(t, err)
	require.Equal(t, "t-1", got.Id)

	_, err = s.GetByIdempotencyKey(ctx, "i-2/0")
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func testTicketUpdateMissing(t *testing.T, s persistence.TicketStore) {
	err := s.Update(context.Background(), newTicket("ghost", "alice", time.Now()))
	require.ErrorIs(t, err, persistence.ErrNotFound)
}

func testTicketMessages(t *testing.T, s persistence.TicketStore) {
	ctx := context.Background()
	ticket := newTicket("t-1", "alice", time.Now())
	ticket.Messages = []model.Message{{Id: "m-1", TicketId: "t-1", Sender: "alice", Text: "hello", Timestamp: ticket.CreatedAt}}
	require.NoError(t, s.Create(ctx, ticket))
	ticket.Messages = append(ticket.Messages, model.Message{Id: "m-2", TicketId: "t-1", Sender: "alice", Text: "again", Timestamp: ticket.CreatedAt})
	require.NoError(t, s.Update(ctx, ticket))
	got, err := s.Get(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "again", got.Messages[1].Text)
}

func PlanStore(t *testing.T, factory func(t *testing.T) persistence.PlanStore) {
	ctx := context.Background()
	s := factory(t)
	_, err := s.Latest(ctx, "p")
	require.ErrorIs(t, err, persistence.ErrNotFound)

	for v := 1; v <= 3; v++ {
		plan := &model.ExecutionPlan{Name: "p", Version: v, Steps: []model.Step{{Name: fmt.Sprintf("s%d", v), Type: model.TIMER_STEP, TimerDuration: "1s"}}}
		require.NoError(t, s.Save(ctx, plan))
	}
	err = s.Save(ctx, &model.ExecutionPlan{Name: "p", Version: 2})
	require.ErrorIs(t, err, persistence.ErrAlreadyExists)

	versions, err := s.Versions(ctx, "p")
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, versions)

	latest, err := s.Latest(ctx, "p")
	require.NoError(t, err)
	require.Equal(t, 3, latest.Version)
	require.Equal(t, "s3", latest.Steps[0].Name)

	v2, err := s.Get(ctx, "p", 2)
	require.NoError(t, err)
	require.Equal(t, "s2", v2.Steps[0].Name)

	_, err = s.Get(ctx, "p", 9)
	require.ErrorIs(t, err, persistence.ErrNotFound)

	require.NoError(t, s.Save(ctx, &model.ExecutionPlan{Name: "a", Version: 1}))
	names, err := s.Names(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "p"}, names)

	require.NoError(t, s.Deactivate(ctx, "p", 3))
	require.NoError(t, s.Deactivate(ctx, "p", 3))
	require.ErrorIs(t, s.Deactivate(ctx, "p", 9), persistence.ErrNotFound)
	summaries, err := s.Summaries(ctx, "p")
	require.NoError(t, err)
	require.Equal(t, []model.PlanSummary{
		{Name: "p", Version: 1, Active: true, Steps: 1},
		{Name: "p", Version: 2, Active: true, Steps: 1},
		{Name: "p", Version: 3, Active: false, Steps: 1},
	}, summaries)
	_, err = s.Summaries(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrNotFound)

	// deactivation leaves the version readable for instances already on it
	v3, err := s.Get(ctx, "p", 3)
	require.NoError(t, err)
	require.Equal(t, "s3", v3.Steps[0].Name)
}

func TimerQueue(t *testing.T, factory func(t *testing.T) persistence.TimerQueue) {
	ctx := context.Background()
	q := factory(t)
	now := time.Now()
	require.NoError(t, q.Push(ctx, 0, "late", now.Add(time.Hour)))
	require.NoError(t, q.Push(ctx, 0, "b", now.Add(-time.Second)))
	require.NoError(t, q.Push(ctx, 0, "a", now.Add(-2*time.Second)))
	require.NoError(t, q.Push(ctx, 1, "other", now.Add(-time.Second)))
	require.NoError(t, q.Push(ctx, 0, "removed", now.Add(-time.Second)))
	require.NoError(t, q.Remove(ctx, 0, "removed"))

	due, err := q.PopDue(ctx, 0, now)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, due)

	due, err = q.PopDue(ctx, 0, now)
	require.NoError(t, err)
	require.Empty(t, due)

	require.NoError(t, q.Push(ctx, 0, "late", now.Add(-time.Second)))
	due, err = q.PopDue(ctx, 0, now)
	require.NoError(t, err)
	require.Equal(t, []string{"late"}, due)

	due, err = q.PopDue(ctx, 1, now)
	require.NoError(t, err)
	require.Equal(t, []string{"other"}, due)
}
