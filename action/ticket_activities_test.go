package action

import (
	"context"
	"testing"

	"github.com/mohitkumar/ticketflow/model"
	"github.com/mohitkumar/ticketflow/persistence"
	"github.com/mohitkumar/ticketflow/persistence/memory"
	"github.com/stretchr/testify/require"
)

func newTestActivities() (*TicketActivities, *memory.TicketStore) {
	store := memory.NewTicketStore()
	return NewTicketActivities(store, NewDefaultClassifier(), DefaultAgentPool()), store
}

func inbound(sender string, id string, text string) map[string]any {
	return map[string]any{"id": id, "sender": sender, "channel": "email", "text": text}
}

func TestGetOrCreateTicket(t *testing.T) {
	ctx := context.Background()
	for scenario, fn := range map[string]func(t *testing.T){
		"creates for new customer": func(t *testing.T) {
			ta, _ := newTestActivities()
			res, err := ta.GetOrCreateTicket(ctx, Call{Args: []any{inbound("alice", "m-1", "hi")}, IdempotencyKey: "i-1/0"})
			require.NoError(t, err)
			ticket := res.(*model.Ticket)
			require.Equal(t, model.TICKET_OPEN, ticket.Status)
			require.Equal(t, "alice", ticket.CustomerId)
			require.Empty(t, ticket.PreviousTicketId)
		},
		"same key returns same ticket": func(t *testing.T) {
			ta, store := newTestActivities()
			first, err := ta.GetOrCreateTicket(ctx, Call{Args: []any{inbound("alice", "m-1", "hi")}, IdempotencyKey: "i-1/0"})
			require.NoError(t, err)
			first.(*model.Ticket).Status = model.TICKET_CLOSED
			require.NoError(t, store.Update(ctx, first.(*model.Ticket)))

			again, err := ta.GetOrCreateTicket(ctx, Call{Args: []any{inbound("alice", "m-1", "hi")}, IdempotencyKey: "i-1/0"})
			require.NoError(t, err)
			require.Equal(t, first.(*model.Ticket).Id, again.(*model.Ticket).Id)
		},
		"returns open ticket": func(t *testing.T) {
			ta, _ := newTestActivities()
			first, err := ta.GetOrCreateTicket(ctx, Call{Args: []any{inbound("bob", "m-1", "hi")}, IdempotencyKey: "i-1/0"})
			require.NoError(t, err)
			second, err := ta.GetOrCreateTicket(ctx, Call{Args: []any{inbound("bob", "m-2", "again")}, IdempotencyKey: "i-2/0"})
			require.NoError(t, err)
			require.Equal(t, first.(*model.Ticket).Id, second.(*model.Ticket).Id)
		},
		"links new ticket to closed one": func(t *testing.T) {
			ta, store := newTestActivities()
			first, err := ta.GetOrCreateTicket(ctx, Call{Args: []any{inbound("carol", "m-1", "hi")}, IdempotencyKey: "i-1/0"})
			require.NoError(t, err)
			closed := first.(*model.Ticket)
			closed.Status = model.TICKET_CLOSED
			require.NoError(t, store.Update(ctx, closed))

			second, err := ta.GetOrCreateTicket(ctx, Call{Args: []any{inbound("carol", "m-2", "new issue")}, IdempotencyKey: "i-2/0"})
			require.NoError(t, err)
			ticket := second.(*model.Ticket)
			require.NotEqual(t, closed.Id, ticket.Id)
			require.Equal(t, closed.Id, ticket.PreviousTicketId)
			require.Equal(t, model.TICKET_OPEN, ticket.Status)
		},
		"missing sender is permanent": func(t *testing.T) {
			ta, _ := newTestActivities()
			_, err := ta.GetOrCreateTicket(ctx, Call{Args: []any{map[string]any{"text": "hi"}}})
			require.True(t, IsPermanent(err))
		},
	} {
		t.Run(scenario, fn)
	}
}

func TestAddMessageToTicket(t *testing.T) {
	ctx := context.Background()
	ta, store := newTestActivities()
	res, err := ta.GetOrCreateTicket(ctx, Call{Args: []any{inbound("alice", "m-1", "hi")}, IdempotencyKey: "i-1/0"})
	require.NoError(t, err)
	ticketId := res.(*model.Ticket).Id

	_, err = ta.AddMessageToTicket(ctx, Call{Args: []any{inbound("alice", "m-1", "hi"), ticketId}})
	require.NoError(t, err)
	_, err = ta.AddMessageToTicket(ctx, Call{Args: []any{inbound("alice", "m-1", "hi"), ticketId}})
	require.NoError(t, err)
	_, err = ta.AddMessageToTicket(ctx, Call{Args: []any{inbound("alice", "", "no id"), ticketId}, IdempotencyKey: "i-1/1"})
	require.NoError(t, err)
	_, err = ta.AddMessageToTicket(ctx, Call{Args: []any{inbound("alice", "", "no id"), ticketId}, IdempotencyKey: "i-1/1"})
	require.NoError(t, err)

	ticket, err := store.Get(ctx, ticketId)
	require.NoError(t, err)
	require.Len(t, ticket.Messages, 2)
	require.Equal(t, "m-1", ticket.Messages[0].Id)
	require.False(t, ticket.Messages[1].Timestamp.IsZero())

	_, err = ta.AddMessageToTicket(ctx, Call{Args: []any{inbound("alice", "m-9", "hi"), "ghost"}})
	require.ErrorIs(t, err, persistence.ErrNotFound)
	require.True(t, IsPermanent(err))
}

func TestClassifyAssignResolve(t *testing.T) {
	ctx := context.Background()
	ta, store := newTestActivities()
	res, err := ta.GetOrCreateTicket(ctx, Call{Args: []any{inbound("alice", "m-1", "")}, IdempotencyKey: "i-1/0"})
	require.NoError(t, err)
	ticketId := res.(*model.Ticket).Id
	_, err = ta.AddMessageToTicket(ctx, Call{Args: []any{inbound("alice", "m-1", "I need a refund for my last invoice"), ticketId}})
	require.NoError(t, err)

	class, err := ta.ClassifyTicket(ctx, Call{Args: []any{ticketId}})
	require.NoError(t, err)
	require.Equal(t, Classification{VerticalId: 2, SkillId: 20}, class)

	first, err := ta.AssignTicket(ctx, Call{Args: []any{ticketId}})
	require.NoError(t, err)
	require.Equal(t, "billing-1", first.(Assignment).AgentId)

	second, err := ta.AssignTicket(ctx, Call{Args: []any{ticketId}})
	require.NoError(t, err)
	require.Equal(t, "billing-2", second.(Assignment).AgentId)
	require.Equal(t, "billing-1", second.(Assignment).Previous)

	ticket, err := store.Get(ctx, ticketId)
	require.NoError(t, err)
	require.Equal(t, model.TICKET_IN_PROGRESS, ticket.Status)
	require.Equal(t, int64(20), ticket.SkillId)

	_, err = ta.ResolveTicket(ctx, Call{Args: []any{ticketId, map[string]any{"resolution": "refunded"}}})
	require.NoError(t, err)
	ticket, err = store.Get(ctx, ticketId)
	require.NoError(t, err)
	require.Equal(t, model.TICKET_CLOSED, ticket.Status)
	require.Equal(t, "refunded", ticket.Resolution)

	_, err = ta.AssignTicket(ctx, Call{Args: []any{ticketId}})
	require.ErrorIs(t, err, ErrTicketClosed)
	_, err = ta.ResolveTicket(ctx, Call{Args: []any{ticketId, "again"}})
	require.NoError(t, err)
}

func TestAssignTicketReplay(t *testing.T) {
	ctx := context.Background()
	ta, store := newTestActivities()
	res, err := ta.GetOrCreateTicket(ctx, Call{Args: []any{inbound("bob", "m-1", "")}, IdempotencyKey: "i-1/0"})
	require.NoError(t, err)
	ticketId := res.(*model.Ticket).Id
	_, err = ta.AddMessageToTicket(ctx, Call{Args: []any{inbound("bob", "m-1", "the app crashes"), ticketId}})
	require.NoError(t, err)
	_, err = ta.ClassifyTicket(ctx, Call{Args: []any{ticketId}})
	require.NoError(t, err)

	first, err := ta.AssignTicket(ctx, Call{Args: []any{ticketId}, IdempotencyKey: "i-1/6"})
	require.NoError(t, err)
	require.Equal(t, "tech-1", first.(Assignment).AgentId)

	replayed, err := ta.AssignTicket(ctx, Call{Args: []any{ticketId}, IdempotencyKey: "i-1/6"})
	require.NoError(t, err)
	require.Equal(t, first, replayed)
	ticket, err := store.Get(ctx, ticketId)
	require.NoError(t, err)
	require.Equal(t, "tech-1", ticket.AssignedTo)

	// a reassignment carries no key and moves the ticket
	moved, err := ta.AssignTicket(ctx, Call{Args: []any{ticketId}})
	require.NoError(t, err)
	require.Equal(t, "tech-2", moved.(Assignment).AgentId)
	require.Equal(t, "tech-1", moved.(Assignment).Previous)
}

func TestClassifierScripts(t *testing.T) {
	c := NewDefaultClassifier()
	for text, want := range map[string]Classification{
		"hello there":          {VerticalId: 1, SkillId: 1},
		"Payment failed twice": {VerticalId: 2, SkillId: 20},
		"the app CRASHES":      {VerticalId: 3, SkillId: 30},
	} {
		got, err := c.Classify(map[string]any{"text": text})
		require.NoError(t, err)
		require.Equal(t, want, got, text)
	}

	custom, err := NewClassifier(`$.verticalId = 7; $.skillId = $.text.length;`)
	require.NoError(t, err)
	got, err := custom.Classify(map[string]any{"text": "abc"})
	require.NoError(t, err)
	require.Equal(t, Classification{VerticalId: 7, SkillId: 3}, got)

	_, err = NewClassifier(`this is not javascript (`)
	require.Error(t, err)

	broken, err := NewClassifier(`throw new Error("nope")`)
	require.NoError(t, err)
	_, err = broken.Classify(map[string]any{"text": "x"})
	require.Error(t, err)
}

func TestAgentPool(t *testing.T) {
	p := NewAgentPool(map[int64][]string{5: {"a", "b", "c"}}, []string{"solo"})
	agent, err := p.Next(5, "")
	require.NoError(t, err)
	require.Equal(t, "a", agent)
	agent, err = p.Next(5, "b")
	require.NoError(t, err)
	require.Equal(t, "c", agent)
	agent, err = p.Next(5, "")
	require.NoError(t, err)
	require.Equal(t, "a", agent)

	agent, err = p.Next(99, "")
	require.NoError(t, err)
	require.Equal(t, "solo", agent)
	_, err = p.Next(99, "solo")
	require.ErrorIs(t, err, ErrNoAgentAvailable)
}
