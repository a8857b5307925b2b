package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/ticketflow/logger"
	"github.com/mohitkumar/ticketflow/model"
	"github.com/mohitkumar/ticketflow/persistence"
	"github.com/mohitkumar/ticketflow/util"
	"go.uber.org/zap"
)

var ErrTicketClosed = errors.New("ticket is closed")

var ticketNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("ticketflow/ticket"))

type Assignment struct {
	TicketId string `json:"ticketId"`
	AgentId  string `json:"agentId"`
	SkillId  int64  `json:"skillId"`
	Previous string `json:"previous,omitempty"`
}

// TicketActivities are the ticket system operations the ticket workflow calls.
type TicketActivities struct {
	store      persistence.TicketStore
	classifier *Classifier
	agents     *AgentPool
	locks      *util.KeyedMutex
	now        func() time.Time
}

func NewTicketActivities(store persistence.TicketStore, classifier *Classifier, agents *AgentPool) *TicketActivities {
	return &TicketActivities{
		store:      store,
		classifier: classifier,
		agents:     agents,
		locks:      util.NewKeyedMutex(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (ta *TicketActivities) Register(r *Registry) error {
	defs := []Definition{
		{Name: model.GET_OR_CREATE_TICKET_ACTIVITY, Fn: ta.GetOrCreateTicket},
		{Name: model.ADD_MESSAGE_ACTIVITY, Fn: ta.AddMessageToTicket},
		{Name: model.CLASSIFY_TICKET_ACTIVITY, Fn: ta.ClassifyTicket},
		{Name: model.ASSIGN_TICKET_ACTIVITY, Fn: ta.AssignTicket},
		{Name: model.RESOLVE_TICKET_ACTIVITY, Fn: ta.ResolveTicket},
	}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// GetOrCreateTicket returns the customer's open ticket. A customer whose
// tickets are all closed gets a new one linked to the latest of them.
func (ta *TicketActivities) GetOrCreateTicket(ctx context.Context, call Call) (any, error) {
	msg, err := decodeArg[model.InboundMessage](call, 0)
	if err != nil {
		return nil, err
	}
	if msg.Sender == "" {
		return nil, Permanent(fmt.Errorf("message has no sender"))
	}
	unlock := ta.locks.Lock("customer/" + msg.Sender)
	defer unlock()

	if call.IdempotencyKey != "" {
		t, err := ta.store.GetByIdempotencyKey(ctx, call.IdempotencyKey)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, persistence.ErrNotFound) {
			return nil, err
		}
	}
	tickets, err := ta.store.ListByCustomer(ctx, msg.Sender)
	if err != nil {
		return nil, err
	}
	var previous *model.Ticket
	for _, t := range tickets {
		if t.Status == model.TICKET_OPEN || t.Status == model.TICKET_IN_PROGRESS {
			return t, nil
		}
		previous = t
	}

	now := ta.now()
	ticket := &model.Ticket{
		Id:             ta.ticketId(call.IdempotencyKey),
		Status:         model.TICKET_OPEN,
		CustomerId:     msg.Sender,
		Channel:        msg.Channel,
		Messages:       []model.Message{},
		IdempotencyKey: call.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if previous != nil {
		ticket.PreviousTicketId = previous.Id
	}
	if err := ta.store.Create(ctx, ticket); err != nil {
		if errors.Is(err, persistence.ErrAlreadyExists) && call.IdempotencyKey != "" {
			return ta.store.GetByIdempotencyKey(ctx, call.IdempotencyKey)
		}
		return nil, err
	}
	logger.Info("ticket created", zap.String("ticketId", ticket.Id), zap.String("customerId", ticket.CustomerId), zap.String("previousTicketId", ticket.PreviousTicketId))
	return ticket, nil
}

func (ta *TicketActivities) ticketId(idempotencyKey string) string {
	if idempotencyKey == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(ticketNamespace, []byte(idempotencyKey)).String()
}

// AddMessageToTicket appends the message unless the ticket already holds a
// message with the same id.
func (ta *TicketActivities) AddMessageToTicket(ctx context.Context, call Call) (any, error) {
	msg, err := decodeArg[model.InboundMessage](call, 0)
	if err != nil {
		return nil, err
	}
	ticketId, err := stringArg(call, 1)
	if err != nil {
		return nil, err
	}
	unlock := ta.locks.Lock(ticketId)
	defer unlock()

	ticket, err := ta.getTicket(ctx, ticketId)
	if err != nil {
		return nil, err
	}
	if ticket.Status == model.TICKET_CLOSED {
		return nil, Permanent(fmt.Errorf("ticket %s: %w", ticketId, ErrTicketClosed))
	}
	message := msg.ToMessage(ticketId)
	if message.Id == "" {
		if call.IdempotencyKey != "" {
			message.Id = uuid.NewSHA1(ticketNamespace, []byte("message/"+call.IdempotencyKey)).String()
		} else {
			message.Id = uuid.NewString()
		}
	}
	if ticket.HasMessage(message.Id) {
		return message, nil
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = ta.now()
	}
	ticket.Messages = append(ticket.Messages, message)
	ticket.UpdatedAt = ta.now()
	if err := ta.store.Update(ctx, ticket); err != nil {
		return nil, err
	}
	logger.Debug("message added to ticket", zap.String("ticketId", ticketId), zap.String("messageId", message.Id))
	return message, nil
}

func (ta *TicketActivities) ClassifyTicket(ctx context.Context, call Call) (any, error) {
	ticketId, err := stringArg(call, 0)
	if err != nil {
		return nil, err
	}
	unlock := ta.locks.Lock(ticketId)
	defer unlock()

	ticket, err := ta.getTicket(ctx, ticketId)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(ticket.Messages))
	for _, m := range ticket.Messages {
		texts = append(texts, m.Text)
	}
	class, err := ta.classifier.Classify(map[string]any{
		"ticketId":   ticket.Id,
		"customerId": ticket.CustomerId,
		"channel":    ticket.Channel,
		"text":       strings.Join(texts, "\n"),
	})
	if err != nil {
		return nil, Permanent(err)
	}
	ticket.VerticalId = class.VerticalId
	ticket.SkillId = class.SkillId
	ticket.UpdatedAt = ta.now()
	if err := ta.store.Update(ctx, ticket); err != nil {
		return nil, err
	}
	logger.Info("ticket classified", zap.String("ticketId", ticketId), zap.Int64("verticalId", class.VerticalId), zap.Int64("skillId", class.SkillId))
	return class, nil
}

// AssignTicket hands the ticket to the next agent with the ticket's skill,
// never the one already holding it. A replayed step, recognised by its
// idempotency key, gets the assignment it already made.
func (ta *TicketActivities) AssignTicket(ctx context.Context, call Call) (any, error) {
	ticketId, err := stringArg(call, 0)
	if err != nil {
		return nil, err
	}
	unlock := ta.locks.Lock(ticketId)
	defer unlock()

	ticket, err := ta.getTicket(ctx, ticketId)
	if err != nil {
		return nil, err
	}
	if call.IdempotencyKey != "" && ticket.AssignmentKey == call.IdempotencyKey {
		logger.Debug("assignment replayed", zap.String("ticketId", ticketId), zap.String("agent", ticket.AssignedTo))
		return Assignment{
			TicketId: ticketId,
			AgentId:  ticket.AssignedTo,
			SkillId:  ticket.SkillId,
			Previous: ticket.PreviousAssignee,
		}, nil
	}
	if ticket.Status == model.TICKET_RESOLVED || ticket.Status == model.TICKET_CLOSED {
		return nil, Permanent(fmt.Errorf("ticket %s: %w", ticketId, ErrTicketClosed))
	}
	agent, err := ta.agents.Next(ticket.SkillId, ticket.AssignedTo)
	if err != nil {
		return nil, Permanent(err)
	}
	assignment := Assignment{
		TicketId: ticketId,
		AgentId:  agent,
		SkillId:  ticket.SkillId,
		Previous: ticket.AssignedTo,
	}
	ticket.AssignedTo = agent
	ticket.PreviousAssignee = assignment.Previous
	ticket.AssignmentKey = call.IdempotencyKey
	ticket.Status = model.TICKET_IN_PROGRESS
	ticket.UpdatedAt = ta.now()
	if err := ta.store.Update(ctx, ticket); err != nil {
		return nil, err
	}
	logger.Info("ticket assigned", zap.String("ticketId", ticketId), zap.String("agent", agent), zap.String("previous", assignment.Previous))
	return assignment, nil
}

// ResolveTicket records the resolution and closes the ticket. Closing an
// already closed ticket returns it unchanged.
func (ta *TicketActivities) ResolveTicket(ctx context.Context, call Call) (any, error) {
	ticketId, err := stringArg(call, 0)
	if err != nil {
		return nil, err
	}
	var payload any
	if len(call.Args) > 1 {
		payload = call.Args[1]
	}
	unlock := ta.locks.Lock(ticketId)
	defer unlock()

	ticket, err := ta.getTicket(ctx, ticketId)
	if err != nil {
		return nil, err
	}
	if ticket.Status == model.TICKET_CLOSED {
		return ticket, nil
	}
	ticket.Resolution = resolutionText(payload)
	for _, status := range []model.TicketStatus{model.TICKET_RESOLVED, model.TICKET_CLOSED} {
		ticket.Status = status
		ticket.UpdatedAt = ta.now()
		if err := ta.store.Update(ctx, ticket); err != nil {
			return nil, err
		}
	}
	logger.Info("ticket closed", zap.String("ticketId", ticketId))
	return ticket, nil
}

func (ta *TicketActivities) getTicket(ctx context.Context, id string) (*model.Ticket, error) {
	ticket, err := ta.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, Permanent(err)
		}
		return nil, err
	}
	return ticket, nil
}

func resolutionText(payload any) string {
	switch p := payload.(type) {
	case string:
		return p
	case map[string]any:
		for _, key := range []string{"resolution", "text", "body"} {
			if s, ok := p[key].(string); ok {
				return s
			}
		}
	}
	return ""
}

func stringArg(call Call, i int) (string, error) {
	v, err := call.Arg(i)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", Permanent(fmt.Errorf("argument %d must be a non empty string, got %v", i, v))
	}
	return s, nil
}

func decodeArg[T any](call Call, i int) (*T, error) {
	v, err := call.Arg(i)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, Permanent(err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, Permanent(fmt.Errorf("argument %d: %w", i, err))
	}
	return &out, nil
}
