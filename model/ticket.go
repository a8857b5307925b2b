package model

import "time"

type TicketStatus string

const TICKET_OPEN TicketStatus = "open"
const TICKET_IN_PROGRESS TicketStatus = "in_progress"
const TICKET_RESOLVED TicketStatus = "resolved"
const TICKET_CLOSED TicketStatus = "closed"

type Ticket struct {
	Id               string       `json:"id"`
	Status           TicketStatus `json:"status"`
	CustomerId       string       `json:"customerId"`
	Channel          string       `json:"channel"`
	Messages         []Message    `json:"messages"`
	AssignedTo       string       `json:"assignedTo,omitempty"`
	PreviousTicketId string       `json:"previousTicketId,omitempty"`
	VerticalId       int64        `json:"verticalId,omitempty"`
	SkillId          int64        `json:"skillId,omitempty"`
	Resolution       string       `json:"resolution,omitempty"`
	IdempotencyKey   string       `json:"idempotencyKey,omitempty"`
	AssignmentKey    string       `json:"assignmentKey,omitempty"`
	PreviousAssignee string       `json:"previousAssignee,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

func (t *Ticket) HasMessage(id string) bool {
	for _, m := range t.Messages {
		if m.Id == id {
			return true
		}
	}
	return false
}

type Message struct {
	Id        string    `json:"id"`
	TicketId  string    `json:"ticketId,omitempty"`
	Sender    string    `json:"sender"`
	Channel   string    `json:"channel"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Signals understood by the ticket workflow.
const NEW_MESSAGE_SIGNAL = "NewMessage"
const RESOLVE_SIGNAL = "resolve"
const REASSIGN_SIGNAL = "reassign"

// Activities backing the ticket workflow.
const GET_OR_CREATE_TICKET_ACTIVITY = "GetOrCreateTicket"
const ADD_MESSAGE_ACTIVITY = "AddMessageToTicket"
const CLASSIFY_TICKET_ACTIVITY = "ClassifyTicket"
const ASSIGN_TICKET_ACTIVITY = "AssignTicket"
const RESOLVE_TICKET_ACTIVITY = "ResolveTicket"
