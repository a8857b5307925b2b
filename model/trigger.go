package model

import (
	"encoding/json"
	"time"
)

// InboundMessage is the trigger of a ticket workflow.
type InboundMessage struct {
	Id        string    `json:"id"`
	Sender    string    `json:"sender"`
	Channel   string    `json:"channel"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type inboundWire struct {
	Id        string     `json:"id"`
	Sender    string     `json:"sender"`
	From      string     `json:"from"`
	Channel   string     `json:"channel"`
	Text      string     `json:"text"`
	Body      string     `json:"body"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp"`
}

// UnmarshalJSON folds the alternate wire shapes used by the channel adapters
// (from/sender, text/body/content) into the canonical fields.
func (m *InboundMessage) UnmarshalJSON(data []byte) error {
	var w inboundWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = InboundMessage{
		Id:      w.Id,
		Sender:  firstNonEmpty(w.Sender, w.From),
		Channel: w.Channel,
		Text:    firstNonEmpty(w.Text, w.Body, w.Content),
	}
	if w.Timestamp != nil {
		m.Timestamp = *w.Timestamp
	}
	return nil
}

func (m InboundMessage) ToMessage(ticketId string) Message {
	return Message{
		Id:        m.Id,
		TicketId:  ticketId,
		Sender:    m.Sender,
		Channel:   m.Channel,
		Text:      m.Text,
		Timestamp: m.Timestamp,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
