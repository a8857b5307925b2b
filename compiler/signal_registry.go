package compiler

import (
	"sync"

	"github.com/mohitkumar/ticketflow/model"
)

// SignalHandler is the template of actions run for every delivery of a signal.
// A terminal handler closes all listeners of the instance once it has run.
type SignalHandler struct {
	Actions  []model.Step
	Terminal bool
}

type SignalRegistry struct {
	mu       sync.RWMutex
	handlers map[string]SignalHandler
}

func NewSignalRegistry() *SignalRegistry {
	return &SignalRegistry{handlers: make(map[string]SignalHandler)}
}

func (r *SignalRegistry) Register(signalName string, handler SignalHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[signalName] = handler
}

func (r *SignalRegistry) Get(signalName string) (SignalHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[signalName]
	return h, ok
}

func activityAction(activityName string, input ...string) model.Step {
	return model.Step{
		Name:         activityName,
		Type:         model.ACTIVITY_STEP,
		ActivityName: activityName,
		Input:        input,
	}
}

// DefaultSignalRegistry holds the handlers of the ticket workflow.
func DefaultSignalRegistry() *SignalRegistry {
	r := NewSignalRegistry()
	r.Register(model.NEW_MESSAGE_SIGNAL, SignalHandler{
		Actions: []model.Step{activityAction(model.ADD_MESSAGE_ACTIVITY, "$.signalPayload", "$.ticket.id")},
	})
	r.Register(model.RESOLVE_SIGNAL, SignalHandler{
		Actions:  []model.Step{activityAction(model.RESOLVE_TICKET_ACTIVITY, "$.ticket.id", "$.signalPayload")},
		Terminal: true,
	})
	r.Register(model.REASSIGN_SIGNAL, SignalHandler{
		Actions: []model.Step{activityAction(model.ASSIGN_TICKET_ACTIVITY, "$.ticket.id")},
	})
	return r
}
