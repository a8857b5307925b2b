package model

import (
	"time"

	"golang.org/x/exp/slices"
)

type InstanceStatus string

const PENDING InstanceStatus = "Pending"
const RUNNING InstanceStatus = "Running"
const WAITING_SIGNAL InstanceStatus = "WaitingSignal"
const WAITING_TIMER InstanceStatus = "WaitingTimer"
const COMPLETED InstanceStatus = "Completed"
const FAILED InstanceStatus = "Failed"

func (s InstanceStatus) IsTerminal() bool {
	return s == COMPLETED || s == FAILED
}

func (s InstanceStatus) IsWaiting() bool {
	return s == WAITING_SIGNAL || s == WAITING_TIMER
}

type PendingWait struct {
	SignalName    string     `json:"signalName,omitempty"`
	TimerDeadline *time.Time `json:"timerDeadline,omitempty"`
}

// PendingSignal is a signal that arrived before the step handling it was
// reached. It is consumed when the step opens.
type PendingSignal struct {
	Name       string    `json:"name"`
	Payload    any       `json:"payload,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Failure describes why an instance ended up FAILED.
type Failure struct {
	Step     int    `json:"step"`
	StepName string `json:"stepName"`
	Activity string `json:"activity,omitempty"`
	Cause    string `json:"cause"`
	Attempts int    `json:"attempts,omitempty"`
}

type WorkflowInstance struct {
	Id                string          `json:"id"`
	BusinessKey       string          `json:"businessKey"`
	Generation        int             `json:"generation"`
	PlanName          string          `json:"planName"`
	PlanVersion       int             `json:"planVersion"`
	Status            InstanceStatus  `json:"status"`
	Cursor            int             `json:"cursor"`
	Variables         map[string]any  `json:"variables"`
	PendingWait       *PendingWait    `json:"pendingWait,omitempty"`
	PendingSignals    []PendingSignal `json:"pendingSignals,omitempty"`
	Listeners         []string        `json:"listeners,omitempty"`
	ListenersClosed   bool            `json:"listenersClosed,omitempty"`
	LastCompletedStep string          `json:"lastCompletedStep,omitempty"`
	Failure           *Failure        `json:"failure,omitempty"`
	WaitingSince      *time.Time      `json:"waitingSince,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Accepting reports whether the instance still absorbs messages and signals
// for its business key.
func (w *WorkflowInstance) Accepting() bool {
	return w.Status != FAILED && !w.ListenersClosed
}

// TakePendingSignals removes and returns the buffered signals named name, in
// arrival order.
func (w *WorkflowInstance) TakePendingSignals(name string) []PendingSignal {
	var taken, kept []PendingSignal
	for _, p := range w.PendingSignals {
		if p.Name == name {
			taken = append(taken, p)
		} else {
			kept = append(kept, p)
		}
	}
	w.PendingSignals = kept
	return taken
}

// TakePendingSignal removes and returns the oldest buffered signal named name.
func (w *WorkflowInstance) TakePendingSignal(name string) (PendingSignal, bool) {
	for i, p := range w.PendingSignals {
		if p.Name == name {
			w.PendingSignals = append(w.PendingSignals[:i:i], w.PendingSignals[i+1:]...)
			return p, true
		}
	}
	return PendingSignal{}, false
}

func (w *WorkflowInstance) HasListener(signalName string) bool {
	return !w.ListenersClosed && slices.Contains(w.Listeners, signalName)
}
