package memory

import (
	"testing"

	"github.com/mohitkumar/ticketflow/persistence"
	"github.com/mohitkumar/ticketflow/persistence/storetest"
)

func TestInstanceStore(t *testing.T) {
	storetest.InstanceStore(t, func(t *testing.T) persistence.InstanceStore {
		return NewInstanceStore()
	})
}

func TestTicketStore(t *testing.T) {
	storetest.TicketStore(t, func(t *testing.T) persistence.TicketStore {
		return NewTicketStore()
	})
}

func TestPlanStore(t *testing.T) {
	storetest.PlanStore(t, func(t *testing.T) persistence.PlanStore {
		return NewPlanStore()
	})
}

func TestTimerQueue(t *testing.T) {
	storetest.TimerQueue(t, func(t *testing.T) persistence.TimerQueue {
		return NewTimerQueue()
	})
}
