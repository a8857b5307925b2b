package timer

import (
	"time"

	"github.com/RussellLuo/timingwheel"
)

// Manager fires in-process callbacks close to a deadline. It is lost on
// restart, the durable queue is what makes timers survive one.
type Manager struct {
	tick  time.Duration
	wheel *timingwheel.TimingWheel
}

func NewManager(tick time.Duration, wheelSize int64) *Manager {
	return &Manager{
		tick:  tick,
		wheel: timingwheel.NewTimingWheel(tick, wheelSize),
	}
}

// AddTask runs task once delay has passed. The wheel may fire up to one tick
// early, so a tick is added.
func (m *Manager) AddTask(task func(), delay time.Duration) *timingwheel.Timer {
	if delay < 0 {
		delay = 0
	}
	return m.wheel.AfterFunc(delay+m.tick, task)
}

func (m *Manager) Start() {
	m.wheel.Start()
}

func (m *Manager) Stop() {
	m.wheel.Stop()
}
