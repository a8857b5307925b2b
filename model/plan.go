package model

type StepType string

const ACTIVITY_STEP StepType = "activity"
const TIMER_STEP StepType = "timer"
const SIGNAL_STEP StepType = "signal"
const DECISION_STEP StepType = "decision"

// Step is the compiled form of a node. Type selects which fields are meaningful:
// activity steps use ActivityName, Input and Output, timer steps use
// TimerDuration and signal steps use SignalName, Concurrent, Terminal and Actions.
type Step struct {
	Name          string   `json:"name"`
	Type          StepType `json:"type"`
	ActivityName  string   `json:"activityName,omitempty"`
	Input         []string `json:"input,omitempty"`
	OutputSchema  Bindings `json:"outputSchema,omitempty"`
	Output        string   `json:"output,omitempty"`
	SignalName    string   `json:"signalName,omitempty"`
	Concurrent    bool     `json:"concurrent,omitempty"`
	Terminal      bool     `json:"terminal,omitempty"`
	Actions       []Step   `json:"actions,omitempty"`
	TimerDuration string   `json:"timerDuration,omitempty"`
}

// PlanSummary is the stored state of one plan version. A deactivated version
// is never picked for new instances, instances already on it keep running.
type PlanSummary struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
	Active  bool   `json:"active"`
	Steps   int    `json:"steps"`
}

type ExecutionPlan struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
	Steps   []Step `json:"states"`
}

func (s Step) clone() Step {
	c := s
	c.Input = append([]string(nil), s.Input...)
	c.OutputSchema = append(Bindings(nil), s.OutputSchema...)
	if s.Actions != nil {
		c.Actions = make([]Step, len(s.Actions))
		for i, a := range s.Actions {
			c.Actions[i] = a.clone()
		}
	}
	return c
}

// WithVersion returns a deep copy of the plan stamped with version.
func (p *ExecutionPlan) WithVersion(version int) *ExecutionPlan {
	c := &ExecutionPlan{
		Name:    p.Name,
		Version: version,
		Steps:   make([]Step, len(p.Steps)),
	}
	for i, s := range p.Steps {
		c.Steps[i] = s.clone()
	}
	return c
}

// SignalStep returns the concurrent listener step registered for signalName.
func (p *ExecutionPlan) SignalStep(signalName string) (Step, bool) {
	for _, s := range p.Steps {
		if s.Type == SIGNAL_STEP && s.SignalName == signalName {
			return s, true
		}
	}
	return Step{}, false
}

// HandlesSignalFrom reports whether a signal step for signalName sits at or
// after cursor.
func (p *ExecutionPlan) HandlesSignalFrom(signalName string, cursor int) bool {
	for i := cursor; i < len(p.Steps); i++ {
		if p.Steps[i].Type == SIGNAL_STEP && p.Steps[i].SignalName == signalName {
			return true
		}
	}
	return false
}
