package compiler

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/mohitkumar/ticketflow/binding"
	"github.com/mohitkumar/ticketflow/model"
)

const DEFAULT_TIMER_DURATION = 30 * time.Second
const DEFAULT_LISTENER_NAME = "MessageListener"
const TIMER_DURATION_BINDING = "timerDuration"

type Compiler struct {
	signals      *SignalRegistry
	activities   map[string]bool
	defaultTimer time.Duration
}

type Option func(*Compiler)

func WithSignalRegistry(r *SignalRegistry) Option {
	return func(c *Compiler) {
		c.signals = r
	}
}

// WithKnownActivities makes compilation fail on activity names outside names.
func WithKnownActivities(names ...string) Option {
	return func(c *Compiler) {
		c.activities = make(map[string]bool, len(names))
		for _, n := range names {
			c.activities[n] = true
		}
	}
}

func WithDefaultTimer(d time.Duration) Option {
	return func(c *Compiler) {
		if d > 0 {
			c.defaultTimer = d
		}
	}
}

func New(opts ...Option) *Compiler {
	c := &Compiler{
		signals:      DefaultSignalRegistry(),
		defaultTimer: DEFAULT_TIMER_DURATION,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile compiles g with the default ticket workflow configuration.
func Compile(name string, g model.Graph) (*model.ExecutionPlan, error) {
	return New().Compile(name, g)
}

// Compile validates g and turns its single path into an ordered plan. It
// never returns a partial plan. The returned plan has version 0, versions are
// assigned when the plan is registered.
func (c *Compiler) Compile(name string, g model.Graph) (*model.ExecutionPlan, error) {
	path, err := walk(g)
	if err != nil {
		return nil, err
	}

	scope := []string{binding.INPUT_VAR}
	signals := map[string]bool{}
	steps := make([]model.Step, 0, len(path))
	for _, node := range path {
		var step model.Step
		switch node.Kind {
		case model.ACTIVITY_NODE:
			step, err = c.activityStep(node, scope)
			if err == nil && step.Output != "" {
				scope = append(scope, step.Output)
			}
		case model.TIMER_NODE:
			step, err = c.timerStep(node)
		case model.SIGNAL_NODE:
			step, err = c.signalStep(node, scope)
			if err == nil {
				if signals[step.SignalName] {
					err = compileError(INVALID_GRAPH, node.Id, "signal %s already has a listener", step.SignalName)
				}
				signals[step.SignalName] = true
			}
		default:
			err = compileError(UNSUPPORTED_NODE_KIND, node.Id, "node kind %q is not supported", node.Kind)
		}
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return &model.ExecutionPlan{Name: name, Steps: steps}, nil
}

func walk(g model.Graph) ([]model.Node, error) {
	nodes := make(map[string]model.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.Id == "" {
			return nil, compileError(INVALID_GRAPH, "", "node without id")
		}
		if _, ok := nodes[n.Id]; ok {
			return nil, compileError(INVALID_GRAPH, n.Id, "duplicate node id")
		}
		nodes[n.Id] = n
	}
	if len(nodes) == 0 {
		return nil, compileError(NO_START_NODE, "", "graph has no nodes")
	}

	incoming := make(map[string]int, len(nodes))
	outgoing := make(map[string][]string, len(nodes))
	for _, e := range g.Edges {
		if _, ok := nodes[e.Source]; !ok {
			return nil, compileError(INVALID_GRAPH, e.Source, "edge %s references unknown source", e.Id)
		}
		if _, ok := nodes[e.Target]; !ok {
			return nil, compileError(INVALID_GRAPH, e.Target, "edge %s references unknown target", e.Id)
		}
		incoming[e.Target]++
		outgoing[e.Source] = append(outgoing[e.Source], e.Target)
	}

	var starts []string
	for _, n := range g.Nodes {
		if incoming[n.Id] == 0 {
			starts = append(starts, n.Id)
		}
	}
	if len(starts) != 1 {
		return nil, compileError(NO_START_NODE, "", "expected exactly one node without incoming edges, found %d [%s]", len(starts), strings.Join(starts, ", "))
	}

	visited := make(map[string]bool, len(nodes))
	path := make([]model.Node, 0, len(nodes))
	current := starts[0]
	for {
		if visited[current] {
			return nil, compileError(CYCLE_DETECTED, current, "node visited twice")
		}
		visited[current] = true
		path = append(path, nodes[current])
		next := outgoing[current]
		if len(next) == 0 {
			break
		}
		if len(next) > 1 {
			return nil, compileError(UNSUPPORTED_TOPOLOGY, current, "node has %d outgoing edges, branching is not supported", len(next))
		}
		current = next[0]
	}
	if len(path) != len(nodes) {
		return nil, compileError(DISCONNECTED_GRAPH, "", "path from %s reaches %d of %d nodes", starts[0], len(path), len(nodes))
	}
	return path, nil
}

func (c *Compiler) checkActivity(nodeId string, activityName string) error {
	if activityName == "" {
		return compileError(INVALID_GRAPH, nodeId, "activity name is empty")
	}
	if c.activities != nil && !c.activities[activityName] {
		return compileError(UNKNOWN_ACTIVITY, nodeId, "activity %s is not registered", activityName)
	}
	return nil
}

func checkInput(nodeId string, input []string, scope []string) error {
	for _, raw := range input {
		if _, err := binding.Check(raw, scope); err != nil {
			if errors.Is(err, binding.ErrUnboundVariable) {
				return compileError(UNBOUND_VARIABLE, nodeId, "%s references a variable that is not produced by an earlier step", raw)
			}
			return compileError(INVALID_GRAPH, nodeId, "%v", err)
		}
	}
	return nil
}

func checkOutput(nodeId string, output string, scope []string) error {
	if output == "" {
		return nil
	}
	if output == binding.INPUT_VAR || output == binding.SIGNAL_PAYLOAD_VAR || strings.ContainsAny(output, ".[]$") {
		return compileError(INVALID_GRAPH, nodeId, "%q is not a valid variable name", output)
	}
	for _, v := range scope {
		if v == output {
			return compileError(DUPLICATE_VARIABLE, nodeId, "variable %s is already bound", output)
		}
	}
	return nil
}

func stepName(node model.Node, fallback string) string {
	if node.Label != "" {
		return node.Label
	}
	if fallback != "" {
		return fallback
	}
	return node.Id
}

func (c *Compiler) activityStep(node model.Node, scope []string) (model.Step, error) {
	activityName := node.ActivityName
	if activityName == "" {
		activityName = node.Label
	}
	if err := c.checkActivity(node.Id, activityName); err != nil {
		return model.Step{}, err
	}
	input := node.InputBindings.Values()
	if err := checkInput(node.Id, input, scope); err != nil {
		return model.Step{}, err
	}
	var output string
	if first, ok := node.OutputBindings.First(); ok {
		output = first.Value
	}
	if err := checkOutput(node.Id, output, scope); err != nil {
		return model.Step{}, err
	}
	return model.Step{
		Name:         stepName(node, ""),
		Type:         model.ACTIVITY_STEP,
		ActivityName: activityName,
		Input:        input,
		OutputSchema: node.OutputBindings,
		Output:       output,
	}, nil
}

func (c *Compiler) timerStep(node model.Node) (model.Step, error) {
	raw, ok := node.InputBindings.Get(TIMER_DURATION_BINDING)
	if !ok || raw == "" {
		raw = node.TimerDuration
	}
	d := c.defaultTimer
	if raw != "" {
		var err error
		d, err = ParseDuration(raw)
		if err != nil {
			return model.Step{}, compileError(INVALID_GRAPH, node.Id, "invalid timer duration %q", raw)
		}
	}
	return model.Step{
		Name:          stepName(node, "Timer"),
		Type:          model.TIMER_STEP,
		TimerDuration: d.String(),
	}, nil
}

func (c *Compiler) signalStep(node model.Node, scope []string) (model.Step, error) {
	signalName := node.SignalName
	if signalName == "" {
		signalName = node.Label
	}
	if signalName == "" {
		return model.Step{}, compileError(INVALID_GRAPH, node.Id, "signal node without signal name")
	}

	var handler SignalHandler
	if h, ok := c.signals.Get(signalName); ok {
		handler = h
	} else if node.ActivityName != "" {
		input := append([]string{"$." + binding.SIGNAL_PAYLOAD_VAR}, node.InputBindings.Values()...)
		handler = SignalHandler{Actions: []model.Step{activityAction(node.ActivityName, input...)}}
	} else {
		return model.Step{}, compileError(UNKNOWN_SIGNAL, node.Id, "no handler registered for signal %s", signalName)
	}

	actionScope := append(append([]string{}, scope...), binding.SIGNAL_PAYLOAD_VAR)
	actions := make([]model.Step, 0, len(handler.Actions))
	for _, action := range handler.Actions {
		if err := c.checkActivity(node.Id, action.ActivityName); err != nil {
			return model.Step{}, err
		}
		if err := checkInput(node.Id, action.Input, actionScope); err != nil {
			return model.Step{}, err
		}
		if err := checkOutput(node.Id, action.Output, actionScope); err != nil {
			return model.Step{}, err
		}
		if action.Output != "" {
			actionScope = append(actionScope, action.Output)
		}
		a := action
		a.Input = append([]string(nil), action.Input...)
		actions = append(actions, a)
	}
	return model.Step{
		Name:       stepName(node, DEFAULT_LISTENER_NAME),
		Type:       model.SIGNAL_STEP,
		SignalName: signalName,
		Concurrent: true,
		Terminal:   handler.Terminal,
		Actions:    actions,
	}, nil
}

// ParseDuration accepts Go duration text ("3s", "1m30s") or whole seconds ("3").
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, errors.New("negative duration")
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.New("negative duration")
	}
	return d, nil
}
