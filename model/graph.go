package model

import (
	"encoding/json"
	"strconv"

	"gopkg.in/yaml.v3"
)

type NodeKind string

const ACTIVITY_NODE NodeKind = "activity"
const TIMER_NODE NodeKind = "timer"
const SIGNAL_NODE NodeKind = "signal"
const DECISION_NODE NodeKind = "decision"

// Graph is the authored form of a workflow, as exported by the graph editor.
type Graph struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`
}

type Edge struct {
	Id     string `json:"id" yaml:"id"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

type Node struct {
	Id             string
	Kind           NodeKind
	Label          string
	ActivityName   string
	SignalName     string
	TimerDuration  string
	InputBindings  Bindings
	OutputBindings Bindings
}

type nodeData struct {
	Label         string   `json:"label" yaml:"label"`
	ActivityName  string   `json:"activityName,omitempty" yaml:"activityName,omitempty"`
	TimerDuration any      `json:"timerDuration,omitempty" yaml:"timerDuration,omitempty"`
	SignalName    string   `json:"signalName,omitempty" yaml:"signalName,omitempty"`
	ArgIn         []string `json:"argIn,omitempty" yaml:"argIn,omitempty"`
	ArgOut        []string `json:"argOut,omitempty" yaml:"argOut,omitempty"`
	Input         Bindings `json:"input,omitempty" yaml:"input,omitempty"`
	Output        Bindings `json:"output,omitempty" yaml:"output,omitempty"`
}

type nodeWire struct {
	Id       string         `json:"id" yaml:"id"`
	Type     string         `json:"type" yaml:"type"`
	Data     nodeData       `json:"data" yaml:"data"`
	Position map[string]any `json:"position,omitempty" yaml:"position,omitempty"`
}

func (n *Node) fromWire(w nodeWire) {
	*n = Node{
		Id:             w.Id,
		Kind:           NodeKind(w.Type),
		Label:          w.Data.Label,
		ActivityName:   w.Data.ActivityName,
		SignalName:     w.Data.SignalName,
		TimerDuration:  scalarText(w.Data.TimerDuration),
		InputBindings:  w.Data.Input,
		OutputBindings: w.Data.Output,
	}
}

func (n Node) toWire() nodeWire {
	var timer any
	if n.TimerDuration != "" {
		timer = n.TimerDuration
	}
	return nodeWire{
		Id:   n.Id,
		Type: string(n.Kind),
		Data: nodeData{
			Label:         n.Label,
			ActivityName:  n.ActivityName,
			TimerDuration: timer,
			SignalName:    n.SignalName,
			Input:         n.InputBindings,
			Output:        n.OutputBindings,
		},
	}
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var w nodeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	n.fromWire(w)
	return nil
}

func (n Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.toWire())
}

func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	var w nodeWire
	if err := value.Decode(&w); err != nil {
		return err
	}
	n.fromWire(w)
	return nil
}

func scalarText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
