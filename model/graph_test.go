package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const activityNodeJson = `{
	"id": "n1",
	"type": "activity",
	"data": {
		"label": "AddInitialMessage",
		"activityName": "AddMessageToTicket",
		"argIn": ["message", "ticketId"],
		"argOut": ["initialMessage"],
		"input": {"message": "$.input", "ticketId": "$.ticket.id", "retries": 3},
		"output": {"result": "initialMessage"}
	},
	"position": {"x": 10, "y": 20}
}`

func TestNodeDecoding(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"json keeps binding order":   testNodeJsonOrder,
		"yaml keeps binding order":   testNodeYamlOrder,
		"numeric timer duration":     testNumericTimerDuration,
		"marshal round trip":         testNodeRoundTrip,
		"bindings reject non object": testBindingsRejectArray,
	} {
		t.Run(scenario, fn)
	}
}

func testNodeJsonOrder(t *testing.T) {
	var n Node
	require.NoError(t, json.Unmarshal([]byte(activityNodeJson), &n))
	require.Equal(t, "n1", n.Id)
	require.Equal(t, ACTIVITY_NODE, n.Kind)
	require.Equal(t, "AddMessageToTicket", n.ActivityName)
	require.Equal(t, []string{"$.input", "$.ticket.id", "3"}, n.InputBindings.Values())
	out, ok := n.OutputBindings.First()
	require.True(t, ok)
	require.Equal(t, "initialMessage", out.Value)
}

func testNodeYamlOrder(t *testing.T) {
	src := `
id: n2
type: activity
data:
  label: Classify
  activityName: ClassifyTicket
  input:
    zeta: $.ticket.id
    alpha: literal
  output:
    result: classification
`
	var n Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &n))
	require.Equal(t, "ClassifyTicket", n.ActivityName)
	require.Equal(t, Bindings{{Name: "zeta", Value: "$.ticket.id"}, {Name: "alpha", Value: "literal"}}, n.InputBindings)
}

func testNumericTimerDuration(t *testing.T) {
	var n Node
	require.NoError(t, json.Unmarshal([]byte(`{"id":"t","type":"timer","data":{"label":"Wait","timerDuration":3}}`), &n))
	require.Equal(t, "3", n.TimerDuration)
}

func testNodeRoundTrip(t *testing.T) {
	var n Node
	require.NoError(t, json.Unmarshal([]byte(activityNodeJson), &n))
	b, err := json.Marshal(n)
	require.NoError(t, err)
	var back Node
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, n, back)
}

func testBindingsRejectArray(t *testing.T) {
	var b Bindings
	require.Error(t, json.Unmarshal([]byte(`["a"]`), &b))
}

func TestInboundMessageNormalization(t *testing.T) {
	for name, src := range map[string]string{
		"canonical": `{"id":"m1","sender":"alice","channel":"email","text":"hello"}`,
		"body":      `{"id":"m1","from":"alice","channel":"email","body":"hello"}`,
		"content":   `{"id":"m1","sender":"alice","channel":"email","content":"hello"}`,
	} {
		t.Run(name, func(t *testing.T) {
			var m InboundMessage
			require.NoError(t, json.Unmarshal([]byte(src), &m))
			require.Equal(t, "alice", m.Sender)
			require.Equal(t, "hello", m.Text)
			require.Equal(t, "m1", m.ToMessage("t1").Id)
		})
	}
}

func TestInstanceAccepting(t *testing.T) {
	inst := &WorkflowInstance{Status: COMPLETED, Listeners: []string{"resolve"}}
	require.True(t, inst.Accepting())
	require.True(t, inst.HasListener("resolve"))
	require.False(t, inst.HasListener("reassign"))

	inst.ListenersClosed = true
	require.False(t, inst.Accepting())
	require.False(t, inst.HasListener("resolve"))

	require.False(t, (&WorkflowInstance{Status: FAILED}).Accepting())
	require.True(t, FAILED.IsTerminal())
	require.True(t, WAITING_TIMER.IsWaiting())
}
