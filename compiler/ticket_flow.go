package compiler

import "github.com/mohitkumar/ticketflow/model"

const DEFAULT_PLAN_NAME = "ticket-flow"

func activityNode(id, label, activityName string, output string, input ...model.Binding) model.Node {
	n := model.Node{
		Id:            id,
		Kind:          model.ACTIVITY_NODE,
		Label:         label,
		ActivityName:  activityName,
		InputBindings: input,
	}
	if output != "" {
		n.OutputBindings = model.Bindings{{Name: "result", Value: output}}
	}
	return n
}

func signalNode(id, label, signalName string) model.Node {
	return model.Node{Id: id, Kind: model.SIGNAL_NODE, Label: label, SignalName: signalName}
}

// DefaultTicketGraph is the graph of the ticket workflow: find or open the
// sender's ticket, record the message, listen for follow-ups, then classify
// and assign.
func DefaultTicketGraph() model.Graph {
	nodes := []model.Node{
		activityNode("get-ticket", "GetOrCreateTicket", model.GET_OR_CREATE_TICKET_ACTIVITY, "ticket",
			model.Binding{Name: "message", Value: "$.input"}),
		activityNode("add-message", "AddInitialMessage", model.ADD_MESSAGE_ACTIVITY, "initialMessage",
			model.Binding{Name: "message", Value: "$.input"},
			model.Binding{Name: "ticketId", Value: "$.ticket.id"}),
		signalNode("listen-messages", "MessageListener", model.NEW_MESSAGE_SIGNAL),
		signalNode("listen-resolve", "ResolveListener", model.RESOLVE_SIGNAL),
		signalNode("listen-reassign", "ReassignListener", model.REASSIGN_SIGNAL),
		activityNode("classify", "ClassifyTicket", model.CLASSIFY_TICKET_ACTIVITY, "classification",
			model.Binding{Name: "ticketId", Value: "$.ticket.id"}),
		activityNode("assign", "AssignTicket", model.ASSIGN_TICKET_ACTIVITY, "assignment",
			model.Binding{Name: "ticketId", Value: "$.ticket.id"}),
	}
	edges := make([]model.Edge, 0, len(nodes)-1)
	for i := 1; i < len(nodes); i++ {
		edges = append(edges, model.Edge{
			Id:     nodes[i-1].Id + "->" + nodes[i].Id,
			Source: nodes[i-1].Id,
			Target: nodes[i].Id,
		})
	}
	return model.Graph{Nodes: nodes, Edges: edges}
}
