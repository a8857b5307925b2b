package compiler

import (
	"errors"
	"fmt"
)

type ErrorCode string

const NO_START_NODE ErrorCode = "NoStartNode"
const CYCLE_DETECTED ErrorCode = "CycleDetected"
const DISCONNECTED_GRAPH ErrorCode = "DisconnectedGraph"
const UNBOUND_VARIABLE ErrorCode = "UnboundVariable"
const UNSUPPORTED_NODE_KIND ErrorCode = "UnsupportedNodeKind"
const UNSUPPORTED_TOPOLOGY ErrorCode = "UnsupportedTopology"
const DUPLICATE_VARIABLE ErrorCode = "DuplicateVariable"
const UNKNOWN_ACTIVITY ErrorCode = "UnknownActivity"
const UNKNOWN_SIGNAL ErrorCode = "UnknownSignal"
const INVALID_GRAPH ErrorCode = "InvalidGraph"

var (
	ErrNoStartNode         = errors.New("no unique start node")
	ErrCycleDetected       = errors.New("cycle detected")
	ErrDisconnectedGraph   = errors.New("graph is disconnected")
	ErrUnboundVariable     = errors.New("unbound variable")
	ErrUnsupportedNodeKind = errors.New("unsupported node kind")
	ErrUnsupportedTopology = errors.New("unsupported topology")
	ErrDuplicateVariable   = errors.New("duplicate variable")
	ErrUnknownActivity     = errors.New("unknown activity")
	ErrUnknownSignal       = errors.New("unknown signal")
	ErrInvalidGraph        = errors.New("invalid graph")
)

var sentinels = map[ErrorCode]error{
	NO_START_NODE:         ErrNoStartNode,
	CYCLE_DETECTED:        ErrCycleDetected,
	DISCONNECTED_GRAPH:    ErrDisconnectedGraph,
	UNBOUND_VARIABLE:      ErrUnboundVariable,
	UNSUPPORTED_NODE_KIND: ErrUnsupportedNodeKind,
	UNSUPPORTED_TOPOLOGY:  ErrUnsupportedTopology,
	DUPLICATE_VARIABLE:    ErrDuplicateVariable,
	UNKNOWN_ACTIVITY:      ErrUnknownActivity,
	UNKNOWN_SIGNAL:        ErrUnknownSignal,
	INVALID_GRAPH:         ErrInvalidGraph,
}

type CompileError struct {
	Code    ErrorCode
	NodeId  string
	Message string
}

func (e *CompileError) Error() string {
	if e.NodeId == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: node %s: %s", e.Code, e.NodeId, e.Message)
}

func (e *CompileError) Unwrap() error {
	return sentinels[e.Code]
}

func compileError(code ErrorCode, nodeId string, format string, args ...any) *CompileError {
	return &CompileError{Code: code, NodeId: nodeId, Message: fmt.Sprintf(format, args...)}
}
