package binding

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/oliveagle/jsonpath"
	"golang.org/x/exp/slices"
)

const INPUT_VAR = "input"
const SIGNAL_PAYLOAD_VAR = "signalPayload"

var (
	ErrInvalidExpression = errors.New("invalid binding expression")
	ErrUnboundVariable   = errors.New("unbound variable")
	ErrFieldNotFound     = errors.New("field not found")
)

// Expression is a parsed binding: either a literal or a path rooted at a
// variable, e.g. $.input.text or $.ticket.id.
type Expression struct {
	Raw     string
	Literal bool
	Root    string
}

func Parse(raw string) (Expression, error) {
	if !strings.HasPrefix(raw, "$.") {
		return Expression{Raw: raw, Literal: true}, nil
	}
	rest := raw[2:]
	end := strings.IndexAny(rest, ".[")
	root := rest
	if end >= 0 {
		root = rest[:end]
	}
	if root == "" {
		return Expression{}, fmt.Errorf("%w: %q", ErrInvalidExpression, raw)
	}
	if end >= 0 && end == len(rest)-1 {
		return Expression{}, fmt.Errorf("%w: %q", ErrInvalidExpression, raw)
	}
	return Expression{Raw: raw, Root: root}, nil
}

// Check verifies that expression only references variables in scope.
func Check(raw string, scope []string) (Expression, error) {
	expr, err := Parse(raw)
	if err != nil {
		return expr, err
	}
	if !expr.Literal && !slices.Contains(scope, expr.Root) {
		return expr, fmt.Errorf("%w: %s", ErrUnboundVariable, expr.Root)
	}
	return expr, nil
}

func (e Expression) Evaluate(vars map[string]any) (any, error) {
	if e.Literal {
		return e.Raw, nil
	}
	root, ok := vars[e.Root]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnboundVariable, e.Root)
	}
	if e.Raw == "$."+e.Root {
		return root, nil
	}
	value, err := jsonpath.JsonPathLookup(vars, e.Raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFieldNotFound, e.Raw, err)
	}
	return value, nil
}

// EvaluateAll resolves raw expressions in order against vars.
func EvaluateAll(raws []string, vars map[string]any) ([]any, error) {
	args := make([]any, 0, len(raws))
	for _, raw := range raws {
		expr, err := Parse(raw)
		if err != nil {
			return nil, err
		}
		v, err := expr.Evaluate(vars)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

// Normalize converts v to its plain JSON form (maps, slices, strings, float64)
// so that path lookups behave the same for fresh and persisted variables.
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
