package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxConditionDepth bounds condition-tree recursion. Malformed or adversarial
// user input must not be able to exhaust the stack.
const MaxConditionDepth = 10

// ErrDepthExceeded is reported when a tree nests deeper than MaxConditionDepth.
var ErrDepthExceeded = errors.New("rules: condition depth exceeds maximum")

// Trace records how a tree was evaluated, for the execution audit trail.
// An evaluation error fails closed: met=false with Error set.
type Trace struct {
	Steps []TraceStep `json:"steps,omitempty"`
	Error string      `json:"error,omitempty"`
}

// TraceStep is one leaf comparison.
type TraceStep struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Expected any      `json:"expected,omitempty"`
	Actual   any      `json:"actual,omitempty"`
	Missing  bool     `json:"missing,omitempty"`
	Result   bool     `json:"result"`
}

// Evaluate decides whether a condition tree matches an event payload.
// A nil tree always matches. Conditions are side-effect-free, so groups fully
// evaluate their children; the trace then covers every leaf.
func Evaluate(tree *ConditionNode, payload map[string]any) (bool, Trace) {
	var trace Trace
	if tree == nil {
		return true, trace
	}
	met, err := evalNode(tree, payload, 1, &trace)
	if err != nil {
		trace.Error = err.Error()
		return false, trace
	}
	return met, trace
}

func evalNode(node *ConditionNode, payload map[string]any, depth int, trace *Trace) (bool, error) {
	if node == nil {
		return false, errors.New("rules: nil condition node")
	}
	if depth > MaxConditionDepth {
		return false, ErrDepthExceeded
	}

	switch node.Kind {
	case NodeGroup:
		if len(node.Children) == 0 {
			return false, errors.New("rules: group has no children")
		}
		switch node.Op {
		case GroupAnd:
			all := true
			for _, child := range node.Children {
				ok, err := evalNode(child, payload, depth+1, trace)
				if err != nil {
					return false, err
				}
				all = all && ok
			}
			return all, nil
		case GroupOr:
			any := false
			for _, child := range node.Children {
				ok, err := evalNode(child, payload, depth+1, trace)
				if err != nil {
					return false, err
				}
				any = any || ok
			}
			return any, nil
		default:
			return false, fmt.Errorf("rules: unknown group op %q", node.Op)
		}
	case NodeCondition:
		actual, found := LookupPath(payload, node.Field)
		result, err := compare(node.Operator, actual, found, node.Value)
		if err != nil {
			return false, err
		}
		trace.Steps = append(trace.Steps, TraceStep{
			Field:    node.Field,
			Operator: node.Operator,
			Expected: node.Value,
			Actual:   actual,
			Missing:  !found,
			Result:   result,
		})
		return result, nil
	default:
		return false, fmt.Errorf("rules: unknown node kind %q", node.Kind)
	}
}

// LookupPath walks a dot-separated path against a payload. Missing keys or
// non-object intermediates yield (nil, false).
func LookupPath(payload map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var current any = payload
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// compare applies one operator. A missing or null actual value fails every
// operator except is_null (true) and is_not_null (false); a null expected
// value fails the six comparison operators outright.
func compare(op Operator, actual any, found bool, expected any) (bool, error) {
	present := found && actual != nil

	switch op {
	case OpIsNull:
		return !present, nil
	case OpIsNotNull:
		return present, nil
	}

	if !present {
		return false, nil
	}

	switch op {
	case OpEq:
		if expected == nil {
			return false, nil
		}
		return looseEqual(actual, expected), nil
	case OpNeq:
		if expected == nil {
			return false, nil
		}
		return !looseEqual(actual, expected), nil
	case OpGt, OpLt, OpGte, OpLte:
		if expected == nil {
			return false, nil
		}
		cmp := looseCompare(actual, expected)
		switch op {
		case OpGt:
			return cmp > 0, nil
		case OpLt:
			return cmp < 0, nil
		case OpGte:
			return cmp >= 0, nil
		default:
			return cmp <= 0, nil
		}
	case OpContains:
		return containsFold(actual, expected), nil
	case OpNotContains:
		return !containsFold(actual, expected), nil
	case OpIn:
		arr, ok := expected.([]any)
		if !ok {
			// No match is possible against a non-array operand.
			return false, nil
		}
		for _, el := range arr {
			if looseEqual(actual, el) {
				return true, nil
			}
		}
		return false, nil
	case OpNotIn:
		arr, ok := expected.([]any)
		if !ok {
			return true, nil
		}
		for _, el := range arr {
			if looseEqual(actual, el) {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("rules: unknown operator %q", op)
	}
}

// looseEqual compares numerically when both operands parse as finite numbers,
// otherwise as case-sensitive strings.
func looseEqual(a, b any) bool {
	if an, aok := toNumber(a); aok {
		if bn, bok := toNumber(b); bok {
			return an == bn
		}
	}
	return stringify(a) == stringify(b)
}

func looseCompare(a, b any) int {
	if an, aok := toNumber(a); aok {
		if bn, bok := toNumber(b); bok {
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(stringify(a), stringify(b))
}

// containsFold is a case-insensitive substring check over the string forms.
func containsFold(haystack, needle any) bool {
	return strings.Contains(strings.ToLower(stringify(haystack)), strings.ToLower(stringify(needle)))
}

func toNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(s)
	case json.Number:
		return s.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
