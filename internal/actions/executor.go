package actions

import (
	"context"
	"fmt"
	"strings"
)

// Result describes one executed action. It is appended to an execution
// record and never mutated afterwards.
type Result struct {
	Kind            Kind           `json:"action"`
	Success         bool           `json:"success"`
	Output          map[string]any `json:"result,omitempty"`
	Error           string         `json:"error,omitempty"`
	ExecutionTimeMs int64          `json:"executionTimeMs"`
}

// Executor performs one side effect against an external collaborator.
//
// Contract: an executor never panics past its own boundary and never returns
// through any channel other than the Result; all failure paths become
// {Success:false, Error}. Delivery is at-least-once upstream, so executors
// should be idempotent where the collaborator allows it; a timed-out call may
// still complete its side effect.
type Executor interface {
	Kind() Kind
	Execute(ctx context.Context, spec Spec, execCtx map[string]any) Result
}

// Registry dispatches specs to executors by kind.
type Registry struct {
	executors map[Kind]Executor
}

func NewRegistry(executors ...Executor) *Registry {
	r := &Registry{executors: map[Kind]Executor{}}
	for _, ex := range executors {
		r.executors[ex.Kind()] = ex
	}
	return r
}

func (r *Registry) Register(ex Executor) {
	r.executors[ex.Kind()] = ex
}

// Execute runs one spec. An unknown kind and an executor panic both become a
// failed Result; the pipeline must never crash on a single bad action.
func (r *Registry) Execute(ctx context.Context, spec Spec, execCtx map[string]any) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Failure(spec.Kind, fmt.Sprintf("action panicked: %v", p))
		}
	}()

	ex, ok := r.executors[spec.Kind]
	if !ok {
		return Failure(spec.Kind, fmt.Sprintf("unknown action kind %q", spec.Kind))
	}
	return ex.Execute(ctx, spec, execCtx)
}

// Success builds a successful Result.
func Success(kind Kind, output map[string]any) Result {
	return Result{Kind: kind, Success: true, Output: output}
}

// Failure builds a failed Result with a human-readable error.
func Failure(kind Kind, msg string) Result {
	return Result{Kind: kind, Success: false, Error: msg}
}

// MergeContext builds the execution context for one action: the event
// payload overlaid with the spec's literal params (params win on collision).
func MergeContext(payload, params map[string]any) map[string]any {
	out := make(map[string]any, len(payload)+len(params))
	for k, v := range payload {
		out[k] = v
	}
	for k, v := range params {
		out[k] = v
	}
	return out
}

// Interpolate replaces {{path}} placeholders with execution-context values.
// Unknown paths render as empty strings.
func Interpolate(s string, execCtx map[string]any) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	var b strings.Builder
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			b.WriteString(s)
			return b.String()
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:start])
		path := strings.TrimSpace(s[start+2 : start+end])
		if v, ok := contextValue(execCtx, path); ok {
			b.WriteString(fmt.Sprintf("%v", v))
		}
		s = s[start+end+2:]
	}
}

// contextValue walks a dot-separated path into the execution context.
func contextValue(execCtx map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var current any = execCtx
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

// ContextString fetches a string-valued context entry, for id fallbacks.
func ContextString(execCtx map[string]any, key string) string {
	if v, ok := contextValue(execCtx, key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
