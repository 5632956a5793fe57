package actions

import (
	"context"
	"testing"
	"time"
)

type stubExecutor struct {
	kind Kind
	fn   func(ctx context.Context, spec Spec, execCtx map[string]any) Result
}

func (s stubExecutor) Kind() Kind { return s.kind }
func (s stubExecutor) Execute(ctx context.Context, spec Spec, execCtx map[string]any) Result {
	return s.fn(ctx, spec, execCtx)
}

func okExecutor(kind Kind) Executor {
	return stubExecutor{kind: kind, fn: func(ctx context.Context, spec Spec, execCtx map[string]any) Result {
		return Success(kind, nil)
	}}
}

func failExecutor(kind Kind) Executor {
	return stubExecutor{kind: kind, fn: func(ctx context.Context, spec Spec, execCtx map[string]any) Result {
		return Failure(kind, "boom")
	}}
}

func TestPipeline_StopOnErrorHaltsRemainingActions(t *testing.T) {
	reg := NewRegistry(okExecutor("a"), failExecutor("b"), okExecutor("c"))
	p := NewPipeline(reg, nil)

	specs := []Spec{{Kind: "a"}, {Kind: "b"}, {Kind: "c"}}
	results := p.Run(context.Background(), specs, nil, Options{StopOnError: true})

	if len(results) != 2 {
		t.Fatalf("expected exactly 2 results, got %d", len(results))
	}
	if !results[0].Success || results[1].Success {
		t.Fatalf("expected [ok, fail], got %+v", results)
	}
}

func TestPipeline_ContinuesPastFailuresByDefault(t *testing.T) {
	reg := NewRegistry(okExecutor("a"), failExecutor("b"), okExecutor("c"))
	p := NewPipeline(reg, nil)

	specs := []Spec{{Kind: "a"}, {Kind: "b"}, {Kind: "c"}}
	results := p.Run(context.Background(), specs, nil, Options{StopOnError: false})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Success || results[1].Success || !results[2].Success {
		t.Fatalf("expected [ok, fail, ok], got %+v", results)
	}
}

func TestPipeline_TimeoutRecordedWithTimeoutDuration(t *testing.T) {
	slow := stubExecutor{kind: "slow", fn: func(ctx context.Context, spec Spec, execCtx map[string]any) Result {
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
		}
		return Success("slow", nil)
	}}
	reg := NewRegistry(slow)
	p := NewPipeline(reg, nil)

	timeout := 20 * time.Millisecond
	results := p.Run(context.Background(), []Spec{{Kind: "slow"}}, nil, Options{Timeout: timeout})

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Success {
		t.Fatalf("expected timed-out failure")
	}
	if r.ExecutionTimeMs != timeout.Milliseconds() {
		t.Fatalf("expected executionTimeMs == timeout (%d), got %d", timeout.Milliseconds(), r.ExecutionTimeMs)
	}
}

func TestPipeline_UnknownKindFailsWithoutPanic(t *testing.T) {
	p := NewPipeline(NewRegistry(), nil)

	results := p.Run(context.Background(), []Spec{{Kind: "nope"}}, nil, Options{})
	if len(results) != 1 || results[0].Success {
		t.Fatalf("expected a single failed result, got %+v", results)
	}
	if results[0].Error == "" {
		t.Fatalf("expected descriptive error for unknown kind")
	}
}

func TestPipeline_PanickingExecutorBecomesFailedResult(t *testing.T) {
	angry := stubExecutor{kind: "angry", fn: func(ctx context.Context, spec Spec, execCtx map[string]any) Result {
		panic("oops")
	}}
	p := NewPipeline(NewRegistry(angry), nil)

	results := p.Run(context.Background(), []Spec{{Kind: "angry"}}, nil, Options{})
	if len(results) != 1 || results[0].Success {
		t.Fatalf("expected a failed result, got %+v", results)
	}
}

func TestMergeContext_SpecParamsWin(t *testing.T) {
	payload := map[string]any{"a": 1, "b": 2}
	params := map[string]any{"b": 99, "c": 3}

	merged := MergeContext(payload, params)
	if merged["a"] != 1 || merged["b"] != 99 || merged["c"] != 3 {
		t.Fatalf("unexpected merge: %+v", merged)
	}
	// The source payload must stay untouched.
	if payload["b"] != 2 {
		t.Fatalf("payload mutated: %+v", payload)
	}
}

func TestInterpolate(t *testing.T) {
	execCtx := map[string]any{
		"user": "ada",
		"data": map[string]any{"amount": float64(1500)},
	}
	got := Interpolate("hi {{user}}, amount {{data.amount}} ({{missing}})", execCtx)
	want := "hi ada, amount 1500 ()"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
