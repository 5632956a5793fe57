package actions

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultActionTimeout caps one action when the rule sets no timeout.
const DefaultActionTimeout = 30 * time.Second

// Options tune one pipeline run; they come from the matched rule's settings.
type Options struct {
	// Timeout is the per-action cap. Zero applies DefaultActionTimeout.
	Timeout time.Duration
	// StopOnError halts the pipeline at the first failed or timed-out action.
	StopOnError bool
}

// Pipeline runs a rule's actions in order, sequentially. Ordering is
// user-specified and must be preserved; only the timeout race is concurrent.
type Pipeline struct {
	registry *Registry
	log      *slog.Logger
	clock    func() time.Time
}

func NewPipeline(registry *Registry, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{registry: registry, log: log, clock: time.Now}
}

// Run executes specs against the event payload. Each action races its
// timeout: on expiry the action is recorded as a timed-out failure with
// ExecutionTimeMs equal to the timeout, and the call is abandoned. The
// context handed to the executor is cancelled on timeout so cooperative
// executors can stop, but a non-cooperative call may still complete its side
// effect.
//
// With StopOnError, actions after the first failure are never attempted and
// produce no Result.
func (p *Pipeline) Run(ctx context.Context, specs []Spec, payload map[string]any, opts Options) []Result {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultActionTimeout
	}

	results := make([]Result, 0, len(specs))
	for _, spec := range specs {
		res := p.runOne(ctx, spec, payload, timeout)
		results = append(results, res)
		if !res.Success && opts.StopOnError {
			break
		}
	}
	return results
}

func (p *Pipeline) runOne(ctx context.Context, spec Spec, payload map[string]any, timeout time.Duration) Result {
	execCtx := MergeContext(payload, spec.Params)

	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := p.clock()
	// Buffered so an abandoned action can still deliver and be collected.
	done := make(chan Result, 1)
	go func() {
		done <- p.registry.Execute(actionCtx, spec, execCtx)
	}()

	select {
	case res := <-done:
		res.ExecutionTimeMs = p.clock().Sub(start).Milliseconds()
		return res
	case <-actionCtx.Done():
		if ctx.Err() != nil {
			// Parent cancellation (shutdown), not the per-action timeout.
			res := Failure(spec.Kind, "action cancelled: "+ctx.Err().Error())
			res.ExecutionTimeMs = p.clock().Sub(start).Milliseconds()
			return res
		}
		p.log.Warn("action timed out", "kind", spec.Kind, "timeout_ms", timeout.Milliseconds())
		res := Failure(spec.Kind, fmt.Sprintf("action timed out after %dms", timeout.Milliseconds()))
		res.ExecutionTimeMs = timeout.Milliseconds()
		return res
	}
}
