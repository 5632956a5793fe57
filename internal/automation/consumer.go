package automation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"automation-platform/internal/actions"
	"automation-platform/internal/events"
	"automation-platform/internal/executions"
	"automation-platform/internal/metrics"
	"automation-platform/internal/rules"
)

// State is the consumer's lifecycle state.
type State string

const (
	StateStopped State = "STOPPED"
	StateRunning State = "RUNNING"
)

// Options names the consumer's bus position and restart behavior.
type Options struct {
	Stream   string
	Group    string
	Consumer string
	// RestartBackoff is the wait before re-subscribing after a crash.
	RestartBackoff time.Duration
}

// Consumer is the automation loop: it reads events off the bus, matches
// rules, evaluates conditions, runs action pipelines and appends execution
// records. One consumer processes messages strictly one at a time so a
// single rule's actions never interleave.
type Consumer struct {
	bus      events.Bus
	matcher  *rules.Matcher
	pipeline *actions.Pipeline
	records  executions.Repository
	metrics  *metrics.Metrics
	log      *slog.Logger
	opts     Options

	mu    sync.Mutex
	state State
}

func NewConsumer(bus events.Bus, matcher *rules.Matcher, pipeline *actions.Pipeline,
	records executions.Repository, m *metrics.Metrics, log *slog.Logger, opts Options) *Consumer {
	if opts.RestartBackoff <= 0 {
		opts.RestartBackoff = 5 * time.Second
	}
	return &Consumer{
		bus:      bus,
		matcher:  matcher,
		pipeline: pipeline,
		records:  records,
		metrics:  m,
		log:      log,
		opts:     opts,
		state:    StateStopped,
	}
}

// State reports the current lifecycle state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run blocks on the bus until ctx is cancelled, restarting the subscription
// after the configured backoff when it crashes. A deliberate stop (context
// cancellation) does not restart.
func (c *Consumer) Run(ctx context.Context) error {
	c.setState(StateRunning)
	defer c.setState(StateStopped)

	for {
		err := c.bus.Subscribe(ctx, c.opts.Stream, c.opts.Group, c.opts.Consumer, c.Handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Error("consumer subscription crashed, restarting",
			"error", err, "backoff", c.opts.RestartBackoff.String())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.opts.RestartBackoff):
		}
	}
}

func (c *Consumer) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Handle processes one delivered event: resolve candidate rules, evaluate
// each, run matched pipelines and append one execution record per matched
// rule. Unmatched rules leave no trace.
//
// A store error while resolving rules propagates (redelivery); a record
// append failure after actions ran is logged and swallowed so the retry
// cannot duplicate side effects.
func (c *Consumer) Handle(ctx context.Context, messageID string, eventType events.Type, payload map[string]any) error {
	c.metrics.EventsConsumed.Inc()

	sourceID := events.SourceID(payload)
	candidates, err := c.matcher.Match(ctx, string(eventType), sourceID)
	if err != nil {
		c.metrics.EventsFailed.Inc()
		if errors.Is(err, rules.ErrInvalidArgument) {
			return events.Permanent(err)
		}
		return err
	}

	for _, rule := range candidates {
		c.runRule(ctx, rule, eventType, payload)
	}
	return nil
}

func (c *Consumer) runRule(ctx context.Context, rule rules.Rule, eventType events.Type, payload map[string]any) {
	started := time.Now()
	met, trace := rules.Evaluate(rule.Conditions, payload)
	if trace.Error != "" {
		c.log.Warn("condition evaluation failed, rule treated as unmatched",
			"rule_id", rule.ID, "error", trace.Error)
	}
	if !met {
		return
	}
	c.metrics.RulesMatched.Inc()
	c.log.Info("rule matched", "rule_id", rule.ID, "rule", rule.Name, "event_type", string(eventType))

	results := c.pipeline.Run(ctx, rule.Actions, payload, actions.Options{
		Timeout:     rule.Settings.Timeout(),
		StopOnError: rule.Settings.StopOnError,
	})
	for _, res := range results {
		c.metrics.ObserveAction(string(res.Kind), res.Success)
	}

	rec := executions.Record{
		RuleID:          rule.ID,
		EventPayload:    payload,
		ConditionsMet:   true,
		ConditionTrace:  trace,
		ActionResults:   results,
		Status:          executions.StatusFor(results),
		ErrorMessage:    executions.FirstError(results),
		ExecutionTimeMs: time.Since(started).Milliseconds(),
	}
	if _, err := c.records.Append(ctx, rec); err != nil {
		// The actions already ran; blocking acknowledgment here would replay
		// them on redelivery.
		c.log.Error("execution record append failed", "rule_id", rule.ID, "error", err)
	}
}
