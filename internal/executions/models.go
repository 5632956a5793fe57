package executions

import (
	"errors"
	"time"

	"automation-platform/internal/actions"
	"automation-platform/internal/rules"
)

var (
	ErrNotFound        = errors.New("executions: not found")
	ErrInvalidArgument = errors.New("executions: invalid argument")
)

// Status summarizes an execution's action outcomes.
type Status string

const (
	StatusSuccess        Status = "SUCCESS"
	StatusPartialSuccess Status = "PARTIAL_SUCCESS"
	StatusFailed         Status = "FAILED"
)

// Record is one rule execution: which rule fired for which event, the
// condition trace, and the per-action results. Records are the audit trail
// behind the rule detail endpoint.
type Record struct {
	ID     string `json:"id"`
	RuleID string `json:"ruleId"`

	EventPayload   map[string]any   `json:"eventPayload"`
	ConditionsMet  bool             `json:"conditionsMet"`
	ConditionTrace rules.Trace      `json:"conditionTrace"`
	ActionResults  []actions.Result `json:"actionResults"`

	Status          Status    `json:"status"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
	ExecutionTimeMs int64     `json:"executionTimeMs"`
	ExecutedAt      time.Time `json:"executedAt"`
}

// StatusFor derives the record status from action outcomes. A matched rule
// with no actions counts as success.
func StatusFor(results []actions.Result) Status {
	succeeded, failed := 0, 0
	for _, r := range results {
		if r.Success {
			succeeded++
		} else {
			failed++
		}
	}
	switch {
	case failed == 0:
		return StatusSuccess
	case succeeded == 0:
		return StatusFailed
	default:
		return StatusPartialSuccess
	}
}

// FirstError returns the first failed action's message, for ErrorMessage.
func FirstError(results []actions.Result) string {
	for _, r := range results {
		if !r.Success {
			return r.Error
		}
	}
	return ""
}
