package rules

import (
	"errors"
	"time"

	"automation-platform/internal/actions"
)

var (
	ErrNotFound        = errors.New("rules: not found")
	ErrInvalidArgument = errors.New("rules: invalid argument")
)

// Settings tunes how a rule's action pipeline runs.
type Settings struct {
	StopOnError bool `json:"stopOnError" yaml:"stopOnError"`
	// TimeoutMs caps each action's execution; 0 means the 30s default.
	TimeoutMs int `json:"timeoutMs" yaml:"timeoutMs"`
	// MaxRetries is carried for action implementations that retry internally.
	MaxRetries int `json:"maxRetries" yaml:"maxRetries"`
}

// DefaultTimeout is the per-action cap applied when a rule sets none.
const DefaultTimeout = 30 * time.Second

// Timeout returns the effective per-action timeout.
func (s Settings) Timeout() time.Duration {
	if s.TimeoutMs <= 0 {
		return DefaultTimeout
	}
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// Rule binds an event type and an optional condition tree to an ordered
// action list. Rules are authored through the management API and read-only
// to the automation core.
//
// Invariant: a rule with a nil Conditions tree always matches its event
// type/scope.
type Rule struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"isActive"`

	// EventType selects which events this rule reacts to.
	EventType string `json:"eventType"`
	// EventScope optionally pins the rule to one source entity; empty means
	// global.
	EventScope string `json:"eventScope,omitempty"`

	Conditions *ConditionNode `json:"conditions,omitempty"`
	Actions    []actions.Spec `json:"actions"`
	Settings   Settings       `json:"settings"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks a rule definition before it is stored.
func (r Rule) Validate() error {
	if r.Name == "" {
		return ErrInvalidArgument
	}
	if r.EventType == "" {
		return ErrInvalidArgument
	}
	if err := r.Conditions.Validate(); err != nil {
		return err
	}
	for _, spec := range r.Actions {
		if err := spec.Validate(); err != nil {
			return err
		}
	}
	return nil
}
