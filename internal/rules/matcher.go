package rules

import (
	"context"
	"errors"
)

// Matcher resolves the candidate rules for one event.
type Matcher struct {
	repo Repository
}

func NewMatcher(repo Repository) *Matcher {
	return &Matcher{repo: repo}
}

// Match returns the active rules whose event type matches and whose scope is
// either global or equal to sourceID. All matches execute; there is no
// priority ordering beyond the store's creation-time order.
func (m *Matcher) Match(ctx context.Context, eventType, sourceID string) ([]Rule, error) {
	if m.repo == nil {
		return nil, errors.New("rules: repository not configured")
	}
	if eventType == "" {
		return nil, ErrInvalidArgument
	}

	candidates, err := m.repo.ListActiveByEventType(ctx, eventType)
	if err != nil {
		return nil, err
	}

	out := make([]Rule, 0, len(candidates))
	for _, r := range candidates {
		if r.EventScope != "" && r.EventScope != sourceID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
