package rules

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is a simple in-memory rule store for tests and early
// development. It preserves insertion order, matching the documented
// creation-time ordering of the Postgres repo.
type MemoryRepo struct {
	mu    sync.Mutex
	rules []Rule
	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{clock: time.Now} }

func (r *MemoryRepo) ListActiveByEventType(ctx context.Context, eventType string) ([]Rule, error) {
	if eventType == "" {
		return nil, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Rule, 0)
	for _, rule := range r.rules {
		if rule.IsActive && rule.EventType == eventType {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Rule, error) {
	if id == "" {
		return Rule{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rule := range r.rules {
		if rule.ID == id {
			return rule, nil
		}
	}
	return Rule{}, ErrNotFound
}

func (r *MemoryRepo) List(ctx context.Context) ([]Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out, nil
}

func (r *MemoryRepo) Upsert(ctx context.Context, rule Rule) (Rule, error) {
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock().UTC()
	rule.UpdatedAt = now
	for i, existing := range r.rules {
		if existing.Name == rule.Name {
			rule.ID = existing.ID
			rule.CreatedAt = existing.CreatedAt
			r.rules[i] = rule
			return rule, nil
		}
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	r.rules = append(r.rules, rule)
	return rule, nil
}
