package executions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is the in-memory audit store for tests.
type MemoryRepo struct {
	mu      sync.Mutex
	records []Record
	clock   func() time.Time

	// AppendErr, when set, is returned from every Append.
	AppendErr error
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{clock: time.Now} }

func (r *MemoryRepo) Append(ctx context.Context, rec Record) (Record, error) {
	if rec.RuleID == "" {
		return Record{}, ErrInvalidArgument
	}
	if r.AppendErr != nil {
		return Record{}, r.AppendErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ExecutedAt.IsZero() {
		rec.ExecutedAt = r.clock().UTC()
	}
	r.records = append(r.records, rec)
	return rec, nil
}

func (r *MemoryRepo) ListByRule(ctx context.Context, ruleID string, limit, offset int) ([]Record, error) {
	if ruleID == "" {
		return nil, ErrInvalidArgument
	}
	limit, offset = clampPage(limit, offset)

	r.mu.Lock()
	defer r.mu.Unlock()
	// Newest first, matching the Postgres ordering.
	matched := make([]Record, 0)
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].RuleID == ruleID {
			matched = append(matched, r.records[i])
		}
	}
	if offset >= len(matched) {
		return []Record{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

// All returns every stored record in append order, for test assertions.
func (r *MemoryRepo) All() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}
