package workflows

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is the in-memory workflow store for tests.
type MemoryRepo struct {
	mu          sync.Mutex
	definitions map[string]Definition
	instances   map[string]Instance
	items       map[string]WorkItem
	itemOrder   []string
	clock       func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		definitions: map[string]Definition{},
		instances:   map[string]Instance{},
		items:       map[string]WorkItem{},
		clock:       time.Now,
	}
}

// PutDefinition seeds a definition.
func (r *MemoryRepo) PutDefinition(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.definitions[def.ID] = def
}

func (r *MemoryRepo) GetDefinition(ctx context.Context, id string) (Definition, error) {
	if id == "" {
		return Definition{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	def, ok := r.definitions[id]
	if !ok {
		return Definition{}, ErrNotFound
	}
	return def, nil
}

func (r *MemoryRepo) CreateInstance(ctx context.Context, inst Instance) (Instance, error) {
	if inst.DefinitionID == "" || inst.InitiatorID == "" {
		return Instance{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	if inst.Status == "" {
		inst.Status = InstanceInProgress
	}
	if inst.StartedAt.IsZero() {
		inst.StartedAt = r.clock().UTC()
	}
	r.instances[inst.ID] = inst
	return inst, nil
}

func (r *MemoryRepo) GetInstance(ctx context.Context, id string) (Instance, error) {
	if id == "" {
		return Instance{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return Instance{}, ErrNotFound
	}
	return inst, nil
}

func (r *MemoryRepo) AdvanceInstance(ctx context.Context, instanceID string, fromOrder, toOrder int) (bool, error) {
	if instanceID == "" {
		return false, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[instanceID]
	if !ok || inst.Status != InstanceInProgress || inst.CurrentStageOrder != fromOrder {
		return false, nil
	}
	inst.CurrentStageOrder = toOrder
	r.instances[instanceID] = inst
	return true, nil
}

func (r *MemoryRepo) CompleteInstance(ctx context.Context, instanceID string, fromOrder int) (bool, error) {
	if instanceID == "" {
		return false, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[instanceID]
	if !ok || inst.Status != InstanceInProgress || inst.CurrentStageOrder != fromOrder {
		return false, nil
	}
	now := r.clock().UTC()
	inst.Status = InstanceCompleted
	inst.CompletedAt = &now
	r.instances[instanceID] = inst
	return true, nil
}

func (r *MemoryRepo) CreateWorkItem(ctx context.Context, item WorkItem) (WorkItem, error) {
	if item.AssigneeID == "" || item.Title == "" {
		return WorkItem{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = WorkItemPending
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = r.clock().UTC()
	}
	r.items[item.ID] = item
	r.itemOrder = append(r.itemOrder, item.ID)
	return item, nil
}

func (r *MemoryRepo) GetWorkItem(ctx context.Context, id string) (WorkItem, error) {
	if id == "" {
		return WorkItem{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return WorkItem{}, ErrNotFound
	}
	return item, nil
}

func (r *MemoryRepo) ListWorkItems(ctx context.Context, instanceID string) ([]WorkItem, error) {
	if instanceID == "" {
		return nil, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]WorkItem, 0)
	for _, id := range r.itemOrder {
		if item := r.items[id]; item.InstanceID == instanceID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r *MemoryRepo) CompleteWorkItem(ctx context.Context, id string) (WorkItem, error) {
	if id == "" {
		return WorkItem{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return WorkItem{}, ErrNotFound
	}
	if item.Status != WorkItemPending && item.Status != WorkItemInProgress {
		return WorkItem{}, fmt.Errorf("workflows: work item %s not completable: %w", id, ErrInvalidArgument)
	}
	now := r.clock().UTC()
	item.Status = WorkItemCompleted
	item.CompletedAt = &now
	r.items[id] = item
	return item, nil
}
