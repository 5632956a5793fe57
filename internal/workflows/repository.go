package workflows

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is the workflow store. Definitions are read-only; instances and
// work items are written by the service and the progression engine.
type Repository interface {
	GetDefinition(ctx context.Context, id string) (Definition, error)

	CreateInstance(ctx context.Context, inst Instance) (Instance, error)
	GetInstance(ctx context.Context, id string) (Instance, error)
	// AdvanceInstance moves an in-progress instance from one stage order to
	// the next. The stage compare makes concurrent advances settle to exactly
	// one winner: it reports false when the instance is no longer at
	// fromOrder.
	AdvanceInstance(ctx context.Context, instanceID string, fromOrder, toOrder int) (bool, error)
	// CompleteInstance finishes an in-progress instance at fromOrder, with
	// the same compare semantics as AdvanceInstance.
	CompleteInstance(ctx context.Context, instanceID string, fromOrder int) (bool, error)

	CreateWorkItem(ctx context.Context, item WorkItem) (WorkItem, error)
	GetWorkItem(ctx context.Context, id string) (WorkItem, error)
	ListWorkItems(ctx context.Context, instanceID string) ([]WorkItem, error)
	// CompleteWorkItem marks a pending or in-progress item COMPLETED.
	CompleteWorkItem(ctx context.Context, id string) (WorkItem, error)
}

// PostgresRepo persists workflows across the definition, stage, task,
// instance and work item tables.
type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

func (r *PostgresRepo) GetDefinition(ctx context.Context, id string) (Definition, error) {
	if id == "" {
		return Definition{}, ErrInvalidArgument
	}
	var def Definition
	const defQ = `SELECT id, name FROM workflow_definitions WHERE id = $1`
	if err := r.db.QueryRowContext(ctx, defQ, id).Scan(&def.ID, &def.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Definition{}, ErrNotFound
		}
		return Definition{}, err
	}

	const stageQ = `
SELECT s.id, s.stage_order, s.name, t.id, t.title
FROM workflow_stages s
LEFT JOIN stage_tasks t ON t.stage_id = s.id
WHERE s.definition_id = $1
ORDER BY s.stage_order ASC, t.id ASC
`
	rows, err := r.db.QueryContext(ctx, stageQ, id)
	if err != nil {
		return Definition{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			stageID, stageName string
			order              int
			taskID, taskTitle  sql.NullString
		)
		if err := rows.Scan(&stageID, &order, &stageName, &taskID, &taskTitle); err != nil {
			return Definition{}, err
		}
		if len(def.Stages) == 0 || def.Stages[len(def.Stages)-1].ID != stageID {
			def.Stages = append(def.Stages, Stage{ID: stageID, Order: order, Name: stageName})
		}
		if taskID.Valid {
			last := &def.Stages[len(def.Stages)-1]
			last.Tasks = append(last.Tasks, StageTask{ID: taskID.String, Title: taskTitle.String})
		}
	}
	return def, rows.Err()
}

func (r *PostgresRepo) CreateInstance(ctx context.Context, inst Instance) (Instance, error) {
	if inst.DefinitionID == "" || inst.InitiatorID == "" {
		return Instance{}, ErrInvalidArgument
	}
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	if inst.Status == "" {
		inst.Status = InstanceInProgress
	}
	if inst.StartedAt.IsZero() {
		inst.StartedAt = r.clock().UTC()
	}
	contextJSON, err := json.Marshal(inst.ContextData)
	if err != nil {
		return Instance{}, fmt.Errorf("workflows: encode context: %w", err)
	}

	const q = `
INSERT INTO workflow_instances
	(id, definition_id, initiator_id, current_stage_order, status, context_data, started_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
	_, err = r.db.ExecContext(ctx, q,
		inst.ID, inst.DefinitionID, inst.InitiatorID,
		inst.CurrentStageOrder, string(inst.Status), contextJSON, inst.StartedAt,
	)
	if err != nil {
		return Instance{}, err
	}
	return inst, nil
}

func (r *PostgresRepo) GetInstance(ctx context.Context, id string) (Instance, error) {
	if id == "" {
		return Instance{}, ErrInvalidArgument
	}
	const q = `
SELECT id, definition_id, initiator_id, current_stage_order, status, context_data, started_at, completed_at
FROM workflow_instances
WHERE id = $1
`
	var (
		inst        Instance
		status      string
		contextRaw  []byte
		completedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&inst.ID, &inst.DefinitionID, &inst.InitiatorID,
		&inst.CurrentStageOrder, &status, &contextRaw, &inst.StartedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Instance{}, ErrNotFound
		}
		return Instance{}, err
	}
	inst.Status = InstanceStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		inst.CompletedAt = &t
	}
	if len(contextRaw) > 0 {
		if err := json.Unmarshal(contextRaw, &inst.ContextData); err != nil {
			return Instance{}, fmt.Errorf("workflows: decode context for %s: %w", id, err)
		}
	}
	return inst, nil
}

func (r *PostgresRepo) AdvanceInstance(ctx context.Context, instanceID string, fromOrder, toOrder int) (bool, error) {
	if instanceID == "" {
		return false, ErrInvalidArgument
	}
	const q = `
UPDATE workflow_instances
SET current_stage_order = $1
WHERE id = $2 AND status = $3 AND current_stage_order = $4
`
	res, err := r.db.ExecContext(ctx, q, toOrder, instanceID, string(InstanceInProgress), fromOrder)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepo) CompleteInstance(ctx context.Context, instanceID string, fromOrder int) (bool, error) {
	if instanceID == "" {
		return false, ErrInvalidArgument
	}
	const q = `
UPDATE workflow_instances
SET status = $1, completed_at = $2
WHERE id = $3 AND status = $4 AND current_stage_order = $5
`
	res, err := r.db.ExecContext(ctx, q,
		string(InstanceCompleted), r.clock().UTC(), instanceID, string(InstanceInProgress), fromOrder)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepo) CreateWorkItem(ctx context.Context, item WorkItem) (WorkItem, error) {
	if item.AssigneeID == "" || item.Title == "" {
		return WorkItem{}, ErrInvalidArgument
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = WorkItemPending
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = r.clock().UTC()
	}
	dataJSON, err := json.Marshal(item.Data)
	if err != nil {
		return WorkItem{}, fmt.Errorf("workflows: encode work item data: %w", err)
	}

	const q = `
INSERT INTO work_items (id, instance_id, stage_id, assignee_id, title, status, data, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	_, err = r.db.ExecContext(ctx, q,
		item.ID, nullString(item.InstanceID), nullString(item.StageID),
		item.AssigneeID, item.Title, string(item.Status), dataJSON, item.CreatedAt,
	)
	if err != nil {
		return WorkItem{}, err
	}
	return item, nil
}

const workItemColumns = `id, instance_id, stage_id, assignee_id, title, status, data, created_at, completed_at`

func (r *PostgresRepo) GetWorkItem(ctx context.Context, id string) (WorkItem, error) {
	if id == "" {
		return WorkItem{}, ErrInvalidArgument
	}
	const q = `SELECT ` + workItemColumns + ` FROM work_items WHERE id = $1`
	item, err := scanWorkItem(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return WorkItem{}, ErrNotFound
		}
		return WorkItem{}, err
	}
	return item, nil
}

func (r *PostgresRepo) ListWorkItems(ctx context.Context, instanceID string) ([]WorkItem, error) {
	if instanceID == "" {
		return nil, ErrInvalidArgument
	}
	const q = `
SELECT ` + workItemColumns + `
FROM work_items
WHERE instance_id = $1
ORDER BY created_at ASC, id ASC
`
	rows, err := r.db.QueryContext(ctx, q, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]WorkItem, 0)
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) CompleteWorkItem(ctx context.Context, id string) (WorkItem, error) {
	if id == "" {
		return WorkItem{}, ErrInvalidArgument
	}
	const q = `
UPDATE work_items
SET status = $1, completed_at = $2
WHERE id = $3 AND status IN ($4, $5)
RETURNING ` + workItemColumns + `
`
	item, err := scanWorkItem(r.db.QueryRowContext(ctx, q,
		string(WorkItemCompleted), r.clock().UTC(), id,
		string(WorkItemPending), string(WorkItemInProgress)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Either unknown id or already in a terminal state.
			if _, getErr := r.GetWorkItem(ctx, id); getErr != nil {
				return WorkItem{}, getErr
			}
			return WorkItem{}, fmt.Errorf("workflows: work item %s not completable: %w", id, ErrInvalidArgument)
		}
		return WorkItem{}, err
	}
	return item, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkItem(row rowScanner) (WorkItem, error) {
	var (
		item        WorkItem
		instanceID  sql.NullString
		stageID     sql.NullString
		status      string
		dataRaw     []byte
		completedAt sql.NullTime
	)
	if err := row.Scan(
		&item.ID, &instanceID, &stageID, &item.AssigneeID,
		&item.Title, &status, &dataRaw, &item.CreatedAt, &completedAt,
	); err != nil {
		return WorkItem{}, err
	}
	item.InstanceID = instanceID.String
	item.StageID = stageID.String
	item.Status = WorkItemStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		item.CompletedAt = &t
	}
	if len(dataRaw) > 0 {
		if err := json.Unmarshal(dataRaw, &item.Data); err != nil {
			return WorkItem{}, fmt.Errorf("workflows: decode data for %s: %w", item.ID, err)
		}
	}
	return item, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
