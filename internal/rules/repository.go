package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is read access to rule definitions for the automation core,
// plus the upsert used by the management API and the seed loader.
//
// Candidate order is creation time ascending (id ascending as tie-break) so
// multi-rule execution order is deterministic.
type Repository interface {
	ListActiveByEventType(ctx context.Context, eventType string) ([]Rule, error)
	Get(ctx context.Context, id string) (Rule, error)
	List(ctx context.Context) ([]Rule, error)
	// Upsert inserts or, keyed by name, replaces a rule definition.
	Upsert(ctx context.Context, r Rule) (Rule, error)
}

// PostgresRepo stores rules in a single table with JSONB trees.
type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

const ruleColumns = `id, name, is_active, event_type, event_scope, conditions, actions, settings, created_at, updated_at`

func (r *PostgresRepo) ListActiveByEventType(ctx context.Context, eventType string) ([]Rule, error) {
	if eventType == "" {
		return nil, ErrInvalidArgument
	}
	const q = `
SELECT ` + ruleColumns + `
FROM rules
WHERE is_active = TRUE AND event_type = $1
ORDER BY created_at ASC, id ASC
`
	rows, err := r.db.QueryContext(ctx, q, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Rule, error) {
	if id == "" {
		return Rule{}, ErrInvalidArgument
	}
	const q = `
SELECT ` + ruleColumns + `
FROM rules
WHERE id = $1
`
	rule, err := scanRule(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Rule{}, ErrNotFound
		}
		return Rule{}, err
	}
	return rule, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Rule, error) {
	const q = `
SELECT ` + ruleColumns + `
FROM rules
ORDER BY created_at ASC, id ASC
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *PostgresRepo) Upsert(ctx context.Context, rule Rule) (Rule, error) {
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}

	now := r.clock().UTC()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	conditions, err := marshalConditions(rule.Conditions)
	if err != nil {
		return Rule{}, err
	}
	actionsJSON, err := json.Marshal(rule.Actions)
	if err != nil {
		return Rule{}, fmt.Errorf("rules: encode actions: %w", err)
	}
	settingsJSON, err := json.Marshal(rule.Settings)
	if err != nil {
		return Rule{}, fmt.Errorf("rules: encode settings: %w", err)
	}

	const q = `
INSERT INTO rules (id, name, is_active, event_type, event_scope, conditions, actions, settings, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (name) DO UPDATE SET
	is_active = EXCLUDED.is_active,
	event_type = EXCLUDED.event_type,
	event_scope = EXCLUDED.event_scope,
	conditions = EXCLUDED.conditions,
	actions = EXCLUDED.actions,
	settings = EXCLUDED.settings,
	updated_at = EXCLUDED.updated_at
RETURNING ` + ruleColumns + `
`
	stored, err := scanRule(r.db.QueryRowContext(ctx, q,
		rule.ID,
		rule.Name,
		rule.IsActive,
		rule.EventType,
		nullString(rule.EventScope),
		conditions,
		actionsJSON,
		settingsJSON,
		rule.CreatedAt,
		rule.UpdatedAt,
	))
	if err != nil {
		return Rule{}, err
	}
	return stored, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (Rule, error) {
	var (
		rule          Rule
		scope         sql.NullString
		conditionsRaw []byte
		actionsRaw    []byte
		settingsRaw   []byte
	)
	if err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.IsActive,
		&rule.EventType,
		&scope,
		&conditionsRaw,
		&actionsRaw,
		&settingsRaw,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return Rule{}, err
	}
	rule.EventScope = scope.String

	tree, err := ParseConditionTree(conditionsRaw)
	if err != nil {
		return Rule{}, err
	}
	rule.Conditions = tree

	if len(actionsRaw) > 0 {
		if err := json.Unmarshal(actionsRaw, &rule.Actions); err != nil {
			return Rule{}, fmt.Errorf("rules: decode actions for %s: %w", rule.ID, err)
		}
	}
	if len(settingsRaw) > 0 {
		if err := json.Unmarshal(settingsRaw, &rule.Settings); err != nil {
			return Rule{}, fmt.Errorf("rules: decode settings for %s: %w", rule.ID, err)
		}
	}
	return rule, nil
}

func scanRules(rows *sql.Rows) ([]Rule, error) {
	out := make([]Rule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func marshalConditions(tree *ConditionNode) ([]byte, error) {
	if tree == nil {
		return nil, nil
	}
	raw, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("rules: encode condition tree: %w", err)
	}
	return raw, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
