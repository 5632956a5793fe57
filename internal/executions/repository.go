package executions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"automation-platform/internal/actions"
)

// Repository is the execution audit store. Appends come from the consumer
// loop; reads serve the management API.
type Repository interface {
	Append(ctx context.Context, rec Record) (Record, error)
	// ListByRule pages newest-first.
	ListByRule(ctx context.Context, ruleID string, limit, offset int) ([]Record, error)
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// PostgresRepo persists records with JSONB payloads.
type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

func (r *PostgresRepo) Append(ctx context.Context, rec Record) (Record, error) {
	if rec.RuleID == "" {
		return Record{}, ErrInvalidArgument
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ExecutedAt.IsZero() {
		rec.ExecutedAt = r.clock().UTC()
	}

	payload, err := json.Marshal(rec.EventPayload)
	if err != nil {
		return Record{}, fmt.Errorf("executions: encode payload: %w", err)
	}
	trace, err := json.Marshal(rec.ConditionTrace)
	if err != nil {
		return Record{}, fmt.Errorf("executions: encode trace: %w", err)
	}
	results, err := json.Marshal(rec.ActionResults)
	if err != nil {
		return Record{}, fmt.Errorf("executions: encode results: %w", err)
	}

	const q = `
INSERT INTO execution_records
	(id, rule_id, event_payload, conditions_met, condition_trace, action_results,
	 status, error_message, execution_time_ms, executed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`
	_, err = r.db.ExecContext(ctx, q,
		rec.ID,
		rec.RuleID,
		payload,
		rec.ConditionsMet,
		trace,
		results,
		string(rec.Status),
		nullString(rec.ErrorMessage),
		rec.ExecutionTimeMs,
		rec.ExecutedAt,
	)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (r *PostgresRepo) ListByRule(ctx context.Context, ruleID string, limit, offset int) ([]Record, error) {
	if ruleID == "" {
		return nil, ErrInvalidArgument
	}
	limit, offset = clampPage(limit, offset)

	const q = `
SELECT id, rule_id, event_payload, conditions_met, condition_trace, action_results,
       status, error_message, execution_time_ms, executed_at
FROM execution_records
WHERE rule_id = $1
ORDER BY executed_at DESC, id DESC
LIMIT $2 OFFSET $3
`
	rows, err := r.db.QueryContext(ctx, q, ruleID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		var (
			rec        Record
			payloadRaw []byte
			traceRaw   []byte
			resultsRaw []byte
			status     string
			errMsg     sql.NullString
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.RuleID,
			&payloadRaw,
			&rec.ConditionsMet,
			&traceRaw,
			&resultsRaw,
			&status,
			&errMsg,
			&rec.ExecutionTimeMs,
			&rec.ExecutedAt,
		); err != nil {
			return nil, err
		}
		rec.Status = Status(status)
		rec.ErrorMessage = errMsg.String
		if len(payloadRaw) > 0 {
			if err := json.Unmarshal(payloadRaw, &rec.EventPayload); err != nil {
				return nil, fmt.Errorf("executions: decode payload for %s: %w", rec.ID, err)
			}
		}
		if len(traceRaw) > 0 {
			if err := json.Unmarshal(traceRaw, &rec.ConditionTrace); err != nil {
				return nil, fmt.Errorf("executions: decode trace for %s: %w", rec.ID, err)
			}
		}
		if len(resultsRaw) > 0 {
			var results []actions.Result
			if err := json.Unmarshal(resultsRaw, &results); err != nil {
				return nil, fmt.Errorf("executions: decode results for %s: %w", rec.ID, err)
			}
			rec.ActionResults = results
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
