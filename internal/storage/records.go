package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"automation-platform/internal/actions"
)

// identifierRe is the only shape accepted for table and column names coming
// out of rule definitions. Everything else is rejected before it reaches SQL.
var identifierRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Records applies rule-driven field mutations to whitelisted tables. It is
// the record-store collaborator behind the database action.
type Records struct {
	db *sql.DB

	// allowed restricts which tables rules may touch.
	allowed map[string]bool
}

var _ actions.RecordStore = (*Records)(nil)

func NewRecords(db *sql.DB, allowedTables ...string) *Records {
	allowed := make(map[string]bool, len(allowedTables))
	for _, t := range allowedTables {
		allowed[t] = true
	}
	return &Records{db: db, allowed: allowed}
}

func (r *Records) UpdateRecord(ctx context.Context, table, recordID string, fields map[string]any) error {
	if table == "" || recordID == "" || len(fields) == 0 {
		return fmt.Errorf("storage: table, record id and fields are required")
	}
	if !identifierRe.MatchString(table) || !r.allowed[table] {
		return fmt.Errorf("storage: table %q not updatable", table)
	}

	cols := make([]string, 0, len(fields))
	for col := range fields {
		if !identifierRe.MatchString(col) {
			return fmt.Errorf("storage: invalid column %q", col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	set := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		set = append(set, fmt.Sprintf("%s = $%d", col, i+1))
		args = append(args, fields[col])
	}
	args = append(args, recordID)

	q := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(set, ", "), len(args))
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("storage: record %s not found in %s", recordID, table)
	}
	return nil
}
