package actions

import "context"

// RecordStore mutates business records; the entity store itself is an
// external collaborator.
type RecordStore interface {
	UpdateRecord(ctx context.Context, table, recordID string, fields map[string]any) error
}

// DatabaseExecutor applies a field mutation to one record.
type DatabaseExecutor struct {
	Store RecordStore
}

func (DatabaseExecutor) Kind() Kind { return KindDatabase }

func (e DatabaseExecutor) Execute(ctx context.Context, spec Spec, execCtx map[string]any) Result {
	if spec.Database == nil {
		return Failure(KindDatabase, "database action missing spec")
	}
	if e.Store == nil {
		return Failure(KindDatabase, "record store not configured")
	}

	recordID := spec.Database.RecordID
	if recordID == "" {
		recordID = ContextString(execCtx, "sourceId")
	}
	if recordID == "" {
		return Failure(KindDatabase, "no record id in spec or event payload")
	}

	if err := e.Store.UpdateRecord(ctx, spec.Database.Table, recordID, spec.Database.Fields); err != nil {
		return Failure(KindDatabase, "update failed: "+err.Error())
	}
	return Success(KindDatabase, map[string]any{
		"table":    spec.Database.Table,
		"recordId": recordID,
		"updated":  len(spec.Database.Fields),
	})
}
