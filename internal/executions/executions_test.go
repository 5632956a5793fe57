package executions

import (
	"context"
	"fmt"
	"testing"

	"automation-platform/internal/actions"
)

func TestStatusFor(t *testing.T) {
	ok := actions.Result{Kind: actions.KindEmail, Success: true}
	bad := actions.Result{Kind: actions.KindWebhook, Success: false, Error: "upstream returned 502"}

	if got := StatusFor(nil); got != StatusSuccess {
		t.Fatalf("no actions must be SUCCESS, got %s", got)
	}
	if got := StatusFor([]actions.Result{ok, ok}); got != StatusSuccess {
		t.Fatalf("all ok must be SUCCESS, got %s", got)
	}
	if got := StatusFor([]actions.Result{ok, bad}); got != StatusPartialSuccess {
		t.Fatalf("mixed must be PARTIAL_SUCCESS, got %s", got)
	}
	if got := StatusFor([]actions.Result{bad}); got != StatusFailed {
		t.Fatalf("all failed must be FAILED, got %s", got)
	}
	if msg := FirstError([]actions.Result{ok, bad}); msg != "upstream returned 502" {
		t.Fatalf("unexpected first error %q", msg)
	}
}

func TestMemoryRepo_ListByRulePagesNewestFirst(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := repo.Append(ctx, Record{
			RuleID:       "rule-1",
			Status:       StatusSuccess,
			EventPayload: map[string]any{"seq": fmt.Sprintf("%d", i)},
		}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if _, err := repo.Append(ctx, Record{RuleID: "rule-2", Status: StatusFailed}); err != nil {
		t.Fatalf("append other rule: %v", err)
	}

	page, err := repo.ListByRule(ctx, "rule-1", 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 records, got %d", len(page))
	}
	if page[0].EventPayload["seq"] != "4" || page[1].EventPayload["seq"] != "3" {
		t.Fatalf("expected newest first, got %v %v", page[0].EventPayload, page[1].EventPayload)
	}

	page, err = repo.ListByRule(ctx, "rule-1", 2, 4)
	if err != nil {
		t.Fatalf("list offset: %v", err)
	}
	if len(page) != 1 || page[0].EventPayload["seq"] != "0" {
		t.Fatalf("expected the oldest record at offset 4, got %v", page)
	}

	page, err = repo.ListByRule(ctx, "rule-1", 10, 100)
	if err != nil || len(page) != 0 {
		t.Fatalf("offset past end must return empty, got %v err %v", page, err)
	}
}

func TestMemoryRepo_Validation(t *testing.T) {
	repo := NewMemoryRepo()
	if _, err := repo.Append(context.Background(), Record{}); err == nil {
		t.Fatalf("append without rule id must fail")
	}
	if _, err := repo.ListByRule(context.Background(), "", 10, 0); err == nil {
		t.Fatalf("list without rule id must fail")
	}
}
