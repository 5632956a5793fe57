package rules

import (
	"context"
	"testing"

	"automation-platform/internal/actions"
)

func seedRule(t *testing.T, repo *MemoryRepo, name, eventType, scope string, active bool) Rule {
	t.Helper()
	rule, err := repo.Upsert(context.Background(), Rule{
		Name:       name,
		IsActive:   active,
		EventType:  eventType,
		EventScope: scope,
		Actions: []actions.Spec{
			{Kind: actions.KindEmail, Email: &actions.EmailSpec{To: "ops@x.com", Subject: "s"}},
		},
	})
	if err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
	return rule
}

func TestMatcher_FiltersTypeScopeAndActive(t *testing.T) {
	repo := NewMemoryRepo()
	seedRule(t, repo, "global", "TASK_COMPLETED", "", true)
	seedRule(t, repo, "scoped-hit", "TASK_COMPLETED", "task-1", true)
	seedRule(t, repo, "scoped-miss", "TASK_COMPLETED", "task-2", true)
	seedRule(t, repo, "inactive", "TASK_COMPLETED", "", false)
	seedRule(t, repo, "other-type", "RECORD_UPDATED", "", true)

	m := NewMatcher(repo)
	matched, err := m.Match(context.Background(), "TASK_COMPLETED", "task-1")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matched) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matched))
	}
	if matched[0].Name != "global" || matched[1].Name != "scoped-hit" {
		t.Fatalf("expected creation order [global scoped-hit], got [%s %s]", matched[0].Name, matched[1].Name)
	}
}

func TestMatcher_EmptySourceMatchesOnlyGlobal(t *testing.T) {
	repo := NewMemoryRepo()
	seedRule(t, repo, "global", "TASK_COMPLETED", "", true)
	seedRule(t, repo, "scoped", "TASK_COMPLETED", "task-1", true)

	matched, err := NewMatcher(repo).Match(context.Background(), "TASK_COMPLETED", "")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matched) != 1 || matched[0].Name != "global" {
		t.Fatalf("expected only the global rule, got %v", matched)
	}
}

func TestMatcher_EmptyEventTypeIsInvalid(t *testing.T) {
	if _, err := NewMatcher(NewMemoryRepo()).Match(context.Background(), "", "x"); err == nil {
		t.Fatalf("expected error for empty event type")
	}
}
