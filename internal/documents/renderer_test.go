package documents

import (
	"context"
	"os"
	"strings"
	"testing"
)

func TestRender_Template(t *testing.T) {
	r := NewRenderer(t.TempDir())
	if err := r.RegisterTemplate("invoice", "Invoice for {{.customer}}: {{.amount}}"); err != nil {
		t.Fatalf("register: %v", err)
	}

	out, err := r.Render(context.Background(), SourceTemplate, "invoice",
		map[string]any{"customer": "acme", "amount": 42})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	raw, err := os.ReadFile(out.FilePath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(raw) != "Invoice for acme: 42" {
		t.Fatalf("unexpected body %q", raw)
	}
	if !strings.HasPrefix(out.Filename, "invoice-") {
		t.Fatalf("unexpected filename %q", out.Filename)
	}
}

func TestRender_Record(t *testing.T) {
	r := NewRenderer(t.TempDir())
	out, err := r.Render(context.Background(), SourceRecord, "task-9", map[string]any{"status": "done"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	raw, err := os.ReadFile(out.FilePath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(raw), "Record task-9") || !strings.Contains(string(raw), "status: done") {
		t.Fatalf("unexpected body %q", raw)
	}
}

func TestRender_Errors(t *testing.T) {
	r := NewRenderer(t.TempDir())
	ctx := context.Background()

	if _, err := r.Render(ctx, SourceTemplate, "missing", nil); err == nil {
		t.Fatalf("unknown template must fail")
	}
	if _, err := r.Render(ctx, "spreadsheet", "x", nil); err == nil {
		t.Fatalf("unknown source kind must fail")
	}
	if _, err := r.Render(ctx, SourceTemplate, "", nil); err == nil {
		t.Fatalf("empty source must fail")
	}
}

func TestFilenameSanitized(t *testing.T) {
	r := NewRenderer(t.TempDir())
	if err := r.RegisterTemplate("a/b c", "x"); err != nil {
		t.Fatalf("register: %v", err)
	}
	out, err := r.Render(context.Background(), SourceTemplate, "a/b c", nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.ContainsAny(out.Filename, "/ ") {
		t.Fatalf("filename not sanitized: %q", out.Filename)
	}
}
