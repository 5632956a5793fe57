package documents

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidRequest  = errors.New("documents: invalid request")
	ErrUnknownTemplate = errors.New("documents: unknown template")
)

// SourceKind selects where the document body comes from.
const (
	SourceTemplate = "template"
	SourceRecord   = "record"
)

// Rendered points at a produced file.
type Rendered struct {
	FilePath string `json:"filePath"`
	Filename string `json:"filename"`
}

// Renderer is the document collaborator boundary. Rendering bodies are not a
// concern of the automation core; this implementation substitutes variables
// into registered text templates and writes the result under OutputDir.
type Renderer struct {
	OutputDir string

	templates map[string]*template.Template
}

func NewRenderer(outputDir string) *Renderer {
	return &Renderer{OutputDir: outputDir, templates: map[string]*template.Template{}}
}

// RegisterTemplate parses and stores a named body template.
func (r *Renderer) RegisterTemplate(name, body string) error {
	if name == "" {
		return ErrInvalidRequest
	}
	tpl, err := template.New(name).Option("missingkey=zero").Parse(body)
	if err != nil {
		return fmt.Errorf("documents: parse template %q: %w", name, err)
	}
	r.templates[name] = tpl
	return nil
}

// Render produces a file from a template or a stored record and returns its
// location. Record sources render a generic summary body; the entity store
// owning the record is outside this module.
func (r *Renderer) Render(ctx context.Context, sourceKind, source string, vars map[string]any) (Rendered, error) {
	if source == "" {
		return Rendered{}, ErrInvalidRequest
	}
	if err := ctx.Err(); err != nil {
		return Rendered{}, err
	}

	var body strings.Builder
	switch sourceKind {
	case SourceTemplate:
		tpl, ok := r.templates[source]
		if !ok {
			return Rendered{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, source)
		}
		if err := tpl.Execute(&body, vars); err != nil {
			return Rendered{}, fmt.Errorf("documents: render %q: %w", source, err)
		}
	case SourceRecord:
		fmt.Fprintf(&body, "Record %s\nGenerated %s\n\n", source, time.Now().UTC().Format(time.RFC3339))
		for k, v := range vars {
			fmt.Fprintf(&body, "%s: %v\n", k, v)
		}
	default:
		return Rendered{}, fmt.Errorf("%w: unknown source kind %q", ErrInvalidRequest, sourceKind)
	}

	if err := os.MkdirAll(r.OutputDir, 0o755); err != nil {
		return Rendered{}, fmt.Errorf("documents: ensure output dir: %w", err)
	}
	filename := fmt.Sprintf("%s-%s.txt", sanitize(source), uuid.NewString()[:8])
	path := filepath.Join(r.OutputDir, filename)
	if err := os.WriteFile(path, []byte(body.String()), 0o644); err != nil {
		return Rendered{}, fmt.Errorf("documents: write %s: %w", filename, err)
	}
	return Rendered{FilePath: path, Filename: filename}, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}
