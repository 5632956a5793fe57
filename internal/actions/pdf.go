package actions

import (
	"context"

	"automation-platform/internal/documents"
)

// DocumentRenderer is the rendering collaborator boundary.
type DocumentRenderer interface {
	Render(ctx context.Context, sourceKind, source string, vars map[string]any) (documents.Rendered, error)
}

// PDFExecutor renders a document from a matched rule.
type PDFExecutor struct {
	Renderer DocumentRenderer
}

func (PDFExecutor) Kind() Kind { return KindPDF }

func (e PDFExecutor) Execute(ctx context.Context, spec Spec, execCtx map[string]any) Result {
	if spec.PDF == nil {
		return Failure(KindPDF, "pdf action missing spec")
	}
	if e.Renderer == nil {
		return Failure(KindPDF, "document renderer not configured")
	}

	rendered, err := e.Renderer.Render(ctx, spec.PDF.SourceKind, spec.PDF.Source, execCtx)
	if err != nil {
		return Failure(KindPDF, "render failed: "+err.Error())
	}
	out := map[string]any{"filePath": rendered.FilePath, "filename": rendered.Filename}
	if spec.PDF.Filename != "" {
		out["requestedFilename"] = spec.PDF.Filename
	}
	return Success(KindPDF, out)
}
