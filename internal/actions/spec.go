package actions

import (
	"errors"
	"fmt"
)

// Kind discriminates the action union.
type Kind string

const (
	KindEmail    Kind = "email"
	KindFlow     Kind = "flow"
	KindDatabase Kind = "database"
	KindWebhook  Kind = "webhook"
	KindTask     Kind = "task"
	KindPDF      Kind = "pdf"
)

var ErrInvalidSpec = errors.New("actions: invalid spec")

// Spec is one action of a rule, a tagged union over Kind. Exactly the
// sub-spec matching Kind must be set.
//
// Params are literal overrides merged into the execution context; on key
// collision the spec's value wins over the event payload.
type Spec struct {
	Kind Kind `json:"kind" yaml:"kind"`

	Email    *EmailSpec    `json:"email,omitempty" yaml:"email,omitempty"`
	Flow     *FlowSpec     `json:"flow,omitempty" yaml:"flow,omitempty"`
	Database *DatabaseSpec `json:"database,omitempty" yaml:"database,omitempty"`
	Webhook  *WebhookSpec  `json:"webhook,omitempty" yaml:"webhook,omitempty"`
	Task     *TaskSpec     `json:"task,omitempty" yaml:"task,omitempty"`
	PDF      *PDFSpec      `json:"pdf,omitempty" yaml:"pdf,omitempty"`

	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// EmailSpec sends a notification through the configured mail sender.
// To, Subject and Body may reference execution-context values as {{path}}.
type EmailSpec struct {
	To         string `json:"to" yaml:"to"`
	Subject    string `json:"subject" yaml:"subject"`
	Body       string `json:"body,omitempty" yaml:"body,omitempty"`
	TemplateID string `json:"templateId,omitempty" yaml:"templateId,omitempty"`
}

// FlowSpec starts another workflow.
type FlowSpec struct {
	DefinitionID string `json:"definitionId" yaml:"definitionId"`
	// InitiatorID defaults to the execution context's initiatorId when empty.
	InitiatorID string `json:"initiatorId,omitempty" yaml:"initiatorId,omitempty"`
}

// DatabaseSpec mutates one record in the entity store.
type DatabaseSpec struct {
	Table string `json:"table" yaml:"table"`
	// RecordID defaults to the execution context's sourceId when empty.
	RecordID string         `json:"recordId,omitempty" yaml:"recordId,omitempty"`
	Fields   map[string]any `json:"fields" yaml:"fields"`
}

// WebhookSpec calls an external HTTP endpoint.
type WebhookSpec struct {
	URL     string            `json:"url" yaml:"url"`
	Method  string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// Body, when set, is sent as JSON; otherwise the execution context is sent.
	Body map[string]any `json:"body,omitempty" yaml:"body,omitempty"`
	Auth *WebhookAuth   `json:"auth,omitempty" yaml:"auth,omitempty"`
}

// WebhookAuth attaches credentials to the outgoing request.
type WebhookAuth struct {
	// Type is "bearer" or "basic".
	Type     string `json:"type" yaml:"type"`
	Token    string `json:"token,omitempty" yaml:"token,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
}

// TaskSpec assigns a standalone work item to a user.
type TaskSpec struct {
	Title      string         `json:"title" yaml:"title"`
	AssigneeID string         `json:"assigneeId" yaml:"assigneeId"`
	Data       map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// PDFSpec renders a document from a template or a stored source entity.
type PDFSpec struct {
	// SourceKind is "template" or "record".
	SourceKind string `json:"sourceKind" yaml:"sourceKind"`
	// Source is a template name or a record id, depending on SourceKind.
	Source   string `json:"source" yaml:"source"`
	Filename string `json:"filename,omitempty" yaml:"filename,omitempty"`
}

// Validate checks that the union is well-formed.
func (s Spec) Validate() error {
	switch s.Kind {
	case KindEmail:
		if s.Email == nil || s.Email.To == "" || s.Email.Subject == "" {
			return fmt.Errorf("%w: email requires to and subject", ErrInvalidSpec)
		}
	case KindFlow:
		if s.Flow == nil || s.Flow.DefinitionID == "" {
			return fmt.Errorf("%w: flow requires definitionId", ErrInvalidSpec)
		}
	case KindDatabase:
		if s.Database == nil || s.Database.Table == "" || len(s.Database.Fields) == 0 {
			return fmt.Errorf("%w: database requires table and fields", ErrInvalidSpec)
		}
	case KindWebhook:
		if s.Webhook == nil || s.Webhook.URL == "" {
			return fmt.Errorf("%w: webhook requires url", ErrInvalidSpec)
		}
	case KindTask:
		if s.Task == nil || s.Task.AssigneeID == "" || s.Task.Title == "" {
			return fmt.Errorf("%w: task requires title and assigneeId", ErrInvalidSpec)
		}
	case KindPDF:
		if s.PDF == nil || s.PDF.SourceKind == "" || s.PDF.Source == "" {
			return fmt.Errorf("%w: pdf requires sourceKind and source", ErrInvalidSpec)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, s.Kind)
	}
	return nil
}
