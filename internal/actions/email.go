package actions

import (
	"context"

	"automation-platform/internal/notify"
)

// EmailExecutor sends a notification through the mail collaborator.
type EmailExecutor struct {
	Sender notify.Sender
}

func (EmailExecutor) Kind() Kind { return KindEmail }

func (e EmailExecutor) Execute(ctx context.Context, spec Spec, execCtx map[string]any) Result {
	if spec.Email == nil {
		return Failure(KindEmail, "email action missing spec")
	}
	if e.Sender == nil {
		return Failure(KindEmail, "mail sender not configured")
	}

	msg := notify.Message{
		To:         Interpolate(spec.Email.To, execCtx),
		Subject:    Interpolate(spec.Email.Subject, execCtx),
		Body:       Interpolate(spec.Email.Body, execCtx),
		TemplateID: spec.Email.TemplateID,
		Variables:  execCtx,
	}
	res, err := e.Sender.Send(ctx, msg)
	if err != nil {
		return Failure(KindEmail, "send failed: "+err.Error())
	}
	if !res.Success {
		return Failure(KindEmail, "mail sender reported failure")
	}
	return Success(KindEmail, map[string]any{"messageId": res.MessageID, "to": msg.To})
}
