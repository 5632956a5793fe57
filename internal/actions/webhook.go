package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// webhookBodyLimit caps how much of an upstream response is carried into the
// action result.
const webhookBodyLimit = 4 << 10

// DefaultWebhookTimeout bounds the HTTP request itself, independently of the
// pipeline's per-action timeout.
const DefaultWebhookTimeout = 10 * time.Second

// WebhookExecutor calls an external HTTP endpoint. Any transport error or
// non-2xx response becomes a failed result carrying the upstream status and
// body when available.
type WebhookExecutor struct {
	Client  *http.Client
	Timeout time.Duration
}

func (WebhookExecutor) Kind() Kind { return KindWebhook }

func (e WebhookExecutor) Execute(ctx context.Context, spec Spec, execCtx map[string]any) Result {
	if spec.Webhook == nil {
		return Failure(KindWebhook, "webhook action missing spec")
	}
	w := spec.Webhook

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := strings.ToUpper(w.Method)
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if method != http.MethodGet {
		payload := w.Body
		if payload == nil {
			payload = execCtx
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return Failure(KindWebhook, "encode body: "+err.Error())
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, w.URL, body)
	if err != nil {
		return Failure(KindWebhook, "build request: "+err.Error())
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range w.Headers {
		req.Header.Set(k, Interpolate(v, execCtx))
	}
	if w.Auth != nil {
		switch strings.ToLower(w.Auth.Type) {
		case "bearer":
			req.Header.Set("Authorization", "Bearer "+w.Auth.Token)
		case "basic":
			req.SetBasicAuth(w.Auth.Username, w.Auth.Password)
		default:
			return Failure(KindWebhook, fmt.Sprintf("unknown auth type %q", w.Auth.Type))
		}
	}

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Failure(KindWebhook, "request failed: "+err.Error())
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, webhookBodyLimit))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Failure(KindWebhook, fmt.Sprintf("upstream returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	return Success(KindWebhook, map[string]any{
		"status": resp.StatusCode,
		"body":   string(respBody),
	})
}
