package actions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWebhookExecutor_PostsContextAndSucceeds(t *testing.T) {
	var gotAuth, gotCustom string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCustom = r.Header.Get("X-Entity")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	ex := WebhookExecutor{}
	spec := Spec{Kind: KindWebhook, Webhook: &WebhookSpec{
		URL:     srv.URL,
		Headers: map[string]string{"X-Entity": "{{sourceId}}"},
		Auth:    &WebhookAuth{Type: "bearer", Token: "tok"},
	}}
	res := ex.Execute(context.Background(), spec, map[string]any{"sourceId": "task-9", "amount": float64(10)})

	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if gotCustom != "task-9" {
		t.Fatalf("expected interpolated header, got %q", gotCustom)
	}
	if gotBody["sourceId"] != "task-9" {
		t.Fatalf("expected context posted as body, got %+v", gotBody)
	}
	if res.Output["status"] != http.StatusOK {
		t.Fatalf("expected status in output, got %+v", res.Output)
	}
}

func TestWebhookExecutor_Non2xxBecomesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream broke"))
	}))
	defer srv.Close()

	ex := WebhookExecutor{}
	res := ex.Execute(context.Background(), Spec{Kind: KindWebhook, Webhook: &WebhookSpec{URL: srv.URL}}, nil)

	if res.Success {
		t.Fatalf("expected failure for 502")
	}
	if !strings.Contains(res.Error, "502") || !strings.Contains(res.Error, "upstream broke") {
		t.Fatalf("expected status and body in error, got %q", res.Error)
	}
}

func TestWebhookExecutor_TransportErrorBecomesFailure(t *testing.T) {
	ex := WebhookExecutor{Timeout: 100 * time.Millisecond}
	res := ex.Execute(context.Background(), Spec{Kind: KindWebhook, Webhook: &WebhookSpec{URL: "http://127.0.0.1:1/never"}}, nil)
	if res.Success {
		t.Fatalf("expected transport failure")
	}
	if res.Error == "" {
		t.Fatalf("expected error message")
	}
}

func TestWebhookExecutor_GetSendsNoBody(t *testing.T) {
	var gotMethod string
	var gotLen int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotLen = r.ContentLength
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ex := WebhookExecutor{}
	res := ex.Execute(context.Background(), Spec{Kind: KindWebhook, Webhook: &WebhookSpec{URL: srv.URL, Method: "get"}}, map[string]any{"x": 1})
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Error)
	}
	if gotMethod != http.MethodGet || gotLen > 0 {
		t.Fatalf("expected bodyless GET, got %s len=%d", gotMethod, gotLen)
	}
}

func TestWebhookExecutor_UnknownAuthType(t *testing.T) {
	ex := WebhookExecutor{}
	res := ex.Execute(context.Background(), Spec{Kind: KindWebhook, Webhook: &WebhookSpec{
		URL:  "http://example.com",
		Auth: &WebhookAuth{Type: "kerberos"},
	}}, nil)
	if res.Success || !strings.Contains(res.Error, "kerberos") {
		t.Fatalf("expected unknown auth failure, got %+v", res)
	}
}
