package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/folio-org/eureka-ci-app/internal/config"
)

type mockQueue struct {
	enqueueFn func(ctx context.Context, deliveryID, eventType string, payload []byte, receivedAt time.Time) (string, error)
	calls     int
}

func (m *mockQueue) Enqueue(ctx context.Context, deliveryID, eventType string, payload []byte, receivedAt time.Time) (string, error) {
	m.calls++
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, deliveryID, eventType, payload, receivedAt)
	}
	return "message-1", nil
}

type mockSecrets struct {
	secret string
	err    error
}

func (m *mockSecrets) Get(context.Context, string) (string, error) {
	return m.secret, m.err
}

const testSecret = "test-secret"

func testWebhookConfig() config.WebhookConfig {
	cfg := config.Defaults().Webhook
	cfg.SecretRef = "webhook_secret"
	return cfg
}

func newTestServer(queue *mockQueue, secrets *mockSecrets) *Server {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(testWebhookConfig(), queue, secrets, logger)
}

func signedRequest(t *testing.T, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Signature", formatGitHubSignature(computeExpectedSignature(body, testSecret)))
	req.Header.Set("X-Event-Name", "check_suite")
	req.Header.Set("X-Delivery-Id", "delivery-1")
	return req
}

func TestHandleDeliveryValidSignature(t *testing.T) {
	body := []byte(`{"action":"requested","check_suite":{"id":1}}`)

	mq := &mockQueue{
		enqueueFn: func(_ context.Context, deliveryID, eventType string, payload []byte, _ time.Time) (string, error) {
			if deliveryID != "delivery-1" {
				t.Errorf("deliveryID = %q", deliveryID)
			}
			if eventType != "check_suite" {
				t.Errorf("eventType = %q", eventType)
			}
			if !bytes.Equal(payload, body) {
				t.Errorf("payload = %q", payload)
			}
			return "message-42", nil
		},
	}
	server := newTestServer(mq, &mockSecrets{secret: testSecret})

	rec := httptest.NewRecorder()
	server.handleDelivery(rec, signedRequest(t, body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp AcceptedResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "queued" || resp.MessageID != "message-42" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestHandleDeliveryMissingSignature(t *testing.T) {
	mq := &mockQueue{}
	server := newTestServer(mq, &mockSecrets{secret: testSecret})

	req := signedRequest(t, []byte(`{"action":"requested"}`))
	req.Header.Del("X-Event-Signature")
	rec := httptest.NewRecorder()
	server.handleDelivery(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if mq.calls != 0 {
		t.Fatal("unsigned delivery must not be enqueued")
	}
}

func TestHandleDeliveryInvalidSignature(t *testing.T) {
	mq := &mockQueue{}
	server := newTestServer(mq, &mockSecrets{secret: testSecret})

	req := signedRequest(t, []byte(`{"action":"requested"}`))
	req.Header.Set("X-Event-Signature", formatGitHubSignature(computeExpectedSignature([]byte("other body"), testSecret)))
	rec := httptest.NewRecorder()
	server.handleDelivery(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if mq.calls != 0 {
		t.Fatal("delivery with bad signature must not be enqueued")
	}
}

func TestHandleDeliveryWrongContentType(t *testing.T) {
	server := newTestServer(&mockQueue{}, &mockSecrets{secret: testSecret})

	req := signedRequest(t, []byte(`{"action":"requested"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	server.handleDelivery(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rec.Code)
	}
}

func TestHandleDeliveryOversizedBody(t *testing.T) {
	mq := &mockQueue{}
	server := newTestServer(mq, &mockSecrets{secret: testSecret})
	server.config.MaxBodySize = 16

	rec := httptest.NewRecorder()
	server.handleDelivery(rec, signedRequest(t, bytes.Repeat([]byte("a"), 64)))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestHandleDeliverySecretUnavailable(t *testing.T) {
	mq := &mockQueue{}
	server := newTestServer(mq, &mockSecrets{err: errors.New("store down")})

	rec := httptest.NewRecorder()
	server.handleDelivery(rec, signedRequest(t, []byte(`{"action":"requested"}`)))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if mq.calls != 0 {
		t.Fatal("delivery must not be enqueued when the secret is unavailable")
	}
}

func TestHandleDeliveryEnqueueFailure(t *testing.T) {
	mq := &mockQueue{
		enqueueFn: func(context.Context, string, string, []byte, time.Time) (string, error) {
			return "", errors.New("disk full")
		},
	}
	server := newTestServer(mq, &mockSecrets{secret: testSecret})

	rec := httptest.NewRecorder()
	server.handleDelivery(rec, signedRequest(t, []byte(`{"action":"requested"}`)))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHandleDeliveryMissingDeliveryID(t *testing.T) {
	server := newTestServer(&mockQueue{}, &mockSecrets{secret: testSecret})

	req := signedRequest(t, []byte(`{"action":"requested"}`))
	req.Header.Del("X-Delivery-Id")
	rec := httptest.NewRecorder()
	server.handleDelivery(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleDeliveryIgnoresUnrelatedEvents(t *testing.T) {
	cases := []struct {
		name      string
		eventType string
		body      string
	}{
		{"other event", "push", `{"action":"requested"}`},
		{"completed action", "check_suite", `{"action":"completed"}`},
		{"malformed payload", "check_suite", `not json`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mq := &mockQueue{}
			server := newTestServer(mq, &mockSecrets{secret: testSecret})

			req := signedRequest(t, []byte(tc.body))
			req.Header.Set("X-Event-Signature", formatGitHubSignature(computeExpectedSignature([]byte(tc.body), testSecret)))
			req.Header.Set("X-Event-Name", tc.eventType)
			rec := httptest.NewRecorder()
			server.handleDelivery(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			var resp AcceptedResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Status != "ignored" {
				t.Fatalf("status = %q, want ignored", resp.Status)
			}
			if mq.calls != 0 {
				t.Fatal("ignored delivery must not be enqueued")
			}
		})
	}
}
