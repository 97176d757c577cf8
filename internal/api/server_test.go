package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/folio-org/eureka-ci-app/internal/config"
	"github.com/folio-org/eureka-ci-app/internal/queue"
	"github.com/folio-org/eureka-ci-app/internal/state"
)

type fakeQueue struct {
	stats    queue.Stats
	letters  []queue.DeadLetter
	requeued []string
}

func (f *fakeQueue) Depth(context.Context) (queue.Stats, error) {
	return f.stats, nil
}

func (f *fakeQueue) ListDeadLetters(_ context.Context, limit int) ([]queue.DeadLetter, error) {
	if limit < len(f.letters) {
		return f.letters[:limit], nil
	}
	return f.letters, nil
}

func (f *fakeQueue) Requeue(_ context.Context, id string) error {
	for _, d := range f.letters {
		if d.ID == id {
			f.requeued = append(f.requeued, id)
			return nil
		}
	}
	return fmt.Errorf("requeue %s: %w", id, queue.ErrMessageNotFound)
}

type fakeCheckRuns struct {
	records []state.CheckRunRecord
}

func (f *fakeCheckRuns) ListByDelivery(_ context.Context, deliveryID string) ([]state.CheckRunRecord, error) {
	var out []state.CheckRunRecord
	for _, rec := range f.records {
		if rec.DeliveryID == deliveryID {
			out = append(out, rec)
		}
	}
	return out, nil
}

const testAuthKey = "operator-key"

func newTestServer(q *fakeQueue, cr *fakeCheckRuns) *Server {
	cfg := config.APIConfig{Listen: "127.0.0.1:0", AuthKey: testAuthKey}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(cfg, q, cr, logger)
}

func doRequest(s *Server, method, path, authKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authKey != "" {
		req.Header.Set("Authorization", "Bearer "+authKey)
	}
	rec := httptest.NewRecorder()
	s.setupRoutes().ServeHTTP(rec, req)
	return rec
}

func TestHealthzIsUnauthenticated(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeQueue{}, &fakeCheckRuns{})
	rec := doRequest(s, "GET", "/healthz", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeQueue{}, &fakeCheckRuns{})

	for _, path := range []string{"/api/v1/queue/stats", "/api/v1/deadletters"} {
		if rec := doRequest(s, "GET", path, ""); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s without key: status = %d, want 401", path, rec.Code)
		}
		if rec := doRequest(s, "GET", path, "wrong-key"); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s with wrong key: status = %d, want 401", path, rec.Code)
		}
	}
}

func TestQueueStats(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeQueue{stats: queue.Stats{Ready: 3, InFlight: 1, DeadLetter: 2}}, &fakeCheckRuns{})
	rec := doRequest(s, "GET", "/api/v1/queue/stats", testAuthKey)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var stats queue.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Ready != 3 || stats.InFlight != 1 || stats.DeadLetter != 2 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestListDeadLettersOmitsPayload(t *testing.T) {
	t.Parallel()

	q := &fakeQueue{letters: []queue.DeadLetter{{
		ID:             "dl-1",
		DeliveryID:     "delivery-1",
		EventType:      "check_suite",
		Payload:        []byte(`{"secret":"stuff"}`),
		FailureReason:  "delivery limit exceeded",
		Attempts:       4,
		ReceivedAt:     time.Now(),
		DeadLetteredAt: time.Now(),
	}}}
	s := newTestServer(q, &fakeCheckRuns{})
	rec := doRequest(s, "GET", "/api/v1/deadletters", testAuthKey)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !json.Valid([]byte(body)) {
		t.Fatalf("invalid json: %s", body)
	}
	var resp struct {
		DeadLetters []map[string]any `json:"dead_letters"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.DeadLetters) != 1 {
		t.Fatalf("dead_letters = %d, want 1", len(resp.DeadLetters))
	}
	if _, ok := resp.DeadLetters[0]["payload"]; ok {
		t.Fatal("payload must not appear in dead letter listing")
	}
	if resp.DeadLetters[0]["failure_reason"] != "delivery limit exceeded" {
		t.Fatalf("entry = %+v", resp.DeadLetters[0])
	}
}

func TestRequeue(t *testing.T) {
	t.Parallel()

	q := &fakeQueue{letters: []queue.DeadLetter{{ID: "dl-1"}}}
	s := newTestServer(q, &fakeCheckRuns{})

	rec := doRequest(s, "POST", "/api/v1/deadletters/dl-1/requeue", testAuthKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(q.requeued) != 1 || q.requeued[0] != "dl-1" {
		t.Fatalf("requeued = %v", q.requeued)
	}

	rec = doRequest(s, "POST", "/api/v1/deadletters/absent/requeue", testAuthKey)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListCheckRuns(t *testing.T) {
	t.Parallel()

	cr := &fakeCheckRuns{records: []state.CheckRunRecord{
		{DeliveryID: "delivery-1", PRNumber: 42, Repo: "o/r", HeadSHA: "abc", CheckRunID: 100, State: state.StateInProgress},
		{DeliveryID: "delivery-2", PRNumber: 1, Repo: "o/r", HeadSHA: "def", CheckRunID: 200, State: state.StateQueued},
	}}
	s := newTestServer(&fakeQueue{}, cr)

	rec := doRequest(s, "GET", "/api/v1/deliveries/delivery-1/checkruns", testAuthKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		CheckRuns []checkRunView `json:"check_runs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.CheckRuns) != 1 {
		t.Fatalf("check_runs = %d, want 1", len(resp.CheckRuns))
	}
	if resp.CheckRuns[0].CheckRunID != 100 || resp.CheckRuns[0].State != "in_progress" {
		t.Fatalf("check run = %+v", resp.CheckRuns[0])
	}
}

func TestListDeadLettersInvalidLimit(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeQueue{}, &fakeCheckRuns{})
	rec := doRequest(s, "GET", "/api/v1/deadletters?limit=banana", testAuthKey)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
