package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"SignalProof-Chain/internal/auth"
	"SignalProof-Chain/internal/job"
	"SignalProof-Chain/internal/observability/metrics"
	"SignalProof-Chain/internal/proofs"
	"SignalProof-Chain/internal/slot"
)

var (
	testAccount = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	testSender  = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	testSignal  = common.HexToHash("0x0000000000000000000000000000000000000000000000000000000000000001")
)

type nopQueue struct{ published []string }

func (q *nopQueue) Publish(_ context.Context, id string) error {
	q.published = append(q.published, id)
	return nil
}

func (q *nopQueue) Close() error { return nil }

func newTestServer(t *testing.T) (*Server, *job.MemoryStore, *nopQueue) {
	t.Helper()
	store := job.NewMemoryStore()
	queue := &nopQueue{}
	svc := job.NewService(store, queue, 3)
	return NewServer(":0", svc, WithMetrics(metrics.New(false), "/metrics")), store, queue
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Error
}

func TestDeriveSlots(t *testing.T) {
	server, _, _ := newTestServer(t)
	h := server.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/slots", map[string]any{
		"scheme": "v4",
		"keys": []map[string]any{{
			"signal":    testSignal,
			"sender":    testSender,
			"chain_id":  "1337",
			"namespace": "generic-signal",
		}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var resp deriveResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	key, err := job.Key{Signal: testSignal, Sender: testSender, ChainID: "1337", Namespace: "generic-signal"}.SignalKey()
	if err != nil {
		t.Fatalf("signal key: %v", err)
	}
	want, err := slot.Derive(key, slot.SchemeV4)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if len(resp.Slots) != 1 || resp.Slots[0].Slot != want {
		t.Fatalf("unexpected slots %+v, want %s", resp.Slots, want)
	}
	if !resp.Slots[0].Slot.Aligned() {
		t.Fatalf("derived slot must be aligned")
	}
}

func TestDeriveSlotsRejectsMissingField(t *testing.T) {
	server, _, _ := newTestServer(t)

	rec := do(t, server.Handler(), http.MethodPost, "/api/v1/slots", map[string]any{
		"scheme": "v4",
		"keys":   []map[string]any{{"signal": testSignal, "sender": testSender}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	payload := decodeError(t, rec)
	if payload.Code != "INVALID_INPUT" || payload.Metadata["field"] != string(slot.FieldChainID) {
		t.Fatalf("unexpected error payload %+v", payload)
	}
}

func TestDeriveSlotsRejectsUnknownScheme(t *testing.T) {
	server, _, _ := newTestServer(t)
	rec := do(t, server.Handler(), http.MethodPost, "/api/v1/slots", map[string]any{"scheme": "v9"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestBaseSlot(t *testing.T) {
	server, _, _ := newTestServer(t)
	h := server.Handler()

	text := do(t, h, http.MethodPost, "/api/v1/base-slot", map[string]string{"namespace": "generic-signal"})
	hex := do(t, h, http.MethodPost, "/api/v1/base-slot", map[string]string{"namespace_hex": "0x67656e657269632d7369676e616c"})
	if text.Code != http.StatusOK || hex.Code != http.StatusOK {
		t.Fatalf("unexpected status %d/%d", text.Code, hex.Code)
	}
	var a, b baseSlotResponse
	if err := json.Unmarshal(text.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal(hex.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.Slot != b.Slot || a.Slot != slot.BaseSlot([]byte("generic-signal")) {
		t.Fatalf("base slots differ: %s vs %s", a.Slot, b.Slot)
	}

	bad := do(t, h, http.MethodPost, "/api/v1/base-slot", map[string]string{"namespace_hex": "0xzz"})
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad hex, got %d", bad.Code)
	}
}

func TestSubmitAndFetchProofJob(t *testing.T) {
	server, store, queue := newTestServer(t)
	h := server.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/proofs", job.Request{
		ID:      "job-1",
		Account: testAccount,
		Scheme:  "v2",
		Keys:    []job.Key{{Signal: testSignal, Sender: testSender}},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if len(queue.published) != 1 || queue.published[0] != "job-1" {
		t.Fatalf("job not published: %v", queue.published)
	}

	result := []proofs.SignalProof{{BlockNumber: 9, Account: testAccount}}
	if _, err := store.Claim(context.Background(), "job-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkSucceeded(context.Background(), "job-1", result); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	detail := do(t, h, http.MethodGet, "/api/v1/proofs/job-1", nil)
	if detail.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", detail.Code)
	}
	var got job.Job
	if err := json.Unmarshal(detail.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if got.Status != job.StatusSucceeded || len(got.Proofs) != 1 || got.Proofs[0].BlockNumber != 9 {
		t.Fatalf("unexpected job %+v", got)
	}
}

func TestSubmitValidation(t *testing.T) {
	server, _, _ := newTestServer(t)
	rec := do(t, server.Handler(), http.MethodPost, "/api/v1/proofs", job.Request{Scheme: "v2"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if payload := decodeError(t, rec); payload.Metadata["field"] != "account" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestListProofJobs(t *testing.T) {
	server, store, _ := newTestServer(t)
	h := server.Handler()
	for _, id := range []string{"a", "b", "c"} {
		rec := do(t, h, http.MethodPost, "/api/v1/proofs", job.Request{
			ID: id, Account: testAccount, Scheme: "v1",
			Keys: []job.Key{{Signal: testSignal, Sender: testSender}},
		})
		if rec.Code != http.StatusAccepted {
			t.Fatalf("submit %s: %d", id, rec.Code)
		}
	}
	if _, err := store.Claim(context.Background(), "b"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	rec := do(t, h, http.MethodGet, "/api/v1/proofs?status=pending&limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var resp listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Jobs) != 2 || resp.Stats.Pending != 2 || resp.Stats.Total != 2 {
		t.Fatalf("unexpected list %+v", resp)
	}

	bad := do(t, h, http.MethodGet, "/api/v1/proofs?status=unknown", nil)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", bad.Code)
	}
}

func TestProofDetailErrors(t *testing.T) {
	server, _, _ := newTestServer(t)
	h := server.Handler()

	t.Run("invalid method", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/proofs/job-1", nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/proofs/", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/proofs/missing", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
		if payload := decodeError(t, rec); payload.Code != "JOB_NOT_FOUND" {
			t.Fatalf("unexpected payload %+v", payload)
		}
	})
}

func TestMetricsEndpointRecordsRequests(t *testing.T) {
	server, _, _ := newTestServer(t)
	h := server.Handler()

	do(t, h, http.MethodGet, "/healthz", nil)
	rec := do(t, h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `signalproof_http_requests_total{code="200",handler="/healthz",method="GET"} 1`) {
		t.Fatalf("health request not recorded:\n%s", rec.Body.String())
	}
}

func TestAuthGuardsAPIRoutes(t *testing.T) {
	svc, err := auth.NewService(auth.Config{
		Mode: auth.ModeToken,
		Tokens: []auth.TokenConfig{{
			Name:        "reader",
			SHA256:      auth.HashToken("reader-token"),
			Permissions: []string{auth.PermissionReadProofs, auth.PermissionDeriveSlots},
		}},
	})
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	server := NewServer(":0", job.NewService(job.NewMemoryStore(), &nopQueue{}, 3), WithAuth(svc))
	h := server.Handler()

	request := func(method, target, token string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			_ = json.NewEncoder(&buf).Encode(body)
		}
		req := httptest.NewRequest(method, target, &buf)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := request(http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("health should stay open, got %d", rec.Code)
	}

	rec := request(http.MethodGet, "/api/v1/proofs", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if payload := decodeError(t, rec); payload.Code != string(auth.CodeUnauthorized) {
		t.Fatalf("unexpected payload %+v", payload)
	}

	if rec := request(http.MethodGet, "/api/v1/proofs", "reader-token", nil); rec.Code != http.StatusOK {
		t.Fatalf("reader should list, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = request(http.MethodPost, "/api/v1/proofs", "reader-token", map[string]any{
		"account": testAccount,
		"scheme":  "v1",
		"keys":    []map[string]any{{"signal": testSignal, "sender": testSender}},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if payload := decodeError(t, rec); payload.Metadata["permission"] != auth.PermissionSubmitProofs {
		t.Fatalf("unexpected payload %+v", payload)
	}
}
