package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "SignalProof-Chain/internal/errors"
	"SignalProof-Chain/internal/proofs"
)

type failingProducer struct{}

func (failingProducer) Publish(context.Context, string) error { return errors.New("broker offline") }
func (failingProducer) Close() error                          { return nil }

func TestServiceSubmitValidatesKeys(t *testing.T) {
	t.Parallel()

	service := NewService(NewMemoryStore(), NewMemoryQueue(8), 3)
	ctx := context.Background()

	cases := []struct {
		name  string
		req   Request
		field string
	}{
		{"missing account", Request{Scheme: "v1", Keys: []Key{{Sender: testSender}}}, "account"},
		{"no keys", Request{Account: testAccount, Scheme: "v1"}, "keys"},
		{"unknown scheme", Request{Account: testAccount, Scheme: "v9", Keys: []Key{{Sender: testSender}}}, "scheme"},
		{"v4 without chain id", Request{Account: testAccount, Scheme: "v4", Keys: []Key{{Sender: testSender, Namespace: "generic-signal"}}}, "chain_id"},
		{"v3 without namespace", Request{Account: testAccount, Scheme: "v3", Keys: []Key{{Sender: testSender}}}, "namespace"},
		{"bad chain id", Request{Account: testAccount, Scheme: "v4", Keys: []Key{{Sender: testSender, ChainID: "one", Namespace: "generic-signal"}}}, "chain_id"},
		{"bad namespace", Request{Account: testAccount, Scheme: "v3", Keys: []Key{{Sender: testSender, Namespace: "withdrawal"}}}, "namespace"},
	}
	for _, tc := range cases {
		_, err := service.Submit(ctx, tc.req)
		if !xerrors.HasCode(err, xerrors.CodeInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", tc.name, err)
		}
		e, _ := xerrors.From(err)
		if field, _ := e.Lookup("field"); field != tc.field {
			t.Fatalf("%s: expected field %q, got %q (%v)", tc.name, tc.field, field, err)
		}
	}
}

func TestServiceSubmitIsIdempotentByID(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	service := NewService(store, queue, 3)
	ctx := context.Background()

	req := testRequest(1)
	req.ID = "deposit-batch-1"
	req.Scheme = "V2"
	first, err := service.Submit(ctx, req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if first.Scheme != "v2" || first.Status != StatusPending || first.MaxRetries != 3 {
		t.Fatalf("unexpected job %+v", first)
	}
	second, err := service.Submit(ctx, req)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same job, got %s", second.ID)
	}
	stats, err := service.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 1 || stats.Pending != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestServiceSubmitAssignsUUID(t *testing.T) {
	t.Parallel()

	service := NewService(NewMemoryStore(), NewMemoryQueue(8), 0)
	job, err := service.Submit(context.Background(), testRequest(2))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(job.ID) != 36 {
		t.Fatalf("expected uuid id, got %q", job.ID)
	}
}

func TestServiceSubmitMarksPublishFailure(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	service := NewService(store, failingProducer{}, 3)
	req := testRequest(3)
	req.ID = "unpublished"

	_, err := service.Submit(context.Background(), req)
	if !xerrors.HasCode(err, CodeJobPublish) {
		t.Fatalf("expected publish failure, got %v", err)
	}
	job, err := store.Get(context.Background(), "unpublished")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != StatusFailed || job.ErrorCode != string(CodeJobPublish) {
		t.Fatalf("unexpected job state %s/%s", job.Status, job.ErrorCode)
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	job := &Job{ID: "j1", Account: testAccount, Scheme: "v1", Keys: []Key{{Sender: testSender}}, Status: StatusPending, MaxRetries: 2}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, job); !errors.Is(err, ErrJobConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	claimed, err := store.Claim(ctx, "j1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed job %+v", claimed)
	}
	if _, err := store.Claim(ctx, "j1"); !errors.Is(err, ErrJobConflict) {
		t.Fatalf("expected conflict while running, got %v", err)
	}

	if err := store.MarkFailed(ctx, "j1", xerrors.CodeProviderUnavailable, "timeout", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "j1"); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if err := store.MarkFailed(ctx, "j1", xerrors.CodeProviderUnavailable, "timeout", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "j1"); !errors.Is(err, ErrJobExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}

	proof := proofs.SignalProof{BlockNumber: 1}
	if err := store.MarkSucceeded(ctx, "j1", []proofs.SignalProof{proof}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	got, err := store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusSucceeded || got.LastError != "" || len(got.Proofs) != 1 {
		t.Fatalf("unexpected stored job %+v", got)
	}
	if _, err := store.Claim(ctx, "j1"); !errors.Is(err, ErrJobCompleted) {
		t.Fatalf("expected completed, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreListFiltersAndOrders(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		tick := int64(100 + i)
		store.now = func() time.Time { return time.Unix(tick, 0) }
		if err := store.Create(ctx, &Job{ID: id, Account: common.Address{1}, Status: StatusPending, MaxRetries: 1}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	store.now = func() time.Time { return time.Unix(200, 0) }
	if err := store.MarkFailed(ctx, "b", xerrors.CodeRootMismatch, "bad root", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	all, err := store.List(ctx, BuildListOptions())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "b" || all[1].ID != "c" || all[2].ID != "a" {
		t.Fatalf("unexpected order %v", ids(all))
	}

	failed, err := store.List(ctx, BuildListOptions(WithStatuses(StatusFailed, "bogus")))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "b" {
		t.Fatalf("unexpected failed list %v", ids(failed))
	}

	limited, err := store.List(ctx, BuildListOptions(WithLimit(1)))
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 job, got %d", len(limited))
	}

	stats, err := store.Stats(ctx, BuildListOptions())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Failed != 1 || stats.Pending != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func ids(jobs []*Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}
