package signalproof

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"SignalProof-Chain/internal/api"
	"SignalProof-Chain/internal/auth"
	"SignalProof-Chain/internal/job"
	"SignalProof-Chain/internal/proofs"
	"SignalProof-Chain/internal/slot"
)

var (
	testAccount = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	testSender  = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	testSignal  = common.HexToHash("0x01")
)

type nopQueue struct{}

func (nopQueue) Publish(context.Context, string) error { return nil }
func (nopQueue) Close() error                          { return nil }

func newTestClient(t *testing.T) (*Client, *job.MemoryStore) {
	t.Helper()
	store := job.NewMemoryStore()
	server := api.NewServer(":0", job.NewService(store, nopQueue{}, 3))
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, store
}

func TestDeriveSlotsMatchesLocalDerivation(t *testing.T) {
	client, _ := newTestClient(t)
	key := Key{Signal: testSignal, Sender: testSender, ChainID: "1337", Namespace: slot.TagGenericSignal.String()}

	slots, err := client.DeriveSlots(context.Background(), "v4", []Key{key})
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("expected one slot, got %d", len(slots))
	}
	local, err := job.Key{Signal: key.Signal, Sender: key.Sender, ChainID: key.ChainID, Namespace: key.Namespace}.SignalKey()
	if err != nil {
		t.Fatalf("local key: %v", err)
	}
	want, err := slot.Derive(local, slot.SchemeV4)
	if err != nil {
		t.Fatalf("local derive: %v", err)
	}
	if slots[0].Slot != common.Hash(want) {
		t.Fatalf("slot mismatch: got %s want %s", slots[0].Slot.Hex(), want.Hex())
	}
}

func TestDeriveSlotsReturnsAPIError(t *testing.T) {
	client, _ := newTestClient(t)
	_, err := client.DeriveSlots(context.Background(), "v4", []Key{{Signal: testSignal, Sender: testSender}})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != "INVALID_INPUT" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestBaseSlot(t *testing.T) {
	client, _ := newTestClient(t)
	got, err := client.BaseSlot(context.Background(), []byte("example.main"))
	if err != nil {
		t.Fatalf("base slot: %v", err)
	}
	if want := slot.BaseSlot([]byte("example.main")); got != common.Hash(want) {
		t.Fatalf("got %s want %s", got.Hex(), want.Hex())
	}
	if got[31] != 0 {
		t.Fatalf("base slot not aligned: %s", got.Hex())
	}
}

func TestSubmitListAndWait(t *testing.T) {
	client, store := newTestClient(t)
	ctx := context.Background()

	submitted, err := client.SubmitProofJob(ctx, ProofRequest{
		ID:      "job-1",
		Account: testAccount,
		Scheme:  "v2",
		Keys:    []Key{{Signal: testSignal, Sender: testSender}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.ID != "job-1" || submitted.Status != StatusPending || submitted.Done() {
		t.Fatalf("unexpected job: %+v", submitted)
	}

	list, err := client.ListProofJobs(ctx, 10, StatusPending)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Jobs) != 1 || list.Stats.Pending != 1 {
		t.Fatalf("unexpected list: %+v", list)
	}

	if _, err := store.Claim(ctx, "job-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	proof := proofs.SignalProof{BlockNumber: 7, Account: testAccount, Slot: slot.StorageSlot(testSignal)}
	if err := store.MarkSucceeded(ctx, "job-1", []proofs.SignalProof{proof}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	done, err := client.WaitForProofJob(ctx, "job-1", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if done.Status != StatusSucceeded || len(done.Proofs) != 1 || done.Proofs[0].BlockNumber != 7 {
		t.Fatalf("unexpected job: %+v", done)
	}
	if done.Proofs[0].Slot != testSignal {
		t.Fatalf("unexpected slot %s", done.Proofs[0].Slot.Hex())
	}
}

func TestWaitForProofJobHonoursContext(t *testing.T) {
	client, _ := newTestClient(t)
	_, err := client.SubmitProofJob(context.Background(), ProofRequest{
		ID:      "slow",
		Account: testAccount,
		Scheme:  "v1",
		Keys:    []Key{{Signal: testSignal, Sender: testSender}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.WaitForProofJob(ctx, "slow", 10*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestGetProofJobNotFound(t *testing.T) {
	client, _ := newTestClient(t)
	_, err := client.GetProofJob(context.Background(), "missing")

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 APIError, got %v", err)
	}
	if apiErr.Code != "JOB_NOT_FOUND" {
		t.Fatalf("unexpected code %q", apiErr.Code)
	}
}

func TestAccessTokenIsSent(t *testing.T) {
	svc, err := auth.NewService(auth.Config{
		Mode:   auth.ModeToken,
		Tokens: []auth.TokenConfig{{Name: "sdk", SHA256: auth.HashToken("sdk-token"), Permissions: []string{auth.PermissionAll}}},
	})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	server := api.NewServer(":0", job.NewService(job.NewMemoryStore(), nopQueue{}, 3), api.WithAuth(svc))
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	var apiErr *APIError
	if _, err := client.ListProofJobs(context.Background(), 0); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}

	client.SetAccessToken("sdk-token")
	if _, err := client.ListProofJobs(context.Background(), 0); err != nil {
		t.Fatalf("list with token: %v", err)
	}
}
