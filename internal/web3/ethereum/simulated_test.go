package ethereum_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "SignalProof-Chain/internal/errors"
	"SignalProof-Chain/internal/proofs"
	"SignalProof-Chain/internal/slot"
	"SignalProof-Chain/internal/web3/ethereum"
	"SignalProof-Chain/internal/web3/ethereum/ethtest"
)

// recorderBin deploys a contract that, for any call, stores 1 at the storage
// key given by the first calldata word after the selector.
const recorderBin = "0x6007600c60003960076000f360016004355500"

func newSimulatedChain(t *testing.T) (*ethereum.Client, *bind.TransactOpts) {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, ethtest.ChainID)
	if err != nil {
		t.Fatalf("new transactor: %v", err)
	}
	auth.GasLimit = 1_000_000

	chain := ethtest.NewChain(t, coretypes.GenesisAlloc{
		auth.From: {Balance: big.NewInt(1_000_000_000_000_000_000)},
	})
	return chain.Client, auth
}

func TestClientSendSignalAndProve(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client, auth := newSimulatedChain(t)

	deployment, err := client.DeployContract(ctx, auth, "[]", common.FromHex(recorderBin))
	if err != nil {
		t.Fatalf("deploy recorder: %v", err)
	}
	service := deployment.ContractAddress
	if service == (common.Address{}) {
		t.Fatal("expected contract address to be non-zero")
	}

	signal := crypto.Keccak256Hash([]byte("arbitrary_signal"))
	receipt, err := client.SendSignal(ctx, auth, service, signal)
	if err != nil {
		t.Fatalf("send signal: %v", err)
	}
	if err := client.WaitForConfirmations(ctx, receipt, 2); err != nil {
		t.Fatalf("wait for confirmations: %v", err)
	}

	snapshot, err := client.FetchChainSnapshot(ctx)
	if err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}
	if snapshot.ChainID != "0x539" {
		t.Fatalf("unexpected chain id %s", snapshot.ChainID)
	}

	target := slot.BytesToSlot(signal.Bytes())
	proof, err := proofs.NewAssembler(client).Prove(ctx, service, target)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if proof.Value != common.BigToHash(big.NewInt(1)) {
		t.Fatalf("unexpected slot value %s", proof.Value.Hex())
	}
	if proof.BlockNumber < receipt.BlockNumber.Uint64()+2 {
		t.Fatalf("proof anchored at %d, before confirmations", proof.BlockNumber)
	}
	if len(proof.AccountProof) == 0 || len(proof.StorageProof) == 0 {
		t.Fatalf("expected non-empty proofs, got %d/%d nodes", len(proof.AccountProof), len(proof.StorageProof))
	}
	if crypto.Keccak256Hash(proof.StorageProof[0]) != proof.StorageRoot {
		t.Fatal("storage proof root does not hash to the storage root")
	}
}

func TestClientProvesThroughNodeRPC(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, auth := newSimulatedChain(t)

	header, err := client.LatestHeader(ctx)
	if err != nil {
		t.Fatalf("latest header: %v", err)
	}
	target := common.Hash(slot.BaseSlot([]byte("generic-signal")))
	res, err := client.GetProofAt(ctx, auth.From, []common.Hash{target}, header.Number)
	if err != nil {
		t.Fatalf("get proof: %v", err)
	}
	if res.Address != auth.From || len(res.AccountProof) == 0 {
		t.Fatalf("unexpected account result %+v", res)
	}
	if crypto.Keccak256Hash(res.AccountProof[0]) != header.StateRoot {
		t.Fatal("account proof root does not hash to the header state root")
	}
	if _, ok := res.Storage[target]; !ok {
		t.Fatalf("missing storage entry for %s", target.Hex())
	}
}

func TestClientUnknownAccount(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, _ := newSimulatedChain(t)

	stranger := common.HexToAddress("0x00000000000000000000000000000000deadbeef")
	_, err := proofs.NewAssembler(client).Prove(ctx, stranger, slot.BaseSlot([]byte("generic-signal")))
	if !xerrors.HasCode(err, xerrors.CodeAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
}
