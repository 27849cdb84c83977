package proofs

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// fakeChain is an in-memory StateProvider. Block n's state root is the hash
// of its first account proof node, so honest answers always line up.
type fakeChain struct {
	mu sync.Mutex

	head         uint64
	advanceEvery int
	proofCalls   int

	accounts map[common.Address]bool

	lieAboutRoot bool
	dropSlots    bool
	extraSlot    *common.Hash
	headerErr    error
	proofErr     error
}

func newFakeChain(accounts ...common.Address) *fakeChain {
	known := make(map[common.Address]bool, len(accounts))
	for _, a := range accounts {
		known[a] = true
	}
	return &fakeChain{head: 100, accounts: known}
}

func stateNode(n uint64) []byte { return []byte(fmt.Sprintf("state-root-node-%d", n)) }

func blockHash(n uint64) common.Hash { return crypto.Keccak256Hash([]byte(fmt.Sprintf("block-%d", n))) }

func (f *fakeChain) LatestHeader(ctx context.Context) (Header, error) {
	if err := ctx.Err(); err != nil {
		return Header{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.headerErr != nil {
		return Header{}, f.headerErr
	}
	root := crypto.Keccak256Hash(stateNode(f.head))
	if f.lieAboutRoot {
		root = crypto.Keccak256Hash([]byte("somewhere else"))
	}
	return Header{Number: f.head, BlockHash: blockHash(f.head), StateRoot: root}, nil
}

func (f *fakeChain) GetProof(ctx context.Context, account common.Address, slots []common.Hash) (*AccountResult, error) {
	f.mu.Lock()
	head := f.head
	f.mu.Unlock()
	return f.GetProofAt(ctx, account, slots, head)
}

func (f *fakeChain) GetProofAt(ctx context.Context, account common.Address, slots []common.Hash, blockNumber uint64) (*AccountResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.proofErr != nil {
		return nil, f.proofErr
	}
	f.proofCalls++
	if f.advanceEvery > 0 && f.proofCalls%f.advanceEvery == 0 {
		defer func() { f.head++ }()
	}

	res := &AccountResult{
		Address:      account,
		AccountProof: [][]byte{stateNode(blockNumber), []byte("account-branch"), []byte("account-leaf")},
		Storage:      map[common.Hash]StorageResult{},
	}
	if !f.accounts[account] {
		res.CodeHash = types.EmptyCodeHash
		res.StorageHash = types.EmptyRootHash
		res.Balance = new(big.Int)
		return res, nil
	}
	res.Nonce = 1
	res.CodeHash = crypto.Keccak256Hash([]byte("signal-service-code"))
	res.StorageHash = crypto.Keccak256Hash([]byte("storage-root"))
	if f.dropSlots {
		return res, nil
	}
	keys := slots
	if f.extraSlot != nil {
		keys = append(append([]common.Hash(nil), slots...), *f.extraSlot)
	}
	for _, k := range keys {
		res.Storage[k] = StorageResult{
			Key:   k,
			Value: common.BigToHash(common.Big1),
			Proof: [][]byte{[]byte("storage-branch"), append([]byte("storage-leaf-"), k.Bytes()...)},
		}
	}
	return res, nil
}

// unpinned hides GetProofAt so the concurrent path is exercised.
type unpinned struct{ c *fakeChain }

func (u unpinned) LatestHeader(ctx context.Context) (Header, error) { return u.c.LatestHeader(ctx) }

func (u unpinned) GetProof(ctx context.Context, account common.Address, slots []common.Hash) (*AccountResult, error) {
	return u.c.GetProof(ctx, account, slots)
}

type recordingObserver struct {
	mu      sync.Mutex
	proofs  []string
	batches []string
}

func (r *recordingObserver) ObserveProof(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proofs = append(r.proofs, outcome)
}

func (r *recordingObserver) ObserveBatch(outcome string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, outcome)
}
