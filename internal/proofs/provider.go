package proofs

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Header is the part of a block header a proof is anchored to.
type Header struct {
	Number    uint64
	BlockHash common.Hash
	StateRoot common.Hash
}

// StorageResult is the proof of one storage key.
type StorageResult struct {
	Key   common.Hash
	Value common.Hash
	Proof [][]byte
}

// AccountResult is an account proof plus proofs for the requested storage
// keys. Proof nodes are RLP-encoded trie nodes, root first.
type AccountResult struct {
	Address      common.Address
	Nonce        uint64
	Balance      *big.Int
	CodeHash     common.Hash
	StorageHash  common.Hash
	AccountProof [][]byte
	Storage      map[common.Hash]StorageResult
}

// Empty reports whether the proof describes an account with no state.
func (r *AccountResult) Empty() bool {
	if r == nil {
		return true
	}
	noBalance := r.Balance == nil || r.Balance.Sign() == 0
	noCode := r.CodeHash == types.EmptyCodeHash || r.CodeHash == (common.Hash{})
	noStorage := r.StorageHash == types.EmptyRootHash || r.StorageHash == (common.Hash{})
	return r.Nonce == 0 && noBalance && noCode && noStorage
}

// StateProvider answers the two chain queries proof assembly needs.
// Implementations should report failures as ProviderUnavailable or
// AccountNotFound coded errors; anything else is treated as unavailability.
type StateProvider interface {
	LatestHeader(ctx context.Context) (Header, error)
	GetProof(ctx context.Context, account common.Address, slots []common.Hash) (*AccountResult, error)
}

// PinnedStateProvider can answer proof queries against a specific block,
// letting the header and the proof be read from one snapshot.
type PinnedStateProvider interface {
	StateProvider
	GetProofAt(ctx context.Context, account common.Address, slots []common.Hash, blockNumber uint64) (*AccountResult, error)
}
