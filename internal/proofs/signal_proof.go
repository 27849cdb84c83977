package proofs

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"SignalProof-Chain/internal/slot"
)

// SignalProof is the verifier-facing artifact for one signal slot at one
// block. Node byte strings are exactly what the provider returned.
type SignalProof struct {
	BlockNumber  uint64           `json:"blockNumber"`
	BlockHash    common.Hash      `json:"blockHash"`
	StateRoot    common.Hash      `json:"stateRoot"`
	Account      common.Address   `json:"account"`
	Slot         slot.StorageSlot `json:"slot"`
	Value        common.Hash      `json:"value"`
	StorageRoot  common.Hash      `json:"storageRoot"`
	AccountProof []hexutil.Bytes  `json:"accountProof"`
	StorageProof []hexutil.Bytes  `json:"storageProof"`
}

// SameBlock reports whether both proofs are anchored to the same block.
func (p SignalProof) SameBlock(other SignalProof) bool {
	return p.BlockHash == other.BlockHash && p.StateRoot == other.StateRoot
}

// Recorded reports whether the slot held a non-zero value at proof time.
func (p SignalProof) Recorded() bool {
	return p.Value != (common.Hash{})
}

// Clone returns a deep copy.
func (p SignalProof) Clone() SignalProof {
	out := p
	out.AccountProof = copyNodes(p.AccountProof)
	out.StorageProof = copyNodes(p.StorageProof)
	return out
}

func copyNodes[T ~[]byte](nodes []T) []hexutil.Bytes {
	out := make([]hexutil.Bytes, len(nodes))
	for i, n := range nodes {
		out[i] = common.CopyBytes([]byte(n))
	}
	return out
}
