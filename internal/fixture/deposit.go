package fixture

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	xerrors "SignalProof-Chain/internal/errors"
	"SignalProof-Chain/internal/proofs"
)

// DepositRecipient is the destination-chain address used by every generated
// deposit; it matches _randomAddress("recipient") in the bridge test suite.
var DepositRecipient = common.HexToAddress("0x99A270Be1AA5E97633177041859aEEB9a0670fAa")

var (
	depositAmounts = []uint64{0, 4_000_000_000_000_000_000}
	// Calldata without the 0x prefix:
	// empty, somePayableFunction(1234), somePayableFunction(1235) which
	// reverts, someNonPayableFunction(1234).
	depositCalldata = []string{
		"",
		"9b28f6fb00000000000000000000000000000000000000000000000000000000000004d2",
		"9b28f6fb00000000000000000000000000000000000000000000000000000000000004d3",
		"5932a71200000000000000000000000000000000000000000000000000000000000004d2",
	}
)

// DepositSpec is one bridge deposit to perform and prove.
type DepositSpec struct {
	Recipient common.Address
	Amount    *uint256.Int
	Data      string
}

// CalldataBytes decodes Data.
func (d DepositSpec) CalldataBytes() []byte {
	return common.FromHex(d.Data)
}

// DepositMatrix returns every combination of amount and calldata, amounts
// in the outer loop.
func DepositMatrix() []DepositSpec {
	specs := make([]DepositSpec, 0, len(depositAmounts)*len(depositCalldata))
	for _, amount := range depositAmounts {
		for _, data := range depositCalldata {
			specs = append(specs, DepositSpec{
				Recipient: DepositRecipient,
				Amount:    uint256.NewInt(amount),
				Data:      data,
			})
		}
	}
	return specs
}

// Deposit is a performed deposit together with the proof of its signal.
type Deposit struct {
	Nonce int
	From  common.Address
	ID    common.Hash
	Spec  DepositSpec
	Proof proofs.SignalProof
}

// Deposits describes a batched deposit proof fixture. All proofs must be
// anchored to the same block.
type Deposits struct {
	SignalService common.Address
	Bridge        common.Address
	Deposits      []Deposit
}

type depositView struct {
	SignalService common.Address
	Bridge        common.Address
	Deposits      []Deposit
	BlockNumber   uint64
	BlockHash     common.Hash
	StateRoot     common.Hash
}

// RenderDeposits writes the Solidity fixture for a batch of deposits.
func RenderDeposits(w io.Writer, f Deposits) error {
	if len(f.Deposits) == 0 {
		return xerrors.New(xerrors.CodeInvalidInput, "no deposits to prove", xerrors.WithField("deposits"))
	}
	first := f.Deposits[0].Proof
	for i, d := range f.Deposits {
		if !d.Proof.SameBlock(first) {
			return xerrors.New(xerrors.CodeInconsistentBatch,
				fmt.Sprintf("deposit %d proven at block %s, expected %s", i, d.Proof.BlockHash.Hex(), first.BlockHash.Hex()),
				xerrors.WithMetadata("index", fmt.Sprint(i)), xerrors.WithSlot(d.Proof.Slot))
		}
		if d.Spec.Amount == nil {
			return xerrors.New(xerrors.CodeInvalidInput, fmt.Sprintf("deposit %d has no amount", i), xerrors.WithField("amount"))
		}
	}
	return templates.ExecuteTemplate(w, "deposit_proof.sol.tmpl", depositView{
		SignalService: f.SignalService,
		Bridge:        f.Bridge,
		Deposits:      f.Deposits,
		BlockNumber:   first.BlockNumber,
		BlockHash:     first.BlockHash,
		StateRoot:     first.StateRoot,
	})
}
