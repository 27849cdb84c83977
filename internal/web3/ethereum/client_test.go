package ethereum

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"

	xerrors "SignalProof-Chain/internal/errors"
	"SignalProof-Chain/internal/web3"
)

func TestConvertProofMatchesSlotsByPosition(t *testing.T) {
	t.Parallel()

	slots := []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")}
	res, err := convertProof(&gethclient.AccountResult{
		Address:      common.HexToAddress("0x01"),
		AccountProof: []string{"0xc0", "0xc1"},
		StorageProof: []gethclient.StorageResult{
			{Key: "0x1", Value: big.NewInt(1), Proof: []string{"0xaa"}},
			{Key: "0x2", Value: nil, Proof: []string{}},
		},
	}, slots)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(res.AccountProof) != 2 || res.AccountProof[1][0] != 0xc1 {
		t.Fatalf("unexpected account proof %x", res.AccountProof)
	}
	first, ok := res.Storage[slots[0]]
	if !ok || first.Value != common.BigToHash(big.NewInt(1)) || len(first.Proof) != 1 {
		t.Fatalf("unexpected first storage entry %+v", first)
	}
	second, ok := res.Storage[slots[1]]
	if !ok || second.Value != (common.Hash{}) {
		t.Fatalf("unexpected second storage entry %+v", second)
	}
}

func TestConvertProofRejectsForeignKeys(t *testing.T) {
	t.Parallel()

	slots := []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")}
	_, err := convertProof(&gethclient.AccountResult{
		AccountProof: []string{"0xc0"},
		StorageProof: []gethclient.StorageResult{
			{Key: "0x2", Value: big.NewInt(2), Proof: []string{"0xbb"}},
			{Key: "0x1", Value: big.NewInt(1), Proof: []string{"0xaa"}},
		},
	}, slots)
	if !xerrors.HasCode(err, xerrors.CodeProviderUnavailable) {
		t.Fatalf("expected provider unavailable for reordered keys, got %v", err)
	}
	var coded *xerrors.Error
	if !errors.As(err, &coded) || coded.Metadata()["slot"] != slots[0].Hex() {
		t.Fatalf("expected error naming slot %s, got %v", slots[0].Hex(), err)
	}
}

func TestConvertProofRejectsMalformedNodes(t *testing.T) {
	t.Parallel()

	_, err := convertProof(&gethclient.AccountResult{AccountProof: []string{"not-hex"}}, nil)
	if !xerrors.HasCode(err, xerrors.CodeProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
	_, err = convertProof(nil, nil)
	if !xerrors.HasCode(err, xerrors.CodeProviderUnavailable) {
		t.Fatalf("expected provider unavailable for nil result, got %v", err)
	}
}

var _ web3.Client = (*Client)(nil)
