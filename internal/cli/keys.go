package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"SignalProof-Chain/internal/job"
	"SignalProof-Chain/internal/slot"
)

// keyFlags are the scheme inputs shared by every command that derives a slot.
type keyFlags struct {
	scheme    string
	chainID   string
	namespace string
}

func (k *keyFlags) register(cmd *cobra.Command, defaultNamespace string) {
	cmd.Flags().StringVar(&k.scheme, "scheme", slot.LatestScheme.String(), "slot scheme version (v1..v4)")
	cmd.Flags().StringVar(&k.chainID, "chain-id", "", "chain id for v4 (decimal or 0x hex); defaults to the node's chain id")
	cmd.Flags().StringVar(&k.namespace, "namespace", defaultNamespace, "namespace tag for v3/v4 (generic-signal|bridge-deposit)")
}

func (k *keyFlags) version() (slot.SchemeVersion, error) {
	return slot.ParseSchemeVersion(k.scheme)
}

// key builds the signal key. When the scheme needs a chain id and none was
// given, chainID is consulted.
func (k *keyFlags) key(ctx context.Context, signal common.Hash, sender common.Address, chainID func(context.Context) (*uint256.Int, error)) (slot.SignalKey, error) {
	version, err := k.version()
	if err != nil {
		return slot.SignalKey{}, err
	}
	raw := job.Key{Signal: signal, Sender: sender, ChainID: k.chainID}
	if version.Requires(slot.FieldNamespace) {
		raw.Namespace = k.namespace
	}
	key, err := raw.SignalKey()
	if err != nil {
		return slot.SignalKey{}, err
	}
	if version.Requires(slot.FieldChainID) && key.ChainID == nil && chainID != nil {
		id, err := chainID(ctx)
		if err != nil {
			return slot.SignalKey{}, fmt.Errorf("resolve chain id: %w", err)
		}
		key.ChainID = id
	}
	return key, nil
}

func nodeChainID(c *chain) func(context.Context) (*uint256.Int, error) {
	return func(ctx context.Context) (*uint256.Int, error) {
		id, err := c.client.ChainID(ctx)
		if err != nil {
			return nil, err
		}
		v, overflow := uint256.FromBig(id)
		if overflow {
			return nil, fmt.Errorf("chain id %s overflows 256 bits", id)
		}
		return v, nil
	}
}

func parseHash(name, raw string) (common.Hash, error) {
	raw = strings.TrimSpace(raw)
	b, err := decodeHex(raw)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("--%s must be a 0x-prefixed 32-byte hex word, got %q", name, raw)
	}
	return common.BytesToHash(b), nil
}

func parseAddress(name, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("--%s must be a hex address, got %q", name, raw)
	}
	return common.HexToAddress(raw), nil
}
