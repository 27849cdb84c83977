package cli

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"SignalProof-Chain/internal/slot"
)

type slotResult struct {
	Scheme    string           `json:"scheme"`
	Namespace hexutil.Bytes    `json:"namespace"`
	Slot      slot.StorageSlot `json:"slot"`
}

func newSlotCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		keys   keyFlags
		signal string
		sender string
	)
	cmd := &cobra.Command{
		Use:   "slot",
		Short: "Derive the storage slot of a signal offline",
		Long: `Derive the namespaced storage slot of (signal, sender) under a scheme
version. v4 requires --chain-id; no node is contacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sig, err := parseHash("signal", signal)
			if err != nil {
				return err
			}
			from, err := parseAddress("sender", sender)
			if err != nil {
				return err
			}
			version, err := keys.version()
			if err != nil {
				return err
			}
			key, err := keys.key(cmd.Context(), sig, from, nil)
			if err != nil {
				return err
			}
			namespace, err := version.Namespace(key)
			if err != nil {
				return err
			}
			derived := slot.BaseSlot(namespace)
			return emit(cmd.OutOrStdout(), rootOpts.Format,
				slotResult{Scheme: version.String(), Namespace: namespace, Slot: derived},
				derived.Hex())
		},
	}
	keys.register(cmd, slot.TagGenericSignal.String())
	cmd.Flags().StringVar(&signal, "signal", "", "32-byte signal value")
	cmd.Flags().StringVar(&sender, "sender", "", "address that sent the signal")
	_ = cmd.MarkFlagRequired("signal")
	_ = cmd.MarkFlagRequired("sender")
	return cmd
}

func newBaseSlotCommand(rootOpts *RootOptions) *cobra.Command {
	var isHex bool
	cmd := &cobra.Command{
		Use:   "base-slot <namespace>",
		Short: "Compute the ERC-7201 base slot of an arbitrary namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			namespace := []byte(args[0])
			if isHex {
				raw := strings.TrimSpace(args[0])
				if !strings.HasPrefix(raw, "0x") {
					raw = "0x" + raw
				}
				decoded, err := hexutil.Decode(raw)
				if err != nil {
					return fmt.Errorf("invalid hex namespace: %w", err)
				}
				namespace = decoded
			}
			derived := slot.BaseSlot(namespace)
			return emit(cmd.OutOrStdout(), rootOpts.Format,
				slotResult{Namespace: namespace, Slot: derived},
				derived.Hex())
		},
	}
	cmd.Flags().BoolVar(&isHex, "hex", false, "treat the namespace as hex bytes instead of UTF-8 text")
	return cmd
}
