package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"SignalProof-Chain/internal/proofs"
	"SignalProof-Chain/internal/slot"
	"SignalProof-Chain/pkg/logger"
)

func newProveCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		keys    keyFlags
		account string
		signals []string
		sender  string
	)
	cmd := &cobra.Command{
		Use:   "prove",
		Short: "Assemble storage proofs for one or more signals",
		Long: `Derive the slot of each --signal sent by --sender, then fetch a proof of
every slot from the node. Several signals are proven against one block.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := rootOpts.context(cmd.Context())
			defer cancel()

			c, err := rootOpts.dial(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer c.close()

			service := c.signalService
			if account != "" {
				if service, err = parseAddress("account", account); err != nil {
					return err
				}
			}
			if service == (common.Address{}) {
				return fmt.Errorf("--account is required when the chain defines no signal service")
			}
			from, err := parseAddress("sender", sender)
			if err != nil {
				return err
			}
			if len(signals) == 0 {
				return fmt.Errorf("at least one --signal is required")
			}

			version, err := keys.version()
			if err != nil {
				return err
			}
			targets := make([]proofs.Target, 0, len(signals))
			for _, raw := range signals {
				sig, err := parseHash("signal", raw)
				if err != nil {
					return err
				}
				key, err := keys.key(ctx, sig, from, nodeChainID(c))
				if err != nil {
					return err
				}
				s, err := slot.Derive(key, version)
				if err != nil {
					return err
				}
				targets = append(targets, proofs.Target{Account: service, Slot: s})
			}

			result, err := prove(ctx, c, targets)
			if err != nil {
				return err
			}
			return emitProofs(cmd.OutOrStdout(), rootOpts.Format, result)
		},
	}
	keys.register(cmd, slot.TagGenericSignal.String())
	cmd.Flags().StringVar(&account, "account", "", "signal service address (defaults to the chain definition)")
	cmd.Flags().StringArrayVar(&signals, "signal", nil, "32-byte signal value; repeat for a same-block batch")
	cmd.Flags().StringVar(&sender, "sender", "", "address that sent the signals")
	_ = cmd.MarkFlagRequired("sender")
	return cmd
}

func prove(ctx context.Context, c *chain, targets []proofs.Target) ([]proofs.SignalProof, error) {
	assembler := proofs.NewAssembler(c.client, proofs.WithLogger(logger.Named("cli")))
	return assembler.ProveBatch(ctx, targets)
}

func emitProofs(w io.Writer, format string, result []proofs.SignalProof) error {
	var lines []string
	for _, p := range result {
		lines = append(lines,
			fmt.Sprintf("slot          %s", p.Slot.Hex()),
			fmt.Sprintf("value         %s", p.Value.Hex()),
			fmt.Sprintf("block         %d %s", p.BlockNumber, p.BlockHash.Hex()),
			fmt.Sprintf("state root    %s", p.StateRoot.Hex()),
			fmt.Sprintf("storage root  %s", p.StorageRoot.Hex()),
			fmt.Sprintf("proof nodes   account=%d storage=%d", len(p.AccountProof), len(p.StorageProof)),
		)
	}
	var v any = result
	if len(result) == 1 {
		v = result[0]
	}
	return emit(w, format, v, lines...)
}
