package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"SignalProof-Chain/internal/proofs"
	"SignalProof-Chain/internal/slot"
	"SignalProof-Chain/pkg/logger"
)

type sendResult struct {
	SignalService common.Address     `json:"signalService"`
	Deployed      bool               `json:"deployed"`
	Sender        common.Address     `json:"sender"`
	Signal        common.Hash        `json:"signal"`
	Transaction   common.Hash        `json:"transaction"`
	Proof         proofs.SignalProof `json:"proof"`
}

// sendFlags collect everything needed to publish a signal and prove it.
type sendFlags struct {
	keys          keyFlags
	signer        signerFlags
	service       serviceFlags
	signal        string
	confirmations int64
}

func (f *sendFlags) register(cmd *cobra.Command) {
	f.keys.register(cmd, slot.TagGenericSignal.String())
	f.signer.register(cmd)
	f.service.register(cmd)
	cmd.Flags().StringVar(&f.signal, "signal", "", "32-byte signal value to send")
	cmd.Flags().Int64Var(&f.confirmations, "confirmations", -1, "blocks to wait on top of the signal's block; -1 uses the chain definition")
	_ = cmd.MarkFlagRequired("signal")
}

func newSendCommand(rootOpts *RootOptions) *cobra.Command {
	var flags sendFlags
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a signal, wait for confirmations and prove it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := rootOpts.context(cmd.Context())
			defer cancel()

			c, err := rootOpts.dial(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer c.close()

			result, err := sendAndProve(ctx, c, &flags)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), rootOpts.Format, result,
				fmt.Sprintf("signal service  %s", result.SignalService.Hex()),
				fmt.Sprintf("transaction     %s", result.Transaction.Hex()),
				fmt.Sprintf("slot            %s", result.Proof.Slot.Hex()),
				fmt.Sprintf("value           %s", result.Proof.Value.Hex()),
				fmt.Sprintf("block           %d %s", result.Proof.BlockNumber, result.Proof.BlockHash.Hex()),
				fmt.Sprintf("state root      %s", result.Proof.StateRoot.Hex()),
			)
		},
	}
	flags.register(cmd)
	return cmd
}

func sendAndProve(ctx context.Context, c *chain, flags *sendFlags) (*sendResult, error) {
	signal, err := parseHash("signal", flags.signal)
	if err != nil {
		return nil, err
	}
	version, err := flags.keys.version()
	if err != nil {
		return nil, err
	}
	auth, err := flags.signer.transactor(ctx, c.client)
	if err != nil {
		return nil, err
	}
	service, deployed, err := flags.service.resolve(ctx, c, auth)
	if err != nil {
		return nil, err
	}

	receipt, err := c.client.SendSignal(ctx, auth, service, signal)
	if err != nil {
		return nil, err
	}
	confirmations := c.confirmations
	if flags.confirmations >= 0 {
		confirmations = uint64(flags.confirmations)
	}
	if err := c.client.WaitForConfirmations(ctx, receipt, confirmations); err != nil {
		return nil, err
	}
	logger.Named("cli").Debug("signal confirmed",
		slog.String("tx", receipt.TxHash.Hex()),
		slog.Uint64("block", receipt.BlockNumber.Uint64()),
		slog.Uint64("confirmations", confirmations),
	)

	key, err := flags.keys.key(ctx, signal, auth.From, nodeChainID(c))
	if err != nil {
		return nil, err
	}
	s, err := slot.Derive(key, version)
	if err != nil {
		return nil, err
	}
	result, err := prove(ctx, c, []proofs.Target{{Account: service, Slot: s}})
	if err != nil {
		return nil, err
	}
	return &sendResult{
		SignalService: service,
		Deployed:      deployed,
		Sender:        auth.From,
		Signal:        signal,
		Transaction:   receipt.TxHash,
		Proof:         result[0],
	}, nil
}
