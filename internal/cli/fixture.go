package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"SignalProof-Chain/internal/fixture"
	"SignalProof-Chain/internal/proofs"
	"SignalProof-Chain/internal/slot"
	"SignalProof-Chain/internal/web3"
)

func newFixtureCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Render Solidity test fixtures from live proofs",
	}
	cmd.AddCommand(newSignalFixtureCommand(rootOpts))
	cmd.AddCommand(newDepositFixtureCommand(rootOpts))
	return cmd
}

func newSignalFixtureCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		flags sendFlags
		out   string
	)
	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Send a signal and render a fixture with its proof",
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
			return writeOutput(cmd.OutOrStdout(), out, func(w io.Writer) error {
				return fixture.RenderSignal(w, fixture.Signal{
					SignalService: result.SignalService,
					Sender:        result.Sender,
					Signal:        result.Signal,
					Proof:         result.Proof,
				})
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&out, "output", "o", "", "write the fixture to a file instead of stdout")
	return cmd
}

type depositFlags struct {
	keys           keyFlags
	signer         signerFlags
	service        serviceFlags
	bridge         string
	bridgeArtifact string
	bridgeArgs     []string
	out            string
}

func newDepositFixtureCommand(rootOpts *RootOptions) *cobra.Command {
	var flags depositFlags
	cmd := &cobra.Command{
		Use:   "deposits",
		Short: "Perform the deposit matrix and render a same-block fixture",
		Long: `Perform every deposit of the matrix (amounts 0 and 4 ether, four calldata
variants, fixed recipient) through the bridge, derive each deposit's signal
slot with the bridge as sender and prove all of them at one block.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := rootOpts.context(cmd.Context())
			defer cancel()

			c, err := rootOpts.dial(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer c.close()

			f, err := buildDeposits(ctx, c, &flags)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), flags.out, func(w io.Writer) error {
				return fixture.RenderDeposits(w, *f)
			})
		},
	}
	flags.keys.register(cmd, slot.TagBridgeDeposit.String())
	flags.signer.register(cmd)
	flags.service.register(cmd)
	cmd.Flags().StringVar(&flags.bridge, "bridge", "", "existing ETH bridge address")
	cmd.Flags().StringVar(&flags.bridgeArtifact, "bridge-artifact", "", "ETH bridge artifact to deploy when no bridge is given")
	cmd.Flags().StringArrayVar(&flags.bridgeArgs, "bridge-arg", nil, "address constructor argument of the bridge; defaults to the signal service")
	cmd.Flags().StringVarP(&flags.out, "output", "o", "", "write the fixture to a file instead of stdout")
	return cmd
}

func buildDeposits(ctx context.Context, c *chain, flags *depositFlags) (*fixture.Deposits, error) {
	version, err := flags.keys.version()
	if err != nil {
		return nil, err
	}
	auth, err := flags.signer.transactor(ctx, c.client)
	if err != nil {
		return nil, err
	}
	service, _, err := flags.service.resolve(ctx, c, auth)
	if err != nil {
		return nil, err
	}

	var bridge common.Address
	switch {
	case flags.bridge != "":
		if bridge, err = parseAddress("bridge", flags.bridge); err != nil {
			return nil, err
		}
	case flags.bridgeArtifact != "":
		params := []any{service}
		if len(flags.bridgeArgs) > 0 {
			params = params[:0]
			for _, raw := range flags.bridgeArgs {
				addr, err := parseAddress("bridge-arg", raw)
				if err != nil {
					return nil, err
				}
				params = append(params, addr)
			}
		}
		if bridge, err = deploy(ctx, c, auth, flags.bridgeArtifact, params...); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("--bridge or --bridge-artifact is required")
	}

	specs := fixture.DepositMatrix()
	deposits := make([]fixture.Deposit, 0, len(specs))
	targets := make([]proofs.Target, 0, len(specs))
	for i, spec := range specs {
		opts := *auth
		opts.Value = spec.Amount.ToBig()
		receipt, err := c.client.Transact(ctx, &opts, bridge, web3.DepositBridgeABI, "deposit", spec.Recipient, spec.CalldataBytes())
		if err != nil {
			return nil, fmt.Errorf("deposit %d: %w", i, err)
		}
		if len(receipt.Logs) == 0 || len(receipt.Logs[0].Data) < common.HashLength {
			return nil, fmt.Errorf("deposit %d: receipt carries no deposit id", i)
		}
		id := common.BytesToHash(receipt.Logs[0].Data[:common.HashLength])

		key, err := flags.keys.key(ctx, id, bridge, nodeChainID(c))
		if err != nil {
			return nil, err
		}
		s, err := slot.Derive(key, version)
		if err != nil {
			return nil, err
		}
		deposits = append(deposits, fixture.Deposit{Nonce: i, From: auth.From, ID: id, Spec: spec})
		targets = append(targets, proofs.Target{Account: service, Slot: s})
	}

	result, err := prove(ctx, c, targets)
	if err != nil {
		return nil, err
	}
	for i := range deposits {
		deposits[i].Proof = result[i]
	}
	return &fixture.Deposits{SignalService: service, Bridge: bridge, Deposits: deposits}, nil
}

func writeOutput(stdout io.Writer, path string, render func(io.Writer) error) error {
	if path == "" {
		return render(stdout)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
