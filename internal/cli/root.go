package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"SignalProof-Chain/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	RPCURL      string
	ChainConfig string
	Chain       string
	Format      string // "json" | "text"
	Timeout     time.Duration
	Verbose     bool

	dial chainDialer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of signalctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	if opts.dial == nil {
		opts.dial = dialChain
	}

	cmd := &cobra.Command{
		Use:   "signalctl",
		Short: "Derive signal slots and assemble signal storage proofs",
		Long: `signalctl derives namespaced storage slots for cross-chain signals,
assembles Merkle-Patricia proofs for them from an Ethereum node and renders
Solidity test fixtures from those proofs.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			level := "warn"
			if opts.Verbose {
				level = "debug"
			}
			return logger.Init(logger.Config{Level: level, Format: "text", OutputPaths: []string{"stderr"}})
		},
	}

	cmd.PersistentFlags().StringVar(&opts.RPCURL, "rpc-url", "", "Ethereum JSON-RPC endpoint (overrides --chain)")
	cmd.PersistentFlags().StringVar(&opts.ChainConfig, "chain-config", "configs/chain.yaml", "chain definitions file")
	cmd.PersistentFlags().StringVar(&opts.Chain, "chain", "", "chain name from the chain definitions")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 2*time.Minute, "overall deadline for chain operations")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(newSlotCommand(opts))
	cmd.AddCommand(newBaseSlotCommand(opts))
	cmd.AddCommand(newProveCommand(opts))
	cmd.AddCommand(newSendCommand(opts))
	cmd.AddCommand(newFixtureCommand(opts))
	cmd.AddCommand(newTokenHashCommand(opts))

	return cmd
}

func (o *RootOptions) context(parent context.Context) (context.Context, context.CancelFunc) {
	if o.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, o.Timeout)
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
