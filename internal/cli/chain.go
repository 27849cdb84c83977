package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"SignalProof-Chain/internal/config"
	"SignalProof-Chain/internal/web3"
	"SignalProof-Chain/internal/web3/ethereum"
	"SignalProof-Chain/internal/web3/provider"
)

// chain is a connected client plus the defaults of its definition.
type chain struct {
	client        web3.Client
	signalService common.Address
	confirmations uint64
	close         func()
}

type chainDialer func(ctx context.Context, opts *RootOptions) (*chain, error)

// dialChain prefers --rpc-url and falls back to the chain definitions file.
func dialChain(ctx context.Context, opts *RootOptions) (*chain, error) {
	if url := strings.TrimSpace(opts.RPCURL); url != "" {
		client, err := ethereum.NewClient(ctx, ethereum.Config{Name: "cli", RPCURL: url})
		if err != nil {
			return nil, err
		}
		return &chain{client: client, close: client.Close}, nil
	}
	if strings.TrimSpace(opts.ChainConfig) == "" {
		return nil, errors.New("either --rpc-url or --chain-config is required")
	}
	reg, err := provider.NewRegistry(ctx, config.Web3Config{
		ChainConfig:  opts.ChainConfig,
		DefaultChain: opts.Chain,
	})
	if err != nil {
		return nil, err
	}
	def, err := reg.DefaultChain()
	if err != nil {
		reg.Close()
		return nil, err
	}
	return &chain{
		client:        def.Client,
		signalService: def.SignalService,
		confirmations: def.Confirmations,
		close:         reg.Close,
	}, nil
}
