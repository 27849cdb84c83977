package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"SignalProof-Chain/internal/web3"
)

// EnvPrivateKey is read when --private-key is not given.
const EnvPrivateKey = "SIGNAL_PRIVATE_KEY"

type signerFlags struct {
	privateKey string
	gasLimit   uint64
}

func (s *signerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.privateKey, "private-key", "", "hex private key of the sender (or $"+EnvPrivateKey+")")
	cmd.Flags().Uint64Var(&s.gasLimit, "gas-limit", 0, "gas limit per transaction; 0 estimates")
}

func (s *signerFlags) transactor(ctx context.Context, client web3.Client) (*bind.TransactOpts, error) {
	raw := strings.TrimSpace(s.privateKey)
	if raw == "" {
		raw = strings.TrimSpace(os.Getenv(EnvPrivateKey))
	}
	if raw == "" {
		return nil, errors.New("--private-key or $" + EnvPrivateKey + " is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, err
	}
	auth.GasLimit = s.gasLimit
	return auth, nil
}

// serviceFlags select an existing signal service or deploy one from an artifact.
type serviceFlags struct {
	address  string
	artifact string
}

func (s *serviceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.address, "service", "", "existing signal service address")
	cmd.Flags().StringVar(&s.artifact, "artifact", "", "signal service artifact to deploy when no service is given")
}

func (s *serviceFlags) resolve(ctx context.Context, c *chain, auth *bind.TransactOpts) (common.Address, bool, error) {
	if s.address != "" {
		addr, err := parseAddress("service", s.address)
		return addr, false, err
	}
	if s.artifact == "" {
		if c.signalService != (common.Address{}) {
			return c.signalService, false, nil
		}
		return common.Address{}, false, errors.New("--service or --artifact is required")
	}
	addr, err := deploy(ctx, c, auth, s.artifact)
	return addr, true, err
}

func deploy(ctx context.Context, c *chain, auth *bind.TransactOpts, path string, params ...any) (common.Address, error) {
	artifact, err := web3.LoadArtifact(path)
	if err != nil {
		return common.Address{}, err
	}
	result, err := c.client.DeployContract(ctx, auth, artifact.ABI, artifact.Bytecode, params...)
	if err != nil {
		return common.Address{}, err
	}
	return result.ContractAddress, nil
}
