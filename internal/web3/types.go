package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"SignalProof-Chain/internal/proofs"
)

// SignalServiceABI is the subset of the signal service interface the
// tooling calls.
const SignalServiceABI = `[{"type":"function","name":"sendSignal","stateMutability":"nonpayable","inputs":[{"name":"value","type":"bytes32"}],"outputs":[{"name":"slot","type":"bytes32"}]}]`

// DepositBridgeABI is the subset of the ETH bridge used to create deposits.
// The first 32 bytes of the emitted log's data are the deposit id.
const DepositBridgeABI = `[{"type":"function","name":"deposit","stateMutability":"payable","inputs":[{"name":"to","type":"address"},{"name":"data","type":"bytes"}],"outputs":[{"name":"id","type":"bytes32"}]}]`

// ChainSnapshot represents summarized network metadata for reporting.
type ChainSnapshot struct {
	ChainID     string `json:"chain_id"`
	BlockNumber string `json:"block_number"`
	Notes       string `json:"notes,omitempty"`
}

// DeploymentResult captures the outcome of a contract deployment request.
type DeploymentResult struct {
	ContractAddress common.Address
	Transaction     *types.Transaction
}

// Client is what higher layers need from a chain: proof queries plus the
// transaction glue used to publish signals.
type Client interface {
	proofs.PinnedStateProvider

	ChainID(ctx context.Context) (*big.Int, error)
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	DeployContract(ctx context.Context, auth *bind.TransactOpts, abiJSON string, bytecode []byte, params ...any) (DeploymentResult, error)
	SendSignal(ctx context.Context, auth *bind.TransactOpts, service common.Address, signal common.Hash) (*types.Receipt, error)
	Transact(ctx context.Context, auth *bind.TransactOpts, contract common.Address, abiJSON, method string, params ...any) (*types.Receipt, error)
	WaitForConfirmations(ctx context.Context, receipt *types.Receipt, confirmations uint64) error
	Close()
}
