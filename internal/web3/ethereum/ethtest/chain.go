// Package ethtest runs an in-process go-ethereum chain behind an
// ethereum.Client. Only tests import it, so the daemon and CLI binaries never
// link a full node.
package ethtest

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/eth/ethconfig"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/node"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"SignalProof-Chain/internal/web3/ethereum"
)

// ChainID is the chain id the simulated backend signs with.
var ChainID = big.NewInt(1337)

// Chain is a simulated chain plus a client wired to it.
type Chain struct {
	Backend *simulated.Backend
	Client  *ethereum.Client
}

// NewChain starts a simulated backend funded by alloc. eth_getProof is not
// reachable through the backend's own client, so the node also listens on an
// IPC socket and proof queries go through that.
func NewChain(t testing.TB, alloc coretypes.GenesisAlloc) *Chain {
	t.Helper()

	// Unix socket paths are short; t.TempDir can exceed the limit.
	dir, err := os.MkdirTemp("", "simchain")
	if err != nil {
		t.Fatalf("create ipc dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	ipc := filepath.Join(dir, "geth.ipc")

	backend := simulated.NewBackend(alloc, func(nodeConf *node.Config, _ *ethconfig.Config) {
		nodeConf.IPCPath = ipc
	})
	t.Cleanup(func() { _ = backend.Close() })

	rpcClient, err := gethrpc.Dial(ipc)
	if err != nil {
		t.Fatalf("dial simulated node: %v", err)
	}

	client := ethereum.NewLocalClient(ethereum.LocalConfig{
		Name:    "simulated",
		ChainID: ChainID,
		Backend: backend.Client(),
		RPC:     rpcClient,
		Commit:  func() { backend.Commit() },
	})
	t.Cleanup(client.Close)

	return &Chain{Backend: backend, Client: client}
}
