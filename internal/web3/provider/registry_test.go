package provider

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"SignalProof-Chain/internal/config"
	"SignalProof-Chain/internal/web3"
	"SignalProof-Chain/internal/web3/ethereum"
)

type stubClient struct {
	web3.Client
	cfg    ethereum.Config
	closed bool
}

func (s *stubClient) Close() { s.closed = true }

type recordingDialer struct {
	dialed map[string]*stubClient
	fail   string
}

func (d *recordingDialer) dial(_ context.Context, cfg ethereum.Config) (web3.Client, error) {
	if cfg.Name == d.fail {
		return nil, errors.New("dial refused")
	}
	if d.dialed == nil {
		d.dialed = map[string]*stubClient{}
	}
	c := &stubClient{cfg: cfg}
	d.dialed[cfg.Name] = c
	return c, nil
}

func writeChains(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chain.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write chain config: %v", err)
	}
	return path
}

const twoChains = `
chains:
  local:
    rpc_url: http://127.0.0.1:8545
    signal_service: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
    confirmations: 2
  sepolia:
    type: evm
    rpc_url: https://sepolia.example
`

func TestRegistryLoadsDefinitions(t *testing.T) {
	d := &recordingDialer{}
	reg, err := newRegistry(context.Background(), config.Web3Config{
		ChainConfig:  writeChains(t, twoChains),
		DefaultChain: "local",
	}, d.dial)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if got := reg.Chains(); len(got) != 2 || got[0] != "local" || got[1] != "sepolia" {
		t.Fatalf("unexpected chains %v", got)
	}
	chain, err := reg.DefaultChain()
	if err != nil {
		t.Fatalf("default chain: %v", err)
	}
	if chain.SignalService != common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3") || chain.Confirmations != 2 {
		t.Fatalf("unexpected default chain %+v", chain)
	}
	if d.dialed["sepolia"].cfg.RPCURL != "https://sepolia.example" {
		t.Fatalf("unexpected rpc url %s", d.dialed["sepolia"].cfg.RPCURL)
	}

	reg.Close()
	for name, c := range d.dialed {
		if !c.closed {
			t.Fatalf("client %s not closed", name)
		}
	}
}

func TestRegistryTopLevelOverrides(t *testing.T) {
	d := &recordingDialer{}
	reg, err := newRegistry(context.Background(), config.Web3Config{
		ChainConfig:   writeChains(t, twoChains),
		SignalService: "0x00000000000000000000000000000000000000aa",
		Confirmations: 6,
	}, d.dial)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	defer reg.Close()

	chain, err := reg.DefaultChain()
	if err != nil {
		t.Fatalf("default chain: %v", err)
	}
	if chain.Name != "local" {
		t.Fatalf("expected alphabetical default, got %s", chain.Name)
	}
	if chain.SignalService != common.HexToAddress("0xaa") || chain.Confirmations != 6 {
		t.Fatalf("overrides not applied: %+v", chain)
	}
}

func TestRegistryFallsBackToRPCURL(t *testing.T) {
	d := &recordingDialer{}
	reg, err := newRegistry(context.Background(), config.Web3Config{RPCURL: "http://node:8545"}, d.dial)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	client, err := reg.DefaultClient()
	if err != nil {
		t.Fatalf("default client: %v", err)
	}
	if client.(*stubClient).cfg.RPCURL != "http://node:8545" {
		t.Fatalf("unexpected client config")
	}
}

func TestRegistryErrors(t *testing.T) {
	cases := map[string]struct {
		cfg  func(t *testing.T) config.Web3Config
		fail string
	}{
		"no endpoints": {cfg: func(*testing.T) config.Web3Config { return config.Web3Config{} }},
		"unknown default": {cfg: func(t *testing.T) config.Web3Config {
			return config.Web3Config{ChainConfig: writeChains(t, twoChains), DefaultChain: "mainnet"}
		}},
		"unsupported type": {cfg: func(t *testing.T) config.Web3Config {
			return config.Web3Config{ChainConfig: writeChains(t, "chains:\n  sol:\n    type: svm\n")}
		}},
		"dial failure": {
			cfg: func(t *testing.T) config.Web3Config {
				return config.Web3Config{ChainConfig: writeChains(t, twoChains)}
			},
			fail: "sepolia",
		},
		"bad service override": {cfg: func(t *testing.T) config.Web3Config {
			return config.Web3Config{ChainConfig: writeChains(t, twoChains), SignalService: "nope"}
		}},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			d := &recordingDialer{fail: tc.fail}
			if _, err := newRegistry(context.Background(), tc.cfg(t), d.dial); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
