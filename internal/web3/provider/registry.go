package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"SignalProof-Chain/internal/config"
	"SignalProof-Chain/internal/web3"
	"SignalProof-Chain/internal/web3/ethereum"
)

// Chain bundles a client with the signal service settings of its definition.
type Chain struct {
	Name          string
	Client        web3.Client
	SignalService common.Address
	Confirmations uint64
}

// Registry manages a set of chain clients keyed by human readable names.
type Registry struct {
	defaultChain string
	chains       map[string]*Chain
}

// Dialer builds a client for one chain definition.
type Dialer func(ctx context.Context, cfg ethereum.Config) (web3.Client, error)

func dialEthereum(ctx context.Context, cfg ethereum.Config) (web3.Client, error) {
	return ethereum.NewClient(ctx, cfg)
}

// NewRegistry loads chain definitions and instantiates concrete clients.
func NewRegistry(ctx context.Context, cfg config.Web3Config) (*Registry, error) {
	return newRegistry(ctx, cfg, dialEthereum)
}

func newRegistry(ctx context.Context, cfg config.Web3Config, dial Dialer) (*Registry, error) {
	defs, err := web3.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}

	reg := &Registry{chains: make(map[string]*Chain)}
	for name, def := range defs.Chains {
		chainType := strings.ToLower(strings.TrimSpace(def.Type))
		if chainType == "" {
			chainType = "evm"
		}
		if chainType != "evm" {
			reg.Close()
			return nil, fmt.Errorf("链 %s 使用了不支持的类型 %s", name, def.Type)
		}
		client, err := dial(ctx, ethereum.Config{
			Name:   name,
			RPCURL: def.RPCURL,
			Notes:  def.Description,
		})
		if err != nil {
			reg.Close()
			return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
		}
		service, _ := def.SignalServiceAddress()
		reg.chains[name] = &Chain{
			Name:          name,
			Client:        client,
			SignalService: service,
			Confirmations: def.Confirmations,
		}
	}

	if len(reg.chains) == 0 && strings.TrimSpace(cfg.RPCURL) != "" {
		client, err := dial(ctx, ethereum.Config{Name: "default", RPCURL: cfg.RPCURL})
		if err != nil {
			return nil, err
		}
		reg.chains["default"] = &Chain{Name: "default", Client: client}
		if cfg.DefaultChain == "" {
			cfg.DefaultChain = "default"
		}
	}

	if len(reg.chains) == 0 {
		return nil, errors.New("未配置任何链的 RPC 端点")
	}

	defaultChain := cfg.DefaultChain
	if defaultChain == "" {
		defaultChain = reg.Chains()[0]
	}
	chain, ok := reg.chains[defaultChain]
	if !ok {
		reg.Close()
		return nil, fmt.Errorf("默认链 %s 未在配置中找到", defaultChain)
	}

	// Top-level settings refine the default chain's definition.
	if raw := strings.TrimSpace(cfg.SignalService); raw != "" {
		if !common.IsHexAddress(raw) {
			reg.Close()
			return nil, fmt.Errorf("invalid signal service address %q", raw)
		}
		chain.SignalService = common.HexToAddress(raw)
	}
	if cfg.Confirmations > 0 {
		chain.Confirmations = cfg.Confirmations
	}

	reg.defaultChain = defaultChain
	return reg, nil
}

// DefaultChain returns the chain configured as default.
func (r *Registry) DefaultChain() (*Chain, error) {
	if r == nil {
		return nil, errors.New("未初始化的链客户端注册表")
	}
	chain, ok := r.chains[r.defaultChain]
	if !ok {
		return nil, fmt.Errorf("默认链 %s 未在注册表中", r.defaultChain)
	}
	return chain, nil
}

// DefaultClient returns the client configured as default chain.
func (r *Registry) DefaultClient() (web3.Client, error) {
	chain, err := r.DefaultChain()
	if err != nil {
		return nil, err
	}
	return chain.Client, nil
}

// Chain returns the chain identified by name.
func (r *Registry) Chain(name string) (*Chain, bool) {
	if r == nil {
		return nil, false
	}
	chain, ok := r.chains[name]
	return chain, ok
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, chain := range r.chains {
		if chain != nil && chain.Client != nil {
			chain.Client.Close()
		}
		delete(r.chains, name)
	}
}

// Chains returns the list of registered chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.chains))
	for name := range r.chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
