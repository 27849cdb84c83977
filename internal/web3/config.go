package web3

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// ChainDefinitions models the structure of configs/chain.yaml.
type ChainDefinitions struct {
	Chains map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition describes a single chain endpoint and the signal service
// deployed on it.
type ChainDefinition struct {
	Type          string `yaml:"type"`
	RPCURL        string `yaml:"rpc_url"`
	ChainID       uint64 `yaml:"chain_id"`
	SignalService string `yaml:"signal_service"`
	Confirmations uint64 `yaml:"confirmations"`
	Description   string `yaml:"description"`
}

// SignalServiceAddress parses the configured signal service address. The
// zero address is returned when none is configured.
func (d ChainDefinition) SignalServiceAddress() (common.Address, error) {
	raw := strings.TrimSpace(d.SignalService)
	if raw == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid signal service address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

// LoadChainDefinitions parses the YAML file containing chain metadata.
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ChainDefinitions{Chains: map[string]ChainDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}

	var defs ChainDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ChainDefinitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDefinition{}
	}
	for name, def := range defs.Chains {
		if _, err := def.SignalServiceAddress(); err != nil {
			return ChainDefinitions{}, fmt.Errorf("链 %s: %w", name, err)
		}
	}
	return defs, nil
}
