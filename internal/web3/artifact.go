package web3

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Artifact is a compiled contract as emitted by forge or solc --combined-json.
type Artifact struct {
	ABI      string
	Bytecode []byte
}

type rawArtifact struct {
	ABI      json.RawMessage `json:"abi"`
	Bytecode json.RawMessage `json:"bytecode"`
}

// LoadArtifact reads a contract artifact. The bytecode may be a plain hex
// string or forge's {"object": "0x..."} form.
func LoadArtifact(path string) (Artifact, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("read artifact: %w", err)
	}
	return ParseArtifact(content)
}

// ParseArtifact decodes artifact JSON.
func ParseArtifact(content []byte) (Artifact, error) {
	var raw rawArtifact
	if err := json.Unmarshal(content, &raw); err != nil {
		return Artifact{}, fmt.Errorf("decode artifact: %w", err)
	}
	if len(raw.ABI) == 0 {
		return Artifact{}, fmt.Errorf("artifact has no abi")
	}

	var code string
	if err := json.Unmarshal(raw.Bytecode, &code); err != nil {
		var wrapped struct {
			Object string `json:"object"`
		}
		if err := json.Unmarshal(raw.Bytecode, &wrapped); err != nil {
			return Artifact{}, fmt.Errorf("decode artifact bytecode: %w", err)
		}
		code = wrapped.Object
	}
	if !strings.HasPrefix(code, "0x") {
		code = "0x" + code
	}
	bytecode, err := hexutil.Decode(code)
	if err != nil {
		return Artifact{}, fmt.Errorf("decode artifact bytecode: %w", err)
	}
	if len(bytecode) == 0 {
		return Artifact{}, fmt.Errorf("artifact bytecode is empty")
	}
	return Artifact{ABI: string(raw.ABI), Bytecode: bytecode}, nil
}
