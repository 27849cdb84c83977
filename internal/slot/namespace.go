package slot

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "SignalProof-Chain/internal/errors"
)

// NamespaceTag names the protocol purpose a signal serves. The set is closed;
// each tag's preimage is part of the on-chain protocol and must never change.
type NamespaceTag uint8

const (
	TagGenericSignal NamespaceTag = iota + 1
	TagBridgeDeposit
)

var tagPreimages = map[NamespaceTag]string{
	TagGenericSignal: "generic-signal",
	TagBridgeDeposit: "bridge-deposit",
}

// Tags lists every defined namespace tag.
func Tags() []NamespaceTag {
	return []NamespaceTag{TagGenericSignal, TagBridgeDeposit}
}

// Valid reports whether t is a defined tag.
func (t NamespaceTag) Valid() bool {
	_, ok := tagPreimages[t]
	return ok
}

// Preimage returns the string whose keccak256 identifies the tag.
func (t NamespaceTag) Preimage() string {
	return tagPreimages[t]
}

// Hash returns keccak256 of the tag preimage. Undefined tags hash to zero.
func (t NamespaceTag) Hash() common.Hash {
	p, ok := tagPreimages[t]
	if !ok {
		return common.Hash{}
	}
	return crypto.Keccak256Hash([]byte(p))
}

func (t NamespaceTag) String() string {
	if p, ok := tagPreimages[t]; ok {
		return p
	}
	return fmt.Sprintf("NamespaceTag(%d)", uint8(t))
}

// ParseNamespaceTag resolves a tag from its preimage.
func ParseNamespaceTag(s string) (NamespaceTag, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for tag, preimage := range tagPreimages {
		if preimage == s {
			return tag, nil
		}
	}
	return 0, xerrors.New(xerrors.CodeInvalidInput, fmt.Sprintf("unknown namespace tag %q", s), xerrors.WithField("namespace"))
}
