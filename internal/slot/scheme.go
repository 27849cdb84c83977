package slot

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	xerrors "SignalProof-Chain/internal/errors"
)

// SignalKey is the semantic identity of a recorded signal. ChainID is only
// consulted by schemes that include it.
type SignalKey struct {
	Signal    common.Hash
	Sender    common.Address
	ChainID   *uint256.Int
	Namespace NamespaceTag
}

// FieldName identifies a SignalKey member in a scheme layout.
type FieldName string

const (
	FieldSignal    FieldName = "signal"
	FieldSender    FieldName = "sender"
	FieldChainID   FieldName = "chain_id"
	FieldNamespace FieldName = "namespace"
)

// SchemeVersion selects which SignalKey fields form the namespace and in
// which order. Every version ever deployed stays reproducible so historical
// signals can still be located.
type SchemeVersion uint8

const (
	SchemeV1 SchemeVersion = iota + 1 // (sender, signal)
	SchemeV2                          // (signal, sender)
	SchemeV3                          // (signal, sender, namespace)
	SchemeV4                          // (signal, chain_id, sender, namespace)
)

// LatestScheme is the version used when a caller does not pick one.
const LatestScheme = SchemeV4

var schemeLayouts = map[SchemeVersion][]FieldName{
	SchemeV1: {FieldSender, FieldSignal},
	SchemeV2: {FieldSignal, FieldSender},
	SchemeV3: {FieldSignal, FieldSender, FieldNamespace},
	SchemeV4: {FieldSignal, FieldChainID, FieldSender, FieldNamespace},
}

// Schemes lists every defined version in ascending order.
func Schemes() []SchemeVersion {
	return []SchemeVersion{SchemeV1, SchemeV2, SchemeV3, SchemeV4}
}

// ParseSchemeVersion accepts "v3", "V3" or "3".
func ParseSchemeVersion(s string) (SchemeVersion, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "v")
	for _, v := range Schemes() {
		if trimmed == fmt.Sprintf("%d", uint8(v)) {
			return v, nil
		}
	}
	return 0, xerrors.New(xerrors.CodeInvalidInput, fmt.Sprintf("unknown scheme version %q", s), xerrors.WithField("scheme"))
}

func (v SchemeVersion) String() string {
	return fmt.Sprintf("v%d", uint8(v))
}

// Layout returns the ordered field list of the version, or nil if undefined.
func (v SchemeVersion) Layout() []FieldName {
	layout, ok := schemeLayouts[v]
	if !ok {
		return nil
	}
	return append([]FieldName(nil), layout...)
}

// Requires reports whether the version consumes the named field.
func (v SchemeVersion) Requires(name FieldName) bool {
	for _, f := range schemeLayouts[v] {
		if f == name {
			return true
		}
	}
	return false
}

// Fields projects key onto the version's layout.
func (v SchemeVersion) Fields(key SignalKey) ([]Field, error) {
	layout, ok := schemeLayouts[v]
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidInput, fmt.Sprintf("unknown scheme version %d", uint8(v)), xerrors.WithField("scheme"))
	}
	fields := make([]Field, 0, len(layout))
	for _, name := range layout {
		switch name {
		case FieldSignal:
			fields = append(fields, Bytes32Field(string(name), key.Signal))
		case FieldSender:
			fields = append(fields, AddressField(string(name), key.Sender))
		case FieldChainID:
			if key.ChainID == nil {
				return nil, xerrors.New(xerrors.CodeInvalidInput,
					fmt.Sprintf("scheme %s requires a chain id", v), xerrors.WithField(string(name)))
			}
			fields = append(fields, Uint256Field(string(name), key.ChainID))
		case FieldNamespace:
			if !key.Namespace.Valid() {
				return nil, xerrors.New(xerrors.CodeInvalidInput,
					fmt.Sprintf("scheme %s requires a namespace tag", v), xerrors.WithField(string(name)))
			}
			fields = append(fields, Bytes32Field(string(name), key.Namespace.Hash()))
		}
	}
	return fields, nil
}

// Namespace returns the packed namespace bytes of key under the version.
func (v SchemeVersion) Namespace(key SignalKey) ([]byte, error) {
	fields, err := v.Fields(key)
	if err != nil {
		return nil, err
	}
	return Pack(fields...)
}

// SignalSlot derives the slot for an explicit, ordered field list.
func SignalSlot(fields ...Field) (StorageSlot, error) {
	namespace, err := Pack(fields...)
	if err != nil {
		return StorageSlot{}, err
	}
	return BaseSlot(namespace), nil
}

// Derive computes the slot of key under the given scheme version.
func Derive(key SignalKey, version SchemeVersion) (StorageSlot, error) {
	fields, err := version.Fields(key)
	if err != nil {
		return StorageSlot{}, err
	}
	return SignalSlot(fields...)
}
