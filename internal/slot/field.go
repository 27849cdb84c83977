package slot

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	xerrors "SignalProof-Chain/internal/errors"
)

// FieldType is the static type of a packed namespace field. Only fixed-width
// types exist: packing omits delimiters, so a variable-width type would make
// distinct tuples share a preimage. A future variable-width field must be
// length-prefixed on its own.
type FieldType uint8

const (
	TypeAddress FieldType = iota + 1
	TypeBytes32
	TypeUint256
)

// Width returns the packed width of the type in bytes, or 0 if unknown.
func (t FieldType) Width() int {
	switch t {
	case TypeAddress:
		return common.AddressLength
	case TypeBytes32, TypeUint256:
		return 32
	default:
		return 0
	}
}

func (t FieldType) String() string {
	switch t {
	case TypeAddress:
		return "address"
	case TypeBytes32:
		return "bytes32"
	case TypeUint256:
		return "uint256"
	default:
		return fmt.Sprintf("FieldType(%d)", uint8(t))
	}
}

// Field is one typed, named component of a namespace.
type Field struct {
	Name  string
	Type  FieldType
	Value []byte
}

// AddressField packs a 20-byte address.
func AddressField(name string, addr common.Address) Field {
	return Field{Name: name, Type: TypeAddress, Value: addr.Bytes()}
}

// Bytes32Field packs a 32-byte word.
func Bytes32Field(name string, word common.Hash) Field {
	return Field{Name: name, Type: TypeBytes32, Value: word.Bytes()}
}

// Uint256Field packs an unsigned integer as a 32-byte big-endian word.
// A nil value packs as zero.
func Uint256Field(name string, v *uint256.Int) Field {
	var word [32]byte
	if v != nil {
		word = v.Bytes32()
	}
	return Field{Name: name, Type: TypeUint256, Value: word[:]}
}

// Pack concatenates field values at their natural widths, matching Solidity's
// abi.encodePacked for these types. Every value must match its type width.
func Pack(fields ...Field) ([]byte, error) {
	if len(fields) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidInput, "no namespace fields supplied")
	}
	size := 0
	for i, f := range fields {
		width := f.Type.Width()
		if width == 0 {
			return nil, xerrors.New(xerrors.CodeInvalidInput,
				fmt.Sprintf("field %d has unsupported type %s", i, f.Type),
				xerrors.WithField(f.label(i)))
		}
		if len(f.Value) != width {
			return nil, xerrors.New(xerrors.CodeInvalidInput,
				fmt.Sprintf("%s field is %d bytes, want %d", f.Type, len(f.Value), width),
				xerrors.WithField(f.label(i)))
		}
		size += width
	}
	out := make([]byte, 0, size)
	for _, f := range fields {
		out = append(out, f.Value...)
	}
	return out, nil
}

func (f Field) label(i int) string {
	if f.Name != "" {
		return f.Name
	}
	return fmt.Sprintf("#%d", i)
}
