package slot

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// SlotLength is the width of a storage slot in bytes.
const SlotLength = common.HashLength

// StorageSlot addresses a word in a contract's persistent storage. Slots
// returned by BaseSlot always have a zero low-order byte.
type StorageSlot [SlotLength]byte

// BytesToSlot converts b to a slot, left-padding or cropping like common.BytesToHash.
func BytesToSlot(b []byte) StorageSlot {
	return StorageSlot(common.BytesToHash(b))
}

// HexToSlot parses a 0x-prefixed hex word.
func HexToSlot(s string) StorageSlot {
	return StorageSlot(common.HexToHash(s))
}

// Hash returns the slot as a go-ethereum word.
func (s StorageSlot) Hash() common.Hash { return common.Hash(s) }

// Bytes returns a copy of the slot bytes.
func (s StorageSlot) Bytes() []byte { return common.CopyBytes(s[:]) }

// Hex returns the 0x-prefixed hex encoding of the slot.
func (s StorageSlot) Hex() string { return hexutil.Encode(s[:]) }

func (s StorageSlot) String() string { return s.Hex() }

// Aligned reports whether the slot sits on a 256-slot boundary.
func (s StorageSlot) Aligned() bool { return s[SlotLength-1] == 0 }

// Offset returns the i-th slot of the range reserved by an aligned base slot.
func (s StorageSlot) Offset(i uint8) StorageSlot {
	out := s
	out[SlotLength-1] = i
	return out
}

// MarshalText implements encoding.TextMarshaler.
func (s StorageSlot) MarshalText() ([]byte, error) {
	return hexutil.Bytes(s[:]).MarshalText()
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *StorageSlot) UnmarshalText(input []byte) error {
	return hexutil.UnmarshalFixedText("StorageSlot", input, s[:])
}

// BaseSlot maps an arbitrary namespace to its aligned base slot.
func BaseSlot(namespace []byte) StorageSlot {
	return baseSlotFromHash(crypto.Keccak256Hash(namespace))
}

// baseSlotFromHash finishes the derivation once the namespace hash is known.
// It is total over every 256-bit input, including the zero word.
func baseSlotFromHash(h common.Hash) StorageSlot {
	n := predecessor(h)
	slot := StorageSlot(crypto.Keccak256Hash(n[:]))
	slot[SlotLength-1] = 0x00
	return slot
}

// predecessor returns h-1 modulo 2^256.
func predecessor(h common.Hash) [32]byte {
	n := new(uint256.Int).SetBytes32(h[:])
	n.Sub(n, uint256.NewInt(1))
	return n.Bytes32()
}
