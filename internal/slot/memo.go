package slot

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type memoKey struct {
	signal    common.Hash
	sender    common.Address
	chainID   [32]byte
	hasChain  bool
	namespace NamespaceTag
	version   SchemeVersion
}

// Memo caches derived slots. Derivation is pure, so a cached answer is
// always identical to a fresh one. The zero value is ready to use.
type Memo struct {
	mu    sync.RWMutex
	slots map[memoKey]StorageSlot
	limit int
}

// NewMemo returns a memo holding at most limit entries; limit <= 0 means unbounded.
func NewMemo(limit int) *Memo {
	return &Memo{limit: limit}
}

// Derive returns the cached slot for (key, version), computing it on a miss.
// Errors are never cached.
func (m *Memo) Derive(key SignalKey, version SchemeVersion) (StorageSlot, error) {
	k := memoKey{
		signal:    key.Signal,
		sender:    key.Sender,
		namespace: key.Namespace,
		version:   version,
	}
	if key.ChainID != nil {
		k.chainID = key.ChainID.Bytes32()
		k.hasChain = true
	}

	m.mu.RLock()
	s, ok := m.slots[k]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	s, err := Derive(key, version)
	if err != nil {
		return StorageSlot{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slots == nil {
		m.slots = make(map[memoKey]StorageSlot)
	}
	if m.limit > 0 && len(m.slots) >= m.limit {
		m.slots = make(map[memoKey]StorageSlot)
	}
	m.slots[k] = s
	return s, nil
}

// Len reports the number of cached slots.
func (m *Memo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.slots)
}
