package hashengine

import (
	"crypto/sha256"
	"encoding"
	"encoding/binary"
)

// MidState holds a SHA-256 hasher pre-fed with the invariant block_data
// prefix of a mining target. FinalizeWithNonce clones the state, feeds
// the nonce, and finalizes — amortizing the prefix hash across an
// entire chunk of nonces.
//
// Deliberately uses the standard library's crypto/sha256 rather than
// sha256-simd: the stdlib digest implements encoding.BinaryMarshaler /
// BinaryUnmarshaler, which is what makes cloning an in-progress hash
// state possible. sha256-simd does not document the same guarantee
// across its dispatch paths.
type MidState struct {
	blockData string // retained only for the recompute fallback
	snapshot  []byte // marshaled digest state, re-hydrated per finalize
}

// NewMidState pre-feeds blockData into a fresh SHA-256 state and snapshots it.
func NewMidState(blockData string) *MidState {
	h := sha256.New()
	h.Write([]byte(blockData))

	marshaler := h.(encoding.BinaryMarshaler)
	snap, err := marshaler.MarshalBinary()
	if err != nil {
		// crypto/sha256's digest.MarshalBinary never errors in practice;
		// fall back to a fresh hasher rather than propagate a contract
		// violation through a pure function.
		snap = nil
	}

	return &MidState{blockData: blockData, snapshot: snap}
}

// FinalizeWithNonce clones the mid-state, appends nonce_le8, and
// finalizes. Semantically equivalent to Hash(blockData, nonce).
func (m *MidState) FinalizeWithNonce(nonce uint64) [Size]byte {
	h := sha256.New()

	if m.snapshot != nil {
		if unmarshaler, ok := h.(encoding.BinaryUnmarshaler); ok {
			if err := unmarshaler.UnmarshalBinary(m.snapshot); err == nil {
				var nb [8]byte
				binary.LittleEndian.PutUint64(nb[:], nonce)
				h.Write(nb[:])
				var out [Size]byte
				copy(out[:], h.Sum(nil))
				return out
			}
		}
	}

	// Fallback: recompute from scratch if clone restoration failed.
	return Hash(m.blockData, nonce)
}
