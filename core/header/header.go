// Package header defines the canonical block header for noncepool.
package header

import (
	"fmt"
	"time"

	"noncepool/hashengine"
)

// Header is the chain-linkable header, carrying the spec's flat block
// shape: height, parent linkage, the opaque mined payload, difficulty,
// the winning nonce, the claimed hash, and provenance.
type Header struct {
	Height     uint64
	ParentHash [32]byte
	BlockData  string
	Difficulty uint32
	Nonce      uint64
	Hash       string // claimed hex(SHA256(block_data || nonce_le8)); verified against recomputation, never trusted as-is
	Timestamp  time.Time
	Miner      string // empty means no miner recorded
}

// CanonicalBlockData assembles the opaque payload handed to miners for a
// block extending parentHash at height with the given difficulty. The
// hash engine only ever sees this string plus the candidate nonce — it
// never inspects height/parent/difficulty directly, so whatever commits
// them into the chain must fold them in here.
func CanonicalBlockData(height uint64, parentHash [32]byte, difficulty uint32, timestamp time.Time, miner string) string {
	return fmt.Sprintf("%d|%x|%d|%d|%s", height, parentHash, difficulty, timestamp.UnixNano(), miner)
}

// ComputeHash recomputes SHA256(block_data || nonce_le8) — the canonical
// hash, independent of whatever the Hash field claims.
func (h *Header) ComputeHash() [32]byte {
	return hashengine.Hash(h.BlockData, h.Nonce)
}

// ComputeHashHex is the lowercase-hex form of ComputeHash.
func (h *Header) ComputeHashHex() string {
	return hashengine.HashToHex(h.ComputeHash())
}
