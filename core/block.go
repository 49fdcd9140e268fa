// Package core implements ledger and consensus-adjacent logic for
// noncepool: block assembly, chain import/reorg, persistence, and
// validator-authority bookkeeping.
package core

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"noncepool/core/header"
)

// Block wraps the canonical Header. Kept as its own type (rather than a
// bare alias) so storage and chain code can grow block-local concerns
// (persistence metadata, local-only annotations) without touching Header.
type Block struct {
	Header header.Header `json:"header"`
}

// NewBlockTemplate assembles an unmined block extending parentHash at
// height: the opaque block_data payload is built now, since it commits
// to the chain-linking fields; Nonce/Hash are filled in by Seal once a
// worker reports Found.
func NewBlockTemplate(height uint64, parentHash [32]byte, difficulty uint32, miner string, now time.Time) *Block {
	return &Block{Header: header.Header{
		Height:     height,
		ParentHash: parentHash,
		BlockData:  header.CanonicalBlockData(height, parentHash, difficulty, now, miner),
		Difficulty: difficulty,
		Timestamp:  now,
		Miner:      miner,
	}}
}

// Seal finalizes a mined template with the winning nonce and hash.
func (b *Block) Seal(nonce uint64, hashHex string) {
	b.Header.Nonce = nonce
	b.Header.Hash = hashHex
}

// ComputeHash returns the block's hash, recomputed from block_data and
// nonce (never read off the possibly-stale Header.Hash field).
func (b *Block) ComputeHash() [32]byte {
	return b.Header.ComputeHash()
}

// HashHex is the lowercase-hex form of ComputeHash.
func (b *Block) HashHex() string {
	return b.Header.ComputeHashHex()
}

// ParentHashHex is the lowercase-hex form of the parent link.
func (b *Block) ParentHashHex() string {
	return hex.EncodeToString(b.Header.ParentHash[:])
}

// Encode serializes the block to JSON for storage/transmission.
func (b *Block) Encode() ([]byte, error) {
	return json.Marshal(b)
}

// DecodeBlock deserializes a block from JSON.
func DecodeBlock(data []byte) (*Block, error) {
	var block Block
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, err
	}
	return &block, nil
}
