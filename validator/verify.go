// Package validator performs stateless proof-of-work and chain-segment
// verification, and the tiered difficulty-adjustment function.
package validator

import (
	"fmt"
	"math"
	"time"

	"noncepool/hashengine"
)

// Block is the canonical, chain-linkable unit the validator operates
// over (spec §3).
type Block struct {
	Height     uint64
	PrevHash   string
	BlockData  string
	Nonce      uint64
	Difficulty uint32
	Hash       string
	Timestamp  time.Time
	Miner      string // empty means no miner recorded
}

// ValidationResult is the validator's uniform, never-panicking outcome
// shape (spec §7: validation failures surface as {valid, reason}, never
// a thrown failure).
type ValidationResult struct {
	Valid  bool
	Reason string
}

func ok() ValidationResult {
	return ValidationResult{Valid: true}
}

func fail(reason string) ValidationResult {
	return ValidationResult{Valid: false, Reason: reason}
}

// hashBlock computes SHA256(blockData || nonce_le8).
func hashBlock(blockData string, nonce uint64) [hashengine.Size]byte {
	return hashengine.Hash(blockData, nonce)
}

// VerifyPow recomputes the hash for (blockData, nonce) and applies the
// difficulty predicate.
func VerifyPow(blockData string, nonce uint64, difficulty uint32) ValidationResult {
	h := hashBlock(blockData, nonce)

	if hashengine.MeetsDifficulty(h, difficulty) {
		return ok()
	}

	return fail(fmt.Sprintf("Hash does not meet difficulty %d. Hash: %s", difficulty, hashengine.HashToHex(h)))
}

// oneHour is the future-timestamp tolerance window (spec §4.5: "reject
// if block.timestamp > now + 1 hour").
const oneHour = time.Hour

// VerifyBlock runs the three ordered checks from spec §4.5: hash match,
// difficulty, then future-timestamp only (no lower bound — blocks from
// the past are accepted).
func VerifyBlock(b Block, now time.Time) ValidationResult {
	computed := hashBlock(b.BlockData, b.Nonce)
	computedHex := hashengine.HashToHex(computed)

	if computedHex != b.Hash {
		return fail(fmt.Sprintf("Hash mismatch. Expected: %s, Computed: %s", b.Hash, computedHex))
	}

	if !hashengine.MeetsDifficulty(computed, b.Difficulty) {
		return fail(fmt.Sprintf("Hash does not meet difficulty requirement %d", b.Difficulty))
	}

	if b.Timestamp.After(now.Add(oneHour)) {
		return fail("Block timestamp is in the future")
	}

	return ok()
}

// VerifyChainSegment verifies every block individually, then checks
// prev_hash/height linkage between consecutive blocks. The reason names
// the first breaking position.
func VerifyChainSegment(blocks []Block, now time.Time) ValidationResult {
	if len(blocks) == 0 {
		return fail("Empty chain segment")
	}

	for _, b := range blocks {
		if res := VerifyBlock(b, now); !res.Valid {
			return res
		}
	}

	for i := 1; i < len(blocks); i++ {
		if blocks[i].PrevHash != blocks[i-1].Hash {
			return fail(fmt.Sprintf("Chain break at height %d: prev_hash doesn't match", blocks[i].Height))
		}

		if blocks[i].Height != blocks[i-1].Height+1 {
			return fail(fmt.Sprintf("Height mismatch at position %d: expected %d, got %d", i, blocks[i-1].Height+1, blocks[i].Height))
		}
	}

	return ok()
}

// BatchValidationResult summarizes a batch of verify_pow calls.
type BatchValidationResult struct {
	Total          int
	Valid          int
	Invalid        int
	InvalidIndices []int
}

// ChunkInput is one (block_data, nonce, difficulty) triple for batch
// verification.
type ChunkInput struct {
	BlockData  string
	Nonce      uint64
	Difficulty uint32
}

// BatchVerifyPow runs VerifyPow over every input, recording zero-based
// indices of failures.
func BatchVerifyPow(inputs []ChunkInput) BatchValidationResult {
	result := BatchValidationResult{Total: len(inputs)}

	for i, in := range inputs {
		if VerifyPow(in.BlockData, in.Nonce, in.Difficulty).Valid {
			result.Valid++
		} else {
			result.Invalid++
			result.InvalidIndices = append(result.InvalidIndices, i)
		}
	}

	return result
}

// ComputeHash returns the lowercase hex block hash for (blockData, nonce).
func ComputeHash(blockData string, nonce uint64) string {
	return hashengine.HashToHex(hashBlock(blockData, nonce))
}

// CheckDifficultyLevel accepts a 64-character hex hash string and
// reports whether it meets difficulty. Never errors: malformed hex or a
// non-32-byte decode returns false.
func CheckDifficultyLevel(hashHex string, difficulty uint32) bool {
	return hashengine.CheckDifficultyLevel(hashHex, difficulty)
}

// maxAdjustment bounds the per-period difficulty step.
const maxAdjustment = 2

// CalculateDifficultyAdjustment applies the tiered difficulty-retarget
// table from spec §4.5 over integer (not floating point) division, with
// saturating add/sub floored at 1.
func CalculateDifficultyAdjustment(currentDifficulty uint32, targetBlockTimeSeconds uint64, actualBlockTimesSeconds []uint64) uint32 {
	if len(actualBlockTimesSeconds) == 0 {
		return currentDifficulty
	}

	var sum uint64
	for _, t := range actualBlockTimesSeconds {
		sum += t
	}
	avgTime := sum / uint64(len(actualBlockTimesSeconds))

	switch {
	case avgTime < targetBlockTimeSeconds/2:
		return saturatingAdd(currentDifficulty, maxAdjustment)
	case avgTime < targetBlockTimeSeconds:
		return saturatingAdd(currentDifficulty, 1)
	case avgTime > targetBlockTimeSeconds*2:
		return saturatingSubFloor1(currentDifficulty, maxAdjustment)
	case avgTime > targetBlockTimeSeconds:
		return saturatingSubFloor1(currentDifficulty, 1)
	default:
		return currentDifficulty
	}
}

func saturatingAdd(a, b uint32) uint32 {
	if a > math.MaxUint32-b {
		return math.MaxUint32
	}
	return a + b
}

func saturatingSubFloor1(a, b uint32) uint32 {
	if b >= a {
		return 1
	}
	result := a - b
	if result < 1 {
		return 1
	}
	return result
}

// ChainReader is the minimal read-only view the difficulty-adjustment
// collaborator needs from the ledger: a canonical block accessor and
// the current tip height. Mirrors the teacher's storage.Reader /
// core.ChainReader interface seam, now over the spec Block type.
type ChainReader interface {
	BlockByHeight(height uint64) *Block
	Height() uint64
}
