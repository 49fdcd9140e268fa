// Package hashengine computes the proof-of-work hash primitive: SHA-256
// over a block's data followed by a little-endian nonce, and the
// leading-zero-bit difficulty predicate used to accept or reject it.
package hashengine

import (
	"encoding/binary"
	"encoding/hex"

	sha256simd "github.com/minio/sha256-simd"
)

// Size is the length in bytes of a hash produced by Hash.
const Size = 32

// Hash computes SHA256(blockData || nonce_le8). blockData is hashed as
// raw UTF-8 bytes with no terminator and no length prefix.
func Hash(blockData string, nonce uint64) [Size]byte {
	h := sha256simd.New()
	h.Write([]byte(blockData))
	var nb [8]byte
	binary.LittleEndian.PutUint64(nb[:], nonce)
	h.Write(nb[:])
	var out [Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// NaiveHash is an alias for Hash kept for symmetry with the mid-state
// finalize path: naive_hash(b, n) == midstate(b).finalize_with_nonce(n).
func NaiveHash(blockData string, nonce uint64) [Size]byte {
	return Hash(blockData, nonce)
}

// HashToHex renders a hash as a lowercase 64-character hex string.
func HashToHex(h [Size]byte) string {
	return hex.EncodeToString(h[:])
}

// MeetsDifficulty reports whether hash has at least d leading zero bits,
// read as a big-endian bit string. d == 0 always passes.
func MeetsDifficulty(hash [Size]byte, d uint32) bool {
	remaining := d

	for _, b := range hash {
		if remaining == 0 {
			return true
		}

		z := leadingZeros8(b)

		if z >= remaining {
			return true
		}

		if z < 8 {
			return false
		}

		remaining -= 8
	}

	return remaining == 0
}

// leadingZeros8 counts leading zero bits in a single byte.
func leadingZeros8(b byte) uint32 {
	if b == 0 {
		return 8
	}
	var n uint32
	for b&0x80 == 0 {
		n++
		b <<= 1
	}
	return n
}

// CheckDifficultyLevel decodes hashHex and applies MeetsDifficulty. It
// never errors: a malformed hex string or a decode that isn't exactly
// Size bytes simply returns false.
func CheckDifficultyLevel(hashHex string, d uint32) bool {
	b, err := hex.DecodeString(hashHex)
	if err != nil || len(b) != Size {
		return false
	}
	var h [Size]byte
	copy(h[:], b)
	return MeetsDifficulty(h, d)
}
