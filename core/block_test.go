package core_test

import (
	"testing"
	"time"

	"noncepool/core"
)

func TestBlockEncodeDecodeRoundTrip(t *testing.T) {
	now := time.Now()
	b := core.NewBlockTemplate(42, [32]byte{1, 2, 3}, 8, "miner-1", now)
	b.Seal(12345, b.HashHex())

	data, err := b.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	b2, err := core.DecodeBlock(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if b2.Header.Height != b.Header.Height {
		t.Fatalf("height did not survive round-trip: got %d, want %d", b2.Header.Height, b.Header.Height)
	}
	if b2.Header.Nonce != b.Header.Nonce {
		t.Fatalf("nonce did not survive round-trip: got %d, want %d", b2.Header.Nonce, b.Header.Nonce)
	}
	if b2.Header.Difficulty != b.Header.Difficulty {
		t.Fatalf("difficulty did not survive round-trip: got %d, want %d", b2.Header.Difficulty, b.Header.Difficulty)
	}
	if b2.HashHex() != b.HashHex() {
		t.Fatalf("recomputed hash diverged after round-trip: got %s, want %s", b2.HashHex(), b.HashHex())
	}
}

func TestBlockTemplate_BlockDataCommitsChainLinkage(t *testing.T) {
	now := time.Now()
	parentA := [32]byte{1}
	parentB := [32]byte{2}

	a := core.NewBlockTemplate(5, parentA, 8, "m", now)
	b := core.NewBlockTemplate(5, parentB, 8, "m", now)

	if a.Header.BlockData == b.Header.BlockData {
		t.Fatalf("expected distinct parent hashes to produce distinct block_data payloads")
	}
}
