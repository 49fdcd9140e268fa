package validator_test

import (
	"testing"

	"noncepool/validator"
)

func TestCalculateDifficultyAdjustment_Tiers(t *testing.T) {
	cases := []struct {
		name    string
		current uint32
		target  uint64
		actual  []uint64
		want    uint32
	}{
		{"empty history returns current", 10, 600, nil, 10},
		{"much too fast", 10, 600, []uint64{100}, 12},
		{"slightly too fast", 10, 600, []uint64{400}, 11},
		{"just right", 10, 600, []uint64{600}, 10},
		{"slightly too slow", 10, 600, []uint64{900}, 9},
		{"much too slow", 10, 600, []uint64{1300}, 8},
		{"floors at one", 1, 600, []uint64{10000}, 1},
		{"boundary avg==target/2 is not much-too-fast", 10, 600, []uint64{300}, 11},
		{"boundary avg==2*target is not much-too-slow", 10, 600, []uint64{1200}, 9},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := validator.CalculateDifficultyAdjustment(c.current, c.target, c.actual)
			t.Logf("current=%d target=%d actual=%v -> %d", c.current, c.target, c.actual, got)
			if got != c.want {
				t.Fatalf("got %d, want %d", got, c.want)
			}
		})
	}
}

func TestBatchVerifyPow(t *testing.T) {
	inputs := []validator.ChunkInput{
		{BlockData: "x", Nonce: 0, Difficulty: 0},
		{BlockData: "x", Nonce: 0, Difficulty: 250},
	}

	res := validator.BatchVerifyPow(inputs)
	if res.Total != 2 || res.Valid != 1 || res.Invalid != 1 {
		t.Fatalf("unexpected batch result: %+v", res)
	}
	if len(res.InvalidIndices) != 1 || res.InvalidIndices[0] != 1 {
		t.Fatalf("unexpected invalid indices: %v", res.InvalidIndices)
	}
}
