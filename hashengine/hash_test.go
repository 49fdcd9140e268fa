package hashengine_test

import (
	"testing"

	"noncepool/hashengine"
)

func TestNaiveHashMatchesMidstate(t *testing.T) {
	blockData := "the quick brown fox"
	mid := hashengine.NewMidState(blockData)

	for _, nonce := range []uint64{0, 1, 42, 1_000_000, ^uint64(0)} {
		naive := hashengine.NaiveHash(blockData, nonce)
		viaMid := mid.FinalizeWithNonce(nonce)

		if naive != viaMid {
			t.Fatalf("nonce=%d: naive=%x midstate=%x", nonce, naive, viaMid)
		}
	}
}

func TestMeetsDifficultyBoundary(t *testing.T) {
	var zero [hashengine.Size]byte
	if !hashengine.MeetsDifficulty(zero, 256) {
		t.Fatalf("all-zero hash must satisfy the maximum difficulty")
	}

	nonZero := zero
	nonZero[31] = 1
	if hashengine.MeetsDifficulty(nonZero, 256) {
		t.Fatalf("difficulty 256 must reject any non-zero hash")
	}

	if !hashengine.MeetsDifficulty(zero, 0) {
		t.Fatalf("difficulty 0 must always pass")
	}
}

func TestMeetsDifficultyByteBoundary(t *testing.T) {
	var h [hashengine.Size]byte
	h[0] = 0x00 // 8 leading zero bits
	h[1] = 0x0F // 4 more leading zero bits, then a 1 bit

	if !hashengine.MeetsDifficulty(h, 8) {
		t.Fatalf("expected 8 leading zero bits to satisfy difficulty 8")
	}
	if !hashengine.MeetsDifficulty(h, 12) {
		t.Fatalf("expected 12 leading zero bits to satisfy difficulty 12")
	}
	if hashengine.MeetsDifficulty(h, 13) {
		t.Fatalf("expected difficulty 13 to fail (only 12 leading zero bits)")
	}
}

func TestCheckDifficultyLevel_RoundTrip(t *testing.T) {
	h := hashengine.Hash("abc", 7)
	hex := hashengine.HashToHex(h)

	want := hashengine.MeetsDifficulty(h, 4)
	got := hashengine.CheckDifficultyLevel(hex, 4)
	if got != want {
		t.Fatalf("CheckDifficultyLevel disagreed with MeetsDifficulty: got %v want %v", got, want)
	}
}
