package core_test

import (
	"testing"
	"time"

	"noncepool/core"
	"noncepool/core/header"
)

// mockChain implements core.ChainReader for testing.
type mockChain struct {
	headers map[uint64]*header.Header
	height  uint64
}

func (m *mockChain) HeaderByHeight(height uint64) *header.Header {
	return m.headers[height]
}

func (m *mockChain) Height() uint64 {
	return m.height
}

func TestRetargetAdjust_TooFastIncreasesDifficulty(t *testing.T) {
	chain := &mockChain{headers: make(map[uint64]*header.Header), height: 2016}

	baseTime := time.Now()
	for i := uint64(0); i <= 2016; i++ {
		// Blocks every 5 minutes instead of the 10-minute target.
		chain.headers[i] = &header.Header{Height: i, Timestamp: baseTime.Add(time.Duration(i) * 5 * time.Minute)}
	}

	got := core.RetargetAdjust(chain, 2016, 10)
	if got <= 10 {
		t.Fatalf("expected difficulty to increase for too-fast blocks, got %d", got)
	}
}

func TestRetargetAdjust_InsufficientHistoryReturnsUnchanged(t *testing.T) {
	chain := &mockChain{headers: make(map[uint64]*header.Header), height: 1000}

	baseTime := time.Now()
	for i := uint64(0); i <= 1000; i++ {
		chain.headers[i] = &header.Header{Height: i, Timestamp: baseTime.Add(time.Duration(i) * 10 * time.Minute)}
	}

	got := core.RetargetAdjust(chain, 1000, 10)
	if got != 10 {
		t.Fatalf("expected unchanged difficulty with insufficient history, got %d", got)
	}
}

func TestRetargetAdjust_MissingHeaderReturnsUnchanged(t *testing.T) {
	chain := &mockChain{headers: make(map[uint64]*header.Header), height: 2016}
	// Deliberately leave the window's headers unpopulated.
	got := core.RetargetAdjust(chain, 2016, 7)
	if got != 7 {
		t.Fatalf("expected unchanged difficulty when headers are missing, got %d", got)
	}
}
