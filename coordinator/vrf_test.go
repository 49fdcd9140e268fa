package coordinator_test

import (
	"context"
	"testing"

	"noncepool/coordinator"
)

func TestVRFSeed_Deterministic(t *testing.T) {
	a := coordinator.VRFSeed("prevhash", 7)
	b := coordinator.VRFSeed("prevhash", 7)
	if a != b {
		t.Fatalf("expected VRFSeed to be deterministic for the same inputs")
	}

	c := coordinator.VRFSeed("prevhash", 8)
	if a == c {
		t.Fatalf("expected different rounds to produce different seeds")
	}
}

func TestOffsetForMiner_VariesByIndex(t *testing.T) {
	seed := coordinator.VRFSeed("prevhash", 1)
	o1 := coordinator.OffsetForMiner(seed, 0)
	o2 := coordinator.OffsetForMiner(seed, 1)
	if o1 == o2 {
		t.Fatalf("expected distinct offsets for distinct miner indices")
	}
}

func TestStartVRFParallelMining_FirstFoundInSubmissionOrderWins(t *testing.T) {
	client := newFakeClient()
	// Both w1 and w2 have a solution queued; submission-order scan (w1
	// first) must win even though w2's fake responds "first" in the
	// trivial synchronous case here.
	client.responses["w1"] = []coordinator.ChunkResult{{Found: true, Nonce: 1, Hash: "h1"}}
	client.responses["w2"] = []coordinator.ChunkResult{{Found: true, Nonce: 2, Hash: "h2"}}

	res, err := coordinator.StartVRFParallelMining(context.Background(), client, []string{"w1", "w2"}, "block", 8, "prev", 0, 0, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || res.Nonce != 1 {
		t.Fatalf("expected the first-submitted worker's solution to win, got %+v", res)
	}
}

func TestStartVRFParallelMining_NoSolutionReturnsNil(t *testing.T) {
	client := newFakeClient()
	res, err := coordinator.StartVRFParallelMining(context.Background(), client, []string{"w1", "w2"}, "block", 8, "prev", 0, 0, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil result when nobody finds a solution, got %+v", res)
	}
}

func TestStartVRFParallelMining_IgnoresPerWorkerErrors(t *testing.T) {
	client := newFakeClient()
	client.responses["w2"] = []coordinator.ChunkResult{{Found: true, Nonce: 9, Hash: "h9"}}
	client.errs["w1"] = context.DeadlineExceeded

	res, err := coordinator.StartVRFParallelMining(context.Background(), client, []string{"w1", "w2"}, "block", 8, "prev", 0, 0, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || res.Nonce != 9 {
		t.Fatalf("expected w2's solution despite w1's transport error, got %+v", res)
	}
}
