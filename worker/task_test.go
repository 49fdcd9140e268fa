package worker_test

import (
	"testing"
	"time"

	"noncepool/hashengine"
	"noncepool/worker"
)

func findNonce(t *testing.T, blockData string, difficulty uint32, bound uint64) uint64 {
	t.Helper()
	for n := uint64(0); n < bound; n++ {
		if hashengine.MeetsDifficulty(hashengine.Hash(blockData, n), difficulty) {
			return n
		}
	}
	t.Fatalf("no nonce found under bound %d", bound)
	return 0
}

func TestDispatchChunk_FindsKnownSolution(t *testing.T) {
	blockData := "chunk-test"
	var difficulty uint32 = 8
	n := findNonce(t, blockData, difficulty, 100_000)

	start := n - n%100 // align a window that still contains n
	status, attempts := worker.DispatchChunk(blockData, difficulty, start, 200)

	if !status.Found || status.Nonce != n {
		t.Fatalf("expected to find nonce %d, got status=%+v attempts=%d", n, status, attempts)
	}
}

func TestDispatchChunk_ContinuesWhenExhausted(t *testing.T) {
	// Difficulty 64 is unreachable in a tiny window; expect Continue with
	// next_nonce advanced exactly by the window size.
	status, attempts := worker.DispatchChunk("no-solution-here", 64, 1000, 50)
	if status.Found {
		t.Fatalf("did not expect a solution in a 50-wide window at difficulty 64")
	}
	if status.NextNonce != 1050 {
		t.Fatalf("expected next_nonce 1050, got %d", status.NextNonce)
	}
	if attempts != 50 {
		t.Fatalf("expected 50 attempts, got %d", attempts)
	}
}

func TestAdaptiveChunkSize_Bounds(t *testing.T) {
	// High difficulty (>=24) collapses diff_factor to 1; low budget floors
	// budget_factor to 1 — result should land on ChunkBase.
	size := worker.AdaptiveChunkSize(24, 0)
	if size != worker.ChunkBase {
		t.Fatalf("expected base chunk size %d at difficulty 24, got %d", worker.ChunkBase, size)
	}

	// Difficulty 0 with ample budget should clamp at ChunkMax, not
	// overflow into a saturating wraparound.
	size = worker.AdaptiveChunkSize(0, 1_000_000_000_000)
	if size != worker.ChunkMax {
		t.Fatalf("expected chunk size clamped to max %d, got %d", worker.ChunkMax, size)
	}

	// Very high difficulty: diff_factor never drops below 1, so the size
	// stays at ChunkBase, which is already above ChunkMin.
	size = worker.AdaptiveChunkSize(63, 0)
	if size != worker.ChunkBase {
		t.Fatalf("expected base chunk size %d at difficulty 63, got %d", worker.ChunkBase, size)
	}
}

func TestExpectedAttempts(t *testing.T) {
	if worker.ExpectedAttempts(0) != 1 {
		t.Fatalf("expected 2^0 == 1")
	}
	if worker.ExpectedAttempts(10) != 1024 {
		t.Fatalf("expected 2^10 == 1024")
	}
	if worker.ExpectedAttempts(64) != ^uint64(0) {
		t.Fatalf("expected difficulty >= 64 to saturate to MaxUint64")
	}
}

func TestShouldContinueMining(t *testing.T) {
	// expected(8) = 256, bound = 3*256 = 768
	if !worker.ShouldContinueMining(768, 8) {
		t.Fatalf("expected 768 attempts to still be within bound for difficulty 8")
	}
	if worker.ShouldContinueMining(769, 8) {
		t.Fatalf("expected 769 attempts to exceed the early-termination bound")
	}
}

func TestTask_StartCacheHitSkipsRun(t *testing.T) {
	cache := worker.NewSolutionCache(nil)
	metrics := worker.NewMiningMetrics()
	cache.Insert("cached-block", 8, 99, "deadbeef")

	task := worker.NewTask(cache, metrics, nil, nil)
	task.Start("cached-block", 8, 0, 1000)

	if task.Running {
		t.Fatalf("expected Start to skip launching a task on a cache hit")
	}
	if metrics.CacheHits != 1 {
		t.Fatalf("expected a recorded cache hit, got %d", metrics.CacheHits)
	}
}

func TestTask_TickFindsSolutionAndStops(t *testing.T) {
	cache := worker.NewSolutionCache(nil)
	metrics := worker.NewMiningMetrics()

	blockData := "tick-test"
	var difficulty uint32 = 8
	n := findNonce(t, blockData, difficulty, 100_000)

	start := n - n%500
	task := worker.NewTask(cache, metrics, func() time.Time { return time.Unix(0, 0) }, func() uint64 { return 0 })
	task.Start(blockData, difficulty, start, 100_000) // adaptive sizing will pick its own window >= this bound

	task.Tick()

	if task.Running {
		t.Fatalf("expected task to stop running after finding a solution")
	}
	if !cache.IsCached(blockData, difficulty) {
		t.Fatalf("expected the found solution to be cached")
	}
	if metrics.SolutionsFound != 1 {
		t.Fatalf("expected one recorded solution, got %d", metrics.SolutionsFound)
	}
}

func TestTask_StopIsIdempotent(t *testing.T) {
	task := worker.NewTask(worker.NewSolutionCache(nil), worker.NewMiningMetrics(), nil, nil)
	task.Stop()
	task.Stop()
	if task.Running {
		t.Fatalf("expected Running false after Stop on a never-started task")
	}
}
