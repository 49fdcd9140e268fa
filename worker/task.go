package worker

import (
	"math"
	"sync"
	"time"

	"noncepool/hashengine"
)

// Adaptive chunk sizing bounds (spec §4.2).
const (
	ChunkBase = 200_000
	ChunkMin  = 20_000
	ChunkMax  = 2_000_000
)

// EarlyTerminationFactor is the multiplier applied to the expected
// attempt count before a streaming task gives up on a chunk. Pinned per
// spec §9 as a named constant, not a magic number, since the spec notes
// the factor is tunable.
const EarlyTerminationFactor = 3

// MiningStatus is the tagged-union worker RPC result.
type MiningStatus struct {
	Found    bool
	Nonce    uint64
	Hash     string
	NextNonce uint64
}

// Task holds a single in-progress streaming search. At most one Task
// exists per worker at a time; zero value is the absent state.
type Task struct {
	mu sync.Mutex

	Running       bool
	BlockData     string
	Difficulty    uint32
	NextNonce     uint64
	ChunkSize     uint64
	TotalAttempts uint64
	StartedAt     int64

	cache   *SolutionCache
	metrics *MiningMetrics
	now     func() time.Time
	budget  func() uint64 // abstract compute-credit supplier; see refueler
}

// NewTask wires a Task to its cache, metrics sink, clock, and resource
// budget supplier. now and budget may be nil to use defaults
// (time.Now, and a budget of 0).
func NewTask(cache *SolutionCache, metrics *MiningMetrics, now func() time.Time, budget func() uint64) *Task {
	if now == nil {
		now = time.Now
	}
	if budget == nil {
		budget = func() uint64 { return 0 }
	}
	return &Task{cache: cache, metrics: metrics, now: now, budget: budget}
}

// DispatchChunk is the synchronous, one-shot dispatch entrypoint (spec
// §4.2). It iterates nonce in [start, start+size) using a mid-state
// hasher. On the first meets_difficulty hit it returns Found; otherwise
// Continue with next_nonce = start+size (saturating).
func DispatchChunk(blockData string, difficulty uint32, start, size uint64) (status MiningStatus, attempts uint64) {
	mid := hashengine.NewMidState(blockData)

	end := saturatingAddU64(start, size)
	nonce := start

	for nonce < end {
		h := mid.FinalizeWithNonce(nonce)
		if hashengine.MeetsDifficulty(h, difficulty) {
			return MiningStatus{Found: true, Nonce: nonce, Hash: hashengine.HashToHex(h)}, attempts
		}
		nonce++
		attempts++
	}

	return MiningStatus{Found: false, NextNonce: end}, attempts
}

// DispatchChunkSimple is the transport-friendly flat-alias form of
// DispatchChunk: (found, nonce, hash, attempts). Strictly equivalent to
// the tagged form.
func DispatchChunkSimple(blockData string, difficulty uint32, start, size uint64) (found bool, nonce uint64, hash string, attempts uint64) {
	status, a := DispatchChunk(blockData, difficulty, start, size)
	if status.Found {
		return true, status.Nonce, status.Hash, a
	}
	return false, status.NextNonce, "", a
}

func saturatingAddU64(a, b uint64) uint64 {
	sum := a + b
	if sum < a { // overflow
		return math.MaxUint64
	}
	return sum
}

// Start installs a new streaming task, consulting the cache first. On a
// cache hit, the cache-hit metric is recorded and no task is created.
// On a miss, the cache-miss metric is recorded and the task begins
// running from start_nonce.
func (t *Task) Start(blockData string, difficulty uint32, startNonce, chunkSize uint64) {
	if nonce, hash, ok := t.cache.Lookup(blockData, difficulty); ok {
		_ = nonce
		_ = hash
		t.metrics.RecordCacheHit()
		return
	}
	t.metrics.RecordCacheMiss()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.Running = true
	t.BlockData = blockData
	t.Difficulty = difficulty
	t.NextNonce = startNonce
	t.ChunkSize = chunkSize
	t.TotalAttempts = 0
	t.StartedAt = t.now().UnixNano()
}

// Stop transitions the task to !running. Idempotent: calling it on an
// absent or already-stopped task is a no-op.
func (t *Task) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Running = false
}

// Status returns a snapshot of the task for diagnostics.
func (t *Task) Status() Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := *t
	snap.mu = sync.Mutex{}
	return snap
}

// Tick runs one streaming-mode pulse (spec §4.2 "Streaming background
// mode"). It is a no-op if the task is not running.
func (t *Task) Tick() {
	t.mu.Lock()
	if !t.Running {
		t.mu.Unlock()
		return
	}

	chunk := AdaptiveChunkSize(t.Difficulty, t.budget())
	if chunk != t.ChunkSize {
		t.metrics.RecordAdaptiveChange(chunk)
		t.ChunkSize = chunk
	}

	blockData := t.BlockData
	difficulty := t.Difficulty
	nextNonce := t.NextNonce
	t.mu.Unlock()

	t0 := t.now()
	status, attempts := DispatchChunk(blockData, difficulty, nextNonce, chunk)
	t1 := t.now()
	timeNs := uint64(t1.Sub(t0).Nanoseconds())

	t.mu.Lock()
	defer t.mu.Unlock()

	t.TotalAttempts += attempts

	if !ShouldContinueMining(t.TotalAttempts, difficulty) {
		t.metrics.RecordChunk(attempts, timeNs, 0, false, true, uint64(t1.UnixNano()))
		t.Running = false
		return
	}

	if status.Found {
		t.cache.Insert(blockData, difficulty, status.Nonce, status.Hash)
		t.metrics.RecordChunk(attempts, timeNs, 0, true, false, uint64(t1.UnixNano()))
		t.Running = false
		return
	}

	t.metrics.RecordChunk(attempts, timeNs, 0, false, false, uint64(t1.UnixNano()))
	t.NextNonce = status.NextNonce
}

// AdaptiveChunkSize computes the chunk size for a given difficulty and
// resource budget (spec §4.2). budget is an abstract unsigned "compute
// credit" supplied by a collaborator (the refueler, in this
// repository).
func AdaptiveChunkSize(difficulty uint32, budget uint64) uint64 {
	var diffFactor uint64 = 1
	if difficulty < 24 {
		diffFactor = uint64(1) << (24 - difficulty)
	}

	budgetFactor := budget / 100_000_000_000
	if budgetFactor < 1 {
		budgetFactor = 1
	}
	if budgetFactor > 5 {
		budgetFactor = 5
	}

	size := saturatingMulU64(saturatingMulU64(ChunkBase, diffFactor), budgetFactor)

	if size < ChunkMin {
		size = ChunkMin
	}
	if size > ChunkMax {
		size = ChunkMax
	}
	return size
}

func saturatingMulU64(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	result := a * b
	if result/a != b {
		return math.MaxUint64
	}
	return result
}

// ExpectedAttempts returns 2^d for d < 64, else math.MaxUint64.
func ExpectedAttempts(difficulty uint32) uint64 {
	if difficulty >= 64 {
		return math.MaxUint64
	}
	return uint64(1) << difficulty
}

// ShouldContinueMining applies the statistical early-termination bound:
// attemptsSoFar <= EarlyTerminationFactor * expected_attempts(d).
func ShouldContinueMining(attemptsSoFar uint64, difficulty uint32) bool {
	expected := ExpectedAttempts(difficulty)
	bound := saturatingMulU64(expected, EarlyTerminationFactor)
	return attemptsSoFar <= bound
}
