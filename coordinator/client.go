// Package coordinator implements the round-robin and VRF-seeded
// dispatch strategies that hand nonce-range chunks to a worker roster,
// track slot health, and latch the first reported solution.
package coordinator

import (
	"context"
	"errors"
	"time"

	"noncepool/worker"
)

// ChunkResult is the worker RPC surface's response shape, carried as
// the flat alias per spec §6 (avoids tagged-union transport issues —
// see worker.MiningStatus for the tagged form this mirrors).
type ChunkResult struct {
	Found    bool
	Nonce    uint64
	Hash     string
	Attempts uint64
}

// WorkerClient is the RPC boundary the scheduler depends on. It is
// satisfied either by an in-process implementation (tests, single-
// process deployments) or by a net.RPCClient delegating over libp2p.
type WorkerClient interface {
	// MineChunkSimple dispatches a single chunk and blocks for the
	// result, matching the Worker RPC surface's mine_chunk_simple.
	MineChunkSimple(ctx context.Context, workerID string, blockData string, difficulty uint32, start, size uint64) (ChunkResult, error)

	// StopMining issues stop_advanced_mining to a single worker.
	StopMining(ctx context.Context, workerID string) error
}

// ErrUnknownWorker is returned by InProcessClient when asked to dispatch
// to a worker ID it was not registered with.
var ErrUnknownWorker = errors.New("coordinator: unknown worker id")

// InProcessClient is a WorkerClient backed directly by in-memory
// worker.Task instances — used by tests and single-process
// deployments where the "RPC" is just a function call.
type InProcessClient struct {
	tasks map[string]*worker.Task
}

// NewInProcessClient builds a client over a fixed worker-id → Task map.
func NewInProcessClient(tasks map[string]*worker.Task) *InProcessClient {
	return &InProcessClient{tasks: tasks}
}

// MineChunkSimple runs the dispatch entrypoint directly, synchronously,
// against the target worker's hash engine — no task state is touched,
// matching the Rust mine_chunk_simple RPC, which is stateless.
func (c *InProcessClient) MineChunkSimple(ctx context.Context, workerID string, blockData string, difficulty uint32, start, size uint64) (ChunkResult, error) {
	if _, ok := c.tasks[workerID]; !ok {
		return ChunkResult{}, ErrUnknownWorker
	}
	found, nonce, hash, attempts := worker.DispatchChunkSimple(blockData, difficulty, start, size)
	return ChunkResult{Found: found, Nonce: nonce, Hash: hash, Attempts: attempts}, nil
}

// StopMining transitions the target worker's streaming task, if any, to
// stopped. Idempotent.
func (c *InProcessClient) StopMining(ctx context.Context, workerID string) error {
	t, ok := c.tasks[workerID]
	if !ok {
		return ErrUnknownWorker
	}
	t.Stop()
	return nil
}

// dispatchTimeout bounds the whole stop broadcast: every StopMining call
// in one broadcast shares a single context with this deadline. Chunk
// RPCs issued by Tick are not bounded by it; they run under the caller's
// context, and a slot that stays busy is reclaimed after AssignTimeout.
const dispatchTimeout = 30 * time.Second
