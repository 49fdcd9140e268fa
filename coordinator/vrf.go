package coordinator

import (
	"context"
	"encoding/binary"

	sha256simd "github.com/minio/sha256-simd"
)

// MiningResult is returned by StartVRFParallelMining on success.
type MiningResult struct {
	Found bool
	Nonce uint64
	Hash  string
}

// VRFSeed derives the deterministic per-round seed from the previous
// block hash and round number (spec §4.4.2).
func VRFSeed(prevBlockHash string, round uint64) [32]byte {
	h := sha256simd.New()
	h.Write([]byte(prevBlockHash))
	var rb [8]byte
	binary.LittleEndian.PutUint64(rb[:], round)
	h.Write(rb[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// OffsetForMiner derives worker i's pseudo-random start offset from the
// round seed.
func OffsetForMiner(seed [32]byte, minerIndex uint64) uint64 {
	h := sha256simd.New()
	h.Write(seed[:])
	var ib [8]byte
	binary.LittleEndian.PutUint64(ib[:], minerIndex)
	h.Write(ib[:])
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum[:8])
}

// StartVRFParallelMining is the one-shot VRF-seeded fan-out strategy
// (spec §4.4.2). Every worker in workerIDs is dispatched in parallel at
// a deterministically derived start nonce; responses are awaited in
// submission order and the first Found wins. Returns (nil, nil) if
// every worker returns Continue or fails.
func StartVRFParallelMining(
	ctx context.Context,
	client WorkerClient,
	workerIDs []string,
	blockData string,
	difficulty uint32,
	prevBlockHash string,
	round uint64,
	baseStart uint64,
	rangePerMiner uint64,
) (*MiningResult, error) {
	seed := VRFSeed(prevBlockHash, round)

	type pending struct {
		resultCh chan ChunkResult
		errCh    chan error
	}

	calls := make([]pending, len(workerIDs))

	for i, id := range workerIDs {
		offset := OffsetForMiner(seed, uint64(i))
		start := baseStart + offset + uint64(i)*rangePerMiner // wraps modulo 2^64 via uint64 overflow semantics

		p := pending{resultCh: make(chan ChunkResult, 1), errCh: make(chan error, 1)}
		calls[i] = p

		go func(id string, start uint64) {
			res, err := client.MineChunkSimple(ctx, id, blockData, difficulty, start, rangePerMiner)
			if err != nil {
				p.errCh <- err
				return
			}
			p.resultCh <- res
		}(id, start)
	}

	// First valid solution wins, scanned in submission order (not
	// completion order) — matching the literal "for fut in calls" loop
	// in the Rust original.
	for _, p := range calls {
		select {
		case res := <-p.resultCh:
			if res.Found {
				return &MiningResult{Found: true, Nonce: res.Nonce, Hash: res.Hash}, nil
			}
		case <-p.errCh:
			// Per-worker transport errors are ignored; later responses
			// are still scanned for a Found.
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, nil
}
