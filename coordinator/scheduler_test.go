package coordinator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"noncepool/coordinator"
)

// fakeClient is a deterministic, scriptable WorkerClient for scheduler
// tests — no hashing, just canned responses keyed by worker id.
type fakeClient struct {
	mu        sync.Mutex
	responses map[string][]coordinator.ChunkResult
	errs      map[string]error
	calls     []string
	stopped   []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{responses: map[string][]coordinator.ChunkResult{}, errs: map[string]error{}}
}

func (f *fakeClient) MineChunkSimple(ctx context.Context, workerID string, blockData string, difficulty uint32, start, size uint64) (coordinator.ChunkResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, workerID)

	if err, ok := f.errs[workerID]; ok {
		return coordinator.ChunkResult{}, err
	}

	queue := f.responses[workerID]
	if len(queue) == 0 {
		return coordinator.ChunkResult{Found: false, Nonce: start + size}, nil
	}
	r := queue[0]
	f.responses[workerID] = queue[1:]
	return r, nil
}

func (f *fakeClient) StopMining(ctx context.Context, workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, workerID)
	return nil
}

func TestScheduler_RoundRobinAssignsAllIdleSlots(t *testing.T) {
	client := newFakeClient()
	now := time.Unix(0, 0)
	s := coordinator.NewState(client, func() time.Time { return now })

	s.Start([]string{"w1", "w2", "w3"}, "block", 8, 0, 100)

	for i := 0; i < 3; i++ {
		s.Tick(context.Background())
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.calls) != 3 {
		t.Fatalf("expected 3 dispatch calls across the roster, got %v", client.calls)
	}
	seen := map[string]bool{}
	for _, id := range client.calls {
		seen[id] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected every miner dispatched once, got %v", client.calls)
	}
}

func TestScheduler_SolutionLatchStopsAndBroadcasts(t *testing.T) {
	client := newFakeClient()
	client.responses["w2"] = []coordinator.ChunkResult{{Found: true, Nonce: 42, Hash: "abc"}}

	s := coordinator.NewState(client, nil)
	s.Start([]string{"w1", "w2"}, "block", 8, 0, 100)

	// Drive enough ticks to reach w2's turn.
	for i := 0; i < 2; i++ {
		s.Tick(context.Background())
	}

	stats := s.Stats()
	if stats.Solution == nil || stats.Solution.Nonce != 42 {
		t.Fatalf("expected solution latched, got %+v", stats.Solution)
	}
	if stats.Running {
		t.Fatalf("expected scheduler to stop running once a solution is found")
	}

	// broadcastStop runs in its own goroutine (fire-and-forget); give it
	// a moment to land.
	deadline := time.Now().Add(time.Second)
	for {
		client.mu.Lock()
		n := len(client.stopped)
		client.mu.Unlock()
		if n >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.stopped) != 2 {
		t.Fatalf("expected stop broadcast to both miners, got %v", client.stopped)
	}
}

func TestScheduler_QuarantineAfterMaxFailures(t *testing.T) {
	client := newFakeClient()
	client.errs["w1"] = errors.New("transport down")

	s := coordinator.NewState(client, nil)
	s.Start([]string{"w1", "w2"}, "block", 8, 0, 100)

	// Drive enough ticks that w1 gets picked MaxFailures times via
	// round robin (every other tick), plus extra ticks for w2.
	for i := 0; i < 2*coordinator.MaxFailures+2; i++ {
		s.Tick(context.Background())
	}

	stats := s.Stats()
	if stats.FailedMiners != 1 {
		t.Fatalf("expected exactly one quarantined miner, got %d", stats.FailedMiners)
	}
}

func TestScheduler_StopIsIdempotentAndNoOpWhenNotRunning(t *testing.T) {
	client := newFakeClient()
	s := coordinator.NewState(client, nil)
	s.Stop()
	s.Stop()

	s.Start([]string{"w1"}, "block", 8, 0, 100)
	s.Stop()
	s.Tick(context.Background())

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.calls) != 0 {
		t.Fatalf("expected no dispatch after Stop, got %v", client.calls)
	}
}
