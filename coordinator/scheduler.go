package coordinator

import (
	"context"
	"log"
	"sync"
	"time"
)

// MaxFailures is the failure count at which a slot becomes quarantined.
const MaxFailures = 3

// AssignTimeout is how long a slot may sit busy before its chunk is
// reclaimed on a subsequent tick.
const AssignTimeout = 10 * time.Second

// MinerSlot is the coordinator-side view of one worker.
type MinerSlot struct {
	ID                string
	Busy              bool
	AssignedAt        time.Time
	Failures          uint32
	TotalChunks       uint64
	SuccessfulChunks  uint64
}

// Quarantined reports whether the slot has accumulated MaxFailures or
// more and is skipped by selection for the remainder of this search.
func (m *MinerSlot) Quarantined() bool {
	return m.Failures >= MaxFailures
}

// Solution is the latched (nonce, hash) pair, once found.
type Solution struct {
	Nonce uint64
	Hash  string
}

// State is the coordinator's round-robin scheduling state (spec
// §4.4.1's CoordinatorState). Mutation happens only between suspension
// points — the RPC call inside Tick — per the single-threaded
// cooperative-actor model in spec §5; the mutex here exists to let Go's
// goroutine scheduler stand in for that model safely.
type State struct {
	mu sync.Mutex

	Miners               []*MinerSlot
	NextNonce            uint64
	ChunkSize            uint64
	Running              bool
	RRCursor             int
	SolutionFound        *Solution
	TotalChunksAssigned  uint64
	StartedAt            time.Time

	BlockData  string
	Difficulty uint32

	client WorkerClient
	now    func() time.Time
}

// NewState builds a scheduler bound to a WorkerClient and clock. now,
// if nil, defaults to time.Now.
func NewState(client WorkerClient, now func() time.Time) *State {
	if now == nil {
		now = time.Now
	}
	return &State{client: client, now: now}
}

// Start installs a fresh roster and begins a new search (spec §4.4.1
// "Start"). On a new search the roster is rebuilt and all counters
// reset — a quarantined slot from a prior search is not carried over.
func (s *State) Start(ids []string, blockData string, difficulty uint32, startNonce, chunkSize uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slots := make([]*MinerSlot, 0, len(ids))
	for _, id := range ids {
		slots = append(slots, &MinerSlot{ID: id})
	}

	s.Miners = slots
	s.NextNonce = startNonce
	s.ChunkSize = chunkSize
	s.Running = true
	s.RRCursor = 0
	s.SolutionFound = nil
	s.TotalChunksAssigned = 0
	s.StartedAt = s.now()
	s.BlockData = blockData
	s.Difficulty = difficulty
}

// Stop clears the running flag. Installed chunks already in flight
// still complete; their responses are processed normally (spec §5:
// "no active cancellation of the RPC is attempted").
func (s *State) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Running = false
}

type pick struct {
	slotIndex int
	id        string
	start     uint64
	size      uint64
}

// Tick runs one scheduling pulse (spec §4.4.1 "schedule_once"): a
// reclamation sweep and round-robin selection under exclusive access,
// then an RPC to the picked worker outside any lock, then a final
// exclusive-access update of Found/Continue/Err.
func (s *State) Tick(ctx context.Context) {
	s.mu.Lock()
	if s.SolutionFound != nil {
		s.mu.Unlock()
		return
	}

	p, ok := s.selectSlotLocked()
	s.mu.Unlock()

	if !ok {
		return
	}

	result, err := s.client.MineChunkSimple(ctx, p.id, s.blockDataSnapshot(), s.difficultySnapshot(), p.start, p.size)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyResultLocked(p, result, err)
}

func (s *State) blockDataSnapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.BlockData
}

func (s *State) difficultySnapshot() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Difficulty
}

// selectSlotLocked performs the reclamation sweep and round-robin
// selection. Caller holds s.mu.
func (s *State) selectSlotLocked() (pick, bool) {
	if !s.Running || len(s.Miners) == 0 {
		return pick{}, false
	}

	now := s.now()

	for _, m := range s.Miners {
		if m.Busy && now.Sub(m.AssignedAt) > AssignTimeout {
			log.Printf("[SCHEDULER] miner %s timeout after %s", m.ID, now.Sub(m.AssignedAt))
			m.Busy = false
			m.AssignedAt = time.Time{}
			m.Failures++
		}
	}

	n := len(s.Miners)
	for i := 0; i < n; i++ {
		idx := s.RRCursor % n
		s.RRCursor = (s.RRCursor + 1) % n

		slot := s.Miners[idx]

		if slot.Busy {
			continue
		}
		if slot.Quarantined() {
			log.Printf("[SCHEDULER] miner %s quarantined (failures=%d)", slot.ID, slot.Failures)
			continue
		}

		start := s.NextNonce
		s.NextNonce += s.ChunkSize
		s.TotalChunksAssigned++
		slot.Busy = true
		slot.AssignedAt = now
		slot.TotalChunks++

		return pick{slotIndex: idx, id: slot.ID, start: start, size: s.ChunkSize}, true
	}

	return pick{}, false
}

// applyResultLocked processes the RPC outcome. Caller holds s.mu. Both
// Found and Continue increment successful_chunks — a Continue is a
// healthy no-find, per the literal scheduler.rs behavior.
func (s *State) applyResultLocked(p pick, result ChunkResult, err error) {
	if p.slotIndex >= len(s.Miners) {
		return
	}
	slot := s.Miners[p.slotIndex]

	if err != nil {
		log.Printf("[SCHEDULER] miner %s call failed: %v", p.id, err)
		slot.Busy = false
		slot.AssignedAt = time.Time{}
		slot.Failures++
		return
	}

	if result.Found && s.SolutionFound != nil {
		// A solution is already latched; the first Found wins, so this one
		// only releases its slot like a Continue.
		slot.Busy = false
		slot.AssignedAt = time.Time{}
		slot.SuccessfulChunks++
		return
	}

	if result.Found {
		log.Printf("[SCHEDULER] solution found by %s nonce=%d hash=%s", p.id, result.Nonce, result.Hash)
		s.SolutionFound = &Solution{Nonce: result.Nonce, Hash: result.Hash}
		s.Running = false
		slot.Busy = false
		slot.SuccessfulChunks++

		go s.broadcastStop()
		return
	}

	slot.Busy = false
	slot.AssignedAt = time.Time{}
	slot.SuccessfulChunks++
}

// broadcastStop fires stop_advanced_mining at every roster member,
// sequentially, logging but not failing on individual errors. Issued
// strictly after the latch write (it is only ever invoked from
// applyResultLocked after SolutionFound is set).
func (s *State) broadcastStop() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.Miners))
	for _, m := range s.Miners {
		ids = append(ids, m.ID)
	}
	s.mu.Unlock()

	log.Printf("[SCHEDULER] broadcasting stop to %d miners", len(ids))

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	for _, id := range ids {
		if err := s.client.StopMining(ctx, id); err != nil {
			log.Printf("[SCHEDULER] failed to stop miner %s: %v", id, err)
		}
	}
}

// Stats is the point-in-time scheduler report (spec §6
// get_scheduler_stats).
type Stats struct {
	Running              bool
	TotalMiners          uint64
	IdleMiners           uint64
	BusyMiners           uint64
	FailedMiners         uint64
	TotalChunksAssigned  uint64
	NextNonce            uint64
	Solution             *Solution
	UptimeSeconds        uint64
}

// Stats reports current scheduler state.
func (s *State) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var idle, busy, failed uint64
	for _, m := range s.Miners {
		if m.Busy {
			busy++
		} else {
			idle++
		}
		if m.Quarantined() {
			failed++
		}
	}

	var uptime uint64
	if !s.StartedAt.IsZero() {
		uptime = uint64(s.now().Sub(s.StartedAt).Seconds())
	}

	return Stats{
		Running:             s.Running,
		TotalMiners:         uint64(len(s.Miners)),
		IdleMiners:          idle,
		BusyMiners:          busy,
		FailedMiners:        failed,
		TotalChunksAssigned: s.TotalChunksAssigned,
		NextNonce:           s.NextNonce,
		Solution:            s.SolutionFound,
		UptimeSeconds:       uptime,
	}
}
