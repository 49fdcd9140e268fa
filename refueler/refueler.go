// Package refueler watches a roster of workers' compute-budget balances
// against low/critical watermarks, the same shape as a canister-cycles
// monitor: watch/unwatch a worker, poll on a heartbeat, keep the last
// report. Rehomed from the original IC-canister-cycles framing to a
// generic compute budget: each worker reports an abstract uint64
// credit balance, which feeds directly into worker.AdaptiveChunkSize's
// budget term.
package refueler

import (
	"context"
	"log"
	"sync"
	"time"
)

// Default watermarks, carried over from the original canister-cycles
// thresholds but relabeled in abstract budget units.
const (
	DefaultLowWatermark      uint64 = 2_000_000_000_000
	DefaultCriticalWatermark uint64 = 500_000_000_000
)

// WatchedWorker is one roster entry.
type WatchedWorker struct {
	WorkerID          string
	LowWatermark      uint64
	CriticalWatermark uint64
}

// WorkerHealth is one poll result for a watched worker.
type WorkerHealth struct {
	WorkerID          string
	Budget            uint64
	LowWatermark      uint64
	CriticalWatermark uint64
	IsLow             bool
	IsCritical        bool
	LastCheckedNs     int64
}

// BudgetSource reports a worker's current compute-budget balance —
// the Go analogue of canister_status, pluggable so a real deployment
// can back it with whatever accounting the worker roster actually uses.
type BudgetSource func(ctx context.Context, workerID string) (uint64, error)

// Refueler holds watch-list state and the last poll report, guarded by
// a mutex the way the teacher guards every shared-state struct.
type Refueler struct {
	mu       sync.Mutex
	running  bool
	watched  []WatchedWorker
	report   map[string]WorkerHealth
	lastTick int64

	source BudgetSource
	now    func() time.Time
}

// New builds a Refueler polling balances via source. now, if nil,
// defaults to time.Now.
func New(source BudgetSource, now func() time.Time) *Refueler {
	if now == nil {
		now = time.Now
	}
	return &Refueler{source: source, now: now, report: make(map[string]WorkerHealth)}
}

// Start enables the poll loop; RunOnce and the heartbeat ticker are
// both no-ops while stopped.
func (r *Refueler) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = true
}

// Stop disables the poll loop.
func (r *Refueler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
}

// WatchWorker adds workerID to the roster with the given watermarks
// (DefaultLowWatermark/DefaultCriticalWatermark if zero). A no-op if
// already watched.
func (r *Refueler) WatchWorker(workerID string, lowWatermark, criticalWatermark uint64) {
	if lowWatermark == 0 {
		lowWatermark = DefaultLowWatermark
	}
	if criticalWatermark == 0 {
		criticalWatermark = DefaultCriticalWatermark
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.watched {
		if w.WorkerID == workerID {
			return
		}
	}
	r.watched = append(r.watched, WatchedWorker{
		WorkerID:          workerID,
		LowWatermark:      lowWatermark,
		CriticalWatermark: criticalWatermark,
	})
}

// UnwatchWorker removes workerID from the roster.
func (r *Refueler) UnwatchWorker(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.watched[:0]
	for _, w := range r.watched {
		if w.WorkerID != workerID {
			kept = append(kept, w)
		}
	}
	r.watched = kept
	delete(r.report, workerID)
}

// LastReport returns the most recent poll's health entries.
func (r *Refueler) LastReport() []WorkerHealth {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]WorkerHealth, 0, len(r.report))
	for _, h := range r.report {
		out = append(out, h)
	}
	return out
}

// BudgetFor returns the last-polled budget for workerID, and whether
// any report exists yet.
func (r *Refueler) BudgetFor(workerID string) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.report[workerID]
	return h.Budget, ok
}

// BudgetFunc returns a closure suitable as worker.NewTask's budget
// supplier: it reads the last-polled balance for workerID, or 0 if
// none has been observed yet.
func (r *Refueler) BudgetFunc(workerID string) func() uint64 {
	return func() uint64 {
		b, _ := r.BudgetFor(workerID)
		return b
	}
}

// RunOnce polls every watched worker's budget once and updates the
// report. A no-op while stopped or with an empty roster, mirroring the
// heartbeat's should_run/watched.is_empty early returns.
func (r *Refueler) RunOnce(ctx context.Context) {
	r.mu.Lock()
	if !r.running || len(r.watched) == 0 {
		r.mu.Unlock()
		return
	}
	watched := make([]WatchedWorker, len(r.watched))
	copy(watched, r.watched)
	r.mu.Unlock()

	report := make(map[string]WorkerHealth, len(watched))
	now := r.now()

	for _, w := range watched {
		budget, err := r.source(ctx, w.WorkerID)
		if err != nil {
			log.Printf("[REFUELER] failed to query budget for %s: %v", w.WorkerID, err)
			continue
		}

		isCritical := budget < w.CriticalWatermark
		isLow := budget < w.LowWatermark

		if isCritical {
			log.Printf("[REFUELER] CRITICAL budget for %s: %d", w.WorkerID, budget)
		} else if isLow {
			log.Printf("[REFUELER] LOW budget for %s: %d", w.WorkerID, budget)
		}

		report[w.WorkerID] = WorkerHealth{
			WorkerID:          w.WorkerID,
			Budget:            budget,
			LowWatermark:      w.LowWatermark,
			CriticalWatermark: w.CriticalWatermark,
			IsLow:             isLow,
			IsCritical:        isCritical,
			LastCheckedNs:     now.UnixNano(),
		}
	}

	r.mu.Lock()
	r.report = report
	r.lastTick = now.UnixNano()
	r.mu.Unlock()
}

// StartHeartbeat runs RunOnce on a fixed interval until stopCh closes,
// the same ticker-driven poll loop core.LocalBroadcaster.ProcessBlocks
// uses for file polling.
func (r *Refueler) StartHeartbeat(ctx context.Context, interval time.Duration, stopCh <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.RunOnce(ctx)
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}
