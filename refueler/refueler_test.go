package refueler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"noncepool/refueler"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRefueler_RunOnceNoopWhenStopped(t *testing.T) {
	calls := 0
	source := func(ctx context.Context, workerID string) (uint64, error) {
		calls++
		return 1, nil
	}
	r := refueler.New(source, fixedClock(time.Unix(1000, 0)))
	r.WatchWorker("w1", 0, 0)
	r.RunOnce(context.Background())

	if calls != 0 {
		t.Fatalf("expected no source calls while stopped, got %d", calls)
	}
	if _, ok := r.BudgetFor("w1"); ok {
		t.Fatalf("expected no report while stopped")
	}
}

func TestRefueler_RunOnceReportsWatermarks(t *testing.T) {
	budgets := map[string]uint64{
		"healthy":  10_000_000_000_000,
		"low":      1_000_000_000_000,
		"critical": 100_000_000_000,
	}
	source := func(ctx context.Context, workerID string) (uint64, error) {
		return budgets[workerID], nil
	}

	r := refueler.New(source, fixedClock(time.Unix(2000, 0)))
	r.Start()
	for id := range budgets {
		r.WatchWorker(id, 0, 0)
	}
	r.RunOnce(context.Background())

	report := r.LastReport()
	if len(report) != 3 {
		t.Fatalf("expected 3 report entries, got %d", len(report))
	}

	byID := make(map[string]refueler.WorkerHealth, len(report))
	for _, h := range report {
		byID[h.WorkerID] = h
	}

	if h := byID["healthy"]; h.IsLow || h.IsCritical {
		t.Fatalf("expected healthy worker to be neither low nor critical: %+v", h)
	}
	if h := byID["low"]; !h.IsLow || h.IsCritical {
		t.Fatalf("expected low worker to be low but not critical: %+v", h)
	}
	if h := byID["critical"]; !h.IsLow || !h.IsCritical {
		t.Fatalf("expected critical worker to be both low and critical: %+v", h)
	}

	gotBudget, ok := r.BudgetFor("low")
	if !ok || gotBudget != budgets["low"] {
		t.Fatalf("BudgetFor(low) = %d, %v; want %d, true", gotBudget, ok, budgets["low"])
	}
}

func TestRefueler_BudgetFuncDefaultsToZero(t *testing.T) {
	r := refueler.New(func(ctx context.Context, workerID string) (uint64, error) { return 0, nil }, nil)
	f := r.BudgetFunc("never-watched")
	if got := f(); got != 0 {
		t.Fatalf("expected 0 for unreported worker, got %d", got)
	}
}

func TestRefueler_RunOnceSkipsSourceErrors(t *testing.T) {
	source := func(ctx context.Context, workerID string) (uint64, error) {
		if workerID == "broken" {
			return 0, errors.New("status unavailable")
		}
		return 5_000_000_000_000, nil
	}
	r := refueler.New(source, fixedClock(time.Unix(3000, 0)))
	r.Start()
	r.WatchWorker("broken", 0, 0)
	r.WatchWorker("ok", 0, 0)
	r.RunOnce(context.Background())

	if _, ok := r.BudgetFor("broken"); ok {
		t.Fatalf("expected no report entry for a worker whose source call errored")
	}
	if _, ok := r.BudgetFor("ok"); !ok {
		t.Fatalf("expected a report entry for the healthy worker")
	}
}

func TestRefueler_UnwatchWorkerRemovesFromRoster(t *testing.T) {
	calls := make(map[string]int)
	source := func(ctx context.Context, workerID string) (uint64, error) {
		calls[workerID]++
		return 5_000_000_000_000, nil
	}
	r := refueler.New(source, fixedClock(time.Unix(4000, 0)))
	r.Start()
	r.WatchWorker("w1", 0, 0)
	r.WatchWorker("w2", 0, 0)
	r.UnwatchWorker("w1")
	r.RunOnce(context.Background())

	if calls["w1"] != 0 {
		t.Fatalf("expected unwatched worker not to be polled, got %d calls", calls["w1"])
	}
	if calls["w2"] != 1 {
		t.Fatalf("expected watched worker to be polled once, got %d calls", calls["w2"])
	}
}
