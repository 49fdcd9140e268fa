package worker_test

import (
	"strings"
	"testing"

	"noncepool/worker"
)

func TestMiningMetrics_RecordChunkBranches(t *testing.T) {
	m := worker.NewMiningMetrics()

	m.RecordChunk(1000, 5_000_000, 2000, false, false, 1)
	m.RecordChunk(500, 1_000_000, 1500, true, false, 2)
	m.RecordChunk(0, 2_000_000, 0, false, true, 3)

	if m.TotalChunksMined != 3 {
		t.Fatalf("expected 3 chunks, got %d", m.TotalChunksMined)
	}
	if m.SuccessfulChunks != 1 || m.FailedChunks != 1 || m.ChunksAbandoned != 1 {
		t.Fatalf("unexpected branch counters: success=%d failed=%d abandoned=%d",
			m.SuccessfulChunks, m.FailedChunks, m.ChunksAbandoned)
	}
	if m.SolutionsFound != 1 || m.LastSolutionTime != 2 {
		t.Fatalf("unexpected solution bookkeeping: found=%d last=%d", m.SolutionsFound, m.LastSolutionTime)
	}
	// The zero-hash sample must not perturb the instruction-per-hash bounds.
	if m.MinInstructionsPerHash != 2 {
		t.Fatalf("expected min instructions/hash 2, got %d", m.MinInstructionsPerHash)
	}
}

func TestMiningMetrics_SummaryDivideByZeroGuards(t *testing.T) {
	m := worker.NewMiningMetrics()
	s := m.Summary()
	if s.CacheHitRate != 0 || s.EarlyTerminationRate != 0 || s.AvgTimePerChunkMs != 0 {
		t.Fatalf("expected all-zero summary on fresh metrics, got %+v", s)
	}
}

func TestMiningMetrics_CacheHitRate(t *testing.T) {
	m := worker.NewMiningMetrics()
	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheMiss()

	s := m.Summary()
	if s.CacheHitRate != 75.0 {
		t.Fatalf("expected 75%% hit rate, got %v", s.CacheHitRate)
	}
}

func TestMiningMetrics_Reset(t *testing.T) {
	m := worker.NewMiningMetrics()
	m.RecordCacheHit()
	m.Reset()
	if m.CacheHits != 0 {
		t.Fatalf("expected CacheHits reset to zero, got %d", m.CacheHits)
	}
}

func TestMiningMetrics_ExportCSV(t *testing.T) {
	m := worker.NewMiningMetrics()
	m.RecordChunk(100, 1_000_000, 50, true, false, 1)

	csv := m.ExportCSV()
	if !strings.HasPrefix(csv, "metric,value\n") {
		t.Fatalf("expected CSV header, got: %s", csv)
	}
	if !strings.Contains(csv, "solutions_found,1\n") {
		t.Fatalf("expected solutions_found row, got: %s", csv)
	}
}
