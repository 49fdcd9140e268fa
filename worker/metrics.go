package worker

import (
	"fmt"
	"sync"
)

// MiningMetrics is a purely additive set of counters for one worker
// process. All fields are updated through the Record* methods; derived
// ratios are computed on demand by Summary.
type MiningMetrics struct {
	mu sync.Mutex

	TotalChunksMined     uint64
	TotalHashesComputed  uint64
	SuccessfulChunks     uint64
	FailedChunks         uint64

	TotalMiningTimeNs uint64
	FastestChunkNs    uint64
	SlowestChunkNs    uint64

	TotalInstructions       uint64
	MinInstructionsPerHash  uint64
	MaxInstructionsPerHash  uint64

	CacheHits   uint64
	CacheMisses uint64

	EarlyTerminations uint64
	ChunksAbandoned   uint64

	AdaptiveChunkChanges uint64
	AvgChunkSize         uint64

	SolutionsFound    uint64
	LastSolutionTime  uint64
}

// NewMiningMetrics returns a zeroed metrics set.
func NewMiningMetrics() *MiningMetrics {
	return &MiningMetrics{}
}

// MetricsSummary holds the derived, on-demand ratios over a MiningMetrics
// snapshot.
type MetricsSummary struct {
	TotalChunks             uint64
	TotalHashes             uint64
	SolutionsFound          uint64
	CacheHitRate            float64
	EarlyTerminationRate    float64
	AvgTimePerChunkMs       uint64
	AvgHashesPerChunk       uint64
	AvgInstructionsPerHash  uint64
	HashesPerSecond         uint64
}

// RecordChunk folds one chunk's sample into the counters. A sample with
// hashes == 0 must not update the per-hash instruction bounds.
func (m *MiningMetrics) RecordChunk(hashes, timeNs, instructions uint64, foundSolution, earlyTerminated bool, nowNs uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalChunksMined++
	m.TotalHashesComputed += hashes
	m.TotalMiningTimeNs += timeNs
	m.TotalInstructions += instructions

	switch {
	case foundSolution:
		m.SuccessfulChunks++
		m.SolutionsFound++
		m.LastSolutionTime = nowNs
	case earlyTerminated:
		m.ChunksAbandoned++
		m.EarlyTerminations++
	default:
		m.FailedChunks++
	}

	if m.FastestChunkNs == 0 || timeNs < m.FastestChunkNs {
		m.FastestChunkNs = timeNs
	}
	if timeNs > m.SlowestChunkNs {
		m.SlowestChunkNs = timeNs
	}

	if hashes > 0 {
		instrPerHash := instructions / hashes

		if m.MinInstructionsPerHash == 0 || instrPerHash < m.MinInstructionsPerHash {
			m.MinInstructionsPerHash = instrPerHash
		}
		if instrPerHash > m.MaxInstructionsPerHash {
			m.MaxInstructionsPerHash = instrPerHash
		}
	}
}

// RecordCacheHit increments the cache-hit counter.
func (m *MiningMetrics) RecordCacheHit() {
	m.mu.Lock()
	m.CacheHits++
	m.mu.Unlock()
}

// RecordCacheMiss increments the cache-miss counter.
func (m *MiningMetrics) RecordCacheMiss() {
	m.mu.Lock()
	m.CacheMisses++
	m.mu.Unlock()
}

// RecordAdaptiveChange folds a new chunk size into the running average
// and bumps the change counter.
func (m *MiningMetrics) RecordAdaptiveChange(newChunkSize uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AdaptiveChunkChanges++
	if m.AvgChunkSize == 0 {
		m.AvgChunkSize = newChunkSize
	} else {
		m.AvgChunkSize = (m.AvgChunkSize + newChunkSize) / 2
	}
}

// Summary computes the derived ratios from the raw counters.
func (m *MiningMetrics) Summary() MetricsSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	cacheTotal := m.CacheHits + m.CacheMisses
	var cacheHitRate float64
	if cacheTotal > 0 {
		cacheHitRate = (float64(m.CacheHits) / float64(cacheTotal)) * 100.0
	}

	var avgTimePerChunk uint64
	var avgHashesPerChunk uint64
	if m.TotalChunksMined > 0 {
		avgTimePerChunk = m.TotalMiningTimeNs / m.TotalChunksMined
		avgHashesPerChunk = m.TotalHashesComputed / m.TotalChunksMined
	}

	var avgInstructionsPerHash uint64
	if m.TotalHashesComputed > 0 {
		avgInstructionsPerHash = m.TotalInstructions / m.TotalHashesComputed
	}

	var hashesPerSecond uint64
	if m.TotalMiningTimeNs > 0 {
		hashesPerSecond = uint64((float64(m.TotalHashesComputed) / (float64(m.TotalMiningTimeNs) / 1e9)))
	}

	var earlyTerminationRate float64
	if m.TotalChunksMined > 0 {
		earlyTerminationRate = (float64(m.EarlyTerminations) / float64(m.TotalChunksMined)) * 100.0
	}

	return MetricsSummary{
		TotalChunks:            m.TotalChunksMined,
		TotalHashes:            m.TotalHashesComputed,
		SolutionsFound:         m.SolutionsFound,
		CacheHitRate:           cacheHitRate,
		EarlyTerminationRate:   earlyTerminationRate,
		AvgTimePerChunkMs:      avgTimePerChunk / 1_000_000,
		AvgHashesPerChunk:      avgHashesPerChunk,
		AvgInstructionsPerHash: avgInstructionsPerHash,
		HashesPerSecond:        hashesPerSecond,
	}
}

// Reset returns every counter to zero.
func (m *MiningMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalChunksMined, m.TotalHashesComputed, m.SuccessfulChunks, m.FailedChunks = 0, 0, 0, 0
	m.TotalMiningTimeNs, m.FastestChunkNs, m.SlowestChunkNs = 0, 0, 0
	m.TotalInstructions, m.MinInstructionsPerHash, m.MaxInstructionsPerHash = 0, 0, 0
	m.CacheHits, m.CacheMisses = 0, 0
	m.EarlyTerminations, m.ChunksAbandoned = 0, 0
	m.AdaptiveChunkChanges, m.AvgChunkSize = 0, 0
	m.SolutionsFound, m.LastSolutionTime = 0, 0
}

// ExportCSV renders a metric,value CSV report, a light convenience
// supplementing the core spec per the original Rust export_metrics_csv.
func (m *MiningMetrics) ExportCSV() string {
	m.mu.Lock()
	snapshot := *m
	m.mu.Unlock()
	snapshot.mu = sync.Mutex{}
	summary := snapshot.Summary()

	return fmt.Sprintf(
		"metric,value\n"+
			"total_chunks,%d\n"+
			"total_hashes,%d\n"+
			"solutions_found,%d\n"+
			"cache_hits,%d\n"+
			"cache_misses,%d\n"+
			"cache_hit_rate_percent,%.2f\n"+
			"early_terminations,%d\n"+
			"early_termination_rate_percent,%.2f\n"+
			"avg_time_per_chunk_ms,%d\n"+
			"avg_hashes_per_chunk,%d\n"+
			"avg_instructions_per_hash,%d\n"+
			"hashes_per_second,%d\n"+
			"min_instructions_per_hash,%d\n"+
			"max_instructions_per_hash,%d\n",
		snapshot.TotalChunksMined,
		snapshot.TotalHashesComputed,
		snapshot.SolutionsFound,
		snapshot.CacheHits,
		snapshot.CacheMisses,
		summary.CacheHitRate,
		snapshot.EarlyTerminations,
		summary.EarlyTerminationRate,
		summary.AvgTimePerChunkMs,
		summary.AvgHashesPerChunk,
		summary.AvgInstructionsPerHash,
		summary.HashesPerSecond,
		snapshot.MinInstructionsPerHash,
		snapshot.MaxInstructionsPerHash,
	)
}
