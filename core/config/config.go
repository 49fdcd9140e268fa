// Package config holds the package-level knobs the daemon reads at
// startup, mirroring the teacher's style of plain vars/consts rather than
// a config-struct-plus-loader. No CLI flag overrides them.
package config

// Difficulty retarget parameters for the ledger's own periodic retarget
// (distinct from the validator's per-call CalculateDifficultyAdjustment,
// which this retarget delegates to — see core/difficulty.go).
const (
	RetargetInterval      = 2016 // # of blocks between adjustments
	TargetBlockSpacingSec = 600  // desired seconds per block (10 minutes)
)

// PruneDepth controls how many blocks to keep (0 = keep all, i.e.
// archival node).
var PruneDepth uint64 = 100

// EpochBlocks is reported in startup diagnostics alongside the retarget
// and prune knobs.
var EpochBlocks uint64 = 20

// ChunkBase is the chunk size the daemon's scheduler dispatches with for
// every block template (spec §4.2's BASE; mirrors worker.ChunkBase). The
// scheduler keeps this size for the whole search; it does not adapt it.
const ChunkBase = 200_000
