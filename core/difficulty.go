package core

import (
	"noncepool/core/config"
	"noncepool/core/header"
	"noncepool/validator"
)

// ChainReader is the minimal read-only view the retarget path needs:
// a canonical header accessor and the current tip height.
type ChainReader interface {
	HeaderByHeight(height uint64) *header.Header
	Height() uint64
}

// RetargetAdjust recomputes the difficulty at a retarget boundary,
// gathering the actual per-block spacings over the last
// config.RetargetInterval blocks and delegating the tiered adjustment
// decision to validator.CalculateDifficultyAdjustment — the same
// function the Validator itself uses to check a proposed adjustment,
// so the chain and the Validator never disagree on the formula.
//
// Returns currentDifficulty unchanged if there isn't yet a full
// interval of history, or if any header in the window can't be read.
func RetargetAdjust(chain ChainReader, tipHeight uint64, currentDifficulty uint32) uint32 {
	interval := uint64(config.RetargetInterval)
	if tipHeight < interval {
		return currentDifficulty
	}

	firstHeight := tipHeight - interval + 1
	prev := chain.HeaderByHeight(firstHeight)
	if prev == nil {
		return currentDifficulty
	}

	actual := make([]uint64, 0, interval)
	for h := firstHeight + 1; h <= tipHeight; h++ {
		cur := chain.HeaderByHeight(h)
		if cur == nil {
			return currentDifficulty
		}
		spacing := cur.Timestamp.Sub(prev.Timestamp)
		if spacing < 0 {
			spacing = 0
		}
		actual = append(actual, uint64(spacing.Seconds()))
		prev = cur
	}

	return validator.CalculateDifficultyAdjustment(currentDifficulty, config.TargetBlockSpacingSec, actual)
}
