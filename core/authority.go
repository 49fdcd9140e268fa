package core

import (
	"errors"
	"sync"
	"time"
)

// ChainTip is the minimal public view of consensus state that a
// coordinator or monitoring client needs: the current tip hash,
// difficulty, and height.
type ChainTip struct {
	Height       uint64
	BlockHash    string
	Difficulty   uint32
	LastUpdateNs int64
}

// ErrChainNotInitialized is returned by every Authority read/write until
// InitChain has been called. The original canister traps with
// .expect("chain not initialized") on every accessor; panicking on a
// read is not idiomatic Go, so this is a sentinel error instead.
var ErrChainNotInitialized = errors.New("core: chain not initialized")

// ErrUnauthorized is returned when a caller other than the current
// validator attempts a validator-only write.
var ErrUnauthorized = errors.New("core: caller is not the current validator")

// Authority holds the single-validator admission-control state that
// gates which node may extend the ledger and who may rotate that
// privilege. Grounded on the chain-controller canister's
// init_chain/get_tip/submit_valid_block/set_validator surface: a single
// validator identity is authorized to submit accepted blocks, and that
// validator authorizes its own successor.
type Authority struct {
	mu          sync.RWMutex
	initialized bool
	tip         ChainTip
	validator   string

	now func() time.Time
}

// NewAuthority builds an uninitialized Authority. now, if nil, defaults
// to time.Now.
func NewAuthority(now func() time.Time) *Authority {
	if now == nil {
		now = time.Now
	}
	return &Authority{now: now}
}

// InitChain installs the genesis tip and the initial validator identity.
func (a *Authority) InitChain(genesisHash string, initialDifficulty uint32, validator string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.tip = ChainTip{
		Height:       0,
		BlockHash:    genesisHash,
		Difficulty:   initialDifficulty,
		LastUpdateNs: a.now().UnixNano(),
	}
	a.validator = validator
	a.initialized = true
}

// GetTip returns the current chain tip.
func (a *Authority) GetTip() (ChainTip, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.initialized {
		return ChainTip{}, ErrChainNotInitialized
	}
	return a.tip, nil
}

// GetDifficulty returns the tip's difficulty.
func (a *Authority) GetDifficulty() (uint32, error) {
	tip, err := a.GetTip()
	if err != nil {
		return 0, err
	}
	return tip.Difficulty, nil
}

// GetHeight returns the tip's height.
func (a *Authority) GetHeight() (uint64, error) {
	tip, err := a.GetTip()
	if err != nil {
		return 0, err
	}
	return tip.Height, nil
}

// GetValidator returns the currently authorized validator identity.
func (a *Authority) GetValidator() (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.initialized {
		return "", ErrChainNotInitialized
	}
	return a.validator, nil
}

// SubmitValidBlock advances the tip by one block. Only the currently
// authorized validator may call this; newDifficulty, if non-nil,
// overrides the tip's difficulty (a retarget boundary). Fails fast on a
// caller mismatch — no partial mutation, matching the original's
// caller-check-before-any-write ordering.
func (a *Authority) SubmitValidBlock(caller, newBlockHash string, newDifficulty *uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return ErrChainNotInitialized
	}
	if caller != a.validator {
		return ErrUnauthorized
	}

	a.tip.Height++
	a.tip.BlockHash = newBlockHash
	if newDifficulty != nil {
		a.tip.Difficulty = *newDifficulty
	}
	a.tip.LastUpdateNs = a.now().UnixNano()
	return nil
}

// SetValidator rotates the authorized validator. Self-authorized: the
// current validator approves its own successor, matching the literal
// caller == st.validator check in the original — there is no separate
// admin/owner identity distinct from the validator itself.
func (a *Authority) SetValidator(caller, newValidator string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return ErrChainNotInitialized
	}
	if caller != a.validator {
		return ErrUnauthorized
	}

	a.validator = newValidator
	return nil
}
