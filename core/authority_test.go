package core_test

import (
	"testing"
	"time"

	"noncepool/core"
)

func TestAuthority_UninitializedReadsFail(t *testing.T) {
	a := core.NewAuthority(nil)
	if _, err := a.GetTip(); err != core.ErrChainNotInitialized {
		t.Fatalf("expected ErrChainNotInitialized, got %v", err)
	}
	if err := a.SubmitValidBlock("v1", "hash", nil); err != core.ErrChainNotInitialized {
		t.Fatalf("expected ErrChainNotInitialized on submit, got %v", err)
	}
}

func TestAuthority_SubmitValidBlock(t *testing.T) {
	now := time.Unix(1000, 0)
	a := core.NewAuthority(func() time.Time { return now })
	a.InitChain("genesis-hash", 8, "validator-1")

	if err := a.SubmitValidBlock("validator-2", "block-1", nil); err != core.ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for wrong caller, got %v", err)
	}

	newDiff := uint32(9)
	if err := a.SubmitValidBlock("validator-1", "block-1", &newDiff); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tip, err := a.GetTip()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tip.Height != 1 || tip.BlockHash != "block-1" || tip.Difficulty != 9 {
		t.Fatalf("unexpected tip after submit: %+v", tip)
	}
}

func TestAuthority_SetValidatorIsSelfAuthorized(t *testing.T) {
	a := core.NewAuthority(nil)
	a.InitChain("genesis-hash", 8, "validator-1")

	if err := a.SetValidator("not-the-validator", "validator-2"); err != core.ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	if err := a.SetValidator("validator-1", "validator-2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := a.GetValidator()
	if err != nil || got != "validator-2" {
		t.Fatalf("expected validator-2, got %q err=%v", got, err)
	}

	// validator-1 no longer has authority; only validator-2 (the new
	// self-authorizing holder) can rotate again.
	if err := a.SetValidator("validator-1", "validator-3"); err != core.ErrUnauthorized {
		t.Fatalf("expected old validator to lose authority, got %v", err)
	}
}
