package automation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/intercomswap/swap-core/internal/apperr"
	"github.com/intercomswap/swap-core/internal/model"
)

func TestActionBudgetStopsAtZero(t *testing.T) {
	b := newActionBudget(2)
	if !b.take() || !b.take() {
		t.Fatal("expected the first two takes to succeed")
	}
	if b.take() {
		t.Fatal("expected the budget to be exhausted")
	}
}

func TestStageReturnsSamePointerForSameKey(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	l, _ := newTestLoop(t, "maker", DefaultConfig(), now)
	a := l.stage("t1", "terms")
	b := l.stage("t1", "terms")
	if a != b {
		t.Fatal("expected the same stageState for the same trade/name pair")
	}
	c := l.stage("t1", "ln_pay")
	if a == c {
		t.Fatal("expected a distinct stageState for a different stage name")
	}
}

func TestIsPermanentFailureNilIsNotPermanent(t *testing.T) {
	if isPermanentFailure(nil) {
		t.Fatal("nil error must not be permanent")
	}
}

func TestIsPermanentFailureMatchesNamedPhrasesRegardlessOfType(t *testing.T) {
	err := apperr.Transient(errors.New("boom"), "listing_filled for rfq:x")
	if !isPermanentFailure(err) {
		t.Fatal("expected listing_filled to be permanent even wrapped in a transient AppError")
	}
}

func TestIsPermanentFailureDefersToRetryableForOtherErrors(t *testing.T) {
	if isPermanentFailure(apperr.Precondition("not ready yet")) {
		t.Fatal("expected a precondition error to be retryable, not permanent")
	}
	if !isPermanentFailure(apperr.Validation("bad input")) {
		t.Fatal("expected a validation error to be permanent")
	}
	if !isPermanentFailure(fmt.Errorf("some plain error")) {
		t.Fatal("expected a non-AppError to be treated as permanent")
	}
}

func TestFinishStageMarksDoneOnSuccess(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	l, _ := newTestLoop(t, "maker", DefaultConfig(), now)
	l.stage("t1", "terms").inFlight = true
	l.finishStage(context.Background(), "t1", "terms", time.Second, nil)
	s := l.stage("t1", "terms")
	if !s.done || s.inFlight {
		t.Fatalf("unexpected stage state after success: %+v", s)
	}
}

func TestFinishStageSchedulesRetryOnTransientFailure(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	cfg := DefaultConfig()
	cfg.StageRetryMax = 3
	l, _ := newTestLoop(t, "maker", cfg, now)
	l.stage("t1", "ln_pay").inFlight = true
	l.finishStage(context.Background(), "t1", "ln_pay", 5*time.Second, apperr.Transient(errors.New("timeout"), "ln pay failed"))
	s := l.stage("t1", "ln_pay")
	if s.done {
		t.Fatal("expected stage to remain not-done after a retryable failure")
	}
	if s.retryCount != 1 {
		t.Fatalf("expected retryCount 1, got %d", s.retryCount)
	}
	if !s.retryAfter.After(now) {
		t.Fatal("expected retryAfter to be pushed into the future")
	}
}

func TestFinishStageAbortsOnPermanentFailure(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	l, bus := newTestLoop(t, "maker", DefaultConfig(), now)
	bus.joined["swap:t1"] = true
	l.stage("t1", "terms").inFlight = true

	l.finishStage(context.Background(), "t1", "terms", time.Second, apperr.Validation("listing_filled"))

	if len(bus.left) != 1 || bus.left[0] != "swap:t1" {
		t.Fatalf("expected abortTrade to leave swap:t1, got %+v", bus.left)
	}
	if len(bus.sentOfKind(model.KindCancel)) != 1 {
		t.Fatal("expected a cancel envelope to be posted")
	}
}

func TestFinishStageAbortsAfterRetryBudgetExhausted(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	cfg := DefaultConfig()
	cfg.StageRetryMax = 1
	l, bus := newTestLoop(t, "maker", cfg, now)
	bus.joined["swap:t1"] = true

	retryable := apperr.Precondition("not ready yet")
	l.finishStage(context.Background(), "t1", "terms", time.Second, retryable)
	if len(bus.left) != 0 {
		t.Fatal("expected the first retryable failure not to abort yet")
	}
	l.finishStage(context.Background(), "t1", "terms", time.Second, retryable)
	if len(bus.left) != 1 {
		t.Fatal("expected the stage to abort once retryCount reaches StageRetryMax")
	}
}

func TestAbortTradeSkipsCancelOnceEscrowStageIsDone(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	l, bus := newTestLoop(t, "maker", DefaultConfig(), now)
	bus.joined["swap:t1"] = true
	l.stage("t1", "sol_escrow").done = true

	l.abortTrade(context.Background(), "t1", errors.New("ln route unreachable"))

	if len(bus.sentOfKind(model.KindCancel)) != 0 {
		t.Fatal("expected no CANCEL once escrow funding already happened")
	}
	if len(bus.left) != 1 {
		t.Fatal("expected the channel to still be left")
	}
}

func TestAbortTradeSkipsCancelWhenStoreShowsEscrowAfterRestart(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	l, bus := newTestLoop(t, "maker", DefaultConfig(), now)
	bus.joined["swap:t1"] = true
	if err := l.deps.Store.CreateTrade(context.Background(), &model.Trade{TradeID: "t1", State: model.TradeStateEscrow}); err != nil {
		t.Fatalf("seed trade: %v", err)
	}

	// A fresh Loop has an empty in-memory stage map, the same as a process
	// restarted right after SOL_ESCROW_CREATED landed in the store but
	// before the old process could mark its own stage done.
	restarted := NewLoop(DefaultConfig(), l.deps)
	restarted.abortTrade(context.Background(), "t1", errors.New("ln route unreachable"))

	if len(bus.sentOfKind(model.KindCancel)) != 0 {
		t.Fatal("expected no CANCEL: the receipts store already shows this trade's escrow funded")
	}
	if len(bus.left) != 1 {
		t.Fatal("expected the channel to still be left")
	}
}
