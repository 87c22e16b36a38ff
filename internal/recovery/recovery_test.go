package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/intercomswap/swap-core/internal/model"
	"github.com/intercomswap/swap-core/internal/receipts/memory"
)

func TestListOpenClaimsOnlyReturnsTradesWithEscrowAndPreimage(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	mustUpsert(t, store, "ready", model.TradePatch{
		State:         statePtr(model.TradeStateLNPaid),
		SolEscrowPDA:  strPtr("Escrow111"),
		LNPreimageHex: strPtr("aa"),
	})
	mustUpsert(t, store, "no-preimage", model.TradePatch{
		State:        statePtr(model.TradeStateLNPaid),
		SolEscrowPDA: strPtr("Escrow222"),
	})
	mustUpsert(t, store, "wrong-state", model.TradePatch{
		State:         statePtr(model.TradeStateInvoice),
		SolEscrowPDA:  strPtr("Escrow333"),
		LNPreimageHex: strPtr("bb"),
	})

	s := &Scanner{Store: store}
	claims, err := s.ListOpenClaims(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(claims) != 1 || claims[0].TradeID != "ready" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestListOpenRefundsRequiresElapsedWindow(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	now := time.Unix(1_900_000_000, 0)

	mustUpsert(t, store, "due", model.TradePatch{
		State:              statePtr(model.TradeStateEscrow),
		SolEscrowPDA:       strPtr("Escrow111"),
		SolRefundAfterUnix: int64Ptr(now.Unix() - 10),
	})
	mustUpsert(t, store, "not-yet", model.TradePatch{
		State:              statePtr(model.TradeStateEscrow),
		SolEscrowPDA:       strPtr("Escrow222"),
		SolRefundAfterUnix: int64Ptr(now.Unix() + 600),
	})
	mustUpsert(t, store, "terminal", model.TradePatch{
		State:              statePtr(model.TradeStateClaimed),
		SolEscrowPDA:       strPtr("Escrow333"),
		SolRefundAfterUnix: int64Ptr(now.Unix() - 10),
	})

	s := &Scanner{Store: store, Now: func() time.Time { return now }}
	refunds, err := s.ListOpenRefunds(ctx, now.Unix())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refunds) != 1 || refunds[0].TradeID != "due" {
		t.Fatalf("unexpected refunds: %+v", refunds)
	}
}

func statePtr(s model.TradeState) *model.TradeState { return &s }
func strPtr(s string) *string                        { return &s }
func int64Ptr(v int64) *int64                        { return &v }

func mustUpsert(t *testing.T, store *memory.Store, tradeID string, patch model.TradePatch) {
	t.Helper()
	if _, err := store.UpsertTrade(context.Background(), tradeID, patch); err != nil {
		t.Fatalf("upsert %s: %v", tradeID, err)
	}
}
