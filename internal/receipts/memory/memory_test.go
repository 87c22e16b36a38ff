package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intercomswap/swap-core/internal/model"
	"github.com/intercomswap/swap-core/internal/receipts"
)

func TestCreateAndGetTrade(t *testing.T) {
	s := New()
	ctx := context.Background()

	trade := &model.Trade{TradeID: "t1", State: model.TradeStateRFQ}
	require.NoError(t, s.CreateTrade(ctx, trade))

	got, err := s.GetTrade(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, model.TradeStateRFQ, got.State)
	require.False(t, got.CreatedAt.IsZero())
}

func TestGetTradeNotFound(t *testing.T) {
	s := New()
	_, err := s.GetTrade(context.Background(), "missing")
	require.ErrorIs(t, err, receipts.ErrNotFound)
}

func TestUpsertTradeIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	state := model.TradeStateTerms
	patch := model.TradePatch{State: &state}

	first, err := s.UpsertTrade(ctx, "t2", patch)
	require.NoError(t, err)
	require.Equal(t, model.TradeStateTerms, first.State)

	second, err := s.UpsertTrade(ctx, "t2", patch)
	require.NoError(t, err)
	require.Equal(t, first.State, second.State)
	require.Equal(t, first.TradeID, second.TradeID)
}

func TestListTradesByState(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateTrade(ctx, &model.Trade{TradeID: "a", State: model.TradeStateRFQ}))
	require.NoError(t, s.CreateTrade(ctx, &model.Trade{TradeID: "b", State: model.TradeStateAccepted}))
	require.NoError(t, s.CreateTrade(ctx, &model.Trade{TradeID: "c", State: model.TradeStateRFQ}))

	rfqs, err := s.ListTradesByState(ctx, model.TradeStateRFQ)
	require.NoError(t, err)
	require.Len(t, rfqs, 2)
}

func TestAppendAndListEventsOrdersBySeq(t *testing.T) {
	s := New()
	ctx := context.Background()

	ev1, err := s.AppendEvent(ctx, "t3", model.TradeEvent{Kind: "rfq"})
	require.NoError(t, err)
	require.Equal(t, int64(1), ev1.Seq)

	ev2, err := s.AppendEvent(ctx, "t3", model.TradeEvent{Kind: "terms"})
	require.NoError(t, err)
	require.Equal(t, int64(2), ev2.Seq)

	all, err := s.ListEvents(ctx, "t3")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "rfq", all[0].Kind)
	require.Equal(t, "terms", all[1].Kind)
}
