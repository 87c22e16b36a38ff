package liquidity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/intercomswap/swap-core/internal/ln"
)

func TestNormalizeLND(t *testing.T) {
	views := Normalize([]ln.Channel{
		{ID: "c1", Peer: "p1", Active: true, LocalSats: 1000, RemoteSats: 500, CapacitySats: 1500},
	})
	require.Len(t, views, 1)
	require.True(t, views[0].Active)
	require.Equal(t, int64(1000), views[0].LocalSats)
}

func TestNormalizeCLN(t *testing.T) {
	views := Normalize([]ln.Channel{
		{ID: "c1", Peer: "p1", CapacitySats: 2000, SpendableMsat: 1_200_000, State: "CHANNELD_NORMAL"},
		{ID: "c2", Peer: "p2", CapacitySats: 2000, SpendableMsat: 500_000, State: "CHANNELD_AWAITING_LOCKIN"},
	})
	require.Len(t, views, 2)
	require.True(t, views[0].Active)
	require.Equal(t, int64(1200), views[0].LocalSats)
	require.False(t, views[1].Active)
}

func TestSummarizeIgnoresInactiveChannels(t *testing.T) {
	views := []ChannelView{
		{Active: true, LocalSats: 1000, RemoteSats: 200},
		{Active: true, LocalSats: 500, RemoteSats: 800},
		{Active: false, LocalSats: 9999, RemoteSats: 9999},
	}
	s := Summarize(views)
	require.Equal(t, 2, s.ChannelsActive)
	require.Equal(t, int64(1000), s.MaxOutboundSats)
	require.Equal(t, int64(1500), s.TotalOutboundSats)
	require.Equal(t, int64(800), s.MaxInboundSats)
	require.Equal(t, int64(1000), s.TotalInboundSats)
}

func TestPrecheckFailsOnNoActiveChannels(t *testing.T) {
	err := Precheck(Summary{}, ModeAggregate, 100, 0)
	require.Error(t, err)
}

func TestPrecheckSingleChannelUsesMax(t *testing.T) {
	s := Summary{ChannelsActive: 2, MaxOutboundSats: 1000, TotalOutboundSats: 1500}
	require.NoError(t, Precheck(s, ModeSingleChannel, 1000, 0))
	require.Error(t, Precheck(s, ModeSingleChannel, 1001, 0))
	require.NoError(t, Precheck(s, ModeAggregate, 1500, 0))
}

func TestSelectModePrefersSingleChannelWhenCovered(t *testing.T) {
	views := []ChannelView{
		{Active: true, LocalSats: 5000},
		{Active: true, LocalSats: 100},
	}
	require.Equal(t, ModeSingleChannel, SelectMode(views, 3000))
	require.Equal(t, ModeAggregate, SelectMode(views, 6000))
}

type fakeLNClient struct {
	ln.Client
	routes    [][]ln.Route
	callCount int
}

func (f *fakeLNClient) QueryRoutes(ctx context.Context, destinationHex string, amountSats int64, numRoutes int) ([]ln.Route, error) {
	idx := f.callCount
	f.callCount++
	if idx >= len(f.routes) {
		return nil, nil
	}
	return f.routes[idx], nil
}

func TestRoutePrecheckRetriesUntilFound(t *testing.T) {
	client := &fakeLNClient{routes: [][]ln.Route{nil, nil, {{HopCount: 2}}}}
	routes, err := RoutePrecheck(context.Background(), client, "deadbeef", 1000)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	require.Equal(t, 3, client.callCount)
}

func TestRoutePrecheckExhaustsAttempts(t *testing.T) {
	client := &fakeLNClient{}
	_, err := RoutePrecheck(context.Background(), client, "deadbeef", 1000)
	require.Error(t, err)
	require.Equal(t, RoutePrecheckAttempts, client.callCount)
}
