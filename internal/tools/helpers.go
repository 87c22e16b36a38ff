package tools

import (
	"context"

	"github.com/intercomswap/swap-core/internal/liquidity"
)

// liquidityViewsFromClient fetches and normalizes the configured LN client's
// current channel set. Returns an empty slice (not an error) if no LN
// client is wired, so read-only hint tools degrade gracefully.
func liquidityViewsFromClient(ctx context.Context, deps *Deps) []liquidity.ChannelView {
	if deps.LN == nil {
		return nil
	}
	raw, err := deps.LN.ListChannels(ctx)
	if err != nil {
		return nil
	}
	return liquidity.Normalize(raw)
}

func liquiditySummarize(views []liquidity.ChannelView) liquidity.Summary {
	return liquidity.Summarize(views)
}

// pickLiquidityMode mirrors internal/liquidity.SelectMode, exposed here so
// settlement composites can log the chosen mode.
func pickLiquidityMode(views []liquidity.ChannelView, requiredSats int64) liquidity.Mode {
	return liquidity.SelectMode(views, requiredSats)
}
