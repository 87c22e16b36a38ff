// Package liquidity implements C7: normalizing heterogeneous LN channel
// views into a common row, summarizing outbound/inbound capacity, and
// gating trade actions on "do we actually have enough liquidity".
package liquidity

import (
	"context"
	"fmt"
	"time"

	"github.com/intercomswap/swap-core/internal/apperr"
	"github.com/intercomswap/swap-core/internal/ln"
)

// Mode selects how "have" is computed from the per-side summary.
type Mode string

const (
	ModeSingleChannel Mode = "single_channel"
	ModeAggregate     Mode = "aggregate"
)

// ChannelView is the normalized per-channel row both LND-style
// (local_balance/remote_balance/active) and CLN-style (spendable_msat,
// state == "CHANNELD_NORMAL") backends are folded into.
type ChannelView struct {
	ID           string
	Peer         string
	Active       bool
	LocalSats    int64
	RemoteSats   int64
	CapacitySats int64
}

// Normalize converts raw backend channels into ChannelViews. A CLN channel
// is recognized by a non-empty State field; its spendable_msat becomes
// LocalSats (msat -> sat, floor), and Active is State == "CHANNELD_NORMAL".
func Normalize(raw []ln.Channel) []ChannelView {
	out := make([]ChannelView, 0, len(raw))
	for _, c := range raw {
		v := ChannelView{ID: c.ID, Peer: c.Peer, CapacitySats: c.CapacitySats}
		if c.State != "" {
			v.Active = c.State == "CHANNELD_NORMAL"
			v.LocalSats = c.SpendableMsat / 1000
			v.RemoteSats = c.CapacitySats - v.LocalSats
		} else {
			v.Active = c.Active
			v.LocalSats = c.LocalSats
			v.RemoteSats = c.RemoteSats
		}
		out = append(out, v)
	}
	return out
}

// Summary is the per-side aggregate computed over active channels only.
type Summary struct {
	ChannelsActive    int
	MaxOutboundSats   int64
	TotalOutboundSats int64
	MaxInboundSats    int64
	TotalInboundSats  int64
}

// Summarize folds views into a Summary, considering only active channels.
func Summarize(views []ChannelView) Summary {
	var s Summary
	for _, v := range views {
		if !v.Active {
			continue
		}
		s.ChannelsActive++
		s.TotalOutboundSats += v.LocalSats
		s.TotalInboundSats += v.RemoteSats
		if v.LocalSats > s.MaxOutboundSats {
			s.MaxOutboundSats = v.LocalSats
		}
		if v.RemoteSats > s.MaxInboundSats {
			s.MaxInboundSats = v.RemoteSats
		}
	}
	return s
}

// haveOutbound/haveInbound pick the "have" figure for mode.
func haveOutbound(s Summary, mode Mode) int64 {
	if mode == ModeSingleChannel {
		return s.MaxOutboundSats
	}
	return s.TotalOutboundSats
}

func haveInbound(s Summary, mode Mode) int64 {
	if mode == ModeSingleChannel {
		return s.MaxInboundSats
	}
	return s.TotalInboundSats
}

// Precheck asserts the side has at least one active channel and enough
// capacity (outbound, inbound, or both as requiredOutbound/requiredInbound
// dictate — pass 0 to skip a side). On failure the error carries every
// number involved for operator diagnosis, per spec.
func Precheck(s Summary, mode Mode, requiredOutboundSats, requiredInboundSats int64) error {
	if s.ChannelsActive < 1 {
		return apperr.Precondition("liquidity: no active channels (mode=%s)", mode)
	}
	if requiredOutboundSats > 0 {
		have := haveOutbound(s, mode)
		if have < requiredOutboundSats {
			return apperr.Precondition(
				"liquidity: insufficient outbound capacity: required=%d have=%d mode=%s channels_active=%d max_outbound=%d total_outbound=%d",
				requiredOutboundSats, have, mode, s.ChannelsActive, s.MaxOutboundSats, s.TotalOutboundSats)
		}
	}
	if requiredInboundSats > 0 {
		have := haveInbound(s, mode)
		if have < requiredInboundSats {
			return apperr.Precondition(
				"liquidity: insufficient inbound capacity: required=%d have=%d mode=%s channels_active=%d max_inbound=%d total_inbound=%d",
				requiredInboundSats, have, mode, s.ChannelsActive, s.MaxInboundSats, s.TotalInboundSats)
		}
	}
	return nil
}

// RoutePrecheckAttempts and RoutePrecheckBackoff bound the LND-only graph
// probe run when an invoice has no route hints and no single direct channel
// can cover the payment outbound.
const (
	RoutePrecheckAttempts = 3
	RoutePrecheckBackoff  = 500 * time.Millisecond
)

// RoutePrecheck runs QueryRoutes up to RoutePrecheckAttempts times with a
// short backoff, used as a last resort before ln_pay_and_post_verified when
// no direct channel obviously covers the invoice amount. It is a no-op
// (success) if the invoice already carries route hints or some single
// channel's outbound covers amountSats — callers decide that before calling.
func RoutePrecheck(ctx context.Context, client ln.Client, destinationHex string, amountSats int64) ([]ln.Route, error) {
	var lastErr error
	for attempt := 0; attempt < RoutePrecheckAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(RoutePrecheckBackoff):
			}
		}
		routes, err := client.QueryRoutes(ctx, destinationHex, amountSats, 1)
		if err != nil {
			lastErr = err
			continue
		}
		if len(routes) > 0 {
			return routes, nil
		}
		lastErr = apperr.Transient(nil, "liquidity: no route found to %s for %d sats", destinationHex, amountSats)
	}
	return nil, fmt.Errorf("liquidity: route precheck exhausted %d attempts: %w", RoutePrecheckAttempts, lastErr)
}

// SelectMode picks single_channel when some active channel alone covers
// requiredSats, else aggregate — the rule ln_pay_and_post_verified uses to
// choose its precheck mode (spec §4.9).
func SelectMode(views []ChannelView, requiredSats int64) Mode {
	for _, v := range views {
		if v.Active && v.LocalSats >= requiredSats {
			return ModeSingleChannel
		}
	}
	return ModeAggregate
}
