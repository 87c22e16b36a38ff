package automation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/intercomswap/swap-core/internal/liquidity"
	"github.com/intercomswap/swap-core/internal/model"
	"github.com/intercomswap/swap-core/internal/tools"
)

// firstNonLocal returns the first event in evs this peer didn't itself
// send, or nil if every event is local (or evs is empty).
func firstNonLocal(evs []tradeEvent) *tradeEvent {
	for i := range evs {
		if !evs[i].raw.Local {
			return &evs[i]
		}
	}
	return nil
}

func anyLocal(evs []tradeEvent) bool {
	for _, e := range evs {
		if e.raw.Local {
			return true
		}
	}
	return false
}

func decodeBody[T any](env model.Envelope) (T, bool) {
	var v T
	if err := json.Unmarshal(env.Body, &v); err != nil {
		var zero T
		return zero, false
	}
	return v, true
}

// autoQuote implements spec §4.10's auto-quote: answer every fresh,
// unexpired, non-local RFQ I haven't already quoted, binding to a matching
// local offer line when one exists, or a bare quote when configured to.
func (l *Loop) autoQuote(ctx context.Context, now time.Time, neg map[string]*negotiationCtx, budget *actionBudget) {
	for tradeID, c := range neg {
		rfq := firstNonLocal(c.rfqs)
		if rfq == nil || anyLocal(c.quotes) {
			continue
		}
		body, ok := decodeBody[model.RFQBody](rfq.env)
		if !ok || now.Unix() > body.ValidUntilUnix {
			continue
		}

		offer, line, matched := l.matchOffer(body, rfq.raw.Channel, now)
		if !matched && !l.cfg.EnableQuoteFromRFQs {
			continue
		}
		if !budget.take() {
			return
		}

		args := tools.Args{
			"channel":          rfq.raw.Channel,
			"trade_id":         tradeID,
			"valid_until_unix": now.Add(time.Minute).Unix(),
		}
		if matched {
			args["btc_sats"] = line.BTCSats
			args["usdt_amount"] = line.USDTAmount
			args["platform_fee_bps"] = int64(line.PlatformFeeBps)
			args["trade_fee_bps"] = int64(line.TradeFeeBps)
			args["offer_id"] = offer.OfferID
			args["offer_line_index"] = int64(line.LineIndex)
		} else {
			args["btc_sats"] = body.BTCSats
			args["usdt_amount"] = body.USDTAmount
			args["platform_fee_bps"] = int64(body.MaxPlatformFeeBps)
			args["trade_fee_bps"] = int64(body.MaxTradeFeeBps)
		}
		_, _ = l.deps.Exec.Execute(ctx, "quote", args, tools.Context{AutoApprove: true})
	}
}

// matchOffer finds a local offer line satisfying the RFQ's terms: pair
// (implicit, there is only one), exact amount match, fee ceilings
// respected, refund-window ranges overlapping, the offer not expired, and
// its rfq_channels (if restricted) allowing the channel the RFQ arrived on.
func (l *Loop) matchOffer(body model.RFQBody, channel string, now time.Time) (LocalOffer, model.OfferLine, bool) {
	for _, offer := range l.deps.Offers {
		if offer.ExpiresAtUnix > 0 && now.Unix() > offer.ExpiresAtUnix {
			continue
		}
		if !offer.allowsChannel(channel) {
			continue
		}
		for _, line := range offer.Lines {
			if line.BTCSats != body.BTCSats || line.USDTAmount != body.USDTAmount {
				continue
			}
			if line.PlatformFeeBps > body.MaxPlatformFeeBps || line.TradeFeeBps > body.MaxTradeFeeBps {
				continue
			}
			if line.PlatformFeeBps+line.TradeFeeBps > body.MaxTotalFeeBps {
				continue
			}
			if body.RefundWindowMinUnix > 0 || body.RefundWindowMaxUnix > 0 {
				if line.RefundWindowMaxUnix < body.RefundWindowMinUnix || line.RefundWindowMinUnix > body.RefundWindowMaxUnix {
					continue
				}
			}
			return offer, line, true
		}
	}
	return LocalOffer{}, model.OfferLine{}, false
}

// autoAccept implements spec §4.10's auto-accept: for every non-local
// QUOTE against one of my own RFQs that I haven't already accepted, and
// whose RFQ hasn't expired, post QUOTE_ACCEPT with a fresh liquidity hint
// (the quote_accept tool fills the hint's numeric fields itself).
func (l *Loop) autoAccept(ctx context.Context, now time.Time, neg map[string]*negotiationCtx, budget *actionBudget) {
	for tradeID, c := range neg {
		myRFQ := firstLocalMatching(c.rfqs)
		if myRFQ == nil {
			continue
		}
		rfqBody, ok := decodeBody[model.RFQBody](myRFQ.env)
		if !ok || now.Unix() > rfqBody.ValidUntilUnix {
			continue
		}
		quote := firstNonLocal(c.quotes)
		if quote == nil || anyLocal(c.quoteAccepts) {
			continue
		}
		if !budget.take() {
			return
		}
		mode := liquidity.ModeAggregate
		quoteBody, _ := decodeBody[model.QuoteBody](quote.env)
		args := tools.Args{
			"channel":       quote.raw.Channel,
			"trade_id":      tradeID,
			"rfq_id":        tradeID,
			"quote_peer":    quote.env.Signer,
			"mode":          string(mode),
			"required_sats": quoteBody.BTCSats,
		}
		_, err := l.deps.Exec.Execute(ctx, "quote_accept", args, tools.Context{AutoApprove: true})
		if err == nil {
			l.quoteAccepts[tradeID] = quoteAcceptSeed{channel: quote.raw.Channel, args: args}
		}
	}
}

func firstLocalMatching(evs []tradeEvent) *tradeEvent {
	for i := range evs {
		if evs[i].raw.Local {
			return &evs[i]
		}
	}
	return nil
}

// autoInvite implements spec §4.10's auto-invite (maker side): once I see
// my own QUOTE accepted with a liquidity hint I can satisfy, invite the
// taker into a dedicated swap channel.
func (l *Loop) autoInvite(ctx context.Context, now time.Time, neg map[string]*negotiationCtx, budget *actionBudget) {
	for tradeID, c := range neg {
		myQuote := firstLocalMatching(c.quotes)
		if myQuote == nil || anyLocal(c.invites) {
			continue
		}
		accept := firstNonLocal(c.quoteAccepts)
		if accept == nil {
			continue
		}
		acceptBody, ok := decodeBody[model.QuoteAcceptBody](accept.env)
		if !ok {
			continue
		}
		haveSats := acceptBody.LNLiquidityHint.TotalOutboundSats
		if acceptBody.LNLiquidityHint.Mode == string(liquidity.ModeSingleChannel) {
			haveSats = acceptBody.LNLiquidityHint.MaxSingleOutboundSats
		}
		if haveSats < acceptBody.LNLiquidityHint.RequiredSats {
			continue
		}
		if !budget.take() {
			return
		}
		swapChannel := "swap:" + tradeID
		welcome := "welcome:" + tradeID
		invite := "invite:" + tradeID
		quoteBody, _ := decodeBody[model.QuoteBody](myQuote.env)
		args := tools.Args{
			"channel":         myQuote.raw.Channel,
			"trade_id":        tradeID,
			"swap_channel":    swapChannel,
			"invitee_peer":    accept.env.Signer,
			"welcome":         welcome,
			"invite":          invite,
			"expires_at_unix": now.Add(10 * time.Minute).Unix(),
		}
		if quoteBody.OfferID != "" {
			args["offer_id"] = quoteBody.OfferID
			args["offer_line_index"] = int64(quoteBody.OfferLineIndex)
		}
		_, err := l.deps.Exec.Execute(ctx, "invite", args, tools.Context{AutoApprove: true})
		if err != nil {
			continue
		}
		_ = l.deps.Bus.Subscribe(ctx, []string{swapChannel})
		l.pendingTerms[tradeID] = pendingTermsSeed{
			btcSats:    quoteBody.BTCSats,
			usdtAmount: quoteBody.USDTAmount,
			takerPeer:  accept.env.Signer,
			offerID:    quoteBody.OfferID,
		}
	}
}

// autoJoin implements spec §4.10's auto-join (taker side): join the swap
// channel named in any SWAP_INVITE addressed to me (or unaddressed) that I
// haven't already joined.
func (l *Loop) autoJoin(ctx context.Context, now time.Time, neg map[string]*negotiationCtx, budget *actionBudget) {
	for tradeID, c := range neg {
		invite := firstNonLocal(c.invites)
		if invite == nil {
			continue
		}
		body, ok := decodeBody[model.SwapInviteBody](invite.env)
		if !ok {
			continue
		}
		if body.InviteePeer != "" && body.InviteePeer != l.deps.LocalPeer {
			continue
		}
		if now.Unix() > body.ExpiresAtUnix {
			continue
		}
		s := l.stage(tradeID, "join")
		if s.done {
			continue
		}
		if !budget.take() {
			return
		}
		_ = l.deps.Bus.AddInviterKey(invite.env.Signer)
		_, err := l.deps.Exec.Execute(ctx, "join", tools.Args{
			"channel": body.SwapChannel,
			"invite":  body.Invite,
			"welcome": body.Welcome,
		}, tools.Context{AutoApprove: true})
		if err == nil {
			s.done = true
			l.waitingTerms[tradeID] = &waitingTermsState{firstSeenAt: now, nextPingAt: now}
		}
	}
}
