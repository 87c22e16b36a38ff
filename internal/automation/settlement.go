package automation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/intercomswap/swap-core/internal/model"
	"github.com/intercomswap/swap-core/internal/tools"
)

// advanceSettlement drives one swap:<trade_id> channel one step further:
// post TERMS (maker, no TERMS yet), or react to the TERMS already on the
// channel according to which side of it this peer is.
func (l *Loop) advanceSettlement(ctx context.Context, now time.Time, s *settlementCtx, budget *actionBudget) {
	if s.terminal() {
		return
	}
	terms := s.latestTerms()
	if terms == nil {
		l.maybePostTerms(ctx, now, s, budget)
		return
	}
	body, ok := decodeBody[model.TermsBody](terms.env)
	if !ok {
		return
	}
	switch l.deps.LocalPeer {
	case body.LNReceiverPeer:
		l.advanceMaker(ctx, now, s, body, budget)
	case body.LNPayerPeer:
		l.advanceTaker(ctx, now, s, body, budget)
	}
}

// maybePostTerms is the maker's entry into settlement: it only fires for
// trades this peer itself invited, using the numbers autoInvite seeded.
func (l *Loop) maybePostTerms(ctx context.Context, now time.Time, s *settlementCtx, budget *actionBudget) {
	seed, ok := l.pendingTerms[s.tradeID]
	if !ok {
		return
	}
	st := l.stage(s.tradeID, "terms_post")
	if st.done || !st.runnable(now) {
		return
	}
	if l.deps.LocalSolKey == "" {
		return
	}
	recipient := l.deps.PeerSolKeys[seed.takerPeer]
	if recipient == "" {
		l.finishStage(ctx, s.tradeID, "terms_post", l.cfg.TermsReplayCooldown,
			fmt.Errorf("terms_post: no solana address on file for peer %s", seed.takerPeer))
		return
	}
	snap, err := l.deps.Fees.Snapshot(ctx)
	if err != nil {
		l.finishStage(ctx, s.tradeID, "terms_post", l.cfg.TermsReplayCooldown, fmt.Errorf("terms_post: %w", err))
		return
	}
	if !budget.take() {
		return
	}

	_, err = l.deps.Exec.Execute(ctx, "terms", tools.Args{
		"channel":                s.channel,
		"trade_id":               s.tradeID,
		"btc_sats":               seed.btcSats,
		"usdt_amount":            seed.usdtAmount,
		"sol_mint":               l.deps.SolMint,
		"sol_recipient":          recipient,
		"sol_refund":             l.deps.LocalSolKey,
		"sol_refund_after_unix":  now.Add(l.cfg.SolRefundWindow).Unix(),
		"ln_payer_peer":          seed.takerPeer,
		"ln_receiver_peer":       l.deps.LocalPeer,
		"platform_fee_bps":       int64(snap.PlatformFeeBps),
		"trade_fee_bps":          int64(snap.TradeFeeBps),
		"trade_fee_collector":    snap.TradeFeeCollector,
		"platform_fee_collector": snap.PlatformFeeCollector,
		"terms_valid_until_unix": now.Add(l.cfg.TermsValidFor).Unix(),
	}, tools.Context{AutoApprove: true})
	// terms_post never "completes": it stays runnable so replay can resend
	// it on a cooldown until ACCEPT arrives or its own validity lapses.
	st.inFlight = false
	if err != nil {
		st.retryAfter = now.Add(l.cfg.TermsReplayCooldown)
		return
	}
	st.retryAfter = now.Add(l.cfg.TermsReplayCooldown)
}

// advanceMaker replays TERMS until ACCEPT or expiry, then drives the
// invoice and escrow stages once the taker has accepted.
func (l *Loop) advanceMaker(ctx context.Context, now time.Time, s *settlementCtx, body model.TermsBody, budget *actionBudget) {
	if len(s.accepts) == 0 {
		if now.Unix() > body.ValidUntilUnix {
			l.abortTrade(ctx, s.tradeID, fmt.Errorf("terms expired before accept"))
			return
		}
		l.replayTerms(ctx, now, s, body, budget)
		return
	}

	invoiceStage := l.stage(s.tradeID, "ln_invoice")
	if !invoiceStage.done {
		if !invoiceStage.runnable(now) || !budget.take() {
			return
		}
		invoiceStage.inFlight = true
		_, err := l.deps.Exec.Execute(ctx, "ln_invoice_create_and_post", tools.Args{
			"channel":     s.channel,
			"trade_id":    s.tradeID,
			"btc_sats":    body.BTCSats,
			"label":       "swap:" + s.tradeID,
			"description": "atomic swap settlement",
			"expiry_sec":  int64(600),
		}, tools.Context{AutoApprove: true})
		l.finishStage(ctx, s.tradeID, "ln_invoice", l.cfg.LNPayRetryCooldown, err)
		return
	}

	escrowStage := l.stage(s.tradeID, "sol_escrow")
	if escrowStage.done {
		return
	}
	if !escrowStage.runnable(now) || !budget.take() {
		return
	}
	invoice := s.latestInvoice()
	if invoice == nil {
		return
	}
	invoiceBody, ok := decodeBody[model.LNInvoiceBody](invoice.env)
	if !ok {
		return
	}

	amount, err := strconv.ParseUint(body.USDTAmount, 10, 64)
	if err != nil {
		l.finishStage(ctx, s.tradeID, "sol_escrow", l.cfg.LNPayRetryCooldown, fmt.Errorf("usdt_amount %q: %w", body.USDTAmount, err))
		return
	}
	platformFee := bpsOf(amount, body.PlatformFeeBps)
	tradeFee := bpsOf(amount, body.TradeFeeBps)

	escrowStage.inFlight = true
	_, err = l.deps.Exec.Execute(ctx, "sol_escrow_init_and_post", tools.Args{
		"channel":             s.channel,
		"trade_id":            s.tradeID,
		"payment_hash_hex":    invoiceBody.PaymentHashHex,
		"recipient":           body.SolRecipient,
		"refund":              body.SolRefund,
		"mint":                body.SolMint,
		"net_amount":          strconv.FormatUint(amount-platformFee-tradeFee, 10),
		"platform_fee_amount": strconv.FormatUint(platformFee, 10),
		"trade_fee_amount":    strconv.FormatUint(tradeFee, 10),
		"platform_fee_bps":    int64(body.PlatformFeeBps),
		"trade_fee_bps":       int64(body.TradeFeeBps),
		"trade_fee_collector": body.TradeFeeCollector,
		"refund_after_unix":   body.SolRefundAfterUnix,
	}, tools.Context{AutoApprove: true})
	l.finishStage(ctx, s.tradeID, "sol_escrow", l.cfg.LNRoutePrecheckCooldown, err)
}

func bpsOf(amount uint64, bps int) uint64 { return amount * uint64(bps) / 10000 }

// replayTerms resends TERMS every TermsReplayCooldown, up to TermsReplayMax
// times, the mechanism that carries a slow taker through sidechannel
// message loss.
func (l *Loop) replayTerms(ctx context.Context, now time.Time, s *settlementCtx, body model.TermsBody, budget *actionBudget) {
	rs, ok := l.termsReplay[s.tradeID]
	if !ok {
		rs = &termsReplayState{}
		l.termsReplay[s.tradeID] = rs
	}
	if rs.count >= l.cfg.TermsReplayMax || now.Before(rs.nextAt) {
		return
	}
	if !budget.take() {
		return
	}
	_, err := l.deps.Exec.Execute(ctx, "terms", tools.Args{
		"channel":                s.channel,
		"trade_id":               s.tradeID,
		"btc_sats":               body.BTCSats,
		"usdt_amount":            body.USDTAmount,
		"sol_mint":               body.SolMint,
		"sol_recipient":          body.SolRecipient,
		"sol_refund":             body.SolRefund,
		"sol_refund_after_unix":  body.SolRefundAfterUnix,
		"ln_payer_peer":          body.LNPayerPeer,
		"ln_receiver_peer":       body.LNReceiverPeer,
		"platform_fee_bps":       int64(body.PlatformFeeBps),
		"trade_fee_bps":          int64(body.TradeFeeBps),
		"trade_fee_collector":    body.TradeFeeCollector,
		"platform_fee_collector": body.PlatformFeeCollector,
		"terms_valid_until_unix": body.ValidUntilUnix,
	}, tools.Context{AutoApprove: true})
	if err == nil {
		rs.count++
	}
	rs.nextAt = now.Add(l.cfg.TermsReplayCooldown)
}

// advanceTaker accepts TERMS, route-prechecks the maker's invoice once it
// arrives, pays once the escrow backing it is visible, then claims.
func (l *Loop) advanceTaker(ctx context.Context, now time.Time, s *settlementCtx, body model.TermsBody, budget *actionBudget) {
	delete(l.waitingTerms, s.tradeID)

	acceptStage := l.stage(s.tradeID, "terms_accept")
	if !acceptStage.done {
		if now.Unix() > body.ValidUntilUnix {
			l.abortTrade(ctx, s.tradeID, fmt.Errorf("terms expired before accept"))
			return
		}
		if !acceptStage.runnable(now) || !budget.take() {
			return
		}
		acceptStage.inFlight = true
		_, err := l.deps.Exec.Execute(ctx, "accept", tools.Args{
			"channel":  s.channel,
			"trade_id": s.tradeID,
			"note":     "terms_ok",
		}, tools.Context{AutoApprove: true})
		l.finishStage(ctx, s.tradeID, "terms_accept", l.cfg.TermsReplayCooldown, err)
		return
	}

	invoice := s.latestInvoice()
	if invoice == nil {
		return
	}
	invoiceBody, ok := decodeBody[model.LNInvoiceBody](invoice.env)
	if !ok {
		return
	}

	precheckStage := l.stage(s.tradeID, "ln_route_precheck")
	if !precheckStage.done {
		if !precheckStage.runnable(now) || !budget.take() {
			return
		}
		precheckStage.inFlight = true
		_, err := l.deps.Exec.Execute(ctx, "ln_route_precheck", tools.Args{
			"channel":  s.channel,
			"trade_id": s.tradeID,
			"bolt11":   invoiceBody.Bolt11,
		}, tools.Context{AutoApprove: true})
		l.finishStage(ctx, s.tradeID, "ln_route_precheck", l.cfg.LNRoutePrecheckCooldown, err)
		return
	}

	escrow := s.latestEscrow()
	if escrow == nil {
		return
	}
	escrowBody, ok := decodeBody[model.SolEscrowCreatedBody](escrow.env)
	if !ok {
		return
	}
	if _, err := l.deps.Store.UpsertTrade(ctx, s.tradeID, model.TradePatch{
		SolEscrowPDA: &escrowBody.EscrowPDA,
		SolVaultATA:  &escrowBody.VaultATA,
	}); err != nil {
		return
	}

	payStage := l.stage(s.tradeID, "ln_pay")
	if !payStage.done {
		if !payStage.runnable(now) || !budget.take() {
			return
		}
		payStage.inFlight = true
		_, err := l.deps.Exec.Execute(ctx, "ln_pay_and_post_verified", tools.Args{
			"channel":  s.channel,
			"trade_id": s.tradeID,
		}, tools.Context{AutoApprove: true})
		if err != nil {
			if l.recordLNPayFailure(now, s.tradeID, err) {
				l.abortTrade(ctx, s.tradeID, fmt.Errorf("ln pay failed repeatedly: %w", err))
				payStage.inFlight = false
				return
			}
		} else {
			delete(l.lnPayFail, s.tradeID)
		}
		l.finishStage(ctx, s.tradeID, "ln_pay", l.cfg.LNPayRetryCooldown, err)
		return
	}

	claimStage := l.stage(s.tradeID, "sol_claim")
	if claimStage.done {
		return
	}
	if !claimStage.runnable(now) || !budget.take() {
		return
	}
	claimStage.inFlight = true
	_, err := l.deps.Exec.Execute(ctx, "sol_claim_and_post", tools.Args{
		"channel":  s.channel,
		"trade_id": s.tradeID,
		"mint":     body.SolMint,
	}, tools.Context{AutoApprove: true})
	l.finishStage(ctx, s.tradeID, "sol_claim", l.cfg.LNPayRetryCooldown, err)
}

// recordLNPayFailure tracks repeated ln_pay_and_post_verified failures and
// reports whether this trade should now be abandoned: either an unroutable
// invoice (permanent, no point retrying) or LNPayFailLeaveAttempts failures
// spread over at least LNPayFailLeaveMinWait.
func (l *Loop) recordLNPayFailure(now time.Time, tradeID string, err error) bool {
	if strings.Contains(strings.ToLower(err.Error()), "unroutable invoice") {
		return true
	}
	fs, ok := l.lnPayFail[tradeID]
	if !ok {
		fs = &lnPayFailState{firstFailAt: now}
		l.lnPayFail[tradeID] = fs
	}
	fs.failures++
	fs.lastFailAt = now
	return fs.failures >= l.cfg.LNPayFailLeaveAttempts && fs.lastFailAt.Sub(fs.firstFailAt) >= l.cfg.LNPayFailLeaveMinWait
}

// runWaitingTerms pings and eventually times out trades stuck between
// auto-join and a visible TERMS: the bus is at-least-once but not
// guaranteed-delivery, so a taker that joined but never saw TERMS needs to
// nudge the maker (by replaying its own QUOTE_ACCEPT) rather than wait
// forever.
func (l *Loop) runWaitingTerms(ctx context.Context, now time.Time, settle map[string]*settlementCtx, budget *actionBudget) {
	for tradeID, ws := range l.waitingTerms {
		if s, ok := settle["swap:"+tradeID]; ok && s.latestTerms() != nil {
			delete(l.waitingTerms, tradeID)
			continue
		}
		if now.Sub(ws.firstSeenAt) > l.cfg.WaitingTermsMaxWait {
			delete(l.waitingTerms, tradeID)
			if l.cfg.LeaveOnTimeout {
				_ = l.deps.Bus.Leave(ctx, "swap:"+tradeID)
			}
			continue
		}
		if now.Before(ws.nextPingAt) {
			continue
		}
		if !budget.take() {
			return
		}
		ws.pings++
		ws.nextPingAt = now.Add(l.cfg.WaitingTermsPingInterval)
		channel := "swap:" + tradeID
		_, _ = l.deps.Exec.Execute(ctx, "status", tools.Args{
			"channel":  channel,
			"trade_id": tradeID,
			"state":    "init",
			"note":     "waiting_terms",
		}, tools.Context{AutoApprove: true})
		if seed, ok := l.quoteAccepts[tradeID]; ok {
			_, _ = l.deps.Exec.Execute(ctx, "quote_accept", seed.args, tools.Context{AutoApprove: true})
		}
	}
}
