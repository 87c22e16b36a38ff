package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/intercomswap/swap-core/internal/envelope"
	"github.com/intercomswap/swap-core/internal/model"
	"github.com/intercomswap/swap-core/internal/schema"
)

// postEnvelope builds the unsigned envelope, signs it, validates the result
// against the wire schema, and sends it on channel — the shared tail every
// envelope-poster tool reduces to.
func postEnvelope(ctx context.Context, deps *Deps, channel string, kind model.Kind, tradeID string, body any) (model.Envelope, error) {
	unsigned, err := envelope.BuildUnsigned(kind, tradeID, deps.now().UnixMilli(), body)
	if err != nil {
		return model.Envelope{}, fmt.Errorf("build envelope: %w", err)
	}
	signed, err := envelope.Sign(unsigned, deps.Keypair)
	if err != nil {
		return model.Envelope{}, fmt.Errorf("sign envelope: %w", err)
	}
	if err := schema.ValidateEnvelope(signed); err != nil {
		return model.Envelope{}, fmt.Errorf("validate envelope: %w", err)
	}
	raw, err := json.Marshal(signed)
	if err != nil {
		return model.Envelope{}, fmt.Errorf("marshal envelope: %w", err)
	}
	if err := deps.Bus.Send(ctx, channel, raw); err != nil {
		return model.Envelope{}, fmt.Errorf("send envelope: %w", err)
	}
	if _, err := deps.Store.AppendEvent(ctx, tradeID, model.TradeEvent{
		TradeID:  tradeID,
		Kind:     string(kind),
		TS:       signed.TSMs,
		BodyJSON: string(raw),
	}); err != nil {
		return model.Envelope{}, fmt.Errorf("journal envelope: %w", err)
	}
	return signed, nil
}

var offerSpec = ArgSpec{
	"channel":         Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 200},
	"trade_id":        Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 128},
	"offer_id":        Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 128},
	"lines":           Field{Required: true, Kind: KindString, MaxLen: 4096},
	"expires_at_unix": Field{Required: true, Kind: KindInt, Min: 1},
	"rfq_channels":    Field{Kind: KindString, MaxLen: 2000},
}

// offerTool posts a maker's periodic svc_announce broadcast. lines is a
// ";"-separated list of "index:btc_sats:usdt_amount:platform_fee_bps:
// trade_fee_bps:refund_min_unix:refund_max_unix" entries — the executor's
// ArgSpec only validates scalar fields, so a structured offer sheet is
// flattened to one string the same way swap_invite flattens its payload.
func offerTool() *Tool {
	return &Tool{Name: "offer", Mutating: true, Spec: offerSpec, Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
		lines, err := parseOfferLines(Str(args, "lines"))
		if err != nil {
			return nil, fmt.Errorf("lines: %w", err)
		}
		var rfqChannels []string
		if raw := Str(args, "rfq_channels"); raw != "" {
			rfqChannels = strings.Split(raw, ",")
		}
		body := model.SvcAnnounceBody{
			OfferID:       Str(args, "offer_id"),
			Pair:          model.Pair,
			Lines:         lines,
			ExpiresAtUnix: Int(args, "expires_at_unix"),
			RFQChannels:   rfqChannels,
		}
		return postEnvelope(ctx, deps, Str(args, "channel"), model.KindSvcAnnounce, Str(args, "trade_id"), body)
	}}
}

func parseOfferLines(raw string) ([]model.OfferLine, error) {
	if raw == "" {
		return nil, fmt.Errorf("at least one offer line required")
	}
	var lines []model.OfferLine
	for _, entry := range strings.Split(raw, ";") {
		fields := strings.Split(entry, ":")
		if len(fields) != 7 {
			return nil, fmt.Errorf("offer line %q: expected 7 colon-separated fields, got %d", entry, len(fields))
		}
		lineIndex, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("offer line %q: line_index: %w", entry, err)
		}
		btcSats, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("offer line %q: btc_sats: %w", entry, err)
		}
		platformFeeBps, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("offer line %q: platform_fee_bps: %w", entry, err)
		}
		tradeFeeBps, err := strconv.Atoi(fields[4])
		if err != nil {
			return nil, fmt.Errorf("offer line %q: trade_fee_bps: %w", entry, err)
		}
		refundMin, err := strconv.ParseInt(fields[5], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("offer line %q: refund_window_min_unix: %w", entry, err)
		}
		refundMax, err := strconv.ParseInt(fields[6], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("offer line %q: refund_window_max_unix: %w", entry, err)
		}
		lines = append(lines, model.OfferLine{
			LineIndex:           lineIndex,
			BTCSats:             btcSats,
			USDTAmount:          fields[2],
			PlatformFeeBps:      platformFeeBps,
			TradeFeeBps:         tradeFeeBps,
			RefundWindowMinUnix: refundMin,
			RefundWindowMaxUnix: refundMax,
		})
	}
	return lines, nil
}

var rfqSpec = ArgSpec{
	"channel":                Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 200},
	"trade_id":               Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 128},
	"btc_sats":               Field{Required: true, Kind: KindInt, Min: 1},
	"usdt_amount":            Field{Required: true, Kind: KindString, Pattern: PatternDecimal},
	"max_platform_fee_bps":   Field{Required: true, Kind: KindInt, Min: 0, Max: 500},
	"max_trade_fee_bps":      Field{Required: true, Kind: KindInt, Min: 0, Max: 1000},
	"max_total_fee_bps":      Field{Required: true, Kind: KindInt, Min: 0, Max: 1500},
	"valid_until_unix":       Field{Required: true, Kind: KindInt, Min: 1},
}

func rfqTool() *Tool {
	return &Tool{Name: "rfq", Mutating: true, Spec: rfqSpec, Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
		body := model.RFQBody{
			Pair:              model.Pair,
			BTCSats:           Int(args, "btc_sats"),
			USDTAmount:        Str(args, "usdt_amount"),
			MaxPlatformFeeBps: int(Int(args, "max_platform_fee_bps")),
			MaxTradeFeeBps:    int(Int(args, "max_trade_fee_bps")),
			MaxTotalFeeBps:    int(Int(args, "max_total_fee_bps")),
			ValidUntilUnix:    Int(args, "valid_until_unix"),
		}
		return postEnvelope(ctx, deps, Str(args, "channel"), model.KindRFQ, Str(args, "trade_id"), body)
	}}
}

var quoteSpec = ArgSpec{
	"channel":          Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 200},
	"trade_id":         Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 128},
	"btc_sats":         Field{Required: true, Kind: KindInt, Min: 1},
	"usdt_amount":      Field{Required: true, Kind: KindString, Pattern: PatternDecimal},
	"platform_fee_bps": Field{Required: true, Kind: KindInt, Min: 0, Max: 500},
	"trade_fee_bps":    Field{Required: true, Kind: KindInt, Min: 0, Max: 1000},
	"offer_id":         Field{Kind: KindString, MaxLen: 128},
	"offer_line_index": Field{Kind: KindInt, Min: 0},
	"valid_until_unix": Field{Required: true, Kind: KindInt, Min: 1},
}

func quoteTool() *Tool {
	return &Tool{Name: "quote", Mutating: true, Spec: quoteSpec, Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
		if offerID := Str(args, "offer_id"); offerID != "" {
			if err := deps.Locks.CheckOfferLine(ctx, offerID, int(Int(args, "offer_line_index")), Str(args, "trade_id")); err != nil {
				return nil, fmt.Errorf("quote: %w", err)
			}
		}
		body := model.QuoteBody{
			Pair:           model.Pair,
			BTCSats:        Int(args, "btc_sats"),
			USDTAmount:     Str(args, "usdt_amount"),
			PlatformFeeBps: int(Int(args, "platform_fee_bps")),
			TradeFeeBps:    int(Int(args, "trade_fee_bps")),
			OfferID:        Str(args, "offer_id"),
			OfferLineIndex: int(Int(args, "offer_line_index")),
			ValidUntilUnix: Int(args, "valid_until_unix"),
		}
		return postEnvelope(ctx, deps, Str(args, "channel"), model.KindQuote, Str(args, "trade_id"), body)
	}}
}

var quoteAcceptSpec = ArgSpec{
	"channel":      Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 200},
	"trade_id":     Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 128},
	"rfq_id":       Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 128},
	"quote_peer":   Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 200},
	"mode":         Field{Required: true, Kind: KindString, MaxLen: 32},
	"required_sats": Field{Required: true, Kind: KindInt, Min: 0},
}

func quoteAcceptTool() *Tool {
	return &Tool{Name: "quote_accept", Mutating: true, Spec: quoteAcceptSpec, Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
		if err := deps.Locks.CheckRFQ(ctx, Str(args, "rfq_id"), Str(args, "trade_id")); err != nil {
			return nil, fmt.Errorf("quote_accept: %w", err)
		}
		views := liquidityViewsFromClient(ctx, deps)
		summary := liquiditySummarize(views)
		body := model.QuoteAcceptBody{
			RFQID:     Str(args, "rfq_id"),
			QuotePeer: Str(args, "quote_peer"),
			LNLiquidityHint: model.LiquidityHint{
				Mode:                  Str(args, "mode"),
				RequiredSats:          Int(args, "required_sats"),
				MaxSingleOutboundSats: summary.MaxOutboundSats,
				TotalOutboundSats:     summary.TotalOutboundSats,
				ActiveChannels:        summary.ChannelsActive,
				ObservedAtUnix:        deps.now().Unix(),
			},
		}
		return postEnvelope(ctx, deps, Str(args, "channel"), model.KindQuoteAccept, Str(args, "trade_id"), body)
	}}
}

var swapInviteSpec = ArgSpec{
	"channel":          Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 200},
	"trade_id":         Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 128},
	"swap_channel":     Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 200},
	"invitee_peer":     Field{Kind: KindString, MaxLen: 200},
	"welcome":          Field{Required: true, Kind: KindString, MaxLen: 4096},
	"invite":           Field{Required: true, Kind: KindString, MaxLen: 4096},
	"expires_at_unix":  Field{Required: true, Kind: KindInt, Min: 1},
	"offer_id":         Field{Kind: KindString, MaxLen: 128},
	"offer_line_index": Field{Kind: KindInt, Min: 0},
}

func swapInviteTool() *Tool {
	return &Tool{Name: "invite", Mutating: true, Spec: swapInviteSpec, Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
		if offerID := Str(args, "offer_id"); offerID != "" {
			if err := deps.Locks.CheckOfferLine(ctx, offerID, int(Int(args, "offer_line_index")), Str(args, "trade_id")); err != nil {
				return nil, fmt.Errorf("invite: %w", err)
			}
		}
		body := model.SwapInviteBody{
			SwapChannel:   Str(args, "swap_channel"),
			InviteePeer:   Str(args, "invitee_peer"),
			Welcome:       Str(args, "welcome"),
			Invite:        Str(args, "invite"),
			ExpiresAtUnix: Int(args, "expires_at_unix"),
		}
		return postEnvelope(ctx, deps, Str(args, "channel"), model.KindSwapInvite, Str(args, "trade_id"), body)
	}}
}

var joinSpec = ArgSpec{
	"channel": Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 200},
	"invite":  Field{Kind: KindString, MaxLen: 4096},
	"welcome": Field{Kind: KindString, MaxLen: 4096},
}

func joinTool() *Tool {
	return &Tool{Name: "join", Mutating: true, Spec: joinSpec, Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
		if err := deps.Bus.Join(ctx, Str(args, "channel"), Str(args, "invite"), Str(args, "welcome")); err != nil {
			return nil, fmt.Errorf("join channel: %w", err)
		}
		return map[string]any{"joined": Str(args, "channel")}, nil
	}}
}

var termsSpec = ArgSpec{
	"channel":                 Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 200},
	"trade_id":                Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 128},
	"btc_sats":                Field{Required: true, Kind: KindInt, Min: 1},
	"usdt_amount":             Field{Required: true, Kind: KindString, Pattern: PatternDecimal},
	"sol_mint":                Field{Required: true, Kind: KindString, Pattern: PatternBase58},
	"sol_recipient":           Field{Required: true, Kind: KindString, Pattern: PatternBase58},
	"sol_refund":              Field{Required: true, Kind: KindString, Pattern: PatternBase58},
	"sol_refund_after_unix":   Field{Required: true, Kind: KindInt, Min: 1},
	"ln_payer_peer":           Field{Required: true, Kind: KindString, MaxLen: 200},
	"ln_receiver_peer":        Field{Required: true, Kind: KindString, MaxLen: 200},
	"platform_fee_bps":        Field{Required: true, Kind: KindInt, Min: 0, Max: 500},
	"trade_fee_bps":           Field{Required: true, Kind: KindInt, Min: 0, Max: 1000},
	"trade_fee_collector":     Field{Required: true, Kind: KindString, Pattern: PatternBase58},
	"platform_fee_collector":  Field{Required: true, Kind: KindString, Pattern: PatternBase58},
	"terms_valid_until_unix":  Field{Required: true, Kind: KindInt, Min: 1},
}

func termsTool() *Tool {
	return &Tool{Name: "terms", Mutating: true, Spec: termsSpec, Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
		body := model.TermsBody{
			Pair:                 model.Pair,
			BTCSats:              Int(args, "btc_sats"),
			USDTAmount:           Str(args, "usdt_amount"),
			SolMint:              Str(args, "sol_mint"),
			SolRecipient:         Str(args, "sol_recipient"),
			SolRefund:            Str(args, "sol_refund"),
			SolRefundAfterUnix:   Int(args, "sol_refund_after_unix"),
			LNPayerPeer:          Str(args, "ln_payer_peer"),
			LNReceiverPeer:       Str(args, "ln_receiver_peer"),
			PlatformFeeBps:       int(Int(args, "platform_fee_bps")),
			TradeFeeBps:          int(Int(args, "trade_fee_bps")),
			TradeFeeCollector:    Str(args, "trade_fee_collector"),
			PlatformFeeCollector: Str(args, "platform_fee_collector"),
			AppHash:              envelopeAppHash(deps),
			ValidUntilUnix:       Int(args, "terms_valid_until_unix"),
		}
		tradeID := Str(args, "trade_id")
		state := model.TradeStateTerms
		if _, err := deps.Store.UpsertTrade(ctx, tradeID, model.TradePatch{
			State:                &state,
			Role:                 rolePtr(model.RoleMaker),
			MakerPeer:            &body.LNReceiverPeer,
			TakerPeer:            &body.LNPayerPeer,
			SwapChannel:          strPtr(Str(args, "channel")),
			BTCSats:              &body.BTCSats,
			USDTAmount:           &body.USDTAmount,
			SolMint:              &body.SolMint,
			SolRecipient:         &body.SolRecipient,
			SolRefund:            &body.SolRefund,
			SolRefundAfterUnix:   &body.SolRefundAfterUnix,
			PlatformFeeBps:       &body.PlatformFeeBps,
			TradeFeeBps:          &body.TradeFeeBps,
			TradeFeeCollector:    &body.TradeFeeCollector,
			PlatformFeeCollector: &body.PlatformFeeCollector,
		}); err != nil {
			return nil, fmt.Errorf("upsert terms state: %w", err)
		}
		return postEnvelope(ctx, deps, Str(args, "channel"), model.KindTerms, tradeID, body)
	}}
}

func strPtr(s string) *string { return &s }

var acceptSpec = ArgSpec{
	"channel":  Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 200},
	"trade_id": Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 128},
	"note":     Field{Kind: KindString, MaxLen: 500},
}

func acceptTool() *Tool {
	return &Tool{Name: "accept", Mutating: true, Spec: acceptSpec, Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
		body := model.AcceptBody{Note: Str(args, "note")}
		return postEnvelope(ctx, deps, Str(args, "channel"), model.KindAccept, Str(args, "trade_id"), body)
	}}
}

var cancelSpec = ArgSpec{
	"channel":  Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 200},
	"trade_id": Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 128},
	"reason":   Field{Required: true, Kind: KindString, MaxLen: 500},
}

func cancelTool() *Tool {
	return &Tool{Name: "cancel", Mutating: true, Spec: cancelSpec, Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
		reason := Str(args, "reason")
		body := model.CancelBody{Reason: reason}
		env, err := postEnvelope(ctx, deps, Str(args, "channel"), model.KindCancel, Str(args, "trade_id"), body)
		if err != nil {
			return nil, err
		}
		if _, err := deps.Store.UpsertTrade(ctx, Str(args, "trade_id"), model.TradePatch{State: statePtr(model.TradeStateCanceled), LastError: &reason}); err != nil {
			return nil, fmt.Errorf("upsert canceled state: %w", err)
		}
		return env, nil
	}}
}

var statusSpec = ArgSpec{
	"channel":  Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 200},
	"trade_id": Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 128},
	"state":    Field{Required: true, Kind: KindString, MaxLen: 64},
	"note":     Field{Kind: KindString, MaxLen: 500},
}

func statusTool() *Tool {
	return &Tool{Name: "status", Mutating: true, Spec: statusSpec, Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
		body := model.StatusBody{State: Str(args, "state"), Note: Str(args, "note")}
		return postEnvelope(ctx, deps, Str(args, "channel"), model.KindStatus, Str(args, "trade_id"), body)
	}}
}

func envelopeAppHash(deps *Deps) string {
	return envelope.AppHashHex(deps.Chain.ProgramID().String())
}

func statePtr(s model.TradeState) *model.TradeState { return &s }
func rolePtr(r model.Role) *model.Role               { return &r }
