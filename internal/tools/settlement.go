package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/intercomswap/swap-core/internal/apperr"
	"github.com/intercomswap/swap-core/internal/liquidity"
	"github.com/intercomswap/swap-core/internal/ln"
	"github.com/intercomswap/swap-core/internal/model"
	"github.com/intercomswap/swap-core/internal/prepay"
	"github.com/intercomswap/swap-core/internal/solchain"
)

// Each composite in this file is atomic from the caller's view: it performs
// one external side effect and, on success, journals the trade and emits
// the corresponding envelope; any failure along the way surfaces as a
// single error and nothing downstream of the failed step runs.

var lnInvoiceCreateAndPostSpec = ArgSpec{
	"channel":     Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 200},
	"trade_id":    Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 128},
	"btc_sats":    Field{Required: true, Kind: KindInt, Min: 1},
	"label":       Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 200},
	"description": Field{Kind: KindString, MaxLen: 500},
	"expiry_sec":  Field{Required: true, Kind: KindInt, Min: 1},
}

func lnInvoiceCreateAndPostTool() *Tool {
	return &Tool{Name: "ln_invoice_create_and_post", Mutating: true, Spec: lnInvoiceCreateAndPostSpec,
		Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
			btcSats := Int(args, "btc_sats")

			views := liquidityViewsFromClient(ctx, deps)
			summary := liquiditySummarize(views)
			if err := liquidity.Precheck(summary, liquidity.ModeAggregate, 0, btcSats); err != nil {
				return nil, fmt.Errorf("inbound liquidity precheck: %w", err)
			}

			amountMsat := btcSats * 1000
			inv, err := deps.LN.Invoice(ctx, amountMsat, Str(args, "label"), Str(args, "description"), Int(args, "expiry_sec"))
			if err != nil {
				return nil, fmt.Errorf("create invoice: %w", err)
			}

			tradeID := Str(args, "trade_id")
			state := model.TradeStateInvoice
			if _, err := deps.Store.UpsertTrade(ctx, tradeID, model.TradePatch{
				State:            &state,
				LNInvoiceBolt11:  &inv.Bolt11,
				LNPaymentHashHex: &inv.PaymentHashHex,
			}); err != nil {
				return nil, fmt.Errorf("upsert invoice state: %w", err)
			}

			body := model.LNInvoiceBody{
				Bolt11:         inv.Bolt11,
				PaymentHashHex: inv.PaymentHashHex,
				AmountMsat:     strconv.FormatInt(amountMsat, 10),
				ExpiresAtUnix:  inv.ExpiresAtUnix,
			}
			return postEnvelope(ctx, deps, Str(args, "channel"), model.KindLNInvoice, tradeID, body)
		}}
}

var solEscrowInitAndPostSpec = ArgSpec{
	"channel":               Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 200},
	"trade_id":              Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 128},
	"payment_hash_hex":      Field{Required: true, Kind: KindString, Pattern: PatternHex32},
	"recipient":             Field{Required: true, Kind: KindString, Pattern: PatternBase58},
	"refund":                Field{Required: true, Kind: KindString, Pattern: PatternBase58},
	"mint":                  Field{Required: true, Kind: KindString, Pattern: PatternBase58},
	"net_amount":            Field{Required: true, Kind: KindString, Pattern: PatternDecimal},
	"platform_fee_amount":   Field{Required: true, Kind: KindString, Pattern: PatternDecimal},
	"trade_fee_amount":      Field{Required: true, Kind: KindString, Pattern: PatternDecimal},
	"platform_fee_bps":      Field{Required: true, Kind: KindInt, Min: 0, Max: 500},
	"trade_fee_bps":         Field{Required: true, Kind: KindInt, Min: 0, Max: 1000},
	"trade_fee_collector":   Field{Required: true, Kind: KindString, Pattern: PatternBase58},
	"refund_after_unix":     Field{Required: true, Kind: KindInt, Min: 1},
}

// solEscrowGate is the pre-gate §4.9 mandates: a recent LN_INVOICE for this
// payment_hash, followed by a STATUS{state=accepted, note contains
// "ln_route_precheck_ok"} from terms.ln_payer_peer, with nothing after it
// being a STATUS{note contains "ln_route_precheck_fail"}.
func solEscrowGate(deps *Deps, paymentHashHex string, lnPayerPeer string) error {
	events := deps.Bus.Since(0, 0, 0)
	var invoiceSeq int64 = -1
	var precheckOKSeq int64 = -1
	var precheckFailSeq int64 = -1

	for _, ev := range events {
		var env model.Envelope
		if err := json.Unmarshal(ev.Message, &env); err != nil {
			continue
		}
		switch env.Kind {
		case model.KindLNInvoice:
			var body model.LNInvoiceBody
			if json.Unmarshal(env.Body, &body) == nil && body.PaymentHashHex == paymentHashHex {
				invoiceSeq = ev.Seq
			}
		case model.KindStatus:
			if ev.From != lnPayerPeer && env.Signer != lnPayerPeer {
				continue
			}
			var body model.StatusBody
			if json.Unmarshal(env.Body, &body) != nil {
				continue
			}
			if body.State == "accepted" && strings.Contains(body.Note, "ln_route_precheck_ok") {
				if precheckOKSeq < 0 || ev.Seq > precheckOKSeq {
					precheckOKSeq = ev.Seq
				}
			}
			if strings.Contains(body.Note, "ln_route_precheck_fail") {
				if precheckFailSeq < 0 || ev.Seq > precheckFailSeq {
					precheckFailSeq = ev.Seq
				}
			}
		}
	}

	if invoiceSeq < 0 {
		return apperr.Precondition("sol_escrow_init_and_post: no LN_INVOICE seen for payment_hash %s", paymentHashHex)
	}
	if precheckOKSeq < 0 || precheckOKSeq <= invoiceSeq {
		return apperr.Precondition("sol_escrow_init_and_post: no route-precheck-ok status after invoice from %s", lnPayerPeer)
	}
	if precheckFailSeq > precheckOKSeq {
		return apperr.Invariant("sol_escrow_init_and_post: route precheck failed after succeeding, aborting")
	}
	return nil
}

func solEscrowInitAndPostTool() *Tool {
	return &Tool{Name: "sol_escrow_init_and_post", Mutating: true, Spec: solEscrowInitAndPostSpec,
		Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
			tradeID := Str(args, "trade_id")
			trade, err := deps.Store.GetTrade(ctx, tradeID)
			if err != nil {
				return nil, fmt.Errorf("load trade: %w", err)
			}

			if err := solEscrowGate(deps, Str(args, "payment_hash_hex"), trade.TakerPeer); err != nil {
				return nil, err
			}

			var hash [32]byte
			hb, err := decodeHexArg(Str(args, "payment_hash_hex"))
			if err != nil {
				return nil, fmt.Errorf("payment_hash_hex: %w", err)
			}
			copy(hash[:], hb)

			escrowPDA, _, err := deps.Chain.EscrowPDA(hash)
			if err != nil {
				return nil, fmt.Errorf("derive escrow pda: %w", err)
			}
			mint := solana.MustPublicKeyFromBase58(Str(args, "mint"))
			payer := deps.LocalSolKey

			vaultATA, createVaultIx, err := deps.Chain.ResolveATA(ctx, payer, escrowPDA, mint)
			if err != nil {
				return nil, fmt.Errorf("resolve vault ata: %w", err)
			}
			payerTokenAccount, createPayerIx, err := deps.Chain.ResolveATA(ctx, payer, payer, mint)
			if err != nil {
				return nil, fmt.Errorf("resolve payer ata: %w", err)
			}

			netAmount, _ := strconv.ParseUint(Str(args, "net_amount"), 10, 64)
			platformFeeAmount, _ := strconv.ParseUint(Str(args, "platform_fee_amount"), 10, 64)
			tradeFeeAmount, _ := strconv.ParseUint(Str(args, "trade_fee_amount"), 10, 64)

			createIx, err := deps.Chain.BuildCreateEscrow(payer, payerTokenAccount, escrowPDA, vaultATA, mint, solchain.CreateEscrowArgs{
				PaymentHash:       hash,
				Recipient:         solana.MustPublicKeyFromBase58(Str(args, "recipient")),
				Refund:            solana.MustPublicKeyFromBase58(Str(args, "refund")),
				Mint:              mint,
				NetAmount:         netAmount,
				PlatformFeeAmount: platformFeeAmount,
				TradeFeeAmount:    tradeFeeAmount,
				PlatformFeeBps:    uint16(Int(args, "platform_fee_bps")),
				TradeFeeBps:       uint16(Int(args, "trade_fee_bps")),
				TradeFeeCollector: solana.MustPublicKeyFromBase58(Str(args, "trade_fee_collector")),
				RefundAfterUnix:   Int(args, "refund_after_unix"),
			})
			if err != nil {
				return nil, fmt.Errorf("build create_escrow instruction: %w", err)
			}

			instructions := append(append(createVaultIx, createPayerIx...), createIx)

			tx, err := deps.Chain.BuildTransaction(ctx, payer, instructions...)
			if err != nil {
				return nil, fmt.Errorf("build transaction: %w", err)
			}
			if err := lamportsGuardrail(ctx, deps, payer, tx, len(createVaultIx)+len(createPayerIx)); err != nil {
				return nil, err
			}
			sig, err := deps.Chain.SendAndConfirm(ctx, tx, deps.SolSigner)
			if err != nil {
				return nil, fmt.Errorf("send escrow init transaction: %w", err)
			}

			state := model.TradeStateEscrow
			escrowPDAStr := escrowPDA.String()
			vaultATAStr := vaultATA.String()
			if _, err := deps.Store.UpsertTrade(ctx, tradeID, model.TradePatch{
				State:        &state,
				SolEscrowPDA: &escrowPDAStr,
				SolVaultATA:  &vaultATAStr,
			}); err != nil {
				return nil, fmt.Errorf("upsert escrow state: %w", err)
			}

			body := model.SolEscrowCreatedBody{
				ProgramID: deps.Chain.ProgramID().String(),
				EscrowPDA: escrowPDAStr,
				VaultATA:  vaultATAStr,
				Signature: sig.String(),
			}
			return postEnvelope(ctx, deps, Str(args, "channel"), model.KindSolEscrowCreated, tradeID, body)
		}}
}

// escrowAccountSize is the borsh-encoded size of solchain.EscrowState plus
// its 8-byte Anchor discriminator: 8 + 6*32 (pubkeys: ProgramID, Recipient,
// Refund, Mint, VaultATA, TradeFeeCollector) + 32 (PaymentHash) + 3*8
// (NetAmount, PlatformFeeAmount, TradeFeeAmount) + 2*2 (PlatformFeeBps,
// TradeFeeBps) + 8 (RefundAfterUnix) + 1 (Status).
const escrowAccountSize = 269

// lamportsGuardrail asserts payer holds enough SOL for the transaction fee
// plus rent for the escrow account and any SPL token accounts this call is
// about to create — the "need >= tx_fee + escrow_rent + 3*token_account_rent
// for accounts that don't yet exist" rule from spec §4.9.
func lamportsGuardrail(ctx context.Context, deps *Deps, payer solana.PublicKey, tx *solana.Transaction, accountsToCreate int) error {
	const tokenAccountSize = 165

	escrowRent, err := deps.Chain.MinimumBalanceForRentExemption(ctx, escrowAccountSize)
	if err != nil {
		return fmt.Errorf("escrow rent exemption lookup: %w", err)
	}
	tokenAccountRent, err := deps.Chain.MinimumBalanceForRentExemption(ctx, tokenAccountSize)
	if err != nil {
		return fmt.Errorf("token account rent exemption lookup: %w", err)
	}
	txFee, err := deps.Chain.FeeForMessage(ctx, tx)
	if err != nil {
		return fmt.Errorf("fee for message: %w", err)
	}

	need := txFee + escrowRent + uint64(accountsToCreate)*tokenAccountRent
	balance, err := deps.Chain.GetBalance(ctx, payer)
	if err != nil {
		return fmt.Errorf("payer balance lookup: %w", err)
	}
	if balance < need {
		return apperr.Precondition("sol_escrow_init_and_post: insufficient lamports: have %d, need %d (tx_fee=%d escrow_rent=%d token_account_rent=%d*%d)",
			balance, need, txFee, escrowRent, tokenAccountRent, accountsToCreate)
	}
	return nil
}

func decodeHexArg(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

var lnPayAndPostVerifiedSpec = ArgSpec{
	"channel":  Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 200},
	"trade_id": Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 128},
}

func lnPayAndPostVerifiedTool() *Tool {
	return &Tool{Name: "ln_pay_and_post_verified", Mutating: true, Spec: lnPayAndPostVerifiedSpec,
		Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
			tradeID := Str(args, "trade_id")

			bundle, err := loadPrepayBundle(ctx, deps, tradeID)
			if err != nil {
				return nil, err
			}
			if err := deps.Prepay.Verify(ctx, bundle); err != nil {
				return nil, fmt.Errorf("pre-pay verification: %w", err)
			}

			var invoiceBody model.LNInvoiceBody
			if err := json.Unmarshal(bundle.LNInvoice.Body, &invoiceBody); err != nil {
				return nil, fmt.Errorf("ln_invoice body: %w", err)
			}
			decoded, err := deps.LN.DecodePay(ctx, invoiceBody.Bolt11)
			if err != nil {
				return nil, fmt.Errorf("decode invoice: %w", err)
			}

			views := liquidityViewsFromClient(ctx, deps)
			requiredSats := decoded.AmountMsat / 1000
			mode := pickLiquidityMode(views, requiredSats)
			if decoded.RouteHints == 0 {
				if _, err := liquidity.RoutePrecheck(ctx, deps.LN, decoded.DestinationHex, requiredSats); err != nil {
					return nil, fmt.Errorf("route precheck (mode=%s): %w", mode, err)
				}
			}

			result, err := deps.LN.Pay(ctx, invoiceBody.Bolt11, ln.PayOptions{})
			if err != nil {
				return nil, fmt.Errorf("pay invoice (destination=%s required_sats=%d route_hints=%d): %w",
					decoded.DestinationHex, requiredSats, decoded.RouteHints, err)
			}
			if !result.Succeeded {
				return nil, apperr.Precondition("pay invoice failed: %s (destination=%s required_sats=%d)",
					result.FailureReason, decoded.DestinationHex, requiredSats)
			}

			sum := sha256.Sum256(mustHex(result.PreimageHex))
			if hex.EncodeToString(sum[:]) != invoiceBody.PaymentHashHex {
				return nil, apperr.Crypto("preimage does not hash to payment_hash: got=%s want=%s",
					hex.EncodeToString(sum[:]), invoiceBody.PaymentHashHex)
			}

			state := model.TradeStateLNPaid
			if _, err := deps.Store.UpsertTrade(ctx, tradeID, model.TradePatch{
				State:         &state,
				LNPreimageHex: &result.PreimageHex,
			}); err != nil {
				return nil, fmt.Errorf("upsert ln_paid state: %w", err)
			}

			body := model.LNPaidBody{PaymentHashHex: invoiceBody.PaymentHashHex}
			return postEnvelope(ctx, deps, Str(args, "channel"), model.KindLNPaid, tradeID, body)
		}}
}

var lnRoutePrecheckSpec = ArgSpec{
	"channel":  Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 200},
	"trade_id": Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 128},
	"bolt11":   Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 4096},
}

// lnRoutePrecheckTool decodes bolt11 for its destination and amount and
// probes graph-level route viability before any money moves, posting the
// STATUS solEscrowGate waits on before the maker funds the on-chain escrow.
func lnRoutePrecheckTool() *Tool {
	return &Tool{Name: "ln_route_precheck", Mutating: true, Spec: lnRoutePrecheckSpec,
		Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
			channel := Str(args, "channel")
			tradeID := Str(args, "trade_id")

			decoded, err := deps.LN.DecodePay(ctx, Str(args, "bolt11"))
			if err != nil {
				return nil, fmt.Errorf("decode invoice: %w", err)
			}
			amountSats := decoded.AmountMsat / 1000

			routes, err := liquidity.RoutePrecheck(ctx, deps.LN, decoded.DestinationHex, amountSats)
			if err != nil {
				body := model.StatusBody{State: "accepted", Note: fmt.Sprintf("ln_route_precheck_fail: %s", err)}
				if _, postErr := postEnvelope(ctx, deps, channel, model.KindStatus, tradeID, body); postErr != nil {
					return nil, fmt.Errorf("post route precheck failure: %w", postErr)
				}
				return nil, fmt.Errorf("route precheck: %w", err)
			}

			body := model.StatusBody{State: "accepted", Note: fmt.Sprintf("ln_route_precheck_ok routes=%d", len(routes))}
			return postEnvelope(ctx, deps, channel, model.KindStatus, tradeID, body)
		}}
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// loadPrepayBundle replays tradeID's event log for its TERMS, LN_INVOICE,
// and SOL_ESCROW_CREATED envelopes, returning the latest of each.
func loadPrepayBundle(ctx context.Context, deps *Deps, tradeID string) (prepay.Bundle, error) {
	events, err := deps.Store.ListEvents(ctx, tradeID)
	if err != nil {
		return prepay.Bundle{}, fmt.Errorf("list trade events: %w", err)
	}
	var b prepay.Bundle
	for _, ev := range events {
		var env model.Envelope
		if err := json.Unmarshal([]byte(ev.BodyJSON), &env); err != nil {
			continue
		}
		switch env.Kind {
		case model.KindTerms:
			b.Terms = env
		case model.KindLNInvoice:
			b.LNInvoice = env
		case model.KindSolEscrowCreated:
			b.SolEscrowCreated = env
		}
	}
	if b.Terms.TradeID == "" || b.LNInvoice.TradeID == "" || b.SolEscrowCreated.TradeID == "" {
		return prepay.Bundle{}, apperr.Precondition("trade %s missing terms/ln_invoice/sol_escrow_created in its journal", tradeID)
	}
	return b, nil
}

var solClaimAndPostSpec = ArgSpec{
	"channel":  Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 200},
	"trade_id": Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 128},
	"mint":     Field{Required: true, Kind: KindString, Pattern: PatternBase58},
}

func solClaimAndPostTool() *Tool {
	return &Tool{Name: "sol_claim_and_post", Mutating: true, Spec: solClaimAndPostSpec,
		Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
			tradeID := Str(args, "trade_id")
			trade, err := deps.Store.GetTrade(ctx, tradeID)
			if err != nil {
				return nil, fmt.Errorf("load trade: %w", err)
			}
			if trade.LNPreimageHex == "" {
				return nil, apperr.Precondition("trade %s has no preimage yet", tradeID)
			}

			escrowPDA := solana.MustPublicKeyFromBase58(trade.SolEscrowPDA)
			state, err := deps.Chain.GetEscrow(ctx, escrowPDA)
			if err != nil {
				return nil, fmt.Errorf("fetch escrow state: %w", err)
			}
			if state.Recipient != deps.LocalSolKey {
				return nil, apperr.Auth("escrow recipient %s does not match local signer %s", state.Recipient, deps.LocalSolKey)
			}
			mintArg := solana.MustPublicKeyFromBase58(Str(args, "mint"))
			if state.Mint != mintArg {
				return nil, apperr.Auth("escrow mint %s does not match requested mint %s", state.Mint, mintArg)
			}

			recipientATA, createIx, err := deps.Chain.ResolveATA(ctx, deps.LocalSolKey, deps.LocalSolKey, mintArg)
			if err != nil {
				return nil, fmt.Errorf("resolve recipient ata: %w", err)
			}
			vaultATA := solana.MustPublicKeyFromBase58(trade.SolVaultATA)

			var preimage [32]byte
			pb, err := decodeHexArg(trade.LNPreimageHex)
			if err != nil {
				return nil, fmt.Errorf("preimage hex: %w", err)
			}
			copy(preimage[:], pb)

			claimIx, err := deps.Chain.BuildClaimEscrow(deps.LocalSolKey, escrowPDA, vaultATA, recipientATA, solchain.ClaimEscrowArgs{Preimage: preimage})
			if err != nil {
				return nil, fmt.Errorf("build claim_escrow instruction: %w", err)
			}

			tx, err := deps.Chain.BuildTransaction(ctx, deps.LocalSolKey, append(createIx, claimIx)...)
			if err != nil {
				return nil, fmt.Errorf("build transaction: %w", err)
			}
			sig, err := deps.Chain.SendAndConfirm(ctx, tx, deps.SolSigner)
			if err != nil {
				return nil, fmt.Errorf("send claim transaction: %w", err)
			}

			claimedState := model.TradeStateClaimed
			if _, err := deps.Store.UpsertTrade(ctx, tradeID, model.TradePatch{State: &claimedState}); err != nil {
				return nil, fmt.Errorf("upsert claimed state: %w", err)
			}
			if err := deps.Locks.MarkFilled(ctx, tradeID); err != nil {
				return nil, fmt.Errorf("mark listing locks filled: %w", err)
			}

			body := model.SolClaimedBody{Signature: sig.String()}
			return postEnvelope(ctx, deps, Str(args, "channel"), model.KindSolClaimed, tradeID, body)
		}}
}
