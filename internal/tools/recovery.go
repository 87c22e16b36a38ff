package tools

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/intercomswap/swap-core/internal/apperr"
	"github.com/intercomswap/swap-core/internal/model"
	"github.com/intercomswap/swap-core/internal/solchain"
)

// Recovery tools (C13's action surface): an operator-driven claim of a
// stuck escrow once the preimage is known out-of-band, or a refund once
// the window has elapsed. Both operate directly from journaled trade
// state, independent of the automation loop.

var swaprecoverClaimSpec = ArgSpec{
	"trade_id":      Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 128},
	"preimage_hex":  Field{Required: true, Kind: KindString, Pattern: PatternHex32},
	"mint":          Field{Required: true, Kind: KindString, Pattern: PatternBase58},
}

func swaprecoverClaimTool() *Tool {
	return &Tool{Name: "swaprecover_claim", Mutating: true, Spec: swaprecoverClaimSpec,
		Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
			tradeID := Str(args, "trade_id")
			trade, err := deps.Store.GetTrade(ctx, tradeID)
			if err != nil {
				return nil, fmt.Errorf("load trade: %w", err)
			}
			if trade.SolEscrowPDA == "" {
				return nil, apperr.Precondition("trade %s has no escrow recorded", tradeID)
			}

			preimageHex := Str(args, "preimage_hex")
			if _, err := deps.Store.UpsertTrade(ctx, tradeID, model.TradePatch{LNPreimageHex: &preimageHex}); err != nil {
				return nil, fmt.Errorf("record preimage: %w", err)
			}

			escrowPDA := solana.MustPublicKeyFromBase58(trade.SolEscrowPDA)
			mintArg := solana.MustPublicKeyFromBase58(Str(args, "mint"))

			recipientATA, createIx, err := deps.Chain.ResolveATA(ctx, deps.LocalSolKey, deps.LocalSolKey, mintArg)
			if err != nil {
				return nil, fmt.Errorf("resolve recipient ata: %w", err)
			}
			vaultATA := solana.MustPublicKeyFromBase58(trade.SolVaultATA)

			var preimage [32]byte
			pb, err := decodeHexArg(preimageHex)
			if err != nil {
				return nil, fmt.Errorf("preimage_hex: %w", err)
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
			return map[string]any{"signature": sig.String()}, nil
		}}
}

var swaprecoverRefundSpec = ArgSpec{
	"trade_id": Field{Required: true, Kind: KindString, MinLen: 1, MaxLen: 128},
	"mint":     Field{Required: true, Kind: KindString, Pattern: PatternBase58},
}

func swaprecoverRefundTool() *Tool {
	return &Tool{Name: "swaprecover_refund", Mutating: true, Spec: swaprecoverRefundSpec,
		Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
			tradeID := Str(args, "trade_id")
			trade, err := deps.Store.GetTrade(ctx, tradeID)
			if err != nil {
				return nil, fmt.Errorf("load trade: %w", err)
			}
			if trade.SolEscrowPDA == "" {
				return nil, apperr.Precondition("trade %s has no escrow recorded", tradeID)
			}

			escrowPDA := solana.MustPublicKeyFromBase58(trade.SolEscrowPDA)
			state, err := deps.Chain.GetEscrow(ctx, escrowPDA)
			if err != nil {
				return nil, fmt.Errorf("fetch escrow state: %w", err)
			}
			now := deps.now().Unix()
			if now < state.RefundAfterUnix {
				return nil, apperr.Precondition("refund window not yet open (now=%d refund_after=%d)", now, state.RefundAfterUnix)
			}

			mintArg := solana.MustPublicKeyFromBase58(Str(args, "mint"))
			refundATA, createIx, err := deps.Chain.ResolveATA(ctx, deps.LocalSolKey, state.Refund, mintArg)
			if err != nil {
				return nil, fmt.Errorf("resolve refund ata: %w", err)
			}
			vaultATA := solana.MustPublicKeyFromBase58(trade.SolVaultATA)

			refundIx, err := deps.Chain.BuildRefundEscrow(deps.LocalSolKey, escrowPDA, vaultATA, refundATA)
			if err != nil {
				return nil, fmt.Errorf("build refund_escrow instruction: %w", err)
			}
			tx, err := deps.Chain.BuildTransaction(ctx, deps.LocalSolKey, append(createIx, refundIx)...)
			if err != nil {
				return nil, fmt.Errorf("build transaction: %w", err)
			}
			sig, err := deps.Chain.SendAndConfirm(ctx, tx, deps.SolSigner)
			if err != nil {
				return nil, fmt.Errorf("send refund transaction: %w", err)
			}

			refundedState := model.TradeStateRefunded
			if _, err := deps.Store.UpsertTrade(ctx, tradeID, model.TradePatch{State: &refundedState}); err != nil {
				return nil, fmt.Errorf("upsert refunded state: %w", err)
			}
			if err := deps.Locks.Release(ctx, tradeID); err != nil {
				return nil, fmt.Errorf("release listing locks: %w", err)
			}
			return map[string]any{"signature": sig.String()}, nil
		}}
}
