package tools

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/intercomswap/swap-core/internal/model"
)

func envTool() *Tool {
	return &Tool{Name: "env", Mutating: false, Spec: ArgSpec{}, Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
		return map[string]any{
			"local_peer":    deps.LocalPeer,
			"local_sol_key": deps.LocalSolKey.String(),
			"program_id":    deps.Chain.ProgramID().String(),
		}, nil
	}}
}

func scInfoTool() *Tool {
	return &Tool{Name: "sc_info", Mutating: false, Spec: ArgSpec{}, Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
		return map[string]any{
			"info":  deps.Bus.SelfInfo(),
			"stats": deps.Bus.Stats(),
		}, nil
	}}
}

var solEscrowGetSpec = ArgSpec{
	"escrow_pda": Field{Required: true, Kind: KindString, Pattern: PatternBase58},
}

func solEscrowGetTool() *Tool {
	return &Tool{Name: "sol_escrow_get", Mutating: false, Spec: solEscrowGetSpec, Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
		pda, err := solana.PublicKeyFromBase58(Str(args, "escrow_pda"))
		if err != nil {
			return nil, fmt.Errorf("escrow_pda: %w", err)
		}
		return deps.Chain.GetEscrow(ctx, pda)
	}}
}

func solConfigGetTool() *Tool {
	return &Tool{Name: "sol_config_get", Mutating: false, Spec: ArgSpec{}, Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
		return deps.Chain.GetConfig(ctx)
	}}
}

var receiptsListSpec = ArgSpec{
	"states": Field{Kind: KindString, MaxLen: 500}, // comma-separated TradeState values; empty = all non-terminal
}

func receiptsListTool() *Tool {
	return &Tool{Name: "receipts_list", Mutating: false, Spec: receiptsListSpec, Handler: func(ctx context.Context, args Args, tctx Context, deps *Deps) (any, error) {
		states := parseTradeStates(Str(args, "states"))
		if len(states) == 0 {
			states = []model.TradeState{
				model.TradeStateRFQ, model.TradeStateTerms, model.TradeStateAccepted,
				model.TradeStateInvoice, model.TradeStateEscrow, model.TradeStateLNPaid,
			}
		}
		return deps.Store.ListTradesByState(ctx, states...)
	}}
}

func parseTradeStates(csv string) []model.TradeState {
	if csv == "" {
		return nil
	}
	var out []model.TradeState
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				out = append(out, model.TradeState(csv[start:i]))
			}
			start = i + 1
		}
	}
	return out
}
