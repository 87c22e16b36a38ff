// Package recovery implements C13: the scan that finds trades a peer left
// mid-settlement across a restart or an LN/chain outage, and drives them
// to a terminal state through the swaprecover_* tools.
package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/intercomswap/swap-core/internal/model"
	"github.com/intercomswap/swap-core/internal/receipts"
	"github.com/intercomswap/swap-core/internal/tools"
)

// Scanner reads the trade journal directly; it never touches the bus or
// the chain itself, dispatching every recovery action through Exec the
// same way C10's automation loop does.
type Scanner struct {
	Store receipts.TradeStore
	Exec  *tools.Executor
	Mint  string
	Now   func() time.Time
}

func (s *Scanner) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ListOpenClaims returns trades that paid the LN leg (or funded the
// escrow) and already have a preimage on file but never posted a
// SOL_CLAIMED — the shape a peer crashing between ln_pay and sol_claim
// leaves behind.
func (s *Scanner) ListOpenClaims(ctx context.Context) ([]model.Trade, error) {
	trades, err := s.Store.ListTradesByState(ctx, model.TradeStateLNPaid, model.TradeStateEscrow)
	if err != nil {
		return nil, fmt.Errorf("list open claims: %w", err)
	}
	out := make([]model.Trade, 0, len(trades))
	for _, t := range trades {
		if t.SolEscrowPDA != "" && t.LNPreimageHex != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

// ListOpenRefunds returns non-terminal trades whose escrow's refund window
// has already elapsed as of nowUnix.
func (s *Scanner) ListOpenRefunds(ctx context.Context, nowUnix int64) ([]model.Trade, error) {
	trades, err := s.Store.ListTradesByState(ctx, model.TradeStateInvoice, model.TradeStateEscrow, model.TradeStateLNPaid)
	if err != nil {
		return nil, fmt.Errorf("list open refunds: %w", err)
	}
	out := make([]model.Trade, 0, len(trades))
	for _, t := range trades {
		if t.SolEscrowPDA != "" && t.SolRefundAfterUnix > 0 && nowUnix >= t.SolRefundAfterUnix {
			out = append(out, t)
		}
	}
	return out, nil
}

// Outcome is one trade's recovery attempt result.
type Outcome struct {
	TradeID string
	Err     error
}

// RunClaims drives swaprecover_claim for every trade ListOpenClaims finds.
func (s *Scanner) RunClaims(ctx context.Context) ([]Outcome, error) {
	trades, err := s.ListOpenClaims(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Outcome, 0, len(trades))
	for _, t := range trades {
		_, err := s.Exec.Execute(ctx, "swaprecover_claim", tools.Args{
			"trade_id":     t.TradeID,
			"preimage_hex": t.LNPreimageHex,
			"mint":         s.Mint,
		}, tools.Context{AutoApprove: true})
		out = append(out, Outcome{TradeID: t.TradeID, Err: err})
	}
	return out, nil
}

// RunRefunds drives swaprecover_refund for every trade ListOpenRefunds
// finds as of now.
func (s *Scanner) RunRefunds(ctx context.Context) ([]Outcome, error) {
	trades, err := s.ListOpenRefunds(ctx, s.now().Unix())
	if err != nil {
		return nil, err
	}
	out := make([]Outcome, 0, len(trades))
	for _, t := range trades {
		_, err := s.Exec.Execute(ctx, "swaprecover_refund", tools.Args{
			"trade_id": t.TradeID,
			"mint":     s.Mint,
		}, tools.Context{AutoApprove: true})
		out = append(out, Outcome{TradeID: t.TradeID, Err: err})
	}
	return out, nil
}
