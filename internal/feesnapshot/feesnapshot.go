// Package feesnapshot implements C12: reading the platform-wide and
// per-collector trade-fee bps this peer quotes from the on-chain config
// PDAs, rather than negotiating them per trade. Downstream verifiers (C8)
// can then test TERMS's fee fields for equality against this snapshot
// instead of merely bounding them.
package feesnapshot

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/intercomswap/swap-core/internal/apperr"
	"github.com/intercomswap/swap-core/internal/solchain"
)

// Snapshot is the fee quadruple spec §4.12 names.
type Snapshot struct {
	PlatformFeeBps       int
	PlatformFeeCollector string
	TradeFeeBps          int
	TradeFeeCollector    string
}

// Reader reads a Snapshot for one fixed trade-fee collector — this peer's
// own, when it posts TERMS as maker.
type Reader struct {
	chain     *solchain.Client
	collector solana.PublicKey
}

// New builds a Reader against chain, quoting fees for collector's
// trade-config PDA.
func New(chain *solchain.Client, collector solana.PublicKey) *Reader {
	return &Reader{chain: chain, collector: collector}
}

// Snapshot reads the platform config PDA and this reader's trade config
// PDA. A missing trade-config row (a collector that has never set a custom
// trade fee) is not an error: the collector falls back to 0 bps, the same
// zero-value the on-chain program would apply before any set_trade_config
// call.
func (r *Reader) Snapshot(ctx context.Context) (Snapshot, error) {
	cfg, err := r.chain.GetConfig(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("feesnapshot: read platform config: %w", err)
	}

	tradeBps := 0
	tc, err := r.chain.GetTradeConfig(ctx, r.collector)
	switch {
	case err == nil:
		tradeBps = int(tc.TradeFeeBps)
	case apperr.Is(err, apperr.TypePrecondition):
		// no override row for this collector yet; 0 bps stands.
	default:
		return Snapshot{}, fmt.Errorf("feesnapshot: read trade config for %s: %w", r.collector, err)
	}

	return Snapshot{
		PlatformFeeBps:       int(cfg.PlatformFeeBps),
		PlatformFeeCollector: cfg.PlatformFeeCollector.String(),
		TradeFeeBps:          tradeBps,
		TradeFeeCollector:    r.collector.String(),
	}, nil
}
