// Package prepay implements C8: the pre-pay verifier that gates
// ln_pay_and_post_verified. Before a taker releases sats, every cross-checkable
// field between the negotiated terms, the posted invoice, and the on-chain
// escrow must agree — the single point where a forged or stale envelope
// would otherwise cost real money.
package prepay

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/intercomswap/swap-core/internal/apperr"
	"github.com/intercomswap/swap-core/internal/envelope"
	"github.com/intercomswap/swap-core/internal/ln"
	"github.com/intercomswap/swap-core/internal/model"
	"github.com/intercomswap/swap-core/internal/solchain"
)

// Bundle is the set of envelopes a trade has accumulated by the time a
// pre-pay check runs.
type Bundle struct {
	Terms           model.Envelope
	LNInvoice       model.Envelope
	SolEscrowCreated model.Envelope
}

// Verifier runs the seven checks described in §4.8 against a trade's
// accumulated envelopes and the live on-chain escrow state.
type Verifier struct {
	chain *solchain.Client
	ln    ln.Client
	now   func() time.Time
}

func New(chain *solchain.Client, lnClient ln.Client) *Verifier {
	return &Verifier{chain: chain, ln: lnClient, now: time.Now}
}

// Verify runs every check and returns the first failure, wrapped as an
// apperr.Invariant (a mismatch here means something is wrong, not transient).
func (v *Verifier) Verify(ctx context.Context, b Bundle) error {
	if err := v.checkTradeIDConsistency(b); err != nil {
		return err
	}

	var terms model.TermsBody
	if err := json.Unmarshal(b.Terms.Body, &terms); err != nil {
		return apperr.Invariant("prepay: terms body: %v", err)
	}
	var invoiceBody model.LNInvoiceBody
	if err := json.Unmarshal(b.LNInvoice.Body, &invoiceBody); err != nil {
		return apperr.Invariant("prepay: ln_invoice body: %v", err)
	}
	var escrowBody model.SolEscrowCreatedBody
	if err := json.Unmarshal(b.SolEscrowCreated.Body, &escrowBody); err != nil {
		return apperr.Invariant("prepay: sol_escrow_created body: %v", err)
	}

	if err := v.checkAppHash(b, terms); err != nil {
		return err
	}
	if err := v.checkProgramID(terms, escrowBody); err != nil {
		return err
	}

	invoice, err := v.ln.DecodePay(ctx, invoiceBody.Bolt11)
	if err != nil {
		return apperr.Invariant("prepay: decode invoice: %v", err)
	}
	if err := v.checkInvoice(terms, invoiceBody, invoice); err != nil {
		return err
	}

	escrowPDA, err := solana.PublicKeyFromBase58(escrowBody.EscrowPDA)
	if err != nil {
		return apperr.Invariant("prepay: escrow_pda: %v", err)
	}
	state, err := v.chain.GetEscrow(ctx, escrowPDA)
	if err != nil {
		return apperr.Invariant("prepay: fetch escrow state: %v", err)
	}

	if err := v.checkEscrowPDADerivation(invoiceBody, escrowPDA); err != nil {
		return err
	}
	if err := v.checkEscrowState(terms, state); err != nil {
		return err
	}
	if err := v.checkFeeGuardrails(terms, state); err != nil {
		return err
	}
	return v.checkExpiry(invoiceBody, terms)
}

// checkTradeIDConsistency is check 1: every envelope in the bundle must
// carry the same trade_id.
func (v *Verifier) checkTradeIDConsistency(b Bundle) error {
	id := b.Terms.TradeID
	if b.LNInvoice.TradeID != id || b.SolEscrowCreated.TradeID != id {
		return apperr.Invariant("prepay: trade_id mismatch across envelopes (terms=%s ln_invoice=%s sol_escrow_created=%s)",
			b.Terms.TradeID, b.LNInvoice.TradeID, b.SolEscrowCreated.TradeID)
	}
	return nil
}

// checkAppHash is check 2: terms.app_hash must match this build's app_hash
// for the program it's about to escrow against.
func (v *Verifier) checkAppHash(b Bundle, terms model.TermsBody) error {
	want := envelope.AppHashHex(v.chain.ProgramID().String())
	if terms.AppHash != want {
		return apperr.Invariant("prepay: app_hash mismatch: terms=%s expected=%s", terms.AppHash, want)
	}
	return nil
}

// checkProgramID is check 3: the escrow envelope's program_id must match the
// program this verifier is wired against.
func (v *Verifier) checkProgramID(terms model.TermsBody, escrow model.SolEscrowCreatedBody) error {
	want := v.chain.ProgramID().String()
	if escrow.ProgramID != want {
		return apperr.Invariant("prepay: escrow program_id mismatch: envelope=%s expected=%s", escrow.ProgramID, want)
	}
	return nil
}

// checkInvoice is check 4: the invoice's destination and amount must match
// the negotiated terms exactly — terms.ln_receiver_peer, not the envelope's
// own self-reported amount_msat, is the binding source of truth, since a
// self-consistent but mis-bound invoice is exactly what this check exists
// to catch before ln_pay_and_post_verified pays it.
func (v *Verifier) checkInvoice(terms model.TermsBody, body model.LNInvoiceBody, decoded ln.Invoice) error {
	if body.PaymentHashHex != decoded.PaymentHashHex {
		return apperr.Invariant("prepay: invoice payment_hash mismatch: envelope=%s decoded=%s", body.PaymentHashHex, decoded.PaymentHashHex)
	}
	if terms.LNReceiverPeer != decoded.DestinationHex {
		return apperr.Invariant("prepay: invoice destination mismatch: terms.ln_receiver_peer=%s decoded=%s", terms.LNReceiverPeer, decoded.DestinationHex)
	}
	wantMsat := terms.BTCSats * 1000
	if wantMsat != decoded.AmountMsat {
		return apperr.Invariant("prepay: invoice amount mismatch: terms.btc_sats*1000=%d decoded=%d", wantMsat, decoded.AmountMsat)
	}
	return nil
}

// checkEscrowPDADerivation is part of check 5: the escrow PDA must be the
// deterministic derivation from the invoice's payment hash, not an arbitrary
// account the maker happens to control.
func (v *Verifier) checkEscrowPDADerivation(invoiceBody model.LNInvoiceBody, escrowPDA solana.PublicKey) error {
	hash, err := decodeHex32(invoiceBody.PaymentHashHex)
	if err != nil {
		return apperr.Invariant("prepay: payment_hash_hex: %v", err)
	}
	wantPDA, _, err := v.chain.EscrowPDA(hash)
	if err != nil {
		return apperr.Invariant("prepay: derive escrow pda: %v", err)
	}
	if wantPDA != escrowPDA {
		return apperr.Invariant("prepay: escrow pda derivation mismatch: on_chain=%s expected=%s", escrowPDA, wantPDA)
	}
	return nil
}

// checkEscrowState is check 5's account-field half: status/recipient/
// refund/mint/refund_after_unix/amount bookkeeping must match terms exactly.
func (v *Verifier) checkEscrowState(terms model.TermsBody, state solchain.EscrowState) error {
	if state.Status != solchain.EscrowStatusActive {
		return apperr.Invariant("prepay: escrow status is not active (got %d)", state.Status)
	}
	if state.Recipient.String() != terms.SolRecipient {
		return apperr.Invariant("prepay: escrow recipient mismatch: on_chain=%s terms=%s", state.Recipient, terms.SolRecipient)
	}
	if state.Refund.String() != terms.SolRefund {
		return apperr.Invariant("prepay: escrow refund mismatch: on_chain=%s terms=%s", state.Refund, terms.SolRefund)
	}
	if state.Mint.String() != terms.SolMint {
		return apperr.Invariant("prepay: escrow mint mismatch: on_chain=%s terms=%s", state.Mint, terms.SolMint)
	}
	if state.RefundAfterUnix != terms.SolRefundAfterUnix {
		return apperr.Invariant("prepay: escrow refund_after_unix mismatch: on_chain=%d terms=%d", state.RefundAfterUnix, terms.SolRefundAfterUnix)
	}
	total := state.NetAmount + state.PlatformFeeAmount + state.TradeFeeAmount
	wantTotal, err := parseDecimal(terms.USDTAmount)
	if err != nil {
		return apperr.Invariant("prepay: terms usdt_amount: %v", err)
	}
	if total != wantTotal {
		return apperr.Invariant("prepay: escrow amount bookkeeping mismatch: net+platform_fee+trade_fee=%d usdt_amount=%d", total, wantTotal)
	}
	return nil
}

// checkFeeGuardrails is check 6: the escrow's recorded fee bps and collector
// must match what terms negotiated, not some other value the maker swapped
// in after signing.
func (v *Verifier) checkFeeGuardrails(terms model.TermsBody, state solchain.EscrowState) error {
	if int(state.PlatformFeeBps) != terms.PlatformFeeBps {
		return apperr.Invariant("prepay: platform_fee_bps mismatch: on_chain=%d terms=%d", state.PlatformFeeBps, terms.PlatformFeeBps)
	}
	if int(state.TradeFeeBps) != terms.TradeFeeBps {
		return apperr.Invariant("prepay: trade_fee_bps mismatch: on_chain=%d terms=%d", state.TradeFeeBps, terms.TradeFeeBps)
	}
	if state.TradeFeeCollector.String() != terms.TradeFeeCollector {
		return apperr.Invariant("prepay: trade_fee_collector mismatch: on_chain=%s terms=%s", state.TradeFeeCollector, terms.TradeFeeCollector)
	}
	return nil
}

// checkExpiry is check 7: both the invoice and the escrow's refund window
// must still be open at the moment of paying.
func (v *Verifier) checkExpiry(invoiceBody model.LNInvoiceBody, terms model.TermsBody) error {
	now := v.now().Unix()
	if now >= invoiceBody.ExpiresAtUnix {
		return apperr.Precondition("prepay: invoice expired (now=%d expires_at=%d)", now, invoiceBody.ExpiresAtUnix)
	}
	if now >= terms.SolRefundAfterUnix {
		return apperr.Precondition("prepay: escrow refund window already open (now=%d refund_after=%d)", now, terms.SolRefundAfterUnix)
	}
	return nil
}

func decodeHex32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, apperr.Validation("prepay: expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// parseDecimal parses a base-10 amount string too large for a plain int64
// conversion by strconv.ParseInt's own rules to still safely reject.
func parseDecimal(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
