// Package schema implements C2: structural validation of swap envelopes
// before they are dispatched anywhere else in the pipeline.
package schema

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/intercomswap/swap-core/internal/model"
)

const (
	MaxPlatformFeeBps = 500
	MaxTradeFeeBps    = 1000
	MaxTotalFeeBps    = 1500

	MinRefundWindowSecs     = 3600
	MaxRefundWindowSecs     = 7 * 24 * 3600
	DefaultRefundWindowSecs = 72 * 3600
)

var (
	tradeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)
	decimalPattern = regexp.MustCompile(`^[0-9]+$`)
	hex32Pattern   = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// Error is returned for any structural violation; Field names the offending
// field path for operator diagnosis.
type Error struct {
	Field string
	Msg   string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func fieldErr(field, format string, args ...any) error {
	return &Error{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// ValidateEnvelope validates the envelope envelope of e and, for known kinds,
// the kind-specific body. Unknown kinds are rejected outright.
func ValidateEnvelope(e model.Envelope) error {
	if e.V != model.EnvelopeVersion {
		return fieldErr("v", "unsupported version %d", e.V)
	}
	if !tradeIDPattern.MatchString(e.TradeID) {
		return fieldErr("trade_id", "must match %s", tradeIDPattern.String())
	}
	if e.TSMs <= 0 {
		return fieldErr("ts_ms", "must be positive")
	}

	switch e.Kind {
	case model.KindRFQ:
		var b model.RFQBody
		if err := unmarshalStrict(e.Body, &b); err != nil {
			return err
		}
		return validateRFQ(b)
	case model.KindQuote:
		var b model.QuoteBody
		if err := unmarshalStrict(e.Body, &b); err != nil {
			return err
		}
		return validateQuote(b)
	case model.KindQuoteAccept:
		var b model.QuoteAcceptBody
		if err := unmarshalStrict(e.Body, &b); err != nil {
			return err
		}
		return validateQuoteAccept(b)
	case model.KindSwapInvite:
		var b model.SwapInviteBody
		if err := unmarshalStrict(e.Body, &b); err != nil {
			return err
		}
		return validateSwapInvite(b)
	case model.KindTerms:
		var b model.TermsBody
		if err := unmarshalStrict(e.Body, &b); err != nil {
			return err
		}
		return validateTerms(b)
	case model.KindAccept, model.KindStatus, model.KindCancel:
		return nil // free-form / minimal bodies, nothing further to enforce
	case model.KindLNInvoice:
		var b model.LNInvoiceBody
		if err := unmarshalStrict(e.Body, &b); err != nil {
			return err
		}
		return validateLNInvoice(b)
	case model.KindSolEscrowCreated:
		var b model.SolEscrowCreatedBody
		if err := unmarshalStrict(e.Body, &b); err != nil {
			return err
		}
		return validateSolEscrowCreated(b)
	case model.KindLNPaid:
		var b model.LNPaidBody
		if err := unmarshalStrict(e.Body, &b); err != nil {
			return err
		}
		if !hex32Pattern.MatchString(b.PaymentHashHex) {
			return fieldErr("body.payment_hash_hex", "must be 64 lowercase hex chars")
		}
		return nil
	case model.KindSolClaimed, model.KindSolRefunded:
		return nil
	case model.KindSvcAnnounce:
		var b model.SvcAnnounceBody
		if err := unmarshalStrict(e.Body, &b); err != nil {
			return err
		}
		return validateSvcAnnounce(b)
	default:
		return fieldErr("kind", "unknown kind %q", e.Kind)
	}
}

// unmarshalStrict decodes raw into dst rejecting unknown fields, so a
// malformed envelope cannot smuggle extra data past the validator.
func unmarshalStrict(raw json.RawMessage, dst any) error {
	dec := json.NewDecoder(bytesReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fieldErr("body", "%v", err)
	}
	return nil
}

func validatePairAndAmounts(pair string, btcSats int64, usdtAmount string) error {
	if pair != model.Pair {
		return fieldErr("body.pair", "must be %q", model.Pair)
	}
	if btcSats <= 0 {
		return fieldErr("body.btc_sats", "must be positive")
	}
	if !decimalPattern.MatchString(usdtAmount) {
		return fieldErr("body.usdt_amount", "must be a non-negative decimal-string integer")
	}
	return nil
}

func validateFeeCeilings(platformBps, tradeBps int) error {
	if platformBps < 0 || platformBps > MaxPlatformFeeBps {
		return fieldErr("body.platform_fee_bps", "must be in [0,%d]", MaxPlatformFeeBps)
	}
	if tradeBps < 0 || tradeBps > MaxTradeFeeBps {
		return fieldErr("body.trade_fee_bps", "must be in [0,%d]", MaxTradeFeeBps)
	}
	if platformBps+tradeBps > MaxTotalFeeBps {
		return fieldErr("body.platform_fee_bps+trade_fee_bps", "combined must be <= %d", MaxTotalFeeBps)
	}
	return nil
}

func validateRefundWindow(minUnix, maxUnix int64) error {
	if minUnix == 0 && maxUnix == 0 {
		return nil
	}
	if minUnix < MinRefundWindowSecs || minUnix > MaxRefundWindowSecs {
		return fieldErr("body.refund_window_min_unix", "must be in [%d,%d] seconds", MinRefundWindowSecs, MaxRefundWindowSecs)
	}
	if maxUnix < minUnix || maxUnix > MaxRefundWindowSecs {
		return fieldErr("body.refund_window_max_unix", "must be >= min and <= %d", MaxRefundWindowSecs)
	}
	return nil
}

func validateRFQ(b model.RFQBody) error {
	if err := validatePairAndAmounts(b.Pair, b.BTCSats, b.USDTAmount); err != nil {
		return err
	}
	if err := validateFeeCeilings(b.MaxPlatformFeeBps, b.MaxTradeFeeBps); err != nil {
		return err
	}
	if b.MaxTotalFeeBps > MaxTotalFeeBps {
		return fieldErr("body.max_total_fee_bps", "must be <= %d", MaxTotalFeeBps)
	}
	if err := validateRefundWindow(b.RefundWindowMinUnix, b.RefundWindowMaxUnix); err != nil {
		return err
	}
	if b.ValidUntilUnix <= 0 {
		return fieldErr("body.valid_until_unix", "must be positive")
	}
	return nil
}

func validateQuote(b model.QuoteBody) error {
	if err := validatePairAndAmounts(b.Pair, b.BTCSats, b.USDTAmount); err != nil {
		return err
	}
	if err := validateFeeCeilings(b.PlatformFeeBps, b.TradeFeeBps); err != nil {
		return err
	}
	if b.ValidUntilUnix <= 0 {
		return fieldErr("body.valid_until_unix", "must be positive")
	}
	return nil
}

func validateQuoteAccept(b model.QuoteAcceptBody) error {
	if b.RFQID == "" {
		return fieldErr("body.rfq_id", "required")
	}
	if b.LNLiquidityHint.Mode != "single_channel" && b.LNLiquidityHint.Mode != "aggregate" {
		return fieldErr("body.ln_liquidity_hint.mode", "must be single_channel or aggregate")
	}
	if b.LNLiquidityHint.RequiredSats < 0 {
		return fieldErr("body.ln_liquidity_hint.required_sats", "must be non-negative")
	}
	return nil
}

func validateSwapInvite(b model.SwapInviteBody) error {
	if b.SwapChannel == "" {
		return fieldErr("body.swap_channel", "required")
	}
	if b.Welcome == "" || b.Invite == "" {
		return fieldErr("body.welcome/invite", "both required")
	}
	if b.ExpiresAtUnix <= 0 {
		return fieldErr("body.expires_at_unix", "must be positive")
	}
	return nil
}

func validateTerms(b model.TermsBody) error {
	if err := validatePairAndAmounts(b.Pair, b.BTCSats, b.USDTAmount); err != nil {
		return err
	}
	if err := validateFeeCeilings(b.PlatformFeeBps, b.TradeFeeBps); err != nil {
		return err
	}
	if !hex32Pattern.MatchString(b.AppHash) {
		return fieldErr("body.app_hash", "must be 64 lowercase hex chars")
	}
	if b.LNPayerPeer == "" || b.LNReceiverPeer == "" {
		return fieldErr("body.ln_payer_peer/ln_receiver_peer", "both required")
	}
	if b.SolRecipient == "" || b.SolRefund == "" || b.SolMint == "" {
		return fieldErr("body.sol_recipient/sol_refund/sol_mint", "all required")
	}
	now := nowUnixForValidation()
	window := b.SolRefundAfterUnix - now
	if window < MinRefundWindowSecs || window > MaxRefundWindowSecs {
		return fieldErr("body.sol_refund_after_unix", "refund window must be in [%d,%d] seconds from now", MinRefundWindowSecs, MaxRefundWindowSecs)
	}
	if b.ValidUntilUnix <= now {
		return fieldErr("body.terms_valid_until_unix", "must be in the future")
	}
	return nil
}

func validateLNInvoice(b model.LNInvoiceBody) error {
	if b.Bolt11 == "" {
		return fieldErr("body.bolt11", "required")
	}
	if !hex32Pattern.MatchString(b.PaymentHashHex) {
		return fieldErr("body.payment_hash_hex", "must be 64 lowercase hex chars")
	}
	if !decimalPattern.MatchString(b.AmountMsat) {
		return fieldErr("body.amount_msat", "must be a non-negative decimal-string integer")
	}
	if b.ExpiresAtUnix <= 0 {
		return fieldErr("body.expires_at_unix", "must be positive")
	}
	return nil
}

func validateSolEscrowCreated(b model.SolEscrowCreatedBody) error {
	if b.ProgramID == "" || b.EscrowPDA == "" || b.VaultATA == "" || b.Signature == "" {
		return fieldErr("body", "program_id, escrow_pda, vault_ata and signature are all required")
	}
	return nil
}

func validateSvcAnnounce(b model.SvcAnnounceBody) error {
	if b.OfferID == "" {
		return fieldErr("body.offer_id", "required")
	}
	if b.Pair != model.Pair {
		return fieldErr("body.pair", "must be %q", model.Pair)
	}
	if len(b.Lines) == 0 {
		return fieldErr("body.lines", "must have at least one line")
	}
	for i, line := range b.Lines {
		if line.BTCSats <= 0 {
			return fieldErr(fmt.Sprintf("body.lines[%d].btc_sats", i), "must be positive")
		}
		if !decimalPattern.MatchString(line.USDTAmount) {
			return fieldErr(fmt.Sprintf("body.lines[%d].usdt_amount", i), "must be a non-negative decimal-string integer")
		}
		if err := validateFeeCeilings(line.PlatformFeeBps, line.TradeFeeBps); err != nil {
			return err
		}
		if err := validateRefundWindow(line.RefundWindowMinUnix, line.RefundWindowMaxUnix); err != nil {
			return err
		}
	}
	if b.ExpiresAtUnix <= 0 {
		return fieldErr("body.expires_at_unix", "must be positive")
	}
	return nil
}
