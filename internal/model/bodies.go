package model

// Pair is the only trading pair this core understands, pinned at the wire
// layer so a malformed cross-pair envelope fails schema validation early.
const Pair = "BTC_LN:USDT_SOL"

// RFQBody is the taker's request for quote.
type RFQBody struct {
	Pair             string   `json:"pair"`
	BTCSats          int64    `json:"btc_sats"`
	USDTAmount       string   `json:"usdt_amount"`
	MaxPlatformFeeBps int     `json:"max_platform_fee_bps"`
	MaxTradeFeeBps   int      `json:"max_trade_fee_bps"`
	MaxTotalFeeBps   int      `json:"max_total_fee_bps"`
	RefundWindowMinUnix int64 `json:"refund_window_min_unix,omitempty"`
	RefundWindowMaxUnix int64 `json:"refund_window_max_unix,omitempty"`
	RFQChannels      []string `json:"rfq_channels,omitempty"`
	ValidUntilUnix   int64    `json:"valid_until_unix"`
}

// QuoteBody is the maker's price/fee commitment, optionally bound to an
// offer line.
type QuoteBody struct {
	Pair            string `json:"pair"`
	BTCSats         int64  `json:"btc_sats"`
	USDTAmount      string `json:"usdt_amount"`
	PlatformFeeBps  int    `json:"platform_fee_bps"`
	TradeFeeBps     int    `json:"trade_fee_bps"`
	OfferID         string `json:"offer_id,omitempty"`
	OfferLineIndex  int    `json:"offer_line_index,omitempty"`
	ValidUntilUnix  int64  `json:"valid_until_unix"`
}

// LiquidityHint summarizes the taker's LN channel view at quote-accept time.
type LiquidityHint struct {
	Mode                  string `json:"mode"` // single_channel | aggregate
	RequiredSats          int64  `json:"required_sats"`
	MaxSingleOutboundSats int64  `json:"max_single_outbound_sats"`
	TotalOutboundSats     int64  `json:"total_outbound_sats"`
	ActiveChannels        int    `json:"active_channels"`
	ObservedAtUnix        int64  `json:"observed_at_unix"`
}

// QuoteAcceptBody is the taker's commitment to a quote.
type QuoteAcceptBody struct {
	RFQID           string        `json:"rfq_id"`
	QuotePeer       string        `json:"quote_peer"`
	LNLiquidityHint LiquidityHint `json:"ln_liquidity_hint"`
}

// SwapInviteBody is the maker's signed invitation to a private swap channel.
type SwapInviteBody struct {
	SwapChannel    string `json:"swap_channel"`
	InviteePeer    string `json:"invitee_peer,omitempty"`
	Welcome        string `json:"welcome"`
	Invite         string `json:"invite"`
	ExpiresAtUnix  int64  `json:"expires_at_unix"`
}

// TermsBody is the full signed commitment binding both legs of the swap.
type TermsBody struct {
	Pair                 string `json:"pair"`
	BTCSats              int64  `json:"btc_sats"`
	USDTAmount           string `json:"usdt_amount"`
	SolMint              string `json:"sol_mint"`
	SolRecipient         string `json:"sol_recipient"`
	SolRefund            string `json:"sol_refund"`
	SolRefundAfterUnix   int64  `json:"sol_refund_after_unix"`
	LNPayerPeer          string `json:"ln_payer_peer"`
	LNReceiverPeer       string `json:"ln_receiver_peer"`
	PlatformFeeBps       int    `json:"platform_fee_bps"`
	TradeFeeBps          int    `json:"trade_fee_bps"`
	TradeFeeCollector    string `json:"trade_fee_collector"`
	PlatformFeeCollector string `json:"platform_fee_collector"`
	AppHash              string `json:"app_hash"`
	ValidUntilUnix       int64  `json:"terms_valid_until_unix"`
}

// AcceptBody carries nothing beyond trade linkage; its presence is the signal.
type AcceptBody struct {
	Note string `json:"note,omitempty"`
}

// LNInvoiceBody is the maker's posted invoice for the taker to pay.
type LNInvoiceBody struct {
	Bolt11        string `json:"bolt11"`
	PaymentHashHex string `json:"payment_hash_hex"`
	AmountMsat    string `json:"amount_msat"`
	ExpiresAtUnix int64  `json:"expires_at_unix"`
}

// SolEscrowCreatedBody is the maker's posted escrow, after on-chain init.
type SolEscrowCreatedBody struct {
	ProgramID  string `json:"program_id"`
	EscrowPDA  string `json:"escrow_pda"`
	VaultATA   string `json:"vault_ata"`
	Signature  string `json:"signature"`
}

// LNPaidBody is the taker's proof of LN settlement.
type LNPaidBody struct {
	PaymentHashHex string `json:"payment_hash_hex"`
}

// SolClaimedBody is the taker's proof of on-chain claim.
type SolClaimedBody struct {
	Signature string `json:"signature"`
}

// SolRefundedBody is proof of an on-chain refund (maker-side, post-timeout).
type SolRefundedBody struct {
	Signature string `json:"signature"`
}

// CancelBody explains why a trade was aborted pre-escrow.
type CancelBody struct {
	Reason string `json:"reason"`
}

// StatusBody is a free-form progress ping used for route prechecks,
// waiting-terms pings, and other negotiation chatter.
type StatusBody struct {
	State string `json:"state"`
	Note  string `json:"note,omitempty"`
}

// SvcAnnounceBody is a maker's periodic offer broadcast.
type SvcAnnounceBody struct {
	OfferID             string   `json:"offer_id"`
	Pair                string   `json:"pair"`
	Lines               []OfferLine `json:"lines"`
	ExpiresAtUnix       int64    `json:"expires_at_unix"`
	RFQChannels         []string `json:"rfq_channels,omitempty"`
}

// OfferLine is one priced line within a maker's offer.
type OfferLine struct {
	LineIndex           int    `json:"line_index"`
	BTCSats             int64  `json:"btc_sats"`
	USDTAmount          string `json:"usdt_amount"`
	PlatformFeeBps      int    `json:"platform_fee_bps"`
	TradeFeeBps         int    `json:"trade_fee_bps"`
	RefundWindowMinUnix int64  `json:"refund_window_min_unix"`
	RefundWindowMaxUnix int64  `json:"refund_window_max_unix"`
}
