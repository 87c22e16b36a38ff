// Package model holds the wire and persistence types shared across swap-core:
// envelopes, trade records, the event journal and listing locks.
package model

import (
	"strconv"
	"time"
)

// Role identifies which side of a swap the local peer plays.
type Role string

const (
	RoleMaker Role = "maker"
	RoleTaker Role = "taker"
)

// TradeState is a point along the settlement pipeline. Transitions are
// monotonic except for branches into the terminal states.
type TradeState string

const (
	TradeStateRFQ      TradeState = "rfq"
	TradeStateTerms    TradeState = "terms"
	TradeStateAccepted TradeState = "accepted"
	TradeStateInvoice  TradeState = "invoice"
	TradeStateEscrow   TradeState = "escrow"
	TradeStateLNPaid   TradeState = "ln_paid"
	TradeStateClaimed  TradeState = "claimed"
	TradeStateRefunded TradeState = "refunded"
	TradeStateCanceled TradeState = "canceled"
)

// IsTerminal reports whether s is one of the three terminal states.
func (s TradeState) IsTerminal() bool {
	switch s {
	case TradeStateClaimed, TradeStateRefunded, TradeStateCanceled:
		return true
	default:
		return false
	}
}

// Trade is the durable record for one swap, keyed by TradeID.
type Trade struct {
	TradeID     string `gorm:"column:trade_id;primaryKey" json:"trade_id"`
	Role        Role   `gorm:"column:role" json:"role"`
	SwapChannel string `gorm:"column:swap_channel" json:"swap_channel"`
	MakerPeer   string `gorm:"column:maker_peer" json:"maker_peer"`
	TakerPeer   string `gorm:"column:taker_peer" json:"taker_peer"`

	BTCSats    int64  `gorm:"column:btc_sats" json:"btc_sats"`
	USDTAmount string `gorm:"column:usdt_amount" json:"usdt_amount"`

	SolMint            string `gorm:"column:sol_mint" json:"sol_mint"`
	SolProgramID       string `gorm:"column:sol_program_id" json:"sol_program_id"`
	SolRecipient       string `gorm:"column:sol_recipient" json:"sol_recipient"`
	SolRefund          string `gorm:"column:sol_refund" json:"sol_refund"`
	SolEscrowPDA       string `gorm:"column:sol_escrow_pda" json:"sol_escrow_pda"`
	SolVaultATA        string `gorm:"column:sol_vault_ata" json:"sol_vault_ata"`
	SolRefundAfterUnix int64  `gorm:"column:sol_refund_after_unix" json:"sol_refund_after_unix"`

	LNInvoiceBolt11  string `gorm:"column:ln_invoice_bolt11" json:"ln_invoice_bolt11"`
	LNPaymentHashHex string `gorm:"column:ln_payment_hash_hex;index" json:"ln_payment_hash_hex"`
	LNPreimageHex    string `gorm:"column:ln_preimage_hex" json:"ln_preimage_hex"`

	PlatformFeeBps       int    `gorm:"column:platform_fee_bps" json:"platform_fee_bps"`
	TradeFeeBps          int    `gorm:"column:trade_fee_bps" json:"trade_fee_bps"`
	TradeFeeCollector    string `gorm:"column:trade_fee_collector" json:"trade_fee_collector"`
	PlatformFeeCollector string `gorm:"column:platform_fee_collector" json:"platform_fee_collector"`

	State     TradeState `gorm:"column:state;index" json:"state"`
	LastError string     `gorm:"column:last_error" json:"last_error,omitempty"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Trade) TableName() string { return "trades" }

// GetID satisfies the db.Entity contract the generic Repository[T] expects.
func (t Trade) GetID() string { return t.TradeID }

// TradePatch is a partial update applied by an idempotent upsert: only
// non-nil fields are merged into the existing record.
type TradePatch struct {
	Role                 *Role
	SwapChannel          *string
	MakerPeer            *string
	TakerPeer            *string
	BTCSats              *int64
	USDTAmount           *string
	SolMint              *string
	SolProgramID         *string
	SolRecipient         *string
	SolRefund            *string
	SolEscrowPDA         *string
	SolVaultATA          *string
	SolRefundAfterUnix   *int64
	LNInvoiceBolt11      *string
	LNPaymentHashHex     *string
	LNPreimageHex        *string
	PlatformFeeBps       *int
	TradeFeeBps          *int
	TradeFeeCollector    *string
	PlatformFeeCollector *string
	State                *TradeState
	LastError            *string
}

// Apply merges non-nil patch fields onto t in place.
func (p TradePatch) Apply(t *Trade) {
	if p.Role != nil {
		t.Role = *p.Role
	}
	if p.SwapChannel != nil {
		t.SwapChannel = *p.SwapChannel
	}
	if p.MakerPeer != nil {
		t.MakerPeer = *p.MakerPeer
	}
	if p.TakerPeer != nil {
		t.TakerPeer = *p.TakerPeer
	}
	if p.BTCSats != nil {
		t.BTCSats = *p.BTCSats
	}
	if p.USDTAmount != nil {
		t.USDTAmount = *p.USDTAmount
	}
	if p.SolMint != nil {
		t.SolMint = *p.SolMint
	}
	if p.SolProgramID != nil {
		t.SolProgramID = *p.SolProgramID
	}
	if p.SolRecipient != nil {
		t.SolRecipient = *p.SolRecipient
	}
	if p.SolRefund != nil {
		t.SolRefund = *p.SolRefund
	}
	if p.SolEscrowPDA != nil {
		t.SolEscrowPDA = *p.SolEscrowPDA
	}
	if p.SolVaultATA != nil {
		t.SolVaultATA = *p.SolVaultATA
	}
	if p.SolRefundAfterUnix != nil {
		t.SolRefundAfterUnix = *p.SolRefundAfterUnix
	}
	if p.LNInvoiceBolt11 != nil {
		t.LNInvoiceBolt11 = *p.LNInvoiceBolt11
	}
	if p.LNPaymentHashHex != nil {
		t.LNPaymentHashHex = *p.LNPaymentHashHex
	}
	if p.LNPreimageHex != nil {
		t.LNPreimageHex = *p.LNPreimageHex
	}
	if p.PlatformFeeBps != nil {
		t.PlatformFeeBps = *p.PlatformFeeBps
	}
	if p.TradeFeeBps != nil {
		t.TradeFeeBps = *p.TradeFeeBps
	}
	if p.TradeFeeCollector != nil {
		t.TradeFeeCollector = *p.TradeFeeCollector
	}
	if p.PlatformFeeCollector != nil {
		t.PlatformFeeCollector = *p.PlatformFeeCollector
	}
	if p.State != nil {
		t.State = *p.State
	}
	if p.LastError != nil {
		t.LastError = *p.LastError
	}
}

// TradeEvent is one append-only entry in a trade's event journal.
type TradeEvent struct {
	TradeID  string `gorm:"column:trade_id;index:idx_trade_events_trade_seq" json:"trade_id"`
	Seq      int64  `gorm:"column:seq;index:idx_trade_events_trade_seq" json:"seq"`
	Kind     string `gorm:"column:kind" json:"kind"`
	TS       int64  `gorm:"column:ts" json:"ts"`
	BodyJSON string `gorm:"column:body_json" json:"body_json"`
}

func (TradeEvent) TableName() string { return "trade_events" }

// ListingType distinguishes the two lockable listing kinds.
type ListingType string

const (
	ListingTypeRFQ       ListingType = "rfq"
	ListingTypeOfferLine ListingType = "offer_line"
)

// ListingState tracks whether a lock is still contested or has resolved.
type ListingState string

const (
	ListingStateInFlight ListingState = "in_flight"
	ListingStateFilled   ListingState = "filled"
)

// ListingLock reserves an RFQ or offer line against a double-sell.
type ListingLock struct {
	ListingKey  string       `gorm:"column:listing_key;primaryKey" json:"listing_key"`
	ListingType ListingType  `gorm:"column:listing_type" json:"listing_type"`
	ListingID   string       `gorm:"column:listing_id" json:"listing_id"`
	TradeID     string       `gorm:"column:trade_id" json:"trade_id,omitempty"`
	State       ListingState `gorm:"column:state" json:"state"`
	Note        string       `gorm:"column:note" json:"note,omitempty"`
	Meta        string       `gorm:"column:meta" json:"meta,omitempty"`
}

func (ListingLock) TableName() string { return "listing_locks" }

func (l ListingLock) GetID() string { return l.ListingKey }

// RFQListingKey builds the lock key for an RFQ id.
func RFQListingKey(rfqID string) string { return "rfq:" + rfqID }

// OfferLineListingKey builds the lock key for an offer line.
func OfferLineListingKey(offerID string, lineIndex int) string {
	return "offer_line:" + OfferLineListingID(offerID, lineIndex)
}

// OfferLineListingID builds the listing_id stored alongside an offer-line lock.
func OfferLineListingID(offerID string, lineIndex int) string {
	return offerID + ":" + strconv.Itoa(lineIndex)
}
