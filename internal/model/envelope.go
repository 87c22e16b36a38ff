package model

import "encoding/json"

// Kind enumerates the closed set of envelope kinds carried on the sidechannel
// bus. Callers should switch over these rather than comparing raw strings.
type Kind string

const (
	KindRFQ            Kind = "swap.rfq"
	KindQuote          Kind = "swap.quote"
	KindQuoteAccept    Kind = "swap.quote_accept"
	KindSwapInvite     Kind = "swap.swap_invite"
	KindTerms          Kind = "swap.terms"
	KindAccept         Kind = "swap.accept"
	KindLNInvoice      Kind = "swap.ln_invoice"
	KindSolEscrowCreated Kind = "swap.sol_escrow_created"
	KindLNPaid         Kind = "swap.ln_paid"
	KindSolClaimed     Kind = "swap.sol_claimed"
	KindSolRefunded    Kind = "swap.sol_refunded"
	KindCancel         Kind = "swap.cancel"
	KindStatus         Kind = "swap.status"
	KindSvcAnnounce    Kind = "swap.svc_announce"
)

// EnvelopeVersion is the only wire version this build understands.
const EnvelopeVersion = 1

// Envelope is the tagged record that flows over the sidechannel bus. Body is
// kept as raw JSON so C1 can hash/sign it without needing to know every
// kind's shape, while callers can still json.Unmarshal into the concrete
// body struct for the kind they expect.
type Envelope struct {
	V       int             `json:"v"`
	Kind    Kind            `json:"kind"`
	TradeID string          `json:"trade_id"`
	TSMs    int64           `json:"ts_ms"`
	Body    json.RawMessage `json:"body"`
	Signer  string          `json:"signer,omitempty"`
	Sig     string          `json:"sig,omitempty"`
}

// Unsigned returns the envelope with Signer/Sig stripped — the shape whose
// canonical encoding is hashed and signed.
func (e Envelope) Unsigned() Envelope {
	e.Signer = ""
	e.Sig = ""
	return e
}

// IsSigned reports whether both signer and signature are present.
func (e Envelope) IsSigned() bool {
	return e.Signer != "" && e.Sig != ""
}
