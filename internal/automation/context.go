package automation

import (
	"encoding/json"

	"github.com/intercomswap/swap-core/internal/model"
	"github.com/intercomswap/swap-core/internal/sidechannel"
)

// tradeEvent pairs a raw bus event with its decoded envelope, the shape
// every context-building and matching helper below actually wants.
type tradeEvent struct {
	raw sidechannel.LogEvent
	env model.Envelope
}

// negotiationCtx is the per-trade_id view of pre-settlement chatter (spec
// §4.10 step 4's "negotiation view").
type negotiationCtx struct {
	tradeID      string
	rfqs         []tradeEvent
	quotes       []tradeEvent
	quoteAccepts []tradeEvent
	invites      []tradeEvent
}

// settlementCtx is the per-swap-channel view of a trade once it has moved
// into a dedicated swap:<trade_id> channel.
type settlementCtx struct {
	channel  string
	tradeID  string
	terms    []tradeEvent
	accepts  []tradeEvent
	invoices []tradeEvent
	escrows  []tradeEvent
	lnPaids  []tradeEvent
	statuses []tradeEvent
	claimed  []tradeEvent
	refunded []tradeEvent
	canceled []tradeEvent
}

func (s *settlementCtx) terminal() bool {
	return len(s.claimed) > 0 || len(s.refunded) > 0 || len(s.canceled) > 0
}

func (s *settlementCtx) latestTerms() *tradeEvent  { return last(s.terms) }
func (s *settlementCtx) latestInvoice() *tradeEvent { return last(s.invoices) }
func (s *settlementCtx) latestEscrow() *tradeEvent  { return last(s.escrows) }

func last(evs []tradeEvent) *tradeEvent {
	if len(evs) == 0 {
		return nil
	}
	return &evs[len(evs)-1]
}

// decodeEnvelope best-effort decodes ev.Message into a model.Envelope;
// envelopes that fail schema validation upstream never reach the bus, so a
// decode failure here means a non-envelope control frame, safely skipped.
func decodeEnvelope(ev sidechannel.LogEvent) (model.Envelope, bool) {
	var env model.Envelope
	if err := json.Unmarshal(ev.Message, &env); err != nil {
		return model.Envelope{}, false
	}
	if env.Kind == "" || env.TradeID == "" {
		return model.Envelope{}, false
	}
	return env, true
}

// buildContexts partitions events into the negotiation and settlement
// views spec §4.10 step 4 describes. Negotiation events are grouped by
// trade_id; settlement events are grouped by the bus channel they arrived
// on (every swap advances on its own dedicated swap:<trade_id> channel).
func buildContexts(events []tradeEvent) (map[string]*negotiationCtx, map[string]*settlementCtx) {
	neg := make(map[string]*negotiationCtx)
	settle := make(map[string]*settlementCtx)

	negFor := func(tradeID string) *negotiationCtx {
		c, ok := neg[tradeID]
		if !ok {
			c = &negotiationCtx{tradeID: tradeID}
			neg[tradeID] = c
		}
		return c
	}
	settleFor := func(channel, tradeID string) *settlementCtx {
		c, ok := settle[channel]
		if !ok {
			c = &settlementCtx{channel: channel, tradeID: tradeID}
			settle[channel] = c
		}
		return c
	}

	for _, te := range events {
		switch te.env.Kind {
		case model.KindRFQ:
			negFor(te.env.TradeID).rfqs = append(negFor(te.env.TradeID).rfqs, te)
		case model.KindQuote:
			negFor(te.env.TradeID).quotes = append(negFor(te.env.TradeID).quotes, te)
		case model.KindQuoteAccept:
			negFor(te.env.TradeID).quoteAccepts = append(negFor(te.env.TradeID).quoteAccepts, te)
		case model.KindSwapInvite:
			negFor(te.env.TradeID).invites = append(negFor(te.env.TradeID).invites, te)
		case model.KindTerms:
			c := settleFor(te.raw.Channel, te.env.TradeID)
			c.terms = append(c.terms, te)
		case model.KindAccept:
			c := settleFor(te.raw.Channel, te.env.TradeID)
			c.accepts = append(c.accepts, te)
		case model.KindLNInvoice:
			c := settleFor(te.raw.Channel, te.env.TradeID)
			c.invoices = append(c.invoices, te)
		case model.KindSolEscrowCreated:
			c := settleFor(te.raw.Channel, te.env.TradeID)
			c.escrows = append(c.escrows, te)
		case model.KindLNPaid:
			c := settleFor(te.raw.Channel, te.env.TradeID)
			c.lnPaids = append(c.lnPaids, te)
		case model.KindStatus:
			c := settleFor(te.raw.Channel, te.env.TradeID)
			c.statuses = append(c.statuses, te)
		case model.KindSolClaimed:
			c := settleFor(te.raw.Channel, te.env.TradeID)
			c.claimed = append(c.claimed, te)
		case model.KindSolRefunded:
			c := settleFor(te.raw.Channel, te.env.TradeID)
			c.refunded = append(c.refunded, te)
		case model.KindCancel:
			c := settleFor(te.raw.Channel, te.env.TradeID)
			c.canceled = append(c.canceled, te)
		}
	}
	return neg, settle
}
