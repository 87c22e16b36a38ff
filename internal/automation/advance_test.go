package automation

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/intercomswap/swap-core/internal/listinglock"
	"github.com/intercomswap/swap-core/internal/model"
	"github.com/intercomswap/swap-core/internal/receipts/memory"
	"github.com/intercomswap/swap-core/internal/tools"
)

func newTestLoop(t *testing.T, peer string, cfg Config, now time.Time) (*Loop, *fakeBus) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	bus := newFakeBus(peer)
	tdeps := &tools.Deps{
		Bus:       bus,
		Store:     memory.New(),
		Locks:     listinglock.New(newFakeLockStore()),
		Keypair:   priv,
		LocalPeer: peer,
		Now:       func() time.Time { return now },
	}
	exec := tools.NewExecutor(tdeps,
		toolsByName("offer", "rfq", "quote", "quote_accept", "invite", "join",
			"terms", "accept", "cancel", "status")...)
	deps := Deps{
		Bus:       bus,
		Store:     tdeps.Store,
		Locks:     tdeps.Locks,
		Exec:      exec,
		LocalPeer: peer,
		Now:       func() time.Time { return now },
	}
	return NewLoop(cfg, deps), bus
}

// toolsByName filters tools.DefaultRegistry() down to the names requested,
// the same negotiation-only surface a taker-only peer exercises.
func toolsByName(names ...string) []*tools.Tool {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []*tools.Tool
	for _, tl := range tools.DefaultRegistry() {
		if want[tl.Name] {
			out = append(out, tl)
		}
	}
	return out
}

func makerOfferLoop(t *testing.T, now time.Time, offers []LocalOffer) (*Loop, *fakeBus) {
	t.Helper()
	l, bus := newTestLoop(t, "maker", DefaultConfig(), now)
	l.deps.Offers = offers
	return l, bus
}

func TestMatchOfferFindsLineOnExactTerms(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	offer := LocalOffer{
		OfferID:       "offerA",
		ExpiresAtUnix: now.Add(time.Hour).Unix(),
		Lines: []model.OfferLine{
			{LineIndex: 0, BTCSats: 100_000, USDTAmount: "60.00", PlatformFeeBps: 10, TradeFeeBps: 20},
		},
	}
	l, _ := makerOfferLoop(t, now, []LocalOffer{offer})

	body := model.RFQBody{
		BTCSats: 100_000, USDTAmount: "60.00",
		MaxPlatformFeeBps: 10, MaxTradeFeeBps: 20, MaxTotalFeeBps: 30,
	}
	_, line, matched := l.matchOffer(body, "rfq-channel", now)
	if !matched {
		t.Fatal("expected a match")
	}
	if line.LineIndex != 0 {
		t.Fatalf("unexpected line: %+v", line)
	}
}

func TestMatchOfferRejectsFeeCeilingViolation(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	offer := LocalOffer{
		OfferID:       "offerA",
		ExpiresAtUnix: now.Add(time.Hour).Unix(),
		Lines: []model.OfferLine{
			{LineIndex: 0, BTCSats: 100_000, USDTAmount: "60.00", PlatformFeeBps: 40, TradeFeeBps: 20},
		},
	}
	l, _ := makerOfferLoop(t, now, []LocalOffer{offer})

	body := model.RFQBody{
		BTCSats: 100_000, USDTAmount: "60.00",
		MaxPlatformFeeBps: 10, MaxTradeFeeBps: 20, MaxTotalFeeBps: 30,
	}
	if _, _, matched := l.matchOffer(body, "rfq-channel", now); matched {
		t.Fatal("expected no match when platform fee exceeds the RFQ ceiling")
	}
}

func TestMatchOfferRejectsDisallowedChannel(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	offer := LocalOffer{
		OfferID:       "offerA",
		ExpiresAtUnix: now.Add(time.Hour).Unix(),
		RFQChannels:   []string{"rfq-allowed"},
		Lines: []model.OfferLine{
			{LineIndex: 0, BTCSats: 100_000, USDTAmount: "60.00"},
		},
	}
	l, _ := makerOfferLoop(t, now, []LocalOffer{offer})

	body := model.RFQBody{BTCSats: 100_000, USDTAmount: "60.00"}
	if _, _, matched := l.matchOffer(body, "rfq-other", now); matched {
		t.Fatal("expected no match on a channel the offer restricts away")
	}
}

func TestAutoQuoteAnswersFreshRFQWithMatchingOffer(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	offer := LocalOffer{
		OfferID:       "offerA",
		ExpiresAtUnix: now.Add(time.Hour).Unix(),
		Lines: []model.OfferLine{
			{LineIndex: 0, BTCSats: 100_000, USDTAmount: "60000000", PlatformFeeBps: 10, TradeFeeBps: 20},
		},
	}
	l, bus := makerOfferLoop(t, now, []LocalOffer{offer})

	taker := model.Envelope{
		Kind: model.KindRFQ, TradeID: "t1", Signer: "taker",
		Body: rawBody(model.RFQBody{
			BTCSats: 100_000, USDTAmount: "60000000",
			MaxPlatformFeeBps: 10, MaxTradeFeeBps: 20, MaxTotalFeeBps: 30,
			ValidUntilUnix: now.Add(time.Minute).Unix(),
		}),
	}
	bus.injectRemote("rfq-channel", taker)

	events := l.ingest(context.Background(), now)
	neg, _ := buildContexts(events)
	budget := newActionBudget(10)
	l.autoQuote(context.Background(), now, neg, budget)

	quotes := bus.sentOfKind(model.KindQuote)
	if len(quotes) != 1 {
		t.Fatalf("expected exactly one quote sent, got %d", len(quotes))
	}
	if quotes[0].TradeID != "t1" {
		t.Fatalf("unexpected trade id on quote: %+v", quotes[0])
	}
}

func TestAutoQuoteSkipsExpiredRFQ(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	l, bus := makerOfferLoop(t, now, nil)
	l.cfg.EnableQuoteFromRFQs = true

	taker := model.Envelope{
		Kind: model.KindRFQ, TradeID: "t1", Signer: "taker",
		Body: rawBody(model.RFQBody{
			BTCSats: 1, USDTAmount: "1.00",
			ValidUntilUnix: now.Add(-time.Minute).Unix(),
		}),
	}
	bus.injectRemote("rfq-channel", taker)

	events := l.ingest(context.Background(), now)
	neg, _ := buildContexts(events)
	l.autoQuote(context.Background(), now, neg, newActionBudget(10))

	if len(bus.sentOfKind(model.KindQuote)) != 0 {
		t.Fatal("expected no quote for an already-expired RFQ")
	}
}

func TestAutoQuoteDoesNotRequoteARFQItAlreadyAnswered(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	offer := LocalOffer{
		OfferID:       "offerA",
		ExpiresAtUnix: now.Add(time.Hour).Unix(),
		Lines: []model.OfferLine{
			{LineIndex: 0, BTCSats: 100_000, USDTAmount: "60000000"},
		},
	}
	l, bus := makerOfferLoop(t, now, []LocalOffer{offer})

	taker := model.Envelope{
		Kind: model.KindRFQ, TradeID: "t1", Signer: "taker",
		Body: rawBody(model.RFQBody{
			BTCSats: 100_000, USDTAmount: "60000000",
			ValidUntilUnix: now.Add(time.Minute).Unix(),
		}),
	}
	bus.injectRemote("rfq-channel", taker)
	events := l.ingest(context.Background(), now)
	neg, _ := buildContexts(events)
	l.autoQuote(context.Background(), now, neg, newActionBudget(10))
	if len(bus.sentOfKind(model.KindQuote)) != 1 {
		t.Fatal("expected the first tick to quote")
	}

	events2 := l.ingest(context.Background(), now)
	neg2, _ := buildContexts(append(events, events2...))
	l.autoQuote(context.Background(), now, neg2, newActionBudget(10))
	if len(bus.sentOfKind(model.KindQuote)) != 1 {
		t.Fatal("expected no second quote once one is already local")
	}
}

func TestAutoAcceptPostsQuoteAcceptForMyOwnRFQ(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	l, bus := newTestLoop(t, "taker", DefaultConfig(), now)

	rfq := model.Envelope{
		Kind: model.KindRFQ, TradeID: "t1", Signer: "taker",
		Body: rawBody(model.RFQBody{BTCSats: 50_000, ValidUntilUnix: now.Add(time.Minute).Unix()}),
	}
	bus.Send(context.Background(), "rfq-channel", rawBody(rfq))

	quote := model.Envelope{
		Kind: model.KindQuote, TradeID: "t1", Signer: "maker",
		Body: rawBody(model.QuoteBody{BTCSats: 50_000, USDTAmount: "30.00"}),
	}
	bus.injectRemote("rfq-channel", quote)

	events := l.ingest(context.Background(), now)
	neg, _ := buildContexts(events)
	l.autoAccept(context.Background(), now, neg, newActionBudget(10))

	accepts := bus.sentOfKind(model.KindQuoteAccept)
	if len(accepts) != 1 {
		t.Fatalf("expected exactly one quote_accept sent, got %d", len(accepts))
	}
	if _, ok := l.quoteAccepts["t1"]; !ok {
		t.Fatal("expected the successful quote_accept call to be cached for replay")
	}
}

func TestAutoAcceptSkipsWhenRFQExpired(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	l, bus := newTestLoop(t, "taker", DefaultConfig(), now)

	rfq := model.Envelope{
		Kind: model.KindRFQ, TradeID: "t1", Signer: "taker",
		Body: rawBody(model.RFQBody{BTCSats: 50_000, ValidUntilUnix: now.Add(-time.Second).Unix()}),
	}
	bus.Send(context.Background(), "rfq-channel", rawBody(rfq))
	quote := model.Envelope{
		Kind: model.KindQuote, TradeID: "t1", Signer: "maker",
		Body: rawBody(model.QuoteBody{BTCSats: 50_000, USDTAmount: "30.00"}),
	}
	bus.injectRemote("rfq-channel", quote)

	events := l.ingest(context.Background(), now)
	neg, _ := buildContexts(events)
	l.autoAccept(context.Background(), now, neg, newActionBudget(10))

	if len(bus.sentOfKind(model.KindQuoteAccept)) != 0 {
		t.Fatal("expected no accept once my own RFQ has expired")
	}
}

func TestAutoInviteFiresOnceLiquidityHintSatisfiesQuote(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	l, bus := newTestLoop(t, "maker", DefaultConfig(), now)

	quote := model.Envelope{
		Kind: model.KindQuote, TradeID: "t1", Signer: "maker",
		Body: rawBody(model.QuoteBody{BTCSats: 50_000, USDTAmount: "30.00"}),
	}
	bus.Send(context.Background(), "rfq-channel", rawBody(quote))

	accept := model.Envelope{
		Kind: model.KindQuoteAccept, TradeID: "t1", Signer: "taker",
		Body: rawBody(model.QuoteAcceptBody{
			LNLiquidityHint: model.LiquidityHint{
				Mode: "aggregate", RequiredSats: 50_000, TotalOutboundSats: 60_000,
			},
		}),
	}
	bus.injectRemote("rfq-channel", accept)

	events := l.ingest(context.Background(), now)
	neg, _ := buildContexts(events)
	l.autoInvite(context.Background(), now, neg, newActionBudget(10))

	invites := bus.sentOfKind(model.KindSwapInvite)
	if len(invites) != 1 {
		t.Fatalf("expected exactly one invite sent, got %d", len(invites))
	}
	if !bus.joined["swap:t1"] {
		t.Fatal("expected the maker to subscribe to the new swap channel")
	}
	if _, ok := l.pendingTerms["t1"]; !ok {
		t.Fatal("expected pendingTerms to be seeded for the new trade")
	}
}

func TestAutoInviteSkipsWhenLiquidityInsufficient(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	l, bus := newTestLoop(t, "maker", DefaultConfig(), now)

	quote := model.Envelope{
		Kind: model.KindQuote, TradeID: "t1", Signer: "maker",
		Body: rawBody(model.QuoteBody{BTCSats: 50_000, USDTAmount: "30.00"}),
	}
	bus.Send(context.Background(), "rfq-channel", rawBody(quote))
	accept := model.Envelope{
		Kind: model.KindQuoteAccept, TradeID: "t1", Signer: "taker",
		Body: rawBody(model.QuoteAcceptBody{
			LNLiquidityHint: model.LiquidityHint{
				Mode: "aggregate", RequiredSats: 50_000, TotalOutboundSats: 10_000,
			},
		}),
	}
	bus.injectRemote("rfq-channel", accept)

	events := l.ingest(context.Background(), now)
	neg, _ := buildContexts(events)
	l.autoInvite(context.Background(), now, neg, newActionBudget(10))

	if len(bus.sentOfKind(model.KindSwapInvite)) != 0 {
		t.Fatal("expected no invite when outbound liquidity falls short")
	}
}

func TestAutoJoinJoinsInviteAddressedToMe(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	l, bus := newTestLoop(t, "taker", DefaultConfig(), now)

	invite := model.Envelope{
		Kind: model.KindSwapInvite, TradeID: "t1", Signer: "maker",
		Body: rawBody(model.SwapInviteBody{
			SwapChannel: "swap:t1", InviteePeer: "taker",
			Welcome: "w", Invite: "i", ExpiresAtUnix: now.Add(time.Minute).Unix(),
		}),
	}
	bus.injectRemote("rfq-channel", invite)

	events := l.ingest(context.Background(), now)
	neg, _ := buildContexts(events)
	l.autoJoin(context.Background(), now, neg, newActionBudget(10))

	if !bus.joined["swap:t1"] {
		t.Fatal("expected taker to join the swap channel")
	}
	if !l.stage("t1", "join").done {
		t.Fatal("expected the join stage to be marked done")
	}
	if _, ok := l.waitingTerms["t1"]; !ok {
		t.Fatal("expected runWaitingTerms bookkeeping to start once joined")
	}
}

func TestAutoJoinIgnoresInviteAddressedToSomeoneElse(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	l, bus := newTestLoop(t, "taker", DefaultConfig(), now)

	invite := model.Envelope{
		Kind: model.KindSwapInvite, TradeID: "t1", Signer: "maker",
		Body: rawBody(model.SwapInviteBody{
			SwapChannel: "swap:t1", InviteePeer: "someone-else",
			Welcome: "w", Invite: "i", ExpiresAtUnix: now.Add(time.Minute).Unix(),
		}),
	}
	bus.injectRemote("rfq-channel", invite)

	events := l.ingest(context.Background(), now)
	neg, _ := buildContexts(events)
	l.autoJoin(context.Background(), now, neg, newActionBudget(10))

	if bus.joined["swap:t1"] {
		t.Fatal("expected taker not to join an invite addressed to a different peer")
	}
}
