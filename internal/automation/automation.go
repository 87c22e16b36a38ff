package automation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/intercomswap/swap-core/internal/apperr"
	"github.com/intercomswap/swap-core/internal/feesnapshot"
	"github.com/intercomswap/swap-core/internal/listinglock"
	"github.com/intercomswap/swap-core/internal/model"
	"github.com/intercomswap/swap-core/internal/receipts"
	"github.com/intercomswap/swap-core/internal/sidechannel"
	"github.com/intercomswap/swap-core/internal/tools"
)

// Deps bundles the collaborators a tick needs. Every envelope post, LN call
// and chain transaction goes through Exec; the loop calls the bus directly
// only to subscribe, read events, register inviter keys and leave channels,
// and uses Store directly for its own journaling.
// Fees, SolMint, LocalSolKey and PeerSolKeys exist only to fill in TERMS's
// on-chain fields; the loop never reads the chain itself beyond that reader.
type Deps struct {
	Bus         sidechannel.Bus
	Store       receipts.TradeStore
	Locks       *listinglock.Manager
	Exec        *tools.Executor
	Fees        *feesnapshot.Reader
	LocalPeer   string
	LocalSolKey string
	PeerSolKeys map[string]string // counterparty identity hex -> base58 Solana address
	SolMint     string
	Channels    []string
	Offers      []LocalOffer
	Now         func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// stageState is the bookkeeping behind spec §4.10's stage key discipline:
// a stage runs only while !done && !inFlight && now >= retryAfter.
type stageState struct {
	done       bool
	inFlight   bool
	retryAfter time.Time
	retryCount int
}

func (s *stageState) runnable(now time.Time) bool {
	return !s.done && !s.inFlight && !now.Before(s.retryAfter)
}

type waitingTermsState struct {
	firstSeenAt time.Time
	pings       int
	nextPingAt  time.Time
}

type lnPayFailState struct {
	failures    int
	firstFailAt time.Time
	lastFailAt  time.Time
}

type termsReplayState struct {
	count  int
	nextAt time.Time
}

// pendingTermsSeed carries the negotiated numbers forward from the moment
// SWAP_INVITE posts to the moment the maker's settlement stage can build
// TERMS — the negotiation context itself isn't retained once a tick moves
// on, since buildContexts only ever sees newly-ingested events.
type pendingTermsSeed struct {
	btcSats    int64
	usdtAmount string
	takerPeer  string
	offerID    string
}

// quoteAcceptSeed is what runWaitingTerms needs to replay QUOTE_ACCEPT while
// a taker is stalled waiting on TERMS.
type quoteAcceptSeed struct {
	channel string
	args    tools.Args
}

// Loop is C10: the single-threaded cooperative automation loop.
type Loop struct {
	cfg  Config
	deps Deps

	mu           sync.Mutex
	tickInFlight bool

	lastSeq int64
	seen    map[string]time.Time // dedupe key -> last-seen, evicted past DoneMaxAge

	stages       map[string]*stageState
	waitingTerms map[string]*waitingTermsState
	lnPayFail    map[string]*lnPayFailState
	termsReplay  map[string]*termsReplayState
	leaveBackoff map[string]time.Duration

	pendingTerms map[string]pendingTermsSeed
	quoteAccepts map[string]quoteAcceptSeed

	lastKeepalive time.Time
	lastHygiene   time.Time
}

// NewLoop constructs a Loop ready for Run.
func NewLoop(cfg Config, deps Deps) *Loop {
	return &Loop{
		cfg:          cfg,
		deps:         deps,
		seen:         make(map[string]time.Time),
		stages:       make(map[string]*stageState),
		waitingTerms: make(map[string]*waitingTermsState),
		lnPayFail:    make(map[string]*lnPayFailState),
		termsReplay:  make(map[string]*termsReplayState),
		leaveBackoff: make(map[string]time.Duration),
		pendingTerms: make(map[string]pendingTermsSeed),
		quoteAccepts: make(map[string]quoteAcceptSeed),
	}
}

// Run drives the loop at cfg.TickInterval until ctx is canceled. Stop is
// cooperative: the in-flight tick always drains before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	interval := l.cfg.TickInterval
	if interval < 250*time.Millisecond {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick runs one full pass. At most one tick executes at a time; a tick
// still running when the ticker fires again is skipped, not queued.
func (l *Loop) tick(ctx context.Context) {
	l.mu.Lock()
	if l.tickInFlight {
		l.mu.Unlock()
		return
	}
	l.tickInFlight = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.tickInFlight = false
		l.mu.Unlock()
	}()

	now := l.deps.now()
	l.keepalive(ctx, now)
	events := l.ingest(ctx, now)
	neg, settle := buildContexts(events)

	l.hygiene(ctx, now, settle)

	budget := newActionBudget(l.cfg.ActionsPerTick)
	l.autoQuote(ctx, now, neg, budget)
	l.autoAccept(ctx, now, neg, budget)
	l.autoInvite(ctx, now, neg, budget)
	l.autoJoin(ctx, now, neg, budget)
	l.runWaitingTerms(ctx, now, settle, budget)
	for _, s := range settle {
		l.advanceSettlement(ctx, now, s, budget)
	}
}

// keepalive reasserts every configured subscription every
// cfg.KeepaliveInterval, the same reconnection-hygiene shape as a
// websocket ping — dropped subscriptions silently heal on the next pass.
func (l *Loop) keepalive(ctx context.Context, now time.Time) {
	if now.Sub(l.lastKeepalive) < l.cfg.KeepaliveInterval {
		return
	}
	l.lastKeepalive = now
	if len(l.deps.Channels) == 0 {
		return
	}
	_ = l.deps.Bus.Subscribe(ctx, l.deps.Channels)
}

// ingest pulls new events since lastSeq, bounded by MaxEventsPerTick and
// EventMaxAge, decodes the ones that are swap envelopes, and dedupes by
// (channel, kind, trade_id, signer, sig) with a TTL of cfg.DoneMaxAge.
//
// Envelopes a peer posts itself are journaled by the C9 tool that sent
// them; envelopes arriving from the wire are journaled here, the one
// place a counterparty's half of a trade enters this peer's durable
// record (C8's prepay verification later replays that journal).
func (l *Loop) ingest(ctx context.Context, now time.Time) []tradeEvent {
	raw := l.deps.Bus.Since(l.lastSeq, l.cfg.MaxEventsPerTick, l.cfg.EventMaxAge)
	out := make([]tradeEvent, 0, len(raw))
	for _, ev := range raw {
		if ev.Seq > l.lastSeq {
			l.lastSeq = ev.Seq
		}
		env, ok := decodeEnvelope(ev)
		if !ok {
			continue
		}
		key := fmt.Sprintf("%s|%s|%s|%s|%s", ev.Channel, env.Kind, env.TradeID, env.Signer, env.Sig)
		if _, dup := l.seen[key]; dup {
			continue
		}
		l.seen[key] = now
		if !ev.Local {
			_, _ = l.deps.Store.AppendEvent(ctx, env.TradeID, model.TradeEvent{
				TradeID:  env.TradeID,
				Kind:     string(env.Kind),
				TS:       env.TSMs,
				BodyJSON: string(ev.Message),
			})
		}
		out = append(out, tradeEvent{raw: ev, env: env})
	}
	l.evictSeen(now)
	return out
}

func (l *Loop) evictSeen(now time.Time) {
	for k, seenAt := range l.seen {
		if now.Sub(seenAt) > l.cfg.DoneMaxAge {
			delete(l.seen, k)
		}
	}
}

// hygiene leaves joined swap:* channels whose trade has gone terminal,
// with per-trade exponential backoff up to SwapLeaveCooldownMax.
func (l *Loop) hygiene(ctx context.Context, now time.Time, settle map[string]*settlementCtx) {
	if now.Sub(l.lastHygiene) < l.cfg.HygieneInterval {
		return
	}
	l.lastHygiene = now
	for _, s := range settle {
		if !s.terminal() {
			continue
		}
		backoff := l.leaveBackoff[s.channel]
		if backoff == 0 {
			backoff = l.cfg.SwapLeaveCooldown
		}
		if err := l.deps.Bus.Leave(ctx, s.channel); err != nil {
			next := backoff * 2
			if next > l.cfg.SwapLeaveCooldownMax {
				next = l.cfg.SwapLeaveCooldownMax
			}
			l.leaveBackoff[s.channel] = next
			continue
		}
		delete(l.leaveBackoff, s.channel)
	}
}

// actionBudget enforces the per-tick actions_left cap of spec §4.10 step 6.
type actionBudget struct{ left int }

func newActionBudget(n int) *actionBudget { return &actionBudget{left: n} }
func (b *actionBudget) take() bool {
	if b.left <= 0 {
		return false
	}
	b.left--
	return true
}

func (l *Loop) stage(tradeID, name string) *stageState {
	key := tradeID + ":" + name
	s, ok := l.stages[key]
	if !ok {
		s = &stageState{}
		l.stages[key] = s
	}
	return s
}

// permanentFailureSubstrings names the phrases spec §4.10 calls out as
// always permanent-abort regardless of the error's apperr.Type.
var permanentFailureSubstrings = []string{
	"expired", "terminal",
	"already joined", "already accepted", "already active",
	"listing_filled", "listing_in_progress", "swap_invite_exists",
}

// isPermanentFailure classifies err per spec §4.10: a fixed phrase set is
// always permanent; beyond that, defer to the error's own apperr.Type via
// apperr.Retryable (validation/auth/invariant/crypto are never retried).
func isPermanentFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range permanentFailureSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return !apperr.Retryable(err)
}

// finishStage records the outcome of a stage attempt: success marks it
// done; failure either schedules a retry or, once retryCount reaches
// StageRetryMax (or the failure is permanent), aborts the trade.
func (l *Loop) finishStage(ctx context.Context, tradeID, name string, cooldown time.Duration, err error) {
	s := l.stage(tradeID, name)
	s.inFlight = false
	if err == nil {
		s.done = true
		return
	}
	if isPermanentFailure(err) || s.retryCount >= l.cfg.StageRetryMax {
		l.abortTrade(ctx, tradeID, err)
		return
	}
	s.retryCount++
	s.retryAfter = l.deps.now().Add(cooldown)
}

// abortTrade emits CANCEL (only valid pre-escrow) and leaves the swap
// channel, the terminal-abort path spec §4.10 describes.
func (l *Loop) abortTrade(ctx context.Context, tradeID string, cause error) {
	channel := "swap:" + tradeID
	if !l.escrowFunded(ctx, tradeID) {
		_, _ = l.deps.Exec.Execute(ctx, "cancel", tools.Args{
			"channel":  channel,
			"trade_id": tradeID,
			"reason":   truncateReason(cause),
		}, tools.Context{AutoApprove: true})
	}
	_ = l.deps.Bus.Leave(ctx, channel)
}

// escrowFunded reports whether this trade's escrow has already been funded
// on-chain, authoritatively: the in-memory sol_escrow stage flag only
// covers the process that ran the stage, so after a restart it is always
// false even when the prior process committed SOL_ESCROW_CREATED before
// crashing. A restart must rebuild that context from the receipts store
// and the bus journal rather than trust fresh in-memory state.
func (l *Loop) escrowFunded(ctx context.Context, tradeID string) bool {
	if l.stage(tradeID, "sol_escrow").done {
		return true
	}
	if trade, err := l.deps.Store.GetTrade(ctx, tradeID); err == nil && trade != nil {
		switch trade.State {
		case model.TradeStateEscrow, model.TradeStateLNPaid, model.TradeStateClaimed, model.TradeStateRefunded:
			return true
		}
	}
	if events, err := l.deps.Store.ListEvents(ctx, tradeID); err == nil {
		for _, ev := range events {
			if ev.Kind == string(model.KindSolEscrowCreated) {
				return true
			}
		}
	}
	return false
}

func truncateReason(err error) string {
	s := err.Error()
	const max = 500
	if len(s) > max {
		return s[:max]
	}
	return s
}
