package tools

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/intercomswap/swap-core/internal/model"
	"github.com/intercomswap/swap-core/internal/receipts/memory"
	"github.com/intercomswap/swap-core/internal/sidechannel"
	"github.com/intercomswap/swap-core/internal/vault"
)

// fakeBus is an in-memory sidechannel.Bus standing in for a real websocket
// session in tests that don't need a live connection.
type fakeBus struct {
	mu      sync.Mutex
	sent    []fakeSend
	joined  []string
	info    sidechannel.Info
}

type fakeSend struct {
	channel string
	message json.RawMessage
}

func newFakeBus(peer string) *fakeBus { return &fakeBus{info: sidechannel.Info{Peer: peer}} }

func (b *fakeBus) Connect(ctx context.Context) error                    { return nil }
func (b *fakeBus) Subscribe(ctx context.Context, channels []string) error { return nil }
func (b *fakeBus) Join(ctx context.Context, channel string, invite, welcome string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.joined = append(b.joined, channel)
	return nil
}
func (b *fakeBus) Leave(ctx context.Context, channel string) error { return nil }
func (b *fakeBus) Send(ctx context.Context, channel string, message json.RawMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, fakeSend{channel: channel, message: message})
	return nil
}
func (b *fakeBus) AddInviterKey(hex string) error { return nil }
func (b *fakeBus) Stats() sidechannel.Stats        { return sidechannel.Stats{} }
func (b *fakeBus) SelfInfo() sidechannel.Info       { return b.info }
func (b *fakeBus) Since(lastSeq int64, limit int, maxAge time.Duration) []sidechannel.LogEvent {
	return nil
}
func (b *fakeBus) Wait(ctx context.Context, filter sidechannel.Filter, timeout time.Duration) (sidechannel.LogEvent, bool) {
	return sidechannel.LogEvent{}, false
}
func (b *fakeBus) LastSeq() int64 { return 0 }
func (b *fakeBus) Close() error   { return nil }

func newTestDeps(t *testing.T) (*Deps, *fakeBus) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	bus := newFakeBus("peerA")
	return &Deps{
		Bus:       bus,
		Store:     memory.New(),
		Vault:     vault.New(time.Minute, time.Minute),
		Keypair:   priv,
		LocalPeer: "peerA",
		Now:       func() time.Time { return time.Unix(1_700_000_000, 0) },
	}, bus
}

func TestExecuteUnknownTool(t *testing.T) {
	deps, bus := newTestDeps(t)
	_ = bus
	exec := NewExecutor(deps, DefaultRegistry()...)
	if _, err := exec.Execute(context.Background(), "does_not_exist", Args{}, Context{}); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestExecuteRejectsUnknownArgument(t *testing.T) {
	deps, _ := newTestDeps(t)
	exec := NewExecutor(deps, joinTool())
	_, err := exec.Execute(context.Background(), "join", Args{"channel": "c1", "bogus": "x"}, Context{AutoApprove: true})
	if err == nil {
		t.Fatal("expected error for unknown argument")
	}
}

func TestExecuteRejectsMissingRequiredArgument(t *testing.T) {
	deps, _ := newTestDeps(t)
	exec := NewExecutor(deps, joinTool())
	_, err := exec.Execute(context.Background(), "join", Args{}, Context{AutoApprove: true})
	if err == nil {
		t.Fatal("expected error for missing required argument")
	}
}

func TestExecuteDryRunShortCircuitsBeforeAutoApprove(t *testing.T) {
	deps, bus := newTestDeps(t)
	exec := NewExecutor(deps, joinTool())
	result, err := exec.Execute(context.Background(), "join", Args{"channel": "c1"}, Context{DryRun: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dry, ok := result.(DryRunResult)
	if !ok {
		t.Fatalf("expected DryRunResult, got %T", result)
	}
	if dry.Tool != "join" {
		t.Fatalf("DryRunResult.Tool = %q", dry.Tool)
	}
	if len(bus.joined) != 0 {
		t.Fatal("dry_run must not actually join the channel")
	}
}

func TestExecuteMutatingToolRequiresAutoApprove(t *testing.T) {
	deps, bus := newTestDeps(t)
	exec := NewExecutor(deps, joinTool())
	_, err := exec.Execute(context.Background(), "join", Args{"channel": "c1"}, Context{})
	if err == nil {
		t.Fatal("expected auto_approve gate to block the call")
	}
	if len(bus.joined) != 0 {
		t.Fatal("blocked call must not have joined the channel")
	}

	if _, err := exec.Execute(context.Background(), "join", Args{"channel": "c1"}, Context{AutoApprove: true}); err != nil {
		t.Fatalf("unexpected error once approved: %v", err)
	}
	if len(bus.joined) != 1 || bus.joined[0] != "c1" {
		t.Fatalf("expected join to have run once, got %v", bus.joined)
	}
}

func TestExecuteResolvesVaultHandle(t *testing.T) {
	deps, bus := newTestDeps(t)
	handle := deps.Vault.Put("secret-channel", nil)
	exec := NewExecutor(deps, joinTool())
	if _, err := exec.Execute(context.Background(), "join", Args{"channel": "vault:" + handle}, Context{AutoApprove: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bus.joined) != 1 || bus.joined[0] != "secret-channel" {
		t.Fatalf("expected vault handle to resolve to secret-channel, got %v", bus.joined)
	}
}

func TestExecuteRejectsUnknownVaultHandle(t *testing.T) {
	deps, _ := newTestDeps(t)
	exec := NewExecutor(deps, joinTool())
	if _, err := exec.Execute(context.Background(), "join", Args{"channel": "vault:nope"}, Context{AutoApprove: true}); err == nil {
		t.Fatal("expected error for unresolvable vault handle")
	}
}

func TestStatusToolPostsSignedEnvelope(t *testing.T) {
	deps, bus := newTestDeps(t)
	exec := NewExecutor(deps, statusTool())
	result, err := exec.Execute(context.Background(), "status", Args{
		"channel":  "swap-1",
		"trade_id": "trade-1",
		"state":    "waiting_terms",
		"note":     "route precheck in flight",
	}, Context{AutoApprove: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env, ok := result.(model.Envelope)
	if !ok {
		t.Fatalf("expected model.Envelope, got %T", result)
	}
	if env.Kind != model.KindStatus || env.TradeID != "trade-1" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if len(bus.sent) != 1 || bus.sent[0].channel != "swap-1" {
		t.Fatalf("expected one send on swap-1, got %v", bus.sent)
	}
}

func TestCancelToolPostsEnvelopeAndMarksTradeCanceled(t *testing.T) {
	deps, bus := newTestDeps(t)
	exec := NewExecutor(deps, cancelTool())
	if _, err := exec.Execute(context.Background(), "cancel", Args{
		"channel":  "swap-1",
		"trade_id": "trade-2",
		"reason":   "counterparty timed out",
	}, Context{AutoApprove: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bus.sent) != 1 {
		t.Fatalf("expected one envelope sent, got %d", len(bus.sent))
	}
	trade, err := deps.Store.GetTrade(context.Background(), "trade-2")
	if err != nil {
		t.Fatalf("get trade: %v", err)
	}
	if trade.State != model.TradeStateCanceled {
		t.Fatalf("trade state = %q, want canceled", trade.State)
	}
	if trade.LastError != "counterparty timed out" {
		t.Fatalf("trade LastError = %q", trade.LastError)
	}
}

func TestReceiptsListDefaultsToNonTerminalStates(t *testing.T) {
	deps, _ := newTestDeps(t)
	ctx := context.Background()
	if err := deps.Store.CreateTrade(ctx, &model.Trade{TradeID: "t1", State: model.TradeStateRFQ}); err != nil {
		t.Fatalf("create trade: %v", err)
	}
	if err := deps.Store.CreateTrade(ctx, &model.Trade{TradeID: "t2", State: model.TradeStateClaimed}); err != nil {
		t.Fatalf("create trade: %v", err)
	}
	exec := NewExecutor(deps, receiptsListTool())
	result, err := exec.Execute(ctx, "receipts_list", Args{}, Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	trades, ok := result.([]model.Trade)
	if !ok {
		t.Fatalf("expected []model.Trade, got %T", result)
	}
	for _, tr := range trades {
		if tr.TradeID == "t2" {
			t.Fatal("claimed (terminal) trade must not appear in the default listing")
		}
	}
}

func TestOfferToolParsesLines(t *testing.T) {
	deps, bus := newTestDeps(t)
	exec := NewExecutor(deps, offerTool())
	_, err := exec.Execute(context.Background(), "offer", Args{
		"channel":         "offers",
		"trade_id":        "offer-trade-1",
		"offer_id":        "offer-1",
		"lines":           "0:100000:50000000:25:50:3600:259200",
		"expires_at_unix": int64(1_700_003_600),
	}, Context{AutoApprove: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bus.sent) != 1 {
		t.Fatalf("expected one envelope sent, got %d", len(bus.sent))
	}
	var env model.Envelope
	if err := json.Unmarshal(bus.sent[0].message, &env); err != nil {
		t.Fatalf("unmarshal sent envelope: %v", err)
	}
	var body model.SvcAnnounceBody
	if err := json.Unmarshal(env.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if len(body.Lines) != 1 || body.Lines[0].USDTAmount != "50000000" {
		t.Fatalf("unexpected lines: %+v", body.Lines)
	}
}

func TestOfferToolRejectsMalformedLine(t *testing.T) {
	deps, _ := newTestDeps(t)
	exec := NewExecutor(deps, offerTool())
	_, err := exec.Execute(context.Background(), "offer", Args{
		"channel":         "offers",
		"trade_id":        "offer-trade-2",
		"offer_id":        "offer-2",
		"lines":           "not-enough-fields",
		"expires_at_unix": int64(1_700_003_600),
	}, Context{AutoApprove: true})
	if err == nil {
		t.Fatal("expected error for malformed offer line")
	}
}
