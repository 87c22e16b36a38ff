package autopost

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/intercomswap/swap-core/internal/receipts/memory"
	"github.com/intercomswap/swap-core/internal/sidechannel"
	"github.com/intercomswap/swap-core/internal/tools"
)

// fakeBus is the minimal sidechannel.Bus double the status/offer tools
// under test here need: Send is the only method they call.
type fakeBus struct {
	mu   sync.Mutex
	sent int
}

func (b *fakeBus) Connect(ctx context.Context) error                      { return nil }
func (b *fakeBus) Subscribe(ctx context.Context, channels []string) error { return nil }
func (b *fakeBus) Join(ctx context.Context, channel, invite, welcome string) error {
	return nil
}
func (b *fakeBus) Leave(ctx context.Context, channel string) error { return nil }
func (b *fakeBus) Send(ctx context.Context, channel string, message json.RawMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent++
	return nil
}
func (b *fakeBus) AddInviterKey(hex string) error { return nil }
func (b *fakeBus) Stats() sidechannel.Stats       { return sidechannel.Stats{} }
func (b *fakeBus) SelfInfo() sidechannel.Info     { return sidechannel.Info{Peer: "peerA"} }
func (b *fakeBus) Since(lastSeq int64, limit int, maxAge time.Duration) []sidechannel.LogEvent {
	return nil
}
func (b *fakeBus) Wait(ctx context.Context, filter sidechannel.Filter, timeout time.Duration) (sidechannel.LogEvent, bool) {
	return sidechannel.LogEvent{}, false
}
func (b *fakeBus) LastSeq() int64 { return 0 }
func (b *fakeBus) Close() error   { return nil }

func (b *fakeBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent
}

func newTestExecutor(t *testing.T, now time.Time) (*tools.Executor, *fakeBus) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	bus := &fakeBus{}
	deps := &tools.Deps{
		Bus:       bus,
		Store:     memory.New(),
		Keypair:   priv,
		LocalPeer: "peerA",
		Now:       func() time.Time { return now },
	}
	return tools.NewExecutor(deps, tools.DefaultRegistry()...), bus
}

func statusJob(name string, intervalSec int64) Job {
	return Job{
		Name:        name,
		Tool:        "status",
		IntervalSec: intervalSec,
		Args: tools.Args{
			"channel":  "rfq-channel",
			"trade_id": "keepalive",
			"state":    "online",
		},
	}
}

func TestTickFiresAJobOnItsFirstOpportunity(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	exec, bus := newTestExecutor(t, now)
	s := NewScheduler(exec, []Job{statusJob("announce", 10)}, func() time.Time { return now })

	s.Tick(context.Background())
	if bus.count() != 1 {
		t.Fatalf("expected one fire on the first tick, got %d", bus.count())
	}
}

func TestTickWaitsForIntervalBeforeFiringAgain(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	exec, bus := newTestExecutor(t, now)
	s := NewScheduler(exec, []Job{statusJob("announce", 10)}, func() time.Time { return now })

	s.Tick(context.Background())
	s.Tick(context.Background())
	if bus.count() != 1 {
		t.Fatalf("expected the second immediate tick to be a no-op, got %d fires", bus.count())
	}

	now = now.Add(11 * time.Second)
	s.Tick(context.Background())
	if bus.count() != 2 {
		t.Fatalf("expected a second fire once the interval elapsed, got %d", bus.count())
	}
}

func TestTickDropsJobPastTTL(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	exec, bus := newTestExecutor(t, now)
	job := statusJob("short-lived", 1)
	job.TTLSec = 5
	s := NewScheduler(exec, []Job{job}, func() time.Time { return now })

	s.Tick(context.Background())
	now = now.Add(10 * time.Second)
	s.Tick(context.Background())

	if len(s.Jobs()) != 0 {
		t.Fatalf("expected the job to be dropped after its TTL elapsed, got %v", s.Jobs())
	}
	if bus.count() != 1 {
		t.Fatalf("expected exactly one fire before expiry, got %d", bus.count())
	}
}

func TestTickDropsJobPastValidUntil(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	exec, _ := newTestExecutor(t, now)
	job := statusJob("dated", 1)
	job.ValidUntilUnix = now.Add(5 * time.Second).Unix()
	s := NewScheduler(exec, []Job{job}, func() time.Time { return now })

	now = now.Add(10 * time.Second)
	s.Tick(context.Background())

	if len(s.Jobs()) != 0 {
		t.Fatal("expected the job to be dropped once ValidUntilUnix passed")
	}
}

func TestLastErrorReportsUnknownJob(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	exec, _ := newTestExecutor(t, now)
	s := NewScheduler(exec, nil, func() time.Time { return now })

	if _, err := s.LastError("missing"); err == nil {
		t.Fatal("expected an error for an unknown job name")
	}
}
