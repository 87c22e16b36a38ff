package automation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/intercomswap/swap-core/internal/model"
	"github.com/intercomswap/swap-core/internal/sidechannel"
)

// fakeBus is an in-memory sidechannel.Bus for the negotiation/settlement
// decision logic tests below. Send appends a local echo the way a real
// bus would; injectRemote simulates a counterparty's envelope arriving on
// the wire.
type fakeBus struct {
	peer   string
	log    []sidechannel.LogEvent
	joined map[string]bool
	left   []string
}

func newFakeBus(peer string) *fakeBus {
	return &fakeBus{peer: peer, joined: make(map[string]bool)}
}

func (b *fakeBus) Connect(ctx context.Context) error { return nil }
func (b *fakeBus) Subscribe(ctx context.Context, channels []string) error {
	for _, c := range channels {
		b.joined[c] = true
	}
	return nil
}
func (b *fakeBus) Join(ctx context.Context, channel string, invite, welcome string) error {
	b.joined[channel] = true
	return nil
}
func (b *fakeBus) Leave(ctx context.Context, channel string) error {
	b.left = append(b.left, channel)
	delete(b.joined, channel)
	return nil
}
func (b *fakeBus) Send(ctx context.Context, channel string, message json.RawMessage) error {
	b.append(channel, message, true, b.peer)
	return nil
}
func (b *fakeBus) AddInviterKey(hex string) error { return nil }
func (b *fakeBus) Stats() sidechannel.Stats       { return sidechannel.Stats{Channels: b.channels()} }
func (b *fakeBus) SelfInfo() sidechannel.Info     { return sidechannel.Info{Peer: b.peer} }
func (b *fakeBus) Since(lastSeq int64, limit int, maxAge time.Duration) []sidechannel.LogEvent {
	var out []sidechannel.LogEvent
	for _, ev := range b.log {
		if ev.Seq > lastSeq {
			out = append(out, ev)
		}
	}
	return out
}
func (b *fakeBus) Wait(ctx context.Context, filter sidechannel.Filter, timeout time.Duration) (sidechannel.LogEvent, bool) {
	return sidechannel.LogEvent{}, false
}
func (b *fakeBus) LastSeq() int64 {
	if len(b.log) == 0 {
		return 0
	}
	return b.log[len(b.log)-1].Seq
}
func (b *fakeBus) Close() error { return nil }

func (b *fakeBus) channels() []string {
	out := make([]string, 0, len(b.joined))
	for c := range b.joined {
		out = append(out, c)
	}
	return out
}

func (b *fakeBus) append(channel string, message json.RawMessage, local bool, from string) {
	b.log = append(b.log, sidechannel.LogEvent{
		Seq:     int64(len(b.log)) + 1,
		TS:      time.Now().UnixMilli(),
		Channel: channel,
		Message: message,
		Local:   local,
		From:    from,
	})
}

// injectRemote appends env (marshaled as-is, unsigned — automation never
// verifies signatures, only schema/listinglock-level tools do) as a
// non-local arrival on channel.
func (b *fakeBus) injectRemote(channel string, env model.Envelope) {
	raw, _ := json.Marshal(env)
	b.append(channel, raw, false, env.Signer)
}

func rawBody(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// sentOfKind returns every envelope this peer itself sent (local echoes)
// of the given kind, in send order.
func (b *fakeBus) sentOfKind(kind model.Kind) []model.Envelope {
	var out []model.Envelope
	for _, ev := range b.log {
		if !ev.Local {
			continue
		}
		env, ok := decodeEnvelope(ev)
		if !ok || env.Kind != kind {
			continue
		}
		out = append(out, env)
	}
	return out
}
