package sidechannel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/intercomswap/swap-core/internal/apperr"
	"github.com/intercomswap/swap-core/internal/cache"
)

// wireFrame is the envelope carried over the websocket connection itself;
// it is distinct from model.Envelope, which travels as the Message payload.
type wireFrame struct {
	Op      string          `json:"op"`
	Channel string          `json:"channel,omitempty"`
	Invite  string          `json:"invite,omitempty"`
	Welcome string          `json:"welcome,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

type inboundFrame struct {
	Channel   string          `json:"channel"`
	From      string          `json:"from"`
	Origin    string          `json:"origin"`
	RelayedBy string          `json:"relayed_by"`
	TTL       int             `json:"ttl"`
	TS        int64           `json:"ts"`
	Message   json.RawMessage `json:"message"`
	Peer      string          `json:"peer,omitempty"` // present on the hello frame
}

// Session is the default Bus implementation: a persistent gorilla/websocket
// client connection with transparent reconnect-on-drop.
type Session struct {
	url         string
	dialTimeout time.Duration

	mu            sync.Mutex
	conn          *websocket.Conn
	subscriptions map[string]bool
	inviterKeys   []string
	self          Info

	log *ring

	dedup *cache.RistrettoAdapter[struct{}]
	dedupTTL time.Duration

	readDone chan struct{}
}

// NewSession builds a disconnected session; Connect dials on first use.
func NewSession(url string, logCapacity int, dedupTTL time.Duration) (*Session, error) {
	dedup, err := cache.NewRistrettoAdapter[struct{}]("sidechannel-dedup")
	if err != nil {
		return nil, fmt.Errorf("build dedup cache: %w", err)
	}
	return &Session{
		url:           url,
		dialTimeout:   10 * time.Second,
		subscriptions: make(map[string]bool),
		log:           newRing(logCapacity),
		dedup:         dedup,
		dedupTTL:      dedupTTL,
	}, nil
}

func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

// connectLocked dials the bus and reapplies the full known subscription
// set, per spec §4.3's reconnection rule. Caller must hold s.mu.
func (s *Session) connectLocked(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.url, nil)
	if err != nil {
		return apperr.Transient(err, "sidechannel dial %s", s.url)
	}
	s.conn = conn
	s.readDone = make(chan struct{})
	go s.readLoop(conn, s.readDone)

	for _, key := range s.inviterKeys {
		if err := s.writeLocked(wireFrame{Op: "add_inviter_key", Invite: key}); err != nil {
			slog.Warn("sidechannel: failed to replay inviter key on reconnect", "error", err)
		}
	}
	if len(s.subscriptions) > 0 {
		channels := make([]string, 0, len(s.subscriptions))
		for ch := range s.subscriptions {
			channels = append(channels, ch)
		}
		if err := s.writeLocked(wireFrame{Op: "subscribe", Message: mustJSON(channels)}); err != nil {
			slog.Warn("sidechannel: failed to resubscribe on reconnect", "error", err)
		}
	}
	return nil
}

func (s *Session) ensureConnected(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return s.connectLocked(ctx)
	}
	return nil
}

func (s *Session) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
			}
			s.mu.Unlock()
			return
		}
		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			slog.Warn("sidechannel: dropping unparseable frame", "error", err)
			continue
		}
		if frame.Peer != "" {
			s.mu.Lock()
			s.self = Info{Peer: frame.Peer}
			s.mu.Unlock()
			continue
		}
		s.log.Append(LogEvent{
			TS:        frame.TS,
			Channel:   frame.Channel,
			Message:   frame.Message,
			Origin:    frame.Origin,
			RelayedBy: frame.RelayedBy,
			TTL:       frame.TTL,
			From:      frame.From,
			Local:     false,
		})
	}
}

func (s *Session) writeLocked(frame wireFrame) error {
	if s.conn == nil {
		return apperr.Transient(nil, "sidechannel not connected")
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		return apperr.Wrap(err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		s.conn = nil
		return apperr.Transient(err, "sidechannel write")
	}
	return nil
}

// Subscribe unions the given channels with whatever this connection already
// tracks, so a reconnect (or a second caller) never clobbers another
// client's subscription set.
func (s *Session) Subscribe(ctx context.Context, channels []string) error {
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, ch := range channels {
		if !s.subscriptions[ch] {
			s.subscriptions[ch] = true
			changed = true
		}
	}
	if !changed {
		return nil
	}
	all := make([]string, 0, len(s.subscriptions))
	for ch := range s.subscriptions {
		all = append(all, ch)
	}
	return s.writeLocked(wireFrame{Op: "subscribe", Message: mustJSON(all)})
}

func (s *Session) Join(ctx context.Context, channel, invite, welcome string) error {
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[channel] = true
	return s.writeLocked(wireFrame{Op: "join", Channel: channel, Invite: invite, Welcome: welcome})
}

func (s *Session) Leave(ctx context.Context, channel string) error {
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, channel)
	return s.writeLocked(wireFrame{Op: "leave", Channel: channel})
}

// Send validates the transport can accept the frame, writes it, then
// appends a local echo to the log as an outbound event (spec §4.3).
func (s *Session) Send(ctx context.Context, channel string, message json.RawMessage) error {
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	err := s.writeLocked(wireFrame{Op: "send", Channel: channel, Message: message})
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.log.Append(LogEvent{
		TS:      time.Now().UnixMilli(),
		Channel: channel,
		Message: message,
		Origin:  "local",
		Local:   true,
	})
	return nil
}

func (s *Session) AddInviterKey(hex string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inviterKeys = append(s.inviterKeys, hex)
	if s.conn != nil {
		return s.writeLocked(wireFrame{Op: "add_inviter_key", Invite: hex})
	}
	return nil
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	channels := make([]string, 0, len(s.subscriptions))
	for ch := range s.subscriptions {
		channels = append(channels, ch)
	}
	return Stats{Channels: channels}
}

func (s *Session) SelfInfo() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

func (s *Session) Since(lastSeq int64, limit int, maxAge time.Duration) []LogEvent {
	return s.log.Since(lastSeq, limit, maxAge)
}

func (s *Session) LastSeq() int64 {
	return s.log.LastSeq()
}

// Wait blocks until an event matching filter is appended or timeout
// elapses.
func (s *Session) Wait(ctx context.Context, filter Filter, timeout time.Duration) (LogEvent, bool) {
	id, ch := s.log.registerWaiter(filter)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-ch:
		return ev, true
	case <-timer.C:
		s.log.cancelWaiter(id)
		return LogEvent{}, false
	case <-ctx.Done():
		s.log.cancelWaiter(id)
		return LogEvent{}, false
	}
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// MarkDispatched records that (channel, kind, tradeID, signer, sig) has
// been dispatched, so AlreadyDispatched reports it until dedupTTL elapses
// (spec's "Duplicate events are filtered by ... key with a TTL").
func (s *Session) MarkDispatched(key string) {
	s.dedup.Set(key, struct{}{}, s.dedupTTL)
}

// AlreadyDispatched reports whether key was previously marked.
func (s *Session) AlreadyDispatched(key string) bool {
	_, found := s.dedup.Get(key)
	return found
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return raw
}

var _ Bus = (*Session)(nil)
