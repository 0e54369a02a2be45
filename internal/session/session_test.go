package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/park285/phonechess-client/internal/msgcat"
	"github.com/park285/phonechess-client/internal/rules"
	"github.com/park285/phonechess-client/internal/transport"
)

const afterE4FEN = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"

type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (c *fakeConn) Send(_ context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrNotConnected
	}
	c.sent = append(c.sent, append([]byte(nil), payload...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) messages(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.sent))
	for _, raw := range c.sent {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("sent invalid json %s: %v", raw, err)
		}
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) types(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, m := range c.messages(t) {
		out = append(out, m["type"].(string))
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.sent = nil
	c.mu.Unlock()
}

type fakeDialer struct {
	mu       sync.Mutex
	conns    []*fakeConn
	handlers []transport.Handler
	err      error
	onOpen   func(c *fakeConn, h transport.Handler)
}

func (d *fakeDialer) Open(_ context.Context, h transport.Handler) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := &fakeConn{}
	d.conns = append(d.conns, c)
	d.handlers = append(d.handlers, h)
	if d.onOpen != nil {
		go d.onOpen(c, h)
	}
	return c, nil
}

func (d *fakeDialer) opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

func newTestSession(t *testing.T, mutate ...func(*Options)) (*Session, *fakeDialer, *clockwork.FakeClock) {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	d := &fakeDialer{}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	opts := Options{Dialer: d, Oracle: rules.NewEngine(), Clock: clock, Catalog: cat}
	for _, m := range mutate {
		m(&opts)
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, d, clock
}

// connect drives a session to Connected and clears the auth frame from the log.
func connect(t *testing.T, s *Session, d *fakeDialer) *fakeConn {
	t.Helper()
	s.Dispatch(ConnectRequested{})
	c := d.last()
	s.Dispatch(Opened{Conn: c})
	s.Dispatch(Received{Conn: c, Payload: []byte(`{"type":"queue_counts","counts":{}}`)})
	if s.State() != Connected {
		t.Fatalf("state = %v, want connected", s.State())
	}
	c.reset()
	return c
}

func recv(s *Session, c *fakeConn, raw string) {
	s.Dispatch(Received{Conn: c, Payload: []byte(raw)})
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{Oracle: rules.NewEngine()}); err == nil {
		t.Fatalf("expected error without dialer")
	}
	if _, err := New(Options{Dialer: &fakeDialer{}}); err == nil {
		t.Fatalf("expected error without oracle")
	}
}

func TestConnectHandshake(t *testing.T) {
	s, d, _ := newTestSession(t)
	s.Dispatch(ConnectRequested{})
	if s.State() != Connecting || d.opens() != 1 {
		t.Fatalf("state=%v opens=%d", s.State(), d.opens())
	}
	s.Dispatch(ConnectRequested{})
	if d.opens() != 1 {
		t.Fatalf("connect should be idempotent while connecting")
	}

	c := d.last()
	s.Dispatch(Opened{Conn: c})
	if s.State() != AwaitingAuthAck {
		t.Fatalf("state = %v, want awaiting_auth", s.State())
	}
	msgs := c.messages(t)
	if len(msgs) != 1 || msgs[0]["type"] != "auth" {
		t.Fatalf("expected auth frame, got %v", msgs)
	}
	if uid, ok := msgs[0]["debug_uid"].(float64); !ok || uid <= 0 {
		t.Fatalf("expected debug uid fallback, got %v", msgs[0])
	}

	recv(s, c, `{"type":"queue_counts","counts":{"5+0":2}}`)
	snap := s.Snapshot()
	if snap.State != Connected || snap.Status != "Connected" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Counts["5+0"] != 2 {
		t.Fatalf("counts = %v", snap.Counts)
	}
	s.Dispatch(ConnectRequested{})
	if d.opens() != 1 {
		t.Fatalf("connect should be a no-op while connected")
	}
}

func TestAuthCarriesInitData(t *testing.T) {
	s, d, _ := newTestSession(t, func(o *Options) { o.InitData = "query_id=1&hash=x" })
	s.Dispatch(ConnectRequested{})
	s.Dispatch(Opened{Conn: d.last()})
	msg := d.last().messages(t)[0]
	if msg["init_data"] != "query_id=1&hash=x" {
		t.Fatalf("auth = %v", msg)
	}
	if _, ok := msg["debug_uid"]; ok {
		t.Fatalf("debug_uid must not accompany a real credential")
	}
}

func TestMalformedInboundIsDiscarded(t *testing.T) {
	s, d, _ := newTestSession(t)
	s.Dispatch(ConnectRequested{})
	c := d.last()
	s.Dispatch(Opened{Conn: c})
	recv(s, c, `{not json`)
	if s.State() != AwaitingAuthAck {
		t.Fatalf("malformed frame must not ack auth, state = %v", s.State())
	}
	recv(s, c, `{"type":"chat","text":"hi"}`)
	if s.State() != Connected {
		t.Fatalf("unknown-but-valid message should ack auth, state = %v", s.State())
	}
	before := s.Snapshot()
	recv(s, c, `{"type":"game_update","fen":5}`)
	after := s.Snapshot()
	if before.Game != nil || after.Game != nil || after.State != Connected {
		t.Fatalf("malformed update mutated state: %+v", after)
	}
}

func TestTransportErrorOnlyUpdatesStatus(t *testing.T) {
	s, d, _ := newTestSession(t)
	c := connect(t, s, d)
	s.Dispatch(TransportFailed{Conn: c, Err: errors.New("boom")})
	if s.State() != Connected {
		t.Fatalf("error alone must not tear down, state = %v", s.State())
	}
	if s.Snapshot().Status != "Connection error" {
		t.Fatalf("status = %q", s.Snapshot().Status)
	}
}

func TestReconnectResubscribesFirst(t *testing.T) {
	s, d, clock := newTestSession(t)
	c := connect(t, s, d)
	s.JoinQueue("5+0")
	recv(s, c, `{"type":"matched","game_id":"g1","color":"black","fen":"`+rules.StartFEN+`","white_remaining_ms":300000,"black_remaining_ms":300000}`)

	s.Dispatch(Closed{Conn: c, Err: errors.New("EOF")})
	snap := s.Snapshot()
	if snap.State != Reconnecting || snap.Status != "No connection" {
		t.Fatalf("after close: state=%v status=%q", snap.State, snap.Status)
	}
	if !s.retry.armed() {
		t.Fatalf("retry supervisor should be armed")
	}

	clock.Advance(3 * time.Second)
	select {
	case <-s.retry.C():
	default:
		t.Fatalf("retry timer did not fire within 3s")
	}
	s.Dispatch(RetryDue{})
	if d.opens() != 2 {
		t.Fatalf("expected a reconnect attempt, opens = %d", d.opens())
	}
	if got := s.Snapshot(); got.Attempts != 1 || got.Status != "No connection, retrying (attempt 1)" {
		t.Fatalf("attempt status = %+v", got)
	}

	c2 := d.last()
	s.Dispatch(Opened{Conn: c2})
	recv(s, c2, `{"type":"queue_counts","counts":{}}`)
	if s.State() != Connected || s.retry.armed() {
		t.Fatalf("state=%v armed=%v", s.State(), s.retry.armed())
	}
	types := c2.types(t)
	if len(types) != 2 || types[0] != "auth" || types[1] != "subscribe_game" {
		t.Fatalf("outbound after reconnect = %v", types)
	}
	if got := c2.messages(t)[1]["game_id"]; got != "g1" {
		t.Fatalf("subscribe game_id = %v", got)
	}
}

func TestCloseDropsQueueMembership(t *testing.T) {
	s, d, _ := newTestSession(t)
	c := connect(t, s, d)
	s.JoinQueue("3+2")
	if s.Snapshot().Queue == nil {
		t.Fatalf("expected membership")
	}
	s.Dispatch(Closed{Conn: c})
	if s.Snapshot().Queue != nil {
		t.Fatalf("membership must not survive a disconnect")
	}
}

func TestRetryArmedOnceAndFailedDialKeepsRetrying(t *testing.T) {
	s, d, _ := newTestSession(t)
	c := connect(t, s, d)
	s.Dispatch(Closed{Conn: c})
	timer := s.retry.timer
	s.Dispatch(Closed{Conn: c})
	if s.retry.timer != timer {
		t.Fatalf("stale close re-armed the supervisor")
	}

	d.err = errors.New("refused")
	s.Dispatch(RetryDue{})
	if s.State() != Reconnecting || !s.retry.armed() {
		t.Fatalf("failed dial should leave the supervisor armed, state = %v", s.State())
	}
	d.err = nil
	s.Dispatch(RetryDue{})
	if d.opens() != 2 {
		t.Fatalf("opens = %d, want 2", d.opens())
	}
	// A dial in flight is not duplicated by the next retry tick.
	s.Dispatch(RetryDue{})
	if d.opens() != 2 {
		t.Fatalf("retry while connecting opened again, opens = %d", d.opens())
	}
}

func TestStaleConnectionEventsIgnored(t *testing.T) {
	s, d, _ := newTestSession(t)
	old := connect(t, s, d)
	s.Dispatch(Closed{Conn: old})
	s.Dispatch(RetryDue{})
	fresh := d.last()
	s.Dispatch(Opened{Conn: fresh})
	recv(s, fresh, `{"type":"queue_counts","counts":{}}`)

	recv(s, old, `{"type":"queue_counts","counts":{"5+0":9}}`)
	s.Dispatch(Closed{Conn: old})
	if s.State() != Connected {
		t.Fatalf("old connection's close tore down the new one")
	}
	if s.Snapshot().Counts["5+0"] != 0 {
		t.Fatalf("old connection's message was applied")
	}
}

func TestRunLoopConnectsAndStops(t *testing.T) {
	snaps := make(chan Snapshot, 64)
	d := &fakeDialer{onOpen: func(c *fakeConn, h transport.Handler) {
		h.OnOpen(c)
		h.OnMessage(c, []byte(`{"type":"queue_counts","counts":{"10+0":1}}`))
	}}
	s, err := New(Options{
		Dialer:   d,
		Oracle:   rules.NewEngine(),
		Clock:    clockwork.NewFakeClock(),
		Observer: func(sn Snapshot) { snaps <- sn },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(3 * time.Second)
	for connected := false; !connected; {
		select {
		case sn := <-snaps:
			connected = sn.State == Connected && sn.Counts["10+0"] == 1
		case <-deadline:
			t.Fatalf("session never reached connected")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not stop")
	}
	c := d.last()
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if !closed {
		t.Fatalf("connection not closed on shutdown")
	}
	// Posting after Run returns must not block.
	s.Post(Tick{})
}
