// Package session keeps the client's view of queue membership and the current game
// in step with the server. All state is owned by one goroutine: Run, or a test
// calling Dispatch directly.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/park285/phonechess-client/internal/msgcat"
	"github.com/park285/phonechess-client/internal/protocol"
	"github.com/park285/phonechess-client/internal/rules"
	"github.com/park285/phonechess-client/internal/timecontrol"
	"github.com/park285/phonechess-client/internal/transport"
)

type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	AwaitingAuthAck
	Connected
	Reconnecting
)

func (c ConnState) String() string {
	switch c {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case AwaitingAuthAck:
		return "awaiting_auth"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Observer receives a fresh snapshot after every event that changed visible state.
// It runs on the session goroutine.
type Observer func(Snapshot)

type Options struct {
	Dialer  transport.Dialer
	Oracle  rules.Oracle
	Clock   clockwork.Clock
	Logger  *zap.Logger
	Catalog *msgcat.Catalog

	// InitData is the opaque identity credential. When empty, DebugUID is sent
	// instead; a random one is generated if DebugUID is zero.
	InitData string
	DebugUID int64

	TickInterval      time.Duration
	ReconnectInterval time.Duration
	ResignConfirm     time.Duration
	PendingMoveTTL    time.Duration
	LowTimeThreshold  time.Duration

	Observer Observer
}

const (
	defaultTick          = 100 * time.Millisecond
	defaultReconnect     = 3 * time.Second
	defaultResignConfirm = 3 * time.Second
	defaultPendingMove   = 5 * time.Second
	inboxSize            = 256
)

type Session struct {
	id       string
	dialer   transport.Dialer
	oracle   rules.Oracle
	clock    clockwork.Clock
	log      *zap.Logger
	catalog  *msgcat.Catalog
	observer Observer

	initData string
	debugUID int64

	tick          time.Duration
	resignConfirm time.Duration
	pendingTTL    time.Duration
	lowTime       time.Duration

	ctx      context.Context
	inbox    chan Event
	done     chan struct{}
	stopping bool

	state    ConnState
	conn     transport.Conn
	attempts int
	status   string
	retry    *reconnectSupervisor

	queue     queueTracker
	game      *GameSession
	predictor clockPredictor
	resignBy  time.Time
}

func New(opts Options) (*Session, error) {
	if opts.Dialer == nil {
		return nil, errors.New("session: dialer is required")
	}
	if opts.Oracle == nil {
		return nil, errors.New("session: rules oracle is required")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTick
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = defaultReconnect
	}
	if opts.ResignConfirm <= 0 {
		opts.ResignConfirm = defaultResignConfirm
	}
	if opts.PendingMoveTTL <= 0 {
		opts.PendingMoveTTL = defaultPendingMove
	}
	if opts.LowTimeThreshold <= 0 {
		opts.LowTimeThreshold = timecontrol.DefaultLowTime
	}
	if opts.InitData == "" && opts.DebugUID <= 0 {
		opts.DebugUID = randomDebugUID()
	}

	id := uuid.NewString()
	s := &Session{
		id:            id,
		dialer:        opts.Dialer,
		oracle:        opts.Oracle,
		clock:         opts.Clock,
		log:           opts.Logger.With(zap.String("session_id", id)),
		catalog:       opts.Catalog,
		observer:      opts.Observer,
		initData:      opts.InitData,
		debugUID:      opts.DebugUID,
		tick:          opts.TickInterval,
		resignConfirm: opts.ResignConfirm,
		pendingTTL:    opts.PendingMoveTTL,
		lowTime:       opts.LowTimeThreshold,
		ctx:           context.Background(),
		inbox:         make(chan Event, inboxSize),
		done:          make(chan struct{}),
		retry:         newReconnectSupervisor(opts.Clock, opts.ReconnectInterval),
		predictor:     clockPredictor{period: opts.TickInterval},
	}
	s.queue.reset()
	s.status = s.text("status.disconnected", nil, "No connection")
	return s, nil
}

// randomDebugUID picks a numeric identity for servers running in debug mode.
func randomDebugUID() int64 {
	uid := int64(uuid.New().ID() % 1_000_000_000)
	if uid == 0 {
		uid = 1
	}
	return uid
}

func (s *Session) ID() string { return s.id }

// Run connects and then serves events, ticks and reconnect timers until ctx ends.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	defer close(s.done)

	ticker := s.clock.NewTicker(s.tick)
	defer ticker.Stop()

	s.log.Info("session_start", zap.Duration("tick", s.tick))
	s.Dispatch(ConnectRequested{})
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case ev := <-s.inbox:
			s.Dispatch(ev)
		case <-ticker.Chan():
			s.Dispatch(Tick{})
		case <-s.retry.C():
			s.Dispatch(RetryDue{})
		}
	}
}

// Post queues an event for the session goroutine. Safe from any goroutine; dropped
// once Run has returned.
func (s *Session) Post(ev Event) {
	select {
	case s.inbox <- ev:
	case <-s.done:
	}
}

// Dispatch handles one event. It must only be called from the session goroutine.
func (s *Session) Dispatch(ev Event) {
	changed := true
	switch e := ev.(type) {
	case Opened:
		s.onOpened(e.Conn)
	case Received:
		s.onReceived(e.Conn, e.Payload)
	case TransportFailed:
		s.onTransportError(e.Conn, e.Err)
	case Closed:
		s.onClosed(e.Conn, e.Err)
	case Tick:
		changed = s.onTick()
	case RetryDue:
		s.onRetryDue()
	case ConnectRequested:
		s.Connect()
	case JoinQueueRequested:
		s.JoinQueue(e.Bucket)
	case LeaveQueueRequested:
		s.LeaveQueue()
	case SquareSelected:
		s.SelectSquare(e.Square)
	case MoveAttempted:
		s.AttemptMove(e.From, e.To)
	case ResignPressed:
		s.Resign()
	case GameLeft:
		s.LeaveGame()
	default:
		s.log.Warn("session_unknown_event", zap.Any("event", ev))
		changed = false
	}
	if changed && s.observer != nil {
		s.observer(s.Snapshot())
	}
}

// State reports the connection state; Reconnecting while the retry supervisor is
// armed and no connection is established.
func (s *Session) State() ConnState {
	if s.state != Connected && s.retry.armed() {
		return Reconnecting
	}
	return s.state
}

// Connect opens the transport. No-op unless disconnected.
func (s *Session) Connect() {
	if s.stopping || s.state != Disconnected {
		return
	}
	s.state = Connecting
	s.setStatus("status.connecting", nil, "Connecting…")
	s.log.Info("session_connect", zap.Int("attempt", s.attempts))

	conn, err := s.dialer.Open(s.ctx, connHandler{s: s})
	if err != nil {
		s.log.Warn("session_connect_failed", zap.Error(err))
		s.state = Disconnected
		s.setStatus("status.error", nil, "Connection error")
		s.armRetry()
		return
	}
	s.conn = conn
}

func (s *Session) onOpened(c transport.Conn) {
	if c != s.conn || s.state != Connecting {
		return
	}
	raw, err := protocol.Encode(protocol.NewAuth(s.initData, s.debugUID))
	if err != nil {
		s.log.Error("auth_encode_failed", zap.Error(err))
		return
	}
	if err := c.Send(s.ctx, raw); err != nil {
		s.log.Warn("auth_send_failed", zap.Error(err))
		return
	}
	s.state = AwaitingAuthAck
	s.setStatus("status.awaiting_auth", nil, "Signing in…")
	s.log.Debug("auth_sent", zap.Bool("debug_identity", s.initData == ""))
}

func (s *Session) onReceived(c transport.Conn, payload []byte) {
	if c != s.conn {
		return
	}
	msg, err := protocol.Decode(payload)
	if err != nil {
		s.log.Warn("inbound_discarded", zap.Error(err), zap.Int("bytes", len(payload)))
		if errors.Is(err, protocol.ErrMalformed) {
			return
		}
	}
	if s.state == AwaitingAuthAck {
		s.onAuthReady()
	}
	if msg == nil {
		return
	}
	switch m := msg.(type) {
	case *protocol.QueueCounts:
		s.queue.applyCounts(m.Counts)
	case *protocol.Matched:
		s.onMatched(m)
	case *protocol.GameState:
		s.onGameUpdate(&m.GameUpdate, m.GameID, true)
	case *protocol.GameUpdate:
		s.onGameUpdate(m, "", false)
	}
}

// onAuthReady promotes the channel to Connected on the first server message.
func (s *Session) onAuthReady() {
	s.state = Connected
	s.attempts = 0
	s.retry.disarm()
	s.setStatus("status.connected", nil, "Connected")
	s.log.Info("session_connected")
	if s.game != nil {
		s.send(protocol.NewSubscribeGame(s.game.ID))
	}
}

func (s *Session) onTransportError(c transport.Conn, err error) {
	if c != s.conn {
		return
	}
	s.log.Warn("transport_error", zap.Error(err), zap.Stringer("state", s.state))
	s.setStatus("status.error", nil, "Connection error")
}

func (s *Session) onClosed(c transport.Conn, err error) {
	if c != s.conn {
		return
	}
	s.conn = nil
	s.state = Disconnected
	if s.queue.member != nil {
		s.log.Info("queue_membership_dropped", zap.String("bucket", s.queue.member.Bucket))
		s.queue.member = nil
	}
	s.log.Info("session_closed", zap.Error(err))
	s.setStatus("status.disconnected", nil, "No connection")
	if !s.stopping {
		s.armRetry()
	}
}

func (s *Session) armRetry() {
	if s.retry.arm() {
		s.log.Debug("reconnect_armed", zap.Duration("interval", s.retry.interval))
	}
}

func (s *Session) onRetryDue() {
	if !s.retry.armed() || s.stopping {
		return
	}
	s.retry.rearm()
	if s.state != Disconnected {
		return
	}
	s.attempts++
	s.Connect()
	if s.state == Connecting {
		s.setStatus("status.reconnecting", map[string]any{"Attempt": s.attempts}, "Reconnecting…")
	}
}

func (s *Session) shutdown() {
	s.stopping = true
	s.retry.disarm()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.log.Info("session_stop")
}

// send encodes and writes msg. Dropped unless Connected.
func (s *Session) send(msg protocol.Outbound) bool {
	if s.state != Connected || s.conn == nil {
		s.log.Debug("outbound_dropped", zap.String("type", msg.OutboundType()), zap.Stringer("state", s.state))
		return false
	}
	raw, err := protocol.Encode(msg)
	if err != nil {
		s.log.Error("outbound_encode_failed", zap.Error(err))
		return false
	}
	if err := s.conn.Send(s.ctx, raw); err != nil {
		s.log.Warn("outbound_send_failed", zap.String("type", msg.OutboundType()), zap.Error(err))
		return false
	}
	return true
}

func (s *Session) setStatus(key string, data any, fallback string) {
	s.status = s.text(key, data, fallback)
}

func (s *Session) text(key string, data any, fallback string) string {
	return s.catalog.Text(key, data, fallback)
}

// reconnectSupervisor is a fixed-interval retry timer with a single arm/disarm
// transition.
type reconnectSupervisor struct {
	clock    clockwork.Clock
	interval time.Duration
	timer    clockwork.Timer
}

func newReconnectSupervisor(clock clockwork.Clock, interval time.Duration) *reconnectSupervisor {
	return &reconnectSupervisor{clock: clock, interval: interval}
}

// arm starts the timer; false if it was already armed.
func (r *reconnectSupervisor) arm() bool {
	if r.timer != nil {
		return false
	}
	r.timer = r.clock.NewTimer(r.interval)
	return true
}

func (r *reconnectSupervisor) rearm() {
	if r.timer != nil {
		r.timer.Reset(r.interval)
	}
}

func (r *reconnectSupervisor) disarm() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *reconnectSupervisor) armed() bool { return r.timer != nil }

// C is nil while disarmed, which blocks forever in a select.
func (r *reconnectSupervisor) C() <-chan time.Time {
	if r.timer == nil {
		return nil
	}
	return r.timer.Chan()
}
