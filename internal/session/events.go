package session

import (
	"github.com/park285/phonechess-client/internal/transport"
)

// Event is everything the session loop consumes. Transport callbacks, timer fires
// and user intents are all posted as events and handled by Dispatch.
type Event interface {
	event()
}

// Transport events carry the connection they came from.
type (
	Opened struct {
		Conn transport.Conn
	}
	Received struct {
		Conn    transport.Conn
		Payload []byte
	}
	TransportFailed struct {
		Conn transport.Conn
		Err  error
	}
	Closed struct {
		Conn transport.Conn
		Err  error
	}
)

// Timer events.
type (
	Tick     struct{}
	RetryDue struct{}
)

// User intents.
type (
	ConnectRequested    struct{}
	JoinQueueRequested  struct{ Bucket string }
	LeaveQueueRequested struct{}
	SquareSelected      struct{ Square string }
	MoveAttempted       struct{ From, To string }
	ResignPressed       struct{}
	GameLeft            struct{}
)

func (Opened) event()          {}
func (Received) event()        {}
func (TransportFailed) event() {}
func (Closed) event()          {}

func (Tick) event()     {}
func (RetryDue) event() {}

func (ConnectRequested) event()    {}
func (JoinQueueRequested) event()  {}
func (LeaveQueueRequested) event() {}
func (SquareSelected) event()      {}
func (MoveAttempted) event()       {}
func (ResignPressed) event()       {}
func (GameLeft) event()            {}

// connHandler adapts transport callbacks into posted events.
type connHandler struct {
	s *Session
}

func (h connHandler) OnOpen(c transport.Conn) { h.s.Post(Opened{Conn: c}) }

func (h connHandler) OnMessage(c transport.Conn, payload []byte) {
	h.s.Post(Received{Conn: c, Payload: payload})
}

func (h connHandler) OnError(c transport.Conn, err error) {
	h.s.Post(TransportFailed{Conn: c, Err: err})
}

func (h connHandler) OnClose(c transport.Conn, err error) {
	h.s.Post(Closed{Conn: c, Err: err})
}
