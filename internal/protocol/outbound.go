package protocol

import (
	"encoding/json"
	"fmt"
)

// Outbound message types.
const (
	TypeAuth          = "auth"
	TypeJoinQueue     = "join_queue"
	TypeLeaveQueue    = "leave_queue"
	TypeSubscribeGame = "subscribe_game"
	TypeMakeMove      = "make_move"
	TypeResign        = "resign"
)

// Outbound is any client -> server message.
type Outbound interface {
	OutboundType() string
}

type Auth struct {
	Type     string `json:"type"`
	InitData string `json:"init_data"`
	DebugUID *int64 `json:"debug_uid,omitempty"`
}

type JoinQueue struct {
	Type        string `json:"type"`
	TimeControl string `json:"time_control"`
}

type LeaveQueue struct {
	Type        string `json:"type"`
	TimeControl string `json:"time_control"`
}

type SubscribeGame struct {
	Type   string `json:"type"`
	GameID string `json:"game_id"`
}

type MakeMove struct {
	Type      string `json:"type"`
	GameID    string `json:"game_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type Resign struct {
	Type   string `json:"type"`
	GameID string `json:"game_id"`
}

func (Auth) OutboundType() string          { return TypeAuth }
func (JoinQueue) OutboundType() string     { return TypeJoinQueue }
func (LeaveQueue) OutboundType() string    { return TypeLeaveQueue }
func (SubscribeGame) OutboundType() string { return TypeSubscribeGame }
func (MakeMove) OutboundType() string      { return TypeMakeMove }
func (Resign) OutboundType() string        { return TypeResign }

// NewAuth carries initData, or the debug uid when no credential is available.
func NewAuth(initData string, debugUID int64) Auth {
	a := Auth{Type: TypeAuth, InitData: initData}
	if initData == "" && debugUID > 0 {
		uid := debugUID
		a.DebugUID = &uid
	}
	return a
}

func NewJoinQueue(bucket string) JoinQueue {
	return JoinQueue{Type: TypeJoinQueue, TimeControl: bucket}
}

func NewLeaveQueue(bucket string) LeaveQueue {
	return LeaveQueue{Type: TypeLeaveQueue, TimeControl: bucket}
}

func NewSubscribeGame(gameID string) SubscribeGame {
	return SubscribeGame{Type: TypeSubscribeGame, GameID: gameID}
}

func NewMakeMove(gameID, from, to, promotion string) MakeMove {
	return MakeMove{Type: TypeMakeMove, GameID: gameID, From: from, To: to, Promotion: promotion}
}

func NewResign(gameID string) Resign {
	return Resign{Type: TypeResign, GameID: gameID}
}

// Encode marshals an outbound message built by one of the New* constructors.
func Encode(msg Outbound) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("encode: %w", ErrMalformed)
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.OutboundType(), err)
	}
	return raw, nil
}
