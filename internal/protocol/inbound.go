package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// Inbound message types.
const (
	TypeQueueCounts = "queue_counts"
	TypeMatched     = "matched"
	TypeGameState   = "game_state"
	TypeGameUpdate  = "game_update"
)

// Inbound is a decoded server -> client message. The concrete type is one of
// *QueueCounts, *Matched, *GameState, *GameUpdate.
type Inbound interface {
	InboundType() string
}

// QueueCounts is a full snapshot of waiting players per bucket.
type QueueCounts struct {
	Counts map[string]int `json:"counts"`
}

type Matched struct {
	GameID           string `json:"game_id"`
	Color            string `json:"color"`
	FEN              string `json:"fen"`
	WhiteUsername    string `json:"white_username"`
	BlackUsername    string `json:"black_username"`
	TimeControl      string `json:"time_control"`
	WhiteRemainingMs *int64 `json:"white_remaining_ms,omitempty"`
	BlackRemainingMs *int64 `json:"black_remaining_ms,omitempty"`
}

// GameUpdate is an incremental change. Nil fields were absent (or null) on the wire.
type GameUpdate struct {
	FEN              *string     `json:"fen,omitempty"`
	WhiteRemainingMs *int64      `json:"white_remaining_ms,omitempty"`
	BlackRemainingMs *int64      `json:"black_remaining_ms,omitempty"`
	Moves            []MoveEntry `json:"moves,omitempty"`
	HasMoves         bool        `json:"-"`
	SAN              *string     `json:"san,omitempty"`
	MoveTimeMs       *int64      `json:"move_time_ms,omitempty"`
	From             *string     `json:"from,omitempty"`
	To               *string     `json:"to,omitempty"`
	Result           *string     `json:"result,omitempty"`
}

// GameState is a full resync; it carries the same optional fields as GameUpdate.
type GameState struct {
	GameUpdate
	GameID string `json:"game_id,omitempty"`
}

func (*QueueCounts) InboundType() string { return TypeQueueCounts }
func (*Matched) InboundType() string     { return TypeMatched }
func (*GameState) InboundType() string   { return TypeGameState }
func (*GameUpdate) InboundType() string  { return TypeGameUpdate }

// MoveEntry is one element of a full move list. The server may send either a bare
// SAN string or an object with san and time.
type MoveEntry struct {
	SAN    string `json:"san"`
	TimeMs int64  `json:"time_ms"`
}

func (m *MoveEntry) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var san string
		if err := json.Unmarshal(b, &san); err != nil {
			return err
		}
		*m = MoveEntry{SAN: san}
		return nil
	}
	var obj struct {
		SAN        string `json:"san"`
		TimeMs     *int64 `json:"time_ms"`
		MoveTimeMs *int64 `json:"move_time_ms"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*m = MoveEntry{SAN: obj.SAN}
	switch {
	case obj.TimeMs != nil:
		m.TimeMs = *obj.TimeMs
	case obj.MoveTimeMs != nil:
		m.TimeMs = *obj.MoveTimeMs
	}
	return nil
}

type envelope struct {
	Type  string          `json:"type"`
	Moves json.RawMessage `json:"moves"`
}

// Decode parses one inbound frame. Parse failures wrap ErrMalformed; an unrecognised
// type tag wraps ErrUnknownType.
func Decode(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	kind := strings.TrimSpace(env.Type)
	if kind == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	var msg Inbound
	switch kind {
	case TypeQueueCounts:
		msg = &QueueCounts{}
	case TypeMatched:
		msg = &Matched{}
	case TypeGameState:
		msg = &GameState{}
	case TypeGameUpdate:
		msg = &GameUpdate{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, kind, err)
	}

	hasMoves := len(env.Moves) > 0 && !bytes.Equal(bytes.TrimSpace(env.Moves), []byte("null"))
	switch m := msg.(type) {
	case *QueueCounts:
		if m.Counts == nil {
			m.Counts = map[string]int{}
		}
	case *Matched:
		if strings.TrimSpace(m.GameID) == "" {
			return nil, fmt.Errorf("%w: matched without game_id", ErrMalformed)
		}
	case *GameState:
		m.HasMoves = hasMoves
	case *GameUpdate:
		m.HasMoves = hasMoves
	}
	return msg, nil
}
