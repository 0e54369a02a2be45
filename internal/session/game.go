package session

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/phonechess-client/internal/protocol"
	"github.com/park285/phonechess-client/internal/rules"
)

// Game results as sent by the server.
const (
	ResultWhiteWins = "1-0"
	ResultBlackWins = "0-1"
	ResultDraw      = "1/2-1/2"
)

// MoveRecord is one played move. Even indexes are white's moves.
type MoveRecord struct {
	SAN    string
	TimeMs int64
}

// GameSession is the local copy of the server's game. Position, clocks, moves and
// result are only ever written from server messages.
type GameSession struct {
	ID          string
	Color       rules.Color
	InitialFEN  string
	FEN         string
	Moves       []MoveRecord
	WhiteMs     int64
	BlackMs     int64
	Result      string
	Outcome     string
	LastFrom    string
	LastTo      string
	White       string
	Black       string
	TimeControl string

	turn    rules.Color
	inCheck bool

	origin  string
	targets map[string]rules.Move

	pending      bool
	pendingSince time.Time
}

func (g *GameSession) live() bool { return g != nil && g.Result == "" }

func (g *GameSession) clearSelection() {
	g.origin = ""
	g.targets = nil
}

func (s *Session) onMatched(m *protocol.Matched) {
	if s.queue.member != nil {
		s.log.Info("queue_matched", zap.String("bucket", s.queue.member.Bucket))
	}
	s.queue.member = nil
	s.resignBy = time.Time{}

	fen := strings.TrimSpace(m.FEN)
	if fen == "" {
		fen = rules.StartFEN
	}
	g := &GameSession{
		ID:          m.GameID,
		Color:       rules.ParseColor(m.Color),
		InitialFEN:  fen,
		FEN:         fen,
		Moves:       []MoveRecord{},
		White:       m.WhiteUsername,
		Black:       m.BlackUsername,
		TimeControl: m.TimeControl,
	}
	if m.WhiteRemainingMs != nil {
		g.WhiteMs = *m.WhiteRemainingMs
	}
	if m.BlackRemainingMs != nil {
		g.BlackMs = *m.BlackRemainingMs
	}
	s.game = g
	s.derivePosition()
	s.predictor.rebase(s.clock.Now(), g.WhiteMs, g.BlackMs)

	s.log.Info("game_matched",
		zap.String("game_id", g.ID),
		zap.String("color", string(g.Color)),
		zap.String("time_control", g.TimeControl),
	)
	s.send(protocol.NewSubscribeGame(g.ID))
}

// onGameUpdate merges a snapshot or incremental update. Only present fields are
// written; a single san/move_time_ms pair appends at most one move record.
func (s *Session) onGameUpdate(u *protocol.GameUpdate, gameID string, snapshot bool) {
	g := s.game
	if g == nil {
		s.log.Debug("game_update_ignored", zap.String("reason", "no_game"))
		return
	}
	// 현재 대국이 아닌 game_state는 무시
	if gameID != "" && gameID != g.ID {
		s.log.Debug("game_update_ignored", zap.String("reason", "other_game"), zap.String("game_id", gameID))
		return
	}

	prevFEN := g.FEN
	if u.FEN != nil {
		g.FEN = *u.FEN
	}
	if u.WhiteRemainingMs != nil {
		g.WhiteMs = *u.WhiteRemainingMs
	}
	if u.BlackRemainingMs != nil {
		g.BlackMs = *u.BlackRemainingMs
	}
	if u.HasMoves {
		g.Moves = make([]MoveRecord, 0, len(u.Moves))
		for _, mv := range u.Moves {
			g.Moves = append(g.Moves, MoveRecord{SAN: mv.SAN, TimeMs: mv.TimeMs})
		}
	}
	if u.SAN != nil && u.MoveTimeMs != nil {
		s.appendMove(g, u)
	}
	if u.From != nil {
		g.LastFrom = *u.From
	}
	if u.To != nil {
		g.LastTo = *u.To
	}
	if u.Result != nil && *u.Result != "" {
		first := g.Result == ""
		g.Result = *u.Result
		if first {
			g.Outcome = s.outcomeText(g.Result)
			g.clearSelection()
			s.resignBy = time.Time{}
			s.log.Info("game_over", zap.String("game_id", g.ID), zap.String("result", g.Result))
		}
	}

	g.pending = false
	if g.FEN != prevFEN {
		g.clearSelection()
		s.derivePosition()
	}
	s.predictor.rebase(s.clock.Now(), g.WhiteMs, g.BlackMs)

	s.log.Debug("game_update_merge",
		zap.String("game_id", g.ID),
		zap.Bool("snapshot", snapshot),
		zap.Int("moves", len(g.Moves)),
		zap.Int64("white_ms", g.WhiteMs),
		zap.Int64("black_ms", g.BlackMs),
	)
}

// appendMove adds the streamed move unless the list already holds it. With a FEN the
// list may grow only to the plies played since the initial position; without one the
// move is skipped when it equals the last record.
func (s *Session) appendMove(g *GameSession, u *protocol.GameUpdate) {
	rec := MoveRecord{SAN: *u.SAN, TimeMs: *u.MoveTimeMs}
	if u.FEN != nil {
		if want, ok := pliesSince(g.InitialFEN, *u.FEN); ok {
			if len(g.Moves) < want {
				g.Moves = append(g.Moves, rec)
			}
			return
		}
	}
	if n := len(g.Moves); n > 0 && g.Moves[n-1] == rec {
		s.log.Debug("move_already_recorded", zap.String("san", rec.SAN), zap.Int("index", n-1))
		return
	}
	g.Moves = append(g.Moves, rec)
}

// pliesSince counts half-moves between two positions of the same game.
func pliesSince(initialFEN, fen string) (int, bool) {
	ply, err := rules.PlyFromFEN(fen)
	if err != nil {
		return 0, false
	}
	base, err := rules.PlyFromFEN(initialFEN)
	if err != nil {
		return 0, false
	}
	return ply - base, true
}

// derivePosition caches turn and check from the current FEN.
func (s *Session) derivePosition() {
	g := s.game
	turn, err := s.oracle.SideToMove(g.FEN)
	if err != nil {
		s.log.Warn("position_unreadable", zap.String("fen", g.FEN), zap.Error(err))
		g.turn = rules.NoColor
		g.inCheck = false
		return
	}
	g.turn = turn
	check, err := s.oracle.IsInCheck(g.FEN)
	if err != nil {
		s.log.Debug("check_unknown", zap.Error(err))
		check = false
	}
	g.inCheck = check
}

func (s *Session) outcomeText(result string) string {
	data := map[string]any{"Result": result}
	switch result {
	case ResultWhiteWins:
		return s.text("outcome.white_won", data, result+" White wins")
	case ResultBlackWins:
		return s.text("outcome.black_won", data, result+" Black wins")
	case ResultDraw:
		return s.text("outcome.draw", data, result+" Draw")
	default:
		return s.text("outcome.unknown", data, "Game over: "+result)
	}
}

// LeaveGame discards a finished game. Ignored while the game is still live.
func (s *Session) LeaveGame() {
	if s.game == nil || s.game.live() {
		return
	}
	s.log.Info("game_left", zap.String("game_id", s.game.ID))
	s.game = nil
	s.resignBy = time.Time{}
	s.predictor.stop()
}
