package session

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/phonechess-client/internal/protocol"
	"github.com/park285/phonechess-client/internal/rules"
)

// defaultPromotion is used for every promoting move; there is no piece picker.
const defaultPromotion = "q"

// canMove reports whether the local side may submit a move right now.
func (s *Session) canMove() bool {
	g := s.game
	return s.state == Connected &&
		g.live() &&
		!g.pending &&
		g.Color != rules.NoColor &&
		g.turn == g.Color
}

// ownPiece reports whether square holds one of the local side's pieces.
func (s *Session) ownPiece(square string) bool {
	p, ok, err := s.oracle.PieceAt(s.game.FEN, square)
	if err != nil {
		s.log.Warn("piece_lookup_failed", zap.String("square", square), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	return p.Color == s.game.Color
}

// SelectSquare is the tap path: the first tap picks an origin, the second picks a
// destination or switches to another own piece.
func (s *Session) SelectSquare(square string) {
	square = strings.ToLower(strings.TrimSpace(square))
	if !s.canMove() {
		return
	}
	g := s.game
	if g.origin != "" {
		if square == g.origin {
			g.clearSelection()
			return
		}
		if mv, ok := g.targets[square]; ok {
			s.submitMove(mv)
			return
		}
	}
	if !s.ownPiece(square) {
		g.clearSelection()
		return
	}
	moves, err := s.oracle.LegalMoves(g.FEN, square)
	if err != nil {
		s.log.Warn("legal_moves_failed", zap.String("square", square), zap.Error(err))
		g.clearSelection()
		return
	}
	g.origin = square
	g.targets = make(map[string]rules.Move, len(moves))
	for _, mv := range moves {
		g.targets[mv.To] = mv
	}
}

// AttemptMove is the drag path. The destination is checked against a fresh legality
// query, with the same guards as SelectSquare.
func (s *Session) AttemptMove(from, to string) {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	// 턴 검증
	if !s.canMove() || from == to {
		return
	}
	g := s.game
	if !s.ownPiece(from) {
		g.clearSelection()
		return
	}
	moves, err := s.oracle.LegalMoves(g.FEN, from)
	if err != nil {
		s.log.Warn("legal_moves_failed", zap.String("square", from), zap.Error(err))
		g.clearSelection()
		return
	}
	for _, mv := range moves {
		if mv.To == to {
			if mv.From == "" {
				mv.From = from
			}
			s.submitMove(mv)
			return
		}
	}
}

// submitMove sends make_move and waits for the server to confirm; the position is
// not advanced locally.
func (s *Session) submitMove(mv rules.Move) {
	g := s.game
	from := mv.From
	if from == "" {
		from = g.origin
	}
	promo := ""
	if mv.IsPromotion {
		promo = defaultPromotion
	}
	g.clearSelection()
	if !s.send(protocol.NewMakeMove(g.ID, from, mv.To, promo)) {
		return
	}
	g.pending = true
	g.pendingSince = s.clock.Now()
	s.log.Info("move_submitted",
		zap.String("game_id", g.ID),
		zap.String("from", from),
		zap.String("to", mv.To),
		zap.String("promotion", promo),
	)
}

// Resign needs two presses within the confirmation window.
func (s *Session) Resign() {
	g := s.game
	if !g.live() || s.state != Connected {
		return
	}
	now := s.clock.Now()
	if !s.resignBy.IsZero() && now.Before(s.resignBy) {
		s.resignBy = time.Time{}
		if s.send(protocol.NewResign(g.ID)) {
			s.log.Info("resign_sent", zap.String("game_id", g.ID))
		}
		return
	}
	s.resignBy = now.Add(s.resignConfirm)
	s.log.Debug("resign_armed", zap.Time("until", s.resignBy))
}
