// Package rules answers legality questions about a FEN position. The session layer
// consumes it through Oracle and never reimplements chess rules itself.
package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var (
	ErrBadPosition = errors.New("invalid position")
	ErrBadSquare   = errors.New("invalid square")
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

type Color string

const (
	White   Color = "white"
	Black   Color = "black"
	NoColor Color = ""
)

// Opposite returns the other side.
func (c Color) Opposite() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	default:
		return NoColor
	}
}

// ParseColor accepts "white"/"w" and "black"/"b".
func ParseColor(s string) Color {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White
	case "black", "b":
		return Black
	default:
		return NoColor
	}
}

// Piece is an occupant of a square. Type is the lowercase letter (p n b r q k).
type Piece struct {
	Type  string
	Color Color
}

// Move is one legal destination from an origin square.
type Move struct {
	From        string
	To          string
	IsPromotion bool
}

// Oracle is the rules capability consumed by the session.
type Oracle interface {
	LegalMoves(fen, origin string) ([]Move, error)
	SideToMove(fen string) (Color, error)
	IsInCheck(fen string) (bool, error)
	PieceAt(fen, square string) (Piece, bool, error)
}

// Engine implements Oracle on top of corentings/chess.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// LegalMoves lists legal moves, optionally restricted to one origin square.
// Under-promotions collapse into a single entry flagged IsPromotion.
func (e *Engine) LegalMoves(fen, origin string) ([]Move, error) {
	game, err := load(fen)
	if err != nil {
		return nil, err
	}
	origin = strings.ToLower(strings.TrimSpace(origin))
	if origin != "" && !ValidSquare(origin) {
		return nil, fmt.Errorf("%w: %q", ErrBadSquare, origin)
	}

	seen := make(map[string]int)
	var out []Move
	for _, mv := range game.ValidMoves() {
		from := mv.S1().String()
		if origin != "" && from != origin {
			continue
		}
		to := mv.S2().String()
		promo := mv.Promo() != nchess.NoPieceType
		key := from + to
		if idx, ok := seen[key]; ok {
			out[idx].IsPromotion = out[idx].IsPromotion || promo
			continue
		}
		seen[key] = len(out)
		out = append(out, Move{From: from, To: to, IsPromotion: promo})
	}
	return out, nil
}

func (e *Engine) SideToMove(fen string) (Color, error) {
	game, err := load(fen)
	if err != nil {
		return NoColor, err
	}
	return colorFrom(game.Position().Turn()), nil
}

// IsInCheck reports whether the side to move is in check: with the turn handed to
// the opponent, some legal reply would land on the king's square.
func (e *Engine) IsInCheck(fen string) (bool, error) {
	game, err := load(fen)
	if err != nil {
		return false, err
	}
	side := game.Position().Turn()
	king, ok := findKing(game.Position().Board(), side)
	if !ok {
		return false, fmt.Errorf("%w: no king for side to move", ErrBadPosition)
	}
	flipped, err := flipTurn(fen)
	if err != nil {
		return false, err
	}
	other, err := load(flipped)
	if err != nil {
		return false, err
	}
	for _, mv := range other.ValidMoves() {
		if mv.S2() == king {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) PieceAt(fen, square string) (Piece, bool, error) {
	game, err := load(fen)
	if err != nil {
		return Piece{}, false, err
	}
	sq, err := parseSquare(square)
	if err != nil {
		return Piece{}, false, err
	}
	p := game.Position().Board().Piece(sq)
	if p == nchess.NoPiece {
		return Piece{}, false, nil
	}
	return Piece{Type: pieceLetter(p.Type()), Color: colorFrom(p.Color())}, true, nil
}

// ValidSquare reports whether s is an algebraic square like "e4".
func ValidSquare(s string) bool {
	_, err := parseSquare(s)
	return err == nil
}

// PlyFromFEN returns the number of half-moves played before the position, derived
// from the fullmove counter and side to move.
func PlyFromFEN(fen string) (int, error) {
	fields := strings.Fields(fen)
	if len(fields) < 6 {
		return 0, fmt.Errorf("%w: missing move counters", ErrBadPosition)
	}
	full, err := strconv.Atoi(fields[5])
	if err != nil || full < 1 {
		return 0, fmt.Errorf("%w: fullmove %q", ErrBadPosition, fields[5])
	}
	ply := (full - 1) * 2
	switch fields[1] {
	case "w":
	case "b":
		ply++
	default:
		return 0, fmt.Errorf("%w: side to move %q", ErrBadPosition, fields[1])
	}
	return ply, nil
}

func parseSquare(s string) (nchess.Square, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return nchess.NoSquare, fmt.Errorf("%w: %q", ErrBadSquare, s)
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), nil
}

func load(fen string) (*nchess.Game, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" {
		return nil, fmt.Errorf("%w: empty fen", ErrBadPosition)
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPosition, err)
	}
	return nchess.NewGame(opt), nil
}

func flipTurn(fen string) (string, error) {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return "", fmt.Errorf("%w: %q", ErrBadPosition, fen)
	}
	switch fields[1] {
	case "w":
		fields[1] = "b"
	case "b":
		fields[1] = "w"
	default:
		return "", fmt.Errorf("%w: side to move %q", ErrBadPosition, fields[1])
	}
	fields[3] = "-"
	return strings.Join(fields, " "), nil
}

func findKing(board *nchess.Board, side nchess.Color) (nchess.Square, bool) {
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			sq := nchess.NewSquare(file, rank)
			p := board.Piece(sq)
			if p != nchess.NoPiece && p.Type() == nchess.King && p.Color() == side {
				return sq, true
			}
		}
	}
	return nchess.NoSquare, false
}

func colorFrom(c nchess.Color) Color {
	switch c {
	case nchess.White:
		return White
	case nchess.Black:
		return Black
	default:
		return NoColor
	}
}

func pieceLetter(t nchess.PieceType) string {
	switch t {
	case nchess.King:
		return "k"
	case nchess.Queen:
		return "q"
	case nchess.Rook:
		return "r"
	case nchess.Bishop:
		return "b"
	case nchess.Knight:
		return "n"
	case nchess.Pawn:
		return "p"
	default:
		return ""
	}
}
