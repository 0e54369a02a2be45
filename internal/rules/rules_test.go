package rules

import (
	"errors"
	"sort"
	"testing"
)

const (
	foolsMateFEN = "rnb1kbnr/pppp1ppp/8/4p3/6Pq/5P2/PPPPP2P/RNBQKBNR w KQkq - 1 3"
	promotionFEN = "8/4P3/8/8/8/8/k7/4K3 w - - 0 1"
)

func destinations(moves []Move) []string {
	out := make([]string, 0, len(moves))
	for _, m := range moves {
		out = append(out, m.To)
	}
	sort.Strings(out)
	return out
}

func TestLegalMovesFromOrigin(t *testing.T) {
	e := NewEngine()
	moves, err := e.LegalMoves(StartFEN, "e2")
	if err != nil {
		t.Fatalf("LegalMoves: %v", err)
	}
	got := destinations(moves)
	if len(got) != 2 || got[0] != "e3" || got[1] != "e4" {
		t.Fatalf("e2 destinations = %v", got)
	}

	all, err := e.LegalMoves(StartFEN, "")
	if err != nil {
		t.Fatalf("LegalMoves all: %v", err)
	}
	if len(all) != 20 {
		t.Fatalf("expected 20 opening moves, got %d", len(all))
	}
}

func TestLegalMovesPromotionCollapsed(t *testing.T) {
	e := NewEngine()
	moves, err := e.LegalMoves(promotionFEN, "e7")
	if err != nil {
		t.Fatalf("LegalMoves: %v", err)
	}
	if len(moves) != 1 || moves[0].To != "e8" || !moves[0].IsPromotion {
		t.Fatalf("unexpected promotion moves: %+v", moves)
	}
}

func TestSideToMoveAndPieceAt(t *testing.T) {
	e := NewEngine()
	side, err := e.SideToMove(foolsMateFEN)
	if err != nil || side != White {
		t.Fatalf("SideToMove = %q, %v", side, err)
	}
	p, ok, err := e.PieceAt(foolsMateFEN, "h4")
	if err != nil || !ok {
		t.Fatalf("PieceAt h4: ok=%v err=%v", ok, err)
	}
	if p.Type != "q" || p.Color != Black {
		t.Fatalf("h4 = %+v", p)
	}
	if _, ok, _ := e.PieceAt(StartFEN, "e4"); ok {
		t.Fatalf("e4 should be empty at start")
	}
}

func TestIsInCheck(t *testing.T) {
	e := NewEngine()
	check, err := e.IsInCheck(foolsMateFEN)
	if err != nil || !check {
		t.Fatalf("fool's mate: check=%v err=%v", check, err)
	}
	check, err = e.IsInCheck(StartFEN)
	if err != nil || check {
		t.Fatalf("start: check=%v err=%v", check, err)
	}
	moves, err := e.LegalMoves(foolsMateFEN, "")
	if err != nil || len(moves) != 0 {
		t.Fatalf("mated side should have no moves: %v %v", moves, err)
	}
}

func TestErrors(t *testing.T) {
	e := NewEngine()
	if _, err := e.SideToMove(""); !errors.Is(err, ErrBadPosition) {
		t.Fatalf("empty fen err = %v", err)
	}
	if _, err := e.LegalMoves("not a fen", ""); !errors.Is(err, ErrBadPosition) {
		t.Fatalf("garbage fen err = %v", err)
	}
	if _, _, err := e.PieceAt(StartFEN, "z9"); !errors.Is(err, ErrBadSquare) {
		t.Fatalf("bad square err = %v", err)
	}
	if _, err := e.LegalMoves(StartFEN, "e"); !errors.Is(err, ErrBadSquare) {
		t.Fatalf("bad origin err = %v", err)
	}
}

func TestColorHelpers(t *testing.T) {
	if ParseColor("W") != White || ParseColor("black") != Black || ParseColor("red") != NoColor {
		t.Fatalf("ParseColor mismatch")
	}
	if White.Opposite() != Black || NoColor.Opposite() != NoColor {
		t.Fatalf("Opposite mismatch")
	}
	if !ValidSquare("h8") || ValidSquare("i1") {
		t.Fatalf("ValidSquare mismatch")
	}
}

func TestPlyFromFEN(t *testing.T) {
	cases := map[string]int{
		StartFEN: 0,
		"rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1": 1,
		foolsMateFEN: 4,
	}
	for fen, want := range cases {
		got, err := PlyFromFEN(fen)
		if err != nil || got != want {
			t.Fatalf("PlyFromFEN(%q) = %d, %v; want %d", fen, got, err, want)
		}
	}
	if _, err := PlyFromFEN("8/8/8/8/8/8/8/8 w - -"); !errors.Is(err, ErrBadPosition) {
		t.Fatalf("short fen err = %v", err)
	}
}
