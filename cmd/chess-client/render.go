package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/park285/phonechess-client/internal/msgcat"
	"github.com/park285/phonechess-client/internal/session"
	"github.com/park285/phonechess-client/internal/timecontrol"
)

// printer writes session snapshots to the terminal. Clock-only changes are not
// echoed; the status command prints them on demand.
type printer struct {
	out     io.Writer
	catalog *msgcat.Catalog

	mu      sync.Mutex
	last    session.Snapshot
	lastKey string
}

func newPrinter(out io.Writer, catalog *msgcat.Catalog) *printer {
	return &printer{out: out, catalog: catalog}
}

func (p *printer) observe(sn session.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = sn
	key := changeKey(sn)
	if key == p.lastKey {
		return
	}
	p.lastKey = key
	fmt.Fprintln(p.out, p.render(sn))
}

func (p *printer) printLatest() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, p.render(p.last))
}

func changeKey(sn session.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s", sn.State, sn.Status)
	if sn.Queue != nil {
		b.WriteString("|q:" + sn.Queue.Bucket)
	}
	if g := sn.Game; g != nil {
		fmt.Fprintf(&b, "|g:%s|%s|%d|%s|%s|%v|%v|%v",
			g.ID, g.FEN, len(g.Moves), g.Result, g.Selected, g.Targets, g.PendingMove, g.ResignArmed)
	}
	return b.String()
}

func (p *printer) render(sn session.Snapshot) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("[%s] %s", sn.State, sn.Status))
	if sn.Game == nil {
		var counts []string
		for _, k := range timecontrol.Keys() {
			counts = append(counts, fmt.Sprintf("%s:%d", k, sn.Counts[k]))
		}
		lines = append(lines, "queues  "+strings.Join(counts, "  "))
		if sn.Queue != nil {
			lines = append(lines, "waiting in "+sn.Queue.Bucket)
		}
		return strings.Join(lines, "\n")
	}

	g := sn.Game
	lines = append(lines,
		p.catalog.Text("game.header", map[string]any{"White": g.White, "Black": g.Black, "TimeControl": g.TimeControl},
			g.White+" vs "+g.Black),
		p.catalog.Text("game.side", map[string]any{"Color": string(g.Color)}, "You play "+string(g.Color)),
		fmt.Sprintf("white %s  black %s  to move: %s", g.WhiteClock, g.BlackClock, g.Turn),
	)
	if len(g.Moves) > 0 {
		lines = append(lines, formatMoves(g.Moves))
	}
	if g.InCheck && g.Result == "" {
		lines = append(lines, "check")
	}
	if g.Selected != "" {
		lines = append(lines, fmt.Sprintf("selected %s -> %s", g.Selected, strings.Join(g.Targets, " ")))
	}
	if g.PendingMove {
		lines = append(lines, "move sent, waiting for server")
	}
	if g.ResignArmed {
		lines = append(lines, "press resign again to confirm")
	}
	if g.Outcome != "" {
		lines = append(lines, g.Outcome)
	}
	return strings.Join(lines, "\n")
}

func formatMoves(moves []session.MoveRecord) string {
	var b strings.Builder
	for i, mv := range moves {
		if i%2 == 0 {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%d.", i/2+1)
		}
		b.WriteByte(' ')
		b.WriteString(mv.SAN)
	}
	return b.String()
}
