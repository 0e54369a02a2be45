package session

import (
	"sort"

	"github.com/park285/phonechess-client/internal/rules"
	"github.com/park285/phonechess-client/internal/timecontrol"
)

// Snapshot is a read-only copy of everything a front end displays.
type Snapshot struct {
	SessionID string
	State     ConnState
	Status    string
	Attempts  int
	Queue     *QueueMembership
	Counts    map[string]int
	Game      *GameView
}

// GameView is the display projection of a GameSession. WhiteMs and BlackMs are the
// predicted values.
type GameView struct {
	ID          string
	Color       rules.Color
	Turn        rules.Color
	FEN         string
	Moves       []MoveRecord
	WhiteMs     int64
	BlackMs     int64
	WhiteClock  string
	BlackClock  string
	Result      string
	Outcome     string
	LastFrom    string
	LastTo      string
	InCheck     bool
	Selected    string
	Targets     []string
	PendingMove bool
	ResignArmed bool
	White       string
	Black       string
	TimeControl string
}

// Snapshot must be called from the session goroutine (an Observer, or a test).
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		SessionID: s.id,
		State:     s.State(),
		Status:    s.status,
		Attempts:  s.attempts,
		Counts:    make(map[string]int, len(s.queue.counts)),
	}
	for k, v := range s.queue.counts {
		snap.Counts[k] = v
	}
	if m := s.queue.member; m != nil {
		cp := *m
		snap.Queue = &cp
	}
	if g := s.game; g != nil {
		snap.Game = s.gameView(g)
	}
	return snap
}

func (s *Session) gameView(g *GameSession) *GameView {
	white := s.predictor.remaining(rules.White)
	black := s.predictor.remaining(rules.Black)
	v := &GameView{
		ID:          g.ID,
		Color:       g.Color,
		Turn:        g.turn,
		FEN:         g.FEN,
		Moves:       append([]MoveRecord(nil), g.Moves...),
		WhiteMs:     white,
		BlackMs:     black,
		WhiteClock:  timecontrol.FormatClock(white, s.lowTime),
		BlackClock:  timecontrol.FormatClock(black, s.lowTime),
		Result:      g.Result,
		Outcome:     g.Outcome,
		LastFrom:    g.LastFrom,
		LastTo:      g.LastTo,
		InCheck:     g.inCheck,
		Selected:    g.origin,
		PendingMove: g.pending,
		ResignArmed: !s.resignBy.IsZero(),
		White:       g.White,
		Black:       g.Black,
		TimeControl: g.TimeControl,
	}
	for sq := range g.targets {
		v.Targets = append(v.Targets, sq)
	}
	sort.Strings(v.Targets)
	return v
}

// QueueCount is the last reported number of players waiting in bucket.
func (s *Session) QueueCount(bucket string) int { return s.queue.count(bucket) }
