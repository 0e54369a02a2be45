package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/park285/phonechess-client/internal/rules"
)

// clockPredictor counts down the side to move between server corrections. It never
// decides flag fall; values only bottom out at zero.
type clockPredictor struct {
	period time.Duration
	active bool
	ref    time.Time
	white  int64
	black  int64
}

// rebase adopts the server's budgets as of now.
func (p *clockPredictor) rebase(now time.Time, white, black int64) {
	p.active = true
	p.ref = now
	p.white = max(white, 0)
	p.black = max(black, 0)
}

func (p *clockPredictor) stop() {
	p.active = false
	p.white, p.black = 0, 0
}

// tick subtracts the time since the previous tick, capped at one period, from side.
// It reports whether a displayed value changed.
func (p *clockPredictor) tick(now time.Time, side rules.Color) bool {
	if !p.active {
		return false
	}
	elapsed := now.Sub(p.ref)
	p.ref = now
	if elapsed <= 0 {
		return false
	}
	if elapsed > p.period {
		elapsed = p.period
	}
	ms := elapsed.Milliseconds()
	switch side {
	case rules.White:
		if p.white == 0 {
			return false
		}
		p.white = max(p.white-ms, 0)
	case rules.Black:
		if p.black == 0 {
			return false
		}
		p.black = max(p.black-ms, 0)
	default:
		return false
	}
	return ms > 0
}

func (p *clockPredictor) remaining(side rules.Color) int64 {
	if side == rules.White {
		return p.white
	}
	return p.black
}

// onTick advances the predictor and expires the resign window and pending move.
func (s *Session) onTick() bool {
	now := s.clock.Now()
	changed := false
	if !s.resignBy.IsZero() && !now.Before(s.resignBy) {
		s.resignBy = time.Time{}
		changed = true
	}
	g := s.game
	if g == nil {
		return changed
	}
	if g.pending && now.Sub(g.pendingSince) >= s.pendingTTL {
		g.pending = false
		s.log.Warn("move_unconfirmed", zap.String("game_id", g.ID), zap.Duration("after", s.pendingTTL))
		changed = true
	}
	if g.Result != "" {
		return changed
	}
	if s.predictor.tick(now, g.turn) {
		changed = true
	}
	return changed
}
