package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/park285/phonechess-client/internal/protocol"
	"github.com/park285/phonechess-client/internal/timecontrol"
)

// QueueMembership is the single bucket this client is waiting in.
type QueueMembership struct {
	Bucket   string
	JoinedAt time.Time
}

type queueTracker struct {
	member *QueueMembership
	counts map[string]int
}

func (q *queueTracker) reset() {
	q.member = nil
	q.counts = make(map[string]int, len(timecontrol.Keys()))
	for _, k := range timecontrol.Keys() {
		q.counts[k] = 0
	}
}

// applyCounts replaces the displayed counts wholesale. Buckets absent from the
// snapshot read as zero.
func (q *queueTracker) applyCounts(in map[string]int) {
	next := make(map[string]int, len(in)+len(timecontrol.Keys()))
	for _, k := range timecontrol.Keys() {
		next[k] = 0
	}
	for k, v := range in {
		next[k] = v
	}
	q.counts = next
}

func (q *queueTracker) count(bucket string) int { return q.counts[bucket] }

// JoinQueue enters a matchmaking bucket, leaving any other bucket first.
func (s *Session) JoinQueue(bucket string) {
	if s.state != Connected {
		return
	}
	if _, ok := timecontrol.Lookup(bucket); !ok {
		s.log.Debug("queue_join_ignored", zap.String("bucket", bucket), zap.String("reason", "unknown_bucket"))
		return
	}
	// 진행 중인 대국이 있으면 대기열 참가 금지
	if s.game.live() {
		s.log.Debug("queue_join_ignored", zap.String("bucket", bucket), zap.String("reason", "game_in_progress"))
		return
	}
	if m := s.queue.member; m != nil {
		if m.Bucket == bucket {
			return
		}
		// 다른 버킷으로 옮길 때는 기존 대기열부터 이탈
		s.send(protocol.NewLeaveQueue(m.Bucket))
		s.queue.member = nil
	}
	if !s.send(protocol.NewJoinQueue(bucket)) {
		return
	}
	s.queue.member = &QueueMembership{Bucket: bucket, JoinedAt: s.clock.Now()}
	s.log.Info("queue_join", zap.String("bucket", bucket))
}

// LeaveQueue clears membership without waiting for the server.
func (s *Session) LeaveQueue() {
	m := s.queue.member
	if m == nil {
		return
	}
	s.send(protocol.NewLeaveQueue(m.Bucket))
	s.queue.member = nil
	s.log.Info("queue_leave", zap.String("bucket", m.Bucket))
}
