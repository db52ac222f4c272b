package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"github.com/joebot/heyu/internal/dispatch"
)

// DefaultInterval is the default heartbeat interval.
const DefaultInterval = 5 * time.Minute

// StatsFunc returns the counters to report on each tick.
type StatsFunc func() dispatch.Stats

// Service periodically logs dispatcher activity so a quiet bot can be told
// apart from a stuck one.
type Service struct {
	interval time.Duration
	stats    StatsFunc
	last     dispatch.Stats
}

// NewService creates a new heartbeat service.
func NewService(interval time.Duration, stats StatsFunc) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{interval: interval, stats: stats}
}

// Run starts the heartbeat loop. It blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	slog.Info("Heartbeat started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Heartbeat stopped")
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Service) tick() {
	if s.stats == nil {
		return
	}
	cur := s.stats()
	delta := diff(cur, s.last)
	s.last = cur

	if delta == (dispatch.Stats{}) {
		slog.Debug("Heartbeat: idle", "received", cur.Received)
		return
	}
	slog.Info("Heartbeat",
		"received", delta.Received,
		"rejected", delta.Rejected,
		"matched", delta.Matched,
		"suppressed", delta.Suppressed,
		"failures", delta.ActionFailures,
		"total_received", cur.Received,
	)
}

// diff returns the activity between two snapshots.
func diff(cur, prev dispatch.Stats) dispatch.Stats {
	return dispatch.Stats{
		Received:       cur.Received - prev.Received,
		Rejected:       cur.Rejected - prev.Rejected,
		Matched:        cur.Matched - prev.Matched,
		Suppressed:     cur.Suppressed - prev.Suppressed,
		ActionFailures: cur.ActionFailures - prev.ActionFailures,
	}
}
