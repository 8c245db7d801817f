package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/samber/lo"
)

// Stats is a point in time view of the server.
type Stats struct {
	Connections int
	Players     int
	Rooms       int
	PoolRunning int
	Dispatched  map[string]int64
}

func (s *Service) startStats() {
	interval := s.wc.StatsInterval.Std()
	if interval <= 0 {
		return
	}
	s.statsID = s.ws.Scheduler().Forever(interval, s.reportStats)
}

// Stats collects the current registry sizes and dispatch totals.
func (s *Service) Stats(ctx context.Context) Stats {
	st := Stats{
		Connections: s.sessions.Len(),
		Players:     s.ids.Len(),
		Rooms:       s.rooms.Len(),
		PoolRunning: s.ws.Status().Running,
	}
	counts, err := s.metrics.Counts(ctx)
	if err != nil {
		log.Warnf("[stats] collect metrics: %v", err)
	}
	st.Dispatched = counts
	return st
}

func (s *Service) reportStats() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	st := s.Stats(ctx)

	keys := lo.Keys(st.Dispatched)
	slices.Sort(keys)
	parts := lo.Map(keys, func(k string, _ int) string {
		return fmt.Sprintf("%s=%d", k, st.Dispatched[k])
	})
	total := lo.Sum(lo.Values(st.Dispatched))
	log.Infof("[stats] conns=%d players=%d rooms=%d pool.running=%d dispatched=%d [%s]",
		st.Connections, st.Players, st.Rooms, st.PoolRunning, total, strings.Join(parts, " "))
}
