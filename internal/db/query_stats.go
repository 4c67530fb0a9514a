package db

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// queryWindow bounds the samples kept per sqlc query.
const queryWindow = 512

// QueryStat summarizes recent executions of one named sqlc query.
type QueryStat struct {
	Name   string
	Calls  int
	Errors int
	P50    time.Duration
	P95    time.Duration
	Max    time.Duration
}

// ring holds the most recent durations for a query, overwriting the oldest.
type ring struct {
	durations [queryWindow]time.Duration
	next      int
	filled    int
	errors    int
}

func (r *ring) push(d time.Duration, failed bool) {
	r.durations[r.next] = d
	r.next = (r.next + 1) % queryWindow
	if r.filled < queryWindow {
		r.filled++
	}
	if failed {
		r.errors++
	}
}

type queryStats struct {
	mu      sync.Mutex
	byQuery map[string]*ring
}

func newQueryStats() *queryStats {
	return &queryStats{byQuery: make(map[string]*ring)}
}

func (s *queryStats) record(name string, d time.Duration, err error) {
	if s == nil {
		return
	}
	if name = strings.TrimSpace(name); name == "" {
		name = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byQuery[name]
	if !ok {
		r = &ring{}
		s.byQuery[name] = r
	}
	r.push(d, err != nil)
}

// slowest returns per-query stats ordered by p95, slowest first.
func (s *queryStats) slowest() []QueryStat {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]QueryStat, 0, len(s.byQuery))
	for name, r := range s.byQuery {
		if r.filled == 0 {
			continue
		}
		sorted := slices.Clone(r.durations[:r.filled])
		slices.Sort(sorted)
		last := len(sorted) - 1
		out = append(out, QueryStat{
			Name:   name,
			Calls:  r.filled,
			Errors: r.errors,
			P50:    sorted[last/2],
			P95:    sorted[int(float64(last)*0.95)],
			Max:    sorted[last],
		})
	}
	slices.SortFunc(out, func(a, b QueryStat) int {
		if a.P95 != b.P95 {
			if a.P95 > b.P95 {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// SlowQueries reports at most limit queries with the highest p95 latency.
// A limit of zero or less returns every tracked query.
func (c *Database) SlowQueries(limit int) []QueryStat {
	if c == nil {
		return nil
	}
	stats := c.stats.slowest()
	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	return stats
}
