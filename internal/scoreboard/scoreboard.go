// Package scoreboard tracks relay quality and ranks relay URLs by a
// composite score: response time (EWMA), observed request volume, recent
// failures, and active backoff windows. The zap pipeline consumes the
// ranking to pick which relays to advertise in a zap request.
package scoreboard

import (
	"sort"
	"sync"
	"time"
)

// Store records relay observations and ranks relays by quality.
type Store interface {
	RecordSuccess(relayURL string, responseTime time.Duration)
	RecordFailure(relayURL string)
	// Rank returns the relays ordered by descending score. Ties keep the
	// input order (stable), so the result is deterministic per call.
	Rank(relays []string) []string
}

// Memory is the in-process Store implementation.
type Memory struct {
	mu       sync.RWMutex
	stats    map[string]*relayStats
	failures map[string]*relayFailures
}

type relayStats struct {
	avgResponseTime time.Duration
	responseCount   int
	lastResponse    time.Time
}

type relayFailures struct {
	failureCount int
	backoffUntil time.Time
}

// NewMemory creates an empty in-memory scoreboard.
func NewMemory() *Memory {
	return &Memory{
		stats:    make(map[string]*relayStats),
		failures: make(map[string]*relayFailures),
	}
}

// RecordSuccess clears failure state and folds the response time into the
// exponential moving average (alpha=0.3).
func (m *Memory) RecordSuccess(relayURL string, responseTime time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.failures, relayURL)

	s := m.stats[relayURL]
	if s == nil {
		s = &relayStats{}
		m.stats[relayURL] = s
	}

	if s.responseCount == 0 {
		s.avgResponseTime = responseTime
	} else {
		alpha := 0.3
		s.avgResponseTime = time.Duration(alpha*float64(responseTime) + (1-alpha)*float64(s.avgResponseTime))
	}
	s.responseCount++
	s.lastResponse = time.Now()
}

// RecordFailure increments the failure count and extends the backoff window
// (1m, 2m, then 5m).
func (m *Memory) RecordFailure(relayURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f := m.failures[relayURL]
	if f == nil {
		f = &relayFailures{}
		m.failures[relayURL] = f
	}
	f.failureCount++

	var backoff time.Duration
	switch f.failureCount {
	case 1:
		backoff = 1 * time.Minute
	case 2:
		backoff = 2 * time.Minute
	default:
		backoff = 5 * time.Minute
	}
	f.backoffUntil = time.Now().Add(backoff)
}

func (m *Memory) score(relayURL string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	score := 50

	if s := m.stats[relayURL]; s != nil && s.responseCount > 0 {
		avgMs := s.avgResponseTime.Milliseconds()
		switch {
		case avgMs < 200:
			score = 50
		case avgMs < 500:
			score = 40
		case avgMs < 1000:
			score = 25
		default:
			score = 10
		}

		bonus := s.responseCount
		if bonus > 10 {
			bonus = 10
		}
		score += bonus
	}

	if f := m.failures[relayURL]; f != nil {
		penalty := f.failureCount * 10
		if penalty > 30 {
			penalty = 30
		}
		score -= penalty

		if time.Now().Before(f.backoffUntil) {
			score -= 20
		}
	}

	return clampScore(score)
}

// Rank implements Store.
func (m *Memory) Rank(relays []string) []string {
	return rankByScore(relays, m.score)
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func rankByScore(relays []string, score func(string) int) []string {
	if len(relays) <= 1 {
		return relays
	}

	scores := make(map[string]int, len(relays))
	for _, relay := range relays {
		scores[relay] = score(relay)
	}

	sorted := make([]string, len(relays))
	copy(sorted, relays)

	sort.SliceStable(sorted, func(i, j int) bool {
		return scores[sorted[i]] > scores[sorted[j]]
	})

	return sorted
}
