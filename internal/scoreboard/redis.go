package scoreboard

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is the Store implementation backed by Redis, for deployments running
// multiple server instances that should share relay observations.
type Redis struct {
	client *redis.Client
	prefix string
}

// redisStats is the JSON document stored per relay
type redisStats struct {
	AvgResponseTimeMs int64 `json:"avg_ms"`
	ResponseCount     int   `json:"count"`
	LastResponse      int64 `json:"last"`
	FailureCount      int   `json:"failures"`
	BackoffUntil      int64 `json:"backoff_until"`
}

// redisStatsTTL keeps observations for an hour; stale relays fall back to
// the neutral score.
const redisStatsTTL = 1 * time.Hour

// NewRedis creates a Redis-backed scoreboard using the given key prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) getStats(relayURL string) *redisStats {
	data, err := r.client.Get(context.Background(), r.prefix+relayURL).Bytes()
	if err != nil {
		return &redisStats{}
	}

	var stats redisStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return &redisStats{}
	}
	return &stats
}

func (r *Redis) setStats(relayURL string, stats *redisStats) {
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	r.client.Set(context.Background(), r.prefix+relayURL, data, redisStatsTTL)
}

// RecordSuccess implements Store.
func (r *Redis) RecordSuccess(relayURL string, responseTime time.Duration) {
	stats := r.getStats(relayURL)
	stats.FailureCount = 0
	stats.BackoffUntil = 0

	durationMs := responseTime.Milliseconds()
	if stats.ResponseCount == 0 {
		stats.AvgResponseTimeMs = durationMs
	} else {
		alpha := 0.3
		stats.AvgResponseTimeMs = int64(alpha*float64(durationMs) + (1-alpha)*float64(stats.AvgResponseTimeMs))
	}
	stats.ResponseCount++
	stats.LastResponse = time.Now().Unix()

	r.setStats(relayURL, stats)
}

// RecordFailure implements Store.
func (r *Redis) RecordFailure(relayURL string) {
	stats := r.getStats(relayURL)
	stats.FailureCount++

	var backoff time.Duration
	switch stats.FailureCount {
	case 1:
		backoff = 1 * time.Minute
	case 2:
		backoff = 2 * time.Minute
	default:
		backoff = 5 * time.Minute
	}
	stats.BackoffUntil = time.Now().Add(backoff).Unix()

	r.setStats(relayURL, stats)
}

func (r *Redis) score(relayURL string) int {
	stats := r.getStats(relayURL)
	score := 50

	if stats.ResponseCount > 0 {
		switch {
		case stats.AvgResponseTimeMs < 200:
			score = 50
		case stats.AvgResponseTimeMs < 500:
			score = 40
		case stats.AvgResponseTimeMs < 1000:
			score = 25
		default:
			score = 10
		}

		bonus := stats.ResponseCount
		if bonus > 10 {
			bonus = 10
		}
		score += bonus
	}

	penalty := stats.FailureCount * 10
	if penalty > 30 {
		penalty = 30
	}
	score -= penalty

	if stats.BackoffUntil > 0 && time.Now().Unix() < stats.BackoffUntil {
		score -= 20
	}

	return clampScore(score)
}

// Rank implements Store.
func (r *Redis) Rank(relays []string) []string {
	return rankByScore(relays, r.score)
}
