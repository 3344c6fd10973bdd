package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// OpportunitiesKey is the sorted set holding recorded opportunities.
const OpportunitiesKey = "arbwatch:opportunities"

// RedisOpportunityLog records opportunities in a sorted set scored by their
// detection time in unix seconds.
type RedisOpportunityLog struct {
	client *redis.Client
	key    string
	logger *logrus.Logger
}

// NewRedisOpportunityLog creates a log on the default key.
func NewRedisOpportunityLog(client *redis.Client, logger *logrus.Logger) *RedisOpportunityLog {
	return &RedisOpportunityLog{client: client, key: OpportunitiesKey, logger: logger}
}

// Append adds opp to the set. Each record gets a fresh id so identical
// opportunities detected at the same second stay distinct members.
func (l *RedisOpportunityLog) Append(ctx context.Context, opp models.ArbitrageOpportunity) error {
	if opp.ID == "" {
		opp.ID = uuid.NewString()
	}
	opp.Timestamp = opp.Timestamp.UTC()

	member, err := json.Marshal(opp)
	if err != nil {
		return fmt.Errorf("failed to encode opportunity: %w", err)
	}

	err = l.client.ZAdd(ctx, l.key, redis.Z{Score: unixScore(opp.Timestamp), Member: member}).Err()
	if err != nil {
		return fmt.Errorf("failed to record opportunity in redis: %w", err)
	}
	return nil
}

// Range returns records scored within [start, end], oldest first. Members
// that fail to decode are skipped and logged.
func (l *RedisOpportunityLog) Range(ctx context.Context, symbol string, start, end time.Time) ([]models.ArbitrageOpportunity, error) {
	members, err := l.client.ZRangeByScore(ctx, l.key, &redis.ZRangeBy{
		Min: formatScore(unixScore(start)),
		Max: formatScore(unixScore(end)),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read opportunities from redis: %w", err)
	}

	out := make([]models.ArbitrageOpportunity, 0, len(members))
	for _, member := range members {
		var opp models.ArbitrageOpportunity
		if err := json.Unmarshal([]byte(member), &opp); err != nil {
			l.logger.WithError(err).Warn("Skipping undecodable opportunity record")
			continue
		}
		if symbol != "" && opp.Symbol != symbol {
			continue
		}
		out = append(out, opp)
	}
	return out, nil
}

// Prune removes records scored before cutoff.
func (l *RedisOpportunityLog) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	removed, err := l.client.ZRemRangeByScore(ctx, l.key, "-inf", "("+formatScore(unixScore(cutoff))).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to prune opportunities in redis: %w", err)
	}
	return removed, nil
}

// unixScore keeps millisecond precision in the fractional part.
func unixScore(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}
