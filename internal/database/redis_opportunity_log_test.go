package database

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisOpportunityLog_AppendAndRange(t *testing.T) {
	mr, client := setupTestRedis(t)
	log := NewRedisOpportunityLog(client, testLogger())
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	eth := sampleOpportunity(base.Add(-2 * time.Hour))
	eth.Symbol = "ETH-USDT"

	require.NoError(t, log.Append(ctx, sampleOpportunity(base.Add(-time.Hour))))
	require.NoError(t, log.Append(ctx, eth))
	require.NoError(t, log.Append(ctx, sampleOpportunity(base.Add(-30*time.Hour))))
	require.NoError(t, log.Append(ctx, sampleOpportunity(base.Add(-time.Hour))), "duplicates stay distinct")

	members, err := mr.ZMembers(OpportunitiesKey)
	require.NoError(t, err)
	assert.Len(t, members, 4)

	records, err := log.Range(ctx, "", base.Add(-24*time.Hour), base)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "ETH-USDT", records[0].Symbol, "oldest first")
	assert.NotEmpty(t, records[0].ID)

	btc, err := log.Range(ctx, "BTC-USDT", base.Add(-24*time.Hour), base)
	require.NoError(t, err)
	assert.Len(t, btc, 2)
}

func TestRedisOpportunityLog_RangeSkipsCorruptMembers(t *testing.T) {
	_, client := setupTestRedis(t)
	log := NewRedisOpportunityLog(client, testLogger())
	ctx := context.Background()

	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, client.ZAdd(ctx, OpportunitiesKey, redis.Z{Score: unixScore(ts), Member: "not-json"}).Err())
	require.NoError(t, log.Append(ctx, sampleOpportunity(ts)))

	records, err := log.Range(ctx, "", ts.Add(-time.Minute), ts.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRedisOpportunityLog_Prune(t *testing.T) {
	_, client := setupTestRedis(t)
	log := NewRedisOpportunityLog(client, testLogger())
	ctx := context.Background()

	cutoff := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, log.Append(ctx, sampleOpportunity(cutoff.Add(-time.Hour))))
	require.NoError(t, log.Append(ctx, sampleOpportunity(cutoff)))
	require.NoError(t, log.Append(ctx, sampleOpportunity(cutoff.Add(time.Hour))))

	removed, err := log.Prune(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	records, err := log.Range(ctx, "", cutoff.Add(-48*time.Hour), cutoff.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRedisOpportunityLog_Unavailable(t *testing.T) {
	mr, client := setupTestRedis(t)
	log := NewRedisOpportunityLog(client, testLogger())
	mr.Close()

	err := log.Append(context.Background(), sampleOpportunity(time.Now()))
	assert.Error(t, err)
}
