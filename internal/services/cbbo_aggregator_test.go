package services

import (
	"context"
	"testing"

	"github.com/irfndi/celebrum-arbwatch/internal/metrics"
	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/irfndi/celebrum-arbwatch/internal/utils"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCBBOAggregator_GetConsolidatedView(t *testing.T) {
	gw := newFakeGateway()
	gw.setQuote("a", "BTC-USDT", 100, 101)
	gw.setQuote("b", "BTC-USDT", 100.5, 100.8)
	gw.setQuote("c", "BTC-USDT", 99, 102)
	agg := NewCBBOAggregator(gw, []string{"a", "b", "c"}, nil, testLogger())

	view, err := agg.GetConsolidatedView(context.Background(), "BTC-USDT", []string{"a", "b", "c"})
	require.NoError(t, err)
	require.NotNil(t, view)

	assert.Equal(t, "BTC-USDT", view.Symbol)
	assert.Equal(t, 100.5, view.CBBOBidPrice)
	assert.Equal(t, "b", view.CBBOBidExchange)
	assert.Equal(t, 100.8, view.CBBOAskPrice)
	assert.Equal(t, "b", view.CBBOAskExchange)
	assert.Len(t, view.ExchangesData, 3)
	assert.InDelta(t, 0.3, view.Spread(), 1e-9)
	assert.InDelta(t, 100.65, view.MidPrice(), 1e-9)

	assert.Equal(t, 3, agg.LatestDataCount())
	assert.Equal(t, 1, agg.ConsolidatedViewsCount())
	assert.False(t, agg.LastUpdate().IsZero())
}

func TestCBBOAggregator_NoData(t *testing.T) {
	gw := newFakeGateway()
	gw.setError("a", "BTC-USDT", transportErr("a"))
	agg := NewCBBOAggregator(gw, []string{"a", "b"}, nil, testLogger())

	view, err := agg.GetConsolidatedView(context.Background(), "BTC-USDT", []string{"a", "b"})
	require.NoError(t, err)
	assert.Nil(t, view)
	assert.Equal(t, 0, agg.ConsolidatedViewsCount())
}

func TestCBBOAggregator_InvalidInput(t *testing.T) {
	agg := NewCBBOAggregator(newFakeGateway(), nil, nil, testLogger())

	_, err := agg.GetConsolidatedView(context.Background(), "", []string{"a"})
	assert.True(t, utils.IsValidationError(err))

	_, err = agg.GetConsolidatedView(context.Background(), "BTC-USDT", []string{" "})
	assert.True(t, utils.IsValidationError(err))
}

func TestCBBOAggregator_GetCBBOUsesCache(t *testing.T) {
	gw := newFakeGateway()
	gw.setQuote("a", "ETH-USDT", 2000, 2001)
	agg := NewCBBOAggregator(gw, []string{"a"}, nil, testLogger())

	first, err := agg.GetCBBO(context.Background(), "ETH-USDT")
	require.NoError(t, err)
	require.NotNil(t, first)
	calls := gw.callCount()

	second, err := agg.GetCBBO(context.Background(), "eth-usdt")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, calls, gw.callCount())
}

func TestCBBOAggregator_ReplacesPreviousView(t *testing.T) {
	gw := newFakeGateway()
	gw.setQuote("a", "BTC-USDT", 100, 101)
	agg := NewCBBOAggregator(gw, []string{"a"}, nil, testLogger())

	_, err := agg.GetConsolidatedView(context.Background(), "BTC-USDT", []string{"a"})
	require.NoError(t, err)

	gw.setQuote("a", "BTC-USDT", 105, 106)
	_, err = agg.GetConsolidatedView(context.Background(), "BTC-USDT", []string{"a"})
	require.NoError(t, err)

	view, ok := agg.CachedView("BTC-USDT")
	require.True(t, ok)
	assert.Equal(t, 105.0, view.CBBOBidPrice)
	assert.Len(t, agg.ConsolidatedViews(), 1)
}

func TestCBBOAggregator_RecordsSpreadMetric(t *testing.T) {
	gw := newFakeGateway()
	gw.setQuote("a", "BTC-USDT", 100, 102)
	collector := metrics.NewCollector()
	agg := NewCBBOAggregator(gw, []string{"a"}, collector, testLogger())

	_, err := agg.GetConsolidatedView(context.Background(), "BTC-USDT", []string{"a"})
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(collector.Registry(), "arbwatch_cbbo_spread")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestConsolidateQuotes(t *testing.T) {
	q := func(bid, ask float64) *models.Quote {
		return &models.Quote{BidPrice: bid, AskPrice: ask}
	}

	t.Run("first exchange wins ties", func(t *testing.T) {
		view := ConsolidateQuotes("X", []string{"a", "b"}, []*models.Quote{q(100, 101), q(100, 101)})
		require.NotNil(t, view)
		assert.Equal(t, "a", view.CBBOBidExchange)
		assert.Equal(t, "a", view.CBBOAskExchange)
	})

	t.Run("invalid quotes ignored", func(t *testing.T) {
		view := ConsolidateQuotes("X", []string{"a", "b", "c"}, []*models.Quote{nil, q(0, 99), q(98, 100)})
		require.NotNil(t, view)
		assert.Equal(t, "c", view.CBBOBidExchange)
		assert.Equal(t, "c", view.CBBOAskExchange)
		assert.Len(t, view.ExchangesData, 1)
	})

	t.Run("nil when nothing valid", func(t *testing.T) {
		assert.Nil(t, ConsolidateQuotes("X", []string{"a"}, []*models.Quote{nil}))
		assert.Nil(t, ConsolidateQuotes("X", nil, nil))
	})

	t.Run("bid and ask from different exchanges", func(t *testing.T) {
		view := ConsolidateQuotes("X", []string{"a", "b"}, []*models.Quote{q(101, 103), q(99, 100)})
		require.NotNil(t, view)
		assert.Equal(t, "a", view.CBBOBidExchange)
		assert.Equal(t, "b", view.CBBOAskExchange)
		assert.Negative(t, view.Spread())
	})
}
