package services

import (
	"context"
	"errors"
	"strings"

	"github.com/irfndi/celebrum-arbwatch/internal/marketdata"
	"github.com/irfndi/celebrum-arbwatch/internal/models"
	"github.com/irfndi/celebrum-arbwatch/internal/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// quoteBatch holds one fetch result per requested exchange, in request order.
type quoteBatch struct {
	exchanges []string
	quotes    []*models.Quote
	failures  int
}

// valid returns the number of exchanges that produced a usable quote.
func (b quoteBatch) valid() int {
	n := 0
	for _, q := range b.quotes {
		if q.IsValid() {
			n++
		}
	}
	return n
}

// fetchQuotes issues one gateway call per exchange concurrently. Failures are
// logged and leave a nil slot; the batch is never aborted by one exchange.
func fetchQuotes(ctx context.Context, gateway marketdata.Gateway, logger *logrus.Logger, symbol string, exchanges []string) quoteBatch {
	batch := quoteBatch{
		exchanges: exchanges,
		quotes:    make([]*models.Quote, len(exchanges)),
	}
	failed := make([]bool, len(exchanges))

	var g errgroup.Group
	for i, exchange := range exchanges {
		g.Go(func() error {
			quote, err := gateway.GetL1MarketData(ctx, exchange, symbol)
			fields := logrus.Fields{"exchange": exchange, "symbol": symbol}
			switch {
			case err != nil:
				failed[i] = true
				if errors.Is(err, utils.ErrTransportFailure) {
					logger.WithError(err).WithFields(fields).Error("Market data request failed")
				} else {
					logger.WithError(err).WithFields(fields).Warn("Market data request rejected")
				}
			case quote == nil:
				logger.WithFields(fields).Warn("No market data available")
			case !quote.IsValid():
				logger.WithFields(fields).WithFields(logrus.Fields{
					"bid_price": quote.BidPrice,
					"ask_price": quote.AskPrice,
				}).Debug("Ignoring quote without positive bid and ask")
				quote = nil
			}
			batch.quotes[i] = quote
			return nil
		})
	}
	_ = g.Wait()

	for _, f := range failed {
		if f {
			batch.failures++
		}
	}
	return batch
}

// normalizeExchanges lowercases, trims and de-duplicates exchange names while
// preserving their order.
func normalizeExchanges(exchanges []string) []string {
	seen := make(map[string]struct{}, len(exchanges))
	out := make([]string, 0, len(exchanges))
	for _, exchange := range exchanges {
		exchange = strings.ToLower(strings.TrimSpace(exchange))
		if exchange == "" {
			continue
		}
		if _, dup := seen[exchange]; dup {
			continue
		}
		seen[exchange] = struct{}{}
		out = append(out, exchange)
	}
	return out
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
