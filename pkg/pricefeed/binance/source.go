// Package binance implements pricefeed.Source by polling Binance's public
// spot ticker endpoint once per asset per interval, generalized from the
// NewListPricesService polling pattern used throughout the example corpus's
// go-binance-based bots (quick one-shot ticker fetch, no streaming
// subscription needed for a single current price).
package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	binancesdk "github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"

	"predictcore/pkg/market"
	"predictcore/pkg/pricefeed"
)

// defaultPollInterval matches the 1-second per-asset granularity pricefeed's
// ring buffer retains.
const defaultPollInterval = 1 * time.Second

var usdtSymbols = map[market.Asset]string{
	market.AssetBTC: "BTCUSDT",
	market.AssetETH: "ETHUSDT",
	market.AssetSOL: "SOLUSDT",
	market.AssetXRP: "XRPUSDT",
}

// Source polls Binance's unauthenticated ticker price endpoint; no API key
// is required for public market data.
type Source struct {
	client       *binancesdk.Client
	pollInterval time.Duration
}

// NewSource constructs a polling Source. pollInterval <= 0 uses
// defaultPollInterval.
func NewSource(pollInterval time.Duration) *Source {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Source{client: binancesdk.NewClient("", ""), pollInterval: pollInterval}
}

// Subscribe implements pricefeed.Source: one polling goroutine per asset,
// publishing onto the returned channel until ctx is cancelled.
func (s *Source) Subscribe(ctx context.Context, asset market.Asset) (<-chan pricefeed.Update, error) {
	symbol, ok := usdtSymbols[asset]
	if !ok {
		return nil, fmt.Errorf("pricefeed/binance: no ticker symbol for asset %s", asset)
	}

	ch := make(chan pricefeed.Update, 1)
	go s.poll(ctx, asset, symbol, ch)
	return ch, nil
}

func (s *Source) poll(ctx context.Context, asset market.Asset, symbol string, ch chan<- pricefeed.Update) {
	defer close(ch)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			price, err := s.fetch(ctx, symbol)
			if err != nil {
				logx.WithContext(ctx).Errorf("pricefeed/binance: fetch %s: %v", symbol, err)
				continue
			}
			update := pricefeed.Update{Asset: asset, Price: price, At: time.Now()}
			select {
			case ch <- update:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Source) fetch(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := s.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("no ticker returned for %s", symbol)
	}
	f, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", prices[0].Price, err)
	}
	return decimal.NewFromFloat(f), nil
}
