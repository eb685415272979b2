// Package market turns the exchange's raw market payload into the strongly
// typed Market record every downstream component consumes. No code outside
// this package inspects exchange.RawMarket.
package market

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"predictcore/pkg/exchange"
)

// Asset is one of the four tracked 15-minute crypto underlyings, or Other
// for a generic binary market with no specialized strategy.
type Asset string

const (
	AssetBTC   Asset = "BTC"
	AssetETH   Asset = "ETH"
	AssetSOL   Asset = "SOL"
	AssetXRP   Asset = "XRP"
	AssetOther Asset = "OTHER"
)

var trackedAssets = []Asset{AssetBTC, AssetETH, AssetSOL, AssetXRP}

// fifteenMinWindow is the exact lifetime a market must have to be classified
// as a 15-minute crypto market.
const fifteenMinWindow = 15 * time.Minute

// tradeableGracePeriod is how far before close a market stops being
// tradeable for new entries.
const tradeableGracePeriod = 2 * time.Minute

var minPrice = decimal.NewFromFloat(0.01)
var maxPrice = decimal.NewFromFloat(0.99)

var assetQuestionPattern = regexp.MustCompile(`(?i)\b(BTC|BITCOIN|ETH|ETHEREUM|SOL|SOLANA|XRP|RIPPLE)\b`)

// Market is the validated, classified view of one exchange market within a
// single scan tick. It is immutable and replaced tick-to-tick.
type Market struct {
	ID            string
	Asset         Asset
	Question      string
	UpTokenID     string
	DownTokenID   string
	UpPrice       decimal.Decimal
	DownPrice     decimal.Decimal
	Liquidity     decimal.Decimal
	OpenTime      time.Time
	CloseTime     time.Time
	Is15MinCrypto bool
}

// ErrUntradeable marks a raw market that failed validation; callers drop it
// and continue rather than treating it as a fatal error.
var ErrUntradeable = fmt.Errorf("market: untradeable")

// Parse validates and classifies a raw exchange market record. It rejects
// closed markets, markets not accepting orders, missing token ids, or
// prices outside (0.01, 0.99).
func Parse(raw exchange.RawMarket, now time.Time) (*Market, error) {
	if raw.Closed || !raw.AcceptingOrders {
		return nil, ErrUntradeable
	}
	if strings.TrimSpace(raw.UpTokenID) == "" || strings.TrimSpace(raw.DownTokenID) == "" {
		return nil, ErrUntradeable
	}
	if !priceInRange(raw.UpPrice) || !priceInRange(raw.DownPrice) {
		return nil, ErrUntradeable
	}

	m := &Market{
		ID:          raw.ID,
		Question:    raw.Question,
		UpTokenID:   raw.UpTokenID,
		DownTokenID: raw.DownTokenID,
		UpPrice:     raw.UpPrice,
		DownPrice:   raw.DownPrice,
		Liquidity:   raw.Liquidity,
		OpenTime:    raw.OpenTime,
		CloseTime:   raw.CloseTime,
	}
	m.Asset = classifyAsset(raw.Question)
	m.Is15MinCrypto = m.Asset != AssetOther && isFifteenMinuteWindow(raw.OpenTime, raw.CloseTime)
	if !m.Is15MinCrypto {
		m.Asset = AssetOther
	}
	return m, nil
}

func priceInRange(p decimal.Decimal) bool {
	return p.GreaterThan(minPrice) && p.LessThan(maxPrice)
}

// IsTradeable reports whether new entries may still be placed, i.e. there is
// more than the grace period remaining before close.
func (m *Market) IsTradeable(now time.Time) bool {
	if m == nil {
		return false
	}
	return now.Before(m.CloseTime.Add(-tradeableGracePeriod))
}

// TimeToClose returns the remaining duration until the market closes.
func (m *Market) TimeToClose(now time.Time) time.Duration {
	return m.CloseTime.Sub(now)
}

func classifyAsset(question string) Asset {
	match := assetQuestionPattern.FindString(question)
	switch strings.ToUpper(match) {
	case "BTC", "BITCOIN":
		return AssetBTC
	case "ETH", "ETHEREUM":
		return AssetETH
	case "SOL", "SOLANA":
		return AssetSOL
	case "XRP", "RIPPLE":
		return AssetXRP
	default:
		return AssetOther
	}
}

func isFifteenMinuteWindow(open, close time.Time) bool {
	if open.IsZero() || close.IsZero() {
		return false
	}
	return close.Sub(open) == fifteenMinWindow
}

// TrackedAssets returns the four assets that specialized strategies run
// against.
func TrackedAssets() []Asset {
	out := make([]Asset, len(trackedAssets))
	copy(out, trackedAssets)
	return out
}
