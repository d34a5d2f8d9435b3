package fetcher

import (
	"context"

	"github.com/shopspring/decimal"
)

// Prices is one round-trip quote observation. Either leg can be absent when
// its quote call failed; zero means absent.
type Prices struct {
	Buy           decimal.Decimal
	Sell          decimal.Decimal
	TokenReceived decimal.Decimal
	USDCReturned  decimal.Decimal
}

// HasBuy reports whether the USDC→token leg produced a usable price.
func (p Prices) HasBuy() bool { return p.Buy.IsPositive() }

// HasSell reports whether the token→USDC leg produced a usable price.
func (p Prices) HasSell() bool { return p.Sell.IsPositive() }

// QuoteFetcher retrieves round-trip pricing for the configured pair at a
// given USD notional.
type QuoteFetcher interface {
	FetchPrices(ctx context.Context, usdAmount decimal.Decimal) (Prices, error)
}

// TokenInfo describes a contract known to the screener venue.
type TokenInfo struct {
	Ticker string   `json:"ticker"`
	Pairs  []string `json:"pairs"`
}

// ContractValueFetcher resolves the observed value a contract alert compares
// against: the pair price or the fully diluted market cap.
type ContractValueFetcher interface {
	TokenInfo(ctx context.Context, contract string) (TokenInfo, error)
	PairValue(ctx context.Context, contract, quoteSymbol, metric string) (decimal.Decimal, error)
}
