package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const tokensPath = "/latest/dex/tokens/"

// ErrPairNotFound indicates the contract has no pair quoted in the requested
// symbol.
var ErrPairNotFound = errors.New("pair not found for contract")

// DexscreenerOptions parameterise the contract value fetcher.
type DexscreenerOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Dexscreener resolves contract alert values from the Dexscreener token API.
type Dexscreener struct {
	opts    DexscreenerOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewDexscreener constructs a contract value fetcher.
func NewDexscreener(opts DexscreenerOptions, logger zerolog.Logger) *Dexscreener {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.dexscreener.com"
	}

	return &Dexscreener{
		opts:    opts,
		logger:  logger.With().Str("component", "dexscreener_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// TokenInfo returns the contract's base ticker and the quote symbols it
// trades against.
func (d *Dexscreener) TokenInfo(ctx context.Context, contract string) (TokenInfo, error) {
	pairs, err := d.fetchPairs(ctx, contract)
	if err != nil {
		return TokenInfo{}, err
	}
	if len(pairs) == 0 {
		return TokenInfo{}, fmt.Errorf("no pairs found for contract %s", contract)
	}

	seen := make(map[string]struct{})
	symbols := make([]string, 0)
	for _, pair := range pairs {
		symbol := pair.QuoteToken.Symbol
		if symbol == "" {
			continue
		}
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	return TokenInfo{Ticker: pairs[0].BaseToken.Symbol, Pairs: symbols}, nil
}

// PairValue resolves the current value for a contract alert: pair price
// (USD or native depending on the quote symbol) or fully diluted market cap.
func (d *Dexscreener) PairValue(ctx context.Context, contract, quoteSymbol, metric string) (decimal.Decimal, error) {
	pairs, err := d.fetchPairs(ctx, contract)
	if err != nil {
		return decimal.Decimal{}, err
	}

	for _, pair := range pairs {
		if pair.QuoteToken.Symbol != quoteSymbol {
			continue
		}
		switch metric {
		case "price":
			raw := pair.PriceNative
			if quoteSymbol == "USD" {
				raw = pair.PriceUSD
			}
			if raw == "" {
				return decimal.Decimal{}, fmt.Errorf("pair %s/%s has no price", contract, quoteSymbol)
			}
			value, err := decimal.NewFromString(raw)
			if err != nil {
				return decimal.Decimal{}, fmt.Errorf("parse price: %w", err)
			}
			return value, nil
		case "marketcap":
			return decimal.NewFromFloat(pair.FDV), nil
		default:
			return decimal.Decimal{}, fmt.Errorf("unknown metric %q", metric)
		}
	}

	return decimal.Decimal{}, ErrPairNotFound
}

func (d *Dexscreener) fetchPairs(ctx context.Context, contract string) ([]dexPair, error) {
	endpoint := d.baseURL + tokensPath + contract
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(d.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dexscreener api error (%d)", resp.StatusCode)
	}

	var tokenRes tokenResponse
	if err := json.Unmarshal(payload, &tokenRes); err != nil {
		return nil, err
	}
	return tokenRes.Pairs, nil
}

type tokenResponse struct {
	Pairs []dexPair `json:"pairs"`
}

type dexPair struct {
	BaseToken struct {
		Symbol string `json:"symbol"`
	} `json:"baseToken"`
	QuoteToken struct {
		Symbol string `json:"symbol"`
	} `json:"quoteToken"`
	PriceNative string  `json:"priceNative"`
	PriceUSD    string  `json:"priceUsd"`
	FDV         float64 `json:"fdv"`
}

var _ ContractValueFetcher = (*Dexscreener)(nil)
