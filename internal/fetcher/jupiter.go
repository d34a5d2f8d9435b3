package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const quotePath = "/quote"

// Both USDC and the monitored tokens carry 6 decimals on-venue.
var dec1e6 = decimal.NewFromInt(1_000_000)

// JupiterOptions parameterise the quote fetcher.
type JupiterOptions struct {
	BaseURL     string
	InputMint   string
	OutputMint  string
	SlippagePct int
	Timeout     time.Duration
	UserAgent   string
}

// Jupiter fetches swap quotes from the Jupiter v6 quote API.
type Jupiter struct {
	opts    JupiterOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewJupiter constructs a quote fetcher.
func NewJupiter(opts JupiterOptions, logger zerolog.Logger) *Jupiter {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://quote-api.jup.ag/v6"
	}

	slippage := opts.SlippagePct
	if slippage <= 0 {
		slippage = 1
	}
	opts.SlippagePct = slippage

	return &Jupiter{
		opts:    opts,
		logger:  logger.With().Str("component", "jupiter_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchPrices quotes USDC→token for the notional, then the reverse leg for
// the tokens received. Buy price is usd/tokenReceived; sell price is
// usdcReturned/tokenReceived. A failed reverse leg still yields the buy side.
func (j *Jupiter) FetchPrices(ctx context.Context, usdAmount decimal.Decimal) (Prices, error) {
	if j.opts.InputMint == "" || j.opts.OutputMint == "" {
		return Prices{}, errors.New("input and output mints required")
	}
	if !usdAmount.IsPositive() {
		return Prices{}, errors.New("usd amount must be greater than zero")
	}

	usdcLamports := usdAmount.Mul(dec1e6).Round(0)
	tokenOut, err := j.quoteOut(ctx, j.opts.InputMint, j.opts.OutputMint, usdcLamports)
	if err != nil {
		return Prices{}, fmt.Errorf("quote usdc→token: %w", err)
	}

	tokenReceived := tokenOut.Div(dec1e6)
	if !tokenReceived.IsPositive() {
		return Prices{}, errors.New("quote returned zero token amount")
	}

	prices := Prices{
		TokenReceived: tokenReceived,
		Buy:           usdAmount.Div(tokenReceived),
	}

	usdcOut, err := j.quoteOut(ctx, j.opts.OutputMint, j.opts.InputMint, tokenReceived.Mul(dec1e6).Round(0))
	if err != nil {
		j.logger.Warn().Err(err).Msg("reverse quote failed, sell price unavailable")
		return prices, nil
	}

	usdcReturned := usdcOut.Div(dec1e6)
	if usdcReturned.IsPositive() {
		prices.USDCReturned = usdcReturned
		prices.Sell = usdcReturned.Div(tokenReceived)
	}

	return prices, nil
}

// quoteOut returns the raw outAmount (base units) for one swap direction.
func (j *Jupiter) quoteOut(ctx context.Context, inputMint, outputMint string, amount decimal.Decimal) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", amount.StringFixed(0))
	params.Set("slippage", fmt.Sprintf("%d", j.opts.SlippagePct))

	endpoint := j.baseURL + quotePath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(j.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, parseQuoteError(resp.StatusCode, payload)
	}

	var quoteRes quoteResponse
	if err := json.Unmarshal(payload, &quoteRes); err != nil {
		return decimal.Decimal{}, err
	}
	if quoteRes.OutAmount == "" {
		return decimal.Decimal{}, errors.New("quote response missing outAmount")
	}

	out, err := decimal.NewFromString(quoteRes.OutAmount)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse outAmount: %w", err)
	}
	return out, nil
}

type quoteResponse struct {
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
}

type quoteErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

func parseQuoteError(status int, payload []byte) error {
	var apiErr quoteErrorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Error != "" {
			return fmt.Errorf("jupiter api error (%d): %s", status, apiErr.Error)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("jupiter api error (%d): %s", status, apiErr.Message)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("jupiter api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("jupiter api error (%d)", status)
}

var _ QuoteFetcher = (*Jupiter)(nil)
