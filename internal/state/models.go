package state

import (
	"sort"
	"time"

	"jupwatcher/internal/ledger"
)

// MaxPriceSamples bounds the recent-price buffer; oldest samples are evicted
// first.
const MaxPriceSamples = 100

// ConfigDocument is the persisted threshold registry, edited only through
// the control surface and re-read by the monitor at the top of every cycle.
type ConfigDocument struct {
	USDAmount         float64   `json:"usd_amount"`
	BuyAlerts         []float64 `json:"buy_alerts"`
	SellAlerts        []float64 `json:"sell_alerts"`
	AlertResetMinutes int       `json:"alert_reset_minutes"`
}

// PriceSample is one observation in the recent-price buffer. Prices are
// pointers because either leg of the round-trip quote can fail independently.
type PriceSample struct {
	Timestamp string   `json:"timestamp"`
	BuyPrice  *float64 `json:"buy_price"`
	SellPrice *float64 `json:"sell_price"`
}

// StatusDocument is the shared status/state projection both processes read
// and rewrite in full. Ledger timestamps are ISO strings on disk; use
// ParseLedger/FormatLedger at the boundary.
type StatusDocument struct {
	Timestamp         string            `json:"timestamp"`
	USDAmount         float64           `json:"usd_amount"`
	PricePerTokenBuy  *float64          `json:"price_per_token_buy"`
	PricePerTokenSell *float64          `json:"price_per_token_sell"`
	TokenReceived     *float64          `json:"token_received"`
	USDCReturned      *float64          `json:"usdc_returned"`
	BuyAlerts         []float64         `json:"buy_alerts"`
	SellAlerts        []float64         `json:"sell_alerts"`
	LatestPrices      []PriceSample     `json:"latest_prices"`
	LastTriggeredBuy  map[string]string `json:"last_triggered_buy"`
	LastTriggeredSell map[string]string `json:"last_triggered_sell"`
	AlertResetMinutes int               `json:"alert_reset_minutes"`
}

// ContractAlert is one entry of the multi-asset alert document.
type ContractAlert struct {
	ID        string  `json:"id"`
	Contract  string  `json:"contract"`
	Ticker    string  `json:"ticker"`
	Pair      string  `json:"pair"`
	Type      string  `json:"type"`
	Condition string  `json:"condition"`
	Value     float64 `json:"value"`
	GuildID   string  `json:"guild_id"`
	ChannelID string  `json:"channel_id"`
}

// SameTarget reports identity for duplicate rejection: two alerts on the same
// contract, pair, metric, comparator, and value are the same alert.
func (a ContractAlert) SameTarget(b ContractAlert) bool {
	return a.Contract == b.Contract &&
		a.Pair == b.Pair &&
		a.Type == b.Type &&
		a.Condition == b.Condition &&
		a.Value == b.Value
}

// NormalizeAlerts deduplicates and sorts a threshold list ascending.
func NormalizeAlerts(values []float64) []float64 {
	seen := make(map[float64]struct{}, len(values))
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}

// AppendSample pushes a sample onto the bounded buffer.
func AppendSample(buffer []PriceSample, sample PriceSample) []PriceSample {
	buffer = append(buffer, sample)
	if len(buffer) > MaxPriceSamples {
		buffer = buffer[len(buffer)-MaxPriceSamples:]
	}
	return buffer
}

// ParseLedger converts an on-disk ledger map into UTC timestamps, applying
// the naive-timestamp coercion at this single ingestion boundary. Entries
// that fail to parse are dropped rather than poisoning the ledger.
func ParseLedger(raw map[string]string) ledger.Ledger {
	out := make(ledger.Ledger, len(raw))
	for key, value := range raw {
		if value == "" {
			continue
		}
		ts, err := CoerceUTC(value)
		if err != nil {
			continue
		}
		out[key] = ts
	}
	return out
}

// FormatLedger renders a ledger back to its persisted string form.
func FormatLedger(l ledger.Ledger) map[string]string {
	out := make(map[string]string, len(l))
	for key, ts := range l {
		out[key] = ts.UTC().Format(time.RFC3339Nano)
	}
	return out
}
