package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"jupwatcher/internal/alerting"
	"jupwatcher/internal/config"
	"jupwatcher/internal/fetcher"
	"jupwatcher/internal/ledger"
	"jupwatcher/internal/state"
	"jupwatcher/internal/storage"
)

// Service runs the monitor's poll cycle: reload shared state, fetch quotes,
// evaluate thresholds, fire alerts, and persist.
type Service struct {
	quotes   fetcher.QuoteFetcher
	store    *state.Store
	notifier alerting.Notifier
	audit    storage.TriggerStore
	surface  *SurfaceClient
	logger   zerolog.Logger

	defaults  state.ConfigDocument
	channels  []string
	retention time.Duration
}

// New constructs the monitoring service. The audit store and surface client
// may be nil; both are best-effort side channels.
func New(cfg *config.Config, quotes fetcher.QuoteFetcher, store *state.Store, notifier alerting.Notifier, audit storage.TriggerStore, surface *SurfaceClient, logger zerolog.Logger) *Service {
	return &Service{
		quotes:   quotes,
		store:    store,
		notifier: notifier,
		audit:    audit,
		surface:  surface,
		logger:   logger.With().Str("component", "service").Logger(),
		defaults: state.ConfigDocument{
			USDAmount:         cfg.Monitor.USDAmount,
			BuyAlerts:         config.ParseAlertList(cfg.Monitor.BuyAlerts),
			SellAlerts:        config.ParseAlertList(cfg.Monitor.SellAlerts),
			AlertResetMinutes: cfg.Monitor.AlertResetMinutes,
		},
		channels:  cfg.Alerting.Channels,
		retention: cfg.Database.AuditRetention,
	}
}

// Cycle 执行单个轮询周期。 Reloads the shared documents first so edits made
// through the control surface since the last cycle take effect here.
func (s *Service) Cycle(ctx context.Context) error {
	now := time.Now().UTC()

	cfg := s.store.LoadConfig(s.defaults)
	status := s.store.LoadStatus()
	buyLedger := state.ParseLedger(status.LastTriggeredBuy)
	sellLedger := state.ParseLedger(status.LastTriggeredSell)

	// Entries must not outlive their thresholds.
	for _, key := range buyLedger.Prune(ledger.ValidKeys(cfg.BuyAlerts)) {
		s.logger.Info().Str("side", "buy").Str("key", key).Msg("pruned ledger entry for removed threshold")
	}
	for _, key := range sellLedger.Prune(ledger.ValidKeys(cfg.SellAlerts)) {
		s.logger.Info().Str("side", "sell").Str("key", key).Msg("pruned ledger entry for removed threshold")
	}

	for _, key := range buyLedger.ClearExpired(cfg.AlertResetMinutes, now) {
		s.logger.Info().Str("side", "buy").Str("key", key).Msg("cooldown expired, threshold re-armed")
	}
	for _, key := range sellLedger.ClearExpired(cfg.AlertResetMinutes, now) {
		s.logger.Info().Str("side", "sell").Str("key", key).Msg("cooldown expired, threshold re-armed")
	}

	prices, err := s.quotes.FetchPrices(ctx, decimal.NewFromFloat(cfg.USDAmount))
	if err != nil {
		// Status still gets rewritten so readers see the cycle happened with
		// no prices rather than stale ones.
		s.persistStatus(cfg, &status, buyLedger, sellLedger, fetcher.Prices{}, now)
		return fmt.Errorf("fetch quotes: %w", err)
	}

	if prices.HasBuy() {
		s.evaluateSide(ctx, ledger.SideBuy, cfg.BuyAlerts, buyLedger, sellLedger, cfg, &status, prices)
	} else {
		s.logger.Warn().Msg("buy price unavailable this cycle")
	}

	if prices.HasSell() {
		s.evaluateSide(ctx, ledger.SideSell, cfg.SellAlerts, buyLedger, sellLedger, cfg, &status, prices)
	} else {
		s.logger.Warn().Msg("sell price unavailable this cycle")
	}

	// The status rewrite must precede the sample push: the surface appends to
	// the persisted document, so a later full-document write from this stale
	// in-memory copy would erase the sample it just accepted.
	s.persistStatus(cfg, &status, buyLedger, sellLedger, prices, now)
	s.pushSample(ctx, &status, prices, now)

	s.logger.Info().
		Int("buy_cooldowns", len(buyLedger)).
		Int("sell_cooldowns", len(sellLedger)).
		Msg("cycle complete")
	return nil
}

func (s *Service) evaluateSide(ctx context.Context, side ledger.Side, thresholds []float64, buyLedger, sellLedger ledger.Ledger, cfg state.ConfigDocument, status *state.StatusDocument, prices fetcher.Prices) {
	led := buyLedger
	observed := prices.Buy
	if side == ledger.SideSell {
		led = sellLedger
		observed = prices.Sell
	}

	// Threshold lists are sorted ascending by the store, so evaluation order
	// and log output are reproducible across cycles.
	for _, threshold := range thresholds {
		key := ledger.Key(threshold)
		fire, firedAt := led.Evaluate(key, cfg.AlertResetMinutes, time.Now().UTC())
		if !fire {
			continue
		}
		// Condition is checked at the moment of decision; an expired entry
		// whose price moved away is cleared by Evaluate but never fires.
		if !ledger.InCondition(side, observed, decimal.NewFromFloat(threshold)) {
			continue
		}

		s.fire(ctx, side, threshold, observed, firedAt, cfg)
		led[key] = firedAt
		s.persistStatus(cfg, status, buyLedger, sellLedger, prices, firedAt)
	}
}

func (s *Service) fire(ctx context.Context, side ledger.Side, threshold float64, observed decimal.Decimal, firedAt time.Time, cfg state.ConfigDocument) {
	title := "Buy Price Alert"
	comparator := "≤"
	if side == ledger.SideSell {
		title = "Sell Price Alert"
		comparator = "≥"
	}
	message := fmt.Sprintf("%s price $%s is %s target $%s",
		sideLabel(side), observed.StringFixed(8), comparator, formatThreshold(threshold))

	s.logger.Info().
		Str("side", string(side)).
		Str("threshold", ledger.Key(threshold)).
		Str("observed", observed.StringFixed(8)).
		Msg("threshold fired")

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, alerting.Notification{Title: title, Message: message}); err != nil {
			s.logger.Error().Err(err).Str("side", string(side)).Msg("failed to dispatch alert")
		}
	}

	if s.surface != nil {
		if err := s.surface.RecordTrigger(ctx, side, threshold, firedAt); err != nil {
			s.logger.Warn().Err(err).Str("side", string(side)).Msg("failed to relay trigger to control surface")
		}
	}

	if s.audit != nil {
		record := storage.TriggerRecord{
			Side:           string(side),
			ThresholdPrice: decimal.NewFromFloat(threshold),
			ObservedPrice:  observed,
			ResetMinutes:   cfg.AlertResetMinutes,
			Channels:       s.channels,
			FiredAt:        firedAt,
		}
		if _, err := s.audit.InsertTrigger(ctx, record); err != nil {
			s.logger.Error().Err(err).Str("side", string(side)).Msg("failed to persist audit record")
		}
		if s.retention > 0 {
			cutoff := firedAt.Add(-s.retention)
			if err := s.audit.DeleteTriggersBefore(ctx, cutoff); err != nil {
				s.logger.Warn().Err(err).Time("cutoff", cutoff).Msg("failed to prune audit trail")
			}
		}
	}
}

// pushSample appends the cycle's observation to the bounded price buffer.
// The surface owns the append when reachable; otherwise the sample goes into
// the local copy and the status document is rewritten once more to carry it.
func (s *Service) pushSample(ctx context.Context, status *state.StatusDocument, prices fetcher.Prices, now time.Time) {
	sample := state.PriceSample{
		Timestamp: now.Format(time.RFC3339Nano),
		BuyPrice:  floatPtr(prices.Buy, prices.HasBuy()),
		SellPrice: floatPtr(prices.Sell, prices.HasSell()),
	}

	if s.surface != nil {
		err := s.surface.PushPrice(ctx, sample)
		if err == nil {
			return
		}
		s.logger.Warn().Err(err).Msg("failed to push price sample, buffering locally")
	}

	status.LatestPrices = state.AppendSample(status.LatestPrices, sample)
	if err := s.store.SaveStatus(*status); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist status document")
	}
}

func (s *Service) persistStatus(cfg state.ConfigDocument, status *state.StatusDocument, buyLedger, sellLedger ledger.Ledger, prices fetcher.Prices, now time.Time) {
	status.Timestamp = now.UTC().Format(time.RFC3339Nano)
	status.USDAmount = cfg.USDAmount
	status.BuyAlerts = cfg.BuyAlerts
	status.SellAlerts = cfg.SellAlerts
	status.AlertResetMinutes = cfg.AlertResetMinutes
	status.PricePerTokenBuy = floatPtr(prices.Buy, prices.HasBuy())
	status.PricePerTokenSell = floatPtr(prices.Sell, prices.HasSell())
	status.TokenReceived = floatPtr(prices.TokenReceived, prices.TokenReceived.IsPositive())
	status.USDCReturned = floatPtr(prices.USDCReturned, prices.USDCReturned.IsPositive())
	status.LastTriggeredBuy = state.FormatLedger(buyLedger)
	status.LastTriggeredSell = state.FormatLedger(sellLedger)

	if err := s.store.SaveStatus(*status); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist status document")
	}
}

func sideLabel(side ledger.Side) string {
	if side == ledger.SideSell {
		return "Sell"
	}
	return "Buy"
}

func formatThreshold(threshold float64) string {
	return strconv.FormatFloat(threshold, 'f', -1, 64)
}

func floatPtr(value decimal.Decimal, ok bool) *float64 {
	if !ok {
		return nil
	}
	f := value.InexactFloat64()
	return &f
}
