package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"jupwatcher/internal/config"
	"jupwatcher/internal/fetcher"
	"jupwatcher/internal/ledger"
	"jupwatcher/internal/state"
)

// Sweeper is the background reconciler. On its own short schedule it
// re-derives, for every fired threshold, whether the cooldown has elapsed
// and the price is still past the threshold, and proactively clears such
// entries so the next poll can re-fire without waiting a full cycle.
type Sweeper struct {
	quotes  fetcher.QuoteFetcher
	store   *state.Store
	surface *SurfaceClient
	logger  zerolog.Logger

	defaults state.ConfigDocument
}

// NewSweeper constructs the reconciler.
func NewSweeper(cfg *config.Config, quotes fetcher.QuoteFetcher, store *state.Store, surface *SurfaceClient, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		quotes:  quotes,
		store:   store,
		surface: surface,
		logger:  logger.With().Str("component", "sweeper").Logger(),
		defaults: state.ConfigDocument{
			USDAmount:         cfg.Monitor.USDAmount,
			BuyAlerts:         config.ParseAlertList(cfg.Monitor.BuyAlerts),
			SellAlerts:        config.ParseAlertList(cfg.Monitor.SellAlerts),
			AlertResetMinutes: cfg.Monitor.AlertResetMinutes,
		},
	}
}

// Sweep performs one reconciliation pass. It reloads the shared documents to
// pick up control-surface edits, fetches a fresh quote of its own, and
// resets any entry that is both past its cooldown and still in condition.
// Latch-mode entries are never swept.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cfg := s.store.LoadConfig(s.defaults)
	if cfg.AlertResetMinutes <= 0 {
		return nil
	}

	status := s.store.LoadStatus()
	buyLedger := state.ParseLedger(status.LastTriggeredBuy)
	sellLedger := state.ParseLedger(status.LastTriggeredSell)
	if len(buyLedger) == 0 && len(sellLedger) == 0 {
		return nil
	}

	prices, err := s.quotes.FetchPrices(ctx, decimal.NewFromFloat(cfg.USDAmount))
	if err != nil {
		return fmt.Errorf("sweep quote fetch: %w", err)
	}

	now := time.Now().UTC()
	changed := false
	if prices.HasBuy() {
		changed = s.sweepSide(ctx, ledger.SideBuy, cfg.BuyAlerts, buyLedger, prices.Buy, cfg.AlertResetMinutes, now) || changed
	}
	if prices.HasSell() {
		changed = s.sweepSide(ctx, ledger.SideSell, cfg.SellAlerts, sellLedger, prices.Sell, cfg.AlertResetMinutes, now) || changed
	}

	if changed {
		status.LastTriggeredBuy = state.FormatLedger(buyLedger)
		status.LastTriggeredSell = state.FormatLedger(sellLedger)
		if err := s.store.SaveStatus(status); err != nil {
			return fmt.Errorf("persist swept status: %w", err)
		}
	}
	return nil
}

func (s *Sweeper) sweepSide(ctx context.Context, side ledger.Side, thresholds []float64, led ledger.Ledger, observed decimal.Decimal, resetMinutes int, now time.Time) bool {
	cooldown := time.Duration(resetMinutes) * time.Minute
	changed := false

	for _, threshold := range thresholds {
		key := ledger.Key(threshold)
		firedAt, exists := led[key]
		if !exists {
			continue
		}
		if now.Sub(firedAt.UTC()) < cooldown {
			continue
		}
		if !ledger.InCondition(side, observed, decimal.NewFromFloat(threshold)) {
			continue
		}

		s.logger.Info().
			Str("side", string(side)).
			Str("key", key).
			Msg("cooldown expired while in condition, auto-resetting")

		// Reset through the surface first so its ledger copy converges; a
		// dead surface must not stop the local re-arm.
		if s.surface != nil {
			if err := s.surface.ResetAlert(ctx, side, threshold); err != nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("surface reset failed")
			}
		}

		delete(led, key)
		changed = true
	}
	return changed
}
