package app

import (
	"context"
	"fmt"

	"jupwatcher/internal/ledger"
)

// Reset re-arms one fired threshold. It goes through the control surface
// first so the API process's in-memory copy stays consistent; if the surface
// is unreachable it clears the persisted ledger entry directly.
func (a *App) Reset(ctx context.Context, side ledger.Side, price float64) error {
	if !side.Valid() {
		return fmt.Errorf("invalid side %q, must be buy or sell", side)
	}

	if err := a.surfaceClient().ResetAlert(ctx, side, price); err == nil {
		a.Logger.Info().Str("side", string(side)).Float64("price", price).Msg("alert reset via control surface")
		return nil
	}
	a.Logger.Warn().Str("side", string(side)).Float64("price", price).Msg("control surface unreachable, resetting in state document")

	store, err := a.stateStore()
	if err != nil {
		return err
	}

	status := store.LoadStatus()
	key := ledger.Key(price)
	led := status.LastTriggeredBuy
	if side == ledger.SideSell {
		led = status.LastTriggeredSell
	}
	if _, ok := led[key]; !ok {
		return fmt.Errorf("no fired entry for %s threshold %s", side, key)
	}
	delete(led, key)
	if err := store.SaveStatus(status); err != nil {
		return err
	}

	a.Logger.Info().Str("side", string(side)).Str("key", key).Msg("alert reset in state document")
	return nil
}
