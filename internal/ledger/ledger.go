// Package ledger implements the alert trigger state machine: which price
// thresholds are armed, which have fired, and when a fired threshold becomes
// eligible again.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies the direction of a configured threshold.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether the side is one of the two known values.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Key formats a threshold price into its canonical 8-decimal form. Both
// processes derive threshold identity from this string, so rounding noise
// below the eighth decimal never splits one threshold into two keys.
func Key(price float64) string {
	return decimal.NewFromFloat(price).StringFixed(8)
}

// KeyFromDecimal is Key for values already held as decimals.
func KeyFromDecimal(price decimal.Decimal) string {
	return price.StringFixed(8)
}

// Ledger maps canonical price keys to the UTC instant they last fired.
// Absence of a key means armed; presence means fired, with eligibility
// governed by the reset policy.
type Ledger map[string]time.Time

// Clone returns an independent copy.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// Prune drops entries whose key is no longer a configured threshold and
// returns the removed keys. A ledger entry must never outlive its threshold.
func (l Ledger) Prune(validKeys map[string]struct{}) []string {
	removed := make([]string, 0)
	for key := range l {
		if _, ok := validKeys[key]; !ok {
			delete(l, key)
			removed = append(removed, key)
		}
	}
	return removed
}

// ClearExpired removes entries whose cooldown has elapsed and returns the
// cleared keys. With resetMinutes == 0 thresholds latch and nothing is ever
// cleared here; only an explicit reset can re-arm them.
func (l Ledger) ClearExpired(resetMinutes int, now time.Time) []string {
	if resetMinutes <= 0 {
		return nil
	}
	cooldown := time.Duration(resetMinutes) * time.Minute
	cleared := make([]string, 0)
	for key, firedAt := range l {
		if now.UTC().Sub(firedAt.UTC()) >= cooldown {
			delete(l, key)
			cleared = append(cleared, key)
		}
	}
	return cleared
}

// Evaluate decides whether the threshold behind key is eligible to fire and,
// if so, the UTC timestamp the caller should record on fire.
//
//   - No entry: eligible. This is the only path when resetMinutes == 0.
//   - Entry present, resetMinutes == 0: latched until an explicit reset.
//   - Entry present, resetMinutes > 0: eligible once the cooldown has
//     elapsed, in which case the stale entry is removed.
//
// Eligibility alone does not fire an alert; the caller must also confirm the
// threshold is in condition at the moment of decision.
func (l Ledger) Evaluate(key string, resetMinutes int, now time.Time) (bool, time.Time) {
	nowUTC := now.UTC()
	firedAt, exists := l[key]

	if resetMinutes == 0 {
		if !exists {
			return true, nowUTC
		}
		return false, time.Time{}
	}

	if !exists {
		return true, nowUTC
	}

	if nowUTC.Sub(firedAt.UTC()) >= time.Duration(resetMinutes)*time.Minute {
		delete(l, key)
		return true, nowUTC
	}

	return false, time.Time{}
}

// InCondition reports whether the observed price satisfies the threshold: a
// buy threshold triggers at or below its price, a sell threshold at or above.
func InCondition(side Side, observed, threshold decimal.Decimal) bool {
	switch side {
	case SideBuy:
		return observed.LessThanOrEqual(threshold)
	case SideSell:
		return observed.GreaterThanOrEqual(threshold)
	default:
		return false
	}
}

// ValidKeys builds the canonical key set for a threshold list.
func ValidKeys(prices []float64) map[string]struct{} {
	keys := make(map[string]struct{}, len(prices))
	for _, price := range prices {
		keys[Key(price)] = struct{}{}
	}
	return keys
}

// Condition is the comparator carried by a contract alert.
type Condition string

const (
	ConditionAbove Condition = "above"
	ConditionBelow Condition = "below"
)

// Valid reports whether the condition is a known comparator.
func (c Condition) Valid() bool {
	return c == ConditionAbove || c == ConditionBelow
}

// Satisfied reports whether the observed value meets the condition relative
// to the target. Contract alerts use strict comparison.
func (c Condition) Satisfied(observed, target decimal.Decimal) bool {
	switch c {
	case ConditionAbove:
		return observed.GreaterThan(target)
	case ConditionBelow:
		return observed.LessThan(target)
	default:
		return false
	}
}

// Metric selects which observed value a contract alert compares.
type Metric string

const (
	MetricPrice     Metric = "price"
	MetricMarketCap Metric = "marketcap"
)

// Valid reports whether the metric is a known kind.
func (m Metric) Valid() bool {
	return m == MetricPrice || m == MetricMarketCap
}
