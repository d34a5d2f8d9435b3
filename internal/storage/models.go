package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// TriggerRecord captures one fired threshold for auditing. The shared JSON
// documents stay authoritative for trigger state; this trail only answers
// "what fired when" after the fact.
type TriggerRecord struct {
	ID             int64
	Side           string
	ThresholdPrice decimal.Decimal
	ObservedPrice  decimal.Decimal
	ResetMinutes   int
	Channels       []string
	FiredAt        time.Time
	CreatedAt      time.Time
}
