package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"jupwatcher/internal/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestConfigRoundTrip(t *testing.T) {
	store := newTestStore(t)

	doc := ConfigDocument{
		USDAmount:         250,
		BuyAlerts:         []float64{2.0, 1.0, 2.0},
		SellAlerts:        []float64{3.5},
		AlertResetMinutes: 15,
	}
	if err := store.SaveConfig(doc); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded := store.LoadConfig(ConfigDocument{USDAmount: 100})
	if loaded.USDAmount != 250 {
		t.Fatalf("usd_amount = %v, want 250", loaded.USDAmount)
	}
	if len(loaded.BuyAlerts) != 2 || loaded.BuyAlerts[0] != 1.0 || loaded.BuyAlerts[1] != 2.0 {
		t.Fatalf("buy alerts not normalised: %v", loaded.BuyAlerts)
	}
	if loaded.AlertResetMinutes != 15 {
		t.Fatalf("alert_reset_minutes = %d, want 15", loaded.AlertResetMinutes)
	}
}

func TestLoadConfigFallsBackOnCorruptJSON(t *testing.T) {
	store := newTestStore(t)
	if err := os.WriteFile(filepath.Join(store.Dir(), "config.json"), []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	defaults := ConfigDocument{USDAmount: 100, AlertResetMinutes: 5}
	loaded := store.LoadConfig(defaults)
	if loaded.USDAmount != 100 || loaded.AlertResetMinutes != 5 {
		t.Fatalf("expected defaults on corrupt document, got %+v", loaded)
	}
}

func TestLoadStatusMissingFile(t *testing.T) {
	store := newTestStore(t)
	doc := store.LoadStatus()
	if doc.LastTriggeredBuy == nil || doc.LastTriggeredSell == nil {
		t.Fatal("ledger maps must be non-nil on a fresh document")
	}
}

func TestStatusRoundTripPreservesLedger(t *testing.T) {
	store := newTestStore(t)
	firedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	doc := StatusDocument{
		USDAmount:         100,
		BuyAlerts:         []float64{1.0},
		LastTriggeredBuy:  FormatLedger(ledger.Ledger{ledger.Key(1.0): firedAt}),
		LastTriggeredSell: map[string]string{},
	}
	if err := store.SaveStatus(doc); err != nil {
		t.Fatalf("SaveStatus: %v", err)
	}

	loaded := store.LoadStatus()
	led := ParseLedger(loaded.LastTriggeredBuy)
	got, ok := led[ledger.Key(1.0)]
	if !ok {
		t.Fatal("ledger entry lost in round trip")
	}
	if !got.Equal(firedAt) {
		t.Fatalf("timestamp drifted: %v != %v", got, firedAt)
	}
}

func TestParseLedgerCoercesNaiveTimestamps(t *testing.T) {
	naive := time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local)
	raw := map[string]string{
		ledger.Key(1.0): "2024-05-01T09:30:00",
		ledger.Key(2.0): "",
		ledger.Key(3.0): "not-a-timestamp",
	}

	led := ParseLedger(raw)
	if len(led) != 1 {
		t.Fatalf("expected 1 parseable entry, got %d", len(led))
	}
	if got := led[ledger.Key(1.0)]; !got.Equal(naive.UTC()) {
		t.Fatalf("naive stamp not coerced local→UTC: %v != %v", got, naive.UTC())
	}
	if loc := led[ledger.Key(1.0)].Location(); loc != time.UTC {
		t.Fatalf("ledger timestamps must be UTC, got %v", loc)
	}
}

func TestAppendSampleBounded(t *testing.T) {
	var buffer []PriceSample
	for i := 0; i < MaxPriceSamples+10; i++ {
		price := float64(i)
		buffer = AppendSample(buffer, PriceSample{Timestamp: time.Now().Format(time.RFC3339), BuyPrice: &price})
	}
	if len(buffer) != MaxPriceSamples {
		t.Fatalf("buffer length = %d, want %d", len(buffer), MaxPriceSamples)
	}
	if *buffer[0].BuyPrice != 10 {
		t.Fatalf("oldest samples should be evicted first, head = %v", *buffer[0].BuyPrice)
	}
}

func TestAlertsRoundTrip(t *testing.T) {
	store := newTestStore(t)

	alerts := []ContractAlert{{
		ID:        "a-1",
		Contract:  "0x1234",
		Ticker:    "TKN",
		Pair:      "USD",
		Type:      "price",
		Condition: "above",
		Value:     1.5,
	}}
	if err := store.SaveAlerts(alerts); err != nil {
		t.Fatalf("SaveAlerts: %v", err)
	}

	loaded := store.LoadAlerts()
	if len(loaded) != 1 || loaded[0].ID != "a-1" {
		t.Fatalf("unexpected alerts after round trip: %+v", loaded)
	}

	if !alerts[0].SameTarget(ContractAlert{Contract: "0x1234", Pair: "USD", Type: "price", Condition: "above", Value: 1.5, ID: "other"}) {
		t.Fatal("SameTarget must ignore id and routing fields")
	}
}
