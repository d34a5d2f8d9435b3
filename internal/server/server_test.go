package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"jupwatcher/internal/alerting"
	"jupwatcher/internal/fetcher"
	"jupwatcher/internal/ledger"
	"jupwatcher/internal/state"
)

type stubDex struct {
	info    fetcher.TokenInfo
	infoErr error
	value   decimal.Decimal
	valErr  error
	calls   int
}

func (d *stubDex) TokenInfo(ctx context.Context, contract string) (fetcher.TokenInfo, error) {
	return d.info, d.infoErr
}

func (d *stubDex) PairValue(ctx context.Context, contract, quoteSymbol, metric string) (decimal.Decimal, error) {
	d.calls++
	return d.value, d.valErr
}

type recordingNotifier struct {
	notes []alerting.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	r.notes = append(r.notes, note)
	return nil
}

func newTestServer(t *testing.T, dex fetcher.ContractValueFetcher, notifier alerting.Notifier) (*Server, *state.Store) {
	t.Helper()
	store, err := state.NewStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	srv, err := NewServer(store, dex, notifier, Options{
		Defaults: state.ConfigDocument{
			USDAmount:         100,
			BuyAlerts:         []float64{},
			SellAlerts:        []float64{},
			AlertResetMinutes: 10,
		},
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv, store
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSetUSDClearsBufferKeepsLedger(t *testing.T) {
	srv, store := newTestServer(t, &stubDex{}, &recordingNotifier{})
	handler := srv.Handler()

	buy := 99.5
	status := store.LoadStatus()
	status.LatestPrices = []state.PriceSample{{Timestamp: "2024-01-01T00:00:00Z", BuyPrice: &buy}}
	status.LastTriggeredBuy[ledger.Key(1.00)] = "2024-01-01T00:00:00Z"
	if err := store.SaveStatus(status); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/usd", map[string]float64{"value": 250})
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d", rec.Code)
	}

	got := store.LoadStatus()
	if len(got.LatestPrices) != 0 {
		t.Fatalf("price buffer should be cleared, got %d samples", len(got.LatestPrices))
	}
	if _, ok := got.LastTriggeredBuy[ledger.Key(1.00)]; !ok {
		t.Fatal("changing the usd amount must not touch the trigger ledger")
	}
	if got.USDAmount != 250 {
		t.Fatalf("usd_amount = %v, want 250", got.USDAmount)
	}
	cfg, err := store.TryLoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.USDAmount != 250 {
		t.Fatalf("config usd_amount = %v, want 250", cfg.USDAmount)
	}
}

func TestSetUSDRejectsNonPositive(t *testing.T) {
	srv, store := newTestServer(t, &stubDex{}, &recordingNotifier{})
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/usd", map[string]float64{"value": 0})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("期望 400, 得到 %d", rec.Code)
	}
	cfg, err := store.TryLoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.USDAmount != 100 {
		t.Fatalf("rejected request mutated state: usd_amount = %v", cfg.USDAmount)
	}
}

func TestAddAlertsMergesAndSorts(t *testing.T) {
	srv, store := newTestServer(t, &stubDex{}, &recordingNotifier{})
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/buy", map[string][]float64{"values": {1.5, 0.9}})
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/buy", map[string][]float64{"values": {1.5, 1.2}})
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d", rec.Code)
	}

	cfg, err := store.TryLoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0.9, 1.2, 1.5}
	if len(cfg.BuyAlerts) != len(want) {
		t.Fatalf("buy_alerts = %v, want %v", cfg.BuyAlerts, want)
	}
	for i, v := range want {
		if cfg.BuyAlerts[i] != v {
			t.Fatalf("buy_alerts = %v, want %v", cfg.BuyAlerts, want)
		}
	}
}

func TestDeleteAlertRemovesLedgerEntry(t *testing.T) {
	srv, store := newTestServer(t, &stubDex{}, &recordingNotifier{})
	handler := srv.Handler()

	doJSON(t, handler, http.MethodPost, "/api/sell", map[string][]float64{"values": {2.0}})
	status := store.LoadStatus()
	status.LastTriggeredSell[ledger.Key(2.0)] = "2024-01-01T00:00:00Z"
	if err := store.SaveStatus(status); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, handler, http.MethodDelete, "/api/sell", map[string]float64{"value": 2.0})
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d", rec.Code)
	}

	cfg, err := store.TryLoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.SellAlerts) != 0 {
		t.Fatalf("sell_alerts = %v, want empty", cfg.SellAlerts)
	}
	got := store.LoadStatus()
	if _, ok := got.LastTriggeredSell[ledger.Key(2.0)]; ok {
		t.Fatal("ledger entry should be removed with its threshold")
	}
}

func TestDeleteAlertMissingReturns404(t *testing.T) {
	srv, _ := newTestServer(t, &stubDex{}, &recordingNotifier{})
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodDelete, "/api/buy", map[string]float64{"value": 3.0})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("期望 404, 得到 %d", rec.Code)
	}
}

func TestResetAlertRequiresConfiguredThreshold(t *testing.T) {
	srv, store := newTestServer(t, &stubDex{}, &recordingNotifier{})
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/reset-alert", map[string]any{"side": "buy", "price": 1.0})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unconfigured threshold: 期望 404, 得到 %d", rec.Code)
	}

	doJSON(t, handler, http.MethodPost, "/api/buy", map[string][]float64{"values": {1.0}})
	status := store.LoadStatus()
	status.LastTriggeredBuy[ledger.Key(1.0)] = "2024-01-01T00:00:00Z"
	if err := store.SaveStatus(status); err != nil {
		t.Fatal(err)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/reset-alert", map[string]any{"side": "buy", "price": 1.0})
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d", rec.Code)
	}
	got := store.LoadStatus()
	if _, ok := got.LastTriggeredBuy[ledger.Key(1.0)]; ok {
		t.Fatal("reset should drop the ledger entry")
	}
}

func TestTriggerMergesIntoLedger(t *testing.T) {
	srv, store := newTestServer(t, &stubDex{}, &recordingNotifier{})
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/trigger", map[string]any{
		"side": "sell", "price": 1.23, "timestamp": "2024-06-01T12:00:00Z",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d", rec.Code)
	}

	got := store.LoadStatus()
	if got.LastTriggeredSell[ledger.Key(1.23)] != "2024-06-01T12:00:00Z" {
		t.Fatalf("ledger not updated: %v", got.LastTriggeredSell)
	}
}

func TestTriggerRejectsUnknownSide(t *testing.T) {
	srv, _ := newTestServer(t, &stubDex{}, &recordingNotifier{})
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/trigger", map[string]any{
		"side": "hold", "price": 1.23, "timestamp": "2024-06-01T12:00:00Z",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("期望 400, 得到 %d", rec.Code)
	}
}

func TestPriceAppendsBounded(t *testing.T) {
	srv, store := newTestServer(t, &stubDex{}, &recordingNotifier{})
	handler := srv.Handler()

	for i := 0; i < state.MaxPriceSamples+5; i++ {
		buy := float64(i)
		rec := doJSON(t, handler, http.MethodPost, "/api/price", state.PriceSample{
			Timestamp: fmt.Sprintf("2024-01-01T00:00:%02dZ", i%60),
			BuyPrice:  &buy,
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("sample %d: 期望 200, 得到 %d", i, rec.Code)
		}
	}

	got := store.LoadStatus()
	if len(got.LatestPrices) != state.MaxPriceSamples {
		t.Fatalf("buffer length = %d, want %d", len(got.LatestPrices), state.MaxPriceSamples)
	}
	if *got.LatestPrices[len(got.LatestPrices)-1].BuyPrice != float64(state.MaxPriceSamples+4) {
		t.Fatal("newest sample should be retained")
	}
}

func TestGetStateReflectsDiskEdits(t *testing.T) {
	srv, store := newTestServer(t, &stubDex{}, &recordingNotifier{})
	handler := srv.Handler()

	// Simulate the monitor process rewriting the status document.
	status := store.LoadStatus()
	status.Timestamp = "2024-06-01T12:00:00Z"
	if err := store.SaveStatus(status); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d", rec.Code)
	}
	var got state.StatusDocument
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if got.Timestamp != "2024-06-01T12:00:00Z" {
		t.Fatalf("state not re-read from disk: timestamp = %q", got.Timestamp)
	}
}

func TestContractAlertCRUD(t *testing.T) {
	srv, store := newTestServer(t, &stubDex{}, &recordingNotifier{})
	handler := srv.Handler()

	alert := map[string]any{
		"contract":  "So11111111111111111111111111111111111111112",
		"ticker":    "SOL",
		"pair":      "USD",
		"type":      "price",
		"condition": "above",
		"value":     200.0,
	}
	rec := doJSON(t, handler, http.MethodPost, "/api/alerts", alert)
	if rec.Code != http.StatusOK {
		t.Fatalf("add: 期望 200, 得到 %d (%s)", rec.Code, rec.Body.String())
	}
	var added struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &added); err != nil {
		t.Fatal(err)
	}
	if added.ID == "" {
		t.Fatal("server should assign an id")
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/alerts", alert)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate: 期望 400, 得到 %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/alerts", nil)
	var listed []state.ContractAlert
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(listed))
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/alerts/"+added.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: 期望 200, 得到 %d", rec.Code)
	}
	if len(store.LoadAlerts()) != 0 {
		t.Fatal("alert should be removed from the document")
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/alerts/"+added.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("delete missing: 期望 404, 得到 %d", rec.Code)
	}
}

func TestContractAlertNormalizesHexAddress(t *testing.T) {
	srv, store := newTestServer(t, &stubDex{}, &recordingNotifier{})
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/alerts", map[string]any{
		"contract":  "0xdac17f958d2ee523a2206206994597c13d831ec7",
		"ticker":    "USDT",
		"pair":      "WETH",
		"type":      "marketcap",
		"condition": "below",
		"value":     1e9,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200, 得到 %d", rec.Code)
	}

	alerts := store.LoadAlerts()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Contract != "0xdAC17F958D2ee523a2206206994597C13D831ec7" {
		t.Fatalf("contract not checksum-normalised: %s", alerts[0].Contract)
	}
}

func TestContractAlertRejectsBadMetric(t *testing.T) {
	srv, _ := newTestServer(t, &stubDex{}, &recordingNotifier{})
	handler := srv.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/alerts", map[string]any{
		"contract":  "So11111111111111111111111111111111111111112",
		"pair":      "USD",
		"type":      "volume",
		"condition": "above",
		"value":     1.0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("期望 400, 得到 %d", rec.Code)
	}
}

func TestCheckerNotifiesOnCondition(t *testing.T) {
	dex := &stubDex{value: decimal.NewFromFloat(250)}
	notifier := &recordingNotifier{}
	srv, store := newTestServer(t, dex, notifier)

	if err := store.SaveAlerts([]state.ContractAlert{{
		ID:        "a1",
		Contract:  "So11111111111111111111111111111111111111112",
		Ticker:    "SOL",
		Pair:      "USD",
		Type:      "price",
		Condition: "above",
		Value:     200,
	}}); err != nil {
		t.Fatal(err)
	}

	if err := srv.checkContractAlerts(context.Background()); err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(notifier.notes) != 1 {
		t.Fatalf("期望发送 1 条通知, 得到 %d", len(notifier.notes))
	}
	if notifier.notes[0].Title != "SOL/USD Alert" {
		t.Fatalf("unexpected title: %s", notifier.notes[0].Title)
	}

	// Out of condition: no notification.
	dex.value = decimal.NewFromFloat(150)
	if err := srv.checkContractAlerts(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(notifier.notes) != 1 {
		t.Fatalf("out-of-condition alert notified: %d", len(notifier.notes))
	}
}
