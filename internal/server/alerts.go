package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"jupwatcher/internal/alerting"
	"jupwatcher/internal/fetcher"
	"jupwatcher/internal/ledger"
	"jupwatcher/internal/scheduler"
	"jupwatcher/internal/state"
)

// normalizeContract canonicalises EVM-style 0x addresses to their checksum
// form so the same contract entered with different casing dedupes. Other
// address formats (Solana mints) pass through untouched.
func normalizeContract(contract string) string {
	contract = strings.TrimSpace(contract)
	if common.IsHexAddress(contract) {
		return common.HexToAddress(contract).Hex()
	}
	return contract
}

func (s *Server) handleListContractAlerts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = s.store.LoadAlerts()
	respondJSON(w, http.StatusOK, s.alerts)
}

func (s *Server) handleAddContractAlert(w http.ResponseWriter, r *http.Request) {
	var alert state.ContractAlert
	if err := decodeBody(r, &alert); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	alert.Contract = normalizeContract(alert.Contract)
	if alert.Contract == "" {
		respondError(w, http.StatusBadRequest, "contract is required")
		return
	}
	if !ledger.Metric(alert.Type).Valid() {
		respondError(w, http.StatusBadRequest, "type must be price or marketcap")
		return
	}
	if !ledger.Condition(alert.Condition).Valid() {
		respondError(w, http.StatusBadRequest, "condition must be above or below")
		return
	}
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = s.store.LoadAlerts()

	for _, existing := range s.alerts {
		if existing.SameTarget(alert) {
			respondError(w, http.StatusBadRequest, "duplicate alert")
			return
		}
	}
	s.alerts = append(s.alerts, alert)
	s.persistAlertsLocked()
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "id": alert.ID})
}

func (s *Server) handleDeleteContractAlert(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = s.store.LoadAlerts()

	remaining := s.alerts[:0:0]
	for _, a := range s.alerts {
		if a.ID != id {
			remaining = append(remaining, a)
		}
	}
	if len(remaining) == len(s.alerts) {
		respondError(w, http.StatusNotFound, "alert not found")
		return
	}
	s.alerts = remaining
	s.persistAlertsLocked()
	respondJSON(w, http.StatusOK, successResponse())
}

func (s *Server) handleTokenInfo(w http.ResponseWriter, r *http.Request) {
	contract := normalizeContract(r.URL.Query().Get("contract"))
	if contract == "" {
		respondError(w, http.StatusBadRequest, "contract is required")
		return
	}
	info, err := s.dex.TokenInfo(r.Context(), contract)
	if err != nil {
		if errors.Is(err, fetcher.ErrPairNotFound) {
			respondError(w, http.StatusNotFound, "token not found on Dexscreener")
			return
		}
		respondError(w, http.StatusBadGateway, "token lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// RunChecker evaluates every contract alert against Dexscreener each minute
// and notifies on matches. The checker is stateless: an alert that stays in
// condition notifies again on every pass.
func (s *Server) RunChecker(ctx context.Context, interval time.Duration) error {
	loop := scheduler.New("alert-checker", interval, s.logger)
	return loop.Run(ctx, s.checkContractAlerts)
}

func (s *Server) checkContractAlerts(ctx context.Context) error {
	s.mu.Lock()
	alerts := s.store.LoadAlerts()
	s.alerts = alerts
	s.mu.Unlock()

	for _, alert := range alerts {
		if err := s.checkContractAlert(ctx, alert); err != nil {
			s.logger.Warn().Err(err).
				Str("ticker", alert.Ticker).
				Str("contract", alert.Contract).
				Msg("contract alert check failed")
		}
	}
	return nil
}

func (s *Server) checkContractAlert(ctx context.Context, alert state.ContractAlert) error {
	value, err := s.dex.PairValue(ctx, alert.Contract, alert.Pair, alert.Type)
	if err != nil {
		return err
	}

	target := decimal.NewFromFloat(alert.Value)
	if !ledger.Condition(alert.Condition).Satisfied(value, target) {
		return nil
	}

	title := fmt.Sprintf("%s/%s Alert", alert.Ticker, alert.Pair)
	message := fmt.Sprintf("%s %s %s\nCurrent: %s\nContract: %s",
		alert.Type, alert.Condition, target.String(), value.String(), alert.Contract)
	return s.notifier.Notify(ctx, alerting.Notification{Title: title, Message: message})
}
