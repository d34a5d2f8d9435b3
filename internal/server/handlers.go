package server

import (
	"net/http"

	"jupwatcher/internal/ledger"
	"jupwatcher/internal/state"
)

type valueRequest struct {
	Value float64 `json:"value"`
}

type valuesRequest struct {
	Values []float64 `json:"values"`
}

type minutesRequest struct {
	Minutes int `json:"minutes"`
}

type resetAlertRequest struct {
	Side  string  `json:"side"`
	Price float64 `json:"price"`
}

type triggerRequest struct {
	Side      string  `json:"side"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

func successResponse() map[string]any {
	return map[string]any{"success": true}
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked()
	respondJSON(w, http.StatusOK, s.status)
}

// handleSetUSD updates the trade size and wipes the recent-price buffer so
// the chart restarts from samples quoted at the new amount. Trigger ledgers
// are left alone: thresholds did not change.
func (s *Server) handleSetUSD(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Value <= 0 {
		respondError(w, http.StatusBadRequest, "USD amount must be positive")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked()

	s.cfg.USDAmount = req.Value
	s.status.USDAmount = req.Value
	s.status.LatestPrices = []state.PriceSample{}
	s.persistConfigLocked()
	s.persistStatusLocked()
	respondJSON(w, http.StatusOK, successResponse())
}

// handleAddAlerts merges posted thresholds into the existing registry for one
// side: union, dedupe, ascending sort.
func (s *Server) handleAddAlerts(side ledger.Side) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req valuesRequest
		if err := decodeBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		s.refreshLocked()

		if side == ledger.SideBuy {
			s.cfg.BuyAlerts = state.NormalizeAlerts(append(s.cfg.BuyAlerts, req.Values...))
			s.status.BuyAlerts = s.cfg.BuyAlerts
		} else {
			s.cfg.SellAlerts = state.NormalizeAlerts(append(s.cfg.SellAlerts, req.Values...))
			s.status.SellAlerts = s.cfg.SellAlerts
		}
		s.persistConfigLocked()
		s.persistStatusLocked()
		respondJSON(w, http.StatusOK, successResponse())
	}
}

// handleDeleteAlert removes one threshold and its trigger-ledger entry.
// Membership is decided on the canonical 8-decimal key, so 1.23 deletes a
// configured 1.230000001.
func (s *Server) handleDeleteAlert(side ledger.Side) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req valueRequest
		if err := decodeBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		s.refreshLocked()

		key := ledger.Key(req.Value)
		alerts := s.cfg.BuyAlerts
		if side == ledger.SideSell {
			alerts = s.cfg.SellAlerts
		}

		remaining := make([]float64, 0, len(alerts))
		found := false
		for _, v := range alerts {
			if ledger.Key(v) == key {
				found = true
				continue
			}
			remaining = append(remaining, v)
		}
		if !found {
			respondError(w, http.StatusNotFound, sideLabel(side)+" alert not found")
			return
		}

		if side == ledger.SideBuy {
			s.cfg.BuyAlerts = remaining
			s.status.BuyAlerts = remaining
			delete(s.status.LastTriggeredBuy, key)
		} else {
			s.cfg.SellAlerts = remaining
			s.status.SellAlerts = remaining
			delete(s.status.LastTriggeredSell, key)
		}
		s.persistConfigLocked()
		s.persistStatusLocked()
		respondJSON(w, http.StatusOK, successResponse())
	}
}

func (s *Server) handleResetMinutes(w http.ResponseWriter, r *http.Request) {
	var req minutesRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Minutes < 0 {
		respondError(w, http.StatusBadRequest, "minutes must be >= 0")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked()

	s.cfg.AlertResetMinutes = req.Minutes
	s.status.AlertResetMinutes = req.Minutes
	s.persistConfigLocked()
	s.persistStatusLocked()
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "minutes": req.Minutes})
}

// handleResetAlert re-arms a single fired threshold by dropping its ledger
// entry. The threshold must still be configured for that side.
func (s *Server) handleResetAlert(w http.ResponseWriter, r *http.Request) {
	var req resetAlertRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	side := ledger.Side(req.Side)
	if !side.Valid() {
		respondError(w, http.StatusBadRequest, "invalid alert side")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked()

	key := ledger.Key(req.Price)
	alerts := s.cfg.BuyAlerts
	led := s.status.LastTriggeredBuy
	if side == ledger.SideSell {
		alerts = s.cfg.SellAlerts
		led = s.status.LastTriggeredSell
	}

	configured := false
	for _, v := range alerts {
		if ledger.Key(v) == key {
			configured = true
			break
		}
	}
	if !configured {
		respondError(w, http.StatusNotFound, sideLabel(side)+" alert not found")
		return
	}

	delete(led, key)
	s.persistStatusLocked()
	respondJSON(w, http.StatusOK, successResponse())
}

// handleTrigger is the monitor→surface relay: it merges one fired-at
// timestamp into the ledger so both processes agree on cooldown starts.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	side := ledger.Side(req.Side)
	if !side.Valid() {
		respondError(w, http.StatusBadRequest, "invalid alert side")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked()

	key := ledger.Key(req.Price)
	if side == ledger.SideBuy {
		if s.status.LastTriggeredBuy == nil {
			s.status.LastTriggeredBuy = map[string]string{}
		}
		s.status.LastTriggeredBuy[key] = req.Timestamp
	} else {
		if s.status.LastTriggeredSell == nil {
			s.status.LastTriggeredSell = map[string]string{}
		}
		s.status.LastTriggeredSell[key] = req.Timestamp
	}
	s.persistStatusLocked()
	respondJSON(w, http.StatusOK, successResponse())
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	var sample state.PriceSample
	if err := decodeBody(r, &sample); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshLocked()

	s.status.LatestPrices = state.AppendSample(s.status.LatestPrices, sample)
	s.persistStatusLocked()
	respondJSON(w, http.StatusOK, successResponse())
}

func sideLabel(side ledger.Side) string {
	if side == ledger.SideSell {
		return "Sell"
	}
	return "Buy"
}
