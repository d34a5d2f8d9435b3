// Package server implements the control surface: the HTTP API the dashboard
// and the monitor process talk to, plus the contract-alert checker loop.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"jupwatcher/internal/alerting"
	"jupwatcher/internal/fetcher"
	"jupwatcher/internal/ledger"
	"jupwatcher/internal/state"
)

// Options wire the server's collaborators and defaults.
type Options struct {
	StaticDir string
	Defaults  state.ConfigDocument
}

// Server owns the request-driven side of the shared state. It holds an
// in-memory copy of each document and re-reads the store at the start of
// every unit of work, so edits made by the monitor process are absorbed
// without any locking between the two.
type Server struct {
	store    *state.Store
	dex      fetcher.ContractValueFetcher
	notifier alerting.Notifier
	logger   zerolog.Logger
	opts     Options

	mu     sync.Mutex
	cfg    state.ConfigDocument
	status state.StatusDocument
	alerts []state.ContractAlert
}

// NewServer constructs the control surface and persists the merged
// env-default/document view back to disk so both processes start from the
// same picture.
func NewServer(store *state.Store, dex fetcher.ContractValueFetcher, notifier alerting.Notifier, opts Options, logger zerolog.Logger) (*Server, error) {
	s := &Server{
		store:    store,
		dex:      dex,
		notifier: notifier,
		logger:   logger.With().Str("component", "server").Logger(),
		opts:     opts,
	}

	s.cfg = store.LoadConfig(opts.Defaults)
	s.status = store.LoadStatus()
	s.alerts = store.LoadAlerts()

	// The status document mirrors the registry fields so GET /api/state is a
	// single read for the dashboard.
	s.status.USDAmount = s.cfg.USDAmount
	s.status.BuyAlerts = s.cfg.BuyAlerts
	s.status.SellAlerts = s.cfg.SellAlerts
	s.status.AlertResetMinutes = s.cfg.AlertResetMinutes

	if err := store.SaveConfig(s.cfg); err != nil {
		return nil, err
	}
	if err := store.SaveStatus(s.status); err != nil {
		return nil, err
	}
	return s, nil
}

// Handler builds the HTTP routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/state", s.handleGetState)
	mux.HandleFunc("POST /api/usd", s.handleSetUSD)
	mux.HandleFunc("POST /api/buy", s.handleAddAlerts(ledger.SideBuy))
	mux.HandleFunc("POST /api/sell", s.handleAddAlerts(ledger.SideSell))
	mux.HandleFunc("DELETE /api/buy", s.handleDeleteAlert(ledger.SideBuy))
	mux.HandleFunc("DELETE /api/sell", s.handleDeleteAlert(ledger.SideSell))
	mux.HandleFunc("POST /api/reset-minutes", s.handleResetMinutes)
	mux.HandleFunc("POST /api/reset-alert", s.handleResetAlert)
	mux.HandleFunc("POST /api/trigger", s.handleTrigger)
	mux.HandleFunc("POST /api/price", s.handlePrice)
	mux.HandleFunc("GET /api/token-info", s.handleTokenInfo)
	mux.HandleFunc("GET /api/alerts", s.handleListContractAlerts)
	mux.HandleFunc("POST /api/alerts", s.handleAddContractAlert)
	mux.HandleFunc("DELETE /api/alerts/{id}", s.handleDeleteContractAlert)
	mux.HandleFunc("/", s.handleStatic)

	return withCORS(mux)
}

// refreshLocked re-reads the shared documents, keeping the last-known
// in-memory copy when a document is corrupt. Callers hold s.mu.
func (s *Server) refreshLocked() {
	if cfg, err := s.store.TryLoadConfig(); err == nil {
		s.cfg = cfg
	} else if !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn().Err(err).Msg("keeping in-memory config, document unreadable")
	}
	if status, err := s.store.TryLoadStatus(); err == nil {
		s.status = status
	} else if !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn().Err(err).Msg("keeping in-memory status, document unreadable")
	}
}

func (s *Server) persistConfigLocked() {
	if err := s.store.SaveConfig(s.cfg); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist config document")
	}
}

func (s *Server) persistStatusLocked() {
	if err := s.store.SaveStatus(s.status); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist status document")
	}
}

func (s *Server) persistAlertsLocked() {
	if err := s.store.SaveAlerts(s.alerts); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist alerts document")
	}
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	dir := s.opts.StaticDir
	if dir == "" {
		respondError(w, http.StatusNotFound, "no frontend configured")
		return
	}

	requested := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
	if info, err := os.Stat(requested); err == nil && !info.IsDir() {
		http.ServeFile(w, r, requested)
		return
	}

	// SPA fallback: unknown paths get the index page.
	index := filepath.Join(dir, "index.html")
	if _, err := os.Stat(index); err == nil {
		http.ServeFile(w, r, index)
		return
	}
	respondError(w, http.StatusNotFound, "page not found")
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
