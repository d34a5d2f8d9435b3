// Package state persists the JSON documents shared between the monitor and
// API processes. The store is deliberately lock-free: each unit of work
// reloads a full document and each mutation rewrites it whole, accepting
// last-writer-wins semantics per key.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

const (
	configFile = "config.json"
	statusFile = "status.json"
	alertsFile = "alerts.json"
)

// Store reads and writes the shared documents under one directory.
type Store struct {
	dir    string
	logger zerolog.Logger
}

// NewStore constructs a Store rooted at dir, creating it if needed.
func NewStore(dir string, logger zerolog.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("state directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &Store{dir: dir, logger: logger.With().Str("component", "state_store").Logger()}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// TryLoadConfig reads the config document, reporting failure so callers can
// keep their last-known copy.
func (s *Store) TryLoadConfig() (ConfigDocument, error) {
	var doc ConfigDocument
	if err := s.readJSON(configFile, &doc); err != nil {
		return ConfigDocument{}, err
	}
	doc.BuyAlerts = NormalizeAlerts(doc.BuyAlerts)
	doc.SellAlerts = NormalizeAlerts(doc.SellAlerts)
	return doc, nil
}

// LoadConfig reads the config document, falling back to the supplied
// defaults when the file is absent or malformed. Alert lists are normalised
// on the way in so downstream code always sees sorted, deduplicated sets.
func (s *Store) LoadConfig(defaults ConfigDocument) ConfigDocument {
	doc, err := s.TryLoadConfig()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Err(err).Msg("config document unreadable, using defaults")
		}
		doc = defaults
		doc.BuyAlerts = NormalizeAlerts(doc.BuyAlerts)
		doc.SellAlerts = NormalizeAlerts(doc.SellAlerts)
	}
	if doc.AlertResetMinutes < 0 {
		doc.AlertResetMinutes = defaults.AlertResetMinutes
	}
	return doc
}

// SaveConfig rewrites the config document.
func (s *Store) SaveConfig(doc ConfigDocument) error {
	return s.writeJSON(configFile, doc)
}

// TryLoadStatus reads the status document, reporting failure so callers can
// keep their last-known copy.
func (s *Store) TryLoadStatus() (StatusDocument, error) {
	var doc StatusDocument
	if err := s.readJSON(statusFile, &doc); err != nil {
		return StatusDocument{}, err
	}
	ensureLedgerMaps(&doc)
	return doc, nil
}

// LoadStatus reads the status document. A missing or corrupt file yields an
// empty document rather than an error; the monitor repopulates it on the
// next cycle.
func (s *Store) LoadStatus() StatusDocument {
	doc, err := s.TryLoadStatus()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Err(err).Msg("status document unreadable, starting empty")
		}
		doc = StatusDocument{}
	}
	ensureLedgerMaps(&doc)
	return doc
}

func ensureLedgerMaps(doc *StatusDocument) {
	if doc.LastTriggeredBuy == nil {
		doc.LastTriggeredBuy = make(map[string]string)
	}
	if doc.LastTriggeredSell == nil {
		doc.LastTriggeredSell = make(map[string]string)
	}
}

// SaveStatus rewrites the status document.
func (s *Store) SaveStatus(doc StatusDocument) error {
	return s.writeJSON(statusFile, doc)
}

// LoadAlerts reads the contract alert document.
func (s *Store) LoadAlerts() []ContractAlert {
	var alerts []ContractAlert
	if err := s.readJSON(alertsFile, &alerts); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Err(err).Msg("alerts document unreadable, starting empty")
		}
		return nil
	}
	return alerts
}

// SaveAlerts rewrites the contract alert document.
func (s *Store) SaveAlerts(alerts []ContractAlert) error {
	if alerts == nil {
		alerts = []ContractAlert{}
	}
	return s.writeJSON(alertsFile, alerts)
}

func (s *Store) readJSON(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// writeJSON writes via a temp file and rename so a reader in the other
// process never observes a half-written document.
func (s *Store) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	target := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", name, err)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
