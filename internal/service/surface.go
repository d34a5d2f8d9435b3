package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"jupwatcher/internal/ledger"
	"jupwatcher/internal/state"
)

// SurfaceClient relays monitor-side events to the control-surface process so
// its in-memory ledger copy stays consistent. Every call is best effort: the
// caller logs failures and carries on.
type SurfaceClient struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewSurfaceClient constructs a relay client for the API process.
func NewSurfaceClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *SurfaceClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SurfaceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "surface_client").Logger(),
	}
}

// RecordTrigger informs the surface that a threshold fired.
func (c *SurfaceClient) RecordTrigger(ctx context.Context, side ledger.Side, price float64, firedAt time.Time) error {
	return c.post(ctx, "/api/trigger", map[string]any{
		"side":      string(side),
		"price":     price,
		"timestamp": firedAt.UTC().Format(time.RFC3339Nano),
	})
}

// ResetAlert clears one threshold's ledger entry on the surface.
func (c *SurfaceClient) ResetAlert(ctx context.Context, side ledger.Side, price float64) error {
	return c.post(ctx, "/api/reset-alert", map[string]any{
		"side":  string(side),
		"price": price,
	})
}

// PushPrice appends a sample to the surface's bounded price buffer.
func (c *SurfaceClient) PushPrice(ctx context.Context, sample state.PriceSample) error {
	return c.post(ctx, "/api/price", sample)
}

func (c *SurfaceClient) post(ctx context.Context, path string, payload any) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("surface base url not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal surface payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create surface request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send surface request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("surface %s returned %d", path, resp.StatusCode)
	}
	return nil
}
