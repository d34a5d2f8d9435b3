package service

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"jupwatcher/internal/server"
	"jupwatcher/internal/state"
)

// Runs the monitor cycle against a live control surface sharing the same
// state directory, the way the two processes run in production.
func TestCycleSamplesAccumulateAcrossSurface(t *testing.T) {
	store, err := state.NewStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	srv, err := server.NewServer(store, nil, nil, server.Options{
		Defaults: state.ConfigDocument{USDAmount: 100},
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	cfg := testConfig("", "", 0)
	quotes := &stubQuotes{prices: roundTrip(1.5, 1.4)}
	surface := NewSurfaceClient(ts.URL, time.Second, zerolog.Nop())
	svc := New(cfg, quotes, store, &recordingNotifier{}, nil, surface, zerolog.Nop())

	const cycles = 3
	for i := 0; i < cycles; i++ {
		if err := svc.Cycle(context.Background()); err != nil {
			t.Fatalf("cycle %d: %v", i+1, err)
		}
	}

	// Each cycle's sample must survive the monitor's own status rewrite.
	status := store.LoadStatus()
	if len(status.LatestPrices) != cycles {
		t.Fatalf("期望缓冲区有 %d 个采样, 得到 %d", cycles, len(status.LatestPrices))
	}
	last := status.LatestPrices[cycles-1]
	if last.BuyPrice == nil || *last.BuyPrice != 1.5 {
		t.Fatalf("unexpected newest sample: %+v", last)
	}
}

// A dead surface must not lose samples either: the monitor buffers locally.
func TestCycleSamplesAccumulateWithoutSurface(t *testing.T) {
	cfg := testConfig("", "", 0)
	quotes := &stubQuotes{prices: roundTrip(1.5, 1.4)}
	svc, store := newTestService(t, cfg, quotes, &recordingNotifier{})

	for i := 0; i < 3; i++ {
		if err := svc.Cycle(context.Background()); err != nil {
			t.Fatalf("cycle %d: %v", i+1, err)
		}
	}

	status := store.LoadStatus()
	if len(status.LatestPrices) != 3 {
		t.Fatalf("期望缓冲区有 3 个采样, 得到 %d", len(status.LatestPrices))
	}
}
