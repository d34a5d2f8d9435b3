package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"jupwatcher/internal/alerting"
	"jupwatcher/internal/config"
	"jupwatcher/internal/fetcher"
	"jupwatcher/internal/scheduler"
	"jupwatcher/internal/server"
	"jupwatcher/internal/service"
	"jupwatcher/internal/state"
	"jupwatcher/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) stateStore() (*state.Store, error) {
	return state.NewStore(a.Config.State.Dir, a.Logger)
}

func (a *App) newQuotes() fetcher.QuoteFetcher {
	return fetcher.NewJupiter(fetcher.JupiterOptions{
		BaseURL:     a.Config.Jupiter.BaseURL,
		InputMint:   a.Config.Monitor.InputMint,
		OutputMint:  a.Config.Monitor.OutputMint,
		SlippagePct: a.Config.Jupiter.SlippagePct,
		Timeout:     a.Config.Jupiter.RequestTimeout,
		UserAgent:   a.Config.Jupiter.UserAgent,
	}, a.Logger)
}

func (a *App) newDex() fetcher.ContractValueFetcher {
	return fetcher.NewDexscreener(fetcher.DexscreenerOptions{
		BaseURL: a.Config.Dexscreener.BaseURL,
		Timeout: a.Config.Dexscreener.RequestTimeout,
	}, a.Logger)
}

// newNotifier assembles the notification fan-out from the configured
// channels. An unknown channel name is logged and skipped rather than
// failing startup.
func (a *App) newNotifier() alerting.Notifier {
	var notifiers []alerting.Notifier
	for _, channel := range a.Config.Alerting.Channels {
		switch channel {
		case "ntfy":
			cfg := a.Config.Alerting.Ntfy
			notifiers = append(notifiers, alerting.NewNtfyNotifier(cfg.Server, cfg.Topic, 10*time.Second, a.Logger))
		case "telegram":
			cfg := a.Config.Alerting.Telegram
			if !cfg.Enabled {
				a.Logger.Warn().Msg("telegram channel listed but alerting.telegram.enabled is false")
				continue
			}
			notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger))
		default:
			a.Logger.Warn().Str("channel", channel).Msg("unknown alert channel, skipping")
		}
	}
	return alerting.NewMulti(a.Logger, notifiers...)
}

func (a *App) openAudit(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, store.Close, nil
}

func (a *App) configDefaults() state.ConfigDocument {
	return state.ConfigDocument{
		USDAmount:         a.Config.Monitor.USDAmount,
		BuyAlerts:         config.ParseAlertList(a.Config.Monitor.BuyAlerts),
		SellAlerts:        config.ParseAlertList(a.Config.Monitor.SellAlerts),
		AlertResetMinutes: a.Config.Monitor.AlertResetMinutes,
	}
}

func (a *App) surfaceClient() *service.SurfaceClient {
	return service.NewSurfaceClient(a.Config.Server.BaseURL, 10*time.Second, a.Logger)
}

// RunMonitor executes the long-running polling monitor together with its
// reconciler sweep.
func (a *App) RunMonitor(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.Config.Monitor.InputMint == "" || a.Config.Monitor.OutputMint == "" {
		return errors.New("monitor.input_mint and monitor.output_mint must be configured")
	}

	store, err := a.stateStore()
	if err != nil {
		return err
	}

	audit, closeAudit, err := a.openAudit(ctx)
	if err != nil {
		return err
	}
	if audit == nil {
		a.Logger.Warn().Msg("database.dsn not configured; trigger audit disabled")
	}
	if closeAudit != nil {
		defer closeAudit()
	}

	quotes := a.newQuotes()
	notifier := a.newNotifier()
	surface := a.surfaceClient()

	var auditStore storage.TriggerStore
	if audit != nil {
		auditStore = audit
	}

	svc := service.New(a.Config, quotes, store, notifier, auditStore, surface, a.Logger)
	sweeper := service.NewSweeper(a.Config, quotes, store, surface, a.Logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		loop := scheduler.New("sweeper", a.Config.Monitor.SweepInterval, a.Logger)
		if err := loop.Run(ctx, sweeper.Sweep); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error().Err(err).Msg("sweeper loop terminated")
		}
	}()

	a.Logger.Info().
		Dur("interval", a.Config.Monitor.Interval).
		Dur("sweep_interval", a.Config.Monitor.SweepInterval).
		Msg("starting price monitor")

	loop := scheduler.New("monitor", a.Config.Monitor.Interval, a.Logger)
	err = loop.Run(ctx, svc.Cycle)
	wg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("monitor terminated with error")
		return err
	}

	a.Logger.Info().Msg("price monitor stopped")
	return nil
}

// RunServe executes the control-surface API process.
func (a *App) RunServe(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := a.stateStore()
	if err != nil {
		return err
	}

	srv, err := server.NewServer(store, a.newDex(), a.newNotifier(), server.Options{
		StaticDir: a.Config.Server.StaticDir,
		Defaults:  a.configDefaults(),
	}, a.Logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    a.Config.Server.ListenAddr,
		Handler: srv.Handler(),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.RunChecker(ctx, a.Config.Dexscreener.CheckInterval); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error().Err(err).Msg("alert checker terminated")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown failed")
		}
	}()

	a.Logger.Info().Str("addr", a.Config.Server.ListenAddr).Msg("starting control surface")
	err = httpServer.ListenAndServe()
	wg.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	a.Logger.Info().Msg("control surface stopped")
	return nil
}

// ExportOptions hold parameters for exporting the recent-price buffer.
type ExportOptions struct {
	PNGPath string
	CSVPath string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
