package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"skindrop/internal/alerting"
	"skindrop/internal/cache"
	"skindrop/internal/catalog"
	"skindrop/internal/config"
	"skindrop/internal/feed"
	"skindrop/internal/fulfill"
	"skindrop/internal/ledger"
	"skindrop/internal/referral"
	"skindrop/internal/scheduler"
	"skindrop/internal/service"
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

func (a *App) newMarketClient() *feed.Client {
	return feed.NewClient(feed.ClientOptions{
		BaseURL:        a.Config.Market.BaseURL,
		APIKey:         a.Config.Market.APIKey,
		Secret:         a.Config.Market.Secret,
		FeedTimeout:    a.Config.Market.FeedTimeout,
		BalanceTimeout: a.Config.Market.BalanceTimeout,
		SubmitTimeout:  a.Config.Market.SubmitTimeout,
		UserAgent:      a.Config.Market.UserAgent,
	}, a.Logger)
}

func (a *App) newBuilder() *catalog.Builder {
	images := catalog.NewImageResolver(a.Config.Catalog.DataDir, a.Logger)
	return catalog.NewBuilder(images, a.Config.Catalog.StarRate, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openLedger(ctx context.Context) (*ledger.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := ledger.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := ledger.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running fulfillment service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeLedger, err := a.openLedger(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn is required to run the service")
	}
	defer closeLedger()

	client := a.newMarketClient()
	builder := a.newBuilder()
	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("alerting disabled; operator notifications will be dropped")
	}

	snapshots := cache.New()
	cooldowns := fulfill.NewCooldownRegistry(a.Config.Purchase.Cooldown)
	submitter := fulfill.NewSubmitter(snapshots, client, client, cooldowns, notifier, a.Logger)

	machine := referral.NewMachine(referral.Options{
		Threshold:       a.Config.Referral.Threshold,
		CheapItemsCount: a.Config.Referral.CheapItemsCount,
	}, store, snapshots, submitter, notifier, a.Logger)

	loop := scheduler.New(scheduler.Options{
		Interval:     a.Config.Refresh.Interval,
		StartupDelay: a.Config.Refresh.StartupDelay,
	}, a.Logger)

	svc := service.New(loop, client, client, builder, snapshots, store, submitter, machine, notifier, a.Logger)

	a.Logger.Info().Msg("starting fulfillment service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("fulfillment service stopped")
	return nil
}

// ExportOptions hold parameters for exporting the current catalog.
type ExportOptions struct {
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
