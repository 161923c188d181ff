package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"crypto-tracker/internal/alerting"
	"crypto-tracker/internal/analyzer"
	"crypto-tracker/internal/config"
	"crypto-tracker/internal/cronjobs"
	"crypto-tracker/internal/fetcher"
	"crypto-tracker/internal/service"
	"crypto-tracker/internal/storage"
	"crypto-tracker/internal/webhook"
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

func (a *App) newAggregator() *fetcher.Aggregator {
	p := a.Config.Providers

	coincap := fetcher.NewCoinCap(fetcher.CoinCapOptions{
		BaseURL:   p.CoinCapBaseURL,
		Timeout:   p.RequestTimeout,
		UserAgent: p.UserAgent,
	}, a.Logger)

	coingecko := fetcher.NewCoinGecko(fetcher.CoinGeckoOptions{
		BaseURL:   p.CoinGeckoBaseURL,
		Timeout:   p.RequestTimeout,
		UserAgent: p.UserAgent,
	}, a.Logger)

	rates := fetcher.NewExchangeRateAPI(fetcher.RatesOptions{
		BaseURL:   p.RatesBaseURL,
		Timeout:   p.RequestTimeout,
		UserAgent: p.UserAgent,
	}, a.Logger)

	return fetcher.NewAggregator([]fetcher.CryptoProvider{coincap, coingecko}, rates, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newCronClient() *cronjobs.Client {
	return cronjobs.NewClient(cronjobs.Options{
		BaseURL: a.Config.Scheduler.BaseURL,
		Timeout: a.Config.Scheduler.RequestTimeout,
	}, a.Logger)
}

func (a *App) newService(store *storage.Store) *service.Service {
	an := analyzer.New(a.Config.Alerting.ThresholdPct, a.newNotifier(), a.Logger)
	return service.New(a.newAggregator(), store, an, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Serve registers the cron job and runs the webhook server until shutdown.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	client := a.newCronClient()
	if err := client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("cron service not available: %w", err)
	}

	job, err := client.EnsureJob(ctx, cronjobs.RegisterJobRequest{
		Name:           a.Config.Scheduler.JobName,
		CronExpression: a.Config.Scheduler.CronExpression,
		Timezone:       a.Config.Scheduler.Timezone,
		WebhookURL:     a.Config.WebhookURL(),
		WebhookSecret:  a.Config.Webhook.Secret,
	})
	if err != nil {
		return fmt.Errorf("register cron job: %w", err)
	}

	a.Logger.Info().
		Str("job_id", job.ID).
		Str("cron", a.Config.Scheduler.CronExpression).
		Str("webhook_url", a.Config.WebhookURL()).
		Msg("cron job registered")

	server := webhook.NewServer(a.Config.Webhook.Secret, a.newService(store), store, a.Logger)

	err = server.Run(ctx, fmt.Sprintf(":%d", a.Config.Webhook.Port))
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("webhook server terminated with error")
		return err
	}

	a.Logger.Info().Msg("webhook server stopped")
	return nil
}

// Fetch runs a single fetch-persist cycle without analysis or execution
// tracking and prints the result.
func (a *App) Fetch(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := service.New(a.newAggregator(), store, nil, a.Logger)

	result, err := svc.FetchOnce(ctx)
	if err != nil {
		return err
	}

	out := map[string]any{
		"snapshot_id": result.SnapshotID,
		"source":      result.Source,
		"btc_usd":     result.BTCUSD,
		"eth_usd":     result.ETHUSD,
		"eur_rate":    result.EURRate,
		"gbp_rate":    result.GBPRate,
		"jpy_rate":    result.JPYRate,
	}
	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(encoded))
	return nil
}

// Jobs lists the registrations on the cron service.
func (a *App) Jobs(ctx context.Context) error {
	client := a.newCronClient()
	if err := client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("cron service not available: %w", err)
	}

	jobs, err := client.ListJobs(ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintln(os.Stdout, "no jobs registered")
		return nil
	}

	fmt.Fprintf(os.Stdout, "found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(os.Stdout, "  ID: %s\n", job.ID)
		fmt.Fprintf(os.Stdout, "  Name: %s\n", job.Name)
		fmt.Fprintf(os.Stdout, "  Cron: %s\n", job.CronExpression)
		fmt.Fprintf(os.Stdout, "  Enabled: %t\n", job.Enabled)
		fmt.Fprintf(os.Stdout, "  Webhook: %s\n\n", job.WebhookURL)
	}
	return nil
}

// InitDB applies the embedded database schema.
func (a *App) InitDB(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.InitSchema(ctx); err != nil {
		return err
	}
	a.Logger.Info().Msg("database schema initialized")
	return nil
}

// ExportOptions hold parameters for exporting snapshot history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
