package app

import (
	"context"
	"errors"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"gridwatcher/internal/alerting"
	"gridwatcher/internal/api"
	"gridwatcher/internal/config"
	"gridwatcher/internal/faults"
	"gridwatcher/internal/scheduler"
	"gridwatcher/internal/service"
	"gridwatcher/internal/simulator"
	"gridwatcher/internal/storage"
	"gridwatcher/internal/trading"
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

func (a *App) newGenerator() *simulator.Generator {
	seed := a.Config.Generator.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return simulator.New(simulator.Options{
		SolarCapacityW:    a.Config.Generator.SolarCapacityW,
		WindCapacityW:     a.Config.Generator.WindCapacityW,
		BaseConsumptionW:  a.Config.Generator.BaseConsumptionW,
		BatteryCapacityWh: a.Config.Generator.BatteryCapacityWh,
	}, rand.New(rand.NewSource(seed)), a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

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

// Run executes the long-running monitoring service and dashboard API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	genSched := scheduler.New(scheduler.Options{
		Name:            "generator_scheduler",
		Interval:        a.Config.Generator.Interval,
		AlignToInterval: a.Config.Generator.AlignToInterval,
		StartupDelay:    a.Config.Generator.StartupDelay,
	}, a.Logger)

	faultSched := scheduler.New(scheduler.Options{
		Name:            "fault_scheduler",
		Interval:        a.Config.Faults.Interval,
		AlignToInterval: true,
	}, a.Logger)

	generator := a.newGenerator()
	detector := faults.NewDetector(a.Config.Faults, a.Logger)
	notifier := a.newNotifier()

	var readingStore storage.ReadingStore
	var alertStore storage.AlertStore
	var txStore storage.TransactionStore
	if store != nil {
		readingStore = store
		alertStore = store
		txStore = store
	}

	market := trading.NewMarket(a.Config.Trading, a.Config.Generator.BatteryCapacityWh, txStore, a.Logger)
	svc := service.New(a.Config, genSched, faultSched, generator, detector, readingStore, alertStore, notifier, a.Logger)
	server := api.NewServer(a.Config.Server, readingStore, alertStore, detector, market, a.Logger)

	a.Logger.Info().Msg("starting monitoring service")

	errCh := make(chan error, 2)
	go func() { errCh <- svc.Run(ctx) }()
	go func() { errCh <- server.Run(ctx) }()

	err = <-errCh
	cancel()
	<-errCh

	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// SeedOptions configure historical data generation.
type SeedOptions struct {
	Days   int
	Step   time.Duration
	DryRun bool
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting historical readings.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// SimulateFaultOptions configure the fault simulation command.
type SimulateFaultOptions struct {
	Subsystem string
	Checks    int
}
