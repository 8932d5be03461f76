package daemon

import (
	"context"

	"github.com/mvalente/daybook/internal/bus"
	"github.com/mvalente/daybook/internal/config"
	"github.com/mvalente/daybook/internal/conflict"
	"github.com/mvalente/daybook/internal/connectivity"
	"github.com/mvalente/daybook/internal/lock"
	"github.com/mvalente/daybook/internal/logging"
	"github.com/mvalente/daybook/internal/notify"
	"github.com/mvalente/daybook/internal/profile"
	"github.com/mvalente/daybook/internal/remote"
	"github.com/mvalente/daybook/internal/status"
	"github.com/mvalente/daybook/internal/store"
	"github.com/mvalente/daybook/internal/syncer"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	RemoteURL   string // optional override for config.toml remote_url
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideTracker,
			provideLock,
			provideStore,
			provideApplier,
			provideProber,
			provideCoordinator,
			provideRunner,
			provideResolver,
			provideReporter,
			provideChannel,
			provideScheduler,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideConfig(p Params, logger *zap.Logger) *config.Config {
	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		logger.Info("no config file, using defaults", zap.Error(err))
		cfg = config.Default()
	}
	if p.RemoteURL != "" {
		cfg.RemoteURL = p.RemoteURL
	}
	return cfg
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideTracker(b *bus.Bus) *connectivity.Tracker {
	return connectivity.NewTracker(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideApplier(cfg *config.Config) *remote.HTTPApplier {
	return remote.NewHTTPApplier(cfg.RemoteURL)
}

func provideProber(applier *remote.HTTPApplier, tracker *connectivity.Tracker) *connectivity.Prober {
	check := func(ctx context.Context) bool {
		return applier.Ping(ctx) == nil
	}
	return connectivity.NewProber(tracker, check, 0)
}

func provideCoordinator(db *store.DB, applier *remote.HTTPApplier, tracker *connectivity.Tracker, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *syncer.Coordinator {
	return syncer.NewCoordinator(db, applier, tracker, b, logger, cfg.MaxAttempts)
}

func provideRunner(coord *syncer.Coordinator, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *syncer.Runner {
	return syncer.NewRunner(coord, b, logger, cfg.DrainInterval.Duration)
}

func provideResolver(db *store.DB, b *bus.Bus, logger *zap.Logger) *conflict.Resolver {
	return conflict.NewResolver(db, b, logger)
}

func provideReporter(db *store.DB, tracker *connectivity.Tracker) *status.Reporter {
	return status.NewReporter(db, tracker)
}

func provideChannel(logger *zap.Logger) notify.Channel {
	return notify.NewLogChannel(logger)
}

func provideScheduler(db *store.DB, ch notify.Channel, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *notify.Scheduler {
	return notify.NewScheduler(db, ch, b, logger, notify.Options{
		CheckInterval: cfg.CheckInterval.Duration,
		ShortHorizon:  cfg.ShortHorizon.Duration,
		GraceWindow:   cfg.GraceWindow.Duration,
		Retention:     cfg.Retention.Duration,
	})
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, db *store.DB, runner *syncer.Runner, scheduler *notify.Scheduler, prober *connectivity.Prober, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Scheduler first: its startup sweep recovers notifications
			// missed while the process was down.
			scheduler.Start(context.Background())

			// Runner drains the replay queue whenever connectivity returns.
			runner.Start(context.Background())

			// Prober feeds the connectivity tracker.
			prober.Start(context.Background())

			logger.Info("daemon started")
			return nil
		},
		OnStop: func(_ context.Context) error {
			prober.Stop()
			runner.Stop()
			scheduler.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
