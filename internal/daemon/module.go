package daemon

import (
	"context"

	"github.com/matheus3301/chansync/internal/api"
	"github.com/matheus3301/chansync/internal/bus"
	"github.com/matheus3301/chansync/internal/config"
	"github.com/matheus3301/chansync/internal/lock"
	"github.com/matheus3301/chansync/internal/logging"
	"github.com/matheus3301/chansync/internal/metrics"
	"github.com/matheus3301/chansync/internal/outbox"
	"github.com/matheus3301/chansync/internal/session"
	"github.com/matheus3301/chansync/internal/status"
	"github.com/matheus3301/chansync/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
	MetricsAddr string // overrides daemon.metrics_addr when set
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideSender,
			provideRegistry,
			NewRPCMetrics,
			provideMetricsServer,
			health.NewServer,
			provideSessionService,
			provideChannelService,
			provideMessageService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideConfig(logger *zap.Logger) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		return nil, err
	}
	logger.Info("config loaded", zap.String("path", session.ConfigPath()))
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is never opened by a
// second daemon.
func provideStore(p Params, _ *lock.Lock, machine *status.Machine, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	_ = machine.Transition(status.Migrating)
	result, err := db.Migrate()
	if err != nil {
		_ = machine.Fail(err)
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

func provideSender(db *store.DB, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, outbox.AcceptAll, b, logger)
}

func provideRegistry() (*prometheus.Registry, prometheus.Registerer) {
	reg := metrics.NewRegistry()
	return reg, reg
}

func provideMetricsServer(p Params, cfg *config.Config, reg *prometheus.Registry, logger *zap.Logger) *metrics.Server {
	addr := cfg.Daemon.MetricsAddr
	if p.MetricsAddr != "" {
		addr = p.MetricsAddr
	}
	return metrics.NewServer(addr, reg, logger)
}

func provideSessionService(p Params, m *status.Machine, db *store.DB) *api.SessionService {
	return api.NewSessionService(p.SessionName, m, db)
}

func provideChannelService(db *store.DB) *api.ChannelService {
	return api.NewChannelService(db)
}

func provideMessageService(db *store.DB, b *bus.Bus) *api.MessageService {
	return api.NewMessageService(db, b)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, sender *outbox.Sender, metricsSrv *metrics.Server, healthSrv *health.Server, machine *status.Machine, b *bus.Bus, logger *zap.Logger) {
	var mirror *healthMirror
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			mirror = startHealthMirror(healthSrv, b, machine)

			if err := metricsSrv.Start(); err != nil {
				_ = machine.Fail(err)
				return err
			}

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
					_ = machine.Fail(err)
				}
			}()

			// Start outbox sender.
			sender.Start(context.Background())

			if err := machine.Transition(status.Serving); err != nil {
				logger.Warn("could not enter serving state", zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			_ = machine.Transition(status.Stopping)
			sender.Stop()
			srv.Stop(ctx)
			if err := metricsSrv.Stop(ctx); err != nil {
				logger.Warn("error stopping metrics server", zap.Error(err))
			}
			if mirror != nil {
				mirror.Close()
			}
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
