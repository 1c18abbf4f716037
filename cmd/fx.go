package cmd

import (
	"context"
	"log/slog"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"

	"github.com/relayforge/hostess/config"
	"github.com/relayforge/hostess/infra/httpserver"
	"github.com/relayforge/hostess/internal/eventbus"
	"github.com/relayforge/hostess/internal/lobby"
	"github.com/relayforge/hostess/internal/samplegame"
)

// NewApp builds the fx application graph: config, logger, tracer,
// eventbus, lobby, and the http server that ties them together. Mirrors
// the teacher's fx.New(fx.Provide(...), Module...) shape. watcher's
// Level() backs the logger, so editing the config file's loglevel takes
// effect live without restarting the process.
func NewApp(cfg *config.Config, watcher *config.Watcher) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			func() *config.Watcher { return watcher },
			ProvideLogger,
			ProvideTracerProvider,
			ProvideEventBus,
			ProvideLobby,
		),
		fx.Invoke(RegisterHTTPServer),
	)
}

// ProvideLogger builds the process-wide structured logger against the
// watcher's live level var.
func ProvideLogger(watcher *config.Watcher) *slog.Logger {
	return config.NewLogger(watcher.Level())
}

// ProvideTracerProvider builds the SDK TracerProvider and registers its
// shutdown with the fx lifecycle.
func ProvideTracerProvider(lc fx.Lifecycle) *sdktrace.TracerProvider {
	tp := config.NewTracerProvider(ServiceName)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return config.ShutdownTracerProvider(ctx, tp)
		},
	})
	return tp
}

// ProvideEventBus wires the in-process lifecycle-event router, adding an
// AMQP fan-out publisher when configured, and runs the watermill router
// for the lifetime of the app.
func ProvideEventBus(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (eventbus.Publisher, error) {
	pub, router, err := eventbus.NewInProcess(logger)
	if err != nil {
		return nil, err
	}

	if cfg.EventBus.AMQPURL != "" {
		pub, err = eventbus.WithAMQP(pub, cfg.EventBus.AMQPURL, logger)
		if err != nil {
			return nil, err
		}
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := router.Run(context.Background()); err != nil {
					logger.Error("eventbus router stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return router.Close()
		},
	})

	return pub, nil
}

// ProvideLobby builds the instance registry and registers its graceful
// shutdown (every live instance stopped, every sink returned) with the fx
// lifecycle.
func ProvideLobby(cfg *config.Config, logger *slog.Logger, bus eventbus.Publisher, lc fx.Lifecycle) (*lobby.Lobby, error) {
	l, err := lobby.New(logger, bus,
		lobby.WithMailboxSize(cfg.Instances.MailboxSize),
		lobby.WithIdleGrace(cfg.IdleGrace()),
		lobby.WithTombstoneCacheSize(cfg.Instances.TombstoneCacheSize),
	)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return l.Shutdown(ctx)
		},
	})

	return l, nil
}

// RegisterHTTPServer starts the websocket/admin http server for the
// lifetime of the app. Instances are created on demand via
// POST /admin/instances, each backed by the sample game simulation.
func RegisterHTTPServer(lc fx.Lifecycle, cfg *config.Config, l *lobby.Lobby, logger *slog.Logger) {
	srv := httpserver.New(httpserver.Options{
		Addr:        cfg.HTTP.Addr,
		Lobby:       l,
		Constructor: samplegame.New(),
		Logger:      logger,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil {
					logger.Error("http server stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
