package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	cli "github.com/urfave/cli/v3"

	"github.com/gridbase/gridbase/pkg/channels/gochannel"
	"github.com/gridbase/gridbase/pkg/channels/kafka"
	"github.com/gridbase/gridbase/pkg/delivery"
	"github.com/gridbase/gridbase/pkg/engine"
	"github.com/gridbase/gridbase/pkg/eventbus"
	"github.com/gridbase/gridbase/pkg/log"
	"github.com/gridbase/gridbase/pkg/persistence"
	"github.com/gridbase/gridbase/pkg/persistence/file"
	"github.com/gridbase/gridbase/pkg/persistence/postgresql"
	"github.com/gridbase/gridbase/pkg/protocol"
	"github.com/gridbase/gridbase/pkg/records"
	"github.com/gridbase/gridbase/pkg/runner"
	"github.com/gridbase/gridbase/pkg/scheduler"
	trc "github.com/gridbase/gridbase/pkg/tracer"
	"github.com/gridbase/gridbase/pkg/web"
)

const shutdownTimeout = 30 * time.Second

func runEngine(ctx context.Context, command *cli.Command) error {
	logger := log.WithModule("gridbase-engine")

	tracerProvider, err := trc.InitTracer(ctx, "gridbase-engine")
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer provider", "error", err)
		}
	}()

	store, err := newPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return fmt.Errorf("failed to open persistence: %w", err)
	}

	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Error("failed to close persistence", "error", err)
		}
	}()

	bus, err := newEventBus(command.String("event-bus"), logger)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}

	queue, err := newRetryQueue(command.String("redis-url"))
	if err != nil {
		return fmt.Errorf("failed to create retry queue: %w", err)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Error("failed to close retry queue", "error", err)
		}
	}()

	recordStore := records.NewClient(
		command.String("records-url"),
		command.String("records-token"),
		logger,
	)

	deliveryService := delivery.NewService(store, bus, queue, logger)

	deps := protocol.Dependencies{
		Logger:   logger,
		Records:  recordStore,
		Delivery: deliveryService,
	}

	workflowRunner := runner.New(store, bus, runner.Dispatchers(deps), logger)
	tickSource := scheduler.New(bus, logger)

	eng := engine.New(
		store,
		bus,
		deps,
		workflowRunner,
		deliveryService,
		tickSource,
		logger,
		engine.WithWorkers(command.Int("workers")),
	)

	listener := web.NewListener(store, bus, logger)

	go func() {
		if err := listener.Start(command.Int("webhook-port")); err != nil {
			logger.Error("webhook listener stopped", "error", err)
		}
	}()

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	logger.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return eng.Stop(stopCtx)
}

func newPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	}
}

func newEventBus(provider string, logger *slog.Logger) (eventbus.EventBus, error) {
	watermillLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermillLogger, "gridbase-engine")
		if err != nil {
			return nil, err
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "memory", "":
		pub, sub, err := gochannel.CreateChannel(watermillLogger)
		if err != nil {
			return nil, err
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}

func newRetryQueue(redisURL string) (delivery.RetryQueue, error) {
	if redisURL == "" {
		return delivery.NewMemoryQueue(), nil
	}

	return delivery.NewRedisQueue(redisURL)
}
