package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	outboxapp "github.com/adminkit/backend/internal/application/outbox"
	tradeapp "github.com/adminkit/backend/internal/application/trade"
	"github.com/adminkit/backend/internal/domain/shared"
	"github.com/adminkit/backend/internal/infrastructure/cache"
	"github.com/adminkit/backend/internal/infrastructure/config"
	"github.com/adminkit/backend/internal/infrastructure/event"
	"github.com/adminkit/backend/internal/infrastructure/logger"
	"github.com/adminkit/backend/internal/infrastructure/persistence"
	"github.com/adminkit/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const serviceName = "outbox-relay"

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.toml in the working directory)")
	flag.Usage = printUsage
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.FromConfig(cfg.Log, serviceName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	if len(args) == 0 || args[0] == "run" {
		err = run(ctx, cfg, log)
	} else {
		err = admin(ctx, cfg, log, args)
	}
	if err != nil {
		log.Error("Outbox relay stopped with error", zap.Error(err))
		_ = logger.Sync(log)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: outbox-relay [flags] [command]

Commands:
  run              Relay committed events to handlers until interrupted (default)
  stats            Print the number of outbox entries per status
  dead [page]      List dead letters, 20 per page
  retry <id>       Requeue one dead letter
  retry-all        Requeue every dead letter

Flags:
`)
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Configuration is read from config.toml and ADMINKIT_* environment variables.
`)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// run wires the relay and blocks until ctx is cancelled
func run(ctx context.Context, cfg *config.Config, baseLog *zap.Logger) (err error) {
	tel, err := telemetry.Setup(ctx, cfg.Telemetry, baseLog)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = errors.Join(err, tel.Shutdown(shutdownCtx))
	}()

	log := tel.BridgeLogger(baseLog)
	log.Info("Starting outbox relay",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.Int("batch_size", cfg.Event.BatchSize),
		zap.Duration("poll_interval", cfg.Event.PollInterval),
	)

	if !cfg.Event.ProcessorEnabled {
		log.Warn("Outbox processor is disabled by configuration, nothing to do")
		return nil
	}

	plugins, err := tel.GormPlugins()
	if err != nil {
		return fmt.Errorf("create gorm plugins: %w", err)
	}
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
	)
	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithGormLogger(gormLog),
		persistence.WithPlugins(plugins...),
	)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("Error closing database", zap.Error(closeErr))
		}
	}()
	log.Info("Database connected successfully")

	store, err := cache.NewIdempotencyStoreFactory(cfg.Event, cfg.Redis, cache.WithLogger(log)).Create(ctx)
	if err != nil {
		return fmt.Errorf("create idempotency store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Error("Error closing idempotency store", zap.Error(closeErr))
		}
	}()

	serializer, err := event.NewTradeEventSerializer()
	if err != nil {
		return err
	}

	bus := event.NewInMemoryEventBus(log)
	idempotency := event.WithIdempotencyConfig(shared.IdempotencyConfig{
		Enabled: true,
		TTL:     cfg.Event.IdempotencyTTL,
	})
	handlers := event.WrapHandlersWithIdempotency(
		[]shared.EventHandler{tradeapp.NewSalesOrderLifecycleHandler(log)},
		store, log, idempotency,
	)
	for _, h := range handlers {
		bus.Subscribe(h)
	}
	if err := bus.Start(ctx); err != nil {
		return fmt.Errorf("start event bus: %w", err)
	}
	defer func() {
		if stopErr := bus.Stop(context.Background()); stopErr != nil {
			log.Error("Error stopping event bus", zap.Error(stopErr))
		}
	}()

	outboxRepo := event.NewGormOutboxRepository(db.DB)

	meter := tel.AppMeter()
	outboxMetrics, err := telemetry.NewOutboxMetrics(meter)
	if err != nil {
		return err
	}
	backlog, err := telemetry.ObserveOutboxBacklog(meter, outboxRepo.CountByStatus)
	if err != nil {
		return err
	}
	defer func() {
		_ = backlog.Unregister()
	}()

	processor := event.NewOutboxProcessor(outboxRepo, bus, serializer,
		event.OutboxProcessorConfigFrom(cfg.Event), log,
		event.WithOutboxMetrics(outboxMetrics),
	)
	// The processor outlives ctx so Stop can drain the current batch
	if err := processor.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("start outbox processor: %w", err)
	}
	log.Info("Outbox relay started")

	<-ctx.Done()
	log.Info("Shutting down outbox relay...")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := processor.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop outbox processor: %w", err)
	}

	log.Info("Outbox relay exited")
	return nil
}

// admin runs a one-shot dead letter command and prints the result as JSON
func admin(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string) error {
	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithGormLogger(logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))),
	)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("Error closing database", zap.Error(closeErr))
		}
	}()

	service := outboxapp.NewDeadLetterService(event.NewGormOutboxRepository(db.DB), log)

	var result any
	switch args[0] {
	case "stats":
		result, err = service.Stats(ctx)
	case "dead":
		page := 1
		if len(args) > 1 {
			if page, err = strconv.Atoi(args[1]); err != nil {
				return fmt.Errorf("invalid page %q: %w", args[1], err)
			}
		}
		result, err = service.List(ctx, outboxapp.Page{Number: page})
	case "retry":
		if len(args) < 2 {
			return errors.New("retry requires an entry id")
		}
		id, parseErr := uuid.Parse(args[1])
		if parseErr != nil {
			return fmt.Errorf("invalid entry id %q: %w", args[1], parseErr)
		}
		result, err = service.Retry(ctx, id)
	case "retry-all":
		var count int64
		count, err = service.RetryAll(ctx)
		result = map[string]int64{"requeued": count}
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
