package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration/events"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// Ledger bundles the posting engine with the collaborators both binaries share.
type Ledger struct {
	Journals   journals.Repository
	Resolver   *accounts.CachedResolver
	Engine     *posting.Engine
	Service    posting.Service
	Hooks      *integration.Hooks
	Dispatcher *events.Dispatcher
	Alerter    *observability.Alerter

	logger  *slog.Logger
	closers []func() error
}

// LedgerDeps carries the infrastructure a Ledger is built on.
type LedgerDeps struct {
	Config  *Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
}

// BuildLedger wires repositories, the strategy registry, the engine and event publication.
func BuildLedger(deps LedgerDeps) (*Ledger, error) {
	cfg, logger := deps.Config, deps.Logger
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	hub, err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv)
	if err != nil {
		return nil, fmt.Errorf("app: init sentry: %w", err)
	}
	alerter := observability.NewAlerter(hub, logger)

	registry, err := posting.NewRegistry(posting.DefaultStrategies()...)
	if err != nil {
		return nil, err
	}
	resolver := accounts.NewCachedResolver(accounts.NewService(accounts.NewRepository(deps.Pool)), deps.Redis, cfg.LedgerCOACacheTTL)
	journalRepo := journals.NewRepository(deps.Pool)
	engine := posting.NewEngine(journalRepo, registry, posting.Chart{
		Accounts: resolver,
		Mappings: mappings.NewRepository(deps.Pool),
	}, posting.Options{
		Workers:  int64(cfg.LedgerAsyncWorkers),
		Logger:   logger,
		Recorder: deps.Metrics,
		Alerter:  alerter,
	})
	service := posting.WithLogging(engine, logger)

	publisher, closePublisher, err := NewEventPublisher(cfg, deps.Redis)
	if err != nil {
		return nil, err
	}
	dispatcher := events.NewDispatcher(publisher, logger,
		events.WithRetries(cfg.EventMaxRetries, time.Minute),
		events.WithFailureHook(deps.Metrics.IncPublishFailure),
	)

	return &Ledger{
		Journals:   journalRepo,
		Resolver:   resolver,
		Engine:     engine,
		Service:    service,
		Hooks:      integration.NewHooks(service, dispatcher, logger),
		Dispatcher: dispatcher,
		Alerter:    alerter,
		logger:     logger,
		closers:    []func() error{closePublisher},
	}, nil
}

// Shutdown drains in-flight postings and event deliveries, then releases publishers.
func (l *Ledger) Shutdown(ctx context.Context) error {
	if l == nil {
		return nil
	}
	var errs []error
	if err := l.Engine.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close engine: %w", err))
	}
	if err := l.Dispatcher.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain events: %w", err))
	}
	for _, closeFn := range l.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	l.Alerter.Flush(2 * time.Second)
	return errors.Join(errs...)
}

// NewEventPublisher selects the sink named by EVENT_SINK. The returned func
// releases the sink's connections.
func NewEventPublisher(cfg *Config, redisClient *redis.Client) (events.Publisher, func() error, error) {
	switch cfg.EventSink {
	case EventSinkRedis:
		if redisClient == nil {
			return nil, nil, errors.New("app: redis event sink requires a redis client")
		}
		return events.NewRedisSink(redisClient, cfg.EventRedisPrefix), func() error { return nil }, nil
	case EventSinkAMQP:
		conn, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, nil, err
		}
		return events.NewAMQPSink(conn.Channel(), cfg.AMQPExchange), conn.Close, nil
	case EventSinkAsynq, "":
		client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			return nil, nil, err
		}
		return events.NewAsynqSink(client.Asynq(), jobs.QueueLedgerEvents), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("app: unsupported event sink %q", cfg.EventSink)
	}
}
