package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/cmd/ledger/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	postinghttp "github.com/odyssey-erp/odyssey-ledger/internal/accounting/posting/http"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		os.Exit(runCommand(ctx, os.Args[1], os.Args[2:]))
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("ledger server", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	ledger, err := app.BuildLedger(app.LedgerDeps{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Redis:   redisClient,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		PostingHandler: postinghttp.NewHandler(logger, ledger.Hooks),
		JobHandler:     jobs.NewHandler(nil, logger),
		Metrics:        metrics,
		Ready: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			return redisClient.Ping(ctx).Err()
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("event_sink", cfg.EventSink))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.AppShutdownGrace)
		defer cancel()
		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("graceful shutdown: %w", err))
		}
		if err := ledger.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

func runCommand(ctx context.Context, name string, args []string) int {
	switch name {
	case "serve":
		cfg, err := app.LoadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			return 1
		}
		if err := serve(ctx, cfg, app.NewLogger(cfg)); err != nil {
			fmt.Fprintf(os.Stderr, "ledger server: %v\n", err)
			return 1
		}
		return 0
	case "demo":
		fs := flag.NewFlagSet("demo", flag.ContinueOnError)
		opts := cli.DemoOptions{}
		fs.StringVar(&opts.Currency, "currency", "UGX", "ISO 4217 currency for the demo chart")
		fs.StringVar(&opts.Deposit, "deposit", "150000", "deposit amount")
		fs.StringVar(&opts.Withdrawal, "withdrawal", "50000", "withdrawal amount")
		fs.BoolVar(&opts.JSONOutput, "json", false, "print JSON instead of a table")
		if err := fs.Parse(args); err != nil {
			return 2
		}
		return cli.DemoCommand(ctx, opts)
	case "accounts":
		return runAccounts(ctx, args)
	case "jobs":
		return runJobs(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "usage: ledger [serve | demo [-json] | accounts [-json] | jobs trigger|stats|archived]\nunknown command %q\n", name)
		return 2
	}
}

func runJobs(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	redisAddr := fs.String("redis", envOr("REDIS_ADDR", "127.0.0.1:6379"), "redis address")
	lookback := fs.Int("lookback", 24, "integrity scan window in hours")
	if err := fs.Parse(args); err != nil || fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: ledger jobs [-redis addr] [-lookback hours] trigger <job> | stats | archived")
		return 2
	}
	jobsCLI, err := cli.NewJobsCLI(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()

	switch fs.Arg(0) {
	case "trigger":
		if fs.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "jobs trigger: job name required")
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, fs.Arg(1), *lookback)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	case "stats":
		stats, err := jobsCLI.InspectQueues(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		for _, s := range stats {
			fmt.Printf("%-14s pending=%d active=%d scheduled=%d retry=%d archived=%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
		}
		return 0
	case "archived":
		archived, err := jobsCLI.ListArchivedEvents(ctx, 50)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs archived: %v\n", err)
			return 1
		}
		for _, info := range archived {
			fmt.Printf("%s %s retried=%d last_err=%q\n", info.ID, info.Type, info.Retried, info.LastErr)
		}
		return 0
	default:
		fmt.Fprintf(os.Stderr, "jobs: unknown subcommand %q\n", fs.Arg(0))
		return 2
	}
}

func runAccounts(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("accounts", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		fmt.Fprintf(os.Stderr, "accounts: %v\n", err)
		return 1
	}
	defer pool.Close()
	return cli.AccountsCommand(ctx, accounts.NewService(accounts.NewRepository(pool)), cli.AccountsOptions{JSONOutput: *jsonOut})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
