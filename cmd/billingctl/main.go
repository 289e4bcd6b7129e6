package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/netline-isp/billing/cmd/billingctl/cli"
	"github.com/netline-isp/billing/internal/app"
	"github.com/netline-isp/billing/internal/platform/cache"
	"github.com/netline-isp/billing/internal/platform/db"
	"github.com/netline-isp/billing/jobs"
	"github.com/netline-isp/billing/migrations"
)

type migrator struct {
	dsn    string
	logger *slog.Logger
}

func (m migrator) Up() error { return db.Migrate(m.dsn, migrations.FS, m.logger) }

func (m migrator) Down(steps int) error { return db.MigrateDown(m.dsn, migrations.FS, steps) }

func main() {
	_ = godotenv.Load()

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	open := func(ctx context.Context) (*cli.Backend, error) {
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			logger.Warn("redis unavailable, running without lock and cache", slog.Any("error", err))
			redisClient = nil
		}
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		notifier := jobs.NewClient(redisOpts)
		queue := cli.NewQueueCLI(redisOpts)
		services := app.NewServices(app.Deps{
			Config:   cfg,
			Logger:   logger,
			Pool:     pool,
			Redis:    redisClient,
			Notifier: notifier,
		})
		return &cli.Backend{
			Billing:   services.Billing,
			Chart:     services.Accounting,
			Integrity: services.Reporting,
			Queue:     queue,
			Close: func() {
				_ = queue.Close()
				_ = notifier.Close()
				if redisClient != nil {
					_ = redisClient.Close()
				}
				pool.Close()
			},
		}, nil
	}

	root := cli.NewRootCommand(open, migrator{dsn: cfg.PGDSN, logger: logger})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
