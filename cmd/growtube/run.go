package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"growtube/internal/api"
	"growtube/internal/bot"
	"growtube/internal/career"
	"growtube/internal/config"
	"growtube/internal/cooldown"
	"growtube/internal/db"
	"growtube/internal/jobs"
	"growtube/internal/ledger"
	"growtube/internal/market"
	"growtube/internal/notify"
	"growtube/internal/trade"

	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 15 * time.Second
	pruneSchedule   = "@every 10m"
	jobTimeout      = 30 * time.Second
)

func run(ctx context.Context, logger *slog.Logger, cfg config.BotConfig, migrate bool) error {
	started := time.Now()

	store, err := openStore(ctx, logger, cfg, migrate)
	if err != nil {
		return err
	}
	defer store.Close()

	publisher, closePublisher, err := openPublisher(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	limits := cooldown.New()
	trades := trade.NewManager(store, logger, trade.Options{InviteTimeout: cfg.InviteTimeout})
	engine := market.NewEngine(store, logger, market.Options{
		Publisher: publisher,
		Trades:    trades,
		Cooldowns: limits,
	})
	defer engine.Wait()

	b, err := bot.New(bot.Options{Token: cfg.Token, Prefix: cfg.Prefix, LogChannelID: cfg.LogChannelID}, logger)
	if err != nil {
		return err
	}
	careers := career.NewScheduler(store, logger, career.Options{
		Cooldowns:      limits,
		ConfirmTimeout: cfg.ConfirmTimeout,
		Channel:        b.Channel,
		Announce:       b.Channel(cfg.LogChannelID),
	})
	defer careers.Close()

	b.SetCommands(bot.NewCommands(bot.Deps{
		Market:  engine,
		Trades:  trades,
		Careers: careers,
		Owners:  cfg.Owners,
		Started: started,
		Latency: b.Latency,
	}))

	resumed, err := careers.Resume(ctx)
	if err != nil {
		return fmt.Errorf("resume work sessions: %w", err)
	}
	logger.Info("work sessions resumed", "count", resumed)

	sched := jobs.New(ctx, logger, jobTimeout)
	if err := sched.Add(jobs.Every(cfg.ReconcileEvery), jobs.Reconcile(careers, logger)); err != nil {
		return err
	}
	if err := sched.Add(pruneSchedule, jobs.PruneCooldowns(limits, nil)); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	server := api.New(logger, engine, careers, b, started)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("growtube api listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("growtube shutting down")
	return err
}

func openStore(ctx context.Context, logger *slog.Logger, cfg config.BotConfig, migrate bool) (ledger.Store, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory store, balances are lost on exit")
		return ledger.NewMemory(ledger.DefaultCatalog()), nil
	}
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := db.ApplySchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("schema applied")
	}
	return ledger.NewPostgres(pool, logger), nil
}

func openPublisher(ctx context.Context, logger *slog.Logger, cfg config.BotConfig) (market.Publisher, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info("REDIS_URL not set, price notifications disabled")
		return notify.Nop{}, func() {}, nil
	}
	client, err := notify.Dial(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return notify.NewRedis(client, cfg.MarketChannel), func() { _ = client.Close() }, nil
}
