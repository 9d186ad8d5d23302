package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // TIME_ZONE must load in images without zoneinfo

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/infrawatch/internal/alerting"
	"github.com/hamed0406/infrawatch/internal/config"
	"github.com/hamed0406/infrawatch/internal/httpapi"
	apimw "github.com/hamed0406/infrawatch/internal/httpapi/middleware"
	"github.com/hamed0406/infrawatch/internal/inventory"
	"github.com/hamed0406/infrawatch/internal/logging"
	"github.com/hamed0406/infrawatch/internal/metrics"
	"github.com/hamed0406/infrawatch/internal/notify"
	"github.com/hamed0406/infrawatch/internal/probe"
	"github.com/hamed0406/infrawatch/internal/queue"
	"github.com/hamed0406/infrawatch/internal/runner"
	"github.com/hamed0406/infrawatch/internal/scheduler"
)

func main() {
	config.LoadDotEnv()
	cfg := config.FromEnv()
	logger, err := logging.New(logging.Options{Dir: cfg.LogDir, Level: cfg.LogLevel, Console: cfg.LogConsole})
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		for _, e := range multierr.Errors(err) {
			logger.Error("config_invalid", zap.Error(e))
		}
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("exit", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()
	logger.Info("store_opened", zap.String("driver", cfg.StoreDriver))

	if cfg.InventoryFile != "" {
		inv, err := inventory.Load(cfg.InventoryFile)
		if err != nil {
			return err
		}
		if _, err := inventory.Seed(ctx, store, inv, logger); err != nil {
			return err
		}
	}

	rec := metrics.NewRecorder()

	notifiers := notify.Multi{notify.Log{L: logger}}
	if s := notify.NewSlack(cfg.SlackWebhook); s != nil {
		s.Username = cfg.NotifySubjectPrefix
		notifiers = append(notifiers, s)
	}
	if t := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID); t != nil {
		notifiers = append(notifiers, t)
	}

	alerts := alerting.NewManager(store, notifiers, logger, alerting.Config{
		SubjectPrefix: cfg.NotifySubjectPrefix,
		Metrics:       rec,
	})
	worker := runner.New(store, probe.NewSet(cfg.PingPrivileged), alerts, logger, runner.Config{
		DefaultTimeout: cfg.DefaultTimeout,
		Metrics:        rec,
	})
	pool := queue.New(worker, logger, queue.Config{
		Workers: cfg.Workers,
		Size:    cfg.QueueSize,
		Rate:    cfg.DispatchRate,
		Metrics: rec,
	})
	sched, err := scheduler.New(store, pool, logger, scheduler.Config{Schedule: cfg.Schedule, Metrics: rec})
	if err != nil {
		return err
	}

	api := httpapi.NewServer(logger, metrics.NewAggregator(store, loc), store, store, pool, rec)
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Cancelling ctx stops new work; runs already started finish first.
	pool.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	pool.Stop()
	logger.Info("shutdown_complete")
	return err
}
