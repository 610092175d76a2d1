package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nezbut/tgmailer/internal/broker"
	"github.com/nezbut/tgmailer/internal/config"
	"github.com/nezbut/tgmailer/internal/interactor"
	"github.com/nezbut/tgmailer/internal/mailing"
	"github.com/nezbut/tgmailer/internal/repository"
	"github.com/nezbut/tgmailer/internal/scheduler"
	"github.com/nezbut/tgmailer/internal/tasks"
	"github.com/nezbut/tgmailer/internal/transport/telegram"
	"github.com/nezbut/tgmailer/pkg/logx"
)

// App wires the whole service: config, logging, broker, stores, scheduler,
// dispatcher, task worker, and the mailing pipeline. Construct with New,
// then Start; Stop unwinds in reverse order.
type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	broker *broker.Client
	rdb    *redis.Client
	users  *repository.UserRepository

	dispatcher *scheduler.Dispatcher
	worker     *tasks.Worker

	// Use-case surfaces for whatever frontend drives the service.
	Mailings *interactor.Mailings
	Messages *interactor.Messages
	Users    *interactor.Users

	cancel context.CancelFunc
}

// New loads the config and constructs every component. Nothing is consuming
// yet when New returns; call Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	bootLog := logx.NewConsole("info")
	cfgm := config.NewManager(cfgPath, bootLog)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(cfg.LogxConfig())
	log = log.With(logx.String("svc", "tgmailer"))

	adapter, err := telegram.New(telegram.Config{
		Token:      cfg.BotToken(),
		RatePerSec: cfg.Telegram.RatePerSec,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	users, err := repository.NewUserRepository(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("user repository: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		DB:       cfg.Redis.DB,
		Password: cfg.Redis.Password,
	})
	store := scheduler.NewRedisStore(rdb, cfg.Redis.KeyPrefix, log)

	brokerCfg, err := cfg.BrokerConfig()
	if err != nil {
		return nil, err
	}
	bk, err := broker.Connect(ctx, brokerCfg, log)
	if err != nil {
		return nil, fmt.Errorf("broker: %w", err)
	}

	sched := scheduler.New(store, log)
	dispatcher, err := scheduler.NewDispatcher(
		cfg.DispatcherConfig(bk.TasksSubject()), store, bk, log)
	if err != nil {
		return nil, err
	}

	manager := mailing.NewManager(bk, log)
	pipeCfg, err := cfg.PipelineConfig()
	if err != nil {
		return nil, err
	}
	pipeline := mailing.NewPipeline(pipeCfg, bk, adapter, log)

	registry := tasks.NewRegistry()
	if err := tasks.RegisterBuiltin(registry, tasks.HandlerDeps{
		Transport: adapter,
		Mailings:  pipeline,
		Log:       log,
	}); err != nil {
		return nil, err
	}

	workerCfg, err := cfg.WorkerConfig()
	if err != nil {
		return nil, err
	}
	worker := tasks.NewWorker(workerCfg, bk, registry, log)

	return &App{
		cfgm:       cfgm,
		logs:       logSvc,
		log:        log,
		broker:     bk,
		rdb:        rdb,
		users:      users,
		dispatcher: dispatcher,
		worker:     worker,
		Mailings:   interactor.NewMailings(manager, pipeline, sched, users),
		Messages:   interactor.NewMessages(sched),
		Users:      interactor.NewUsers(users),
	}, nil
}

// Start launches the dispatcher, the task worker, and the config watcher.
// It returns immediately; the loops run until Stop.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	go func() {
		if err := a.dispatcher.Start(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Error("dispatcher exited", logx.Err(err))
		}
	}()
	go func() {
		if err := a.worker.Start(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Error("task worker exited", logx.Err(err))
		}
	}()

	// Only the logging block is hot-reloadable.
	updates := a.cfgm.Subscribe()
	go func() {
		if err := a.cfgm.Watch(runCtx); err != nil {
			a.log.Warn("config watch unavailable", logx.Err(err))
		}
	}()
	go func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg := <-updates:
				if cfg == nil {
					continue
				}
				a.logs.Apply(cfg.LogxConfig())
				a.log.Info("logging config applied",
					logx.String("level", cfg.Logging.Level))
			}
		}
	}()

	a.log.Info("started")
	return nil
}

// Stop shuts the loops down and releases connections. Consumers stop first
// so in-flight records get their ack or nak before the broker goes away.
func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.dispatcher.Stop(stopCtx); err != nil {
		a.log.Warn("dispatcher stop", logx.Err(err))
	}
	if err := a.worker.Stop(stopCtx); err != nil {
		a.log.Warn("task worker stop", logx.Err(err))
	}

	a.broker.Close()
	if err := a.rdb.Close(); err != nil {
		a.log.Warn("redis close", logx.Err(err))
	}
	if err := a.users.Close(); err != nil {
		a.log.Warn("database close", logx.Err(err))
	}

	a.log.Info("stopped")
	return a.logs.Close()
}
