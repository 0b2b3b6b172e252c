// Package app 根据配置组装存储、外部系统适配器与协调引擎。
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"listsync/backend/internal/actions"
	"listsync/backend/internal/command"
	"listsync/backend/internal/config"
	"listsync/backend/internal/health"
	"listsync/backend/internal/mailman"
	"listsync/backend/internal/monitoring"
	"listsync/backend/internal/postfix"
	"listsync/backend/internal/publish"
	"listsync/backend/internal/reconcile"
	"listsync/backend/internal/secret"
	"listsync/backend/internal/service"
	"listsync/backend/internal/storage"
	"listsync/backend/internal/storage/memory"
	"listsync/backend/internal/storage/postgres"
	redisstore "listsync/backend/internal/storage/redis"
)

// App 进程内共享的组件
type App struct {
	Config  *config.Config
	Log     *zap.Logger
	Store   storage.Store
	Redis   *redisstore.Client // 未启用 Redis 时为 nil
	Queue   actions.Queue
	Metrics *monitoring.Metrics

	Engine   *reconcile.Engine
	Executor *actions.Executor
	Runner   *reconcile.Runner
	Lists    *service.MailingListService
}

// New 按配置创建全部组件
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Log:     log,
		Metrics: monitoring.NewMetrics(),
	}

	// 初始化存储层
	if cfg.Database.Type != "" {
		store, err := postgres.NewStore(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("initialize database storage: %w", err)
		}
		a.Store = store
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		a.Store = memory.NewStore()
		log.Warn("using memory storage (development mode)")
	}

	// 重建/重启信号
	if cfg.Actions.Backend == "redis" {
		client, err := redisstore.New(cfg.Redis, log)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Redis = client
		a.Queue = actions.NewRedisQueue(client.Client(), cfg.Actions.RedisKey)
	} else {
		a.Queue = actions.NewMemoryQueue()
	}

	box, err := secret.NewBox(cfg.Secret.Key)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	runner := command.NewExecRunner(cfg.Mailman.CommandTimeout, log)

	sites, err := publish.NewSiteManager(cfg, runner, a.Queue, log)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	records := publish.NewRecordPublisher(cfg, a.Store, log)
	var dns publish.DNSPublisher = records
	if cfg.DNS.Provider == "route53" {
		client, err := publish.NewRoute53Client(ctx, cfg.DNS.AWSRegion)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		dns = publish.NewRoute53Mirror(records, client, cfg.DNS.Route53Zone, log)
		log.Info("mirroring dns records to route53", zap.String("zone", cfg.DNS.Route53Zone))
	}

	a.Engine = reconcile.NewEngine(reconcile.Dependencies{
		Store:   a.Store,
		Lists:   mailman.New(cfg.Mailman, runner, log),
		Tables:  postfix.New(cfg.Postfix, a.Queue, log),
		Sites:   sites,
		DNS:     dns,
		Secrets: box,
		Metrics: a.Metrics,
		Log:     log,
	})

	a.Executor = actions.NewExecutor(cfg, a.Queue, runner, log)
	a.Executor.SetMetrics(a.Metrics)

	var applier reconcile.Applier
	if cfg.Actions.Apply {
		applier = a.Executor
	}
	a.Runner = reconcile.NewRunner(a.Engine, applier, log)

	a.Lists = service.NewMailingListService(a.Store, box, log)

	return a, nil
}

// HealthChecker 创建覆盖存储、Redis 与本机目录的健康检查
func (a *App) HealthChecker() *health.HealthChecker {
	var pinger health.Pinger
	if a.Redis != nil {
		pinger = a.Redis
	}

	return health.NewHealthChecker(a.Store, pinger, map[string]string{
		"lists_dir": a.Config.Mailman.ListsDir,
		"sites_dir": a.Config.Web.SitesDir,
	}, a.Log)
}

// Close 释放数据库与 Redis 连接
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
