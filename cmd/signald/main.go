package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SignalProof-Chain/internal/api"
	"SignalProof-Chain/internal/auth"
	"SignalProof-Chain/internal/config"
	"SignalProof-Chain/internal/job"
	"SignalProof-Chain/internal/observability/alerting"
	"SignalProof-Chain/internal/observability/metrics"
	"SignalProof-Chain/internal/proofs"
	"SignalProof-Chain/internal/slot"
	"SignalProof-Chain/internal/storage/mysql"
	"SignalProof-Chain/internal/web3/provider"
	"SignalProof-Chain/pkg/logger"
)

// main 是 signald 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.L().Error("signald 运行失败", slog.Any("error", err))
		_ = logger.Sync()
		stop()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(ctx context.Context) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(config.Path())
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	log := logger.Named("signald")

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New(cfg.Metrics.Runtime)
	}

	chainRegistry, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		return err
	}
	defer chainRegistry.Close()

	chain, err := chainRegistry.DefaultChain()
	if err != nil {
		return err
	}
	snapshot, err := chain.Client.FetchChainSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("连接默认链 %s 失败: %w", chain.Name, err)
	}
	log.Info("已连接链节点",
		slog.String("chain", chain.Name),
		slog.String("chain_id", snapshot.ChainID),
		slog.String("block_number", snapshot.BlockNumber),
	)

	store, err := openStore(ctx, cfg.Storage.JobStore)
	if err != nil {
		return err
	}
	queue, err := openQueue(ctx, cfg.JobQueue)
	if err != nil {
		_ = store.Close()
		return err
	}

	jobService := job.NewService(store, queue, cfg.Processor.MaxRetries)
	defer func() {
		if err := jobService.Close(); err != nil {
			log.Warn("关闭任务服务失败", slog.Any("error", err))
		}
	}()

	assemblerOpts := []proofs.Option{proofs.WithLogger(logger.Named("proofs"))}
	processorOpts := []job.ProcessorOption{
		job.WithWorkerCount(cfg.Processor.Workers),
		job.WithRetryBackoff(cfg.Processor.RetryBackoff()),
		job.WithProcessorLogger(logger.Named("job")),
	}
	memo := slot.NewMemo(cfg.Processor.MemoLimit)
	processorOpts = append(processorOpts, job.WithMemo(memo))
	serverOpts := []api.Option{
		api.WithMemo(memo),
		api.WithTimeouts(cfg.Server.ReadTimeout(), cfg.Server.WriteTimeout(), cfg.Server.ShutdownGrace()),
	}
	if collector != nil {
		assemblerOpts = append(assemblerOpts, proofs.WithObserver(collector))
		processorOpts = append(processorOpts, job.WithJobObserver(collector))
		serverOpts = append(serverOpts, api.WithMetrics(collector, cfg.Metrics.Path))
	}
	if alerts := buildAlerts(cfg.Alerting); alerts.Len() > 0 {
		processorOpts = append(processorOpts, job.WithAlerts(alerts))
	}

	authService, err := auth.NewService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("初始化认证失败: %w", err)
	}
	if authService.Enabled() {
		serverOpts = append(serverOpts, api.WithAuth(authService))
	}

	assembler := proofs.NewAssembler(chain.Client, assemblerOpts...)
	processor := job.NewProcessor(assembler, store, queue, queue, processorOpts...)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()
	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("任务处理器异常退出", slog.Any("error", err))
		}
	}()

	server := api.NewServer(cfg.Server.Address, jobService, serverOpts...)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStore(ctx context.Context, cfg config.JobStoreConfig) (job.Store, error) {
	switch cfg.Driver {
	case "memory", "":
		return job.NewMemoryStore(), nil
	case "mysql":
		return mysql.NewJobStore(ctx, mysql.Config{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("未知的任务存储驱动: %s", cfg.Driver)
	}
}

func openQueue(ctx context.Context, cfg config.JobQueueConfig) (job.Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return job.NewMemoryQueue(cfg.Buffer), nil
	case "redis":
		return job.NewRedisQueue(ctx, job.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: time.Duration(cfg.Redis.BlockWaitSeconds) * time.Second,
		})
	case "rabbitmq":
		return job.NewRabbitMQQueue(job.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Queue:      cfg.RabbitMQ.Queue,
			Prefetch:   cfg.RabbitMQ.Prefetch,
			Durable:    cfg.RabbitMQ.Durable,
			AutoDelete: cfg.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Driver)
	}
}

func buildAlerts(cfg config.AlertingConfig) *alerting.FanoutDispatcher {
	var notifiers []alerting.Notifier
	if cfg.Log {
		notifiers = append(notifiers, &alerting.LogNotifier{})
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.WebhookURL})
	}
	return alerting.NewFanout(notifiers...)
}
