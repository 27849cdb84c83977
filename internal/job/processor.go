package job

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	xerrors "SignalProof-Chain/internal/errors"
	"SignalProof-Chain/internal/observability/alerting"
	"SignalProof-Chain/internal/proofs"
	"SignalProof-Chain/internal/slot"
	"SignalProof-Chain/pkg/logger"
)

// Prover assembles a same-block batch of proofs.
type Prover interface {
	ProveBatch(ctx context.Context, targets []proofs.Target) ([]proofs.SignalProof, error)
}

// Observer receives terminal and retry outcomes of jobs.
type Observer interface {
	ObserveJob(status Status, code xerrors.Code)
}

// Processor 负责从队列消费证明任务：推导槽位、组装证明并写回结果。
// 只有 PROVIDER_UNAVAILABLE 与结果落库失败会触发重试，且每次重试都重新组装整批证明。
type Processor struct {
	prover      Prover
	memo        *slot.Memo
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	backoff     time.Duration
	logger      *slog.Logger
	observer    Observer
	alerts      alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = l
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithRetryBackoff 设置重投前的等待时间。
func WithRetryBackoff(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d >= 0 {
			p.backoff = d
		}
	}
}

// WithMemo 共享槽位推导缓存。
func WithMemo(m *slot.Memo) ProcessorOption {
	return func(p *Processor) {
		if m != nil {
			p.memo = m
		}
	}
}

// WithJobObserver 配置任务结果观察者。
func WithJobObserver(o Observer) ProcessorOption {
	return func(p *Processor) {
		p.observer = o
	}
}

// WithAlerts 在任务终态失败且错误码要求告警时分发事件。
func WithAlerts(d alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerts = d
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(prover Prover, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		prover:      prover,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.memo == nil {
		p.memo = slot.NewMemo(4096)
	}
	if p.logger == nil {
		p.logger = logger.Named("job")
	}
	return p
}

// Start 启动任务处理循环，阻塞直到 ctx 结束或队列出错。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, jobID string) error {
	if p.store == nil || p.prover == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	job, err := p.store.Claim(ctx, jobID)
	if err != nil {
		if stdErrors.Is(err, ErrJobNotFound) || stdErrors.Is(err, ErrJobCompleted) || stdErrors.Is(err, ErrJobExhausted) || stdErrors.Is(err, ErrJobConflict) {
			p.logger.Debug("跳过任务", slog.String("job_id", jobID), slog.String("reason", err.Error()))
			return nil
		}
		p.logger.Error("领取任务失败", slog.Any("error", err), slog.String("job_id", jobID))
		return err
	}

	targets, err := job.Targets(p.memo.Derive)
	if err != nil {
		return p.handleFailure(ctx, job, err)
	}
	result, err := p.prover.ProveBatch(ctx, targets)
	if err != nil {
		return p.handleFailure(ctx, job, err)
	}

	if err := p.store.MarkSucceeded(ctx, job.ID, result); err != nil {
		p.logger.Error("标记任务成功状态失败", slog.Any("error", err), slog.String("job_id", job.ID))
		return p.handleFailure(ctx, job, xerrors.Wrap(xerrors.CodeStorageFailure, err, "persist proofs"))
	}
	p.observe(StatusSucceeded, "")
	logger.Audit().Info("proof job succeeded",
		slog.String("job_id", job.ID),
		slog.Int("proofs", len(result)),
		slog.Uint64("block_number", result[0].BlockNumber),
		slog.String("block_hash", result[0].BlockHash.Hex()),
		slog.Int("attempts", job.Attempts),
	)
	return nil
}

func (p *Processor) handleFailure(ctx context.Context, job *Job, cause error) error {
	code := xerrors.CodeOf(cause)
	if code == xerrors.CodeUnknown {
		code = CodeJobProcessing
	}
	retryable := code == xerrors.CodeProviderUnavailable || code == xerrors.CodeStorageFailure
	terminal := !retryable || job.Attempts >= job.MaxRetries

	if err := p.store.MarkFailed(ctx, job.ID, code, cause.Error(), terminal); err != nil {
		p.logger.Error("标记任务失败状态出错", slog.Any("error", err), slog.String("job_id", job.ID))
		return err
	}
	status := StatusFailed
	if !terminal {
		status = StatusPending
	}
	p.observe(status, code)
	logger.Audit().Warn("proof job failed",
		slog.String("job_id", job.ID),
		slog.Bool("terminal", terminal),
		slog.String("error", cause.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", job.Attempts),
		slog.Int("max_retries", job.MaxRetries),
	)
	if terminal {
		p.alert(ctx, job, code, cause)
		return nil
	}

	if p.backoff > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff):
		}
	}
	if err := p.producer.Publish(ctx, job.ID); err != nil {
		return xerrors.Wrap(CodeJobPublish, err, fmt.Sprintf("任务 %s 重投失败", job.ID))
	}
	p.logger.Debug("任务已重新排队", slog.String("job_id", job.ID), slog.Int("attempts", job.Attempts))
	return nil
}

func (p *Processor) observe(status Status, code xerrors.Code) {
	if p.observer != nil {
		p.observer.ObserveJob(status, code)
	}
}

func (p *Processor) alert(ctx context.Context, job *Job, code xerrors.Code, cause error) {
	if p.alerts == nil || !alerting.ShouldAlert(code) {
		return
	}
	event := alerting.Event{
		Code:       code,
		Message:    cause.Error(),
		Severity:   xerrors.AttributesOf(code).Severity,
		JobID:      job.ID,
		Account:    job.Account.Hex(),
		Attempts:   job.Attempts,
		MaxRetries: job.MaxRetries,
		Metadata:   map[string]string{"scheme": job.Scheme, "keys": fmt.Sprint(len(job.Keys))},
		OccurredAt: time.Now().UTC(),
	}
	if err := p.alerts.Notify(ctx, event); err != nil {
		p.logger.Warn("告警发送失败", slog.Any("error", err), slog.String("job_id", job.ID))
	}
}
