package job

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	xerrors "SignalProof-Chain/internal/errors"
	"SignalProof-Chain/internal/slot"
	"SignalProof-Chain/pkg/logger"
)

// Service 负责证明任务的创建与查询。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
	maxKeys    int
}

// NewService 构造任务服务。maxRetries 为单个任务的最大尝试次数。
func NewService(store Store, producer Producer, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{store: store, producer: producer, maxRetries: maxRetries, maxKeys: 256}
}

// Submit 校验请求、创建任务并推送到队列。相同 ID 的重复提交返回已有任务。
func (s *Service) Submit(ctx context.Context, req Request) (*Job, error) {
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化")
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}

	jobID := strings.TrimSpace(req.ID)
	if jobID != "" {
		existing, err := s.store.Get(ctx, jobID)
		if err == nil {
			return existing, nil
		}
		if !stdErrors.Is(err, ErrJobNotFound) {
			return nil, err
		}
	} else {
		jobID = uuid.NewString()
	}

	version, _ := slot.ParseSchemeVersion(req.Scheme)
	job := &Job{
		ID:         jobID,
		Account:    req.Account,
		Scheme:     version.String(),
		Keys:       append([]Key(nil), req.Keys...),
		Status:     StatusPending,
		MaxRetries: s.maxRetries,
	}
	if err := s.store.Create(ctx, job); err != nil {
		if stdErrors.Is(err, ErrJobConflict) {
			if existing, getErr := s.store.Get(ctx, jobID); getErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, jobID); err != nil {
		logger.L().Error("任务入队失败", slog.Any("error", err), slog.String("job_id", jobID))
		wrapped := xerrors.Wrap(CodeJobPublish, err, "发布任务到队列失败")
		_ = s.store.MarkFailed(ctx, jobID, CodeJobPublish, wrapped.Error(), true)
		return nil, wrapped
	}
	logger.Audit().Info("proof job queued",
		slog.String("job_id", jobID),
		slog.String("account", job.Account.Hex()),
		slog.String("scheme", job.Scheme),
		slog.Int("keys", len(job.Keys)),
		slog.Int("max_retries", job.MaxRetries),
	)
	return job, nil
}

// validate runs slot derivation once so malformed keys are rejected at
// submission rather than after queueing.
func (s *Service) validate(req Request) error {
	if req.Account == (common.Address{}) {
		return xerrors.New(xerrors.CodeInvalidInput, "account is required", xerrors.WithField("account"))
	}
	if len(req.Keys) == 0 {
		return xerrors.New(xerrors.CodeInvalidInput, "at least one key is required", xerrors.WithField("keys"))
	}
	if len(req.Keys) > s.maxKeys {
		return xerrors.New(xerrors.CodeInvalidInput,
			fmt.Sprintf("at most %d keys per job", s.maxKeys), xerrors.WithField("keys"))
	}
	probe := Job{Account: req.Account, Scheme: req.Scheme, Keys: req.Keys}
	_, err := probe.Targets(slot.Derive)
	return err
}

// Get 返回指定任务的状态。
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的任务列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.List(ctx, BuildListOptions(opts...))
}

// Stats 返回符合过滤条件的任务统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (Stats, error) {
	if s.store == nil {
		return Stats{}, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Stats(ctx, BuildListOptions(opts...))
}

// WaitUntilCompleted 轮询任务状态直到成功、终止失败或 ctx 结束。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Job, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status == StatusSucceeded || job.Status == StatusFailed {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close 释放资源。
func (s *Service) Close() error {
	var err error
	if s.store != nil {
		err = s.store.Close()
	}
	if s.producer != nil {
		err = stdErrors.Join(err, s.producer.Close())
	}
	return err
}
