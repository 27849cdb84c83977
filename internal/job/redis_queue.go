package job

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "SignalProof-Chain/internal/errors"
	"SignalProof-Chain/pkg/logger"
)

// RedisQueueConfig 描述 Redis 队列的连接参数。
type RedisQueueConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	BlockWait time.Duration
}

// RedisQueue 是基于 Redis list 的可靠队列：LPUSH 入队，BLMOVE 将消息移入
// 处理中列表，处理结束后再移除。进程崩溃留下的处理中消息在下次 Consume 时
// 回到待处理列表。
type RedisQueue struct {
	client     redis.UniversalClient
	pending    string
	processing string
	wait       time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// NewRedisQueue 连接 Redis 并创建队列。
func NewRedisQueue(ctx context.Context, cfg RedisQueueConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidInput, "redis address is required", xerrors.WithField("job_queue.redis.address"))
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "connect redis")
	}
	return newRedisQueue(client, cfg), nil
}

func newRedisQueue(client redis.UniversalClient, cfg RedisQueueConfig) *RedisQueue {
	queue := cfg.Queue
	if queue == "" {
		queue = "signalproof:jobs"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisQueue{
		client:     client,
		pending:    queue,
		processing: queue + ":processing",
		wait:       wait,
		now:        time.Now,
		logger:     logger.Named("job.redis"),
	}
}

// Publish 将任务投递到 Redis。
func (q *RedisQueue) Publish(ctx context.Context, jobID string) error {
	body, err := encodeMessage(jobID, q.now())
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.pending, body).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "redis publish")
	}
	return nil
}

// Requeue 将处理中列表里遗留的消息移回待处理列表，返回移动的条数。
func (q *RedisQueue) Requeue(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.pending, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, xerrors.Wrap(xerrors.CodeQueueFailure, err, "redis requeue")
		}
		moved++
	}
}

// Consume 通过 BLMOVE 领取任务。处理失败的消息回到待处理列表。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	if moved, err := q.Requeue(ctx); err != nil {
		return err
	} else if moved > 0 {
		q.logger.Warn("恢复处理中的任务", slog.Int("count", moved))
	}

	errCh := make(chan error, workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			for {
				if err := ctx.Err(); err != nil {
					errCh <- err
					return
				}
				body, err := q.client.BLMove(ctx, q.pending, q.processing, "RIGHT", "LEFT", q.wait).Result()
				if err != nil {
					if errors.Is(err, redis.Nil) {
						continue
					}
					if ctx.Err() != nil {
						errCh <- ctx.Err()
						return
					}
					errCh <- xerrors.Wrap(xerrors.CodeQueueFailure, err, "redis consume")
					return
				}
				q.deliver(ctx, body, handler)
			}
		}()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (q *RedisQueue) deliver(ctx context.Context, body string, handler Handler) {
	msg, err := decodeMessage([]byte(body))
	if err != nil {
		q.logger.Error("丢弃无法解析的消息", slog.Any("error", err), slog.String("body", body))
		q.ack(ctx, body)
		return
	}
	if err := handler(ctx, msg.JobID); err != nil {
		if ctx.Err() != nil {
			// 留在处理中列表，下次启动时恢复。
			return
		}
		_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, q.processing, 1, body)
			pipe.LPush(ctx, q.pending, body)
			return nil
		})
		if err != nil {
			q.logger.Error("任务退回队列失败", slog.Any("error", err), slog.String("job_id", msg.JobID))
		}
		return
	}
	q.ack(ctx, body)
}

func (q *RedisQueue) ack(ctx context.Context, body string) {
	if err := q.client.LRem(ctx, q.processing, 1, body).Err(); err != nil {
		q.logger.Error("确认消息失败", slog.Any("error", err))
	}
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}
