package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "SignalProof-Chain/internal/errors"
	"SignalProof-Chain/pkg/logger"
)

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string
	Queue      string
	Prefetch   int
	Durable    bool
	AutoDelete bool
}

// RabbitMQQueue 使用手动确认的 RabbitMQ 队列投递证明任务。
type RabbitMQQueue struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	now    func() time.Time
	logger *slog.Logger

	// amqp.Channel 的发布不是并发安全的。
	publishMu sync.Mutex
}

// NewRabbitMQQueue 建立连接并声明队列。
func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidInput, "rabbitmq url is required", xerrors.WithField("job_queue.rabbitmq.url"))
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "signalproof.jobs"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "connect rabbitmq")
	}
	ch, err := openChannel(conn, queue, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &RabbitMQQueue{
		conn:   conn,
		ch:     ch,
		queue:  queue,
		now:    time.Now,
		logger: logger.Named("job.rabbitmq"),
	}, nil
}

func openChannel(conn *amqp.Connection, queue string, cfg RabbitMQConfig) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "open rabbitmq channel")
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			_ = ch.Close()
			return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "set rabbitmq prefetch")
		}
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "declare rabbitmq queue")
	}
	return ch, nil
}

// Publish 以持久化消息投递任务。
func (q *RabbitMQQueue) Publish(ctx context.Context, jobID string) error {
	if q == nil || q.ch == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "rabbitmq queue not initialised")
	}
	now := q.now()
	body, err := encodeMessage(jobID, now)
	if err != nil {
		return err
	}
	q.publishMu.Lock()
	defer q.publishMu.Unlock()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    jobID,
		Timestamp:    now,
		AppId:        "signald",
		Type:         "proof-job",
		Body:         body,
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "rabbitmq publish")
	}
	return nil
}

// Consume 使用手动确认消费队列。处理失败的消息被退回队列；无法解析的消息被丢弃。
// 连接断开时返回 QUEUE_FAILURE。
func (q *RabbitMQQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if q == nil || q.ch == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "rabbitmq queue not initialised")
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "subscribe rabbitmq queue")
	}
	closed := q.ch.NotifyClose(make(chan *amqp.Error, 1))

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					q.deliver(ctx, d, handler)
				}
			}
		}()
	}

	var result error
	select {
	case <-ctx.Done():
		result = ctx.Err()
	case amqpErr := <-closed:
		if amqpErr != nil {
			result = xerrors.Wrap(xerrors.CodeQueueFailure, amqpErr, "rabbitmq channel closed")
		} else {
			result = xerrors.New(xerrors.CodeQueueFailure, "rabbitmq channel closed")
		}
	}
	wg.Wait()
	return result
}

func (q *RabbitMQQueue) deliver(ctx context.Context, d amqp.Delivery, handler Handler) {
	msg, err := decodeMessage(d.Body)
	if err != nil {
		q.logger.Error("丢弃无法解析的消息", slog.Any("error", err), slog.String("message_id", d.MessageId))
		_ = d.Reject(false)
		return
	}
	if err := handler(ctx, msg.JobID); err != nil {
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// Close 关闭 channel 与连接。
func (q *RabbitMQQueue) Close() error {
	if q == nil {
		return nil
	}
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
