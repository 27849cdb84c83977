package job

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	xerrors "SignalProof-Chain/internal/errors"
)

// Handler 处理来自消息队列的任务 ID。返回错误表示消息应被重新投递。
type Handler func(ctx context.Context, jobID string) error

// Producer 负责向队列投递任务。
type Producer interface {
	Publish(ctx context.Context, jobID string) error
	Close() error
}

// Consumer 负责从队列中消费任务。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}

// message 是写入 Redis 与 RabbitMQ 的负载。
type message struct {
	JobID       string `json:"job_id"`
	PublishedAt int64  `json:"published_at"`
}

func encodeMessage(jobID string, now time.Time) ([]byte, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidInput, "job id is empty", xerrors.WithField("job_id"))
	}
	return json.Marshal(message{JobID: jobID, PublishedAt: now.UnixMilli()})
}

// decodeMessage 同时接受 JSON 负载与裸任务 ID。
func decodeMessage(body []byte) (message, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return message{}, xerrors.New(xerrors.CodeQueueFailure, "empty queue message")
	}
	if body[0] != '{' {
		return message{JobID: string(body)}, nil
	}
	var msg message
	if err := json.Unmarshal(body, &msg); err != nil {
		return message{}, xerrors.Wrap(xerrors.CodeQueueFailure, err, "malformed queue message")
	}
	if strings.TrimSpace(msg.JobID) == "" {
		return message{}, xerrors.New(xerrors.CodeQueueFailure, "queue message without job id")
	}
	return msg, nil
}
