package job

import (
	"context"
	"sync"

	xerrors "SignalProof-Chain/internal/errors"
)

// MemoryQueue 是进程内的任务队列，用于单实例部署与测试。处理失败的任务不会
// 自动重投，重试由 Processor 负责。
type MemoryQueue struct {
	jobs chan string

	mu     sync.RWMutex
	closed bool
}

// NewMemoryQueue 创建容量为 size 的内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{jobs: make(chan string, size)}
}

// Publish 将任务投递到队列；队列满时阻塞直到 ctx 结束。
func (q *MemoryQueue) Publish(ctx context.Context, jobID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return xerrors.New(xerrors.CodeQueueFailure, "queue closed")
	}
	select {
	case q.jobs <- jobID:
		return nil
	case <-ctx.Done():
		return xerrors.Wrap(xerrors.CodeQueueFailure, ctx.Err(), "publish to memory queue")
	}
}

// Len 返回尚未被消费的任务数。
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}

// Consume 启动 workerCount 个协程消费任务，直到 ctx 结束或队列关闭。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case jobID, ok := <-q.jobs:
					if !ok {
						return
					}
					_ = handler(ctx, jobID)
				}
			}
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	return xerrors.New(xerrors.CodeQueueFailure, "queue closed")
}

// Close 关闭队列，正在运行的 Consume 会在取空后返回。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	return nil
}
