package job

import (
	"context"

	xerrors "SignalProof-Chain/internal/errors"
	"SignalProof-Chain/internal/proofs"
)

// Store 抽象了证明任务状态的持久化接口。
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// Claim 将待处理任务置为运行中并增加尝试次数。
	Claim(ctx context.Context, id string) (*Job, error)
	MarkSucceeded(ctx context.Context, id string, proofs []proofs.SignalProof) error
	// MarkFailed 记录失败。terminal 为 false 时任务回到 pending 等待重投。
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error
	List(ctx context.Context, opts ListOptions) ([]*Job, error)
	Stats(ctx context.Context, opts ListOptions) (Stats, error)
	Close() error
}

// Stats 聚合了任务状态的统计信息，常用于仪表盘或健康检查。
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Add counts one job in the bucket of its status.
func (s *Stats) Add(status Status) {
	s.Total++
	switch status {
	case StatusPending:
		s.Pending++
	case StatusRunning:
		s.Running++
	case StatusSucceeded:
		s.Succeeded++
	case StatusFailed:
		s.Failed++
	}
}
