package job

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "SignalProof-Chain/internal/errors"
	"SignalProof-Chain/internal/proofs"
)

// MemoryStore 以内存方式保存任务状态，适用于单进程部署与测试。
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job), now: time.Now}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, job *Job) error {
	if job == nil {
		return xerrors.New(xerrors.CodeInvalidInput, "job 不能为空")
	}
	if strings.TrimSpace(job.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidInput, "任务 ID 不能为空", xerrors.WithField("id"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return ErrJobConflict
	}
	now := m.now().Unix()
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

// Get 返回任务。
func (m *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

// Claim 将任务状态更新为运行中。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	switch job.Status {
	case StatusSucceeded:
		return cloneJob(job), ErrJobCompleted
	case StatusRunning:
		return cloneJob(job), ErrJobConflict
	case StatusFailed:
		return cloneJob(job), ErrJobExhausted
	}
	if job.Attempts >= job.MaxRetries {
		return cloneJob(job), ErrJobExhausted
	}
	job.Status = StatusRunning
	job.Attempts++
	job.UpdatedAt = m.now().Unix()
	return cloneJob(job), nil
}

// MarkSucceeded 记录证明结果。
func (m *MemoryStore) MarkSucceeded(_ context.Context, id string, result []proofs.SignalProof) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = StatusSucceeded
	job.Proofs = make([]proofs.SignalProof, len(result))
	for i, p := range result {
		job.Proofs[i] = p.Clone()
	}
	job.LastError = ""
	job.ErrorCode = ""
	job.UpdatedAt = m.now().Unix()
	return nil
}

// MarkFailed 标记任务失败。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = StatusPending
	if terminal {
		job.Status = StatusFailed
	}
	job.LastError = lastError
	job.ErrorCode = string(code)
	job.UpdatedAt = m.now().Unix()
	return nil
}

// List 返回最近更新的任务。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Job, error) {
	opts.applyDefaults()

	m.mu.RLock()
	results := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if opts.matches(job) {
			results = append(results, cloneJob(job))
		}
	}
	m.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].UpdatedAt == results[j].UpdatedAt {
			if results[i].CreatedAt == results[j].CreatedAt {
				return results[i].ID < results[j].ID
			}
			return results[i].CreatedAt > results[j].CreatedAt
		}
		return results[i].UpdatedAt > results[j].UpdatedAt
	})
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Stats 统计符合过滤条件的任务数量。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (Stats, error) {
	opts.applyDefaults()

	m.mu.RLock()
	defer m.mu.RUnlock()
	var stats Stats
	for _, job := range m.jobs {
		if opts.matches(job) {
			stats.Add(job.Status)
		}
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
