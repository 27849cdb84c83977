package job

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	xerrors "SignalProof-Chain/internal/errors"
	"SignalProof-Chain/internal/proofs"
	"SignalProof-Chain/internal/slot"
)

// Status 表示证明任务在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Key 是一条待证明信号的输入。ChainID 接受十进制或 0x 十六进制。
type Key struct {
	Signal    common.Hash    `json:"signal"`
	Sender    common.Address `json:"sender"`
	ChainID   string         `json:"chain_id,omitempty"`
	Namespace string         `json:"namespace,omitempty"`
}

// SignalKey 将请求字段解析为推导所需的 SignalKey。未填写的可选字段保持为空，
// 是否必需由方案版本决定。
func (k Key) SignalKey() (slot.SignalKey, error) {
	key := slot.SignalKey{Signal: k.Signal, Sender: k.Sender}
	if raw := strings.TrimSpace(k.ChainID); raw != "" {
		id, err := parseChainID(raw)
		if err != nil {
			return slot.SignalKey{}, xerrors.Wrap(xerrors.CodeInvalidInput, err,
				fmt.Sprintf("invalid chain id %q", raw), xerrors.WithField(string(slot.FieldChainID)))
		}
		key.ChainID = id
	}
	if raw := strings.TrimSpace(k.Namespace); raw != "" {
		tag, err := slot.ParseNamespaceTag(raw)
		if err != nil {
			return slot.SignalKey{}, err
		}
		key.Namespace = tag
	}
	return key, nil
}

func parseChainID(raw string) (*uint256.Int, error) {
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		return uint256.FromHex(raw)
	}
	return uint256.FromDecimal(raw)
}

// Request 描述一次证明任务提交。
type Request struct {
	ID      string         `json:"id,omitempty"`
	Account common.Address `json:"account"`
	Scheme  string         `json:"scheme"`
	Keys    []Key          `json:"keys"`
}

// Job 描述排队执行的证明任务。
type Job struct {
	ID         string               `json:"id"`
	Account    common.Address       `json:"account"`
	Scheme     string               `json:"scheme"`
	Keys       []Key                `json:"keys"`
	Status     Status               `json:"status"`
	Attempts   int                  `json:"attempts"`
	MaxRetries int                  `json:"max_retries"`
	LastError  string               `json:"last_error,omitempty"`
	ErrorCode  string               `json:"error_code,omitempty"`
	Proofs     []proofs.SignalProof `json:"proofs,omitempty"`
	CreatedAt  int64                `json:"created_at"`
	UpdatedAt  int64                `json:"updated_at"`
}

// Targets derives the storage slot of every key under the job's scheme.
func (j *Job) Targets(derive func(slot.SignalKey, slot.SchemeVersion) (slot.StorageSlot, error)) ([]proofs.Target, error) {
	version, err := slot.ParseSchemeVersion(j.Scheme)
	if err != nil {
		return nil, err
	}
	if len(j.Keys) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidInput, "job has no keys", xerrors.WithField("keys"))
	}
	targets := make([]proofs.Target, 0, len(j.Keys))
	for i, k := range j.Keys {
		key, err := k.SignalKey()
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		s, err := derive(key, version)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		targets = append(targets, proofs.Target{Account: j.Account, Slot: s})
	}
	return targets, nil
}

var (
	// ErrJobNotFound 表示指定的任务不存在。
	ErrJobNotFound = xerrors.New(CodeJobNotFound, "job not found")
	// ErrJobConflict 表示任务在当前状态下无法进行所请求的操作。
	ErrJobConflict = xerrors.New(CodeJobConflict, "job conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrJobCompleted 表示任务已经成功完成。
	ErrJobCompleted = xerrors.New(CodeJobCompleted, "job already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrJobExhausted 表示任务的重试次数已经耗尽。
	ErrJobExhausted = xerrors.New(CodeJobExhausted, "job retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

const (
	CodeJobNotFound   xerrors.Code = "JOB_NOT_FOUND"
	CodeJobConflict   xerrors.Code = "JOB_CONFLICT"
	CodeJobCompleted  xerrors.Code = "JOB_COMPLETED"
	CodeJobExhausted  xerrors.Code = "JOB_RETRIES_EXHAUSTED"
	CodeJobPublish    xerrors.Code = "JOB_PUBLISH_FAILED"
	CodeJobProcessing xerrors.Code = "JOB_PROCESSING_FAILED"
)

func init() {
	xerrors.Register(CodeJobNotFound, xerrors.Attributes{
		Message:  "job not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeJobConflict, xerrors.Attributes{
		Message:  "job conflict",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeJobCompleted, xerrors.Attributes{
		Message:  "job already completed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeJobExhausted, xerrors.Attributes{
		Message:  "job retries exhausted",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
	xerrors.Register(CodeJobPublish, xerrors.Attributes{
		Message:   "failed to publish job",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeJobProcessing, xerrors.Attributes{
		Message:  "job processing failed",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
	})
}

// IsValidStatus 检查给定的任务状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

func cloneJob(j *Job) *Job {
	clone := *j
	clone.Keys = append([]Key(nil), j.Keys...)
	if j.Proofs != nil {
		clone.Proofs = make([]proofs.SignalProof, len(j.Proofs))
		for i, p := range j.Proofs {
			clone.Proofs[i] = p.Clone()
		}
	}
	return &clone
}
