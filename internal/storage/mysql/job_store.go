package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gomysql "github.com/go-sql-driver/mysql"

	xerrors "SignalProof-Chain/internal/errors"
	"SignalProof-Chain/internal/job"
	"SignalProof-Chain/internal/proofs"
)

const (
	mysqlErrDuplicateEntry = 1062

	jobColumns = `id, account, scheme, signal_keys, status, attempts, max_retries, last_error, error_code, proofs, created_at, updated_at`
)

// JobStore 使用 MySQL 记录证明任务状态，实现 job.Store。
type JobStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewJobStore 建立连接池并执行内嵌迁移。
func NewJobStore(ctx context.Context, cfg Config) (*JobStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 MySQL 失败")
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行数据库迁移失败")
	}
	return &JobStore{db: db, now: time.Now}, nil
}

// Create 插入新的任务记录。
func (s *JobStore) Create(ctx context.Context, j *job.Job) error {
	if j == nil {
		return xerrors.New(xerrors.CodeInvalidInput, "job 不能为空")
	}
	if strings.TrimSpace(j.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidInput, "任务 ID 不能为空", xerrors.WithField("id"))
	}
	keys, err := json.Marshal(j.Keys)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidInput, err, "编码任务 keys 失败")
	}

	now := s.now().Unix()
	if j.CreatedAt == 0 {
		j.CreatedAt = now
	}
	j.UpdatedAt = now

	const stmt = `INSERT INTO proof_jobs
    (id, account, scheme, signal_keys, status, attempts, max_retries, last_error, error_code, proofs, created_at, updated_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, '', '', NULL, ?, ?)`
	_, err = s.db.ExecContext(ctx, stmt,
		j.ID, j.Account.Hex(), j.Scheme, string(keys), string(j.Status), j.Attempts, j.MaxRetries, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		var mysqlErr *gomysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
			return job.ErrJobConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入任务失败")
	}
	return nil
}

// Get 返回任务。
func (s *JobStore) Get(ctx context.Context, id string) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM proof_jobs WHERE id = ?`, id)
	return scanJob(row)
}

// Claim 在事务中锁定任务行并置为运行中。
func (s *JobStore) Claim(ctx context.Context, id string) (*job.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启事务失败")
	}
	defer tx.Rollback()

	current, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM proof_jobs WHERE id = ? FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	switch current.Status {
	case job.StatusSucceeded:
		return current, job.ErrJobCompleted
	case job.StatusRunning:
		return current, job.ErrJobConflict
	case job.StatusFailed:
		return current, job.ErrJobExhausted
	}
	if current.Attempts >= current.MaxRetries {
		return current, job.ErrJobExhausted
	}

	current.Status = job.StatusRunning
	current.Attempts++
	current.UpdatedAt = s.now().Unix()
	if _, err := tx.ExecContext(ctx, `UPDATE proof_jobs SET status = ?, attempts = ?, updated_at = ? WHERE id = ?`,
		string(current.Status), current.Attempts, current.UpdatedAt, id); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新任务状态失败")
	}
	if err := tx.Commit(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交事务失败")
	}
	return current, nil
}

// MarkSucceeded 记录证明结果。
func (s *JobStore) MarkSucceeded(ctx context.Context, id string, result []proofs.SignalProof) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码证明结果失败")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE proof_jobs SET status = ?, proofs = ?, last_error = '', error_code = '', updated_at = ? WHERE id = ?`,
		string(job.StatusSucceeded), string(encoded), s.now().Unix(), id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新任务结果失败")
	}
	return s.requireRow(ctx, res, id)
}

// MarkFailed 标记任务失败。
func (s *JobStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	status := job.StatusPending
	if terminal {
		status = job.StatusFailed
	}
	res, err := s.db.ExecContext(ctx, `UPDATE proof_jobs SET status = ?, last_error = ?, error_code = ?, updated_at = ? WHERE id = ?`,
		string(status), lastError, string(code), s.now().Unix(), id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新任务失败状态失败")
	}
	return s.requireRow(ctx, res, id)
}

// List 返回最近更新的任务。
func (s *JobStore) List(ctx context.Context, opts job.ListOptions) ([]*job.Job, error) {
	opts = job.BuildListOptions(job.WithLimit(opts.Limit), job.WithStatuses(opts.Statuses...))
	where, args := statusFilter(opts.Statuses)
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM proof_jobs`+where+` ORDER BY updated_at DESC, created_at DESC, id ASC LIMIT ?`, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务列表失败")
	}
	defer rows.Close()

	var out []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历任务列表失败")
	}
	return out, nil
}

// Stats 统计符合过滤条件的任务数量。
func (s *JobStore) Stats(ctx context.Context, opts job.ListOptions) (job.Stats, error) {
	opts = job.BuildListOptions(job.WithStatuses(opts.Statuses...))
	where, args := statusFilter(opts.Statuses)

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM proof_jobs`+where+` GROUP BY status`, args...)
	if err != nil {
		return job.Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计任务失败")
	}
	defer rows.Close()

	var stats job.Stats
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return job.Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析任务统计失败")
		}
		for i := 0; i < count; i++ {
			stats.Add(job.Status(status))
		}
	}
	if err := rows.Err(); err != nil {
		return job.Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历任务统计失败")
	}
	return stats, nil
}

// Close 关闭连接池。
func (s *JobStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*job.Job, error) {
	var (
		j         job.Job
		account   string
		keys      string
		status    string
		lastError sql.NullString
		encoded   sql.NullString
	)
	err := row.Scan(&j.ID, &account, &j.Scheme, &keys, &status, &j.Attempts, &j.MaxRetries,
		&lastError, &j.ErrorCode, &encoded, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, job.ErrJobNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取任务失败")
	}
	j.Account = common.HexToAddress(account)
	j.Status = job.Status(status)
	j.LastError = lastError.String
	if err := json.Unmarshal([]byte(keys), &j.Keys); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("解析任务 %s 的 keys 失败", j.ID))
	}
	if encoded.Valid && encoded.String != "" {
		if err := json.Unmarshal([]byte(encoded.String), &j.Proofs); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("解析任务 %s 的证明失败", j.ID))
		}
	}
	return &j, nil
}

func statusFilter(statuses []job.Status) (string, []any) {
	if len(statuses) == 0 {
		return "", nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, s := range statuses {
		placeholders[i] = "?"
		args[i] = string(s)
	}
	return ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`, args
}

// requireRow reports ErrJobNotFound when an update touched no row. MySQL
// counts unchanged rows as unaffected, so a zero count is confirmed by a read.
func (s *JobStore) requireRow(ctx context.Context, res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取影响行数失败")
	}
	if affected > 0 {
		return nil
	}
	_, err = s.Get(ctx, id)
	return err
}

var _ job.Store = (*JobStore)(nil)
