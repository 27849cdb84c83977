package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	xerrors "SignalProof-Chain/internal/errors"
)

// Config 描述 MySQL 连接池参数。
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// driverConfig 解析 DSN，并固定任务表依赖的连接选项。
func driverConfig(dsn string) (*gomysql.Config, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidInput, "mysql dsn is required", xerrors.WithField("storage.job_store.dsn"))
	}
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidInput, err, "invalid mysql dsn", xerrors.WithField("storage.job_store.dsn"))
	}
	cfg.Loc = time.UTC
	// 迁移逐条执行。
	cfg.MultiStatements = false
	return cfg, nil
}

// redactedDSN 返回去掉密码的 DSN，用于日志。
func redactedDSN(cfg *gomysql.Config) string {
	clone := cfg.Clone()
	if clone.Passwd != "" {
		clone.Passwd = "***"
	}
	return clone.FormatDSN()
}

func openDatabase(ctx context.Context, cfg Config) (*sql.DB, error) {
	dc, err := driverConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	connector, err := gomysql.NewConnector(dc)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "create mysql connector")
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(orDefault(cfg.MaxOpenConns, 20))
	db.SetMaxIdleConns(orDefault(cfg.MaxIdleConns, 10))
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "ping mysql",
			xerrors.WithMetadata("dsn", redactedDSN(dc)))
	}
	return db, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
