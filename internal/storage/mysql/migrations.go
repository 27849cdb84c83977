package mysql

import (
	"bufio"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"SignalProof-Chain/deploy/migrations"
	xerrors "SignalProof-Chain/internal/errors"
)

const schemaMigrationsDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version VARCHAR(32) NOT NULL PRIMARY KEY,
    checksum CHAR(64) NOT NULL,
    applied_at BIGINT NOT NULL
)`

const (
	selectAppliedSQL   = `SELECT version, checksum FROM schema_migrations`
	recordMigrationSQL = `INSERT INTO schema_migrations (version, checksum, applied_at) VALUES (?, ?, ?)`
)

// migration 是一个带版本号的 SQL 文件，文件名形如 0001_name.sql。
type migration struct {
	version    string
	name       string
	checksum   string
	statements []string
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	return migrate(ctx, db, migrations.Files, time.Now)
}

// migrate 按版本顺序执行尚未记录的迁移，每个迁移一个事务。已执行迁移的
// 内容若被修改则拒绝启动。
func migrate(ctx context.Context, db *sql.DB, fsys fs.FS, now func() time.Time) error {
	if _, err := db.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "create schema_migrations")
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return err
	}
	files, err := loadMigrations(fsys)
	if err != nil {
		return err
	}
	for _, m := range files {
		if checksum, ok := applied[m.version]; ok {
			if checksum != m.checksum {
				return xerrors.New(xerrors.CodeStorageFailure,
					fmt.Sprintf("migration %s changed after it was applied", m.name),
					xerrors.WithMetadata("version", m.version))
			}
			continue
		}
		if err := applyMigration(ctx, db, m, now()); err != nil {
			return err
		}
	}
	return nil
}

func appliedMigrations(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, selectAppliedSQL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "query schema_migrations")
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "scan schema_migrations")
		}
		applied[version] = checksum
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "iterate schema_migrations")
	}
	return applied, nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration, at time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "begin migration")
	}
	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("apply migration %s", m.name))
		}
	}
	if _, err := tx.ExecContext(ctx, recordMigrationSQL, m.version, m.checksum, at.Unix()); err != nil {
		_ = tx.Rollback()
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("record migration %s", m.name))
	}
	if err := tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("commit migration %s", m.name))
	}
	return nil
}

func loadMigrations(fsys fs.FS) ([]migration, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "list migrations")
	}
	seen := make(map[string]string, len(names))
	files := make([]migration, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, fmt.Sprintf("read migration %s", name))
		}
		statements := splitStatements(string(content))
		if len(statements) == 0 {
			continue
		}
		version := migrationVersion(name)
		if other, dup := seen[version]; dup {
			return nil, xerrors.New(xerrors.CodeInitializationFailure,
				fmt.Sprintf("migrations %s and %s share version %s", other, name, version))
		}
		seen[version] = name
		sum := sha256.Sum256(content)
		files = append(files, migration{
			version:    version,
			name:       name,
			checksum:   hex.EncodeToString(sum[:]),
			statements: statements,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

// splitStatements 按分号切分语句并丢弃 "--" 注释行。
func splitStatements(content string) []string {
	var body strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	var statements []string
	for _, stmt := range strings.Split(body.String(), ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}

func migrationVersion(name string) string {
	base := strings.TrimSuffix(path.Base(name), path.Ext(name))
	if idx := strings.IndexByte(base, '_'); idx > 0 {
		return base[:idx]
	}
	return base
}
