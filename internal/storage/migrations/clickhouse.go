package migrations

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	chstore "chain-tax-lab/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the DSN's database when missing, applies every embedded
// ClickHouse file and returns a connection to that database.
func RunClickhouseMigrations(ctx context.Context, dsn string) (_ *chstore.Conn, err error) {
	db, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	if err := createDatabase(ctx, dsn, db); err != nil {
		return nil, err
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, db)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse %s: %w", db, err)
	}
	defer func() {
		if err != nil {
			_ = conn.Close()
		}
	}()

	files, err := sqlFiles(ClickhouseFS, "clickhouse")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		// the native protocol runs one statement per Exec
		stmts, err := splitStatements(f.SQL)
		if err != nil {
			return nil, fmt.Errorf("split migration %s: %w", f.Name, err)
		}
		for i, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				return nil, fmt.Errorf("apply migration %s statement %d: %w", f.Name, i+1, err)
			}
		}
	}
	return conn, nil
}

func createDatabase(ctx context.Context, dsn, db string) error {
	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return fmt.Errorf("connect clickhouse: %w", err)
	}
	execErr := admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+db)
	closeErr := admin.Close()
	if execErr != nil {
		return fmt.Errorf("create database %s: %w", db, execErr)
	}
	return closeErr
}

// splitStatements cuts a script at semicolons outside single-quoted literals and drops
// "--" comment lines. Block comments are not supported.
func splitStatements(script string) ([]string, error) {
	var (
		stmts   []string
		current strings.Builder
		quoted  bool
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			stmts = append(stmts, s)
		}
		current.Reset()
	}

	for _, line := range strings.Split(script, "\n") {
		if !quoted && strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		for i := 0; i < len(line); i++ {
			ch := line[i]
			switch {
			case ch == '\'' && quoted && i+1 < len(line) && line[i+1] == '\'':
				current.WriteString("''")
				i++
				continue
			case ch == '\'':
				quoted = !quoted
			case ch == ';' && !quoted:
				flush()
				continue
			}
			current.WriteByte(ch)
		}
		current.WriteByte('\n')
	}
	if quoted {
		return nil, errors.New("unterminated string literal")
	}
	flush()
	return stmts, nil
}

// databaseFromDSN returns the database named in the DSN path. The migrations never
// target the server's default database implicitly.
func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.Trim(u.Path, "/")
	if db == "" {
		return "", errors.New("clickhouse dsn names no database")
	}
	return db, nil
}
