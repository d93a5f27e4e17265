// Package migrations holds the embedded schema for PostgreSQL and ClickHouse.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// PostgresFS holds cost_lots, lot_consumptions, price_quotes, classified_events and report_jobs.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the price quote history and event_facts analytics tables.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS

// sqlFile is one migration file.
type sqlFile struct {
	Name string
	SQL  string
}

// sqlFiles returns the non-empty .sql files of dir in lexical order.
// Files are named NNN_description.sql, so lexical order is apply order.
func sqlFiles(fsys fs.FS, dir string) ([]sqlFile, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations %s: %w", dir, err)
	}

	var files []sqlFile
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		files = append(files, sqlFile{Name: e.Name(), SQL: string(data)})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
