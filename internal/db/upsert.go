package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// InsertIgnoreConfig defines the parameters for a conflict-tolerant bulk insert.
type InsertIgnoreConfig struct {
	Table        string   // target table (e.g., "substance_aliases")
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
}

// BulkInsertIgnore inserts rows with INSERT ... ON CONFLICT DO NOTHING.
// A duplicate row is not an error; the return value counts rows actually
// written. Used for alias rows discovered during enrichment, where the
// same synonym routinely arrives from multiple providers.
func BulkInsertIgnore(ctx context.Context, pool Pool, cfg InsertIgnoreConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: insert ignore: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: insert ignore: no conflict keys specified")
	}

	colList := quoteAndJoin(cfg.Columns)
	conflictList := quoteAndJoin(cfg.ConflictKeys)

	var total int64
	for _, row := range rows {
		if len(row) != len(cfg.Columns) {
			return total, eris.Errorf("db: insert ignore: row has %d values, want %d", len(row), len(cfg.Columns))
		}
		placeholders := make([]string, len(row))
		for i := range row {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		}
		sql := fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
			sanitizeTable(cfg.Table),
			colList,
			strings.Join(placeholders, ", "),
			conflictList,
		)
		tag, err := pool.Exec(ctx, sql, row...)
		if err != nil {
			return total, eris.Wrapf(err, "db: insert ignore into %s", cfg.Table)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// sanitizeTable handles schema-qualified table names like "public.substances".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
