package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Execer is satisfied by *sql.DB and *sql.Tx
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// maxVariables stays under SQLite's default bound-parameter limit
const maxVariables = 32000

// BatchInsert inserts rows in multi-row INSERT statements, splitting the
// rows so no statement exceeds the bound-parameter limit.
func BatchInsert(ctx context.Context, exec Execer, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	perRow := len(columns)
	chunk := maxVariables / perRow
	if chunk < 1 {
		chunk = 1
	}

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", perRow), ", ") + ")"
	head := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))

	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}

		var sb strings.Builder
		sb.WriteString(head)
		args := make([]any, 0, (end-start)*perRow)
		for i, row := range rows[start:end] {
			if len(row) != perRow {
				return fmt.Errorf("row %d of %s has %d values, want %d", start+i, table, len(row), perRow)
			}
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(placeholder)
			args = append(args, row...)
		}

		if _, err := exec.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return nil
}
