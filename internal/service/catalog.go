package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"odbcref/internal/core"
)

// catalogQueries holds the per-driver statements used in place of ODBC's
// SQLTables and SQLColumns, which database/sql does not expose.
type catalogQueries struct {
	tableExists string
	columns     string
}

func catalogFor(driver string) catalogQueries {
	switch driver {
	case "sqlite":
		return catalogQueries{
			tableExists: `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND lower(name) = lower(?)`,
			columns:     `SELECT name, type, "notnull" = 0 FROM pragma_table_info(?) ORDER BY cid`,
		}
	case "postgres":
		return informationSchema("$1")
	case "mssql":
		return informationSchema("@p1")
	default:
		return informationSchema("?")
	}
}

func informationSchema(placeholder string) catalogQueries {
	tables := `SELECT COUNT(*) FROM information_schema.tables WHERE lower(table_name) = lower(` + placeholder + `)`
	columns := `SELECT column_name, data_type, CASE WHEN is_nullable = 'YES' THEN 1 ELSE 0 END
		FROM information_schema.columns WHERE lower(table_name) = lower(` + placeholder + `)
		ORDER BY ordinal_position`
	return catalogQueries{tableExists: tables, columns: columns}
}

// TableExists reports whether a table named name is visible on c.
func TableExists(ctx context.Context, c *Connection, name string) (bool, error) {
	q, err := c.queryer(ctx)
	if err != nil {
		return false, err
	}

	var n int
	if err := q.QueryRowContext(ctx, catalogFor(c.driver).tableExists, name).Scan(&n); err != nil {
		return false, fmt.Errorf("catalog lookup for %s: %w", name, err)
	}
	return n > 0, nil
}

// Columns lists the columns of table in declaration order.
func Columns(ctx context.Context, c *Connection, table string) ([]core.ColumnInfo, error) {
	q, err := c.queryer(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, catalogFor(c.driver).columns, table)
	if err != nil {
		return nil, fmt.Errorf("catalog columns for %s: %w", table, err)
	}
	defer rows.Close()

	var cols []core.ColumnInfo
	for rows.Next() {
		var (
			col      core.ColumnInfo
			nullable sql.NullBool
		)
		if err := rows.Scan(&col.Name, &col.Type, &nullable); err != nil {
			return nil, err
		}
		col.Type = strings.ToUpper(col.Type)
		col.Nullable = nullable.Bool
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s: %w", table, core.ErrNotFound)
	}
	return cols, nil
}

// VerifyTables returns an error naming every table in names that is missing.
func VerifyTables(ctx context.Context, c *Connection, names []string) error {
	var missing []string
	for _, name := range names {
		ok, err := TableExists(ctx, c, name)
		if err != nil {
			return err
		}
		if !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.New("tables not found after run: " + strings.Join(missing, ", "))
	}
	return nil
}
