// package catalog
//
// reads tables, columns and row counts through the database catalog
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/baderkha/db-migrate/pkg/migrate/table"
	"github.com/baderkha/db-migrate/pkg/migrate/table/colmap"
	"golang.org/x/sync/errgroup"
)

// Queryer : *sql.DB, *sql.Conn and *sql.Tx all satisfy this
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Dialect : the part of a SQL dialect the catalog needs
type Dialect interface {
	QuoteTable(name string) string
	TablesQuery(schema string) (string, []any)
}

// Catalog : table enumerator for one endpoint
type Catalog interface {
	// TableNames : every base table of the configured schema
	TableNames(ctx context.Context) ([]string, error)
	// All : tables with their columns, row counts are left for the tasks
	All(ctx context.Context, f *table.FetchOptions) ([]*table.Table, error)
}

// New : catalog over an open database
func New(db *sql.DB, dialect Dialect, schema string, maxConc int) Catalog {
	if maxConc < 1 {
		maxConc = 1
	}
	return &sqlCatalog{
		db:      db,
		dialect: dialect,
		schema:  schema,
		maxConc: maxConc,
	}
}

type sqlCatalog struct {
	db      *sql.DB
	dialect Dialect
	schema  string
	maxConc int
}

func (c *sqlCatalog) TableNames(ctx context.Context) ([]string, error) {
	query, args := c.dialect.TablesQuery(c.schema)
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tables of %q : %w", c.schema, err)
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res = append(res, name)
	}
	return res, rows.Err()
}

func (c *sqlCatalog) All(ctx context.Context, f *table.FetchOptions) ([]*table.Table, error) {
	if f == nil {
		f = &table.FetchOptions{}
	}
	names, err := c.TableNames(ctx)
	if err != nil {
		return nil, err
	}
	var res []*table.Table
	for _, n := range names {
		if len(f.Include) > 0 && !contains(f.Include, n) {
			continue
		}
		res = append(res, &table.Table{Name: n})
	}

	wg, gctx := errgroup.WithContext(ctx)
	wg.SetLimit(c.maxConc)
	for _, t := range res {
		t := t
		wg.Go(func() error {
			cols, err := Columns(gctx, c.db, c.dialect, t.Name)
			if err != nil {
				return err
			}
			t.Columns = cols
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return nil, err
	}
	Sort(res, f)
	return res, nil
}

// Sort : orders tables by row count or name
func Sort(tables []*table.Table, f *table.FetchOptions) {
	if f == nil || f.SortByCol == "" {
		return
	}
	isAsc := f.SortByDirection != table.SortDirectionDESC
	sort.SliceStable(tables, func(i, j int) bool {
		a, b := tables[i], tables[j]
		if !isAsc {
			a, b = b, a
		}
		if f.SortByCol == table.SortByRowCount {
			return a.RowCount < b.RowCount
		}
		return a.Name < b.Name
	})
}

// Columns : live columns of a table read from a zero row query
func Columns(ctx context.Context, q Queryer, dialect Dialect, tableName string) ([]table.Column, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE 1=0", dialect.QuoteTable(tableName)))
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s : %w", tableName, err)
	}
	defer rows.Close()
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s : %w", tableName, err)
	}
	cols, err := colmap.FromColumnTypes(types)
	if err != nil {
		return nil, fmt.Errorf("%s : %w", tableName, err)
	}
	return cols, rows.Err()
}

// RowCount : exact row count at the time of the query
func RowCount(ctx context.Context, q Queryer, dialect Dialect, tableName string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(1) FROM %s", dialect.QuoteTable(tableName))
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("no results : %s", query)
	}
	var count int64
	if err := rows.Scan(&count); err != nil {
		return 0, err
	}
	if rows.Next() {
		return 0, fmt.Errorf("expected only one row : %s", query)
	}
	return count, rows.Err()
}

// IsEmpty : true when the table holds no rows
func IsEmpty(ctx context.Context, q Queryer, dialect Dialect, tableName string) (bool, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT 1 FROM %s", dialect.QuoteTable(tableName)))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	if rows.Next() {
		return false, nil
	}
	return true, rows.Err()
}

// DeleteRows : removes every row of a table, returns the deleted count when the driver reports it
func DeleteRows(ctx context.Context, q Queryer, dialect Dialect, tableName string) (int64, error) {
	res, err := q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", dialect.QuoteTable(tableName)))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return -1, nil
	}
	return n, nil
}

// ErrNoTables : the schema holds no tables at all
var ErrNoTables = errors.New("no tables found")

func contains(list []string, name string) bool {
	for _, v := range list {
		if strings.EqualFold(v, name) {
			return true
		}
	}
	return false
}
