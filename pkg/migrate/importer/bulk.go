package importer

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/baderkha/db-migrate/pkg/migrate/connection"
	"github.com/baderkha/db-migrate/pkg/migrate/table"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/stdlib"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/shopspring/decimal"
)

// copySource : rows as a pgx.CopyFromSource
type copySource struct {
	src *rowSource
}

func (c *copySource) Next() bool {
	return c.src.next()
}

func (c *copySource) Values() ([]any, error) {
	return c.src.values, nil
}

func (c *copySource) Err() error {
	return c.src.err
}

// copyPostgres : COPY FROM STDIN through the pgx connection behind database/sql. a
// connection wrapped by the query logger is not a *stdlib.Conn and falls back to inserts
func copyPostgres(ctx context.Context, conn *sql.Conn, _ *connection.Dialect, tableName string, columns []string, src *rowSource) error {
	return conn.Raw(func(dc any) error {
		c, ok := dc.(*stdlib.Conn)
		if !ok {
			return errNoBulk
		}
		src.bind = bindPostgres
		n, err := c.Conn().CopyFrom(ctx, pgx.Identifier{tableName}, columns, &copySource{src: src})
		if err != nil {
			return err
		}
		if n != src.rows {
			return fmt.Errorf("copied %d rows out of %d", n, src.rows)
		}
		return nil
	})
}

// lazyText : large text handed to COPY, turned into a string only when it is encoded
type lazyText []byte

func (t lazyText) TextValue() (pgtype.Text, error) {
	return pgtype.Text{String: string(t), Valid: true}, nil
}

// bindPostgres : COPY uses the binary protocol, decimals go in as numerics
func bindPostgres(col table.Column, v any) (any, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		if col.Kind == table.KindNumeric || col.Kind == table.KindDecimal {
			return pgtype.Numeric{Int: x.Coefficient(), Exp: x.Exponent(), Valid: true}, nil
		}
	case []byte:
		if col.Kind == table.KindClob || col.Kind == table.KindVarchar {
			return lazyText(x), nil
		}
	}
	return bindGeneric(col, v)
}

// copySQLServer : bulk insert through mssql.CopyIn. the rows are buffered by the driver
// and sent when the statement is executed without arguments
func copySQLServer(ctx context.Context, conn *sql.Conn, d *connection.Dialect, tableName string, columns []string, src *rowSource) (err error) {
	ctx = context.WithoutCancel(ctx)
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(d.QuoteTable(tableName), mssql.BulkOptions{}, columns...))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for src.next() {
		if _, err = stmt.ExecContext(ctx, src.values...); err != nil {
			return err
		}
	}
	if src.err != nil {
		return src.err
	}
	res, err := stmt.ExecContext(ctx)
	if err != nil {
		return err
	}
	if n, rerr := res.RowsAffected(); rerr == nil && n != src.rows {
		return fmt.Errorf("copied %d rows out of %d", n, src.rows)
	}
	return tx.Commit()
}
