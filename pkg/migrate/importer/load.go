package importer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/baderkha/db-migrate/pkg/migrate/codec"
	"github.com/baderkha/db-migrate/pkg/migrate/connection"
	"github.com/baderkha/db-migrate/pkg/migrate/table"
	"github.com/baderkha/db-migrate/pkg/migrate/table/catalog"
	"github.com/rs/zerolog"
)

// errNoBulk : the connection cannot reach the native bulk api, the generic path takes over
var errNoBulk = errors.New("bulk api not available")

// bulkLoader : native fast path of one driver. it returns errNoBulk before reading any row
// when it cannot serve the connection
type bulkLoader func(ctx context.Context, conn *sql.Conn, d *connection.Dialect, tableName string, columns []string, src *rowSource) error

var bulkLoaders = map[string]bulkLoader{
	"pgx":       copyPostgres,
	"sqlserver": copySQLServer,
}

func (f *File) load(ctx context.Context, conn *sql.Conn, r *codec.Reader) error {
	session := f.imp.session
	_, source, err := r.ReadHeader()
	if err != nil {
		return err
	}
	target, err := catalog.Columns(ctx, conn, session.Dialect, f.table)
	if err != nil {
		return err
	}
	if len(target) == 0 {
		return fmt.Errorf("no columns found for %s.%s", session.Schema, f.table)
	}
	mapping, err := table.BuildMapping(source, target)
	if err != nil {
		return err
	}
	names := make([]string, len(target))
	for i, c := range target {
		names[i] = c.Name
	}

	src := &rowSource{
		ctx:      ctx,
		r:        r,
		table:    f.table,
		mapping:  mapping,
		target:   target,
		rounding: f.imp.rounding,
		bind:     bindGeneric,
		log:      f.log,
	}
	defer func() { f.rows = src.rows }()

	if bulk, ok := bulkLoaders[session.Driver]; ok && f.imp.opts.Bulk {
		err := bulk(ctx, conn, session.Dialect, f.table, names, src)
		if !errors.Is(err, errNoBulk) {
			return err
		}
		f.log.Debug().Msg("bulk api not available, using inserts")
	}
	query := session.Dialect.Insert(f.table, names)
	f.log.Debug().Str("query", query).Msg("prepared statement")
	return insertRows(ctx, conn, query, f.imp.opts.BatchSize, src, f.log)
}

// insertRows : the statements run detached from ctx so a cancellation is only
// observed by the row source between rows, never inside a statement
func insertRows(ctx context.Context, conn *sql.Conn, query string, batchSize int, src *rowSource, log zerolog.Logger) error {
	ctx = context.WithoutCancel(ctx)
	if batchSize == 0 {
		stmt, err := conn.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for src.next() {
			if _, err := stmt.ExecContext(ctx, src.values...); err != nil {
				return err
			}
		}
		return src.err
	}
	for {
		n, err := insertBatch(ctx, conn, query, batchSize, src)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Debug().Int("rows", n).Msg("batch executed")
		}
		if n < batchSize {
			return nil
		}
	}
}

// insertBatch : up to size rows in one transaction, nothing is committed on error
func insertBatch(ctx context.Context, conn *sql.Conn, query string, size int, src *rowSource) (n int, err error) {
	if !src.next() {
		return 0, src.err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for {
		if _, err = stmt.ExecContext(ctx, src.values...); err != nil {
			return n, err
		}
		n++
		if n >= size || !src.next() {
			break
		}
	}
	if src.err != nil {
		return n, src.err
	}
	return n, tx.Commit()
}
