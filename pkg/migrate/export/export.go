// package export
//
// streams source tables into table files. a file is written under a temp name and
// renamed once complete so a reader never sees half a table
package export

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/baderkha/db-migrate/pkg/migrate/codec"
	"github.com/baderkha/db-migrate/pkg/migrate/connection"
	"github.com/baderkha/db-migrate/pkg/migrate/table"
	"github.com/baderkha/db-migrate/pkg/migrate/table/catalog"
	"github.com/baderkha/db-migrate/pkg/migrate/task"
	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// DefaultLOBThreshold : large objects above this are written without a copy
const DefaultLOBThreshold = 100 << 20

// Options : export behaviour shared by every table
type Options struct {
	Dir          string
	Overwrite    bool
	Retries      int
	LOBThreshold int64
}

// Exporter : creates one task per source table
type Exporter struct {
	fs      afero.Fs
	session *connection.Session
	opts    Options
	log     zerolog.Logger
}

func New(fs afero.Fs, session *connection.Session, opts Options, log zerolog.Logger) *Exporter {
	if opts.LOBThreshold <= 0 {
		opts.LOBThreshold = DefaultLOBThreshold
	}
	return &Exporter{
		fs:      fs,
		session: session,
		opts:    opts,
		log:     log.With().Str("component", "export").Logger(),
	}
}

// Tasks : one task per table, columns lists what to export or nil for every column
func (e *Exporter) Tasks(tables []*table.Table, columns func(t *table.Table) []string) []*task.Task {
	res := make([]*task.Task, 0, len(tables))
	for _, t := range tables {
		var cols []string
		if columns != nil {
			cols = columns(t)
		}
		res = append(res, task.New(e.NewTable(t, cols)))
	}
	return res
}

// NewTable : export work for one table
func (e *Exporter) NewTable(t *table.Table, columns []string) *Table {
	return &Table{
		exp:     e,
		table:   t,
		columns: columns,
		file:    filepath.Join(e.opts.Dir, codec.FileName(t.Name)),
		log:     e.log.With().Str("table", t.Name).Logger(),
	}
}

// Table : export of one table
type Table struct {
	exp     *Exporter
	table   *table.Table
	columns []string
	file    string
	log     zerolog.Logger

	skipped bool
	reason  string
	rows    int64
	anomaly bool
}

func (t *Table) Name() string {
	return t.table.Name
}

// File : path of the finished export
func (t *Table) File() string {
	return t.file
}

// Skipped : nothing was exported, Reason tells why
func (t *Table) Skipped() bool {
	return t.skipped
}

func (t *Table) Reason() string {
	return t.reason
}

// Rows : rows written to the file
func (t *Table) Rows() int64 {
	return t.rows
}

func (t *Table) Initialize(ctx context.Context, tk *task.Task) error {
	if !t.exp.opts.Overwrite {
		exists, err := afero.Exists(t.exp.fs, t.file)
		if err != nil {
			return err
		}
		if exists {
			t.log.Debug().Str("file", t.file).Msg("file exists")
			t.skipped, t.reason = true, "file exists"
			return tk.SetSize(0)
		}
	}
	t.log.Debug().Msg("counting rows")
	count, err := catalog.RowCount(ctx, t.exp.session.DB, t.exp.session.Dialect, t.table.Name)
	if err != nil {
		return fmt.Errorf("counting rows : %w", err)
	}
	t.table.RowCount = count
	t.log.Debug().Int64("rows", count).Msg("counted rows")
	if count == 0 {
		t.skipped, t.reason = true, "table is empty"
	}
	return tk.SetSize(count)
}

func (t *Table) Execute(ctx context.Context, tk *task.Task) error {
	fs := t.exp.fs
	if !t.exp.opts.Overwrite {
		exists, err := afero.Exists(fs, t.file)
		if err != nil {
			return err
		}
		if exists {
			t.log.Warn().Str("file", t.file).Msg("file has been created after this task has been initialized")
			t.skipped, t.reason = true, "file exists"
			return tk.SetCompleted(tk.Size())
		}
	}

	tmp, err := afero.TempFile(fs, t.exp.opts.Dir, "tmp-"+t.table.Name+"-*"+codec.Extension+".part")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	w := codec.NewWriter(tmp)
	err = t.export(ctx, tk, w)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = fs.Remove(tmpName)
		return err
	}
	if err := fs.Rename(tmpName, t.file); err != nil {
		_ = fs.Remove(tmpName)
		return err
	}
	t.log.Info().Int64("rows", t.rows).Str("file", t.file).Msg("exported")

	// rows deleted since counting, progress still ends at the counted size
	if done, size := tk.Completed(), tk.Size(); done < size {
		return tk.SetCompleted(size)
	}
	return nil
}

// export retries recoverable failures on a fresh connection, resuming after the rows
// already written. the header is only written by the first attempt
func (t *Table) export(ctx context.Context, tk *task.Task, w *codec.Writer) error {
	var (
		header  bool
		retries = t.exp.opts.Retries
	)
	for attempt := 0; ; attempt++ {
		err := t.attempt(ctx, tk, w, &header)
		if err == nil {
			return nil
		}
		if !connection.IsRecoverable(err) || attempt >= retries {
			return err
		}
		t.log.Warn().Err(err).Int("attempt", attempt+1).Int64("offset", t.rows).Msg("export failed, retrying")
	}
}

func (t *Table) attempt(ctx context.Context, tk *task.Task, w *codec.Writer, header *bool) (err error) {
	session := t.exp.session
	conn, err := session.Conn(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if connection.IsRecoverable(err) {
			connection.Evict(conn)
			return
		}
		conn.Close()
	}()

	rows, err := conn.QueryContext(ctx, t.query(session.Dialect))
	if err != nil {
		return err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return err
	}
	cols, err := exportColumns(types)
	if err != nil {
		return fmt.Errorf("%s : %w", t.table.Name, err)
	}
	if len(cols) == 0 {
		return fmt.Errorf("table with 0 columns : %s", t.table.Name)
	}
	if !*header {
		t.log.Trace().Msgf("columns %s", spew.Sdump(cols))
		if err := w.WriteHeader(t.table.Name, cols); err != nil {
			return err
		}
		*header = true
	}

	scanner := newRowScanner(t.exp.opts.LOBThreshold, t.table.Name, cols)
	skip := t.rows
	size := tk.Size()
	for rows.Next() {
		if skip > 0 {
			skip--
			continue
		}
		row, err := scanner.scan(rows)
		if err != nil {
			return err
		}
		if t.log.GetLevel() <= zerolog.TraceLevel {
			t.log.Trace().Msg(spew.Sdump(row))
		}
		if err := w.WriteRow(row); err != nil {
			return err
		}
		t.rows++
		if t.rows <= size {
			if err := tk.Advance(1); err != nil {
				return err
			}
		} else if !t.anomaly {
			t.anomaly = true
			t.log.Warn().Int64("counted", size).Msg("table has more rows than counted, exporting them anyway")
		}
	}
	return rows.Err()
}

func (t *Table) query(d *connection.Dialect) string {
	if len(t.columns) == 0 {
		return fmt.Sprintf("SELECT * FROM %s", d.QuoteTable(t.table.Name))
	}
	quoted := make([]string, len(t.columns))
	for i, c := range t.columns {
		quoted[i] = d.Quote(c)
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), d.QuoteTable(t.table.Name))
}
