// package importer
//
// loads table files into the target database. every file becomes one task sized by
// its byte length, the rows go through a column mapping and the rounding policy before
// they are bound to a batched insert or to the bulk api of the target engine
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/baderkha/db-migrate/pkg/migrate/codec"
	"github.com/baderkha/db-migrate/pkg/migrate/connection"
	"github.com/baderkha/db-migrate/pkg/migrate/ledger"
	"github.com/baderkha/db-migrate/pkg/migrate/rounding"
	"github.com/baderkha/db-migrate/pkg/migrate/table"
	"github.com/baderkha/db-migrate/pkg/migrate/table/catalog"
	"github.com/baderkha/db-migrate/pkg/migrate/task"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// ErrInterrupted : the import stopped because its context was cancelled
var ErrInterrupted = errors.New("import interrupted")

// Options : import behaviour shared by every file
type Options struct {
	DeleteBeforeImport bool
	// BatchSize : rows per transaction, 0 executes every row on its own
	BatchSize int
	// Bulk : use the native bulk api when the target driver has one
	Bulk bool
}

// Importer : creates one task per table file
type Importer struct {
	fs       afero.Fs
	session  *connection.Session
	tables   table.Names
	ledger   *ledger.Ledger
	rounding *rounding.Handler
	opts     Options
	log      zerolog.Logger
}

// New : tables are the live target tables, the ledger may be nil and a nil handler warns
func New(fs afero.Fs, session *connection.Session, tables table.Names, l *ledger.Ledger, h *rounding.Handler, opts Options, log zerolog.Logger) *Importer {
	if h == nil {
		h = rounding.NewHandler(rounding.PolicyWarn, nil, log)
	}
	return &Importer{
		fs:       fs,
		session:  session,
		tables:   tables,
		ledger:   l,
		rounding: h,
		opts:     opts,
		log:      log.With().Str("component", "import").Logger(),
	}
}

// Tasks : one task per file
func (im *Importer) Tasks(files []string) []*task.Task {
	res := make([]*task.Task, 0, len(files))
	for _, f := range files {
		res = append(res, task.New(im.NewFile(f)))
	}
	return res
}

// NewFile : import work for one file
func (im *Importer) NewFile(path string) *File {
	return &File{
		imp:  im,
		path: path,
		log:  im.log.With().Str("file", filepath.Base(path)).Logger(),
	}
}

// File : import of one table file
type File struct {
	imp   *Importer
	path  string
	table string
	log   zerolog.Logger

	skipped bool
	reason  string
	rows    int64
}

func (f *File) Name() string {
	return filepath.Base(f.path)
}

// Path : the imported file
func (f *File) Path() string {
	return f.path
}

// Table : target table, empty when it does not exist
func (f *File) Table() string {
	return f.table
}

// Skipped : nothing was imported, Reason tells why
func (f *File) Skipped() bool {
	return f.skipped
}

func (f *File) Reason() string {
	return f.reason
}

// Rows : rows handed to the target
func (f *File) Rows() int64 {
	return f.rows
}

func (f *File) skip(tk *task.Task, reason string) error {
	f.skipped, f.reason = true, reason
	return finish(tk)
}

func (f *File) Initialize(ctx context.Context, tk *task.Task) error {
	if f.imp.ledger != nil && f.imp.ledger.Contains(f.path) {
		f.log.Info().Msg("already imported")
		f.skipped, f.reason = true, "already imported"
		return tk.SetSize(0)
	}
	name, err := readTableName(f.imp.fs, f.path)
	if err != nil {
		return fmt.Errorf("reading header of %s : %w", f.path, err)
	}
	target, ok := f.imp.tables.Lookup(name)
	if !ok {
		f.log.Warn().Str("table", name).Msg("table not found, skipping import")
		f.skipped, f.reason = true, "table not found"
		return tk.SetSize(0)
	}
	f.table = target
	f.log = f.log.With().Str("table", target).Logger()
	info, err := f.imp.fs.Stat(f.path)
	if err != nil {
		return err
	}
	return tk.SetSize(info.Size())
}

func (f *File) Execute(ctx context.Context, tk *task.Task) error {
	session := f.imp.session
	conn, err := session.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if f.imp.opts.DeleteBeforeImport {
		n, err := catalog.DeleteRows(ctx, conn, session.Dialect, f.table)
		if err != nil {
			return fmt.Errorf("deleting rows of %s : %w", f.table, err)
		}
		f.log.Info().Int64("rows", n).Msg("deleted existing rows")
	} else {
		empty, err := catalog.IsEmpty(ctx, conn, session.Dialect, f.table)
		if err != nil {
			return err
		}
		if !empty {
			f.log.Warn().Msg("table not empty, skipping import")
			return f.skip(tk, "table not empty")
		}
	}

	in, err := f.imp.fs.Open(f.path)
	if err != nil {
		return err
	}
	defer in.Close()
	r, err := codec.NewReader(&progressReader{r: in, tk: tk})
	if err != nil {
		return fmt.Errorf("importing %s : %w", f.path, err)
	}
	defer r.Close()

	f.log.Info().Msg("importing")
	if err := f.load(ctx, conn, r); err != nil {
		return fmt.Errorf("importing %s : %w", f.path, err)
	}
	f.log.Info().Int64("rows", f.rows).Msg("imported")

	if f.imp.ledger != nil {
		if err := f.imp.ledger.Mark(f.path); err != nil {
			return err
		}
	}
	return finish(tk)
}

// finish moves the progress to the size unless it is already there
func finish(tk *task.Task) error {
	if done, size := tk.Completed(), tk.Size(); done < size {
		return tk.SetCompleted(size)
	}
	return nil
}

func readTableName(fs afero.Fs, path string) (string, error) {
	in, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()
	r, err := codec.NewReader(in)
	if err != nil {
		return "", err
	}
	defer r.Close()
	name, _, err := r.ReadHeader()
	return name, err
}

// progressReader : advances the task by the bytes read from the file
type progressReader struct {
	r  io.Reader
	tk *task.Task
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		if remaining := p.tk.Size() - p.tk.Completed(); remaining > 0 {
			if aerr := p.tk.Advance(min(int64(n), remaining)); aerr != nil && err == nil {
				err = aerr
			}
		}
	}
	return n, err
}
