package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/baderkha/db-migrate/pkg/migrate/archive"
	"github.com/baderkha/db-migrate/pkg/migrate/codec"
	"github.com/baderkha/db-migrate/pkg/migrate/connection"
	"github.com/baderkha/db-migrate/pkg/migrate/executor"
	"github.com/baderkha/db-migrate/pkg/migrate/export"
	"github.com/baderkha/db-migrate/pkg/migrate/filter"
	"github.com/baderkha/db-migrate/pkg/migrate/importer"
	"github.com/baderkha/db-migrate/pkg/migrate/ledger"
	"github.com/baderkha/db-migrate/pkg/migrate/rounding"
	"github.com/baderkha/db-migrate/pkg/migrate/script"
	"github.com/baderkha/db-migrate/pkg/migrate/state"
	"github.com/baderkha/db-migrate/pkg/migrate/table"
	"github.com/baderkha/db-migrate/pkg/migrate/table/catalog"
	"github.com/baderkha/db-migrate/pkg/migrate/task"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// ExportDir : directory below the migration root holding the table files
const ExportDir = "export"

// ErrAllExcluded : the filter left no table to export
var ErrAllExcluded = errors.New("all tables excluded")

// Migration : export of the source schema into table files followed by their import
// into the target schema. either phase can be skipped through the configuration
type Migration struct {
	fs       afero.Fs
	history  state.Manager
	log      zerolog.Logger
	progress io.Writer
	// S3 : client factory for the archive upload
	S3 func(region string) (s3iface.S3API, error)
}

// New : a nil history keeps no history, progress receives the progress bar
func New(fs afero.Fs, history state.Manager, log zerolog.Logger, progress io.Writer) *Migration {
	if history == nil {
		history = state.NewNopManager()
	}
	if progress == nil {
		progress = os.Stderr
	}
	return &Migration{
		fs:       fs,
		history:  history,
		log:      log,
		progress: progress,
		S3:       archive.NewS3,
	}
}

// Run : runs both phases, the report is returned even when the run failed
func (m *Migration) Run(ctx context.Context, cfg *Config) (*Report, error) {
	uid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	r := &run{
		Migration: m,
		cfg:       cfg,
		report:    &Report{RunID: uid.String()},
		log:       m.log.With().Str("run_id", uid.String()).Logger(),
	}
	r.log.Info().Str("root", cfg.Root).Msg("migration started")
	started := time.Now()

	err = r.exec(ctx)
	r.finish(ctx, err)
	if err != nil {
		r.log.Error().Err(err).Dur("elapsed", time.Since(started)).Msg("migration failed")
		return r.report, err
	}
	r.log.Info().Dur("elapsed", time.Since(started)).Msg("migration finished")
	return r.report, nil
}

type run struct {
	*Migration
	cfg    *Config
	report *Report
	log    zerolog.Logger
	begun  bool
}

func (r *run) exec(ctx context.Context) error {
	if r.cfg.Source.Skip {
		r.log.Info().Msg("export skipped")
	} else if err := r.export(ctx); err != nil {
		return fmt.Errorf("export : %w", err)
	}
	if r.cfg.Target.Skip {
		r.log.Info().Msg("import skipped")
	} else if err := r.importFiles(ctx); err != nil {
		return fmt.Errorf("import : %w", err)
	}
	return nil
}

// begin : the run is logged once the first phase knows how many tasks it has
func (r *run) begin(total int) {
	if r.begun {
		return
	}
	r.begun = true
	r.historyErr(r.history.InitRunLog(r.report.RunID, r.cfg.Root, total))
}

// finish : an interrupted run is aborted rather than failed
func (r *run) finish(ctx context.Context, err error) {
	r.begin(0)
	if err != nil && ctx.Err() != nil {
		r.historyErr(r.history.OnShutDownEv())
		return
	}
	if err != nil {
		r.historyErr(r.history.FailedRunLog(r.report.RunID, err))
		return
	}
	r.historyErr(r.history.PassedRunLog(r.report.RunID))
}

// history is informational, a broken history never fails the migration
func (r *run) historyErr(err error) {
	if err != nil {
		r.log.Warn().Err(err).Msg("could not write history")
	}
}

func (r *run) dir() string {
	return filepath.Join(r.cfg.Root, ExportDir)
}

// path : relative paths of the configuration are relative to the root
func (r *run) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(r.cfg.Root, p)
}

func (r *run) executor(threads int, unit executor.Unit) *executor.Executor {
	opts := executor.Options{Concurrency: threads, Unit: unit}
	if r.cfg.Progress == "bar" {
		opts.Reporter = executor.NewBarReporter(r.progress)
	}
	return executor.New(opts, r.log)
}

func wait(ctx context.Context, seconds int, log zerolog.Logger) error {
	if seconds <= 0 {
		return nil
	}
	log.Info().Msgf("waiting %d seconds", seconds)
	t := time.NewTimer(time.Duration(seconds) * time.Second)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *run) export(ctx context.Context) error {
	cfg := r.cfg.Source
	log := r.log.With().Str("phase", string(state.PhaseExport)).Logger()
	if err := r.fs.MkdirAll(r.dir(), 0755); err != nil {
		return err
	}
	session, err := connection.Open(ctx, cfg.JDBC, connection.Options{
		MaxConns:  cfg.Threads + 1,
		FetchSize: cfg.FetchSize,
	}, log)
	if err != nil {
		return err
	}
	defer session.Close()

	// include is applied by the filter so both lists match names the same way
	tables, err := catalog.New(session.DB, session.Dialect, session.Schema, cfg.Threads).All(ctx, &table.FetchOptions{
		SortByCol:       table.SortByTableName,
		SortByDirection: table.SortDirectionASC,
	})
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		return fmt.Errorf("%w in %s", catalog.ErrNoTables, session.Schema)
	}
	f := filter.New(cfg.Include, cfg.Exclude)
	if err := f.Validate(tables); err != nil {
		return err
	}
	if tables = f.Tables(tables); len(tables) == 0 {
		return ErrAllExcluded
	}
	log.Info().Int("tables", len(tables)).Msg("tables to export")

	r.begin(len(tables))
	if err := wait(ctx, cfg.Wait, log); err != nil {
		return err
	}

	exp := export.New(r.fs, session, export.Options{
		Dir:          r.dir(),
		Overwrite:    cfg.Overwrite,
		Retries:      cfg.Retries,
		LOBThreshold: cfg.LOBThreshold,
	}, log)
	tasks := exp.Tasks(tables, f.Columns)
	for _, tk := range tasks {
		r.historyErr(r.history.InitTableRunLog(r.report.RunID, state.PhaseExport, session.Schema, tk.Name()))
	}
	err = r.executor(cfg.Threads, executor.UnitRows).Execute(ctx, tasks)

	var files []string
	for _, tk := range tasks {
		t := tk.Work().(*export.Table)
		o := r.record(tk, state.PhaseExport, session.Schema, t.Rows(), t.Skipped(), t.Reason())
		if o.Status == state.Success {
			files = append(files, t.File())
		}
	}
	r.report.Log(log, state.PhaseExport)
	if err != nil {
		return err
	}
	if cfg.Archive.Bucket == "" || len(files) == 0 {
		return nil
	}
	client, err := r.S3(cfg.Archive.Region)
	if err != nil {
		return err
	}
	return archive.New(r.fs, client, archive.Options{
		Bucket:   cfg.Archive.Bucket,
		Prefix:   cfg.Archive.Prefix,
		MaxRetry: cfg.Archive.MaxRetry,
	}, log).Upload(ctx, r.report.RunID, files)
}

func (r *run) importFiles(ctx context.Context) (err error) {
	cfg := r.cfg.Target
	log := r.log.With().Str("phase", string(state.PhaseImport)).Logger()

	files, err := exportFiles(r.fs, r.dir())
	if err != nil {
		return err
	}
	l, err := ledger.Open(r.fs, filepath.Join(r.cfg.Root, ledger.FileName))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := l.Close(); err == nil {
			err = cerr
		}
	}()
	pending := files[:0]
	for _, f := range files {
		if l.Contains(f) {
			log.Debug().Str("file", filepath.Base(f)).Msg("already imported")
			continue
		}
		pending = append(pending, f)
	}
	if len(pending) == 0 {
		log.Info().Int("files", len(files)).Msg("nothing to import")
		return nil
	}

	session, err := connection.Open(ctx, cfg.JDBC, connection.Options{MaxConns: cfg.Threads + 1}, log)
	if err != nil {
		return err
	}
	defer session.Close()

	r.begin(len(pending))
	if err := wait(ctx, cfg.Wait, log); err != nil {
		return err
	}
	scripts := script.New(r.fs, r.cfg.Root, session.DB, log)
	if err := scripts.Run(ctx, cfg.Before.Files, cfg.Before.ContinueOnError); err != nil {
		return fmt.Errorf("before scripts : %w", err)
	}

	names, err := catalog.New(session.DB, session.Dialect, session.Schema, 1).TableNames(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("%w in %s", catalog.ErrNoTables, session.Schema)
	}
	policy, err := rounding.ParsePolicy(cfg.RoundingMode)
	if err != nil {
		return err
	}
	var audit *rounding.Audit
	if cfg.Audit != "" {
		if audit, err = rounding.OpenAudit(r.fs, r.path(cfg.Audit)); err != nil {
			return err
		}
		defer func() {
			if cerr := audit.Close(); err == nil {
				err = cerr
			}
		}()
	}

	im := importer.New(r.fs, session, table.NewNames(names), l, rounding.NewHandler(policy, audit, log), importer.Options{
		DeleteBeforeImport: cfg.DeleteBeforeImport,
		BatchSize:          cfg.BatchSize,
		Bulk:               cfg.Bulk,
	}, log)
	tasks := im.Tasks(pending)
	for _, tk := range tasks {
		r.historyErr(r.history.InitTableRunLog(r.report.RunID, state.PhaseImport, session.Schema, tk.Name()))
	}
	err = r.executor(cfg.Threads, executor.UnitBytes).Execute(ctx, tasks)
	for _, tk := range tasks {
		f := tk.Work().(*importer.File)
		r.record(tk, state.PhaseImport, session.Schema, f.Rows(), f.Skipped(), f.Reason())
	}
	r.report.Log(log, state.PhaseImport)
	if err != nil {
		return err
	}

	if err := scripts.Run(ctx, cfg.After.Files, cfg.After.ContinueOnError); err != nil {
		return fmt.Errorf("after scripts : %w", err)
	}
	if cfg.ResetSequences != "" {
		return r.resetSequences(ctx, session, log)
	}
	return nil
}

func (r *run) resetSequences(ctx context.Context, session *connection.Session, log zerolog.Logger) error {
	in, err := r.fs.Open(r.path(r.cfg.Target.ResetSequences))
	if err != nil {
		return err
	}
	defer in.Close()
	seqs, err := script.ParseSequences(in)
	if err != nil {
		return err
	}
	log.Info().Int("sequences", seqs.Len()).Msg("resetting sequences")
	_, err = seqs.Reset(ctx, session.DB, session.Dialect, log)
	return err
}

// record : outcome of one task into the report and the history
func (r *run) record(tk *task.Task, phase state.Phase, db string, rows int64, skipped bool, reason string) Outcome {
	s := tk.Snapshot()
	o := Outcome{Phase: phase, Name: s.Name, Rows: rows}
	switch {
	case s.Failed && interrupted(s.Err):
		o.Status, o.Err = state.Aborted, s.Err
	case s.Failed:
		o.Status, o.Err = state.Failed, s.Err
		r.historyErr(r.history.FailedTableRun(r.report.RunID, phase, db, s.Name, s.Err))
	case skipped:
		o.Status, o.Reason = state.Skipped, reason
		r.historyErr(r.history.SkippedTableRun(r.report.RunID, phase, db, s.Name, reason))
	case s.Complete:
		o.Status = state.Success
		r.historyErr(r.history.PassedTableRun(r.report.RunID, phase, db, s.Name, rows))
	default:
		// never executed, the run was cancelled first
		o.Status = state.Aborted
	}
	r.report.add(o)
	return o
}

func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, importer.ErrInterrupted)
}

// exportFiles : finished table files of dir sorted by name, a missing dir has none
func exportFiles(fs afero.Fs, dir string) ([]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var res []string
	for _, e := range entries {
		if !e.Mode().IsRegular() || !strings.HasSuffix(e.Name(), codec.Extension) {
			continue
		}
		res = append(res, filepath.Join(dir, e.Name()))
	}
	sort.Strings(res)
	return res, nil
}
