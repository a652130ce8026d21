// package script
//
// runs the sql files configured around the import and restarts target sequences
// after the data is in
package script

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/baderkha/db-migrate/pkg/migrate/table/catalog"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Runner : executes sql files found relative to a root directory
type Runner struct {
	fs   afero.Fs
	root string
	db   catalog.Queryer
	log  zerolog.Logger
}

func New(fs afero.Fs, root string, db catalog.Queryer, log zerolog.Logger) *Runner {
	return &Runner{
		fs:   fs,
		root: root,
		db:   db,
		log:  log.With().Str("component", "script").Logger(),
	}
}

// Split : statements of a script, a script is split on every semicolon
func Split(script string) []string {
	var res []string
	for _, s := range strings.Split(script, ";") {
		if strings.TrimSpace(s) != "" {
			res = append(res, s)
		}
	}
	return res
}

func (r *Runner) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(r.root, name)
}

// Run : executes every file in order. with continueOnError a failing statement is
// logged and the next one runs, otherwise the first failure stops everything
func (r *Runner) Run(ctx context.Context, files []string, continueOnError bool) error {
	for _, name := range files {
		if err := r.runFile(ctx, r.path(name), continueOnError); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runFile(ctx context.Context, path string, continueOnError bool) error {
	isDir, err := afero.IsDir(r.fs, path)
	if err != nil {
		return fmt.Errorf("not a file : %s : %w", path, err)
	}
	if isDir {
		return fmt.Errorf("not a file : %s", path)
	}
	b, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return err
	}
	r.log.Info().Str("file", path).Msg("executing script")
	for _, stmt := range Split(string(b)) {
		r.log.Debug().Str("sql", strings.Join(strings.Fields(stmt), " ")).Msg("executing sql")
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			if !continueOnError {
				return fmt.Errorf("%s : %w", path, err)
			}
			r.log.Info().Err(err).Str("file", path).Msg("error executing script")
		}
	}
	return nil
}
