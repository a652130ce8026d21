package command

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/baderkha/db-migrate/pkg/migrate"
	"github.com/baderkha/db-migrate/pkg/migrate/state"
	"github.com/spf13/cobra"
)

func newMigrateCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <dir>",
		Short: "Exports the source and imports into the target configured in dir",
		Long: `Reads dir/migration.{yaml,json,properties}, exports the source
tables into dir/export and imports those files into the target.
Every run writes its log to a new dir/dbmigration-N.log.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), o, args[0], cmd.ErrOrStderr())
		},
	}
}

func runMigrate(ctx context.Context, o *options, dir string, stderr io.Writer) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	cfg, err := migrate.LoadConfig(o.fs, root)
	if err != nil {
		return err
	}
	log, logFile, err := newLogger(o.fs, root, o.logLevel, stderr)
	if err != nil {
		return err
	}
	defer logFile.Close()

	history := state.NewNopManager()
	if cfg.History != "" {
		if history, err = state.NewSqliteGormManager(cfg.History); err != nil {
			return err
		}
	}
	defer history.Close()

	startTime := time.Now()
	report, err := migrate.New(o.fs, history, log, stderr).Run(ctx, cfg)
	log.Info().Str("elapsed", time.Since(startTime).Round(time.Millisecond).String()).Msg("time taken")
	if err != nil {
		if ctx.Err() != nil {
			log.Warn().Msg("interrupt received, stopped gracefully")
		}
		return err
	}
	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d tables or files failed", len(failed))
	}
	return nil
}
