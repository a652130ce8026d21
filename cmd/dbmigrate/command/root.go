// package command
//
// command line of dbmigrate
//
//	dbmigrate migrate <dir> [-l debug]     # export then import as configured in <dir>/migration.yaml
//	dbmigrate validate <file>...           # decode table files completely
//	dbmigrate dump <file>... [-n 10]       # print table files
package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// ExitInterrupted : exit code after an interrupt signal
const ExitInterrupted = 130

type options struct {
	fs       afero.Fs
	logLevel string
}

// NewRootCmd : the command tree working on fs
func NewRootCmd(fs afero.Fs) *cobra.Command {
	o := &options{fs: fs}
	root := &cobra.Command{
		Use:   "dbmigrate",
		Short: "Moves the tables of one database schema into another",
		Long: `Moves the tables of one database schema into another through
intermediate table files. The export writes one file per source
table, the import loads every file into the table of the same name.
A rerun only imports the files that were not imported yet.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&o.logLevel, "log-level", "l", "info", "trace, debug, info, warn or error")
	root.AddCommand(newMigrateCmd(o), newValidateCmd(o), newDumpCmd(o))
	return root
}

// Execute : runs the command line, interrupts cancel the running command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := NewRootCmd(afero.NewOsFs()).ExecuteContext(ctx)
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		stop()
		os.Exit(ExitInterrupted)
	}
	os.Exit(1)
}
