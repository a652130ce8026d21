package command

import (
	"fmt"
	"io"

	"github.com/baderkha/db-migrate/pkg/migrate/codec"
	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newValidateCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Reads table files to the end and reports their row counts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := consoleLogger(o.logLevel, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return validate(o.fs, args, cmd.OutOrStdout(), log)
		},
	}
}

// validate : every file is checked, the result names all broken files
func validate(fs afero.Fs, files []string, out io.Writer, log zerolog.Logger) error {
	var res error
	for _, f := range files {
		name, rows, err := validateFile(fs, f)
		if err != nil {
			log.Error().Err(err).Str("file", f).Msg("invalid")
			fmt.Fprintf(out, "%s: INVALID %v\n", f, err)
			res = multierror.Append(res, fmt.Errorf("%s : %w", f, err))
			continue
		}
		fmt.Fprintf(out, "%s: table %s, %s rows\n", f, name, humanize.Comma(rows))
	}
	return res
}

func validateFile(fs afero.Fs, path string) (string, int64, error) {
	var rows int64
	name, err := readFile(fs, path, func(*codec.Reader) error { return nil }, func([]any) error {
		rows++
		return nil
	})
	return name, rows, err
}

// readFile : header then every row of a table file
func readFile(fs afero.Fs, path string, header func(r *codec.Reader) error, row func([]any) error) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	r, err := codec.NewReader(f)
	if err != nil {
		return "", err
	}
	defer r.Close()
	name, _, err := r.ReadHeader()
	if err != nil {
		return "", err
	}
	if err := header(r); err != nil {
		return name, err
	}
	for {
		ok, err := r.Next()
		if err != nil {
			return name, err
		}
		if !ok {
			return name, nil
		}
		values, err := r.ReadRow()
		if err != nil {
			return name, err
		}
		if err := row(values); err != nil {
			return name, err
		}
	}
}
