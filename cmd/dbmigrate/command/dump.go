package command

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/baderkha/db-migrate/pkg/migrate/codec"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newDumpCmd(o *options) *cobra.Command {
	var limit int64
	cmd := &cobra.Command{
		Use:   "dump <file>...",
		Short: "Prints the table name, columns and rows of table files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range args {
				if err := dump(o.fs, f, limit, cmd.OutOrStdout()); err != nil {
					return fmt.Errorf("%s : %w", f, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().Int64VarP(&limit, "rows", "n", 0, "rows printed per file, 0 prints all")
	return cmd
}

var errLimit = errors.New("row limit reached")

func dump(fs afero.Fs, path string, limit int64, out io.Writer) error {
	var rows int64
	name, err := readFile(fs, path, func(r *codec.Reader) error {
		fmt.Fprintf(out, "file: %s\nversion: %d\n", path, r.Version())
		cols := make([]string, len(r.Columns()))
		for i, c := range r.Columns() {
			cols[i] = c.String()
		}
		fmt.Fprintf(out, "columns: %s\n", strings.Join(cols, ", "))
		return nil
	}, func(values []any) error {
		if limit > 0 && rows >= limit {
			return errLimit
		}
		rows++
		cells := make([]string, len(values))
		for i, v := range values {
			cells[i] = format(v)
		}
		fmt.Fprintln(out, strings.Join(cells, "\t"))
		return nil
	})
	if errors.Is(err, errLimit) {
		err = nil
	}
	if name != "" {
		fmt.Fprintf(out, "table: %s, %d rows printed\n", name, rows)
	}
	return err
}

func format(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("[%d bytes]", len(v))
	case decimal.Decimal:
		return v.String()
	case time.Time:
		return v.Format("2006-01-02 15:04:05.000")
	case string:
		return fmt.Sprintf("%q", v)
	}
	return fmt.Sprint(v)
}
