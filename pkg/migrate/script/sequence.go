package script

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/baderkha/db-migrate/pkg/migrate/table/catalog"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrSequenceFile : a line of the sequence file is not table,column,sequence
var ErrSequenceFile = errors.New("invalid sequence file")

// SequenceDialect : how a sequence is restarted on the target
type SequenceDialect interface {
	RestartSequence(sequence string, next string) string
}

type columnRef struct {
	table  string
	column string
}

// Sequences : sequence name -> the columns filled from it
type Sequences struct {
	order   []string
	columns map[string][]columnRef
}

// ParseSequences : reads table,column,sequence lines
func ParseSequences(in io.Reader) (*Sequences, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comment = '#'
	res := &Sequences{columns: map[string][]columnRef{}}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w : %w", ErrSequenceFile, err)
		}
		if len(rec) != 3 {
			return nil, fmt.Errorf("%w : expected 3 columns : %s", ErrSequenceFile, strings.Join(rec, ","))
		}
		seq := rec[2]
		if _, ok := res.columns[seq]; !ok {
			res.order = append(res.order, seq)
		}
		res.columns[seq] = append(res.columns[seq], columnRef{table: rec[0], column: rec[1]})
	}
}

// Len : number of sequences
func (s *Sequences) Len() int {
	return len(s.order)
}

// Reset : restarts every sequence at the highest value of its columns plus one. the
// names are used as written in the file
func (s *Sequences) Reset(ctx context.Context, db catalog.Queryer, dialect SequenceDialect, log zerolog.Logger) (map[string]decimal.Decimal, error) {
	res := make(map[string]decimal.Decimal, len(s.order))
	for _, seq := range s.order {
		highest := decimal.Zero
		for _, ref := range s.columns[seq] {
			v, err := maxValue(ctx, db, ref)
			if err != nil {
				return res, err
			}
			if v.GreaterThan(highest) {
				highest = v
			}
		}
		next := highest.Add(decimal.NewFromInt(1))
		if _, err := db.ExecContext(ctx, dialect.RestartSequence(seq, next.String())); err != nil {
			return res, fmt.Errorf("restarting %s : %w", seq, err)
		}
		log.Info().Str("sequence", seq).Str("next", next.String()).Msg("sequence restarted")
		res[seq] = next
	}
	return res, nil
}

func maxValue(ctx context.Context, db catalog.Queryer, ref columnRef) (decimal.Decimal, error) {
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", ref.column, ref.table)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()
	var v sql.NullString
	if rows.Next() {
		if err := rows.Scan(&v); err != nil {
			return decimal.Zero, err
		}
	}
	if rows.Next() {
		return decimal.Zero, fmt.Errorf("expected only one row : %s", query)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, err
	}
	if !v.Valid {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(v.String)
}
