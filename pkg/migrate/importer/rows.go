package importer

import (
	"context"
	"fmt"

	"github.com/baderkha/db-migrate/pkg/migrate/codec"
	"github.com/baderkha/db-migrate/pkg/migrate/rounding"
	"github.com/baderkha/db-migrate/pkg/migrate/table"
	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// interruptEvery : rows between two looks at the context
const interruptEvery = 100

// binder : turns a decoded value into something the target driver accepts for col
type binder func(col table.Column, v any) (any, error)

// rowSource : rows of one file projected onto the target columns. unmapped source
// values are still decoded so the stream stays aligned, then dropped
type rowSource struct {
	ctx      context.Context
	r        *codec.Reader
	table    string
	mapping  table.Mapping
	target   []table.Column
	rounding *rounding.Handler
	bind     binder
	log      zerolog.Logger

	rows   int64
	values []any
	err    error
}

// next : reads the following row into values, false at the end of the file or on error
func (s *rowSource) next() bool {
	if s.err != nil {
		return false
	}
	if s.rows%interruptEvery == 0 {
		if err := s.ctx.Err(); err != nil {
			s.err = fmt.Errorf("%w : %s after %d rows : %v", ErrInterrupted, s.table, s.rows, err)
			return false
		}
	}
	ok, err := s.r.Next()
	if err != nil || !ok {
		s.err = err
		return false
	}
	row, err := s.r.ReadRow()
	if err != nil {
		s.err = err
		return false
	}
	values := make([]any, len(s.target))
	for si, ti := range s.mapping {
		v, err := s.convert(s.target[ti-1], row[si-1])
		if err != nil {
			s.err = err
			return false
		}
		values[ti-1] = v
	}
	if s.log.GetLevel() <= zerolog.TraceLevel {
		s.log.Trace().Msg(spew.Sdump(values))
	}
	s.values = values
	s.rows++
	return true
}

func (s *rowSource) convert(col table.Column, v any) (any, error) {
	if d, ok := v.(decimal.Decimal); ok && col.Kind.Rounding() != table.RoundingInvalid {
		rounded, err := s.rounding.Convert(s.table, col, d)
		if err != nil {
			return nil, err
		}
		v = rounded
	}
	return s.bind(col, v)
}

func isInteger(k table.Kind) bool {
	switch k {
	case table.KindBit, table.KindTinyInt, table.KindSmallInt, table.KindInteger, table.KindBigInt:
		return true
	}
	return false
}

func isFloat(k table.Kind) bool {
	switch k {
	case table.KindFloat, table.KindReal, table.KindDouble:
		return true
	}
	return false
}

// bindGeneric : values every database/sql driver converts on its own. decimals stay
// text unless the target column is an integer or a float
func bindGeneric(col table.Column, v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case int32:
		return int64(x), nil
	case decimal.Decimal:
		switch {
		case isInteger(col.Kind) && x.IsInteger():
			if b := x.BigInt(); b.IsInt64() {
				return b.Int64(), nil
			}
		case isFloat(col.Kind):
			return x.InexactFloat64(), nil
		}
		return x.String(), nil
	case []byte:
		if col.Kind == table.KindClob || col.Kind == table.KindVarchar {
			return string(x), nil
		}
		return x, nil
	}
	return v, nil
}
