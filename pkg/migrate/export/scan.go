package export

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/baderkha/db-migrate/pkg/migrate/table"
	"github.com/baderkha/db-migrate/pkg/migrate/table/colmap"
	"github.com/shopspring/decimal"
)

// ErrUnsupportedColumn : the column type cannot be exported
var ErrUnsupportedColumn = errors.New("unsupported column type")

// exportColumns : header columns of a result set. floating point columns are stored
// as FLOAT decimals, boolean columns have no file encoding
func exportColumns(types []*sql.ColumnType) ([]table.Column, error) {
	cols, err := colmap.FromColumnTypes(types)
	if err != nil {
		return nil, err
	}
	for i := range cols {
		switch cols[i].Kind {
		case table.KindReal, table.KindDouble:
			cols[i].Kind = table.KindFloat
		case table.KindBit:
			return nil, fmt.Errorf("%w : %s", ErrUnsupportedColumn, cols[i])
		}
	}
	return cols, nil
}

// rowScanner : reusable scan targets for one result set
type rowScanner struct {
	tableName string
	cols      []table.Column
	dest      []any
	threshold int64
}

func newRowScanner(threshold int64, tableName string, cols []table.Column) *rowScanner {
	s := &rowScanner{
		tableName: tableName,
		cols:      cols,
		dest:      make([]any, len(cols)),
		threshold: threshold,
	}
	for i, c := range cols {
		switch c.Kind.Encoding() {
		case table.EncodingDecimal, table.EncodingBigInt, table.EncodingString:
			s.dest[i] = new(sql.NullString)
		case table.EncodingInt32:
			s.dest[i] = new(sql.NullInt64)
		case table.EncodingBytes:
			s.dest[i] = new(sql.RawBytes)
		case table.EncodingDate, table.EncodingTimestamp:
			s.dest[i] = new(sql.NullTime)
		}
	}
	return s
}

// scan : all values of the current row are converted before anything is written,
// a failing column never leaves half a row in the file. large objects in the row
// borrow the driver buffer and must be written before the next rows.Next
func (s *rowScanner) scan(rows *sql.Rows) ([]any, error) {
	if err := rows.Scan(s.dest...); err != nil {
		return nil, err
	}
	row := make([]any, len(s.cols))
	for i, c := range s.cols {
		v, err := s.value(c, s.dest[i])
		if err != nil {
			return nil, fmt.Errorf("%s.%s : %w", s.tableName, c.Name, err)
		}
		row[i] = v
	}
	return row, nil
}

func (s *rowScanner) value(c table.Column, dest any) (any, error) {
	switch d := dest.(type) {
	case *sql.NullString:
		if !d.Valid {
			return nil, nil
		}
		if c.Kind.Encoding() == table.EncodingString {
			return d.String, nil
		}
		return decimal.NewFromString(d.String)
	case *sql.NullInt64:
		if !d.Valid {
			return nil, nil
		}
		if d.Int64 < math.MinInt32 || d.Int64 > math.MaxInt32 {
			return nil, fmt.Errorf("%d does not fit %s", d.Int64, c.Kind)
		}
		return int32(d.Int64), nil
	case *sql.NullTime:
		if !d.Valid {
			return nil, nil
		}
		return d.Time, nil
	case *sql.RawBytes:
		if *d == nil {
			return nil, nil
		}
		if s.threshold > 0 && int64(len(*d)) > s.threshold {
			return borrowedLOB(*d), nil
		}
		return append([]byte{}, (*d)...), nil
	}
	return nil, fmt.Errorf("%w : %s", ErrUnsupportedColumn, c)
}

// borrowedLOB : large object streamed by the codec writer straight out of the
// driver buffer, valid until the result set moves to the next row
type borrowedLOB []byte

func (l borrowedLOB) Size() int64 {
	return int64(len(l))
}

func (l borrowedLOB) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l)), nil
}
