package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/baderkha/db-migrate/pkg/migrate/table"
	"github.com/klauspost/compress/gzip"
	"github.com/shopspring/decimal"
)

// LOB : a large object the writer streams instead of holding in memory
type LOB interface {
	Size() int64
	Open() (io.ReadCloser, error)
}

type writerState int

const (
	writerNew writerState = iota
	writerRows
	writerClosed
)

// Writer : writes one table in the current format version
type Writer struct {
	gz      *gzip.Writer
	w       *bufio.Writer
	columns []table.Column
	state   writerState
	scratch []byte
}

// NewWriter : the output is gzip compressed, Close must be called to finish the stream
func NewWriter(out io.Writer) *Writer {
	gz := gzip.NewWriter(out)
	return &Writer{
		gz:      gz,
		w:       bufio.NewWriterSize(gz, 64<<10),
		scratch: make([]byte, 0, 256),
	}
}

// WriteHeader : writes version, table name and columns, must be the first call
func (w *Writer) WriteHeader(tableName string, columns []table.Column) error {
	if w.state != writerNew {
		return fmt.Errorf("%w : header already written", ErrOrder)
	}
	if tableName == "" {
		return fmt.Errorf("invalid table name %q", tableName)
	}
	if err := checkColumns(columns); err != nil {
		return fmt.Errorf("%s : %w", tableName, err)
	}
	w.columns = columns

	b := binary.BigEndian.AppendUint32(w.scratch[:0], uint32(CurrentVersion))
	b, err := appendUTF(b, tableName)
	if err != nil {
		return err
	}
	b = binary.BigEndian.AppendUint32(b, uint32(len(columns)))
	for _, c := range columns {
		b = binary.BigEndian.AppendUint32(b, uint32(c.Kind.Code()))
		if b, err = appendUTF(b, c.Name); err != nil {
			return err
		}
	}
	w.scratch = b[:0]
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	w.state = writerRows
	return nil
}

// WriteRow : row[i] holds the value of column i+1, nil is NULL
func (w *Writer) WriteRow(row []any) error {
	if w.state != writerRows {
		return fmt.Errorf("%w : row before header or after close", ErrOrder)
	}
	if len(row) != len(w.columns) {
		return fmt.Errorf("%w : %d values for %d columns", ErrValueType, len(row), len(w.columns))
	}
	if err := w.w.WriteByte(1); err != nil {
		return err
	}
	for i, c := range w.columns {
		if row[i] == nil {
			if err := w.w.WriteByte(0); err != nil {
				return err
			}
			continue
		}
		if err := w.w.WriteByte(1); err != nil {
			return err
		}
		if err := w.writeValue(c, row[i]); err != nil {
			return fmt.Errorf("column %s : %w", c.Name, err)
		}
	}
	return nil
}

func (w *Writer) writeValue(c table.Column, v any) error {
	switch c.Kind.Encoding() {
	case table.EncodingDecimal:
		d, ok := v.(decimal.Decimal)
		if !ok {
			return fmt.Errorf("%w : %T for %s", ErrValueType, v, c.Kind)
		}
		return w.writeDecimal(d)
	case table.EncodingInt32:
		n, err := toInt32(v)
		if err != nil {
			return err
		}
		return w.writeInt32(n)
	case table.EncodingBigInt:
		d, err := toInteger(v)
		if err != nil {
			return err
		}
		return w.writeDecimal(d)
	case table.EncodingString:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w : %T for %s", ErrValueType, v, c.Kind)
		}
		b, err := appendUTF(w.scratch[:0], s)
		if err != nil {
			return err
		}
		_, err = w.w.Write(b)
		return err
	case table.EncodingBytes:
		return w.writeBytes(v)
	case table.EncodingDate, table.EncodingTimestamp:
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("%w : %T for %s", ErrValueType, v, c.Kind)
		}
		_, err := w.w.Write(binary.BigEndian.AppendUint64(w.scratch[:0], uint64(t.UnixMilli())))
		return err
	}
	return fmt.Errorf("%w : %s", ErrUnsupportedCol, c)
}

func (w *Writer) writeInt32(n int32) error {
	_, err := w.w.Write(binary.BigEndian.AppendUint32(w.scratch[:0], uint32(n)))
	return err
}

// scale is the negated exponent, it may be negative
func (w *Writer) writeDecimal(d decimal.Decimal) error {
	exp := d.Exponent()
	if exp < math.MinInt32+1 {
		return fmt.Errorf("%w : scale of %s out of range", ErrValueType, d)
	}
	unscaled := twosComplement(d.Coefficient())
	b := binary.BigEndian.AppendUint32(w.scratch[:0], uint32(-exp))
	b = binary.BigEndian.AppendUint32(b, uint32(len(unscaled)))
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	_, err := w.w.Write(unscaled)
	return err
}

func (w *Writer) writeBytes(v any) error {
	switch val := v.(type) {
	case []byte:
		if err := w.writeLen(int64(len(val))); err != nil {
			return err
		}
		_, err := w.w.Write(val)
		return err
	case string:
		if err := w.writeLen(int64(len(val))); err != nil {
			return err
		}
		_, err := w.w.WriteString(val)
		return err
	case LOB:
		size := val.Size()
		if err := w.writeLen(size); err != nil {
			return err
		}
		rc, err := val.Open()
		if err != nil {
			return err
		}
		defer rc.Close()
		n, err := io.CopyN(w.w, rc, size)
		if err != nil {
			return fmt.Errorf("large object : copied %d of %d bytes : %w", n, size, err)
		}
		return nil
	}
	return fmt.Errorf("%w : %T for a large object", ErrValueType, v)
}

func (w *Writer) writeLen(n int64) error {
	if n > math.MaxInt32 {
		return fmt.Errorf("%w : %d bytes do not fit a length prefix", ErrValueType, n)
	}
	return w.writeInt32(int32(n))
}

// Close : finishes the stream, the underlying writer stays open
func (w *Writer) Close() error {
	if w.state == writerClosed {
		return nil
	}
	w.state = writerClosed
	if err := w.w.Flush(); err != nil {
		w.gz.Close()
		return err
	}
	return w.gz.Close()
}

func toInt32(v any) (int32, error) {
	var n int64
	switch val := v.(type) {
	case int32:
		return val, nil
	case int16:
		return int32(val), nil
	case int8:
		return int32(val), nil
	case int:
		n = int64(val)
	case int64:
		n = val
	default:
		return 0, fmt.Errorf("%w : %T for an integer", ErrValueType, v)
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, fmt.Errorf("%w : %d overflows int32", ErrValueType, n)
	}
	return int32(n), nil
}

func toInteger(v any) (decimal.Decimal, error) {
	switch val := v.(type) {
	case int64:
		return decimal.NewFromInt(val), nil
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case decimal.Decimal:
		if val.Exponent() == 0 {
			return val, nil
		}
		if !val.Equal(val.Truncate(0)) {
			return decimal.Decimal{}, fmt.Errorf("%w : %s is not an integer", ErrValueType, val)
		}
		return decimal.NewFromBigInt(val.BigInt(), 0), nil
	}
	return decimal.Decimal{}, fmt.Errorf("%w : %T for a big integer", ErrValueType, v)
}
