package codec

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/baderkha/db-migrate/pkg/migrate/table"
	"github.com/klauspost/compress/gzip"
	"github.com/shopspring/decimal"
)

type readerState int

const (
	readerNew readerState = iota
	readerHeader
	readerRow
	readerDone
)

// Reader : reads a table file of any known version, gzip is detected from the first bytes
type Reader struct {
	gz      *gzip.Reader
	r       *bufio.Reader
	gzipped bool
	version int32
	columns []table.Column
	state   readerState
	buf     [8]byte
}

// NewReader : wraps in, nothing is read beyond the gzip magic
func NewReader(in io.Reader) (*Reader, error) {
	br := bufio.NewReaderSize(in, 64<<10)
	res := &Reader{r: br}
	magic, err := br.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		res.gz = gz
		res.gzipped = true
		res.r = bufio.NewReaderSize(gz, 64<<10)
	}
	return res, nil
}

// Version : format version found in the header
func (r *Reader) Version() int32 {
	return r.version
}

// Columns : columns of the header
func (r *Reader) Columns() []table.Column {
	return r.columns
}

// ReadHeader : reads version, table name and columns, must be the first call
func (r *Reader) ReadHeader() (string, []table.Column, error) {
	if r.state != readerNew {
		return "", nil, fmt.Errorf("%w : header already read", ErrOrder)
	}
	version, err := r.readInt32()
	if err != nil {
		return "", nil, fmt.Errorf("reading version : %w", err)
	}
	if version < Version1 || version > Version3 {
		return "", nil, fmt.Errorf("%w : %d", ErrUnsupportedVersion, version)
	}
	if r.gzipped && version < Version3 {
		return "", nil, fmt.Errorf("%w : %d for gzip content", ErrUnsupportedVersion, version)
	}
	r.version = version

	name, err := r.readUTF()
	if err != nil {
		return "", nil, fmt.Errorf("reading table name : %w", err)
	}
	count, err := r.readInt32()
	if err != nil {
		return "", nil, fmt.Errorf("reading column count : %w", err)
	}
	if count < 0 {
		return "", nil, fmt.Errorf("%s : negative column count %d", name, count)
	}
	columns := make([]table.Column, 0, count)
	for i := int32(0); i < count; i++ {
		code, err := r.readInt32()
		if err != nil {
			return "", nil, err
		}
		colName, err := r.readUTF()
		if err != nil {
			return "", nil, err
		}
		kind, err := table.KindFromCode(code)
		if err != nil {
			return "", nil, fmt.Errorf("%s.%s : %w", name, colName, err)
		}
		columns = append(columns, table.Column{Kind: kind, Name: colName, Nullable: true})
	}
	if err := checkColumns(columns); err != nil {
		return "", nil, fmt.Errorf("%s : %w", name, err)
	}
	r.columns = columns
	r.state = readerHeader
	return name, columns, nil
}

// Next : reports whether another row follows, false once the end marker is reached
func (r *Reader) Next() (bool, error) {
	switch r.state {
	case readerNew:
		return false, fmt.Errorf("%w : header not read", ErrOrder)
	case readerRow:
		return false, fmt.Errorf("%w : previous row not read", ErrOrder)
	case readerDone:
		return false, nil
	}
	marker, err := r.r.ReadByte()
	if errors.Is(err, io.EOF) && r.version >= Version2 {
		r.state = readerDone
		return false, nil
	}
	if err != nil {
		return false, err
	}
	switch {
	case marker == 1:
		r.state = readerRow
		return true, nil
	case marker == 0 && r.version == Version1:
		r.state = readerDone
		return false, nil
	}
	return false, fmt.Errorf("%w : %d", ErrRowMarker, marker)
}

// ReadRow : values of the row announced by Next, row[i] for column i+1
func (r *Reader) ReadRow() ([]any, error) {
	if r.state != readerRow {
		return nil, fmt.Errorf("%w : no row announced", ErrOrder)
	}
	row := make([]any, len(r.columns))
	for i, c := range r.columns {
		present, err := r.r.ReadByte()
		if err != nil {
			return nil, unexpected(err)
		}
		if present == 0 {
			continue
		}
		if row[i], err = r.readValue(c); err != nil {
			return nil, fmt.Errorf("column %s : %w", c.Name, unexpected(err))
		}
	}
	r.state = readerHeader
	return row, nil
}

func (r *Reader) readValue(c table.Column) (any, error) {
	switch c.Kind.Encoding() {
	case table.EncodingDecimal:
		return r.readDecimal()
	case table.EncodingInt32:
		if r.version == Version1 {
			d, err := r.readBigInt()
			if err != nil {
				return nil, err
			}
			if !d.BigInt().IsInt64() || d.IntPart() < math.MinInt32 || d.IntPart() > math.MaxInt32 {
				return nil, fmt.Errorf("%w : %s overflows int32", ErrValueType, d)
			}
			return int32(d.IntPart()), nil
		}
		return r.readInt32()
	case table.EncodingBigInt:
		return r.readBigInt()
	case table.EncodingString:
		return r.readUTF()
	case table.EncodingBytes:
		n, err := r.readInt32()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("negative large object length %d", n)
		}
		b := make([]byte, n)
		_, err = io.ReadFull(r.r, b)
		return b, err
	case table.EncodingDate:
		return r.readTime(dateLayoutV2)
	case table.EncodingTimestamp:
		return r.readTime(timestampLayoutV2)
	}
	return nil, fmt.Errorf("%w : %s", ErrUnsupportedCol, c)
}

func (r *Reader) readDecimal() (decimal.Decimal, error) {
	scale, err := r.readInt32()
	if err != nil {
		return decimal.Decimal{}, err
	}
	// the exponent is -scale
	if scale == math.MinInt32 {
		return decimal.Decimal{}, fmt.Errorf("%w : decimal scale %d", ErrCorrupt, scale)
	}
	n, err := r.readInt32()
	if err != nil {
		return decimal.Decimal{}, err
	}
	if n < 0 {
		return decimal.Decimal{}, fmt.Errorf("%w : negative decimal length %d", ErrCorrupt, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromBigInt(fromTwosComplement(b), -scale), nil
}

func (r *Reader) readBigInt() (decimal.Decimal, error) {
	d, err := r.readDecimal()
	if err != nil {
		return d, err
	}
	if d.Exponent() != 0 {
		return d, fmt.Errorf("%w : expected scale 0 but got %d", ErrValueType, -d.Exponent())
	}
	return d, nil
}

func (r *Reader) readTime(layout string) (time.Time, error) {
	if r.version < Version3 {
		s, err := r.readUTF()
		if err != nil {
			return time.Time{}, err
		}
		return time.Parse(layout, s)
	}
	if _, err := io.ReadFull(r.r, r.buf[:8]); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(binary.BigEndian.Uint64(r.buf[:8]))).UTC(), nil
}

func (r *Reader) readInt32() (int32, error) {
	if _, err := io.ReadFull(r.r, r.buf[:4]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(r.buf[:4])), nil
}

func (r *Reader) readUTF() (string, error) {
	if _, err := io.ReadFull(r.r, r.buf[:2]); err != nil {
		return "", err
	}
	b := make([]byte, binary.BigEndian.Uint16(r.buf[:2]))
	if _, err := io.ReadFull(r.r, b); err != nil {
		return "", err
	}
	return decodeUTF(b)
}

// Close : releases the decompressor, the underlying reader stays open
func (r *Reader) Close() error {
	if r.gz != nil {
		return r.gz.Close()
	}
	return nil
}

// a row cut short is always a corrupt file
func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
