// package codec
//
// binary table file format. a file holds one table : a header with the format version,
// the table name and the columns, followed by the rows of the table.
//
//	version   int32
//	table     utf
//	columns   int32, then per column : type code int32, name utf
//	rows      per row : marker byte 1, then per column a presence byte and the value
//
// version 1 ends the rows with a 0 marker and stores the integer family as decimals,
// version 2 ends the rows at end of stream, both store dates as text. version 3 stores
// dates as epoch milliseconds and is always gzip compressed. only version 3 is written.
package codec

import (
	"errors"
	"fmt"

	"github.com/baderkha/db-migrate/pkg/migrate/table"
)

const (
	Version1 int32 = 1
	Version2 int32 = 2
	Version3 int32 = 3

	// CurrentVersion : the version every writer produces
	CurrentVersion = Version3

	// Extension : file extension of table files
	Extension = ".bin"

	dateLayoutV2      = "2006-01-02-0700"
	timestampLayoutV2 = "2006-01-02T15:04:05-0700"

	maxUTFLen = 65535
)

var (
	ErrUnsupportedVersion = errors.New("unsupported format version")
	// ErrOrder : header, rows and end marker were used out of sequence
	ErrOrder          = errors.New("codec used out of order")
	ErrRowMarker      = errors.New("unexpected row marker")
	ErrNoColumns      = errors.New("no columns given")
	ErrStringTooLong  = errors.New("encoded string longer than 65535 bytes")
	ErrValueType      = errors.New("value does not match column type")
	ErrUnsupportedCol = errors.New("column type cannot be stored in a table file")
	// ErrCorrupt : the stream carries a value no writer produces
	ErrCorrupt = errors.New("corrupt table file")
)

// FileName : name of the file a table is exported to
func FileName(tableName string) string {
	return tableName + Extension
}

func checkColumns(columns []table.Column) error {
	if len(columns) == 0 {
		return ErrNoColumns
	}
	for _, c := range columns {
		if c.Kind.Encoding() == table.EncodingNone {
			return fmt.Errorf("%w : %s", ErrUnsupportedCol, c)
		}
	}
	return nil
}
