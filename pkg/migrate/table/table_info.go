// package table
//
// canonical table and column descriptors shared by the export and import pipelines
package table

import (
	"fmt"
	"strings"
)

// Kind : closed set of column types the migration understands
type Kind int

const (
	KindNumeric Kind = iota
	KindDecimal
	KindFloat
	KindReal
	KindDouble
	KindBit
	KindTinyInt
	KindSmallInt
	KindInteger
	KindBigInt
	KindVarchar
	KindVarbinary
	KindBlob
	KindClob
	KindDate
	KindTimestamp

	kindCount
)

// Encoding : how a value of a kind is laid out in an export file
type Encoding int

const (
	// EncodingNone : the kind can be a target column but is never written to a file
	EncodingNone Encoding = iota
	EncodingDecimal
	EncodingInt32
	EncodingBigInt
	EncodingString
	EncodingBytes
	EncodingDate
	EncodingTimestamp
)

// Rounding : which rounding rule applies to numeric values bound to a kind
type Rounding int

const (
	// RoundingInvalid : decimals cannot be bound to this kind
	RoundingInvalid Rounding = iota
	RoundingScalePrecision
	RoundingReal
	RoundingDouble
	RoundingPassThrough
)

type kindInfo struct {
	name     string
	code     int32
	encoding Encoding
	rounding Rounding
}

// codes are the java.sql.Types values, files written by earlier versions depend on them
var kinds = [...]kindInfo{
	KindNumeric:   {"NUMERIC", 2, EncodingDecimal, RoundingScalePrecision},
	KindDecimal:   {"DECIMAL", 3, EncodingDecimal, RoundingScalePrecision},
	KindFloat:     {"FLOAT", 6, EncodingDecimal, RoundingDouble},
	KindReal:      {"REAL", 7, EncodingNone, RoundingReal},
	KindDouble:    {"DOUBLE", 8, EncodingNone, RoundingDouble},
	KindBit:       {"BIT", -7, EncodingNone, RoundingPassThrough},
	KindTinyInt:   {"TINYINT", -6, EncodingInt32, RoundingPassThrough},
	KindSmallInt:  {"SMALLINT", 5, EncodingInt32, RoundingPassThrough},
	KindInteger:   {"INTEGER", 4, EncodingInt32, RoundingPassThrough},
	KindBigInt:    {"BIGINT", -5, EncodingBigInt, RoundingPassThrough},
	KindVarchar:   {"VARCHAR", 12, EncodingString, RoundingInvalid},
	KindVarbinary: {"VARBINARY", -3, EncodingBytes, RoundingInvalid},
	KindBlob:      {"BLOB", 2004, EncodingBytes, RoundingInvalid},
	KindClob:      {"CLOB", 2005, EncodingBytes, RoundingInvalid},
	KindDate:      {"DATE", 91, EncodingDate, RoundingInvalid},
	KindTimestamp: {"TIMESTAMP", 93, EncodingTimestamp, RoundingInvalid},
}

// a new Kind without a row in kinds stops the build here
var _ = [1]struct{}{}[len(kinds)-int(kindCount)]

// Kinds : every supported kind in declaration order
func Kinds() []Kind {
	res := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		res = append(res, k)
	}
	return res
}

func (k Kind) valid() bool {
	return k >= 0 && k < kindCount
}

func (k Kind) String() string {
	if !k.valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kinds[k].name
}

// Code : wire type code
func (k Kind) Code() int32 {
	if !k.valid() {
		return 0
	}
	return kinds[k].code
}

// Encoding : file layout of values of this kind
func (k Kind) Encoding() Encoding {
	if !k.valid() {
		return EncodingNone
	}
	return kinds[k].encoding
}

// Rounding : rounding rule for numbers bound to this kind
func (k Kind) Rounding() Rounding {
	if !k.valid() {
		return RoundingInvalid
	}
	return kinds[k].rounding
}

// IsLOB : large objects are streamed instead of scanned into strings
func (k Kind) IsLOB() bool {
	return k.Encoding() == EncodingBytes
}

// KindFromCode : resolves a wire type code back to a kind
func KindFromCode(code int32) (Kind, error) {
	for k, info := range kinds {
		if info.code == code {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown column type code %d", code)
}

// Column : one result set or target table column
type Column struct {
	Kind      Kind
	Name      string
	Scale     int
	Precision int
	Nullable  bool
}

func (c Column) String() string {
	return fmt.Sprintf("%s %s(%d,%d)", c.Name, c.Kind, c.Precision, c.Scale)
}

// Table : a table with its columns, Columns[i] holds the column with index i+1
type Table struct {
	Name     string
	RowCount int64
	Columns  []Column
}

// Column : 1-based lookup matching result set projection order
func (t *Table) Column(index int) (Column, bool) {
	if index < 1 || index > len(t.Columns) {
		return Column{}, false
	}
	return t.Columns[index-1], true
}

// HasColumn : case sensitive lookup used by the filter validation
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Names : maps upper cased table names to their real spelling
type Names map[string]string

// NewNames : indexes table names for case-insensitive lookup
func NewNames(tables []string) Names {
	n := make(Names, len(tables))
	for _, t := range tables {
		n[strings.ToUpper(t)] = t
	}
	return n
}

// Lookup : finds the live spelling of a table name
func (n Names) Lookup(name string) (string, bool) {
	v, ok := n[strings.ToUpper(name)]
	return v, ok
}

type SortBy string
type SortByDirection string

const (
	SortByRowCount  SortBy = "RowCount"
	SortByTableName SortBy = "TableName"
)

const (
	SortDirectionASC  SortByDirection = "ASC"
	SortDirectionDESC SortByDirection = "DESC"
)

// FetchOptions : how the catalog should order and filter tables
type FetchOptions struct {
	Include         []string
	SortByCol       SortBy
	SortByDirection SortByDirection
}
