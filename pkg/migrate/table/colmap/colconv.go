// package colmap
//
// maps database specific column type names onto table kinds
package colmap

import (
	"database/sql"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/baderkha/db-migrate/pkg/migrate/table"
)

var (
	typeNameToKind = map[string]table.Kind{
		"NUMERIC":           table.KindNumeric,
		"NUMBER":            table.KindNumeric,
		"DECIMAL":           table.KindDecimal,
		"MONEY":             table.KindDecimal,
		"SMALLMONEY":        table.KindDecimal,
		"FLOAT":             table.KindFloat,
		"FLOAT4":            table.KindReal,
		"FLOAT8":            table.KindDouble,
		"REAL":              table.KindReal,
		"DOUBLE":            table.KindDouble,
		"DOUBLE PRECISION":  table.KindDouble,
		"BINARY_FLOAT":      table.KindReal,
		"BINARY_DOUBLE":     table.KindDouble,
		"BIT":               table.KindBit,
		"BOOL":              table.KindBit,
		"BOOLEAN":           table.KindBit,
		"TINYINT":           table.KindTinyInt,
		"SMALLINT":          table.KindSmallInt,
		"INT2":              table.KindSmallInt,
		"MEDIUMINT":         table.KindInteger,
		"INT":               table.KindInteger,
		"INT4":              table.KindInteger,
		"INTEGER":           table.KindInteger,
		"BIGINT":            table.KindBigInt,
		"INT8":              table.KindBigInt,
		"CHAR":              table.KindVarchar,
		"NCHAR":             table.KindVarchar,
		"BPCHAR":            table.KindVarchar,
		"VARCHAR":           table.KindVarchar,
		"VARCHAR2":          table.KindVarchar,
		"NVARCHAR":          table.KindVarchar,
		"NVARCHAR2":         table.KindVarchar,
		"CHARACTER":         table.KindVarchar,
		"CHARACTER VARYING": table.KindVarchar,
		"STRING":            table.KindVarchar,
		"TEXT":              table.KindClob,
		"TINYTEXT":          table.KindClob,
		"MEDIUMTEXT":        table.KindClob,
		"LONGTEXT":          table.KindClob,
		"NTEXT":             table.KindClob,
		"CLOB":              table.KindClob,
		"NCLOB":             table.KindClob,
		"BINARY":            table.KindVarbinary,
		"VARBINARY":         table.KindVarbinary,
		"RAW":               table.KindVarbinary,
		"BYTEA":             table.KindBlob,
		"BLOB":              table.KindBlob,
		"TINYBLOB":          table.KindBlob,
		"MEDIUMBLOB":        table.KindBlob,
		"LONGBLOB":          table.KindBlob,
		"IMAGE":             table.KindBlob,
		"DATE":              table.KindDate,
		"DATETIME":          table.KindTimestamp,
		"DATETIME2":         table.KindTimestamp,
		"SMALLDATETIME":     table.KindTimestamp,
		"TIMESTAMP":         table.KindTimestamp,
		"TIMESTAMPTZ":       table.KindTimestamp,
		"TIMESTAMP_NTZ":     table.KindTimestamp,
		"TIMESTAMP_LTZ":     table.KindTimestamp,
		"TIMESTAMP_TZ":      table.KindTimestamp,
	}
)

// TypeName : a parsed database type name such as DECIMAL(10,2)
type TypeName struct {
	Base      string
	Precision int
	Scale     int
	HasSize   bool
	Unsigned  bool
}

// ParseTypeName : splits the size suffix off a type name
func ParseTypeName(name string) TypeName {
	name = strings.ToUpper(strings.TrimSpace(name))
	unsigned := slices.Contains(strings.Fields(name), "UNSIGNED")
	open := strings.Index(name, "(")
	if open < 0 {
		return TypeName{Base: stripModifiers(name), Unsigned: unsigned}
	}
	res := TypeName{Base: stripModifiers(strings.TrimSpace(name[:open])), Unsigned: unsigned}
	end := strings.Index(name[open:], ")")
	if end < 0 {
		return res
	}
	parts := strings.Split(name[open+1:open+end], ",")
	if p, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil {
		res.Precision = p
		res.HasSize = true
	}
	if len(parts) > 1 {
		if s, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
			res.Scale = s
		}
	}
	return res
}

// "UNSIGNED BIGINT", "TIMESTAMP WITH TIME ZONE" and friends
func stripModifiers(base string) string {
	base = strings.TrimPrefix(base, "UNSIGNED ")
	base = strings.TrimSuffix(base, " UNSIGNED")
	if strings.HasPrefix(base, "TIMESTAMP") {
		return "TIMESTAMP"
	}
	return base
}

// Convert : resolves a database type name to a kind, if it cannot then it will error out.
// unsigned 32 bit integers go above math.MaxInt32 and widen to BIGINT
func Convert(typeName string) (table.Kind, error) {
	t := ParseTypeName(typeName)
	k, ok := typeNameToKind[t.Base]
	if !ok {
		return 0, fmt.Errorf("column type %q does not have a kind mapping", typeName)
	}
	if t.Unsigned && k == table.KindInteger {
		return table.KindBigInt, nil
	}
	return k, nil
}

// MustConvert : if the conversion errors out it panics
func MustConvert(typeName string) table.Kind {
	k, err := Convert(typeName)
	if err != nil {
		panic(fmt.Errorf("could not convert %s : %w", typeName, err))
	}
	return k
}

// FromColumnTypes : builds column descriptors from result set metadata
func FromColumnTypes(types []*sql.ColumnType) ([]table.Column, error) {
	cols := make([]table.Column, 0, len(types))
	for _, ct := range types {
		dbType := ct.DatabaseTypeName()
		k, err := Convert(dbType)
		if err != nil {
			return nil, fmt.Errorf("column %s : %w", ct.Name(), err)
		}
		col := table.Column{Kind: k, Name: ct.Name()}
		if precision, scale, ok := ct.DecimalSize(); ok {
			col.Precision, col.Scale = int(precision), int(scale)
		} else if t := ParseTypeName(dbType); t.HasSize {
			col.Precision, col.Scale = t.Precision, t.Scale
		}
		if nullable, ok := ct.Nullable(); ok {
			col.Nullable = nullable
		} else {
			col.Nullable = true
		}
		cols = append(cols, col)
	}
	return cols, nil
}
