// package rounding
//
// fits decimal values into the precision and scale of target columns
package rounding

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/baderkha/db-migrate/pkg/migrate/table"
	"github.com/shopspring/decimal"
)

const (
	realDigits   = 7
	doubleDigits = 15
)

var (
	// ErrZeroPrecision : a NUMERIC or DECIMAL target column reports precision 0
	ErrZeroPrecision = errors.New("precision must not be zero")
	// ErrInvalidKind : decimals cannot be bound to the column
	ErrInvalidKind = errors.New("invalid column type for a decimal")
)

// Round : rounds half away from zero to scale decimal places, then to precision significant digits
func Round(v decimal.Decimal, scale int, precision int) decimal.Decimal {
	return significant(v.Round(int32(scale)), precision)
}

// ForColumn : rounds v the way the column would store it
func ForColumn(col table.Column, v decimal.Decimal) (decimal.Decimal, error) {
	switch col.Kind.Rounding() {
	case table.RoundingScalePrecision:
		if col.Precision == 0 {
			return v, fmt.Errorf("%w : %s", ErrZeroPrecision, col)
		}
		return Round(v, col.Scale, col.Precision), nil
	case table.RoundingReal:
		return Round(v, realDigits, realDigits), nil
	case table.RoundingDouble:
		return Round(v, doubleDigits, doubleDigits), nil
	case table.RoundingPassThrough:
		return v, nil
	}
	return v, fmt.Errorf("%w : %s", ErrInvalidKind, col)
}

func significant(d decimal.Decimal, precision int) decimal.Decimal {
	if precision <= 0 || d.IsZero() {
		return d
	}
	for {
		n := digits(d.Coefficient())
		if n <= precision {
			return d
		}
		// a carry such as 999 -> 1000 leaves one digit too many, the next pass drops it
		d = d.Round(-(d.Exponent() + int32(n-precision)))
	}
}

func digits(x *big.Int) int {
	if x.Sign() == 0 {
		return 1
	}
	return len(new(big.Int).Abs(x).String())
}
