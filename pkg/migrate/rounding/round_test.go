package rounding

import (
	"testing"
	"testing/quick"

	"github.com/baderkha/db-migrate/pkg/migrate/table"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRoundLiterals(t *testing.T) {
	cases := []struct {
		in        string
		scale     int
		precision int
		want      string
	}{
		{"0.005", 2, 10, "0.01"},
		{"12345", 0, 3, "12300"},
		{"150", 0, 1, "200"},
		{"-150", 0, 1, "-200"},
		{"-149", 0, 1, "-100"},
		{"999", 0, 2, "1000"},
		{"1.23456789", 7, 7, "1.234568"},
		{"100.0000987654321", 4, 10, "100.0001"},
		{"42", 2, 10, "42"},
	}
	for _, c := range cases {
		got := Round(d(c.in), c.scale, c.precision)
		assert.True(t, d(c.want).Equal(got), "round(%s, %d, %d) = %s, want %s", c.in, c.scale, c.precision, got, c.want)
	}
}

func TestRoundIdempotent(t *testing.T) {
	f := func(unscaled int64, exp int8, scale uint8, precision uint8) bool {
		v := decimal.New(unscaled, int32(exp%20))
		s := int(scale % 20)
		p := int(precision%30) + 1
		once := Round(v, s, p)
		return Round(once, s, p).Equal(once)
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestRoundBoundsPrecision(t *testing.T) {
	f := func(unscaled int64, exp int8, precision uint8) bool {
		p := int(precision%18) + 1
		got := Round(decimal.New(unscaled, int32(exp%10)), 10, p)
		return got.IsZero() || digits(got.Coefficient()) <= p
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestForColumn(t *testing.T) {
	numeric := table.Column{Kind: table.KindNumeric, Name: "N", Precision: 5, Scale: 2}
	got, err := ForColumn(numeric, d("123.456"))
	require.NoError(t, err)
	assert.Equal(t, "123.46", got.String())

	got, err = ForColumn(table.Column{Kind: table.KindReal, Name: "R"}, d("3.14159265358979"))
	require.NoError(t, err)
	assert.Equal(t, "3.141593", got.String())

	got, err = ForColumn(table.Column{Kind: table.KindDouble, Name: "D"}, d("0.1234567890123456789"))
	require.NoError(t, err)
	assert.Equal(t, "0.123456789012346", got.String())

	got, err = ForColumn(table.Column{Kind: table.KindInteger, Name: "I"}, d("1.5"))
	require.NoError(t, err)
	assert.Equal(t, "1.5", got.String())

	_, err = ForColumn(table.Column{Kind: table.KindDecimal, Name: "Z"}, d("1"))
	assert.ErrorIs(t, err, ErrZeroPrecision)

	_, err = ForColumn(table.Column{Kind: table.KindVarchar, Name: "S"}, d("1"))
	assert.ErrorIs(t, err, ErrInvalidKind)
}
