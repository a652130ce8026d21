package filter

import (
	"testing"

	"github.com/baderkha/db-migrate/pkg/migrate/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tables = []*table.Table{
	{Name: "USERS", Columns: []table.Column{{Name: "ID"}, {Name: "NAME"}, {Name: "PASSWORD"}}},
	{Name: "ORDERS", Columns: []table.Column{{Name: "ID"}, {Name: "AMOUNT"}}},
	{Name: "AUDIT", Columns: []table.Column{{Name: "ID"}}},
}

func names(ts []*table.Table) []string {
	res := make([]string, len(ts))
	for i, t := range ts {
		res[i] = t.Name
	}
	return res
}

func TestNoPatterns(t *testing.T) {
	f := New(nil, nil)
	require.NoError(t, f.Validate(tables))
	assert.Equal(t, []string{"USERS", "ORDERS", "AUDIT"}, names(f.Tables(tables)))
	assert.Nil(t, f.Columns(tables[0]))
}

func TestInclude(t *testing.T) {
	f := New([]string{"ORDERS", "USERS"}, nil)
	require.NoError(t, f.Validate(tables))
	assert.Equal(t, []string{"USERS", "ORDERS"}, names(f.Tables(tables)))
	assert.True(t, f.ExcludeTable("AUDIT"))
}

func TestExcludeTablesAndColumns(t *testing.T) {
	f := New(nil, []string{"AUDIT", "USERS.PASSWORD"})
	require.NoError(t, f.Validate(tables))
	assert.Equal(t, []string{"USERS", "ORDERS"}, names(f.Tables(tables)))
	assert.Equal(t, []string{"ID", "NAME"}, f.Columns(tables[0]))
	assert.Nil(t, f.Columns(tables[1]))
	assert.True(t, f.ExcludeColumn("USERS", "PASSWORD"))
	assert.False(t, f.ExcludeColumn("ORDERS", "PASSWORD"))
}

func TestNamesAreCaseSensitive(t *testing.T) {
	f := New(nil, []string{"users"})
	assert.False(t, f.ExcludeTable("USERS"))
	assert.ErrorIs(t, f.Validate(tables), ErrNoMatch)
}

func TestValidateReportsEveryMismatch(t *testing.T) {
	f := New([]string{"MISSING"}, []string{"USERS.EMAIL", "ORDERS.AMOUNT"})
	err := f.Validate(tables)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoMatch)
	assert.Contains(t, err.Error(), `include "MISSING"`)
	assert.Contains(t, err.Error(), `exclude "USERS.EMAIL"`)
	assert.NotContains(t, err.Error(), "ORDERS.AMOUNT")
}
