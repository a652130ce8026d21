package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cols(names ...string) []Column {
	res := make([]Column, len(names))
	for i, n := range names {
		res[i] = Column{Kind: KindVarchar, Name: n}
	}
	return res
}

func TestMappingIgnoresCaseAndOrder(t *testing.T) {
	m, err := BuildMapping(cols("b", "a", "c"), cols("A", "B", "C"))
	require.NoError(t, err)
	assert.Equal(t, Mapping{1: 2, 2: 1, 3: 3}, m)
	assert.Equal(t, []int{1, 2, 3}, m.SourceIndexes())
}

func TestMappingDropsUnknownSourceColumns(t *testing.T) {
	m, err := BuildMapping(cols("ID", "LEGACY", "NAME"), cols("NAME", "ID"))
	require.NoError(t, err)
	_, ok := m.Target(2)
	assert.False(t, ok)
	ti, ok := m.Target(3)
	assert.True(t, ok)
	assert.Equal(t, 1, ti)
}

func TestMappingMissingSourceColumn(t *testing.T) {
	_, err := BuildMapping(cols("A", "B"), cols("A", "B", "C"))
	assert.ErrorIs(t, err, ErrMissingSourceColumn)
	assert.Contains(t, err.Error(), "C")
}

func TestMappingDuplicateNamesMapOnce(t *testing.T) {
	m, err := BuildMapping(cols("id", "ID"), cols("ID", "Id"))
	require.NoError(t, err)
	assert.Equal(t, Mapping{1: 1, 2: 2}, m)
}

func TestNamesLookup(t *testing.T) {
	n := NewNames([]string{"User", "ORDERS"})
	name, ok := n.Lookup("USER")
	assert.True(t, ok)
	assert.Equal(t, "User", name)
	name, ok = n.Lookup("orders")
	assert.True(t, ok)
	assert.Equal(t, "ORDERS", name)
	_, ok = n.Lookup("missing")
	assert.False(t, ok)
}

func TestKindCodes(t *testing.T) {
	for _, k := range Kinds() {
		got, err := KindFromCode(k.Code())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := KindFromCode(1111)
	assert.Error(t, err)
	assert.Equal(t, int32(2004), KindBlob.Code())
	assert.True(t, KindClob.IsLOB())
	assert.False(t, KindVarchar.IsLOB())
}

func TestTableColumns(t *testing.T) {
	tbl := &Table{Name: "T", Columns: cols("ID", "NAME")}
	c, ok := tbl.Column(2)
	assert.True(t, ok)
	assert.Equal(t, "NAME", c.Name)
	_, ok = tbl.Column(3)
	assert.False(t, ok)
	assert.True(t, tbl.HasColumn("ID"))
}
