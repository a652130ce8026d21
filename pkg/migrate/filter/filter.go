// package filter
//
// decides which tables and columns take part in the export. patterns are either a
// table name or table.column, names are matched exactly
package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/baderkha/db-migrate/pkg/migrate/table"
	"github.com/hashicorp/go-multierror"
)

// ErrNoMatch : a pattern names a table or column that does not exist
var ErrNoMatch = errors.New("pattern does not match any existing table or column")

// Filter : include restricts the tables, exclude drops tables or single columns
type Filter struct {
	include []string
	exclude []string
}

func New(include []string, exclude []string) *Filter {
	return &Filter{include: include, exclude: exclude}
}

func split(pattern string) (string, string, bool) {
	return strings.Cut(pattern, ".")
}

func matches(tables []*table.Table, pattern string) bool {
	name, column, isColumn := split(pattern)
	for _, t := range tables {
		if t.Name != name {
			continue
		}
		if !isColumn || t.HasColumn(column) {
			return true
		}
	}
	return false
}

// Validate : every pattern has to match something, all mismatches are reported together
func (f *Filter) Validate(tables []*table.Table) error {
	var res error
	for _, p := range f.include {
		if !matches(tables, p) {
			res = multierror.Append(res, fmt.Errorf("include %q : %w", p, ErrNoMatch))
		}
	}
	for _, p := range f.exclude {
		if !matches(tables, p) {
			res = multierror.Append(res, fmt.Errorf("exclude %q : %w", p, ErrNoMatch))
		}
	}
	return res
}

// ExcludeTable : true when the table is not part of the export
func (f *Filter) ExcludeTable(name string) bool {
	if len(f.include) > 0 && !contains(f.include, name) {
		return true
	}
	return contains(f.exclude, name)
}

// ExcludeColumn : true when table.column is excluded
func (f *Filter) ExcludeColumn(tableName string, column string) bool {
	for _, p := range f.exclude {
		if t, c, ok := split(p); ok && t == tableName && c == column {
			return true
		}
	}
	return false
}

// Tables : the tables left after applying the table patterns
func (f *Filter) Tables(tables []*table.Table) []*table.Table {
	res := make([]*table.Table, 0, len(tables))
	for _, t := range tables {
		if !f.ExcludeTable(t.Name) {
			res = append(res, t)
		}
	}
	return res
}

// Columns : columns to export, nil when nothing is excluded so the whole row is read
func (f *Filter) Columns(t *table.Table) []string {
	excluded := false
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if f.ExcludeColumn(t.Name, c.Name) {
			excluded = true
			continue
		}
		cols = append(cols, c.Name)
	}
	if !excluded {
		return nil
	}
	return cols
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
