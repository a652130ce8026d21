package table

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMissingSourceColumn : a target column has no source column with the same name
var ErrMissingSourceColumn = errors.New("missing source column")

// Mapping : source column index -> target column index, both 1-based
type Mapping map[int]int

// BuildMapping : matches every target column to the first source column with the same
// name ignoring case. source columns without a target are dropped, a target column
// without a source fails the whole mapping
func BuildMapping(source []Column, target []Column) (Mapping, error) {
	mapping := make(Mapping, len(target))
	for ti, tc := range target {
		found := false
		for si, sc := range source {
			if strings.EqualFold(sc.Name, tc.Name) {
				if _, taken := mapping[si+1]; taken {
					continue
				}
				mapping[si+1] = ti + 1
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w %s for target %s", ErrMissingSourceColumn, tc.Name, tc)
		}
	}
	return mapping, nil
}

// Target : target index for a source index
func (m Mapping) Target(sourceIndex int) (int, bool) {
	t, ok := m[sourceIndex]
	return t, ok
}

// SourceIndexes : mapped source indexes in ascending order
func (m Mapping) SourceIndexes() []int {
	res := make([]int, 0, len(m))
	for s := range m {
		res = append(res, s)
	}
	sort.Ints(res)
	return res
}
