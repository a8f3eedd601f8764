// Copyright 2022 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package table

import (
	"github.com/stockparfait/errors"
)

// Suffix is appended to the right table's column names which collide with the
// left table's columns in LeftJoin.
const Suffix = "_y"

// Concat the tables into a new one, preserving the order of rows. The columns
// are the union of all the tables' columns in the order of first appearance.
func Concat(tables ...*Table) *Table {
	res := NewTable()
	for _, t := range tables {
		res.Append(t)
	}
	return res
}

// LeftJoin returns a new table with every row of left extended by the matching
// rows of right, where the key column values are equal. A left row with no
// match, or with a null key, is kept with nulls in the right's columns. A left
// row matching several right rows is repeated once per match.
//
// The key column must be present in the right table; it may be missing in the
// left, in which case all the left keys are null.
func LeftJoin(left, right *Table, key string) (*Table, error) {
	if !right.HasColumn(key) {
		return nil, errors.Reason("right table has no key column '%s'", key)
	}
	index := make(map[string][]Row)
	for _, r := range right.Rows {
		v := r[key]
		if v.IsNull() {
			continue
		}
		k := v.key()
		index[k] = append(index[k], r)
	}

	res := NewTable(left.Columns...)
	res.AddColumn(key)
	rename := make(map[string]string) // right column -> result column
	for _, c := range right.Columns {
		if c == key {
			continue
		}
		name := c
		if res.HasColumn(name) {
			name = c + Suffix
		}
		res.AddColumn(name)
		rename[c] = name
	}

	for _, l := range left.Rows {
		var matches []Row
		if v := l[key]; !v.IsNull() {
			matches = index[v.key()]
		}
		if len(matches) == 0 {
			res.Rows = append(res.Rows, copyRow(l, len(l)))
			continue
		}
		for _, m := range matches {
			row := copyRow(l, len(l)+len(m))
			for c, v := range m {
				if name, ok := rename[c]; ok {
					row[name] = v
				}
			}
			res.Rows = append(res.Rows, row)
		}
	}
	return res, nil
}

func copyRow(r Row, size int) Row {
	res := make(Row, size)
	for k, v := range r {
		res[k] = v
	}
	return res
}
