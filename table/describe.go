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
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Describe summarizes each column of t as a row of a new table: its name, the
// kinds of its values, the number of non-null values, and for numeric values
// their min, max, mean and standard deviation.
func (t *Table) Describe() *Table {
	res := NewTable("Column", "Kind", "Non-Null", "Min", "Max", "Mean", "StdDev")
	for _, c := range t.Columns {
		var kinds []string
		seen := make(map[Kind]bool)
		var xs []float64
		nonNull := 0
		for _, r := range t.Rows {
			v := r[c]
			if v.IsNull() {
				continue
			}
			nonNull++
			if !seen[v.Kind] {
				seen[v.Kind] = true
				kinds = append(kinds, v.Kind.String())
			}
			if x, ok := v.Float(); ok {
				xs = append(xs, x)
			}
		}
		row := Row{
			"Column":   String(c),
			"Non-Null": Number(float64(nonNull)),
		}
		if len(kinds) > 0 {
			row["Kind"] = String(strings.Join(kinds, ","))
		}
		if len(xs) > 0 {
			row["Min"] = Number(floats.Min(xs))
			row["Max"] = Number(floats.Max(xs))
			row["Mean"] = Number(stat.Mean(xs, nil))
		}
		if len(xs) > 1 {
			row["StdDev"] = Number(stat.StdDev(xs, nil))
		}
		res.Rows = append(res.Rows, row)
	}
	return res
}
