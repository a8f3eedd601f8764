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

package dataset

import (
	"github.com/stockparfait/iterator"
	"github.com/stockparfait/psd/config"
	"github.com/stockparfait/psd/table"
)

// CodeColumn is the commodity code column of the catalog and the observations.
const CodeColumn = "commodityCode"

// Cell of the commodity x year grid. Index is the position of the cell in the
// iteration order.
type Cell struct {
	Index int
	Code  string
	Year  int
}

// Grid of commodity codes and years in the period.
type Grid struct {
	Codes  []string
	Period config.Period
}

// Size is the total number of cells.
func (g Grid) Size() int { return len(g.Codes) * g.Period.Len() }

// Iterator over the cells, codes in the outer loop and years in the inner.
// Each call creates a new iterator starting from the first cell.
func (g Grid) Iterator() iterator.Iterator[Cell] {
	return &gridIterator{grid: g, years: g.Period.Years()}
}

type gridIterator struct {
	grid  Grid
	years []int
	next  int // index of the next cell
}

var _ iterator.Iterator[Cell] = &gridIterator{}

func (it *gridIterator) Next() (Cell, bool) {
	if it.next >= it.grid.Size() {
		return Cell{}, false
	}
	n := len(it.years)
	c := Cell{
		Index: it.next,
		Code:  it.grid.Codes[it.next/n],
		Year:  it.years[it.next%n],
	}
	it.next++
	return c, true
}

// CommodityCodes extracts the distinct non-null commodity codes in the order of
// their first appearance in the catalog.
func CommodityCodes(t *table.Table) []string {
	var codes []string
	if t == nil {
		return codes
	}
	seen := make(map[string]struct{})
	for _, v := range t.Values(CodeColumn) {
		if v.IsNull() {
			continue
		}
		c := v.String()
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		codes = append(codes, c)
	}
	return codes
}
