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
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/stockparfait/errors"
	"golang.org/x/exp/slices"
)

// Row maps column names to values. A missing column is a null value, and null
// values are never stored explicitly.
type Row map[string]Value

// Table container.
//
// A typical use:
//
//	t := NewTable("commodityCode", "commodityName")
//	t.AddRow(Row{"commodityCode": String("0440000"), "commodityName": String("Corn")})
//	t.WriteText(os.Stdout, Params{Rows: 5})
type Table struct {
	Columns []string // in the order of first appearance
	Rows    []Row
}

// NewTable creates a new Table instance with optional columns.
func NewTable(columns ...string) *Table {
	t := &Table{}
	for _, c := range columns {
		t.AddColumn(c)
	}
	return t
}

// HasColumn checks if the table has the named column.
func (t *Table) HasColumn(name string) bool {
	return slices.Contains(t.Columns, name)
}

// AddColumn appends a new column, unless it already exists. Returns true if
// the column was added.
func (t *Table) AddColumn(name string) bool {
	if t.HasColumn(name) {
		return false
	}
	t.Columns = append(t.Columns, name)
	return true
}

// AddRow adds one or more rows to the table. Columns not yet in the table are
// added in the lexicographic order, since maps are unordered.
func (t *Table) AddRow(rows ...Row) {
	for _, r := range rows {
		var extra []string
		for c, v := range r {
			if v.IsNull() {
				delete(r, c)
				continue
			}
			if !t.HasColumn(c) {
				extra = append(extra, c)
			}
		}
		sort.Strings(extra)
		t.Columns = append(t.Columns, extra...)
		t.Rows = append(t.Rows, r)
	}
}

// Len is the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Get the value in the i'th row of the column.
func (t *Table) Get(i int, column string) Value {
	return t.Rows[i][column]
}

// Values of the column for all rows.
func (t *Table) Values(column string) []Value {
	res := make([]Value, len(t.Rows))
	for i, r := range t.Rows {
		res[i] = r[column]
	}
	return res
}

// Append the rows of t2 to t. The columns of t become the union of both
// tables' columns: t's columns first, followed by the new columns of t2.
func (t *Table) Append(t2 *Table) {
	for _, c := range t2.Columns {
		t.AddColumn(c)
	}
	t.Rows = append(t.Rows, t2.Rows...)
}

// Head returns a new table with at most the first n rows. Rows are shared with
// the original table.
func (t *Table) Head(n int) *Table {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return &Table{
		Columns: slices.Clone(t.Columns),
		Rows:    t.Rows[:n],
	}
}

// FromJSON reads a JSON array of objects into a new Table. The columns are the
// union of the object keys in the order of their first appearance.
func FromJSON(r io.Reader) (*Table, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, errors.Annotate(err, "failed to read JSON")
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, errors.Reason("expected a JSON array, got %v", tok)
	}
	t := NewTable()
	for dec.More() {
		row, cols, err := readObject(dec)
		if err != nil {
			return nil, errors.Annotate(err, "failed to read element %d", len(t.Rows))
		}
		for _, c := range cols {
			t.AddColumn(c)
		}
		t.Rows = append(t.Rows, row)
	}
	if _, err := dec.Token(); err != nil {
		return nil, errors.Annotate(err, "failed to read the end of JSON array")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.Reason("unexpected data after JSON array")
	}
	return t, nil
}

// readObject reads a single JSON object as a Row, and returns its keys in their
// original order.
func readObject(dec *json.Decoder) (Row, []string, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, errors.Annotate(err, "failed to read JSON object")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, errors.Reason("expected a JSON object, got %v", tok)
	}
	row := make(Row)
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, errors.Annotate(err, "failed to read object key")
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, errors.Reason("object key is not a string: %v", tok)
		}
		var js interface{}
		if err := dec.Decode(&js); err != nil {
			return nil, nil, errors.Annotate(err, "failed to read value of '%s'", key)
		}
		if !slices.Contains(keys, key) {
			keys = append(keys, key)
		}
		if v := ValueOf(js); !v.IsNull() {
			row[key] = v
		} else {
			delete(row, key)
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, errors.Annotate(err, "failed to read the end of JSON object")
	}
	return row, keys, nil
}

// Params are parameters for pretty-printing or CSV export of Table data.
type Params struct {
	Rows        int  // max. number of rows to write; 0 = unlimited (default)
	NoHeader    bool // whether to print the header, default - yes
	MaxColWidth int  // for WriteText only; 0 = unlimited, otherwise must be >= 4
}

// cells of the i'th row in the column order.
func (t *Table) cells(i int) []string {
	res := make([]string, len(t.Columns))
	for j, c := range t.Columns {
		res[j] = t.Rows[i][c].String()
	}
	return res
}

// WriteCSV writes the entire table to w in CSV format.
func (t *Table) WriteCSV(w io.Writer, p Params) error {
	cw := csv.NewWriter(w)
	if !p.NoHeader && len(t.Columns) > 0 {
		if err := cw.Write(t.Columns); err != nil {
			return errors.Annotate(err, "failed to write header")
		}
	}
	for i := range t.Rows {
		if p.Rows > 0 && i >= p.Rows {
			break
		}
		if err := cw.Write(t.cells(i)); err != nil {
			return errors.Annotate(err, "failed to write row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Annotate(err, "failed to flush written rows")
	}
	return nil
}

// WriteText writes the table as a text formatted for ease of reading. A table
// without columns writes nothing.
func (t *Table) WriteText(w io.Writer, p Params) error {
	if p.MaxColWidth != 0 && p.MaxColWidth < 4 {
		return errors.Reason("MaxColWidth [%d] must be 0 or >= 4", p.MaxColWidth)
	}
	if len(t.Columns) == 0 {
		return nil
	}
	n := len(t.Rows)
	if p.Rows > 0 && p.Rows < n {
		n = p.Rows
	}
	widths := make([]int, len(t.Columns))
	update := func(row []string) {
		for i := range widths {
			if l := len([]rune(row[i])); widths[i] < l {
				widths[i] = l
				if p.MaxColWidth > 0 && widths[i] > p.MaxColWidth {
					widths[i] = p.MaxColWidth
				}
			}
		}
	}

	write := func(row []string) error {
		trimmed := make([]string, len(row))
		for i, s := range row {
			trimmed[i] = s
			if len([]rune(s)) > widths[i] {
				r := []rune(s)[:widths[i]-2]
				trimmed[i] = string(r) + ".."
			}
			trimmed[i] = fmt.Sprintf("%[2]*[1]s", trimmed[i], widths[i])
		}
		_, err := fmt.Fprintf(w, "%s\n", strings.Join(trimmed, " | "))
		return err
	}

	if !p.NoHeader {
		update(t.Columns)
	}
	for i := 0; i < n; i++ {
		update(t.cells(i))
	}

	if !p.NoHeader {
		if err := write(t.Columns); err != nil {
			return errors.Annotate(err, "failed to write header")
		}
		dashes := make([]string, len(widths))
		for i, w := range widths {
			dashes[i] = strings.Repeat("-", w)
		}
		if err := write(dashes); err != nil {
			return errors.Annotate(err, "failed to write header separator")
		}
	}
	for i := 0; i < n; i++ {
		if err := write(t.cells(i)); err != nil {
			return errors.Annotate(err, "failed to write row")
		}
	}
	return nil
}
