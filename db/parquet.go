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

package db

import (
	"bytes"
	"context"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/psd/table"
)

// columnType infers the arrow type of the column. A column with values of a
// single kind gets the corresponding type; mixed and all-null columns are
// strings.
func columnType(t *table.Table, column string) arrow.DataType {
	kind := table.KindNull
	for _, v := range t.Values(column) {
		switch {
		case v.IsNull():
			continue
		case kind == table.KindNull:
			kind = v.Kind
		case kind != v.Kind:
			return arrow.BinaryTypes.String
		}
	}
	switch kind {
	case table.KindNumber:
		return arrow.PrimitiveTypes.Float64
	case table.KindBool:
		return arrow.FixedWidthTypes.Boolean
	}
	return arrow.BinaryTypes.String
}

// Schema is the arrow schema of the table with all the columns nullable.
func Schema(t *table.Table) *arrow.Schema {
	fields := make([]arrow.Field, len(t.Columns))
	for i, c := range t.Columns {
		fields[i] = arrow.Field{Name: c, Type: columnType(t, c), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

func appendValue(b array.Builder, v table.Value) {
	if v.IsNull() {
		b.AppendNull()
		return
	}
	switch b := b.(type) {
	case *array.Float64Builder:
		f, _ := v.Float()
		b.Append(f)
	case *array.BooleanBuilder:
		f, _ := v.Flag()
		b.Append(f)
	case *array.StringBuilder:
		b.Append(v.String())
	}
}

// EncodeParquet writes the table to w as a single row group Parquet file.
func EncodeParquet(w io.Writer, t *table.Table) error {
	mem := memory.NewGoAllocator()
	schema := Schema(t)
	rb := array.NewRecordBuilder(mem, schema)
	defer rb.Release()
	for _, r := range t.Rows {
		for i, c := range t.Columns {
			appendValue(rb.Field(i), r[c])
		}
	}
	rec := rb.NewRecord()
	defer rec.Release()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithCreatedBy("psd"),
	)
	fw, err := pqarrow.NewFileWriter(schema, w, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return errors.Annotate(err, "failed to create parquet writer")
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return errors.Annotate(err, "failed to write %d rows", t.Len())
	}
	if err := fw.Close(); err != nil {
		return errors.Annotate(err, "failed to close parquet writer")
	}
	return nil
}

// readColumn appends the values of the arrow array to the rows starting at
// offset.
func readColumn(rows []table.Row, offset int, name string, a arrow.Array) error {
	for i := 0; i < a.Len(); i++ {
		if a.IsNull(i) {
			continue
		}
		var v table.Value
		switch a := a.(type) {
		case *array.String:
			v = table.String(a.Value(i))
		case *array.LargeString:
			v = table.String(a.Value(i))
		case *array.Float64:
			v = table.Number(a.Value(i))
		case *array.Boolean:
			v = table.Bool(a.Value(i))
		default:
			return errors.Reason("column %s has unsupported type %s", name, a.DataType())
		}
		rows[offset+i][name] = v
	}
	return nil
}

// DecodeParquet reads a Parquet file written by EncodeParquet.
func DecodeParquet(ctx context.Context, data []byte) (*table.Table, error) {
	mem := memory.NewGoAllocator()
	tbl, err := pqarrow.ReadTable(ctx, bytes.NewReader(data), nil, pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, errors.Annotate(err, "failed to read parquet")
	}
	defer tbl.Release()

	res := table.NewTable()
	res.Rows = make([]table.Row, tbl.NumRows())
	for i := range res.Rows {
		res.Rows[i] = make(table.Row)
	}
	for i := 0; i < int(tbl.NumCols()); i++ {
		col := tbl.Column(i)
		res.AddColumn(col.Name())
		offset := 0
		for _, chunk := range col.Data().Chunks() {
			if err := readColumn(res.Rows, offset, col.Name(), chunk); err != nil {
				return nil, err
			}
			offset += chunk.Len()
		}
	}
	return res, nil
}
