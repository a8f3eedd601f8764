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

// Package db persists the assembled dataset as a Parquet file in a blob
// bucket, by default a local directory.
package db

import (
	"bytes"
	"context"
	"path/filepath"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/psd/table"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
)

// Default location of the dataset.
const (
	DefaultDir  = "data"
	DefaultName = "data.parquet"
)

// Sink writes the dataset to a fixed key of a bucket.
type Sink struct {
	dir    string       // local directory, when bucket is nil
	key    string       // object name in the bucket
	bucket *blob.Bucket // if nil, the dir is opened for each operation
}

// NewSink targets the file name in the local directory. The directory is not
// created; it must exist at the time of saving.
func NewSink(dir, name string) *Sink {
	return &Sink{dir: dir, key: name}
}

// NewSinkPath splits the file path into the directory and the file name.
func NewSinkPath(path string) *Sink {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	return NewSink(filepath.Clean(dir), name)
}

// NewBucketSink targets the key in an already open bucket. The caller owns the
// bucket.
func NewBucketSink(b *blob.Bucket, key string) *Sink {
	return &Sink{bucket: b, key: key}
}

// Path is the human-readable location of the dataset.
func (s *Sink) Path() string {
	if s.bucket != nil {
		return s.key
	}
	return filepath.Join(s.dir, s.key)
}

// open returns the bucket and the function to release it.
func (s *Sink) open(ctx context.Context) (*blob.Bucket, func(), error) {
	if s.bucket != nil {
		return s.bucket, func() {}, nil
	}
	b, err := fileblob.OpenBucket(s.dir, &fileblob.Options{
		Metadata: fileblob.MetadataDontWrite,
	})
	if err != nil {
		return nil, nil, errors.Annotate(err, "failed to open directory %s", s.dir)
	}
	release := func() {
		if err := b.Close(); err != nil {
			logging.Warningf(ctx, "failed to close directory %s: %s", s.dir, err.Error())
		}
	}
	return b, release, nil
}

// write the data to the sink's key, replacing the previous content.
func (s *Sink) write(ctx context.Context, data []byte, contentType string) error {
	b, release, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer release()

	w, err := b.NewWriter(ctx, s.key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return errors.Annotate(err, "failed to create writer for %s", s.key)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return errors.Annotate(err, "failed to write %s", s.key)
	}
	if err := w.Close(); err != nil {
		return errors.Annotate(err, "failed to close writer for %s", s.key)
	}
	return nil
}

// Save the table as Parquet, replacing the previous dataset. The failure is
// logged and returned; nothing is written in that case.
func (s *Sink) Save(ctx context.Context, t *table.Table) (err error) {
	defer func() {
		if err != nil {
			logging.Errorf(ctx, "failed to save data to %s: %s", s.Path(), err.Error())
		}
	}()
	var buf bytes.Buffer
	if err := EncodeParquet(&buf, t); err != nil {
		return errors.Annotate(err, "failed to encode %d rows", t.Len())
	}
	if err := s.write(ctx, buf.Bytes(), "application/vnd.apache.parquet"); err != nil {
		return err
	}
	logging.Infof(ctx, "all data saved to %s: %d rows, %d columns, %d bytes",
		s.Path(), t.Len(), len(t.Columns), buf.Len())
	return nil
}

// SaveCSV exports the table as CSV with a header.
func (s *Sink) SaveCSV(ctx context.Context, t *table.Table) error {
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf, table.Params{}); err != nil {
		return errors.Annotate(err, "failed to encode %d rows", t.Len())
	}
	if err := s.write(ctx, buf.Bytes(), "text/csv"); err != nil {
		return errors.Annotate(err, "failed to export CSV to %s", s.Path())
	}
	logging.Infof(ctx, "exported %d rows to %s", t.Len(), s.Path())
	return nil
}

// Load the saved dataset.
func (s *Sink) Load(ctx context.Context) (*table.Table, error) {
	b, release, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	data, err := b.ReadAll(ctx, s.key)
	if err != nil {
		return nil, errors.Annotate(err, "failed to read %s", s.Path())
	}
	t, err := DecodeParquet(ctx, data)
	if err != nil {
		return nil, errors.Annotate(err, "failed to decode %s", s.Path())
	}
	return t, nil
}
