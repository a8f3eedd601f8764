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

// Package dataset assembles the PSD observations of all the commodities over
// the reporting period, and enriches them with the catalogs.
package dataset

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/iterator"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/psd/config"
	"github.com/stockparfait/psd/metrics"
	"github.com/stockparfait/psd/psd"
	"github.com/stockparfait/psd/table"
)

// PreviewRows is the number of rows logged in the table previews.
const PreviewRows = 5

// Stats of a single assembly.
type Stats struct {
	Cells      int                     // grid size
	Succeeded  int                     // cells with a table
	Failed     map[psd.FailureKind]int // cells without a table
	Rows       int                     // accumulated observation rows
	JoinedRows int                     // rows after all the joins
}

// Dataset assembles the observations for the Period. Set the fields before
// calling Assemble.
type Dataset struct {
	Period   config.Period
	Workers  int // number of concurrent requests; <= 1 is sequential
	Catalogs *psd.Catalogs
	Metrics  *metrics.Metrics // optional

	Stats Stats
}

// NewDataset creates a Dataset with a fresh catalog cache.
func NewDataset(period config.Period, workers int) *Dataset {
	return &Dataset{
		Period:   period,
		Workers:  workers,
		Catalogs: psd.NewCatalogs(),
	}
}

// catalogJoin describes one left-join with a catalog.
type catalogJoin struct {
	name  string
	key   string
	fetch func(*psd.Catalogs, context.Context) (psd.Result, error)
}

// joins in the order of application.
var joins = []catalogJoin{
	{"commodities", CodeColumn, (*psd.Catalogs).Commodities},
	{"commodity attributes", "attributeId", (*psd.Catalogs).CommodityAttributes},
	{"units of measure", "unitId", (*psd.Catalogs).UnitsOfMeasure},
}

// preview logs the first few rows of the table.
func preview(ctx context.Context, name string, t *table.Table) {
	var b strings.Builder
	if err := t.Head(PreviewRows).WriteText(&b, table.Params{MaxColWidth: 30}); err != nil {
		logging.Warningf(ctx, "failed to print %s: %s", name, err.Error())
		return
	}
	logging.Infof(ctx, "%s: %d rows, %d columns\n%s", name, t.Len(), len(t.Columns), b.String())
}

// describe logs the column summary of the table.
func describe(ctx context.Context, name string, t *table.Table) {
	var b strings.Builder
	if err := t.Describe().WriteText(&b, table.Params{MaxColWidth: 30}); err != nil {
		logging.Warningf(ctx, "failed to describe %s: %s", name, err.Error())
		return
	}
	logging.Infof(ctx, "%s columns:\n%s", name, b.String())
}

// Codes enumerates the commodity codes from the commodities catalog. A failed
// catalog request yields no codes.
func (d *Dataset) Codes(ctx context.Context) ([]string, error) {
	r, err := d.Catalogs.Commodities(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "failed to fetch commodities")
	}
	if !r.OK() {
		logging.Warningf(ctx, "commodities are not available (%s), no codes to fetch",
			r.Failure.String())
		return nil, nil
	}
	return CommodityCodes(r.Table), nil
}

// cellResult is the outcome of fetching a Cell.
type cellResult struct {
	cell     Cell
	result   psd.Result
	err      error
	duration time.Duration
}

func fetchCell(ctx context.Context, c Cell) cellResult {
	start := time.Now()
	r, err := psd.FetchCommodityYear(ctx, c.Code, c.Year)
	return cellResult{cell: c, result: r, err: err, duration: time.Since(start)}
}

// fold adds a successful result to the accumulation, or accounts for the
// failure.
func (d *Dataset) fold(ctx context.Context, cr cellResult, parts []*table.Table) []*table.Table {
	r := cr.result
	rows := 0
	if r.OK() {
		d.Stats.Succeeded++
		rows = r.Table.Len()
		d.Stats.Rows += rows
		parts = append(parts, r.Table)
		logging.Debugf(ctx, "commodity %s year %d: %d rows",
			cr.cell.Code, cr.cell.Year, rows)
	} else {
		d.Stats.Failed[r.Failure]++
		logging.Warningf(ctx, "skipping commodity %s year %d: %s",
			cr.cell.Code, cr.cell.Year, r.Failure.String())
	}
	d.Metrics.ObserveCell(r.Failure.String(), rows, cr.duration)
	return parts
}

// FetchObservations fetches every cell of the grid and concatenates the
// successful results in the grid order. Only transport failures are returned
// as errors.
func (d *Dataset) FetchObservations(ctx context.Context, codes []string) (*table.Table, error) {
	g := Grid{Codes: codes, Period: d.Period}
	d.Stats.Cells = g.Size()
	d.Stats.Failed = make(map[psd.FailureKind]int)
	logging.Infof(ctx, "fetching %d commodities for years [%d, %d): %d requests",
		len(codes), d.Period.Start, d.Period.Stop, g.Size())

	var parts []*table.Table
	if d.Workers <= 1 {
		it := g.Iterator()
		for c, ok := it.Next(); ok; c, ok = it.Next() {
			cr := fetchCell(ctx, c)
			if cr.err != nil {
				return nil, errors.Annotate(cr.err, "failed to fetch observations")
			}
			parts = d.fold(ctx, cr, parts)
		}
	} else {
		f := func(c Cell) cellResult { return fetchCell(ctx, c) }
		pm := iterator.ParallelMap(ctx, d.Workers, g.Iterator(), f)
		res := iterator.Reduce[cellResult, []cellResult](pm, nil,
			func(cr cellResult, acc []cellResult) []cellResult {
				return append(acc, cr)
			})
		sort.Slice(res, func(i, j int) bool { return res[i].cell.Index < res[j].cell.Index })
		for _, cr := range res {
			if cr.err != nil {
				return nil, errors.Annotate(cr.err, "failed to fetch observations")
			}
			parts = d.fold(ctx, cr, parts)
		}
	}
	obs := table.Concat(parts...)
	logging.Infof(ctx, "fetched %d of %d cells, %d rows; failed: %v",
		d.Stats.Succeeded, d.Stats.Cells, d.Stats.Rows, d.Stats.Failed)
	return obs, nil
}

// Merge left-joins the observations with the catalogs. A catalog which failed
// to load or lacks its key column is skipped.
func (d *Dataset) Merge(ctx context.Context, obs *table.Table) (*table.Table, error) {
	res := obs
	for _, j := range joins {
		r, err := j.fetch(d.Catalogs, ctx)
		if err != nil {
			return nil, errors.Annotate(err, "failed to fetch %s", j.name)
		}
		if !r.OK() {
			logging.Warningf(ctx, "skipping join with %s: %s", j.name, r.Failure.String())
			continue
		}
		preview(ctx, j.name, r.Table)
		joined, err := table.LeftJoin(res, r.Table, j.key)
		if err != nil {
			logging.Warningf(ctx, "skipping join with %s: %s", j.name, err.Error())
			continue
		}
		if joined.Len() != res.Len() {
			logging.Warningf(ctx, "join with %s on %s changed the number of rows from %d to %d",
				j.name, j.key, res.Len(), joined.Len())
		}
		res = joined
	}
	d.Stats.JoinedRows = res.Len()
	return res, nil
}

// Assemble the complete dataset: enumerate the commodities, fetch their
// observations for the period, and join them with the catalogs.
func (d *Dataset) Assemble(ctx context.Context) (*table.Table, error) {
	if d.Catalogs == nil {
		d.Catalogs = psd.NewCatalogs()
	}
	codes, err := d.Codes(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "failed to enumerate commodities")
	}
	obs, err := d.FetchObservations(ctx, codes)
	if err != nil {
		return nil, err
	}
	preview(ctx, "observations", obs)
	res, err := d.Merge(ctx, obs)
	if err != nil {
		return nil, errors.Annotate(err, "failed to merge catalogs")
	}
	preview(ctx, "dataset", res)
	describe(ctx, "dataset", res)
	return res, nil
}
