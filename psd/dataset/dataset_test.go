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
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stockparfait/fetch"
	"github.com/stockparfait/psd/config"
	"github.com/stockparfait/psd/metrics"
	"github.com/stockparfait/psd/psd"
	"github.com/stockparfait/psd/table"

	. "github.com/smartystreets/goconvey/convey"
)

// fakeAPI serves fixed bodies by path. Unknown paths return an empty array.
type fakeAPI struct {
	mu       sync.Mutex
	bodies   map[string]string
	status   map[string]int
	requests map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		bodies:   make(map[string]string),
		status:   make(map[string]int),
		requests: make(map[string]int),
	}
}

func (a *fakeAPI) set(path string, status int, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status[path] = status
	a.bodies[path] = body
}

func (a *fakeAPI) count(prefix string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for p, c := range a.requests {
		if strings.HasPrefix(p, prefix) {
			n += c
		}
	}
	return n
}

func (a *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.requests[r.URL.Path]++
	status, ok := a.status[r.URL.Path]
	body := a.bodies[r.URL.Path]
	a.mu.Unlock()
	if !ok {
		status, body = http.StatusOK, "[]"
	}
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func testContext(server *httptest.Server) context.Context {
	psd.URL = server.URL
	ctx := psd.UseClient(context.Background(), "secret")
	return fetch.UseClient(ctx, server.Client())
}

func TestGrid(t *testing.T) {
	t.Parallel()

	Convey("Grid works", t, func() {
		g := Grid{Codes: []string{"A", "B"}, Period: config.Period{Start: 2020, Stop: 2023}}
		So(g.Size(), ShouldEqual, 6)

		cells := func() []Cell {
			var res []Cell
			it := g.Iterator()
			for c, ok := it.Next(); ok; c, ok = it.Next() {
				res = append(res, c)
			}
			return res
		}
		expected := []Cell{
			{0, "A", 2020}, {1, "A", 2021}, {2, "A", 2022},
			{3, "B", 2020}, {4, "B", 2021}, {5, "B", 2022},
		}
		So(cells(), ShouldResemble, expected)
		So(cells(), ShouldResemble, expected) // restartable

		Convey("empty period", func() {
			g.Period.Stop = 2020
			So(g.Size(), ShouldEqual, 0)
			_, ok := g.Iterator().Next()
			So(ok, ShouldBeFalse)
		})
	})

	Convey("CommodityCodes works", t, func() {
		cat := table.NewTable(CodeColumn, "commodityName")
		cat.AddRow(
			table.Row{CodeColumn: table.String("0440000")},
			table.Row{CodeColumn: table.String("0410000")},
			table.Row{"commodityName": table.String("nameless")},
			table.Row{CodeColumn: table.String("0440000")})
		So(CommodityCodes(cat), ShouldResemble, []string{"0440000", "0410000"})
		So(len(CommodityCodes(table.NewTable("other"))), ShouldEqual, 0)
		So(len(CommodityCodes(nil)), ShouldEqual, 0)
	})
}

// TestDataset is the only test in the package modifying psd.URL.
func TestDataset(t *testing.T) {
	t.Parallel()

	Convey("Dataset works", t, func() {
		api := newFakeAPI()
		server := httptest.NewServer(api)
		defer server.Close()
		ctx := testContext(server)

		api.set(psd.CommoditiesPath, http.StatusOK,
			`[{"commodityCode": "0440000", "name": "Corn"}]`)
		api.set(psd.CommodityAttributesPath, http.StatusOK,
			`[{"attributeId": 20, "attributeName": "Beginning Stocks"},
        {"attributeId": 28, "attributeName": "Production"}]`)
		api.set(psd.UnitsOfMeasurePath, http.StatusOK,
			`[{"unitId": 8, "unitDescription": "(1000 MT)"}]`)
		api.set(psd.CommodityYearPath("0440000", 2020), http.StatusOK, `[
  {"commodityCode": "0440000", "countryCode": "US", "marketYear": "2020",
   "attributeId": 20, "unitId": 8, "value": 48757},
  {"commodityCode": "0440000", "countryCode": "BR", "marketYear": "2020",
   "attributeId": 28, "unitId": 8, "value": 87000}
]`)
		period := config.Period{Start: 2020, Stop: 2021}

		Convey("single commodity scenario", func() {
			d := NewDataset(period, 1)
			res, err := d.Assemble(ctx)
			So(err, ShouldBeNil)
			So(res.Len(), ShouldEqual, 2)
			So(res.Values("name"), ShouldResemble,
				[]table.Value{table.String("Corn"), table.String("Corn")})
			So(res.Values("attributeName"), ShouldResemble,
				[]table.Value{table.String("Beginning Stocks"), table.String("Production")})
			So(res.Values("unitDescription"), ShouldResemble,
				[]table.Value{table.String("(1000 MT)"), table.String("(1000 MT)")})
			So(res.Columns, ShouldResemble, []string{
				"commodityCode", "countryCode", "marketYear", "attributeId", "unitId",
				"value", "name", "attributeName", "unitDescription"})
			So(d.Stats.Cells, ShouldEqual, 1)
			So(d.Stats.Succeeded, ShouldEqual, 1)
			So(d.Stats.Rows, ShouldEqual, 2)
			So(d.Stats.JoinedRows, ShouldEqual, 2)
			So(api.count(psd.CommoditiesPath), ShouldEqual, 1)
		})

		Convey("number of requests is codes x years", func() {
			api.set(psd.CommoditiesPath, http.StatusOK, `[
  {"commodityCode": "0440000"}, {"commodityCode": "0410000"},
  {"commodityCode": "0422110"}]`)
			d := NewDataset(config.Period{Start: 2018, Stop: 2022}, 1)
			_, err := d.Assemble(ctx)
			So(err, ShouldBeNil)
			So(api.count("/api/psd/commodity/"), ShouldEqual, 12)
			So(d.Stats.Cells, ShouldEqual, 12)
		})

		Convey("empty observations keep the catalog columns", func() {
			api.set(psd.CommodityYearPath("0440000", 2020), http.StatusOK, `[]`)
			d := NewDataset(period, 1)
			res, err := d.Assemble(ctx)
			So(err, ShouldBeNil)
			So(res.Len(), ShouldEqual, 0)
			So(res.Columns, ShouldResemble, []string{
				"commodityCode", "name", "attributeId", "attributeName",
				"unitId", "unitDescription"})
		})

		Convey("failed cells are skipped", func() {
			api.set(psd.CommoditiesPath, http.StatusOK, `[
  {"commodityCode": "0440000", "name": "Corn"},
  {"commodityCode": "0410000", "name": "Wheat"},
  {"commodityCode": "0422110", "name": "Rice"}]`)
			api.set(psd.CommodityYearPath("0440000", 2020), http.StatusOK, `not json`)
			api.set(psd.CommodityYearPath("0410000", 2020), http.StatusUnauthorized, ``)
			api.set(psd.CommodityYearPath("0422110", 2020), http.StatusOK,
				`[{"commodityCode": "0422110", "attributeId": 28, "unitId": 8, "value": 1}]`)
			m := metrics.New("")
			d := NewDataset(period, 1)
			d.Metrics = m
			res, err := d.Assemble(ctx)
			So(err, ShouldBeNil)
			So(res.Len(), ShouldEqual, 1)
			So(res.Get(0, "name"), ShouldResemble, table.String("Rice"))
			So(d.Stats.Succeeded, ShouldEqual, 1)
			So(d.Stats.Failed, ShouldResemble, map[psd.FailureKind]int{
				psd.FailureMalformed: 1,
				psd.FailureAuth:      1,
			})
			So(testutil.ToFloat64(m.CellsFetched.WithLabelValues("ok")), ShouldEqual, 1.0)
			So(testutil.ToFloat64(m.CellsFetched.WithLabelValues("auth")), ShouldEqual, 1.0)
			So(testutil.ToFloat64(m.RowsAccumulated), ShouldEqual, 1.0)
		})

		Convey("unmatched keys keep the rows", func() {
			api.set(psd.UnitsOfMeasurePath, http.StatusOK,
				`[{"unitId": 21, "unitDescription": "(1000 HA)"}]`)
			d := NewDataset(period, 1)
			res, err := d.Assemble(ctx)
			So(err, ShouldBeNil)
			So(res.Len(), ShouldEqual, 2)
			So(res.Get(0, "unitDescription").IsNull(), ShouldBeTrue)
			So(res.Get(0, "name"), ShouldResemble, table.String("Corn"))
		})

		Convey("failed catalogs are skipped", func() {
			api.set(psd.CommodityAttributesPath, http.StatusInternalServerError, ``)
			api.set(psd.UnitsOfMeasurePath, http.StatusOK, `[{"id": 8}]`)
			d := NewDataset(period, 1)
			res, err := d.Assemble(ctx)
			So(err, ShouldBeNil)
			So(res.Len(), ShouldEqual, 2)
			So(res.HasColumn("attributeName"), ShouldBeFalse)
			So(res.HasColumn("id"), ShouldBeFalse)
			So(res.HasColumn("name"), ShouldBeTrue)
		})

		Convey("failed commodities catalog yields no grid", func() {
			api.set(psd.CommoditiesPath, http.StatusForbidden, ``)
			d := NewDataset(period, 1)
			res, err := d.Assemble(ctx)
			So(err, ShouldBeNil)
			So(res.Len(), ShouldEqual, 0)
			So(d.Stats.Cells, ShouldEqual, 0)
			So(api.count("/api/psd/commodity/"), ShouldEqual, 0)
		})

		Convey("parallel fetching gives the same result", func() {
			api.set(psd.CommoditiesPath, http.StatusOK, `[
  {"commodityCode": "0440000", "name": "Corn"},
  {"commodityCode": "0410000", "name": "Wheat"}]`)
			for _, code := range []string{"0440000", "0410000"} {
				for y := 2018; y < 2021; y++ {
					api.set(psd.CommodityYearPath(code, y), http.StatusOK, fmt.Sprintf(
						`[{"commodityCode": "%s", "marketYear": %d, "attributeId": 20, "unitId": 8}]`,
						code, y))
				}
			}
			p := config.Period{Start: 2018, Stop: 2021}
			seq, err := NewDataset(p, 1).Assemble(ctx)
			So(err, ShouldBeNil)
			par, err := NewDataset(p, 4).Assemble(ctx)
			So(err, ShouldBeNil)
			So(par.Len(), ShouldEqual, 6)
			So(par, ShouldResemble, seq)
			So(par.Values("marketYear")[:3], ShouldResemble, []table.Value{
				table.Number(2018), table.Number(2019), table.Number(2020)})
		})
	})

	Convey("Dataset fails on transport errors", t, func() {
		server := httptest.NewServer(newFakeAPI())
		ctx := testContext(server)
		server.Close()
		_, err := NewDataset(config.Period{Start: 2020, Stop: 2021}, 1).Assemble(ctx)
		So(err, ShouldNotBeNil)
	})
}
