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

package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stockparfait/psd/db"
	"github.com/stockparfait/psd/psd"
	"github.com/stockparfait/psd/table"
	"github.com/stockparfait/testutil"

	. "github.com/smartystreets/goconvey/convey"
)

var testResponses = map[string]string{
	psd.CommoditiesPath: `[{"commodityCode": "0440000", "name": "Corn"}]`,
	psd.CommodityAttributesPath: `[
  {"attributeId": 20, "attributeName": "Beginning Stocks"},
  {"attributeId": 28, "attributeName": "Production"}]`,
	psd.UnitsOfMeasurePath: `[{"unitId": 8, "unitDescription": "(1000 MT)"}]`,
	psd.CommodityYearPath("0440000", 2020): `[
  {"commodityCode": "0440000", "countryCode": "US", "attributeId": 20, "unitId": 8, "value": 1},
  {"commodityCode": "0440000", "countryCode": "BR", "attributeId": 28, "unitId": 8, "value": 2}]`,
}

func testAPI(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("API_KEY") != "test-key" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	body, ok := testResponses[r.URL.Path]
	if !ok {
		body = "[]"
	}
	fmt.Fprint(w, body)
}

// testDir creates a run directory with the configuration files.
func testDir(root, name, params string) (string, error) {
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	if err := testutil.WriteFile(filepath.Join(dir, paramsFile), params); err != nil {
		return "", err
	}
	if err := testutil.WriteFile(filepath.Join(dir, authFile), `usda_api_key = "test-key"`); err != nil {
		return "", err
	}
	return dir, nil
}

func TestRun(t *testing.T) {
	t.Parallel()

	tmpdir, tmpdirErr := os.MkdirTemp("", "test_psd_prepare")
	defer os.RemoveAll(tmpdir)

	Convey("Setup succeeded", t, func() {
		So(tmpdirErr, ShouldBeNil)
	})

	Convey("run works", t, func() {
		server := httptest.NewServer(http.HandlerFunc(testAPI))
		defer server.Close()
		psd.URL = server.URL
		ctx := context.Background()

		Convey("single commodity scenario", func() {
			dir, err := testDir(tmpdir, "scenario", `
period:
  start: 2020
  stop: 2021
log_level: warning
metrics_file: psd.prom
`)
			So(err, ShouldBeNil)
			So(os.MkdirAll(filepath.Join(dir, db.DefaultDir), 0755), ShouldBeNil)
			_, err = run(ctx, dir)
			So(err, ShouldBeNil)

			data, err := db.NewSink(filepath.Join(dir, db.DefaultDir), db.DefaultName).Load(ctx)
			So(err, ShouldBeNil)
			So(data.Len(), ShouldEqual, 2)
			So(data.Values("name"), ShouldResemble,
				[]table.Value{table.String("Corn"), table.String("Corn")})
			So(data.Values("unitDescription"), ShouldResemble,
				[]table.Value{table.String("(1000 MT)"), table.String("(1000 MT)")})

			prom, err := os.ReadFile(filepath.Join(dir, "psd.prom"))
			So(err, ShouldBeNil)
			So(string(prom), ShouldContainSubstring, `psd_cells_fetched_total{outcome="ok"} 1`)
		})

		Convey("custom output with parallel fetching", func() {
			dir, err := testDir(tmpdir, "custom", `
period: {start: 2019, stop: 2021}
output: out/psd.parquet
csv_output: out/psd.csv
workers: 2
`)
			So(err, ShouldBeNil)
			So(os.MkdirAll(filepath.Join(dir, "out"), 0755), ShouldBeNil)
			_, err = run(ctx, dir)
			So(err, ShouldBeNil)
			data, err := db.NewSinkPath(filepath.Join(dir, "out", "psd.parquet")).Load(ctx)
			So(err, ShouldBeNil)
			So(data.Len(), ShouldEqual, 2)
			csv, err := os.ReadFile(filepath.Join(dir, "out", "psd.csv"))
			So(err, ShouldBeNil)
			So(string(csv), ShouldStartWith, "commodityCode,")
			So(strings.Count(string(csv), "\n"), ShouldEqual, 3)
		})

		Convey("missing output directory does not fail the run", func() {
			dir, err := testDir(tmpdir, "nodata", "period: {start: 2020, stop: 2021}\n")
			So(err, ShouldBeNil)
			_, err = run(ctx, dir)
			So(err, ShouldBeNil)
			_, err = os.Stat(filepath.Join(dir, db.DefaultDir))
			So(os.IsNotExist(err), ShouldBeTrue)
		})

		Convey("bad configuration fails the run", func() {
			dir, err := testDir(tmpdir, "badconfig", "period: {start: 2020}\n")
			So(err, ShouldBeNil)
			_, err = run(ctx, dir)
			So(err, ShouldNotBeNil)

			_, err = run(ctx, filepath.Join(tmpdir, "no-such-dir"))
			So(err, ShouldNotBeNil)
		})
	})

	Convey("transport failure fails the run", t, func() {
		server := httptest.NewServer(http.HandlerFunc(testAPI))
		psd.URL = server.URL
		server.Close()
		dir, err := testDir(tmpdir, "transport", "period: {start: 2020, stop: 2021}\n")
		So(err, ShouldBeNil)
		_, err = run(context.Background(), dir)
		So(err, ShouldNotBeNil)
	})
}
