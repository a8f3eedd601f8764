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

// Command psd-prepare downloads the USDA PSD observations for the reporting
// period in params.yaml, joins them with the catalogs and saves the result as
// a Parquet file.
//
// All the settings are read from the files in the current directory:
//
//	params.yaml - the period and the optional settings, see config.Params;
//	auth.toml   - usda_api_key = "..."; or USDA_API_KEY in .env or environment.
package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/psd/config"
	"github.com/stockparfait/psd/db"
	"github.com/stockparfait/psd/metrics"
	"github.com/stockparfait/psd/psd"
	"github.com/stockparfait/psd/psd/dataset"
)

const (
	paramsFile = "params.yaml"
	authFile   = "auth.toml"
	envFile    = ".env"
)

// inDir resolves a relative path against dir.
func inDir(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// run the whole pipeline with the configuration files in dir. The returned
// context carries the logger configured from params.yaml, if it was read.
func run(ctx context.Context, dir string) (context.Context, error) {
	params, err := config.LoadParams(filepath.Join(dir, paramsFile))
	if err != nil {
		return ctx, errors.Annotate(err, "failed to read configuration")
	}
	ctx = logging.Use(ctx, logging.DefaultGoLogger(params.Level()))

	creds, err := config.LoadCredentials(ctx,
		filepath.Join(dir, authFile), filepath.Join(dir, envFile))
	if err != nil {
		return ctx, errors.Annotate(err, "failed to read credentials")
	}
	ctx = psd.UseClient(ctx, creds.APIKey)

	m := metrics.New(metrics.DefaultNamespace)
	d := dataset.NewDataset(params.Period, params.Workers)
	d.Metrics = m
	data, err := d.Assemble(ctx)
	if err != nil {
		return ctx, errors.Annotate(err, "failed to assemble the dataset")
	}

	// The sink logs its own failure, which does not fail the run.
	_ = db.NewSinkPath(inDir(dir, params.Output)).Save(ctx, data)

	if params.CSVOutput != "" {
		if err := db.NewSinkPath(inDir(dir, params.CSVOutput)).SaveCSV(ctx, data); err != nil {
			logging.Warningf(ctx, "%s", err.Error())
		}
	}

	if params.MetricsFile != "" {
		if err := m.WriteTextfile(inDir(dir, params.MetricsFile)); err != nil {
			logging.Warningf(ctx, "%s", err.Error())
		}
	}
	return ctx, nil
}

func main() {
	ctx := logging.Use(context.Background(), logging.DefaultGoLogger(logging.Info))
	if ctx, err := run(ctx, "."); err != nil {
		logging.Errorf(ctx, "%s", err.Error())
		os.Exit(1)
	}
}
