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

// Package metrics counts the outcomes of the dataset assembly in a prometheus
// registry, which may be dumped into a text file for the node exporter.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stockparfait/errors"
)

// DefaultNamespace of the metric names.
const DefaultNamespace = "psd"

// Metrics of a single run. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry        *prometheus.Registry
	CellsFetched    *prometheus.CounterVec // by outcome
	RowsAccumulated prometheus.Counter
	FetchSeconds    prometheus.Histogram
}

// New creates the metrics in a new registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		CellsFetched: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cells_fetched_total",
				Help:      "Number of commodity-year requests by outcome",
			},
			[]string{"outcome"},
		),
		RowsAccumulated: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_accumulated_total",
				Help:      "Number of observation rows accumulated from successful requests",
			},
		),
		FetchSeconds: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Duration of commodity-year requests",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
	}
}

// ObserveCell records the outcome of one commodity-year request.
func (m *Metrics) ObserveCell(outcome string, rows int, d time.Duration) {
	if m == nil {
		return
	}
	m.CellsFetched.WithLabelValues(outcome).Inc()
	m.RowsAccumulated.Add(float64(rows))
	m.FetchSeconds.Observe(d.Seconds())
}

// WriteTextfile writes all the metrics to the file in the text exposition
// format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return errors.Reason("no metrics to write")
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return errors.Annotate(err, "failed to write metrics to %s", path)
	}
	return nil
}
