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

// Package psd implements the client of the USDA Foreign Agricultural Service
// OpenData API for the Production, Supply and Distribution (PSD) database.
//
// Official documentation is at https://apps.fas.usda.gov/opendatawebV2/ .
//
// Every endpoint used here returns a JSON array of flat objects, which is
// converted into a table.Table. The catalogs (commodities, commodity attributes
// and units of measure) are small reference tables, while the observations are
// fetched one commodity and one market year at a time, for all countries.
//
// A request may fail in two ways. A transport failure (e.g. connection refused)
// is returned as an error, and is expected to abort the run. A response which
// is not a success, or whose body cannot be parsed, is reported in the Result
// as a FailureKind, and the caller may skip it.
package psd
