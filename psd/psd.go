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

package psd

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/fetch"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/psd/table"
)

type contextKey int

const clientContextKey contextKey = iota

// URL is the default base URL of the server. It may be overwritten in tests
// before creating a new client.
var URL = "https://apps.fas.usda.gov/OpenData"

// Client for querying the PSD API.
type Client struct {
	baseURL string // the base URL of the server
	apiKey  string // sent as API_KEY header
}

func newClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// GetClient extracts the Client from the context, if any.
func GetClient(ctx context.Context) *Client {
	c, ok := ctx.Value(clientContextKey).(*Client)
	if !ok {
		return nil
	}
	return c
}

// UseClient creates a new client based on the API key and injects it into the
// context.
func UseClient(ctx context.Context, apiKey string) context.Context {
	return context.WithValue(ctx, clientContextKey, newClient(URL, apiKey))
}

// httpClient is the one injected by fetch.UseClient, or http.DefaultClient.
func httpClient(ctx context.Context) *http.Client {
	if c := fetch.GetClient(ctx); c != nil {
		return c
	}
	return http.DefaultClient
}

// FailureKind classifies a response which did not produce a table.
type FailureKind int

const (
	FailureNone      FailureKind = iota
	FailureMalformed             // body is not a JSON array of objects
	FailureStatus                // non-2xx status code
	FailureAuth                  // 401 or 403 status code
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "ok"
	case FailureMalformed:
		return "malformed"
	case FailureStatus:
		return "status"
	case FailureAuth:
		return "auth"
	}
	return "unknown"
}

// Result of a single request. When Failure is FailureNone, Table is non-nil.
type Result struct {
	Path    string
	Table   *table.Table
	Failure FailureKind
	Status  int   // HTTP status code
	Err     error // the cause of the failure, if any
}

// OK checks if the request produced a table.
func (r Result) OK() bool { return r.Failure == FailureNone }

// Fetch sends an authenticated GET request for the path relative to the base
// URL, and parses the response as a table. The returned error is non-nil only
// for transport failures; other failures are reported in the Result.
func Fetch(ctx context.Context, path string) (Result, error) {
	res := Result{Path: path}
	client := GetClient(ctx)
	if client == nil {
		return res, errors.Reason("no client in context")
	}
	uri := client.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return res, errors.Annotate(err, "failed to create request for %s", uri)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("API_KEY", client.apiKey)

	resp, err := httpClient(ctx).Do(req)
	if err != nil {
		return res, errors.Annotate(err, "failed to fetch %s", path)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return res, errors.Annotate(err, "failed to read response body for %s", path)
	}
	res.Status = resp.StatusCode

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		res.Failure = FailureAuth
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		res.Failure = FailureStatus
	}
	if !res.OK() {
		res.Err = errors.Reason("%s: status %d %s", path, resp.StatusCode,
			http.StatusText(resp.StatusCode))
		logging.Warningf(ctx, "%s", res.Err.Error())
		return res, nil
	}

	t, err := table.FromJSON(bytes.NewReader(body))
	if err != nil {
		res.Failure = FailureMalformed
		res.Err = errors.Annotate(err, "failed to parse response for %s", path)
		logging.Warningf(ctx, "%s", res.Err.Error())
		return res, nil
	}
	res.Table = t
	logging.Debugf(ctx, "fetched %s: %d rows, %d columns", path, t.Len(), len(t.Columns))
	return res, nil
}
