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
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
)

// Catalog endpoints.
const (
	CommoditiesPath         = "/api/psd/commodities"
	CommodityAttributesPath = "/api/psd/commodityAttributes"
	UnitsOfMeasurePath      = "/api/psd/unitsOfMeasure"
)

// CommodityYearPath is the endpoint of all the countries' observations for the
// commodity in the market year.
func CommodityYearPath(code string, year int) string {
	return fmt.Sprintf("/api/psd/commodity/%s/country/all/year/%d",
		url.PathEscape(code), year)
}

// Catalogs fetches the reference tables, and keeps the successful results for
// the lifetime of the instance, typically a single run. It is safe for
// concurrent use.
type Catalogs struct {
	mu    sync.Mutex
	cache map[string]Result // by path
}

// NewCatalogs creates an empty cache.
func NewCatalogs() *Catalogs {
	return &Catalogs{cache: make(map[string]Result)}
}

func (c *Catalogs) get(ctx context.Context, path string) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.cache[path]; ok {
		logging.Debugf(ctx, "using cached %s", path)
		return r, nil
	}
	r, err := Fetch(ctx, path)
	if err != nil {
		return r, errors.Annotate(err, "failed to fetch catalog")
	}
	if r.OK() {
		c.cache[path] = r
	}
	return r, nil
}

// Commodities catalog keyed by commodityCode.
func (c *Catalogs) Commodities(ctx context.Context) (Result, error) {
	return c.get(ctx, CommoditiesPath)
}

// CommodityAttributes catalog keyed by attributeId.
func (c *Catalogs) CommodityAttributes(ctx context.Context) (Result, error) {
	return c.get(ctx, CommodityAttributesPath)
}

// UnitsOfMeasure catalog keyed by unitId.
func (c *Catalogs) UnitsOfMeasure(ctx context.Context) (Result, error) {
	return c.get(ctx, UnitsOfMeasurePath)
}

// FetchCommodityYear fetches the observations of all the countries for the
// commodity code and the market year.
func FetchCommodityYear(ctx context.Context, code string, year int) (Result, error) {
	r, err := Fetch(ctx, CommodityYearPath(code, year))
	if err != nil {
		return r, errors.Annotate(err, "failed to fetch commodity %s for %d", code, year)
	}
	return r, nil
}
