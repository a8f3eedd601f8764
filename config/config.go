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

// Package config reads the run configuration: the reporting period and the
// ambient settings from params.yaml, and the API credentials.
package config

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/stockparfait/errors"
	"github.com/stockparfait/logging"
	"github.com/stockparfait/psd/message"

	toml "github.com/pelletier/go-toml/v2"
)

// Period of years [Start, Stop). Start == Stop is an empty period.
type Period struct {
	Start int `yaml:"start" required:"true"`
	Stop  int `yaml:"stop" required:"true"`
}

var _ message.Message = &Period{}

func (p *Period) InitMessage(js interface{}) error {
	if err := message.Init(p, js); err != nil {
		return errors.Annotate(err, "failed to parse period")
	}
	if p.Stop < p.Start {
		return errors.Reason("period stop=%d is before start=%d", p.Stop, p.Start)
	}
	return nil
}

// Len is the number of years in the period.
func (p Period) Len() int { return p.Stop - p.Start }

// Years in the period in the increasing order.
func (p Period) Years() []int {
	res := make([]int, 0, p.Len())
	for y := p.Start; y < p.Stop; y++ {
		res = append(res, y)
	}
	return res
}

// Params is the content of params.yaml.
type Params struct {
	Period      Period `yaml:"period" required:"true"`
	Output      string `yaml:"output" default:"data/data.parquet"`
	LogLevel    string `yaml:"log_level" default:"info" choices:"debug,info,warning,error"`
	Workers     int    `yaml:"workers" default:"1"`
	MetricsFile string `yaml:"metrics_file"` // prometheus text file; empty = none
	CSVOutput   string `yaml:"csv_output"`   // optional CSV copy of the dataset
}

var _ message.Message = &Params{}

func (p *Params) InitMessage(js interface{}) error {
	if err := message.Init(p, js); err != nil {
		return errors.Annotate(err, "failed to parse params")
	}
	if p.Workers < 1 {
		return errors.Reason("workers=%d must be >= 1", p.Workers)
	}
	if p.Output == "" {
		return errors.Reason("output must not be empty")
	}
	return nil
}

// Level is the logging level.
func (p *Params) Level() logging.Level {
	var l logging.Level
	if err := l.Set(p.LogLevel); err != nil {
		return logging.Info
	}
	return l
}

// LoadParams reads the YAML file at path.
func LoadParams(path string) (*Params, error) {
	var p Params
	if err := message.FromYAMLFile(&p, path); err != nil {
		return nil, errors.Annotate(err, "failed to load params")
	}
	return &p, nil
}

// EnvAPIKey is the environment variable holding the API key when the
// credentials file doesn't set it.
const EnvAPIKey = "USDA_API_KEY"

// Credentials for the PSD API.
type Credentials struct {
	APIKey string `toml:"usda_api_key"`
}

// LoadCredentials reads the API key from the TOML file at authPath. If the file
// doesn't exist or has no key, the key is read from EnvAPIKey environment
// variable, after loading the optional dotenv file at envPath (variables
// already set in the environment take precedence). Empty paths are skipped.
// Missing key is an error.
func LoadCredentials(ctx context.Context, authPath, envPath string) (*Credentials, error) {
	var c Credentials
	if authPath != "" {
		f, err := os.Open(authPath)
		switch {
		case err == nil:
			defer f.Close()
			if err := toml.NewDecoder(f).Decode(&c); err != nil {
				return nil, errors.Annotate(err, "failed to read credentials file %s", authPath)
			}
		case errors.Is(err, os.ErrNotExist):
			logging.Debugf(ctx, "credentials file %s does not exist", authPath)
		default:
			return nil, errors.Annotate(err, "failed to open credentials file %s", authPath)
		}
	}
	if c.APIKey != "" {
		return &c, nil
	}
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, errors.Annotate(err, "failed to load %s", envPath)
			}
			logging.Debugf(ctx, "env file %s does not exist", envPath)
		}
	}
	c.APIKey = os.Getenv(EnvAPIKey)
	if c.APIKey == "" {
		sample := `usda_api_key = "YourSecretUSDAKey"`
		return nil, errors.Reason(
			"API key not found.\nPlease create %s containing:\n%s\nor set %s",
			authPath, sample, EnvAPIKey)
	}
	return &c, nil
}
