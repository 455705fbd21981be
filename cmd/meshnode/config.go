// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"bytes"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/stakemesh/stakemesh/log"
	"github.com/stakemesh/stakemesh/mesh"
)

const envPrefix = "MESH"

// Config is the node configuration. Values come from the defaults, then the
// config file, then MESH_* environment variables, then command line flags.
type Config struct {
	DataDir  string `yaml:"data-dir" envconfig:"DATA_DIR"`
	Cache    int    `yaml:"cache" envconfig:"CACHE"` // MB
	Genesis  string `yaml:"genesis" envconfig:"GENESIS"`
	Scenario string `yaml:"scenario" envconfig:"SCENARIO"`

	Log struct {
		Level string `yaml:"level" envconfig:"LEVEL"`
		JSON  bool   `yaml:"json" envconfig:"JSON"`
	} `yaml:"log" envconfig:"LOG"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" envconfig:"ENABLED"`
		Addr    string `yaml:"addr" envconfig:"ADDR"`
	} `yaml:"metrics" envconfig:"METRICS"`

	Admin struct {
		Enabled bool   `yaml:"enabled" envconfig:"ENABLED"`
		Addr    string `yaml:"addr" envconfig:"ADDR"`
	} `yaml:"admin" envconfig:"ADMIN"`

	Chain mesh.Config `yaml:"chain" envconfig:"CHAIN"`
}

func defaultConfig() *Config {
	cfg := &Config{
		DataDir: defaultDataDir(),
		Cache:   256,
		Chain:   *mesh.DefaultConfig(),
	}
	cfg.Log.Level = "info"
	cfg.Metrics.Addr = "localhost:2112"
	cfg.Admin.Addr = "localhost:2113"
	return cfg
}

// loadConfig reads path over the defaults when path is set and applies the
// environment on top.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, errors.Wrapf(err, "decode config %s", path)
		}
	}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, errors.Wrap(err, "read environment")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Cache < 0 {
		return errors.New("cache must not be negative")
	}
	return errors.Wrap(c.Chain.Validate(), "chain")
}

func (c *Config) marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
