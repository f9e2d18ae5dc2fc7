// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config reads the .tastyrc.yaml configuration.
package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration read from the working directory.
const DefaultFile = ".tastyrc.yaml"

// Config of the tasty command.
type Config struct {
	Env     string     `yaml:"env"`
	Type    string     `yaml:"type"`
	Dir     string     `yaml:"dir"`
	App     App        `yaml:"app"`
	Func    Func       `yaml:"func"`
	Load    LoadDriver `yaml:"load"`
	Log     Log        `yaml:"log"`
	History History    `yaml:"history"`
	Serve   Serve      `yaml:"serve"`
	Mock    Mock       `yaml:"mock"`
}

// App describes the application under test.
type App struct {
	// Dir holds the resource declaration files.
	Dir   string            `yaml:"dir"`
	Name  string            `yaml:"name"`
	Host  map[string]string `yaml:"host"`
	Trace map[string]string `yaml:"trace"`

	// Postman is an optional collection declaring further resources.
	Postman string `yaml:"postman"`
}

// Func configures the functional driver.
type Func struct {
	Timeout  time.Duration `yaml:"timeout"`
	Parallel bool          `yaml:"parallel"`
	Insecure bool          `yaml:"insecure"`
}

// LoadDriver configures the load driver.
type LoadDriver struct {
	// Engine is "artillery" or "inprocess".
	Engine    string                 `yaml:"engine"`
	Artillery string                 `yaml:"artillery"`
	Output    string                 `yaml:"output"`
	Config    map[string]interface{} `yaml:"config"`
}

// Log configures logging.
type Log struct {
	Level string `yaml:"level"`

	// WAL is the directory of the run log, empty keeps no run log.
	WAL string `yaml:"wal"`
}

// History configures the run history.
type History struct {
	// Dir of the store, empty keeps the history in memory.
	Dir string `yaml:"dir"`
}

// Serve configures the control API.
type Serve struct {
	Addr string `yaml:"addr"`
}

// Mock configures the mock server.
type Mock struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used for absent fields.
func Default() *Config {
	return &Config{
		Env:  "develop",
		Type: "func",
		Dir:  "test",
		App: App{
			Dir:  "app",
			Name: "app",
		},
		Func: Func{Timeout: 10 * time.Second},
		Load: LoadDriver{
			Engine:    "artillery",
			Artillery: "artillery",
		},
		Log:     Log{Level: "info"},
		History: History{Dir: ".tasty/history"},
		Serve:   Serve{Addr: ":8080"},
		Mock:    Mock{Addr: ":8081"},
	}
}

// Load reads filename over the defaults. A missing DefaultFile yields the
// defaults, any other missing file is an error.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		filename = DefaultFile
	}
	data, err := ioutil.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) && filepath.Base(filename) == DefaultFile {
			return cfg, nil
		}
		return nil, errors.Wrap(err, "reading config")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", filename)
	}
	return cfg, cfg.Validate()
}

// Validate checks the enumerated fields.
func (c *Config) Validate() error {
	switch c.Load.Engine {
	case "artillery", "inprocess":
	default:
		return errors.Errorf("unknown load engine %q", c.Load.Engine)
	}
	if c.Func.Timeout < 0 {
		return errors.Errorf("negative timeout %s", c.Func.Timeout)
	}
	return nil
}

// TestDir is the directory of the tests of the given run type.
func (c *Config) TestDir(typ string) string {
	return filepath.Join(c.Dir, typ)
}

// Save writes c as YAML to filename.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(filename, data, 0644)
}
