// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package load

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/vdobler/tasty/pipeline"
	"github.com/vdobler/tasty/schema"
)

// Config is the config section of a load document.
type Config struct {
	Target    string                 `json:"target" yaml:"target"`
	TLS       TLS                    `json:"tls" yaml:"tls"`
	HTTP      HTTP                   `json:"http" yaml:"http"`
	Phases    []Phase                `json:"phases" yaml:"phases"`
	Variables map[string]interface{} `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// TLS settings.
type TLS struct {
	RejectUnauthorized bool `json:"rejectUnauthorized" yaml:"rejectUnauthorized"`
}

// HTTP settings. Timeout is a number of seconds, given as number or string.
type HTTP struct {
	Timeout interface{} `json:"timeout" yaml:"timeout"`
}

// TimeoutDuration returns Timeout as a duration. Strings may carry a unit
// ("1500ms"); bare numbers are seconds.
func (h HTTP) TimeoutDuration() time.Duration {
	switch t := h.Timeout.(type) {
	case float64:
		return time.Duration(t * float64(time.Second))
	case int:
		return time.Duration(t) * time.Second
	case string:
		if d, err := time.ParseDuration(t); err == nil {
			return d
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
	}
	return 10 * time.Second
}

// Phase is a period of constant or linearly ramped arrival rate.
type Phase struct {
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Duration    int    `json:"duration" yaml:"duration"`
	ArrivalRate int    `json:"arrivalRate" yaml:"arrivalRate"`
	RampTo      int    `json:"rampTo,omitempty" yaml:"rampTo,omitempty"`
}

// Arrivals is the number of scenarios started during the phase.
func (p Phase) Arrivals() int {
	if p.RampTo > 0 {
		return p.Duration * (p.ArrivalRate + p.RampTo) / 2
	}
	return p.Duration * p.ArrivalRate
}

// Document is the document consumed by a load engine.
type Document struct {
	Config    Config      `json:"config" yaml:"config"`
	Scenarios []*Scenario `json:"scenarios" yaml:"scenarios"`
}

// DefaultConfig returns the configuration user configurations are merged
// over.
func DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"tls":  map[string]interface{}{"rejectUnauthorized": false},
		"http": map[string]interface{}{"timeout": 10},
		"phases": []interface{}{
			map[string]interface{}{"duration": 10, "arrivalRate": 1},
		},
	}
}

var configSchema = schema.MustParse(map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"target": map[string]interface{}{"type": "string"},
		"tls": map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"rejectUnauthorized"},
			"properties": map[string]interface{}{
				"rejectUnauthorized": map[string]interface{}{"type": "boolean"},
			},
		},
		"http": map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"timeout"},
			"properties": map[string]interface{}{
				"timeout": map[string]interface{}{"type": []interface{}{"string", "integer"}},
			},
		},
		"phases": map[string]interface{}{
			"type":     "array",
			"minItems": 1,
			"items": []interface{}{
				map[string]interface{}{
					"type":     "object",
					"required": []interface{}{"duration", "arrivalRate"},
					"properties": map[string]interface{}{
						"duration":    map[string]interface{}{"type": "integer", "minimum": 1},
						"arrivalRate": map[string]interface{}{"type": "integer", "minimum": 0},
						"rampTo":      map[string]interface{}{"type": "integer", "minimum": 0},
						"name":        map[string]interface{}{"type": "string"},
					},
				},
			},
		},
	},
})

// NewConfig deep merges user over the default configuration, validates the
// result and sets the target unless user sets one.
func NewConfig(target string, user map[string]interface{}) (Config, error) {
	merged := DefaultConfig()
	if user != nil {
		merged = pipeline.DeepMerge(merged, user).(map[string]interface{})
	}
	if _, ok := merged["target"]; !ok {
		merged["target"] = target
	}
	if err := configSchema.Validate(merged); err != nil {
		return Config{}, errors.WithMessage(err, "load config")
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		return Config{}, errors.Wrap(err, "load config")
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "load config")
	}
	return cfg, nil
}
