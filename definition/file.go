// Copyright 2016 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package definition reads resource declarations and test cases from
// HJSON, YAML or JSON files.
//
// A declaration file holds a list of declarations (or an object with a
// "resources" list). A case file holds a list of cases (or an object with
// a "cases" list, or a single case):
//
//     cases: [
//       {
//         title: create user
//         steps: [
//           { request: "users.post", body: { name: "${name}" },
//             capture: { as: "id", json: "$.id" } }
//           { test: "read it back"
//             send: { request: "users.get", path: "${id}" }
//             checks: [ { Check: "StatusCode", Expect: 200 } ] }
//         ]
//       }
//     ]
package definition

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hjson/hjson-go/v4"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Extensions lists the file extensions of definition files.
var Extensions = []string{".hjson", ".yaml", ".yml", ".json"}

// File is a definition file read from disk.
type File struct {
	Name string
	Data []byte
}

// LoadFile reads filename.
func LoadFile(filename string) (*File, error) {
	filename = filepath.Clean(filename)
	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return &File{Name: filepath.ToSlash(filename), Data: data}, nil
}

// Decode decodes the file according to its extension into a JSON-like
// tree. Unknown extensions are decoded as HJSON which is a superset of
// JSON.
func (f *File) Decode() (interface{}, error) {
	var soup interface{}
	var err error
	switch strings.ToLower(filepath.Ext(f.Name)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(f.Data, &soup)
	case ".json":
		err = json.Unmarshal(f.Data, &soup)
	default:
		err = hjson.Unmarshal(f.Data, &soup)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "file %s is not valid", f.Name)
	}
	return soup, nil
}

// decodeTo decodes v, the tree of a file, into x honouring the json tags
// of x.
func decodeTo(v interface{}, x interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, x)
}

// Discover returns all definition files below dir sorted by name. A
// missing dir yields no files.
func Discover(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		if isDefinition(path) {
			files = append(files, filepath.ToSlash(path))
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func isDefinition(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
