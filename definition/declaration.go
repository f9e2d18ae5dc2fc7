// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package definition

import (
	"github.com/pkg/errors"

	"github.com/vdobler/tasty"
)

// Declarations reads the resource declarations from files.
func Declarations(files []string) ([]tasty.Declaration, error) {
	var all []tasty.Declaration
	for _, name := range files {
		f, err := LoadFile(name)
		if err != nil {
			return nil, err
		}
		ds, err := f.Declarations()
		if err != nil {
			return nil, err
		}
		all = append(all, ds...)
	}
	return all, nil
}

// Declarations decodes the resource declarations of f.
func (f *File) Declarations() ([]tasty.Declaration, error) {
	soup, err := f.Decode()
	if err != nil {
		return nil, err
	}
	if m, ok := soup.(map[string]interface{}); ok {
		if list, ok := m["resources"]; ok {
			soup = list
		} else {
			soup = []interface{}{m}
		}
	}
	var ds []tasty.Declaration
	if err := decodeTo(soup, &ds); err != nil {
		return nil, errors.Wrapf(err, "file %s", f.Name)
	}
	return ds, nil
}
