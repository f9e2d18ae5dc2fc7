// Copyright 2019 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package check

import (
	"reflect"

	"github.com/pkg/errors"

	"github.com/vdobler/tasty/scope"
	"github.com/vdobler/tasty/template"
)

// Substitute returns a copy of l where ${...} placeholders in all string
// fields (and in string values of interface fields) of the checks are
// evaluated against s. The copies are prepared again.
func Substitute(l List, s scope.Scope) (List, error) {
	out := make(List, len(l))
	for i, c := range l {
		sc, err := substitute(c, s)
		if err != nil {
			return nil, errors.WithMessagef(err, "check %d %s", i+1, NameOf(c))
		}
		out[i] = sc
	}
	if err := out.Prepare(); err != nil {
		return nil, err
	}
	return out, nil
}

func substitute(c Check, s scope.Scope) (Check, error) {
	v := reflect.ValueOf(c)
	isPtr := v.Kind() == reflect.Ptr
	if isPtr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return c, nil
	}
	cp := reflect.New(v.Type()).Elem()
	for i := 0; i < v.NumField(); i++ {
		if v.Type().Field(i).PkgPath != "" {
			continue // unexported, rebuilt by Prepare
		}
		cp.Field(i).Set(v.Field(i))
		if err := substituteRec(cp.Field(i), s); err != nil {
			return nil, err
		}
	}
	if isPtr {
		return cp.Addr().Interface().(Check), nil
	}
	return cp.Interface().(Check), nil
}

func substituteRec(v reflect.Value, s scope.Scope) error {
	switch v.Kind() {
	case reflect.String:
		str, err := template.EvalString(v.String(), s)
		if err != nil {
			return err
		}
		v.SetString(str)
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		ev, err := template.EvalDeep(v.Elem().Interface(), s)
		if err != nil {
			return err
		}
		if ev == nil {
			v.Set(reflect.Zero(v.Type()))
		} else {
			v.Set(reflect.ValueOf(ev))
		}
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.String || v.IsNil() {
			return nil
		}
		c := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		reflect.Copy(c, v)
		for i := 0; i < c.Len(); i++ {
			if err := substituteRec(c.Index(i), s); err != nil {
				return err
			}
		}
		v.Set(c)
	}
	return nil
}
