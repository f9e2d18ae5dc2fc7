// Copyright 2014 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package response provides the document a request yields: status,
// headers and the decoded body. It is shared by the capture engine, the
// checks and the drivers.
package response

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Response captures information about a HTTP response.
type Response struct {
	Status     int
	StatusText string

	// Header with lower-cased names. Repeated headers are joined by ", ".
	Header map[string]interface{}

	// Body is the decoded JSON body if the body is JSON, the body as a
	// string otherwise, or the mock value for mocked responses.
	Body interface{}

	// Raw is the received body.
	Raw []byte

	// Duration to receive the response and read the whole body.
	Duration time.Duration

	// Mocked responses were never sent over the wire.
	Mocked bool
}

// FromHTTP reads and closes the body of resp and builds a Response.
func FromHTTP(resp *http.Response, start time.Time) (*Response, error) {
	defer resp.Body.Close()
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "cannot decompress response body")
		}
		defer gz.Close()
		reader = gz
	}
	raw, err := ioutil.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read response body")
	}
	r := New(resp.StatusCode, resp.Header, raw)
	if text := statusText(resp.Status); text != "" {
		r.StatusText = text
	}
	r.Duration = time.Since(start)
	return r, nil
}

// New builds a Response from the given parts. JSON bodies are decoded.
func New(status int, header http.Header, raw []byte) *Response {
	r := &Response{
		Status:     status,
		StatusText: http.StatusText(status),
		Header:     make(map[string]interface{}, len(header)),
		Raw:        raw,
	}
	for name, vals := range header {
		r.Header[strings.ToLower(name)] = strings.Join(vals, ", ")
	}
	r.Body = decode(r.ContentType(), raw)
	return r
}

// Mock returns the Response of a mocked request: status 200 with body.
func Mock(body interface{}) *Response {
	raw, _ := json.Marshal(body)
	return &Response{
		Status:     http.StatusOK,
		StatusText: http.StatusText(http.StatusOK),
		Header:     map[string]interface{}{"content-type": "application/json"},
		Body:       body,
		Raw:        raw,
		Mocked:     true,
	}
}

// statusText strips the numerical code from a status line like "200 OK".
func statusText(status string) string {
	if i := strings.IndexByte(status, ' '); i > 0 {
		if _, err := strconv.Atoi(status[:i]); err == nil {
			return strings.TrimSpace(status[i+1:])
		}
	}
	return status
}

func decode(contentType string, raw []byte) interface{} {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	if strings.Contains(contentType, "json") || trimmed[0] == '{' || trimmed[0] == '[' {
		var v interface{}
		if err := json.Unmarshal(trimmed, &v); err == nil {
			return v
		}
	}
	return string(raw)
}

// ContentType returns the media type of the response without parameters.
func (r *Response) ContentType() string {
	ct := r.HeaderValue("content-type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(strings.ToLower(ct))
}

// HeaderValue returns the value of the named header or "".
func (r *Response) HeaderValue(name string) string {
	if v, ok := r.Header[strings.ToLower(name)]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// BodyReader returns a reader of the raw response body.
func (r *Response) BodyReader() *bytes.Reader {
	return bytes.NewReader(r.Raw)
}

// Document returns the response as a generic tree
//     {"status": 200, "statusText": "OK", "headers": {...}, "data": body}
// suitable for script and expression evaluation.
func (r *Response) Document() map[string]interface{} {
	return map[string]interface{}{
		"status":     float64(r.Status),
		"statusText": r.StatusText,
		"headers":    r.Header,
		"data":       r.Body,
	}
}
