// Copyright 2014 Volker Dobler.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package functional

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/vdobler/tasty/pipeline"
	"github.com/vdobler/tasty/template"
)

const (
	// DefaultUserAgent is the user agent string sent in http requests
	// which do not set a User-Agent header.
	DefaultUserAgent = "tasty"

	// DefaultClientTimeout is the timeout used by the http clients.
	DefaultClientTimeout = 10 * time.Second

	// RequestIDHeader carries the id of every request.
	RequestIDHeader = "X-Request-Id"
)

// newTransport returns the transport used while making requests.
func newTransport(insecure bool) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: insecure,
		},
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// newHTTPRequest turns the descriptor d into a http.Request.
func newHTTPRequest(ctx context.Context, d pipeline.Descriptor) (*http.Request, error) {
	method := strings.ToUpper(d.Method)
	if method == "" {
		method = http.MethodGet
	}

	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, err
	}
	if len(d.Params) > 0 {
		q := u.Query()
		for name, v := range d.Params {
			if list, ok := v.([]interface{}); ok {
				for _, e := range list {
					q.Add(name, template.Render(e))
				}
				continue
			}
			q.Set(name, template.Render(v))
		}
		u.RawQuery = q.Encode()
	}

	body, contentType, err := requestBody(d)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	req.ContentLength = int64(len(body))
	if len(body) == 0 {
		req.Body = http.NoBody
	}

	for name, v := range d.Headers {
		req.Header.Set(name, template.Render(v))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", DefaultUserAgent)
	}
	return req, nil
}

// requestBody serializes the body of d. If a special Content-Type header
// is needed (e.g. because of a multipart body) it is returned.
func requestBody(d pipeline.Descriptor) ([]byte, string, error) {
	if len(d.Files) > 0 {
		return multipartBody(d.Form, d.Files)
	}
	if d.Structured {
		if d.Body == nil {
			return nil, "", nil
		}
		b, err := json.Marshal(d.Body)
		return b, "", errors.Wrap(err, "cannot encode body")
	}
	switch b := d.Body.(type) {
	case nil:
		if len(d.Form) > 0 {
			return []byte(formValues(d.Form).Encode()), "application/x-www-form-urlencoded", nil
		}
		return nil, "", nil
	case string:
		return []byte(b), "", nil
	case []byte:
		return b, "", nil
	case map[string]interface{}:
		if strings.Contains(pipeline.ContentType(d.Headers), "x-www-form-urlencoded") {
			return []byte(formValues(b).Encode()), "", nil
		}
	}
	b, err := json.Marshal(d.Body)
	return b, "", errors.Wrap(err, "cannot encode body")
}

func formValues(m map[string]interface{}) url.Values {
	v := url.Values{}
	for name, val := range m {
		v.Set(name, template.Render(val))
	}
	return v
}

// multipartBody formats form and files as a proper multipart/form-data
// body and returns it together with the content type containing the
// boundary.
func multipartBody(form map[string]interface{}, files map[string]string) ([]byte, string, error) {
	var body = &bytes.Buffer{}
	var mpwriter = multipart.NewWriter(body)

	// All non-file parameters come first.
	for _, n := range sortedKeys(form) {
		if err := mpwriter.WriteField(n, template.Render(form[n])); err != nil {
			return nil, "", err
		}
	}

	// File parameters go to the end.
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if err := addFilePart(mpwriter, n, files[n]); err != nil {
			return nil, "", err
		}
	}
	if err := mpwriter.Close(); err != nil {
		return nil, "", err
	}
	return body.Bytes(), mpwriter.FormDataContentType(), nil
}

// addFilePart adds the content of file as parameter n to mpwriter.
func addFilePart(mpwriter *multipart.Writer, n, file string) error {
	data, err := ioutil.ReadFile(file)
	if err != nil {
		return errors.Wrapf(err, "file parameter %s", n)
	}
	basename := path.Base(file)

	// Doing fw, err := mpwriter.CreateFormFile(n, basename) would
	// be much simpler but would fix the content type to
	// application/octet-stream. We can do a bit better.
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(n), escapeQuotes(basename)))
	var ct = "application/octet-stream"
	if i := strings.LastIndex(basename, "."); i != -1 {
		if t := mime.TypeByExtension(basename[i:]); t != "" {
			ct = t
		}
	}
	h.Set("Content-Type", ct)
	fw, err := mpwriter.CreatePart(h)
	if err != nil {
		return errors.Wrapf(err, "unable to create part for parameter %q", n)
	}
	_, err = io.Copy(fw, bytes.NewReader(data))
	return err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
