// Package envelope wraps a single vendor HTTP call: the request that was sent
// and the response that came back, with the JSON body parsed and projected
// onto the fields relevant to the endpoint.
package envelope

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Request describes one call. Endpoint is the fixed vendor path and is used to
// filter and label results; URL is the absolute address actually called.
type Request struct {
	Method   string
	URL      string
	Endpoint string
	Header   http.Header
	Body     []byte
	// Fields names the response fields kept by projection.
	Fields []string
}

// NewRequest joins root and path into an absolute URL.
func NewRequest(method, root, path string) *Request {
	return &Request{
		Method:   method,
		URL:      strings.TrimRight(root, "/") + path,
		Endpoint: path,
		Header:   make(http.Header),
	}
}

// WithBearer sets the Authorization header.
func (r *Request) WithBearer(token string) *Request {
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

// WithHeader sets a single header.
func (r *Request) WithHeader(key, value string) *Request {
	r.Header.Set(key, value)
	return r
}

// WithQuery appends query parameters to the URL.
func (r *Request) WithQuery(values url.Values) *Request {
	if len(values) == 0 {
		return r
	}
	sep := "?"
	if strings.Contains(r.URL, "?") {
		sep = "&"
	}
	r.URL += sep + values.Encode()
	return r
}

// WithJSON encodes v as the request body.
func (r *Request) WithJSON(v any) (*Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	r.Body = body
	r.Header.Set("Content-Type", "application/json")
	return r, nil
}

// WithForm form-encodes values as the request body.
func (r *Request) WithForm(values url.Values) *Request {
	r.Body = []byte(values.Encode())
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

// Expect names the response fields kept by projection.
func (r *Request) Expect(fields ...string) *Request {
	r.Fields = fields
	return r
}

// String renders the request with credentials masked.
func (r *Request) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", r.Method, r.URL)
	writeHeaders(&b, r.Header)
	if len(r.Body) > 0 {
		b.WriteString("\n")
		b.WriteString(maskBody(r.Header.Get("Content-Type"), r.Body))
		b.WriteString("\n")
	}
	return b.String()
}

var secretFields = []string{"client_secret", "access_token", "code"}

func writeHeaders(b *strings.Builder, h http.Header) {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := strings.Join(h[k], ", ")
		if strings.EqualFold(k, "Authorization") || strings.EqualFold(k, "Ocp-Apim-Subscription-Key") {
			v = mask(v)
		}
		fmt.Fprintf(b, "%s: %s\n", k, v)
	}
}

func maskBody(contentType string, body []byte) string {
	if !strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		return string(body)
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return string(body)
	}
	for _, f := range secretFields {
		if v := values.Get(f); v != "" {
			values.Set(f, mask(v))
		}
	}
	return values.Encode()
}

// mask keeps the last four characters of a credential.
func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
