package envelope

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/k0kubun/pp/v3"

	"github.com/yurifrl/categorisation/pkg/config"
)

// NotExecuted is the status code of a response whose request never completed.
const NotExecuted = -1

// Response is the outcome of one call. A response that never reached the
// vendor has StatusCode NotExecuted and Err set.
type Response struct {
	Request    *Request
	StatusCode int
	Reason     string
	Header     http.Header
	Text       string
	Bytes      []byte
	// Data is the parsed JSON body, or {"text": <raw>} when the body is not JSON.
	Data      any
	Err       error
	RequestID string
	Elapsed   time.Duration

	projected map[string]any
}

// Failed builds the response of a request that could not be sent.
func Failed(req *Request, err error) *Response {
	return &Response{
		Request:    req,
		StatusCode: NotExecuted,
		Reason:     "not executed",
		Err:        err,
		Data:       map[string]any{},
		projected:  map[string]any{},
	}
}

// Executed reports whether the vendor answered.
func (r *Response) Executed() bool {
	return r != nil && r.StatusCode != NotExecuted
}

// IsSuccessRange reports whether the status code lies in the hundred-band of
// band, e.g. IsSuccessRange(200) for any 2xx.
func (r *Response) IsSuccessRange(band int) bool {
	return r.Executed() && r.StatusCode/100 == band/100
}

// OK is a shorthand for IsSuccessRange(200).
func (r *Response) OK() bool {
	return r.IsSuccessRange(http.StatusOK)
}

func (r *Response) setBody(body []byte) {
	r.Bytes = body
	r.Text = string(body)

	var data any
	if len(body) > 0 && json.Unmarshal(body, &data) == nil {
		r.Data = data
	} else {
		r.Data = map[string]any{"text": r.Text}
	}
	r.project()
}

func (r *Response) project() {
	r.projected = make(map[string]any)
	obj := r.Object()
	if obj == nil || r.Request == nil {
		return
	}
	for _, f := range r.Request.Fields {
		if v, ok := obj[f]; ok {
			r.projected[f] = v
		}
	}
}

// Object returns the body when it is a JSON object.
func (r *Response) Object() map[string]any {
	obj, _ := r.Data.(map[string]any)
	return obj
}

// Field returns a projected field.
func (r *Response) Field(name string) (any, bool) {
	v, ok := r.projected[name]
	return v, ok
}

// String returns a projected field rendered as text.
func (r *Response) String(name string) string {
	v, ok := r.projected[name]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%v", t)
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// Message returns the vendor's error message, if the body carries one.
func (r *Response) Message() string {
	obj := r.Object()
	for _, k := range []string{"errorMessage", "message", "error_description", "error"} {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Status renders "<code> <reason>".
func (r *Response) Status() string {
	if !r.Executed() {
		return "not executed"
	}
	return fmt.Sprintf("%d %s", r.StatusCode, r.Reason)
}

// Highlights renders the projected fields in request order, arrays as counts.
func (r *Response) Highlights() string {
	if r.Request == nil {
		return ""
	}
	var parts []string
	for _, f := range r.Request.Fields {
		v, ok := r.projected[f]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case []any:
			parts = append(parts, fmt.Sprintf("%s=%d item(s)", f, len(t)))
		case string:
			if f == "access_token" || f == "code" {
				t = mask(t)
			}
			parts = append(parts, fmt.Sprintf("%s=%s", f, t))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", f, r.String(f)))
		}
	}
	return strings.Join(parts, " ")
}

// Summary describes the call. Low is one line with the endpoint-relevant
// fields, Medium adds the body, High adds the full request and a dump of the
// parsed response.
func (r *Response) Summary(level config.DetailLevel) string {
	var b strings.Builder
	method, endpoint := "", ""
	if r.Request != nil {
		method, endpoint = r.Request.Method, r.Request.Endpoint
	}
	fmt.Fprintf(&b, "%s %s -> %s", method, endpoint, r.Status())
	if h := r.Highlights(); h != "" {
		b.WriteString(" " + h)
	}
	if r.Err != nil {
		fmt.Fprintf(&b, " (%v)", r.Err)
	} else if msg := r.Message(); msg != "" && !r.OK() {
		fmt.Fprintf(&b, " (%s)", msg)
	}
	if level == config.Low {
		return b.String()
	}

	b.WriteString("\n")
	if level == config.High && r.Request != nil {
		b.WriteString("--- request")
		if r.RequestID != "" {
			b.WriteString(" " + r.RequestID)
		}
		b.WriteString("\n")
		b.WriteString(r.Request.String())
		b.WriteString("--- response")
		if r.Executed() {
			fmt.Fprintf(&b, " (%s)", r.Elapsed.Round(time.Millisecond))
		}
		b.WriteString("\n")
		var hb strings.Builder
		writeHeaders(&hb, r.Header)
		b.WriteString(hb.String())
		b.WriteString(dump(r.Data))
		b.WriteString("\n")
		return b.String()
	}
	if len(r.Bytes) > 0 {
		b.WriteString(r.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func dump(v any) string {
	printer := pp.New()
	printer.SetColoringEnabled(false)
	return printer.Sprint(v)
}
