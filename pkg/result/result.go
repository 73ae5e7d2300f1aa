// Package result records the outcome of vendor calls and aggregates them into
// ordered sequences for display.
package result

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/yurifrl/categorisation/pkg/config"
	"github.com/yurifrl/categorisation/pkg/envelope"
)

type Status int

const (
	// Undefined means the call was never made.
	Undefined Status = iota
	Success
	// Warning covers benign outcomes such as an already existing user.
	Warning
	Error
	// Exception is a named business condition, e.g. an unknown user.
	Exception
)

func (s Status) String() string {
	switch s {
	case Success:
		return "SUCCESS"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	case Exception:
		return "EXCEPTION"
	default:
		return "UNDEFINED"
	}
}

// Result is the outcome of one endpoint call.
type Result struct {
	Status    Status
	Response  *envelope.Response
	Action    string
	Message   string
	Important bool
}

// New classifies resp: 2xx is Success, 409 Conflict is Warning, anything
// else (including a call that never reached the vendor) is Error.
func New(action string, resp *envelope.Response) *Result {
	r := &Result{Action: action, Response: resp}
	switch {
	case resp == nil:
		r.Status = Undefined
		r.Message = "not executed"
	case !resp.Executed():
		r.Status = Error
		r.Message = fmt.Sprintf("call failed: %v", resp.Err)
	case resp.OK():
		r.Status = Success
	case resp.StatusCode == http.StatusConflict:
		r.Status = Warning
		r.Message = "already exists"
	default:
		r.Status = Error
		r.Message = resp.Status()
		if msg := resp.Message(); msg != "" {
			r.Message += ": " + msg
		}
	}
	return r
}

// Note builds a result that carries no response, e.g. a skipped step or a
// record that failed validation.
func Note(action string, status Status, message string) *Result {
	return &Result{Action: action, Status: status, Message: message}
}

// MarkImportant flags the result for selective display.
func (r *Result) MarkImportant() *Result {
	r.Important = true
	return r
}

// Correct overrides status and message, used when the caller knows better
// than the status code, e.g. a 404 that means "does not exist".
func (r *Result) Correct(status Status, message string) *Result {
	r.Status = status
	r.Message = message
	return r
}

// Endpoint returns the vendor path of the call, or "".
func (r *Result) Endpoint() string {
	if r.Response == nil || r.Response.Request == nil {
		return ""
	}
	return r.Response.Request.Endpoint
}

// Summary renders the result at the given detail level.
func (r *Result) Summary(level config.DetailLevel) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", r.Status, r.Action)
	if r.Message != "" {
		fmt.Fprintf(&b, ": %s", r.Message)
	}
	if r.Response != nil {
		b.WriteString(" | ")
		b.WriteString(r.Response.Summary(level))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *Result) flatten() []*Result {
	if r == nil {
		return nil
	}
	return []*Result{r}
}
