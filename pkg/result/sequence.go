package result

import (
	"fmt"
	"strings"

	"github.com/yurifrl/categorisation/pkg/config"
)

// Item is either a *Result or a *Sequence.
type Item interface {
	flatten() []*Result
}

// Sequence is an ordered list of results produced by one action.
type Sequence struct {
	Action  string
	Message string
	results []*Result
}

func NewSequence(action string) *Sequence {
	return &Sequence{Action: action}
}

// Append adds results, flattening sequences in place. Nil items are ignored.
func (s *Sequence) Append(items ...Item) *Sequence {
	for _, it := range items {
		if it == nil {
			continue
		}
		s.results = append(s.results, it.flatten()...)
	}
	return s
}

func (s *Sequence) flatten() []*Result {
	if s == nil {
		return nil
	}
	return s.results
}

// Len returns the number of results.
func (s *Sequence) Len() int {
	return len(s.results)
}

// Results returns a copy of the contained results.
func (s *Sequence) Results() []*Result {
	return append([]*Result(nil), s.results...)
}

// Last returns the most recently appended result, or nil.
func (s *Sequence) Last() *Result {
	if len(s.results) == 0 {
		return nil
	}
	return s.results[len(s.results)-1]
}

// Status is Success when every result is Success, otherwise Warning.
func (s *Sequence) Status() Status {
	for _, r := range s.results {
		if r.Status != Success {
			return Warning
		}
	}
	return Success
}

// Count returns how many results have status st.
func (s *Sequence) Count(st Status) int {
	n := 0
	for _, r := range s.results {
		if r.Status == st {
			n++
		}
	}
	return n
}

// Filter selects results. A zero Filter selects everything; otherwise a result
// is selected when it matches any of the set criteria.
type Filter struct {
	// Endpoint selects results whose vendor path contains this substring.
	Endpoint string
	// Important selects results flagged important.
	Important bool
	// Exceptions selects results with status Exception.
	Exceptions bool
}

func (f Filter) IsZero() bool {
	return f == Filter{}
}

func (f Filter) Match(r *Result) bool {
	if f.IsZero() {
		return true
	}
	if f.Endpoint != "" && strings.Contains(r.Endpoint(), f.Endpoint) {
		return true
	}
	if f.Important && r.Important {
		return true
	}
	return f.Exceptions && r.Status == Exception
}

// Elements returns the results selected by f, in order.
func (s *Sequence) Elements(f Filter) []*Result {
	var out []*Result
	for _, r := range s.results {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Summary renders a header line followed by the results. Low lists one line
// per result selected by f; Medium and High render every result as a block
// at that level.
func (s *Sequence) Summary(level config.DetailLevel, f Filter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", s.Action, s.Status())
	if s.Message != "" {
		fmt.Fprintf(&b, " - %s", s.Message)
	}
	fmt.Fprintf(&b, " (%d call(s), %d error(s))\n", len(s.results), s.Count(Error)+s.Count(Exception))

	if level == config.Low {
		for _, r := range s.Elements(f) {
			b.WriteString("  ")
			b.WriteString(r.Summary(level))
			b.WriteString("\n")
		}
		return b.String()
	}
	for i, r := range s.results {
		fmt.Fprintf(&b, "--- #%d\n", i+1)
		b.WriteString(r.Summary(level))
		b.WriteString("\n")
	}
	return b.String()
}
