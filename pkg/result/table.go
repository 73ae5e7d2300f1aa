package result

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RenderTable writes the results selected by f as a table.
func RenderTable(w io.Writer, s *Sequence, f Filter) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("%s: %s", s.Action, s.Status()))
	t.AppendHeader(table.Row{"#", "Status", "Action", "Endpoint", "HTTP", "Details"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 6, WidthMax: 60},
	})

	for i, r := range s.Elements(f) {
		httpStatus, details := "-", r.Message
		if r.Response != nil {
			httpStatus = r.Response.Status()
			if h := r.Response.Highlights(); h != "" {
				if details != "" {
					details += " "
				}
				details += h
			}
		}
		t.AppendRow(table.Row{i + 1, r.Status, r.Action, r.Endpoint(), httpStatus, details})
	}
	if s.Message != "" {
		t.AppendFooter(table.Row{"", "", s.Message})
	}
	t.Render()
}

// View is the serialisable form of a sequence.
type View struct {
	Action  string       `json:"action"`
	Message string       `json:"message,omitempty"`
	Status  string       `json:"status"`
	Results []ResultView `json:"results"`
}

type ResultView struct {
	Status     string `json:"status"`
	Action     string `json:"action"`
	Message    string `json:"message,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
	HTTPStatus int    `json:"http_status,omitempty"`
	Highlights string `json:"highlights,omitempty"`
	Important  bool   `json:"important,omitempty"`
}

// View returns the results selected by f in serialisable form.
func (s *Sequence) View(f Filter) View {
	v := View{Action: s.Action, Message: s.Message, Status: s.Status().String(), Results: []ResultView{}}
	for _, r := range s.Elements(f) {
		rv := ResultView{
			Status:    r.Status.String(),
			Action:    r.Action,
			Message:   r.Message,
			Endpoint:  r.Endpoint(),
			Important: r.Important,
		}
		if r.Response != nil {
			rv.HTTPStatus = r.Response.StatusCode
			rv.Highlights = r.Response.Highlights()
		}
		v.Results = append(v.Results, rv)
	}
	return v
}
