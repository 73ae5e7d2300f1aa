package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/yurifrl/categorisation/pkg/config"
	"github.com/yurifrl/categorisation/pkg/result"
)

// filters selects which results of a sequence are printed.
type filters struct {
	endpoint   string
	important  bool
	exceptions bool
	table      bool
}

func (f *filters) toFilter() result.Filter {
	return result.Filter{
		Endpoint:   f.endpoint,
		Important:  f.important,
		Exceptions: f.exceptions,
	}
}

var statusStyles = map[result.Status]lipgloss.Style{
	result.Success:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")), // green
	result.Warning:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")), // yellow
	result.Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),  // red
	result.Exception: lipgloss.NewStyle().Foreground(lipgloss.Color("13")), // magenta
	result.Undefined: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),  // gray
}

// render prints seq either as a table or as its summary, coloured by status.
func (f *filters) render(w io.Writer, seq *result.Sequence, level config.DetailLevel) {
	if seq == nil {
		return
	}
	if f.table {
		result.RenderTable(w, seq, f.toFilter())
		return
	}
	style := statusStyles[seq.Status()]
	fmt.Fprint(w, style.Render(seq.Summary(level, f.toFilter())))
	fmt.Fprintln(w)
}
