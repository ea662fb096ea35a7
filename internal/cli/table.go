package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/soyeahso/eventhost/internal/plugin"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	labelStyle  = lipgloss.NewStyle().Bold(true).Width(10)
)

// table renders rows in aligned columns separated by a box-drawing bar.
// Cells may already carry lipgloss styling; widths use the visible length.
type table struct {
	header []string
	rows   [][]string
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render(w io.Writer) {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = lipgloss.Width(h)
	}
	for _, r := range t.rows {
		for i, c := range r {
			if i < len(widths) && lipgloss.Width(c) > widths[i] {
				widths[i] = lipgloss.Width(c)
			}
		}
	}

	line := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, c := range cells {
			pad := 0
			if i < len(widths) {
				pad = widths[i] - lipgloss.Width(c)
			}
			parts[i] = c + strings.Repeat(" ", max(pad, 0))
		}
		return strings.TrimRight(strings.Join(parts, " │ "), " ")
	}

	fmt.Fprintln(w, headerStyle.Render(line(t.header)))
	for _, r := range t.rows {
		fmt.Fprintln(w, line(r))
	}
}

func stateCell(s plugin.State) string {
	switch s {
	case plugin.StateLoaded:
		return okStyle.Render(s.String())
	case plugin.StateFailed:
		return failStyle.Render(s.String())
	default:
		return dimStyle.Render(s.String())
	}
}

func statusCell(s plugin.Status) string {
	if s == plugin.StatusDelivered {
		return okStyle.Render(string(s))
	}
	return failStyle.Render(string(s))
}

// renderDescriptors prints one row per plugin descriptor.
func renderDescriptors(w io.Writer, descs []plugin.Descriptor) {
	if len(descs) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no plugins found"))
		return
	}
	t := &table{header: []string{"NAME", "STATE", "SOURCE", "ERROR"}}
	for _, d := range descs {
		t.add(d.Name, stateCell(d.State), d.Source, d.LastError)
	}
	t.render(w)
}

// renderOutcome prints the per-plugin results of one dispatched event.
func renderOutcome(w io.Writer, out plugin.Outcome) {
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Event"), out.EventID)
	if len(out.Results) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no plugins loaded"))
		return
	}
	t := &table{header: []string{"PLUGIN", "STATUS", "DURATION", "REASON"}}
	for _, r := range out.Results {
		t.add(r.Plugin, statusCell(r.Status), r.Duration.String(), r.Reason)
	}
	t.render(w)
	fmt.Fprintf(w, "%d delivered, %d failed\n", out.Delivered(), len(out.Failures()))
}
