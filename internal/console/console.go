// Package console prints operator-facing deploy progress: headings, skipped
// and confirmed markers, notes and the delta report.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"github.com/fulmenhq/convoy/internal/delta"
)

// Console writes progress lines to an operator stream, usually stderr
type Console struct {
	w io.Writer

	heading   *color.Color
	skipped   *color.Color
	confirmed *color.Color
	note      *color.Color
	point     *color.Color
	label     *color.Color
	failure   *color.Color
	emphasis  *color.Color
}

// New returns a console writing to w. Colors follow color.NoColor.
func New(w io.Writer) *Console {
	if w == nil {
		w = os.Stderr
	}
	return &Console{
		w:         w,
		heading:   color.New(color.FgBlue, color.Bold),
		skipped:   color.New(color.FgHiBlack, color.Bold),
		confirmed: color.New(color.FgGreen, color.Bold),
		note:      color.New(color.FgHiBlack),
		point:     color.New(color.FgBlue, color.Bold),
		label:     color.New(color.FgBlue),
		failure:   color.New(color.FgRed, color.Bold),
		emphasis:  color.New(color.Underline),
	}
}

// Heading announces a step
func (c *Console) Heading(format string, args ...interface{}) {
	c.heading.Fprintln(c.w, "● "+fmt.Sprintf(format, args...))
}

// Skipped marks a step that did not run
func (c *Console) Skipped(format string, args ...interface{}) {
	c.skipped.Fprintln(c.w, "✘ "+fmt.Sprintf(format, args...)+" (skipped)")
}

// Confirmed marks a completed step
func (c *Console) Confirmed(format string, args ...interface{}) {
	c.confirmed.Fprintln(c.w, "✔ "+fmt.Sprintf(format, args...))
}

// Note prints a side remark
func (c *Console) Note(format string, args ...interface{}) {
	c.note.Fprintln(c.w, "- "+fmt.Sprintf(format, args...))
}

// Point prints a bullet under the last heading
func (c *Console) Point(text string) {
	fmt.Fprintln(c.w, c.point.Sprint("   *"), text)
}

// Failure prints the cause of an aborted run
func (c *Console) Failure(err error) {
	fmt.Fprintln(c.w, c.failure.Sprint("DEPLOY ERROR:"), err.Error())
}

var domainLabels = map[delta.Domain]struct{ label, need string }{
	delta.Dependencies: {"Packages", "reinstall"},
	delta.Frontend:     {"Frontend", "rebuild"},
	delta.Backend:      {"Backend", "restart"},
}

// DeltaReport prints one line per classified domain and a hint when nothing
// changed. Domains missing from statuses (forced or not captured) are left out.
func (c *Console) DeltaReport(statuses map[delta.Domain]delta.Status) {
	c.Heading("Post-update deltas:")
	width := 0
	for _, d := range delta.Domains {
		if w := runewidth.StringWidth(domainLabels[d].label); w > width {
			width = w
		}
	}
	for _, d := range delta.Domains {
		status, ok := statuses[d]
		if !ok {
			continue
		}
		meta := domainLabels[d]
		text := "no changes"
		if status == delta.Changed {
			text = "has updated, needs " + c.emphasis.Sprint(meta.need)
		}
		c.Point(c.label.Sprint(runewidth.FillRight(meta.label, width)) + " - " + text)
	}
	if len(statuses) > 0 && !delta.AnyChanged(statuses) {
		c.Note("Nothing to do here - use --force if this is wrong")
	}
}

// Table prints rows as space-aligned columns; the first row is the header.
// Widths are measured in terminal cells so wide runes line up.
func Table(w io.Writer, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				if cw := runewidth.StringWidth(cell); cw > widths[i] {
					widths[i] = cw
				}
			}
		}
	}
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			if i == len(row)-1 || i >= len(widths) {
				cells[i] = cell
				continue
			}
			cells[i] = runewidth.FillRight(cell, widths[i])
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}
