package dashboard

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// NoRecordersText is shown when no record is visible.
const NoRecordersText = "No active recorders."

// RenderPlain writes rows as an aligned text table without escape codes.
func RenderPlain(w io.Writer, rows []Row) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, NoRecordersText)
		return err
	}

	widths := make([]int, len(Columns))
	for i, c := range Columns {
		widths[i] = lipgloss.Width(c)
	}
	for _, r := range rows {
		for i, cell := range r.Cells() {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	writeLine := func(cells []string) {
		var line strings.Builder
		for i, cell := range cells {
			if i > 0 {
				line.WriteString("  ")
			}
			line.WriteString(cell)
			if i < len(cells)-1 {
				line.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)))
			}
		}
		b.WriteString(strings.TrimRight(line.String(), " "))
		b.WriteByte('\n')
	}
	writeLine(Columns)
	for _, r := range rows {
		writeLine(r.Cells())
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// RenderTable renders rows as a bordered, colored table. A positive width
// stretches the table to that many columns.
func RenderTable(rows []Row, width int) string {
	if len(rows) == 0 {
		return EmptyText.Render(NoRecordersText)
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(BorderColor)).
		Headers(Columns...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return HeaderCell
			}
			if col == 1 && row >= 0 && row < len(rows) {
				return Cell.Foreground(StateColor(rows[row].State))
			}
			return Cell
		})
	for _, r := range rows {
		cells := r.Cells()
		cells[1] = StateIcon(r.State) + " " + r.State
		t.Row(cells...)
	}
	if width > 0 {
		t.Width(width)
	}
	return t.Render()
}
