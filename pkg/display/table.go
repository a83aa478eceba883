package display

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/kylerisse/comitup-watch/pkg/engine"
	"github.com/kylerisse/comitup-watch/pkg/host"
)

const columnGap = "  "

// hostTitle heads the first column.
const hostTitle = "Host"

// renderTable lays rows out in aligned columns, one line per host.
func renderTable(rows []engine.Row) []string {
	widths := make([]int, engine.NumColumns+1)
	widths[0] = lipgloss.Width(hostTitle)
	for i, title := range engine.ColumnTitles {
		widths[i+1] = lipgloss.Width(title)
	}
	for _, r := range rows {
		widths[0] = max(widths[0], lipgloss.Width(r.Host))
		for i, c := range r.Cells {
			widths[i+1] = max(widths[i+1], lipgloss.Width(c.Value))
		}
	}

	header := make([]string, 0, len(widths))
	header = append(header, StyleColumnHeader.Render(pad(hostTitle, widths[0])))
	for i, title := range engine.ColumnTitles {
		header = append(header, StyleColumnHeader.Render(pad(title, widths[i+1])))
	}

	lines := []string{strings.Join(header, columnGap)}
	for _, r := range rows {
		cells := make([]string, 0, len(widths))
		cells = append(cells, StyleCell.Render(pad(r.Host, widths[0])))
		for i, c := range r.Cells {
			cells = append(cells, cellStyle(r, i, c).Render(pad(c.Value, widths[i+1])))
		}
		lines = append(lines, strings.Join(cells, columnGap))
	}
	return lines
}

func cellStyle(r engine.Row, col int, c engine.Cell) lipgloss.Style {
	if c.Fresh {
		return StyleFresh
	}
	if col == engine.ColReachability {
		switch r.Reachability {
		case host.Up:
			return StyleCell.Foreground(ColorUp)
		case host.Down:
			return StyleCell.Foreground(ColorDown)
		}
	}
	return StyleCell
}

// pad right-pads s with spaces to width display cells.
func pad(s string, width int) string {
	if n := width - lipgloss.Width(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}
